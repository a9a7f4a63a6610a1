package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"staffbot/internal/names"
)

type dutyRow struct {
	ID             int64         `db:"id"`
	AssigneeName   string        `db:"assignee_name"`
	NameNorm       string        `db:"name_norm"`
	Date           string        `db:"date"`
	AssigneeUserID sql.NullInt64 `db:"assignee_user_id"`
	CreatedBy      int64         `db:"created_by"`
	CreatedAt      int64         `db:"created_at"`
	CheckedAt      sql.NullInt64 `db:"checked_at"`
	NotifiedAt     sql.NullInt64 `db:"notified_at"`
}

func (r dutyRow) entry() DutyEntry {
	return DutyEntry{
		ID:             r.ID,
		AssigneeName:   r.AssigneeName,
		Date:           r.Date,
		AssigneeUserID: r.AssigneeUserID.Int64,
		CreatedBy:      r.CreatedBy,
		CreatedAt:      fromMillis(r.CreatedAt),
		CheckedAt:      fromNullMillis(r.CheckedAt),
		NotifiedAt:     fromNullMillis(r.NotifiedAt),
	}
}

const dutyCols = `id, assignee_name, name_norm, date, assignee_user_id, created_by, created_at, checked_at, notified_at`

// InsertDutyEntries inserts all entries in one transaction and returns them with ids.
func (s *sqliteStore) InsertDutyEntries(ctx context.Context, entries []DutyEntry) ([]DutyEntry, error) {
	out := make([]DutyEntry, 0, len(entries))
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, e := range entries {
			if e.CreatedAt.IsZero() {
				e.CreatedAt = time.Now()
			}
			res, err := tx.NamedExecContext(ctx,
				`INSERT INTO duty_entries(assignee_name, name_norm, date, assignee_user_id, created_by, created_at)
				 VALUES(:assignee_name, :name_norm, :date, :assignee_user_id, :created_by, :created_at)`,
				dutyRow{
					AssigneeName:   e.AssigneeName,
					NameNorm:       names.Normalize(e.AssigneeName),
					Date:           e.Date,
					AssigneeUserID: nullID(e.AssigneeUserID),
					CreatedBy:      e.CreatedBy,
					CreatedAt:      toMillis(e.CreatedAt),
				})
			if err != nil {
				return err
			}
			if e.ID, err = res.LastInsertId(); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *sqliteStore) selectDuty(ctx context.Context, q string, args ...any) ([]DutyEntry, error) {
	var rows []dutyRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	out := make([]DutyEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry())
	}
	return out, nil
}

func (s *sqliteStore) ListDutyUnchecked(ctx context.Context, date string) ([]DutyEntry, error) {
	return s.selectDuty(ctx, `SELECT `+dutyCols+` FROM duty_entries WHERE date = ? AND checked_at IS NULL ORDER BY id`, date)
}

func (s *sqliteStore) ListDutyUnnotified(ctx context.Context, date string) ([]DutyEntry, error) {
	return s.selectDuty(ctx, `SELECT `+dutyCols+` FROM duty_entries WHERE date = ? AND notified_at IS NULL ORDER BY id`, date)
}

// MarkDutyChecked sets checked_at once. False means it was already set.
func (s *sqliteStore) MarkDutyChecked(ctx context.Context, id int64, at time.Time) (bool, error) {
	return affected(s.db.ExecContext(ctx,
		`UPDATE duty_entries SET checked_at = ? WHERE id = ? AND checked_at IS NULL`, toMillis(at), id))
}

// MarkDutyNotified sets notified_at once. False means it was already set.
func (s *sqliteStore) MarkDutyNotified(ctx context.Context, id int64, at time.Time) (bool, error) {
	return affected(s.db.ExecContext(ctx,
		`UPDATE duty_entries SET notified_at = ? WHERE id = ? AND notified_at IS NULL`, toMillis(at), id))
}

func (s *sqliteStore) ListDutyFrom(ctx context.Context, fromDate string) ([]DutyEntry, error) {
	return s.selectDuty(ctx, `SELECT `+dutyCols+` FROM duty_entries WHERE date >= ? ORDER BY date, id`, fromDate)
}

func (s *sqliteStore) ListDutyForName(ctx context.Context, name, fromDate string) ([]DutyEntry, error) {
	return s.selectDuty(ctx,
		`SELECT `+dutyCols+` FROM duty_entries WHERE name_norm = ? AND date >= ? ORDER BY date, id`,
		names.Normalize(name), fromDate)
}

func (s *sqliteStore) ClearDuty(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM duty_entries`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
