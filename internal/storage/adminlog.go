package storage

import (
	"context"
	"database/sql"
	"time"
)

type adminLogRow struct {
	ID           int64         `db:"id"`
	AdminID      int64         `db:"admin_id"`
	Action       string        `db:"action"`
	TargetUserID sql.NullInt64 `db:"target_user_id"`
	Detail       string        `db:"detail"`
	At           int64         `db:"at"`
}

func (s *sqliteStore) AppendAdminLog(ctx context.Context, e AdminLog) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO admin_logs(admin_id, action, target_user_id, detail, at)
		 VALUES(:admin_id, :action, :target_user_id, :detail, :at)`,
		adminLogRow{
			AdminID:      e.AdminID,
			Action:       e.Action,
			TargetUserID: nullID(e.TargetUserID),
			Detail:       e.Detail,
			At:           toMillis(e.At),
		})
	return err
}

// RecentAdminLogs returns up to limit entries, newest first.
func (s *sqliteStore) RecentAdminLogs(ctx context.Context, limit int) ([]AdminLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []adminLogRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, admin_id, action, target_user_id, detail, at FROM admin_logs ORDER BY id DESC LIMIT ?`, limit); err != nil {
		return nil, err
	}
	out := make([]AdminLog, 0, len(rows))
	for _, r := range rows {
		out = append(out, AdminLog{
			ID:           r.ID,
			AdminID:      r.AdminID,
			Action:       r.Action,
			TargetUserID: r.TargetUserID.Int64,
			Detail:       r.Detail,
			At:           fromMillis(r.At),
		})
	}
	return out, nil
}
