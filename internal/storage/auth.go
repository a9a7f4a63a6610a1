package storage

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

type authRow struct {
	UserID      int64  `db:"user_id"`
	Username    string `db:"username"`
	Name        string `db:"name"`
	Position    string `db:"position"`
	SubmittedAt int64  `db:"submitted_at"`
}

func (r authRow) request() AuthRequest {
	return AuthRequest{
		UserID:      r.UserID,
		Username:    r.Username,
		Name:        r.Name,
		Position:    r.Position,
		SubmittedAt: fromMillis(r.SubmittedAt),
	}
}

const authCols = `user_id, username, name, position, submitted_at`

// CreateAuthRequest returns ErrConflict if the user already has a pending request.
func (s *sqliteStore) CreateAuthRequest(ctx context.Context, r AuthRequest) error {
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = time.Now()
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO auth_requests(`+authCols+`) VALUES(:user_id, :username, :name, :position, :submitted_at)`,
		authRow{
			UserID:      r.UserID,
			Username:    r.Username,
			Name:        strings.TrimSpace(r.Name),
			Position:    strings.TrimSpace(r.Position),
			SubmittedAt: toMillis(r.SubmittedAt),
		})
	if err != nil && isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *sqliteStore) GetAuthRequest(ctx context.Context, userID int64) (AuthRequest, error) {
	var r authRow
	if err := s.db.GetContext(ctx, &r, `SELECT `+authCols+` FROM auth_requests WHERE user_id = ?`, userID); err != nil {
		return AuthRequest{}, notFound(err)
	}
	return r.request(), nil
}

func (s *sqliteStore) ListAuthRequests(ctx context.Context) ([]AuthRequest, error) {
	var rows []authRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+authCols+` FROM auth_requests ORDER BY submitted_at`); err != nil {
		return nil, err
	}
	out := make([]AuthRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.request())
	}
	return out, nil
}

// DeleteAuthRequest consumes a pending request. False means it was already consumed.
func (s *sqliteStore) DeleteAuthRequest(ctx context.Context, userID int64) (bool, error) {
	return affected(s.db.ExecContext(ctx, `DELETE FROM auth_requests WHERE user_id = ?`, userID))
}

// ApproveAuthRequest consumes the request and upserts the authorized user in one
// transaction. False means another approve/decline won.
func (s *sqliteStore) ApproveAuthRequest(ctx context.Context, userID int64, role Role, at time.Time) (User, bool, error) {
	var (
		u  User
		ok bool
	)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var r authRow
		if err := tx.GetContext(ctx, &r, `SELECT `+authCols+` FROM auth_requests WHERE user_id = ?`, userID); err != nil {
			if notFound(err) == ErrNotFound {
				return nil
			}
			return err
		}
		deleted, err := affected(tx.ExecContext(ctx, `DELETE FROM auth_requests WHERE user_id = ?`, userID))
		if err != nil || !deleted {
			return err
		}
		u = User{
			ID:        r.UserID,
			Username:  r.Username,
			Name:      r.Name,
			Position:  r.Position,
			Role:      role,
			Status:    UserAuthorized,
			CreatedAt: at,
		}
		if _, err := tx.NamedExecContext(ctx, upsertUserSQL, newUserRow(u)); err != nil {
			return err
		}
		// An existing row keeps its role; report what is stored.
		var stored userRow
		if err := tx.GetContext(ctx, &stored, `SELECT `+userCols+` FROM users WHERE user_id = ?`, userID); err != nil {
			return err
		}
		u = stored.user()
		ok = true
		return nil
	})
	return u, ok, err
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed")
}
