package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"staffbot/internal/names"
)

type userRow struct {
	ID        int64  `db:"user_id"`
	Username  string `db:"username"`
	Name      string `db:"name"`
	NameNorm  string `db:"name_norm"`
	Position  string `db:"position"`
	Role      string `db:"role"`
	Status    string `db:"status"`
	CreatedAt int64  `db:"created_at"`
}

func (r userRow) user() User {
	return User{
		ID:        r.ID,
		Username:  r.Username,
		Name:      r.Name,
		Position:  r.Position,
		Role:      Role(r.Role),
		Status:    UserStatus(r.Status),
		CreatedAt: fromMillis(r.CreatedAt),
	}
}

func newUserRow(u User) userRow {
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.Status == "" {
		u.Status = UserAuthorized
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	return userRow{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name,
		NameNorm:  names.Normalize(u.Name),
		Position:  u.Position,
		Role:      string(u.Role),
		Status:    string(u.Status),
		CreatedAt: toMillis(u.CreatedAt),
	}
}

const userCols = `user_id, username, name, name_norm, position, role, status, created_at`

func (s *sqliteStore) GetUser(ctx context.Context, id int64) (User, error) {
	var r userRow
	err := s.db.GetContext(ctx, &r, `SELECT `+userCols+` FROM users WHERE user_id = ?`, id)
	if err != nil {
		return User{}, notFound(err)
	}
	return r.user(), nil
}

func (s *sqliteStore) FindUserByName(ctx context.Context, name string) (User, error) {
	var r userRow
	err := s.db.GetContext(ctx, &r,
		`SELECT `+userCols+` FROM users WHERE name_norm = ? AND status = ? ORDER BY user_id LIMIT 1`,
		names.Normalize(name), string(UserAuthorized))
	if err != nil {
		return User{}, notFound(err)
	}
	return r.user(), nil
}

func (s *sqliteStore) ListUsers(ctx context.Context) ([]User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+userCols+` FROM users ORDER BY name_norm`); err != nil {
		return nil, err
	}
	return usersFromRows(rows), nil
}

func (s *sqliteStore) ListUsersByRole(ctx context.Context, roles ...Role) ([]User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	rs := make([]string, 0, len(roles))
	for _, r := range roles {
		rs = append(rs, string(r))
	}
	q, args, err := sqlx.In(`SELECT `+userCols+` FROM users WHERE role IN (?) ORDER BY user_id`, rs)
	if err != nil {
		return nil, err
	}
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	return usersFromRows(rows), nil
}

func usersFromRows(rows []userRow) []User {
	out := make([]User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.user())
	}
	return out
}

func (s *sqliteStore) UpsertUser(ctx context.Context, u User) error {
	_, err := s.db.NamedExecContext(ctx, upsertUserSQL, newUserRow(u))
	return err
}

// Role survives re-authorization; only SetUserRole changes it.
const upsertUserSQL = `INSERT INTO users(` + userCols + `)
	VALUES(:user_id, :username, :name, :name_norm, :position, :role, :status, :created_at)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		name = excluded.name,
		name_norm = excluded.name_norm,
		position = excluded.position,
		status = excluded.status`

func (s *sqliteStore) SetUserRole(ctx context.Context, id int64, role Role) error {
	ok, err := affected(s.db.ExecContext(ctx, `UPDATE users SET role = ? WHERE user_id = ?`, string(role), id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes the user and any pending request of the same id.
func (s *sqliteStore) DeleteUser(ctx context.Context, id int64) (bool, error) {
	var removed bool
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := affected(tx.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, id))
		if err != nil {
			return err
		}
		okReq, err := affected(tx.ExecContext(ctx, `DELETE FROM auth_requests WHERE user_id = ?`, id))
		if err != nil {
			return err
		}
		removed = ok || okReq
		return nil
	})
	return removed, err
}
