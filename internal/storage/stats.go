package storage

import "context"

// Stats counts rows for the admin overview. today bounds the upcoming duty count.
func (s *sqliteStore) Stats(ctx context.Context, today string) (Stats, error) {
	st := Stats{Proposals: map[ProposalStatus]int{}}

	var roles []struct {
		Role string `db:"role"`
		N    int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &roles, `SELECT role, COUNT(*) AS n FROM users GROUP BY role`); err != nil {
		return st, err
	}
	for _, r := range roles {
		st.Users += r.N
		switch Role(r.Role) {
		case RoleModerator:
			st.Moderators = r.N
		case RoleMarketer:
			st.Marketers = r.N
		case RoleAdmin:
			st.Admins = r.N
		}
	}

	var props []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &props, `SELECT status, COUNT(*) AS n FROM news_proposals GROUP BY status`); err != nil {
		return st, err
	}
	for _, p := range props {
		st.Proposals[ProposalStatus(p.Status)] = p.N
	}

	counts := []struct {
		dst  *int
		q    string
		args []any
	}{
		{&st.PendingAuth, `SELECT COUNT(*) FROM auth_requests`, nil},
		{&st.DutyUpcoming, `SELECT COUNT(*) FROM duty_entries WHERE date >= ?`, []any{today}},
		{&st.DutyNotified, `SELECT COUNT(*) FROM duty_entries WHERE notified_at IS NOT NULL`, nil},
		{&st.Subscribers, `SELECT COUNT(*) FROM channel_subscribers`, nil},
	}
	for _, c := range counts {
		if err := s.db.GetContext(ctx, c.dst, c.q, c.args...); err != nil {
			return st, err
		}
	}

	v, err := s.SchemaVersion(ctx)
	if err != nil {
		return st, err
	}
	st.SchemaVersion = v
	return st, nil
}
