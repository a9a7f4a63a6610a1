package storage

import (
	"context"
	"time"

	"staffbot/internal/names"
)

type subscriberRow struct {
	UserID       int64  `db:"user_id"`
	Name         string `db:"name"`
	NameNorm     string `db:"name_norm"`
	Username     string `db:"username"`
	SubscribedAt int64  `db:"subscribed_at"`
}

func (r subscriberRow) subscriber() ChannelSubscriber {
	return ChannelSubscriber{
		UserID:       r.UserID,
		Name:         r.Name,
		Username:     r.Username,
		SubscribedAt: fromMillis(r.SubscribedAt),
	}
}

const subscriberCols = `user_id, name, name_norm, username, subscribed_at`

// AddSubscriber inserts or refreshes the subscriber row for s.UserID.
func (s *sqliteStore) AddSubscriber(ctx context.Context, sub ChannelSubscriber) error {
	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = time.Now()
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO channel_subscribers(`+subscriberCols+`)
		 VALUES(:user_id, :name, :name_norm, :username, :subscribed_at)
		 ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			name_norm = excluded.name_norm,
			username = excluded.username,
			subscribed_at = excluded.subscribed_at`,
		subscriberRow{
			UserID:       sub.UserID,
			Name:         sub.Name,
			NameNorm:     names.Normalize(sub.Name),
			Username:     sub.Username,
			SubscribedAt: toMillis(sub.SubscribedAt),
		})
	return err
}

func (s *sqliteStore) GetSubscriber(ctx context.Context, userID int64) (ChannelSubscriber, error) {
	var r subscriberRow
	if err := s.db.GetContext(ctx, &r, `SELECT `+subscriberCols+` FROM channel_subscribers WHERE user_id = ?`, userID); err != nil {
		return ChannelSubscriber{}, notFound(err)
	}
	return r.subscriber(), nil
}

func (s *sqliteStore) FindSubscriberByName(ctx context.Context, name string) (ChannelSubscriber, error) {
	var r subscriberRow
	err := s.db.GetContext(ctx, &r,
		`SELECT `+subscriberCols+` FROM channel_subscribers WHERE name_norm = ? ORDER BY user_id LIMIT 1`,
		names.Normalize(name))
	if err != nil {
		return ChannelSubscriber{}, notFound(err)
	}
	return r.subscriber(), nil
}

func (s *sqliteStore) ListSubscribers(ctx context.Context) ([]ChannelSubscriber, error) {
	var rows []subscriberRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+subscriberCols+` FROM channel_subscribers ORDER BY user_id`); err != nil {
		return nil, err
	}
	out := make([]ChannelSubscriber, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.subscriber())
	}
	return out, nil
}

func (s *sqliteStore) DeleteSubscriber(ctx context.Context, userID int64) (bool, error) {
	return affected(s.db.ExecContext(ctx, `DELETE FROM channel_subscribers WHERE user_id = ?`, userID))
}
