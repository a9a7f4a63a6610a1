package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	logx "staffbot/pkg/logx"
)

type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations is append-only; a released step is never edited.
var migrations = []migration{
	{
		version: 1,
		name:    "base schema",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS users (
				user_id    INTEGER PRIMARY KEY,
				username   TEXT NOT NULL DEFAULT '',
				name       TEXT NOT NULL,
				name_norm  TEXT NOT NULL,
				position   TEXT NOT NULL DEFAULT '',
				role       TEXT NOT NULL DEFAULT 'user',
				status     TEXT NOT NULL DEFAULT 'authorized',
				created_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS auth_requests (
				user_id      INTEGER PRIMARY KEY,
				username     TEXT NOT NULL DEFAULT '',
				name         TEXT NOT NULL,
				position     TEXT NOT NULL DEFAULT '',
				submitted_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS news_proposals (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				author_id    INTEGER NOT NULL,
				username     TEXT NOT NULL DEFAULT '',
				author_name  TEXT NOT NULL DEFAULT '',
				text         TEXT NOT NULL,
				attachments  TEXT NOT NULL DEFAULT '[]',
				status       TEXT NOT NULL DEFAULT 'pending',
				reviewer_id  INTEGER,
				comment      TEXT NOT NULL DEFAULT '',
				created_at   INTEGER NOT NULL,
				processed_at INTEGER
			)`,
			`CREATE TABLE IF NOT EXISTS duty_entries (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				assignee_name    TEXT NOT NULL,
				name_norm        TEXT NOT NULL,
				date             TEXT NOT NULL,
				assignee_user_id INTEGER,
				created_by       INTEGER NOT NULL,
				created_at       INTEGER NOT NULL,
				checked_at       INTEGER,
				notified_at      INTEGER
			)`,
			`CREATE TABLE IF NOT EXISTS channel_subscribers (
				user_id       INTEGER PRIMARY KEY,
				name          TEXT NOT NULL,
				name_norm     TEXT NOT NULL,
				username      TEXT NOT NULL DEFAULT '',
				subscribed_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS admin_logs (
				id             INTEGER PRIMARY KEY AUTOINCREMENT,
				admin_id       INTEGER NOT NULL,
				action         TEXT NOT NULL,
				target_user_id INTEGER,
				detail         TEXT NOT NULL DEFAULT '',
				at             INTEGER NOT NULL
			)`,
		},
	},
	{
		version: 2,
		name:    "lookup indexes",
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_users_name_norm ON users(name_norm)`,
			`CREATE INDEX IF NOT EXISTS idx_users_role ON users(role)`,
			`CREATE INDEX IF NOT EXISTS idx_news_status ON news_proposals(status)`,
			`CREATE INDEX IF NOT EXISTS idx_duty_date ON duty_entries(date)`,
			`CREATE INDEX IF NOT EXISTS idx_duty_name_norm ON duty_entries(name_norm)`,
			`CREATE INDEX IF NOT EXISTS idx_subscribers_name_norm ON channel_subscribers(name_norm)`,
		},
	},
}

// LatestSchemaVersion is the version a fully migrated database reports.
func LatestSchemaVersion() int { return migrations[len(migrations)-1].version }

func (s *sqliteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("schema_version: %w", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		s.log.Info("migration applied", logx.Int("version", m.version), logx.String("name", m.name))
	}
	return nil
}

func (s *sqliteStore) applyMigration(ctx context.Context, m migration) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, stmt := range m.stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO schema_version(version, name, applied_at) VALUES(?,?,?)`,
			m.version, m.name, time.Now().UnixMilli())
		return err
	})
}

func (s *sqliteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.GetContext(ctx, &v, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}
