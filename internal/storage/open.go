package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "staffbot/pkg/logx"
)

// Store is the persistence API used by workflows, schedulers and handlers.
type Store interface {
	GetUser(ctx context.Context, id int64) (User, error)
	FindUserByName(ctx context.Context, name string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	ListUsersByRole(ctx context.Context, roles ...Role) ([]User, error)
	UpsertUser(ctx context.Context, u User) error
	SetUserRole(ctx context.Context, id int64, role Role) error
	DeleteUser(ctx context.Context, id int64) (bool, error)

	CreateAuthRequest(ctx context.Context, r AuthRequest) error
	GetAuthRequest(ctx context.Context, userID int64) (AuthRequest, error)
	ListAuthRequests(ctx context.Context) ([]AuthRequest, error)
	DeleteAuthRequest(ctx context.Context, userID int64) (bool, error)
	ApproveAuthRequest(ctx context.Context, userID int64, role Role, at time.Time) (User, bool, error)

	CreateProposal(ctx context.Context, p NewsProposal) (int64, error)
	GetProposal(ctx context.Context, id int64) (NewsProposal, error)
	ListProposals(ctx context.Context, status ProposalStatus) ([]NewsProposal, error)
	TransitionProposal(ctx context.Context, id int64, from, to ProposalStatus, reviewerID int64, comment string, at time.Time) (bool, error)
	UpdateProposalText(ctx context.Context, id int64, status ProposalStatus, text string) (bool, error)

	InsertDutyEntries(ctx context.Context, entries []DutyEntry) ([]DutyEntry, error)
	ListDutyUnchecked(ctx context.Context, date string) ([]DutyEntry, error)
	ListDutyUnnotified(ctx context.Context, date string) ([]DutyEntry, error)
	MarkDutyChecked(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkDutyNotified(ctx context.Context, id int64, at time.Time) (bool, error)
	ListDutyFrom(ctx context.Context, fromDate string) ([]DutyEntry, error)
	ListDutyForName(ctx context.Context, name, fromDate string) ([]DutyEntry, error)
	ClearDuty(ctx context.Context) (int64, error)

	AddSubscriber(ctx context.Context, s ChannelSubscriber) error
	GetSubscriber(ctx context.Context, userID int64) (ChannelSubscriber, error)
	FindSubscriberByName(ctx context.Context, name string) (ChannelSubscriber, error)
	ListSubscribers(ctx context.Context) ([]ChannelSubscriber, error)
	DeleteSubscriber(ctx context.Context, userID int64) (bool, error)

	AppendAdminLog(ctx context.Context, e AdminLog) error
	RecentAdminLogs(ctx context.Context, limit int) ([]AdminLog, error)

	Stats(ctx context.Context, today string) (Stats, error)
	SchemaVersion(ctx context.Context) (int, error)
	Close() error
}

// Open initializes the configured store and applies pending migrations.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "none":
		return nil, ErrDisabled
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		cfg.Path = ":memory:"
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
