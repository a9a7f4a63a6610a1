package notifier

import (
	"context"
	"time"
)

type Config struct {
	// RatePerSec caps all outbound calls together.
	RatePerSec int
	// Timeout bounds a single platform call; 0 keeps the caller's deadline.
	Timeout   time.Duration
	ChannelID int64
	AdminID   int64
}

// Messenger is the messaging platform as workflows see it.
type Messenger interface {
	// SendDirect sends HTML text to a user's private chat. markup is an
	// adapter-specific inline keyboard or nil.
	SendDirect(ctx context.Context, userID int64, text string, markup any) error
	// SendChannel publishes HTML text with optional photos to the gated channel.
	SendChannel(ctx context.Context, text string, photoIDs []string) error
	// RemoveFromChannel reports false when the user was not a member.
	RemoveFromChannel(ctx context.Context, userID int64) (bool, error)
	ApproveJoin(ctx context.Context, userID int64) error
	DeclineJoin(ctx context.Context, userID int64) error
}

// AdminNotifier delivers operator-facing messages to the configured admin.
type AdminNotifier interface {
	NotifyAdmin(ctx context.Context, text string, markup any) error
}

type HistoryItem struct {
	At    time.Time
	Kind  string
	To    int64
	Error string
}
