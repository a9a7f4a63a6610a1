// Package broadcast delivers one message to many users on a small worker
// pool and keeps per-job delivery counts.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"staffbot/internal/clock"
	logx "staffbot/pkg/logx"
)

var (
	ErrQueueFull  = errors.New("broadcast: queue full")
	ErrNotRunning = errors.New("broadcast: service not running")
)

type Config struct {
	Workers   int
	QueueSize int
	// RetryMax is the number of extra attempts per recipient.
	RetryMax int
	// RetryDelay is the first backoff step; each retry adds half of it.
	RetryDelay time.Duration
}

// Sender is the part of the messenger a broadcast needs.
type Sender interface {
	SendDirect(ctx context.Context, userID int64, text string, markup any) error
}

// Job is one message to many users. Done, when set, runs on the worker
// after the last recipient.
type Job struct {
	Name    string
	Targets []int64
	Text    string
	Done    func(ctx context.Context, st JobStatus)
}

type JobStatus struct {
	ID       string
	Name     string
	Total    int
	Sent     int
	Failed   int
	Failures []int64
	// CreatedAt is set on Submit, so statuses of jobs that never ran can be pruned.
	CreatedAt time.Time
	StartedAt time.Time
	DoneAt    time.Time
	Running   bool
}

// Finished reports whether every recipient was attempted.
func (st JobStatus) Finished() bool { return !st.DoneAt.IsZero() }

type queued struct {
	id  string
	job Job
}

type Service struct {
	mu sync.Mutex

	cfg    Config
	sender Sender
	clk    clock.Clock
	log    logx.Logger

	queue  chan queued
	stopCh chan struct{}
	// stopDone is non-nil while Stop waits for the workers.
	stopDone  chan struct{}
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	statusMu  sync.RWMutex
	status    map[string]*JobStatus
	done      map[string]chan struct{}
	statusMax int
}
