package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"staffbot/internal/eventbus"
	logx "staffbot/pkg/logx"
)

func startEngine(t *testing.T, cfg Config, bus eventbus.Bus) *Service {
	t.Helper()
	s := New(cfg, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func TestEnqueueRunsTask(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()
	s := startEngine(t, Config{Workers: 1}, bus)

	done := make(chan struct{})
	err := s.Enqueue(Task{Name: "duty.check", Run: func(ctx context.Context) error {
		close(done)
		return nil
	}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}

	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for !seen["task.finished"] {
		select {
		case e := <-events:
			seen[e.Type] = true
		case <-deadline:
			t.Fatalf("events seen: %v", seen)
		}
	}
	if !seen["task.started"] {
		t.Fatalf("missing task.started: %v", seen)
	}
}

func TestOverlapSkipWhileRunning(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 2}, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32
	task := Task{Name: "channel.sync", Run: func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			close(started)
		}
		<-release
		return nil
	}}

	if err := s.Enqueue(task); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	<-started
	if err := s.Enqueue(task); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second enqueue err=%v, want ErrOverlapSkip", err)
	}
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		err := s.Enqueue(Task{Name: "channel.sync", Run: func(context.Context) error { return nil }})
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("state never released: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := s.Snapshot().Skipped; got < 1 {
		t.Fatalf("skipped=%d", got)
	}
}

func TestPanicBecomesFailure(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()
	s := startEngine(t, Config{Workers: 1}, bus)

	if err := s.Enqueue(Task{Name: "boom", Run: func(context.Context) error { panic("bad") }}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Type != "task.failed" {
				continue
			}
			ev := e.Data.(TaskEvent)
			if ev.Error != "panic: bad" {
				t.Fatalf("error=%q", ev.Error)
			}
			return
		case <-deadline:
			t.Fatal("no task.failed event")
		}
	}
}

func TestTimeoutAppliesToContext(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1, DefaultTimeout: 20 * time.Millisecond}, nil)
	got := make(chan error, 1)
	_ = s.Enqueue(Task{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		got <- ctx.Err()
		return ctx.Err()
	}})
	select {
	case err := <-got:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout not applied")
	}
}

func TestEnqueueBeforeStart(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(), nil)
	err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err=%v", err)
	}
	if err := s.Enqueue(Task{Name: " "}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestQueueFullDrops(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1, QueueSize: 1}, nil)
	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})

	_ = s.Enqueue(Task{Name: "a", Overlap: OverlapAllow, Run: func(context.Context) error {
		close(started)
		<-block
		return nil
	}})
	<-started
	noop := func(context.Context) error { return nil }
	if err := s.Enqueue(Task{Name: "b", Overlap: OverlapAllow, Run: noop}); err != nil {
		t.Fatalf("queued: %v", err)
	}
	if err := s.Enqueue(Task{Name: "c", Overlap: OverlapAllow, Run: noop}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err=%v, want ErrQueueFull", err)
	}
	if s.Snapshot().Dropped != 1 {
		t.Fatalf("dropped=%d", s.Snapshot().Dropped)
	}
}
