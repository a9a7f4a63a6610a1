package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"staffbot/internal/clock"
	"staffbot/internal/task/engine"
	logx "staffbot/pkg/logx"
)

type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []engine.Task
	ch    chan string
}

func newRecorder() *recordingEnqueuer { return &recordingEnqueuer{ch: make(chan string, 16)} }

func (r *recordingEnqueuer) Enqueue(t engine.Task) error {
	r.mu.Lock()
	r.tasks = append(r.tasks, t)
	r.mu.Unlock()
	r.ch <- t.Name
	return nil
}

func waitWaiters(t *testing.T, clk *clock.Fake, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for clk.Waiters() < n {
		if time.Now().After(deadline) {
			t.Fatalf("waiters=%d, want %d", clk.Waiters(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNormalizeSpec(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "11:00", want: "0 11 * * *"},
		{in: " 7:05 ", want: "5 7 * * *"},
		{in: "cron: 0 9 * * 1-5", want: "0 9 * * 1-5"},
		{in: "@daily", want: "@daily"},
		{in: "24:00", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := NormalizeSpec(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %q err=%v want %q", tc.in, got, err, tc.want)
		}
	}
	if _, err := ParseSchedule("not a schedule"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDailyTriggerFiresOncePerDay(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("MSK", 3*3600)
	clk := clock.NewFake(time.Date(2025, 3, 10, 10, 59, 0, 0, loc))
	rec := newRecorder()
	s := New(loc, clk, rec, logx.Nop())
	if err := s.Add("duty.check", "11:00", time.Minute, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	waitWaiters(t, clk, 1)
	if next := s.Schedules()[0].Next; !next.Equal(time.Date(2025, 3, 10, 11, 0, 0, 0, loc)) {
		t.Fatalf("next=%v", next)
	}
	clk.Advance(30 * time.Second)
	select {
	case name := <-rec.ch:
		t.Fatalf("fired early: %s", name)
	default:
	}

	clk.Advance(30 * time.Second)
	select {
	case name := <-rec.ch:
		if name != "duty.check" {
			t.Fatalf("name=%q", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("did not fire at 11:00")
	}

	waitWaiters(t, clk, 1)
	info := s.Schedules()[0]
	if !info.Next.Equal(time.Date(2025, 3, 11, 11, 0, 0, 0, loc)) {
		t.Fatalf("next=%v", info.Next)
	}
	if !info.Prev.Equal(time.Date(2025, 3, 10, 11, 0, 0, 0, loc)) {
		t.Fatalf("prev=%v", info.Prev)
	}
}

func TestRunNowAndUnknown(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	s := New(time.UTC, clock.NewFake(time.Now()), rec, logx.Nop())
	_ = s.Add("channel.sync", "17:00", 0, func(context.Context) error { return nil })

	if err := s.RunNow("channel.sync"); err != nil {
		t.Fatalf("run now: %v", err)
	}
	if got := <-rec.ch; got != "channel.sync" {
		t.Fatalf("got %q", got)
	}
	if err := s.RunNow("missing"); err == nil {
		t.Fatal("expected error")
	}
}

func TestAddValidation(t *testing.T) {
	t.Parallel()

	s := New(nil, nil, newRecorder(), logx.Nop())
	noop := func(context.Context) error { return nil }
	if err := s.Add("", "11:00", 0, noop); err == nil {
		t.Fatal("empty name accepted")
	}
	if err := s.Add("x", "11:00", 0, nil); err == nil {
		t.Fatal("nil job accepted")
	}
	if err := s.Add("x", "99:99", 0, noop); err == nil {
		t.Fatal("bad spec accepted")
	}
}
