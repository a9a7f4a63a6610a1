package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "staffbot/pkg/logx"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []int64
	failLeft map[int64]int
	entered  chan int64
	release  chan struct{}
}

func (f *fakeSender) SendDirect(ctx context.Context, userID int64, text string, markup any) error {
	if f.entered != nil {
		f.entered <- userID
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLeft[userID] != 0 {
		f.failLeft[userID]--
		return errors.New("blocked by user")
	}
	f.sent = append(f.sent, userID)
	return nil
}

func startService(t *testing.T, cfg Config, snd Sender) *Service {
	t.Helper()
	s := New(cfg, snd, nil, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		stopCtx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		s.Stop(stopCtx)
		cancel()
	})
	return s
}

func TestJobCountsFailuresAndRetries(t *testing.T) {
	t.Parallel()

	snd := &fakeSender{failLeft: map[int64]int{2: -1, 3: 1}}
	s := startService(t, Config{Workers: 2, RetryMax: 1, RetryDelay: time.Millisecond}, snd)

	var got JobStatus
	called := make(chan struct{})
	id, err := s.Submit(Job{
		Name:    "announce",
		Targets: []int64{1, 2, 3, 4},
		Text:    "hello",
		Done: func(_ context.Context, st JobStatus) {
			got = st
			close(called)
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := s.Wait(ctx, id)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	<-called
	if st.Total != 4 || st.Sent != 3 || st.Failed != 1 || len(st.Failures) != 1 || st.Failures[0] != 2 {
		t.Fatalf("status=%+v", st)
	}
	if !st.Finished() || st.Running {
		t.Fatalf("not finished: %+v", st)
	}
	if got.Sent != st.Sent || got.Failed != st.Failed {
		t.Fatalf("done callback saw %+v", got)
	}
}

func TestSubmitWhenStopped(t *testing.T) {
	t.Parallel()

	s := New(Config{}, &fakeSender{}, nil, logx.Nop())
	if _, err := s.Submit(Job{Name: "x", Targets: []int64{1}}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("err=%v", err)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	t.Parallel()

	snd := &fakeSender{entered: make(chan int64, 4), release: make(chan struct{})}
	s := startService(t, Config{Workers: 1, QueueSize: 1}, snd)

	first, err := s.Submit(Job{Name: "a", Targets: []int64{1}})
	if err != nil {
		t.Fatal(err)
	}
	<-snd.entered
	if _, err := s.Submit(Job{Name: "b", Targets: []int64{2}}); err != nil {
		t.Fatalf("second should queue: %v", err)
	}
	if _, err := s.Submit(Job{Name: "c", Targets: []int64{3}}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err=%v", err)
	}
	close(snd.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if st, err := s.Wait(ctx, first); err != nil || st.Sent != 1 {
		t.Fatalf("st=%+v err=%v", st, err)
	}
}
