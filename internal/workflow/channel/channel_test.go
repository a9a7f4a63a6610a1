package channel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"staffbot/internal/apperr"
	"staffbot/internal/clock"
	"staffbot/internal/names"
	"staffbot/internal/notifier/notifiertest"
	"staffbot/internal/roster"
	"staffbot/internal/storage"
	logx "staffbot/pkg/logx"
)

type fixture struct {
	r     *Reconciler
	store storage.Store
	rec   *notifiertest.Recorder
}

func newFixture(t *testing.T, src roster.Provider, subs ...storage.ChannelSubscriber) fixture {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	rec := notifiertest.New()
	for _, s := range subs {
		if err := st.AddSubscriber(context.Background(), s); err != nil {
			t.Fatalf("seed: %v", err)
		}
		rec.Members[s.UserID] = true
	}
	r := New(Deps{
		Store:     st,
		Roster:    src,
		Messenger: rec,
		Admin:     rec,
		Clock:     clock.NewFake(time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC)),
	})
	return fixture{r: r, store: st, rec: rec}
}

func sub(id int64, name string) storage.ChannelSubscriber {
	return storage.ChannelSubscriber{UserID: id, Name: name}
}

func failingRoster() roster.Provider {
	return roster.ProviderFunc(func(context.Context) (names.Set, error) {
		return nil, errors.New("hr system timeout")
	})
}

func TestRunRemovesOnlyOffRoster(t *testing.T) {
	t.Parallel()

	f := newFixture(t, roster.Static{"Anna A", "Boris B"},
		sub(1, "anna a"), sub(2, "Boris  B"), sub(3, "Carl C"))
	ctx := context.Background()

	rep, err := f.r.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Allowed != 2 || rep.Current != 3 || len(rep.Removed) != 1 || rep.Removed[0].UserID != 3 {
		t.Fatalf("rep=%+v", rep)
	}
	_, _, admin, removed := f.rec.Snapshot()
	if len(removed) != 1 || removed[0] != 3 {
		t.Fatalf("removed=%v", removed)
	}
	left, _ := f.store.ListSubscribers(ctx)
	if len(left) != 2 {
		t.Fatalf("left=%d", len(left))
	}
	if got := f.rec.DirectTo(3); len(got) != 1 {
		t.Fatalf("removed user notice=%d", len(got))
	}
	if len(admin) != 1 {
		t.Fatalf("admin summaries=%d", len(admin))
	}

	// A second pass has nothing to do.
	rep, err = f.r.Run(ctx)
	if err != nil || len(rep.Removed) != 0 {
		t.Fatalf("second rep=%+v err=%v", rep, err)
	}
}

func TestRunFailsClosedOnRosterError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, failingRoster(), sub(1, "Anna A"), sub(2, "Boris B"))
	ctx := context.Background()

	rep, err := f.r.Run(ctx)
	if !apperr.IsExternal(err) {
		t.Fatalf("want external, got %v", err)
	}
	if len(rep.Removed) != 0 {
		t.Fatalf("removed=%d", len(rep.Removed))
	}
	_, _, admin, removed := f.rec.Snapshot()
	if len(removed) != 0 {
		t.Fatalf("platform removals=%v", removed)
	}
	if len(admin) != 1 {
		t.Fatalf("admin should be told about the abort")
	}
	left, _ := f.store.ListSubscribers(ctx)
	if len(left) != 2 {
		t.Fatalf("left=%d", len(left))
	}
}

func TestRunFailsClosedOnEmptyRoster(t *testing.T) {
	t.Parallel()

	var empty atomic.Bool
	src := roster.ProviderFunc(func(context.Context) (names.Set, error) {
		if empty.Load() {
			return names.NewSet(), nil
		}
		return names.NewSet("Anna A", "Boris B"), nil
	})
	f := newFixture(t, src, sub(1, "Anna A"), sub(2, "Boris B"))
	ctx := context.Background()

	if _, err := f.r.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	empty.Store(true)
	rep, err := f.r.Run(ctx)
	if !apperr.IsExternal(err) {
		t.Fatalf("want external, got %v", err)
	}
	if len(rep.Removed) != 0 {
		t.Fatalf("removed=%d", len(rep.Removed))
	}
	left, _ := f.store.ListSubscribers(ctx)
	if len(left) != 2 {
		t.Fatalf("left=%d", len(left))
	}
}

func TestRunEmptyRosterFirstPassRemovesNobody(t *testing.T) {
	t.Parallel()

	f := newFixture(t, roster.Static{}, sub(1, "Anna A"))
	if _, err := f.r.Run(context.Background()); !apperr.IsExternal(err) {
		t.Fatalf("want external, got %v", err)
	}
	_, _, _, removed := f.rec.Snapshot()
	if len(removed) != 0 {
		t.Fatalf("removed=%v", removed)
	}
}

func TestRunPlatformFailureStillDropsRow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, roster.Static{"Anna A"}, sub(1, "Anna A"), sub(2, "Boris B"))
	f.rec.Set(func(r *notifiertest.Recorder) { r.FailRemove = true })
	ctx := context.Background()

	rep, err := f.r.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rep.Removed) != 1 || rep.PlatformFailures != 1 {
		t.Fatalf("rep=%+v", rep)
	}
	if _, err := f.store.GetSubscriber(ctx, 2); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("row should be gone, err=%v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, roster.Static{"Anna A"}, sub(1, "X Y"), sub(2, "Z W"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want canceled, got %v", err)
	}
	left, _ := f.store.ListSubscribers(context.Background())
	if len(left) != 2 {
		t.Fatalf("left=%d", len(left))
	}
}

func TestJoinFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, roster.Static{"Анна Смирнова", "Пётр Петров"}, sub(7, "Пётр Петров"))
	ctx := context.Background()

	out, err := f.r.OnJoinRequest(ctx, JoinRequest{UserID: 7})
	if err != nil || out != JoinAdmitted {
		t.Fatalf("known: out=%v err=%v", out, err)
	}

	out, err = f.r.OnJoinRequest(ctx, JoinRequest{UserID: 8})
	if err != nil || out != JoinNeedName {
		t.Fatalf("new: out=%v err=%v", out, err)
	}
	if got := f.rec.DirectTo(8); len(got) != 1 {
		t.Fatalf("prompt=%d", len(got))
	}

	if _, err := f.r.Register(ctx, JoinRequest{UserID: 8}, "ab"); !apperr.IsValidation(err) {
		t.Fatalf("short name: %v", err)
	}
	if _, err := f.r.Register(ctx, JoinRequest{UserID: 8}, "Кто То"); !apperr.IsValidation(err) {
		t.Fatalf("off roster: %v", err)
	}
	if _, err := f.r.Register(ctx, JoinRequest{UserID: 9}, "петр петров"); !apperr.IsConflict(err) {
		t.Fatalf("taken: %v", err)
	}
	s, err := f.r.Register(ctx, JoinRequest{UserID: 8, Username: "anna"}, "  анна   смирнова ")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if s.Name != "анна смирнова" {
		t.Fatalf("sub=%+v", s)
	}

	var approved, declined []int64
	f.rec.Set(func(r *notifiertest.Recorder) {
		approved = append(approved, r.Approved...)
		declined = append(declined, r.Declined...)
	})
	if len(approved) != 2 || approved[0] != 7 || approved[1] != 8 {
		t.Fatalf("approved=%v", approved)
	}
	if len(declined) != 2 || declined[0] != 8 || declined[1] != 9 {
		t.Fatalf("declined=%v", declined)
	}
}

func TestRegisterDeclinesWhenRosterUnavailable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, failingRoster())
	_, err := f.r.Register(context.Background(), JoinRequest{UserID: 5}, "Анна Смирнова")
	if !apperr.IsExternal(err) {
		t.Fatalf("want external, got %v", err)
	}
	var declined int
	f.rec.Set(func(r *notifiertest.Recorder) { declined = len(r.Declined) })
	if declined != 1 {
		t.Fatalf("declined=%d", declined)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t, roster.Static{"A B C", "D E F"}, sub(1, "A B C"))
	st, err := f.r.Status(context.Background())
	if err != nil || st.Subscribers != 1 || st.Roster != 2 || st.RosterErr != nil {
		t.Fatalf("st=%+v err=%v", st, err)
	}
}

func TestRunWhileRunningReturnsAtOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, roster.Static{"Анна Смирнова"}, sub(1, "Пётр Петров"))
	f.r.run.Lock()
	_, err := f.r.RunBy(context.Background(), 1)
	f.r.run.Unlock()
	if !errors.Is(err, ErrSyncRunning) {
		t.Fatalf("err=%v", err)
	}
	if _, err := f.store.GetSubscriber(context.Background(), 1); err != nil {
		t.Fatalf("subscriber touched while busy: %v", err)
	}
	if _, err := f.r.RunBy(context.Background(), 1); err != nil {
		t.Fatalf("after release: %v", err)
	}
}

func TestRevoke(t *testing.T) {
	t.Parallel()

	f := newFixture(t, roster.Static{"Пётр Петров"}, sub(3, "Пётр Петров"))
	ctx := context.Background()

	gone, err := f.r.Revoke(ctx, 3)
	if err != nil || !gone {
		t.Fatalf("gone=%v err=%v", gone, err)
	}
	if _, err := f.store.GetSubscriber(ctx, 3); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("row kept: %v", err)
	}
	var removed []int64
	f.rec.Set(func(r *notifiertest.Recorder) { removed = append(removed, r.Removed...) })
	if len(removed) != 1 || removed[0] != 3 {
		t.Fatalf("removed=%v", removed)
	}
	if gone, err := f.r.Revoke(ctx, 3); err != nil || gone {
		t.Fatalf("second revoke gone=%v err=%v", gone, err)
	}
}

func TestJoinWithFullName(t *testing.T) {
	t.Parallel()

	f := newFixture(t, roster.Static{"Иванов Иван Петрович"})
	ctx := context.Background()

	if _, err := f.r.Register(ctx, JoinRequest{UserID: 4}, "Иванов Иван"); !apperr.IsValidation(err) {
		t.Fatalf("partial name admitted: %v", err)
	}
	if _, err := f.r.Register(ctx, JoinRequest{UserID: 5}, "Иванов Иван Петрович"); err != nil {
		t.Fatalf("full name: %v", err)
	}
}
