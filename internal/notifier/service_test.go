package notifier

import (
	"context"
	"errors"
	"testing"

	"staffbot/internal/apperr"
	"staffbot/internal/eventbus"
	"staffbot/internal/transport/transporttest"
	logx "staffbot/pkg/logx"
)

func TestSendDirectUsesHTML(t *testing.T) {
	t.Parallel()

	a := transporttest.New()
	s := New(Config{RatePerSec: 100}, a, logx.Nop(), nil)
	if err := s.SendDirect(context.Background(), 42, "<b>hi</b>", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs := a.Messages()
	if len(msgs) != 1 || msgs[0].To.ChatID != 42 || msgs[0].Opt.ParseMode != "HTML" {
		t.Fatalf("sent=%+v", msgs)
	}
}

func TestFailureIsExternalAndPublished(t *testing.T) {
	t.Parallel()

	a := transporttest.New()
	a.SetErr(errors.New("blocked by user"))
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(Config{RatePerSec: 100}, a, logx.Nop(), bus)
	err := s.SendDirect(context.Background(), 7, "x", nil)
	if !apperr.IsExternal(err) {
		t.Fatalf("err=%v, want external", err)
	}
	e := <-events
	if e.Type != eventbus.MessageFailed {
		t.Fatalf("event=%q", e.Type)
	}
	h := s.History()
	if len(h) != 1 || h[0].Error == "" {
		t.Fatalf("history=%+v", h)
	}
}

func TestChannelRequiresID(t *testing.T) {
	t.Parallel()

	a := transporttest.New()
	s := New(Config{RatePerSec: 100}, a, logx.Nop(), nil)
	if err := s.SendChannel(context.Background(), "news", nil); !errors.Is(err, ErrNoChannel) {
		t.Fatalf("err=%v", err)
	}
	if _, err := s.RemoveFromChannel(context.Background(), 1); !errors.Is(err, ErrNoChannel) {
		t.Fatalf("err=%v", err)
	}
}

func TestSendChannelAlbumAndRemove(t *testing.T) {
	t.Parallel()

	a := transporttest.New()
	a.Members[5] = true
	s := New(Config{RatePerSec: 100, ChannelID: -100}, a, logx.Nop(), nil)
	ctx := context.Background()

	if err := s.SendChannel(ctx, "caption", []string{"p1", "p2"}); err != nil {
		t.Fatalf("album: %v", err)
	}
	msgs := a.Messages()
	if len(msgs) != 1 || len(msgs[0].Photos) != 2 || msgs[0].To.ChatID != -100 {
		t.Fatalf("sent=%+v", msgs)
	}

	removed, err := s.RemoveFromChannel(ctx, 5)
	if err != nil || !removed {
		t.Fatalf("remove member: %v %v", removed, err)
	}
	removed, err = s.RemoveFromChannel(ctx, 6)
	if err != nil || removed {
		t.Fatalf("remove non-member: %v %v", removed, err)
	}
}

func TestNotifyAdminWithoutAdminIsNoop(t *testing.T) {
	t.Parallel()

	a := transporttest.New()
	s := New(Config{RatePerSec: 100}, a, logx.Nop(), nil)
	if err := s.NotifyAdmin(context.Background(), "x", nil); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(a.Messages()) != 0 {
		t.Fatal("message sent without admin id")
	}
	s.Apply(Config{RatePerSec: 100, AdminID: 9})
	_ = s.NotifyAdmin(context.Background(), "x", nil)
	if msgs := a.Messages(); len(msgs) != 1 || msgs[0].To.ChatID != 9 {
		t.Fatalf("sent=%+v", msgs)
	}
}
