package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()

	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: AuthApproved, Data: int64(7)})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != AuthApproved || e.Time.IsZero() {
				t.Fatalf("unexpected event %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "x"})
	b.Publish(Event{Type: "y"}) // buffer full, dropped

	if e := <-ch; e.Type != "x" {
		t.Fatalf("got %q", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected second event %q", e.Type)
	default:
	}
}

func TestUnsubscribeThenPublish(t *testing.T) {
	t.Parallel()

	b := New()
	_, unsub := b.Subscribe(1)
	unsub()
	unsub()
	b.Publish(Event{Type: "after"})
}

func TestConsumeStopsOnCancel(t *testing.T) {
	t.Parallel()

	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Consume(ctx, b, 4, func(e Event) {
			select {
			case got <- e.Type:
			default:
			}
		})
	}()

	deadline := time.After(2 * time.Second)
	for {
		b.Publish(Event{Type: DutyNotified})
		select {
		case typ := <-got:
			if typ != DutyNotified {
				t.Fatalf("got %q", typ)
			}
			cancel()
			<-done
			return
		case <-deadline:
			t.Fatal("consume never delivered")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
