// Package eventbus is an in-process fanout for domain and runtime events.
//
// Publish never blocks. Subscribers get buffered channels and a slow
// subscriber loses events instead of stalling the publisher.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by workflows and the task engine.
const (
	AuthRequested  = "auth.requested"
	AuthApproved   = "auth.approved"
	AuthDeclined   = "auth.declined"
	NewsSubmitted  = "news.submitted"
	NewsReviewed   = "news.reviewed"
	NewsPublished  = "news.published"
	DutyChecked    = "duty.checked"
	DutyNotified   = "duty.notified"
	ChannelJoined  = "channel.joined"
	ChannelRemoved = "channel.removed"
	ChannelSynced  = "channel.synced"
	MessageFailed  = "message.failed"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

// Outcome is the payload of domain events.
type Outcome struct {
	UserID   int64         `json:"user_id,omitempty"`
	Result   string        `json:"result,omitempty"`
	Count    int           `json:"count,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			// Publish holds the read lock while sending, so closing under
			// the write lock cannot race with a send.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Consume subscribes and calls fn for every event until ctx is done.
func Consume(ctx context.Context, bus Bus, buffer int, fn func(Event)) {
	if bus == nil || fn == nil {
		return
	}
	ch, unsub := bus.Subscribe(buffer)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			fn(e)
		}
	}
}
