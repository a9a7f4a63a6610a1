// Package notifiertest provides a recording Messenger and AdminNotifier.
package notifiertest

import (
	"context"
	"errors"
	"sync"

	"staffbot/internal/apperr"
)

type Message struct {
	To     int64
	Text   string
	Markup any
	Photos []string
}

// Recorder captures outbound messages. FailDirect and FailChannel make the
// matching calls fail with an ExternalServiceError.
type Recorder struct {
	mu sync.Mutex

	Direct  []Message
	Channel []Message
	Admin   []Message
	Removed []int64

	Approved []int64
	Declined []int64

	Members map[int64]bool

	FailDirect  map[int64]bool
	FailChannel bool
	FailRemove  bool
	FailAdmin   bool
}

func New() *Recorder {
	return &Recorder{Members: map[int64]bool{}, FailDirect: map[int64]bool{}}
}

var errPlatform = errors.New("platform unavailable")

func (r *Recorder) SendDirect(ctx context.Context, userID int64, text string, markup any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailDirect[userID] {
		return apperr.External("telegram", errPlatform)
	}
	r.Direct = append(r.Direct, Message{To: userID, Text: text, Markup: markup})
	return nil
}

func (r *Recorder) SendChannel(ctx context.Context, text string, photoIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailChannel {
		return apperr.External("telegram", errPlatform)
	}
	r.Channel = append(r.Channel, Message{Text: text, Photos: append([]string(nil), photoIDs...)})
	return nil
}

func (r *Recorder) RemoveFromChannel(ctx context.Context, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailRemove {
		return false, apperr.External("telegram", errPlatform)
	}
	r.Removed = append(r.Removed, userID)
	was := r.Members[userID]
	delete(r.Members, userID)
	return was, nil
}

func (r *Recorder) ApproveJoin(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Approved = append(r.Approved, userID)
	r.Members[userID] = true
	return nil
}

func (r *Recorder) DeclineJoin(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Declined = append(r.Declined, userID)
	return nil
}

func (r *Recorder) NotifyAdmin(ctx context.Context, text string, markup any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAdmin {
		return apperr.External("telegram", errPlatform)
	}
	r.Admin = append(r.Admin, Message{Text: text, Markup: markup})
	return nil
}

// DirectTo returns messages sent to userID.
func (r *Recorder) DirectTo(userID int64) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.Direct {
		if m.To == userID {
			out = append(out, m)
		}
	}
	return out
}

func (r *Recorder) Snapshot() (direct, channel, admin []Message, removed []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.Direct...),
		append([]Message(nil), r.Channel...),
		append([]Message(nil), r.Admin...),
		append([]int64(nil), r.Removed...)
}

func (r *Recorder) Set(fn func(r *Recorder)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}
