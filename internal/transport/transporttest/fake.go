// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"sync"

	kit "staffbot/internal/transport"
)

type Sent struct {
	To     kit.ChatTarget
	Text   string
	Photos []string
	Opt    kit.SendOptions
}

// Adapter records every outbound call. Set Err to make calls fail and
// Members to control BanMember results.
type Adapter struct {
	mu       sync.Mutex
	Sent     []Sent
	Banned   []int64
	Approved []int64
	Declined []int64
	Answers  []string
	Members  map[int64]bool
	Err      error
	nextID   int
}

var _ kit.Adapter = (*Adapter)(nil)

func New() *Adapter { return &Adapter{Members: map[int64]bool{}} }

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *Adapter) Stop(ctx context.Context) error                         { return nil }

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return kit.MessageRef{}, a.Err
	}
	s := Sent{To: to, Text: text}
	if opt != nil {
		s.Opt = *opt
	}
	a.Sent = append(a.Sent, s)
	a.nextID++
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: a.nextID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.Sent = append(a.Sent, Sent{To: kit.ChatTarget{ChatID: ref.ChatID}, Text: text})
	return nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, id, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Answers = append(a.Answers, text)
	return nil
}

func (a *Adapter) SendAlbum(ctx context.Context, to kit.ChatTarget, caption string, photoIDs []string, opt *kit.SendOptions) ([]kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return nil, a.Err
	}
	a.Sent = append(a.Sent, Sent{To: to, Text: caption, Photos: append([]string(nil), photoIDs...)})
	refs := make([]kit.MessageRef, len(photoIDs))
	for i := range refs {
		a.nextID++
		refs[i] = kit.MessageRef{ChatID: to.ChatID, MessageID: a.nextID}
	}
	return refs, nil
}

func (a *Adapter) BanMember(ctx context.Context, chatID, userID int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return false, a.Err
	}
	a.Banned = append(a.Banned, userID)
	was := a.Members[userID]
	delete(a.Members, userID)
	return was, nil
}

func (a *Adapter) ApproveJoin(ctx context.Context, chatID, userID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.Approved = append(a.Approved, userID)
	a.Members[userID] = true
	return nil
}

func (a *Adapter) DeclineJoin(ctx context.Context, chatID, userID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.Declined = append(a.Declined, userID)
	return nil
}

// Messages returns a copy of everything sent so far.
func (a *Adapter) Messages() []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Sent(nil), a.Sent...)
}

func (a *Adapter) SetErr(err error) {
	a.mu.Lock()
	a.Err = err
	a.mu.Unlock()
}
