// Package news moderates announcements before they reach the channel.
//
// A proposal starts pending and ends approved, rejected or commented. Only
// pending proposals accept decisions or edits; an approved one may be
// republished when delivery failed.
package news

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"staffbot/internal/apperr"
	"staffbot/internal/clock"
	"staffbot/internal/eventbus"
	"staffbot/internal/notifier"
	"staffbot/internal/storage"
	"staffbot/internal/workflow/fsm"
	logx "staffbot/pkg/logx"
	"staffbot/pkg/tgui"
)

type Action string

const (
	ActApprove   Action = "approve"
	ActReject    Action = "reject"
	ActComment   Action = "comment"
	ActEdit      Action = "edit"
	ActRepublish Action = "republish"
)

var transitions = fsm.Table[storage.ProposalStatus, Action]{
	storage.ProposalPending: {
		ActApprove: storage.ProposalApproved,
		ActReject:  storage.ProposalRejected,
		ActComment: storage.ProposalCommented,
		ActEdit:    storage.ProposalPending,
	},
	storage.ProposalApproved: {ActRepublish: storage.ProposalApproved},
}

const CallbackScope = "news"

const (
	DefaultMinLength = 10
	fanoutLimit      = 4
	previewRunes     = 3000
)

type Config struct {
	MinLength int
	MaxPhotos int
}

type Deps struct {
	Store     storage.Store
	Messenger notifier.Messenger
	Admin     notifier.AdminNotifier
	Clock     clock.Clock
	Bus       eventbus.Bus
	Log       logx.Logger
}

type Workflow struct {
	cfg   Config
	store storage.Store
	msg   notifier.Messenger
	admin notifier.AdminNotifier
	clk   clock.Clock
	bus   eventbus.Bus
	log   logx.Logger
}

func New(cfg Config, d Deps) *Workflow {
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinLength
	}
	if cfg.MaxPhotos <= 0 {
		cfg.MaxPhotos = 10
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return &Workflow{
		cfg:   cfg,
		store: d.Store,
		msg:   d.Messenger,
		admin: d.Admin,
		clk:   d.Clock,
		bus:   d.Bus,
		log:   d.Log.With(logx.String("comp", "news")),
	}
}

type Draft struct {
	AuthorID    int64
	Username    string
	AuthorName  string
	Text        string
	Attachments []string
}

// MaxPhotos is the attachment cap enforced by Propose.
func (w *Workflow) MaxPhotos() int { return w.cfg.MaxPhotos }

func (w *Workflow) validateText(raw string) (string, error) {
	text := Sanitize(raw)
	if plainLen(text) < w.cfg.MinLength {
		return "", apperr.Validation("text", fmt.Sprintf("Текст новости слишком короткий (минимум %d символов).", w.cfg.MinLength))
	}
	return text, nil
}

// Propose stores a pending proposal and sends it to every reviewer.
func (w *Workflow) Propose(ctx context.Context, d Draft) (storage.NewsProposal, error) {
	text, err := w.validateText(d.Text)
	if err != nil {
		return storage.NewsProposal{}, err
	}
	if len(d.Attachments) > w.cfg.MaxPhotos {
		return storage.NewsProposal{}, apperr.Validation("attachments", fmt.Sprintf("Можно приложить не более %d фото.", w.cfg.MaxPhotos))
	}
	p := storage.NewsProposal{
		AuthorID:    d.AuthorID,
		Username:    d.Username,
		AuthorName:  strings.TrimSpace(d.AuthorName),
		Text:        text,
		Attachments: d.Attachments,
		Status:      storage.ProposalPending,
		CreatedAt:   w.clk.Now(),
	}
	id, err := w.store.CreateProposal(ctx, p)
	if err != nil {
		return storage.NewsProposal{}, err
	}
	p.ID = id
	w.log.Info("news proposed", logx.Int64("id", id), logx.Int64("author_id", d.AuthorID), logx.Int("photos", len(d.Attachments)))
	w.publish(eventbus.NewsSubmitted, d.AuthorID, "")

	w.notifyReviewers(ctx, p)
	w.tell(ctx, d.AuthorID, fmt.Sprintf("✅ Новость №%d отправлена на модерацию.", id))
	return p, nil
}

// notifyReviewers fans the review card out to moderators, marketers and
// admins. Individual failures are logged; the proposal stands regardless.
func (w *Workflow) notifyReviewers(ctx context.Context, p storage.NewsProposal) {
	reviewers, err := w.store.ListUsersByRole(ctx, storage.RoleModerator, storage.RoleMarketer, storage.RoleAdmin)
	if err != nil {
		w.log.Warn("list reviewers failed", logx.Err(err))
	}
	text := ReviewText(p)
	if len(reviewers) == 0 {
		if w.admin != nil {
			if err := w.admin.NotifyAdmin(ctx, text, ReviewMarkup(p.ID)); err != nil {
				w.log.Warn("admin review notice failed", logx.Err(err))
			}
		}
		return
	}

	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(fanoutLimit)
	for _, r := range reviewers {
		g.Go(func() error {
			if err := w.msg.SendDirect(ctx, r.ID, text, ReviewMarkup(p.ID)); err != nil {
				failed.Add(1)
				w.log.Warn("reviewer notice failed", logx.Int64("reviewer_id", r.ID), logx.Err(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	w.log.Debug("reviewers notified", logx.Int64("id", p.ID), logx.Int("total", len(reviewers)), logx.Int("failed", int(failed.Load())))
}

// Approve records the decision and publishes. When publishing fails the
// proposal stays approved and the ExternalServiceError is returned so the
// reviewer can Republish.
func (w *Workflow) Approve(ctx context.Context, id, reviewerID int64) (storage.NewsProposal, error) {
	p, err := w.transition(ctx, id, reviewerID, ActApprove, "")
	if err != nil {
		return p, err
	}
	w.publish(eventbus.NewsReviewed, reviewerID, string(ActApprove))
	return p, w.deliver(ctx, p, reviewerID)
}

// Republish retries delivery of an approved proposal.
func (w *Workflow) Republish(ctx context.Context, id, reviewerID int64) (storage.NewsProposal, error) {
	p, err := w.get(ctx, id)
	if err != nil {
		return p, err
	}
	if _, ok := transitions.Next(p.Status, ActRepublish); !ok {
		return p, apperr.Conflict("proposal", idKey(id), string(p.Status))
	}
	return p, w.deliver(ctx, p, reviewerID)
}

func (w *Workflow) deliver(ctx context.Context, p storage.NewsProposal, reviewerID int64) error {
	if err := w.msg.SendChannel(ctx, p.Text, p.Attachments); err != nil {
		w.log.Error("news publish failed", logx.Int64("id", p.ID), logx.Int64("reviewer_id", reviewerID), logx.Err(err))
		w.publish(eventbus.NewsPublished, reviewerID, "error")
		if !apperr.IsExternal(err) {
			err = apperr.External("telegram", err)
		}
		return err
	}
	w.log.Info("news published", logx.Int64("id", p.ID), logx.Int64("reviewer_id", reviewerID))
	w.publish(eventbus.NewsPublished, reviewerID, "ok")
	w.tell(ctx, p.AuthorID, fmt.Sprintf("🎉 Ваша новость №%d опубликована в канале.", p.ID))
	return nil
}

func (w *Workflow) Reject(ctx context.Context, id, reviewerID int64) (storage.NewsProposal, error) {
	p, err := w.transition(ctx, id, reviewerID, ActReject, "")
	if err != nil {
		return p, err
	}
	w.publish(eventbus.NewsReviewed, reviewerID, string(ActReject))
	w.tell(ctx, p.AuthorID, fmt.Sprintf("❌ Ваша новость №%d отклонена модератором.", p.ID))
	return p, nil
}

// Comment closes the proposal as "needs changes" and sends the note to the author.
func (w *Workflow) Comment(ctx context.Context, id, reviewerID int64, comment string) (storage.NewsProposal, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return storage.NewsProposal{}, apperr.Validation("comment", "Комментарий не может быть пустым.")
	}
	p, err := w.transition(ctx, id, reviewerID, ActComment, comment)
	if err != nil {
		return p, err
	}
	w.publish(eventbus.NewsReviewed, reviewerID, string(ActComment))
	w.tell(ctx, p.AuthorID, fmt.Sprintf("💬 Комментарий модератора к новости №%d:\n%s\n\nИсправьте текст и отправьте новость заново: /news",
		p.ID, tgui.Quote(comment)))
	return p, nil
}

// Edit replaces the text of a pending proposal; the status is unchanged.
func (w *Workflow) Edit(ctx context.Context, id, editorID int64, newText string) (storage.NewsProposal, error) {
	text, err := w.validateText(newText)
	if err != nil {
		return storage.NewsProposal{}, err
	}
	p, err := w.get(ctx, id)
	if err != nil {
		return p, err
	}
	if _, ok := transitions.Next(p.Status, ActEdit); !ok {
		return p, apperr.Conflict("proposal", idKey(id), string(p.Status))
	}
	ok, err := w.store.UpdateProposalText(ctx, id, storage.ProposalPending, text)
	if err != nil {
		return p, err
	}
	if !ok {
		return p, apperr.Conflict("proposal", idKey(id), "processed")
	}
	p.Text = text
	w.log.Info("news edited", logx.Int64("id", id), logx.Int64("editor_id", editorID))
	return p, nil
}

func (w *Workflow) ListPending(ctx context.Context) ([]storage.NewsProposal, error) {
	return w.store.ListProposals(ctx, storage.ProposalPending)
}

func (w *Workflow) Get(ctx context.Context, id int64) (storage.NewsProposal, error) {
	return w.get(ctx, id)
}

func (w *Workflow) get(ctx context.Context, id int64) (storage.NewsProposal, error) {
	p, err := w.store.GetProposal(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return p, apperr.NotFound("proposal", idKey(id))
	}
	return p, err
}

// transition applies act through the table and a conditional store update,
// so a concurrent reviewer gets StateConflict instead of a second decision.
func (w *Workflow) transition(ctx context.Context, id, reviewerID int64, act Action, comment string) (storage.NewsProposal, error) {
	p, err := w.get(ctx, id)
	if err != nil {
		return p, err
	}
	next, ok := transitions.Next(p.Status, act)
	if !ok {
		return p, apperr.Conflict("proposal", idKey(id), string(p.Status))
	}
	at := w.clk.Now()
	won, err := w.store.TransitionProposal(ctx, id, p.Status, next, reviewerID, comment, at)
	if err != nil {
		return p, err
	}
	if !won {
		return p, apperr.Conflict("proposal", idKey(id), "processed")
	}
	p.Status, p.ReviewerID, p.Comment, p.ProcessedAt = next, reviewerID, comment, at
	w.log.Info("news reviewed", logx.Int64("id", id), logx.String("action", string(act)), logx.Int64("reviewer_id", reviewerID))
	return p, nil
}

func (w *Workflow) tell(ctx context.Context, userID int64, text string) {
	if err := w.msg.SendDirect(ctx, userID, text, nil); err != nil {
		w.log.Warn("author notification failed", logx.Int64("user_id", userID), logx.Err(err))
	}
}

func (w *Workflow) publish(typ string, userID int64, result string) {
	if w.bus != nil {
		w.bus.Publish(eventbus.Event{Type: typ, Data: eventbus.Outcome{UserID: userID, Result: result}})
	}
}

// ReviewText renders the card reviewers see.
func ReviewText(p storage.NewsProposal) string {
	author := p.AuthorName
	if author == "" {
		author = idKey(p.AuthorID)
	}
	head := fmt.Sprintf("📰 Новость №%d от %s", p.ID, tgui.Mention(author, p.AuthorID))
	if n := len(p.Attachments); n > 0 {
		head += fmt.Sprintf(" (📎 %d фото)", n)
	}
	return head + "\n\n" + tgui.TruncRunes(p.Text, previewRunes)
}

// ReviewMarkup holds the reviewer actions for a pending proposal.
func ReviewMarkup(id int64) any {
	key := idKey(id)
	return tgui.NewInline().
		Row(
			tgui.Btn("✅ Опубликовать", tgui.Data(CallbackScope, string(ActApprove), key)),
			tgui.Btn("❌ Отклонить", tgui.Data(CallbackScope, string(ActReject), key)),
		).
		Row(
			tgui.Btn("💬 Комментарий", tgui.Data(CallbackScope, string(ActComment), key)),
			tgui.Btn("✏️ Редактировать", tgui.Data(CallbackScope, string(ActEdit), key)),
		).Markup()
}

// RepublishMarkup is shown to the reviewer after a failed delivery.
func RepublishMarkup(id int64) any {
	return tgui.NewInline().Row(
		tgui.Btn("🔁 Повторить публикацию", tgui.Data(CallbackScope, string(ActRepublish), idKey(id))),
	).Markup()
}

func idKey(id int64) string { return strconv.FormatInt(id, 10) }
