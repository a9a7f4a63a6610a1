package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"staffbot/internal/apperr"
	"staffbot/internal/storage"
	"staffbot/internal/transport/telegram/router"
	"staffbot/internal/workflow/news"
	"staffbot/pkg/tgui"
)

const maxListed = 20

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("id", "Неверный идентификатор.")
	}
	return id, nil
}

func (b *Bot) cmdProposals(ctx context.Context, req *router.Request) error {
	list, err := b.news.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return req.Reply(ctx, "Нет новостей на модерации.", nil)
	}
	if len(list) > maxListed {
		_ = req.Reply(ctx, fmt.Sprintf("На модерации %d новостей, показаны первые %d.", len(list), maxListed), nil)
		list = list[:maxListed]
	}
	for _, p := range list {
		if err := req.Reply(ctx, news.ReviewText(p), news.ReviewMarkup(p.ID)); err != nil {
			return err
		}
	}
	return nil
}

func decided(p storage.NewsProposal, verdict string, reviewerID int64) string {
	return news.ReviewText(p) + "\n\n" + verdict + " " + tgui.Mention(strconv.FormatInt(reviewerID, 10), reviewerID).String()
}

func (b *Bot) cbNewsApprove(ctx context.Context, req *router.Request) error {
	id, err := parseID(req.Callback.Arg(0))
	if err != nil {
		return err
	}
	p, err := b.news.Approve(ctx, id, req.FromID)
	return b.afterPublish(ctx, req, p, err)
}

func (b *Bot) cbNewsRepublish(ctx context.Context, req *router.Request) error {
	id, err := parseID(req.Callback.Arg(0))
	if err != nil {
		return err
	}
	p, err := b.news.Republish(ctx, id, req.FromID)
	return b.afterPublish(ctx, req, p, err)
}

// afterPublish keeps a retry button on the card when the decision was
// stored but the channel post failed.
func (b *Bot) afterPublish(ctx context.Context, req *router.Request, p storage.NewsProposal, err error) error {
	switch {
	case err == nil:
		return req.Edit(ctx, decided(p, "✅ Опубликовано:", req.FromID), nil)
	case apperr.IsExternal(err) && p.ID != 0:
		text := decided(p, "⚠️ Одобрено, но публикация в канал не удалась. Одобрил:", req.FromID)
		return req.Edit(ctx, text, news.RepublishMarkup(p.ID))
	default:
		return err
	}
}

func (b *Bot) cbNewsReject(ctx context.Context, req *router.Request) error {
	id, err := parseID(req.Callback.Arg(0))
	if err != nil {
		return err
	}
	p, err := b.news.Reject(ctx, id, req.FromID)
	if err != nil {
		return err
	}
	return req.Edit(ctx, decided(p, "❌ Отклонено:", req.FromID), nil)
}

func (b *Bot) cbNewsComment(ctx context.Context, req *router.Request) error {
	return b.startProposalInput(ctx, req, flowNewsComment, "💬 Напишите комментарий для автора новости №%d:")
}

func (b *Bot) cbNewsEdit(ctx context.Context, req *router.Request) error {
	return b.startProposalInput(ctx, req, flowNewsEdit, "✏️ Отправьте исправленный текст новости №%d:")
}

func (b *Bot) startProposalInput(ctx context.Context, req *router.Request, flow, prompt string) error {
	id, err := parseID(req.Callback.Arg(0))
	if err != nil {
		return err
	}
	p, err := b.news.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != storage.ProposalPending {
		return apperr.Conflict("proposal", strconv.FormatInt(id, 10), string(p.Status))
	}
	b.dlg.set(req.FromID, session{Flow: flow, ProposalID: id})
	return req.Reply(ctx, fmt.Sprintf(prompt, id), cancelMarkup())
}

func (b *Bot) newsComment(ctx context.Context, req *router.Request, sess session) error {
	p, err := b.news.Comment(ctx, sess.ProposalID, req.FromID, req.Text)
	if apperr.IsValidation(err) {
		return err
	}
	b.dlg.clear(req.FromID)
	if err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("Комментарий к новости №%d отправлен автору.", p.ID), nil)
}

func (b *Bot) newsEdit(ctx context.Context, req *router.Request, sess session) error {
	p, err := b.news.Edit(ctx, sess.ProposalID, req.FromID, req.Text)
	if apperr.IsValidation(err) {
		return err
	}
	b.dlg.clear(req.FromID)
	if err != nil {
		return err
	}
	return req.Reply(ctx, news.ReviewText(p), news.ReviewMarkup(p.ID))
}
