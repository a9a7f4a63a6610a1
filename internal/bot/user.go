package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"staffbot/internal/apperr"
	"staffbot/internal/storage"
	"staffbot/internal/transport/telegram/router"
	"staffbot/internal/workflow/auth"
	"staffbot/internal/workflow/channel"
	"staffbot/internal/workflow/duty"
	"staffbot/internal/workflow/news"
	"staffbot/pkg/tgui"
)

func (b *Bot) cmdStart(ctx context.Context, req *router.Request) error {
	st, err := b.auth.StateOf(ctx, req.FromID)
	if err != nil {
		return err
	}
	switch st {
	case auth.Authorized:
		return req.Reply(ctx, "👋 Вы авторизованы. Список команд: /help", nil)
	case auth.Pending:
		return req.Reply(ctx, "⏳ Ваша заявка на доступ рассматривается администратором.", nil)
	default:
		return req.Reply(ctx, "👋 Это бот для сотрудников. Чтобы получить доступ, отправьте /auth", nil)
	}
}

func (b *Bot) cmdAuth(ctx context.Context, req *router.Request) error {
	st, err := b.auth.StateOf(ctx, req.FromID)
	if err != nil {
		return err
	}
	switch st {
	case auth.Authorized:
		return req.Reply(ctx, "✅ Вы уже авторизованы.", nil)
	case auth.Pending:
		return req.Reply(ctx, "⏳ Заявка уже отправлена, дождитесь решения администратора.", nil)
	}
	b.dlg.set(req.FromID, session{Flow: flowAuthName})
	return req.Reply(ctx, "Введите ФИО полностью (Фамилия Имя Отчество), как в списке сотрудников:", cancelMarkup())
}

func (b *Bot) authName(ctx context.Context, req *router.Request) error {
	name := strings.Join(strings.Fields(req.Text), " ")
	if err := auth.ValidateName(name); err != nil {
		return err
	}
	b.dlg.set(req.FromID, session{Flow: flowAuthPosition, Name: name})
	return req.Reply(ctx, "Введите вашу должность:", cancelMarkup())
}

func (b *Bot) authPosition(ctx context.Context, req *router.Request, sess session) error {
	pos := strings.TrimSpace(req.Text)
	if err := auth.ValidatePosition(pos); err != nil {
		return err
	}
	b.dlg.clear(req.FromID)
	_, err := b.auth.Submit(ctx, auth.Submission{
		UserID:   req.FromID,
		Username: req.Username,
		Name:     sess.Name,
		Position: pos,
	})
	b.invalidate(req.FromID)
	return err
}

func (b *Bot) cmdNews(ctx context.Context, req *router.Request) error {
	b.dlg.set(req.FromID, session{Flow: flowNews, Text: req.Text})
	text := fmt.Sprintf("📝 Отправьте текст новости, затем при необходимости до %d фото. Когда закончите, нажмите «Готово».", b.news.MaxPhotos())
	return req.Reply(ctx, text, newsDoneMarkup())
}

func (b *Bot) newsInput(ctx context.Context, req *router.Request) error {
	if req.PhotoID == "" && isDone(req.Text) {
		return b.finishNews(ctx, req)
	}
	var over bool
	sess, ok := b.dlg.update(req.FromID, func(s *session) bool {
		if req.PhotoID != "" {
			if len(s.Photos) >= b.news.MaxPhotos() {
				over = true
				return false
			}
			s.Photos = append(s.Photos, req.PhotoID)
			if s.Text == "" && req.Text != "" {
				s.Text = req.Text
			}
			return true
		}
		s.Text = req.Text
		return true
	})
	if !ok {
		return nil
	}
	switch {
	case over:
		return req.Reply(ctx, fmt.Sprintf("Можно приложить не более %d фото.", b.news.MaxPhotos()), newsDoneMarkup())
	case req.PhotoID != "":
		return req.Reply(ctx, fmt.Sprintf("🖼 Фото добавлено (%d).", len(sess.Photos)), newsDoneMarkup())
	default:
		return req.Reply(ctx, "Текст сохранён. Добавьте фото или нажмите «Готово».", newsDoneMarkup())
	}
}

func (b *Bot) cbNewsDone(ctx context.Context, req *router.Request) error {
	return b.finishNews(ctx, req)
}

func (b *Bot) finishNews(ctx context.Context, req *router.Request) error {
	sess, ok := b.dlg.get(req.FromID)
	if !ok || sess.Flow != flowNews {
		return req.Reply(ctx, "Нет новости в работе. Начните с /news", nil)
	}
	if strings.TrimSpace(sess.Text) == "" {
		return apperr.Validation("text", "Сначала отправьте текст новости.")
	}
	authorName := ""
	if u, err := b.store.GetUser(ctx, req.FromID); err == nil {
		authorName = u.Name
	}
	_, err := b.news.Propose(ctx, news.Draft{
		AuthorID:    req.FromID,
		Username:    req.Username,
		AuthorName:  authorName,
		Text:        sess.Text,
		Attachments: sess.Photos,
	})
	if err != nil {
		// Keep the draft so the author can fix the text.
		return err
	}
	b.dlg.clear(req.FromID)
	return nil
}

func (b *Bot) cmdMyDuty(ctx context.Context, req *router.Request) error {
	entries, err := b.duty.ListFor(ctx, req.FromID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return req.Reply(ctx, "У вас нет предстоящих дежурств.", nil)
	}
	lines := []string{"📅 <b>Ваши дежурства</b>"}
	for _, e := range entries {
		lines = append(lines, "• "+duty.FormatDate(e.Date))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"), nil)
}

func (b *Bot) cmdSubscribe(ctx context.Context, req *router.Request) error {
	if _, err := b.store.GetSubscriber(ctx, req.FromID); err == nil {
		return req.Reply(ctx, "✅ Вы уже подписаны на канал новостей.", nil)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	link := b.channel.InviteLink()
	if link == "" {
		return req.Reply(ctx, "Ссылка на канал не настроена, обратитесь к администратору.", nil)
	}
	text := "Подайте заявку на вступление по ссылке: " + tgui.Link("канал новостей", link).String() +
		"\nПосле заявки бот попросит указать ваше полное имя."
	return req.Reply(ctx, text, nil)
}

func (b *Bot) joinName(ctx context.Context, req *router.Request) error {
	name := strings.Join(strings.Fields(req.Text), " ")
	if err := auth.ValidateName(name); err != nil {
		return err
	}
	b.dlg.clear(req.FromID)
	_, err := b.channel.Register(ctx, channel.JoinRequest{UserID: req.FromID, Username: req.Username}, name)
	return err
}

func (b *Bot) invalidate(userID int64) {
	if b.roles != nil {
		b.roles.Invalidate(userID)
	}
}

func cancelMarkup() any {
	return tgui.NewInline().Row(tgui.Btn("Отмена", tgui.Data(dialogScope, "cancel"))).Markup()
}

func newsDoneMarkup() any {
	return tgui.NewInline().Row(
		tgui.Btn("✅ Готово", tgui.Data(dialogScope, "done")),
		tgui.Btn("Отмена", tgui.Data(dialogScope, "cancel")),
	).Markup()
}
