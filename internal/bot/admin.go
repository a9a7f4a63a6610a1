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
	logx "staffbot/pkg/logx"
	"staffbot/pkg/tgui"
)

func (b *Bot) cmdRequests(ctx context.Context, req *router.Request) error {
	list, err := b.auth.Pending(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return req.Reply(ctx, "Нет заявок на доступ.", nil)
	}
	if len(list) > maxListed {
		list = list[:maxListed]
	}
	for _, r := range list {
		text := fmt.Sprintf("🆕 Заявка от %s\nФИО: %s\nДолжность: %s\nПодана: %s",
			tgui.Mention(r.Name, r.UserID), tgui.Esc(r.Name), tgui.Esc(r.Position), r.SubmittedAt.Format("02.01.2006 15:04"))
		if err := req.Reply(ctx, text, auth.ReviewMarkup(r.UserID)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) cbAuthApprove(ctx context.Context, req *router.Request) error {
	id, err := parseID(req.Callback.Arg(0))
	if err != nil {
		return err
	}
	u, err := b.auth.Approve(ctx, id, req.FromID)
	if err != nil {
		return err
	}
	b.invalidate(id)
	return req.Edit(ctx, fmt.Sprintf("✅ Доступ выдан: %s", tgui.Mention(u.Name, u.ID)), nil)
}

func (b *Bot) cbAuthDecline(ctx context.Context, req *router.Request) error {
	id, err := parseID(req.Callback.Arg(0))
	if err != nil {
		return err
	}
	if err := b.auth.Decline(ctx, id, req.FromID); err != nil {
		return err
	}
	return req.Edit(ctx, fmt.Sprintf("❌ Заявка пользователя %d отклонена.", id), nil)
}

func (b *Bot) cmdRole(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 2 {
		return apperr.Validation("args", "Использование: /role <id> <user|moderator|marketer|admin>")
	}
	id, err := parseID(req.Args[0])
	if err != nil {
		return err
	}
	role := storage.Role(strings.ToLower(req.Args[1]))
	if err := b.auth.SetRole(ctx, req.FromID, id, role); err != nil {
		return err
	}
	b.invalidate(id)
	return req.Reply(ctx, fmt.Sprintf("Роль пользователя %d: %s.", id, tgui.B(string(role))), nil)
}

func (b *Bot) cmdRemoveUser(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return apperr.Validation("args", "Использование: /remove_user <id>")
	}
	id, err := parseID(req.Args[0])
	if err != nil {
		return err
	}
	if err := b.removeUser(ctx, req.FromID, id); err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("Пользователь %d удалён.", id), nil)
}

// removeUser revokes bot access and the channel subscription together.
func (b *Bot) removeUser(ctx context.Context, adminID, id int64) error {
	if err := b.auth.RemoveUser(ctx, adminID, id); err != nil {
		return err
	}
	b.invalidate(id)
	if _, err := b.channel.Revoke(ctx, id); err != nil {
		b.log.Warn("subscription revoke failed", logx.Int64("user_id", id), logx.Err(err))
	}
	return nil
}

func (b *Bot) cmdSyncChannel(ctx context.Context, req *router.Request) error {
	_ = req.Reply(ctx, "🔄 Синхронизация запущена…", nil)
	rep, err := b.channel.RunBy(ctx, req.FromID)
	if errors.Is(err, channel.ErrSyncRunning) {
		return req.Reply(ctx, "⏳ Синхронизация уже выполняется, дождитесь её завершения.", nil)
	}
	if err != nil {
		return err
	}
	// The admin summary is sent by the reconciler; the caller may not be that admin.
	if b.roles != nil && req.FromID == b.roles.AdminID() {
		return nil
	}
	return req.Reply(ctx, fmt.Sprintf("Готово: удалено %d из %d.", len(rep.Removed), rep.Current), nil)
}

func (b *Bot) cmdChannelStatus(ctx context.Context, req *router.Request) error {
	st, err := b.channel.Status(ctx)
	if err != nil {
		return err
	}
	lines := []string{
		"📢 <b>Канал новостей</b>",
		fmt.Sprintf("Подписчиков: %d", st.Subscribers),
	}
	if st.RosterErr != nil {
		lines = append(lines, "Список сотрудников: ⚠️ недоступен")
	} else {
		lines = append(lines, fmt.Sprintf("Список сотрудников: %d", st.Roster))
	}
	if st.InviteLink != "" {
		lines = append(lines, "Ссылка: "+tgui.Esc(st.InviteLink).String())
	}
	return req.Reply(ctx, strings.Join(lines, "\n"), nil)
}

func (b *Bot) cmdStats(ctx context.Context, req *router.Request) error {
	s, err := b.store.Stats(ctx, b.duty.Today())
	if err != nil {
		return err
	}
	lines := []string{
		"📊 <b>Статистика</b>",
		fmt.Sprintf("Пользователей: %d (модераторов %d, маркетологов %d, админов %d)", s.Users, s.Moderators, s.Marketers, s.Admins),
		fmt.Sprintf("Заявок на доступ: %d", s.PendingAuth),
		fmt.Sprintf("Новости: на модерации %d, опубликовано %d, отклонено %d, с комментарием %d",
			s.Proposals[storage.ProposalPending], s.Proposals[storage.ProposalApproved],
			s.Proposals[storage.ProposalRejected], s.Proposals[storage.ProposalCommented]),
		fmt.Sprintf("Дежурства: предстоит %d, напоминаний отправлено %d", s.DutyUpcoming, s.DutyNotified),
		fmt.Sprintf("Подписчиков канала: %d", s.Subscribers),
		fmt.Sprintf("Версия схемы БД: %d", s.SchemaVersion),
	}
	return req.Reply(ctx, strings.Join(lines, "\n"), nil)
}

func (b *Bot) cmdNotify(ctx context.Context, req *router.Request) error {
	if b.announce == nil {
		return req.Reply(ctx, "Рассылка отключена.", nil)
	}
	if strings.TrimSpace(req.Text) != "" {
		return b.sendNotice(ctx, req, req.Text)
	}
	b.dlg.set(req.FromID, session{Flow: flowNotify})
	return req.Reply(ctx, "📢 Отправьте текст уведомления для всех пользователей:", cancelMarkup())
}

func (b *Bot) notifyInput(ctx context.Context, req *router.Request) error {
	err := b.sendNotice(ctx, req, req.Text)
	if !apperr.IsValidation(err) {
		b.dlg.clear(req.FromID)
	}
	return err
}

func (b *Bot) sendNotice(ctx context.Context, req *router.Request, text string) error {
	q, err := b.announce.Send(ctx, req.FromID, text)
	if err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("📢 Рассылка запущена, получателей: %d. Итог придёт отдельным сообщением.", q.Recipients), nil)
}

const adminLogLimit = 20

func (b *Bot) cmdAdminLog(ctx context.Context, req *router.Request) error {
	logs, err := b.store.RecentAdminLogs(ctx, adminLogLimit)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		return req.Reply(ctx, "Журнал действий пуст.", nil)
	}
	lines := []string{"📜 <b>Журнал действий</b>"}
	for _, l := range logs {
		who := "расписание"
		if l.AdminID != 0 {
			who = tgui.Mention(idKey(l.AdminID), l.AdminID).String()
		}
		line := fmt.Sprintf("%s %s %s", l.At.Format("02.01 15:04"), tgui.Code(l.Action), who)
		if l.TargetUserID != 0 {
			line += " → " + idKey(l.TargetUserID)
		}
		if l.Detail != "" {
			line += ": " + tgui.Esc(tgui.TruncRunes(l.Detail, 120)).String()
		}
		lines = append(lines, line)
	}
	return req.Reply(ctx, strings.Join(lines, "\n"), nil)
}
