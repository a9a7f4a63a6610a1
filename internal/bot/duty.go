package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"staffbot/internal/apperr"
	"staffbot/internal/task/engine"
	"staffbot/internal/transport/telegram/router"
	"staffbot/internal/workflow/duty"
	logx "staffbot/pkg/logx"
	"staffbot/pkg/tgui"
)

const dutyScope = "duty"

func (b *Bot) cmdDutyAdd(ctx context.Context, req *router.Request) error {
	if strings.TrimSpace(req.Text) != "" {
		return b.addDuty(ctx, req, req.Text)
	}
	b.dlg.set(req.FromID, session{Flow: flowDuty})
	return req.Reply(ctx, "Отправьте список дежурств, по одному на строку:\n<code>Имя Фамилия: ДД.ММ.ГГГГ</code>", cancelMarkup())
}

func (b *Bot) addDuty(ctx context.Context, req *router.Request, raw string) error {
	res, err := b.duty.AddEntries(ctx, raw, req.FromID)
	if err != nil {
		return err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ Добавлено записей: %d", len(res.Inserted))
	for _, e := range res.Inserted {
		fmt.Fprintf(&sb, "\n• %s: %s", tgui.Esc(e.AssigneeName), duty.FormatDate(e.Date))
	}
	if len(res.Errors) > 0 {
		fmt.Fprintf(&sb, "\n\n⚠️ Ошибки (%d):", len(res.Errors))
		for _, e := range res.Errors {
			sb.WriteString("\n" + tgui.Esc(e.Error()).String())
		}
	}
	return req.Reply(ctx, sb.String(), nil)
}

func (b *Bot) cmdDutyList(ctx context.Context, req *router.Request) error {
	entries, err := b.duty.ListUpcoming(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return req.Reply(ctx, "График дежурств пуст.", nil)
	}
	lines := []string{"📅 <b>График дежурств</b>"}
	for _, e := range entries {
		mark := ""
		if !e.NotifiedAt.IsZero() {
			mark = " 🔔"
		}
		lines = append(lines, fmt.Sprintf("• %s: %s%s", duty.FormatDate(e.Date), tgui.Esc(e.AssigneeName), mark))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"), nil)
}

func (b *Bot) cmdDutyClear(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, "Удалить все записи графика дежурств?", tgui.Confirm(
		tgui.Btn("🗑 Удалить", tgui.Data(dutyScope, "clear")),
		tgui.Btn("Отмена", tgui.Data(dutyScope, "keep")),
	))
}

func (b *Bot) cbDutyClear(ctx context.Context, req *router.Request) error {
	n, err := b.duty.Clear(ctx, req.FromID)
	if err != nil {
		return err
	}
	return req.Edit(ctx, fmt.Sprintf("🗑 График очищен, удалено записей: %d.", n), nil)
}

func (b *Bot) cbDutyKeep(ctx context.Context, req *router.Request) error {
	return req.Edit(ctx, "Очистка отменена.", nil)
}

var dutyJobs = map[string]string{
	"check":  duty.JobCheck,
	"notify": duty.JobNotify,
}

// cmdDutyRun queues a duty pass on the task engine, the same way the
// schedule does.
func (b *Bot) cmdDutyRun(ctx context.Context, req *router.Request) error {
	if b.jobs == nil {
		return req.Reply(ctx, "Планировщик недоступен.", nil)
	}
	name, ok := "", len(req.Args) == 1
	if ok {
		name, ok = dutyJobs[strings.ToLower(req.Args[0])]
	}
	if !ok {
		return apperr.Validation("args", "Использование: /duty_run <check|notify>")
	}
	err := b.jobs.RunNow(name)
	if errors.Is(err, engine.ErrOverlapSkip) {
		return req.Reply(ctx, "⏳ Этот проход уже выполняется.", nil)
	}
	if err != nil {
		return err
	}
	b.log.Info("duty pass queued by operator", logx.String("job", name), logx.Int64("user_id", req.FromID))
	return req.Reply(ctx, fmt.Sprintf("▶️ Проход %s поставлен в очередь.", tgui.Code(name)), nil)
}
