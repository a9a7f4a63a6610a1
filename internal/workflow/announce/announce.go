// Package announce sends an admin notice to every authorized user and
// reports how many deliveries succeeded.
package announce

import (
	"context"
	"fmt"
	"unicode/utf8"

	"staffbot/internal/apperr"
	"staffbot/internal/clock"
	"staffbot/internal/notifier"
	"staffbot/internal/notifier/broadcast"
	"staffbot/internal/storage"
	"staffbot/internal/workflow/news"
	logx "staffbot/pkg/logx"
)

const maxTextRunes = 3500

// Broadcaster queues a fan-out job.
type Broadcaster interface {
	Submit(j broadcast.Job) (string, error)
}

type Deps struct {
	Store       storage.Store
	Broadcaster Broadcaster
	Messenger   notifier.Messenger
	Clock       clock.Clock
	Log         logx.Logger
}

type Workflow struct {
	store storage.Store
	bc    Broadcaster
	msg   notifier.Messenger
	clk   clock.Clock
	log   logx.Logger
}

func New(d Deps) *Workflow {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return &Workflow{
		store: d.Store,
		bc:    d.Broadcaster,
		msg:   d.Messenger,
		clk:   d.Clock,
		log:   d.Log.With(logx.String("comp", "announce")),
	}
}

type Queued struct {
	JobID      string
	Recipients int
}

// Send queues text for every authorized user except the sender. The sender
// gets a "sent N of M" summary once the job finishes.
func (w *Workflow) Send(ctx context.Context, adminID int64, text string) (Queued, error) {
	clean := news.Sanitize(text)
	if clean == "" {
		return Queued{}, apperr.Validation("text", "Текст уведомления не может быть пустым.")
	}
	if utf8.RuneCountInString(clean) > maxTextRunes {
		return Queued{}, apperr.Validation("text", fmt.Sprintf("Текст уведомления длиннее %d символов.", maxTextRunes))
	}

	users, err := w.store.ListUsers(ctx)
	if err != nil {
		return Queued{}, err
	}
	targets := make([]int64, 0, len(users))
	for _, u := range users {
		if u.Status == storage.UserAuthorized && u.ID != adminID {
			targets = append(targets, u.ID)
		}
	}
	if len(targets) == 0 {
		return Queued{}, apperr.Validation("recipients", "Нет пользователей для рассылки.")
	}

	id, err := w.bc.Submit(broadcast.Job{
		Name:    "announce",
		Targets: targets,
		Text:    "📢 <b>Уведомление</b>\n\n" + clean,
		Done: func(ctx context.Context, st broadcast.JobStatus) {
			w.finish(ctx, adminID, st)
		},
	})
	if err != nil {
		return Queued{}, apperr.External("broadcast", err)
	}
	w.log.Info("announcement queued", logx.String("job", id), logx.Int64("admin_id", adminID), logx.Int("recipients", len(targets)))
	return Queued{JobID: id, Recipients: len(targets)}, nil
}

func (w *Workflow) finish(ctx context.Context, adminID int64, st broadcast.JobStatus) {
	detail := fmt.Sprintf("sent %d of %d", st.Sent, st.Total)
	if err := w.store.AppendAdminLog(ctx, storage.AdminLog{
		AdminID: adminID, Action: "broadcast", Detail: detail, At: w.clk.Now(),
	}); err != nil {
		w.log.Warn("admin log append failed", logx.String("action", "broadcast"), logx.Err(err))
	}
	text := fmt.Sprintf("📢 Рассылка завершена: отправлено %d из %d.", st.Sent, st.Total)
	if st.Failed > 0 {
		text += fmt.Sprintf("\nНе доставлено: %d (бот заблокирован или чат недоступен).", st.Failed)
	}
	if err := w.msg.SendDirect(ctx, adminID, text, nil); err != nil {
		w.log.Warn("broadcast summary failed", logx.Int64("admin_id", adminID), logx.Err(err))
	}
}
