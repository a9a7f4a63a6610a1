// Package bot maps chat commands, buttons and dialog replies onto the
// workflows.
package bot

import (
	"context"
	"strings"
	"time"

	"staffbot/internal/roster"
	"staffbot/internal/storage"
	kit "staffbot/internal/transport"
	"staffbot/internal/transport/telegram/router"
	"staffbot/internal/workflow/announce"
	"staffbot/internal/workflow/auth"
	"staffbot/internal/workflow/channel"
	"staffbot/internal/workflow/duty"
	"staffbot/internal/workflow/news"
	logx "staffbot/pkg/logx"
)

const dialogScope = "dlg"

type Deps struct {
	Store   storage.Store
	Auth    *auth.Workflow
	News    *news.Workflow
	Duty    *duty.Scheduler
	Channel *channel.Reconciler
	// Announce, Directory and Jobs are optional; their commands reply that
	// the feature is unavailable when nil.
	Announce  *announce.Workflow
	Directory Directory
	Jobs      JobRunner
	// Roles is invalidated after role changes so access takes effect at once.
	Roles *router.Roles
	Log   logx.Logger
	// SessionTTL bounds how long a dialog waits for the next reply.
	SessionTTL time.Duration
}

// JobRunner queues a registered scheduled job out of schedule.
type JobRunner interface {
	RunNow(name string) error
}

type Bot struct {
	store    storage.Store
	auth     *auth.Workflow
	news     *news.Workflow
	duty     *duty.Scheduler
	channel  *channel.Reconciler
	announce *announce.Workflow
	dir      Directory
	jobs     JobRunner
	roles    *router.Roles
	log      logx.Logger
	dlg      *sessions
}

func New(d Deps) *Bot {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return &Bot{
		store:    d.Store,
		auth:     d.Auth,
		news:     d.News,
		duty:     d.Duty,
		channel:  d.Channel,
		announce: d.Announce,
		dir:      d.Directory,
		jobs:     d.Jobs,
		roles:    d.Roles,
		log:      d.Log.With(logx.String("comp", "bot")),
		dlg:      newSessions(d.SessionTTL),
	}
}

// Register installs every handler on m.
func (b *Bot) Register(m *router.Manager) {
	m.SetRegistry(b.Commands(), b.Callbacks())
	m.SetFallback(b.onText)
	m.SetJoinHandler(b.onJoinRequest)
}

func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "начало работы", Access: router.LevelGuest, Handle: b.cmdStart},
		{Name: "auth", Description: "запросить доступ", Access: router.LevelGuest, Handle: b.cmdAuth},
		{Name: "cancel", Description: "отменить текущий ввод", Access: router.LevelGuest, Handle: b.cmdCancel},
		{Name: "news", Description: "предложить новость", Access: router.LevelUser, Handle: b.cmdNews},
		{Name: "myduty", Description: "мои дежурства", Access: router.LevelUser, Handle: b.cmdMyDuty},
		{Name: "subscribe", Description: "подписка на канал новостей", Access: router.LevelUser, Handle: b.cmdSubscribe},

		{Name: "proposals", Description: "новости на модерации", Access: router.LevelReviewer, Handle: b.cmdProposals},
		{Name: "search", Usage: "/search [фио|должность|отдел] <запрос>", Description: "поиск сотрудника", Access: router.LevelReviewer, Handle: b.cmdSearch},

		{Name: "duty_add", Usage: "/duty_add Имя Фамилия: ДД.ММ.ГГГГ", Description: "добавить дежурства", Access: router.LevelModerator, Handle: b.cmdDutyAdd},
		{Name: "duty_list", Description: "график дежурств", Access: router.LevelModerator, Handle: b.cmdDutyList},
		{Name: "duty_clear", Description: "очистить график", Access: router.LevelModerator, Handle: b.cmdDutyClear},
		{Name: "duty_run", Usage: "/duty_run <check|notify>", Description: "запустить проход дежурств сейчас", Access: router.LevelModerator, Handle: b.cmdDutyRun},

		{Name: "requests", Description: "заявки на доступ", Access: router.LevelAdmin, Handle: b.cmdRequests},
		{Name: "users", Description: "пользователи и роли", Access: router.LevelAdmin, Handle: b.cmdUsers},
		{Name: "role", Usage: "/role <id> <user|moderator|marketer|admin>", Description: "изменить роль", Access: router.LevelAdmin, Handle: b.cmdRole},
		{Name: "remove_user", Usage: "/remove_user <id>", Description: "удалить пользователя", Access: router.LevelAdmin, Handle: b.cmdRemoveUser},
		{Name: "sync_channel", Description: "сверить подписчиков канала", Access: router.LevelAdmin, Timeout: 5 * time.Minute, Handle: b.cmdSyncChannel},
		{Name: "channel_status", Description: "состояние канала", Access: router.LevelAdmin, Handle: b.cmdChannelStatus},
		{Name: "stats", Description: "статистика", Access: router.LevelAdmin, Handle: b.cmdStats},
		{Name: "notify", Usage: "/notify [текст]", Description: "уведомление всем пользователям", Access: router.LevelAdmin, Handle: b.cmdNotify},
		{Name: "log", Description: "журнал действий администраторов", Access: router.LevelAdmin, Handle: b.cmdAdminLog},
	}
}

func (b *Bot) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Scope: auth.CallbackScope, Action: auth.CallbackApprove, Access: router.LevelAdmin, Handle: b.cbAuthApprove},
		{Scope: auth.CallbackScope, Action: auth.CallbackDecline, Access: router.LevelAdmin, Handle: b.cbAuthDecline},

		{Scope: news.CallbackScope, Action: string(news.ActApprove), Access: router.LevelReviewer, Handle: b.cbNewsApprove},
		{Scope: news.CallbackScope, Action: string(news.ActRepublish), Access: router.LevelReviewer, Handle: b.cbNewsRepublish},
		{Scope: news.CallbackScope, Action: string(news.ActReject), Access: router.LevelReviewer, Handle: b.cbNewsReject},
		{Scope: news.CallbackScope, Action: string(news.ActComment), Access: router.LevelReviewer, Handle: b.cbNewsComment},
		{Scope: news.CallbackScope, Action: string(news.ActEdit), Access: router.LevelReviewer, Handle: b.cbNewsEdit},

		{Scope: usersScope, Action: "page", Access: router.LevelAdmin, Handle: b.cbUsersPage},
		{Scope: usersScope, Action: "open", Access: router.LevelAdmin, Handle: b.cbUserOpen},
		{Scope: usersScope, Action: "role", Access: router.LevelAdmin, Handle: b.cbUserRole},
		{Scope: usersScope, Action: "del", Access: router.LevelAdmin, Handle: b.cbUserDelete},
		{Scope: usersScope, Action: "delok", Access: router.LevelAdmin, Handle: b.cbUserDeleteConfirm},

		{Scope: searchScope, Action: string(roster.FieldName), Access: router.LevelReviewer, Handle: b.cbSearchField},
		{Scope: searchScope, Action: string(roster.FieldPosition), Access: router.LevelReviewer, Handle: b.cbSearchField},
		{Scope: searchScope, Action: string(roster.FieldDepartment), Access: router.LevelReviewer, Handle: b.cbSearchField},

		{Scope: dutyScope, Action: "clear", Access: router.LevelModerator, Handle: b.cbDutyClear},
		{Scope: dutyScope, Action: "keep", Access: router.LevelModerator, Handle: b.cbDutyKeep},

		{Scope: dialogScope, Action: "done", Access: router.LevelUser, Handle: b.cbNewsDone},
		{Scope: dialogScope, Action: "cancel", Access: router.LevelGuest, Handle: b.cbCancel},
	}
}

// onText continues the caller's dialog, if any.
func (b *Bot) onText(ctx context.Context, req *router.Request) error {
	sess, ok := b.dlg.get(req.FromID)
	if !ok {
		if req.Text != "" {
			return req.Reply(ctx, "Не понимаю сообщение. Список команд: /help", nil)
		}
		return nil
	}
	switch sess.Flow {
	case flowAuthName:
		return b.authName(ctx, req)
	case flowAuthPosition:
		return b.authPosition(ctx, req, sess)
	case flowNews:
		return b.newsInput(ctx, req)
	case flowNewsComment:
		return b.newsComment(ctx, req, sess)
	case flowNewsEdit:
		return b.newsEdit(ctx, req, sess)
	case flowDuty:
		b.dlg.clear(req.FromID)
		return b.addDuty(ctx, req, req.Text)
	case flowJoin:
		return b.joinName(ctx, req)
	case flowNotify:
		return b.notifyInput(ctx, req)
	case flowSearch:
		return b.searchInput(ctx, req, sess)
	}
	b.dlg.clear(req.FromID)
	return nil
}

func (b *Bot) cmdCancel(ctx context.Context, req *router.Request) error {
	if _, ok := b.dlg.get(req.FromID); !ok {
		return req.Reply(ctx, "Нечего отменять.", nil)
	}
	b.dlg.clear(req.FromID)
	return req.Reply(ctx, "Ввод отменён.", nil)
}

func (b *Bot) cbCancel(ctx context.Context, req *router.Request) error {
	b.dlg.clear(req.FromID)
	return req.Edit(ctx, "Ввод отменён.", nil)
}

func (b *Bot) onJoinRequest(ctx context.Context, jr kit.JoinRequest) error {
	out, err := b.channel.OnJoinRequest(ctx, channel.JoinRequest{UserID: jr.FromID, Username: jr.FromUsername})
	if err != nil {
		return err
	}
	if out == channel.JoinNeedName {
		b.dlg.set(jr.FromID, session{Flow: flowJoin})
	}
	return nil
}

func isDone(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "готово", "done":
		return true
	}
	return false
}
