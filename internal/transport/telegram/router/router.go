// Package router dispatches chat updates to command, callback, dialog and
// join-request handlers on a bounded worker pool.
package router

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"staffbot/internal/runtime/supervisor"
	kit "staffbot/internal/transport"
	logx "staffbot/pkg/logx"
	"staffbot/pkg/tgui"
)

type HandlerFunc func(ctx context.Context, req *Request) error

// JoinHandlerFunc handles a channel join request.
type JoinHandlerFunc func(ctx context.Context, jr kit.JoinRequest) error

type Command struct {
	// Name is the command without the slash, e.g. "duty_add".
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Level
	Timeout     time.Duration
	Handle      HandlerFunc
}

// CallbackRoute handles inline buttons whose data is "scope:action[:args]".
type CallbackRoute struct {
	Scope   string
	Action  string
	Access  Level
	Timeout time.Duration
	Handle  HandlerFunc
}

type Request struct {
	Update   kit.Update
	Chat     kit.ChatTarget
	FromID   int64
	Username string
	Command  string
	Args     []string
	// Text is the message text; for commands, everything after the command word.
	Text    string
	PhotoID string
	// Callback is set for button presses; Message points at the pressed message.
	Callback tgui.Callback
	Message  kit.MessageRef
	Level    Level
	ReqID    string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends HTML text to the request chat. markup may be nil.
func (r *Request) Reply(ctx context.Context, text string, markup any) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true, ReplyMarkupAdapter: markup})
	return err
}

// Edit replaces the text of the pressed message; it falls back to Reply
// for message requests.
func (r *Request) Edit(ctx context.Context, text string, markup any) error {
	if r.Message.MessageID == 0 {
		return r.Reply(ctx, text, markup)
	}
	return r.Adapter.EditText(ctx, r.Message, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true, ReplyMarkupAdapter: markup})
}

type Config struct {
	Workers   int
	QueueSize int
	// DefaultTimeout applies to handlers without their own Timeout.
	DefaultTimeout time.Duration
}

type Manager struct {
	mu        sync.RWMutex
	cmds      map[string]*Command
	ordered   []Command
	callbacks map[string]map[string]CallbackRoute
	fallback  HandlerFunc
	onJoin    JoinHandlerFunc

	cfg     Config
	roles   LevelResolver
	log     logx.Logger
	adapter kit.Adapter

	jobs chan func()
}

func NewManager(cfg Config, log logx.Logger, adapter kit.Adapter, roles LevelResolver) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	return &Manager{
		cmds:      map[string]*Command{},
		callbacks: map[string]map[string]CallbackRoute{},
		cfg:       cfg,
		roles:     roles,
		log:       log.With(logx.String("comp", "router")),
		adapter:   adapter,
		jobs:      make(chan func(), cfg.QueueSize),
	}
}

// SetRegistry replaces the command and callback tables. /help is always added.
func (m *Manager) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	cmds = append(cmds, Command{
		Name:        "help",
		Description: "список команд",
		Access:      LevelGuest,
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText(req.Level), nil)
		},
	})

	byName := map[string]*Command{}
	ordered := make([]Command, 0, len(cmds))
	for i := range cmds {
		c := cmds[i]
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		ordered = append(ordered, c)
		cp := c
		byName[name] = &cp
		for _, a := range c.Aliases {
			if a = sanitizeTelegramCommand(a); a != "" {
				if _, exists := byName[a]; !exists {
					byName[a] = &cp
				}
			}
		}
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, r := range cbs {
		s, a := strings.TrimSpace(r.Scope), strings.TrimSpace(r.Action)
		if s == "" || a == "" || r.Handle == nil {
			continue
		}
		if cb[s] == nil {
			cb[s] = map[string]CallbackRoute{}
		}
		cb[s][a] = r
	}

	m.mu.Lock()
	m.cmds, m.ordered, m.callbacks = byName, ordered, cb
	m.mu.Unlock()
}

// SetFallback handles private non-command messages (dialog steps, photos).
func (m *Manager) SetFallback(h HandlerFunc) {
	m.mu.Lock()
	m.fallback = h
	m.mu.Unlock()
}

func (m *Manager) SetJoinHandler(h JoinHandlerFunc) {
	m.mu.Lock()
	m.onJoin = h
	m.mu.Unlock()
}

// UpdateMenu pushes the command list to the platform menu when supported.
func (m *Manager) UpdateMenu(ctx context.Context) error {
	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	m.mu.RLock()
	menu := buildMenu(m.ordered)
	m.mu.RUnlock()
	return up.UpdateMenuCommands(ctx, menu)
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (m *Manager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(m.log),
		supervisor.WithCancelOnError(false),
	)
	m.log.Info("dispatcher started", logx.Int("workers", m.cfg.Workers), logx.Int("queue_cap", cap(m.jobs)))

	for i := 0; i < m.cfg.Workers; i++ {
		idx := i
		sup.GoRestart("router.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-m.jobs:
					m.runJob(idx, job)
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithStopOnCleanExit(true),
		)
	}
	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		m.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, up)
		}
	}
}

func (m *Manager) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in router job", logx.Int("worker", worker), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	if job != nil {
		job()
	}
}

func (m *Manager) enqueue(fn func()) bool {
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

func (m *Manager) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(ctx, up)
	case kit.UpdateCallback:
		m.routeCallback(ctx, up)
	case kit.UpdateJoinRequest:
		m.routeJoin(ctx, up)
	}
}

func (m *Manager) level(ctx context.Context, userID int64) Level {
	if m.roles == nil {
		return LevelGuest
	}
	lvl, err := m.roles.Level(ctx, userID)
	if err != nil {
		m.log.Warn("role lookup failed", logx.Int64("user_id", userID), logx.Err(err))
		return LevelGuest
	}
	return lvl
}

func (m *Manager) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil || msg.IsGroup {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	req := &Request{
		Update:   up,
		Chat:     chat,
		FromID:   msg.FromID,
		Username: msg.FromUsername,
		Text:     strings.TrimSpace(msg.Text),
		PhotoID:  msg.PhotoID,
		Message:  kit.MessageRef{},
		Adapter:  m.adapter,
	}

	word, rest, isCmd := splitCommand(req.Text)
	if !isCmd {
		m.mu.RLock()
		fb := m.fallback
		m.mu.RUnlock()
		if fb == nil {
			return
		}
		req.Level = m.level(ctx, msg.FromID)
		m.dispatch(ctx, req, "dialog", 0, fb)
		return
	}

	m.mu.RLock()
	cmd, ok := m.cmds[word]
	m.mu.RUnlock()
	if !ok {
		_ = req.Reply(ctx, "Неизвестная команда. Список команд: /help", nil)
		return
	}
	req.Level = m.level(ctx, msg.FromID)
	if req.Level < cmd.Access {
		_ = req.Reply(ctx, deniedText(cmd.Access), nil)
		return
	}
	req.Command = cmd.Name
	req.Text = rest
	req.Args = tokenize(rest)
	m.dispatch(ctx, req, "/"+cmd.Name, cmd.Timeout, cmd.Handle)
}

func (m *Manager) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	data, ok := tgui.ParseData(cb.Data)
	if !ok {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	m.mu.RLock()
	route, ok := m.callbacks[data.Scope][data.Action]
	m.mu.RUnlock()
	if !ok {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "Кнопка устарела")
		return
	}
	lvl := m.level(ctx, cb.FromID)
	if lvl < route.Access {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "Недостаточно прав")
		return
	}
	req := &Request{
		Update:   up,
		Chat:     kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:   cb.FromID,
		Username: cb.FromUsername,
		Command:  "cb:" + data.Scope + ":" + data.Action,
		Callback: data,
		Message:  kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID},
		Level:    lvl,
		Adapter:  m.adapter,
	}
	h := route.Handle
	m.dispatchThen(ctx, req, req.Command, route.Timeout, h, func() {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
	})
}

func (m *Manager) routeJoin(ctx context.Context, up kit.Update) {
	jr := up.JoinRequest
	if jr == nil {
		return
	}
	m.mu.RLock()
	h := m.onJoin
	m.mu.RUnlock()
	if h == nil {
		return
	}
	log := m.log.With(logx.Int64("from_id", jr.FromID), logx.Int64("chat_id", jr.ChatID))
	if !m.enqueue(func() {
		cctx, cancel := context.WithTimeout(ctx, m.cfg.DefaultTimeout)
		defer cancel()
		if err := h(cctx, *jr); err != nil {
			log.Warn("join request failed", logx.Err(err))
		}
	}) {
		log.Warn("join request dropped: queue full")
	}
}

func (m *Manager) dispatch(ctx context.Context, req *Request, name string, timeout time.Duration, h HandlerFunc) {
	m.dispatchThen(ctx, req, name, timeout, h, nil)
}

func (m *Manager) dispatchThen(ctx context.Context, req *Request, name string, timeout time.Duration, h HandlerFunc, after func()) {
	if timeout <= 0 {
		timeout = m.cfg.DefaultTimeout
	}
	req.ReqID = newReqID()
	req.Logger = m.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("from_id", req.FromID),
		logx.String("cmd", name),
	)
	final := Chain(h,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWErrorReply(),
		MWTimeout(timeout),
	)
	ok := m.enqueue(func() {
		_ = final(ctx, req)
		if after != nil {
			after()
		}
	})
	if !ok {
		m.log.Warn("router queue full", logx.String("cmd", name))
		if req.Callback.Scope != "" {
			_ = m.adapter.AnswerCallback(ctx, req.Update.Callback.ID, "Бот занят, попробуйте ещё раз")
			return
		}
		_ = req.Reply(ctx, "Бот занят, попробуйте ещё раз через минуту.", nil)
	}
}
