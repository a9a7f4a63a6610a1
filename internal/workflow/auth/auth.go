// Package auth runs the bot access lifecycle:
// Unregistered -> Pending -> Authorized, or back to Unregistered on decline.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"staffbot/internal/apperr"
	"staffbot/internal/clock"
	"staffbot/internal/eventbus"
	"staffbot/internal/notifier"
	"staffbot/internal/roster"
	"staffbot/internal/storage"
	"staffbot/internal/workflow/fsm"
	logx "staffbot/pkg/logx"
	"staffbot/pkg/tgui"
)

type State string

const (
	Unregistered State = "unregistered"
	Pending      State = "pending"
	Authorized   State = "authorized"
	Declined     State = "declined"
)

type Action string

const (
	ActSubmit      Action = "submit"
	ActAutoApprove Action = "auto_approve"
	ActApprove     Action = "approve"
	ActDecline     Action = "decline"
)

// Declined is not stored: the request row is removed and the person may
// submit again.
var transitions = fsm.Table[State, Action]{
	Unregistered: {ActSubmit: Pending},
	Declined:     {ActSubmit: Pending},
	Pending:      {ActAutoApprove: Authorized, ActApprove: Authorized, ActDecline: Declined},
}

// Callback scope and actions used on admin buttons.
const (
	CallbackScope   = "auth"
	CallbackApprove = "approve"
	CallbackDecline = "decline"
)

const (
	minNameLen     = 3
	minPositionLen = 2
)

type Deps struct {
	Store     storage.Store
	Roster    roster.Provider
	Messenger notifier.Messenger
	Admin     notifier.AdminNotifier
	Clock     clock.Clock
	Bus       eventbus.Bus
	Log       logx.Logger
}

type Workflow struct {
	store  storage.Store
	roster roster.Provider
	msg    notifier.Messenger
	admin  notifier.AdminNotifier
	clk    clock.Clock
	bus    eventbus.Bus
	log    logx.Logger
}

func New(d Deps) *Workflow {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return &Workflow{
		store:  d.Store,
		roster: d.Roster,
		msg:    d.Messenger,
		admin:  d.Admin,
		clk:    d.Clock,
		bus:    d.Bus,
		log:    d.Log.With(logx.String("comp", "auth")),
	}
}

type Submission struct {
	UserID   int64
	Username string
	Name     string
	Position string
}

type SubmitResult struct {
	State        State
	AutoApproved bool
}

// ValidateName checks a full name: letters, spaces, hyphens and dots for
// initials, at least three characters.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < minNameLen {
		return apperr.Validation("name", "ФИО должно содержать минимум 3 символа.")
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !strings.ContainsRune(" -.", r) {
			return apperr.Validation("name", "ФИО может содержать только буквы, пробелы, дефисы и точки.")
		}
	}
	return nil
}

func ValidatePosition(pos string) error {
	if utf8.RuneCountInString(strings.TrimSpace(pos)) < minPositionLen {
		return apperr.Validation("position", "Должность должна содержать минимум 2 символа.")
	}
	return nil
}

// StateOf derives the lifecycle state from stored rows.
func (w *Workflow) StateOf(ctx context.Context, userID int64) (State, error) {
	u, err := w.store.GetUser(ctx, userID)
	switch {
	case err == nil && u.Status == storage.UserAuthorized:
		return Authorized, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return "", err
	}
	if _, err := w.store.GetAuthRequest(ctx, userID); err == nil {
		return Pending, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}
	return Unregistered, nil
}

// Submit records a request. People on the roster are authorized at once;
// everyone else waits for the admin.
func (w *Workflow) Submit(ctx context.Context, s Submission) (SubmitResult, error) {
	s.Name = strings.Join(strings.Fields(s.Name), " ")
	s.Position = strings.TrimSpace(s.Position)
	if err := ValidateName(s.Name); err != nil {
		return SubmitResult{}, err
	}
	if err := ValidatePosition(s.Position); err != nil {
		return SubmitResult{}, err
	}

	cur, err := w.StateOf(ctx, s.UserID)
	if err != nil {
		return SubmitResult{}, err
	}
	if _, ok := transitions.Next(cur, ActSubmit); !ok {
		return SubmitResult{State: cur}, apperr.Conflict("auth request", idKey(s.UserID), string(cur))
	}
	if err := w.checkCollision(ctx, s); err != nil {
		return SubmitResult{}, err
	}

	req := storage.AuthRequest{
		UserID:      s.UserID,
		Username:    s.Username,
		Name:        s.Name,
		Position:    s.Position,
		SubmittedAt: w.clk.Now(),
	}
	if err := w.store.CreateAuthRequest(ctx, req); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return SubmitResult{State: Pending}, apperr.Conflict("auth request", idKey(s.UserID), string(Pending))
		}
		return SubmitResult{}, err
	}
	w.publish(eventbus.AuthRequested, s.UserID, "")

	if w.onRoster(ctx, s.Name) {
		u, ok, err := w.store.ApproveAuthRequest(ctx, s.UserID, storage.RoleUser, w.clk.Now())
		if err != nil {
			return SubmitResult{State: Pending}, err
		}
		if ok {
			w.log.Info("auth auto-approved", logx.Int64("user_id", s.UserID))
			w.publish(eventbus.AuthApproved, s.UserID, "auto")
			w.tell(ctx, s.UserID, approvedText(u))
			w.tellAdmin(ctx, fmt.Sprintf("ℹ️ %s (%s) авторизован автоматически: найден в списке сотрудников.",
				tgui.Mention(u.Name, u.ID), tgui.Esc(u.Position)), nil)
			return SubmitResult{State: Authorized, AutoApproved: true}, nil
		}
	}

	w.tellAdmin(ctx, requestText(req), ReviewMarkup(s.UserID))
	w.tell(ctx, s.UserID, "✅ Заявка отправлена администратору. Вы получите уведомление после рассмотрения.")
	return SubmitResult{State: Pending}, nil
}

// checkCollision refuses a name already held by another authorized user or
// channel subscriber and flags the attempt to the admin.
func (w *Workflow) checkCollision(ctx context.Context, s Submission) error {
	holder := int64(0)
	if u, err := w.store.FindUserByName(ctx, s.Name); err == nil && u.ID != s.UserID {
		holder = u.ID
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if holder == 0 {
		if sub, err := w.store.FindSubscriberByName(ctx, s.Name); err == nil && sub.UserID != s.UserID {
			holder = sub.UserID
		} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	if holder == 0 {
		return nil
	}
	w.log.Warn("auth name collision", logx.Int64("user_id", s.UserID), logx.Int64("holder_id", holder))
	w.tellAdmin(ctx, fmt.Sprintf("⚠️ Попытка авторизации под уже занятым ФИО %s.\nЗаявитель: %s, владелец: %s.",
		tgui.B(s.Name), tgui.Mention(displayUser(s.Username, s.UserID), s.UserID), tgui.Code(idKey(holder))), nil)
	return apperr.Conflict("name", s.Name, "taken")
}

// onRoster is false when the roster cannot be read: the request then goes
// to manual review.
func (w *Workflow) onRoster(ctx context.Context, name string) bool {
	if w.roster == nil {
		return false
	}
	set, err := w.roster.CurrentNames(ctx)
	if err != nil {
		w.log.Warn("roster unavailable, falling back to manual review", logx.Err(err))
		return false
	}
	return set.Has(name)
}

// Approve authorizes a pending request with role user. A request that is
// gone reports StateConflict.
func (w *Workflow) Approve(ctx context.Context, userID, adminID int64) (storage.User, error) {
	if err := w.allow(ctx, userID, ActApprove); err != nil {
		return storage.User{}, err
	}
	u, ok, err := w.store.ApproveAuthRequest(ctx, userID, storage.RoleUser, w.clk.Now())
	if err != nil {
		return storage.User{}, err
	}
	if !ok {
		return storage.User{}, apperr.Conflict("auth request", idKey(userID), "processed")
	}
	w.log.Info("auth approved", logx.Int64("user_id", userID), logx.Int64("admin_id", adminID))
	w.audit(ctx, adminID, "auth.approve", userID, u.Name)
	w.publish(eventbus.AuthApproved, userID, "manual")
	w.tell(ctx, userID, approvedText(u))
	return u, nil
}

// Decline consumes a pending request. Repeating it reports StateConflict and
// changes nothing.
func (w *Workflow) Decline(ctx context.Context, userID, adminID int64) error {
	if err := w.allow(ctx, userID, ActDecline); err != nil {
		return err
	}
	req, err := w.store.GetAuthRequest(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.Conflict("auth request", idKey(userID), "processed")
	}
	if err != nil {
		return err
	}
	deleted, err := w.store.DeleteAuthRequest(ctx, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.Conflict("auth request", idKey(userID), "processed")
	}
	w.log.Info("auth declined", logx.Int64("user_id", userID), logx.Int64("admin_id", adminID))
	w.audit(ctx, adminID, "auth.decline", userID, req.Name)
	w.publish(eventbus.AuthDeclined, userID, "")
	w.tell(ctx, userID, "❌ Ваша заявка на доступ отклонена. Если это ошибка, обратитесь к администратору.")
	return nil
}

// allow reports StateConflict when act is not valid in the user's current
// state. The store update that follows is still conditional, so a racing
// reviewer loses there.
func (w *Workflow) allow(ctx context.Context, userID int64, act Action) error {
	cur, err := w.StateOf(ctx, userID)
	if err != nil {
		return err
	}
	if _, ok := transitions.Next(cur, act); !ok {
		return apperr.Conflict("auth request", idKey(userID), "processed")
	}
	return nil
}

func (w *Workflow) Pending(ctx context.Context) ([]storage.AuthRequest, error) {
	return w.store.ListAuthRequests(ctx)
}

// SetRole changes the role of an existing user.
func (w *Workflow) SetRole(ctx context.Context, adminID, userID int64, role storage.Role) error {
	if !role.Valid() {
		return apperr.Validation("role", "Роль должна быть одной из: user, moderator, marketer, admin.")
	}
	if err := w.store.SetUserRole(ctx, userID, role); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("user", idKey(userID))
		}
		return err
	}
	w.audit(ctx, adminID, "user.role", userID, string(role))
	w.tell(ctx, userID, fmt.Sprintf("ℹ️ Ваша роль изменена: %s.", tgui.B(string(role))))
	return nil
}

// RemoveUser deletes the user and any pending request, then tells them.
// The channel subscription is dropped by the caller.
func (w *Workflow) RemoveUser(ctx context.Context, adminID, userID int64) error {
	removed, err := w.store.DeleteUser(ctx, userID)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.NotFound("user", idKey(userID))
	}
	w.audit(ctx, adminID, "user.remove", userID, "")
	w.tell(ctx, userID, "⛔️ Ваш доступ к боту отозван администратором.")
	return nil
}

func (w *Workflow) tell(ctx context.Context, userID int64, text string) {
	if err := w.msg.SendDirect(ctx, userID, text, nil); err != nil {
		w.log.Warn("user notification failed", logx.Int64("user_id", userID), logx.Err(err))
	}
}

func (w *Workflow) tellAdmin(ctx context.Context, text string, markup any) {
	if w.admin == nil {
		return
	}
	if err := w.admin.NotifyAdmin(ctx, text, markup); err != nil {
		w.log.Warn("admin notification failed", logx.Err(err))
	}
}

func (w *Workflow) audit(ctx context.Context, adminID int64, action string, target int64, detail string) {
	err := w.store.AppendAdminLog(ctx, storage.AdminLog{
		AdminID: adminID, Action: action, TargetUserID: target, Detail: detail, At: w.clk.Now(),
	})
	if err != nil {
		w.log.Warn("admin log append failed", logx.String("action", action), logx.Err(err))
	}
}

func (w *Workflow) publish(typ string, userID int64, result string) {
	if w.bus != nil {
		w.bus.Publish(eventbus.Event{Type: typ, Data: eventbus.Outcome{UserID: userID, Result: result}})
	}
}

// ReviewMarkup is the approve/decline keyboard attached to admin notices.
func ReviewMarkup(userID int64) any {
	id := idKey(userID)
	return tgui.NewInline().Row(
		tgui.Btn("✅ Одобрить", tgui.Data(CallbackScope, CallbackApprove, id)),
		tgui.Btn("❌ Отклонить", tgui.Data(CallbackScope, CallbackDecline, id)),
	).Markup()
}

func requestText(r storage.AuthRequest) string {
	return tgui.JoinH("\n",
		tgui.B("🆕 Новая заявка на доступ"),
		tgui.Raw("ФИО: "+tgui.Esc(r.Name).String()),
		tgui.Raw("Должность: "+tgui.Esc(r.Position).String()),
		tgui.Raw("Пользователь: "+tgui.Mention(displayUser(r.Username, r.UserID), r.UserID).String()),
		tgui.Raw("ID: "+tgui.Code(idKey(r.UserID)).String()),
	).String()
}

func approvedText(u storage.User) string {
	return fmt.Sprintf("✅ %s, доступ к боту открыт.\nДоступные команды: /help", tgui.Esc(u.Name))
}

func displayUser(username string, id int64) string {
	if username != "" {
		return "@" + username
	}
	return idKey(id)
}

func idKey(id int64) string { return strconv.FormatInt(id, 10) }
