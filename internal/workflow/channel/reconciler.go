// Package channel gates the news channel: join requests are admitted only
// for people on the roster, and a daily pass removes subscribers who left it.
package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"staffbot/internal/apperr"
	"staffbot/internal/clock"
	"staffbot/internal/eventbus"
	"staffbot/internal/names"
	"staffbot/internal/notifier"
	"staffbot/internal/roster"
	"staffbot/internal/storage"
	logx "staffbot/pkg/logx"
	"staffbot/pkg/tgui"
)

// ErrRosterEmpty aborts a pass whose roster came back empty while
// subscribers exist.
var ErrRosterEmpty = errors.New("roster is empty")

// ErrSyncRunning is returned when another pass holds the reconciler.
var ErrSyncRunning = errors.New("channel sync already running")

type Deps struct {
	Store     storage.Store
	Roster    roster.Provider
	Messenger notifier.Messenger
	Admin     notifier.AdminNotifier
	Clock     clock.Clock
	Bus       eventbus.Bus
	Log       logx.Logger
	// InviteLink is shown in status replies and removal notices.
	InviteLink string
}

type Reconciler struct {
	store  storage.Store
	roster roster.Provider
	msg    notifier.Messenger
	admin  notifier.AdminNotifier
	clk    clock.Clock
	bus    eventbus.Bus
	log    logx.Logger
	invite string

	// run serializes passes triggered by the schedule and by /sync_channel.
	run sync.Mutex

	mu       sync.Mutex
	lastGood int
}

func New(d Deps) *Reconciler {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return &Reconciler{
		store:  d.Store,
		roster: d.Roster,
		msg:    d.Messenger,
		admin:  d.Admin,
		clk:    d.Clock,
		bus:    d.Bus,
		log:    d.Log.With(logx.String("comp", "channel")),
		invite: strings.TrimSpace(d.InviteLink),
	}
}

// Report summarizes one reconciliation pass.
type Report struct {
	Allowed          int
	Current          int
	Removed          []storage.ChannelSubscriber
	PlatformFailures int
	NoticeFailures   int
	Duration         time.Duration
}

// Run is the scheduled pass.
func (r *Reconciler) Run(ctx context.Context) (Report, error) { return r.RunBy(ctx, 0) }

// RunBy reconciles subscribers against the roster. The pass is fail-closed:
// an unreadable roster, or an empty one after a non-empty snapshot, removes
// nobody and returns an ExternalServiceError. A pass already in flight makes
// RunBy return ErrSyncRunning at once.
func (r *Reconciler) RunBy(ctx context.Context, adminID int64) (Report, error) {
	if !r.run.TryLock() {
		return Report{}, ErrSyncRunning
	}
	defer r.run.Unlock()

	started := r.clk.Now()
	var rep Report

	allowed, err := r.allowed(ctx)
	if err != nil {
		r.log.Error("channel sync aborted", logx.Err(err))
		r.publish(eventbus.ChannelSynced, eventbus.Outcome{Result: "aborted"})
		r.tellAdmin(ctx, "⛔️ Синхронизация канала прервана: не удалось получить список сотрудников. Никто не удалён.")
		return rep, err
	}
	rep.Allowed = allowed.Len()

	current, err := r.store.ListSubscribers(ctx)
	if err != nil {
		return rep, err
	}
	rep.Current = len(current)
	if allowed.Len() == 0 && len(current) > 0 {
		r.log.Error("channel sync aborted: empty roster", logx.Int("subscribers", len(current)))
		r.publish(eventbus.ChannelSynced, eventbus.Outcome{Result: "aborted"})
		r.tellAdmin(ctx, "⛔️ Синхронизация канала прервана: список сотрудников пуст. Никто не удалён.")
		return rep, apperr.External("roster", ErrRosterEmpty)
	}

	for _, sub := range current {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if allowed.Has(sub.Name) {
			continue
		}
		gone, err := r.store.DeleteSubscriber(ctx, sub.UserID)
		if err != nil {
			return rep, err
		}
		if !gone {
			continue
		}
		rep.Removed = append(rep.Removed, sub)
		r.evict(ctx, sub, &rep)
	}
	rep.Duration = r.clk.Now().Sub(started)

	r.log.Info("channel sync done",
		logx.Int("allowed", rep.Allowed),
		logx.Int("current", rep.Current),
		logx.Int("removed", len(rep.Removed)),
		logx.Int("platform_failures", rep.PlatformFailures),
		logx.Duration("took", rep.Duration))
	r.publish(eventbus.ChannelSynced, eventbus.Outcome{Result: "ok", Count: rep.Current - len(rep.Removed), Duration: rep.Duration})
	r.audit(ctx, adminID, "channel.sync", fmt.Sprintf("removed=%d platform_failures=%d", len(rep.Removed), rep.PlatformFailures))
	r.tellAdmin(ctx, summaryText(rep))
	return rep, nil
}

func (r *Reconciler) allowed(ctx context.Context) (names.Set, error) {
	set, err := r.roster.CurrentNames(ctx)
	if err != nil {
		if !apperr.IsExternal(err) {
			err = apperr.External("roster", err)
		}
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if set.Len() == 0 && r.lastGood > 0 {
		return nil, apperr.External("roster", roster.ErrEmptySnapshot)
	}
	r.lastGood = set.Len()
	return set, nil
}

// evict removes the member on the platform and tells them. The store row is
// already gone; platform failures are counted, never rolled back.
func (r *Reconciler) evict(ctx context.Context, sub storage.ChannelSubscriber, rep *Report) {
	log := r.log.With(logx.Int64("user_id", sub.UserID), logx.String("name", sub.Name))
	if _, err := r.msg.RemoveFromChannel(ctx, sub.UserID); err != nil {
		rep.PlatformFailures++
		log.Warn("channel removal failed", logx.Err(err))
		r.publish(eventbus.ChannelRemoved, eventbus.Outcome{UserID: sub.UserID, Result: "error"})
	} else {
		log.Info("subscriber removed")
		r.publish(eventbus.ChannelRemoved, eventbus.Outcome{UserID: sub.UserID, Result: "ok"})
	}
	text := "Вы удалены из канала новостей, так как вас нет в списке сотрудников. Если это ошибка, обратитесь к администратору."
	if err := r.msg.SendDirect(ctx, sub.UserID, text, nil); err != nil {
		rep.NoticeFailures++
		log.Debug("removal notice failed", logx.Err(err))
	}
}

// Revoke drops the subscription of a user removed by an admin and takes them
// off the channel. gone is false when the user was not subscribed.
func (r *Reconciler) Revoke(ctx context.Context, userID int64) (gone bool, err error) {
	gone, err = r.store.DeleteSubscriber(ctx, userID)
	if err != nil || !gone {
		return gone, err
	}
	log := r.log.With(logx.Int64("user_id", userID))
	if _, err := r.msg.RemoveFromChannel(ctx, userID); err != nil {
		log.Warn("channel removal failed", logx.Err(err))
		r.publish(eventbus.ChannelRemoved, eventbus.Outcome{UserID: userID, Result: "error"})
		return true, nil
	}
	log.Info("subscription revoked")
	r.publish(eventbus.ChannelRemoved, eventbus.Outcome{UserID: userID, Result: "ok"})
	return true, nil
}

func summaryText(rep Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔄 Синхронизация канала\nВ списке сотрудников: %d\nПодписчиков было: %d\nУдалено: %d",
		rep.Allowed, rep.Current, len(rep.Removed))
	if rep.PlatformFailures > 0 {
		fmt.Fprintf(&b, "\nОшибок удаления в Telegram: %d", rep.PlatformFailures)
	}
	for _, s := range rep.Removed {
		fmt.Fprintf(&b, "\n• %s", s.Name)
	}
	return tgui.Esc(b.String()).String()
}

// InviteLink is the configured channel invite link, possibly empty.
func (r *Reconciler) InviteLink() string { return r.invite }

// StatusInfo is what /channel_status shows.
type StatusInfo struct {
	Subscribers int
	Roster      int
	RosterErr   error
	InviteLink  string
}

func (r *Reconciler) Status(ctx context.Context) (StatusInfo, error) {
	subs, err := r.store.ListSubscribers(ctx)
	if err != nil {
		return StatusInfo{}, err
	}
	st := StatusInfo{Subscribers: len(subs), InviteLink: r.invite}
	if set, err := r.roster.CurrentNames(ctx); err != nil {
		st.RosterErr = err
	} else {
		st.Roster = set.Len()
	}
	return st, nil
}

func (r *Reconciler) tellAdmin(ctx context.Context, text string) {
	if r.admin == nil {
		return
	}
	if err := r.admin.NotifyAdmin(ctx, text, nil); err != nil {
		r.log.Warn("admin notice failed", logx.Err(err))
	}
}

func (r *Reconciler) audit(ctx context.Context, adminID int64, action, detail string) {
	err := r.store.AppendAdminLog(ctx, storage.AdminLog{AdminID: adminID, Action: action, Detail: detail, At: r.clk.Now()})
	if err != nil {
		r.log.Warn("admin log append failed", logx.String("action", action), logx.Err(err))
	}
}

func (r *Reconciler) publish(typ string, out eventbus.Outcome) {
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: typ, Data: out})
	}
}
