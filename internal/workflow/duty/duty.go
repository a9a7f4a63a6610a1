// Package duty keeps the duty roster and runs its two daily passes.
//
// The check pass marks today's entries as seen. The notify pass sends each
// assignee one reminder; notified_at is set only after a successful send and
// only if it was still empty, so repeated passes never double-notify.
package duty

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"staffbot/internal/apperr"
	"staffbot/internal/clock"
	"staffbot/internal/eventbus"
	"staffbot/internal/notifier"
	"staffbot/internal/storage"
	logx "staffbot/pkg/logx"
	"staffbot/pkg/tgui"
)

// InputLayout is the date format moderators type: "DD.MM.YYYY" (leading zeros optional).
const InputLayout = "2.1.2006"

const displayLayout = "02.01.2006"

type Deps struct {
	Store     storage.Store
	Messenger notifier.Messenger
	Admin     notifier.AdminNotifier
	Clock     clock.Clock
	Bus       eventbus.Bus
	Log       logx.Logger
	// Location decides what "today" is. Defaults to time.Local.
	Location *time.Location
}

type Scheduler struct {
	store storage.Store
	msg   notifier.Messenger
	admin notifier.AdminNotifier
	clk   clock.Clock
	bus   eventbus.Bus
	loc   *time.Location
	log   logx.Logger
}

func New(d Deps) *Scheduler {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return &Scheduler{
		store: d.Store,
		msg:   d.Messenger,
		admin: d.Admin,
		clk:   d.Clock,
		bus:   d.Bus,
		loc:   d.Location,
		log:   d.Log.With(logx.String("comp", "duty")),
	}
}

// Today is the current calendar day in storage form.
func (s *Scheduler) Today() string {
	return s.clk.Now().In(s.loc).Format(storage.DateLayout)
}

// AddResult lists what a batch inserted and which lines were refused.
type AddResult struct {
	Inserted []storage.DutyEntry
	Errors   []*apperr.ValidationError
}

// AddEntries parses "name: DD.MM.YYYY" lines. Bad lines are collected as
// ValidationErrors carrying their line number; the rest are inserted.
func (s *Scheduler) AddEntries(ctx context.Context, raw string, createdBy int64) (AddResult, error) {
	var (
		res     AddResult
		pending []storage.DutyEntry
		today   = s.Today()
		now     = s.clk.Now()
	)
	for i, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		e, verr := s.parseLine(ctx, i+1, line, today)
		if verr != nil {
			res.Errors = append(res.Errors, verr)
			continue
		}
		e.CreatedBy, e.CreatedAt = createdBy, now
		pending = append(pending, e)
	}
	if len(pending) == 0 {
		return res, nil
	}

	inserted, err := s.store.InsertDutyEntries(ctx, pending)
	if err != nil {
		return res, err
	}
	res.Inserted = inserted
	s.log.Info("duty entries added", logx.Int("inserted", len(inserted)), logx.Int("rejected", len(res.Errors)), logx.Int64("by", createdBy))
	s.audit(ctx, createdBy, "duty.add", strconv.Itoa(len(inserted)))

	for _, e := range inserted {
		if e.AssigneeUserID == 0 {
			continue
		}
		text := fmt.Sprintf("📅 Вы добавлены в график дежурств на %s.", FormatDate(e.Date))
		if err := s.msg.SendDirect(ctx, e.AssigneeUserID, text, nil); err != nil {
			s.log.Warn("duty confirmation failed", logx.Int64("user_id", e.AssigneeUserID), logx.Err(err))
		}
	}
	return res, nil
}

func lineErr(line int, field, msg string) *apperr.ValidationError {
	return &apperr.ValidationError{Field: field, Line: line, Msg: msg}
}

func (s *Scheduler) parseLine(ctx context.Context, n int, line, today string) (storage.DutyEntry, *apperr.ValidationError) {
	name, date, ok := strings.Cut(line, ":")
	if !ok {
		return storage.DutyEntry{}, lineErr(n, "line", "отсутствует двоеточие (формат: Имя Фамилия: ДД.ММ.ГГГГ)")
	}
	name = strings.Join(strings.Fields(name), " ")
	date = strings.TrimSpace(date)
	if name == "" {
		return storage.DutyEntry{}, lineErr(n, "name", "не указано имя")
	}
	if date == "" {
		return storage.DutyEntry{}, lineErr(n, "date", "не указана дата")
	}
	d, err := time.ParseInLocation(InputLayout, date, s.loc)
	if err != nil {
		return storage.DutyEntry{}, lineErr(n, "date", fmt.Sprintf("неверная дата %q", date))
	}
	day := d.Format(storage.DateLayout)
	if day < today {
		return storage.DutyEntry{}, lineErr(n, "date", "дата в прошлом")
	}
	u, err := s.store.FindUserByName(ctx, name)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("assignee lookup failed", logx.String("name", name), logx.Err(err))
		}
		return storage.DutyEntry{}, lineErr(n, "name", fmt.Sprintf("пользователь %q не найден", name))
	}
	return storage.DutyEntry{AssigneeName: u.Name, Date: day, AssigneeUserID: u.ID}, nil
}

// Report summarizes one pass.
// Scheduled pass names.
const (
	JobCheck  = "duty.check"
	JobNotify = "duty.notify"
)

type Report struct {
	Date       string
	Total      int
	Done       int
	Unresolved int
	Failed     int
}

// CheckPhase marks today's unchecked entries. It has no other side effects.
func (s *Scheduler) CheckPhase(ctx context.Context) (Report, error) {
	started := s.clk.Now()
	rep := Report{Date: s.Today()}
	entries, err := s.store.ListDutyUnchecked(ctx, rep.Date)
	if err != nil {
		return rep, err
	}
	rep.Total = len(entries)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		won, err := s.store.MarkDutyChecked(ctx, e.ID, s.clk.Now())
		if err != nil {
			return rep, err
		}
		if won {
			rep.Done++
		}
	}
	s.log.Info("duty check pass", logx.String("date", rep.Date), logx.Int("total", rep.Total), logx.Int("checked", rep.Done))
	s.publish(eventbus.DutyChecked, rep, started)
	return rep, nil
}

// NotifyPhase reminds today's assignees. An unknown assignee or a failed
// send does not stop the pass; both are reported to the admin.
func (s *Scheduler) NotifyPhase(ctx context.Context) (Report, error) {
	started := s.clk.Now()
	rep := Report{Date: s.Today()}
	entries, err := s.store.ListDutyUnnotified(ctx, rep.Date)
	if err != nil {
		return rep, err
	}
	rep.Total = len(entries)
	var problems []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		u, err := s.resolve(ctx, e)
		if err != nil {
			rep.Unresolved++
			s.log.Warn("duty assignee not found", logx.Int64("entry_id", e.ID), logx.String("name", e.AssigneeName), logx.Err(err))
			problems = append(problems, fmt.Sprintf("• %s: не найден", e.AssigneeName))
			continue
		}
		text := fmt.Sprintf("🔔 Напоминание: сегодня (%s) ваше дежурство.", FormatDate(e.Date))
		if err := s.msg.SendDirect(ctx, u.ID, text, nil); err != nil {
			rep.Failed++
			s.log.Warn("duty reminder failed", logx.Int64("entry_id", e.ID), logx.Int64("user_id", u.ID), logx.Err(err))
			problems = append(problems, fmt.Sprintf("• %s: не доставлено", e.AssigneeName))
			continue
		}
		won, err := s.store.MarkDutyNotified(ctx, e.ID, s.clk.Now())
		if err != nil {
			return rep, err
		}
		if won {
			rep.Done++
		}
	}
	s.log.Info("duty notify pass", logx.String("date", rep.Date), logx.Int("total", rep.Total),
		logx.Int("notified", rep.Done), logx.Int("unresolved", rep.Unresolved), logx.Int("failed", rep.Failed))
	s.publish(eventbus.DutyNotified, rep, started)

	if len(problems) > 0 && s.admin != nil {
		text := fmt.Sprintf("⚠️ Напоминания о дежурстве %s: отправлено %d из %d\n%s",
			FormatDate(rep.Date), rep.Done, rep.Total, strings.Join(problems, "\n"))
		if err := s.admin.NotifyAdmin(ctx, tgui.Esc(text).String(), nil); err != nil {
			s.log.Warn("duty summary failed", logx.Err(err))
		}
	}
	return rep, nil
}

func (s *Scheduler) resolve(ctx context.Context, e storage.DutyEntry) (storage.User, error) {
	if e.AssigneeUserID != 0 {
		u, err := s.store.GetUser(ctx, e.AssigneeUserID)
		if err == nil && u.Status == storage.UserAuthorized {
			return u, nil
		}
	}
	u, err := s.store.FindUserByName(ctx, e.AssigneeName)
	if errors.Is(err, storage.ErrNotFound) {
		return u, apperr.NotFound("user", e.AssigneeName)
	}
	return u, err
}

// Clear removes every entry.
func (s *Scheduler) Clear(ctx context.Context, adminID int64) (int64, error) {
	n, err := s.store.ClearDuty(ctx)
	if err != nil {
		return 0, err
	}
	s.log.Info("duty cleared", logx.Int64("removed", n), logx.Int64("by", adminID))
	s.audit(ctx, adminID, "duty.clear", strconv.FormatInt(n, 10))
	return n, nil
}

// ListFor returns the user's entries from today on.
func (s *Scheduler) ListFor(ctx context.Context, userID int64) ([]storage.DutyEntry, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("user", strconv.FormatInt(userID, 10))
	}
	if err != nil {
		return nil, err
	}
	return s.store.ListDutyForName(ctx, u.Name, s.Today())
}

func (s *Scheduler) ListUpcoming(ctx context.Context) ([]storage.DutyEntry, error) {
	return s.store.ListDutyFrom(ctx, s.Today())
}

func (s *Scheduler) audit(ctx context.Context, adminID int64, action, detail string) {
	err := s.store.AppendAdminLog(ctx, storage.AdminLog{AdminID: adminID, Action: action, Detail: detail, At: s.clk.Now()})
	if err != nil {
		s.log.Warn("admin log append failed", logx.String("action", action), logx.Err(err))
	}
}

func (s *Scheduler) publish(typ string, rep Report, started time.Time) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: eventbus.Outcome{
		Result:   "ok",
		Count:    rep.Done,
		Duration: s.clk.Now().Sub(started),
	}})
}

// FormatDate renders a stored date as DD.MM.YYYY.
func FormatDate(date string) string {
	d, err := time.Parse(storage.DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format(displayLayout)
}
