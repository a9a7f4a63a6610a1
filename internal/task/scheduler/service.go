package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"staffbot/internal/clock"
	rtsup "staffbot/internal/runtime/supervisor"
	"staffbot/internal/task/engine"
	logx "staffbot/pkg/logx"
)

// Enqueuer is the task engine surface the scheduler needs.
type Enqueuer interface {
	Enqueue(t engine.Task) error
}

type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string
	sched   cron.Schedule
	timeout time.Duration
	job     Job
	state   *engine.RunState

	// guarded by Service.mu
	next time.Time
	prev time.Time
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Service struct {
	mu   sync.Mutex
	log  logx.Logger
	loc  *time.Location
	clk  clock.Clock
	eng  Enqueuer
	defs map[string]*scheduleDef
	sup  *rtsup.Supervisor
}

func New(loc *time.Location, clk clock.Clock, eng Enqueuer, log logx.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if clk == nil {
		clk = clock.Real()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:  log.With(logx.String("comp", "scheduler")),
		loc:  loc,
		clk:  clk,
		eng:  eng,
		defs: map[string]*scheduleDef{},
	}
}

// Add registers a schedule; a schedule with the same name is replaced on
// the next Start.
func (s *Service) Add(name, spec string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	sched, err := ParseSchedule(spec)
	if err != nil {
		return err
	}
	d := &scheduleDef{name: name, spec: spec, sched: sched, timeout: timeout, job: job, state: &engine.RunState{}}

	s.mu.Lock()
	s.defs[name] = d
	sup := s.sup
	s.mu.Unlock()

	if sup != nil {
		sup.Go0("schedule."+name, func(ctx context.Context) { s.loop(ctx, d) })
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", timeout))
	return nil
}

// Start launches one trigger loop per schedule.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.sup != nil {
		s.mu.Unlock()
		return
	}
	s.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log))
	sup := s.sup
	defs := make([]*scheduleDef, 0, len(s.defs))
	for _, d := range s.defs {
		defs = append(defs, d)
	}
	s.mu.Unlock()

	for _, d := range defs {
		d := d
		sup.Go0("schedule."+d.name, func(ctx context.Context) { s.loop(ctx, d) })
	}
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(defs)))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("scheduler stop", logx.Err(err))
	}
}

func (s *Service) loop(ctx context.Context, d *scheduleDef) {
	for {
		now := s.clk.Now().In(s.loc)
		next := d.sched.Next(now)
		if next.IsZero() {
			s.log.Warn("schedule has no next run", logx.String("name", d.name))
			return
		}
		s.mu.Lock()
		current := s.defs[d.name] == d
		d.next = next
		s.mu.Unlock()
		if !current {
			// replaced by a newer Add
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-s.clk.After(next.Sub(now)):
		}

		s.mu.Lock()
		current = s.defs[d.name] == d
		d.prev = next
		s.mu.Unlock()
		if !current {
			return
		}
		s.fire(d)
	}
}

func (s *Service) fire(d *scheduleDef) {
	err := s.eng.Enqueue(engine.Task{
		Name:    d.name,
		Timeout: d.timeout,
		Run:     d.job,
		State:   d.state,
	})
	switch {
	case err == nil:
		s.log.Debug("schedule fired", logx.String("name", d.name))
	case errors.Is(err, engine.ErrOverlapSkip):
		s.log.Info("schedule skipped: previous run in flight", logx.String("name", d.name))
	default:
		s.log.Warn("schedule enqueue failed", logx.String("name", d.name), logx.Err(err))
	}
}

// RunNow enqueues a registered schedule immediately (operator commands, CLI).
func (s *Service) RunNow(name string) error {
	s.mu.Lock()
	d := s.defs[name]
	s.mu.Unlock()
	if d == nil {
		return fmt.Errorf("unknown schedule %q", name)
	}
	return s.eng.Enqueue(engine.Task{Name: d.name, Timeout: d.timeout, Run: d.job, State: d.state})
}

func (s *Service) Schedules() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout, Next: d.next, Prev: d.prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
