package broadcast

import (
	"context"
	"time"

	logx "staffbot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}) {
	for {
		// stop wins over queued work
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case q := <-s.queue:
			s.execJob(ctx, q)
		}
	}
}

func (s *Service) execJob(ctx context.Context, q queued) {
	start := time.Now()
	s.update(q.id, func(st *JobStatus) {
		st.StartedAt = s.clk.Now()
		st.Running = true
	})
	log := s.log.With(logx.String("job", q.id), logx.String("name", q.job.Name))
	log.Info("broadcast job started", logx.Int("total", len(q.job.Targets)))

	for _, to := range q.job.Targets {
		if err := s.sendOne(ctx, log, to, q.job.Text); err != nil {
			s.update(q.id, func(st *JobStatus) {
				st.Failed++
				st.Failures = append(st.Failures, to)
			})
			continue
		}
		s.update(q.id, func(st *JobStatus) { st.Sent++ })
	}
	s.update(q.id, func(st *JobStatus) {
		st.DoneAt = s.clk.Now()
		st.Running = false
	})

	st, _ := s.Status(q.id)
	fields := []logx.Field{
		logx.Int("total", st.Total),
		logx.Int("sent", st.Sent),
		logx.Int("failed", st.Failed),
		logx.Duration("dur", time.Since(start)),
	}
	if st.Failed > 0 {
		log.Warn("broadcast job finished with failures", fields...)
	} else {
		log.Info("broadcast job finished", fields...)
	}
	if q.job.Done != nil {
		q.job.Done(ctx, st)
	}

	s.statusMu.Lock()
	if ch, ok := s.done[q.id]; ok {
		close(ch)
		delete(s.done, q.id)
	}
	s.statusMu.Unlock()
}

func (s *Service) sendOne(ctx context.Context, log logx.Logger, to int64, text string) error {
	var last error
	for i := 0; i <= s.cfg.RetryMax; i++ {
		err := s.sender.SendDirect(ctx, to, text, nil)
		if err == nil {
			return nil
		}
		last = err
		if i == s.cfg.RetryMax || ctx.Err() != nil {
			break
		}
		delay := s.cfg.RetryDelay + time.Duration(i)*s.cfg.RetryDelay/2
		log.Debug("broadcast send retry scheduled", logx.Int64("user_id", to), logx.Int("attempt", i+2), logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			return ctx.Err()
		case <-tmr.C:
		}
	}
	log.Warn("broadcast send failed", logx.Int64("user_id", to), logx.Err(last))
	return last
}

func (s *Service) update(id string, fn func(st *JobStatus)) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if st := s.status[id]; st != nil {
		fn(st)
	}
}
