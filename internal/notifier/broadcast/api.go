package broadcast

import (
	"context"

	"github.com/google/uuid"

	logx "staffbot/pkg/logx"
)

// Submit queues j and returns its id. It never blocks: a full queue or a
// stopped service is reported at once.
func (s *Service) Submit(j Job) (string, error) {
	if !s.running() {
		return "", ErrNotRunning
	}
	now := s.clk.Now()
	id := "bc-" + uuid.NewString()
	s.statusMu.Lock()
	s.pruneLocked()
	s.status[id] = &JobStatus{ID: id, Name: j.Name, Total: len(j.Targets), CreatedAt: now}
	s.done[id] = make(chan struct{})
	s.statusMu.Unlock()

	select {
	case s.queue <- queued{id: id, job: j}:
		s.log.Debug("broadcast job enqueued", logx.String("job", id), logx.String("name", j.Name), logx.Int("total", len(j.Targets)))
		return id, nil
	default:
		s.log.Warn("broadcast queue full; dropping job", logx.String("job", id), logx.String("name", j.Name), logx.Int("queue_cap", cap(s.queue)))
		s.statusMu.Lock()
		delete(s.status, id)
		delete(s.done, id)
		s.statusMu.Unlock()
		return "", ErrQueueFull
	}
}

func (s *Service) Status(id string) (JobStatus, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st, ok := s.status[id]
	if !ok {
		return JobStatus{}, false
	}
	cp := *st
	cp.Failures = append([]int64(nil), st.Failures...)
	return cp, true
}

// Wait blocks until job id finishes or ctx ends.
func (s *Service) Wait(ctx context.Context, id string) (JobStatus, error) {
	s.statusMu.RLock()
	ch, ok := s.done[id]
	s.statusMu.RUnlock()
	if !ok {
		st, _ := s.Status(id)
		return st, nil
	}
	select {
	case <-ch:
		st, _ := s.Status(id)
		return st, nil
	case <-ctx.Done():
		return JobStatus{}, ctx.Err()
	}
}

// pruneLocked drops the oldest finished statuses past statusMax.
func (s *Service) pruneLocked() {
	for len(s.status) >= s.statusMax {
		var oldest *JobStatus
		for _, st := range s.status {
			if st.Finished() && (oldest == nil || st.CreatedAt.Before(oldest.CreatedAt)) {
				oldest = st
			}
		}
		if oldest == nil {
			return
		}
		delete(s.status, oldest.ID)
		delete(s.done, oldest.ID)
	}
}
