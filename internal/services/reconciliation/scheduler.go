package reconciliation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"pix-reconciliation-backend/internal/services/matching"
)

// Runner runs one reconciliation of a session.
type Runner interface {
	RunReconciliation(ctx context.Context, sessionID string) (*matching.Result, error)
}

type sessionState struct {
	pending bool
}

// Scheduler turns ingestion events into reconciliation runs. A session has
// at most one run in flight and one queued behind it; triggers arriving
// while the run waits out the debounce are absorbed by it.
type Scheduler struct {
	runner   Runner
	debounce time.Duration
	logger   *zap.Logger
	ctx      context.Context

	mu       sync.Mutex
	sessions map[string]*sessionState
	closed   bool
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler whose runs stop being started once ctx
// is done.
func NewScheduler(ctx context.Context, runner Runner, debounce time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		debounce: debounce,
		logger:   logger.With(zap.String("component", "scheduler")),
		ctx:      ctx,
		sessions: map[string]*sessionState{},
	}
}

func (s *Scheduler) Trigger(sessionID string) {
	if sessionID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// wg.Add must not race with Wait
	if s.closed || s.ctx.Err() != nil {
		return
	}
	if st, ok := s.sessions[sessionID]; ok {
		st.pending = true
		return
	}
	s.sessions[sessionID] = &sessionState{}
	s.wg.Add(1)
	go s.loop(sessionID)
}

func (s *Scheduler) loop(sessionID string) {
	defer s.wg.Done()
	for {
		if !s.wait() {
			s.finish(sessionID)
			return
		}

		s.mu.Lock()
		s.sessions[sessionID].pending = false
		s.mu.Unlock()

		if _, err := s.runner.RunReconciliation(s.ctx, sessionID); err != nil {
			s.logger.Error("scheduled run failed", zap.String("session_id", sessionID), zap.Error(err))
		}

		s.mu.Lock()
		if !s.sessions[sessionID].pending {
			delete(s.sessions, sessionID)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

func (s *Scheduler) wait() bool {
	if s.debounce <= 0 {
		return s.ctx.Err() == nil
	}
	timer := time.NewTimer(s.debounce)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Scheduler) finish(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// Wait stops accepting triggers and blocks until every started run has
// returned.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}
