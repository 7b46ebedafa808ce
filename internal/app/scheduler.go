package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golekquiz-service/internal/domain"
)

// deadlineTimers keeps at most one pending timer per session. Timers are only a
// latency optimisation: the transitions they trigger are idempotent and the
// sweeper re-checks every open session anyway.
type deadlineTimers struct {
	clock  clockwork.Clock
	mu     sync.Mutex
	timers map[string]clockwork.Timer
}

func newDeadlineTimers(clock clockwork.Clock) *deadlineTimers {
	return &deadlineTimers{clock: clock, timers: make(map[string]clockwork.Timer)}
}

// schedule replaces any pending timer for the session with one firing at deadline.
func (t *deadlineTimers) schedule(sessionID string, deadline time.Time, fire func()) {
	delay := deadline.Sub(t.clock.Now())
	if delay < 0 {
		delay = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.timers[sessionID]; ok {
		existing.Stop()
	}
	var timer clockwork.Timer
	timer = t.clock.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.timers[sessionID] == timer {
			delete(t.timers, sessionID)
		}
		t.mu.Unlock()
		fire()
	})
	t.timers[sessionID] = timer
}

func (t *deadlineTimers) cancel(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[sessionID]; ok {
		timer.Stop()
		delete(t.timers, sessionID)
	}
}

func (t *deadlineTimers) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

func (t *deadlineTimers) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

func (s *SessionService) fireActivation(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timerTimeout)
	defer cancel()
	if _, err := s.ActivateIfDue(ctx, sessionID); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		log.Error().Err(err).Str("session_id", sessionID).Msg("countdown activation failed")
	}
}

func (s *SessionService) fireExpiry(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timerTimeout)
	defer cancel()
	if _, err := s.FinishIfExpired(ctx, sessionID); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("timed finish failed")
	}
}

// EnforceDeadlines activates every session whose countdown elapsed and finishes
// every session whose timer ran out. Safe to run from any number of callers.
func (s *SessionService) EnforceDeadlines(ctx context.Context) error {
	sessions, err := s.store.ListOpenSessions(ctx)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	var errs []error
	for _, session := range sessions {
		switch {
		case session.CountdownElapsed(now, s.countdown):
			if _, err := s.ActivateIfDue(ctx, session.ID); err != nil {
				errs = append(errs, err)
			}
		case session.Expired(now):
			if _, err := s.FinishIfExpired(ctx, session.ID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Resume re-arms deadline timers for open sessions, typically after a restart.
func (s *SessionService) Resume(ctx context.Context) error {
	sessions, err := s.store.ListOpenSessions(ctx)
	if err != nil {
		return err
	}
	for _, session := range sessions {
		id := session.ID
		switch {
		case session.Status == domain.StatusWaiting && session.CountdownStartedAt != nil:
			s.timers.schedule(id, session.CountdownStartedAt.Add(s.countdown), func() { s.fireActivation(id) })
		case session.Status == domain.StatusActive:
			if deadline, ok := session.Deadline(); ok {
				s.timers.schedule(id, deadline, func() { s.fireExpiry(id) })
			}
		}
	}
	log.Info().Int("sessions", len(sessions)).Msg("resumed open sessions")
	return nil
}

// RunSweeper calls EnforceDeadlines every interval until ctx is done.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := s.EnforceDeadlines(ctx); err != nil {
				log.Error().Err(err).Msg("deadline sweep failed")
			}
		}
	}
}
