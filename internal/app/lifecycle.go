package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golekquiz-service/internal/domain"
)

const maxPinAttempts = 20

// CreateSessionParams describes a new game hosted by HostID.
type CreateSessionParams struct {
	QuizID              string
	HostID              string
	Mode                domain.GameMode
	TotalTimeMinutes    int
	AllowJoinAfterStart bool
}

// CreateSession opens a waiting session under a fresh game pin.
func (s *SessionService) CreateSession(ctx context.Context, params CreateSessionParams) (domain.Session, error) {
	if params.Mode == "" {
		params.Mode = domain.ModeClassic
	}
	if !params.Mode.Valid() {
		return domain.Session{}, fmt.Errorf("unknown game mode %q", params.Mode)
	}
	if params.TotalTimeMinutes < 0 {
		return domain.Session{}, fmt.Errorf("total time must not be negative")
	}
	// Sessions cannot be hosted for unknown quizzes.
	if _, err := s.quizzes.GetQuiz(ctx, params.QuizID); err != nil {
		return domain.Session{}, err
	}

	session := domain.Session{
		ID:                  uuid.NewString(),
		QuizID:              params.QuizID,
		HostID:              params.HostID,
		Status:              domain.StatusWaiting,
		TotalTimeMinutes:    params.TotalTimeMinutes,
		GameMode:            params.Mode,
		AllowJoinAfterStart: params.AllowJoinAfterStart,
		CreatedAt:           s.clock.Now(),
	}
	for attempt := 0; attempt < maxPinAttempts; attempt++ {
		session.GamePin = s.newPin()
		err := s.store.CreateSession(ctx, session)
		if err == nil {
			log.Info().
				Str("session_id", session.ID).
				Str("quiz_id", session.QuizID).
				Str("mode", string(session.GameMode)).
				Msg("session created")
			s.publish(domain.EventSessionUpdated, session.ID, session)
			return session, nil
		}
		if !errors.Is(err, domain.ErrPinTaken) {
			return domain.Session{}, err
		}
	}
	return domain.Session{}, fmt.Errorf("allocate game pin: %w", domain.ErrPinTaken)
}

// FindByPin resolves an open session from its game pin.
func (s *SessionService) FindByPin(ctx context.Context, pin string) (domain.Session, error) {
	if !validPin(pin) {
		return domain.Session{}, domain.ErrInvalidPin
	}
	session, err := s.store.GetSessionByPin(ctx, pin)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.Session{}, domain.ErrInvalidPin
	}
	return session, err
}

// StartCountdown moves a waiting session into its countdown. Repeating the call
// while the countdown runs leaves the original start time untouched.
func (s *SessionService) StartCountdown(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.HostID != hostID {
		return domain.Session{}, domain.ErrNotHost
	}
	if session.Status != domain.StatusWaiting {
		return domain.Session{}, domain.ErrInvalidTransition
	}
	if session.CountdownStartedAt != nil {
		return session, nil
	}

	now := s.clock.Now()
	session.CountdownStartedAt = &now
	ok, err := s.store.UpdateSession(ctx, session, domain.StatusWaiting)
	if err != nil {
		return domain.Session{}, fmt.Errorf("start countdown: %w", err)
	}
	if !ok {
		return s.store.GetSession(ctx, sessionID)
	}

	log.Info().Str("session_id", sessionID).Dur("countdown", s.countdown).Msg("countdown started")
	s.publish(domain.EventSessionUpdated, sessionID, session)
	s.timers.schedule(sessionID, now.Add(s.countdown), func() { s.fireActivation(sessionID) })
	return session, nil
}

// Activate moves a waiting (or counting down) session to active. It is
// idempotent: the first caller sets StartedAt, later callers get the active
// session back unchanged.
func (s *SessionService) Activate(ctx context.Context, sessionID string) (domain.Session, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()
	return s.activateLocked(ctx, sessionID, false)
}

// ActivateIfDue activates only when the countdown has elapsed. Before that it
// returns the session unchanged, so any client timer may call it.
func (s *SessionService) ActivateIfDue(ctx context.Context, sessionID string) (domain.Session, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()
	return s.activateLocked(ctx, sessionID, true)
}

func (s *SessionService) activateLocked(ctx context.Context, sessionID string, onlyIfDue bool) (domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	switch session.Status {
	case domain.StatusActive:
		return session, nil
	case domain.StatusFinished:
		return domain.Session{}, domain.ErrInvalidTransition
	}
	now := s.clock.Now()
	if onlyIfDue && !session.CountdownElapsed(now, s.countdown) {
		return session, nil
	}

	session.Status = domain.StatusActive
	session.StartedAt = &now
	ok, err := s.store.UpdateSession(ctx, session, domain.StatusWaiting)
	if err != nil {
		return domain.Session{}, fmt.Errorf("activate session: %w", err)
	}
	if !ok {
		// Another instance won the transition.
		return s.store.GetSession(ctx, sessionID)
	}

	log.Info().Str("session_id", sessionID).Msg("session active")
	s.publish(domain.EventSessionUpdated, sessionID, session)
	if deadline, ok := session.Deadline(); ok {
		s.timers.schedule(sessionID, deadline, func() { s.fireExpiry(sessionID) })
	} else {
		s.timers.cancel(sessionID)
	}
	return session, nil
}

// EndSession is the host-initiated finish.
func (s *SessionService) EndSession(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.HostID != hostID {
		return domain.Session{}, domain.ErrNotHost
	}
	return s.Finish(ctx, sessionID)
}

// Finish ends an active session and finalizes every participant's score.
// Finishing a finished session is a no-op, except that an incomplete
// finalization is retried.
func (s *SessionService) Finish(ctx context.Context, sessionID string) (domain.Session, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()
	return s.finishLocked(ctx, sessionID, false)
}

// FinishIfExpired finishes only once the game timer ran out.
func (s *SessionService) FinishIfExpired(ctx context.Context, sessionID string) (domain.Session, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()
	return s.finishLocked(ctx, sessionID, true)
}

func (s *SessionService) finishLocked(ctx context.Context, sessionID string, onlyIfExpired bool) (domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	switch session.Status {
	case domain.StatusWaiting:
		if onlyIfExpired {
			return session, nil
		}
		return domain.Session{}, domain.ErrInvalidTransition
	case domain.StatusFinished:
		if session.FinalizedAt == nil {
			return s.finalizeLocked(ctx, session)
		}
		return session, nil
	}

	now := s.clock.Now()
	if onlyIfExpired && !session.Expired(now) {
		return session, nil
	}

	session.Status = domain.StatusFinished
	session.EndedAt = &now
	ok, err := s.store.UpdateSession(ctx, session, domain.StatusActive)
	if err != nil {
		return domain.Session{}, fmt.Errorf("finish session: %w", err)
	}
	if !ok {
		return s.store.GetSession(ctx, sessionID)
	}
	s.timers.cancel(sessionID)

	log.Info().Str("session_id", sessionID).Msg("session finished")
	s.publish(domain.EventSessionUpdated, sessionID, session)
	return s.finalizeLocked(ctx, session)
}

// AdvanceQuestion moves the host's question pointer forward while the game runs.
func (s *SessionService) AdvanceQuestion(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.HostID != hostID {
		return domain.Session{}, domain.ErrNotHost
	}
	if session.Status != domain.StatusActive {
		return domain.Session{}, domain.ErrInvalidTransition
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.CurrentQuestionIndex+1 >= len(quiz.Questions) {
		return session, nil
	}

	session.CurrentQuestionIndex++
	ok, err := s.store.UpdateSession(ctx, session, domain.StatusActive)
	if err != nil {
		return domain.Session{}, fmt.Errorf("advance question: %w", err)
	}
	if !ok {
		return s.store.GetSession(ctx, sessionID)
	}
	s.publish(domain.EventSessionUpdated, sessionID, session)
	return session, nil
}

// TimeLeft computes the remaining game time for a session.
func (s *SessionService) TimeLeft(ctx context.Context, sessionID string) (time.Duration, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return session.TimeLeft(s.clock.Now()), nil
}

// DeleteSession removes a session with its participants and responses.
func (s *SessionService) DeleteSession(ctx context.Context, sessionID, hostID string) error {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.HostID != hostID {
		return domain.ErrNotHost
	}
	s.timers.cancel(sessionID)
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	log.Info().Str("session_id", sessionID).Msg("session deleted")
	return nil
}

func validPin(pin string) bool {
	if len(pin) != 6 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
