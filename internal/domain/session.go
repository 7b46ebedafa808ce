package domain

import "time"

// Phase is the observable session state, including the implicit countdown.
type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseCountdown Phase = "countdown"
	PhaseActive    Phase = "active"
	PhaseFinished  Phase = "finished"
)

// DefaultCountdown is how long the pre-game countdown lasts.
const DefaultCountdown = 5 * time.Second

// Phase derives the observable phase from the persisted status.
func (s Session) Phase() Phase {
	switch s.Status {
	case StatusActive:
		return PhaseActive
	case StatusFinished:
		return PhaseFinished
	}
	if s.CountdownStartedAt != nil {
		return PhaseCountdown
	}
	return PhaseWaiting
}

// Open reports whether the session still holds its game pin.
func (s Session) Open() bool {
	return s.Status != StatusFinished
}

// CountdownRemaining returns max(0, countdown - elapsed) while counting down.
func (s Session) CountdownRemaining(now time.Time, countdown time.Duration) time.Duration {
	if s.Status != StatusWaiting || s.CountdownStartedAt == nil {
		return 0
	}
	return clampZero(s.CountdownStartedAt.Add(countdown).Sub(now))
}

// CountdownElapsed reports whether an activation is due.
func (s Session) CountdownElapsed(now time.Time, countdown time.Duration) bool {
	return s.Status == StatusWaiting && s.CountdownStartedAt != nil &&
		!now.Before(s.CountdownStartedAt.Add(countdown))
}

// Deadline is the instant the game timer runs out. ok is false before activation
// or when the session has no time limit.
func (s Session) Deadline() (deadline time.Time, ok bool) {
	if s.StartedAt == nil || s.TotalTimeMinutes <= 0 {
		return time.Time{}, false
	}
	return s.StartedAt.Add(time.Duration(s.TotalTimeMinutes) * time.Minute), true
}

// TimeLeft is always computed, never stored, so clients never drift.
func (s Session) TimeLeft(now time.Time) time.Duration {
	if s.Status != StatusActive {
		return 0
	}
	deadline, ok := s.Deadline()
	if !ok {
		return 0
	}
	return clampZero(deadline.Sub(now))
}

// Expired reports whether an active session ran out of time.
func (s Session) Expired(now time.Time) bool {
	deadline, ok := s.Deadline()
	return s.Status == StatusActive && ok && !now.Before(deadline)
}

// CanJoin applies the join rules for the current status.
func (s Session) CanJoin() bool {
	switch s.Status {
	case StatusWaiting:
		return true
	case StatusActive:
		return s.AllowJoinAfterStart
	default:
		return false
	}
}

func clampZero(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
