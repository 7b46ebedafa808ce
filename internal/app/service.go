package app

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golekquiz-service/internal/domain"
	"golekquiz-service/internal/realtime"
)

// Options tunes the session coordinator. Zero values fall back to defaults.
type Options struct {
	Countdown time.Duration
	Scoring   ScoringPolicy
	Submarine SubmarineRules
	Clock     clockwork.Clock
	Presence  PresenceTracker
	// PinGenerator returns a candidate 6-digit game pin.
	PinGenerator func() string
	// FinalizeConcurrency bounds parallel score recomputation at session end.
	FinalizeConcurrency int
	FinalizeAttempts    int
	FinalizeBackoff     time.Duration
	// TimerTimeout bounds each deadline callback fired by the scheduler.
	TimerTimeout time.Duration
}

// SessionService coordinates the lifecycle, registry and ledger of game sessions.
type SessionService struct {
	store    Store
	quizzes  QuizRepository
	broker   Broker
	presence PresenceTracker
	clock    clockwork.Clock
	locks    *sessionLocks
	timers   *deadlineTimers
	conns    *connections

	countdown           time.Duration
	scoring             ScoringPolicy
	submarine           SubmarineRules
	newPin              func() string
	finalizeConcurrency int
	finalizeAttempts    int
	finalizeBackoff     time.Duration
	timerTimeout        time.Duration
}

// NewSessionService wires the coordinator. A nil broker falls back to an
// in-process hub.
func NewSessionService(store Store, quizzes QuizRepository, broker Broker, opts Options) *SessionService {
	s := &SessionService{
		store:               store,
		quizzes:             quizzes,
		broker:              broker,
		presence:            opts.Presence,
		clock:               opts.Clock,
		locks:               newSessionLocks(),
		conns:               newConnections(),
		countdown:           opts.Countdown,
		scoring:             opts.Scoring,
		submarine:           opts.Submarine,
		newPin:              opts.PinGenerator,
		finalizeConcurrency: opts.FinalizeConcurrency,
		finalizeAttempts:    opts.FinalizeAttempts,
		finalizeBackoff:     opts.FinalizeBackoff,
		timerTimeout:        opts.TimerTimeout,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.broker == nil {
		s.broker = realtime.NewHub()
	}
	if s.countdown <= 0 {
		s.countdown = domain.DefaultCountdown
	}
	if s.scoring == nil {
		s.scoring = FullPoints{}
	}
	if s.submarine == (SubmarineRules{}) {
		s.submarine = DefaultSubmarineRules()
	}
	if s.newPin == nil {
		s.newPin = randomPin
	}
	if s.finalizeConcurrency <= 0 {
		s.finalizeConcurrency = 8
	}
	if s.finalizeAttempts <= 0 {
		s.finalizeAttempts = 3
	}
	if s.finalizeBackoff <= 0 {
		s.finalizeBackoff = 200 * time.Millisecond
	}
	if s.timerTimeout <= 0 {
		s.timerTimeout = 10 * time.Second
	}
	s.timers = newDeadlineTimers(s.clock)
	return s
}

// Close stops every pending deadline timer.
func (s *SessionService) Close() {
	s.timers.stopAll()
}

// Countdown is the configured pre-game countdown length.
func (s *SessionService) Countdown() time.Duration {
	return s.countdown
}

// GetSession returns the stored session.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// GetParticipant returns the stored participant.
func (s *SessionService) GetParticipant(ctx context.Context, participantID string) (domain.Participant, error) {
	return s.store.GetParticipant(ctx, participantID)
}

// Snapshot assembles the full observable state of a session.
func (s *SessionService) Snapshot(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	participants, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("list participants: %w", err)
	}
	responses, err := s.store.ListResponses(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("list responses: %w", err)
	}

	totals := sumByParticipant(responses)
	for i := range participants {
		participants[i].Score = totals[participants[i].ID]
	}

	online := []string{}
	if s.presence != nil {
		ids, err := s.presence.Online(ctx, sessionID)
		if err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("presence lookup failed")
		} else {
			online = ids
		}
	}

	now := s.clock.Now()
	return domain.Snapshot{
		Session:              session,
		Phase:                session.Phase(),
		CountdownRemainingMs: session.CountdownRemaining(now, s.countdown).Milliseconds(),
		TimeLeftMs:           session.TimeLeft(now).Milliseconds(),
		Participants:         participants,
		Ranking:              rank(participants, totals),
		ResponseCount:        len(responses),
		Online:               online,
		GeneratedAt:          now,
	}, nil
}

func (s *SessionService) publish(eventType domain.EventType, sessionID string, payload any) {
	s.broker.Publish(domain.Event{
		Type:      eventType,
		SessionID: sessionID,
		At:        s.clock.Now(),
		Payload:   payload,
	})
}

func sumByParticipant(responses []domain.Response) map[string]int {
	totals := make(map[string]int)
	for _, r := range responses {
		totals[r.ParticipantID] += r.PointsEarned
	}
	return totals
}

// rank orders by score desc, then earliest join, then participant id so equal
// scores always resolve the same way.
func rank(participants []domain.Participant, totals map[string]int) []domain.RankEntry {
	entries := make([]domain.RankEntry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, domain.RankEntry{
			ParticipantID: p.ID,
			Nickname:      p.Nickname,
			Score:         totals[p.ID],
			JoinedAt:      p.JoinedAt,
			Disconnected:  p.Disconnected,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if !entries[i].JoinedAt.Equal(entries[j].JoinedAt) {
			return entries[i].JoinedAt.Before(entries[j].JoinedAt)
		}
		return entries[i].ParticipantID < entries[j].ParticipantID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func randomPin() string {
	return fmt.Sprintf("%06d", rand.Intn(1000000))
}
