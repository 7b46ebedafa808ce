package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golekquiz-service/internal/domain"
)

// SubmitAnswerParams is one answer submission from a participant.
type SubmitAnswerParams struct {
	SessionID      string
	ParticipantID  string
	QuestionID     string
	AnswerID       string
	ResponseTimeMs int64
}

// SubmitAnswer records an answer in the ledger. A second answer to the same
// question is rejected by the store, never overwritten.
func (s *SessionService) SubmitAnswer(ctx context.Context, params SubmitAnswerParams) (domain.AnswerOutcome, error) {
	unlock := s.locks.lock(params.SessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, params.SessionID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if err := requireActive(session); err != nil {
		return domain.AnswerOutcome{}, err
	}
	participant, err := s.sessionParticipant(ctx, session.ID, params.ParticipantID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}

	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	question, ok := quiz.Question(params.QuestionID)
	if !ok {
		return domain.AnswerOutcome{}, domain.ErrQuestionNotFound
	}
	answer, ok := question.Answer(params.AnswerID)
	if !ok {
		return domain.AnswerOutcome{}, domain.ErrAnswerNotFound
	}

	responseTimeMs := params.ResponseTimeMs
	if responseTimeMs < 0 {
		responseTimeMs = 0
	}
	points := 0
	if answer.IsCorrect {
		points = s.scoring.Points(question, time.Duration(responseTimeMs)*time.Millisecond)
	}

	response := domain.Response{
		ID:             uuid.NewString(),
		SessionID:      session.ID,
		ParticipantID:  participant.ID,
		QuestionID:     question.ID,
		AnswerID:       answer.ID,
		Correct:        answer.IsCorrect,
		ResponseTimeMs: responseTimeMs,
		PointsEarned:   points,
		CreatedAt:      s.clock.Now(),
	}
	// The counters are applied to the row the store locked, not to the copy
	// read above, so another instance writing the same participant is never
	// overwritten.
	updated, err := s.store.RecordResponse(ctx, response, func(p *domain.Participant) error {
		if p.Disconnected {
			return domain.ErrParticipantGone
		}
		if session.GameMode == domain.ModeSubmarine {
			s.submarine.applyAnswer(p, answer.IsCorrect)
		}
		return nil
	})
	if err != nil {
		return domain.AnswerOutcome{}, err
	}

	s.publish(domain.EventResponseCreated, session.ID, response)
	s.publish(domain.EventParticipantUpdated, session.ID, updated)

	outcome := domain.AnswerOutcome{
		QuestionID:   question.ID,
		Correct:      answer.IsCorrect,
		PointsEarned: points,
		TotalScore:   updated.Score,
	}
	if session.GameMode == domain.ModeSubmarine {
		outcome.Submarine = s.submarine.state(updated)
	}
	return outcome, nil
}

// ComputeScore sums the ledger for a participant. It only reads.
func (s *SessionService) ComputeScore(ctx context.Context, participantID string) (int, error) {
	if _, err := s.store.GetParticipant(ctx, participantID); err != nil {
		return 0, err
	}
	return s.store.SumPoints(ctx, participantID)
}

// ComputeRank orders participants by ledger score, earliest joiner first on ties.
func (s *SessionService) ComputeRank(ctx context.Context, sessionID string) ([]domain.RankEntry, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	participants, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	responses, err := s.store.ListResponses(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return rank(participants, sumByParticipant(responses)), nil
}

// FinalizeScores recomputes every stored score of a finished session. It can be
// re-run at any time.
func (s *SessionService) FinalizeScores(ctx context.Context, sessionID string) (domain.Session, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status != domain.StatusFinished {
		return domain.Session{}, domain.ErrInvalidTransition
	}
	return s.finalizeLocked(ctx, session)
}

func (s *SessionService) finalizeLocked(ctx context.Context, session domain.Session) (domain.Session, error) {
	var err error
	for attempt := 1; attempt <= s.finalizeAttempts; attempt++ {
		if err = s.refreshScores(ctx, session.ID); err == nil {
			break
		}
		log.Warn().
			Err(err).
			Str("session_id", session.ID).
			Int("attempt", attempt).
			Msg("score finalization failed")
		if attempt == s.finalizeAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return session, ctx.Err()
		case <-s.clock.After(s.finalizeBackoff * time.Duration(1<<(attempt-1))):
		}
	}
	if err != nil {
		// The session stays finished; a later Finish retries finalization.
		return session, fmt.Errorf("finalize scores: %w", err)
	}

	now := s.clock.Now()
	session.FinalizedAt = &now
	if _, err := s.store.UpdateSession(ctx, session, domain.StatusFinished); err != nil {
		return session, fmt.Errorf("mark finalized: %w", err)
	}
	log.Info().Str("session_id", session.ID).Msg("scores finalized")
	s.publish(domain.EventSessionUpdated, session.ID, session)
	return session, nil
}

func (s *SessionService) refreshScores(ctx context.Context, sessionID string) error {
	participants, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.finalizeConcurrency)
	for _, p := range participants {
		id := p.ID
		g.Go(func() error {
			_, err := s.store.RefreshScore(gctx, id)
			return err
		})
	}
	return g.Wait()
}

func (s *SessionService) sessionParticipant(ctx context.Context, sessionID, participantID string) (domain.Participant, error) {
	participant, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return domain.Participant{}, err
	}
	if participant.SessionID != sessionID {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if participant.Disconnected {
		return domain.Participant{}, domain.ErrParticipantGone
	}
	return participant, nil
}

func requireActive(session domain.Session) error {
	switch session.Status {
	case domain.StatusActive:
		return nil
	case domain.StatusFinished:
		return domain.ErrSessionClosed
	default:
		return domain.ErrInvalidTransition
	}
}
