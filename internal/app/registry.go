package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golekquiz-service/internal/domain"
)

const maxNicknameLength = 32

// Join registers a participant under a nickname unique within the session.
func (s *SessionService) Join(ctx context.Context, sessionID, nickname, userID string) (domain.Participant, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" || utf8.RuneCountInString(nickname) > maxNicknameLength {
		return domain.Participant{}, domain.ErrInvalidNickname
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Participant{}, err
	}
	if !session.CanJoin() {
		return domain.Participant{}, domain.ErrSessionClosed
	}

	participant := domain.Participant{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Nickname:  nickname,
		UserID:    userID,
		JoinedAt:  s.clock.Now(),
	}
	// Uniqueness is enforced by the store, not checked here first.
	if err := s.store.AddParticipant(ctx, participant); err != nil {
		return domain.Participant{}, err
	}

	log.Info().
		Str("session_id", session.ID).
		Str("participant_id", participant.ID).
		Str("nickname", nickname).
		Msg("participant joined")
	s.publish(domain.EventParticipantJoined, session.ID, participant)
	return participant, nil
}

// JoinByPin resolves the game pin and joins that session.
func (s *SessionService) JoinByPin(ctx context.Context, pin, nickname, userID string) (domain.Participant, error) {
	session, err := s.FindByPin(ctx, pin)
	if err != nil {
		return domain.Participant{}, err
	}
	return s.Join(ctx, session.ID, nickname, userID)
}

// Leave removes a participant before the game starts and marks it disconnected
// afterwards, so its responses stay in the ledger. Leaving twice is a no-op,
// including after the participant was removed from a waiting session.
func (s *SessionService) Leave(ctx context.Context, participantID string) error {
	participant, err := s.store.GetParticipant(ctx, participantID)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	unlock := s.locks.lock(participant.SessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, participant.SessionID)
	if err != nil {
		return err
	}

	if s.presence != nil {
		if err := s.presence.Forget(ctx, session.ID, participant.ID); err != nil {
			log.Warn().Err(err).Str("participant_id", participant.ID).Msg("presence forget failed")
		}
	}

	if session.Status == domain.StatusWaiting {
		err := s.store.DeleteParticipant(ctx, participant.ID)
		if errors.Is(err, domain.ErrParticipantNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("remove participant: %w", err)
		}
	} else {
		alreadyGone := false
		participant, err = s.store.MutateParticipant(ctx, participant.ID, func(p *domain.Participant) error {
			if p.Disconnected {
				alreadyGone = true
				return nil
			}
			now := s.clock.Now()
			p.Disconnected = true
			p.LeftAt = &now
			return nil
		})
		if errors.Is(err, domain.ErrParticipantNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("disconnect participant: %w", err)
		}
		if alreadyGone {
			return nil
		}
	}

	log.Info().
		Str("session_id", session.ID).
		Str("participant_id", participant.ID).
		Str("status", string(session.Status)).
		Msg("participant left")
	s.publish(domain.EventParticipantLeft, session.ID, participant)
	return nil
}

// Heartbeat marks a participant as connected.
func (s *SessionService) Heartbeat(ctx context.Context, sessionID, participantID string) error {
	if s.presence == nil {
		return nil
	}
	return s.presence.Touch(ctx, sessionID, participantID)
}

// Connect marks a participant online and tells watchers about it. Every
// Connect must be paired with one Disconnect.
func (s *SessionService) Connect(ctx context.Context, sessionID, participantID string) error {
	s.conns.open(sessionID, participantID)
	if err := s.Heartbeat(ctx, sessionID, participantID); err != nil {
		return err
	}
	s.publish(domain.EventParticipantUpdated, sessionID, nil)
	return nil
}

// Disconnect drops a participant's presence without leaving the game once
// their last connection closes.
func (s *SessionService) Disconnect(ctx context.Context, sessionID, participantID string) {
	if s.conns.close(sessionID, participantID) > 0 {
		return
	}
	if s.presence == nil {
		return
	}
	if err := s.presence.Forget(ctx, sessionID, participantID); err != nil {
		log.Warn().Err(err).Str("participant_id", participantID).Msg("presence forget failed")
		return
	}
	s.publish(domain.EventParticipantUpdated, sessionID, nil)
}
