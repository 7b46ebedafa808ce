package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golekquiz-service/internal/domain"
)

// FullHold is the hold progress at which fire charges are spent.
const FullHold = 100

// SubmarineRules are the gamification counters layered over the ledger in
// submarine mode.
type SubmarineRules struct {
	// ChargeEvery consecutive correct answers grant one fire charge.
	ChargeEvery  int
	MaxCharges   int
	HoldCost     int
	SharkStep    int
	SharkCatch   int
	HoldPushback int
}

func DefaultSubmarineRules() SubmarineRules {
	return SubmarineRules{
		ChargeEvery:  3,
		MaxCharges:   3,
		HoldCost:     3,
		SharkStep:    10,
		SharkCatch:   100,
		HoldPushback: 30,
	}
}

func (r SubmarineRules) applyAnswer(p *domain.Participant, correct bool) {
	if correct {
		p.CorrectStreak++
		p.WrongStreak = 0
		if r.ChargeEvery > 0 && p.CorrectStreak%r.ChargeEvery == 0 && p.FireCharges < r.MaxCharges {
			p.FireCharges++
		}
		return
	}
	p.WrongStreak++
	p.CorrectStreak = 0
	p.SharkDistance += r.SharkStep
	if p.SharkDistance > r.SharkCatch {
		p.SharkDistance = r.SharkCatch
	}
}

// applyHold records hold progress; a full hold spends HoldCost charges to push
// the shark back.
func (r SubmarineRules) applyHold(p *domain.Participant, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress < FullHold {
		p.HoldProgress = progress
		return nil
	}
	if p.FireCharges < r.HoldCost {
		return domain.ErrInsufficientCharges
	}
	p.FireCharges -= r.HoldCost
	p.HoldProgress = 0
	p.SharkDistance -= r.HoldPushback
	if p.SharkDistance < 0 {
		p.SharkDistance = 0
	}
	return nil
}

func (r SubmarineRules) state(p domain.Participant) *domain.SubmarineState {
	return &domain.SubmarineState{
		CorrectStreak: p.CorrectStreak,
		WrongStreak:   p.WrongStreak,
		FireCharges:   p.FireCharges,
		HoldProgress:  p.HoldProgress,
		SharkDistance: p.SharkDistance,
		Caught:        r.SharkCatch > 0 && p.SharkDistance >= r.SharkCatch,
	}
}

// HoldParams reports how far a participant has held the fire button.
type HoldParams struct {
	SessionID     string
	ParticipantID string
	Progress      int
}

// Hold applies the hold button for a submarine-mode participant.
func (s *SessionService) Hold(ctx context.Context, params HoldParams) (domain.SubmarineState, error) {
	unlock := s.locks.lock(params.SessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, params.SessionID)
	if err != nil {
		return domain.SubmarineState{}, err
	}
	if session.GameMode != domain.ModeSubmarine {
		return domain.SubmarineState{}, domain.ErrNotSubmarine
	}
	if err := requireActive(session); err != nil {
		return domain.SubmarineState{}, err
	}
	participant, err := s.sessionParticipant(ctx, session.ID, params.ParticipantID)
	if err != nil {
		return domain.SubmarineState{}, err
	}

	var rejected *domain.SubmarineState
	participant, err = s.store.MutateParticipant(ctx, participant.ID, func(p *domain.Participant) error {
		if p.Disconnected {
			return domain.ErrParticipantGone
		}
		if err := s.submarine.applyHold(p, params.Progress); err != nil {
			rejected = s.submarine.state(*p)
			return err
		}
		return nil
	})
	if rejected != nil {
		return *rejected, err
	}
	if errors.Is(err, domain.ErrParticipantGone) {
		return domain.SubmarineState{}, err
	}
	if err != nil {
		return domain.SubmarineState{}, fmt.Errorf("store hold: %w", err)
	}

	state := s.submarine.state(participant)
	if params.Progress >= FullHold {
		log.Debug().
			Str("session_id", session.ID).
			Str("participant_id", participant.ID).
			Int("shark_distance", state.SharkDistance).
			Msg("hold released fire charges")
	}
	s.publish(domain.EventParticipantUpdated, session.ID, participant)
	return *state, nil
}
