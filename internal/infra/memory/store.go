package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golekquiz-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. Every uniqueness rule is
// checked and applied under one mutex, which makes each call atomic.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]domain.Session
	pins         map[string]string // pin -> session id, open sessions only
	participants map[string]domain.Participant
	nicknames    map[string]string // session id + folded nickname -> participant id
	responses    map[string]domain.Response
	answered     map[string]string   // participant id + question id -> response id
	bySession    map[string][]string // session id -> response ids in insert order
}

func NewStore() *Store {
	return &Store{
		sessions:     make(map[string]domain.Session),
		pins:         make(map[string]string),
		participants: make(map[string]domain.Participant),
		nicknames:    make(map[string]string),
		responses:    make(map[string]domain.Response),
		answered:     make(map[string]string),
		bySession:    make(map[string][]string),
	}
}

func (s *Store) CreateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pins[session.GamePin]; ok && session.Open() {
		return domain.ErrPinTaken
	}
	s.sessions[session.ID] = session
	if session.Open() {
		s.pins[session.GamePin] = session.ID
	}
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) GetSessionByPin(_ context.Context, pin string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pins[pin]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s.sessions[id], nil
}

func (s *Store) ListOpenSessions(_ context.Context) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	open := make([]domain.Session, 0, len(s.pins))
	for _, id := range s.pins {
		open = append(open, s.sessions[id])
	}
	sort.Slice(open, func(i, j int) bool { return open[i].CreatedAt.Before(open[j].CreatedAt) })
	return open, nil
}

func (s *Store) UpdateSession(_ context.Context, session domain.Session, expected domain.SessionStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[session.ID]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if current.Status != expected {
		return false, nil
	}
	// The pin is fixed at creation.
	session.GamePin = current.GamePin
	s.sessions[session.ID] = session
	if !session.Open() {
		delete(s.pins, session.GamePin)
	}
	return true, nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if s.pins[session.GamePin] == id {
		delete(s.pins, session.GamePin)
	}
	for pid, p := range s.participants {
		if p.SessionID == id {
			s.removeParticipantLocked(p)
			delete(s.participants, pid)
		}
	}
	delete(s.bySession, id)
	delete(s.sessions, id)
	return nil
}

func (s *Store) AddParticipant(_ context.Context, participant domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[participant.SessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	key := nicknameKey(participant.SessionID, participant.Nickname)
	if _, taken := s.nicknames[key]; taken {
		return domain.ErrNicknameTaken
	}
	participant.Score = 0
	s.nicknames[key] = participant.ID
	s.participants[participant.ID] = participant
	return nil
}

func (s *Store) GetParticipant(_ context.Context, id string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	participant, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return participant, nil
}

func (s *Store) ListParticipants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []domain.Participant
	for _, p := range s.participants {
		if p.SessionID == sessionID {
			list = append(list, p)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].JoinedAt.Before(list[j].JoinedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

// MutateParticipant runs apply on a copy of the stored participant under the
// store mutex and keeps the copy unless apply fails. Identity fields and the
// score are restored afterwards.
func (s *Store) MutateParticipant(_ context.Context, id string, apply func(*domain.Participant) error) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	next := current
	if err := apply(&next); err != nil {
		return domain.Participant{}, err
	}
	s.participants[id] = keepIdentity(next, current)
	return s.participants[id], nil
}

func keepIdentity(next, current domain.Participant) domain.Participant {
	next.ID = current.ID
	next.SessionID = current.SessionID
	next.Nickname = current.Nickname
	next.UserID = current.UserID
	next.JoinedAt = current.JoinedAt
	next.Score = current.Score
	return next
}

func (s *Store) DeleteParticipant(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	participant, ok := s.participants[id]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	s.removeParticipantLocked(participant)
	delete(s.participants, id)
	return nil
}

func (s *Store) RecordResponse(_ context.Context, response domain.Response, apply func(*domain.Participant) error) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.participants[response.ParticipantID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	key := answeredKey(response.ParticipantID, response.QuestionID)
	if _, dup := s.answered[key]; dup {
		return domain.Participant{}, domain.ErrDuplicateResponse
	}
	next := current
	if apply != nil {
		if err := apply(&next); err != nil {
			return domain.Participant{}, err
		}
	}

	s.answered[key] = response.ID
	s.responses[response.ID] = response
	s.bySession[response.SessionID] = append(s.bySession[response.SessionID], response.ID)

	next = keepIdentity(next, current)
	next.Score = s.sumLocked(current.ID)
	s.participants[current.ID] = next
	return next, nil
}

func (s *Store) ListResponses(_ context.Context, sessionID string) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.bySession[sessionID]
	list := make([]domain.Response, 0, len(ids))
	for _, id := range ids {
		list = append(list, s.responses[id])
	}
	return list, nil
}

func (s *Store) SumPoints(_ context.Context, participantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sumLocked(participantID), nil
}

func (s *Store) RefreshScore(_ context.Context, participantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	participant, ok := s.participants[participantID]
	if !ok {
		return 0, domain.ErrParticipantNotFound
	}
	participant.Score = s.sumLocked(participantID)
	s.participants[participantID] = participant
	return participant.Score, nil
}

func (s *Store) sumLocked(participantID string) int {
	participant, ok := s.participants[participantID]
	if !ok {
		return 0
	}
	total := 0
	for _, id := range s.bySession[participant.SessionID] {
		if r := s.responses[id]; r.ParticipantID == participantID {
			total += r.PointsEarned
		}
	}
	return total
}

// removeParticipantLocked drops the nickname claim and the participant's responses.
func (s *Store) removeParticipantLocked(participant domain.Participant) {
	delete(s.nicknames, nicknameKey(participant.SessionID, participant.Nickname))
	ids := s.bySession[participant.SessionID]
	kept := ids[:0]
	for _, id := range ids {
		r := s.responses[id]
		if r.ParticipantID == participant.ID {
			delete(s.responses, id)
			delete(s.answered, answeredKey(r.ParticipantID, r.QuestionID))
			continue
		}
		kept = append(kept, id)
	}
	if len(kept) == 0 {
		delete(s.bySession, participant.SessionID)
	} else {
		s.bySession[participant.SessionID] = kept
	}
}

func nicknameKey(sessionID, nickname string) string {
	return sessionID + "\x00" + strings.ToLower(nickname)
}

func answeredKey(participantID, questionID string) string {
	return participantID + "\x00" + questionID
}
