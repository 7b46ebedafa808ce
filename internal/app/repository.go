package app

import (
	"context"

	"golekquiz-service/internal/domain"
)

// SessionRepository persists sessions. Implementations must keep GamePin unique
// among open sessions and report collisions as domain.ErrPinTaken.
type SessionRepository interface {
	CreateSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, id string) (domain.Session, error)
	// GetSessionByPin only resolves sessions that are not finished.
	GetSessionByPin(ctx context.Context, pin string) (domain.Session, error)
	ListOpenSessions(ctx context.Context) ([]domain.Session, error)
	// UpdateSession stores session only if the persisted status still equals
	// expected, and reports whether it did.
	UpdateSession(ctx context.Context, session domain.Session, expected domain.SessionStatus) (bool, error)
	// DeleteSession removes a session together with its participants and responses.
	DeleteSession(ctx context.Context, id string) error
}

// ParticipantRepository persists participants. (SessionID, Nickname) is unique and
// collisions surface as domain.ErrNicknameTaken.
type ParticipantRepository interface {
	AddParticipant(ctx context.Context, participant domain.Participant) error
	GetParticipant(ctx context.Context, id string) (domain.Participant, error)
	// ListParticipants returns participants ordered by join time.
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)
	// MutateParticipant locks the stored participant, hands it to apply and
	// saves the presence and submarine fields apply left behind. Nothing is
	// saved when apply fails, and Score is never written here.
	MutateParticipant(ctx context.Context, id string, apply func(*domain.Participant) error) (domain.Participant, error)
	DeleteParticipant(ctx context.Context, id string) error
}

// ResponseRepository is the append-only answer ledger.
type ResponseRepository interface {
	// RecordResponse locks the participant, runs apply on it (nil skips that
	// step), inserts the response, saves the counters and refreshes the score
	// from the ledger as one atomic step. A second response for the same
	// (participant, question) fails with domain.ErrDuplicateResponse and
	// leaves everything untouched, as does an error from apply.
	RecordResponse(ctx context.Context, response domain.Response, apply func(*domain.Participant) error) (domain.Participant, error)
	ListResponses(ctx context.Context, sessionID string) ([]domain.Response, error)
	SumPoints(ctx context.Context, participantID string) (int, error)
	// RefreshScore recomputes the cached score from the ledger and returns it.
	RefreshScore(ctx context.Context, participantID string) (int, error)
}

// Store groups everything the session coordinator persists.
type Store interface {
	SessionRepository
	ParticipantRepository
	ResponseRepository
}

// ChatRepository stores the session chat log and read receipts.
type ChatRepository interface {
	// AppendMessage assigns the message its Seq and stores it.
	AppendMessage(ctx context.Context, message domain.ChatMessage) (domain.ChatMessage, error)
	GetMessage(ctx context.Context, id string) (domain.ChatMessage, error)
	// ListMessages returns up to limit messages with Seq < before (0 = no bound), newest first.
	ListMessages(ctx context.Context, sessionID string, before int64, limit int) ([]domain.ChatMessage, error)
	// UpsertReceipt reports whether the receipt was newly created.
	UpsertReceipt(ctx context.Context, receipt domain.ReadReceipt) (bool, error)
	ListReceipts(ctx context.Context, messageID string) ([]domain.ReadReceipt, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Broker fans session events out to subscribers.
type Broker interface {
	Publish(event domain.Event)
	// Subscribe returns change signals for one session. The caller must invoke
	// the returned cancel function to avoid leaks.
	Subscribe(sessionID string) (<-chan domain.Event, func())
}

// PresenceTracker records which participants currently hold a live connection.
type PresenceTracker interface {
	Touch(ctx context.Context, sessionID, participantID string) error
	Forget(ctx context.Context, sessionID, participantID string) error
	Online(ctx context.Context, sessionID string) ([]string, error)
}
