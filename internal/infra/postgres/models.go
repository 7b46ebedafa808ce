package postgres

import (
	"time"

	"github.com/uptrace/bun"
	"golekquiz-service/internal/domain"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:game_sessions,alias:gs"`

	ID                   string     `bun:"id,pk"`
	QuizID               string     `bun:"quiz_id,notnull"`
	HostID               string     `bun:"host_id,notnull"`
	Status               string     `bun:"status,notnull"`
	GamePin              string     `bun:"game_pin,notnull"`
	CurrentQuestionIndex int        `bun:"current_question_index,notnull"`
	CountdownStartedAt   *time.Time `bun:"countdown_started_at"`
	StartedAt            *time.Time `bun:"started_at"`
	EndedAt              *time.Time `bun:"ended_at"`
	TotalTimeMinutes     int        `bun:"total_time_minutes,notnull"`
	GameMode             string     `bun:"game_mode,notnull"`
	AllowJoinAfterStart  bool       `bun:"allow_join_after_start,notnull"`
	FinalizedAt          *time.Time `bun:"finalized_at"`
	CreatedAt            time.Time  `bun:"created_at,notnull"`
}

func newSessionRow(s domain.Session) *sessionRow {
	return &sessionRow{
		ID:                   s.ID,
		QuizID:               s.QuizID,
		HostID:               s.HostID,
		Status:               string(s.Status),
		GamePin:              s.GamePin,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		CountdownStartedAt:   s.CountdownStartedAt,
		StartedAt:            s.StartedAt,
		EndedAt:              s.EndedAt,
		TotalTimeMinutes:     s.TotalTimeMinutes,
		GameMode:             string(s.GameMode),
		AllowJoinAfterStart:  s.AllowJoinAfterStart,
		FinalizedAt:          s.FinalizedAt,
		CreatedAt:            s.CreatedAt,
	}
}

func (r *sessionRow) domain() domain.Session {
	return domain.Session{
		ID:                   r.ID,
		QuizID:               r.QuizID,
		HostID:               r.HostID,
		Status:               domain.SessionStatus(r.Status),
		GamePin:              r.GamePin,
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		CountdownStartedAt:   r.CountdownStartedAt,
		StartedAt:            r.StartedAt,
		EndedAt:              r.EndedAt,
		TotalTimeMinutes:     r.TotalTimeMinutes,
		GameMode:             domain.GameMode(r.GameMode),
		AllowJoinAfterStart:  r.AllowJoinAfterStart,
		FinalizedAt:          r.FinalizedAt,
		CreatedAt:            r.CreatedAt,
	}
}

type participantRow struct {
	bun.BaseModel `bun:"table:game_participants,alias:gp"`

	ID            string     `bun:"id,pk"`
	SessionID     string     `bun:"session_id,notnull"`
	Nickname      string     `bun:"nickname,notnull"`
	UserID        string     `bun:"user_id,nullzero"`
	Score         int        `bun:"score,notnull"`
	JoinedAt      time.Time  `bun:"joined_at,notnull"`
	Disconnected  bool       `bun:"disconnected,notnull"`
	LeftAt        *time.Time `bun:"left_at"`
	CorrectStreak int        `bun:"correct_streak,notnull"`
	WrongStreak   int        `bun:"wrong_streak,notnull"`
	FireCharges   int        `bun:"fire_charges,notnull"`
	HoldProgress  int        `bun:"hold_progress,notnull"`
	SharkDistance int        `bun:"shark_distance,notnull"`
}

// counterColumns are the participant columns the game may rewrite. Score is
// owned by the response ledger and is never among them.
var counterColumns = []string{
	"disconnected", "left_at", "correct_streak", "wrong_streak",
	"fire_charges", "hold_progress", "shark_distance",
}

func newParticipantRow(p domain.Participant) *participantRow {
	return &participantRow{
		ID:            p.ID,
		SessionID:     p.SessionID,
		Nickname:      p.Nickname,
		UserID:        p.UserID,
		Score:         p.Score,
		JoinedAt:      p.JoinedAt,
		Disconnected:  p.Disconnected,
		LeftAt:        p.LeftAt,
		CorrectStreak: p.CorrectStreak,
		WrongStreak:   p.WrongStreak,
		FireCharges:   p.FireCharges,
		HoldProgress:  p.HoldProgress,
		SharkDistance: p.SharkDistance,
	}
}

func (r *participantRow) domain() domain.Participant {
	return domain.Participant{
		ID:            r.ID,
		SessionID:     r.SessionID,
		Nickname:      r.Nickname,
		UserID:        r.UserID,
		Score:         r.Score,
		JoinedAt:      r.JoinedAt,
		Disconnected:  r.Disconnected,
		LeftAt:        r.LeftAt,
		CorrectStreak: r.CorrectStreak,
		WrongStreak:   r.WrongStreak,
		FireCharges:   r.FireCharges,
		HoldProgress:  r.HoldProgress,
		SharkDistance: r.SharkDistance,
	}
}

type responseRow struct {
	bun.BaseModel `bun:"table:game_responses,alias:gr"`

	ID             string    `bun:"id,pk"`
	SessionID      string    `bun:"session_id,notnull"`
	ParticipantID  string    `bun:"participant_id,notnull"`
	QuestionID     string    `bun:"question_id,notnull"`
	AnswerID       string    `bun:"answer_id,notnull"`
	Correct        bool      `bun:"correct,notnull"`
	ResponseTimeMs int64     `bun:"response_time_ms,notnull"`
	PointsEarned   int       `bun:"points_earned,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

func newResponseRow(r domain.Response) *responseRow {
	return &responseRow{
		ID:             r.ID,
		SessionID:      r.SessionID,
		ParticipantID:  r.ParticipantID,
		QuestionID:     r.QuestionID,
		AnswerID:       r.AnswerID,
		Correct:        r.Correct,
		ResponseTimeMs: r.ResponseTimeMs,
		PointsEarned:   r.PointsEarned,
		CreatedAt:      r.CreatedAt,
	}
}

func (r *responseRow) domain() domain.Response {
	return domain.Response{
		ID:             r.ID,
		SessionID:      r.SessionID,
		ParticipantID:  r.ParticipantID,
		QuestionID:     r.QuestionID,
		AnswerID:       r.AnswerID,
		Correct:        r.Correct,
		ResponseTimeMs: r.ResponseTimeMs,
		PointsEarned:   r.PointsEarned,
		CreatedAt:      r.CreatedAt,
	}
}

type chatMessageRow struct {
	bun.BaseModel `bun:"table:chat_messages,alias:cm"`

	ID          string    `bun:"id,pk"`
	Seq         int64     `bun:"seq,nullzero"`
	SessionID   string    `bun:"session_id,notnull"`
	SenderID    string    `bun:"sender_id,notnull"`
	Nickname    string    `bun:"nickname,notnull"`
	Message     string    `bun:"message,notnull"`
	IsImportant bool      `bun:"is_important,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
}

func (r *chatMessageRow) domain() domain.ChatMessage {
	return domain.ChatMessage{
		ID:          r.ID,
		Seq:         r.Seq,
		SessionID:   r.SessionID,
		SenderID:    r.SenderID,
		Nickname:    r.Nickname,
		Message:     r.Message,
		IsImportant: r.IsImportant,
		CreatedAt:   r.CreatedAt,
	}
}

type readReceiptRow struct {
	bun.BaseModel `bun:"table:chat_read_receipts,alias:cr"`

	MessageID string    `bun:"message_id,pk"`
	UserID    string    `bun:"user_id,pk"`
	ReadAt    time.Time `bun:"read_at,notnull"`
}
