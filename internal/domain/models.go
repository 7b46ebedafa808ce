package domain

import "time"

// SessionStatus is the persisted lifecycle state of a game session.
type SessionStatus string

const (
	StatusWaiting  SessionStatus = "waiting"
	StatusActive   SessionStatus = "active"
	StatusFinished SessionStatus = "finished"
)

// GameMode selects the rules layered on top of the scoring ledger.
type GameMode string

const (
	ModeClassic   GameMode = "classic"
	ModeSubmarine GameMode = "submarine"
)

// Valid reports whether m is a known game mode.
func (m GameMode) Valid() bool {
	return m == ModeClassic || m == ModeSubmarine
}

// Session is one instance of a quiz being played, identified by its game PIN.
type Session struct {
	ID                   string        `json:"id"`
	QuizID               string        `json:"quizId"`
	HostID               string        `json:"hostId"`
	Status               SessionStatus `json:"status"`
	GamePin              string        `json:"gamePin"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	CountdownStartedAt   *time.Time    `json:"countdownStartedAt,omitempty"`
	StartedAt            *time.Time    `json:"startedAt,omitempty"`
	EndedAt              *time.Time    `json:"endedAt,omitempty"`
	TotalTimeMinutes     int           `json:"totalTimeMinutes"`
	GameMode             GameMode      `json:"gameMode"`
	AllowJoinAfterStart  bool          `json:"allowJoinAfterStart"`
	FinalizedAt          *time.Time    `json:"finalizedAt,omitempty"`
	CreatedAt            time.Time     `json:"createdAt"`
}

// Participant is a player within a session. Score mirrors the response ledger and
// is only ever written by the ledger.
type Participant struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"sessionId"`
	Nickname     string     `json:"nickname"`
	UserID       string     `json:"userId,omitempty"`
	Score        int        `json:"score"`
	JoinedAt     time.Time  `json:"joinedAt"`
	Disconnected bool       `json:"disconnected"`
	LeftAt       *time.Time `json:"leftAt,omitempty"`

	// Submarine-mode counters.
	CorrectStreak int `json:"correctStreak"`
	WrongStreak   int `json:"wrongStreak"`
	FireCharges   int `json:"fireCharges"`
	HoldProgress  int `json:"holdProgress"`
	// SharkDistance is how far the shark has closed in on the submarine.
	SharkDistance int `json:"sharkDistance"`
}

// Answer is one selectable option of a question.
type Answer struct {
	ID         string `json:"id"`
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"isCorrect"`
	OrderIndex int    `json:"orderIndex"`
	ImageURL   string `json:"imageUrl,omitempty"`
}

// Question models a multiple choice question with exactly one correct answer.
type Question struct {
	ID         string   `json:"id"`
	QuizID     string   `json:"quizId"`
	Text       string   `json:"text"`
	TimeLimit  int      `json:"timeLimit"` // seconds
	Points     int      `json:"points"`    // defaults to 1 if zero
	OrderIndex int      `json:"orderIndex"`
	ImageURL   string   `json:"imageUrl,omitempty"`
	Answers    []Answer `json:"answers"`
}

// Quiz is a read-only collection of questions owned by the content store.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Response is one participant's recorded answer to one question.
type Response struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"sessionId"`
	ParticipantID  string    `json:"participantId"`
	QuestionID     string    `json:"questionId"`
	AnswerID       string    `json:"answerId"`
	Correct        bool      `json:"correct"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
	PointsEarned   int       `json:"pointsEarned"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ChatMessage is an append-only, session scoped chat line. Seq orders messages.
type ChatMessage struct {
	ID          string    `json:"id"`
	Seq         int64     `json:"seq"`
	SessionID   string    `json:"sessionId"`
	SenderID    string    `json:"senderId"`
	Nickname    string    `json:"nickname"`
	Message     string    `json:"message"`
	IsImportant bool      `json:"isImportant"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ReadReceipt marks a chat message as read by a user.
type ReadReceipt struct {
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	ReadAt    time.Time `json:"readAt"`
}

// RankEntry is one row of a computed leaderboard.
type RankEntry struct {
	Rank          int       `json:"rank"`
	ParticipantID string    `json:"participantId"`
	Nickname      string    `json:"nickname"`
	Score         int       `json:"score"`
	JoinedAt      time.Time `json:"joinedAt"`
	Disconnected  bool      `json:"disconnected"`
}

// SubmarineState is the per-participant submarine view returned with answers and holds.
type SubmarineState struct {
	CorrectStreak int  `json:"correctStreak"`
	WrongStreak   int  `json:"wrongStreak"`
	FireCharges   int  `json:"fireCharges"`
	HoldProgress  int  `json:"holdProgress"`
	SharkDistance int  `json:"sharkDistance"`
	Caught        bool `json:"caught"`
}

// AnswerOutcome summarizes the ledger result of a single submission.
type AnswerOutcome struct {
	QuestionID   string          `json:"questionId"`
	Correct      bool            `json:"correct"`
	PointsEarned int             `json:"pointsEarned"`
	TotalScore   int             `json:"totalScore"`
	Submarine    *SubmarineState `json:"submarine,omitempty"`
}

// Snapshot is the full session view pushed to watchers after any change.
type Snapshot struct {
	Session              Session       `json:"session"`
	Phase                Phase         `json:"phase"`
	CountdownRemainingMs int64         `json:"countdownRemainingMs"`
	TimeLeftMs           int64         `json:"timeLeftMs"`
	Participants         []Participant `json:"participants"`
	Ranking              []RankEntry   `json:"ranking"`
	ResponseCount        int           `json:"responseCount"`
	Online               []string      `json:"online"`
	GeneratedAt          time.Time     `json:"generatedAt"`
}

// ChatPage is one lazily loaded page of chat history, ordered oldest first.
type ChatPage struct {
	Messages   []ChatMessage `json:"messages"`
	NextBefore int64         `json:"nextBefore"`
	HasMore    bool          `json:"hasMore"`
}
