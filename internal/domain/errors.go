package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session id does not resolve.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is returned when joining or answering a finished session.
	ErrSessionClosed = errors.New("session closed")
	// ErrNicknameTaken is returned when the nickname is already used in the session.
	ErrNicknameTaken = errors.New("nickname already taken")
	// ErrDuplicateResponse is returned on a second answer to the same question.
	ErrDuplicateResponse = errors.New("question already answered")
	// ErrInvalidPin is returned when a game pin is malformed or matches no open session.
	ErrInvalidPin = errors.New("invalid game pin")
	// ErrPinTaken signals a pin collision with another open session.
	ErrPinTaken = errors.New("game pin already in use")
	// ErrInvalidTransition is returned when a lifecycle step is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrParticipantNotFound is returned when a participant is unknown to the session.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrParticipantGone is returned when a disconnected participant tries to act.
	ErrParticipantGone = errors.New("participant has left the session")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAnswerNotFound indicates a submitted answer ID is not part of the question.
	ErrAnswerNotFound = errors.New("answer not found")
	ErrNotHost        = errors.New("only the session host may do this")
	ErrNotSubmarine   = errors.New("session is not in submarine mode")
	// ErrInsufficientCharges is returned when a full hold is attempted with fewer than three charges.
	ErrInsufficientCharges = errors.New("not enough fire charges")
	ErrInvalidNickname     = errors.New("invalid nickname")
	ErrInvalidMessage      = errors.New("invalid chat message")
	ErrMessageNotFound     = errors.New("chat message not found")
	// ErrInvalidQuiz is returned when quiz content breaks the one-correct-answer rule.
	ErrInvalidQuiz = errors.New("invalid quiz content")
)
