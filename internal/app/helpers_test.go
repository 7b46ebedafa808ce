package app_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"golekquiz-service/internal/app"
	"golekquiz-service/internal/domain"
	"golekquiz-service/internal/infra/memory"
	"golekquiz-service/internal/realtime"
)

var epoch = time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	service *app.SessionService
	chat    *app.ChatService
	store   *memory.Store
	clock   *clockwork.FakeClock
	hub     *realtime.Hub
}

// newTestEnv wires the service over in-memory infrastructure. A nil store
// gets a fresh memory.Store.
func newTestEnv(t *testing.T, store app.Store, opts app.Options) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	if opts.Clock == nil {
		opts.Clock = clock
	}
	memStore, _ := store.(*memory.Store)
	if store == nil {
		memStore = memory.NewStore()
		store = memStore
	}
	if opts.Presence == nil {
		opts.Presence = memory.NewPresence(clock, time.Minute)
	}
	hub := realtime.NewHub()
	quizzes := memory.NewQuizCache(memory.NewStaticQuizLoader(sampleQuiz(), submarineQuiz()), time.Hour, clock)
	service := app.NewSessionService(store, quizzes, hub, opts)
	t.Cleanup(service.Close)
	return &testEnv{
		service: service,
		chat:    app.NewChatService(memory.NewChatStore(), store, hub, clock),
		store:   memStore,
		clock:   clock,
		hub:     hub,
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Pengetahuan Umum",
		Questions: []domain.Question{
			{
				ID: "q1", QuizID: "quiz-1", Text: "Ibu kota Indonesia?", TimeLimit: 20, Points: 10,
				Answers: []domain.Answer{
					{ID: "a1", QuestionID: "q1", Text: "Bandung"},
					{ID: "a2", QuestionID: "q1", Text: "Jakarta", IsCorrect: true},
				},
			},
			{
				ID: "q2", QuizID: "quiz-1", Text: "2 + 3?", Points: 5,
				Answers: []domain.Answer{
					{ID: "b1", QuestionID: "q2", Text: "5", IsCorrect: true},
					{ID: "b2", QuestionID: "q2", Text: "6"},
				},
			},
		},
	}
}

// submarineQuiz has eleven one-point questions; answer "s<n>-ok" is correct.
func submarineQuiz() domain.Quiz {
	quiz := domain.Quiz{ID: "quiz-sub", Title: "Kapal Selam"}
	for i := 1; i <= 11; i++ {
		id := fmt.Sprintf("s%d", i)
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID: id, QuizID: quiz.ID, Points: 1, OrderIndex: i,
			Answers: []domain.Answer{
				{ID: id + "-ok", QuestionID: id, IsCorrect: true},
				{ID: id + "-no", QuestionID: id},
			},
		})
	}
	return quiz
}

func createParams() app.CreateSessionParams {
	return app.CreateSessionParams{QuizID: "quiz-1", HostID: "host-1", Mode: domain.ModeClassic, TotalTimeMinutes: 5}
}

// startedSession creates a session, joins the nicknames one second apart and activates it.
func (e *testEnv) startedSession(t *testing.T, params app.CreateSessionParams, nicknames ...string) (domain.Session, []domain.Participant) {
	t.Helper()
	ctx := context.Background()
	session, err := e.service.CreateSession(ctx, params)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	var players []domain.Participant
	for _, nick := range nicknames {
		p, err := e.service.Join(ctx, session.ID, nick, "")
		if err != nil {
			t.Fatalf("join %s: %v", nick, err)
		}
		players = append(players, p)
		e.clock.Advance(time.Second)
	}
	session, err = e.service.Activate(ctx, session.ID)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	return session, players
}

func (e *testEnv) answer(sessionID, participantID, questionID, answerID string) (domain.AnswerOutcome, error) {
	return e.service.SubmitAnswer(context.Background(), app.SubmitAnswerParams{
		SessionID:     sessionID,
		ParticipantID: participantID,
		QuestionID:    questionID,
		AnswerID:      answerID,
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
