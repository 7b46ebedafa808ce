package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"golekquiz-service/internal/app"
	"golekquiz-service/internal/domain"
	"golekquiz-service/internal/infra/memory"
	"golekquiz-service/internal/realtime"
)

const testSecret = "test-secret"

type testEnv struct {
	server   *httptest.Server
	sessions *app.SessionService
	chat     *app.ChatService
	auth     *Authenticator
	clock    *clockwork.FakeClock
	hub      *realtime.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := clockwork.NewFakeClock()
	store := memory.NewStore()
	quizzes := memory.NewQuizCache(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute, clock)
	hub := realtime.NewHub()
	sessions := app.NewSessionService(store, quizzes, hub, app.Options{
		Clock:    clock,
		Presence: memory.NewPresence(clock, time.Minute),
	})
	chat := app.NewChatService(memory.NewChatStore(), store, hub, clock)
	auth := NewAuthenticator(testSecret)

	router := NewRouter(NewHandler(sessions, chat, auth), NewWSHandler(sessions, chat, hub, auth, nil), RouterConfig{Auth: auth})
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		sessions.Close()
	})
	return &testEnv{server: server, sessions: sessions, chat: chat, auth: auth, clock: clock, hub: hub}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.auth.IssueToken(userID, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

// playerToken issues the credential Join would have handed to p.
func (e *testEnv) playerToken(t *testing.T, p domain.Participant) string {
	t.Helper()
	token, err := e.auth.IssueParticipantToken(p.ID, p.SessionID, time.Hour)
	if err != nil {
		t.Fatalf("issue participant token: %v", err)
	}
	return token
}

// do sends a JSON request and decodes the JSON response into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Hitung Cepat",
		Questions: []domain.Question{
			{
				ID:        "q1",
				QuizID:    "quiz-1",
				Text:      "What is 2 + 2?",
				TimeLimit: 20,
				Points:    10,
				Answers: []domain.Answer{
					{ID: "a1", QuestionID: "q1", Text: "3"},
					{ID: "a2", QuestionID: "q1", Text: "4", IsCorrect: true},
					{ID: "a3", QuestionID: "q1", Text: "5"},
				},
			},
			{
				ID:        "q2",
				QuizID:    "quiz-1",
				Text:      "Ibu kota Indonesia?",
				TimeLimit: 20,
				Points:    10,
				Answers: []domain.Answer{
					{ID: "b1", QuestionID: "q2", Text: "Jakarta", IsCorrect: true},
					{ID: "b2", QuestionID: "q2", Text: "Bandung"},
				},
			},
		},
	}
}

func createParams() app.CreateSessionParams {
	return app.CreateSessionParams{QuizID: "quiz-1", HostID: "host-1", TotalTimeMinutes: 5}
}
