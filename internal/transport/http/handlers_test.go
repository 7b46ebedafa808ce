package http

import (
	"context"
	"net/http"
	"testing"

	"golekquiz-service/internal/domain"
)

func TestCreateSessionRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	var errBody errorResponse
	status := env.do(t, http.MethodPost, "/api/v1/sessions", "", map[string]any{"quizId": "quiz-1"}, &errBody)
	if status != http.StatusUnauthorized || errBody.Error != "unauthorized" {
		t.Fatalf("expected 401 unauthorized, got %d %+v", status, errBody)
	}

	status = env.do(t, http.MethodPost, "/api/v1/sessions", "not-a-token", map[string]any{"quizId": "quiz-1"}, &errBody)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", status)
	}

	player := env.playerToken(t, domain.Participant{ID: "p-1", SessionID: "s-1"})
	status = env.do(t, http.MethodPost, "/api/v1/sessions", player, map[string]any{"quizId": "quiz-1"}, &errBody)
	if status != http.StatusUnauthorized {
		t.Fatalf("a participant token cannot host, got %d", status)
	}
}

func TestCreateSessionValidatesBody(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "host-1")

	var errBody errorResponse
	status := env.do(t, http.MethodPost, "/api/v1/sessions", token, map[string]any{"quizId": "quiz-1", "gameMode": "battle"}, &errBody)
	if status != http.StatusBadRequest || errBody.Error != "bad_request" {
		t.Fatalf("expected 400 for unknown mode, got %d %+v", status, errBody)
	}

	status = env.do(t, http.MethodPost, "/api/v1/sessions", token, map[string]any{"quizId": "missing"}, &errBody)
	if status != http.StatusNotFound || errBody.Error != "quiz_not_found" {
		t.Fatalf("expected 404 quiz_not_found, got %d %+v", status, errBody)
	}
}

func TestSessionFlowOverREST(t *testing.T) {
	env := newTestEnv(t)
	host := env.token(t, "host-1")

	var session domain.Session
	status := env.do(t, http.MethodPost, "/api/v1/sessions", host, map[string]any{
		"quizId":           "quiz-1",
		"totalTimeMinutes": 5,
	}, &session)
	if status != http.StatusCreated {
		t.Fatalf("create session: status %d", status)
	}
	if len(session.GamePin) != 6 || session.Status != domain.StatusWaiting || session.HostID != "host-1" {
		t.Fatalf("unexpected session: %+v", session)
	}

	var found domain.Session
	if status := env.do(t, http.MethodGet, "/api/v1/sessions/pin/"+session.GamePin, "", nil, &found); status != http.StatusOK || found.ID != session.ID {
		t.Fatalf("find by pin: %d %+v", status, found)
	}

	var alice, bob joinResponse
	if status := env.do(t, http.MethodPost, "/api/v1/sessions/join", "", map[string]any{"pin": session.GamePin, "nickname": "Alice"}, &alice); status != http.StatusCreated || alice.Token == "" {
		t.Fatalf("join alice: status %d %+v", status, alice)
	}
	if status := env.do(t, http.MethodPost, "/api/v1/sessions/join", "", map[string]any{"pin": session.GamePin, "nickname": "Bob"}, &bob); status != http.StatusCreated {
		t.Fatalf("join bob: status %d", status)
	}

	var errBody errorResponse
	status = env.do(t, http.MethodPost, "/api/v1/sessions/join", "", map[string]any{"pin": session.GamePin, "nickname": "Alice"}, &errBody)
	if status != http.StatusConflict || errBody.Error != "nickname_taken" || errBody.Message == "" {
		t.Fatalf("expected nickname_taken, got %d %+v", status, errBody)
	}

	stranger := env.token(t, "someone-else")
	if status := env.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/countdown", stranger, nil, &errBody); status != http.StatusForbidden {
		t.Fatalf("expected 403 for non-host countdown, got %d", status)
	}
	// A non-host cannot force the game to start before the countdown ends.
	if status := env.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/activate", "", nil, &session); status != http.StatusOK || session.Status != domain.StatusWaiting {
		t.Fatalf("non-host activate should leave session waiting: %d %+v", status, session)
	}
	if status := env.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/countdown", host, nil, &session); status != http.StatusOK || session.CountdownStartedAt == nil {
		t.Fatalf("countdown: %d %+v", status, session)
	}
	if status := env.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/activate", host, nil, &session); status != http.StatusOK || session.Status != domain.StatusActive {
		t.Fatalf("activate: %d %+v", status, session)
	}

	var outcome domain.AnswerOutcome
	status = env.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/answers", alice.Token, map[string]any{
		"questionId":     "q1",
		"answerId":       "a2",
		"responseTimeMs": 1200,
	}, &outcome)
	if status != http.StatusCreated || !outcome.Correct || outcome.PointsEarned != 10 || outcome.TotalScore != 10 {
		t.Fatalf("answer: %d %+v", status, outcome)
	}
	status = env.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/answers", alice.Token, map[string]any{
		"participantId": alice.ID,
		"questionId":    "q1",
		"answerId":      "a1",
	}, &errBody)
	if status != http.StatusConflict || errBody.Error != "duplicate_response" {
		t.Fatalf("expected duplicate_response, got %d %+v", status, errBody)
	}

	var board struct {
		Ranking []domain.RankEntry `json:"ranking"`
	}
	if status := env.do(t, http.MethodGet, "/api/v1/sessions/"+session.ID+"/leaderboard", "", nil, &board); status != http.StatusOK {
		t.Fatalf("leaderboard: status %d", status)
	}
	if len(board.Ranking) != 2 || board.Ranking[0].ParticipantID != alice.ID || board.Ranking[0].Rank != 1 || board.Ranking[1].Score != 0 {
		t.Fatalf("unexpected ranking: %+v", board.Ranking)
	}

	var score struct {
		Score int `json:"score"`
	}
	if status := env.do(t, http.MethodGet, "/api/v1/participants/"+alice.ID+"/score", "", nil, &score); status != http.StatusOK || score.Score != 10 {
		t.Fatalf("score: %d %+v", status, score)
	}

	var snapshot domain.Snapshot
	if status := env.do(t, http.MethodGet, "/api/v1/sessions/"+session.ID, "", nil, &snapshot); status != http.StatusOK {
		t.Fatalf("snapshot: status %d", status)
	}
	if snapshot.Phase != domain.PhaseActive || snapshot.ResponseCount != 1 || snapshot.TimeLeftMs != 5*60*1000 {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	if status := env.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/finish", host, nil, &session); status != http.StatusOK || session.Status != domain.StatusFinished {
		t.Fatalf("finish: %d %+v", status, session)
	}
	status = env.do(t, http.MethodPost, "/api/v1/sessions/join", "", map[string]any{"pin": session.GamePin, "nickname": "Cici"}, &errBody)
	if status != http.StatusNotFound || errBody.Error != "invalid_pin" {
		t.Fatalf("expected invalid_pin after finish, got %d %+v", status, errBody)
	}
}

func TestLeaveBeforeStartRemovesParticipant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, err := env.sessions.CreateSession(ctx, createParams())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	alice, err := env.sessions.Join(ctx, session.ID, "Alice", "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	token := env.playerToken(t, alice)
	if status := env.do(t, http.MethodPost, "/api/v1/participants/"+alice.ID+"/leave", token, nil, nil); status != http.StatusNoContent {
		t.Fatalf("leave: status %d", status)
	}
	if status := env.do(t, http.MethodPost, "/api/v1/participants/"+alice.ID+"/leave", token, nil, nil); status != http.StatusNoContent {
		t.Fatalf("second leave should be a no-op, got status %d", status)
	}
	var errBody errorResponse
	if status := env.do(t, http.MethodGet, "/api/v1/participants/"+alice.ID+"/score", "", nil, &errBody); status != http.StatusNotFound {
		t.Fatalf("expected participant gone, got %d", status)
	}
}

func TestChatOverREST(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, err := env.sessions.CreateSession(ctx, createParams())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	alice, err := env.sessions.Join(ctx, session.ID, "Alice", "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	player := env.playerToken(t, alice)

	var errBody errorResponse
	if status := env.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/chat", "", map[string]any{"message": "halo"}, &errBody); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", status)
	}
	var fromPlayer domain.ChatMessage
	status := env.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/chat", player, map[string]any{"nickname": "Host", "message": "hai"}, &fromPlayer)
	if status != http.StatusCreated || fromPlayer.SenderID != alice.ID || fromPlayer.Nickname != "Alice" {
		t.Fatalf("players chat under their own name: %d %+v", status, fromPlayer)
	}
	status = env.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/chat", player, map[string]any{"message": "   "}, &errBody)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank message, got %d %+v", status, errBody)
	}

	var sent []domain.ChatMessage
	for _, text := range []string{"halo", "siap?", "mulai!"} {
		var message domain.ChatMessage
		status := env.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/chat", env.token(t, "host-1"), map[string]any{"nickname": "Host", "message": text}, &message)
		if status != http.StatusCreated || message.SenderID != "host-1" {
			t.Fatalf("send chat: %d %+v", status, message)
		}
		sent = append(sent, message)
	}

	var page domain.ChatPage
	if status := env.do(t, http.MethodGet, "/api/v1/sessions/"+session.ID+"/chat?limit=2", "", nil, &page); status != http.StatusOK {
		t.Fatalf("history: status %d", status)
	}
	if len(page.Messages) != 2 || !page.HasMore || page.Messages[0].Message != "siap?" || page.Messages[1].Message != "mulai!" {
		t.Fatalf("unexpected first page: %+v", page)
	}

	if status := env.do(t, http.MethodPost, "/api/v1/chat/"+sent[0].ID+"/read", "", map[string]any{"userId": alice.ID}, &errBody); status != http.StatusUnauthorized {
		t.Fatalf("a body user id is not proof of identity, got status %d", status)
	}
	if status := env.do(t, http.MethodPost, "/api/v1/chat/"+sent[0].ID+"/read", player, nil, nil); status != http.StatusNoContent {
		t.Fatalf("mark read: status %d", status)
	}
	var receipts struct {
		Receipts []domain.ReadReceipt `json:"receipts"`
	}
	if status := env.do(t, http.MethodGet, "/api/v1/chat/"+sent[0].ID+"/receipts", "", nil, &receipts); status != http.StatusOK || len(receipts.Receipts) != 1 {
		t.Fatalf("receipts: %d %+v", status, receipts)
	}
}

func TestPlayerActionsRequireTheirOwnToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, err := env.sessions.CreateSession(ctx, createParams())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	other, err := env.sessions.CreateSession(ctx, createParams())
	if err != nil {
		t.Fatalf("create other session: %v", err)
	}
	var alice, bob joinResponse
	env.do(t, http.MethodPost, "/api/v1/sessions/join", "", map[string]any{"pin": session.GamePin, "nickname": "Alice"}, &alice)
	env.do(t, http.MethodPost, "/api/v1/sessions/join", "", map[string]any{"pin": session.GamePin, "nickname": "Bob"}, &bob)
	if alice.Token == "" || bob.Token == "" {
		t.Fatalf("join must hand out tokens: %+v %+v", alice, bob)
	}
	if _, err := env.sessions.Activate(ctx, session.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	answers := "/api/v1/sessions/" + session.ID + "/answers"
	wrongAsBob := map[string]any{"participantId": bob.ID, "questionId": "q1", "answerId": "a1"}

	var errBody errorResponse
	cases := []struct {
		name   string
		token  string
		status int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"user token", env.token(t, "host-1"), http.StatusUnauthorized},
		{"another player's token", alice.Token, http.StatusForbidden},
	}
	for _, tc := range cases {
		if status := env.do(t, http.MethodPost, answers, tc.token, wrongAsBob, &errBody); status != tc.status {
			t.Fatalf("%s: expected %d, got %d %+v", tc.name, tc.status, status, errBody)
		}
	}

	// Alice's token only works in her own session.
	status := env.do(t, http.MethodPost, "/api/v1/sessions/"+other.ID+"/answers", alice.Token, map[string]any{"questionId": "q1", "answerId": "a2"}, &errBody)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 in another session, got %d", status)
	}
	if status := env.do(t, http.MethodPost, "/api/v1/participants/"+bob.ID+"/leave", alice.Token, nil, &errBody); status != http.StatusForbidden {
		t.Fatalf("expected 403 leaving as bob, got %d", status)
	}
	if status := env.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/hold", alice.Token, map[string]any{"participantId": bob.ID, "progress": 50}, &errBody); status != http.StatusForbidden {
		t.Fatalf("expected 403 holding as bob, got %d", status)
	}

	// None of that reached the ledger, so Bob's own answer still counts.
	var outcome domain.AnswerOutcome
	status = env.do(t, http.MethodPost, answers, bob.Token, map[string]any{"questionId": "q1", "answerId": "a2"}, &outcome)
	if status != http.StatusCreated || !outcome.Correct || outcome.TotalScore != 10 {
		t.Fatalf("bob's answer: %d %+v", status, outcome)
	}
	if p, err := env.sessions.GetParticipant(ctx, bob.ID); err != nil || p.Disconnected {
		t.Fatalf("bob must still be in the game: %+v %v", p, err)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	var body map[string]string
	if status := env.do(t, http.MethodGet, "/healthz", "", nil, &body); status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz: %d %v", status, body)
	}
}
