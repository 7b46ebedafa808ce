package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golekquiz-service/internal/app"
	"golekquiz-service/internal/domain"
)

const (
	wsWriteWait    = 10 * time.Second
	wsMaxMessage   = 8 << 10
	wsSendCapacity = 32
)

// WSHandler streams session snapshots and chat to one participant and accepts
// their in-game actions over the same socket.
type WSHandler struct {
	sessions *app.SessionService
	chat     *app.ChatService
	broker   app.Broker
	auth     *Authenticator
	upgrader websocket.Upgrader
}

func NewWSHandler(sessions *app.SessionService, chat *app.ChatService, broker app.Broker, auth *Authenticator, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		chat:     chat,
		broker:   broker,
		auth:     auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID     string `json:"questionId"`
	AnswerID       string `json:"answerId"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
}

type chatPayload struct {
	Message     string `json:"message"`
	IsImportant bool   `json:"isImportant"`
}

type holdPayload struct {
	Progress int `json:"progress"`
}

type readPayload struct {
	MessageID string `json:"messageId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades the request for a participant that already joined through
// REST: /ws?sessionId=...&token=... where token is the one handed out at join.
// Browsers cannot set headers on a websocket, so the token may ride in the
// query; an Authorization header works too.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sessionID := query.Get("sessionId")
	if sessionID == "" {
		http.Error(w, "missing sessionId", http.StatusBadRequest)
		return
	}
	token := query.Get("token")
	if header := r.Header.Get("Authorization"); token == "" && strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		http.Error(w, "missing participant token", http.StatusUnauthorized)
		return
	}
	claims, err := h.auth.ParseToken(token)
	if err != nil || claims.ParticipantID == "" {
		http.Error(w, "invalid participant token", http.StatusUnauthorized)
		return
	}
	participantID := claims.ParticipantID
	if claims.SessionID != sessionID || (query.Get("participantId") != "" && query.Get("participantId") != participantID) {
		http.Error(w, "token does not belong to this participant", http.StatusForbidden)
		return
	}
	participant, err := h.sessions.GetParticipant(r.Context(), participantID)
	if err != nil || participant.SessionID != sessionID {
		http.Error(w, "participant not found in session", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	snapshots, err := h.sessions.Watch(ctx, sessionID)
	if err != nil {
		writeSocketError(conn, err)
		return
	}
	chatEvents, unsubscribe := h.broker.Subscribe(sessionID)
	defer unsubscribe()

	if err := h.sessions.Connect(ctx, sessionID, participantID); err != nil {
		log.Warn().Err(err).Str("participant_id", participantID).Msg("presence touch failed")
	}
	defer h.sessions.Disconnect(context.Background(), sessionID, participantID)

	logger := log.With().Str("session_id", sessionID).Str("participant_id", participantID).Logger()
	logger.Info().Msg("ws connected")
	defer logger.Info().Msg("ws disconnected")

	send := make(chan outboundMessage[any], wsSendCapacity)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug().Err(err).Msg("ws write failed")
				cancel()
				// Keep draining so producers never block on a dead socket.
				for range send {
				}
				return
			}
		}
	}()

	push := func(msgType string, payload any) {
		select {
		case send <- outboundMessage[any]{Type: msgType, Payload: payload}:
		case <-ctx.Done():
		}
	}

	var forwarders sync.WaitGroup
	forwarders.Add(2)
	go func() {
		defer forwarders.Done()
		for {
			select {
			case snapshot, ok := <-snapshots:
				if !ok {
					return
				}
				push("snapshot", snapshot)
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		defer forwarders.Done()
		for {
			select {
			case event, ok := <-chatEvents:
				if !ok {
					return
				}
				switch event.Type {
				case domain.EventChatMessage:
					push("chat", event.Payload)
				case domain.EventChatRead:
					push("chatRead", event.Payload)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	h.readLoop(ctx, conn, participant, push)

	cancel()
	forwarders.Wait()
	close(send)
	<-writerDone
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, participant domain.Participant, push func(string, any)) {
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		if err := h.dispatch(ctx, participant, inbound, push); err != nil {
			m := classify(err)
			push("error", errorResponse{Error: m.code, Message: m.message})
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, participant domain.Participant, inbound inboundMessage, push func(string, any)) error {
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			push("error", errorResponse{Error: "bad_request", Message: "Format jawaban tidak valid"})
			return nil
		}
		outcome, err := h.sessions.SubmitAnswer(ctx, app.SubmitAnswerParams{
			SessionID:      participant.SessionID,
			ParticipantID:  participant.ID,
			QuestionID:     payload.QuestionID,
			AnswerID:       payload.AnswerID,
			ResponseTimeMs: payload.ResponseTimeMs,
		})
		if err != nil {
			return err
		}
		push("answerResult", outcome)
	case "chat":
		var payload chatPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			push("error", errorResponse{Error: "bad_request", Message: "Format pesan tidak valid"})
			return nil
		}
		_, err := h.chat.Send(ctx, app.SendChatParams{
			SessionID:   participant.SessionID,
			SenderID:    participant.ID,
			Nickname:    participant.Nickname,
			Message:     payload.Message,
			IsImportant: payload.IsImportant,
		})
		return err
	case "hold":
		var payload holdPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			push("error", errorResponse{Error: "bad_request", Message: "Format tidak valid"})
			return nil
		}
		state, err := h.sessions.Hold(ctx, app.HoldParams{
			SessionID:     participant.SessionID,
			ParticipantID: participant.ID,
			Progress:      payload.Progress,
		})
		if err != nil {
			return err
		}
		push("holdResult", state)
	case "read":
		var payload readPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			push("error", errorResponse{Error: "bad_request", Message: "Format tidak valid"})
			return nil
		}
		return h.chat.MarkRead(ctx, payload.MessageID, participant.ID)
	case "ping":
		if err := h.sessions.Heartbeat(ctx, participant.SessionID, participant.ID); err != nil {
			log.Warn().Err(err).Str("participant_id", participant.ID).Msg("presence heartbeat failed")
		}
		push("pong", struct{}{})
	default:
		push("error", errorResponse{Error: "unsupported", Message: "Jenis pesan tidak dikenal"})
	}
	return nil
}

func writeSocketError(conn *websocket.Conn, err error) {
	m := classify(err)
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = conn.WriteJSON(outboundMessage[errorResponse]{Type: "error", Payload: errorResponse{Error: m.code, Message: m.message}})
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
