package app

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golekquiz-service/internal/domain"
)

const (
	maxChatLength    = 500
	defaultChatPage  = 30
	maxChatPageLimit = 100
)

// ChatService is the session scoped chat log. It does not depend on the game
// status: chat keeps working after a session finishes.
type ChatService struct {
	messages ChatRepository
	sessions SessionRepository
	broker   Broker
	clock    clockwork.Clock
}

func NewChatService(messages ChatRepository, sessions SessionRepository, broker Broker, clock clockwork.Clock) *ChatService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ChatService{messages: messages, sessions: sessions, broker: broker, clock: clock}
}

// SendChatParams is one outgoing chat line.
type SendChatParams struct {
	SessionID   string
	SenderID    string
	Nickname    string
	Message     string
	IsImportant bool
}

// Send appends a message to the session log.
func (c *ChatService) Send(ctx context.Context, params SendChatParams) (domain.ChatMessage, error) {
	text := strings.TrimSpace(params.Message)
	if text == "" || utf8.RuneCountInString(text) > maxChatLength {
		return domain.ChatMessage{}, domain.ErrInvalidMessage
	}
	if _, err := c.sessions.GetSession(ctx, params.SessionID); err != nil {
		return domain.ChatMessage{}, err
	}

	message, err := c.messages.AppendMessage(ctx, domain.ChatMessage{
		ID:          uuid.NewString(),
		SessionID:   params.SessionID,
		SenderID:    params.SenderID,
		Nickname:    strings.TrimSpace(params.Nickname),
		Message:     text,
		IsImportant: params.IsImportant,
		CreatedAt:   c.clock.Now(),
	})
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("append chat message: %w", err)
	}
	log.Debug().
		Str("session_id", message.SessionID).
		Int64("seq", message.Seq).
		Bool("important", message.IsImportant).
		Msg("chat message stored")
	c.publish(domain.EventChatMessage, message.SessionID, message)
	return message, nil
}

// MarkRead records that userID has read the message. Repeating it is harmless.
func (c *ChatService) MarkRead(ctx context.Context, messageID, userID string) error {
	message, err := c.messages.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	receipt := domain.ReadReceipt{MessageID: messageID, UserID: userID, ReadAt: c.clock.Now()}
	created, err := c.messages.UpsertReceipt(ctx, receipt)
	if err != nil {
		return fmt.Errorf("store read receipt: %w", err)
	}
	if created {
		c.publish(domain.EventChatRead, message.SessionID, receipt)
	}
	return nil
}

// History returns one page of messages older than before (0 = latest), oldest first.
func (c *ChatService) History(ctx context.Context, sessionID string, before int64, limit int) (domain.ChatPage, error) {
	if limit <= 0 {
		limit = defaultChatPage
	}
	if limit > maxChatPageLimit {
		limit = maxChatPageLimit
	}
	// One extra row tells whether an older page exists.
	newestFirst, err := c.messages.ListMessages(ctx, sessionID, before, limit+1)
	if err != nil {
		return domain.ChatPage{}, fmt.Errorf("list chat messages: %w", err)
	}
	page := domain.ChatPage{HasMore: len(newestFirst) > limit}
	if page.HasMore {
		newestFirst = newestFirst[:limit]
	}
	page.Messages = make([]domain.ChatMessage, len(newestFirst))
	for i, message := range newestFirst {
		page.Messages[len(newestFirst)-1-i] = message
	}
	if len(page.Messages) > 0 {
		page.NextBefore = page.Messages[0].Seq
	}
	return page, nil
}

// Receipts lists who has read a message.
func (c *ChatService) Receipts(ctx context.Context, messageID string) ([]domain.ReadReceipt, error) {
	if _, err := c.messages.GetMessage(ctx, messageID); err != nil {
		return nil, err
	}
	return c.messages.ListReceipts(ctx, messageID)
}

func (c *ChatService) publish(eventType domain.EventType, sessionID string, payload any) {
	if c.broker == nil {
		return
	}
	c.broker.Publish(domain.Event{Type: eventType, SessionID: sessionID, At: c.clock.Now(), Payload: payload})
}
