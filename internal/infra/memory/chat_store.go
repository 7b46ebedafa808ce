package memory

import (
	"context"
	"sort"
	"sync"

	"golekquiz-service/internal/domain"
)

// ChatStore keeps chat logs in memory. Seq is one counter shared by all
// sessions, so it only grows.
type ChatStore struct {
	mu        sync.RWMutex
	seq       int64
	messages  map[string]domain.ChatMessage
	bySession map[string][]string
	receipts  map[string]map[string]domain.ReadReceipt // message id -> user id -> receipt
}

func NewChatStore() *ChatStore {
	return &ChatStore{
		messages:  make(map[string]domain.ChatMessage),
		bySession: make(map[string][]string),
		receipts:  make(map[string]map[string]domain.ReadReceipt),
	}
}

func (c *ChatStore) AppendMessage(_ context.Context, message domain.ChatMessage) (domain.ChatMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	message.Seq = c.seq
	c.messages[message.ID] = message
	c.bySession[message.SessionID] = append(c.bySession[message.SessionID], message.ID)
	return message, nil
}

func (c *ChatStore) GetMessage(_ context.Context, id string) (domain.ChatMessage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	message, ok := c.messages[id]
	if !ok {
		return domain.ChatMessage{}, domain.ErrMessageNotFound
	}
	return message, nil
}

func (c *ChatStore) ListMessages(_ context.Context, sessionID string, before int64, limit int) ([]domain.ChatMessage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := c.bySession[sessionID]
	var page []domain.ChatMessage
	// ids are in append order, which is Seq order.
	for i := len(ids) - 1; i >= 0 && len(page) < limit; i-- {
		message := c.messages[ids[i]]
		if before > 0 && message.Seq >= before {
			continue
		}
		page = append(page, message)
	}
	return page, nil
}

func (c *ChatStore) UpsertReceipt(_ context.Context, receipt domain.ReadReceipt) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.messages[receipt.MessageID]; !ok {
		return false, domain.ErrMessageNotFound
	}
	byUser, ok := c.receipts[receipt.MessageID]
	if !ok {
		byUser = make(map[string]domain.ReadReceipt)
		c.receipts[receipt.MessageID] = byUser
	}
	if _, seen := byUser[receipt.UserID]; seen {
		return false, nil
	}
	byUser[receipt.UserID] = receipt
	return true, nil
}

func (c *ChatStore) ListReceipts(_ context.Context, messageID string) ([]domain.ReadReceipt, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([]domain.ReadReceipt, 0, len(c.receipts[messageID]))
	for _, receipt := range c.receipts[messageID] {
		list = append(list, receipt)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].ReadAt.Equal(list[j].ReadAt) {
			return list[i].ReadAt.Before(list[j].ReadAt)
		}
		return list[i].UserID < list[j].UserID
	})
	return list, nil
}
