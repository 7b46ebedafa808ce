package realtime

import (
	"sync"

	"github.com/rs/zerolog/log"
	"golekquiz-service/internal/domain"
)

const subscriberBuffer = 16

// Hub fans session events out to in-process subscribers. Publishing never
// blocks: a subscriber that falls behind loses its oldest pending signal, which
// is fine because every subscriber refetches full state on a signal.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[chan domain.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[string]map[chan domain.Event]struct{})}
}

// Subscribe returns a channel that receives events for one session.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(sessionID string) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, subscriberBuffer)

	h.mu.Lock()
	subs, ok := h.sessions[sessionID]
	if !ok {
		subs = make(map[chan domain.Event]struct{})
		h.sessions[sessionID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.sessions[sessionID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(h.sessions, sessionID)
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of its session.
func (h *Hub) Publish(event domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.sessions[event.SessionID] {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
				log.Debug().Str("session_id", event.SessionID).Msg("subscriber saturated, signal dropped")
			}
		}
	}
}

// Subscribers reports how many subscribers a session has.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Sessions reports how many sessions have at least one subscriber.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
