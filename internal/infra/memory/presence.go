package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultPresenceWindow = 45 * time.Second

// Presence tracks live connections per session. A participant counts as
// online until window passes without a Touch.
type Presence struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	window   time.Duration
	sessions map[string]map[string]time.Time
}

func NewPresence(clock clockwork.Clock, window time.Duration) *Presence {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if window <= 0 {
		window = DefaultPresenceWindow
	}
	return &Presence{clock: clock, window: window, sessions: make(map[string]map[string]time.Time)}
}

func (p *Presence) Touch(_ context.Context, sessionID, participantID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	seen, ok := p.sessions[sessionID]
	if !ok {
		seen = make(map[string]time.Time)
		p.sessions[sessionID] = seen
	}
	seen[participantID] = p.clock.Now()
	return nil
}

func (p *Presence) Forget(_ context.Context, sessionID, participantID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seen, ok := p.sessions[sessionID]; ok {
		delete(seen, participantID)
		if len(seen) == 0 {
			delete(p.sessions, sessionID)
		}
	}
	return nil
}

func (p *Presence) Online(_ context.Context, sessionID string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := p.clock.Now().Add(-p.window)
	seen := p.sessions[sessionID]
	online := make([]string, 0, len(seen))
	for id, at := range seen {
		if at.Before(cutoff) {
			delete(seen, id)
			continue
		}
		online = append(online, id)
	}
	if len(seen) == 0 {
		delete(p.sessions, sessionID)
	}
	sort.Strings(online)
	return online, nil
}
