package app

import "sync"

// sessionLocks serializes mutations per session while letting different
// sessions proceed in parallel. Entries are dropped once nobody holds them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// lock blocks until the session is exclusively held and returns the release func.
func (l *sessionLocks) lock(sessionID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[sessionID]
	if !ok {
		entry = &sessionLock{}
		l.locks[sessionID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, sessionID)
		}
		l.mu.Unlock()
	}
}

func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// connections counts the live sockets of each participant so presence is only
// dropped when the last one closes.
type connections struct {
	mu    sync.Mutex
	count map[string]int
}

func newConnections() *connections {
	return &connections{count: make(map[string]int)}
}

// open records one more socket and returns how many are open now.
func (c *connections) open(sessionID, participantID string) int {
	key := sessionID + "/" + participantID
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count[key]++
	return c.count[key]
}

// close drops one socket and returns how many are still open.
func (c *connections) close(sessionID, participantID string) int {
	key := sessionID + "/" + participantID
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.count[key] - 1
	if n <= 0 {
		delete(c.count, key)
		return 0
	}
	c.count[key] = n
	return n
}
