package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
	"golekquiz-service/internal/domain"
)

// QuizLoader reads full quiz content (questions and answers) from a backing store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizCache keeps validated quizzes in process for a jittered TTL. Concurrent
// misses for one quiz share a single load.
type QuizCache struct {
	loader QuizLoader
	ttl    time.Duration
	clock  clockwork.Clock
	group  singleflight.Group

	mu      sync.RWMutex
	rnd     *rand.Rand
	entries map[string]quizEntry
}

type quizEntry struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizCache(loader QuizLoader, ttl time.Duration, clock clockwork.Clock) *QuizCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &QuizCache{
		loader:  loader,
		ttl:     ttl,
		clock:   clock,
		rnd:     rand.New(rand.NewSource(clock.Now().UnixNano())),
		entries: make(map[string]quizEntry),
	}
}

func (c *QuizCache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := c.lookup(quizID); ok {
		return quiz, nil
	}

	v, err, _ := c.group.Do(quizID, func() (any, error) {
		if quiz, ok := c.lookup(quizID); ok {
			return quiz, nil
		}
		quiz, err := c.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		if err := quiz.Validate(); err != nil {
			return domain.Quiz{}, fmt.Errorf("quiz %s: %w", quizID, err)
		}
		c.store(quizID, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return v.(domain.Quiz), nil
}

// Invalidate drops a cached quiz so the next read reloads it.
func (c *QuizCache) Invalidate(quizID string) {
	c.mu.Lock()
	delete(c.entries, quizID)
	c.mu.Unlock()
}

func (c *QuizCache) lookup(quizID string) (domain.Quiz, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[quizID]
	if !ok || !entry.expiresAt.After(c.clock.Now()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

func (c *QuizCache) store(quizID string, quiz domain.Quiz) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ttl := c.ttl
	if ttl > 0 {
		// up to 10% jitter so a batch of quizzes does not expire together
		ttl += time.Duration(c.rnd.Int63n(int64(ttl)/10 + 1))
	}
	c.entries[quizID] = quizEntry{quiz: quiz, expiresAt: c.clock.Now().Add(ttl)}
}

// StaticQuizLoader serves quizzes from a fixed map. Used for demos and tests.
type StaticQuizLoader struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes ...domain.Quiz) *StaticQuizLoader {
	l := &StaticQuizLoader{quizzes: make(map[string]domain.Quiz, len(quizzes))}
	for _, quiz := range quizzes {
		l.quizzes[quiz.ID] = quiz
	}
	return l
}

// Put adds or replaces a quiz.
func (l *StaticQuizLoader) Put(quiz domain.Quiz) {
	l.mu.Lock()
	l.quizzes[quiz.ID] = quiz
	l.mu.Unlock()
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}
