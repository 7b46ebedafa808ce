package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// Presence records live connections in a sorted set per session, scored by
// the last heartbeat in unix milliseconds. Entries older than window are
// pruned on read, and the key itself expires once a session goes quiet.
type Presence struct {
	client *redis.Client
	clock  clockwork.Clock
	window time.Duration
}

func NewPresence(client *redis.Client, clock clockwork.Clock, window time.Duration) *Presence {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if window <= 0 {
		window = 45 * time.Second
	}
	return &Presence{client: client, clock: clock, window: window}
}

func (p *Presence) Touch(ctx context.Context, sessionID, participantID string) error {
	key := presenceKey(sessionID)
	pipe := p.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(p.clock.Now().UnixMilli()), Member: participantID})
	pipe.Expire(ctx, key, 2*p.window)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Presence) Forget(ctx context.Context, sessionID, participantID string) error {
	return p.client.ZRem(ctx, presenceKey(sessionID), participantID).Err()
}

func (p *Presence) Online(ctx context.Context, sessionID string) ([]string, error) {
	key := presenceKey(sessionID)
	cutoff := p.clock.Now().Add(-p.window).UnixMilli()
	pipe := p.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	members := pipe.ZRange(ctx, key, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return members.Val(), nil
}

func presenceKey(sessionID string) string {
	return "session:" + sessionID + ":presence"
}
