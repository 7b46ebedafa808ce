package memory

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestPresenceExpiresIdleParticipants(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	presence := NewPresence(clock, 30*time.Second)

	_ = presence.Touch(ctx, "s1", "p1")
	clock.Advance(20 * time.Second)
	_ = presence.Touch(ctx, "s1", "p2")

	online, _ := presence.Online(ctx, "s1")
	if len(online) != 2 {
		t.Fatalf("expected 2 online, got %v", online)
	}

	clock.Advance(15 * time.Second)
	online, _ = presence.Online(ctx, "s1")
	if len(online) != 1 || online[0] != "p2" {
		t.Fatalf("expected only p2 online, got %v", online)
	}

	_ = presence.Forget(ctx, "s1", "p2")
	if online, _ = presence.Online(ctx, "s1"); len(online) != 0 {
		t.Fatalf("expected nobody online, got %v", online)
	}
}
