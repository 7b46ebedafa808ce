package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"golekquiz-service/internal/app"
	"golekquiz-service/internal/domain"
	"golekquiz-service/internal/infra/memory"
)

func TestWatchStreamsFreshSnapshots(t *testing.T) {
	env := newTestEnv(t, nil, app.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session, err := env.service.CreateSession(ctx, createParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	snapshots, err := env.service.Watch(ctx, session.ID)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	first := <-snapshots
	if first.Phase != domain.PhaseWaiting || len(first.Participants) != 0 {
		t.Fatalf("unexpected initial snapshot %+v", first)
	}

	alice, err := env.service.Join(ctx, session.ID, "Alice", "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := env.service.Activate(ctx, session.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := env.answer(session.ID, alice.ID, "q1", "a2"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap := <-snapshots:
			if snap.Phase == domain.PhaseActive && snap.ResponseCount == 1 {
				if snap.Ranking[0].Score != 10 || snap.Participants[0].Score != 10 {
					t.Fatalf("snapshot scores should come from the ledger: %+v", snap.Ranking)
				}
				return
			}
		case <-timeout:
			t.Fatalf("never saw the answered snapshot")
		}
	}
}

func TestWatchClosesWithContext(t *testing.T) {
	env := newTestEnv(t, nil, app.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	session, _ := env.service.CreateSession(context.Background(), createParams())

	snapshots, err := env.service.Watch(ctx, session.ID)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	<-snapshots
	cancel()

	waitFor(t, "channel close", func() bool {
		select {
		case _, ok := <-snapshots:
			return !ok
		default:
			return false
		}
	})
	waitFor(t, "hub cleanup", func() bool { return env.hub.Subscribers(session.ID) == 0 })
}

func TestWatchUnknownSession(t *testing.T) {
	env := newTestEnv(t, nil, app.Options{})
	if _, err := env.service.Watch(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown session")
	}
	if env.hub.Subscribers("missing") != 0 {
		t.Fatalf("failed watch must not leak a subscription")
	}
}

func TestWatchWithoutBrokerUsesLocalHub(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	quizzes := memory.NewQuizCache(memory.NewStaticQuizLoader(sampleQuiz()), time.Hour, clock)
	service := app.NewSessionService(memory.NewStore(), quizzes, nil, app.Options{Clock: clock})
	t.Cleanup(service.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session, err := service.CreateSession(ctx, createParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	snapshots, err := service.Watch(ctx, session.ID)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	<-snapshots

	if _, err := service.Join(ctx, session.ID, "Alice", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	select {
	case snap := <-snapshots:
		if len(snap.Participants) != 1 {
			t.Fatalf("expected the join in the next snapshot, got %+v", snap.Participants)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no snapshot after join")
	}
}
