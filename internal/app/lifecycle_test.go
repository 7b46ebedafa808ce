package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golekquiz-service/internal/app"
	"golekquiz-service/internal/domain"
)

func TestCreateSessionRetriesPinCollisions(t *testing.T) {
	pins := []string{"123456", "123456", "123456", "654321"}
	var mu sync.Mutex
	next := func() string {
		mu.Lock()
		defer mu.Unlock()
		pin := pins[0]
		if len(pins) > 1 {
			pins = pins[1:]
		}
		return pin
	}
	env := newTestEnv(t, nil, app.Options{PinGenerator: next})
	ctx := context.Background()

	first, err := env.service.CreateSession(ctx, createParams())
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := env.service.CreateSession(ctx, createParams())
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first.GamePin != "123456" || second.GamePin != "654321" {
		t.Fatalf("unexpected pins %s and %s", first.GamePin, second.GamePin)
	}
	if first.Status != domain.StatusWaiting || first.Phase() != domain.PhaseWaiting {
		t.Fatalf("new session should be waiting, got %s", first.Status)
	}

	found, err := env.service.FindByPin(ctx, "654321")
	if err != nil || found.ID != second.ID {
		t.Fatalf("find by pin: %v %+v", err, found)
	}
}

func TestCreateSessionGivesUpWhenPinsExhausted(t *testing.T) {
	env := newTestEnv(t, nil, app.Options{PinGenerator: func() string { return "111111" }})
	ctx := context.Background()
	if _, err := env.service.CreateSession(ctx, createParams()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.service.CreateSession(ctx, createParams()); !errors.Is(err, domain.ErrPinTaken) {
		t.Fatalf("expected ErrPinTaken, got %v", err)
	}
}

func TestCreateSessionValidatesInput(t *testing.T) {
	env := newTestEnv(t, nil, app.Options{})
	ctx := context.Background()

	params := createParams()
	params.QuizID = "missing"
	if _, err := env.service.CreateSession(ctx, params); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
	params = createParams()
	params.Mode = "battle"
	if _, err := env.service.CreateSession(ctx, params); err == nil {
		t.Fatalf("expected unknown mode to fail")
	}
}

func TestFindByPinRejectsBadPins(t *testing.T) {
	env := newTestEnv(t, nil, app.Options{})
	ctx := context.Background()
	for _, pin := range []string{"", "12ab56", "1234567", "999999"} {
		if _, err := env.service.FindByPin(ctx, pin); !errors.Is(err, domain.ErrInvalidPin) {
			t.Fatalf("pin %q: expected ErrInvalidPin, got %v", pin, err)
		}
	}
}

func TestFinishedSessionReleasesPin(t *testing.T) {
	env := newTestEnv(t, nil, app.Options{PinGenerator: func() string { return "222222" }})
	ctx := context.Background()
	session, _ := env.startedSession(t, createParams())
	if _, err := env.service.EndSession(ctx, session.ID, "host-1"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := env.service.FindByPin(ctx, "222222"); !errors.Is(err, domain.ErrInvalidPin) {
		t.Fatalf("finished session must not resolve by pin, got %v", err)
	}
	if _, err := env.service.CreateSession(ctx, createParams()); err != nil {
		t.Fatalf("pin should be reusable: %v", err)
	}
}

func TestStartCountdownRules(t *testing.T) {
	env := newTestEnv(t, nil, app.Options{Countdown: 5 * time.Second})
	ctx := context.Background()
	session, err := env.service.CreateSession(ctx, createParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := env.service.StartCountdown(ctx, session.ID, "intruder"); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	started, err := env.service.StartCountdown(ctx, session.ID, "host-1")
	if err != nil {
		t.Fatalf("start countdown: %v", err)
	}
	env.clock.Advance(2 * time.Second)
	again, err := env.service.StartCountdown(ctx, session.ID, "host-1")
	if err != nil {
		t.Fatalf("repeat countdown: %v", err)
	}
	if !again.CountdownStartedAt.Equal(*started.CountdownStartedAt) {
		t.Fatalf("repeat must keep the original start time")
	}

	snap, err := env.service.Snapshot(ctx, session.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Phase != domain.PhaseCountdown || snap.CountdownRemainingMs != 3000 {
		t.Fatalf("unexpected countdown view: phase=%s remaining=%d", snap.Phase, snap.CountdownRemainingMs)
	}

	// Not due yet: a client-driven activation is a no-op.
	pending, err := env.service.ActivateIfDue(ctx, session.ID)
	if err != nil || pending.Status != domain.StatusWaiting {
		t.Fatalf("early activation should be ignored: %v %s", err, pending.Status)
	}
}

func TestCountdownAndGameTimerFireOnTheirOwn(t *testing.T) {
	env := newTestEnv(t, nil, app.Options{Countdown: 5 * time.Second})
	ctx := context.Background()
	params := createParams()
	params.TotalTimeMinutes = 1
	session, err := env.service.CreateSession(ctx, params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.service.StartCountdown(ctx, session.ID, "host-1"); err != nil {
		t.Fatalf("start countdown: %v", err)
	}

	env.clock.Advance(5 * time.Second)
	waitFor(t, "activation", func() bool {
		s, err := env.service.GetSession(ctx, session.ID)
		return err == nil && s.Status == domain.StatusActive
	})

	left, err := env.service.TimeLeft(ctx, session.ID)
	if err != nil || left != time.Minute {
		t.Fatalf("expected a full minute left, got %v (%v)", left, err)
	}

	env.clock.Advance(time.Minute)
	waitFor(t, "expiry", func() bool {
		s, err := env.service.GetSession(ctx, session.ID)
		return err == nil && s.Status == domain.StatusFinished && s.FinalizedAt != nil
	})
	left, _ = env.service.TimeLeft(ctx, session.ID)
	if left != 0 {
		t.Fatalf("finished session must report no time left, got %v", left)
	}
}

func TestConcurrentActivateAgreesOnStart(t *testing.T) {
	env := newTestEnv(t, nil, app.Options{})
	ctx := context.Background()
	session, err := env.service.CreateSession(ctx, createParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]domain.Session, 10)
	errs := make([]error, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.service.Activate(ctx, session.ID)
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("activate %d: %v", i, errs[i])
		}
		if results[i].StartedAt == nil || !results[i].StartedAt.Equal(*results[0].StartedAt) {
			t.Fatalf("activations disagree on StartedAt")
		}
	}
}

func TestFinishRequiresActiveAndHost(t *testing.T) {
	env := newTestEnv(t, nil, app.Options{})
	ctx := context.Background()
	session, err := env.service.CreateSession(ctx, createParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.service.Finish(ctx, session.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("finishing a waiting session: %v", err)
	}
	if _, err := env.service.Activate(ctx, session.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := env.service.EndSession(ctx, session.ID, "player"); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	// Not expired: client-driven finish is ignored.
	if s, err := env.service.FinishIfExpired(ctx, session.ID); err != nil || s.Status != domain.StatusActive {
		t.Fatalf("early finish should be ignored: %v %s", err, s.Status)
	}
	finished, err := env.service.EndSession(ctx, session.ID, "host-1")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if finished.EndedAt == nil || finished.FinalizedAt == nil {
		t.Fatalf("finished session should be stamped: %+v", finished)
	}
	again, err := env.service.Finish(ctx, session.ID)
	if err != nil || !again.EndedAt.Equal(*finished.EndedAt) {
		t.Fatalf("second finish must be a no-op: %v", err)
	}
	if _, err := env.service.Activate(ctx, session.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("finished sessions cannot restart, got %v", err)
	}
}

func TestAdvanceQuestionStopsAtLast(t *testing.T) {
	env := newTestEnv(t, nil, app.Options{})
	ctx := context.Background()
	session, _ := env.startedSession(t, createParams())

	for i := 0; i < 3; i++ {
		if _, err := env.service.AdvanceQuestion(ctx, session.ID, "host-1"); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	got, _ := env.service.GetSession(ctx, session.ID)
	if got.CurrentQuestionIndex != 1 {
		t.Fatalf("expected index 1 (last question), got %d", got.CurrentQuestionIndex)
	}
}

func TestEnforceDeadlinesSweepsOpenSessions(t *testing.T) {
	env := newTestEnv(t, nil, app.Options{Countdown: 5 * time.Second})
	ctx := context.Background()
	counting, err := env.service.CreateSession(ctx, createParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.service.StartCountdown(ctx, counting.ID, "host-1"); err != nil {
		t.Fatalf("countdown: %v", err)
	}
	params := createParams()
	params.TotalTimeMinutes = 1
	running, _ := env.startedSession(t, params)

	// Timers are dropped to prove the sweep alone drives the transitions.
	env.service.Close()
	env.clock.Advance(2 * time.Minute)
	if err := env.service.EnforceDeadlines(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if s, _ := env.service.GetSession(ctx, counting.ID); s.Status != domain.StatusActive {
		t.Fatalf("countdown session should be active, got %s", s.Status)
	}
	if s, _ := env.service.GetSession(ctx, running.ID); s.Status != domain.StatusFinished {
		t.Fatalf("expired session should be finished, got %s", s.Status)
	}
}

func TestResumeRearmsTimers(t *testing.T) {
	env := newTestEnv(t, nil, app.Options{})
	ctx := context.Background()
	params := createParams()
	params.TotalTimeMinutes = 1
	session, _ := env.startedSession(t, params)

	// A second coordinator over the same store stands in for a restart.
	restarted := app.NewSessionService(env.store, nil, env.hub, app.Options{Clock: env.clock})
	defer restarted.Close()
	env.service.Close()
	if err := restarted.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}

	env.clock.Advance(time.Minute)
	waitFor(t, "resumed expiry", func() bool {
		s, err := env.store.GetSession(ctx, session.ID)
		return err == nil && s.Status == domain.StatusFinished
	})
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t, nil, app.Options{})
	ctx := context.Background()
	session, players := env.startedSession(t, createParams(), "Alice")

	if err := env.service.DeleteSession(ctx, session.ID, "someone"); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	if err := env.service.DeleteSession(ctx, session.ID, "host-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.service.GetSession(ctx, session.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("session should be gone, got %v", err)
	}
	if _, err := env.service.GetParticipant(ctx, players[0].ID); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("participants should cascade, got %v", err)
	}
}
