package natsbus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"golekquiz-service/internal/domain"
	"golekquiz-service/internal/realtime"
)

func TestBusReplaysRemoteEvents(t *testing.T) {
	local := newBus(realtime.NewHub(), "")
	remote := newBus(realtime.NewHub(), "")

	events, cancel := local.Subscribe("s1")
	defer cancel()

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	data, err := remote.encode(domain.Event{
		Type:      domain.EventChatMessage,
		SessionID: "s1",
		At:        at,
		Payload:   map[string]string{"message": "halo"},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	local.handle(&nats.Msg{Subject: local.subject("s1"), Data: data})

	select {
	case ev := <-events:
		if ev.Type != domain.EventChatMessage || ev.SessionID != "s1" || !ev.At.Equal(at) {
			t.Fatalf("unexpected event: %+v", ev)
		}
		raw, ok := ev.Payload.(json.RawMessage)
		if !ok {
			t.Fatalf("expected raw payload, got %T", ev.Payload)
		}
		var payload map[string]string
		if err := json.Unmarshal(raw, &payload); err != nil || payload["message"] != "halo" {
			t.Fatalf("unexpected payload %s: %v", raw, err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for replayed event")
	}
}

func TestBusIgnoresOwnAndMalformedMessages(t *testing.T) {
	bus := newBus(realtime.NewHub(), "test.sessions")
	events, cancel := bus.Subscribe("s1")
	defer cancel()

	own, err := bus.encode(domain.Event{Type: domain.EventSessionUpdated, SessionID: "s1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	bus.handle(&nats.Msg{Subject: bus.subject("s1"), Data: own})
	bus.handle(&nats.Msg{Subject: bus.subject("s1"), Data: []byte("{not json")})

	select {
	case ev := <-events:
		t.Fatalf("unexpected event delivered: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if got := bus.subject("s1"); got != "test.sessions.s1" {
		t.Fatalf("unexpected subject %q", got)
	}
}

func TestBusPublishWithoutConnectionStaysLocal(t *testing.T) {
	bus := newBus(realtime.NewHub(), "")
	events, cancel := bus.Subscribe("s1")
	defer cancel()

	bus.Publish(domain.Event{Type: domain.EventParticipantJoined, SessionID: "s1"})
	select {
	case ev := <-events:
		if ev.Type != domain.EventParticipantJoined {
			t.Fatalf("unexpected event %q", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for local event")
	}
	bus.Close()
}
