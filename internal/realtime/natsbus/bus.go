package natsbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"golekquiz-service/internal/domain"
	"golekquiz-service/internal/realtime"
)

// Config holds the NATS connection settings for cross-instance fan-out.
type Config struct {
	URL           string
	SubjectPrefix string // e.g. "golekquiz.sessions"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns sensible NATS defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "golekquiz.sessions",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Bus mirrors session events between service instances. Local subscribers are
// served by the in-process hub; every local publish is also sent to NATS and
// events from other instances are replayed into the hub.
type Bus struct {
	hub    *realtime.Hub
	nc     *nats.Conn
	sub    *nats.Subscription
	prefix string
	origin string
}

type envelope struct {
	Origin string    `json:"origin"`
	Event  wireEvent `json:"event"`
}

type wireEvent struct {
	Type      domain.EventType `json:"type"`
	SessionID string           `json:"sessionId"`
	At        time.Time        `json:"at"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
}

// Connect dials NATS and subscribes to the session subjects.
func Connect(hub *realtime.Hub, cfg Config) (*Bus, error) {
	opts := []nats.Option{
		nats.Name("golekquiz-service"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	bus := newBus(hub, cfg.SubjectPrefix)
	bus.nc = nc
	sub, err := nc.Subscribe(bus.prefix+".*", bus.handle)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", bus.prefix, err)
	}
	bus.sub = sub
	log.Info().Str("subject", bus.prefix+".*").Str("origin", bus.origin).Msg("NATS fan-out bridge ready")
	return bus, nil
}

func newBus(hub *realtime.Hub, prefix string) *Bus {
	if prefix == "" {
		prefix = DefaultConfig().SubjectPrefix
	}
	return &Bus{hub: hub, prefix: prefix, origin: uuid.NewString()}
}

// Publish delivers locally right away and forwards to other instances.
func (b *Bus) Publish(event domain.Event) {
	b.hub.Publish(event)
	if b.nc == nil {
		return
	}
	data, err := b.encode(event)
	if err != nil {
		log.Error().Err(err).Str("session_id", event.SessionID).Msg("encode event for NATS")
		return
	}
	if err := b.nc.Publish(b.subject(event.SessionID), data); err != nil {
		log.Error().Err(err).Str("session_id", event.SessionID).Msg("publish event to NATS")
	}
}

// Subscribe serves local subscribers from the hub.
func (b *Bus) Subscribe(sessionID string) (<-chan domain.Event, func()) {
	return b.hub.Subscribe(sessionID)
}

// Close unsubscribes and drains the connection.
func (b *Bus) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.nc != nil {
		_ = b.nc.Drain()
	}
}

func (b *Bus) subject(sessionID string) string {
	return b.prefix + "." + sessionID
}

func (b *Bus) encode(event domain.Event) ([]byte, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		Origin: b.origin,
		Event: wireEvent{
			Type:      event.Type,
			SessionID: event.SessionID,
			At:        event.At,
			Payload:   payload,
		},
	})
}

func (b *Bus) handle(msg *nats.Msg) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed NATS event")
		return
	}
	if env.Origin == b.origin {
		return
	}
	b.hub.Publish(domain.Event{
		Type:      env.Event.Type,
		SessionID: env.Event.SessionID,
		At:        env.Event.At,
		Payload:   env.Event.Payload,
	})
}
