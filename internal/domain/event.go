package domain

import "time"

// EventType names a watched mutation.
type EventType string

const (
	EventSessionUpdated     EventType = "session.updated"
	EventParticipantJoined  EventType = "participant.joined"
	EventParticipantUpdated EventType = "participant.updated"
	EventParticipantLeft    EventType = "participant.left"
	EventResponseCreated    EventType = "response.created"
	EventChatMessage        EventType = "chat.message"
	EventChatRead           EventType = "chat.read"
)

// Event is a change signal for one session. Payload carries the changed row, but
// subscribers are free to treat it as a refetch hint only.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	At        time.Time `json:"at"`
	Payload   any       `json:"payload,omitempty"`
}
