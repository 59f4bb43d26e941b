package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef identifies who produced the event. Customers are chat-platform
// users keyed by numeric id; operators act under a role label.
type ActorRef struct {
	UserID int64  `json:"userId,omitempty"`
	Role   string `json:"role,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
