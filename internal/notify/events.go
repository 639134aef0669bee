package notify

import (
	"encoding/json"
	"time"
)

const (
	EventReservationCreated = "ReservationCreated"
	TopicReservationCreated = "reservation.created"
)

type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Producer     string          `json:"producer"`
	TraceID      string          `json:"trace_id,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

// ReservationCreatedPayload carries the device tokens of the store that
// received the reservation.
type ReservationCreatedPayload struct {
	Tokens []string `json:"tokens"`
}
