// Package events delivers transaction events to whoever listens: the audit
// log and the message broker. Emission never blocks the caller.
package events

import "time"

type Kind string

const (
	KindMessage   Kind = "message"
	KindAccepted  Kind = "accepted"
	KindDenied    Kind = "denied"
	KindCompleted Kind = "completed"
	KindErrored   Kind = "errored"
)

type Event struct {
	TransactionID string         `json:"transaction_id"`
	CommunityID   uint           `json:"community_id"`
	ActorID       *uint          `json:"actor_id,omitempty"`
	Kind          Kind           `json:"kind"`
	Payload       map[string]any `json:"payload,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// Sink accepts events for delivery.
type Sink interface {
	Emit(ev Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(Event) {}
