// Package outbox implements the transactional outbox: domain events are
// written to the outbox table inside the same transaction as the aggregate
// state change that raised them, then relayed to the message bus
// asynchronously. Delivery is at-least-once with per-aggregate ordering;
// consumers deduplicate by event id.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"casework/pkg/domain"
)

// DomainEvent is raised by aggregate command handlers. Events are first-class
// in-process values; the persistence layer turns them into outbox rows.
type DomainEvent interface {
	EventType() string
	AggregateID() string
	AggregateType() string
	OccurredAt() time.Time
}

// Event is one outbox row. ID doubles as the consumer-side idempotency key.
// ProcessedAt is set once by the relay after a successful publish and never
// rewritten; rows are retained for replay and audit, never deleted.
type Event struct {
	ID            domain.EventID
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       []byte
	OccurredAt    time.Time
	ProcessedAt   *time.Time
}

// NewEvent wraps a domain event into an outbox row, serializing the event
// itself as the payload.
func NewEvent(ev DomainEvent) (Event, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", ev.EventType(), err)
	}
	return Event{
		ID:            domain.NewEventID(),
		AggregateID:   ev.AggregateID(),
		AggregateType: ev.AggregateType(),
		EventType:     ev.EventType(),
		Payload:       payload,
		OccurredAt:    ev.OccurredAt(),
	}, nil
}

// Envelope is the wire format published to the bus.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// ToEnvelope converts an outbox row to its wire representation.
func (e Event) ToEnvelope() Envelope {
	return Envelope{
		ID:            e.ID.String(),
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		EventType:     e.EventType,
		Payload:       e.Payload,
		OccurredAt:    e.OccurredAt,
	}
}
