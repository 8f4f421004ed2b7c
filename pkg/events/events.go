package events

import (
	"context"
	"time"
)

// Routing keys of planning events.
const (
	SlotCreated           = "planning.slot.created"
	SlotUpdated           = "planning.slot.updated"
	SlotMoved             = "planning.slot.moved"
	SlotCancelled         = "planning.slot.cancelled"
	SlotDeleted           = "planning.slot.deleted"
	BatchScheduled        = "planning.batch.scheduled"
	ShutdownStatusChanged = "planning.shutdown.status_changed"
	RebalanceCompleted    = "planning.rebalance.completed"
	AvailabilityChanged   = "planning.availability.changed"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	TenantID   string      `json:"tenant_id"`
	ActorID    string      `json:"actor_id,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// Publisher delivers events after the originating transaction committed.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event. It is used when publishing is disabled.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
