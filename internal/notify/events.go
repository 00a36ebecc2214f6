// Package notify carries job lifecycle events to delivery targets.
// Delivery failure must never fail the originating operation.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/promoloop/exchange-api/internal/domain"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	EventJobCompleted   EventType = "job.completed"
	EventJobFailed      EventType = "job.failed"
	EventJobCancelled   EventType = "job.cancelled"
	EventOwnerCompleted EventType = "owner.completed"
)

// Event is one structured lifecycle notification.
type Event struct {
	ID        uuid.UUID          `json:"id"`
	Type      EventType          `json:"type"`
	CreatedAt time.Time          `json:"created_at"`
	Job       *domain.Job        `json:"job,omitempty"`
	Client    *domain.Client     `json:"client,omitempty"`
	Summary   *domain.JobSummary `json:"summary,omitempty"`
	Error     string             `json:"error,omitempty"`
	Reason    string             `json:"reason,omitempty"`
}

// NewEvent creates an Event of the given type.
func NewEvent(eventType EventType) *Event {
	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		CreatedAt: time.Now().UTC(),
	}
}

// Sink is one delivery target for events.
type Sink interface {
	// Deliver sends the event. Errors are reported to the emitter for
	// logging only; they never propagate to the caller.
	Deliver(ctx context.Context, event *Event) error
}

// Emitter fans events out to zero or more sinks.
type Emitter interface {
	// Emit publishes the event. It never returns an error; delivery
	// failures are swallowed after logging.
	Emit(ctx context.Context, event *Event)
}
