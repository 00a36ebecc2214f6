package notify

import (
	"context"
	"log/slog"
	"sync"
)

// FanOutEmitter dispatches each event to every registered sink.
type FanOutEmitter struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger *slog.Logger
}

// NewFanOutEmitter creates an emitter with no sinks registered.
func NewFanOutEmitter(logger *slog.Logger) *FanOutEmitter {
	return &FanOutEmitter{
		logger: logger.With("component", "notify_emitter"),
	}
}

var _ Emitter = (*FanOutEmitter)(nil)

// Register adds a delivery target.
func (e *FanOutEmitter) Register(sink Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
}

// Emit delivers the event to every sink. A failing sink is logged and
// skipped; the remaining sinks still receive the event.
func (e *FanOutEmitter) Emit(ctx context.Context, event *Event) {
	e.mu.RLock()
	sinks := make([]Sink, len(e.sinks))
	copy(sinks, e.sinks)
	e.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			e.logger.Warn("event delivery failed",
				"event_id", event.ID,
				"event_type", event.Type,
				"error", err)
		}
	}
}
