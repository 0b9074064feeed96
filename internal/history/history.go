package history

import (
	"context"
	"errors"
	"time"
)

// EventType defines the kind of sidecar lifecycle event.
type EventType string

const (
	EventStartRequested EventType = "start_requested"
	EventStarted        EventType = "started"
	EventStartFailed    EventType = "start_failed"
	EventExited         EventType = "exited"
	EventStopped        EventType = "stopped"
)

// Record describes one backend run. RunID is unique per launch attempt.
type Record struct {
	RunID string `json:"run_id"`
	Name  string `json:"name"`
	Mode  string `json:"mode"`
	PID   int    `json:"pid"`
	Port  uint16 `json:"port"`
	Error string `json:"error,omitempty"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
