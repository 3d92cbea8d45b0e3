// Package events publishes change notifications to downstream consumers.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/starford/cadence/internal/observability"
)

// Event types.
const (
	ActivityImported = "activity.imported"
	ImportFailed     = "import.failed"
	BeliefUpdated    = "belief.updated"
	BeliefsArchived  = "belief.archived"
)

// Event is one change notification. Key is the partition key: the activity
// id, ledger path or belief id the event is about.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Key  string    `json:"key"`
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}

// New returns an event with a fresh id stamped now.
func New(typ, key string, data any) Event {
	return Event{ID: uuid.NewString(), Type: typ, Key: key, At: time.Now().UTC(), Data: data}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop discards every event.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, Event) error { return nil }

// Sink is a named Publisher.
type Sink struct {
	Name string
	Publisher
}

// Fanout publishes every event to all sinks. Delivery failures are joined
// and counted per sink; one failing sink does not stop the others.
type Fanout []Sink

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range f {
		err := s.Publish(ctx, e)
		observability.RecordEvent(s.Name, err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
