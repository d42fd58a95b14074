package geostream

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type (
	// UUID identifies requests, subscriptions and events.
	UUID string

	// Metadata about the event.
	Metadata map[string]interface{}

	// Event is a unit of producer output routed by the pool to matching requests.
	Event struct {
		id        UUID
		target    UUID
		region    string
		payload   interface{}
		err       error
		createdAt time.Time
		headers   Metadata
	}

	// EventOption customises an Event.
	EventOption func(*Event)
)

// NewUUID creates new UUID.
func NewUUID() UUID {
	return UUID(uuid.New().String())
}

func newEvent(payload interface{}, err error, options ...EventOption) Event {
	event := Event{
		id:        NewUUID(),
		payload:   payload,
		err:       err,
		createdAt: time.Now(),
	}

	for _, option := range options {
		option(&event)
	}

	return event
}

// NewEvent returns an event carrying a produced value.
func NewEvent(payload interface{}, options ...EventOption) Event {
	return newEvent(payload, nil, options...)
}

// NewErrorEvent returns an event carrying a producer failure.
func NewErrorEvent(err error, options ...EventOption) Event {
	return newEvent(nil, err, options...)
}

// ForRequest restricts the event to the request with the given id.
func ForRequest(id UUID) EventOption {
	return func(e *Event) {
		e.target = id
	}
}

// ForRegion tags the event with the monitored region, or beacon proximity UUID, it concerns.
func ForRegion(region string) EventOption {
	return func(e *Event) {
		e.region = region
	}
}

// WithHeader attaches a metadata entry.
func WithHeader(key string, value interface{}) EventOption {
	return func(e *Event) {
		if e.headers == nil {
			e.headers = make(Metadata)
		}
		e.headers[key] = value
	}
}

// ID returns the event id.
func (e Event) ID() UUID {
	return e.id
}

// Target returns the request id the event belongs to, empty for broadcast events.
func (e Event) Target() UUID {
	return e.target
}

// Region returns the region tag, empty when the event is not region scoped.
func (e Event) Region() string {
	return e.region
}

// Payload returns the produced value.
func (e Event) Payload() interface{} {
	return e.payload
}

// Err returns the producer failure, if any.
func (e Event) Err() error {
	return e.err
}

// CreatedAt returns the time when the event was created.
func (e Event) CreatedAt() time.Time {
	return e.createdAt
}

// Header returns the value of the metadata specified by the key.
func (e Event) Header(key string) (interface{}, bool) {
	value, ok := e.headers[key]

	return value, ok
}

func (e Event) GoString() string {
	return fmt.Sprintf("%s[%s]", e.String(), e.id)
}

func (e Event) String() string {
	if e.err != nil {
		return fmt.Sprintf("event(error: %s)", e.err)
	}

	return fmt.Sprintf("event(%T)", e.payload)
}
