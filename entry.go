package geostream

import (
	"fmt"

	"go.uber.org/zap"
)

type (
	// RequestState is the lifecycle state of a request.
	RequestState uint8

	// Entry is the pool's view of a request, independent of the data it produces.
	Entry interface {
		fmt.Stringer
		// ID returns the request identifier, unique within its kind.
		ID() UUID
		// Name returns the optional human label.
		Name() string
		// Kind returns the producer kind.
		Kind() Kind
		// State returns the lifecycle state.
		State() RequestState
		// Accepts reports whether an inbound event belongs to the request.
		Accepts(Event) bool
		// Deliver converts the event into a result and feeds it to the request.
		Deliver(Event) DiscardReason
		// StartTimeoutIfNeeded arms the request timeout when configured.
		StartTimeoutIfNeeded()
		// HasSubscription reports whether the subscription belongs to the request.
		HasSubscription(UUID) bool
		// Cancel removes a single subscription.
		Cancel(UUID) bool
		// CancelRequest removes the request from its pool.
		CancelRequest()

		// onAddedToQueue reports false when the request left the pool before it started.
		onAddedToQueue(*environment) bool
		onRemovedFromQueue()
	}

	// environment is what a queued request borrows from its pool.
	// remove is the only way back to the pool, the request never holds the pool itself.
	environment struct {
		logger     *zap.Logger
		errorQueue ErrorQueue
		metrics    *poolMetrics
		queue      Queue
		authorized func() bool
		remove     func(Entry) bool
	}
)

const (
	// StateIdle the request is not queued yet.
	StateIdle RequestState = iota
	// StateRunning the request is queued and receives data.
	StateRunning
	// StatePaused the request is queued but discards data.
	StatePaused
	// StateExpired the request left the pool, terminal.
	StateExpired
)

func (s RequestState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateExpired:
		return "expired"
	}

	return "unknown"
}

func detachedEnvironment() *environment {
	return &environment{
		logger:     zap.NewNop(),
		errorQueue: nopErrorQueue{},
		metrics:    nil,
		queue:      InlineQueue,
		authorized: func() bool { return false },
		remove:     func(Entry) bool { return false },
	}
}
