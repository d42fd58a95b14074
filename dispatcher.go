package geostream

import (
	"context"
	"time"

	"github.com/ahmedkamals/geostream/internal/errors"
	"go.uber.org/zap"
)

type (
	// dispatcher routes events to the matching requests of a kind.
	dispatcher struct {
		store      *requestStore
		logger     *zap.Logger
		errorQueue ErrorQueue
		metrics    *poolMetrics
	}
)

func newDispatcher(store *requestStore, logger *zap.Logger, errorQueue ErrorQueue, metrics *poolMetrics) *dispatcher {
	return &dispatcher{
		store:      store,
		logger:     logger,
		errorQueue: errorQueue,
		metrics:    metrics,
	}
}

func (d *dispatcher) getMatchedRequests(kind Kind, event Event) []Entry {
	const op errors.Operation = "Dispatcher.getMatchedRequests"

	matched := make([]Entry, 0)

	defer func() {
		if err := recover(); err != nil {
			d.errorQueue.Report(errors.E(op, errors.Panic, errors.Errorf("%v", err)))
		}
	}()

	for _, entry := range d.store.Snapshot(kind) {
		if !entry.Accepts(event) {
			continue
		}
		matched = append(matched, entry)
	}

	return matched
}

// dispatch delivers the event synchronously to every matching request.
func (d *dispatcher) dispatch(kind Kind, event Event) int {
	const op errors.Operation = "Dispatcher.dispatch"

	entries := d.getMatchedRequests(kind, event)
	if len(entries) == 0 {
		d.metrics.eventUnmatched()
		d.logger.Debug("event unmatched", zap.Stringer("kind", kind), zap.Stringer("event", event))

		return 0
	}

	for _, entry := range entries {
		func(entry Entry) {
			defer func() {
				if err := recover(); err != nil {
					d.errorQueue.Report(errors.E(op, errors.Panic, errors.Errorf("request %s: %v", entry, err)))
				}
			}()
			entry.Deliver(event)
		}(entry)
	}

	return len(entries)
}

func (d *dispatcher) dispatchAfter(ctx context.Context, duration time.Duration, kind Kind, events ...Event) {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		for _, event := range events {
			d.dispatch(kind, event)
		}
	case <-ctx.Done():
		d.errorQueue.Report(ctx.Err())
	}
}
