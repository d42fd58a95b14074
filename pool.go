package geostream

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahmedkamals/geostream/internal/errors"
	"github.com/rcrowley/go-metrics"
	"go.uber.org/zap"
)

type (
	// ErrorQueue interface for error reporting.
	ErrorQueue interface {
		Report(error)
	}

	// ErrorQueueFunc adapts a function to ErrorQueue.
	ErrorQueueFunc func(error)

	nopErrorQueue struct{}

	// AuthorizationStatus is the producer authorization known to the pool.
	AuthorizationStatus int32

	// PoolOption customises a Pool on creation.
	PoolOption func(*Pool)

	// Pool is the registry of active requests grouped by kind.
	// It routes producer events to the requests accepting them and drives their lifecycle.
	Pool struct {
		// mux serialises add and remove; dispatch works on snapshots.
		mux           sync.Mutex
		store         *requestStore
		dispatcher    *dispatcher
		logger        *zap.Logger
		errorQueue    ErrorQueue
		registry      metrics.Registry
		metrics       *poolMetrics
		queue         Queue
		ownedQueue    SerialQueue
		authorization int32
		closed        int32
	}
)

const (
	// AuthorizationNotDetermined the user was not asked yet.
	AuthorizationNotDetermined AuthorizationStatus = iota
	// AuthorizationDenied the user refused.
	AuthorizationDenied
	// AuthorizationRestricted a policy prevents granting it.
	AuthorizationRestricted
	// AuthorizationWhenInUse granted while the application is in use.
	AuthorizationWhenInUse
	// AuthorizationAlways granted at all times.
	AuthorizationAlways
)

var (
	defaultPool     *Pool
	defaultPoolOnce sync.Once
)

func (s AuthorizationStatus) String() string {
	switch s {
	case AuthorizationNotDetermined:
		return "not determined"
	case AuthorizationDenied:
		return "denied"
	case AuthorizationRestricted:
		return "restricted"
	case AuthorizationWhenInUse:
		return "when in use"
	case AuthorizationAlways:
		return "always"
	}

	return "unknown"
}

// Authorized reports whether producers may run.
func (s AuthorizationStatus) Authorized() bool {
	return s == AuthorizationWhenInUse || s == AuthorizationAlways
}

// Report calls f(err).
func (f ErrorQueueFunc) Report(err error) {
	f(err)
}

func (nopErrorQueue) Report(error) {}

// WithLogger sets the pool logger, zap.NewNop by default.
func WithLogger(logger *zap.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithErrorQueue sets where recovered panics are reported.
func WithErrorQueue(errorQueue ErrorQueue) PoolOption {
	return func(p *Pool) {
		if errorQueue != nil {
			p.errorQueue = errorQueue
		}
	}
}

// WithMetrics sets the registry the pool instruments are registered in.
func WithMetrics(registry metrics.Registry) PoolOption {
	return func(p *Pool) {
		if registry != nil {
			p.registry = registry
		}
	}
}

// WithDefaultQueue sets the queue used by subscriptions registered without one.
// The pool creates and owns a SerialQueue otherwise.
func WithDefaultQueue(queue Queue) PoolOption {
	return func(p *Pool) {
		p.queue = queue
	}
}

// WithAuthorization sets the initial authorization status.
func WithAuthorization(status AuthorizationStatus) PoolOption {
	return func(p *Pool) {
		p.authorization = int32(status)
	}
}

// NewPool creates an empty pool.
func NewPool(options ...PoolOption) *Pool {
	p := &Pool{
		store:      newRequestStore(),
		logger:     zap.NewNop(),
		errorQueue: nopErrorQueue{},
	}

	for _, option := range options {
		option(p)
	}

	if p.registry == nil {
		p.registry = metrics.NewRegistry()
	}
	p.metrics = newPoolMetrics(p.registry)

	if p.queue == nil {
		p.ownedQueue = NewSerialQueue()
		p.queue = p.ownedQueue
	}

	p.dispatcher = newDispatcher(p.store, p.logger, p.errorQueue, p.metrics)

	return p
}

// Default returns a process wide pool, created on first use.
// Prefer NewPool; Default exists for programs wiring a single pool.
func Default() *Pool {
	defaultPoolOnce.Do(func() {
		defaultPool = NewPool()
	})

	return defaultPool
}

// Metrics returns the registry holding the pool instruments.
func (p *Pool) Metrics() metrics.Registry {
	return p.registry
}

// Queue returns the default delivery queue.
func (p *Pool) Queue() Queue {
	return p.queue
}

// Add queues the request, moves it to running then arms its timeout.
func (p *Pool) Add(entry Entry) error {
	const op errors.Operation = "Pool.Add"

	if entry == nil || reflect.ValueOf(entry).IsNil() {
		return errors.E(op, errors.Invalid)
	}

	if atomic.LoadInt32(&p.closed) == 1 {
		return errors.E(op, errors.Failure, "pool is closed")
	}

	if entry.State() == StateExpired {
		return errors.E(op, errors.Invalid, errors.Errorf("request %s expired", entry))
	}

	p.mux.Lock()
	if !p.store.Store(entry) {
		p.mux.Unlock()

		return errors.E(op, errors.Exist, errors.Errorf("request %s", entry))
	}
	active := p.store.Length()
	p.mux.Unlock()

	p.metrics.requestAdded(active)
	p.logger.Debug("request added", zap.String("request_id", string(entry.ID())), zap.Stringer("kind", entry.Kind()))

	if !entry.onAddedToQueue(p.environment()) {
		p.logger.Debug("request removed before start", zap.String("request_id", string(entry.ID())))

		return nil
	}
	entry.StartTimeoutIfNeeded()

	return nil
}

// Remove dequeues the request and reports whether it was queued.
// Removing an absent request is a no-op.
func (p *Pool) Remove(entry Entry) bool {
	if entry == nil || reflect.ValueOf(entry).IsNil() {
		return false
	}

	p.mux.Lock()
	stored, ok := p.store.Remove(entry.Kind(), entry.ID())
	active := p.store.Length()
	p.mux.Unlock()

	if !ok {
		return false
	}

	p.metrics.requestRemoved(active)
	p.logger.Debug("request removed", zap.String("request_id", string(stored.ID())), zap.Stringer("kind", stored.Kind()))

	stored.onRemovedFromQueue()

	return true
}

// RemoveKind removes every request of a kind and returns how many were removed.
func (p *Pool) RemoveKind(kind Kind) int {
	removed := 0
	for _, entry := range p.store.Snapshot(kind) {
		if p.Remove(entry) {
			removed++
		}
	}

	return removed
}

// RemoveAll removes every request and returns how many were removed.
func (p *Pool) RemoveAll() int {
	removed := 0
	for _, kind := range p.store.Kinds() {
		removed += p.RemoveKind(kind)
	}

	return removed
}

// Dispatch routes the event to the requests of kind accepting it and returns how many accepted.
func (p *Pool) Dispatch(kind Kind, event Event) int {
	return p.dispatcher.dispatch(kind, event)
}

// DispatchAfter routes the events once duration elapsed, unless ctx ends first.
func (p *Pool) DispatchAfter(ctx context.Context, duration time.Duration, kind Kind, events ...Event) {
	go p.dispatcher.dispatchAfter(ctx, duration, kind, events...)
}

// DispatchLocations routes the newest location of a batch to the GPS requests,
// then lets the geofence requests observe it.
func (p *Pool) DispatchLocations(locations ...Location) int {
	if len(locations) == 0 {
		return 0
	}

	newest := locations[0]
	for _, location := range locations[1:] {
		if location.Timestamp.After(newest.Timestamp) {
			newest = location
		}
	}

	accepted := p.Dispatch(KindGPS, NewEvent(newest))

	for _, entry := range p.store.Snapshot(KindGeofence) {
		if geofence, ok := entry.(*GeofenceRequest); ok {
			geofence.Observe(newest)
		}
	}

	return accepted
}

// SetAuthorization updates the authorization status; once authorized, delayed timeouts are armed.
func (p *Pool) SetAuthorization(status AuthorizationStatus) {
	previous := AuthorizationStatus(atomic.SwapInt32(&p.authorization, int32(status)))
	if previous == status {
		return
	}

	p.logger.Debug("authorization changed", zap.Stringer("from", previous), zap.Stringer("to", status))

	if !status.Authorized() {
		return
	}

	for _, kind := range p.store.Kinds() {
		for _, entry := range p.store.Snapshot(kind) {
			entry.StartTimeoutIfNeeded()
		}
	}
}

// Authorization returns the current authorization status.
func (p *Pool) Authorization() AuthorizationStatus {
	return AuthorizationStatus(atomic.LoadInt32(&p.authorization))
}

// Requests returns a snapshot of the requests of a kind.
func (p *Pool) Requests(kind Kind) []Entry {
	return p.store.Snapshot(kind)
}

// Lookup returns the queued request of kind with the given id.
func (p *Pool) Lookup(kind Kind, id UUID) (Entry, bool) {
	return p.store.Lookup(kind, id)
}

// IsQueued reports whether the request is in the pool.
func (p *Pool) IsQueued(entry Entry) bool {
	if entry == nil || reflect.ValueOf(entry).IsNil() {
		return false
	}
	_, ok := p.store.Lookup(entry.Kind(), entry.ID())

	return ok
}

// Kinds returns the kinds with at least one queued request.
func (p *Pool) Kinds() []Kind {
	return p.store.Kinds()
}

// Count returns the number of queued requests of a kind.
func (p *Pool) Count(kind Kind) int {
	collection, ok := p.store.Load(kind)
	if !ok {
		return 0
	}

	return collection.Length()
}

// Length returns the number of queued requests.
func (p *Pool) Length() int {
	return p.store.Length()
}

// CancelSubscription finds the subscription among every queued request and cancels it.
func (p *Pool) CancelSubscription(id UUID) bool {
	for _, kind := range p.store.Kinds() {
		for _, entry := range p.store.Snapshot(kind) {
			if entry.HasSubscription(id) {
				return entry.Cancel(id)
			}
		}
	}

	return false
}

// Close removes every request and stops the owned default queue.
func (p *Pool) Close() {
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		return
	}

	p.RemoveAll()

	if p.ownedQueue != nil {
		p.ownedQueue.Close()
	}
}

func (p *Pool) authorized() bool {
	return p.Authorization().Authorized()
}

func (p *Pool) environment() *environment {
	return &environment{
		logger:     p.logger,
		errorQueue: p.errorQueue,
		metrics:    p.metrics,
		queue:      p.queue,
		authorized: p.authorized,
		remove:     p.Remove,
	}
}
