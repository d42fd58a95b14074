package geostream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahmedkamals/geostream/internal/errors"
	"go.uber.org/zap"
)

type (
	// Validator decides whether a produced value reaches subscribers.
	Validator[T any] func(request *Request[T], data T) DiscardReason

	// Hooks customise a request per producer kind.
	Hooks[T any] struct {
		// Validate runs after the built in enabled check.
		Validate Validator[T]
		// OnAddedToQueue runs once the request entered the pool, e.g. to start a network call.
		OnAddedToQueue func(*Request[T])
		// OnRemovedFromQueue runs once the request left the pool, e.g. to cancel an in-flight call.
		OnRemovedFromQueue func(*Request[T])
		// Accepts routes pool events; nil accepts broadcast events and events targeting the request.
		Accepts func(*Request[T], Event) bool
	}

	// RequestOption customises a Request on creation.
	RequestOption[T any] func(*Request[T])

	// Request is a single logical subscription to a producer's stream.
	// It owns its subscriptions, eviction policy, last received value and timeout.
	Request[T any] struct {
		id    UUID
		name  string
		kind  Kind
		hooks Hooks[T]

		// deliverMux serialises ReceiveData so deliveries keep the call order.
		deliverMux sync.Mutex

		mux              sync.Mutex
		state            RequestState
		enabled          bool
		policies         EvictionPolicySet
		policyFilter     func(EvictionPolicySet) EvictionPolicySet
		lastReceived     *Result[T]
		lastValue        *T
		countReceived    int
		sequence         uint64
		delivering       bool
		terminated       bool
		pendingCancel    []*Subscription[T]
		hasPendingCancel bool
		env              *environment

		subscriptions *subscriptionList[T]
		timeout       *Timeout
	}
)

// NewRequest creates an idle request of the given kind.
func NewRequest[T any](kind Kind, options ...RequestOption[T]) *Request[T] {
	r := &Request[T]{
		id:            NewUUID(),
		kind:          kind,
		enabled:       true,
		policies:      NewEvictionPolicySet(),
		subscriptions: newSubscriptionList[T](),
		env:           detachedEnvironment(),
	}

	for _, option := range options {
		option(r)
	}

	if r.policyFilter != nil {
		r.policies = r.policyFilter(r.policies)
	}

	return r
}

// WithID overrides the generated identifier.
func WithID[T any](id UUID) RequestOption[T] {
	return func(r *Request[T]) {
		if id != "" {
			r.id = id
		}
	}
}

// WithName sets a human label.
func WithName[T any](name string) RequestOption[T] {
	return func(r *Request[T]) {
		r.name = name
	}
}

// WithEvictionPolicy replaces the eviction policy set.
func WithEvictionPolicy[T any](policies ...EvictionPolicy) RequestOption[T] {
	return func(r *Request[T]) {
		r.policies = NewEvictionPolicySet(policies...)
	}
}

// WithTimeout attaches a timeout controller.
func WithTimeout[T any](policy TimeoutPolicy) RequestOption[T] {
	return func(r *Request[T]) {
		r.timeout = NewTimeout(policy, r.onTimeout)
	}
}

// withPolicyFilter rewrites every policy set assigned to the request.
func withPolicyFilter[T any](filter func(EvictionPolicySet) EvictionPolicySet) RequestOption[T] {
	return func(r *Request[T]) {
		r.policyFilter = filter
	}
}

// WithHooks installs per kind behaviour.
func WithHooks[T any](hooks Hooks[T]) RequestOption[T] {
	return func(r *Request[T]) {
		r.hooks = hooks
	}
}

// WithValidator installs a validation hook.
func WithValidator[T any](validator Validator[T]) RequestOption[T] {
	return func(r *Request[T]) {
		r.hooks.Validate = validator
	}
}

// ID returns the request identifier.
func (r *Request[T]) ID() UUID {
	return r.id
}

// Name returns the human label.
func (r *Request[T]) Name() string {
	return r.name
}

// Kind returns the producer kind.
func (r *Request[T]) Kind() Kind {
	return r.kind
}

func (r *Request[T]) String() string {
	if r.name != "" {
		return fmt.Sprintf("%s[%s:%s]", r.name, r.kind, r.id)
	}

	return fmt.Sprintf("%s:%s", r.kind, r.id)
}

// State returns the lifecycle state.
func (r *Request[T]) State() RequestState {
	r.mux.Lock()
	defer r.mux.Unlock()

	return r.state
}

// IsEnabled reports whether inbound data is accepted.
func (r *Request[T]) IsEnabled() bool {
	r.mux.Lock()
	defer r.mux.Unlock()

	return r.enabled
}

// SetEnabled toggles data acceptance. Disabled requests stay queued and discard data.
func (r *Request[T]) SetEnabled(enabled bool) {
	r.mux.Lock()
	r.enabled = enabled
	r.mux.Unlock()
}

// Pause stalls a running request and reports whether it did.
func (r *Request[T]) Pause() bool {
	r.mux.Lock()
	defer r.mux.Unlock()

	if r.state != StateRunning {
		return false
	}
	r.state = StatePaused

	return true
}

// Resume restarts a paused request and reports whether it did.
func (r *Request[T]) Resume() bool {
	r.mux.Lock()
	defer r.mux.Unlock()

	if r.state != StatePaused {
		return false
	}
	r.state = StateRunning

	return true
}

// EvictionPolicy returns a copy of the eviction policy set.
func (r *Request[T]) EvictionPolicy() EvictionPolicySet {
	r.mux.Lock()
	defer r.mux.Unlock()

	return r.policies.Clone()
}

// SetEvictionPolicy replaces the eviction policy set.
func (r *Request[T]) SetEvictionPolicy(policies ...EvictionPolicy) {
	set := NewEvictionPolicySet(policies...)

	r.mux.Lock()
	if r.policyFilter != nil {
		set = r.policyFilter(set)
	}
	r.policies = set
	r.mux.Unlock()
}

// LastReceivedValue returns the most recent delivered result.
// Discarded values never replace it, so a late subscriber only replays data that passed validation.
func (r *Request[T]) LastReceivedValue() (Result[T], bool) {
	r.mux.Lock()
	defer r.mux.Unlock()

	if r.lastReceived == nil {
		return Result[T]{}, false
	}

	return *r.lastReceived, true
}

// LastValue returns the most recent validated value.
func (r *Request[T]) LastValue() (T, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()

	if r.lastValue == nil {
		var zero T
		return zero, false
	}

	return *r.lastValue, true
}

// CountReceivedData returns the number of validated deliveries.
func (r *Request[T]) CountReceivedData() int {
	r.mux.Lock()
	defer r.mux.Unlock()

	return r.countReceived
}

// Timeout returns the timeout controller, nil when none is configured.
func (r *Request[T]) Timeout() *Timeout {
	return r.timeout
}

// Authorized reports the authorization status of the pool holding the request.
func (r *Request[T]) Authorized() bool {
	return r.environment().authorized()
}

// Logger returns the logger of the pool holding the request.
func (r *Request[T]) Logger() *zap.Logger {
	return r.environment().logger.With(zap.String("request_id", string(r.id)), zap.Stringer("kind", r.kind))
}

// SubscriptionCount returns the number of live subscriptions.
func (r *Request[T]) SubscriptionCount() int {
	return r.subscriptions.Length()
}

// Then registers a callback posted to queue on every delivery and returns its id.
// A nil queue means the default queue of the pool holding the request at delivery time.
// When a value was already delivered the callback first receives it, before any later delivery.
// A callback on InlineQueue runs while the delivery lock is held: it may call Then, Cancel or
// CancelRequest, but calling ReceiveData on the same request deadlocks.
func (r *Request[T]) Then(queue Queue, callback func(Result[T])) UUID {
	r.mux.Lock()
	subscription := newSubscription(queue, callback)
	last, sequence := r.lastReceived, r.sequence
	if last != nil {
		subscription.replay = sequence
	}
	r.subscriptions.Append(subscription)
	r.mux.Unlock()

	if last != nil {
		r.schedule(subscription, *last, sequence, true)
	}

	return subscription.id
}

// Cancel removes one subscription; it is a no-op when absent.
func (r *Request[T]) Cancel(id UUID) bool {
	return r.subscriptions.Delete(id)
}

// CancelAllSubscriptions removes every subscription.
func (r *Request[T]) CancelAllSubscriptions() {
	r.subscriptions.Clear()
}

// HasSubscription reports whether the subscription belongs to the request.
func (r *Request[T]) HasSubscription(id UUID) bool {
	_, ok := r.subscriptions.Find(id)

	return ok
}

// CancelRequest removes the request from its pool. Subscribers that did not
// receive a terminal result get ErrCancelled. Safe to call twice or from a callback.
func (r *Request[T]) CancelRequest() {
	r.environment().remove(r)
}

// Async waits for a single delivery; see Await.
func (r *Request[T]) Async(ctx context.Context) (T, error) {
	return Await(ctx, r)
}

// ReceiveData feeds a producer result to the request.
// Failures are dispatched then evaluated against onError; values are validated,
// counted, dispatched then evaluated against onReceiveData.
// The returned reason is NotDiscarded for a delivered value.
func (r *Request[T]) ReceiveData(result Result[T]) DiscardReason {
	return r.receive(result, false)
}

// DispatchData posts result to the given subscriptions, or to every live subscription when none is given.
func (r *Request[T]) DispatchData(result Result[T], subscriptions ...*Subscription[T]) {
	r.mux.Lock()
	r.sequence++
	sequence := r.sequence
	r.mux.Unlock()

	if len(subscriptions) == 0 {
		subscriptions = r.subscriptions.Snapshot()
	}

	r.post(subscriptions, result, sequence)
}

// StartTimeoutIfNeeded arms the timeout of a queued request when configured.
func (r *Request[T]) StartTimeoutIfNeeded() {
	if r.timeout == nil {
		return
	}

	state := r.State()
	if state != StateRunning && state != StatePaused {
		return
	}

	if r.timeout.StartIfNeeded(r.Authorized()) {
		r.Logger().Debug("timeout armed", zap.Stringer("timeout", r.timeout.Policy()))
	}
}

// Accepts reports whether the pool event belongs to the request.
func (r *Request[T]) Accepts(event Event) bool {
	if r.hooks.Accepts != nil {
		return r.hooks.Accepts(r, event)
	}

	return event.Target() == "" || event.Target() == r.id
}

// Deliver converts a pool event into a result.
func (r *Request[T]) Deliver(event Event) DiscardReason {
	if event.Err() != nil {
		return r.ReceiveData(Failure[T](event.Err()))
	}

	data, ok := event.Payload().(T)
	if !ok {
		r.Logger().Debug("payload type mismatch", zap.String("payload", fmt.Sprintf("%T", event.Payload())))
		r.environment().metrics.discarded()

		return InternalEvaluation
	}

	return r.ReceiveData(Success(data))
}

func (r *Request[T]) receive(result Result[T], force bool) DiscardReason {
	r.deliverMux.Lock()
	defer r.deliverMux.Unlock()

	r.mux.Lock()
	state := r.state
	if state != StateRunning && !(force && state == StatePaused) {
		r.mux.Unlock()
		r.discard(RequestPaused)

		return RequestPaused
	}
	r.delivering = true
	r.mux.Unlock()

	defer r.finishDelivery()

	if result.Err != nil {
		return r.receiveError(result)
	}

	if reason := r.validate(result.Value); reason.Discarded() {
		r.discard(reason)

		return reason
	}

	r.mux.Lock()
	r.countReceived++
	r.lastReceived = &result
	value := result.Value
	r.lastValue = &value
	r.sequence++
	sequence, count, policies := r.sequence, r.countReceived, r.policies
	r.mux.Unlock()

	r.resetTimeout()
	r.post(r.subscriptions.Snapshot(), result, sequence)
	r.environment().metrics.delivered()

	if ShouldEvict(policies, count, false) {
		r.Logger().Debug("evicting request", zap.Stringer("policy", policies), zap.Int("count", count))
		r.evict()
	}

	return NotDiscarded
}

func (r *Request[T]) receiveError(result Result[T]) DiscardReason {
	if IsDiscardable(result.Err) {
		r.discard(InternalEvaluation)

		return InternalEvaluation
	}

	r.mux.Lock()
	r.lastReceived = &result
	r.sequence++
	sequence, policies := r.sequence, r.policies
	r.mux.Unlock()

	r.post(r.subscriptions.Snapshot(), result, sequence)
	r.environment().metrics.failed()

	if ShouldEvict(policies, 0, true) {
		r.Logger().Debug("evicting request after error", zap.Error(result.Err))
		r.evict()
	}

	return GenericError
}

func (r *Request[T]) validate(data T) DiscardReason {
	if !r.IsEnabled() {
		return RequestNotEnabled
	}

	if r.hooks.Validate == nil {
		return NotDiscarded
	}

	return r.hooks.Validate(r, data)
}

func (r *Request[T]) discard(reason DiscardReason) {
	r.environment().metrics.discarded()
	r.Logger().Debug("data discarded", zap.Stringer("reason", reason))
}

// evict removes the request after a terminal delivery.
func (r *Request[T]) evict() {
	r.mux.Lock()
	r.terminated = true
	r.mux.Unlock()

	r.CancelRequest()
}

// finishDelivery flushes a cancellation requested while a delivery was in progress.
func (r *Request[T]) finishDelivery() {
	r.mux.Lock()
	r.delivering = false
	pending, hasPending := r.pendingCancel, r.hasPendingCancel && !r.terminated
	r.pendingCancel, r.hasPendingCancel = nil, false
	r.mux.Unlock()

	if hasPending {
		r.dispatchCancellation(pending)
	}
}

func (r *Request[T]) dispatchCancellation(subscriptions []*Subscription[T]) {
	const op errors.Operation = "Request.CancelRequest"

	if len(subscriptions) == 0 {
		return
	}

	r.DispatchData(Failure[T](errors.E(op, errors.Cancelled)), subscriptions...)
}

func (r *Request[T]) onTimeout(interval time.Duration) {
	const op errors.Operation = "Request.onTimeout"

	r.environment().metrics.timedOut()
	r.Logger().Debug("timeout fired", zap.Duration("interval", interval))

	r.receive(Failure[T](errors.E(op, errors.Timeout, errors.Errorf("no data after %s", interval))), true)
	r.evict()
}

func (r *Request[T]) resetTimeout() {
	if r.timeout == nil {
		return
	}

	r.timeout.Reset()
	if r.timeout.Policy().Rearm {
		r.StartTimeoutIfNeeded()
	}
}

func (r *Request[T]) post(subscriptions []*Subscription[T], result Result[T], sequence uint64) {
	for _, subscription := range subscriptions {
		r.schedule(subscription, result, sequence, false)
	}
}

func (r *Request[T]) schedule(subscription *Subscription[T], result Result[T], sequence uint64, replay bool) {
	queue := subscription.queue
	if queue == nil {
		queue = r.environment().queue
	}

	queue.Post(func() {
		r.invoke(subscription, result, sequence, replay)
	})
}

// invoke runs one callback; a panic is reported and never reaches other subscriptions.
func (r *Request[T]) invoke(subscription *Subscription[T], result Result[T], sequence uint64, replay bool) {
	const op errors.Operation = "Request.invoke"

	if !subscription.admit(sequence, replay) {
		return
	}

	defer func() {
		if err := recover(); err != nil {
			env := r.environment()
			env.metrics.panicked()
			env.errorQueue.Report(errors.E(op, errors.Panic, errors.Errorf("subscription %s: %v", subscription.id, err)))
		}
	}()

	subscription.callback(result)
}

func (r *Request[T]) environment() *environment {
	r.mux.Lock()
	defer r.mux.Unlock()

	return r.env
}

// onAddedToQueue starts an idle request. It reports false when the request
// already left the pool, in which case nothing is started.
func (r *Request[T]) onAddedToQueue(env *environment) bool {
	r.mux.Lock()
	if r.state != StateIdle {
		r.mux.Unlock()

		return false
	}
	r.env = env
	r.state = StateRunning
	r.mux.Unlock()

	if r.hooks.OnAddedToQueue != nil {
		r.hooks.OnAddedToQueue(r)
	}

	return true
}

func (r *Request[T]) onRemovedFromQueue() {
	r.mux.Lock()
	r.state = StateExpired
	terminated := r.terminated
	r.mux.Unlock()

	if r.timeout != nil {
		r.timeout.Reset()
	}

	dropped := r.subscriptions.Clear()

	if !terminated {
		r.mux.Lock()
		if r.delivering {
			r.pendingCancel = append(r.pendingCancel, dropped...)
			r.hasPendingCancel = true
			dropped = nil
		}
		r.mux.Unlock()

		r.dispatchCancellation(dropped)
	}

	if r.hooks.OnRemovedFromQueue != nil {
		r.hooks.OnRemovedFromQueue(r)
	}
}
