package geostream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	internalerrors "github.com/ahmedkamals/geostream/internal/errors"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAdd(t *testing.T) {
	t.Parallel()

	pool := newTestPool()
	queued := NewRequest[int](KindGPS)
	require.NoError(t, pool.Add(queued))

	testCases := []struct {
		id       string
		input    Entry
		expected internalerrors.Kind
	}{
		{"Should reject a nil request.", nil, internalerrors.Invalid},
		{"Should reject a typed nil request.", (*Request[int])(nil), internalerrors.Invalid},
		{"Should reject a duplicate id within a kind.", NewRequest[int](KindGPS, WithID[int](queued.ID())), internalerrors.Exist},
		{"Should accept the same id in another kind.", NewRequest[int](KindIP, WithID[int](queued.ID())), internalerrors.Other},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.id, func(t *testing.T) {
			err := pool.Add(testCase.input)
			if testCase.expected == internalerrors.Other {
				assert.NoError(t, err)
				return
			}
			assert.True(t, internalerrors.Is(testCase.expected, err), "unexpected error %v", err)
		})
	}

	assert.Equal(t, 2, pool.Length())
	assert.Equal(t, []Kind{KindGPS, KindIP}, pool.Kinds())
	assert.True(t, errors.Is(pool.Add(NewRequest[int](KindGPS, WithID[int](queued.ID()))), ErrExist))
}

// removedOnAdd leaves the pool between the store insert and the start of the request.
type removedOnAdd struct {
	Entry
	pool *Pool
}

func (e *removedOnAdd) onAddedToQueue(env *environment) bool {
	e.pool.Remove(e)

	return e.Entry.onAddedToQueue(env)
}

func TestPoolAddRemovedBeforeStart(t *testing.T) {
	t.Parallel()

	pool := newTestPool()

	started := 0
	request := NewRequest[int](KindGPS, WithHooks[int](Hooks[int]{
		OnAddedToQueue: func(*Request[int]) { started++ },
	}))
	results := newRecorder[int]()
	request.Then(InlineQueue, results.record)

	require.NoError(t, pool.Add(&removedOnAdd{Entry: request, pool: pool}))

	assert.False(t, pool.IsQueued(request))
	assert.Equal(t, StateExpired, request.State(), "Expiry is terminal.")
	assert.Zero(t, started)

	assert.Equal(t, RequestPaused, request.ReceiveData(Success(1)))

	recorded := results.snapshot()
	require.Len(t, recorded, 1)
	assert.ErrorIs(t, recorded[0].Err, ErrCancelled)

	producer := &fakeProducer[IPLocation]{}
	service := NewServiceRequest[IPLocation](KindIP, producer)
	require.NoError(t, pool.Add(&removedOnAdd{Entry: service, pool: pool}))

	executions, _ := producer.counts()
	assert.Zero(t, executions, "A removed service request never executes its producer.")
	assert.Equal(t, StateExpired, service.State())
}

func TestPoolRemoveIsIdempotent(t *testing.T) {
	t.Parallel()

	pool := newTestPool()
	request := NewRequest[int](KindGPS)
	require.NoError(t, pool.Add(request))

	assert.True(t, pool.Remove(request))
	assert.False(t, pool.Remove(request))
	assert.False(t, pool.Remove(nil))
	assert.Equal(t, 0, pool.Count(KindGPS))
	assert.Empty(t, pool.Kinds())
}

func TestPoolEvictionOnCount(t *testing.T) {
	t.Parallel()

	pool := newTestPool()
	request := NewRequest[int](KindGPS, WithEvictionPolicy[int](OnReceiveData(3)))
	require.NoError(t, pool.Add(request))

	recorded := newRecorder[int]()
	request.Then(nil, recorded.record)

	for index := 1; index <= 3; index++ {
		assert.True(t, pool.IsQueued(request), "Request should be queued before delivery %d.", index)
		assert.Equal(t, 1, pool.Dispatch(KindGPS, NewEvent(index)))
	}

	assert.False(t, pool.IsQueued(request))
	assert.Equal(t, StateExpired, request.State())
	assert.Equal(t, []Result[int]{Success(1), Success(2), Success(3)}, recorded.snapshot(), "Eviction after a terminal value sends no cancellation.")
}

func TestPoolEvictionOnError(t *testing.T) {
	t.Parallel()

	pool := newTestPool()
	request := NewRequest[int](KindGPS, WithEvictionPolicy[int](OnError()))
	require.NoError(t, pool.Add(request))

	recorded := newRecorder[int]()
	request.Then(nil, recorded.record)

	failure := errors.New("sensor failure")
	pool.Dispatch(KindGPS, NewErrorEvent(failure))

	assert.False(t, pool.IsQueued(request))

	results := recorded.snapshot()
	require.Len(t, results, 1)
	assert.Equal(t, failure, results[0].Err)

	last, ok := request.LastReceivedValue()
	require.True(t, ok)
	assert.Equal(t, failure, last.Err)
	_, ok = request.LastValue()
	assert.False(t, ok)
}

func TestPoolSingleDeliveryToTwoQueues(t *testing.T) {
	t.Parallel()

	pool := NewPool()
	defer pool.Close()

	queueA, queueB := NewSerialQueue(), NewSerialQueue()
	defer queueA.Close()
	defer queueB.Close()

	request := NewRequest[string](KindIP, WithEvictionPolicy[string](OnReceiveData(1)))
	first, second := newRecorder[string](), newRecorder[string]()
	request.Then(queueA, first.record)
	request.Then(queueB, second.record)
	require.NoError(t, pool.Add(request))

	assert.Equal(t, NotDiscarded, request.ReceiveData(Success("D")))

	assert.Equal(t, []Result[string]{Success("D")}, first.waitFor(t, 1))
	assert.Equal(t, []Result[string]{Success("D")}, second.waitFor(t, 1))
	assert.Equal(t, 1, request.CountReceivedData())
	assert.False(t, pool.IsQueued(request))

	<-time.After(20 * time.Millisecond)
	assert.Equal(t, 1, first.length())
	assert.Equal(t, 1, second.length())
}

func TestPoolDispatchMatching(t *testing.T) {
	t.Parallel()

	pool := newTestPool()
	first, second := NewRequest[int](KindGPS), NewRequest[int](KindGPS)
	other := NewRequest[int](KindIP)
	for _, request := range []*Request[int]{first, second, other} {
		require.NoError(t, pool.Add(request))
	}

	testCases := []struct {
		id       string
		kind     Kind
		event    Event
		expected int
	}{
		{"Broadcast events reach every request of the kind.", KindGPS, NewEvent(1), 2},
		{"Targeted events reach one request.", KindGPS, NewEvent(2, ForRequest(second.ID())), 1},
		{"Events for an unknown request reach nobody.", KindGPS, NewEvent(3, ForRequest(NewUUID())), 0},
		{"Events of an empty kind reach nobody.", KindBeacon, NewEvent(4), 0},
	}

	for _, testCase := range testCases {
		assert.Equal(t, testCase.expected, pool.Dispatch(testCase.kind, testCase.event), testCase.id)
	}

	assert.Equal(t, 1, first.CountReceivedData())
	assert.Equal(t, 2, second.CountReceivedData())
	assert.Equal(t, 0, other.CountReceivedData())
	assert.Equal(t, int64(2), pool.metrics.unmatched.Count())
}

func TestPoolDispatchRecoversAcceptPanics(t *testing.T) {
	t.Parallel()

	errorQueue := newFakeErrorQueue(testBufferSize)
	pool := newTestPool(WithErrorQueue(errorQueue))
	request := NewRequest[int](KindGPS, WithHooks(Hooks[int]{
		Accepts: func(*Request[int], Event) bool { panic("bad predicate") },
	}))
	require.NoError(t, pool.Add(request))

	assert.Equal(t, 0, pool.Dispatch(KindGPS, NewEvent(1)))
	assert.True(t, internalerrors.Is(internalerrors.Panic, errorQueue.getError(t)))
}

func TestPoolRemoveAllCancelsOnce(t *testing.T) {
	t.Parallel()

	pool := newTestPool()
	recorded := newRecorder[int]()

	for index := 0; index < 3; index++ {
		request := NewRequest[int](KindGPS)
		request.Then(nil, recorded.record)
		require.NoError(t, pool.Add(request))
	}
	beacon := NewRequest[int](KindBeacon)
	beacon.Then(nil, recorded.record)
	require.NoError(t, pool.Add(beacon))

	assert.Equal(t, 4, pool.RemoveAll())
	assert.Equal(t, 0, pool.RemoveAll())
	assert.Equal(t, 0, pool.Length())

	results := recorded.snapshot()
	require.Len(t, results, 4)
	for _, result := range results {
		assert.True(t, errors.Is(result.Err, ErrCancelled))
	}
}

func TestPoolRemoveKind(t *testing.T) {
	t.Parallel()

	pool := newTestPool()
	require.NoError(t, pool.Add(NewRequest[int](KindGPS)))
	require.NoError(t, pool.Add(NewRequest[int](KindGPS)))
	require.NoError(t, pool.Add(NewRequest[int](KindIP)))

	assert.Equal(t, 2, pool.RemoveKind(KindGPS))
	assert.Equal(t, 0, pool.Count(KindGPS))
	assert.Equal(t, 1, pool.Count(KindIP))
}

func TestPoolLookupAndRequests(t *testing.T) {
	t.Parallel()

	pool := newTestPool()
	request := NewRequest[int](KindGPS)
	require.NoError(t, pool.Add(request))

	found, ok := pool.Lookup(KindGPS, request.ID())
	require.True(t, ok)
	assert.Same(t, request, found.(*Request[int]))

	_, ok = pool.Lookup(KindIP, request.ID())
	assert.False(t, ok)

	snapshot := pool.Requests(KindGPS)
	require.Len(t, snapshot, 1)
	pool.Remove(request)
	assert.Len(t, snapshot, 1, "Snapshots do not follow later mutations.")
	assert.Empty(t, pool.Requests(KindGPS))
}

func TestPoolCancelSubscription(t *testing.T) {
	t.Parallel()

	pool := newTestPool()
	first, second := NewRequest[int](KindGPS), NewRequest[string](KindIP)
	require.NoError(t, pool.Add(first))
	require.NoError(t, pool.Add(second))

	first.Then(nil, func(Result[int]) {})
	id := second.Then(nil, func(Result[string]) {})

	assert.True(t, pool.CancelSubscription(id))
	assert.False(t, pool.CancelSubscription(id))
	assert.Equal(t, 1, first.SubscriptionCount())
	assert.Equal(t, 0, second.SubscriptionCount())
}

func TestPoolConcurrentDispatchAndMutation(t *testing.T) {
	t.Parallel()

	pool := NewPool()
	defer pool.Close()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			pool.Dispatch(KindGPS, NewEvent(1))
			_ = pool.Requests(KindGPS)
		}
	}()

	for worker := 0; worker < 4; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := 0; index < 50; index++ {
				request := NewRequest[int](KindGPS, WithEvictionPolicy[int](OnReceiveData(2)))
				request.Then(nil, func(Result[int]) {})
				if err := pool.Add(request); err != nil {
					t.Error(err)
					return
				}
				if index%2 == 0 {
					request.CancelRequest()
				}
			}
		}()
	}

	<-time.After(50 * time.Millisecond)
	cancel()
	wg.Wait()

	pool.RemoveAll()
	assert.Equal(t, 0, pool.Length())
}

func TestPoolMetrics(t *testing.T) {
	t.Parallel()

	registry := metrics.NewRegistry()
	pool := newTestPool(WithMetrics(registry))
	assert.Same(t, registry, pool.Metrics())

	request := NewRequest[int](KindGPS, WithValidator[int](func(_ *Request[int], value int) DiscardReason {
		if value < 0 {
			return CustomRejection
		}
		return NotDiscarded
	}))
	require.NoError(t, pool.Add(request))

	pool.Dispatch(KindGPS, NewEvent(1))
	pool.Dispatch(KindGPS, NewEvent(-1))
	pool.Dispatch(KindGPS, NewErrorEvent(errors.New("failure")))
	pool.Remove(request)

	counter := func(name string) int64 {
		return registry.Get(metricsPrefix + name).(metrics.Counter).Count()
	}

	assert.Equal(t, int64(1), counter("requests.added"))
	assert.Equal(t, int64(1), counter("requests.removed"))
	assert.Equal(t, int64(1), counter("data.delivered"))
	assert.Equal(t, int64(1), counter("data.discarded"))
	assert.Equal(t, int64(1), counter("errors.delivered"))
	assert.Equal(t, int64(0), registry.Get(metricsPrefix+"requests.active").(metrics.Gauge).Value())
}

func TestPoolDispatchAfter(t *testing.T) {
	t.Parallel()

	pool := newTestPool()
	request := NewRequest[int](KindGPS)
	recorded := newRecorder[int]()
	request.Then(nil, recorded.record)
	require.NoError(t, pool.Add(request))

	pool.DispatchAfter(context.Background(), 10*time.Millisecond, KindGPS, NewEvent(1), NewEvent(2))

	assert.Equal(t, []Result[int]{Success(1), Success(2)}, recorded.waitFor(t, 2))

	errorQueue := newFakeErrorQueue(testBufferSize)
	cancelled := newTestPool(WithErrorQueue(errorQueue))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cancelled.DispatchAfter(ctx, time.Hour, KindGPS, NewEvent(1))
	assert.Equal(t, context.Canceled, errorQueue.getError(t))
}

func TestPoolClose(t *testing.T) {
	t.Parallel()

	pool := NewPool()
	request := NewRequest[int](KindGPS)
	require.NoError(t, pool.Add(request))

	pool.Close()
	pool.Close()

	assert.Equal(t, StateExpired, request.State())
	assert.True(t, internalerrors.Is(internalerrors.Failure, pool.Add(NewRequest[int](KindGPS))))
}

func TestDefaultPool(t *testing.T) {
	t.Parallel()

	assert.Same(t, Default(), Default())
}

func TestAuthorizationStatus(t *testing.T) {
	t.Parallel()

	pool := newTestPool(WithAuthorization(AuthorizationDenied))
	assert.Equal(t, AuthorizationDenied, pool.Authorization())
	assert.False(t, pool.authorized())

	pool.SetAuthorization(AuthorizationAlways)
	assert.True(t, pool.authorized())
	assert.Equal(t, "always", pool.Authorization().String())
}
