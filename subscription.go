package geostream

import (
	"sync"
	"sync/atomic"
)

type (
	// Subscription is one consumer callback registered on a request, with the queue it runs on.
	Subscription[T any] struct {
		id       UUID
		queue    Queue
		callback func(Result[T])
		// replay is the sequence of the value replayed on registration, zero when none.
		replay   uint64
		replayed uint32
		// newest is the highest sequence handed to callback.
		newest uint64
	}

	// subscriptionList contains the live subscriptions of a request.
	subscriptionList[T any] struct {
		mux           sync.Mutex
		subscriptions []*Subscription[T]
	}
)

func newSubscription[T any](queue Queue, callback func(Result[T])) *Subscription[T] {
	return &Subscription[T]{
		id:       NewUUID(),
		queue:    queue,
		callback: callback,
	}
}

// ID returns the subscription identifier.
func (s *Subscription[T]) ID() UUID {
	return s.id
}

// Queue returns the queue the callback is posted to.
func (s *Subscription[T]) Queue() Queue {
	return s.queue
}

// admit reports whether a task carrying seq runs the callback.
// Only the value replayed on registration can be posted twice, once by the replay and once by
// a concurrent delivery; the second copy is dropped. A replay overtaken by a newer delivery is dropped too.
func (s *Subscription[T]) admit(seq uint64, replay bool) bool {
	if replay && atomic.LoadUint64(&s.newest) > seq {
		return false
	}

	if seq == s.replay && !atomic.CompareAndSwapUint32(&s.replayed, 0, 1) {
		return false
	}

	for {
		current := atomic.LoadUint64(&s.newest)
		if seq <= current || atomic.CompareAndSwapUint64(&s.newest, current, seq) {
			return true
		}
	}
}

func newSubscriptionList[T any]() *subscriptionList[T] {
	return &subscriptionList[T]{
		subscriptions: make([]*Subscription[T], 0),
	}
}

func (sl *subscriptionList[T]) Append(subscriptions ...*Subscription[T]) {
	sl.mux.Lock()
	sl.subscriptions = append(sl.subscriptions, subscriptions...)
	sl.mux.Unlock()
}

func (sl *subscriptionList[T]) Delete(id UUID) bool {
	sl.mux.Lock()
	defer sl.mux.Unlock()

	for index, subscription := range sl.subscriptions {
		if subscription.id != id {
			continue
		}
		sl.subscriptions = append(sl.subscriptions[:index:index], sl.subscriptions[index+1:]...)

		return true
	}

	return false
}

func (sl *subscriptionList[T]) Find(id UUID) (*Subscription[T], bool) {
	sl.mux.Lock()
	defer sl.mux.Unlock()

	for _, subscription := range sl.subscriptions {
		if subscription.id == id {
			return subscription, true
		}
	}

	return nil, false
}

// Clear drops every subscription and returns the dropped ones.
func (sl *subscriptionList[T]) Clear() []*Subscription[T] {
	sl.mux.Lock()
	dropped := sl.subscriptions
	sl.subscriptions = make([]*Subscription[T], 0)
	sl.mux.Unlock()

	return dropped
}

func (sl *subscriptionList[T]) Length() int {
	sl.mux.Lock()
	length := len(sl.subscriptions)
	sl.mux.Unlock()

	return length
}

// Snapshot returns a copy safe to iterate while the list is mutated.
func (sl *subscriptionList[T]) Snapshot() []*Subscription[T] {
	sl.mux.Lock()
	snapshot := make([]*Subscription[T], len(sl.subscriptions))
	copy(snapshot, sl.subscriptions)
	sl.mux.Unlock()

	return snapshot
}
