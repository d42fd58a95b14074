package geostream

import (
	"sync"
	"testing"
	"time"
)

type (
	fakeErrorQueue struct {
		errChan chan error
	}

	recorder[T any] struct {
		mux     sync.Mutex
		results []Result[T]
		signal  chan struct{}
	}
)

const (
	testBufferSize = 100
	waitTime       = time.Second
)

func newFakeErrorQueue(size int) *fakeErrorQueue {
	return &fakeErrorQueue{
		errChan: make(chan error, size),
	}
}

func (feq *fakeErrorQueue) Report(err error) {
	select {
	case feq.errChan <- err:
	// Drop any error message that exceeds the error queue size.
	default:
	}
}

func (feq *fakeErrorQueue) getError(t *testing.T) error {
	t.Helper()

	select {
	case err := <-feq.errChan:
		return err
	case <-time.After(waitTime):
		t.Fatal("no error reported")
	}

	return nil
}

// newTestPool creates a pool delivering callbacks on the dispatching goroutine.
func newTestPool(options ...PoolOption) *Pool {
	return NewPool(append([]PoolOption{WithDefaultQueue(InlineQueue)}, options...)...)
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{
		signal: make(chan struct{}, testBufferSize),
	}
}

func (r *recorder[T]) record(result Result[T]) {
	r.mux.Lock()
	r.results = append(r.results, result)
	r.mux.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
}

func (r *recorder[T]) snapshot() []Result[T] {
	r.mux.Lock()
	defer r.mux.Unlock()

	snapshot := make([]Result[T], len(r.results))
	copy(snapshot, r.results)

	return snapshot
}

func (r *recorder[T]) length() int {
	r.mux.Lock()
	defer r.mux.Unlock()

	return len(r.results)
}

// waitFor blocks until count results were recorded.
func (r *recorder[T]) waitFor(t *testing.T, count int) []Result[T] {
	t.Helper()

	deadline := time.After(waitTime)
	for r.length() < count {
		select {
		case <-r.signal:
		case <-deadline:
			t.Fatalf("recorded %d results, expected %d", r.length(), count)
		}
	}

	return r.snapshot()
}
