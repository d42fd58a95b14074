package geostream

import "sync"

type (
	// Queue is the execution context subscription callbacks are posted to.
	// Post must not block the caller for the duration of the task.
	Queue interface {
		Post(func())
	}

	// SerialQueue runs posted tasks one at a time, in posting order, on its own goroutine.
	SerialQueue interface {
		Queue
		// Close stops accepting tasks; already posted tasks still run.
		Close()
	}

	serialQueue struct {
		mux    sync.Mutex
		tasks  []func()
		closed bool
		signal chan struct{}
		stop   chan struct{}
	}

	inlineQueue struct{}

	goroutineQueue struct{}
)

var (
	// InlineQueue runs the task on the posting goroutine.
	// A task must not feed data back to the request that posted it, see Request.Then.
	InlineQueue Queue = inlineQueue{}
	// GoroutineQueue runs every task on a fresh goroutine, without ordering.
	GoroutineQueue Queue = goroutineQueue{}
)

// NewSerialQueue creates and starts a SerialQueue.
func NewSerialQueue() SerialQueue {
	q := &serialQueue{
		signal: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	go q.run()

	return q
}

func (q *serialQueue) Post(task func()) {
	q.mux.Lock()
	if q.closed {
		q.mux.Unlock()
		return
	}
	q.tasks = append(q.tasks, task)
	q.mux.Unlock()

	select {
	case q.signal <- struct{}{}:
	// A wake up is already pending.
	default:
	}
}

func (q *serialQueue) Close() {
	q.mux.Lock()
	defer q.mux.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.stop)
}

func (q *serialQueue) run() {
	for {
		select {
		case <-q.signal:
			q.drain()
		case <-q.stop:
			q.drain()
			return
		}
	}
}

func (q *serialQueue) drain() {
	for {
		q.mux.Lock()
		if len(q.tasks) == 0 {
			q.mux.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mux.Unlock()

		task()
	}
}

func (inlineQueue) Post(task func()) {
	task()
}

func (goroutineQueue) Post(task func()) {
	go task()
}
