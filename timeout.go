package geostream

import (
	"fmt"
	"sync"
	"time"
)

type (
	// TimeoutMode selects the reference instant of a timeout.
	TimeoutMode uint8

	// TimeoutState is the state of a Timeout controller.
	TimeoutState uint8

	// TimeoutPolicy configures a request timeout.
	TimeoutPolicy struct {
		Mode     TimeoutMode
		Interval time.Duration
		// Rearm allows StartIfNeeded to arm the timer again after a Reset.
		Rearm bool
	}

	// Timeout is a single shot timer owned by a request.
	// idle -> armed -> fired is terminal; armed -> idle happens on Reset.
	Timeout struct {
		mux        sync.Mutex
		policy     TimeoutPolicy
		state      TimeoutState
		timer      *time.Timer
		generation uint64
		armedOnce  bool
		callback   func(time.Duration)
	}
)

const (
	// TimeoutImmediate counts from the moment the timer is armed.
	TimeoutImmediate TimeoutMode = iota
	// TimeoutDelayed counts from the moment authorization is first granted.
	TimeoutDelayed
)

const (
	// TimeoutIdle no timer scheduled.
	TimeoutIdle TimeoutState = iota
	// TimeoutArmed timer scheduled.
	TimeoutArmed
	// TimeoutFired timer expired, terminal.
	TimeoutFired
)

// Immediate returns a policy armed as soon as the request enters the pool.
func Immediate(interval time.Duration) TimeoutPolicy {
	return TimeoutPolicy{Mode: TimeoutImmediate, Interval: interval}
}

// Delayed returns a policy armed once the pool is authorized.
func Delayed(interval time.Duration) TimeoutPolicy {
	return TimeoutPolicy{Mode: TimeoutDelayed, Interval: interval}
}

func (m TimeoutMode) String() string {
	if m == TimeoutDelayed {
		return "delayed"
	}

	return "immediate"
}

func (s TimeoutState) String() string {
	switch s {
	case TimeoutArmed:
		return "armed"
	case TimeoutFired:
		return "fired"
	}

	return "idle"
}

func (p TimeoutPolicy) String() string {
	return fmt.Sprintf("%s %s", p.Mode, p.Interval)
}

// NewTimeout creates an idle controller; callback receives the configured interval on expiry.
func NewTimeout(policy TimeoutPolicy, callback func(time.Duration)) *Timeout {
	return &Timeout{
		policy:   policy,
		callback: callback,
	}
}

// Policy returns the configured policy.
func (t *Timeout) Policy() TimeoutPolicy {
	return t.policy
}

// State returns the current state.
func (t *Timeout) State() TimeoutState {
	t.mux.Lock()
	defer t.mux.Unlock()

	return t.state
}

// StartIfNeeded arms the timer and reports whether it did.
// authorized is the delayed mode condition; immediate mode ignores it.
func (t *Timeout) StartIfNeeded(authorized bool) bool {
	t.mux.Lock()
	defer t.mux.Unlock()

	if t.state != TimeoutIdle || t.policy.Interval <= 0 {
		return false
	}

	if t.armedOnce && !t.policy.Rearm {
		return false
	}

	if t.policy.Mode == TimeoutDelayed && !authorized {
		return false
	}

	t.generation++
	generation := t.generation
	t.state = TimeoutArmed
	t.armedOnce = true
	t.timer = time.AfterFunc(t.policy.Interval, func() {
		t.fire(generation)
	})

	return true
}

// Reset cancels a pending timer and returns to idle. It is a no-op unless armed.
func (t *Timeout) Reset() {
	t.mux.Lock()
	defer t.mux.Unlock()

	if t.state != TimeoutArmed {
		return
	}

	t.timer.Stop()
	t.timer = nil
	t.generation++
	t.state = TimeoutIdle
}

func (t *Timeout) fire(generation uint64) {
	t.mux.Lock()
	if t.state != TimeoutArmed || t.generation != generation {
		t.mux.Unlock()
		return
	}
	t.state = TimeoutFired
	t.timer = nil
	callback := t.callback
	t.mux.Unlock()

	if callback != nil {
		callback(t.policy.Interval)
	}
}
