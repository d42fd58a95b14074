package geostream

import (
	"github.com/rcrowley/go-metrics"
)

// poolMetrics holds the pool instruments. A nil *poolMetrics records nothing.
type poolMetrics struct {
	added     metrics.Counter
	removed   metrics.Counter
	active    metrics.Gauge
	delivers  metrics.Counter
	discards  metrics.Counter
	failures  metrics.Counter
	timeouts  metrics.Counter
	panics    metrics.Counter
	unmatched metrics.Counter
}

const metricsPrefix = "geostream."

func newPoolMetrics(registry metrics.Registry) *poolMetrics {
	return &poolMetrics{
		added:     metrics.GetOrRegisterCounter(metricsPrefix+"requests.added", registry),
		removed:   metrics.GetOrRegisterCounter(metricsPrefix+"requests.removed", registry),
		active:    metrics.GetOrRegisterGauge(metricsPrefix+"requests.active", registry),
		delivers:  metrics.GetOrRegisterCounter(metricsPrefix+"data.delivered", registry),
		discards:  metrics.GetOrRegisterCounter(metricsPrefix+"data.discarded", registry),
		failures:  metrics.GetOrRegisterCounter(metricsPrefix+"errors.delivered", registry),
		timeouts:  metrics.GetOrRegisterCounter(metricsPrefix+"timeouts.fired", registry),
		panics:    metrics.GetOrRegisterCounter(metricsPrefix+"callbacks.panicked", registry),
		unmatched: metrics.GetOrRegisterCounter(metricsPrefix+"events.unmatched", registry),
	}
}

func (m *poolMetrics) requestAdded(active int) {
	if m == nil {
		return
	}
	m.added.Inc(1)
	m.active.Update(int64(active))
}

func (m *poolMetrics) requestRemoved(active int) {
	if m == nil {
		return
	}
	m.removed.Inc(1)
	m.active.Update(int64(active))
}

func (m *poolMetrics) delivered() {
	if m == nil {
		return
	}
	m.delivers.Inc(1)
}

func (m *poolMetrics) discarded() {
	if m == nil {
		return
	}
	m.discards.Inc(1)
}

func (m *poolMetrics) failed() {
	if m == nil {
		return
	}
	m.failures.Inc(1)
}

func (m *poolMetrics) timedOut() {
	if m == nil {
		return
	}
	m.timeouts.Inc(1)
}

func (m *poolMetrics) panicked() {
	if m == nil {
		return
	}
	m.panics.Inc(1)
}

func (m *poolMetrics) eventUnmatched() {
	if m == nil {
		return
	}
	m.unmatched.Inc(1)
}
