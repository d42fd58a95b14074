package geostream

import (
	"sync"
)

type (
	// Producer is the adapter behind a service request: a network call or any other source.
	// Execute runs once when the request enters the pool and must call completion at least once.
	// Cancel is called when the request leaves the pool.
	Producer[T any] interface {
		Execute(completion func(Result[T]))
		Cancel()
	}

	// ProducerFunc adapts a one shot function to Producer. Cancel is a no-op.
	ProducerFunc[T any] func(completion func(Result[T]))

	// ServiceRequest is a request fed by a Producer rather than by pool events.
	ServiceRequest[T any] struct {
		*Request[T]
		producer Producer[T]
		once     sync.Once
	}
)

// Execute calls f(completion).
func (f ProducerFunc[T]) Execute(completion func(Result[T])) {
	f(completion)
}

// Cancel does nothing.
func (f ProducerFunc[T]) Cancel() {}

// NewServiceRequest creates a request executing producer once queued.
// The default eviction policy ends the request after one value or one error.
func NewServiceRequest[T any](kind Kind, producer Producer[T], options ...RequestOption[T]) *ServiceRequest[T] {
	sr := &ServiceRequest[T]{producer: producer}

	defaults := []RequestOption[T]{
		WithEvictionPolicy[T](OnError(), OnReceiveData(1)),
	}
	sr.Request = NewRequest[T](kind, append(defaults, options...)...)

	hooks := sr.Request.hooks
	added, removed := hooks.OnAddedToQueue, hooks.OnRemovedFromQueue
	hooks.OnAddedToQueue = func(r *Request[T]) {
		if added != nil {
			added(r)
		}
		sr.execute()
	}
	hooks.OnRemovedFromQueue = func(r *Request[T]) {
		sr.producer.Cancel()
		if removed != nil {
			removed(r)
		}
	}
	sr.Request.hooks = hooks

	return sr
}

// NewIPLocationRequest creates a public IP lookup.
func NewIPLocationRequest(producer Producer[IPLocation], options ...RequestOption[IPLocation]) *ServiceRequest[IPLocation] {
	return NewServiceRequest[IPLocation](KindIP, producer, options...)
}

// NewGeocoderRequest creates a forward or reverse geocoding lookup.
func NewGeocoderRequest(producer Producer[[]Place], options ...RequestOption[[]Place]) *ServiceRequest[[]Place] {
	return NewServiceRequest[[]Place](KindGeocoder, producer, options...)
}

// NewAutocompleteRequest creates an address autocomplete lookup.
func NewAutocompleteRequest(producer Producer[[]Place], options ...RequestOption[[]Place]) *ServiceRequest[[]Place] {
	return NewServiceRequest[[]Place](KindAutocomplete, producer, options...)
}

// Producer returns the adapter feeding the request.
func (sr *ServiceRequest[T]) Producer() Producer[T] {
	return sr.producer
}

// Accepts only events targeting this request.
func (sr *ServiceRequest[T]) Accepts(event Event) bool {
	return event.Target() == sr.ID()
}

// execute starts the producer once; completions after removal are discarded by the request state.
func (sr *ServiceRequest[T]) execute() {
	sr.once.Do(func() {
		sr.producer.Execute(func(result Result[T]) {
			sr.ReceiveData(result)
		})
	})
}
