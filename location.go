package geostream

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

type (
	// Accuracy is the horizontal accuracy threshold in meters. Zero accepts any sample.
	Accuracy float64

	// SubscriptionMode selects how long a location request keeps producing.
	SubscriptionMode uint8

	// LocationFilter is a custom validation predicate; false discards the sample.
	LocationFilter func(Location) bool

	// LocationOptions configure a GPS request.
	LocationOptions struct {
		Subscription SubscriptionMode
		Accuracy     Accuracy
		// MinDistance in meters between two delivered samples, zero disables the check.
		MinDistance float64
		// MinInterval between the timestamps of two delivered samples, zero disables the check.
		MinInterval time.Duration
		Timeout     *TimeoutPolicy
		// AvoidRequestAuthorization fails the request instead of waiting for authorization.
		AvoidRequestAuthorization bool
		Filter                    LocationFilter
	}

	// LocationRequest is a request fed by the GPS producer.
	LocationRequest struct {
		*Request[Location]
		options LocationOptions
	}
)

const (
	// AccuracyAny accepts every sample.
	AccuracyAny Accuracy = 0
	// AccuracyCity about 5km.
	AccuracyCity Accuracy = 5000
	// AccuracyNeighborhood about 1km.
	AccuracyNeighborhood Accuracy = 1000
	// AccuracyBlock about 100m.
	AccuracyBlock Accuracy = 100
	// AccuracyHouse about 60m.
	AccuracyHouse Accuracy = 60
	// AccuracyRoom about 25m.
	AccuracyRoom Accuracy = 25
)

const (
	// SubscriptionSingle delivers the first valid sample then leaves the pool.
	SubscriptionSingle SubscriptionMode = iota
	// SubscriptionContinuous delivers every valid sample.
	SubscriptionContinuous
	// SubscriptionSignificant delivers samples at least significantDistance apart.
	SubscriptionSignificant
)

const significantDistance = 500

func (a Accuracy) String() string {
	switch a {
	case AccuracyAny:
		return "any"
	case AccuracyCity:
		return "city"
	case AccuracyNeighborhood:
		return "neighborhood"
	case AccuracyBlock:
		return "block"
	case AccuracyHouse:
		return "house"
	case AccuracyRoom:
		return "room"
	}

	return fmt.Sprintf("%.0fm", float64(a))
}

// Accepts reports whether a sample with the given horizontal accuracy meets the threshold.
func (a Accuracy) Accepts(horizontalAccuracy float64) bool {
	if horizontalAccuracy < 0 {
		return false
	}

	return a == AccuracyAny || horizontalAccuracy <= float64(a)
}

func (m SubscriptionMode) String() string {
	switch m {
	case SubscriptionSingle:
		return "single"
	case SubscriptionContinuous:
		return "continuous"
	case SubscriptionSignificant:
		return "significant"
	}

	return "unknown"
}

// NewLocationRequest creates a GPS request.
// A single subscription always ends after the first valid sample or the first error.
func NewLocationRequest(options LocationOptions, requestOptions ...RequestOption[Location]) *LocationRequest {
	if options.Subscription == SubscriptionSignificant && options.MinDistance <= 0 {
		options.MinDistance = significantDistance
	}

	lr := &LocationRequest{options: options}

	defaults := []RequestOption[Location]{
		WithValidator[Location](lr.validate),
	}
	if options.Subscription == SubscriptionSingle {
		defaults = append(defaults,
			WithEvictionPolicy[Location](OnError(), OnReceiveData(1)),
			withPolicyFilter[Location](EvictionPolicySet.singleShot),
		)
	}
	if options.Timeout != nil {
		defaults = append(defaults, WithTimeout[Location](*options.Timeout))
	}

	lr.Request = NewRequest[Location](KindGPS, append(defaults, requestOptions...)...)

	return lr
}

// Options returns the request options.
func (lr *LocationRequest) Options() LocationOptions {
	return lr.options
}

// Deliver fails the request with ErrAuthorizationNeeded when it must not wait for authorization.
func (lr *LocationRequest) Deliver(event Event) DiscardReason {
	if lr.options.AvoidRequestAuthorization && !lr.Authorized() {
		lr.Logger().Debug("authorization missing")

		return lr.ReceiveData(Failure[Location](NewError("LocationRequest.Deliver", ErrAuthorizationNeeded, nil)))
	}

	return lr.Request.Deliver(event)
}

func (lr *LocationRequest) validate(r *Request[Location], location Location) DiscardReason {
	if !lr.options.Accuracy.Accepts(location.HorizontalAccuracy) {
		return NotMinAccuracy
	}

	if previous, ok := r.LastValue(); ok {
		if lr.options.MinDistance > 0 && previous.DistanceTo(location.Coordinate) < lr.options.MinDistance {
			return NotMinDistance
		}

		if lr.options.MinInterval > 0 && location.Timestamp.Sub(previous.Timestamp) < lr.options.MinInterval {
			return NotMinInterval
		}
	}

	if lr.options.Filter != nil && !lr.options.Filter(location) {
		r.Logger().Debug("custom filter rejected location", zap.Stringer("location", location))

		return CustomRejection
	}

	return NotDiscarded
}
