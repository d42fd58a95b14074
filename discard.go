package geostream

import (
	"github.com/ahmedkamals/geostream/internal/errors"
)

type (
	// DiscardReason explains why a value was withheld from subscribers.
	// The zero value means the value was accepted.
	DiscardReason uint8
)

const (
	// NotDiscarded means the value passed validation.
	NotDiscarded DiscardReason = iota
	// NotMinAccuracy the value is less accurate than the request threshold.
	NotMinAccuracy
	// NotMinDistance the value is too close to the last accepted one.
	NotMinDistance
	// NotMinInterval the value arrived too soon after the last accepted one.
	NotMinInterval
	// RequestNotEnabled the request is disabled.
	RequestNotEnabled
	// RequestPaused the request is paused or not running.
	RequestPaused
	// CustomRejection a user supplied filter rejected the value.
	CustomRejection
	// InternalEvaluation the engine skipped the value, e.g. a payload of the wrong type.
	InternalEvaluation
	// GenericError the value was a delivered error; returned by ReceiveData for failures.
	GenericError
)

func (r DiscardReason) String() string {
	switch r {
	case NotDiscarded:
		return "not discarded"
	case NotMinAccuracy:
		return "not minimum accuracy"
	case NotMinDistance:
		return "not min distance"
	case NotMinInterval:
		return "not min interval"
	case RequestNotEnabled:
		return "request disabled"
	case RequestPaused:
		return "request paused"
	case CustomRejection:
		return "custom filter rejection"
	case InternalEvaluation:
		return "internal evaluation"
	case GenericError:
		return "error"
	}

	return "unknown discard reason"
}

// Discarded reports whether the reason withholds the value.
func (r DiscardReason) Discarded() bool {
	return r != NotDiscarded
}

// AsError converts the reason into a discardable error.
func (r DiscardReason) AsError() error {
	return errors.E(errors.Discarded, errors.Errorf("%s", r))
}
