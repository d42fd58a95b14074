package geostream

import (
	"github.com/ahmedkamals/geostream/internal/errors"
)

// Sentinels of the delivered error taxonomy. Match them with the standard errors.Is.
var (
	// ErrDiscarded marks data rejected by request validation. It never reaches subscribers.
	ErrDiscarded error = &errors.Error{Kind: errors.Discarded}
	// ErrTimeout is delivered when a request timeout fires before any valid data.
	ErrTimeout error = &errors.Error{Kind: errors.Timeout}
	// ErrCancelled is delivered when a request is removed without a terminal result.
	ErrCancelled error = &errors.Error{Kind: errors.Cancelled}
	// ErrAuthorizationNeeded is delivered when a producer needs an authorization that is missing.
	ErrAuthorizationNeeded error = &errors.Error{Kind: errors.AuthorizationNeeded}
	// ErrInternal is a failure reported by a producer or a remote service.
	ErrInternal error = &errors.Error{Kind: errors.Internal}
	// ErrParsing is delivered when a producer response can not be decoded.
	ErrParsing error = &errors.Error{Kind: errors.Parsing}
	// ErrInvalidAPIKey is delivered when a remote service rejects the credentials.
	ErrInvalidAPIKey error = &errors.Error{Kind: errors.InvalidAPIKey}
	// ErrUsageLimitReached is delivered when a remote service quota is exhausted.
	ErrUsageLimitReached error = &errors.Error{Kind: errors.UsageLimitReached}
	// ErrNotFound is delivered when a lookup produced no match.
	ErrNotFound error = &errors.Error{Kind: errors.NotFound}
	// ErrExist is returned when a request with the same id is already queued.
	ErrExist error = &errors.Error{Kind: errors.Exist}
	// ErrInvalid is returned for nil or malformed arguments.
	ErrInvalid error = &errors.Error{Kind: errors.Invalid}
)

// NewError builds a delivered error of the same kind as sentinel, annotated with op and cause.
// Producers use it to report failures the engine can classify.
func NewError(op string, sentinel error, cause error) error {
	kind := errors.KindOf(sentinel)
	if cause == nil {
		return errors.E(errors.Operation(op), kind)
	}

	return errors.E(errors.Operation(op), kind, cause)
}

// IsDiscardable reports whether err is a validation discard rather than a delivered error.
func IsDiscardable(err error) bool {
	return errors.Is(errors.Discarded, err)
}
