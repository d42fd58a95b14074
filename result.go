package geostream

type (
	// Result carries either a value produced by a producer or the error it reported.
	Result[T any] struct {
		Value T
		Err   error
	}
)

// Success wraps a produced value.
func Success[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

// Failure wraps a producer or engine error.
func Failure[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// IsSuccess reports whether the result carries a value.
func (r Result[T]) IsSuccess() bool {
	return r.Err == nil
}

// Get returns the value and the error, in the usual Go order.
func (r Result[T]) Get() (T, error) {
	return r.Value, r.Err
}
