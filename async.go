package geostream

import (
	"context"
	"sync"

	"github.com/ahmedkamals/geostream/internal/errors"
)

// Await blocks until the request delivers one result or ctx is done.
// A failure is returned as the error. When ctx ends first the waiting subscription
// is removed, and the request is cancelled if nobody else subscribed to it.
func Await[T any](ctx context.Context, request *Request[T]) (T, error) {
	const op errors.Operation = "Await"

	var zero T

	if _, delivered := request.LastReceivedValue(); !delivered && request.State() == StateExpired {
		return zero, errors.E(op, errors.Cancelled)
	}

	resolved := make(chan Result[T], 1)
	var once sync.Once

	id := request.Then(InlineQueue, func(result Result[T]) {
		once.Do(func() {
			resolved <- result
		})
	})

	if request.State() == StateExpired {
		select {
		case result := <-resolved:
			request.Cancel(id)

			return result.Get()
		default:
			request.Cancel(id)

			return zero, errors.E(op, errors.Cancelled)
		}
	}

	select {
	case result := <-resolved:
		request.Cancel(id)

		return result.Get()
	case <-ctx.Done():
		request.Cancel(id)
		if request.SubscriptionCount() == 0 {
			request.CancelRequest()
		}

		return zero, errors.E(op, errors.Cancelled, ctx.Err())
	}
}
