package agent

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxInFlight bounds the port calls running at once across every cycle.
const DefaultMaxInFlight = 16

// Bridge runs port calls on their own goroutines, admitted by a weighted
// semaphore shared by every cycle of the process.
type Bridge struct {
	sem *semaphore.Weighted
}

// NewBridge creates a Bridge admitting at most maxInFlight calls at once.
// Values below one use DefaultMaxInFlight.
func NewBridge(maxInFlight int64) *Bridge {
	if maxInFlight < 1 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Bridge{sem: semaphore.NewWeighted(maxInFlight)}
}

type result[T any] struct {
	value T
	err   error
}

// Await runs fn through the bridge and waits for its result or for ctx to
// end, whichever comes first. A call abandoned on cancellation keeps its
// slot until fn returns, so a port that ignores its context cannot
// exceed the bound either. A nil bridge admits every call.
func Await[T any](ctx context.Context, b *Bridge, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if b != nil {
		if err := b.sem.Acquire(ctx, 1); err != nil {
			return zero, err
		}
	}

	done := make(chan result[T], 1)
	go func() {
		if b != nil {
			defer b.sem.Release(1)
		}
		v, err := fn(ctx)
		done <- result[T]{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
