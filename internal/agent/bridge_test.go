package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwait_ReturnsResult(t *testing.T) {
	b := NewBridge(2)
	v, err := Await(context.Background(), b, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	boom := errors.New("boom")
	_, err = Await(context.Background(), b, func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}

func TestAwait_NilBridge(t *testing.T) {
	v, err := Await(context.Background(), nil, func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestAwait_DeadlineBeatsSlowCall(t *testing.T) {
	b := NewBridge(1)
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Await(ctx, b, func(context.Context) (int, error) {
		// Ignores its context.
		<-release
		return 1, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAwait_AbandonedCallKeepsSlot(t *testing.T) {
	b := NewBridge(1)
	release := make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := Await(ctx, b, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned call still holds the only slot.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	_, err = Await(ctx2, b, func(context.Context) (int, error) { return 2, nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	assert.Eventually(t, func() bool {
		v, err := Await(context.Background(), b, func(context.Context) (int, error) { return 3, nil })
		return err == nil && v == 3
	}, time.Second, 5*time.Millisecond)
}

func TestAwait_BoundsConcurrency(t *testing.T) {
	const limit = 3
	b := NewBridge(limit)

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Await(context.Background(), b, func(context.Context) (struct{}, error) {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inFlight.Add(-1)
				return struct{}{}, nil
			})
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(limit))
}

func TestNewBridge_DefaultsBound(t *testing.T) {
	b := NewBridge(0)
	require.NotNil(t, b.sem)
	assert.True(t, b.sem.TryAcquire(DefaultMaxInFlight))
	assert.False(t, b.sem.TryAcquire(1))
}
