package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_FetchesImmediately(t *testing.T) {
	got := make(chan Result[int], 1)
	h := Start(context.Background(), "test", time.Hour, func(context.Context) (int, error) {
		return 7, nil
	}, func(r Result[int]) {
		select {
		case got <- r:
		default:
		}
	})
	defer h.Stop()

	select {
	case r := <-got:
		require.NoError(t, r.Err)
		assert.Equal(t, 7, r.Value)
		assert.False(t, r.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("first fetch did not run immediately")
	}
}

func TestStart_WithoutInitialFetchWaitsOneInterval(t *testing.T) {
	var calls atomic.Int32
	h := Start(context.Background(), "seeded", 40*time.Millisecond, func(context.Context) (int, error) {
		calls.Add(1)
		return 1, nil
	}, func(Result[int]) {}, WithoutInitialFetch())
	defer h.Stop()

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load(), "nothing is fetched before the first tick")

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestStart_ErrorsDoNotStopTimer(t *testing.T) {
	var calls atomic.Int32
	var errs, oks atomic.Int32
	h := Start(context.Background(), "flaky", 5*time.Millisecond, func(context.Context) (int, error) {
		if calls.Add(1)%2 == 1 {
			return 0, errors.New("boom")
		}
		return 1, nil
	}, func(r Result[int]) {
		if r.Err != nil {
			errs.Add(1)
		} else {
			oks.Add(1)
		}
	})

	require.Eventually(t, func() bool {
		return errs.Load() >= 2 && oks.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	h.Stop()
}

func TestStop_NoResultAfterReturn(t *testing.T) {
	var stopped atomic.Bool
	var late atomic.Int32
	h := Start(context.Background(), "stop", time.Millisecond, func(context.Context) (int, error) {
		return 1, nil
	}, func(Result[int]) {
		if stopped.Load() {
			late.Add(1)
		}
	})

	time.Sleep(20 * time.Millisecond)
	h.Stop()
	stopped.Store(true)
	time.Sleep(20 * time.Millisecond)

	assert.Zero(t, late.Load())
	h.Stop()
}

func TestStop_CancelsInFlightFetch(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	var delivered atomic.Int32

	h := Start(context.Background(), "slow", time.Hour, func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return 0, ctx.Err()
	}, func(Result[int]) {
		delivered.Add(1)
	})

	<-started
	h.Stop()

	select {
	case <-cancelled:
	default:
		t.Fatal("in-flight fetch context was not cancelled")
	}
	assert.Zero(t, delivered.Load())
}

func TestStart_ParentContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := Start(ctx, "parent", time.Millisecond, func(context.Context) (int, error) {
		return 1, nil
	}, func(Result[int]) {})

	cancel()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("poller did not stop with its parent context")
	}
}

// Property: for any fetch duration and interval, at most one fetch is in
// flight at a time.
func TestProperty_NoOverlappingFetches(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 15
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("in-flight fetches never exceed one", prop.ForAll(
		func(intervalMs int, fetchMs int) bool {
			var mu sync.Mutex
			inFlight, maxInFlight := 0, 0

			h := Start(context.Background(), "overlap", time.Duration(intervalMs)*time.Millisecond,
				func(ctx context.Context) (int, error) {
					mu.Lock()
					inFlight++
					if inFlight > maxInFlight {
						maxInFlight = inFlight
					}
					mu.Unlock()

					select {
					case <-time.After(time.Duration(fetchMs) * time.Millisecond):
					case <-ctx.Done():
					}

					mu.Lock()
					inFlight--
					mu.Unlock()
					return 0, nil
				}, func(Result[int]) {})

			time.Sleep(40 * time.Millisecond)
			h.Stop()

			mu.Lock()
			defer mu.Unlock()
			return maxInFlight <= 1
		},
		gen.IntRange(1, 5),
		gen.IntRange(0, 15),
	))

	properties.TestingRun(t)
}
