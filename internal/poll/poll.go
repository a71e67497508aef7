// Package poll refreshes a resource on a fixed interval.
package poll

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"investdesk/internal/logging"
	"investdesk/internal/metrics"
)

// DefaultInterval is used when a non-positive interval is given.
const DefaultInterval = 30 * time.Second

// Result is the outcome of one fetch.
type Result[T any] struct {
	Value T
	Err   error
	At    time.Time
}

// Handle is a running poller.
type Handle struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}

	// deliverMu is held while onResult runs; Stop takes it to set stopped.
	deliverMu sync.Mutex
	stopped   bool

	stopOnce sync.Once
}

// Option configures a poller.
type Option func(*options)

type options struct {
	logger    zerolog.Logger
	skipFirst bool
}

// WithLogger sets the logger used for fetch failures. Without it the
// logger stored in ctx is used.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithoutInitialFetch waits one interval before the first fetch. Use it when
// the caller has just loaded the resource itself.
func WithoutInitialFetch() Option {
	return func(o *options) { o.skipFirst = true }
}

// Start runs fetch immediately and then every interval until Stop is called
// or ctx is done. Fetches never overlap: a tick that fires while a fetch is
// still running is skipped. Every outcome, success or error, goes to
// onResult and the timer keeps running either way. fetch must return once
// its context is cancelled.
func Start[T any](ctx context.Context, name string, interval time.Duration, fetch func(context.Context) (T, error), onResult func(Result[T]), opts ...Option) *Handle {
	o := options{logger: logging.FromContext(ctx)}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With().Str("resource", name).Logger()
	if interval <= 0 {
		interval = DefaultInterval
	}

	pctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	results := make(chan Result[T], 1)
	var inFlight bool

	launch := func() {
		inFlight = true
		go func() {
			v, err := fetch(pctx)
			results <- Result[T]{Value: v, Err: err, At: time.Now()}
		}()
	}

	go func() {
		defer close(h.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		if !o.skipFirst {
			launch()
		}
		for {
			select {
			case <-pctx.Done():
				if inFlight {
					<-results
				}
				return
			case <-ticker.C:
				if inFlight {
					metrics.PollSkipped.WithLabelValues(name).Inc()
					logger.Debug().Msg("Previous fetch still running, tick skipped")
					continue
				}
				launch()
			case r := <-results:
				inFlight = false
				if r.Err != nil {
					if pctx.Err() != nil {
						continue
					}
					metrics.PollErrors.WithLabelValues(name).Inc()
					logger.Warn().Err(r.Err).Msg("Fetch failed")
				}
				h.deliver(func() { onResult(r) })
			}
		}
	}()

	return h
}

func (h *Handle) deliver(fn func()) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()
	if h.stopped {
		return
	}
	fn()
}

// Stop cancels the timer and any in-flight fetch. Once it returns onResult
// will not be called again. It is idempotent but must not be called from
// inside onResult.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		h.deliverMu.Lock()
		h.stopped = true
		h.deliverMu.Unlock()

		h.cancel()
		<-h.done
	})
}

// Done is closed once the poller has fully stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Name returns the resource name.
func (h *Handle) Name() string {
	return h.name
}
