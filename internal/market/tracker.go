package market

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"investdesk/internal/models"
	"investdesk/internal/poll"
)

// PriceTracker keeps the latest quote for a set of pairs by polling a
// PriceSource. A failed fetch keeps the last good quotes and records the
// error; it never blanks a price that was known.
type PriceTracker struct {
	source   *PriceSource
	assets   []string
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.RWMutex
	quotes  map[string]models.PriceQuote
	lastErr error
	handle  *poll.Handle

	onUpdate func(map[string]models.PriceQuote, error)
}

// TrackerOption configures a PriceTracker.
type TrackerOption func(*PriceTracker)

// WithTrackerLogger sets the logger.
func WithTrackerLogger(logger zerolog.Logger) TrackerOption {
	return func(t *PriceTracker) { t.logger = logger }
}

// WithOnUpdate registers a callback run after every fetch with a snapshot
// of the quotes and the fetch error, if any.
func WithOnUpdate(fn func(map[string]models.PriceQuote, error)) TrackerOption {
	return func(t *PriceTracker) { t.onUpdate = fn }
}

// NewPriceTracker creates a tracker for assets, all of the source's pairs
// when none are given. A non-positive interval uses poll.DefaultInterval.
func NewPriceTracker(source *PriceSource, interval time.Duration, assets []string, opts ...TrackerOption) *PriceTracker {
	if len(assets) == 0 {
		assets = source.Assets()
	}
	upper := make([]string, len(assets))
	for i, a := range assets {
		upper[i] = strings.ToUpper(a)
	}
	t := &PriceTracker{
		source:   source,
		assets:   upper,
		interval: interval,
		logger:   zerolog.Nop(),
		quotes:   make(map[string]models.PriceQuote),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins polling. Calling Start on a running tracker does nothing.
func (t *PriceTracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handle != nil {
		return
	}
	t.handle = poll.Start(ctx, "prices", t.interval,
		func(ctx context.Context) (map[string]models.PriceQuote, error) {
			return t.source.Quotes(ctx, t.assets...)
		},
		t.apply,
		poll.WithLogger(t.logger),
	)
}

// Refresh fetches once now, outside the timer, and applies the result the
// way a scheduled fetch would.
func (t *PriceTracker) Refresh(ctx context.Context) error {
	quotes, err := t.source.Quotes(ctx, t.assets...)
	t.apply(poll.Result[map[string]models.PriceQuote]{Value: quotes, Err: err, At: time.Now()})
	return err
}

// Stop ends polling. No update callback runs after Stop returns.
func (t *PriceTracker) Stop() {
	t.mu.Lock()
	h := t.handle
	t.handle = nil
	t.mu.Unlock()
	if h != nil {
		h.Stop()
	}
}

func (t *PriceTracker) apply(r poll.Result[map[string]models.PriceQuote]) {
	t.mu.Lock()
	if r.Err != nil {
		t.lastErr = r.Err
	} else {
		t.lastErr = nil
		for asset, q := range r.Value {
			t.quotes[asset] = q
		}
	}
	snapshot := t.snapshotLocked()
	err := t.lastErr
	t.mu.Unlock()

	if err != nil {
		t.logger.Warn().Err(err).Int("stale_quotes", len(snapshot)).Msg("Price refresh failed, keeping last quotes")
	}
	if t.onUpdate != nil {
		t.onUpdate(snapshot, err)
	}
}

// Latest returns the last good quote for asset.
func (t *PriceTracker) Latest(asset string) (models.PriceQuote, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	q, ok := t.quotes[strings.ToUpper(asset)]
	return q, ok
}

// Snapshot returns every known quote.
func (t *PriceTracker) Snapshot() map[string]models.PriceQuote {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

func (t *PriceTracker) snapshotLocked() map[string]models.PriceQuote {
	out := make(map[string]models.PriceQuote, len(t.quotes))
	for k, v := range t.quotes {
		out[k] = v
	}
	return out
}

// Err returns the error of the most recent fetch, nil after a success.
func (t *PriceTracker) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastErr
}
