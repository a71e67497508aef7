// Package notify delivers alerts about live account events, such as a
// trader changing their call, to the terminal and to a webhook.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"investdesk/internal/config"
	"investdesk/internal/logging"
	"investdesk/internal/models"
)

// Kind classifies an alert.
type Kind string

const (
	KindSignal  Kind = "signal"
	KindSession Kind = "session"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Alert is one event worth telling the user about. Fields carries the
// structured details a webhook receiver can act on.
type Alert struct {
	Kind    Kind
	Title   string
	Message string
	Fields  map[string]string
	At      time.Time
}

// Channel is somewhere alerts can go.
type Channel interface {
	Name() string
	Enabled() bool
	Deliver(ctx context.Context, a Alert) error
}

// Notifier fans alerts out to its channels.
type Notifier struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	channels []Channel
}

// NewNotifier creates a notifier over channels.
func NewNotifier(logger zerolog.Logger, channels ...Channel) *Notifier {
	return &Notifier{
		logger:   logging.WithComponent(logger, "notify"),
		channels: channels,
	}
}

// NewFromConfig wires terminal (when non-nil) and the configured webhook.
func NewFromConfig(cfg config.NotifyConfig, terminal *Terminal, logger zerolog.Logger) *Notifier {
	n := NewNotifier(logger)
	if terminal != nil {
		terminal.SetBell(cfg.Bell)
		n.Add(terminal)
	}
	if cfg.WebhookURL != "" {
		n.Add(NewWebhook(cfg.WebhookURL))
	}
	return n
}

// Add registers another channel.
func (n *Notifier) Add(ch Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels = append(n.channels, ch)
}

// Notify delivers a to every enabled channel. A failing channel does not
// stop the others; all failures are returned joined.
func (n *Notifier) Notify(ctx context.Context, a Alert) error {
	if a.At.IsZero() {
		a.At = time.Now()
	}

	n.mu.RLock()
	channels := append([]Channel(nil), n.channels...)
	n.mu.RUnlock()

	var errs []error
	for _, ch := range channels {
		if !ch.Enabled() {
			continue
		}
		if err := ch.Deliver(ctx, a); err != nil {
			n.logger.Warn().Err(err).Str("channel", ch.Name()).Str("kind", string(a.Kind)).Msg("Alert not delivered")
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Signal announces a trader's new call.
func (n *Notifier) Signal(ctx context.Context, sig models.TraderSignal) error {
	fields := map[string]string{
		"trader": sig.Name,
		"action": sig.Signal.Action,
		"symbol": sig.Signal.Symbol,
	}
	if sig.Signal.Price != "" {
		fields["price"] = sig.Signal.Price.String()
	}
	if sig.ROI != "" {
		fields["roi"] = string(sig.ROI)
	}
	return n.Notify(ctx, Alert{
		Kind:    KindSignal,
		Title:   sig.Name,
		Message: sig.Signal.String(),
		Fields:  fields,
	})
}

// SessionExpired tells the user they were signed out and where to sign in.
func (n *Notifier) SessionExpired(ctx context.Context, route string) error {
	return n.Notify(ctx, Alert{
		Kind:    KindSession,
		Title:   "Session expired",
		Message: "Please log in again.",
		Fields:  map[string]string{"route": route},
	})
}

// Failure reports err against the part of the app it came from.
func (n *Notifier) Failure(ctx context.Context, where string, err error) error {
	return n.Notify(ctx, Alert{
		Kind:    KindError,
		Title:   where,
		Message: err.Error(),
	})
}

// SignalTracker remembers each trader's last call so only changes are
// announced.
type SignalTracker struct {
	mu     sync.Mutex
	seeded bool
	last   map[string]models.SignalCall
}

// NewSignalTracker creates an empty tracker.
func NewSignalTracker() *SignalTracker {
	return &SignalTracker{last: make(map[string]models.SignalCall)}
}

// Changed returns the traders whose call differs from the last snapshot.
// The first snapshot only seeds the tracker and reports nothing. ROI is not
// part of the call.
func (st *SignalTracker) Changed(current []models.TraderSignal) []models.TraderSignal {
	st.mu.Lock()
	defer st.mu.Unlock()

	var changed []models.TraderSignal
	for _, sig := range current {
		prev, known := st.last[sig.Name]
		if st.seeded && (!known || prev != sig.Signal) {
			changed = append(changed, sig)
		}
		st.last[sig.Name] = sig.Signal
	}
	st.seeded = true
	return changed
}
