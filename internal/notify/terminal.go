package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Terminal prints each alert as one line, ringing the bell for anything
// above info.
type Terminal struct {
	w     io.Writer
	color bool

	mu      sync.Mutex
	enabled bool
	bell    bool
}

// NewTerminal writes alerts to w.
func NewTerminal(w io.Writer, colorEnabled bool) *Terminal {
	return &Terminal{w: w, color: colorEnabled, enabled: true, bell: true}
}

// SetBell turns the bell on or off.
func (t *Terminal) SetBell(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bell = on
}

// SetEnabled mutes or unmutes the channel.
func (t *Terminal) SetEnabled(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = on
}

func (t *Terminal) Name() string { return "terminal" }

func (t *Terminal) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Deliver writes one line. Lines from concurrent alerts never interleave.
func (t *Terminal) Deliver(_ context.Context, a Alert) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	line := FormatAlert(a, t.color)
	if t.bell && a.Kind != KindInfo {
		line = "\a" + line
	}
	_, err := fmt.Fprintln(t.w, line)
	return err
}

// FormatAlert renders "[15:04:05] SIGNAL | alice | Buy BTCUSDT @ 100 (ROI 12%)".
func FormatAlert(a Alert, colorEnabled bool) string {
	label, c := strings.ToUpper(string(a.Kind)), kindColor(a)
	if label == "" {
		label = "INFO"
	}
	if colorEnabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}

	parts := []string{c.Sprintf("[%s] %s", a.At.Format("15:04:05"), label)}
	if a.Title != "" {
		parts = append(parts, a.Title)
	}
	parts = append(parts, a.Message)
	line := strings.Join(parts, " | ")
	if roi := a.Fields["roi"]; roi != "" {
		line += " (ROI " + roi + ")"
	}
	return line
}

func kindColor(a Alert) *color.Color {
	switch a.Kind {
	case KindSignal:
		switch strings.ToLower(a.Fields["action"]) {
		case "buy":
			return color.New(color.FgGreen)
		case "sell":
			return color.New(color.FgRed)
		}
		return color.New(color.FgCyan)
	case KindSession:
		return color.New(color.FgYellow)
	case KindError:
		return color.New(color.FgRed)
	}
	return color.New(color.FgWhite)
}
