package stream

import (
	"sync"

	"investdesk/internal/models"
)

// SignalBoard holds the latest signal per trader, in first-seen order.
type SignalBoard struct {
	mu      sync.RWMutex
	order   []string
	traders map[string]models.TraderSignal
}

// NewSignalBoard creates an empty board.
func NewSignalBoard() *SignalBoard {
	return &SignalBoard{traders: make(map[string]models.TraderSignal)}
}

// Apply merges one signal. A known name keeps its position and its other
// fields and only takes the new call; a new name is appended as is.
func (b *SignalBoard) Apply(s models.TraderSignal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	existing, ok := b.traders[s.Name]
	if !ok {
		b.order = append(b.order, s.Name)
		b.traders[s.Name] = s
		return
	}
	existing.Signal = s.Signal
	b.traders[s.Name] = existing
}

// Seed merges a batch, typically the initial REST fetch.
func (b *SignalBoard) Seed(signals []models.TraderSignal) {
	for _, s := range signals {
		b.Apply(s)
	}
}

// Snapshot returns the board in display order.
func (b *SignalBoard) Snapshot() []models.TraderSignal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.TraderSignal, len(b.order))
	for i, name := range b.order {
		out[i] = b.traders[name]
	}
	return out
}

// Len returns the number of traders on the board.
func (b *SignalBoard) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}
