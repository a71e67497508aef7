package stream

import (
	"sync"

	"investdesk/internal/models"
)

// TradeFeedCapacity is how many prints the feed keeps.
const TradeFeedCapacity = 10

// TradeFeed keeps the most recent market trades, newest first.
type TradeFeed struct {
	mu     sync.RWMutex
	cap    int
	trades []models.MarketTrade
}

// NewTradeFeed creates an empty feed holding TradeFeedCapacity entries.
func NewTradeFeed() *TradeFeed {
	return &TradeFeed{cap: TradeFeedCapacity, trades: make([]models.MarketTrade, 0, TradeFeedCapacity)}
}

// Push prepends a trade, evicting the oldest when full.
func (f *TradeFeed) Push(t models.MarketTrade) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.trades) < f.cap {
		f.trades = append(f.trades, models.MarketTrade{})
	}
	copy(f.trades[1:], f.trades[:len(f.trades)-1])
	f.trades[0] = t
}

// Snapshot returns the feed, newest first.
func (f *TradeFeed) Snapshot() []models.MarketTrade {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]models.MarketTrade, len(f.trades))
	copy(out, f.trades)
	return out
}

// Len returns the number of trades held.
func (f *TradeFeed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.trades)
}
