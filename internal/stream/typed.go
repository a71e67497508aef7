package stream

import (
	"context"

	"investdesk/internal/models"
)

// OpenSignals streams trader signals into board. The optional onUpdate runs
// after each merge, still inside delivery.
func OpenSignals(ctx context.Context, url string, board *SignalBoard, onUpdate func(models.TraderSignal), opts ...Option) (*Handle, error) {
	opts = append([]Option{WithName("signals")}, opts...)
	return Open(ctx, url, func(s models.TraderSignal) {
		if s.Name == "" {
			return
		}
		board.Apply(s)
		if onUpdate != nil {
			onUpdate(s)
		}
	}, opts...)
}

// OpenTrades streams market prints into feed.
func OpenTrades(ctx context.Context, url string, feed *TradeFeed, onUpdate func(models.MarketTrade), opts ...Option) (*Handle, error) {
	opts = append([]Option{WithName("trades")}, opts...)
	return Open(ctx, url, func(t models.MarketTrade) {
		feed.Push(t)
		if onUpdate != nil {
			onUpdate(t)
		}
	}, opts...)
}
