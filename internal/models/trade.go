package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide is the direction of a demo trade.
type TradeSide string

const (
	SideBuy  TradeSide = "Buy"
	SideSell TradeSide = "Sell"
)

// Valid reports whether the side is Buy or Sell.
func (s TradeSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

// DemoAccount is the server-owned paper trading account. The client never
// changes it locally; it is replaced wholesale by server responses.
type DemoAccount struct {
	Balance  decimal.Decimal `json:"balance"`
	Holdings []Holding       `json:"holdings"`
	Trades   []DemoTrade     `json:"trades"`
}

// Holding is a position in one asset.
type Holding struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// DemoTrade is one executed demo trade.
type DemoTrade struct {
	Asset  string          `json:"asset"`
	Type   TradeSide       `json:"type"`
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
	PnL    decimal.Decimal `json:"pnl"`
	Time   time.Time       `json:"time"`
}

// TotalPnL sums realised P&L across all trades.
func (a *DemoAccount) TotalPnL() decimal.Decimal {
	total := decimal.Zero
	if a == nil {
		return total
	}
	for _, t := range a.Trades {
		total = total.Add(t.PnL)
	}
	return total
}

// Holding returns the held amount of an asset, zero when absent.
func (a *DemoAccount) Holding(asset string) decimal.Decimal {
	if a == nil {
		return decimal.Zero
	}
	for _, h := range a.Holdings {
		if h.Asset == asset {
			return h.Amount
		}
	}
	return decimal.Zero
}

// DemoTradeRequest is the body of POST /api/demo/trade.
type DemoTradeRequest struct {
	Asset  string          `json:"asset"`
	Type   TradeSide       `json:"type"`
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
}

// PriceQuote is the latest USD price of a trading pair.
type PriceQuote struct {
	Asset     string          `json:"asset"`
	USDPrice  decimal.Decimal `json:"usd_price"`
	FetchedAt time.Time       `json:"fetched_at"`
}
