package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TraderSignal is the latest call published by a named trader.
type TraderSignal struct {
	Name   string     `json:"name"`
	ROI    RawText    `json:"roi,omitempty"`
	Signal SignalCall `json:"signal"`
}

// SignalCall is one trade call. Price arrives as a number or a numeric
// string and is kept verbatim.
type SignalCall struct {
	Action string      `json:"action"`
	Symbol string      `json:"symbol"`
	Price  json.Number `json:"price,omitempty"`
	Time   RawText     `json:"time,omitempty"`
}

// RawText is a display value the backend sends either as a string or as a
// bare number. A number is kept exactly as written; null is empty.
type RawText string

func (t *RawText) UnmarshalJSON(b []byte) error {
	switch {
	case string(b) == "null":
		*t = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = RawText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected a string or number, got %s", b)
	}
	*t = RawText(n)
	return nil
}

// String renders the call as "Buy BTCUSDT @ 64250".
func (c SignalCall) String() string {
	s := strings.TrimSpace(c.Action + " " + c.Symbol)
	if c.Price != "" {
		s += " @ " + c.Price.String()
	}
	return s
}

// MarketTrade is one public exchange print.
type MarketTrade struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Qty    decimal.Decimal `json:"qty"`
	Time   int64           `json:"time"` // unix milliseconds
}

// Timestamp converts the wire time to time.Time.
func (t MarketTrade) Timestamp() time.Time {
	return time.UnixMilli(t.Time)
}
