package market

import "strings"

// ChartSymbol is a pair that can be shown in an embedded chart.
type ChartSymbol struct {
	Asset  string // trading pair, e.g. BTCUSDT
	Symbol string // chart provider symbol
	Label  string
}

// ChartSymbols lists the embeddable chart pairs in display order.
var ChartSymbols = []ChartSymbol{
	{Asset: "BTCUSDT", Symbol: "BTCUSD", Label: "BTC/USDT"},
	{Asset: "ETHUSDT", Symbol: "ETHUSD", Label: "ETH/USDT"},
	{Asset: "BNBUSDT", Symbol: "BNBUSD", Label: "BNB/USDT"},
}

// DefaultChartSymbol is shown when nothing is selected.
const DefaultChartSymbol = "BTCUSD"

// ChartFor returns the chart entry for a trading pair.
func ChartFor(asset string) (ChartSymbol, bool) {
	asset = strings.ToUpper(asset)
	for _, c := range ChartSymbols {
		if c.Asset == asset {
			return c, true
		}
	}
	return ChartSymbol{}, false
}

// BaseAsset strips the quote currency: BTCUSDT -> BTC.
func BaseAsset(pair string) string {
	return strings.TrimSuffix(strings.ToUpper(pair), "USDT")
}
