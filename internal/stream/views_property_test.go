package stream

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"investdesk/internal/models"
)

func genSignal() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf("alice", "bob", "carol", "dave", "erin"),
		gen.OneConstOf("Buy", "Sell", "Hold"),
		gen.OneConstOf("BTCUSDT", "ETHUSDT", "BNBUSDT"),
		gen.OneConstOf("", "4.2%", "-1.5%"),
	).Map(func(v []interface{}) models.TraderSignal {
		return models.TraderSignal{
			Name:   v[0].(string),
			ROI:    models.RawText(v[3].(string)),
			Signal: models.SignalCall{Action: v[1].(string), Symbol: v[2].(string)},
		}
	})
}

// Property: applying the same signal twice leaves the board as after once.
// Names stay unique in first-seen order and an update replaces only the call.
func TestProperty_SignalBoardMerge(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("merge is idempotent", prop.ForAll(
		func(seed []models.TraderSignal, s models.TraderSignal) bool {
			once := NewSignalBoard()
			once.Seed(seed)
			once.Apply(s)

			twice := NewSignalBoard()
			twice.Seed(seed)
			twice.Apply(s)
			twice.Apply(s)

			a, b := once.Snapshot(), twice.Snapshot()
			if len(a) != len(b) {
				return false
			}
			for i := range a {
				if a[i] != b[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genSignal()),
		genSignal(),
	))

	properties.Property("names unique in first-seen order with latest call", prop.ForAll(
		func(events []models.TraderSignal) bool {
			board := NewSignalBoard()
			var order []string
			latest := map[string]models.SignalCall{}
			firstROI := map[string]models.RawText{}
			for _, e := range events {
				if _, ok := latest[e.Name]; !ok {
					order = append(order, e.Name)
					firstROI[e.Name] = e.ROI
				}
				latest[e.Name] = e.Signal
				board.Apply(e)
			}

			snap := board.Snapshot()
			if len(snap) != len(order) {
				return false
			}
			for i, s := range snap {
				if s.Name != order[i] || s.Signal != latest[s.Name] || s.ROI != firstROI[s.Name] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genSignal()),
	))

	properties.TestingRun(t)
}

// Property: the feed never exceeds its capacity and always holds the most
// recent pushes, newest first.
func TestProperty_TradeFeedBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("length <= capacity and newest at index 0", prop.ForAll(
		func(times []int64) bool {
			feed := NewTradeFeed()
			for _, ts := range times {
				feed.Push(models.MarketTrade{Symbol: "BTCUSDT", Time: ts})
			}

			snap := feed.Snapshot()
			want := len(times)
			if want > TradeFeedCapacity {
				want = TradeFeedCapacity
			}
			if len(snap) != want {
				return false
			}
			for i, tr := range snap {
				if tr.Time != times[len(times)-1-i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64()),
	))

	properties.TestingRun(t)
}
