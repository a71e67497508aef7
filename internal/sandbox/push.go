package sandbox

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"investdesk/internal/models"
)

const (
	streamSignals = "signals"
	streamTrades  = "trades"

	writeWait = 5 * time.Second
)

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (sub *subscriber) write(data []byte) error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return sub.conn.WriteMessage(websocket.TextMessage, data)
}

// pushHub fans published events out to every websocket subscriber of a stream.
type pushHub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

func newPushHub(logger zerolog.Logger) *pushHub {
	return &pushHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
		subs: map[string]map[*subscriber]struct{}{
			streamSignals: {},
			streamTrades:  {},
		},
	}
}

func (h *pushHub) serve(stream string) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Debug().Err(err).Str("stream", stream).Msg("Upgrade failed")
			return
		}
		sub := &subscriber{conn: conn}

		h.mu.Lock()
		h.subs[stream][sub] = struct{}{}
		h.mu.Unlock()

		defer func() {
			h.mu.Lock()
			delete(h.subs[stream], sub)
			h.mu.Unlock()
			conn.Close()
		}()

		// Clients never send data; reading only detects the disconnect.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func (h *pushHub) broadcast(stream string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("Encoding push event")
		return
	}
	h.broadcastRaw(stream, data)
}

func (h *pushHub) broadcastRaw(stream string, data []byte) {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs[stream]))
	for sub := range h.subs[stream] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.write(data); err != nil {
			h.logger.Debug().Err(err).Str("stream", stream).Msg("Push write failed")
		}
	}
}

func (h *pushHub) count(stream string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[stream])
}

func (h *pushHub) disconnectAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, subs := range h.subs {
		for sub := range subs {
			sub.conn.Close()
		}
	}
}

// Subscribers returns how many clients are connected to the signals
// ("signals") or trades ("trades") stream.
func (s *Server) Subscribers(stream string) int {
	return s.push.count(stream)
}

// PublishSignal updates the board and pushes the signal to subscribers.
func (s *Server) PublishSignal(sig models.TraderSignal) {
	s.mu.Lock()
	updated := false
	for i := range s.signals {
		if s.signals[i].Name == sig.Name {
			s.signals[i].Signal = sig.Signal
			updated = true
			break
		}
	}
	if !updated {
		s.signals = append(s.signals, sig)
	}
	s.mu.Unlock()

	s.push.broadcast(streamSignals, sig)
}

// PublishTrade pushes a market print to subscribers.
func (s *Server) PublishTrade(t models.MarketTrade) {
	s.push.broadcast(streamTrades, t)
}

// PublishRaw pushes an arbitrary frame, e.g. one that is not valid JSON.
func (s *Server) PublishRaw(stream string, data []byte) {
	s.push.broadcastRaw(stream, data)
}

// DisconnectStreams drops every push connection, as a backend restart would.
func (s *Server) DisconnectStreams() {
	s.push.disconnectAll()
}

var feedSymbols = map[string]string{
	"BTCUSDT": "bitcoin",
	"ETHUSDT": "ethereum",
	"BNBUSDT": "binancecoin",
}

var feedCalls = []string{"Buy", "Sell", "Hold"}

// RunFeed publishes a random walk of trades and signals every interval until
// ctx is done.
func (s *Server) RunFeed(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	symbols := make([]string, 0, len(feedSymbols))
	for sym := range feedSymbols {
		symbols = append(symbols, sym)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sym := symbols[rand.IntN(len(symbols))]
			coin := feedSymbols[sym]

			// +/- 0.5% per step
			step := decimal.NewFromFloat(1 + (rand.Float64()-0.5)/100)
			s.mu.Lock()
			price := s.prices[coin].Mul(step).Round(2)
			s.prices[coin] = price
			signals := len(s.signals)
			s.mu.Unlock()

			s.PublishTrade(models.MarketTrade{
				Symbol: sym,
				Price:  price,
				Qty:    decimal.NewFromFloat(rand.Float64()).Round(4),
				Time:   now.UnixMilli(),
			})

			if signals > 0 && rand.IntN(4) == 0 {
				board := s.Signals()
				name := board[rand.IntN(len(board))].Name
				s.PublishSignal(models.TraderSignal{
					Name: name,
					Signal: models.SignalCall{
						Action: feedCalls[rand.IntN(len(feedCalls))],
						Symbol: sym,
						Price:  json.Number(price.String()),
						Time:   now.Format("15:04"),
					},
				})
			}
		}
	}
}
