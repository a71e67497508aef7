package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investdesk/internal/config"
	"investdesk/internal/models"
)

// pushServer accepts websocket connections and hands each one to serve.
func pushServer(t *testing.T, serve func(conn *websocket.Conn, n int)) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn, int(atomic.AddInt32(&count, 1)))
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// holdOpen blocks until the client goes away.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestOpen_DeliversInTransportOrder(t *testing.T) {
	url := pushServer(t, func(conn *websocket.Conn, _ int) {
		for _, msg := range []string{
			`{"name":"alice","signal":{"action":"Buy","symbol":"BTCUSDT","price":64250.5}}`,
			`{"name":"bob","signal":{"action":"Sell","symbol":"ETHUSDT","price":"3120"}}`,
			`{"name":"alice","signal":{"action":"Hold","symbol":"BTCUSDT"}}`,
		} {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
		holdOpen(conn)
	})

	got := make(chan models.TraderSignal, 3)
	h, err := Open(context.Background(), url, func(s models.TraderSignal) { got <- s })
	require.NoError(t, err)
	defer h.Close()

	var seq []string
	for i := 0; i < 3; i++ {
		select {
		case s := <-got:
			seq = append(seq, s.Name+":"+s.Signal.String())
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
	assert.Equal(t, []string{"alice:Buy BTCUSDT @ 64250.5", "bob:Sell ETHUSDT @ 3120", "alice:Hold BTCUSDT"}, seq)
}

func TestOpen_DropsUnparseableMessages(t *testing.T) {
	url := pushServer(t, func(conn *websocket.Conn, _ int) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"name":"carol","roi":"12.5%","signal":{"action":"Buy","symbol":"BNBUSDT"}}`))
		holdOpen(conn)
	})

	board := NewSignalBoard()
	updated := make(chan struct{}, 1)
	h, err := OpenSignals(context.Background(), url, board, func(models.TraderSignal) { updated <- struct{}{} })
	require.NoError(t, err)
	defer h.Close()

	select {
	case <-updated:
	case <-time.After(2 * time.Second):
		t.Fatal("valid message after a bad one was not delivered")
	}
	assert.Equal(t, []models.TraderSignal{{
		Name:   "carol",
		ROI:    "12.5%",
		Signal: models.SignalCall{Action: "Buy", Symbol: "BNBUSDT"},
	}}, board.Snapshot())
	assert.Nil(t, h.Err())
}

func TestOpen_DialFailure(t *testing.T) {
	_, err := Open(context.Background(), "ws://127.0.0.1:1/nothing", func(models.TraderSignal) {})
	require.Error(t, err)
}

func TestClose_NoCallbackAfterReturn(t *testing.T) {
	url := pushServer(t, func(conn *websocket.Conn, _ int) {
		for {
			msg := []byte(`{"symbol":"BTCUSDT","price":"1","qty":"1","time":1}`)
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			time.Sleep(time.Millisecond)
		}
	})

	var closed atomic.Bool
	var late atomic.Int32
	first := make(chan struct{})
	var once sync.Once

	h, err := Open(context.Background(), url, func(models.MarketTrade) {
		if closed.Load() {
			late.Add(1)
		}
		once.Do(func() { close(first) })
	})
	require.NoError(t, err)

	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	h.Close()
	closed.Store(true)
	time.Sleep(50 * time.Millisecond)

	assert.Zero(t, late.Load())
	h.Close()

	select {
	case <-h.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
	assert.Nil(t, h.Err())
}

func TestOpen_NoReconnectByDefault(t *testing.T) {
	var conns atomic.Int32
	url := pushServer(t, func(conn *websocket.Conn, _ int) {
		conns.Add(1)
		// return closes the connection
	})

	h, err := Open(context.Background(), url, func(models.TraderSignal) {})
	require.NoError(t, err)
	defer h.Close()

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not stop after the server went away")
	}
	assert.Error(t, h.Err())
	assert.Equal(t, int32(1), conns.Load())
}

func TestOpen_ReconnectWhenEnabled(t *testing.T) {
	url := pushServer(t, func(conn *websocket.Conn, n int) {
		if n == 1 {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"name":"dave","signal":{"action":"Buy","symbol":"BTCUSDT"}}`))
		holdOpen(conn)
	})

	got := make(chan models.TraderSignal, 1)
	h, err := Open(context.Background(), url, func(s models.TraderSignal) { got <- s },
		WithReconnect(config.ReconnectConfig{
			Enabled:    true,
			MaxRetries: 5,
			BaseDelay:  10 * time.Millisecond,
			MaxDelay:   50 * time.Millisecond,
		}))
	require.NoError(t, err)
	defer h.Close()

	select {
	case s := <-got:
		assert.Equal(t, "dave", s.Name)
	case <-time.After(3 * time.Second):
		t.Fatal("no message after reconnect")
	}
}

func TestOpen_ReconnectGivesUpAfterMaxRetries(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if count.Add(1) > 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	h, err := Open(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), func(models.TraderSignal) {},
		WithReconnect(config.ReconnectConfig{
			Enabled:    true,
			MaxRetries: 2,
			BaseDelay:  5 * time.Millisecond,
			MaxDelay:   10 * time.Millisecond,
		}))
	require.NoError(t, err)
	defer h.Close()

	select {
	case <-h.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("reconnect did not give up")
	}
	assert.Error(t, h.Err())
	assert.Equal(t, int32(3), count.Load())
}
