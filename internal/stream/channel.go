// Package stream manages server-push channels and merges their events into
// bounded in-memory views.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"investdesk/internal/config"
	apperrors "investdesk/internal/errors"
	"investdesk/internal/logging"
	"investdesk/internal/metrics"
	"investdesk/pkg/utils"
)

// DefaultReadLimit bounds a single inbound frame.
const DefaultReadLimit = 64 * 1024

// Options configures a channel.
type Options struct {
	// Name labels logs and metrics. Defaults to the URL.
	Name string
	// Reconnect is off by default: when the connection ends the channel
	// stops for good.
	Reconnect config.ReconnectConfig
	Dialer    *websocket.Dialer
	Header    http.Header
	ReadLimit int64
	Logger    zerolog.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithName sets the channel name.
func WithName(name string) Option {
	return func(o *Options) { o.Name = name }
}

// WithReconnect enables the reconnect policy.
func WithReconnect(rc config.ReconnectConfig) Option {
	return func(o *Options) { o.Reconnect = rc }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// Handle is one open push channel.
type Handle struct {
	name   string
	url    string
	opts   Options
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// deliverMu is held while a callback runs. Close takes it to set
	// closed, so once Close returns no callback is running or will run.
	deliverMu sync.Mutex
	closed    bool

	connMu sync.Mutex
	conn   *websocket.Conn

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

// Open dials url and delivers every inbound JSON message, decoded as T, to
// onEvent in transport order. Messages that do not decode are dropped and
// the channel keeps running. The initial dial is synchronous.
func Open[T any](ctx context.Context, url string, onEvent func(T), opts ...Option) (*Handle, error) {
	o := Options{
		Name:      url,
		Dialer:    websocket.DefaultDialer,
		ReadLimit: DefaultReadLimit,
		Logger:    logging.FromContext(ctx),
	}
	for _, opt := range opts {
		opt(&o)
	}

	hctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		name:   o.Name,
		url:    url,
		opts:   o,
		logger: logging.WithStream(o.Logger, o.Name),
		ctx:    hctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	conn, err := h.dial()
	if err != nil {
		cancel()
		logging.LogStreamEvent(h.logger, h.name, "dial failed", err)
		return nil, apperrors.NewStreamError(h.name, "dial", err)
	}
	h.setConn(conn)
	logging.LogStreamEvent(h.logger, h.name, "connected", nil)

	decode := func(data []byte) {
		var event T
		if err := json.Unmarshal(data, &event); err != nil {
			metrics.StreamDropped.WithLabelValues(h.name).Inc()
			h.logger.Debug().Err(err).Int("bytes", len(data)).Msg("Dropped unparseable message")
			return
		}
		if h.deliver(func() { onEvent(event) }) {
			metrics.StreamMessages.WithLabelValues(h.name).Inc()
		}
	}

	go h.run(conn, decode)
	return h, nil
}

func (h *Handle) dial() (*websocket.Conn, error) {
	conn, _, err := h.opts.Dialer.DialContext(h.ctx, h.url, h.opts.Header)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(h.opts.ReadLimit)
	return conn, nil
}

// setConn installs conn unless the handle is closing, in which case conn is
// closed and false is returned.
func (h *Handle) setConn(conn *websocket.Conn) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.ctx.Err() != nil {
		conn.Close()
		return false
	}
	h.conn = conn
	return true
}

func (h *Handle) run(conn *websocket.Conn, handle func([]byte)) {
	defer close(h.done)

	attempt := 0
	for {
		err := h.readLoop(conn, handle)
		if h.ctx.Err() != nil {
			return
		}

		logging.LogStreamEvent(h.logger, h.name, "disconnected", err)

		if !h.opts.Reconnect.Enabled {
			h.setErr(err)
			return
		}

		conn = nil
		for conn == nil {
			if h.opts.Reconnect.MaxRetries > 0 && attempt >= h.opts.Reconnect.MaxRetries {
				h.setErr(apperrors.NewStreamError(h.name, "reconnect", err))
				return
			}
			delay := utils.Backoff(attempt, h.opts.Reconnect.BaseDelay, h.maxDelay())
			attempt++
			if !utils.Sleep(h.ctx, delay) {
				return
			}

			metrics.StreamReconnects.WithLabelValues(h.name).Inc()
			c, dialErr := h.dial()
			if dialErr != nil {
				err = dialErr
				h.logger.Warn().Err(dialErr).Int("attempt", attempt).Dur("delay", delay).Msg("Reconnect failed")
				continue
			}
			if !h.setConn(c) {
				return
			}
			conn = c
		}

		attempt = 0
		logging.LogStreamEvent(h.logger, h.name, "reconnected", nil)
	}
}

func (h *Handle) maxDelay() time.Duration {
	if h.opts.Reconnect.MaxDelay > 0 {
		return h.opts.Reconnect.MaxDelay
	}
	return 30 * time.Second
}

func (h *Handle) readLoop(conn *websocket.Conn, handle func([]byte)) error {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		handle(data)
		if h.ctx.Err() != nil {
			return h.ctx.Err()
		}
	}
}

func (h *Handle) deliver(fn func()) bool {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()
	if h.closed {
		return false
	}
	fn()
	return true
}

func (h *Handle) setErr(err error) {
	if err == nil {
		err = apperrors.ErrChannelClosed
	}
	h.errMu.Lock()
	h.err = err
	h.errMu.Unlock()
}

// Close stops the channel. After it returns no further events are
// delivered. It is safe to call more than once but must not be called from
// inside the channel's own callback.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.deliverMu.Lock()
		h.closed = true
		h.deliverMu.Unlock()

		h.cancel()

		h.connMu.Lock()
		if h.conn != nil {
			// The peer may already be gone; teardown errors are only logged.
			deadline := time.Now().Add(time.Second)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := h.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil &&
				!errors.Is(err, websocket.ErrCloseSent) {
				h.logger.Debug().Err(err).Msg("Close frame not sent")
			}
			if err := h.conn.Close(); err != nil {
				h.logger.Debug().Err(err).Msg("Connection close failed")
			}
		}
		h.connMu.Unlock()

		<-h.done
		logging.LogStreamEvent(h.logger, h.name, "closed", nil)
	})
}

// Done is closed when the channel has stopped, by Close or by losing the
// connection without reconnecting.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err reports why the channel stopped on its own. It is nil while running
// and after Close.
func (h *Handle) Err() error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.err
}

// Name returns the channel name.
func (h *Handle) Name() string {
	return h.name
}
