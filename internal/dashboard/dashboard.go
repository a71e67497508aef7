// Package dashboard is the signed-in landing view: wallet, trader signals,
// market prints, prices and the demo trading account, kept live while open.
package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"investdesk/internal/config"
	apperrors "investdesk/internal/errors"
	"investdesk/internal/logging"
	"investdesk/internal/market"
	"investdesk/internal/models"
	"investdesk/internal/poll"
	"investdesk/internal/stream"
)

// API is the part of the API client the dashboard uses.
type API interface {
	DemoAPI
	Wallet(ctx context.Context) (*models.Wallet, error)
	RecentSignals(ctx context.Context) ([]models.TraderSignal, error)
}

// Prices is the part of the price tracker the dashboard uses.
type Prices interface {
	Start(ctx context.Context)
	Stop()
	Latest(asset string) (models.PriceQuote, bool)
	Snapshot() map[string]models.PriceQuote
}

// Section names a part of the view that changed.
type Section string

const (
	SectionWallet  Section = "wallet"
	SectionSignals Section = "signals"
	SectionTrades  Section = "trades"
	SectionPrices  Section = "prices"
	SectionDemo    Section = "demo"
)

// Options configures the live parts of the dashboard.
type Options struct {
	SignalsURL      string
	TradesURL       string
	Reconnect       config.ReconnectConfig
	AccountInterval time.Duration
	Logger          zerolog.Logger
	// OnChange runs after a section changes. It may run on any goroutine and
	// must not call Close.
	OnChange func(Section)
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config, logger zerolog.Logger) Options {
	return Options{
		SignalsURL:      cfg.Stream.SignalsURL,
		TradesURL:       cfg.Stream.TradesURL,
		Reconnect:       cfg.Stream.Reconnect,
		AccountInterval: cfg.Poll.AccountInterval,
		Logger:          logger,
	}
}

// View is a point-in-time copy of the dashboard.
type View struct {
	Wallet    *models.Wallet
	WalletErr error
	Signals   []models.TraderSignal
	Trades    []models.MarketTrade
	Prices    map[string]models.PriceQuote
	Demo      *models.DemoAccount
	DemoErr   error
	StreamErr map[string]error
}

// Dashboard holds the view state. Create it with Open and release it with
// Close.
type Dashboard struct {
	api    API
	prices Prices
	opts   Options
	logger zerolog.Logger

	signals *stream.SignalBoard
	trades  *stream.TradeFeed
	demo    *DemoDesk

	mu        sync.RWMutex
	wallet    *models.Wallet
	walletErr error
	streamErr map[string]error

	handles []*stream.Handle
	polls   []*poll.Handle
	cancel  context.CancelFunc

	closeOnce sync.Once
}

// Open loads the initial state and starts the live parts: both push
// channels, the price tracker and the account refresh. Failures of a single
// section are recorded in the view; only an ended session aborts Open.
func Open(ctx context.Context, client API, prices Prices, opts Options) (*Dashboard, error) {
	d := &Dashboard{
		api:       client,
		prices:    prices,
		opts:      opts,
		logger:    logging.WithComponent(opts.Logger, "dashboard"),
		signals:   stream.NewSignalBoard(),
		trades:    stream.NewTradeFeed(),
		streamErr: make(map[string]error),
	}
	d.demo = NewDemoDesk(client, prices, opts.Logger)
	d.demo.onChange = func() { d.notify(SectionDemo) }

	if err := d.loadWallet(ctx); apperrors.Is(err, apperrors.ErrSessionExpired) {
		return nil, err
	}

	recent, err := client.RecentSignals(ctx)
	switch {
	case apperrors.Is(err, apperrors.ErrSessionExpired):
		return nil, err
	case err != nil:
		d.logger.Warn().Err(err).Msg("Recent signals unavailable")
	default:
		d.signals.Seed(recent)
	}

	if err := d.demo.Load(ctx); apperrors.Is(err, apperrors.ErrSessionExpired) {
		return nil, err
	}

	lctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	streamOpts := []stream.Option{stream.WithReconnect(opts.Reconnect), stream.WithLogger(opts.Logger)}
	if opts.SignalsURL != "" {
		h, err := stream.OpenSignals(lctx, opts.SignalsURL, d.signals, func(models.TraderSignal) {
			d.notify(SectionSignals)
		}, append(streamOpts, stream.WithName("signals"))...)
		d.track("signals", h, err)
	}
	if opts.TradesURL != "" {
		h, err := stream.OpenTrades(lctx, opts.TradesURL, d.trades, func(models.MarketTrade) {
			d.notify(SectionTrades)
		}, append(streamOpts, stream.WithName("trades"))...)
		d.track("trades", h, err)
	}

	if prices != nil {
		prices.Start(lctx)
	}

	// Both were loaded above, so the pollers start one interval in.
	pollOpts := []poll.Option{poll.WithLogger(opts.Logger), poll.WithoutInitialFetch()}
	d.polls = append(d.polls,
		poll.Start(lctx, "wallet", opts.AccountInterval, client.Wallet, d.applyWallet, pollOpts...),
		poll.Start(lctx, "demo-account", opts.AccountInterval, d.demo.fetch, d.demo.refresh, pollOpts...),
	)

	return d, nil
}

func (d *Dashboard) track(name string, h *stream.Handle, err error) {
	if err != nil {
		d.logger.Warn().Err(err).Str("stream", name).Msg("Push channel unavailable")
		d.mu.Lock()
		d.streamErr[name] = err
		d.mu.Unlock()
		return
	}
	d.handles = append(d.handles, h)
}

func (d *Dashboard) loadWallet(ctx context.Context) error {
	w, err := d.api.Wallet(ctx)
	d.applyWallet(poll.Result[*models.Wallet]{Value: w, Err: err, At: time.Now()})
	return err
}

func (d *Dashboard) applyWallet(r poll.Result[*models.Wallet]) {
	d.mu.Lock()
	if r.Err != nil {
		d.walletErr = r.Err
	} else {
		d.wallet, d.walletErr = r.Value, nil
	}
	d.mu.Unlock()
	d.notify(SectionWallet)
}

func (d *Dashboard) notify(s Section) {
	if d.opts.OnChange != nil {
		d.opts.OnChange(s)
	}
}

// Demo returns the demo account desk. Trades placed through it show up in
// the view at once.
func (d *Dashboard) Demo() *DemoDesk {
	return d.demo
}

// View returns a copy of the current state.
func (d *Dashboard) View() View {
	v := View{
		Signals: d.signals.Snapshot(),
		Trades:  d.trades.Snapshot(),
	}
	v.Demo, v.DemoErr = d.demo.Account()
	if d.prices != nil {
		v.Prices = d.prices.Snapshot()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	v.Wallet, v.WalletErr = d.wallet, d.walletErr
	v.StreamErr = make(map[string]error, len(d.streamErr))
	for k, e := range d.streamErr {
		v.StreamErr[k] = e
	}
	for _, h := range d.handles {
		if err := h.Err(); err != nil {
			v.StreamErr[h.Name()] = err
		}
	}
	return v
}

// Close stops every live part. After it returns no OnChange call runs.
// Teardown problems are logged, not returned.
func (d *Dashboard) Close() {
	d.closeOnce.Do(func() {
		for _, p := range d.polls {
			p.Stop()
		}
		if d.prices != nil {
			d.prices.Stop()
		}
		for _, h := range d.handles {
			h.Close()
			if err := h.Err(); err != nil {
				d.logger.Debug().Err(err).Str("stream", h.Name()).Msg("Push channel ended with error")
			}
		}
		if d.cancel != nil {
			d.cancel()
		}
		d.logger.Debug().Msg("Dashboard closed")
	})
}

var _ Prices = (*market.PriceTracker)(nil)
