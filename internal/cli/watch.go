package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"investdesk/internal/api"
	"investdesk/internal/dashboard"
	apperrors "investdesk/internal/errors"
	"investdesk/internal/health"
	"investdesk/internal/market"
	"investdesk/internal/models"
	"investdesk/internal/notify"
	"investdesk/internal/session"
	"investdesk/pkg/utils"
)

// addWatchCommands adds the live dashboard.
func addWatchCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newWatchCmd(app))
}

func newWatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard: wallet, trader signals, market prints and demo account",
		Long: `Open the live dashboard.

Trader signals and market prints arrive over push channels, prices and
balances refresh on a timer. A changed trader call rings the bell and is
posted to the webhook when one is configured. Press Ctrl+C to exit.`,
		Example: `  investdesk watch
  investdesk watch --metrics-addr :9090
  investdesk watch --once --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithCancel(contextFor(cmd))
			defer cancel()

			if err := app.signedIn(ctx); err != nil {
				return err
			}

			var opts watchOptions
			opts.metricsAddr, _ = cmd.Flags().GetString("metrics-addr")
			opts.refresh, _ = cmd.Flags().GetDuration("refresh")
			opts.once, _ = cmd.Flags().GetBool("once")
			if opts.refresh <= 0 {
				opts.refresh = 500 * time.Millisecond
			}
			return runWatch(ctx, app, output, opts)
		},
	}

	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().Duration("refresh", 500*time.Millisecond, "minimum time between redraws")
	cmd.Flags().Bool("once", false, "print the dashboard once and exit")
	return cmd
}

type watchOptions struct {
	metricsAddr string
	refresh     time.Duration
	once        bool
}

func runWatch(ctx context.Context, app *App, output *Output, opts watchOptions) error {
	alerts := newAlertLog(output.w, 5)
	terminal := notify.NewTerminal(alerts, output.colored)
	notifier := notify.NewFromConfig(app.Config.Notify, terminal, app.Logger)
	if output.IsJSON() {
		terminal.SetBell(false)
	}

	expired := make(chan api.SessionExpired, 1)
	unsubscribe := app.Client.OnSessionExpired(func(e api.SessionExpired) {
		select {
		case expired <- e:
		default:
		}
	})
	defer unsubscribe()

	dirty := make(chan struct{}, 1)
	poke := func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	}

	source := market.NewPriceSourceFromConfig(app.Config.Prices, app.Logger)
	tracker := market.NewPriceTracker(source, app.Config.Poll.PriceInterval, source.Assets(),
		market.WithTrackerLogger(app.Logger),
		market.WithOnUpdate(func(map[string]models.PriceQuote, error) { poke() }),
	)

	dopts := dashboard.OptionsFromConfig(app.Config, app.Logger)
	dopts.OnChange = func(dashboard.Section) { poke() }

	d, err := dashboard.Open(ctx, app.Client, tracker, dopts)
	if err != nil {
		return err
	}
	defer d.Close()

	if opts.metricsAddr != "" && !opts.once {
		stop := serveMetrics(opts.metricsAddr, watchHealth(d, tracker), app.Logger)
		defer stop()
		output.Dim("Metrics on http://%s/metrics", opts.metricsAddr)
	}

	var actingAs string
	if imp, err := app.Tokens.Impersonation(ctx); err == nil && imp != nil {
		actingAs = imp.ImpersonatedUser.DisplayName()
	}

	reported := make(map[string]bool)
	reportStreams := func(v dashboard.View) {
		for name, err := range v.StreamErr {
			if reported[name] {
				continue
			}
			reported[name] = true
			if nerr := notifier.Failure(ctx, name+" channel", err); nerr != nil {
				app.Logger.Debug().Err(nerr).Str("stream", name).Msg("Failure notification failed")
			}
		}
	}

	signals := notify.NewSignalTracker()
	view := d.View()
	signals.Changed(view.Signals)
	reportStreams(view)
	if err := renderDashboard(output, view, source.Assets(), actingAs, alerts.Lines(), time.Now()); err != nil || opts.once {
		return err
	}

	ticker := time.NewTicker(opts.refresh)
	defer ticker.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-expired:
			route := session.ExpiredRoute(e)
			if err := notifier.SessionExpired(ctx, route); err != nil {
				app.Logger.Debug().Err(err).Msg("Expiry notification failed")
			}
			return apperrors.ErrSessionExpired
		case <-dirty:
			pending = true
		case <-ticker.C:
			if !pending {
				continue
			}
			pending = false
			view := d.View()
			reportStreams(view)
			for _, sig := range signals.Changed(view.Signals) {
				if err := notifier.Signal(ctx, sig); err != nil {
					app.Logger.Debug().Err(err).Str("trader", sig.Name).Msg("Signal notification failed")
				}
			}
			if err := renderDashboard(output, view, source.Assets(), actingAs, alerts.Lines(), time.Now()); err != nil {
				return err
			}
		}
	}
}

// watchHealth checks the parts of the dashboard that can fail on their own.
func watchHealth(d *dashboard.Dashboard, tracker *market.PriceTracker) *health.Monitor {
	m := health.NewMonitor(health.DefaultConfig())
	for _, name := range []string{"signals", "trades"} {
		m.Register(name, health.ErrorCheck(func() error {
			return d.View().StreamErr[name]
		}, health.StatusUnhealthy))
	}
	m.Register("wallet", health.ErrorCheck(func() error {
		return d.View().WalletErr
	}, health.StatusDegraded))
	m.Register("prices", health.ErrorCheck(tracker.Err, health.StatusDegraded))
	return m
}

// serveMetrics exposes the client metrics and returns a shutdown func.
func serveMetrics(addr string, monitor *health.Monitor, logger zerolog.Logger) func() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", monitor.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("Metrics server shutdown")
		}
	}
}

// alertLog keeps the last few notification lines so they survive redraws.
// The bell is passed straight through.
type alertLog struct {
	out   io.Writer
	limit int

	mu    sync.Mutex
	lines []string
}

func newAlertLog(out io.Writer, limit int) *alertLog {
	return &alertLog{out: out, limit: limit}
}

func (a *alertLog) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := string(p)
	if strings.HasPrefix(text, "\a") {
		if _, err := io.WriteString(a.out, "\a"); err != nil {
			return 0, err
		}
		text = text[1:]
	}
	a.lines = append(a.lines, strings.Split(strings.TrimRight(text, "\n"), "\n")...)
	if len(a.lines) > a.limit {
		a.lines = a.lines[len(a.lines)-a.limit:]
	}
	return len(p), nil
}

func (a *alertLog) Lines() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.lines...)
}

// watchView is View with errors flattened for JSON.
type watchView struct {
	Wallet    *models.Wallet               `json:"wallet,omitempty"`
	WalletErr string                       `json:"wallet_error,omitempty"`
	Signals   []models.TraderSignal        `json:"signals"`
	Trades    []models.MarketTrade         `json:"trades"`
	Prices    map[string]models.PriceQuote `json:"prices"`
	Demo      *models.DemoAccount          `json:"demo,omitempty"`
	DemoErr   string                       `json:"demo_error,omitempty"`
	StreamErr map[string]string            `json:"stream_errors,omitempty"`
	ActingAs  string                       `json:"acting_as,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return apperrors.UserMessage(err, err.Error())
}

const maxTradesShown = 8

func newestQuote(quotes map[string]models.PriceQuote) time.Time {
	var latest time.Time
	for _, q := range quotes {
		if q.FetchedAt.After(latest) {
			latest = q.FetchedAt
		}
	}
	return latest
}

// renderDashboard draws one frame. assets are the tracked pairs, shown even
// before their first quote.
func renderDashboard(output *Output, v dashboard.View, assets []string, actingAs string, alerts []string, now time.Time) error {
	if output.IsJSON() {
		wv := watchView{
			Wallet:    v.Wallet,
			WalletErr: errString(v.WalletErr),
			Signals:   v.Signals,
			Trades:    v.Trades,
			Prices:    v.Prices,
			Demo:      v.Demo,
			DemoErr:   errString(v.DemoErr),
			ActingAs:  actingAs,
		}
		if len(v.StreamErr) > 0 {
			wv.StreamErr = make(map[string]string, len(v.StreamErr))
			for k, e := range v.StreamErr {
				wv.StreamErr[k] = errString(e)
			}
		}
		return output.JSON(wv)
	}

	var buf bytes.Buffer
	frame := newOutput(&buf, false, output.colored)

	header := frame.Tint(toneStrong, "investdesk") + "  " + frame.Tint(toneFaint, FormatTime(now))
	if actingAs != "" {
		header += "  " + frame.Tint(toneAccent, "acting as "+actingAs)
	}
	frame.Println(header)
	frame.Println()

	switch {
	case v.Wallet != nil:
		frame.Box("Wallet", walletLines(frame, v.Wallet))
	case v.WalletErr != nil:
		frame.Error("Wallet: %s", errString(v.WalletErr))
	}
	frame.Println()

	if len(assets) > 0 || len(v.Prices) > 0 {
		showPrices(frame, assets, v.Prices)
		if latest := newestQuote(v.Prices); !latest.IsZero() {
			frame.Dim("prices updated %s", FormatAge(latest, now))
		}
		frame.Println()
	}

	frame.Bold("Trader signals")
	if len(v.Signals) == 0 {
		frame.Dim("  none yet")
	} else {
		table := NewTable(frame, "TRADER", "ROI", "CALL", "SYMBOL", "PRICE", "TIME")
		for _, s := range v.Signals {
			table.AddRow(s.Name, OrDash(string(s.ROI)), frame.Side(s.Signal.Action), s.Signal.Symbol,
				OrDash(s.Signal.Price.String()), OrDash(string(s.Signal.Time)))
		}
		table.Render()
	}
	frame.Println()

	frame.Bold("Market prints")
	if len(v.Trades) == 0 {
		frame.Dim("  waiting for trades")
	} else {
		trades := v.Trades
		if len(trades) > maxTradesShown {
			trades = trades[:maxTradesShown]
		}
		table := NewTable(frame, "TIME", "SYMBOL", "PRICE", "QTY")
		for _, t := range trades {
			table.AddRow(FormatMillis(t.Time), t.Symbol, FormatPrice(t.Price), utils.FormatAmount(t.Qty))
		}
		table.Render()
	}
	frame.Println()

	switch {
	case v.Demo != nil:
		frame.Printf("%s  balance %s  P&L %s\n", frame.Tint(toneStrong, "Demo"), FormatUSD(v.Demo.Balance),
			frame.FormatPnL(v.Demo.TotalPnL(), "USD"))
	case v.DemoErr != nil:
		frame.Error("Demo account: %s", errString(v.DemoErr))
	}

	if len(v.StreamErr) > 0 {
		names := make([]string, 0, len(v.StreamErr))
		for name := range v.StreamErr {
			names = append(names, name)
		}
		sort.Strings(names)
		frame.Println()
		for _, name := range names {
			frame.Warning("%s channel unavailable: %s", name, errString(v.StreamErr[name]))
		}
	}

	if len(alerts) > 0 {
		frame.Println()
		for _, line := range alerts {
			frame.Println(line)
		}
	}

	if output.colored {
		output.Printf("\033[H\033[2J")
	}
	output.Printf("%s", buf.String())
	return nil
}
