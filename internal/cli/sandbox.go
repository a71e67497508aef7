package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"investdesk/internal/logging"
	"investdesk/internal/sandbox"
)

// addSandboxCommands adds the local practice backend.
func addSandboxCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newSandboxCmd(app))
}

func newSandboxCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run a local practice backend",
		Long: `Run an in-memory backend that speaks the platform API, both push
channels and the simple-price endpoint. Nothing is persisted; every start
has the same seeded accounts. Point the client at it with the printed
environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := contextFor(cmd)

			addr, _ := cmd.Flags().GetString("addr")
			feed, _ := cmd.Flags().GetDuration("feed-interval")

			srv := sandbox.New(sandbox.WithLogger(logging.WithComponent(app.Logger, "sandbox")))
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			base := "http://" + ln.Addr().String()
			ws := "ws://" + ln.Addr().String()

			httpSrv := &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}
			serveErr := make(chan error, 1)
			go func() { serveErr <- httpSrv.Serve(ln) }()

			feedCtx, stopFeed := context.WithCancel(ctx)
			defer stopFeed()
			if feed > 0 {
				go srv.RunFeed(feedCtx, feed)
			}

			if output.IsJSON() {
				output.JSON(map[string]interface{}{
					"api_url":     base,
					"signals_url": ws + "/ws/trader-signals",
					"trades_url":  ws + "/ws/binance-trades",
					"quote_url":   base + "/simple/price",
					"totp_secret": srv.TOTPSecret(sandbox.TOTPEmail),
				})
			} else {
				output.Success("✓ Sandbox listening on %s", base)
				output.Println()
				output.Bold("Environment")
				output.Printf("  export INVESTDESK_API_URL=%s\n", base)
				output.Printf("  export INVESTDESK_SIGNALS_WS_URL=%s/ws/trader-signals\n", ws)
				output.Printf("  export INVESTDESK_TRADES_WS_URL=%s/ws/binance-trades\n", ws)
				output.Dim("  set prices.quote_url = %q in config.toml for sandbox prices", base+"/simple/price")
				output.Println()

				table := NewTable(output, "ROLE", "EMAIL", "PASSWORD", "NOTE")
				table.AddRow("admin", sandbox.AdminEmail, sandbox.AdminPassword, "")
				table.AddRow("user", sandbox.UserEmail, sandbox.UserPassword, "id "+sandbox.UserID.String())
				table.AddRow("user", sandbox.TOTPEmail, sandbox.TOTPPassword, "--totp-secret "+srv.TOTPSecret(sandbox.TOTPEmail))
				table.Render()
				output.Println()
				output.Dim("Press Ctrl+C to stop")
			}

			select {
			case <-ctx.Done():
			case err := <-serveErr:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			}

			stopFeed()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.DisconnectStreams()
			return httpSrv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().String("addr", "127.0.0.1:5001", "listen address")
	cmd.Flags().Duration("feed-interval", 2*time.Second, "how often to publish a market print (0 disables)")
	return cmd
}
