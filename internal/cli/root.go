package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"investdesk/internal/api"
	"investdesk/internal/config"
	apperrors "investdesk/internal/errors"
	"investdesk/internal/security"
	"investdesk/internal/session"
	"investdesk/internal/store"
	"investdesk/internal/tokens"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies. The session stack is opened on
// first use so commands like version and sandbox never touch storage.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger

	KV      store.KVStore
	Tokens  *tokens.Store
	Client  *api.Client
	Session *session.Controller
	Audit   *security.AuditLogger
}

// NewRootCmd creates the root command for the CLI. configDir is where cfg
// was loaded from; empty means the default directory.
func NewRootCmd(cfg *config.Config, configDir string, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config:    cfg,
		ConfigDir: configDir,
		Logger:    logger,
	}

	rootCmd := &cobra.Command{
		Use:   "investdesk",
		Short: "investdesk - account, signals and demo trading from the terminal",
		Long: `investdesk is a terminal client for the investment platform.

It signs you in (with two-factor when enabled), shows your wallet and
activity, streams trader signals and market prints, and runs the demo
trading account. Admins can review transfers and act as another user.

Use 'investdesk <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Close()
		},
	}

	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addAuthCommands(rootCmd, app)
	addAccountCommands(rootCmd, app)
	addDemoCommands(rootCmd, app)
	addWatchCommands(rootCmd, app)
	addAdminCommands(rootCmd, app)
	addSandboxCommands(rootCmd, app)

	return rootCmd
}

// Open builds the credential store, API client and session controller.
// Calling it again is a no-op.
func (a *App) Open(ctx context.Context) error {
	if a.Session != nil {
		return nil
	}

	sqlite, err := store.NewSQLiteStore(a.Config.Storage.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrDatabaseError, err)
	}
	var kv store.KVStore = sqlite
	if a.Config.Storage.EncryptTokens {
		sealed, err := store.NewSealed(ctx, sqlite, a.Config.Passphrase)
		if err != nil {
			sqlite.Close()
			return fmt.Errorf("%w: %w", apperrors.ErrCredentialAccess, err)
		}
		kv = sealed
	}
	a.KV = kv
	a.Tokens = tokens.New(kv, a.Logger)
	a.Client = api.NewClientFromConfig(a.Config.API, a.Tokens, a.Logger)

	opts := []session.Option{
		session.WithLogger(a.Logger),
		session.WithExpiredHandler(func(e api.SessionExpired) {
			a.Logger.Warn().Str("route", session.ExpiredRoute(e)).Msg("Signed out: session expired")
		}),
	}
	auditDir := filepath.Join(config.DefaultConfigDir(), "audit")
	if a.ConfigDir != "" {
		auditDir = filepath.Join(a.ConfigDir, "audit")
	}
	if audit, err := security.OpenAuditLog(auditDir); err != nil {
		a.Logger.Warn().Err(err).Msg("Audit log unavailable")
	} else {
		a.Audit = audit
		opts = append(opts, session.WithAudit(audit))
	}

	a.Session = session.New(a.Client, a.Tokens, opts...)
	a.Logger.Debug().Str("db", a.Config.Storage.Path).Bool("sealed", a.Config.Storage.EncryptTokens).Msg("Session opened")
	return nil
}

// Close releases whatever Open built.
func (a *App) Close() {
	if a.Session != nil {
		a.Session.Close()
		a.Session = nil
	}
	if a.Audit != nil {
		a.Audit.Close()
		a.Audit = nil
	}
	if a.KV != nil {
		if err := a.KV.Close(); err != nil {
			a.Logger.Debug().Err(err).Msg("Closing credential store")
		}
		a.KV = nil
	}
}

// signedIn opens the session and fails fast when there is no credential.
func (a *App) signedIn(ctx context.Context) error {
	if err := a.Open(ctx); err != nil {
		return err
	}
	state, err := a.Session.State(ctx)
	if err != nil {
		return err
	}
	if state == session.StateAnonymous {
		return apperrors.ErrNotAuthenticated
	}
	return nil
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("investdesk v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			dir := app.ConfigDir
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				output.JSON(map[string]string{"path": dir})
			} else {
				output.Println(dir)
			}
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("API")
	output.Printf("  Base URL:        %s\n", cfg.API.BaseURL)
	output.Printf("  Timeout:         %s\n", cfg.API.Timeout)
	if cfg.API.RateLimit > 0 {
		output.Printf("  Rate limit:      %.1f/s (burst %d)\n", cfg.API.RateLimit, cfg.API.Burst)
	} else {
		output.Printf("  Rate limit:      off\n")
	}
	output.Println()

	output.Bold("Push channels")
	output.Printf("  Signals:         %s\n", cfg.Stream.SignalsURL)
	output.Printf("  Trades:          %s\n", cfg.Stream.TradesURL)
	if cfg.Stream.Reconnect.Enabled {
		retries := "unlimited"
		if cfg.Stream.Reconnect.MaxRetries > 0 {
			retries = fmt.Sprintf("%d", cfg.Stream.Reconnect.MaxRetries)
		}
		output.Printf("  Reconnect:       %s retries, %s to %s\n", retries, cfg.Stream.Reconnect.BaseDelay, cfg.Stream.Reconnect.MaxDelay)
	} else {
		output.Printf("  Reconnect:       off\n")
	}
	output.Println()

	output.Bold("Refresh")
	output.Printf("  Prices every:    %s\n", cfg.Poll.PriceInterval)
	output.Printf("  Account every:   %s\n", cfg.Poll.AccountInterval)
	output.Printf("  Quote source:    %s\n", cfg.Prices.QuoteURL)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Database:        %s\n", cfg.Storage.Path)
	output.Printf("  Encrypt tokens:  %v\n", cfg.Storage.EncryptTokens)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:           %s\n", cfg.Log.Level)
	output.Printf("  File:            %v\n", cfg.Log.File)
	if cfg.Log.File {
		output.Printf("  File path:       %s\n", cfg.Log.FilePath)
	}
}

// contextFor returns the command context, which main ties to SIGINT.
func contextFor(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
