package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"investdesk/internal/cli"
	"investdesk/internal/config"
	apperrors "investdesk/internal/errors"
	"investdesk/internal/logging"
	"investdesk/internal/security"
)

func main() {
	os.Exit(run())
}

func run() int {
	configDir := os.Getenv("INVESTDESK_CONFIG_DIR")
	if configDir == "" {
		configDir = config.DefaultConfigDir()
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: ")+err.Error())
		return 1
	}

	logCfg := logging.DefaultLogConfig(configDir)
	logCfg.Level = cfg.Log.Level
	logCfg.Console = cfg.Log.Console
	logCfg.File = cfg.Log.File
	if cfg.Log.FilePath != "" {
		logCfg.FilePath = cfg.Log.FilePath
	}
	logCfg.Filter = security.Redact
	logger := logging.NewLoggerWithConfig(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	if err := cli.NewRootCmd(cfg, configDir, logger).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: ")+apperrors.UserMessage(err, err.Error()))
		return 1
	}
	return 0
}
