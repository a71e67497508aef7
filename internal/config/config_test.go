package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WritesTemplateAndUsesDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "investdesk")

	cfg, err := Load(dir)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "config.toml"))
	require.NoError(t, err, "template written on first run")

	assert.Equal(t, "http://localhost:5001", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.False(t, cfg.Stream.Reconnect.Enabled)
	assert.Equal(t, filepath.Join(dir, "session.db"), cfg.Storage.Path)
	assert.True(t, cfg.Notify.Bell)
	assert.Equal(t, "bitcoin", cfg.Prices.Assets["BTCUSDT"])
}

func TestLoad_ReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[api]
base_url = "https://desk.example.com"

[stream.reconnect]
enabled = true
max_retries = 0

[prices.assets]
SOLUSDT = "solana"

[notify]
bell = false
webhook_url = "https://hooks.example.com/x"
`), 0o644))

	t.Setenv("INVESTDESK_TRADES_WS_URL", "wss://trades.example.com/ws")
	t.Setenv("INVESTDESK_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "https://desk.example.com", cfg.API.BaseURL)
	assert.True(t, cfg.Stream.Reconnect.Enabled)
	assert.Equal(t, 0, cfg.Stream.Reconnect.MaxRetries)
	assert.Equal(t, time.Second, cfg.Stream.Reconnect.BaseDelay)
	assert.Equal(t, "wss://trades.example.com/ws", cfg.Stream.TradesURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "solana", cfg.Prices.Assets["SOLUSDT"])
	assert.False(t, cfg.Notify.Bell)
	assert.Equal(t, "https://hooks.example.com/x", cfg.Notify.WebhookURL)
}

func TestLoad_RejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[api\n"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"api scheme", func(c *Config) { c.API.BaseURL = "ftp://x" }, "api.base_url"},
		{"signals scheme", func(c *Config) { c.Stream.SignalsURL = "http://x/ws" }, "stream.signals_url"},
		{"trades missing host", func(c *Config) { c.Stream.TradesURL = "ws://" }, "stream.trades_url"},
		{"price interval", func(c *Config) { c.Poll.PriceInterval = 0 }, "poll.price_interval"},
		{"account interval", func(c *Config) { c.Poll.AccountInterval = -time.Second }, "poll.account_interval"},
		{"rate limit", func(c *Config) { c.API.RateLimit = -1 }, "api.rate_limit"},
		{"reconnect delay", func(c *Config) {
			c.Stream.Reconnect.Enabled = true
			c.Stream.Reconnect.BaseDelay = 0
		}, "stream.reconnect.base_delay"},
		{"webhook scheme", func(c *Config) { c.Notify.WebhookURL = "mailto:ops@example.com" }, "notify.webhook_url"},
		{"passphrase", func(c *Config) { c.Storage.EncryptTokens = true }, "INVESTDESK_PASSPHRASE"},
		{"passphrase set", func(c *Config) {
			c.Storage.EncryptTokens = true
			c.Passphrase = "hunter2"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
