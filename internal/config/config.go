// Package config provides configuration management for the investdesk client.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Poll    PollConfig    `mapstructure:"poll"`
	Prices  PricesConfig  `mapstructure:"prices"`
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
	Notify  NotifyConfig  `mapstructure:"notify"`

	// Passphrase seals stored tokens when Storage.EncryptTokens is set.
	// Only ever read from the environment.
	Passphrase string `mapstructure:"-" json:"-"`
}

// APIConfig holds platform REST API settings.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	Burst     int           `mapstructure:"burst"`
}

// StreamConfig holds push channel settings.
type StreamConfig struct {
	SignalsURL string          `mapstructure:"signals_url"`
	TradesURL  string          `mapstructure:"trades_url"`
	Reconnect  ReconnectConfig `mapstructure:"reconnect"`
}

// ReconnectConfig is the opt-in reconnect policy for push channels.
type ReconnectConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
}

// PollConfig holds refresh intervals.
type PollConfig struct {
	PriceInterval   time.Duration `mapstructure:"price_interval"`
	AccountInterval time.Duration `mapstructure:"account_interval"`
}

// PricesConfig holds the third-party quote source.
type PricesConfig struct {
	QuoteURL string            `mapstructure:"quote_url"`
	Assets   map[string]string `mapstructure:"assets"` // trading pair -> source coin id
	Timeout  time.Duration     `mapstructure:"timeout"`
}

// StorageConfig holds credential storage settings.
type StorageConfig struct {
	Path          string `mapstructure:"path"`
	EncryptTokens bool   `mapstructure:"encrypt_tokens"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// NotifyConfig holds signal alert settings for watch mode.
type NotifyConfig struct {
	Bell       bool   `mapstructure:"bell"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/investdesk"
	}
	return filepath.Join(home, ".config", "investdesk")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
// A missing config.toml is replaced by the template and loading continues.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config.toml: %w", err)
	}

	cfg.normalize()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without touching disk.
func Default() *Config {
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	cfg.normalize()
	return cfg
}

// normalize undoes viper's lower-casing of map keys: trading pairs are
// upper case everywhere else.
func (c *Config) normalize() {
	assets := make(map[string]string, len(c.Prices.Assets))
	for pair, id := range c.Prices.Assets {
		assets[strings.ToUpper(pair)] = id
	}
	c.Prices.Assets = assets
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("api.base_url", "http://localhost:5001")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("api.rate_limit", 0.0)
	v.SetDefault("api.burst", 5)

	v.SetDefault("stream.signals_url", "ws://localhost:5001/ws/trader-signals")
	v.SetDefault("stream.trades_url", "ws://localhost:5001/ws/binance-trades")
	v.SetDefault("stream.reconnect.enabled", false)
	v.SetDefault("stream.reconnect.max_retries", 5)
	v.SetDefault("stream.reconnect.base_delay", time.Second)
	v.SetDefault("stream.reconnect.max_delay", 30*time.Second)

	v.SetDefault("poll.price_interval", 30*time.Second)
	v.SetDefault("poll.account_interval", 60*time.Second)

	v.SetDefault("prices.quote_url", "https://api.coingecko.com/api/v3/simple/price")
	v.SetDefault("prices.assets", map[string]string{
		"BTCUSDT": "bitcoin",
		"ETHUSDT": "ethereum",
		"BNBUSDT": "binancecoin",
	})
	v.SetDefault("prices.timeout", 10*time.Second)

	v.SetDefault("storage.path", filepath.Join(configDir, "session.db"))
	v.SetDefault("storage.encrypt_tokens", false)

	v.SetDefault("notify.bell", true)
	v.SetDefault("notify.webhook_url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", true)
	v.SetDefault("log.file_path", filepath.Join(configDir, "logs", "investdesk.log"))
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INVESTDESK_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("INVESTDESK_SIGNALS_WS_URL"); v != "" {
		cfg.Stream.SignalsURL = v
	}
	if v := os.Getenv("INVESTDESK_TRADES_WS_URL"); v != "" {
		cfg.Stream.TradesURL = v
	}
	if v := os.Getenv("INVESTDESK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("INVESTDESK_PASSPHRASE"); v != "" {
		cfg.Passphrase = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validateURL("api.base_url", c.API.BaseURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("stream.signals_url", c.Stream.SignalsURL, "ws", "wss"); err != nil {
		return err
	}
	if err := validateURL("stream.trades_url", c.Stream.TradesURL, "ws", "wss"); err != nil {
		return err
	}
	if c.Poll.PriceInterval <= 0 {
		return fmt.Errorf("poll.price_interval must be positive")
	}
	if c.Poll.AccountInterval <= 0 {
		return fmt.Errorf("poll.account_interval must be positive")
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must be non-negative")
	}
	if c.Stream.Reconnect.Enabled && c.Stream.Reconnect.BaseDelay <= 0 {
		return fmt.Errorf("stream.reconnect.base_delay must be positive")
	}
	if c.Notify.WebhookURL != "" {
		if err := validateURL("notify.webhook_url", c.Notify.WebhookURL, "http", "https"); err != nil {
			return err
		}
	}
	if c.Storage.EncryptTokens && c.Passphrase == "" {
		return fmt.Errorf("storage.encrypt_tokens requires INVESTDESK_PASSPHRASE")
	}
	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s is not a valid URL: %q", field, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s must use one of %v, got %q", field, schemes, u.Scheme)
}
