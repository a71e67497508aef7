package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# investdesk configuration

[api]
# Platform REST API base URL (requests go to <base_url>/api/...)
base_url = "http://localhost:5001"
# Per-request timeout
timeout = "15s"
# Outbound requests per second, 0 disables throttling
rate_limit = 0
burst = 5

[stream]
signals_url = "ws://localhost:5001/ws/trader-signals"
trades_url = "ws://localhost:5001/ws/binance-trades"

[stream.reconnect]
# Push channels do not reconnect unless enabled here
enabled = false
max_retries = 5
base_delay = "1s"
max_delay = "30s"

[poll]
price_interval = "30s"
account_interval = "60s"

[prices]
quote_url = "https://api.coingecko.com/api/v3/simple/price"
timeout = "10s"

[prices.assets]
BTCUSDT = "bitcoin"
ETHUSDT = "ethereum"
BNBUSDT = "binancecoin"

[storage]
# Session database; tokens live here between runs
# path = "~/.config/investdesk/session.db"
# Seal tokens with INVESTDESK_PASSPHRASE
encrypt_tokens = false

[notify]
# Ring the terminal bell when a trader signal changes in watch mode
bell = true
# POST each signal change as JSON to this URL
# webhook_url = "https://hooks.example.com/investdesk"

[log]
# debug, info, warn, error
level = "info"
console = true
file = true
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
