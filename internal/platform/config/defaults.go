package config

import "time"

// DefaultConfig returns the baseline configuration applied before the
// config file and environment overrides.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 3000,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			Enabled:   true,
			StaticDir: "./web",
		},
		Database: DatabaseConfig{
			DSN: "data/paylink.db",
		},
		Auth: AuthConfig{
			AccessTTL:  Duration(time.Hour),
			RefreshTTL: Duration(6 * time.Hour),
			Registry: RegistryConfig{
				Type:    "memory",
				Cleanup: Duration(10 * time.Minute),
			},
		},
		Payments: PaymentsConfig{
			Coinbase: CoinbaseConfig{
				BaseURL:    "https://api.commerce.coinbase.com",
				Timeout:    Duration(10 * time.Second),
				MaxRetries: 2,
				ChargeName: "Merchant Charge",
			},
		},
	}
}
