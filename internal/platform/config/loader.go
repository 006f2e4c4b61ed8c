package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	platformerrors "paylink-server-go/internal/platform/errors"
)

const defaultConfigPath = ".config.yaml"

// Loader reads configuration from defaults, an optional yaml file and
// environment variables, in that order of precedence.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader reading the default config path.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		path:      defaultConfigPath,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the config file location (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Load builds the effective configuration and validates it.
func (l *Loader) Load() (*Config, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("no .env file found, using system environment")
		}
	}

	cfg := DefaultConfig()

	path := l.path
	if env := os.Getenv("PAYLINK_CONFIG"); env != "" {
		path = env
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, "config.load",
				"failed to parse config file", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, platformerrors.Wrap(platformerrors.KindConfig, "config.load",
			"failed to read config file", err)
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployments inject secrets without writing them
// to the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PAYLINK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PAYLINK_ACCESS_SECRET"); v != "" {
		cfg.Auth.AccessSecret = v
	}
	if v := os.Getenv("PAYLINK_REFRESH_SECRET"); v != "" {
		cfg.Auth.RefreshSecret = v
	}
	if v := os.Getenv("PAYLINK_REDIS_ADDR"); v != "" {
		cfg.Auth.Registry.Redis.Addr = v
	}
	if v := os.Getenv("PAYLINK_COINBASE_API_KEY"); v != "" {
		cfg.Payments.Coinbase.APIKey = v
	}
	if v := os.Getenv("PAYLINK_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
}

// validate enforces the startup invariants: both signing keys present and
// distinct, so an access token can never verify as a refresh token.
func validate(cfg *Config) error {
	if cfg.Auth.AccessSecret == "" {
		return platformerrors.New(platformerrors.KindConfig, "config.validate",
			"access token signing secret is not configured")
	}
	if cfg.Auth.RefreshSecret == "" {
		return platformerrors.New(platformerrors.KindConfig, "config.validate",
			"refresh token signing secret is not configured")
	}
	if cfg.Auth.AccessSecret == cfg.Auth.RefreshSecret {
		return platformerrors.New(platformerrors.KindConfig, "config.validate",
			"access and refresh signing secrets must differ")
	}
	if cfg.Auth.AccessTTL <= 0 || cfg.Auth.RefreshTTL <= 0 {
		return platformerrors.New(platformerrors.KindConfig, "config.validate",
			"token lifetimes must be positive")
	}
	return nil
}
