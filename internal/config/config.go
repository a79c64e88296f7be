// Package config loads service configuration from an optional YAML file and
// PRENOS_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full service configuration.
type Config struct {
	Env       string    `yaml:"env" env:"PRENOS_ENV" env-default:"local"`
	Log       Log       `yaml:"log"`
	HTTP      HTTP      `yaml:"http"`
	DB        DB        `yaml:"db"`
	Auth      Auth      `yaml:"auth"`
	Transfers Transfers `yaml:"transfers"`
	Alerts    Alerts    `yaml:"alerts"`
}

// Log selects the log level and an optional file that mirrors the output.
type Log struct {
	Level string `yaml:"level" env:"PRENOS_LOG_LEVEL" env-default:"info"`
	File  string `yaml:"file" env:"PRENOS_LOG_FILE"`
}

// HTTP configures the API listener and its timeouts.
type HTTP struct {
	Addr              string        `yaml:"addr" env:"PRENOS_HTTP_ADDR" env-default:":8080"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env-default:"10s"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env-default:"30s"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env-default:"60s"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env-default:"120s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env-default:"5s"`
}

// DB points at the SQLite database file.
type DB struct {
	Path string `yaml:"path" env:"PRENOS_DB" env-default:"prenos.sqlite3"`
}

// Auth configures token signing and the bootstrap admin account.
type Auth struct {
	// JWTSecret overrides the secret stored in the database when set.
	JWTSecret string        `yaml:"jwt_secret" env:"PRENOS_JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"PRENOS_TOKEN_TTL" env-default:"24h"`
	AdminUser string        `yaml:"admin_user" env:"PRENOS_ADMIN_USER" env-default:"Admin"`
}

// Transfers tunes the orchestrator's retry loops.
type Transfers struct {
	MaxAttempts    int           `yaml:"max_attempts" env:"PRENOS_MAX_ATTEMPTS" env-default:"5"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env-default:"10ms"`
	MaxBackoff     time.Duration `yaml:"max_backoff" env-default:"500ms"`
}

// Alerts sets how often the monitor sweeps and when a transfer counts as late.
type Alerts struct {
	Interval        time.Duration `yaml:"interval" env:"PRENOS_ALERT_INTERVAL" env-default:"1m"`
	PendingCustomer time.Duration `yaml:"pending_customer" env-default:"30m"`
	Unconfirmed     time.Duration `yaml:"unconfirmed" env-default:"2h"`
	Stale           time.Duration `yaml:"stale" env-default:"24h"`
}

// Load reads path (when non-empty) and then the environment, which wins.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("reading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that have no usable zero.
func (c *Config) Validate() error {
	switch {
	case c.DB.Path == "":
		return fmt.Errorf("config: db path is required")
	case c.HTTP.Addr == "":
		return fmt.Errorf("config: http addr is required")
	case c.Transfers.MaxAttempts < 1:
		return fmt.Errorf("config: transfers.max_attempts must be at least 1")
	case c.Auth.TokenTTL <= 0:
		return fmt.Errorf("config: auth.token_ttl must be positive")
	case c.Alerts.Interval <= 0:
		return fmt.Errorf("config: alerts.interval must be positive")
	}
	return nil
}

// Usage describes the environment variables Load understands.
func Usage() (string, error) {
	var cfg Config
	return cleanenv.GetDescription(&cfg, nil)
}
