// Package platform provides configuration and composition for the
// interview platform.
package platform

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete platform configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Timer    TimerConfig    `yaml:"timer"`
	Auth     AuthConfig     `yaml:"auth"`
	Events   EventsConfig   `yaml:"events"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Name    string    `yaml:"name"`
	Version string    `yaml:"version"`
	Address string    `yaml:"address"`
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig configures TLS.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// DatabaseConfig configures the database connection. An empty DSN runs
// the platform on in-memory stores, useful for development.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// TimerConfig configures the session timer engine.
type TimerConfig struct {
	TickInterval        time.Duration `yaml:"tick_interval"`
	CreditCheckInterval time.Duration `yaml:"credit_check_interval"`
	OverrunFactor       float64       `yaml:"overrun_factor"`
	IOTimeout           time.Duration `yaml:"io_timeout"`

	// SessionStartCost is the number of credits debited when a session
	// starts.
	SessionStartCost int `yaml:"session_start_cost"`
}

// AuthConfig configures API authentication.
type AuthConfig struct {
	APIKeys        APIKeyAuthConfig `yaml:"api_keys"`
	JWT            JWTAuthConfig    `yaml:"jwt"`
	AllowAnonymous bool             `yaml:"allow_anonymous"` // default: false
}

// APIKeyAuthConfig configures API key authentication.
type APIKeyAuthConfig struct {
	Enabled bool        `yaml:"enabled"`
	Keys    []APIKeyDef `yaml:"keys"`
}

// APIKeyDef defines an API key.
type APIKeyDef struct {
	Key   string   `yaml:"key"`
	Name  string   `yaml:"name"`
	Roles []string `yaml:"roles"`
}

// JWTAuthConfig configures bearer-token authentication.
type JWTAuthConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Issuer     string `yaml:"issuer"`
	SigningKey string `yaml:"signing_key"` // HMAC key for JWT verification
}

// EventsConfig configures the session event log.
type EventsConfig struct {
	RetentionDays   int           `yaml:"retention_days"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultConfig returns a development configuration: in-memory stores,
// anonymous access, default timer cadence.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Auth.AllowAnonymous = true
	return cfg
}

// LoadConfig loads configuration from a file.
// The path is expected to come from command line arguments, controlled by the administrator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "interview-platform"
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = "1.0.0"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Timer.TickInterval == 0 {
		cfg.Timer.TickInterval = 30 * time.Second
	}
	if cfg.Timer.CreditCheckInterval == 0 {
		cfg.Timer.CreditCheckInterval = 5 * time.Minute
	}
	if cfg.Timer.OverrunFactor == 0 {
		cfg.Timer.OverrunFactor = 1.5
	}
	if cfg.Timer.SessionStartCost == 0 {
		cfg.Timer.SessionStartCost = 1
	}
	if cfg.Events.RetentionDays == 0 {
		cfg.Events.RetentionDays = 90
	}
	if cfg.Events.CleanupInterval == 0 {
		cfg.Events.CleanupInterval = time.Hour
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			errs = append(errs, "server.tls.cert_file is required when TLS is enabled")
		}
		if c.Server.TLS.KeyFile == "" {
			errs = append(errs, "server.tls.key_file is required when TLS is enabled")
		}
	}
	if c.Auth.JWT.Enabled {
		if c.Auth.JWT.Issuer == "" {
			errs = append(errs, "auth.jwt.issuer is required when JWT auth is enabled")
		}
		if c.Auth.JWT.SigningKey == "" {
			errs = append(errs, "auth.jwt.signing_key is required when JWT auth is enabled")
		}
	}
	if c.Auth.APIKeys.Enabled && len(c.Auth.APIKeys.Keys) == 0 {
		errs = append(errs, "auth.api_keys.keys must not be empty when API key auth is enabled")
	}
	if c.Timer.TickInterval < time.Second {
		errs = append(errs, "timer.tick_interval must be at least 1s")
	}
	if c.Timer.OverrunFactor < 1 {
		errs = append(errs, "timer.overrun_factor must be at least 1")
	}
	if c.Timer.SessionStartCost < 0 {
		errs = append(errs, "timer.session_start_cost must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
