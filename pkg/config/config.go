// Package config loads service configuration from YAML with environment
// variable expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete configuration for both services.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Keycloak   KeycloakConfig   `yaml:"keycloak"`
	Completion CompletionConfig `yaml:"completion"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	HR         HRConfig         `yaml:"hr"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Name        string    `yaml:"name"`
	Version     string    `yaml:"version"`
	Address     string    `yaml:"address"`
	CORSOrigins []string  `yaml:"cors_origins"`
	TLS         TLSConfig `yaml:"tls"`
}

// TLSConfig configures TLS.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// KeycloakConfig configures the identity provider. Issuer and JWKS URL are
// derived from the base URL and realm.
type KeycloakConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Realm        string        `yaml:"realm"`
	ClientID     string        `yaml:"client_id"`
	Audience     string        `yaml:"audience"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl"`
	ClockSkew    time.Duration `yaml:"clock_skew"`
}

// Issuer returns the expected iss claim for tokens from this realm.
func (k KeycloakConfig) Issuer() string {
	return strings.TrimRight(k.BaseURL, "/") + "/realms/" + k.Realm
}

// JWKSURL returns the realm's published JWKS endpoint.
func (k KeycloakConfig) JWKSURL() string {
	return k.Issuer() + "/protocol/openid-connect/certs"
}

// CompletionConfig configures the external chat completion engine.
type CompletionConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// SessionsConfig configures chat session retention. Zero values disable the
// corresponding bound.
type SessionsConfig struct {
	// MaxTurns caps the history length per session; oldest turns are
	// dropped first.
	MaxTurns int `yaml:"max_turns"`

	// IdleTTL evicts sessions with no activity for this duration.
	IdleTTL time.Duration `yaml:"idle_ttl"`

	// CleanupInterval is how often idle sessions are swept.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// HRConfig configures the days-off lookup.
type HRConfig struct {
	// DaysOff is the static person -> days table used when no database
	// is configured.
	DaysOff map[string]int `yaml:"days_off"`

	// Database selects the postgres-backed store when a DSN is set.
	Database DatabaseConfig `yaml:"database"`

	// ServiceURL is the HR service's base URL, used by the agent service
	// for outbound days-off lookups on behalf of the caller.
	ServiceURL string `yaml:"service_url"`
}

// DatabaseConfig configures the database connection.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// Load reads configuration from a file.
// The path is expected to come from command line arguments, controlled by the operator.
func Load(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by operator
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
	if cfg.Server.Version == "" {
		cfg.Server.Version = "1.0.0"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Keycloak.Audience == "" {
		cfg.Keycloak.Audience = "account"
	}
	if cfg.Keycloak.ClockSkew == 0 {
		cfg.Keycloak.ClockSkew = 30 * time.Second
	}
	if cfg.Completion.Timeout == 0 {
		cfg.Completion.Timeout = 60 * time.Second
	}
	if cfg.Sessions.CleanupInterval == 0 {
		cfg.Sessions.CleanupInterval = 5 * time.Minute
	}
	if cfg.HR.Database.MaxOpenConns == 0 {
		cfg.HR.Database.MaxOpenConns = 25
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Keycloak.BaseURL == "" {
		errs = append(errs, "keycloak.base_url is required")
	}
	if c.Keycloak.Realm == "" {
		errs = append(errs, "keycloak.realm is required")
	}
	if c.Keycloak.ClientID == "" {
		errs = append(errs, "keycloak.client_id is required")
	}
	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			errs = append(errs, "server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
