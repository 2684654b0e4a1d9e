package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testConfigYAML = `
server:
  name: hr-service
  address: ":9090"
  cors_origins:
    - https://app.example.com

keycloak:
  base_url: https://keycloak.example.com/
  realm: agents
  client_id: hr-service
  jwks_cache_ttl: 10m

completion:
  base_url: https://llm.example.com/v1
  api_key: ${TEST_COMPLETION_KEY}
  model: gpt-4o-mini

sessions:
  max_turns: 40
  idle_ttl: 30m

hr:
  days_off:
    jettro: 10
    joey: 14
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_COMPLETION_KEY", "sk-test-123")

	cfg, err := Load(writeConfig(t, testConfigYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Name != "hr-service" {
		t.Errorf("expected server name hr-service, got %q", cfg.Server.Name)
	}
	if cfg.Server.Address != ":9090" {
		t.Errorf("expected address :9090, got %q", cfg.Server.Address)
	}
	if cfg.Completion.APIKey != "sk-test-123" {
		t.Errorf("expected env expansion, got %q", cfg.Completion.APIKey)
	}
	if cfg.Keycloak.JWKSCacheTTL != 10*time.Minute {
		t.Errorf("expected 10m JWKS TTL, got %v", cfg.Keycloak.JWKSCacheTTL)
	}
	if cfg.HR.DaysOff["jettro"] != 10 {
		t.Errorf("expected jettro to have 10 days, got %d", cfg.HR.DaysOff["jettro"])
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
keycloak:
  base_url: https://keycloak.example.com
  realm: agents
  client_id: hr-service
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Errorf("expected default address :8080, got %q", cfg.Server.Address)
	}
	if cfg.Keycloak.Audience != "account" {
		t.Errorf("expected default audience account, got %q", cfg.Keycloak.Audience)
	}
	if cfg.Keycloak.ClockSkew != 30*time.Second {
		t.Errorf("expected default clock skew 30s, got %v", cfg.Keycloak.ClockSkew)
	}
	if cfg.Completion.Timeout != 60*time.Second {
		t.Errorf("expected default completion timeout 60s, got %v", cfg.Completion.Timeout)
	}
	if cfg.Sessions.CleanupInterval != 5*time.Minute {
		t.Errorf("expected default cleanup interval 5m, got %v", cfg.Sessions.CleanupInterval)
	}
	if cfg.HR.Database.MaxOpenConns != 25 {
		t.Errorf("expected default max open conns 25, got %d", cfg.HR.Database.MaxOpenConns)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		if _, err := Load(writeConfig(t, "server: [unclosed")); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})
}

func TestKeycloakConfigURLs(t *testing.T) {
	k := KeycloakConfig{BaseURL: "https://keycloak.example.com/", Realm: "agents"}

	if got := k.Issuer(); got != "https://keycloak.example.com/realms/agents" {
		t.Errorf("unexpected issuer %q", got)
	}
	if got := k.JWKSURL(); got != "https://keycloak.example.com/realms/agents/protocol/openid-connect/certs" {
		t.Errorf("unexpected JWKS URL %q", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Keycloak: KeycloakConfig{
				BaseURL:  "https://keycloak.example.com",
				Realm:    "agents",
				ClientID: "hr-service",
			},
		}
	}

	t.Run("valid", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("missing keycloak fields", func(t *testing.T) {
		cfg := &Config{}
		err := cfg.Validate()
		if err == nil {
			t.Fatal("expected validation error")
		}
		for _, want := range []string{"keycloak.base_url", "keycloak.realm", "keycloak.client_id"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("expected error to mention %s, got %v", want, err)
			}
		}
	})

	t.Run("tls requires cert and key", func(t *testing.T) {
		cfg := valid()
		cfg.Server.TLS.Enabled = true
		if err := cfg.Validate(); err == nil {
			t.Error("expected validation error for TLS without cert/key")
		}
	})
}
