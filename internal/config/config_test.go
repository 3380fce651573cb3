// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecretLine = `  jwt_secret: "0123456789abcdef0123456789abcdef"`

func TestLoad_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
` + testSecretLine + `

realtime:
  allowed_origins:
    - "shop.example.com"
    - "*.shop.example.com"
  handshake_timeout: "5s"
  ping_interval: "20s"
  events_per_second: 4
  event_burst: 8

conversation:
  write_timeout: "2s"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/internal/metrics"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if len(cfg.Realtime.AllowedOrigins) != 2 || cfg.Realtime.AllowedOrigins[1] != "*.shop.example.com" {
		t.Errorf("Realtime.AllowedOrigins = %v", cfg.Realtime.AllowedOrigins)
	}
	if cfg.Realtime.HandshakeTimeout != 5*time.Second {
		t.Errorf("Realtime.HandshakeTimeout = %v, want 5s", cfg.Realtime.HandshakeTimeout)
	}
	if cfg.Realtime.PingInterval != 20*time.Second {
		t.Errorf("Realtime.PingInterval = %v, want 20s", cfg.Realtime.PingInterval)
	}
	if cfg.Realtime.EventsPerSecond != 4 || cfg.Realtime.EventBurst != 8 {
		t.Errorf("Realtime rate = %v/%d, want 4/8", cfg.Realtime.EventsPerSecond, cfg.Realtime.EventBurst)
	}
	if cfg.Conversation.WriteTimeout != 2*time.Second {
		t.Errorf("Conversation.WriteTimeout = %v, want 2s", cfg.Conversation.WriteTimeout)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/internal/metrics" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
database:
  path: "./souk.db"
auth:
` + testSecretLine + `
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Server.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.Realtime.HandshakeTimeout != DefaultHandshakeTimeout {
		t.Errorf("HandshakeTimeout = %v, want %v", cfg.Realtime.HandshakeTimeout, DefaultHandshakeTimeout)
	}
	if cfg.Realtime.PingInterval != DefaultPingInterval {
		t.Errorf("PingInterval = %v, want %v", cfg.Realtime.PingInterval, DefaultPingInterval)
	}
	if cfg.Realtime.EventsPerSecond != DefaultEventsPerSecond || cfg.Realtime.EventBurst != DefaultEventBurst {
		t.Errorf("rate defaults = %v/%d", cfg.Realtime.EventsPerSecond, cfg.Realtime.EventBurst)
	}
	if cfg.Conversation.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("WriteTimeout = %v, want %v", cfg.Conversation.WriteTimeout, DefaultWriteTimeout)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("SOUK_TEST_SECRET", "env-secret-that-is-long-enough-32")
	t.Setenv("SOUK_TEST_DB", "/var/lib/souk/gateway.db")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
database:
  path: "${SOUK_TEST_DB}"
auth:
  jwt_secret: "${SOUK_TEST_SECRET}"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "env-secret-that-is-long-enough-32" {
		t.Errorf("Auth.JWTSecret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Database.Path != "/var/lib/souk/gateway.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestExpandEnvVars_UnsetBecomesEmpty(t *testing.T) {
	got := expandEnvVars("value: ${SOUK_DEFINITELY_UNSET_VAR}")
	if got != "value: " {
		t.Errorf("expandEnvVars() = %q, want %q", got, "value: ")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() should return error for missing file")
	}
	if !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("error = %v, want reading config file error", err)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("server: [unclosed"))
	if err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("Parse() error = %v, want parsing error", err)
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	_, err := Parse([]byte(`
database:
  path: "./souk.db"
auth:
` + testSecretLine + `
realtime:
  handshake_timeout: "soon"
`))
	if err == nil || !strings.Contains(err.Error(), "realtime.handshake_timeout") {
		t.Errorf("Parse() error = %v, want handshake_timeout error", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{
			Database: DatabaseConfig{Path: "./souk.db"},
			Auth:     AuthConfig{JWTSecret: strings.Repeat("s", 32)},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing database", func(c *Config) { c.Database.Path = "" }, "database.path is required"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "auth.jwt_secret"},
		{"tailscale without hostname", func(c *Config) { c.Tailscale.Enabled = true }, "tailscale.hostname"},
		{"tailscale replaces http addr", func(c *Config) {
			c.Tailscale.Enabled = true
			c.Tailscale.Hostname = "souk"
			c.Server.HTTPAddr = ""
		}, ""},
		{"missing http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"negative timeout", func(c *Config) { c.Conversation.WriteTimeout = -time.Second }, "timeouts"},
		{"negative rate", func(c *Config) { c.Realtime.EventBurst = -1 }, "event_burst"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("SOUK_CONFIG", "/etc/souk/custom.yaml")
	if got := DefaultPath(); got != "/etc/souk/custom.yaml" {
		t.Errorf("DefaultPath() = %q, want SOUK_CONFIG value", got)
	}

	t.Setenv("SOUK_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/home/amira/.config")
	if got := DefaultPath(); got != "/home/amira/.config/souk/gateway.yaml" {
		t.Errorf("DefaultPath() = %q", got)
	}
}
