// ABOUTME: Configuration loading for souk-chat
// ABOUTME: Loads an optional TOML config from XDG path with environment variable expansion

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	defaultGatewayURL   = "http://localhost:8080"
	defaultHistoryLimit = 50
)

type Config struct {
	Gateway GatewayConfig `toml:"gateway"`
	Chat    ChatConfig    `toml:"chat"`
	Logging LoggingConfig `toml:"logging"`
}

type GatewayConfig struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

type ChatConfig struct {
	HistoryLimit int  `toml:"history_limit"`
	ShowTyping   bool `toml:"show_typing"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// configDir returns $XDG_CONFIG_HOME/souk, or ~/.config/souk.
func configDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		dir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(dir, "souk")
}

// getConfigPath returns the path to the chat config file.
// Priority: SOUK_CHAT_CONFIG env var > XDG_CONFIG_HOME/souk/chat.toml > ~/.config/souk/chat.toml
func getConfigPath() string {
	if envPath := os.Getenv("SOUK_CHAT_CONFIG"); envPath != "" {
		return envPath
	}
	return filepath.Join(configDir(), "chat.toml")
}

// Load reads config from the given path, expanding environment variables.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Gateway: GatewayConfig{URL: defaultGatewayURL},
		Chat:    ChatConfig{HistoryLimit: defaultHistoryLimit, ShowTyping: true},
		Logging: LoggingConfig{Level: "warn"},
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))
	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	u, err := url.Parse(c.Gateway.URL)
	if err != nil {
		return fmt.Errorf("gateway.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("gateway.url must use http or https scheme")
	}
	if c.Chat.HistoryLimit < 0 {
		return fmt.Errorf("chat.history_limit must not be negative")
	}
	return nil
}

// ResolveToken returns the access token: gateway.token from the config,
// then SOUK_TOKEN, then the token file written by `souk-gateway token --save`.
func (c *Config) ResolveToken() string {
	if c.Gateway.Token != "" {
		return c.Gateway.Token
	}
	if token := os.Getenv("SOUK_TOKEN"); token != "" {
		return token
	}
	data, err := os.ReadFile(filepath.Join(configDir(), "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
