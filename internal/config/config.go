package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config captures everything the sync layer needs for one session.
type Config struct {
	GatewayURL string
	PushURL    string // empty disables the push channel
	Token      string
	Role       string

	RidesPoll         time.Duration
	NotificationsPoll time.Duration

	ReconnectAttempts  int
	ReconnectDelay     time.Duration
	ExponentialBackoff bool

	LogLevel string
}

const (
	defaultConfigPath = "~/.config/cabsync/config.toml"
	defaultGatewayURL = "127.0.0.1:8080"
	defaultRole       = "requester"
	defaultLogLevel   = "info"

	defaultRidesPoll         = 3 * time.Second
	defaultNotificationsPoll = 5 * time.Second
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = 3 * time.Second
)

// Load locates and parses the config file, falling back to defaults when it
// is missing. Durations are given in the file as integer seconds.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := defaults()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		GatewayURL               string `toml:"gateway_url"`
		PushURL                  string `toml:"push_url"`
		Token                    string `toml:"token"`
		Role                     string `toml:"role"`
		RidesPollSeconds         int    `toml:"rides_poll_seconds"`
		NotificationsPollSeconds int    `toml:"notifications_poll_seconds"`
		ReconnectAttempts        int    `toml:"reconnect_attempts"`
		ReconnectDelaySeconds    int    `toml:"reconnect_delay_seconds"`
		ExponentialBackoff       bool   `toml:"exponential_backoff"`
		LogLevel                 string `toml:"log_level"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.GatewayURL); v != "" {
		cfg.GatewayURL = v
	}
	cfg.PushURL = strings.TrimSpace(raw.PushURL)
	cfg.Token = strings.TrimSpace(raw.Token)
	if v := strings.TrimSpace(raw.Role); v != "" {
		cfg.Role = v
	}
	if raw.RidesPollSeconds > 0 {
		cfg.RidesPoll = time.Duration(raw.RidesPollSeconds) * time.Second
	}
	if raw.NotificationsPollSeconds > 0 {
		cfg.NotificationsPoll = time.Duration(raw.NotificationsPollSeconds) * time.Second
	}
	if raw.ReconnectAttempts > 0 {
		cfg.ReconnectAttempts = raw.ReconnectAttempts
	}
	if raw.ReconnectDelaySeconds > 0 {
		cfg.ReconnectDelay = time.Duration(raw.ReconnectDelaySeconds) * time.Second
	}
	cfg.ExponentialBackoff = raw.ExponentialBackoff
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	return cfg, nil
}

func defaults() Config {
	return Config{
		GatewayURL:        defaultGatewayURL,
		Role:              defaultRole,
		RidesPoll:         defaultRidesPoll,
		NotificationsPoll: defaultNotificationsPoll,
		ReconnectAttempts: defaultReconnectAttempts,
		ReconnectDelay:    defaultReconnectDelay,
		LogLevel:          defaultLogLevel,
	}
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
