package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.GatewayURL != defaultGatewayURL {
		t.Errorf("GatewayURL = %q, want %q", cfg.GatewayURL, defaultGatewayURL)
	}
	if cfg.Role != defaultRole {
		t.Errorf("Role = %q, want %q", cfg.Role, defaultRole)
	}
	if cfg.RidesPoll != 3*time.Second {
		t.Errorf("RidesPoll = %v, want 3s", cfg.RidesPoll)
	}
	if cfg.NotificationsPoll != 5*time.Second {
		t.Errorf("NotificationsPoll = %v, want 5s", cfg.NotificationsPoll)
	}
	if cfg.ReconnectAttempts != 5 {
		t.Errorf("ReconnectAttempts = %d, want 5", cfg.ReconnectAttempts)
	}
	if cfg.ReconnectDelay != 3*time.Second {
		t.Errorf("ReconnectDelay = %v, want 3s", cfg.ReconnectDelay)
	}
	if cfg.PushURL != "" {
		t.Errorf("PushURL = %q, want empty", cfg.PushURL)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
gateway_url = "gateway.example:9000"
push_url = "ws://gateway.example:9000/ws"
token = "fulfiller:bob"
role = "fulfiller"
rides_poll_seconds = 10
notifications_poll_seconds = 20
reconnect_attempts = 8
reconnect_delay_seconds = 2
exponential_backoff = true
log_level = "DEBUG"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.GatewayURL != "gateway.example:9000" {
		t.Errorf("GatewayURL = %q", cfg.GatewayURL)
	}
	if cfg.PushURL != "ws://gateway.example:9000/ws" {
		t.Errorf("PushURL = %q", cfg.PushURL)
	}
	if cfg.Token != "fulfiller:bob" {
		t.Errorf("Token = %q", cfg.Token)
	}
	if cfg.Role != "fulfiller" {
		t.Errorf("Role = %q", cfg.Role)
	}
	if cfg.RidesPoll != 10*time.Second {
		t.Errorf("RidesPoll = %v, want 10s", cfg.RidesPoll)
	}
	if cfg.NotificationsPoll != 20*time.Second {
		t.Errorf("NotificationsPoll = %v, want 20s", cfg.NotificationsPoll)
	}
	if cfg.ReconnectAttempts != 8 {
		t.Errorf("ReconnectAttempts = %d, want 8", cfg.ReconnectAttempts)
	}
	if cfg.ReconnectDelay != 2*time.Second {
		t.Errorf("ReconnectDelay = %v, want 2s", cfg.ReconnectDelay)
	}
	if !cfg.ExponentialBackoff {
		t.Error("ExponentialBackoff = false, want true")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want lowercased debug", cfg.LogLevel)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
gateway_url = "10.0.0.5:8080"
token = "requester:alice"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.GatewayURL != "10.0.0.5:8080" {
		t.Errorf("GatewayURL = %q", cfg.GatewayURL)
	}
	if cfg.Role != defaultRole {
		t.Errorf("Role = %q, want default", cfg.Role)
	}
	if cfg.RidesPoll != 3*time.Second || cfg.NotificationsPoll != 5*time.Second {
		t.Errorf("poll intervals = %v/%v, want defaults", cfg.RidesPoll, cfg.NotificationsPoll)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeConfig(t, `gateway_url = [broken`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("Load error = %v, want parse config error", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}

	got, err := expandPath("~/.config/cabsync/config.toml")
	if err != nil {
		t.Fatalf("expandPath returned error: %v", err)
	}
	want := filepath.Join(home, ".config", "cabsync", "config.toml")
	if got != want {
		t.Errorf("expandPath = %q, want %q", got, want)
	}

	if _, err := expandPath("   "); err == nil {
		t.Error("expandPath accepted an empty path")
	}
}
