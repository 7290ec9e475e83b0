package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ASSISTANT_ADDR", "")
	t.Setenv("ASSISTANT_SETTINGS_PATH", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("ASSISTANT_AGENT_NAMES", "")

	cfg := Load()
	if cfg.Addr != "127.0.0.1:8790" {
		t.Fatalf("unexpected default addr: %s", cfg.Addr)
	}
	if !strings.Contains(cfg.SettingsPath, "helpdesk-assistant") {
		t.Fatalf("unexpected default settings path: %s", cfg.SettingsPath)
	}
	if cfg.RedisURL != "" || cfg.AllowedOrigins != nil || cfg.AgentNames != nil {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ASSISTANT_ADDR", "0.0.0.0:9000")
	t.Setenv("ASSISTANT_SETTINGS_PATH", "/tmp/assistant/settings.db")
	t.Setenv("REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("ASSISTANT_AGENT_NAMES", "Sam Agent,  Chris Helper")

	cfg := Load()
	if cfg.Addr != "0.0.0.0:9000" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.SettingsPath != "/tmp/assistant/settings.db" {
		t.Fatalf("unexpected settings path: %s", cfg.SettingsPath)
	}
	if cfg.RedisURL != "redis://localhost:6379/2" {
		t.Fatalf("unexpected redis url: %s", cfg.RedisURL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
	if len(cfg.AgentNames) != 2 || cfg.AgentNames[1] != "Chris Helper" {
		t.Fatalf("unexpected agent names: %v", cfg.AgentNames)
	}
}
