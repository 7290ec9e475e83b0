// Package config loads the companion process configuration from the
// environment.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the serve-mode configuration.
type Config struct {
	// Addr is the local listen address for the HTTP/WebSocket surface.
	Addr string
	// SettingsPath is the bbolt settings file. Ignored when RedisURL set.
	SettingsPath string
	// RedisURL selects the shared redis settings backend when non-empty.
	RedisURL string
	// AllowedOrigins restricts WebSocket upgrades; empty allows all.
	AllowedOrigins []string
	// AgentNames feeds the Help Scout role-classification fallback.
	AgentNames []string
}

// Load reads .env (if present) and the environment.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Addr:         getenv("ASSISTANT_ADDR", "127.0.0.1:8790"),
		SettingsPath: getenv("ASSISTANT_SETTINGS_PATH", defaultSettingsPath()),
		RedisURL:     os.Getenv("REDIS_URL"),
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("ASSISTANT_AGENT_NAMES"); v != "" {
		cfg.AgentNames = splitList(v)
	}
	return cfg
}

func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "helpdesk-assistant", "settings.db")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
