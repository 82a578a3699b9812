// Package config loads herald configuration from ~/.herald/herald.json,
// merged over built-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/heraldlabs/herald/internal/channels"
	"github.com/heraldlabs/herald/internal/cron"
	"github.com/heraldlabs/herald/internal/llm"
	"github.com/heraldlabs/herald/internal/session"
)

// Config is the merged herald configuration.
type Config struct {
	Logging   LoggingConfig           `json:"logging"`
	LLM       LLMConfig               `json:"llm"`
	Session   session.StoreConfig     `json:"session"`
	Dispatch  DispatchConfig          `json:"dispatch"`
	Typing    TypingConfig            `json:"typing"`
	Agent     AgentConfig             `json:"agent"`
	Telegram  channels.TelegramConfig `json:"telegram"`
	WhatsApp  channels.WhatsAppConfig `json:"whatsapp"`
	Discord   channels.DiscordConfig  `json:"discord"`
	Heartbeat cron.HeartbeatConfig    `json:"heartbeat"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string `json:"level"` // debug, info, warn, error
	ShowCaller bool   `json:"showCaller"`
}

// LLMConfig holds named provider instances and the per-purpose model
// chains. The first chain entry is the primary, the rest are fallbacks.
type LLMConfig struct {
	Providers map[string]llm.ProviderConfig `json:"providers"`
	Chain     []ChainEntry                  `json:"chain"`
}

// ChainEntry selects a provider instance and model for one chain slot.
type ChainEntry struct {
	Provider string `json:"provider"` // key into Providers
	Model    string `json:"model"`
}

// DispatchConfig holds reply-dispatcher sanitization settings.
type DispatchConfig struct {
	ResponsePrefix string `json:"responsePrefix"`
	SilentToken    string `json:"silentToken"`
}

// TypingConfig holds typing-indicator timing in seconds.
type TypingConfig struct {
	IntervalSeconds int `json:"intervalSeconds"`
	TTLSeconds      int `json:"ttlSeconds"`
}

// AgentConfig holds agent-execution settings.
type AgentConfig struct {
	SystemPrompt   string `json:"systemPrompt"`
	CompactPercent int    `json:"compactPercent"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// Dir returns the herald dot directory, creating it if needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".herald")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// Load reads herald.json from the dot directory over defaults. A missing
// file yields the defaults. Relative storage paths default into the dot
// directory.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFile(filepath.Join(dir, "herald.json"))
	if err != nil {
		return nil, err
	}
	if cfg.Session.Path == "" {
		if cfg.Session.Type == "json" {
			cfg.Session.Path = filepath.Join(dir, "sessions")
		} else {
			cfg.Session.Path = filepath.Join(dir, "herald.db")
		}
	}
	if cfg.WhatsApp.DBPath == "" {
		cfg.WhatsApp.DBPath = filepath.Join(dir, "whatsapp.db")
	}
	return cfg, nil
}

// LoadFile reads configuration from an explicit path over defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Session: session.StoreConfig{Type: "sqlite", WALMode: true},
		Typing:  TypingConfig{IntervalSeconds: 6, TTLSeconds: 120},
		Agent:   AgentConfig{CompactPercent: 80, TimeoutSeconds: 300},
		Heartbeat: cron.HeartbeatConfig{
			Schedule: cron.DefaultSchedule,
			Prompt:   cron.DefaultHeartbeatPrompt,
		},
	}
}
