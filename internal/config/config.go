package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultModel            = "mistralai/mistral-7b-instruct:free"
	DefaultAnthropicModel   = "claude-sonnet-4-5-20250929"
	DefaultBaseURL          = "https://openrouter.ai/api/v1"
	DefaultPersonality      = "You are a helpful assistant. Keep your replies short and friendly."
	DefaultMaxTokens        = 1024
	DefaultTemperature      = 0.7
	DefaultMemoryLimit      = 10
	DefaultGameMemoryLimit  = 30
	DefaultReplyDelayMs     = 2000
	DefaultStatusDelayMs    = 5000
	DefaultTimezone         = "UTC"
	DefaultSearchResults    = 3
	DefaultSearchTimeoutSec = 15
	DefaultHost             = "0.0.0.0"
	DefaultPort             = 3000
	DefaultBufSize          = 100
	DefaultLogLevel         = "info"
)

type Config struct {
	Agent    AgentConfig    `json:"agent"`
	Channels ChannelsConfig `json:"channels"`
	Provider ProviderConfig `json:"provider"`
	Tools    ToolsConfig    `json:"tools"`
	Gateway  GatewayConfig  `json:"gateway"`
	Log      LogConfig      `json:"log"`
}

type AgentConfig struct {
	Model       string  `json:"model"`
	Personality string  `json:"personality"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
	// MemoryLimit caps the number of turns kept per conversation.
	MemoryLimit     int    `json:"memoryLimit"`
	GameMemoryLimit int    `json:"gameMemoryLimit"`
	ReplyDelayMs    int    `json:"replyDelayMs"`
	StatusDelayMs   int    `json:"statusDelayMs"`
	Timezone        string `json:"timezone"`
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "openai" (default, OpenRouter compatible) or "anthropic"
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Telegram TelegramConfig `json:"telegram"`
}

type WhatsAppConfig struct {
	Enabled   bool     `json:"enabled"`
	StorePath string   `json:"storePath,omitempty"`
	AllowFrom []string `json:"allowFrom"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

type ToolsConfig struct {
	BraveAPIKey      string `json:"braveApiKey,omitempty"`
	SearchResults    int    `json:"searchResults"`
	SearchTimeoutSec int    `json:"searchTimeoutSec"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	// Port of the liveness endpoint. 0 means DefaultPort; a negative port
	// disables the endpoint.
	Port int `json:"port"`
}

type LogConfig struct {
	Level string `json:"level"`
}

func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Model:           DefaultModel,
			Personality:     DefaultPersonality,
			MaxTokens:       DefaultMaxTokens,
			Temperature:     DefaultTemperature,
			MemoryLimit:     DefaultMemoryLimit,
			GameMemoryLimit: DefaultGameMemoryLimit,
			ReplyDelayMs:    DefaultReplyDelayMs,
			StatusDelayMs:   DefaultStatusDelayMs,
			Timezone:        DefaultTimezone,
		},
		Provider: ProviderConfig{
			Type:    "openai",
			BaseURL: DefaultBaseURL,
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{Enabled: true},
		},
		Tools: ToolsConfig{
			SearchResults:    DefaultSearchResults,
			SearchTimeoutSec: DefaultSearchTimeoutSec,
		},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".wabot")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnv overlays environment variables on top of the file config.
func applyEnv(cfg *Config) {
	if prompt := os.Getenv("BOT_PERSONALITY_PROMPT"); prompt != "" {
		cfg.Agent.Personality = prompt
	}
	if key := os.Getenv("WABOT_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		cfg.Provider.Type = "anthropic"
		cfg.Provider.BaseURL = ""
		// The default model is an OpenRouter id that Anthropic rejects.
		if cfg.Agent.Model == "" || cfg.Agent.Model == DefaultModel {
			cfg.Agent.Model = DefaultAnthropicModel
		}
	}
	if url := os.Getenv("WABOT_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("WABOT_MODEL"); model != "" {
		cfg.Agent.Model = model
	}
	if key := os.Getenv("BRAVE_API_KEY"); key != "" {
		cfg.Tools.BraveAPIKey = key
	}
	if tz := os.Getenv("WABOT_TIMEZONE"); tz != "" {
		cfg.Agent.Timezone = tz
	}
	if limit := os.Getenv("WABOT_MEMORY_LIMIT"); limit != "" {
		if parsed, err := strconv.Atoi(limit); err == nil {
			cfg.Agent.MemoryLimit = parsed
		}
	}
	if token := os.Getenv("WABOT_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if store := os.Getenv("WABOT_WHATSAPP_STORE"); store != "" {
		cfg.Channels.WhatsApp.StorePath = store
	}
	if enabled := os.Getenv("WABOT_WHATSAPP_ENABLED"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			cfg.Channels.WhatsApp.Enabled = parsed
		}
	}
	if level := os.Getenv("WABOT_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if strings.TrimSpace(cfg.Agent.Personality) == "" {
		cfg.Agent.Personality = def.Agent.Personality
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = def.Agent.Model
	}
	if cfg.Agent.MaxTokens <= 0 {
		cfg.Agent.MaxTokens = def.Agent.MaxTokens
	}
	if cfg.Agent.MemoryLimit <= 0 {
		cfg.Agent.MemoryLimit = def.Agent.MemoryLimit
	}
	if cfg.Agent.GameMemoryLimit <= 0 {
		cfg.Agent.GameMemoryLimit = def.Agent.GameMemoryLimit
	}
	if cfg.Agent.ReplyDelayMs < 0 {
		cfg.Agent.ReplyDelayMs = 0
	}
	if cfg.Agent.StatusDelayMs < 0 {
		cfg.Agent.StatusDelayMs = 0
	}
	if cfg.Agent.Timezone == "" {
		cfg.Agent.Timezone = def.Agent.Timezone
	}
	if cfg.Provider.Type == "" {
		cfg.Provider.Type = def.Provider.Type
	}
	if cfg.Provider.Type == "openai" && cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = def.Provider.BaseURL
	}
	if cfg.Tools.SearchResults <= 0 {
		cfg.Tools.SearchResults = def.Tools.SearchResults
	}
	if cfg.Tools.SearchTimeoutSec <= 0 {
		cfg.Tools.SearchTimeoutSec = def.Tools.SearchTimeoutSec
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = def.Gateway.Port
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0600)
}
