package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config is the top-level configuration
type Config struct {
	Providers ProvidersConfig            `json:"providers"`
	Models    ModelsConfig               `json:"models"`
	Bot       BotConfig                  `json:"bot"`
	Humanize  HumanizeConfig             `json:"humanize"`
	RateLimit RateLimitConfig            `json:"rateLimit"`
	Limits    LimitsConfig               `json:"limits"`
	Search    SearchConfig               `json:"search"`
	Status    StatusConfig               `json:"status"`
	Channels  map[string]json.RawMessage `json:"channels"` // channel name -> adapter config
	Gateway   GatewayConfig              `json:"gateway"`
	Log       LogConfig                  `json:"log"`
	Sessions  SessionsConfig             `json:"sessions"`
}

// ProvidersConfig holds API keys and settings for model backends
type ProvidersConfig struct {
	Gemini     ProviderConfig `json:"gemini"`
	OpenAI     ProviderConfig `json:"openai"`
	Anthropic  ProviderConfig `json:"anthropic"`
	OpenRouter ProviderConfig `json:"openrouter"`
	DeepSeek   ProviderConfig `json:"deepseek"`
	Groq       ProviderConfig `json:"groq"`
	Ollama     ProviderConfig `json:"ollama"`
}

type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl"`
}

// Get returns the provider config registered under name.
func (p ProvidersConfig) Get(name string) ProviderConfig {
	switch name {
	case "gemini":
		return p.Gemini
	case "openai":
		return p.OpenAI
	case "anthropic":
		return p.Anthropic
	case "openrouter":
		return p.OpenRouter
	case "deepseek":
		return p.DeepSeek
	case "groq":
		return p.Groq
	case "ollama":
		return p.Ollama
	}
	return ProviderConfig{}
}

// ModelsConfig binds the FAST and SMART keys and the image model.
type ModelsConfig struct {
	Default       string      `json:"default"` // "fast" or "smart"
	Fast          ModelConfig `json:"fast"`
	Smart         ModelConfig `json:"smart"`
	Image         string      `json:"image"`
	ImageProvider string      `json:"imageProvider,omitempty"`
}

type ModelConfig struct {
	Model             string `json:"model"`
	Provider          string `json:"provider,omitempty"` // empty matches by model name
	Label             string `json:"label"`
	SystemInstruction string `json:"systemInstruction,omitempty"`
	Search            bool   `json:"search"`
}

type BotConfig struct {
	Prefix     string `json:"prefix"`
	Persona    string `json:"persona,omitempty"`
	Timezone   string `json:"timezone"`
	AssetPath  string `json:"assetPath"`
	Onboarding string `json:"onboarding,omitempty"`
	Menu       string `json:"menu,omitempty"`
}

// HumanizeConfig sets the pacing ranges.
type HumanizeConfig struct {
	ReplyMin   Duration `json:"replyMin"`
	ReplyMax   Duration `json:"replyMax"`
	ProcessMin Duration `json:"processMin"`
	ProcessMax Duration `json:"processMax"`
}

type RateLimitConfig struct {
	Window    Duration `json:"window"`
	Threshold int      `json:"threshold"`
	// Redis holds the windows when Addr is set; otherwise they are in memory.
	Redis RedisConfig `json:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

type LimitsConfig struct {
	DocumentMB int64 `json:"documentMB"`
	MediaMB    int64 `json:"mediaMB"`
}

type SearchConfig struct {
	Enabled  bool     `json:"enabled"`
	Endpoint string   `json:"endpoint"`
	Proxy    string   `json:"proxy"`
	Timeout  Duration `json:"timeout"`
	MaxLinks int      `json:"maxLinks"`
}

// StatusConfig schedules the periodic status report.
type StatusConfig struct {
	Enabled  bool   `json:"enabled"`
	Target   string `json:"target"`   // conversation key, e.g. "whatsapp:15551234567"
	Schedule string `json:"schedule"` // cron spec
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text or json
}

type SessionsConfig struct {
	SnapshotFile     string   `json:"snapshotFile"` // empty disables snapshots
	SnapshotInterval Duration `json:"snapshotInterval"`
}

// Duration is a time.Duration that reads from "90s"-style JSON strings.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// DefaultConfig returns a Config with sensible defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Models: ModelsConfig{
			Default: "fast",
			Fast:    ModelConfig{Model: "gemini-2.5-flash", Label: "Mole 2.5-flash"},
			Smart:   ModelConfig{Model: "gemini-2.5-pro", Label: "Agent Mole (2.5-pro)", Search: true},
			Image:   "gemini-2.0-flash-preview-image-generation",
		},
		Bot: BotConfig{
			Prefix:    "/",
			Timezone:  "Asia/Jakarta",
			AssetPath: "~/.molebot/assets/norek.jpg",
		},
		Humanize: HumanizeConfig{
			ReplyMin:   Duration{1 * time.Second},
			ReplyMax:   Duration{5 * time.Second},
			ProcessMin: Duration{3 * time.Second},
			ProcessMax: Duration{8 * time.Second},
		},
		RateLimit: RateLimitConfig{
			Window:    Duration{10 * time.Second},
			Threshold: 5,
			Redis:     RedisConfig{Prefix: "molebot:rate:"},
		},
		Limits: LimitsConfig{DocumentMB: 100, MediaMB: 250},
		Search: SearchConfig{
			Timeout:  Duration{45 * time.Second},
			MaxLinks: 5,
		},
		Status: StatusConfig{Schedule: "@every 2m"},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Sessions: SessionsConfig{
			SnapshotInterval: Duration{5 * time.Minute},
		},
	}
}
