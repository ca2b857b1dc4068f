package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultPath returns ~/.molebot/config.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".molebot", "config.json"), nil
}

// Load loads config from the default path (~/.molebot/config.json).
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFromFile(path)
}

// LoadFromFile loads config from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader loads config from an io.Reader, applying defaults, env
// overrides and path expansion, then validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	if err := json.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies MOLE_-prefixed environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	envMap := map[string]*string{
		"MOLE_PROVIDERS_GEMINI_APIKEY":     &cfg.Providers.Gemini.APIKey,
		"MOLE_PROVIDERS_OPENAI_APIKEY":     &cfg.Providers.OpenAI.APIKey,
		"MOLE_PROVIDERS_ANTHROPIC_APIKEY":  &cfg.Providers.Anthropic.APIKey,
		"MOLE_PROVIDERS_OPENROUTER_APIKEY": &cfg.Providers.OpenRouter.APIKey,
		"MOLE_PROVIDERS_DEEPSEEK_APIKEY":   &cfg.Providers.DeepSeek.APIKey,
		"MOLE_PROVIDERS_GROQ_APIKEY":       &cfg.Providers.Groq.APIKey,
		"MOLE_MODELS_DEFAULT":              &cfg.Models.Default,
		"MOLE_MODELS_FAST_MODEL":           &cfg.Models.Fast.Model,
		"MOLE_MODELS_SMART_MODEL":          &cfg.Models.Smart.Model,
		"MOLE_MODELS_IMAGE":                &cfg.Models.Image,
		"MOLE_BOT_PREFIX":                  &cfg.Bot.Prefix,
		"MOLE_BOT_TIMEZONE":                &cfg.Bot.Timezone,
		"MOLE_RATELIMIT_REDIS_ADDR":        &cfg.RateLimit.Redis.Addr,
		"MOLE_RATELIMIT_REDIS_PASSWORD":    &cfg.RateLimit.Redis.Password,
		"MOLE_SEARCH_PROXY":                &cfg.Search.Proxy,
		"MOLE_STATUS_TARGET":               &cfg.Status.Target,
		"MOLE_LOG_LEVEL":                   &cfg.Log.Level,
		"MOLE_LOG_FORMAT":                  &cfg.Log.Format,
	}

	for env, ptr := range envMap {
		if val := os.Getenv(env); val != "" {
			*ptr = val
		}
	}

	if v := os.Getenv("MOLE_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
}

// expandPaths expands a leading ~ in file paths.
func expandPaths(cfg *Config) {
	for _, p := range []*string{&cfg.Bot.AssetPath, &cfg.Sessions.SnapshotFile} {
		*p = expandHome(*p)
	}
}

func expandHome(path string) string {
	if len(path) >= 2 && path[0] == '~' && path[1] == '/' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Models.Default) {
	case "fast", "smart":
	default:
		errs = append(errs, fmt.Errorf("models.default must be fast or smart, got %q", c.Models.Default))
	}
	if c.Models.Fast.Model == "" || c.Models.Smart.Model == "" {
		errs = append(errs, errors.New("models.fast.model and models.smart.model are required"))
	}
	if c.RateLimit.Window.Duration <= 0 || c.RateLimit.Threshold <= 0 {
		errs = append(errs, errors.New("rateLimit.window and rateLimit.threshold must be positive"))
	}
	if c.Humanize.ReplyMax.Duration < c.Humanize.ReplyMin.Duration ||
		c.Humanize.ProcessMax.Duration < c.Humanize.ProcessMin.Duration {
		errs = append(errs, errors.New("humanize: max delay below min delay"))
	}
	if c.Limits.DocumentMB <= 0 || c.Limits.MediaMB <= 0 {
		errs = append(errs, errors.New("limits must be positive"))
	}
	if c.Status.Enabled && c.Status.Target == "" {
		errs = append(errs, errors.New("status.target is required when status is enabled"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
