package providers

import (
	"context"
	"fmt"
	"strings"
)

type ProviderSpec struct {
	Name              string
	Keywords          []string // model name keywords for matching
	EnvKey            string   // environment variable for API key
	DefaultAPIBase    string   // default base URL
	IsGateway         bool     // multi-provider gateway (OpenRouter)
	IsLocal           bool     // local inference (Ollama)
	IsNative          bool     // has its own SDK rather than the OpenAI wire format
	DetectByKeyPrefix string   // detect by API key prefix (e.g. "sk-or-" for OpenRouter)
	DetectByBaseKW    string   // detect by base URL keyword
	ModelPrefix       string   // prefix to add to model name
	SkipPrefixes      []string // prefixes to skip when adding ModelPrefix
}

// Providers is the registry of known backends.
var Providers = []ProviderSpec{
	{Name: "openrouter", Keywords: []string{"openrouter"}, EnvKey: "OPENROUTER_API_KEY", DefaultAPIBase: "https://openrouter.ai/api/v1", IsGateway: true, DetectByKeyPrefix: "sk-or-"},
	{Name: "gemini", Keywords: []string{"gemini", "imagen"}, EnvKey: "GOOGLE_API_KEY", IsNative: true},
	{Name: "anthropic", Keywords: []string{"claude", "anthropic"}, EnvKey: "ANTHROPIC_API_KEY", IsNative: true},
	{Name: "openai", Keywords: []string{"gpt", "o1", "o3", "chatgpt", "dall-e"}, EnvKey: "OPENAI_API_KEY"},
	{Name: "deepseek", Keywords: []string{"deepseek"}, EnvKey: "DEEPSEEK_API_KEY", DefaultAPIBase: "https://api.deepseek.com/v1"},
	{Name: "groq", Keywords: []string{"groq"}, EnvKey: "GROQ_API_KEY", DefaultAPIBase: "https://api.groq.com/openai/v1"},
	{Name: "ollama", Keywords: []string{"ollama"}, DefaultAPIBase: "http://localhost:11434/v1", IsLocal: true, DetectByBaseKW: "11434"},
}

// FindByModel matches model name against Keywords, returns first match.
func FindByModel(model string) *ProviderSpec {
	lower := strings.ToLower(model)
	for i := range Providers {
		for _, kw := range Providers[i].Keywords {
			if strings.Contains(lower, kw) {
				return &Providers[i]
			}
		}
	}
	return nil
}

// FindGateway detects a gateway provider by API key prefix or base URL keyword.
func FindGateway(apiKey, baseURL string) *ProviderSpec {
	for i := range Providers {
		spec := &Providers[i]
		if spec.DetectByKeyPrefix != "" && strings.HasPrefix(apiKey, spec.DetectByKeyPrefix) {
			return spec
		}
		if spec.DetectByBaseKW != "" && strings.Contains(baseURL, spec.DetectByBaseKW) {
			return spec
		}
	}
	return nil
}

// FindByName returns the provider spec with an exact name match.
func FindByName(name string) *ProviderSpec {
	for i := range Providers {
		if Providers[i].Name == name {
			return &Providers[i]
		}
	}
	return nil
}

// Credential is the key and optional base URL for one backend.
type Credential struct {
	APIKey  string
	APIBase string
}

// Lookup returns the credential configured for a provider name.
type Lookup func(name string) Credential

// Backend is a resolved provider that may also generate images.
type Backend struct {
	Name     string
	Provider Provider
	Images   ImageGenerator // nil when the backend cannot draw
}

// Resolve picks the backend for model. An explicit name wins over model
// keyword matching; a gateway detected from the credential wins over both.
func Resolve(ctx context.Context, name, model string, lookup Lookup, transcriber Transcriber) (*Backend, error) {
	var spec *ProviderSpec
	if name != "" {
		if spec = FindByName(name); spec == nil {
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	} else if spec = FindByModel(model); spec == nil {
		return nil, fmt.Errorf("no provider matches model %q", model)
	}

	cred := lookup(spec.Name)
	if gw := FindGateway(cred.APIKey, cred.APIBase); gw != nil && !spec.IsNative {
		spec = gw
		cred = lookup(gw.Name)
	}
	if cred.APIKey == "" && !spec.IsLocal {
		return nil, fmt.Errorf("provider %s: no API key configured", spec.Name)
	}

	switch spec.Name {
	case "gemini":
		p, err := NewGeminiProvider(ctx, cred.APIKey)
		if err != nil {
			return nil, err
		}
		return &Backend{Name: spec.Name, Provider: p, Images: p}, nil
	case "anthropic":
		return &Backend{Name: spec.Name, Provider: NewAnthropicProvider(cred.APIKey).WithTranscriber(transcriber)}, nil
	default:
		p := NewOpenAICompatProviderFromSpec(spec, cred.APIKey, cred.APIBase).WithTranscriber(transcriber)
		b := &Backend{Name: spec.Name, Provider: p}
		if spec.Name == "openai" {
			b.Images = p
		}
		return b, nil
	}
}
