package providers

import (
	"testing"
)

func TestFindByModel(t *testing.T) {
	tests := []struct {
		model    string
		wantName string
	}{
		{"gpt-4o", "openai"},
		{"dall-e-3", "openai"},
		{"claude-3-5-sonnet", "anthropic"},
		{"deepseek-chat", "deepseek"},
		{"gemini-2.5-flash", "gemini"},
		{"gemini-2.5-flash-image-preview", "gemini"},
	}
	for _, tt := range tests {
		spec := FindByModel(tt.model)
		if spec == nil {
			t.Errorf("FindByModel(%q) = nil, want %q", tt.model, tt.wantName)
			continue
		}
		if spec.Name != tt.wantName {
			t.Errorf("FindByModel(%q).Name = %q, want %q", tt.model, spec.Name, tt.wantName)
		}
	}
}

func TestFindByModelUnknown(t *testing.T) {
	if spec := FindByModel("totally-unknown-model-xyz"); spec != nil {
		t.Errorf("FindByModel(unknown) = %q, want nil", spec.Name)
	}
}

func TestFindGateway(t *testing.T) {
	if spec := FindGateway("sk-or-xxx", ""); spec == nil || spec.Name != "openrouter" {
		t.Errorf("FindGateway(sk-or-xxx) = %v, want openrouter", spec)
	}
	if spec := FindGateway("", "http://localhost:11434/v1"); spec == nil || spec.Name != "ollama" {
		t.Errorf("FindGateway(11434 URL) = %v, want ollama", spec)
	}
}

func creds(m map[string]Credential) Lookup {
	return func(name string) Credential { return m[name] }
}

func TestResolve(t *testing.T) {
	lookup := creds(map[string]Credential{
		"openai":    {APIKey: "sk-test"},
		"anthropic": {APIKey: "ak-test"},
		"gemini":    {APIKey: "g-test"},
	})

	b, err := Resolve(t.Context(), "", "gpt-4o", lookup, nil)
	if err != nil {
		t.Fatalf("Resolve(gpt-4o) error: %v", err)
	}
	if b.Name != "openai" || b.Images == nil {
		t.Errorf("openai backend = %+v", b)
	}

	b, err = Resolve(t.Context(), "", "claude-sonnet-4", lookup, nil)
	if err != nil {
		t.Fatalf("Resolve(claude) error: %v", err)
	}
	if _, ok := b.Provider.(*AnthropicProvider); !ok || b.Images != nil {
		t.Errorf("anthropic backend = %+v", b)
	}

	b, err = Resolve(t.Context(), "gemini", "gemini-2.5-pro", lookup, nil)
	if err != nil {
		t.Fatalf("Resolve(gemini) error: %v", err)
	}
	if _, ok := b.Provider.(*GeminiProvider); !ok || b.Images == nil {
		t.Errorf("gemini backend = %+v", b)
	}
}

func TestResolveErrors(t *testing.T) {
	empty := creds(nil)
	if _, err := Resolve(t.Context(), "nope", "gpt-4o", empty, nil); err == nil {
		t.Error("expected error for unknown provider name")
	}
	if _, err := Resolve(t.Context(), "", "mystery-model", empty, nil); err == nil {
		t.Error("expected error for unmatched model")
	}
	if _, err := Resolve(t.Context(), "", "gpt-4o", empty, nil); err == nil {
		t.Error("expected error for missing API key")
	}
	if _, err := Resolve(t.Context(), "ollama", "llama3", empty, nil); err != nil {
		t.Errorf("local provider should not need a key: %v", err)
	}
}

func TestResolveGatewayKey(t *testing.T) {
	lookup := creds(map[string]Credential{
		"openai":     {APIKey: "sk-or-abc"},
		"openrouter": {APIKey: "sk-or-abc"},
	})
	b, err := Resolve(t.Context(), "", "gpt-4o", lookup, nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.Name != "openrouter" {
		t.Errorf("backend = %s, want openrouter", b.Name)
	}
}
