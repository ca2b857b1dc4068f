package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coopco/molebot/internal/content"
)

// mockOpenAIServer creates a test server that returns a valid ChatCompletion response.
func mockOpenAIServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func defaultChatHandler(reply string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{
				"prompt_tokens":     10,
				"completion_tokens": 5,
				"total_tokens":      15,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// capture decodes the request's messages before answering.
func capture(msgs *[]map[string]any, reply string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []map[string]any `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		*msgs = body.Messages
		defaultChatHandler(reply)(w, r)
	}
}

type stubTranscriber struct {
	text string
	got  []byte
}

func (s *stubTranscriber) Transcribe(_ context.Context, audio []byte, _ string) (string, error) {
	s.got = audio
	return s.text, nil
}

func TestOpenAIGenerate_Basic(t *testing.T) {
	srv := mockOpenAIServer(t, defaultChatHandler("  Hello!  "))

	p := NewOpenAICompatProvider("test-key", srv.URL)
	resp, err := p.Generate(t.Context(), Request{
		Model:    "gpt-4o",
		Contents: content.Payload{content.Text("hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "Hello!" {
		t.Errorf("Text = %q, want %q", resp.Text, "Hello!")
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
}

func TestOpenAIGenerate_SystemAndHistory(t *testing.T) {
	var msgs []map[string]any
	srv := mockOpenAIServer(t, capture(&msgs, "ok"))

	p := NewOpenAICompatProvider("test-key", srv.URL)
	_, err := p.Generate(t.Context(), Request{
		Model:             "gpt-4o",
		SystemInstruction: "You are Agent Mole",
		History: []content.Turn{
			content.TextTurn(content.RoleUser, "first"),
			content.TextTurn(content.RoleModel, "reply"),
		},
		Contents: content.Payload{content.Text("second")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(msgs) != len(wantRoles) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(wantRoles))
	}
	for i, role := range wantRoles {
		if msgs[i]["role"] != role {
			t.Errorf("messages[%d].role = %v, want %s", i, msgs[i]["role"], role)
		}
	}
	if msgs[3]["content"] != "second" {
		t.Errorf("last content = %v", msgs[3]["content"])
	}
}

func TestOpenAIGenerate_Multimodal(t *testing.T) {
	var msgs []map[string]any
	srv := mockOpenAIServer(t, capture(&msgs, "I see an image"))

	tr := &stubTranscriber{text: "hello from audio"}
	p := NewOpenAICompatProvider("test-key", srv.URL).WithTranscriber(tr)
	_, err := p.Generate(t.Context(), Request{
		Model: "gpt-4o",
		Contents: content.Payload{
			content.Inline([]byte{0x89, 'P', 'N', 'G'}, "image/png"),
			content.Inline([]byte("a,b\n1,2"), "text/csv"),
			content.Inline([]byte("OggS"), "audio/ogg"),
			content.External("https://youtu.be/abcdefghijk", "video/youtube"),
			content.Text("what is this?"),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(tr.got) != "OggS" {
		t.Errorf("transcriber got %q", tr.got)
	}

	parts, _ := msgs[0]["content"].([]any)
	if len(parts) != 5 {
		t.Fatalf("got %d parts: %v", len(parts), msgs[0])
	}
	img := parts[0].(map[string]any)["image_url"].(map[string]any)
	wantURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'})
	if img["url"] != wantURL {
		t.Errorf("image url = %v", img["url"])
	}
	if txt := parts[1].(map[string]any)["text"].(string); !strings.Contains(txt, "a,b\n1,2") {
		t.Errorf("text document part = %q", txt)
	}
	if txt := parts[2].(map[string]any)["text"].(string); !strings.Contains(txt, "hello from audio") {
		t.Errorf("audio part = %q", txt)
	}
	if txt := parts[3].(map[string]any)["text"].(string); !strings.Contains(txt, "https://youtu.be/abcdefghijk") {
		t.Errorf("external part = %q", txt)
	}
}

func TestOpenAIGenerate_UnsupportedMedia(t *testing.T) {
	srv := mockOpenAIServer(t, defaultChatHandler("unused"))

	p := NewOpenAICompatProvider("test-key", srv.URL)
	_, err := p.Generate(t.Context(), Request{
		Model:    "gpt-4o",
		Contents: content.Payload{content.Inline([]byte("OggS"), "audio/ogg"), content.Text("listen")},
	})
	if !errors.Is(err, ErrUnsupportedMedia) {
		t.Fatalf("err = %v, want ErrUnsupportedMedia", err)
	}
}

func TestOpenAIGenerate_ErrorStatus(t *testing.T) {
	srv := mockOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		w.Write([]byte(`{"error":{"message":"payload too large","type":"invalid_request_error"}}`))
	})

	p := NewOpenAICompatProvider("test-key", srv.URL)
	_, err := p.Generate(t.Context(), Request{Model: "gpt-4o", Contents: content.Payload{content.Text("hi")}})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := StatusOf(err); got != http.StatusRequestEntityTooLarge {
		t.Errorf("StatusOf() = %d, want 413", got)
	}
}

func TestOpenAIGenerate_NoChoices(t *testing.T) {
	srv := mockOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	})

	p := NewOpenAICompatProvider("test-key", srv.URL)
	if _, err := p.Generate(t.Context(), Request{Model: "gpt-4o", Contents: content.Payload{content.Text("hi")}}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestOpenAIGenerateImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	var gotPrompt string
	srv := mockOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		gotPrompt, _ = body["prompt"].(string)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data":    []map[string]any{{"b64_json": base64.StdEncoding.EncodeToString(png)}},
		})
	})

	p := NewOpenAICompatProvider("test-key", srv.URL)
	resp, err := p.GenerateImage(t.Context(), "dall-e-3", "a cat astronaut")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPrompt != "a cat astronaut" {
		t.Errorf("prompt = %q", gotPrompt)
	}
	if len(resp.Images) != 1 || string(resp.Images[0].Data) != string(png) {
		t.Fatalf("images = %+v", resp.Images)
	}
}

func TestNewOpenAICompatProviderFromSpec(t *testing.T) {
	spec := &ProviderSpec{
		DefaultAPIBase: "https://api.deepseek.com/v1",
		ModelPrefix:    "ds-",
		SkipPrefixes:   []string{"ds-"},
	}
	p := NewOpenAICompatProviderFromSpec(spec, "key", "")
	if p.modelPrefix != "ds-" {
		t.Errorf("modelPrefix = %q, want %q", p.modelPrefix, "ds-")
	}
	if len(p.skipPrefixes) != 1 || p.skipPrefixes[0] != "ds-" {
		t.Errorf("skipPrefixes = %v, want [ds-]", p.skipPrefixes)
	}
}

func TestResolveModel(t *testing.T) {
	tests := []struct {
		name  string
		p     *OpenAICompatProvider
		model string
		want  string
	}{
		{"no prefix", &OpenAICompatProvider{}, "gpt-4o", "gpt-4o"},
		{"with prefix", &OpenAICompatProvider{modelPrefix: "pfx/"}, "mymodel", "pfx/mymodel"},
		{"skip prefix", &OpenAICompatProvider{modelPrefix: "pfx/", skipPrefixes: []string{"skip-"}}, "skip-model", "skip-model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.resolveModel(tt.model); got != tt.want {
				t.Errorf("resolveModel = %q, want %q", got, tt.want)
			}
		})
	}
}
