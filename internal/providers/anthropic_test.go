package providers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/coopco/molebot/internal/content"
)

func TestConvertResponse_TextOnly(t *testing.T) {
	msg := &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "Hello "},
			{Type: "text", Text: "world"},
		},
		StopReason: "end_turn",
		Usage:      anthropic.Usage{InputTokens: 10, OutputTokens: 5},
	}
	resp := convertResponse(msg)
	if resp.Text != "Hello world" {
		t.Errorf("Text = %q, want %q", resp.Text, "Hello world")
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
}

func TestConvertMessages_DropsLeadingModelTurns(t *testing.T) {
	p := NewAnthropicProvider("key")
	history := []content.Turn{
		content.TextTurn(content.RoleModel, "orphan answer"),
		content.TextTurn(content.RoleUser, "question"),
		content.TextTurn(content.RoleModel, "answer"),
	}
	out, err := p.convertMessages(t.Context(), history, content.Payload{content.Text("next")})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
	if out[0].Role != anthropic.MessageParamRoleUser || out[1].Role != anthropic.MessageParamRoleAssistant {
		t.Errorf("roles = %s, %s", out[0].Role, out[1].Role)
	}
}

func TestConvertParts(t *testing.T) {
	p := NewAnthropicProvider("key").WithTranscriber(&stubTranscriber{text: "spoken"})
	blocks, err := p.convertParts(t.Context(), []content.Fragment{
		content.Inline([]byte{1, 2}, "image/png"),
		content.Inline([]byte("OggS"), "audio/ogg"),
		content.Inline([]byte(`{"a":1}`), "application/json"),
		content.Text("caption"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(blocks))
	}
	if blocks[0].OfImage == nil {
		t.Error("first block should be an image")
	}
	if blocks[1].OfText == nil || blocks[1].OfText.Text != "Voice note transcript:\nspoken" {
		t.Errorf("audio block = %+v", blocks[1].OfText)
	}
}

func TestConvertParts_Unsupported(t *testing.T) {
	p := NewAnthropicProvider("key")
	_, err := p.convertParts(t.Context(), []content.Fragment{content.Inline([]byte{0}, "video/mp4")})
	if !errors.Is(err, ErrUnsupportedMedia) {
		t.Fatalf("err = %v, want ErrUnsupportedMedia", err)
	}
}

func TestAnthropicGenerate(t *testing.T) {
	var gotSystem any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		gotSystem = body["system"]
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-sonnet-4-20250514",
			"content":     []map[string]any{{"type": "text", "text": "hi there"}},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 3, "output_tokens": 2},
		})
	}))
	defer srv.Close()

	p := NewAnthropicProvider("key", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	resp, err := p.Generate(t.Context(), Request{
		SystemInstruction: "be terse",
		Contents:          content.Payload{content.Text("hello")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hi there" {
		t.Errorf("Text = %q", resp.Text)
	}
	if gotSystem == nil {
		t.Error("system prompt not sent")
	}
}

func TestAnthropicGenerate_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("key", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	_, err := p.Generate(t.Context(), Request{Contents: content.Payload{content.Text("hello")}})
	if got := StatusOf(err); got != http.StatusBadRequest {
		t.Fatalf("StatusOf() = %d, err = %v", got, err)
	}
}
