package providers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTranscriptionProvider_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q, want %q", auth, "Bearer test-key")
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file: %v", err)
		} else {
			data, _ := io.ReadAll(f)
			if string(data) != "fake audio data" || hdr.Filename != "voice.ogg" {
				t.Errorf("file = %q (%s)", data, hdr.Filename)
			}
		}
		if m := r.FormValue("model"); m != defaultTranscriptionModel {
			t.Errorf("model = %q", m)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	}))
	defer srv.Close()

	p := NewTranscriptionProvider("test-key", srv.URL)
	text, err := p.Transcribe(t.Context(), []byte("fake audio data"), "voice.ogg")
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello world" {
		t.Errorf("text = %q, want %q", text, "hello world")
	}
}

func TestTranscriptionProvider_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewTranscriptionProvider("bad-key", srv.URL)
	_, err := p.Transcribe(t.Context(), []byte("data"), "voice.ogg")
	if err == nil {
		t.Fatal("expected error for HTTP 401")
	}
	if StatusOf(err) != http.StatusUnauthorized {
		t.Errorf("StatusOf() = %d", StatusOf(err))
	}
}

func TestNewTranscriptionProvider(t *testing.T) {
	p := NewTranscriptionProvider("my-key", "")
	if p.apiKey != "my-key" {
		t.Errorf("apiKey = %q, want %q", p.apiKey, "my-key")
	}
	if p.baseURL != defaultTranscriptionURL {
		t.Errorf("baseURL = %q, want %q", p.baseURL, defaultTranscriptionURL)
	}
}
