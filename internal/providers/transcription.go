package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

const (
	defaultTranscriptionURL   = "https://api.groq.com/openai/v1/audio/transcriptions"
	defaultTranscriptionModel = "whisper-large-v3"
)

// TranscriptionProvider calls a Whisper-compatible transcription endpoint.
type TranscriptionProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewTranscriptionProvider(apiKey, baseURL string) *TranscriptionProvider {
	if baseURL == "" {
		baseURL = defaultTranscriptionURL
	}
	return &TranscriptionProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   defaultTranscriptionModel,
		client:  http.DefaultClient,
	}
}

// Transcribe uploads audio and returns the recognized text.
func (p *TranscriptionProvider) Transcribe(ctx context.Context, audio []byte, fileName string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err = fw.Write(audio); err != nil {
		return "", fmt.Errorf("failed to copy audio data: %w", err)
	}
	if err = mw.WriteField("model", p.model); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	mw.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Status: resp.StatusCode, Err: fmt.Errorf("transcription API error: %s", body)}
	}

	var result struct {
		Text string `json:"text"`
	}
	if err = json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return result.Text, nil
}
