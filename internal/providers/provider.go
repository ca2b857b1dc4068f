package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/coopco/molebot/internal/content"
)

// Provider is the AI backend interface. Generate is stateless: the caller
// supplies the full history with each request.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ImageGenerator produces images from a text prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, model, prompt string) (*Response, error)
}

// Transcriber turns audio into text. Backends without native audio input
// use it to degrade voice notes to a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, fileName string) (string, error)
}

type Request struct {
	Model             string
	SystemInstruction string
	Search            bool // enable the backend's web search tool, if any
	History           []content.Turn
	Contents          content.Payload
	MaxTokens         int
}

type Response struct {
	Text   string
	Images []Image
	Usage  Usage
}

type Image struct {
	Data     []byte
	MimeType string
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ErrUnsupportedMedia is returned when a backend cannot accept a fragment.
var ErrUnsupportedMedia = errors.New("unsupported mime type")

// StatusError carries the HTTP status a backend failed with.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string { return fmt.Sprintf("status %d: %v", e.Status, e.Err) }

func (e *StatusError) Unwrap() error { return e.Err }

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

const defaultMaxTokens = 4096
