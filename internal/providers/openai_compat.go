package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/coopco/molebot/internal/content"
)

// OpenAICompatProvider works with OpenAI and any OpenAI-compatible API.
// Images are sent as data URIs, text documents are inlined as text and
// audio is transcribed when a Transcriber is set.
type OpenAICompatProvider struct {
	client       *openai.Client
	modelPrefix  string
	skipPrefixes []string
	transcriber  Transcriber
}

// NewOpenAICompatProvider creates a provider with an explicit base URL.
func NewOpenAICompatProvider(apiKey, baseURL string) *OpenAICompatProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAICompatProvider{client: openai.NewClientWithConfig(cfg)}
}

// NewOpenAICompatProviderFromSpec creates a provider using a ProviderSpec.
func NewOpenAICompatProviderFromSpec(spec *ProviderSpec, apiKey, baseURL string) *OpenAICompatProvider {
	base := baseURL
	if base == "" {
		base = spec.DefaultAPIBase
	}
	p := NewOpenAICompatProvider(apiKey, base)
	p.modelPrefix = spec.ModelPrefix
	p.skipPrefixes = spec.SkipPrefixes
	return p
}

// WithTranscriber enables audio input through t.
func (p *OpenAICompatProvider) WithTranscriber(t Transcriber) *OpenAICompatProvider {
	p.transcriber = t
	return p
}

// resolveModel applies the model prefix if needed.
func (p *OpenAICompatProvider) resolveModel(model string) string {
	if p.modelPrefix == "" {
		return model
	}
	for _, skip := range p.skipPrefixes {
		if strings.HasPrefix(model, skip) {
			return model
		}
	}
	return p.modelPrefix + model
}

func (p *OpenAICompatProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var msgs []openai.ChatCompletionMessage
	if req.SystemInstruction != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}
	for _, t := range req.History {
		msg, err := p.convertTurn(ctx, t.Role, t.Parts)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	msg, err := p.convertTurn(ctx, content.RoleUser, req.Contents)
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, msg)

	oaiReq := openai.ChatCompletionRequest{
		Model:    p.resolveModel(req.Model),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		oaiReq.MaxTokens = req.MaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, oaiReq)
	if err != nil {
		return nil, wrapOpenAIError("chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return &Response{
		Text: strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// GenerateImage requests a single base64 image.
func (p *OpenAICompatProvider) GenerateImage(ctx context.Context, model, prompt string) (*Response, error) {
	resp, err := p.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          model,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, wrapOpenAIError("image generation failed", err)
	}
	out := &Response{}
	for _, d := range resp.Data {
		if d.B64JSON == "" {
			if d.RevisedPrompt != "" {
				out.Text = d.RevisedPrompt
			}
			continue
		}
		data, err := base64.StdEncoding.DecodeString(d.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		out.Images = append(out.Images, Image{Data: data, MimeType: "image/png"})
	}
	return out, nil
}

func (p *OpenAICompatProvider) convertTurn(ctx context.Context, role string, parts []content.Fragment) (openai.ChatCompletionMessage, error) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if role == content.RoleModel {
		msg.Role = openai.ChatMessageRoleAssistant
	}

	if content.Payload(parts).IsPlainText() || msg.Role == openai.ChatMessageRoleAssistant {
		msg.Content = content.Payload(parts).PlainText()
		// Some providers reject empty string content
		if msg.Content == "" {
			msg.Content = " "
		}
		return msg, nil
	}

	for _, f := range parts {
		part, err := p.convertFragment(ctx, f)
		if err != nil {
			return msg, err
		}
		msg.MultiContent = append(msg.MultiContent, part)
	}
	return msg, nil
}

func (p *OpenAICompatProvider) convertFragment(ctx context.Context, f content.Fragment) (openai.ChatMessagePart, error) {
	text := func(s string) openai.ChatMessagePart {
		return openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: s}
	}
	switch {
	case f.Type == content.FragmentText:
		return text(f.Text), nil
	case f.Type == content.FragmentExternal:
		return text("Referenced resource: " + f.URI), nil
	case strings.HasPrefix(f.MimeType, "image/"):
		return openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:%s;base64,%s", f.MimeType, base64.StdEncoding.EncodeToString(f.Data)),
				Detail: openai.ImageURLDetailAuto,
			},
		}, nil
	case isTextMime(f.MimeType):
		return text(fmt.Sprintf("Attached %s file:\n%s", f.MimeType, f.Data)), nil
	case strings.HasPrefix(f.MimeType, "audio/") && p.transcriber != nil:
		transcript, err := p.transcriber.Transcribe(ctx, f.Data, "voice"+audioExt(f.MimeType))
		if err != nil {
			return openai.ChatMessagePart{}, fmt.Errorf("transcribe audio: %w", err)
		}
		return text("Voice note transcript:\n" + transcript), nil
	}
	return openai.ChatMessagePart{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, f.MimeType)
}

func wrapOpenAIError(msg string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{Status: apiErr.HTTPStatusCode, Err: fmt.Errorf("%s: %w", msg, err)}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &StatusError{Status: reqErr.HTTPStatusCode, Err: fmt.Errorf("%s: %w", msg, err)}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// isTextMime reports whether inline bytes can be passed as plain text.
func isTextMime(mimeType string) bool {
	switch mimeType {
	case "application/json", "application/javascript", "application/xml":
		return true
	}
	return strings.HasPrefix(mimeType, "text/")
}

func audioExt(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return ".mp3"
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	case strings.Contains(mimeType, "mp4"), strings.Contains(mimeType, "m4a"):
		return ".m4a"
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	}
	return ".ogg"
}
