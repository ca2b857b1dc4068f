package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/coopco/molebot/internal/content"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

var anthropicImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

type AnthropicProvider struct {
	client      *anthropic.Client
	transcriber Transcriber
}

func NewAnthropicProvider(apiKey string, opts ...option.RequestOption) *AnthropicProvider {
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &AnthropicProvider{client: &client}
}

// WithTranscriber enables audio input through t.
func (p *AnthropicProvider) WithTranscriber(t Transcriber) *AnthropicProvider {
	p.transcriber = t
	return p
}

func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	messages, err := p.convertMessages(ctx, req.History, req.Contents)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if req.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemInstruction}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Status: apiErr.StatusCode, Err: fmt.Errorf("anthropic chat failed: %w", err)}
		}
		return nil, fmt.Errorf("anthropic chat failed: %w", err)
	}
	return convertResponse(resp), nil
}

// convertMessages maps turns to alternating messages. The API requires the
// first message to come from the user, so leading model turns are dropped.
func (p *AnthropicProvider) convertMessages(ctx context.Context, history []content.Turn, current content.Payload) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	turns := append(append([]content.Turn(nil), history...), content.Turn{Role: content.RoleUser, Parts: current})
	for _, t := range turns {
		if t.Role == content.RoleModel {
			if len(out) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(content.Payload(t.Parts).PlainText())))
			continue
		}
		blocks, err := p.convertParts(ctx, t.Parts)
		if err != nil {
			return nil, err
		}
		out = append(out, anthropic.NewUserMessage(blocks...))
	}
	return out, nil
}

func (p *AnthropicProvider) convertParts(ctx context.Context, parts []content.Fragment) ([]anthropic.ContentBlockParamUnion, error) {
	var blocks []anthropic.ContentBlockParamUnion
	for _, f := range parts {
		switch {
		case f.Type == content.FragmentText:
			if f.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(f.Text))
			}
		case f.Type == content.FragmentExternal:
			blocks = append(blocks, anthropic.NewTextBlock("Referenced resource: "+f.URI))
		case anthropicImageTypes[f.MimeType]:
			blocks = append(blocks, anthropic.NewImageBlockBase64(f.MimeType, base64.StdEncoding.EncodeToString(f.Data)))
		case isTextMime(f.MimeType):
			blocks = append(blocks, anthropic.NewTextBlock(fmt.Sprintf("Attached %s file:\n%s", f.MimeType, f.Data)))
		case strings.HasPrefix(f.MimeType, "audio/") && p.transcriber != nil:
			transcript, err := p.transcriber.Transcribe(ctx, f.Data, "voice"+audioExt(f.MimeType))
			if err != nil {
				return nil, fmt.Errorf("transcribe audio: %w", err)
			}
			blocks = append(blocks, anthropic.NewTextBlock("Voice note transcript:\n"+transcript))
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, f.MimeType)
		}
	}
	if len(blocks) == 0 {
		blocks = append(blocks, anthropic.NewTextBlock(" "))
	}
	return blocks, nil
}

func convertResponse(resp *anthropic.Message) *Response {
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &Response{
		Text: strings.TrimSpace(text.String()),
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
}
