package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/coopco/molebot/internal/content"
)

// GeminiProvider talks to the Gemini API. It accepts inline media of any
// kind and external video references natively.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a Gemini API client.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	contents := toGeminiContents(req.History)
	contents = append(contents, genai.NewContentFromParts(toGeminiParts(req.Contents), genai.RoleUser))

	cfg := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.Search {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	res, err := p.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, wrapGeminiError(err)
	}
	return geminiResponse(res), nil
}

// GenerateImage asks an image-capable model for a picture of prompt.
func (p *GeminiProvider) GenerateImage(ctx context.Context, model, prompt string) (*Response, error) {
	cfg := &genai.GenerateContentConfig{ResponseModalities: []string{"TEXT", "IMAGE"}}
	res, err := p.client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, wrapGeminiError(err)
	}
	return geminiResponse(res), nil
}

func toGeminiContents(turns []content.Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns)+1)
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == content.RoleModel {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromParts(toGeminiParts(t.Parts), role))
	}
	return out
}

func toGeminiParts(frags []content.Fragment) []*genai.Part {
	parts := make([]*genai.Part, 0, len(frags))
	for _, f := range frags {
		switch f.Type {
		case content.FragmentInline:
			parts = append(parts, genai.NewPartFromBytes(f.Data, f.MimeType))
		case content.FragmentExternal:
			parts = append(parts, genai.NewPartFromURI(f.URI, f.MimeType))
		default:
			parts = append(parts, genai.NewPartFromText(f.Text))
		}
	}
	return parts
}

func geminiResponse(res *genai.GenerateContentResponse) *Response {
	out := &Response{}
	var text strings.Builder
	if len(res.Candidates) > 0 && res.Candidates[0].Content != nil {
		for _, part := range res.Candidates[0].Content.Parts {
			switch {
			case part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "image/"):
				out.Images = append(out.Images, Image{Data: part.InlineData.Data, MimeType: part.InlineData.MIMEType})
			case part.Text != "" && !part.Thought:
				text.WriteString(part.Text)
			}
		}
	}
	out.Text = strings.TrimSpace(text.String())
	if u := res.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out
}

func wrapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{Status: apiErr.Code, Err: fmt.Errorf("gemini: %w", err)}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &StatusError{Status: apiErrPtr.Code, Err: fmt.Errorf("gemini: %w", err)}
	}
	return fmt.Errorf("gemini: %w", err)
}
