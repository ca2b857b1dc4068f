package providers

import (
	"context"
	"sync"

	"github.com/coopco/molebot/internal/content"
)

// ChatConfig is fixed for the lifetime of a Conversation.
type ChatConfig struct {
	Model             string
	SystemInstruction string
	Search            bool
}

// Conversation is a stateful chat handle over a stateless Provider.
type Conversation struct {
	mu       sync.Mutex
	provider Provider
	cfg      ChatConfig
	history  []content.Turn
}

// NewConversation creates a handle seeded with history.
func NewConversation(p Provider, cfg ChatConfig, history []content.Turn) *Conversation {
	return &Conversation{
		provider: p,
		cfg:      cfg,
		history:  append([]content.Turn(nil), history...),
	}
}

// Send submits payload with the retained history. The exchange is appended
// to the history only when the backend answers.
func (c *Conversation) Send(ctx context.Context, payload content.Payload) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.provider.Generate(ctx, Request{
		Model:             c.cfg.Model,
		SystemInstruction: c.cfg.SystemInstruction,
		Search:            c.cfg.Search,
		History:           c.history,
		Contents:          payload,
	})
	if err != nil {
		return "", err
	}

	c.history = append(c.history,
		content.Turn{Role: content.RoleUser, Parts: append([]content.Fragment(nil), payload...)},
		content.TextTurn(content.RoleModel, resp.Text),
	)
	return resp.Text, nil
}

// History returns a copy of the retained turns.
func (c *Conversation) History() []content.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]content.Turn(nil), c.history...)
}

// Model reports the backend model name.
func (c *Conversation) Model() string { return c.cfg.Model }
