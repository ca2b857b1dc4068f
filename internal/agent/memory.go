package agent

import (
	"github.com/coopco/molebot/internal/content"
	"github.com/coopco/molebot/internal/providers"
	"github.com/coopco/molebot/internal/session"
)

// Default system instructions per model key.
const (
	DefaultFastInstruction  = "You are a large language model used to investigate criminal cases. Your name is Agent Mole."
	DefaultSmartInstruction = "You are Agent Mole, a forensic intelligence specialist. Investigate the user's case " +
		"methodically: identify entities, timelines and patterns, say which sources support each finding, " +
		"flag uncertainty plainly, and answer in a professional, structured format. Never attempt to access " +
		"private or authenticated content."
)

// Binding ties a model key to a backend and its chat settings.
type Binding struct {
	Provider          providers.Provider
	Model             string
	SystemInstruction string
	Search            bool
}

// NewMemoryFactory returns a session.MemoryFactory that opens a backend
// conversation for the binding of each model key. Keys without a binding
// use the FAST one.
func NewMemoryFactory(bindings map[session.ModelKey]Binding) session.MemoryFactory {
	return func(key session.ModelKey, history []content.Turn) session.Memory {
		b, ok := bindings[key]
		if !ok {
			b = bindings[session.ModelFast]
		}
		return providers.NewConversation(b.Provider, providers.ChatConfig{
			Model:             b.Model,
			SystemInstruction: b.SystemInstruction,
			Search:            b.Search,
		}, history)
	}
}
