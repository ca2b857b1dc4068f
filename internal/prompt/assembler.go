// Package prompt assembles the content list sent to the AI backend for one
// message.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/coopco/molebot/internal/bus"
	"github.com/coopco/molebot/internal/content"
)

// DefaultTimezone is used for the server time header.
const DefaultTimezone = "Asia/Jakarta"

// TimeLayout renders the server time in the header and status reports.
const TimeLayout = "Monday, 2 January 2006 15:04:05 MST"

// Defaults are the sentences used in place of an empty user text.
type Defaults struct {
	Image     string
	Video     string
	Audio     string
	Document  string
	VideoLink string
	Greeting  string
}

// DefaultSentences returns the built-in defaults. prefix is the command
// prefix quoted in the greeting.
func DefaultSentences(prefix string) Defaults {
	return Defaults{
		Image:    "Please analyze the attached image in depth.",
		Video:    "Please analyze the attached video in depth.",
		Document: "Please analyze this document.",
		Audio: "Transcribe this voice note/audio. *REQUIRED*: if the transcript asks for facts, recent data " +
			"or outside information (news, prices, weather), *use the search tool* to get an accurate answer. " +
			"Then reply to the message with a relevant, personal answer. At the end of your answer, include " +
			"the transcript and a summary of the voice note for reference.",
		VideoLink: "Please give a detailed summary and in-depth analysis of this video. " +
			"Include the key points and the conclusion.",
		Greeting: "Hello! I am Agent Mole, ready to help analyze your case. You can ask questions or send " +
			"images, videos, documents (PDF/TXT/DOCX/XLSX/PPTX) or a *voice note* after tagging me. " +
			"Type " + prefix + "menu to see the list of commands.",
	}
}

// Config controls the fixed parts of the directive.
type Config struct {
	Location *time.Location
	Persona  string
	Defaults Defaults
}

// DefaultPersona is the role preamble placed before the user text.
const DefaultPersona = "As Agent Mole, a forensic specialist, process this request and give a " +
	"professional, structured response. Use the search tool to get accurate, real-time information " +
	"relevant to the user's question."

// Input is everything collected for one AI-path message.
type Input struct {
	// Fragments are binary or external fragments in arrival order.
	Fragments    []content.Fragment
	Kind         bus.Kind
	Search       string
	DocumentText string
	Directives   []string
	Text         string
}

// Assembler builds payloads in a fixed order.
type Assembler struct {
	cfg Config
	now func() time.Time
}

type Option func(*Assembler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// NewAssembler creates an Assembler. A nil Location means DefaultTimezone,
// falling back to UTC when the zone database is unavailable.
func NewAssembler(cfg Config, opts ...Option) *Assembler {
	if cfg.Location == nil {
		cfg.Location = LoadLocation(DefaultTimezone)
	}
	if cfg.Persona == "" {
		cfg.Persona = DefaultPersona
	}
	if cfg.Defaults == (Defaults{}) {
		cfg.Defaults = DefaultSentences("/")
	}
	a := &Assembler{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// LoadLocation resolves name, returning UTC if it cannot be loaded.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ServerTime formats the current time in the configured zone.
func (a *Assembler) ServerTime() string {
	return a.now().In(a.cfg.Location).Format(TimeLayout)
}

// Build returns the binary and external fragments followed by the text
// directive. With no such fragments the payload is a single text fragment.
func (a *Assembler) Build(in Input) content.Payload {
	directive := a.Directive(in)

	var out content.Payload
	for _, f := range in.Fragments {
		if f.Type == content.FragmentText {
			continue
		}
		out = append(out, f)
	}
	return append(out, content.Text(directive))
}

// Directive renders the text part: header, document text, analysis
// directives, persona, then the user text or the default for the kind.
func (a *Assembler) Directive(in Input) string {
	var parts []string

	header := fmt.Sprintf("*CURRENT SERVER DATE/TIME:* `%s`.", a.ServerTime())
	if s := strings.TrimSpace(in.Search); s != "" {
		header += fmt.Sprintf(" *ADDITIONAL CONTEXT FROM HIDDEN-SERVICE SEARCH:* ```\n%s\n```", s)
	}
	parts = append(parts, header)

	if in.DocumentText != "" {
		parts = append(parts, in.DocumentText)
	}
	for _, d := range in.Directives {
		if d != "" {
			parts = append(parts, d)
		}
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		var greeting bool
		if text, greeting = a.fallback(in); greeting {
			parts = append(parts, "*Default message:*\n"+text)
			return strings.Join(parts, "\n\n")
		}
	}

	parts = append(parts, a.cfg.Persona)
	if text != "" {
		parts = append(parts, "*User request:*\n"+text)
	}
	return strings.Join(parts, "\n\n")
}

// fallback picks the default sentence for an empty user text and reports
// whether it is the greeting, which replaces the persona.
func (a *Assembler) fallback(in Input) (string, bool) {
	d := a.cfg.Defaults
	inline := false
	external := false
	for _, f := range in.Fragments {
		switch f.Type {
		case content.FragmentInline:
			inline = true
		case content.FragmentExternal:
			external = true
		}
	}

	switch {
	case in.DocumentText != "" || (inline && in.Kind == bus.KindDocument):
		return d.Document, false
	case inline && in.Kind == bus.KindAudio:
		return d.Audio, false
	case inline && in.Kind == bus.KindImage:
		return d.Image, false
	case inline && in.Kind == bus.KindVideo:
		return d.Video, false
	case external:
		return d.VideoLink, false
	case len(in.Directives) > 0:
		return "", false
	default:
		return d.Greeting, true
	}
}
