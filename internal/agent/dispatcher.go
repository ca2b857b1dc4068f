// Package agent routes inbound messages to ignore, command or AI handling.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"

	"github.com/coopco/molebot/internal/bus"
	"github.com/coopco/molebot/internal/extract"
	"github.com/coopco/molebot/internal/metrics"
	"github.com/coopco/molebot/internal/prompt"
	"github.com/coopco/molebot/internal/providers"
	"github.com/coopco/molebot/internal/ratelimit"
	"github.com/coopco/molebot/internal/session"
	"github.com/coopco/molebot/internal/urlsniff"
)

// Control tokens for one-to-one conversations.
const (
	tokenActivate   = "2"
	tokenDeactivate = "1"
)

// Handling outcomes, used as the metrics label.
const (
	outcomeIgnored     = "ignored"
	outcomeRateLimited = "rate_limited"
	outcomeOnboarded   = "onboarded"
	outcomeActivated   = "activated"
	outcomeDeactivated = "deactivated"
	outcomeCommand     = "command"
	outcomeRejected    = "rejected"
	outcomeAnswered    = "answered"
	outcomeFailed      = "failed"
	outcomePanic       = "panic"
)

// Searcher looks up external resources for a query. It never fails; errors
// come back as fallback text.
type Searcher interface {
	Search(ctx context.Context, query string) string
}

// Config holds all dependencies and settings for a Dispatcher.
type Config struct {
	Bus       *bus.MessageBus
	Transport Transport
	Humanizer *Humanizer // built from Transport with default pacing when nil

	Sessions  *session.Store
	Gate      *ratelimit.Gate
	Sniffer   *urlsniff.Sniffer
	Extractor *extract.Extractor
	Assembler *prompt.Assembler
	Searcher  Searcher                 // nil disables search
	Images    providers.ImageGenerator // nil disables drawing

	Prefix     string
	ImageModel string
	// Models and ModeLabels name each model key in replies.
	Models     map[session.ModelKey]string
	ModeLabels map[session.ModelKey]string
	AssetPath  string
	Texts      Texts
}

// Dispatcher consumes inbound messages and resolves each to exactly one of
// ignore, command response or AI request.
type Dispatcher struct {
	bus       *bus.MessageBus
	h         *Humanizer
	sessions  *session.Store
	gate      *ratelimit.Gate
	sniffer   *urlsniff.Sniffer
	extractor *extract.Extractor
	assembler *prompt.Assembler
	searcher  Searcher
	images    providers.ImageGenerator

	prefix     string
	imageModel string
	models     map[session.ModelKey]string
	modeLabels map[session.ModelKey]string
	assetPath  string
	texts      Texts
	commands   map[string]command

	queue *bus.KeyedQueue
}

// New creates a Dispatcher from the given config. Sessions and a Transport
// (or Humanizer) are required; a missing Gate limits with the defaults.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("dispatcher: session store is required")
	}
	h := cfg.Humanizer
	if h == nil {
		if cfg.Transport == nil {
			return nil, errors.New("dispatcher: transport is required")
		}
		h = NewHumanizer(cfg.Transport, Range{}, Range{})
	}
	if cfg.Gate == nil {
		cfg.Gate = ratelimit.NewGate(nil, 0, 0)
	}
	if cfg.Sniffer == nil {
		cfg.Sniffer = urlsniff.New(nil)
	}
	if cfg.Extractor == nil {
		cfg.Extractor = extract.New()
	}
	if cfg.Assembler == nil {
		cfg.Assembler = prompt.NewAssembler(prompt.Config{Defaults: prompt.DefaultSentences(cfg.Prefix)})
	}
	d := &Dispatcher{
		bus:        cfg.Bus,
		h:          h,
		sessions:   cfg.Sessions,
		gate:       cfg.Gate,
		sniffer:    cfg.Sniffer,
		extractor:  cfg.Extractor,
		assembler:  cfg.Assembler,
		searcher:   cfg.Searcher,
		images:     cfg.Images,
		prefix:     strings.ToLower(cfg.Prefix),
		imageModel: cfg.ImageModel,
		models:     cfg.Models,
		modeLabels: cfg.ModeLabels,
		assetPath:  cfg.AssetPath,
		texts:      cfg.Texts.merge(DefaultTexts(cfg.Prefix)),
		queue:      bus.NewKeyedQueue(),
	}
	d.commands = d.commandTable()
	return d, nil
}

// Run consumes inbound messages from the bus. Each conversation is handled
// by its own worker in delivery order; independent conversations run
// concurrently. Returns nil when the bus is closed, or ctx's error, after
// in-flight messages finish.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.queue.Wait()
	for {
		msg, err := d.bus.ConsumeInbound(ctx)
		if errors.Is(err, bus.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		d.queue.Push(msg.SessionKey(), func() { d.Handle(ctx, msg) })
	}
}

// Handle processes one inbound message synchronously. Callers must not run
// it concurrently for one conversation. Failures are logged, never returned.
func (d *Dispatcher) Handle(ctx context.Context, msg bus.InboundMessage) {
	key := msg.SessionKey()
	log := slog.With("req", uuid.NewString(), "conversation", key, "kind", msg.Kind)

	outcome := outcomePanic
	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatcher: panic while handling message", "panic", r, "stack", string(debug.Stack()))
		}
		metrics.InboundMessages.WithLabelValues(msg.Conversation.Channel, outcome).Inc()
		metrics.ActiveSessions.Set(float64(d.sessions.CountActive()))
	}()

	outcome = d.handle(ctx, log, msg)
	log.Debug("dispatcher: handled", "outcome", outcome)
}

func (d *Dispatcher) handle(ctx context.Context, log *slog.Logger, msg bus.InboundMessage) string {
	id := msg.Conversation
	key := msg.SessionKey()

	text := strings.TrimSpace(msg.Text)
	if msg.IsGroup() {
		if !msg.MentionsBot() {
			return outcomeIgnored
		}
		text = msg.StripMention()
	}

	if v := d.gate.CheckAndRecord(ctx, key); v.Tripped {
		warn := v.FirstTrip && !msg.IsGroup()
		metrics.RateLimitTrips.WithLabelValues(boolLabel(warn)).Inc()
		log.Info("dispatcher: rate limited", "count", v.Count, "warned", warn)
		if warn {
			d.reply(ctx, log, id, d.texts.SpamWarning)
		}
		return outcomeRateLimited
	}

	cmd, args, prefixed := d.parseCommand(text)

	if !msg.IsGroup() {
		sess, exists := d.sessions.Get(key)
		switch {
		case (!exists || (sess.State == session.Dormant && !sess.HasMemory)) && text != "" && !prefixed:
			d.sessions.SetActive(key, false)
			d.reply(ctx, log, id, d.texts.Onboarding)
			return outcomeOnboarded
		case text == tokenActivate:
			d.sessions.SetActive(key, true)
			d.reply(ctx, log, id, d.texts.Activated)
			return outcomeActivated
		case text == tokenDeactivate:
			if d.sessions.Deactivate(key) {
				log.Info("dispatcher: memory discarded on deactivation")
			}
			d.reply(ctx, log, id, d.texts.Deactivated)
			return outcomeDeactivated
		case sess.State == session.AwaitingActivation && !prefixed && !msg.Kind.IsMedia() && !urlsniff.ContainsResource(text):
			return outcomeIgnored
		}
	}

	if prefixed {
		if c, ok := d.commands[cmd]; ok {
			metrics.Commands.WithLabelValues(c.name).Inc()
			c.run(ctx, log, msg, args)
			return outcomeCommand
		}
		text = d.stripPrefix(text)
	}

	return d.answer(ctx, log, msg, text)
}

// parseCommand splits text into its lowercased first word with the prefix
// removed and the remaining arguments. prefixed reports whether text counts
// as a command attempt: with a prefix configured any text starting with it,
// without one only text whose first word is a known command.
func (d *Dispatcher) parseCommand(text string) (cmd, args string, prefixed bool) {
	first, rest, _ := strings.Cut(text, " ")
	first = strings.ToLower(first)
	args = strings.TrimSpace(rest)
	if d.prefix == "" {
		_, known := d.commands[first]
		return first, args, known
	}
	if !strings.HasPrefix(strings.ToLower(text), d.prefix) {
		return "", "", false
	}
	return strings.TrimPrefix(first, d.prefix), args, true
}

func (d *Dispatcher) stripPrefix(text string) string {
	if d.prefix == "" || len(text) < len(d.prefix) {
		return text
	}
	return strings.TrimSpace(text[len(d.prefix):])
}

// reply is a humanized text send whose failure is only logged.
func (d *Dispatcher) reply(ctx context.Context, log *slog.Logger, id bus.ConversationID, text string) {
	if err := d.h.Text(ctx, id, text); err != nil {
		log.Error("dispatcher: send failed", "err", err)
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
