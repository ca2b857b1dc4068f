package agent

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/coopco/molebot/internal/bus"
)

// Transport is the outbound side of a channel as seen by the dispatcher.
// *bus.Outbox implements it.
type Transport interface {
	SendText(ctx context.Context, id bus.ConversationID, text string) error
	SendMedia(ctx context.Context, id bus.ConversationID, data []byte, mimeType, caption string) error
	SetPresence(ctx context.Context, id bus.ConversationID, p bus.Presence) error
}

// Range is an inclusive delay range.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Default pacing.
var (
	DefaultReplyDelay   = Range{Min: 1 * time.Second, Max: 5 * time.Second}
	DefaultProcessDelay = Range{Min: 3 * time.Second, Max: 8 * time.Second}
)

// Humanizer paces outbound traffic so replies look typed. Every user-visible
// send in the dispatcher goes through it.
type Humanizer struct {
	transport Transport
	reply     Range
	process   Range

	// sleep and pick are replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
	pick  func(r Range) time.Duration
}

// NewHumanizer wraps transport. Zero ranges fall back to the defaults.
func NewHumanizer(transport Transport, reply, process Range) *Humanizer {
	if reply == (Range{}) {
		reply = DefaultReplyDelay
	}
	if process == (Range{}) {
		process = DefaultProcessDelay
	}
	return &Humanizer{
		transport: transport,
		reply:     reply,
		process:   process,
		sleep:     sleepCtx,
		pick:      randomIn,
	}
}

// Text shows composing, waits, sends text, then restores available.
func (h *Humanizer) Text(ctx context.Context, id bus.ConversationID, text string) error {
	return h.paced(ctx, id, func() error {
		return h.transport.SendText(ctx, id, text)
	})
}

// Media is Text for a media payload.
func (h *Humanizer) Media(ctx context.Context, id bus.ConversationID, data []byte, mimeType, caption string) error {
	return h.paced(ctx, id, func() error {
		return h.transport.SendMedia(ctx, id, data, mimeType, caption)
	})
}

// Think marks the conversation available and waits the processing delay.
func (h *Humanizer) Think(ctx context.Context, id bus.ConversationID) error {
	h.presence(ctx, id, bus.PresenceAvailable)
	return h.sleep(ctx, h.pick(h.process))
}

// Busy marks the conversation composing and waits the processing delay.
func (h *Humanizer) Busy(ctx context.Context, id bus.ConversationID) error {
	h.presence(ctx, id, bus.PresenceComposing)
	return h.sleep(ctx, h.pick(h.process))
}

// Presence sets presence without pacing.
func (h *Humanizer) Presence(ctx context.Context, id bus.ConversationID, p bus.Presence) {
	h.presence(ctx, id, p)
}

func (h *Humanizer) paced(ctx context.Context, id bus.ConversationID, send func() error) error {
	h.presence(ctx, id, bus.PresenceComposing)
	defer h.presence(context.WithoutCancel(ctx), id, bus.PresenceAvailable)
	if err := h.sleep(ctx, h.pick(h.reply)); err != nil {
		return err
	}
	return send()
}

// presence failures are not worth aborting a reply for.
func (h *Humanizer) presence(ctx context.Context, id bus.ConversationID, p bus.Presence) {
	_ = h.transport.SetPresence(ctx, id, p)
}

func randomIn(r Range) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rand.N(r.Max-r.Min+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
