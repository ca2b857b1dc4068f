package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/coopco/molebot/internal/bus"
	"github.com/coopco/molebot/internal/content"
	"github.com/coopco/molebot/internal/metrics"
	"github.com/coopco/molebot/internal/prompt"
	"github.com/coopco/molebot/internal/providers"
	"github.com/coopco/molebot/internal/session"
	"github.com/coopco/molebot/internal/urlsniff"
)

var timestampPattern = regexp.MustCompile(`\b\d{1,2}:\d{2}(?::\d{2})?\b|\(\d{1,2}:\d{2}(?::\d{2})?\)|\[\d{1,2}:\d{2}(?::\d{2})?\]`)

// stockIdentities are self-descriptions FAST models fall back to.
var stockIdentities = []string{
	"I am a large language model",
	"Saya adalah model bahasa besar",
}

// answer runs the AI path: media branch, URL sniffing, optional search,
// assembly, the backend call and the reply.
func (d *Dispatcher) answer(ctx context.Context, log *slog.Logger, msg bus.InboundMessage, text string) string {
	id := msg.Conversation
	key := msg.SessionKey()

	in := prompt.Input{Kind: bus.KindText}
	if m, ok := msg.ResolveMedia(); ok {
		if err := d.collectMedia(ctx, log, id, m, &in); err != nil {
			return outcomeRejected
		}
	}

	sniffed := d.sniffer.Sniff(text)
	in.Text = sniffed.Residual
	in.Fragments = append(in.Fragments, sniffed.Fragments()...)
	if det := sniffed.Directive; det != nil {
		in.Directives = append(in.Directives, det.Directive)
		log.Info("dispatcher: resource detected", "tag", det.Tag, "platform", det.Platform)
	}

	hasMedia := len(in.Fragments) > 0 || in.DocumentText != ""
	if d.searcher != nil && text != "" && (!hasMedia || urlsniff.IsHiddenService(text)) {
		d.h.Presence(ctx, id, bus.PresenceComposing)
		in.Search = d.searcher.Search(ctx, text)
		d.h.Presence(ctx, id, bus.PresenceAvailable)
	}

	payload := d.assembler.Build(in)
	mem, model := d.sessions.Memory(key)
	name := d.modelName(model)
	log = log.With("model", name, "fragments", len(payload))

	if err := d.h.Think(ctx, id); err != nil {
		return outcomeFailed
	}

	start := time.Now()
	reply, err := mem.Send(ctx, payload)
	metrics.AIRequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AIRequests.WithLabelValues(name, "error").Inc()
		log.Error("dispatcher: AI request failed", "status", providers.StatusOf(err), "err", err)
		d.reply(ctx, log, id, fmt.Sprintf(d.texts.ApologyFormat, d.classify(err)))
		return outcomeFailed
	}
	metrics.AIRequests.WithLabelValues(name, "ok").Inc()

	d.reply(ctx, log, id, d.decorate(reply, model, payload))

	if payload.HasBinary() {
		d.sessions.NoteMediaTurnCompleted(key, mem.History())
	}
	return outcomeAnswered
}

// classify maps a backend error to the detail shown in the apology. The raw
// error is only logged.
func (d *Dispatcher) classify(err error) string {
	msg := strings.ToLower(err.Error())
	status := providers.StatusOf(err)
	switch {
	case errors.Is(err, providers.ErrUnsupportedMedia),
		strings.Contains(msg, "unsupported mime type"),
		strings.Contains(msg, "file is not supported"):
		return d.texts.ErrUnsupportedMedia
	case status == http.StatusBadRequest, status == http.StatusRequestEntityTooLarge:
		return d.texts.ErrTooLarge
	case status >= http.StatusInternalServerError:
		return d.texts.ErrServer
	}
	return d.texts.ErrGeneric
}

// decorate post-processes a model reply for display.
func (d *Dispatcher) decorate(reply string, model session.ModelKey, payload content.Payload) string {
	reply = strings.TrimSpace(reply)
	if payload.HasExternal(urlsniff.VideoMimeType) {
		reply = highlightTimestamps(reply)
	}
	if model == session.ModelFast {
		for _, s := range stockIdentities {
			if strings.Contains(reply, s) {
				reply = d.texts.Identity
				break
			}
		}
	}
	return fmt.Sprintf(d.texts.ModeHeaderFormat, d.modeLabel(model)) + reply
}

// highlightTimestamps renders 1:23, (1:23) and [01:23:45] as bold code.
func highlightTimestamps(text string) string {
	return timestampPattern.ReplaceAllStringFunc(text, func(m string) string {
		return "*⏱️ `" + strings.Trim(m, "()[]") + "`*"
	})
}
