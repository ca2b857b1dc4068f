package agent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/coopco/molebot/internal/bus"
	"github.com/coopco/molebot/internal/session"
)

// command is one entry of the command table. Every command is terminal.
type command struct {
	name string
	run  func(ctx context.Context, log *slog.Logger, msg bus.InboundMessage, args string)
}

func (d *Dispatcher) commandTable() map[string]command {
	fast := command{"fast", func(ctx context.Context, log *slog.Logger, msg bus.InboundMessage, _ string) {
		d.switchModel(ctx, log, msg, session.ModelFast)
	}}
	smart := command{"smart", func(ctx context.Context, log *slog.Logger, msg bus.InboundMessage, _ string) {
		d.switchModel(ctx, log, msg, session.ModelSmart)
	}}
	draw := command{"draw", d.draw}
	return map[string]command{
		"menu":   {"menu", d.menu},
		"reset":  {"reset", d.reset},
		"fast":   fast,
		"flash":  fast,
		"smart":  smart,
		"pro":    smart,
		"draw":   draw,
		"gambar": draw,
		"norek":  {"norek", d.sendAsset},
	}
}

func (d *Dispatcher) menu(ctx context.Context, log *slog.Logger, msg bus.InboundMessage, _ string) {
	d.reply(ctx, log, msg.Conversation, d.texts.Menu)
}

func (d *Dispatcher) reset(ctx context.Context, log *slog.Logger, msg bus.InboundMessage, _ string) {
	d.sessions.ResetMemory(msg.SessionKey())
	d.reply(ctx, log, msg.Conversation, d.texts.MemoryReset)
}

func (d *Dispatcher) switchModel(ctx context.Context, log *slog.Logger, msg bus.InboundMessage, key session.ModelKey) {
	d.sessions.SelectModel(msg.SessionKey(), key)
	name := "Fast Mode"
	if key == session.ModelSmart {
		name = "Smart Mode"
	}
	log.Info("dispatcher: model switched", "model", key)
	d.reply(ctx, log, msg.Conversation, fmt.Sprintf(d.texts.ModelSwitchedFormat, name, d.modelName(key)))
}

func (d *Dispatcher) draw(ctx context.Context, log *slog.Logger, msg bus.InboundMessage, prompt string) {
	id := msg.Conversation
	switch {
	case prompt == "":
		d.reply(ctx, log, id, d.texts.DrawUsage)
		return
	case d.images == nil:
		d.reply(ctx, log, id, d.texts.DrawUnavailable)
		return
	}

	if err := d.h.Busy(ctx, id); err != nil {
		return
	}

	log = log.With("model", d.imageModel)
	res, err := d.images.GenerateImage(ctx, d.imageModel, prompt)
	if err != nil {
		log.Error("dispatcher: image generation failed", "err", err)
		d.reply(ctx, log, id, d.texts.DrawFailed)
		return
	}
	if len(res.Images) == 0 {
		log.Warn("dispatcher: image model returned text only", "text", res.Text)
		d.reply(ctx, log, id, fmt.Sprintf(d.texts.DrawTextOnlyFormat, prompt, res.Text))
		return
	}

	img := res.Images[0]
	caption := fmt.Sprintf(d.texts.DrawCaptionFormat, d.imageModel, prompt)
	if err := d.h.Media(ctx, id, img.Data, img.MimeType, caption); err != nil {
		log.Error("dispatcher: send image failed", "err", err)
	}
}

func (d *Dispatcher) sendAsset(ctx context.Context, log *slog.Logger, msg bus.InboundMessage, _ string) {
	id := msg.Conversation
	data, err := os.ReadFile(d.assetPath)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		d.reply(ctx, log, id, fmt.Sprintf(d.texts.AssetMissingFormat, d.assetPath))
		return
	}
	if err != nil {
		log.Error("dispatcher: read asset failed", "path", d.assetPath, "err", err)
		d.reply(ctx, log, id, d.texts.AssetFailed)
		return
	}

	mt := mimetype.Detect(data).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	if err := d.h.Media(ctx, id, data, mt, d.texts.AssetCaption); err != nil {
		log.Error("dispatcher: send asset failed", "err", err)
		d.reply(ctx, log, id, d.texts.AssetFailed)
	}
}

// modelName returns the backend model for key, or the key itself.
func (d *Dispatcher) modelName(key session.ModelKey) string {
	if m := d.models[key]; m != "" {
		return m
	}
	return string(key)
}

// modeLabel returns the display label for key.
func (d *Dispatcher) modeLabel(key session.ModelKey) string {
	if l := d.modeLabels[key]; l != "" {
		return l
	}
	return d.modelName(key)
}
