package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coopco/molebot/internal/bus"
	"github.com/coopco/molebot/internal/content"
	"github.com/coopco/molebot/internal/extract"
	"github.com/coopco/molebot/internal/metrics"
	"github.com/coopco/molebot/internal/prompt"
)

// errRejected ends a media branch after the user has been told why.
var errRejected = errors.New("media rejected")

// collectMedia runs the branch for the message's media kind and records the
// resulting fragment, document text or QR directive in in. It returns
// errRejected after sending a user-visible reply.
func (d *Dispatcher) collectMedia(ctx context.Context, log *slog.Logger, id bus.ConversationID, m bus.Media, in *prompt.Input) error {
	att := m.Attachment
	log = log.With("media", m.Kind, "quoted", m.Quoted, "mime", att.MimeType, "size", att.Size)

	if err := d.extractor.CheckSize(m.Kind, att.Size); err != nil {
		return d.rejectSize(ctx, log, id, err)
	}

	// A declared type is checked before downloading; a missing or generic
	// one is sniffed from the bytes afterwards.
	mime := extract.ResolveMimeType(att.MimeType, nil)
	declared := mime != "" && mime != "application/octet-stream"
	if m.Kind == bus.KindDocument && declared && !extract.Supported(mime) {
		return d.rejectDocument(ctx, log, id, mime)
	}
	if m.Kind == bus.KindAudio && declared && !strings.Contains(mime, "audio") {
		log.Info("dispatcher: audio attachment with non-audio mime skipped")
		return nil
	}

	d.h.Presence(ctx, id, bus.PresenceComposing)
	data, err := d.extractor.ReadMedia(ctx, m)
	if err != nil {
		var se *extract.SizeError
		if errors.As(err, &se) {
			return d.rejectSize(ctx, log, id, err)
		}
		metrics.Extractions.WithLabelValues(string(m.Kind), "download_failed").Inc()
		log.Error("dispatcher: media download failed", "err", err)
		d.reply(ctx, log, id, d.texts.DownloadFailed)
		return errRejected
	}
	mime = extract.ResolveMimeType(att.MimeType, data)

	in.Kind = m.Kind
	switch m.Kind {
	case bus.KindDocument:
		if !extract.Supported(mime) {
			return d.rejectDocument(ctx, log, id, mime)
		}
		res := d.extractor.Document(data, mime)
		metrics.Extractions.WithLabelValues(string(m.Kind), res.Kind.String()).Inc()
		if res.Kind == extract.NativelySupported {
			in.Fragments = append(in.Fragments, res.Fragment(data, mime))
		} else {
			in.DocumentText = res.Text
		}
		log.Info("dispatcher: document processed", "result", res.Kind)

	case bus.KindImage:
		res := d.extractor.Image(data, mime)
		in.Fragments = append(in.Fragments, res.Fragment)
		result := "inline"
		if res.HasQR {
			result = "qr"
			d.reply(ctx, log, id, fmt.Sprintf(d.texts.QRFoundFormat, res.QRValue))
			in.Directives = append(in.Directives, fmt.Sprintf(d.texts.QRDirectiveFormat, res.QRValue))
		}
		metrics.Extractions.WithLabelValues(string(m.Kind), result).Inc()

	default:
		in.Fragments = append(in.Fragments, content.Inline(data, mime))
		metrics.Extractions.WithLabelValues(string(m.Kind), "inline").Inc()
	}
	return nil
}

func (d *Dispatcher) rejectSize(ctx context.Context, log *slog.Logger, id bus.ConversationID, err error) error {
	var se *extract.SizeError
	if !errors.As(err, &se) {
		return err
	}
	metrics.Extractions.WithLabelValues(string(se.Kind), "too_large").Inc()
	log.Info("dispatcher: media too large", "limit", se.Limit)
	d.reply(ctx, log, id, fmt.Sprintf(d.texts.TooLargeFormat, se.Kind, se.Limit>>20))
	return errRejected
}

func (d *Dispatcher) rejectDocument(ctx context.Context, log *slog.Logger, id bus.ConversationID, mime string) error {
	metrics.Extractions.WithLabelValues(string(bus.KindDocument), "unsupported").Inc()
	log.Info("dispatcher: unsupported document type", "mime", mime)
	d.reply(ctx, log, id, fmt.Sprintf(d.texts.UnsupportedFormat, mime))
	return errRejected
}
