package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/coopco/molebot/internal/bus"
)

// Channel is the interface all chat platform channels must implement.
// Send covers text, media and presence; see bus.OutboundMessage.Type.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsAllowed(senderID string) bool
}

// ChannelFactory creates a Channel from JSON config and a MessageBus.
type ChannelFactory func(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error)

var registry = map[string]ChannelFactory{}

// Register adds a channel factory to the registry.
func Register(name string, factory ChannelFactory) {
	registry[name] = factory
}

// GetFactory returns the factory for a channel name.
func GetFactory(name string) (ChannelFactory, bool) {
	f, ok := registry[name]
	return f, ok
}

// RegisteredNames returns all registered channel names, sorted.
func RegisteredNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// allowList is the sender filter shared by all adapters. Empty allows all.
type allowList map[string]bool

func newAllowList(ids []string) allowList {
	a := make(allowList, len(ids))
	for _, id := range ids {
		a[id] = true
	}
	return a
}

func (a allowList) allows(id string) bool {
	return len(a) == 0 || a[id]
}

// publish hands msg to the bus, logging instead of failing the intake loop.
func publish(ctx context.Context, b *bus.MessageBus, msg bus.InboundMessage) {
	if err := b.PublishInbound(ctx, msg); err != nil {
		slog.Error("channel: publish inbound failed", "channel", msg.Conversation.Channel, "err", err)
	}
}

// httpOpener returns an Attachment.Open that GETs url with the given
// headers. The request only happens when the payload is actually read.
func httpOpener(client *http.Client, url string, header http.Header) func(ctx context.Context) (io.ReadCloser, error) {
	return func(ctx context.Context) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range header {
			req.Header[k] = v
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("download attachment: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("download attachment: status %d", resp.StatusCode)
		}
		return resp.Body, nil
	}
}

// mediaKind maps a mime type to the outbound rendering a platform offers.
func mediaKind(mimeType string) bus.Kind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return bus.KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return bus.KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return bus.KindAudio
	}
	return bus.KindDocument
}

// fileName returns msg.FileName or a name derived from its media kind.
func fileName(msg bus.OutboundMessage) string {
	if msg.FileName != "" {
		return msg.FileName
	}
	switch mediaKind(msg.MimeType) {
	case bus.KindImage:
		return "image"
	case bus.KindVideo:
		return "video"
	case bus.KindAudio:
		return "audio"
	}
	return "file"
}
