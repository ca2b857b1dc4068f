package bus

import "context"

// Outbox publishes transport actions for a conversation onto the bus.
// The channel manager delivers them in publish order.
type Outbox struct {
	bus *MessageBus
}

func NewOutbox(b *MessageBus) *Outbox { return &Outbox{bus: b} }

func (o *Outbox) SendText(ctx context.Context, id ConversationID, text string) error {
	return o.bus.PublishOutbound(ctx, OutboundMessage{
		Channel: id.Channel,
		ChatID:  id.ChatID,
		Group:   id.Group,
		Type:    TypeText,
		Content: text,
	})
}

func (o *Outbox) SendMedia(ctx context.Context, id ConversationID, data []byte, mimeType, caption string) error {
	return o.bus.PublishOutbound(ctx, OutboundMessage{
		Channel:  id.Channel,
		ChatID:   id.ChatID,
		Group:    id.Group,
		Type:     TypeMedia,
		Content:  caption,
		Data:     data,
		MimeType: mimeType,
	})
}

func (o *Outbox) SetPresence(ctx context.Context, id ConversationID, p Presence) error {
	return o.bus.PublishOutbound(ctx, OutboundMessage{
		Channel:  id.Channel,
		ChatID:   id.ChatID,
		Group:    id.Group,
		Type:     TypePresence,
		Presence: p,
	})
}
