package bus

import (
	"context"
	"io"
	"regexp"
	"slices"
	"strings"
	"time"
)

// groupSuffix marks a conversation key as belonging to a group chat.
const groupSuffix = "@g"

// ConversationID identifies a one-to-one or group conversation on a channel.
type ConversationID struct {
	Channel string
	ChatID  string
	Group   bool
}

// Key returns the routing key used by the session and rate stores.
// Group conversations carry the reserved "@g" suffix.
func (c ConversationID) Key() string {
	k := c.Channel + ":" + c.ChatID
	if c.Group {
		k += groupSuffix
	}
	return k
}

func (c ConversationID) String() string { return c.Key() }

// ParseConversationID is the inverse of Key.
func ParseConversationID(key string) (ConversationID, bool) {
	channel, chat, ok := strings.Cut(key, ":")
	if !ok || channel == "" || chat == "" {
		return ConversationID{}, false
	}
	id := ConversationID{Channel: channel, ChatID: chat}
	if rest, found := strings.CutSuffix(chat, groupSuffix); found {
		id.ChatID = rest
		id.Group = true
	}
	return id, true
}

// Kind is the declared content kind of an inbound message.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindDocument Kind = "document"
)

// IsMedia reports whether the kind carries a binary attachment.
func (k Kind) IsMedia() bool {
	switch k {
	case KindImage, KindVideo, KindAudio, KindDocument:
		return true
	}
	return false
}

// Attachment describes a media payload without loading it.
type Attachment struct {
	MimeType string
	FileName string
	Size     int64 // declared byte length, 0 when unknown

	// Open streams the payload. Channels fetch lazily so that size checks
	// can run before any bytes are transferred.
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// Quote is the replied-to message, when the platform exposes one.
type Quote struct {
	Kind       Kind
	Text       string
	FromBot    bool
	Attachment *Attachment
}

// InboundMessage is one unit of work received from a channel. Adapters
// build it once at intake; downstream code never probes platform payloads.
type InboundMessage struct {
	ID           string
	Conversation ConversationID
	SenderID     string
	BotID        string // the bot's own id on this channel, for mention checks
	Kind         Kind
	Text         string // body or caption
	Attachment   *Attachment
	Quote        *Quote
	Mentions     []string // ids mentioned via structured metadata
	ReplyToBot   bool
	ReceivedAt   time.Time
	Metadata     map[string]string
}

// SessionKey returns the conversation routing key.
func (m InboundMessage) SessionKey() string { return m.Conversation.Key() }

// IsGroup reports whether the message came from a group conversation.
func (m InboundMessage) IsGroup() bool { return m.Conversation.Group }

// MentionsBot reports whether the message addresses the bot through
// structured mentions, a reply to one of its messages, or a literal @id.
func (m InboundMessage) MentionsBot() bool {
	if m.BotID == "" {
		return false
	}
	if m.ReplyToBot || (m.Quote != nil && m.Quote.FromBot) {
		return true
	}
	if slices.ContainsFunc(m.Mentions, func(id string) bool { return strings.EqualFold(id, m.BotID) }) {
		return true
	}
	return strings.Contains(strings.ToLower(m.Text), "@"+strings.ToLower(m.BotID))
}

// StripMention removes the literal @botid from the text, ignoring case.
func (m InboundMessage) StripMention() string {
	if m.BotID == "" {
		return strings.TrimSpace(m.Text)
	}
	re := regexp.MustCompile("(?i)@" + regexp.QuoteMeta(m.BotID))
	return strings.TrimSpace(re.ReplaceAllString(m.Text, ""))
}

// Media is the media payload selected for a message.
type Media struct {
	Kind       Kind
	Attachment *Attachment
	Quoted     bool
}

// ResolveMedia picks the media to process: the message's own attachment
// when it has one, otherwise the quoted message's attachment.
func (m InboundMessage) ResolveMedia() (Media, bool) {
	if m.Kind.IsMedia() && m.Attachment != nil {
		return Media{Kind: m.Kind, Attachment: m.Attachment}, true
	}
	if q := m.Quote; q != nil && q.Kind.IsMedia() && q.Attachment != nil {
		return Media{Kind: q.Kind, Attachment: q.Attachment, Quoted: true}, true
	}
	return Media{}, false
}

// OutboundType selects how a channel renders an outbound message.
type OutboundType string

const (
	TypeText     OutboundType = "text"
	TypeMedia    OutboundType = "media"
	TypePresence OutboundType = "presence"
)

// Presence is the typing indicator state.
type Presence string

const (
	PresenceComposing Presence = "composing"
	PresenceAvailable Presence = "available"
)

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel  string
	ChatID   string
	Group    bool
	Type     OutboundType
	Content  string // text body, or caption for media
	Data     []byte
	MimeType string
	FileName string
	Presence Presence
	ReplyTo  string
	Metadata map[string]string
}

// Conversation returns the id the message is addressed to.
func (m OutboundMessage) Conversation() ConversationID {
	return ConversationID{Channel: m.Channel, ChatID: m.ChatID, Group: m.Group}
}
