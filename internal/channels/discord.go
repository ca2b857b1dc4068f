package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/coopco/molebot/internal/bus"
)

func init() {
	Register("discord", newDiscordChannel)
}

// discordMaxMessage is Discord's per-message character limit.
const discordMaxMessage = 2000

type discordConfig struct {
	Token        string   `json:"token"`
	AllowedUsers []string `json:"allowedUsers"`
}

type DiscordChannel struct {
	session *discordgo.Session
	bus     *bus.MessageBus
	client  *http.Client
	allowed allowList
	botID   string
}

func newDiscordChannel(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error) {
	var dcfg discordConfig
	if err := json.Unmarshal(cfg, &dcfg); err != nil {
		return nil, fmt.Errorf("failed to parse discord config: %w", err)
	}
	session, err := discordgo.New("Bot " + dcfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	return &DiscordChannel{
		session: session,
		bus:     msgBus,
		client:  &http.Client{Timeout: 2 * time.Minute},
		allowed: newAllowList(dcfg.AllowedUsers),
	}, nil
}

func (c *DiscordChannel) Name() string { return "discord" }

func (c *DiscordChannel) Start(ctx context.Context) error {
	c.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		if !c.IsAllowed(m.Author.ID) {
			slog.Warn("discord: message from disallowed user", "userID", m.Author.ID)
			return
		}
		publish(ctx, c.bus, c.toInbound(m.Message))
	})
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord: failed to open websocket: %w", err)
	}
	if u := c.session.State.User; u != nil {
		c.botID = u.ID
	}
	return nil
}

func (c *DiscordChannel) Stop() error {
	return c.session.Close()
}

// toInbound normalizes a Discord message. Only the first attachment is used.
func (c *DiscordChannel) toInbound(m *discordgo.Message) bus.InboundMessage {
	kind, att := c.attachmentOf(m)
	in := bus.InboundMessage{
		ID: m.ID,
		Conversation: bus.ConversationID{
			Channel: "discord",
			ChatID:  m.ChannelID,
			Group:   m.GuildID != "",
		},
		BotID:      c.botID,
		Kind:       kind,
		Text:       normalizeMentions(m.Content),
		Attachment: att,
		ReceivedAt: m.Timestamp,
	}
	if m.Author != nil {
		in.SenderID = m.Author.ID
	}
	for _, u := range m.Mentions {
		in.Mentions = append(in.Mentions, u.ID)
	}
	if r := m.ReferencedMessage; r != nil {
		qkind, qatt := c.attachmentOf(r)
		q := &bus.Quote{Kind: qkind, Text: normalizeMentions(r.Content), Attachment: qatt}
		q.FromBot = r.Author != nil && c.botID != "" && r.Author.ID == c.botID
		in.Quote = q
		in.ReplyToBot = q.FromBot
	}
	return in
}

func (c *DiscordChannel) attachmentOf(m *discordgo.Message) (bus.Kind, *bus.Attachment) {
	if len(m.Attachments) == 0 {
		return bus.KindText, nil
	}
	a := m.Attachments[0]
	return mediaKind(a.ContentType), &bus.Attachment{
		MimeType: a.ContentType,
		FileName: a.Filename,
		Size:     int64(a.Size),
		Open:     httpOpener(c.client, a.URL, nil),
	}
}

// normalizeMentions rewrites <@id> and <@!id> to @id.
func normalizeMentions(s string) string {
	if !strings.Contains(s, "<@") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "<@")
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i:], '>')
		if j < 0 {
			break
		}
		b.WriteString(s[:i])
		b.WriteString("@" + strings.TrimPrefix(s[i+2:i+j], "!"))
		s = s[i+j+1:]
	}
	b.WriteString(s)
	return b.String()
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	opts := []discordgo.RequestOption{discordgo.WithContext(ctx)}
	switch msg.Type {
	case bus.TypePresence:
		if msg.Presence != bus.PresenceComposing {
			return nil
		}
		return c.session.ChannelTyping(msg.ChatID, opts...)

	case bus.TypeMedia:
		send := &discordgo.MessageSend{
			Content: msg.Content,
			Files: []*discordgo.File{{
				Name:        fileName(msg),
				ContentType: msg.MimeType,
				Reader:      bytes.NewReader(msg.Data),
			}},
		}
		if _, err := c.session.ChannelMessageSendComplex(msg.ChatID, send, opts...); err != nil {
			return fmt.Errorf("discord: failed to send file: %w", err)
		}
		return nil
	}

	for i, chunk := range splitMessage(msg.Content, discordMaxMessage) {
		send := &discordgo.MessageSend{Content: chunk}
		if i == 0 && msg.ReplyTo != "" {
			send.Reference = &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: msg.ChatID}
		}
		if _, err := c.session.ChannelMessageSendComplex(msg.ChatID, send, opts...); err != nil {
			return fmt.Errorf("discord: failed to send message: %w", err)
		}
	}
	return nil
}

// splitMessage cuts s into chunks of at most limit runes, preferring line
// breaks.
func splitMessage(s string, limit int) []string {
	var out []string
	for {
		r := []rune(s)
		if len(r) <= limit {
			return append(out, s)
		}
		cut := limit
		if i := strings.LastIndexByte(string(r[:limit]), '\n'); i > 0 {
			cut = len([]rune(string(r[:limit])[:i]))
		}
		out = append(out, string(r[:cut]))
		s = strings.TrimLeft(string(r[cut:]), "\n")
	}
}

func (c *DiscordChannel) IsAllowed(senderID string) bool {
	return c.allowed.allows(senderID)
}
