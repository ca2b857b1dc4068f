package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/coopco/molebot/internal/bus"
)

func init() {
	Register("telegram", newTelegramChannel)
}

type telegramConfig struct {
	Token        string   `json:"token"`
	APIEndpoint  string   `json:"apiEndpoint"`
	AllowedUsers []string `json:"allowedUsers"`
}

type TelegramChannel struct {
	bot     *tgbotapi.BotAPI
	bus     *bus.MessageBus
	client  *http.Client
	allowed allowList
	stopCh  chan struct{}

	// botID is the bot's username, botUserID its numeric id.
	botID     string
	botUserID int64

	// fileURL resolves a file id to a download URL; nil uses the bot API.
	fileURL func(fileID string) (string, error)
}

func newTelegramChannel(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error) {
	var tcfg telegramConfig
	if err := json.Unmarshal(cfg, &tcfg); err != nil {
		return nil, fmt.Errorf("failed to parse telegram config: %w", err)
	}
	if tcfg.APIEndpoint == "" {
		tcfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(tcfg.Token, tcfg.APIEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramChannel{
		bot:       bot,
		bus:       msgBus,
		client:    &http.Client{Timeout: 2 * time.Minute},
		allowed:   newAllowList(tcfg.AllowedUsers),
		stopCh:    make(chan struct{}),
		botID:     bot.Self.UserName,
		botUserID: bot.Self.ID,
	}, nil
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				msg := update.Message
				if msg == nil || msg.From == nil {
					continue
				}
				senderID := strconv.FormatInt(msg.From.ID, 10)
				if !c.IsAllowed(senderID) {
					slog.Warn("telegram: message from disallowed user", "senderID", senderID)
					continue
				}
				publish(ctx, c.bus, c.toInbound(msg))
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case <-c.stopCh:
				c.bot.StopReceivingUpdates()
				return
			}
		}
	}()
	return nil
}

func (c *TelegramChannel) Stop() error {
	close(c.stopCh)
	return nil
}

// toInbound normalizes a Telegram message. Attachments are not downloaded.
func (c *TelegramChannel) toInbound(m *tgbotapi.Message) bus.InboundMessage {
	kind, att := c.mediaOf(m)
	text := m.Text
	entities := m.Entities
	if kind != bus.KindText {
		text = m.Caption
		entities = m.CaptionEntities
	}

	in := bus.InboundMessage{
		ID: strconv.Itoa(m.MessageID),
		Conversation: bus.ConversationID{
			Channel: "telegram",
			ChatID:  strconv.FormatInt(m.Chat.ID, 10),
			Group:   !m.Chat.IsPrivate(),
		},
		BotID:      c.botID,
		Kind:       kind,
		Text:       text,
		Attachment: att,
		Mentions:   mentions(text, entities),
		ReceivedAt: m.Time(),
	}
	if m.From != nil {
		in.SenderID = strconv.FormatInt(m.From.ID, 10)
	}

	if r := m.ReplyToMessage; r != nil {
		qkind, qatt := c.mediaOf(r)
		q := &bus.Quote{Kind: qkind, Text: r.Text, Attachment: qatt}
		if qkind != bus.KindText {
			q.Text = r.Caption
		}
		q.FromBot = r.From != nil && r.From.ID == c.botUserID
		in.Quote = q
		in.ReplyToBot = q.FromBot
	}
	return in
}

// mediaOf returns the message's declared kind and its lazy attachment.
func (c *TelegramChannel) mediaOf(m *tgbotapi.Message) (bus.Kind, *bus.Attachment) {
	switch {
	case len(m.Photo) > 0:
		p := m.Photo[len(m.Photo)-1] // largest size comes last
		return bus.KindImage, c.attachment(p.FileID, "image/jpeg", "", int64(p.FileSize))
	case m.Video != nil:
		return bus.KindVideo, c.attachment(m.Video.FileID, or(m.Video.MimeType, "video/mp4"), m.Video.FileName, int64(m.Video.FileSize))
	case m.VideoNote != nil:
		return bus.KindVideo, c.attachment(m.VideoNote.FileID, "video/mp4", "", int64(m.VideoNote.FileSize))
	case m.Voice != nil:
		return bus.KindAudio, c.attachment(m.Voice.FileID, or(m.Voice.MimeType, "audio/ogg"), "", int64(m.Voice.FileSize))
	case m.Audio != nil:
		return bus.KindAudio, c.attachment(m.Audio.FileID, or(m.Audio.MimeType, "audio/mpeg"), m.Audio.FileName, int64(m.Audio.FileSize))
	case m.Document != nil:
		return bus.KindDocument, c.attachment(m.Document.FileID, m.Document.MimeType, m.Document.FileName, int64(m.Document.FileSize))
	}
	return bus.KindText, nil
}

func (c *TelegramChannel) attachment(fileID, mimeType, name string, size int64) *bus.Attachment {
	return &bus.Attachment{
		MimeType: mimeType,
		FileName: name,
		Size:     size,
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			resolve := c.fileURL
			if resolve == nil {
				resolve = c.bot.GetFileDirectURL
			}
			url, err := resolve(fileID)
			if err != nil {
				return nil, fmt.Errorf("telegram: resolve file: %w", err)
			}
			return httpOpener(c.client, url, nil)(ctx)
		},
	}
}

// mentions extracts mentioned usernames. Entity offsets count UTF-16 units.
func mentions(text string, entities []tgbotapi.MessageEntity) []string {
	if len(entities) == 0 {
		return nil
	}
	units := utf16.Encode([]rune(text))
	var out []string
	for _, e := range entities {
		switch e.Type {
		case "mention":
			end := e.Offset + e.Length
			if e.Offset < 0 || end > len(units) || e.Length < 2 {
				continue
			}
			out = append(out, string(utf16.Decode(units[e.Offset+1:end])))
		case "text_mention":
			if e.User != nil {
				if e.User.UserName != "" {
					out = append(out, e.User.UserName)
				} else {
					out = append(out, strconv.FormatInt(e.User.ID, 10))
				}
			}
		}
	}
	return out
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chatID %q: %w", msg.ChatID, err)
	}

	switch msg.Type {
	case bus.TypePresence:
		if msg.Presence != bus.PresenceComposing {
			return nil // typing expires on its own
		}
		_, err := c.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
		return err

	case bus.TypeMedia:
		_, err := c.bot.Send(telegramMedia(chatID, msg))
		return err
	}

	m := tgbotapi.NewMessage(chatID, msg.Content)
	m.ParseMode = tgbotapi.ModeMarkdown
	if id, err := strconv.Atoi(msg.ReplyTo); err == nil {
		m.ReplyToMessageID = id
	}
	if _, err := c.bot.Send(m); err != nil {
		// Model output is not guaranteed to be valid Markdown.
		slog.Warn("telegram: markdown send failed, retrying as plain text", "err", err)
		m.ParseMode = ""
		_, err = c.bot.Send(m)
		return err
	}
	return nil
}

func telegramMedia(chatID int64, msg bus.OutboundMessage) tgbotapi.Chattable {
	file := tgbotapi.FileBytes{Name: fileName(msg), Bytes: msg.Data}
	switch mediaKind(msg.MimeType) {
	case bus.KindImage:
		p := tgbotapi.NewPhoto(chatID, file)
		p.Caption, p.ParseMode = msg.Content, tgbotapi.ModeMarkdown
		return p
	case bus.KindVideo:
		v := tgbotapi.NewVideo(chatID, file)
		v.Caption, v.ParseMode = msg.Content, tgbotapi.ModeMarkdown
		return v
	case bus.KindAudio:
		a := tgbotapi.NewAudio(chatID, file)
		a.Caption, a.ParseMode = msg.Content, tgbotapi.ModeMarkdown
		return a
	}
	d := tgbotapi.NewDocument(chatID, file)
	d.Caption, d.ParseMode = msg.Content, tgbotapi.ModeMarkdown
	return d
}

func (c *TelegramChannel) IsAllowed(senderID string) bool {
	return c.allowed.allows(senderID)
}

func or(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
