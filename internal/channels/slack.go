package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/tidwall/gjson"

	"github.com/coopco/molebot/internal/bus"
)

func init() {
	Register("slack", newSlackChannel)
}

type slackConfig struct {
	BotToken     string   `json:"botToken"`
	AppToken     string   `json:"appToken"`
	AllowedUsers []string `json:"allowedUsers"`
}

// SlackChannel implements Channel for Slack via socket mode.
type SlackChannel struct {
	client       *slack.Client
	socketClient *socketmode.Client
	bus          *bus.MessageBus
	http         *http.Client
	botToken     string
	allowed      allowList
	botID        string
}

func newSlackChannel(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error) {
	var c slackConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return nil, err
	}
	client := slack.New(c.BotToken, slack.OptionAppLevelToken(c.AppToken))
	socketClient := socketmode.New(client)
	return &SlackChannel{
		client:       client,
		socketClient: socketClient,
		bus:          msgBus,
		http:         &http.Client{Timeout: 2 * time.Minute},
		botToken:     c.BotToken,
		allowed:      newAllowList(c.AllowedUsers),
	}, nil
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Start(ctx context.Context) error {
	auth, err := c.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	c.botID = auth.UserID

	go func() {
		for evt := range c.socketClient.Events {
			if evt.Request == nil {
				continue
			}
			c.socketClient.Ack(*evt.Request)
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			eventsAPI, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok || eventsAPI.Type != slackevents.CallbackEvent {
				continue
			}
			inner, ok := eventsAPI.InnerEvent.Data.(*slackevents.MessageEvent)
			if !ok {
				continue
			}
			// skip bot messages and edits
			if inner.BotID != "" || (inner.SubType != "" && inner.SubType != "file_share") {
				continue
			}
			if !c.IsAllowed(inner.User) {
				slog.Warn("slack: message from disallowed user", "user", inner.User)
				continue
			}
			publish(ctx, c.bus, c.toInbound(inner, evt.Request.Payload))
		}
	}()

	go func() {
		if err := c.socketClient.RunContext(ctx); err != nil && ctx.Err() == nil {
			slog.Error("slack: socket mode stopped", "err", err)
		}
	}()
	return nil
}

func (c *SlackChannel) Stop() error { return nil }

// toInbound normalizes a message event. Files are read from the raw
// envelope; only the first one is used.
func (c *SlackChannel) toInbound(ev *slackevents.MessageEvent, payload json.RawMessage) bus.InboundMessage {
	in := bus.InboundMessage{
		ID: ev.TimeStamp,
		Conversation: bus.ConversationID{
			Channel: "slack",
			ChatID:  ev.Channel,
			Group:   ev.ChannelType != "im",
		},
		SenderID:   ev.User,
		BotID:      c.botID,
		Kind:       bus.KindText,
		Text:       normalizeMentions(ev.Text),
		ReceivedAt: slackTime(ev.TimeStamp),
	}

	if f := gjson.GetBytes(payload, "event.files.0"); f.Exists() {
		mime := f.Get("mimetype").String()
		auth := http.Header{"Authorization": {"Bearer " + c.botToken}}
		in.Kind = mediaKind(mime)
		in.Attachment = &bus.Attachment{
			MimeType: mime,
			FileName: f.Get("name").String(),
			Size:     f.Get("size").Int(),
			Open:     httpOpener(c.http, f.Get("url_private_download").String(), auth),
		}
	}
	return in
}

func slackTime(ts string) time.Time {
	sec, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0)
}

// Send posts text or uploads media. Slack exposes no typing indicator to
// bots, so presence is a no-op.
func (c *SlackChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	switch msg.Type {
	case bus.TypePresence:
		return nil

	case bus.TypeMedia:
		_, err := c.client.UploadFileContext(ctx, slack.UploadFileParameters{
			Channel:         msg.ChatID,
			Filename:        fileName(msg),
			FileSize:        len(msg.Data),
			Reader:          bytes.NewReader(msg.Data),
			InitialComment:  msg.Content,
			ThreadTimestamp: msg.ReplyTo,
		})
		if err != nil {
			return fmt.Errorf("slack: upload file: %w", err)
		}
		return nil
	}

	opts := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}
	if msg.ReplyTo != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ReplyTo))
	}
	if _, _, err := c.client.PostMessageContext(ctx, msg.ChatID, opts...); err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

func (c *SlackChannel) IsAllowed(senderID string) bool {
	return c.allowed.allows(senderID)
}
