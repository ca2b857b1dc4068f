package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/coopco/molebot/internal/bus"
)

func init() {
	Register("whatsapp", newWhatsAppChannel)
}

const defaultGraphBaseURL = "https://graph.facebook.com/v21.0"

type whatsAppConfig struct {
	AccessToken   string   `json:"access_token"`
	PhoneNumberID string   `json:"phone_number_id"`
	PhoneNumber   string   `json:"phone_number"` // the bot's own number, for reply detection
	VerifyToken   string   `json:"verify_token"`
	WebhookPort   int      `json:"webhook_port"`
	GraphBaseURL  string   `json:"graph_base_url"`
	AllowedUsers  []string `json:"allowed_users"`
}

// WhatsAppChannel implements Channel for WhatsApp via the Cloud API (HTTP webhooks).
// The Cloud API has no group chats, so every conversation is one-to-one.
type WhatsAppChannel struct {
	accessToken   string
	phoneNumberID string
	phoneNumber   string
	verifyToken   string
	graphBaseURL  string
	bus           *bus.MessageBus
	allowed       allowList
	server        *http.Server
	client        *http.Client

	ctx context.Context

	// lastMessage holds the latest inbound message id per chat; the typing
	// indicator is attached to it.
	mu          sync.Mutex
	lastMessage map[string]string
}

func newWhatsAppChannel(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error) {
	var c whatsAppConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return nil, err
	}
	if c.WebhookPort == 0 {
		c.WebhookPort = 9005
	}
	if c.GraphBaseURL == "" {
		c.GraphBaseURL = defaultGraphBaseURL
	}
	return &WhatsAppChannel{
		accessToken:   c.AccessToken,
		phoneNumberID: c.PhoneNumberID,
		phoneNumber:   c.PhoneNumber,
		verifyToken:   c.VerifyToken,
		graphBaseURL:  strings.TrimRight(c.GraphBaseURL, "/"),
		bus:           msgBus,
		allowed:       newAllowList(c.AllowedUsers),
		server:        &http.Server{Addr: fmt.Sprintf(":%d", c.WebhookPort), ReadHeaderTimeout: 10 * time.Second},
		client:        &http.Client{Timeout: 2 * time.Minute},
		ctx:           context.Background(),
		lastMessage:   make(map[string]string),
	}, nil
}

func (c *WhatsAppChannel) Name() string { return "whatsapp" }

func (c *WhatsAppChannel) Start(ctx context.Context) error {
	c.ctx = ctx
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", c.handleWebhook)
	c.server.Handler = mux

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("whatsapp: server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	return nil
}

func (c *WhatsAppChannel) Stop() error {
	return c.server.Shutdown(context.Background())
}

func (c *WhatsAppChannel) handleWebhook(w http.ResponseWriter, r *http.Request) {
	// GET: webhook verification
	if r.Method == http.MethodGet {
		mode := r.URL.Query().Get("hub.mode")
		token := r.URL.Query().Get("hub.verify_token")
		challenge := r.URL.Query().Get("hub.challenge")
		if mode == "subscribe" && token == c.verifyToken {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, challenge)
		} else {
			w.WriteHeader(http.StatusForbidden)
		}
		return
	}

	// POST: incoming messages
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	if !gjson.ValidBytes(data) {
		http.Error(w, "parse error", http.StatusBadRequest)
		return
	}

	gjson.GetBytes(data, "entry").ForEach(func(_, entry gjson.Result) bool {
		entry.Get("changes").ForEach(func(_, change gjson.Result) bool {
			change.Get("value.messages").ForEach(func(_, m gjson.Result) bool {
				msg, ok := c.toInbound(m)
				if !ok {
					slog.Debug("whatsapp: unsupported message type ignored", "type", m.Get("type").String())
					return true
				}
				if !c.IsAllowed(msg.SenderID) {
					slog.Warn("whatsapp: message from disallowed user", "user", msg.SenderID)
					return true
				}
				c.mu.Lock()
				c.lastMessage[msg.Conversation.ChatID] = msg.ID
				c.mu.Unlock()
				publish(c.ctx, c.bus, msg)
				return true
			})
			return true
		})
		return true
	})
	w.WriteHeader(http.StatusOK)
}

// toInbound normalizes one webhook message. ok is false for types the
// relay does not handle (reactions, locations, stickers...).
func (c *WhatsAppChannel) toInbound(m gjson.Result) (bus.InboundMessage, bool) {
	from := m.Get("from").String()
	msg := bus.InboundMessage{
		ID:           m.Get("id").String(),
		Conversation: bus.ConversationID{Channel: "whatsapp", ChatID: from},
		SenderID:     from,
		BotID:        c.phoneNumber,
		ReceivedAt:   time.Unix(m.Get("timestamp").Int(), 0),
	}

	switch typ := m.Get("type").String(); typ {
	case "text":
		msg.Kind = bus.KindText
		msg.Text = m.Get("text.body").String()
	case "image", "video", "audio", "document":
		media := m.Get(typ)
		msg.Kind = bus.Kind(typ)
		msg.Text = media.Get("caption").String()
		msg.Attachment = &bus.Attachment{
			MimeType: media.Get("mime_type").String(),
			FileName: media.Get("filename").String(),
			Open:     c.mediaOpener(media.Get("id").String()),
		}
	default:
		return bus.InboundMessage{}, false
	}

	if ctxFrom := m.Get("context.from"); ctxFrom.Exists() {
		msg.ReplyToBot = c.phoneNumber != "" && ctxFrom.String() == c.phoneNumber
	}
	return msg, true
}

// mediaOpener resolves a media id to its download URL and then streams it.
// Both requests carry the access token.
func (c *WhatsAppChannel) mediaOpener(mediaID string) func(ctx context.Context) (io.ReadCloser, error) {
	return func(ctx context.Context) (io.ReadCloser, error) {
		meta, err := c.graph(ctx, http.MethodGet, "/"+mediaID, "", nil)
		if err != nil {
			return nil, fmt.Errorf("whatsapp: media lookup: %w", err)
		}
		url := gjson.GetBytes(meta, "url").String()
		if url == "" {
			return nil, fmt.Errorf("whatsapp: media %s has no url", mediaID)
		}
		return httpOpener(c.client, url, c.authHeader())(ctx)
	}
}

func (c *WhatsAppChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	switch msg.Type {
	case bus.TypePresence:
		return c.sendPresence(ctx, msg)
	case bus.TypeMedia:
		return c.sendMedia(ctx, msg)
	}

	body := c.newMessage(msg, "text")
	body, _ = sjson.SetBytes(body, "text.body", msg.Content)
	_, err := c.graph(ctx, http.MethodPost, "/"+c.phoneNumberID+"/messages", "application/json", body)
	if err != nil {
		return fmt.Errorf("whatsapp: send message: %w", err)
	}
	return nil
}

func (c *WhatsAppChannel) sendMedia(ctx context.Context, msg bus.OutboundMessage) error {
	id, err := c.upload(ctx, msg)
	if err != nil {
		return err
	}
	typ := string(mediaKind(msg.MimeType))
	body := c.newMessage(msg, typ)
	body, _ = sjson.SetBytes(body, typ+".id", id)
	if msg.Content != "" && typ != string(bus.KindAudio) {
		body, _ = sjson.SetBytes(body, typ+".caption", msg.Content)
	}
	if typ == string(bus.KindDocument) {
		body, _ = sjson.SetBytes(body, "document.filename", fileName(msg))
	}
	if _, err := c.graph(ctx, http.MethodPost, "/"+c.phoneNumberID+"/messages", "application/json", body); err != nil {
		return fmt.Errorf("whatsapp: send media: %w", err)
	}
	return nil
}

// upload stores the payload with the Graph API and returns its media id.
func (c *WhatsAppChannel) upload(ctx context.Context, msg bus.OutboundMessage) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("messaging_product", "whatsapp")
	mw.WriteField("type", msg.MimeType)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName(msg)))
	h.Set("Content-Type", msg.MimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(msg.Data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	resp, err := c.graph(ctx, http.MethodPost, "/"+c.phoneNumberID+"/media", mw.FormDataContentType(), buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("whatsapp: upload media: %w", err)
	}
	id := gjson.GetBytes(resp, "id").String()
	if id == "" {
		return "", fmt.Errorf("whatsapp: upload media: no id in response")
	}
	return id, nil
}

// sendPresence shows the typing indicator on the chat's latest message.
// Available is a no-op: the indicator clears when the reply lands.
func (c *WhatsAppChannel) sendPresence(ctx context.Context, msg bus.OutboundMessage) error {
	if msg.Presence != bus.PresenceComposing {
		return nil
	}
	c.mu.Lock()
	last := c.lastMessage[msg.ChatID]
	c.mu.Unlock()
	if last == "" {
		return nil
	}
	body := []byte(`{"messaging_product":"whatsapp","status":"read"}`)
	body, _ = sjson.SetBytes(body, "message_id", last)
	body, _ = sjson.SetBytes(body, "typing_indicator.type", "text")
	_, err := c.graph(ctx, http.MethodPost, "/"+c.phoneNumberID+"/messages", "application/json", body)
	return err
}

func (c *WhatsAppChannel) newMessage(msg bus.OutboundMessage, typ string) []byte {
	body := []byte(`{"messaging_product":"whatsapp","recipient_type":"individual"}`)
	body, _ = sjson.SetBytes(body, "to", msg.ChatID)
	body, _ = sjson.SetBytes(body, "type", typ)
	if msg.ReplyTo != "" {
		body, _ = sjson.SetBytes(body, "context.message_id", msg.ReplyTo)
	}
	return body
}

// graph performs an authenticated Graph API call and returns the body.
func (c *WhatsAppChannel) graph(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.graphBaseURL+path, rd)
	if err != nil {
		return nil, err
	}
	for k, v := range c.authHeader() {
		req.Header[k] = v
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, b)
	}
	return b, nil
}

func (c *WhatsAppChannel) authHeader() http.Header {
	return http.Header{"Authorization": {"Bearer " + c.accessToken}}
}

func (c *WhatsAppChannel) IsAllowed(senderID string) bool {
	return c.allowed.allows(senderID)
}
