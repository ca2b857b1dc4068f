package bus

import "testing"

func TestConversationKey(t *testing.T) {
	tests := []struct {
		name string
		id   ConversationID
		want string
	}{
		{"direct", ConversationID{Channel: "telegram", ChatID: "123"}, "telegram:123"},
		{"group", ConversationID{Channel: "whatsapp", ChatID: "999", Group: true}, "whatsapp:999@g"},
		{"empty", ConversationID{}, ":"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.id.Key(); got != tc.want {
				t.Errorf("Key() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseConversationID(t *testing.T) {
	for _, id := range []ConversationID{
		{Channel: "telegram", ChatID: "123"},
		{Channel: "whatsapp", ChatID: "6281", Group: true},
	} {
		got, ok := ParseConversationID(id.Key())
		if !ok || got != id {
			t.Errorf("ParseConversationID(%q) = %+v, %v", id.Key(), got, ok)
		}
	}
	if _, ok := ParseConversationID("nochannel"); ok {
		t.Error("expected failure for key without separator")
	}
}

func TestMentionsBot(t *testing.T) {
	tests := []struct {
		name string
		msg  InboundMessage
		want bool
	}{
		{"no bot id", InboundMessage{Text: "@bot hi"}, false},
		{"structured mention", InboundMessage{BotID: "bot", Mentions: []string{"u1", "bot"}}, true},
		{"reply to bot", InboundMessage{BotID: "bot", ReplyToBot: true}, true},
		{"quote from bot", InboundMessage{BotID: "bot", Quote: &Quote{FromBot: true}}, true},
		{"literal mention", InboundMessage{BotID: "bot", Text: "hey @bot what"}, true},
		{"structured mention other case", InboundMessage{BotID: "molebot", Mentions: []string{"MoleBot"}}, true},
		{"literal mention other case", InboundMessage{BotID: "molebot", Text: "@MoleBot hi"}, true},
		{"none", InboundMessage{BotID: "bot", Text: "/menu"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.msg.MentionsBot(); got != tc.want {
				t.Errorf("MentionsBot() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStripMention(t *testing.T) {
	m := InboundMessage{BotID: "628123", Text: "@628123 summarize this "}
	if got := m.StripMention(); got != "summarize this" {
		t.Errorf("StripMention() = %q", got)
	}
	m = InboundMessage{BotID: "molebot", Text: "@MoleBot what is this"}
	if got := m.StripMention(); got != "what is this" {
		t.Errorf("StripMention() = %q", got)
	}
}

func TestResolveMedia(t *testing.T) {
	own := &Attachment{MimeType: "image/png"}
	quoted := &Attachment{MimeType: "application/pdf"}

	tests := []struct {
		name       string
		msg        InboundMessage
		wantOK     bool
		wantKind   Kind
		wantQuoted bool
	}{
		{"text only", InboundMessage{Kind: KindText}, false, "", false},
		{"own media", InboundMessage{Kind: KindImage, Attachment: own}, true, KindImage, false},
		{"own media wins over quote", InboundMessage{Kind: KindImage, Attachment: own, Quote: &Quote{Kind: KindDocument, Attachment: quoted}}, true, KindImage, false},
		{"falls back to quote", InboundMessage{Kind: KindText, Quote: &Quote{Kind: KindDocument, Attachment: quoted}}, true, KindDocument, true},
		{"quoted text ignored", InboundMessage{Kind: KindText, Quote: &Quote{Kind: KindText, Text: "x"}}, false, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.msg.ResolveMedia()
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if got.Kind != tc.wantKind || got.Quoted != tc.wantQuoted {
				t.Errorf("got %+v", got)
			}
		})
	}
}
