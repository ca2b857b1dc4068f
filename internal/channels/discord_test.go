package channels

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/coopco/molebot/internal/bus"
)

func TestDiscordGuildMention(t *testing.T) {
	c := &DiscordChannel{botID: "B1"}
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := c.toInbound(&discordgo.Message{
		ID:        "m1",
		ChannelID: "chan",
		GuildID:   "guild",
		Content:   "<@B1> /menu",
		Author:    &discordgo.User{ID: "U1"},
		Mentions:  []*discordgo.User{{ID: "B1"}},
		Timestamp: ts,
	})
	if !in.IsGroup() || in.SessionKey() != "discord:chan@g" {
		t.Errorf("key = %q", in.SessionKey())
	}
	if !in.MentionsBot() {
		t.Error("expected bot mention")
	}
	if got := in.StripMention(); got != "/menu" {
		t.Errorf("StripMention = %q", got)
	}
	if !in.ReceivedAt.Equal(ts) {
		t.Errorf("ReceivedAt = %v", in.ReceivedAt)
	}
}

func TestDiscordDMAttachmentAndReply(t *testing.T) {
	c := &DiscordChannel{botID: "B1"}
	in := c.toInbound(&discordgo.Message{
		ID:        "m2",
		ChannelID: "dm",
		Content:   "what is this",
		Author:    &discordgo.User{ID: "U1"},
		Attachments: []*discordgo.MessageAttachment{
			{Filename: "cat.png", ContentType: "image/png", Size: 512, URL: "http://cdn.invalid/cat.png"},
		},
		ReferencedMessage: &discordgo.Message{Author: &discordgo.User{ID: "B1"}, Content: "earlier answer"},
	})
	if in.IsGroup() {
		t.Error("DM should not be a group")
	}
	if in.Kind != bus.KindImage || in.Attachment == nil || in.Attachment.Size != 512 {
		t.Fatalf("kind %q attachment %+v", in.Kind, in.Attachment)
	}
	if !in.ReplyToBot || in.Quote.Text != "earlier answer" {
		t.Errorf("quote = %+v", in.Quote)
	}
}
