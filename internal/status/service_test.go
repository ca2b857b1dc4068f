package status

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/coopco/molebot/internal/bus"
)

type fakeSender struct {
	sent chan string
	err  error
}

func (f *fakeSender) Text(_ context.Context, id bus.ConversationID, text string) error {
	f.sent <- id.Key() + "|" + text
	return f.err
}

type fixedCount int

func (n fixedCount) Len() int { return int(n) }

var target = bus.ConversationID{Channel: "whatsapp", ChatID: "628123"}

func newTestService(t *testing.T, sender Sender, onStart bool) *Service {
	t.Helper()
	s, err := NewService(Config{
		Target:      target,
		Schedule:    "@every 2m",
		Sender:      sender,
		Sessions:    fixedCount(3),
		DefaultMode: "Mole 2.5-flash",
		SendOnStart: onStart,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	s.now = func() time.Time { return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) }
	return s
}

func TestToCronExpr(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2m", "@every 2m0s", false},
		{"@every 2m", "@every 2m", false},
		{"14:30", "30 14 * * *", false},
		{"0 */2 * * *", "0 */2 * * *", false},
		{"25:00", "", true},
		{"-1m", "", true},
		{"", "", true},
		{"whenever", "", true},
	}
	for _, tt := range tests {
		got, err := ToCronExpr(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ToCronExpr(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ToCronExpr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMessage(t *testing.T) {
	s := newTestService(t, &fakeSender{sent: make(chan string, 1)}, false)
	msg := s.Message()
	for _, want := range []string{
		"STATUS REPORT",
		"*Report time:* Monday, 2 March 2026 09:30:00 UTC",
		"*Default mode:* Mole 2.5-flash",
		"*Active sessions:* 3",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestNewServiceErrors(t *testing.T) {
	sender := &fakeSender{sent: make(chan string, 1)}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no sender", Config{Target: target, Schedule: "2m", Sessions: fixedCount(0)}},
		{"no target", Config{Schedule: "2m", Sender: sender, Sessions: fixedCount(0)}},
		{"bad schedule", Config{Target: target, Schedule: "nope", Sender: sender, Sessions: fixedCount(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRunSendsOnStartAndStops(t *testing.T) {
	sender := &fakeSender{sent: make(chan string, 1), err: errors.New("offline")}
	s := newTestService(t, sender, true)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case got := <-sender.sent:
		if !strings.HasPrefix(got, "whatsapp:628123|") {
			t.Errorf("sent to %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no report sent on start")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
