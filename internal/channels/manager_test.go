package channels

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/coopco/molebot/internal/bus"
)

// mockChannel is a test double for Channel.
type mockChannel struct {
	name     string
	sent     chan bus.OutboundMessage
	started  bool
	startErr error
	deadline bool
}

func newMockChannel(name string) *mockChannel {
	return &mockChannel{name: name, sent: make(chan bus.OutboundMessage, 16)}
}

func (m *mockChannel) Name() string { return m.name }
func (m *mockChannel) Start(_ context.Context) error {
	m.started = true
	return m.startErr
}
func (m *mockChannel) Stop() error { return nil }
func (m *mockChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	_, m.deadline = ctx.Deadline()
	m.sent <- msg
	return nil
}
func (m *mockChannel) IsAllowed(_ string) bool { return true }

func (m *mockChannel) next(t *testing.T) bus.OutboundMessage {
	t.Helper()
	select {
	case msg := <-m.sent:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound message")
		return bus.OutboundMessage{}
	}
}

func addMock(t *testing.T, mgr *Manager, mock *mockChannel) {
	t.Helper()
	Register(mock.name, func(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error) {
		return mock, nil
	})
	if err := mgr.AddChannel(mock.name, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("AddChannel: %v", err)
	}
}

func TestRegisterAndGetFactory(t *testing.T) {
	const name = "test-channel-reg"
	Register(name, func(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error) {
		return newMockChannel(name), nil
	})

	factory, ok := GetFactory(name)
	if !ok {
		t.Fatalf("expected factory for %q to be registered", name)
	}
	if factory == nil {
		t.Fatal("expected non-nil factory")
	}
}

func TestManagerAddChannel(t *testing.T) {
	mgr := NewManager(bus.NewMessageBus(16))
	addMock(t, mgr, newMockChannel("test-channel-add"))

	if names := mgr.Names(); !slices.Equal(names, []string{"test-channel-add"}) {
		t.Fatalf("Names = %v", names)
	}
}

func TestAddChannelUnknown(t *testing.T) {
	mgr := NewManager(bus.NewMessageBus(16))
	if err := mgr.AddChannel("no-such-channel-xyz", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for unknown channel name")
	}
}

func TestAddChannelFactoryError(t *testing.T) {
	const name = "test-factory-error"
	Register(name, func(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error) {
		return nil, errors.New("bad config")
	})
	mgr := NewManager(bus.NewMessageBus(16))
	if err := mgr.AddChannel(name, json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected factory error to propagate")
	}
}

func TestStartAllAndStopAll(t *testing.T) {
	mock := newMockChannel("test-start-stop")
	mgr := NewManager(bus.NewMessageBus(16))
	addMock(t, mgr, mock)

	if err := mgr.StartAll(t.Context()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if !mock.started {
		t.Error("expected channel to be started")
	}
	if err := mgr.StopAll(); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
}

func TestStartAllError(t *testing.T) {
	mock := newMockChannel("test-start-error")
	mock.startErr = errors.New("no token")
	mgr := NewManager(bus.NewMessageBus(16))
	addMock(t, mgr, mock)

	if err := mgr.StartAll(t.Context()); err == nil {
		t.Fatal("expected start error")
	}
}

func TestStartStopEmpty(t *testing.T) {
	mgr := NewManager(bus.NewMessageBus(16))
	if err := mgr.StartAll(t.Context()); err != nil {
		t.Fatalf("StartAll on empty manager: %v", err)
	}
	if err := mgr.StopAll(); err != nil {
		t.Fatalf("StopAll on empty manager: %v", err)
	}
}

func TestOutboundDispatchViaBus(t *testing.T) {
	mock := newMockChannel("test-bus-dispatch")
	msgBus := bus.NewMessageBus(16)
	mgr := NewManager(msgBus)
	addMock(t, mgr, mock)

	ctx := t.Context()
	go msgBus.DispatchOutbound(ctx)

	out := bus.NewOutbox(msgBus)
	id := bus.ConversationID{Channel: mock.name, ChatID: "42"}
	if err := out.SetPresence(ctx, id, bus.PresenceComposing); err != nil {
		t.Fatal(err)
	}
	if err := out.SendText(ctx, id, "dispatched"); err != nil {
		t.Fatal(err)
	}
	if err := out.SendMedia(ctx, id, []byte("png"), "image/png", "cap"); err != nil {
		t.Fatal(err)
	}

	got := []bus.OutboundMessage{mock.next(t), mock.next(t), mock.next(t)}
	if got[0].Type != bus.TypePresence || got[0].Presence != bus.PresenceComposing {
		t.Errorf("first = %+v, want composing presence", got[0])
	}
	if got[1].Type != bus.TypeText || got[1].Content != "dispatched" || got[1].ChatID != "42" {
		t.Errorf("second = %+v", got[1])
	}
	if got[2].Type != bus.TypeMedia || got[2].MimeType != "image/png" || got[2].Content != "cap" {
		t.Errorf("third = %+v", got[2])
	}
	if !mock.deadline {
		t.Error("expected deliveries to run with a deadline")
	}
}

func TestOutboundDispatchWrongChannel(t *testing.T) {
	mock := newMockChannel("test-wrong-channel")
	msgBus := bus.NewMessageBus(16)
	mgr := NewManager(msgBus)
	addMock(t, mgr, mock)

	ctx := t.Context()
	go msgBus.DispatchOutbound(ctx)

	msgBus.PublishOutbound(ctx, bus.OutboundMessage{Channel: "other-channel", Type: bus.TypeText, Content: "nope"})
	msgBus.PublishOutbound(ctx, bus.OutboundMessage{Channel: mock.name, Type: bus.TypeText, Content: "sentinel"})

	if got := mock.next(t); got.Content != "sentinel" {
		t.Errorf("expected only the sentinel, got %q", got.Content)
	}
}
