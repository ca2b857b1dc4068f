package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coopco/molebot/internal/bus"
)

// DefaultSendTimeout bounds a single outbound delivery.
const DefaultSendTimeout = 60 * time.Second

type Manager struct {
	channels    []Channel
	bus         *bus.MessageBus
	sendTimeout time.Duration
	mu          sync.Mutex

	// ctx is the lifetime of outbound deliveries, set by StartAll.
	ctx context.Context
}

func NewManager(msgBus *bus.MessageBus) *Manager {
	m := &Manager{bus: msgBus, sendTimeout: DefaultSendTimeout, ctx: context.Background()}
	m.setupOutboundDispatch()
	return m
}

// SetSendTimeout overrides DefaultSendTimeout. Non-positive values are ignored.
func (m *Manager) SetSendTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.sendTimeout = d
	m.mu.Unlock()
}

// AddChannel creates and adds a channel from config.
func (m *Manager) AddChannel(name string, cfgJSON json.RawMessage) error {
	factory, ok := GetFactory(name)
	if !ok {
		return fmt.Errorf("no factory registered for channel %q", name)
	}
	ch, err := factory(cfgJSON, m.bus)
	if err != nil {
		return fmt.Errorf("failed to create channel %q: %w", name, err)
	}
	m.mu.Lock()
	m.channels = append(m.channels, ch)
	m.mu.Unlock()
	return nil
}

// Names returns the names of the added channels in insertion order.
func (m *Manager) Names() []string {
	chs := m.snapshot()
	names := make([]string, len(chs))
	for i, ch := range chs {
		names[i] = ch.Name()
	}
	return names
}

// StartAll starts all added channels. Deliveries made afterwards run under ctx.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	for _, ch := range m.snapshot() {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("failed to start channel %q: %w", ch.Name(), err)
		}
		slog.Info("channel started", "channel", ch.Name())
	}
	return nil
}

// StopAll stops all channels.
func (m *Manager) StopAll() error {
	var firstErr error
	for _, ch := range m.snapshot() {
		if err := ch.Stop(); err != nil {
			slog.Error("failed to stop channel", "channel", ch.Name(), "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Manager) snapshot() []Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	chs := make([]Channel, len(m.channels))
	copy(chs, m.channels)
	return chs
}

// setupOutboundDispatch subscribes to outbound messages and routes to channels.
func (m *Manager) setupOutboundDispatch() {
	m.bus.Subscribe("", func(msg bus.OutboundMessage) {
		m.mu.Lock()
		base, timeout := m.ctx, m.sendTimeout
		m.mu.Unlock()

		for _, ch := range m.snapshot() {
			if ch.Name() != msg.Channel {
				continue
			}
			ctx, cancel := context.WithTimeout(base, timeout)
			err := ch.Send(ctx, msg)
			cancel()
			if err != nil {
				slog.Error("failed to send message", "channel", ch.Name(), "chat", msg.ChatID, "type", msg.Type, "err", err)
			}
			return
		}
		slog.Warn("outbound message for unknown channel", "channel", msg.Channel, "type", msg.Type)
	})
}
