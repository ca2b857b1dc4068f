package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when publishing to a closed bus.
var ErrClosed = errors.New("bus: closed")

// MessageBus is a hub-and-spoke message bus using Go channels.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
	subs     map[string][]func(OutboundMessage) // channel name -> subscribers
	mu       sync.RWMutex

	closeMu sync.RWMutex // held for reading while publishing
	closed  bool
}

// NewMessageBus creates a new MessageBus with the given buffer size.
// If bufSize is 0, defaults to 100.
func NewMessageBus(bufSize int) *MessageBus {
	if bufSize <= 0 {
		bufSize = 100
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, bufSize),
		outbound: make(chan OutboundMessage, bufSize),
		subs:     make(map[string][]func(OutboundMessage)),
	}
}

// PublishInbound sends an inbound message onto the bus, blocking while the
// buffer is full until ctx is done.
func (b *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) error {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	select {
	case b.inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishOutbound sends an outbound message onto the bus.
func (b *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	select {
	case b.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsumeInbound blocks until an inbound message is available or ctx is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, error) {
	select {
	case msg, ok := <-b.inbound:
		if !ok {
			return InboundMessage{}, ErrClosed
		}
		return msg, nil
	case <-ctx.Done():
		return InboundMessage{}, ctx.Err()
	}
}

// Subscribe registers fn to receive outbound messages for the given channel.
// An empty channel string subscribes to ALL channels.
func (b *MessageBus) Subscribe(channel string, fn func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[channel] = append(b.subs[channel], fn)
}

// DispatchOutbound delivers outbound messages to matching subscribers. Each
// conversation gets its own worker, so its messages keep their order while a
// slow send never holds up other conversations. Returns once ctx is cancelled
// or the bus is closed and every started delivery has finished.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	q := NewKeyedQueue()
	defer q.Wait()
	for {
		select {
		case msg, ok := <-b.outbound:
			if !ok {
				return
			}
			q.Push(msg.Conversation().Key(), func() { b.dispatch(msg) })
		case <-ctx.Done():
			return
		}
	}
}

func (b *MessageBus) dispatch(msg OutboundMessage) {
	b.mu.RLock()
	fns := make([]func(OutboundMessage), 0, len(b.subs[msg.Channel])+len(b.subs[""]))
	fns = append(fns, b.subs[msg.Channel]...)
	fns = append(fns, b.subs[""]...)
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(msg)
	}
}

// Close closes both the inbound and outbound channels. Safe to call twice.
func (b *MessageBus) Close() {
	b.closeMu.Lock()
	defer b.closeMu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.inbound)
	close(b.outbound)
}
