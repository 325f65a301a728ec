package bus

import (
	"context"
	"sync"
)

type OutboundHandler func(msg OutboundMessage)

// MessageBus decouples transports from the router: transports push to
// Inbound, the gateway pushes replies to Outbound, and DispatchOutbound
// fans each reply out to the subscriber registered for its channel.
type MessageBus struct {
	Inbound  chan InboundMessage
	Outbound chan OutboundMessage

	mu          sync.RWMutex
	subscribers map[string][]OutboundHandler
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{
		Inbound:     make(chan InboundMessage, bufSize),
		Outbound:    make(chan OutboundMessage, bufSize),
		subscribers: make(map[string][]OutboundHandler),
	}
}

func (b *MessageBus) SubscribeOutbound(channel string, fn OutboundHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = append(b.subscribers[channel], fn)
}

// Publish queues msg for delivery unless ctx is done first.
func (b *MessageBus) Publish(ctx context.Context, msg OutboundMessage) error {
	select {
	case b.Outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-b.Outbound:
			b.mu.RLock()
			handlers := b.subscribers[msg.Channel]
			b.mu.RUnlock()
			for _, fn := range handlers {
				fn(msg)
			}
		case <-ctx.Done():
			return
		}
	}
}
