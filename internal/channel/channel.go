package channel

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stellarlinkco/wabot/internal/bus"
)

// Channel is a chat transport. Inbound messages go to the bus; Send
// delivers one outbound message or receipt.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(msg bus.OutboundMessage) error
}

type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]bool
	log       zerolog.Logger
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) BaseChannel {
	allow := make(map[string]bool, len(allowFrom))
	for _, id := range allowFrom {
		if id = strings.TrimSpace(id); id != "" {
			allow[id] = true
		}
	}
	return BaseChannel{name: name, bus: b, allowFrom: allow}
}

// SetLogger derives the channel's logger from logger.
func (c *BaseChannel) SetLogger(logger zerolog.Logger) {
	c.log = logger.With().Str("channel", c.name).Logger()
}

func (c *BaseChannel) Name() string {
	return c.name
}

// IsAllowed reports whether senderID passes the allowlist. An empty
// allowlist admits everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowFrom) == 0 {
		return true
	}
	return c.allowFrom[senderID]
}
