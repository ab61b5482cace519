// Package channels provides the channel abstraction layer that connects
// external chat transports (or the CLI, for local use) to the agent runtime
// via the message bus. Per-platform adapters are external collaborators —
// the runtime core only depends on this interface.
package channels

import (
	"context"
	"strings"
	"time"

	"github.com/open1s/aisbot/internal/bus"
)

// InternalChannels are reserved channel names carrying intra-process
// traffic only; IsInternalChannel reports whether a name is one of them.
var InternalChannels = map[string]bool{
	bus.SystemChannel: true,
	"subagent":        true,
}

// IsInternalChannel reports whether a channel name is reserved for
// intra-process routing rather than an external adapter.
func IsInternalChannel(name string) bool {
	return InternalChannels[name]
}

// Channel is the interface every transport adapter must satisfy.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
	IsAllowed(senderID string) bool
}

// BaseChannel provides the shared bookkeeping real adapters embed.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	running   bool
	allowList []string
}

func NewBaseChannel(name string, msgBus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{name: name, bus: msgBus, allowList: allowList}
}

func (c *BaseChannel) Name() string           { return c.name }
func (c *BaseChannel) IsRunning() bool        { return c.running }
func (c *BaseChannel) SetRunning(running bool) { c.running = running }
func (c *BaseChannel) Bus() *bus.MessageBus   { return c.bus }
func (c *BaseChannel) HasAllowList() bool     { return len(c.allowList) > 0 }

// IsAllowed reports whether senderID is permitted by the allowlist. An
// empty allowlist means all senders are allowed.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, allowed := range c.allowList {
		if senderID == allowed || senderID == strings.TrimPrefix(allowed, "@") {
			return true
		}
	}
	return false
}

// HandleMessage builds an InboundMessage from raw adapter fields and
// publishes it to the bus. This is the standard way for a channel
// implementation to forward a received message into the agent runtime.
func (c *BaseChannel) HandleMessage(senderID, chatID, content string, media []string, metadata map[string]string) {
	if !c.IsAllowed(senderID) {
		return
	}
	c.bus.PublishInbound(bus.InboundMessage{
		Channel:   c.name,
		SenderID:  senderID,
		ChatID:    chatID,
		Content:   content,
		Media:     media,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	})
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// ParseSystemOrigin parses a system-channel chat_id of the form
// "origin_channel:origin_chat_id", falling back to treating the whole
// string as origin_chat_id on the "cli" channel when there is no embedded
// origin_channel prefix.
func ParseSystemOrigin(chatID string) (originChannel, originChatID string) {
	if idx := strings.Index(chatID, ":"); idx > 0 {
		return chatID[:idx], chatID[idx+1:]
	}
	return bus.CLIChannel, chatID
}
