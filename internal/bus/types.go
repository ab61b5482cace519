// Package bus implements the provider-pluggable message bus that decouples
// channel transports from the agent runtime. InboundMessage flows
// channel -> bus -> agent loop; OutboundMessage flows agent loop -> bus ->
// channel.
package bus

import "time"

// InboundMessage represents a message received from a channel (Telegram,
// Discord, the CLI, or a subagent reporting back on the reserved "system"
// channel).
type InboundMessage struct {
	Channel   string            `json:"channel"`
	SenderID  string            `json:"sender_id"`
	ChatID    string            `json:"chat_id"`
	Content   string            `json:"content"`
	Media     []string          `json:"media,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SessionKey returns the conversation identity derived from channel and
// chat ID. Invariant: Channel and ChatID are non-empty.
func (m InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage represents a reply to be routed back to a channel, solely
// by Channel.
type OutboundMessage struct {
	Channel   string    `json:"channel"`
	ChatID    string    `json:"chat_id"`
	Content   string    `json:"content"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SystemChannel is the reserved channel name used for intra-process
// messages, such as subagent results reporting back to the main loop.
const SystemChannel = "system"

// CLIChannel is the fallback origin channel used when a system message's
// chat_id carries no embedded "origin_channel:origin_chat_id" prefix.
const CLIChannel = "cli"
