package bus

import "context"

// Provider is the transport-level contract a bus fabric must satisfy.
// Implementations wrap an underlying pub/sub substrate (DDS-like, Zenoh-like,
// or an in-process channel for tests) behind envelope-typed publish/consume
// operations. Consume* calls are expected to block for a short, bounded
// interval and return (nil, nil) on timeout so that callers can poll
// cooperatively rather than busy-wait or block indefinitely.
type Provider interface {
	// Initialize prepares topics/keys/endpoints. Called once before use.
	Initialize(ctx context.Context) error

	// PublishInbound sends a message from a channel toward the agent loop.
	PublishInbound(ctx context.Context, msg InboundMessage) error

	// ConsumeInbound returns the next inbound message, or nil on timeout.
	ConsumeInbound(ctx context.Context) (*InboundMessage, error)

	// PublishOutbound sends a reply from the agent loop toward channels.
	PublishOutbound(ctx context.Context, msg OutboundMessage) error

	// ConsumeOutbound returns the next outbound message, or nil on timeout.
	ConsumeOutbound(ctx context.Context) (*OutboundMessage, error)

	// Stop releases provider resources. Safe to call more than once.
	Stop()
}
