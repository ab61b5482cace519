package bus

import (
	"context"
	"log/slog"
	"sync"
)

// OutboundCallback is invoked by DispatchOutbound for every outbound message
// published on a channel it is subscribed to.
type OutboundCallback func(OutboundMessage)

// MessageBus is the envelope-typed facade (L1) over a transport Provider
// (L0). It adds the subscribe/dispatch fan-out that is identical across
// providers: SubscribeOutbound registers a callback for a channel name, and
// DispatchOutbound runs a consume loop that invokes every callback
// registered for each message's channel, sequentially, isolating callback
// failures from one another and from sibling channels.
type MessageBus struct {
	provider Provider
	log      *slog.Logger

	mu   sync.Mutex
	subs map[string][]OutboundCallback
}

func NewMessageBus(provider Provider) *MessageBus {
	return &MessageBus{
		provider: provider,
		log:      slog.Default().With("component", "bus"),
		subs:     make(map[string][]OutboundCallback),
	}
}

func (b *MessageBus) Initialize(ctx context.Context) error {
	return b.provider.Initialize(ctx)
}

// PublishInbound is fire-and-forget from the caller's perspective; transport
// errors are logged, never propagated, consistent with the bus never
// crashing the agent loop on a transport failure.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	if err := b.provider.PublishInbound(context.Background(), msg); err != nil {
		b.log.Warn("publish inbound failed", "error", err)
	}
}

// ConsumeInbound returns the next inbound message and true, or (zero value,
// false) on timeout/cancellation.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	msg, err := b.provider.ConsumeInbound(ctx)
	if err != nil || msg == nil {
		return InboundMessage{}, false
	}
	return *msg, true
}

func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	if err := b.provider.PublishOutbound(context.Background(), msg); err != nil {
		b.log.Warn("publish outbound failed", "error", err)
	}
}

// ConsumeOutbound returns the next outbound message and true, or (zero
// value, false) on timeout/cancellation. Exposed for adapters that prefer to
// poll directly instead of registering a DispatchOutbound callback.
func (b *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	msg, err := b.provider.ConsumeOutbound(ctx)
	if err != nil || msg == nil {
		return OutboundMessage{}, false
	}
	return *msg, true
}

// SubscribeOutbound registers a callback invoked for every outbound message
// whose Channel equals channel, observed in publish order relative to other
// callbacks on the same channel.
func (b *MessageBus) SubscribeOutbound(channel string, cb OutboundCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[channel] = append(b.subs[channel], cb)
}

// DispatchOutbound runs until ctx is cancelled or Stop is called, consuming
// outbound messages and fanning each out to every callback registered for
// its channel. A callback that panics is recovered and logged; it does not
// affect sibling callbacks or the dispatch loop itself. There is no
// ordering guarantee across channels.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, ok := b.ConsumeOutbound(ctx)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		b.mu.Lock()
		callbacks := append([]OutboundCallback(nil), b.subs[msg.Channel]...)
		b.mu.Unlock()
		for _, cb := range callbacks {
			b.invokeSafely(cb, msg)
		}
	}
}

func (b *MessageBus) invokeSafely(cb OutboundCallback, msg OutboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("outbound callback panicked", "channel", msg.Channel, "panic", r)
		}
	}()
	cb(msg)
}

func (b *MessageBus) Stop() {
	b.provider.Stop()
}
