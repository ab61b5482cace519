package bus

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is a dependency-free provider backed by buffered Go
// channels, carried for tests and single-process deployments where no
// external fabric is configured. It implements the identical Provider
// contract, including the ~1s poll-timeout shape, so agent-loop and
// compression tests never require a real DDS or Zenoh runtime.
type MemoryProvider struct {
	recvTimeout time.Duration

	mu       sync.Mutex
	inbound  chan InboundMessage
	outbound chan OutboundMessage
	stopped  bool
	stopCh   chan struct{}
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		recvTimeout: time.Second,
		inbound:     make(chan InboundMessage, 256),
		outbound:    make(chan OutboundMessage, 256),
		stopCh:      make(chan struct{}),
	}
}

func (p *MemoryProvider) Initialize(ctx context.Context) error { return nil }

func (p *MemoryProvider) PublishInbound(ctx context.Context, msg InboundMessage) error {
	select {
	case p.inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *MemoryProvider) ConsumeInbound(ctx context.Context) (*InboundMessage, error) {
	select {
	case msg := <-p.inbound:
		return &msg, nil
	case <-time.After(p.recvTimeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.stopCh:
		return nil, nil
	}
}

func (p *MemoryProvider) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	select {
	case p.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *MemoryProvider) ConsumeOutbound(ctx context.Context) (*OutboundMessage, error) {
	select {
	case msg := <-p.outbound:
		return &msg, nil
	case <-time.After(p.recvTimeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.stopCh:
		return nil, nil
	}
}

func (p *MemoryProvider) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	close(p.stopCh)
}
