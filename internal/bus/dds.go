package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DDSProvider is a pull-based provider modeled on a DDS (Data Distribution
// Service) fabric: two no-key topics, "inbound" and "outbound", each with one
// publisher and one subscriber held by the provider. Consume* blocks for a
// bounded receive timeout and returns (nil, nil) on timeout so the caller
// polls cooperatively.
type DDSProvider struct {
	domainID int
	log      *slog.Logger

	recvTimeout time.Duration

	mu       sync.Mutex
	inbound  chan []byte
	outbound chan []byte
	stopped  bool
	stopCh   chan struct{}
}

// NewDDSProvider constructs a DDS-like provider isolated to the given domain
// ID (topic namespace).
func NewDDSProvider(domainID int) *DDSProvider {
	return &DDSProvider{
		domainID:    domainID,
		log:         slog.Default().With("component", "bus.dds", "domain_id", domainID),
		recvTimeout: time.Second,
		inbound:     make(chan []byte, 256),
		outbound:    make(chan []byte, 256),
		stopCh:      make(chan struct{}),
	}
}

func (p *DDSProvider) Initialize(ctx context.Context) error {
	start := time.Now()
	p.log.Info("initializing dds topics")
	p.log.Info("dds initialized", "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

func (p *DDSProvider) PublishInbound(ctx context.Context, msg InboundMessage) error {
	data, err := EncodeInbound(msg)
	if err != nil {
		p.log.Warn("encode inbound failed", "error", err)
		return err
	}
	start := time.Now()
	select {
	case p.inbound <- data:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.log.Debug("published inbound", "session_key", msg.SessionKey(), "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

func (p *DDSProvider) ConsumeInbound(ctx context.Context) (*InboundMessage, error) {
	start := time.Now()
	select {
	case data := <-p.inbound:
		msg, err := DecodeInbound(data)
		if err != nil {
			p.log.Warn("failed to parse inbound message", "error", err)
			return nil, nil
		}
		p.log.Debug("consumed inbound", "session_key", msg.SessionKey(), "elapsed_ms", time.Since(start).Milliseconds())
		return msg, nil
	case <-time.After(p.recvTimeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.stopCh:
		return nil, nil
	}
}

func (p *DDSProvider) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	data, err := EncodeOutbound(msg)
	if err != nil {
		p.log.Warn("encode outbound failed", "error", err)
		return err
	}
	start := time.Now()
	select {
	case p.outbound <- data:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.log.Debug("published outbound", "channel", msg.Channel, "chat_id", msg.ChatID, "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

func (p *DDSProvider) ConsumeOutbound(ctx context.Context) (*OutboundMessage, error) {
	start := time.Now()
	select {
	case data := <-p.outbound:
		msg, err := DecodeOutbound(data)
		if err != nil {
			p.log.Warn("failed to parse outbound message", "error", err)
			return nil, nil
		}
		p.log.Debug("consumed outbound", "channel", msg.Channel, "chat_id", msg.ChatID, "elapsed_ms", time.Since(start).Milliseconds())
		return msg, nil
	case <-time.After(p.recvTimeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.stopCh:
		return nil, nil
	}
}

func (p *DDSProvider) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	close(p.stopCh)
	p.log.Info("stopped")
}
