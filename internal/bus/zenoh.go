package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ZenohProvider is a push-based provider modeled on a Zenoh fabric:
// publishers and subscribers are declared on keys "inbound" and "outbound".
// Consume* is implemented as a cooperative poll over a non-blocking receive
// with a short sleep between attempts, rather than the DDS provider's single
// blocking receive with an internal timeout.
type ZenohProvider struct {
	config map[string]interface{}
	log    *slog.Logger

	pollInterval time.Duration
	pollTimeout  time.Duration

	mu       sync.Mutex
	inbound  chan []byte
	outbound chan []byte
	stopped  bool
	stopCh   chan struct{}
}

// NewZenohProvider constructs a Zenoh-like provider. config carries the
// opaque zenoh_config map from bus configuration (connect endpoints, mode);
// it is not interpreted by this in-process implementation beyond being
// logged for operators to confirm what was loaded.
func NewZenohProvider(config map[string]interface{}) *ZenohProvider {
	return &ZenohProvider{
		config:       config,
		log:          slog.Default().With("component", "bus.zenoh"),
		pollInterval: 10 * time.Millisecond,
		pollTimeout:  time.Second,
		inbound:      make(chan []byte, 256),
		outbound:     make(chan []byte, 256),
		stopCh:       make(chan struct{}),
	}
}

func (p *ZenohProvider) Initialize(ctx context.Context) error {
	p.log.Info("declaring zenoh publishers and subscribers", "config", p.config)
	return nil
}

func (p *ZenohProvider) PublishInbound(ctx context.Context, msg InboundMessage) error {
	data, err := EncodeInbound(msg)
	if err != nil {
		p.log.Warn("encode inbound failed", "error", err)
		return err
	}
	select {
	case p.inbound <- data:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// tryRecv is a single non-blocking receive attempt, mirroring a Zenoh
// subscriber's try_recv.
func tryRecv(ch chan []byte) ([]byte, bool) {
	select {
	case data := <-ch:
		return data, true
	default:
		return nil, false
	}
}

func (p *ZenohProvider) ConsumeInbound(ctx context.Context) (*InboundMessage, error) {
	deadline := time.Now().Add(p.pollTimeout)
	for time.Now().Before(deadline) {
		if data, ok := tryRecv(p.inbound); ok {
			msg, err := DecodeInbound(data)
			if err != nil {
				p.log.Warn("failed to parse inbound message", "error", err)
				return nil, nil
			}
			return msg, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.stopCh:
			return nil, nil
		case <-time.After(p.pollInterval):
		}
	}
	return nil, nil
}

func (p *ZenohProvider) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	data, err := EncodeOutbound(msg)
	if err != nil {
		p.log.Warn("encode outbound failed", "error", err)
		return err
	}
	select {
	case p.outbound <- data:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (p *ZenohProvider) ConsumeOutbound(ctx context.Context) (*OutboundMessage, error) {
	deadline := time.Now().Add(p.pollTimeout)
	for time.Now().Before(deadline) {
		if data, ok := tryRecv(p.outbound); ok {
			msg, err := DecodeOutbound(data)
			if err != nil {
				p.log.Warn("failed to parse outbound message", "error", err)
				return nil, nil
			}
			return msg, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.stopCh:
			return nil, nil
		case <-time.After(p.pollInterval):
		}
	}
	return nil, nil
}

func (p *ZenohProvider) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	close(p.stopCh)
	p.log.Info("stopped")
}
