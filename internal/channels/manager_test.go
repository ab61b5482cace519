package channels

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/open1s/aisbot/internal/bus"
)

type fakeChannel struct {
	name       string
	startErr   error
	stopErr    error
	sendErr    error
	running    bool
	mu         sync.Mutex
	sent       []bus.OutboundMessage
	startCalls int
	stopCalls  int
}

func (f *fakeChannel) Name() string { return f.name }
func (f *fakeChannel) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	f.running = f.startErr == nil
	return f.startErr
}
func (f *fakeChannel) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	f.running = false
	return f.stopErr
}
func (f *fakeChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}
func (f *fakeChannel) IsRunning() bool      { return f.running }
func (f *fakeChannel) IsAllowed(id string) bool { return true }

func (f *fakeChannel) sentMessages() []bus.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bus.OutboundMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func TestManagerRegisterAndGetChannel(t *testing.T) {
	m := NewManager(bus.NewMessageBus(bus.NewMemoryProvider()))
	ch := &fakeChannel{name: "cli"}
	m.RegisterChannel("cli", ch)

	got, ok := m.GetChannel("cli")
	if !ok || got != ch {
		t.Fatalf("expected to find registered channel, ok=%v got=%v", ok, got)
	}
}

func TestManagerUnregisterChannel(t *testing.T) {
	m := NewManager(bus.NewMessageBus(bus.NewMemoryProvider()))
	m.RegisterChannel("cli", &fakeChannel{name: "cli"})
	m.UnregisterChannel("cli")

	if _, ok := m.GetChannel("cli"); ok {
		t.Fatal("expected channel to be gone after unregister")
	}
}

func TestManagerGetEnabledChannels(t *testing.T) {
	m := NewManager(bus.NewMessageBus(bus.NewMemoryProvider()))
	m.RegisterChannel("cli", &fakeChannel{name: "cli"})
	m.RegisterChannel("web", &fakeChannel{name: "web"})

	names := m.GetEnabledChannels()
	if len(names) != 2 {
		t.Fatalf("expected 2 enabled channels, got %v", names)
	}
}

func TestManagerStartAllStartsEveryChannel(t *testing.T) {
	msgBus := bus.NewMessageBus(bus.NewMemoryProvider())
	m := NewManager(msgBus)
	ch1 := &fakeChannel{name: "cli"}
	ch2 := &fakeChannel{name: "web"}
	m.RegisterChannel("cli", ch1)
	m.RegisterChannel("web", ch2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.StartAll(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch1.startCalls != 1 || ch2.startCalls != 1 {
		t.Fatalf("expected each channel started once, got ch1=%d ch2=%d", ch1.startCalls, ch2.startCalls)
	}
}

func TestManagerStartAllWithNoChannelsIsNotAnError(t *testing.T) {
	m := NewManager(bus.NewMessageBus(bus.NewMemoryProvider()))
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("expected no error with zero channels, got %v", err)
	}
}

func TestManagerStopAllStopsEveryChannel(t *testing.T) {
	m := NewManager(bus.NewMessageBus(bus.NewMemoryProvider()))
	ch := &fakeChannel{name: "cli"}
	m.RegisterChannel("cli", ch)

	if err := m.StopAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.stopCalls != 1 {
		t.Fatalf("expected channel stopped once, got %d", ch.stopCalls)
	}
}

func TestManagerSendToChannelDeliversDirectly(t *testing.T) {
	m := NewManager(bus.NewMessageBus(bus.NewMemoryProvider()))
	ch := &fakeChannel{name: "cli"}
	m.RegisterChannel("cli", ch)

	if err := m.SendToChannel(context.Background(), "cli", "u1", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent := ch.sentMessages()
	if len(sent) != 1 || sent[0].Content != "hello" || sent[0].ChatID != "u1" {
		t.Fatalf("unexpected sent message: %+v", sent)
	}
}

func TestManagerSendToChannelUnknownChannelErrors(t *testing.T) {
	m := NewManager(bus.NewMessageBus(bus.NewMemoryProvider()))
	if err := m.SendToChannel(context.Background(), "missing", "u1", "hi"); err == nil {
		t.Fatal("expected an error for an unregistered channel")
	}
}

func TestManagerOutboundBusDeliveryRoutesToRegisteredChannel(t *testing.T) {
	msgBus := bus.NewMessageBus(bus.NewMemoryProvider())
	m := NewManager(msgBus)
	ch := &fakeChannel{name: "cli"}
	m.RegisterChannel("cli", ch)

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.StartAll(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cancel()

	msgBus.PublishOutbound(bus.OutboundMessage{Channel: "cli", ChatID: "u1", Content: "via bus"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(ch.sentMessages()) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	sent := ch.sentMessages()
	if len(sent) != 1 || sent[0].Content != "via bus" {
		t.Fatalf("expected the bus-dispatched message delivered to the channel, got %+v", sent)
	}
}

func TestFakeChannelSendErrorIsReturnedNotSwallowedBySendToChannel(t *testing.T) {
	m := NewManager(bus.NewMessageBus(bus.NewMemoryProvider()))
	ch := &fakeChannel{name: "cli", sendErr: errors.New("boom")}
	m.RegisterChannel("cli", ch)

	if err := m.SendToChannel(context.Background(), "cli", "u1", "hi"); err == nil {
		t.Fatal("expected SendToChannel to propagate the channel's send error")
	}
}
