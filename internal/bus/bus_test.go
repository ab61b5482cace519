package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	msg := InboundMessage{
		Channel:   "cli",
		SenderID:  "u1",
		ChatID:    "u1",
		Content:   "hello",
		Media:     []string{"/tmp/a.png"},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Metadata:  map[string]string{"k": "v"},
	}
	data, err := EncodeInbound(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeInbound(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Channel != msg.Channel || decoded.ChatID != msg.ChatID || decoded.Content != msg.Content {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, msg)
	}
	if !decoded.Timestamp.Equal(msg.Timestamp) {
		t.Fatalf("timestamp mismatch: %v vs %v", decoded.Timestamp, msg.Timestamp)
	}
}

func TestDecodeInboundToleratesDoubleEncoding(t *testing.T) {
	msg := InboundMessage{Channel: "cli", ChatID: "u1", Content: "hi", Timestamp: time.Now().UTC()}
	single, err := EncodeInbound(msg)
	if err != nil {
		t.Fatal(err)
	}
	double, err := json.Marshal(string(single))
	if err != nil {
		t.Fatal(err)
	}

	fromSingle, err := DecodeInbound(single)
	if err != nil {
		t.Fatal(err)
	}
	fromDouble, err := DecodeInbound(double)
	if err != nil {
		t.Fatal(err)
	}
	if fromSingle.Content != fromDouble.Content || fromSingle.ChatID != fromDouble.ChatID {
		t.Fatalf("double-encoded decode diverged: %+v vs %+v", fromSingle, fromDouble)
	}
}

func TestMemoryProviderConsumeTimesOutWithoutMessage(t *testing.T) {
	p := NewMemoryProvider()
	p.recvTimeout = 20 * time.Millisecond
	defer p.Stop()

	start := time.Now()
	msg, err := p.ConsumeInbound(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected nil on timeout, got %+v", msg)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("returned too fast, did not actually wait for timeout")
	}
}

func TestMessageBusPublishConsumeInbound(t *testing.T) {
	b := NewMessageBus(NewMemoryProvider())
	defer b.Stop()

	b.PublishInbound(InboundMessage{Channel: "cli", ChatID: "u1", Content: "hello"})

	msg, ok := b.ConsumeInbound(context.Background())
	if !ok {
		t.Fatal("expected a message")
	}
	if msg.Content != "hello" {
		t.Fatalf("unexpected content: %q", msg.Content)
	}
}

func TestDispatchOutboundInvokesAllCallbacksInPublishOrder(t *testing.T) {
	b := NewMessageBus(NewMemoryProvider())

	var mu sync.Mutex
	var calls1, calls2 []string
	b.SubscribeOutbound("cli", func(m OutboundMessage) {
		mu.Lock()
		calls1 = append(calls1, m.Content)
		mu.Unlock()
	})
	b.SubscribeOutbound("cli", func(m OutboundMessage) {
		mu.Lock()
		calls2 = append(calls2, m.Content)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go b.DispatchOutbound(ctx)

	b.PublishOutbound(OutboundMessage{Channel: "cli", ChatID: "u1", Content: "first"})
	b.PublishOutbound(OutboundMessage{Channel: "cli", ChatID: "u1", Content: "second"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(calls1) == 2 && len(calls2) == 2
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	b.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(calls1) != 2 || calls1[0] != "first" || calls1[1] != "second" {
		t.Fatalf("callback 1 saw wrong order: %v", calls1)
	}
	if len(calls2) != 2 || calls2[0] != "first" || calls2[1] != "second" {
		t.Fatalf("callback 2 saw wrong order: %v", calls2)
	}
}

func TestDispatchOutboundCallbackPanicDoesNotStopDispatcher(t *testing.T) {
	b := NewMessageBus(NewMemoryProvider())

	var mu sync.Mutex
	var received string
	b.SubscribeOutbound("cli", func(m OutboundMessage) {
		panic("boom")
	})
	b.SubscribeOutbound("cli", func(m OutboundMessage) {
		mu.Lock()
		received = m.Content
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.PublishOutbound(OutboundMessage{Channel: "cli", ChatID: "u1", Content: "survives"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := received
		mu.Unlock()
		if got == "survives" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("sibling callback never ran after a panicking callback")
}
