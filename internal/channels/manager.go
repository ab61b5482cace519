package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/open1s/aisbot/internal/bus"
)

// Manager owns all registered channel adapters and routes outbound bus
// traffic to the correct one via the bus's generic dispatch fan-out.
type Manager struct {
	channels map[string]Channel
	msgBus   *bus.MessageBus
	mu       sync.RWMutex
}

func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		msgBus:   msgBus,
	}
}

// RegisterChannel adds a channel and wires its outbound delivery.
func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	m.channels[name] = channel
	m.mu.Unlock()

	m.msgBus.SubscribeOutbound(name, func(msg bus.OutboundMessage) {
		if err := channel.Send(context.Background(), msg); err != nil {
			slog.Error("error sending message to channel", "channel", name, "error", err)
		}
	})
}

func (m *Manager) UnregisterChannel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, name)
}

// StartAll starts every registered channel and the outbound dispatch loop.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	go m.msgBus.DispatchOutbound(ctx)

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}
	for name, channel := range m.channels {
		if err := channel.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", name, "error", err)
		}
	}
	return nil
}

func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, channel := range m.channels {
		if err := channel.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}
	return nil
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

// SendToChannel delivers content to a specific channel by name, bypassing
// the bus — used by callers (e.g. a CLI REPL) that already hold a direct
// reference to the channel manager.
func (m *Manager) SendToChannel(ctx context.Context, channelName, chatID, content string) error {
	m.mu.RLock()
	channel, exists := m.channels[channelName]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("channel %s not found", channelName)
	}
	return channel.Send(ctx, bus.OutboundMessage{Channel: channelName, ChatID: chatID, Content: content})
}
