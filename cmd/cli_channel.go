package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/open1s/aisbot/internal/bus"
	"github.com/open1s/aisbot/internal/channels"
)

// cliChannel is the interactive local-testing channel: it reads lines from
// stdin and publishes them as InboundMessages, and prints OutboundMessages
// to stdout. It embeds BaseChannel for allowlist/name bookkeeping the same
// way a real platform adapter would.
type cliChannel struct {
	*channels.BaseChannel
	chatID string
	cancel context.CancelFunc
}

func newCLIChannel(msgBus *bus.MessageBus, chatID string) *cliChannel {
	return &cliChannel{
		BaseChannel: channels.NewBaseChannel(bus.CLIChannel, msgBus, nil),
		chatID:      chatID,
	}
}

func (c *cliChannel) Start(ctx context.Context) error {
	readCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.SetRunning(true)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Fprintln(os.Stderr, "aisbot ready — type a message and press enter (ctrl-c to quit)")
		for scanner.Scan() {
			select {
			case <-readCtx.Done():
				return
			default:
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			c.HandleMessage(c.chatID, c.chatID, line, nil, nil)
		}
	}()

	return nil
}

func (c *cliChannel) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.SetRunning(false)
	return nil
}

func (c *cliChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	fmt.Printf("\n%s\n\n", msg.Content)
	return nil
}
