// Package announce posts operational events to the configured log channel.
// Events are queued and delivered by a background worker so command handlers
// and reconciliation never block on chat latency; delivery is best-effort.
package announce

import (
	"context"
	"log/slog"
	"time"
)

// ChannelSender is the slice of the guild collaborator the announcer needs.
type ChannelSender interface {
	ChannelSend(ctx context.Context, channelID, content string) error
}

// Announcer queues log-channel messages for asynchronous delivery.
type Announcer struct {
	sender  ChannelSender
	channel func() string
	logger  *slog.Logger
	inbox   chan string
}

// New constructs an Announcer. channel resolves the current log-channel id
// on each delivery so /setup changes take effect without a restart; an empty
// id drops the event.
func New(sender ChannelSender, channel func() string, logger *slog.Logger) *Announcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Announcer{
		sender:  sender,
		channel: channel,
		logger:  logger,
		inbox:   make(chan string, 64),
	}
}

// Emit queues a message. A full queue drops the message rather than block
// the caller; the log channel is an operator convenience, not a ledger.
func (a *Announcer) Emit(text string) {
	select {
	case a.inbox <- text:
	default:
		a.logger.Warn("announce queue full, dropping message")
	}
}

// Run delivers queued messages until the context ends.
func (a *Announcer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case text := <-a.inbox:
			channelID := a.channel()
			if channelID == "" {
				continue
			}
			sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := a.sender.ChannelSend(sendCtx, channelID, text)
			cancel()
			if err != nil {
				a.logger.Error("failed to post to log channel", "error", err)
			}
		}
	}
}
