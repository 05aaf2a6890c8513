package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	outboxSize  = 256
	sendTimeout = 15 * time.Second
)

type outgoing struct {
	channelID string
	content   string
}

// Outbox delivers queued messages in submission order from a single
// goroutine, so callers never wait for delivery.
type Outbox struct {
	api    restAPI
	queue  chan outgoing
	logger *zap.Logger

	stopped  chan struct{}
	stopOnce sync.Once
}

func NewOutbox(api restAPI, logger *zap.Logger) *Outbox {
	return &Outbox{
		api:     api,
		queue:   make(chan outgoing, outboxSize),
		logger:  logger.With(zap.String("component", "outbox")),
		stopped: make(chan struct{}),
	}
}

// Enqueue submits content for delivery. It blocks only while the queue is
// full and drops the message once the outbox has stopped.
func (o *Outbox) Enqueue(channelID, content string) {
	select {
	case <-o.stopped:
		o.logger.Warn("outbox stopped, dropping message", zap.String("channel_id", channelID))
		return
	default:
	}

	select {
	case o.queue <- outgoing{channelID: channelID, content: content}:
	case <-o.stopped:
		o.logger.Warn("outbox stopped, dropping message", zap.String("channel_id", channelID))
	}
}

// Run delivers messages until ctx is cancelled, then flushes whatever is
// still queued and returns.
func (o *Outbox) Run(ctx context.Context) {
	defer o.stopOnce.Do(func() { close(o.stopped) })

	for {
		select {
		case m := <-o.queue:
			o.deliver(m)
		case <-ctx.Done():
			o.flush()
			return
		}
	}
}

func (o *Outbox) flush() {
	for {
		select {
		case m := <-o.queue:
			o.deliver(m)
		default:
			return
		}
	}
}

func (o *Outbox) deliver(m outgoing) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if _, err := o.api.ChannelMessageSend(m.channelID, m.content, discordgo.WithContext(ctx)); err != nil {
		o.logger.Error("send failed",
			zap.String("channel_id", m.channelID),
			zap.Error(fmt.Errorf("sending to %s: %w", m.channelID, err)),
		)
	}
}
