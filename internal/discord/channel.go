package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"vipcollector/internal/chat"
	"vipcollector/internal/domain"
)

// restAPI is the part of *discordgo.Session the connector calls.
type restAPI interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Directory resolves guild text channels, preferring the gateway state cache
// over a REST lookup.
type Directory struct {
	state  *discordgo.State
	api    restAPI
	outbox *Outbox
	logger *zap.Logger
}

func NewDirectory(state *discordgo.State, api restAPI, outbox *Outbox, logger *zap.Logger) *Directory {
	return &Directory{
		state:  state,
		api:    api,
		outbox: outbox,
		logger: logger.With(zap.String("component", "directory")),
	}
}

func (d *Directory) Channel(ctx context.Context, id string) (chat.Channel, bool) {
	ch, err := d.lookup(ctx, id)
	if err != nil {
		d.logger.Debug("channel lookup failed", zap.String("channel_id", id), zap.Error(err))
		return nil, false
	}
	if !isText(ch) {
		d.logger.Debug("not a text channel", zap.String("channel_id", id), zap.Int("type", int(ch.Type)))
		return nil, false
	}
	return d.handle(ch.ID), true
}

func (d *Directory) lookup(ctx context.Context, id string) (*discordgo.Channel, error) {
	if id == "" {
		return nil, fmt.Errorf("empty channel id")
	}
	if ch, err := d.state.Channel(id); err == nil {
		return ch, nil
	}
	return d.api.Channel(id, discordgo.WithContext(ctx))
}

// isTextChannel reports whether id names a guild text channel. Lookup
// failures count as not text.
func (d *Directory) isTextChannel(ctx context.Context, id string) bool {
	ch, err := d.lookup(ctx, id)
	return err == nil && isText(ch)
}

func (d *Directory) handle(id string) *channel {
	return &channel{id: id, api: d.api, outbox: d.outbox}
}

func isText(ch *discordgo.Channel) bool {
	return ch != nil && ch.Type == discordgo.ChannelTypeGuildText
}

type channel struct {
	id     string
	api    restAPI
	outbox *Outbox
}

func (c *channel) ID() string { return c.id }

func (c *channel) History(ctx context.Context, limit int) ([]domain.Message, error) {
	msgs, err := c.api.ChannelMessages(c.id, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		out = append(out, toDomain(m))
	}
	return out, nil
}

func (c *channel) Send(content string) {
	c.outbox.Enqueue(c.id, content)
}

func toDomain(m *discordgo.Message) domain.Message {
	msg := domain.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
		Source:    domain.SourceDiscord,
		CreatedAt: m.Timestamp,
	}
	if m.Author != nil {
		msg.Author = m.Author.Username
	}
	return msg
}
