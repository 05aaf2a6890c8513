// Package discord connects the collector to a Discord gateway session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"vipcollector/internal/chat"
	"vipcollector/internal/collector"
)

var ErrInvalidToken = errors.New("provided bot token is invalid")

// closeAuthenticationFailed is the gateway close code for a rejected token.
const closeAuthenticationFailed = 4004

// Guilds fills the state cache with channels so lookups rarely need REST.
const intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

type Bot struct {
	session *discordgo.Session
	dir     *Directory
	outbox  *Outbox
	handler chat.Handler
	logger  *zap.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	outboxDone chan struct{}
	remove     func()
}

// New prepares a session for token and starts the outbox. Handlers receive
// a context derived from ctx that is cancelled by Close.
func New(ctx context.Context, token string, logger *zap.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	session.Identify.Intents = intents

	return newBot(ctx, session, session.State, session, logger), nil
}

func newBot(ctx context.Context, session *discordgo.Session, state *discordgo.State, api restAPI, logger *zap.Logger) *Bot {
	logger = logger.With(zap.String("component", "discord"))
	outbox := NewOutbox(api, logger)
	ctx, cancel := context.WithCancel(ctx)

	b := &Bot{
		session:    session,
		dir:        NewDirectory(state, api, outbox, logger),
		outbox:     outbox,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		outboxDone: make(chan struct{}),
		remove:     func() {},
	}

	go func() {
		defer close(b.outboxDone)
		outbox.Run(ctx)
	}()

	return b
}

// Open registers h for incoming messages, connects to the gateway and sets
// the bot online. On failure the bot is stopped and must not be reused.
func (b *Bot) Open(h chat.Handler) error {
	b.handler = h
	b.remove = b.session.AddHandler(b.onMessageCreate)

	if err := b.session.Open(); err != nil {
		b.Detach()
		b.stop()
		if isAuthFailure(err) {
			return ErrInvalidToken
		}
		return fmt.Errorf("opening gateway: %w", err)
	}

	if err := b.session.UpdateStatusComplex(discordgo.UpdateStatusData{Status: string(discordgo.StatusOnline)}); err != nil {
		b.logger.Warn("setting presence failed", zap.Error(err))
	}

	b.logger.Info("connected", zap.String("user", sessionUser(b.session)))
	return nil
}

// Directory exposes channel resolution backed by this session.
func (b *Bot) Directory() *Directory {
	return b.dir
}

// Detach stops delivering incoming messages to the handler. Queued sends
// keep flowing until Close.
func (b *Bot) Detach() {
	b.remove()
	b.remove = func() {}
}

// Close stops event delivery, flushes queued sends and closes the session.
// Callers should wait for in-flight collection passes first.
func (b *Bot) Close() error {
	b.Detach()
	b.stop()
	if b.session == nil {
		return nil
	}
	return b.session.Close()
}

func (b *Bot) stop() {
	b.cancel()
	<-b.outboxDone
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil {
		return
	}
	b.handler.Handle(b.ctx, b.eventFor(m.Message))
}

// eventFor converts m. The channel type is only resolved for the collect
// command, so ordinary chatter costs no lookups.
func (b *Bot) eventFor(m *discordgo.Message) chat.Event {
	ev := chat.Event{
		MessageID: m.ID,
		Content:   m.Content,
		Origin:    b.dir.handle(m.ChannelID),
	}
	if m.GuildID != "" && strings.EqualFold(m.Content, collector.Command) {
		ev.TextChannel = b.dir.isTextChannel(b.ctx, m.ChannelID)
	}
	return ev
}

func isAuthFailure(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == closeAuthenticationFailed {
		return true
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusUnauthorized {
		return true
	}
	return false
}

func sessionUser(s *discordgo.Session) string {
	if s.State == nil || s.State.User == nil {
		return ""
	}
	return s.State.User.Username
}
