// Package chat describes the slice of a chat platform the collector relies on.
package chat

import (
	"context"

	"vipcollector/internal/domain"
)

// Channel is a resolved handle to one platform channel.
type Channel interface {
	ID() string
	// History returns up to limit of the most recent messages, newest first.
	History(ctx context.Context, limit int) ([]domain.Message, error)
	// Send submits content for delivery and returns without waiting for it.
	Send(content string)
}

// Directory resolves channel ids to handles.
type Directory interface {
	Channel(ctx context.Context, id string) (Channel, bool)
}

// Event is one incoming message notification.
type Event struct {
	MessageID   string
	Content     string
	TextChannel bool
	Origin      Channel
}

type Handler interface {
	Handle(ctx context.Context, ev Event)
}
