package domain

import "time"

type Message struct {
	ID        string
	ChannelID string
	Author    string
	Content   string
	Source    Source
	CreatedAt time.Time
}

type Source string

const (
	SourceDiscord Source = "discord"
)
