package messaging

import (
	"context"
	"time"
)

type Platform interface {
	SendMessage(msg *OutgoingMessage) error
	Start(ctx context.Context, handler MessageHandler) error
	Stop()
}

type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

type IncomingMessage struct {
	ChatID    int64
	MessageID int
	From      User
	Text      string
	Timestamp time.Time

	ChatType      ChatType
	ChatUsername  string // public handle of the chat without "@", if any
	IsChannelPost bool   // posted to a channel rather than sent by a user
}

// OutgoingMessage represents a message to be sent by the bot
type OutgoingMessage struct {
	ChatID           int64
	Text             string
	ReplyToMessageID int // 0 = no reply
}

type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

type ChatType string

const (
	ChatTypePrivate ChatType = "private"
	ChatTypeGroup   ChatType = "group"
	ChatTypeChannel ChatType = "channel"
)

func (ct ChatType) String() string {
	return string(ct)
}

func (ct ChatType) IsGroupOrChannel() bool {
	return ct == ChatTypeGroup || ct == ChatTypeChannel
}
