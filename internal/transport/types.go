package transport

import "context"

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

// Message is a platform-neutral inbound chat message.
//
// IDs are strings so Telegram (int64) and Discord (snowflake) fit the same shape.
type Message struct {
	ID           string
	ChatID       string
	FromID       string
	FromUsername string
	Text         string
	IsDirect     bool
}

type ChatTarget struct {
	ChatID   string
	ThreadID int // telegram forum topic thread id (0 if none)
}

type MessageRef struct {
	ChatID    string
	MessageID string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

type Adapter interface {
	// Name identifies the platform ("telegram", "discord").
	Name() string

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	// SendDirect delivers a private message to a user.
	SendDirect(ctx context.Context, userID string, text string) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
