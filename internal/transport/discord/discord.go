// Package discord is the discordgo-backed transport.Adapter. Only direct
// messages and guild text messages that start with the command prefix are
// forwarded.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	kit "adhanbot/internal/transport"
	logx "adhanbot/pkg/logx"
)

const textLimit = 2000

type Config struct {
	Token string
}

type Adapter struct {
	log     logx.Logger
	session *discordgo.Session

	out     atomic.Value // chan<- kit.Update
	dropped atomic.Uint64

	mu      sync.Mutex
	running bool
	remove  func()

	// DM channel ids by user id.
	dmMu sync.Mutex
	dms  map[string]string
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsDirectMessages |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{
		log:     log.With(logx.String("comp", "discord")),
		session: s,
		dms:     map[string]string{},
	}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	return a, nil
}

func (a *Adapter) Name() string { return "discord" }

func toMessage(selfID string, m *discordgo.MessageCreate) *kit.Message {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot || m.Author.ID == selfID {
		return nil
	}
	direct := m.GuildID == ""
	text := strings.TrimSpace(m.Content)
	if !direct && !strings.HasPrefix(text, "/") {
		return nil
	}
	return &kit.Message{
		ID:           m.ID,
		ChatID:       m.ChannelID,
		FromID:       m.Author.ID,
		FromUsername: m.Author.Username,
		Text:         text,
		IsDirect:     direct,
	}
}

func (a *Adapter) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	selfID := ""
	if s.State != nil && s.State.User != nil {
		selfID = s.State.User.ID
	}
	msg := toMessage(selfID, m)
	if msg == nil {
		return
	}
	if msg.IsDirect {
		a.rememberDM(msg.FromID, msg.ChatID)
	}
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- kit.Update{Kind: kit.UpdateMessage, Message: msg}:
	default:
		if n := a.dropped.Add(1); n%100 == 1 {
			a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n))
		}
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}
	a.out.Store(out)
	a.remove = a.session.AddHandler(a.onMessage)
	if err := a.session.Open(); err != nil {
		a.remove()
		return fmt.Errorf("discord: open websocket: %w", err)
	}
	a.running = true
	a.log.Info("gateway connected")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	if !a.running {
		return nil
	}
	a.running = false
	if a.remove != nil {
		a.remove()
	}
	if err := a.session.Close(); err != nil {
		a.log.Warn("discord close failed", logx.Err(err))
	}
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	var first kit.MessageRef
	for i, chunk := range kit.SplitText(text, textLimit, "") {
		msg, err := a.session.ChannelMessageSend(to.ChatID, chunk, discordgo.WithContext(ctx))
		if err != nil {
			return first, fmt.Errorf("discord: send: %w", err)
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// SendDirect opens (or reuses) the user's DM channel and sends text there.
func (a *Adapter) SendDirect(ctx context.Context, userID string, text string) error {
	ch, err := a.dmChannel(ctx, userID)
	if err != nil {
		return err
	}
	_, err = a.SendText(ctx, kit.ChatTarget{ChatID: ch}, text, nil)
	return err
}

func (a *Adapter) rememberDM(userID, channelID string) {
	a.dmMu.Lock()
	a.dms[userID] = channelID
	a.dmMu.Unlock()
}

func (a *Adapter) dmChannel(ctx context.Context, userID string) (string, error) {
	a.dmMu.Lock()
	id, ok := a.dms[userID]
	a.dmMu.Unlock()
	if ok {
		return id, nil
	}
	ch, err := a.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: open dm with %s: %w", userID, err)
	}
	a.rememberDM(userID, ch.ID)
	return ch.ID, nil
}
