// Package commands routes chat commands to handlers through a bounded worker
// pool. Each invocation runs under its command deadline with panic recovery
// and one outcome log line.
package commands

import (
	"context"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"adhanbot/internal/runtime/supervisor"
	kit "adhanbot/internal/transport"
	logx "adhanbot/pkg/logx"
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Timeout     time.Duration // optional per-command override
	Handle      Handler
}

type Request struct {
	Message *kit.Message
	Chat    kit.ChatTarget
	UserID  string
	Command string
	Args    []string
	// RawArgs is the text after the command word, untokenized.
	RawArgs string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text back to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

type RouterConfig struct {
	Workers  int
	Timeout  time.Duration
	QueueCap int
}

type Router struct {
	cfg     RouterConfig
	log     logx.Logger
	adapter kit.Adapter

	mu    sync.RWMutex
	cmds  map[string]Command
	alias map[string]string
	list  []Command

	jobs chan func()

	runMu sync.Mutex
	sup   *supervisor.Supervisor
}

func NewRouter(cfg RouterConfig, adapter kit.Adapter, log logx.Logger) *Router {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = 256
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "commands")),
		adapter: adapter,
		cmds:    map[string]Command{},
		alias:   map[string]string{},
		jobs:    make(chan func(), cfg.QueueCap),
	}
}

// Supervisor returns the worker pool supervisor (nil when not dispatching).
func (m *Router) Supervisor() *supervisor.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.sup
}

// SetRegistry replaces the command set. /help is always present.
func (m *Router) SetRegistry(ctx context.Context, cmds []Command) {
	helper := Command{
		Name:        "help",
		Aliases:     []string{"h", "start"},
		Description: "Show the available commands.",
		Usage:       "/help",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText())
		},
	}
	cmds = append(cmds, helper)

	byName := map[string]Command{}
	alias := map[string]string{}
	list := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		byName[name] = c
		list = append(list, c)
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a != "" && !strings.Contains(a, " ") {
				alias[a] = name
			}
		}
	}

	m.mu.Lock()
	m.cmds = byName
	m.alias = alias
	m.list = list
	m.mu.Unlock()

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := make([]kit.BotCommand, 0, len(list))
		for _, c := range list {
			menu = append(menu, kit.BotCommand{Command: c.Name, Description: c.Description})
		}
		go func() {
			cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(cctx, menu); err != nil {
				m.log.Warn("menu update failed", logx.Err(err))
			}
		}()
	}
}

func (m *Router) lookup(word string) (Command, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.cmds[word]; ok {
		return c, true
	}
	if name, ok := m.alias[word]; ok {
		c, ok := m.cmds[name]
		return c, ok
	}
	return Command{}, false
}

func (m *Router) helpText() string {
	m.mu.RLock()
	list := append([]Command(nil), m.list...)
	m.mu.RUnlock()
	sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	var b strings.Builder
	b.WriteString("Adhan Bot Help\nHere are the available commands:\n")
	for _, c := range list {
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		b.WriteString("\n")
		b.WriteString(usage)
		if c.Description != "" {
			b.WriteString("\n  ")
			b.WriteString(c.Description)
		}
	}
	return b.String()
}

// tryEnqueue tolerates the jobs channel being closed during shutdown.
func (m *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// Dispatch consumes updates until ctx is done or updates is closed. Commands
// run on a fixed pool of workers; a full queue answers "busy".
func (m *Router) Dispatch(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(m.log))
	m.runMu.Lock()
	m.sup = sup
	m.runMu.Unlock()

	m.log.Info("command dispatcher started", logx.Int("workers", m.cfg.Workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := 0; i < m.cfg.Workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					m.runJob(idx, job)
				}
			}
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.runMu.Lock()
		m.sup = nil
		m.runMu.Unlock()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind == kit.UpdateMessage && up.Message != nil {
				m.route(ctx, up.Message)
			}
		}
	}
}

func (m *Router) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (m *Router) route(ctx context.Context, msg *kit.Message) {
	name, rest, ok := cutCommand(msg.Text)
	if !ok {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID}

	cmd, found := m.lookup(name)
	if !found {
		// Unknown commands in groups are usually meant for another bot.
		if msg.IsDirect {
			_, _ = m.adapter.SendText(ctx, chat, "Unknown command. Try /help", nil)
		}
		return
	}

	rid := newReqID()
	req := &Request{
		Message: msg,
		Chat:    chat,
		UserID:  msg.FromID,
		Command: cmd.Name,
		Args:    tokenizeCommandLine(rest),
		RawArgs: rest,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.String("user", msg.FromID),
			logx.String("chat_id", msg.ChatID),
		),
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = m.cfg.Timeout
	}
	x := execution{cmd: cmd, deadline: timeout, log: m.log}
	if !m.tryEnqueue(func() { _ = x.run(ctx, req) }) {
		_, _ = m.adapter.SendText(ctx, chat, "Busy, try again in a moment.", nil)
	}
}
