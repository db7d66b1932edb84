package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "adhanbot/internal/transport"
)

const (
	chatMaxLen   = 3500
	chatValueLen = 600
	chatBatch    = 8
)

// chatSink is a zerolog.LevelWriter that queues formatted lines for an
// operator chat. Writes never block; overflow and rate-limited lines drop.
type chatSink struct {
	sender kit.Adapter
	queue  chan string

	mu       sync.Mutex
	target   kit.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func newChatSink(sender kit.Adapter) *chatSink {
	return &chatSink{
		sender:   sender,
		queue:    make(chan string, 256),
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
		done:     make(chan struct{}),
	}
}

func (c *chatSink) setTarget(chatID string, threadID int) {
	c.mu.Lock()
	c.target.ChatID = chatID
	if threadID != 0 {
		c.target.ThreadID = threadID
	}
	c.mu.Unlock()
}

func (c *chatSink) hasTarget() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target.ChatID != ""
}

func (c *chatSink) apply(cfg ChatConfig) {
	rps := max(1, cfg.RatePerSec)
	c.mu.Lock()
	c.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	c.limiter.SetLimit(rate.Limit(rps))
	c.limiter.SetBurst(rps)
	if cfg.ThreadID != 0 {
		c.target.ThreadID = cfg.ThreadID
	}
	c.mu.Unlock()
	if cfg.Enabled {
		c.startOnce.Do(c.start)
	}
}

func (c *chatSink) start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	go c.run(ctx)
}

func (c *chatSink) close() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		if cancel == nil {
			return
		}
		cancel()
		<-c.done
	})
}

func (c *chatSink) Write(p []byte) (int, error) { return c.WriteLevel(zerolog.InfoLevel, p) }

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	ok := c.target.ChatID != "" && level >= c.minLevel && c.limiter.Allow()
	c.mu.Unlock()
	if !ok {
		return len(p), nil
	}
	if line := formatChatLine(p); line != "" {
		select {
		case c.queue <- line:
		default:
		}
	}
	return len(p), nil
}

// run sends queued lines, folding whatever has piled up into one message.
func (c *chatSink) run(ctx context.Context) {
	defer close(c.done)
	for {
		var first string
		select {
		case <-ctx.Done():
			return
		case first = <-c.queue:
		}
		batch := []string{first}
	fill:
		for len(batch) < chatBatch {
			select {
			case l := <-c.queue:
				batch = append(batch, l)
			default:
				break fill
			}
		}

		c.mu.Lock()
		to := c.target
		c.mu.Unlock()
		if to.ChatID == "" {
			continue
		}
		for _, msg := range kit.SplitText(strings.Join(batch, "\n\n"), chatMaxLen, "") {
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_, _ = c.sender.SendText(sctx, to, msg, &kit.SendOptions{DisablePreview: true})
			cancel()
		}
	}
}

// formatChatLine turns a zerolog JSON line into "[LEVEL] comp: message"
// followed by one "- key=value" line per remaining field, sorted by key.
func formatChatLine(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return clip(raw, chatMaxLen)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	if comp, _ := m["comp"].(string); comp != "" {
		b.WriteString(comp + ": ")
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName, "comp":
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, clip(fmt.Sprint(m[k]), chatValueLen))
	}
	return clip(b.String(), chatMaxLen)
}

func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
