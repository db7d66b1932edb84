package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	logx "adhanbot/pkg/logx"
)

// Maintenance runs housekeeping jobs on cron specs ("@every 10m", "0 3 * * *").
type Maintenance struct {
	mu      sync.Mutex
	log     logx.Logger
	c       *cron.Cron
	entries map[string]cron.EntryID
}

func NewMaintenance(log logx.Logger) *Maintenance {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "maintenance"))
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cl := cronLogger{log: log}
	return &Maintenance{
		log: log,
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		entries: map[string]cron.EntryID{},
	}
}

// Add registers fn under name, replacing an existing job with the same name.
// An empty spec removes the job.
func (m *Maintenance) Add(name, spec string, fn func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.entries[name]; ok {
		m.c.Remove(id)
		delete(m.entries, name)
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	id, err := m.c.AddFunc(spec, func() {
		m.log.Debug("maintenance job run", logx.String("job", name))
		fn()
	})
	if err != nil {
		return fmt.Errorf("maintenance job %s: %w", name, err)
	}
	m.entries[name] = id
	return nil
}

// Jobs lists registered job names.
func (m *Maintenance) Jobs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for name := range m.entries {
		out = append(out, name)
	}
	return out
}

func (m *Maintenance) Start() { m.c.Start() }

// Stop stops the cron and waits for running jobs or ctx.
func (m *Maintenance) Stop(ctx context.Context) error {
	done := m.c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
