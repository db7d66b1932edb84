package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"

	"adhanbot/internal/eventbus"
	"adhanbot/internal/prayer"
	"adhanbot/internal/runtime/supervisor"
	"adhanbot/internal/storage"
	logx "adhanbot/pkg/logx"
)

// Config holds the loop timings. It can be swapped at runtime with Apply;
// running loops pick it up on their next iteration.
type Config struct {
	Backoff         time.Duration
	EarlyTolerance  time.Duration
	PostEventOffset time.Duration
	DeliveryPause   time.Duration
	RestoreNotify   bool
}

func DefaultConfig() Config {
	return Config{
		Backoff:        5 * time.Minute,
		EarlyTolerance: 30 * time.Second,
		DeliveryPause:  time.Minute,
		RestoreNotify:  true,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.Backoff <= 0 {
		c.Backoff = d.Backoff
	}
	if c.EarlyTolerance < 0 {
		c.EarlyTolerance = 0
	}
	if c.PostEventOffset < 0 {
		c.PostEventOffset = 0
	}
	if c.DeliveryPause <= c.EarlyTolerance {
		c.DeliveryPause = max(d.DeliveryPause, c.EarlyTolerance+time.Second)
	}
	return c
}

const (
	stopPersistAttempts = 3
	stopPersistDelay    = 20 * time.Millisecond
)

type Deps struct {
	Provider  TimingsProvider
	Store     SettingsStore
	Deliverer Deliverer
	Clock     Clock
	Bus       eventbus.Bus
	Log       logx.Logger
}

// LoopInfo is a read-only view of one loop for /status.
type LoopInfo struct {
	UserID    string
	RunID     string
	State     State
	Next      prayer.Event
	StartedAt time.Time
}

// Registry owns every per-user loop and pending single-shot reminder.
//
// cmdMu serializes Start/Stop/RestoreAll/Shutdown together with their
// persistence writes; mu guards the maps and is never held across I/O.
type Registry struct {
	store   SettingsStore
	deliver Deliverer
	clock   Clock
	bus     eventbus.Bus
	log     logx.Logger
	planner *Planner
	sup     *supervisor.Supervisor

	cfg atomic.Pointer[Config]

	cmdMu sync.Mutex

	mu      sync.Mutex
	loops   map[string]*handle
	once    map[string]*onceJob
	closing bool
}

func NewRegistry(cfg Config, d Deps) *Registry {
	if d.Clock == nil {
		d.Clock = RealClock()
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop()
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	log := d.Log.With(logx.String("comp", "scheduler"))
	r := &Registry{
		store:   d.Store,
		deliver: d.Deliverer,
		clock:   d.Clock,
		bus:     d.Bus,
		log:     log,
		planner: NewPlanner(d.Provider),
		sup:     supervisor.New(context.Background(), supervisor.WithLogger(log)),
		loops:   map[string]*handle{},
		once:    map[string]*onceJob{},
	}
	r.Apply(cfg)
	return r
}

// Apply replaces the loop timings.
func (r *Registry) Apply(cfg Config) {
	c := cfg.normalized()
	r.cfg.Store(&c)
}

func (r *Registry) config() Config { return *r.cfg.Load() }

func (r *Registry) Planner() *Planner { return r.planner }

// Supervisor exposes goroutine stats for /status.
func (r *Registry) Supervisor() *supervisor.Supervisor { return r.sup }

// loadSettings reads the user's settings and location. Missing settings and
// unusable timezones are prayer.ErrConfigMissing.
func (r *Registry) loadSettings(ctx context.Context, userID string) (storage.UserSettings, *time.Location, error) {
	s, err := r.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return s, nil, prayer.ErrConfigMissing
	}
	if err != nil {
		return s, nil, fmt.Errorf("load settings: %w", err)
	}
	loc, err := Location(s)
	if err != nil {
		return s, nil, err
	}
	return s, loc, nil
}

// Start begins a recurring loop for userID and persists the active flag.
func (r *Registry) Start(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	if err := r.checkStartable(userID); err != nil {
		return err
	}
	if _, _, err := r.loadSettings(ctx, userID); err != nil {
		return err
	}
	if err := r.store.SetLoopActive(ctx, userID, true); err != nil {
		return fmt.Errorf("persist loop flag: %w", err)
	}
	r.spawn(userID)
	return nil
}

// checkStartable must be called with cmdMu held.
func (r *Registry) checkStartable(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return ErrShuttingDown
	}
	if h := r.loops[userID]; h != nil {
		if !h.finished() {
			return ErrAlreadyActive
		}
		delete(r.loops, userID)
	}
	return nil
}

func (r *Registry) spawn(userID string) *handle {
	ctx, cancel := context.WithCancelCause(r.sup.Context())
	h := &handle{
		userID:    userID,
		runID:     uuid.NewString(),
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: r.clock.Now(),
		state:     StateStarting,
	}
	r.mu.Lock()
	r.loops[userID] = h
	r.mu.Unlock()

	r.log.Info("loop started", logx.String("user", userID), logx.String("run", h.runID))
	r.bus.Publish(eventbus.Event{Type: eventbus.LoopStarted, UserID: userID, Data: h.runID})
	r.sup.Go("loop."+userID, func(context.Context) error {
		r.run(ctx, h)
		return nil
	})
	return h
}

// Stop cancels userID's loop and persists it as inactive. It does not wait
// for the loop goroutine; no notification is sent after Stop returns.
// A failed flag write is retried and then logged: the loop is already gone,
// so Stop still succeeds.
func (r *Registry) Stop(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	r.mu.Lock()
	h := r.loops[userID]
	if h != nil {
		delete(r.loops, userID)
	}
	r.mu.Unlock()
	if h == nil || h.finished() {
		return ErrNotActive
	}

	h.cancel(ErrLoopStopped)
	err := retry.Do(
		func() error { return r.store.SetLoopActive(ctx, userID, false) },
		retry.Context(ctx),
		retry.Attempts(stopPersistAttempts),
		retry.Delay(stopPersistDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		r.log.Error("persist loop flag failed; loop may resume after restart",
			logx.String("user", userID), logx.String("run", h.runID), logx.Err(err))
	}
	return nil
}

func (r *Registry) IsActive(userID string) bool {
	r.mu.Lock()
	h := r.loops[strings.TrimSpace(userID)]
	r.mu.Unlock()
	return h != nil && !h.finished()
}

func (r *Registry) Snapshot() []LoopInfo {
	r.mu.Lock()
	hs := make([]*handle, 0, len(r.loops))
	for _, h := range r.loops {
		hs = append(hs, h)
	}
	r.mu.Unlock()

	out := make([]LoopInfo, 0, len(hs))
	for _, h := range hs {
		out = append(out, h.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Info returns userID's loop view.
func (r *Registry) Info(userID string) (LoopInfo, bool) {
	r.mu.Lock()
	h := r.loops[strings.TrimSpace(userID)]
	r.mu.Unlock()
	if h == nil || h.finished() {
		return LoopInfo{}, false
	}
	return h.info(), true
}

// RestoreAll starts a loop for every stored user whose active flag is set and
// whose timezone loads. Owners of restored loops get a best-effort DM.
func (r *Registry) RestoreAll(ctx context.Context) (int, error) {
	var candidates []string
	err := r.store.ForEachUser(ctx, func(u storage.UserSettings) error {
		if !u.LoopActive {
			return nil
		}
		if _, err := u.Location(); err != nil {
			r.log.Warn("skipping loop restore", logx.String("user", u.UserID), logx.Err(err))
			return nil
		}
		candidates = append(candidates, u.UserID)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("restore loops: %w", err)
	}

	r.cmdMu.Lock()
	var restored []string
	for _, id := range candidates {
		if err := r.checkStartable(id); err != nil {
			if errors.Is(err, ErrShuttingDown) {
				break
			}
			continue
		}
		r.spawn(id)
		restored = append(restored, id)
		r.bus.Publish(eventbus.Event{Type: eventbus.LoopRestored, UserID: id})
	}
	r.cmdMu.Unlock()

	r.log.Info("loops restored", logx.Int("restored", len(restored)), logx.Int("candidates", len(candidates)))
	if len(restored) > 0 && r.config().RestoreNotify {
		r.sup.Go("loop.restore.notify", func(ctx context.Context) error {
			for _, id := range restored {
				if ctx.Err() != nil {
					return nil
				}
				if err := r.deliver.SendDirect(ctx, id, restoredText); err != nil {
					r.log.Warn("restore notice failed", logx.String("user", id), logx.Err(err))
				}
			}
			return nil
		})
	}
	return len(restored), nil
}

// Shutdown rejects new work, cancels every loop (keeping their persisted
// flag) and pending reminder, then waits for goroutines or ctx.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.cmdMu.Lock()
	r.mu.Lock()
	r.closing = true
	loops := r.loops
	once := r.once
	r.loops = map[string]*handle{}
	r.once = map[string]*onceJob{}
	r.mu.Unlock()
	for _, h := range loops {
		h.cancel(ErrShutdown)
	}
	for _, j := range once {
		j.cancel(ErrShutdown)
	}
	r.cmdMu.Unlock()

	r.sup.Cancel()
	return r.sup.Wait(ctx)
}

// Sweep drops handles whose goroutine already exited. It reports how many
// were reaped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, h := range r.loops {
		if h.finished() {
			delete(r.loops, id)
			n++
		}
	}
	for id, j := range r.once {
		if j.finished() {
			delete(r.once, id)
			n++
		}
	}
	return n
}

// release removes h if it is still the registered handle for its user.
func (r *Registry) release(h *handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loops[h.userID] != h {
		return false
	}
	delete(r.loops, h.userID)
	return true
}
