package commands

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"adhanbot/internal/prayer"
	"adhanbot/internal/scheduler"
	"adhanbot/internal/storage"
	kit "adhanbot/internal/transport"
	logx "adhanbot/pkg/logx"
)

type sent struct {
	chat string
	text string
}

type fakeAdapter struct {
	mu   sync.Mutex
	sent []sent
	menu []kit.BotCommand
}

func (f *fakeAdapter) Name() string                                         { return "fake" }
func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                       { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{to.ChatID, text})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: "1"}, nil
}

func (f *fakeAdapter) SendDirect(ctx context.Context, userID, text string) error {
	_, err := f.SendText(ctx, kit.ChatTarget{ChatID: userID}, text, nil)
	return err
}

func (f *fakeAdapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menu = cmds
	return nil
}

func (f *fakeAdapter) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func (f *fakeAdapter) last(t *testing.T) string {
	t.Helper()
	msgs := f.messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1].text
}

type fakeLoops struct {
	mu       sync.Mutex
	active   map[string]bool
	startErr error
	onceErr  error
	once     prayer.Event
	delay    time.Duration
	pending  bool
	info     scheduler.LoopInfo
}

func (f *fakeLoops) Start(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.active[userID] {
		return scheduler.ErrAlreadyActive
	}
	f.active[userID] = true
	return nil
}

func (f *fakeLoops) Stop(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active[userID] {
		return scheduler.ErrNotActive
	}
	delete(f.active, userID)
	return nil
}

func (f *fakeLoops) IsActive(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[userID]
}

func (f *fakeLoops) Info(userID string) (scheduler.LoopInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active[userID] {
		return scheduler.LoopInfo{}, false
	}
	info := f.info
	info.UserID = userID
	return info, true
}

func (f *fakeLoops) NotifyOnce(ctx context.Context, userID string) (prayer.Event, time.Duration, error) {
	if f.onceErr != nil {
		return prayer.Event{}, 0, f.onceErr
	}
	f.pending = true
	return f.once, f.delay, nil
}

func (f *fakeLoops) PendingOnce(userID string) bool { return f.pending }

type fakeTimetable struct {
	err error
}

func (f fakeTimetable) Schedule(ctx context.Context, s storage.UserSettings) (prayer.Schedule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return prayer.ScheduleFromTimings(map[string]string{
		"Fajr":    "05:30",
		"Sunrise": "06:50",
		"Dhuhr":   "13:00",
		"Asr":     "16:30",
		"Maghrib": "19:45",
		"Isha":    "21:15",
	}), nil
}

type fakeLocator struct {
	at  prayer.Coordinates
	err error
	q   prayer.Query
}

func (f *fakeLocator) Locate(ctx context.Context, q prayer.Query) (prayer.Coordinates, error) {
	f.q = q
	return f.at, f.err
}

type env struct {
	adapter *fakeAdapter
	loops   *fakeLoops
	locator *fakeLocator
	store   storage.Store
	h       *Handlers
	loc     *time.Location
}

// newEnv fixes the clock at 2024-06-01 14:00 Istanbul.
func newEnv(t *testing.T) *env {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Istanbul")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "adhanbot")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	e := &env{
		adapter: &fakeAdapter{},
		loops:   &fakeLoops{active: map[string]bool{}},
		locator: &fakeLocator{at: prayer.Coordinates{Latitude: 41.0082, Longitude: 28.9784}},
		store:   st,
		loc:     loc,
	}
	now := time.Date(2024, 6, 1, 14, 0, 0, 0, loc)
	e.h = &Handlers{
		Store:         st,
		Loops:         e.loops,
		Timetable:     fakeTimetable{},
		Locator:       e.locator,
		Platform:      "telegram",
		DefaultMethod: prayer.DefaultMethod,
		DefaultSchool: prayer.DefaultSchool,
		Now:           func() time.Time { return now },
	}
	return e
}

// run invokes a command handler directly, the way the router would.
func (e *env) run(t *testing.T, user, line string) error {
	t.Helper()
	word, rest, _ := cutCommand(line)
	for _, c := range e.h.Commands() {
		if c.Name == word {
			req := &Request{
				Message: &kit.Message{ChatID: "chat-" + user, FromID: user, Text: line, IsDirect: true},
				Chat:    kit.ChatTarget{ChatID: "chat-" + user},
				UserID:  user,
				Command: word,
				Args:    tokenizeCommandLine(rest),
				RawArgs: rest,
				Adapter: e.adapter,
				Logger:  logx.Nop(),
			}
			return c.Handle(context.Background(), req)
		}
	}
	t.Fatalf("no command %q", word)
	return nil
}

func (e *env) setupIstanbul(t *testing.T, user string) {
	t.Helper()
	require.NoError(t, e.run(t, user, "/setup Turkey | Istanbul | Europe/Istanbul"))
}
