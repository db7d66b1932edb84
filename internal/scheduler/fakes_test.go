package scheduler

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"adhanbot/internal/prayer"
	"adhanbot/internal/storage"
	logx "adhanbot/pkg/logx"
)

// fakeClock only moves when Advance is called.
type fakeClock struct {
	mu       sync.Mutex
	now      time.Time
	sleepers []*sleeper
	calls    int
}

type sleeper struct {
	until time.Time
	ch    chan struct{}
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	c.mu.Lock()
	s := &sleeper{until: c.now.Add(d), ch: make(chan struct{})}
	c.calls++
	c.sleepers = append(c.sleepers, s)
	c.mu.Unlock()

	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		for i, x := range c.sleepers {
			if x == s {
				c.sleepers = append(c.sleepers[:i], c.sleepers[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		return ctx.Err()
	}
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	kept := c.sleepers[:0]
	for _, s := range c.sleepers {
		if !s.until.After(c.now) {
			close(s.ch)
			continue
		}
		kept = append(kept, s)
	}
	c.sleepers = kept
}

func (c *fakeClock) sleeperCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleepers)
}

// waitSleepers blocks until exactly n goroutines are parked in Sleep.
func (c *fakeClock) waitSleepers(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.sleeperCount() == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("want %d sleepers, have %d", n, c.sleeperCount())
}

func (c *fakeClock) sleepCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// nextWake is how far the earliest sleeper is from now.
func (c *fakeClock) nextWake() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var best time.Duration = -1
	for _, s := range c.sleepers {
		if d := s.until.Sub(c.now); best < 0 || d < best {
			best = d
		}
	}
	return best
}

type fakeProvider struct {
	mu      sync.Mutex
	timings map[string]string
	errs    []error // returned (and consumed) before timings
	calls   int
}

func (p *fakeProvider) FetchTimings(ctx context.Context, q prayer.Query) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return nil, err
	}
	out := make(map[string]string, len(p.timings))
	for k, v := range p.timings {
		out[k] = v
	}
	return out, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeStore struct {
	mu    sync.Mutex
	users map[string]storage.UserSettings

	// setErr, when set, fails every SetLoopActive without touching the flag.
	setErr error
}

func newFakeStore(users ...storage.UserSettings) *fakeStore {
	s := &fakeStore{users: map[string]storage.UserSettings{}}
	for _, u := range users {
		s.users[u.UserID] = u
	}
	return s
}

func (s *fakeStore) GetUser(ctx context.Context, id string) (storage.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return storage.UserSettings{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) SetLoopActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	if u, ok := s.users[id]; ok {
		u.LoopActive = active
		s.users[id] = u
	}
	return nil
}

func (s *fakeStore) ForEachUser(ctx context.Context, fn func(storage.UserSettings) error) error {
	s.mu.Lock()
	list := make([]storage.UserSettings, 0, len(s.users))
	for _, u := range s.users {
		list = append(list, u)
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].UserID < list[j].UserID })
	for _, u := range list {
		if err := fn(u); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) update(id string, fn func(*storage.UserSettings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	fn(&u)
	s.users[id] = u
}

func (s *fakeStore) failSets(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErr = err
}

func (s *fakeStore) active(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id].LoopActive
}

type sentMsg struct{ user, text string }

type fakeDeliverer struct {
	mu   sync.Mutex
	sent []sentMsg
	errs []error // returned (and consumed) before recording a send
	fail int
}

func (d *fakeDeliverer) SendDirect(ctx context.Context, userID, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		d.fail++
		return err
	}
	d.sent = append(d.sent, sentMsg{userID, text})
	return nil
}

func (d *fakeDeliverer) queueErrs(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, errs...)
}

func (d *fakeDeliverer) failures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fail
}

func (d *fakeDeliverer) messages() []sentMsg {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sentMsg(nil), d.sent...)
}

func istanbul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Istanbul")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func sampleTimings() map[string]string {
	return map[string]string{
		"Fajr":    "05:30",
		"Sunrise": "06:50",
		"Dhuhr":   "13:00",
		"Asr":     "16:30",
		"Maghrib": "19:45",
		"Isha":    "21:15",
	}
}

func istanbulUser(id string) storage.UserSettings {
	return storage.UserSettings{
		UserID:            id,
		Country:           "Turkey",
		City:              "Istanbul",
		CalculationMethod: 13,
		AsrSchool:         1,
		Timezone:          "Europe/Istanbul",
	}
}

type harness struct {
	clock    *fakeClock
	provider *fakeProvider
	store    *fakeStore
	deliver  *fakeDeliverer
	reg      *Registry
}

// newHarness starts at 2024-06-01 14:00 Istanbul with one configured user "u1".
func newHarness(t *testing.T, cfg Config, users ...storage.UserSettings) *harness {
	t.Helper()
	loc := istanbul(t)
	if len(users) == 0 {
		users = []storage.UserSettings{istanbulUser("u1")}
	}
	h := &harness{
		clock:    newFakeClock(time.Date(2024, 6, 1, 14, 0, 0, 0, loc)),
		provider: &fakeProvider{timings: sampleTimings()},
		store:    newFakeStore(users...),
		deliver:  &fakeDeliverer{},
	}
	h.reg = NewRegistry(cfg, Deps{
		Provider:  h.provider,
		Store:     h.store,
		Deliverer: h.deliver,
		Clock:     h.clock,
		Log:       logx.Nop(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.reg.Shutdown(ctx)
	})
	return h
}
