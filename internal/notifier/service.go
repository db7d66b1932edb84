package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/time/rate"

	"adhanbot/internal/eventbus"
	kit "adhanbot/internal/transport"
	logx "adhanbot/pkg/logx"
)

var ErrNoAdapter = errors.New("notifier has no adapter")

// Service delivers direct messages through the chat adapter with a shared
// rate limit, bounded retries and short-window duplicate suppression.
//
// It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus

	// key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{
		adapter: adapter,
		log:     log.With(logx.String("comp", "notifier")),
		bus:     bus,
		dedup:   map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

// Apply swaps in new settings. In-flight sends finish with the old ones.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	cfg.RetryMax = max(cfg.RetryMax, 0)
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	cfg.DedupWindow = max(cfg.DedupWindow, 0)
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	s.cfg = cfg
	// burst = rate so short spikes (restore fan-out) don't stall
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// SendDirect DMs text to userID. A duplicate of a message delivered within the
// dedup window is dropped and reported as success. When all attempts fail the
// error is a *DeliveryError.
func (s *Service) SendDirect(ctx context.Context, userID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.TrimSpace(text) == "" {
		return fmt.Errorf("send direct: empty user or text")
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	ad := s.adapter
	s.mu.Unlock()
	if ad == nil {
		return ErrNoAdapter
	}

	key := dedupKey(userID, text)
	if cfg.DedupWindow > 0 && !s.dedupAllow(key, cfg.DedupWindow, cfg.DedupMaxEntries) {
		s.publish(eventbus.NotifierDeduped, DeliveryEvent{UserID: userID, Key: key})
		return nil
	}

	var (
		attempts int
		lastErr  error
	)
	err := retry.Do(
		func() error {
			if werr := lim.Wait(ctx); werr != nil {
				lastErr = werr
				return retry.Unrecoverable(werr)
			}
			attempts++
			callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
			defer cancel()
			lastErr = ad.SendDirect(callCtx, userID, text)
			return lastErr
		},
		retry.Context(ctx),
		retry.Attempts(uint(1+cfg.RetryMax)),
		retry.Delay(cfg.RetryBase),
		retry.MaxDelay(cfg.RetryMaxDelay),
		retry.MaxJitter(cfg.RetryBase),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.log.Debug("direct send failed", logx.String("user", userID), logx.Uint64("attempt", uint64(n)+1), logx.Int("max", 1+cfg.RetryMax), logx.Err(err))
		}),
	)
	if err == nil {
		s.appendHistory(cfg.HistorySize, HistoryItem{UserID: userID, Text: text, OK: true})
		s.publish(eventbus.NotifierSent, DeliveryEvent{UserID: userID, Key: key, Attempts: attempts})
		return nil
	}
	if lastErr == nil || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
		lastErr = err
	}

	// A failed send must not block a later retry of the same text.
	s.forget(key)
	s.appendHistory(cfg.HistorySize, HistoryItem{UserID: userID, Text: text})
	s.publish(eventbus.NotifierFailed, DeliveryEvent{UserID: userID, Key: key, Attempts: attempts, Error: lastErr.Error()})
	return &DeliveryError{UserID: userID, Attempts: attempts, Err: lastErr}
}

func (s *Service) publish(typ string, ev DeliveryEvent) {
	ev.At = time.Now()
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, UserID: ev.UserID, Data: ev})
}

// History returns recent deliveries, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(limit int, it HistoryItem) {
	it.At = time.Now()
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}

func dedupKey(userID, text string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(userID))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(key string, window time.Duration, maxEntries int) bool {
	now := time.Now()
	s.dmu.Lock()
	defer s.dmu.Unlock()

	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	// Over cap: evict earliest expiry first.
	for len(s.dedup) > maxEntries {
		var (
			minKey string
			minT   time.Time
		)
		for k, t := range s.dedup {
			if minKey == "" || t.Before(minT) {
				minKey, minT = k, t
			}
		}
		delete(s.dedup, minKey)
	}
	return true
}

func (s *Service) forget(key string) {
	s.dmu.Lock()
	delete(s.dedup, key)
	s.dmu.Unlock()
}

// Prune drops expired dedup entries and reports how many remain.
func (s *Service) Prune() int {
	now := time.Now()
	s.dmu.Lock()
	defer s.dmu.Unlock()
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	return len(s.dedup)
}
