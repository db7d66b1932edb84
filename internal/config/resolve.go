package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	PlatformTelegram = "telegram"
	PlatformDiscord  = "discord"

	DefaultProviderBaseURL = "https://api.aladhan.com/v1"
	DefaultSweepSpec       = "@every 10m"
)

// PlatformName returns the normalized platform, defaulting to telegram.
func (c *Config) PlatformName() string {
	p := strings.ToLower(strings.TrimSpace(c.Platform))
	if p == "" {
		return PlatformTelegram
	}
	return p
}

// SchedulerTunables are the effective loop timings.
type SchedulerTunables struct {
	Backoff         time.Duration
	EarlyTolerance  time.Duration
	PostEventOffset time.Duration
	DeliveryPause   time.Duration
	RestoreNotify   bool
}

func (c *Config) SchedulerTunables() (SchedulerTunables, error) {
	s := c.Scheduler
	var (
		out SchedulerTunables
		err error
	)
	if out.Backoff, err = ParseDurationOrDefault("scheduler.backoff", s.Backoff, 5*time.Minute); err != nil {
		return out, err
	}
	if out.EarlyTolerance, err = ParseDurationOrDefault("scheduler.early_tolerance", s.EarlyTolerance, 30*time.Second); err != nil {
		return out, err
	}
	if out.PostEventOffset, err = ParseDurationField("scheduler.post_event_offset", s.PostEventOffset); err != nil {
		return out, err
	}
	if out.DeliveryPause, err = ParseDurationOrDefault("scheduler.delivery_pause", s.DeliveryPause, time.Minute); err != nil {
		return out, err
	}
	if out.DeliveryPause <= out.EarlyTolerance {
		return out, fmt.Errorf("scheduler.delivery_pause (%s) must exceed scheduler.early_tolerance (%s)", out.DeliveryPause, out.EarlyTolerance)
	}
	out.RestoreNotify = s.RestoreNotify == nil || *s.RestoreNotify
	return out, nil
}

// ProviderSettings are the effective HTTP client settings.
type ProviderSettings struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	CacheTTL      time.Duration
	CacheSize     int
}

func (c *Config) ProviderSettings() (ProviderSettings, error) {
	p := c.Provider
	out := ProviderSettings{
		BaseURL:       strings.TrimRight(strings.TrimSpace(p.BaseURL), "/"),
		RetryAttempts: p.RetryAttempts,
		CacheSize:     p.CacheSize,
	}
	if out.BaseURL == "" {
		out.BaseURL = DefaultProviderBaseURL
	}
	if out.RetryAttempts <= 0 {
		out.RetryAttempts = 3
	}
	if out.CacheSize <= 0 {
		out.CacheSize = 1024
	}
	var err error
	if out.Timeout, err = ParseDurationOrDefault("provider.timeout", p.Timeout, 10*time.Second); err != nil {
		return out, err
	}
	if out.RetryDelay, err = ParseDurationOrDefault("provider.retry_delay", p.RetryDelay, 500*time.Millisecond); err != nil {
		return out, err
	}
	if out.CacheTTL, err = ParseDurationOrDefault("provider.cache_ttl", p.CacheTTL, 6*time.Hour); err != nil {
		return out, err
	}
	return out, nil
}

// NotifierSettings are the effective delivery settings.
type NotifierSettings struct {
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	HistorySize     int
}

func (c *Config) NotifierSettings() (NotifierSettings, error) {
	out := NotifierSettings{
		RatePerSec:      3,
		RetryMax:        3,
		RetryBase:       500 * time.Millisecond,
		RetryMaxDelay:   10 * time.Second,
		DedupWindow:     time.Minute,
		DedupMaxEntries: 2000,
		HistorySize:     200,
	}
	n := c.Notifier
	if n == nil {
		return out, nil
	}
	if n.RatePerSec > 0 {
		out.RatePerSec = n.RatePerSec
	}
	if n.RetryMax > 0 {
		out.RetryMax = n.RetryMax
	}
	if n.DedupMaxEntries > 0 {
		out.DedupMaxEntries = n.DedupMaxEntries
	}
	if n.HistorySize > 0 {
		out.HistorySize = n.HistorySize
	}
	var err error
	if out.RetryBase, err = ParseDurationOrDefault("notifier.retry_base", n.RetryBase, out.RetryBase); err != nil {
		return out, err
	}
	if out.RetryMaxDelay, err = ParseDurationOrDefault("notifier.retry_max_delay", n.RetryMaxDelay, out.RetryMaxDelay); err != nil {
		return out, err
	}
	if out.DedupWindow, err = ParseDurationField("notifier.dedup_window", n.DedupWindow); err != nil {
		return out, err
	}
	if strings.TrimSpace(n.DedupWindow) == "" {
		out.DedupWindow = time.Minute
	}
	return out, nil
}

// StorageSettings resolves the storage section. Omitted means a file store
// under ./data.
func (c *Config) StorageSettings() (driver, path string, busy time.Duration, err error) {
	s := c.Storage
	if s == nil {
		return "file", "./data/adhanbot", 0, nil
	}
	busy, err = ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	return strings.TrimSpace(s.Driver), strings.TrimSpace(s.Path), busy, err
}

func (c *Config) CommandSettings() (workers int, timeout time.Duration, err error) {
	workers = c.Commands.Workers
	if workers <= 0 {
		workers = 4
	}
	timeout, err = ParseDurationOrDefault("commands.timeout", c.Commands.Timeout, 30*time.Second)
	return workers, timeout, err
}

// DefaultMethod and DefaultSchool return the configured seeds or the given fallbacks.
func (c *Config) DefaultMethod(fallback int) int {
	if c.Defaults.Method != nil {
		return *c.Defaults.Method
	}
	return fallback
}

func (c *Config) DefaultSchool(fallback int) int {
	if c.Defaults.School != nil {
		return *c.Defaults.School
	}
	return fallback
}

func (c *Config) SweepSpec() string {
	s := strings.TrimSpace(c.Maintenance.Sweep)
	if s == "" {
		return DefaultSweepSpec
	}
	if strings.EqualFold(s, "off") {
		return ""
	}
	return s
}

// Validate checks everything that can be checked without touching the network.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	switch c.PlatformName() {
	case PlatformTelegram:
		if strings.TrimSpace(c.Telegram.Token) == "" {
			errs = append(errs, errors.New("telegram.token is required"))
		}
		if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
			errs = append(errs, err)
		}
	case PlatformDiscord:
		if strings.TrimSpace(c.Discord.Token) == "" {
			errs = append(errs, errors.New("discord.token is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("platform: unknown value %q", c.Platform))
	}

	if _, err := c.SchedulerTunables(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ProviderSettings(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.NotifierSettings(); err != nil {
		errs = append(errs, err)
	}
	if _, _, _, err := c.StorageSettings(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := c.CommandSettings(); err != nil {
		errs = append(errs, err)
	}
	if m := c.Defaults.Method; m != nil && (*m < 1 || *m > 14 || *m == 6) {
		errs = append(errs, fmt.Errorf("defaults.method: unsupported code %d", *m))
	}
	if s := c.Defaults.School; s != nil && *s != 0 && *s != 1 {
		errs = append(errs, fmt.Errorf("defaults.school: must be 0 or 1, got %d", *s))
	}
	if spec := c.SweepSpec(); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("maintenance.sweep: %w", err))
		}
	}
	return errors.Join(errs...)
}
