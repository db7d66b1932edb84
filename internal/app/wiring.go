package app

import (
	"errors"
	"fmt"
	"strings"

	"adhanbot/internal/config"
	"adhanbot/internal/notifier"
	"adhanbot/internal/provider/aladhan"
	"adhanbot/internal/scheduler"
	"adhanbot/internal/storage"
	kit "adhanbot/internal/transport"
	"adhanbot/internal/transport/discord"
	"adhanbot/internal/transport/telegram"
	logx "adhanbot/pkg/logx"
)

func newAdapter(cfg *config.Config, log logx.Logger) (kit.Adapter, error) {
	switch cfg.PlatformName() {
	case config.PlatformTelegram:
		poll, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
		if err != nil {
			return nil, err
		}
		ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll}, log)
		if err != nil {
			return nil, err
		}
		return ad, nil
	case config.PlatformDiscord:
		ad, err := discord.New(discord.Config{Token: cfg.Discord.Token}, log)
		if err != nil {
			return nil, err
		}
		return ad, nil
	default:
		return nil, fmt.Errorf("platform: unknown value %q", cfg.Platform)
	}
}

// logTarget is the operator chat that receives forwarded log lines.
func logTarget(cfg *config.Config) string {
	if cfg.PlatformName() == config.PlatformDiscord {
		return strings.TrimSpace(cfg.Discord.LogChannelID)
	}
	return strings.TrimSpace(cfg.Telegram.GroupLog)
}

func logConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    l.Chat.Enabled,
			ThreadID:   l.Chat.ThreadID,
			MinLevel:   l.Chat.MinLevel,
			RatePerSec: l.Chat.RatePerSec,
		},
	}
}

func schedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	t, err := cfg.SchedulerTunables()
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Backoff:         t.Backoff,
		EarlyTolerance:  t.EarlyTolerance,
		PostEventOffset: t.PostEventOffset,
		DeliveryPause:   t.DeliveryPause,
		RestoreNotify:   t.RestoreNotify,
	}, nil
}

func notifierConfig(cfg *config.Config) (notifier.Config, error) {
	n, err := cfg.NotifierSettings()
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		RetryBase:       n.RetryBase,
		RetryMaxDelay:   n.RetryMaxDelay,
		DedupWindow:     n.DedupWindow,
		DedupMaxEntries: n.DedupMaxEntries,
		HistorySize:     n.HistorySize,
	}, nil
}

func providerOptions(cfg *config.Config) (aladhan.Options, error) {
	p, err := cfg.ProviderSettings()
	if err != nil {
		return aladhan.Options{}, err
	}
	return aladhan.Options{
		BaseURL:       p.BaseURL,
		Timeout:       p.Timeout,
		RetryAttempts: p.RetryAttempts,
		RetryDelay:    p.RetryDelay,
		CacheTTL:      p.CacheTTL,
		CacheSize:     p.CacheSize,
	}, nil
}

// openStore opens the configured store. The bot cannot run without one:
// user settings and loop flags must survive restarts.
func openStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	driver, path, busy, err := cfg.StorageSettings()
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, log)
	if errors.Is(err, storage.ErrDisabled) {
		return nil, errors.New("storage.driver: a persistent driver (file or sqlite) is required")
	}
	return st, err
}
