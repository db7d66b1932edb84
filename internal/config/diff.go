package config

import (
	"reflect"
	"sort"
	"strings"

	logx "adhanbot/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections plus safe
// structured attrs for logging. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 20)

	if oldCfg.PlatformName() != newCfg.PlatformName() {
		changed = append(changed, "platform")
		attrs = append(attrs, logx.String("platform", newCfg.PlatformName()))
	}

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) ||
		(oldCfg.Telegram.Token != newCfg.Telegram.Token) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
		)
	}

	if oldCfg.Discord.Token != newCfg.Discord.Token ||
		strings.TrimSpace(oldCfg.Discord.LogChannelID) != strings.TrimSpace(newCfg.Discord.LogChannelID) {
		changed = append(changed, "discord")
		attrs = append(attrs,
			logx.Bool("discord.log_channel_set", strings.TrimSpace(newCfg.Discord.LogChannelID) != ""),
			logx.Bool("discord.token_changed", oldCfg.Discord.Token != newCfg.Discord.Token),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if oldCfg.Provider != newCfg.Provider {
		changed = append(changed, "provider")
		ps, _ := newCfg.ProviderSettings()
		attrs = append(attrs,
			logx.String("provider.base_url", ps.BaseURL),
			logx.Int("provider.retry_attempts", ps.RetryAttempts),
			logx.Duration("provider.cache_ttl", ps.CacheTTL),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		st, _ := newCfg.SchedulerTunables()
		attrs = append(attrs,
			logx.Duration("scheduler.backoff", st.Backoff),
			logx.Duration("scheduler.early_tolerance", st.EarlyTolerance),
			logx.Duration("scheduler.post_event_offset", st.PostEventOffset),
			logx.Duration("scheduler.delivery_pause", st.DeliveryPause),
		)
	}

	if oldCfg.Commands != newCfg.Commands {
		changed = append(changed, "commands")
		w, to, _ := newCfg.CommandSettings()
		attrs = append(attrs, logx.Int("commands.workers", w), logx.Duration("commands.timeout", to))
	}

	// Nil notifier means runtime defaults.
	oldN, _ := oldCfg.NotifierSettings()
	newN, _ := newCfg.NotifierSettings()
	if oldN != newN {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.Int("notifier.retry_max", newN.RetryMax),
			logx.Duration("notifier.dedup_window", newN.DedupWindow),
		)
	}

	oDriver, oPath, oBusy, _ := oldCfg.StorageSettings()
	nDriver, nPath, nBusy, _ := newCfg.StorageSettings()
	if oDriver != nDriver || oPath != nPath || oBusy != nBusy {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPath != ""),
			logx.Duration("storage.busy_timeout", nBusy),
		)
	}

	if !reflect.DeepEqual(oldCfg.Defaults, newCfg.Defaults) {
		changed = append(changed, "defaults")
	}
	if oldCfg.SweepSpec() != newCfg.SweepSpec() {
		changed = append(changed, "maintenance")
		attrs = append(attrs, logx.String("maintenance.sweep", newCfg.SweepSpec()))
	}
	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists changed sections that only take effect after a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "platform", "telegram", "discord", "provider", "storage", "commands", "defaults", "maintenance", "systemd":
			out = append(out, s)
		}
	}
	return out
}
