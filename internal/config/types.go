package config

// Config is the root of the bot configuration file (JSON or YAML).
type Config struct {
	// Platform selects the chat adapter: "telegram" (default) or "discord".
	Platform string `json:"platform,omitempty"`

	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord,omitempty"`
	Logging  LoggingConfig  `json:"logging"`

	Provider    ProviderConfig    `json:"provider,omitempty"`
	Scheduler   SchedulerConfig   `json:"scheduler,omitempty"`
	Commands    CommandsConfig    `json:"commands,omitempty"`
	Notifier    *NotifierConfig   `json:"notifier,omitempty"`
	Storage     *StorageConfig    `json:"storage,omitempty"`
	Defaults    DefaultsConfig    `json:"defaults,omitempty"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
	Systemd     SystemdConfig     `json:"systemd,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// GroupLog is the chat id that receives forwarded log lines (optional).
	GroupLog string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type DiscordConfig struct {
	Token string `json:"token"`
	// LogChannelID receives forwarded log lines (optional).
	LogChannelID string `json:"log_channel_id,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// ProviderConfig controls the prayer-time HTTP client.
//
// Defaults:
//   - base_url: "https://api.aladhan.com/v1"
//   - timeout: "10s"
//   - retry_attempts: 3 (1 disables in-call retries)
//   - retry_delay: "500ms"
//   - cache_ttl: "6h"
//   - cache_size: 1024
type ProviderConfig struct {
	BaseURL       string `json:"base_url,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
	RetryAttempts int    `json:"retry_attempts,omitempty"`
	RetryDelay    string `json:"retry_delay,omitempty"`
	CacheTTL      string `json:"cache_ttl,omitempty"`
	CacheSize     int    `json:"cache_size,omitempty"`
}

// SchedulerConfig tunes the per-user notification loops. All fields are Go
// duration strings and take effect on the next loop iteration after reload.
type SchedulerConfig struct {
	Backoff         string `json:"backoff,omitempty"`           // default "5m"
	EarlyTolerance  string `json:"early_tolerance,omitempty"`   // default "30s"
	PostEventOffset string `json:"post_event_offset,omitempty"` // default "0s"
	DeliveryPause   string `json:"delivery_pause,omitempty"`    // default "1m"

	// RestoreNotify sends a short apology DM to every restored loop owner.
	// Pointer so an omitted key keeps the default (true).
	RestoreNotify *bool `json:"restore_notify,omitempty"`
}

// CommandsConfig controls inbound command dispatch.
type CommandsConfig struct {
	Workers int    `json:"workers,omitempty"` // default 4
	Timeout string `json:"timeout,omitempty"` // default "30s"
}

// NotifierConfig controls direct-message delivery.
//
// If the whole section is omitted, runtime defaults apply.
type NotifierConfig struct {
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	HistorySize     int    `json:"history_size,omitempty"`
}

// StorageConfig controls persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/adhanbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DefaultsConfig seeds new users' calculation preferences.
type DefaultsConfig struct {
	Method *int `json:"method,omitempty"`
	School *int `json:"school,omitempty"`
}

// MaintenanceConfig holds cron specs for housekeeping jobs. Empty disables a job.
type MaintenanceConfig struct {
	Sweep string `json:"sweep,omitempty"` // default "@every 10m"
}

type SystemdConfig struct {
	// Notify sends READY/STOPPING when NOTIFY_SOCKET is present.
	Notify bool `json:"notify"`
	// Watchdog pings WATCHDOG=1 at half of WATCHDOG_USEC when enabled by the unit.
	Watchdog bool `json:"watchdog"`
}
