package scheduler

import (
	"context"

	"adhanbot/internal/prayer"
	"adhanbot/internal/storage"
)

// TimingsProvider returns today's raw timings (name -> "HH:MM") for a query.
type TimingsProvider interface {
	FetchTimings(ctx context.Context, q prayer.Query) (map[string]string, error)
}

// SettingsStore is the slice of storage.Store the scheduler needs.
type SettingsStore interface {
	GetUser(ctx context.Context, userID string) (storage.UserSettings, error)
	SetLoopActive(ctx context.Context, userID string, active bool) error
	ForEachUser(ctx context.Context, fn func(storage.UserSettings) error) error
}

// Deliverer sends a direct message to a user.
type Deliverer interface {
	SendDirect(ctx context.Context, userID, text string) error
}
