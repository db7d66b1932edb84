package storage

import (
	"context"
	"errors"
	"strings"

	logx "adhanbot/pkg/logx"
)

// Store persists user settings and the audit trail.
type Store interface {
	GetUser(ctx context.Context, userID string) (UserSettings, error)
	// PutUser inserts or updates a user. On update the stored loop flag is kept;
	// only SetLoopActive changes it.
	PutUser(ctx context.Context, s UserSettings) error
	// SetLoopActive flips the persisted loop flag. It is a no-op for unknown users.
	SetLoopActive(ctx context.Context, userID string, active bool) error
	// ForEachUser visits every stored user. Returning an error stops the walk.
	ForEachUser(ctx context.Context, fn func(UserSettings) error) error

	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
