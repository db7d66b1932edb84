package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("user settings not found")
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl journal + snapshot)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// UserSettings is a user's location and calculation preferences plus the
// persisted "loop active" flag used to restore loops after a restart.
type UserSettings struct {
	UserID            string    `json:"user_id" validate:"required,max=64"`
	Country           string    `json:"country" validate:"required,max=100"`
	City              string    `json:"city" validate:"required,max=100"`
	CalculationMethod int       `json:"calculation_method" validate:"oneof=1 2 3 4 5 7 8 9 10 11 12 13 14"`
	AsrSchool         int       `json:"asr_school" validate:"oneof=0 1"`
	Timezone          string    `json:"timezone" validate:"omitempty,timezone"`
	LoopActive        bool      `json:"loop_active"`
	UpdatedAt         time.Time `json:"updated_at"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func settingsValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks field bounds and that Timezone (if set) is a loadable IANA name.
func (s UserSettings) Validate() error {
	if err := settingsValidator().Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: failed %q", strings.ToLower(fe.Field()), fe.Tag())
		}
		return err
	}
	return nil
}

// Location loads the user's timezone. An empty or unknown timezone is reported
// as an error; callers treat it as missing configuration.
func (s UserSettings) Location() (*time.Location, error) {
	tz := strings.TrimSpace(s.Timezone)
	if tz == "" {
		return nil, errors.New("timezone not set")
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", tz, err)
	}
	return loc, nil
}

// AuditEntry records a user action (setup changes, loop start/stop).
// Keep it compact and schema-stable.
type AuditEntry struct {
	At       time.Time `json:"at"`
	UserID   string    `json:"user_id"`
	Platform string    `json:"platform,omitempty"`
	Action   string    `json:"action"`
	Detail   string    `json:"detail,omitempty"`
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
}
