package prayer

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigMissing means the user has no settings, or no usable timezone.
	ErrConfigMissing = errors.New("prayer settings missing")
	// ErrEmptySchedule means none of the five prayers could be resolved.
	ErrEmptySchedule = errors.New("no resolvable prayer times")
)

// ParseError reports a malformed "HH:MM" value.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid clock %q: %s", e.Input, e.Reason)
}

// ProviderError wraps any failure to obtain timings from the upstream service:
// network errors, timeouts, non-2xx statuses and undecodable bodies.
type ProviderError struct {
	Op     string
	Status int // HTTP status, 0 when no response was received
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s: http %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying later: provider failures,
// malformed provider data and empty schedules.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	var ce *ParseError
	return errors.As(err, &pe) || errors.As(err, &ce) || errors.Is(err, ErrEmptySchedule)
}
