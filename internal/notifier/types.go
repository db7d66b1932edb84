package notifier

import (
	"fmt"
	"time"
)

// Config controls direct-message delivery.
type Config struct {
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	HistorySize     int
	// SendTimeout bounds one adapter call.
	SendTimeout time.Duration
}

type HistoryItem struct {
	At     time.Time `json:"at"`
	UserID string    `json:"user_id"`
	Text   string    `json:"text"`
	OK     bool      `json:"ok"`
}

// DeliveryEvent is the payload of notifier.* bus events.
type DeliveryEvent struct {
	UserID   string    `json:"user_id"`
	Key      string    `json:"key"`
	Attempts int       `json:"attempts,omitempty"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}

// DeliveryError is returned when every attempt to DM a user failed.
type DeliveryError struct {
	UserID   string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s failed after %d attempt(s): %v", e.UserID, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
