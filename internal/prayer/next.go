package prayer

import (
	"errors"
	"time"
)

// Next selects the earliest prayer strictly after ref.
//
// Entries that fail to parse are skipped; the returned error joins them so
// callers can log what was dropped. When nothing resolves the error wraps
// ErrEmptySchedule. Selection is by instant only, so provider ordering does
// not matter; equal instants fall back to canonical order.
func (s Schedule) Next(ref time.Time, loc *time.Location) (Event, error) {
	var (
		best  Event
		found bool
		errs  []error
	)
	for _, t := range s {
		at, err := Resolve(t.Clock, ref, loc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !found || at.Before(best.At) || (at.Equal(best.At) && t.Prayer.rank() < best.Prayer.rank()) {
			best = Event{Prayer: t.Prayer, At: at}
			found = true
		}
	}
	if !found {
		return Event{}, errors.Join(append([]error{ErrEmptySchedule}, errs...)...)
	}
	return best, nil
}

// Today resolves every entry onto ref's calendar date in loc without rolling
// over, for display. Unparseable entries are omitted.
func (s Schedule) Today(ref time.Time, loc *time.Location) []Event {
	if loc == nil {
		loc = time.UTC
	}
	y, mo, d := ref.In(loc).Date()
	out := make([]Event, 0, len(s))
	for _, t := range s {
		h, m, err := ParseClock(t.Clock)
		if err != nil {
			continue
		}
		out = append(out, Event{Prayer: t.Prayer, At: time.Date(y, mo, d, h, m, 0, 0, loc)})
	}
	return out
}

// Delay is the non-negative wait from ref until e.
func (e Event) Delay(ref time.Time) time.Duration {
	d := e.At.Sub(ref)
	if d < 0 {
		return 0
	}
	return d
}
