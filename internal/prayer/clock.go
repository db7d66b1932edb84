package prayer

import (
	"regexp"
	"strconv"
	"time"
)

var reClock = regexp.MustCompile(`^(\d{2}):(\d{2})$`)

// ParseClock parses a 24-hour "HH:MM" wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	m := reClock.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, &ParseError{Input: s, Reason: "want HH:MM"}
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 {
		return 0, 0, &ParseError{Input: s, Reason: "hour out of range"}
	}
	if minute > 59 {
		return 0, 0, &ParseError{Input: s, Reason: "minute out of range"}
	}
	return hour, minute, nil
}

// Resolve turns a wall-clock time into the next instant strictly after ref in loc.
//
// The candidate is today's date in loc at the given clock. If that is not
// strictly after ref, the same clock on the next calendar day is used. The
// rollover goes through the calendar (day+1), so across a DST change the
// result keeps the wall clock rather than drifting by an hour.
func Resolve(clock string, ref time.Time, loc *time.Location) (time.Time, error) {
	h, m, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	local := ref.In(loc)
	y, mo, d := local.Date()
	at := time.Date(y, mo, d, h, m, 0, 0, loc)
	if !at.After(ref) {
		at = time.Date(y, mo, d+1, h, m, 0, 0, loc)
	}
	return at, nil
}

// FormatClock12 renders t as a 12-hour clock, e.g. "04:30 PM".
func FormatClock12(t time.Time) string {
	return t.Format("03:04 PM")
}

// FormatHHMM12 converts a "HH:MM" string to the 12-hour form. Malformed input
// is returned unchanged.
func FormatHHMM12(clock string) string {
	h, m, err := ParseClock(clock)
	if err != nil {
		return clock
	}
	return FormatClock12(time.Date(2000, 1, 1, h, m, 0, 0, time.UTC))
}
