package prayer

import (
	"strings"
	"time"
)

// Name is one of the five canonical daily prayers.
type Name string

const (
	Fajr    Name = "Fajr"
	Dhuhr   Name = "Dhuhr"
	Asr     Name = "Asr"
	Maghrib Name = "Maghrib"
	Isha    Name = "Isha"
)

// Canonical is the fixed daily order. It also breaks ties between equal instants.
var Canonical = [...]Name{Fajr, Dhuhr, Asr, Maghrib, Isha}

func (n Name) rank() int {
	for i, c := range Canonical {
		if c == n {
			return i
		}
	}
	return len(Canonical)
}

// Valid reports whether n is one of the canonical prayers.
func (n Name) Valid() bool { return n.rank() < len(Canonical) }

// Query carries the location and calculation settings sent to a timings provider.
type Query struct {
	City     string
	Country  string
	Method   int
	School   int
	Timezone string
}

// Timing is a single prayer with its local wall-clock time ("HH:MM").
type Timing struct {
	Prayer Name
	Clock  string
}

// Schedule is one day's timings in canonical order.
type Schedule []Timing

// ScheduleFromTimings keeps only the five canonical prayers from a provider
// response and returns them in canonical order. Provider values such as
// "05:30 (EET)" are trimmed to their clock part.
func ScheduleFromTimings(raw map[string]string) Schedule {
	out := make(Schedule, 0, len(Canonical))
	for _, n := range Canonical {
		v, ok := raw[string(n)]
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if i := strings.IndexByte(v, ' '); i >= 0 {
			v = v[:i]
		}
		out = append(out, Timing{Prayer: n, Clock: v})
	}
	return out
}

// Event is a concrete upcoming prayer instant in the user's location.
type Event struct {
	Prayer Name
	At     time.Time
}

func (e Event) IsZero() bool { return e.Prayer == "" && e.At.IsZero() }
