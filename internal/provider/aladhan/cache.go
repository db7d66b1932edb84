package aladhan

import (
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/maypok86/otter/v2"

	"adhanbot/internal/prayer"
)

// cache holds one response per (query, local date). Timings for a given day
// never change, so the TTL only bounds memory.
type cache struct {
	c *otter.Cache[string, day]
}

func newCache(size int, ttl time.Duration) *cache {
	if size <= 0 || ttl <= 0 {
		return &cache{}
	}
	return &cache{c: otter.Must(&otter.Options[string, day]{
		MaximumSize:      size,
		InitialCapacity:  min(size, 64),
		ExpiryCalculator: otter.ExpiryWriting[string, day](ttl),
	})}
}

func cacheKey(q prayer.Query, date string) string {
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(q.Country)),
		strings.ToLower(strings.TrimSpace(q.City)),
		strconv.Itoa(q.Method),
		strconv.Itoa(q.School),
		q.Timezone,
		date,
	}, "|")
}

func (c *cache) get(key string) (day, bool) {
	if c.c == nil {
		return day{}, false
	}
	v, ok := c.c.GetIfPresent(key)
	if !ok {
		return day{}, false
	}
	v.timings = maps.Clone(v.timings)
	return v, true
}

func (c *cache) set(key string, v day) {
	if c.c == nil {
		return
	}
	v.timings = maps.Clone(v.timings)
	c.c.Set(key, v)
}

func (c *cache) size() int {
	if c.c == nil {
		return 0
	}
	return c.c.EstimatedSize()
}
