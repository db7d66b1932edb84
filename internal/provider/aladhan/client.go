// Package aladhan fetches daily prayer timings from the Aladhan HTTP API.
package aladhan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"adhanbot/internal/prayer"
	logx "adhanbot/pkg/logx"
)

type Options struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	CacheTTL      time.Duration
	CacheSize     int

	HTTPClient *http.Client
	// Now is the clock used to pick the user's local calendar date.
	Now func() time.Time
}

// Client implements the prayer-time lookup used by the scheduler and commands.
type Client struct {
	base     string
	http     *http.Client
	attempts uint
	delay    time.Duration
	cache    *cache
	now      func() time.Time
	log      logx.Logger
}

func New(opt Options, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	hc := opt.HTTPClient
	if hc == nil {
		to := opt.Timeout
		if to <= 0 {
			to = 10 * time.Second
		}
		hc = &http.Client{Timeout: to}
	}
	attempts := opt.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	now := opt.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		base:     strings.TrimRight(opt.BaseURL, "/"),
		http:     hc,
		attempts: uint(attempts),
		delay:    opt.RetryDelay,
		cache:    newCache(opt.CacheSize, opt.CacheTTL),
		now:      now,
		log:      log.With(logx.String("comp", "provider.aladhan")),
	}
}

type timingsResponse struct {
	Code int `json:"code"`
	Data struct {
		Timings map[string]string `json:"timings"`
		Meta    struct {
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
		} `json:"meta"`
	} `json:"data"`
	// Status is a string on success and an error message otherwise.
	Status json.RawMessage `json:"status"`
}

// day is one decoded response: the timings plus the point the API resolved
// the city to. located is false when the response carried no coordinates.
type day struct {
	timings map[string]string
	coords  prayer.Coordinates
	located bool
}

// FetchTimings returns today's raw timings (name -> "HH:MM") for q, where
// "today" is the calendar date in q.Timezone. Failures are *prayer.ProviderError.
func (c *Client) FetchTimings(ctx context.Context, q prayer.Query) (map[string]string, error) {
	d, err := c.today(ctx, q)
	if err != nil {
		return nil, err
	}
	return d.timings, nil
}

// Locate returns the coordinates the API geocoded q's city to. It shares the
// timings request and its cache.
func (c *Client) Locate(ctx context.Context, q prayer.Query) (prayer.Coordinates, error) {
	d, err := c.today(ctx, q)
	if err != nil {
		return prayer.Coordinates{}, err
	}
	if !d.located {
		return prayer.Coordinates{}, &prayer.ProviderError{Op: "decode", Err: errors.New("no coordinates in response")}
	}
	return d.coords, nil
}

func (c *Client) today(ctx context.Context, q prayer.Query) (day, error) {
	loc := time.UTC
	if tz := strings.TrimSpace(q.Timezone); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	date := c.now().In(loc).Format("02-01-2006")

	key := cacheKey(q, date)
	if d, ok := c.cache.get(key); ok {
		return d, nil
	}

	d, err := c.fetch(ctx, q, date)
	if err != nil {
		return day{}, err
	}
	c.cache.set(key, d)
	return d, nil
}

func (c *Client) fetch(ctx context.Context, q prayer.Query, date string) (day, error) {
	params := url.Values{}
	params.Set("city", q.City)
	params.Set("country", q.Country)
	params.Set("method", strconv.Itoa(q.Method))
	params.Set("school", strconv.Itoa(q.School))
	if q.Timezone != "" {
		params.Set("timezonestring", q.Timezone)
	}
	endpoint := fmt.Sprintf("%s/timingsByCity/%s?%s", c.base, date, params.Encode())

	var (
		out     day
		lastErr *prayer.ProviderError
	)
	err := retry.Do(
		func() error {
			d, perr := c.once(ctx, endpoint)
			if perr == nil {
				out = d
				return nil
			}
			lastErr = perr
			// Client errors (bad city, bad method) will not improve on retry.
			if perr.Status >= 400 && perr.Status < 500 && perr.Status != http.StatusTooManyRequests {
				return retry.Unrecoverable(perr)
			}
			return perr
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(10*time.Second),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.log.Debug("retrying timings fetch", logx.Uint64("attempt", uint64(n)+1), logx.String("city", q.City), logx.Err(err))
		}),
	)
	if err == nil {
		return out, nil
	}
	if lastErr == nil || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
		return day{}, &prayer.ProviderError{Op: "fetch timings", Err: err}
	}
	return day{}, lastErr
}

func (c *Client) once(ctx context.Context, endpoint string) (day, *prayer.ProviderError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return day{}, &prayer.ProviderError{Op: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "adhanbot/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return day{}, &prayer.ProviderError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return day{}, &prayer.ProviderError{Op: "read body", Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return day{}, &prayer.ProviderError{Op: "request", Status: resp.StatusCode, Err: fmt.Errorf("unexpected status: %s", snippet(body))}
	}

	var tr timingsResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return day{}, &prayer.ProviderError{Op: "decode", Status: resp.StatusCode, Err: err}
	}
	if tr.Code != http.StatusOK || len(tr.Data.Timings) == 0 {
		return day{}, &prayer.ProviderError{Op: "decode", Status: tr.Code, Err: fmt.Errorf("no timings in response: %s", snippet(tr.Status))}
	}
	d := day{timings: tr.Data.Timings}
	if m := tr.Data.Meta; m.Latitude != nil && m.Longitude != nil {
		d.coords = prayer.Coordinates{Latitude: *m.Latitude, Longitude: *m.Longitude}
		d.located = d.coords.Valid()
	}
	return d, nil
}

// CacheSize reports the number of cached responses (for maintenance logs).
func (c *Client) CacheSize() int { return c.cache.size() }

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}
