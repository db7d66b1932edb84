package aladhan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adhanbot/internal/prayer"
	logx "adhanbot/pkg/logx"
)

const okBody = `{"code":200,"status":"OK","data":{"timings":{"Fajr":"05:30","Sunrise":"06:50","Dhuhr":"13:00","Asr":"16:30","Maghrib":"19:45","Isha":"21:15"},"meta":{"latitude":41.0082376,"longitude":28.9783589,"timezone":"Europe/Istanbul"}}}`

func newTestClient(srv *httptest.Server, now time.Time) *Client {
	return New(Options{
		BaseURL:       srv.URL,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		CacheTTL:      time.Hour,
		CacheSize:     16,
		HTTPClient:    srv.Client(),
		Now:           func() time.Time { return now },
	}, logx.Nop())
}

func TestFetchTimingsRequestShapeAndCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		// 2024-06-01 23:30 UTC is already June 2nd in Istanbul.
		assert.Equal(t, "/timingsByCity/02-06-2024", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Istanbul", q.Get("city"))
		assert.Equal(t, "Turkey", q.Get("country"))
		assert.Equal(t, "13", q.Get("method"))
		assert.Equal(t, "1", q.Get("school"))
		assert.Equal(t, "Europe/Istanbul", q.Get("timezonestring"))
		fmt.Fprint(w, okBody)
	}))
	defer srv.Close()

	if _, err := time.LoadLocation("Europe/Istanbul"); err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	c := newTestClient(srv, time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC))
	q := prayer.Query{City: "Istanbul", Country: "Turkey", Method: 13, School: 1, Timezone: "Europe/Istanbul"}

	got, err := c.FetchTimings(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "05:30", got["Fajr"])

	got["Fajr"] = "mutated"
	again, err := c.FetchTimings(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "05:30", again["Fajr"])
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, c.CacheSize())
}

func TestFetchTimingsRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, okBody)
	}))
	defer srv.Close()

	c := newTestClient(srv, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	got, err := c.FetchTimings(context.Background(), prayer.Query{City: "Cairo", Country: "Egypt", Method: 5})
	require.NoError(t, err)
	assert.Len(t, got, 6)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetchTimingsClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":400,"status":"Unable to locate city"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv, time.Now())
	_, err := c.FetchTimings(context.Background(), prayer.Query{City: "Nowhere", Country: "XX", Method: 2})
	require.Error(t, err)

	var pe *prayer.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusBadRequest, pe.Status)
	assert.True(t, prayer.IsTransient(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchTimingsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":200,"data":{}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv, time.Now())
	_, err := c.FetchTimings(context.Background(), prayer.Query{City: "Oslo", Country: "Norway", Method: 3})
	var pe *prayer.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "decode", pe.Op)
	assert.Equal(t, 0, c.CacheSize())
}

func TestLocateSharesTimingsRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, okBody)
	}))
	defer srv.Close()

	c := newTestClient(srv, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	q := prayer.Query{City: "Istanbul", Country: "Turkey", Method: 13, School: 1}

	_, err := c.FetchTimings(context.Background(), q)
	require.NoError(t, err)
	at, err := c.Locate(context.Background(), q)
	require.NoError(t, err)
	assert.InDelta(t, 41.0082, at.Latitude, 1e-3)
	assert.InDelta(t, 28.9784, at.Longitude, 1e-3)
	assert.Equal(t, int32(1), hits.Load())
}

func TestLocateWithoutMeta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":200,"status":"OK","data":{"timings":{"Fajr":"05:30"}}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	q := prayer.Query{City: "Oslo", Country: "Norway", Method: 3}

	got, err := c.FetchTimings(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "05:30", got["Fajr"])

	_, err = c.Locate(context.Background(), q)
	var pe *prayer.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "decode", pe.Op)
	assert.True(t, prayer.IsTransient(err))
}
