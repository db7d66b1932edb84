package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adhanbot/internal/prayer"
	"adhanbot/internal/scheduler"
)

func TestSetupStoresSettingsWithDefaults(t *testing.T) {
	e := newEnv(t)
	e.setupIstanbul(t, "u1")
	assert.Contains(t, e.adapter.last(t), "Setup complete!")

	s, err := e.store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Turkey", s.Country)
	assert.Equal(t, "Istanbul", s.City)
	assert.Equal(t, "Europe/Istanbul", s.Timezone)
	assert.Equal(t, prayer.DefaultMethod, s.CalculationMethod)
	assert.Equal(t, prayer.DefaultSchool, s.AsrSchool)
}

func TestSetupKeepsExistingPreferences(t *testing.T) {
	e := newEnv(t)
	e.setupIstanbul(t, "u1")
	require.NoError(t, e.run(t, "u1", "/method 13"))
	require.NoError(t, e.run(t, "u1", `/setup "United States" | "New York" | America/New_York`))

	s, err := e.store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "United States", s.Country)
	assert.Equal(t, "New York", s.City)
	assert.Equal(t, 13, s.CalculationMethod)
}

func TestSetupRejectsBadInput(t *testing.T) {
	e := newEnv(t)

	require.NoError(t, e.run(t, "u1", "/setup Turkey | Istanbul"))
	assert.Contains(t, e.adapter.last(t), "Usage: /setup")

	require.NoError(t, e.run(t, "u1", "/setup Mars | Olympus | Mars/Olympus"))
	assert.Contains(t, e.adapter.last(t), `Unknown timezone "Mars/Olympus"`)

	_, err := e.store.GetUser(context.Background(), "u1")
	assert.Error(t, err)
}

func TestCommandsRequireSetup(t *testing.T) {
	e := newEnv(t)
	for _, line := range []string{"/region", "/timings", "/upcoming", "/method 3", "/school 0", "/qibla"} {
		require.NoError(t, e.run(t, "ghost", line), line)
		assert.Equal(t, msgSetupFirst, e.adapter.last(t), line)
	}
}

func TestMethodAndSchool(t *testing.T) {
	e := newEnv(t)
	e.setupIstanbul(t, "u1")

	require.NoError(t, e.run(t, "u1", "/method"))
	assert.Contains(t, e.adapter.last(t), "13 - Diyanet")

	require.NoError(t, e.run(t, "u1", "/method 6"))
	assert.Contains(t, e.adapter.last(t), "Unknown method code")

	require.NoError(t, e.run(t, "u1", "/method 3"))
	assert.Equal(t, "Calculation method set to Muslim World League (MWL).", e.adapter.last(t))

	require.NoError(t, e.run(t, "u1", "/school 2"))
	assert.Contains(t, e.adapter.last(t), "must be 0")

	require.NoError(t, e.run(t, "u1", "/school 0"))
	s, err := e.store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, s.CalculationMethod)
	assert.Equal(t, 0, s.AsrSchool)

	require.NoError(t, e.run(t, "u1", "/region"))
	assert.Contains(t, e.adapter.last(t), "Calculation Method: Muslim World League (MWL)")
}

func TestTimingsAndUpcoming(t *testing.T) {
	e := newEnv(t)
	e.setupIstanbul(t, "u1")

	require.NoError(t, e.run(t, "u1", "/timings"))
	out := e.adapter.last(t)
	assert.Contains(t, out, "Fajr: 05:30 AM")
	assert.Contains(t, out, "Isha: 09:15 PM")
	assert.NotContains(t, out, "Sunrise")
	assert.Contains(t, out, "Timings for Istanbul")

	require.NoError(t, e.run(t, "u1", "/upcoming"))
	assert.Equal(t, "Next upcoming salah for Istanbul is Asr at 04:30 PM (in 2h 30m).", e.adapter.last(t))
}

func TestTimingsProviderDown(t *testing.T) {
	e := newEnv(t)
	e.setupIstanbul(t, "u1")
	e.h.Timetable = fakeTimetable{err: &prayer.ProviderError{Op: "request", Err: errors.New("timeout")}}

	err := e.run(t, "u1", "/timings")
	assert.Error(t, err)
	assert.Equal(t, msgProviderDown, e.adapter.last(t))
}

func TestQibla(t *testing.T) {
	e := newEnv(t)
	e.setupIstanbul(t, "u1")

	require.NoError(t, e.run(t, "u1", "/qibla"))
	assert.Equal(t, "Qibla direction for Istanbul (41.0082°N, 28.9784°E): 152° from true north (SSE).", e.adapter.last(t))
	assert.Equal(t, "Istanbul", e.locator.q.City)
	assert.Equal(t, "Europe/Istanbul", e.locator.q.Timezone)

	e.locator.err = &prayer.ProviderError{Op: "decode", Err: errors.New("no coordinates in response")}
	assert.Error(t, e.run(t, "u1", "/qibla"))
	assert.Equal(t, "Could not locate Istanbul right now. Please try again later.", e.adapter.last(t))

	e.h.Locator = nil
	require.NoError(t, e.run(t, "u1", "/qibla"))
	assert.Contains(t, e.adapter.last(t), "not available")
}

func TestNotify(t *testing.T) {
	e := newEnv(t)
	e.loops.once = prayer.Event{Prayer: prayer.Asr, At: time.Date(2024, 6, 1, 16, 30, 0, 0, e.loc)}
	e.loops.delay = 150 * time.Minute

	require.NoError(t, e.run(t, "u1", "/notify"))
	assert.Contains(t, e.adapter.last(t), "Asr at 04:30 PM (in 2h 30m)")

	e.loops.onceErr = prayer.ErrConfigMissing
	require.NoError(t, e.run(t, "u1", "/notify"))
	assert.Equal(t, msgSetupFirst, e.adapter.last(t))

	e.loops.onceErr = &prayer.ProviderError{Op: "request", Status: 503, Err: errors.New("down")}
	assert.Error(t, e.run(t, "u1", "/notify"))
	assert.Equal(t, msgProviderDown, e.adapter.last(t))
}

func TestNotifyLoopLifecycle(t *testing.T) {
	e := newEnv(t)
	e.setupIstanbul(t, "u1")

	require.NoError(t, e.run(t, "u1", "/notifyloop"))
	assert.Equal(t, msgLoopStarted, e.adapter.last(t))
	require.NoError(t, e.run(t, "u1", "/notifyloop"))
	assert.Equal(t, msgLoopDuplicate, e.adapter.last(t))

	e.loops.info = scheduler.LoopInfo{
		State:     scheduler.StateSleeping,
		Next:      prayer.Event{Prayer: prayer.Asr, At: time.Date(2024, 6, 1, 16, 30, 0, 0, e.loc)},
		StartedAt: time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC),
	}
	require.NoError(t, e.run(t, "u1", "/status"))
	status := e.adapter.last(t)
	assert.Contains(t, status, "Notification loop: active")
	assert.Contains(t, status, "Next: Asr at 04:30 PM (in 2h 30m)")

	require.NoError(t, e.run(t, "u1", "/notifyloopstop"))
	assert.Equal(t, msgLoopStopped, e.adapter.last(t))
	require.NoError(t, e.run(t, "u1", "/notifyloopstop"))
	assert.Equal(t, msgLoopNone, e.adapter.last(t))

	require.NoError(t, e.run(t, "u1", "/status"))
	assert.Equal(t, "Notification loop: inactive", e.adapter.last(t))
}

func TestNotifyLoopErrors(t *testing.T) {
	e := newEnv(t)
	e.loops.startErr = prayer.ErrConfigMissing
	require.NoError(t, e.run(t, "u1", "/notifyloop"))
	assert.Equal(t, msgSetupFirst, e.adapter.last(t))

	e.loops.startErr = scheduler.ErrShuttingDown
	require.NoError(t, e.run(t, "u1", "/notifyloop"))
	assert.Equal(t, msgShuttingDown, e.adapter.last(t))
}

func TestHumanDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{20 * time.Second, "less than a minute"},
		{45 * time.Minute, "45m"},
		{2 * time.Hour, "2h"},
		{2*time.Hour + 30*time.Minute + 20*time.Second, "2h 30m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, humanDuration(tt.in), tt.in.String())
	}
}
