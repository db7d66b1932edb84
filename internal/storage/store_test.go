package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "adhanbot/pkg/logx"
)

func sampleUser(id string) UserSettings {
	return UserSettings{
		UserID:            id,
		Country:           "Turkey",
		City:              "Istanbul",
		CalculationMethod: 13,
		AsrSchool:         1,
		Timezone:          "Europe/Istanbul",
	}
}

func openDrivers(t *testing.T) map[string]func() Store {
	t.Helper()
	dir := t.TempDir()
	return map[string]func() Store{
		"file": func() Store {
			st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "file", "bot.db")}, logx.Nop())
			require.NoError(t, err)
			return st
		},
		"sqlite": func() Store {
			st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "sqlite", "bot.db")}, logx.Nop())
			require.NoError(t, err)
			return st
		},
	}
}

func TestStoreRoundTripAndReopen(t *testing.T) {
	for name, open := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open()

			_, err := st.GetUser(ctx, "42")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, st.PutUser(ctx, sampleUser("42")))
			require.NoError(t, st.SetLoopActive(ctx, "42", true))

			got, err := st.GetUser(ctx, "42")
			require.NoError(t, err)
			assert.Equal(t, "Istanbul", got.City)
			assert.True(t, got.LoopActive)
			assert.False(t, got.UpdatedAt.IsZero())

			require.NoError(t, st.AppendAudit(ctx, AuditEntry{UserID: "42", Action: "setup", OK: true}))
			require.NoError(t, st.Close())

			st = open()
			defer st.Close()
			got, err = st.GetUser(ctx, "42")
			require.NoError(t, err)
			assert.True(t, got.LoopActive)
			assert.Equal(t, 13, got.CalculationMethod)
		})
	}
}

func TestPutUserKeepsLoopFlag(t *testing.T) {
	for name, open := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open()
			defer st.Close()

			require.NoError(t, st.PutUser(ctx, sampleUser("42")))
			require.NoError(t, st.SetLoopActive(ctx, "42", true))
			stale, err := st.GetUser(ctx, "42")
			require.NoError(t, err)
			require.True(t, stale.LoopActive)

			// a stop lands between the read and the settings write
			require.NoError(t, st.SetLoopActive(ctx, "42", false))
			stale.CalculationMethod = 3
			stale.UpdatedAt = time.Time{}
			require.NoError(t, st.PutUser(ctx, stale))

			got, err := st.GetUser(ctx, "42")
			require.NoError(t, err)
			assert.False(t, got.LoopActive)
			assert.Equal(t, 3, got.CalculationMethod)
		})
	}
}

func TestStoreSetLoopActiveUnknownUserIsNoop(t *testing.T) {
	for name, open := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open()
			defer st.Close()

			require.NoError(t, st.SetLoopActive(ctx, "ghost", true))
			_, err := st.GetUser(ctx, "ghost")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreForEachUserOrderedAndStoppable(t *testing.T) {
	for name, open := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open()
			defer st.Close()

			for _, id := range []string{"b", "a", "c"} {
				require.NoError(t, st.PutUser(ctx, sampleUser(id)))
			}

			var seen []string
			require.NoError(t, st.ForEachUser(ctx, func(u UserSettings) error {
				seen = append(seen, u.UserID)
				return nil
			}))
			assert.Equal(t, []string{"a", "b", "c"}, seen)

			stop := errors.New("stop")
			seen = nil
			err := st.ForEachUser(ctx, func(u UserSettings) error {
				seen = append(seen, u.UserID)
				return stop
			})
			assert.ErrorIs(t, err, stop)
			assert.Len(t, seen, 1)
		})
	}
}

func TestPutUserRejectsInvalidSettings(t *testing.T) {
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	bad := sampleUser("1")
	bad.CalculationMethod = 6
	err = st.PutUser(context.Background(), bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calculationmethod")

	bad = sampleUser("1")
	bad.Timezone = "Mars/Olympus"
	assert.Error(t, st.PutUser(context.Background(), bad))
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	_, err := Open(Config{Driver: "none"}, logx.Nop())
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = Open(Config{Driver: "postgres", Path: "x"}, logx.Nop())
	assert.Error(t, err)
}

func TestLocation(t *testing.T) {
	u := sampleUser("1")
	loc, err := u.Location()
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	assert.Equal(t, "Europe/Istanbul", loc.String())

	u.Timezone = ""
	_, err = u.Location()
	assert.Error(t, err)
}
