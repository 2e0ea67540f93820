package util

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ny = "America/New_York"

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, "warn")
	log.Info().Msg("hidden")
	log.Warn().Str("k", "v").Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"k":"v"`)

	buf.Reset()
	log = NewLoggerTo(&buf, "nonsense")
	log.Info().Msg("info default")
	assert.Contains(t, buf.String(), "info default")
}

func TestTradingDayHelpers(t *testing.T) {
	loc, err := time.LoadLocation(ny)
	require.NoError(t, err)
	late := time.Date(2024, 11, 13, 23, 30, 0, 0, loc)
	nextMorning := time.Date(2024, 11, 14, 0, 30, 0, 0, loc)

	assert.False(t, SameTradingDay(ny, late, nextMorning))
	assert.True(t, SameTradingDay(ny, late, time.Date(2024, 11, 13, 1, 0, 0, 0, loc)))
	assert.Equal(t, time.Date(2024, 11, 14, 0, 0, 0, 0, loc), NextOpen(ny, late))
}

func TestNextOpenAcrossDST(t *testing.T) {
	loc, _ := time.LoadLocation(ny)
	// 2024-11-03 is 25 hours long in New York
	d := time.Date(2024, 11, 3, 12, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 11, 4, 0, 0, 0, 0, loc), NextOpen(ny, d))
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	now := time.Date(2024, 11, 13, 15, 0, 0, 0, time.UTC)
	snap := SeedForToday(ny, now, decimal.NewFromInt(10000))
	snap.DailyPnL = decimal.RequireFromString("-125.50")
	snap.OpenPositions = 2
	require.NoError(t, SaveSnapshot(path, snap))

	got, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.True(t, got.DailyPnL.Equal(snap.DailyPnL))
	assert.True(t, got.BalanceAtOpen.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, 2, got.OpenPositions)

	open, err := ParseDayOpenISO(got.DayOpenISO)
	require.NoError(t, err)
	assert.True(t, SameTradingDay(ny, open, now))

	_, err = os.Stat(path + ".bak")
	assert.NoError(t, err)
}

func TestParseDayOpenISOEmpty(t *testing.T) {
	_, err := ParseDayOpenISO("")
	assert.Error(t, err)
}

func TestLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.lock")
	f, err := AcquireLock(path)
	require.NoError(t, err)

	_, err = AcquireLock(path)
	assert.Error(t, err)

	ReleaseLock(f)
	f, err = AcquireLock(path)
	require.NoError(t, err)
	ReleaseLock(f)
}
