package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/chidi150c/optsignal/internal/engine"
	"github.com/chidi150c/optsignal/internal/risk"
	"github.com/chidi150c/optsignal/internal/stream"
)

var start = time.Date(2024, 11, 13, 15, 0, 0, 0, time.UTC)

func newDriver(t *testing.T) *driver {
	t.Helper()
	rm := risk.NewManager(risk.DefaultLimits(), decimal.NewFromInt(10000), zerolog.Nop())
	store := risk.NewSessionStore("America/New_York", filepath.Join(t.TempDir(), "session.json"), zerolog.Nop())
	store.InitAtStartup(start, decimal.NewFromInt(10000), rm)
	eng, err := engine.New(engine.DefaultConfig(), rm, zerolog.Nop())
	require.NoError(t, err)
	return &driver{
		log:     zerolog.Nop(),
		eng:     eng,
		rm:      rm,
		store:   store,
		hub:     stream.NewHub(zerolog.Nop()),
		ticks:   make(chan risk.Tick, 16),
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
}

func TestAccountMessage(t *testing.T) {
	d := newDriver(t)
	feed := strings.Join([]string{
		`{"type":"account","at":"2024-11-13T15:00:00Z","account":{"balance":"10000","daily_pnl":"-50","open_positions":3}}`,
		`{"type":"open","at":"2024-11-13T15:01:00Z","open":{"position_id":"p1","side":"long","entry":1.45,"quantity":3}}`,
	}, "\n")
	require.NoError(t, d.consume(context.Background(), strings.NewReader(feed), nil))
	s := d.rm.Snapshot()
	assert.Equal(t, 3, s.External)
	assert.Equal(t, 3, s.OpenPositions)
	assert.True(t, s.DailyPnL.Equal(decimal.NewFromInt(-50)))
	_, ok := d.rm.Position("p1")
	assert.False(t, ok, "no slot left for p1")

	// the next trading day drops the external count
	next := `{"type":"open","at":"2024-11-14T15:00:00Z","open":{"position_id":"p1","side":"long","entry":1.45,"quantity":3}}`
	require.NoError(t, d.consume(context.Background(), strings.NewReader(next), nil))
	s = d.rm.Snapshot()
	assert.Zero(t, s.External)
	assert.Equal(t, 1, s.OpenPositions)
}

func TestConsumeTracksScans(t *testing.T) {
	d := newDriver(t)
	line := `{"type":"scan","batch":{"now":"2024-11-13T14:45:00Z"}}`
	feed := strings.Repeat(line+"\n", 5)
	require.NoError(t, d.consume(context.Background(), strings.NewReader(feed), nil))

	done := make(chan struct{})
	go func() {
		_ = d.scans.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scans still running")
	}
}
