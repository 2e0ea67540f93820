package guards

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/optsignal/internal/greeks"
	"github.com/chidi150c/optsignal/internal/market"
	"github.com/chidi150c/optsignal/internal/signal"
)

var now = time.Date(2024, 11, 13, 15, 0, 0, 0, time.UTC)

func row(sym string, ts time.Time) market.OptionContract {
	return market.OptionContract{
		Symbol:          sym,
		Underlying:      "SPY",
		Strike:          450,
		Expiration:      now.AddDate(0, 0, 7),
		Type:            greeks.Call,
		Bid:             1.40,
		Ask:             1.45,
		Volume:          1200,
		UnderlyingPrice: 450,
		Timestamp:       ts,
	}
}

func reasons(drops []Drop) []signal.Reason {
	var out []signal.Reason
	for _, d := range drops {
		out = append(out, d.Reason)
	}
	return out
}

func TestScreenDrops(t *testing.T) {
	s := New(0, zerolog.Nop())
	crossed := row("B", now)
	crossed.Bid = 2

	rep := s.Screen([]market.OptionContract{
		row("A", now),
		crossed,
		row("C", now.Add(-2*time.Minute)),
		row("A", now),
	}, now)

	require.Len(t, rep.Kept, 1)
	assert.Equal(t, "A", rep.Kept[0].Symbol)
	assert.Equal(t, []signal.Reason{signal.ReasonInvalidInput, signal.ReasonStaleData, signal.ReasonDuplicate}, reasons(rep.Drops))
	assert.True(t, errors.Is(rep.Drops[0].Err, market.ErrInvalidInput))
	assert.True(t, errors.Is(rep.Drops[1].Err, market.ErrStaleData))
}

func TestScreenKeepsNewestRow(t *testing.T) {
	s := New(time.Minute, zerolog.Nop())
	older := row("A", now.Add(-10*time.Second))
	newer := row("A", now)
	newer.Bid, newer.Ask = 1.50, 1.55

	rep := s.Screen([]market.OptionContract{older, row("B", now), newer}, now)
	require.Len(t, rep.Kept, 2)
	assert.Equal(t, "B", rep.Kept[0].Symbol)
	assert.InDelta(t, 1.55, rep.Kept[1].Ask, 1e-12)
	assert.Equal(t, []signal.Reason{signal.ReasonDuplicate}, reasons(rep.Drops))
}

func TestFeedBreaker(t *testing.T) {
	s := New(time.Second, zerolog.Nop())
	s.Threshold, s.Cooldown = 2, time.Minute
	stale := []market.OptionContract{row("A", now.Add(-time.Hour))}
	fresh := func(at time.Time) []market.OptionContract { return []market.OptionContract{row("A", at)} }

	assert.Equal(t, "closed", s.Screen(stale, now).Feed)
	assert.Equal(t, "open", s.Screen(stale, now.Add(time.Second)).Feed)

	// still cooling down, rows are still passed through
	rep := s.Screen(fresh(now.Add(10*time.Second)), now.Add(10*time.Second))
	assert.Equal(t, "open", rep.Feed)
	assert.Len(t, rep.Kept, 1)

	// failed trial reopens
	assert.Equal(t, "open", s.Screen(stale, now.Add(2*time.Minute)).Feed)

	later := now.Add(5 * time.Minute)
	assert.Equal(t, "closed", s.Screen(fresh(later), later).Feed)
	assert.Equal(t, "closed", s.FeedState())
}
