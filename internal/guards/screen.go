// Package guards screens chain snapshots before they reach the engine.
package guards

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/chidi150c/optsignal/internal/market"
	"github.com/chidi150c/optsignal/internal/metrics"
	"github.com/chidi150c/optsignal/internal/signal"
)

// DefaultStaleAfter is the freshness tolerance for a snapshot row.
const DefaultStaleAfter = 45 * time.Second

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerHalfOpen
	breakerOpen
)

func (b breakerState) String() string {
	switch b {
	case breakerHalfOpen:
		return "half_open"
	case breakerOpen:
		return "open"
	}
	return "closed"
}

var (
	metricRowsScreened = prometheus.NewCounter(prometheus.CounterOpts{Name: "optsignal_rows_screened_total", Help: "Snapshot rows seen by the screen"})
	metricFeedBreaker  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "optsignal_feed_breaker_state", Help: "0=closed, 1=half_open, 2=open"})
)

func init() {
	prometheus.MustRegister(metricRowsScreened, metricFeedBreaker)
	metricFeedBreaker.Set(0)
}

// Drop records a row removed by the screen.
type Drop struct {
	Contract string
	Reason   signal.Reason
	Err      error
}

// Report is the outcome of one Screen call.
type Report struct {
	Kept  []market.OptionContract
	Drops []Drop
	// Feed is the feed breaker state after this batch: closed, half_open or open.
	Feed string
}

// Screen drops invalid, stale and duplicate rows and tracks feed health.
// A batch whose drop ratio reaches BadRatio counts as a failure; Threshold
// consecutive failures open the feed breaker until Cooldown has passed, after
// which the next batch is a trial. The breaker is advisory: it never withholds rows.
type Screen struct {
	StaleAfter time.Duration
	BadRatio   float64
	Threshold  int
	Cooldown   time.Duration

	log zerolog.Logger

	bMu        sync.Mutex
	bState     breakerState
	failStreak int
	openedAt   time.Time
}

func New(staleAfter time.Duration, log zerolog.Logger) *Screen {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Screen{
		StaleAfter: staleAfter,
		BadRatio:   0.5,
		Threshold:  3,
		Cooldown:   time.Minute,
		log:        log.With().Str("component", "guards").Logger(),
	}
}

func (s *Screen) Screen(rows []market.OptionContract, now time.Time) Report {
	metricRowsScreened.Add(float64(len(rows)))
	var rep Report

	// newest row per symbol wins
	latest := make(map[string]int, len(rows))
	for i, c := range rows {
		if err := c.Validate(); err != nil {
			rep.Drops = append(rep.Drops, s.drop(c.Symbol, signal.ReasonInvalidInput, err))
			continue
		}
		if err := c.CheckFresh(now, s.StaleAfter); err != nil {
			rep.Drops = append(rep.Drops, s.drop(c.Symbol, signal.ReasonStaleData, err))
			continue
		}
		if j, ok := latest[c.Symbol]; ok {
			if rowKey(rows[j]) == rowKey(c) || !c.Timestamp.After(rows[j].Timestamp) {
				rep.Drops = append(rep.Drops, s.drop(c.Symbol, signal.ReasonDuplicate, errDuplicate))
				continue
			}
			rep.Drops = append(rep.Drops, s.drop(c.Symbol, signal.ReasonDuplicate, errSuperseded))
		}
		latest[c.Symbol] = i
	}
	for i, c := range rows {
		if j, ok := latest[c.Symbol]; ok && j == i {
			rep.Kept = append(rep.Kept, c)
		}
	}

	bad := 0
	for _, d := range rep.Drops {
		if d.Reason != signal.ReasonDuplicate {
			bad++
		}
	}
	rep.Feed = s.observe(now, len(rows) > 0 && float64(bad)/float64(len(rows)) >= s.BadRatio).String()
	return rep
}

var (
	errDuplicate  = errors.New("duplicate row")
	errSuperseded = errors.New("superseded by a newer row")
)

func (s *Screen) drop(sym string, reason signal.Reason, err error) Drop {
	metrics.ContractsDropped.WithLabelValues(string(reason)).Inc()
	s.log.Debug().Str("contract", sym).Str("reason", string(reason)).Err(err).Msg("row dropped")
	return Drop{Contract: sym, Reason: reason, Err: err}
}

// rowKey fingerprints the quote fields of a row.
func rowKey(c market.OptionContract) string {
	b := []byte(c.Symbol)
	b = strconv.AppendFloat(b, c.Bid, 'f', 4, 64)
	b = strconv.AppendFloat(b, c.Ask, 'f', 4, 64)
	b = strconv.AppendInt(b, c.Volume, 10)
	b = strconv.AppendInt(b, c.Timestamp.UnixNano(), 10)
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:8])
}

func (s *Screen) FeedState() string {
	s.bMu.Lock()
	defer s.bMu.Unlock()
	return s.bState.String()
}

func (s *Screen) observe(now time.Time, failed bool) breakerState {
	s.bMu.Lock()
	defer s.bMu.Unlock()

	if s.bState == breakerOpen && now.Sub(s.openedAt) >= s.Cooldown {
		// cooldown over: this batch is the trial
		s.bState = breakerHalfOpen
	}
	prev := s.bState
	switch s.bState {
	case breakerClosed:
		if !failed {
			s.failStreak = 0
			break
		}
		s.failStreak++
		if s.failStreak >= s.Threshold {
			s.openedAt = now
			s.bState = breakerOpen
		}
	case breakerHalfOpen:
		if failed {
			// failed trial -> reopen immediately
			s.openedAt = now
			s.bState = breakerOpen
		} else {
			s.bState = breakerClosed
			s.failStreak = 0
		}
	case breakerOpen:
		if failed {
			s.openedAt = now
		}
	}
	metricFeedBreaker.Set(float64(s.bState))
	if s.bState != prev {
		s.log.Warn().Str("from", prev.String()).Str("to", s.bState.String()).Msg("feed breaker")
	}
	return s.bState
}
