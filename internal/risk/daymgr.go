package risk

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/chidi150c/optsignal/internal/util"
)

// SessionStore persists the manager's session state and restores it after a
// restart within the same trading day.
type SessionStore struct {
	TZ   string
	Path string // snapshot file path

	dayOpen time.Time
	log     zerolog.Logger
}

func NewSessionStore(tz, path string, log zerolog.Logger) *SessionStore {
	if tz == "" {
		tz = "UTC"
	}
	return &SessionStore{TZ: tz, Path: path, log: log.With().Str("component", "session").Logger()}
}

// InitAtStartup loads or seeds today's snapshot and starts the manager's session.
// A snapshot from an earlier day is replaced; balance is then the new session
// basis. Persisted positions are tracked again either way.
func (st *SessionStore) InitAtStartup(now time.Time, balance decimal.Decimal, m *Manager) util.SessionSnapshot {
	seed := util.SeedForToday(st.TZ, now, balance)
	st.dayOpen = util.TodayOpen(st.TZ, now)

	snap, err := util.LoadSnapshot(st.Path)
	if err != nil {
		m.ResetSession(balance, now)
		st.save(seed)
		st.log.Info().Str("tz", st.TZ).Msg("seeded snapshot for today")
		return seed
	}

	dayOpenPrev, err := util.ParseDayOpenISO(snap.DayOpenISO)
	if err != nil || !util.SameTradingDay(st.TZ, dayOpenPrev, now) {
		// Old snapshot → start a fresh trading day
		m.ResetSession(balance, now)
		m.RestorePositions(st.positions(snap))
		seed.Positions = snap.Positions
		seed.OpenPositions = m.Snapshot().OpenPositions
		st.save(seed)
		st.log.Info().Str("tz", st.TZ).Msg("rolled snapshot to today")
		return seed
	}

	// Same day: reuse. Open positions the snapshot counts but does not carry
	// stay external until the next reset.
	m.ResetSession(snap.BalanceAtOpen, now)
	n := m.RestorePositions(st.positions(snap))
	m.Restore(AccountState{Balance: snap.BalanceAtOpen, DailyPnL: snap.DailyPnL, OpenPositions: snap.OpenPositions - n})
	if snap.BreakerTripped {
		m.mu.Lock()
		m.state.BreakerTripped = true
		m.publish()
		m.mu.Unlock()
	}
	st.log.Info().Str("tz", st.TZ).Str("daily_pnl", snap.DailyPnL.StringFixed(2)).Msg("loaded snapshot for today")
	return snap
}

// RolloverDue reports whether now is past the current trading day.
func (st *SessionStore) RolloverDue(now time.Time) bool {
	return !st.dayOpen.IsZero() && !util.SameTradingDay(st.TZ, st.dayOpen, now)
}

// Rollover resets the manager for a new day with balance as the session basis.
func (st *SessionStore) Rollover(now time.Time, balance decimal.Decimal, m *Manager) error {
	m.ResetSession(balance, now)
	st.dayOpen = util.TodayOpen(st.TZ, now)
	st.log.Info().Time("day_open", st.dayOpen).Int("open_positions", m.Snapshot().OpenPositions).Msg("day rollover")
	return st.Persist(now, m)
}

// Persist writes the manager's current state for the current day.
func (st *SessionStore) Persist(now time.Time, m *Manager) error {
	s := m.Snapshot()
	snap := util.SeedForToday(st.TZ, now, s.Balance)
	snap.DailyPnL = s.DailyPnL
	snap.OpenPositions = s.OpenPositions
	snap.BreakerTripped = s.BreakerTripped
	var live []Position
	for _, p := range m.Positions() {
		if p.Status != Closed {
			live = append(live, p)
		}
	}
	if len(live) > 0 {
		b, err := json.Marshal(live)
		if err != nil {
			return fmt.Errorf("encode positions: %w", err)
		}
		snap.Positions = b
	}
	return util.SaveSnapshot(st.Path, snap)
}

func (st *SessionStore) positions(snap util.SessionSnapshot) []Position {
	if len(snap.Positions) == 0 {
		return nil
	}
	var ps []Position
	if err := json.Unmarshal(snap.Positions, &ps); err != nil {
		st.log.Warn().Err(err).Msg("snapshot positions unreadable")
		return nil
	}
	return ps
}

func (st *SessionStore) save(s util.SessionSnapshot) {
	if err := util.SaveSnapshot(st.Path, s); err != nil {
		st.log.Warn().Err(err).Str("path", st.Path).Msg("snapshot save failed")
	}
}
