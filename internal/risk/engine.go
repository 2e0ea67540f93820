package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/chidi150c/optsignal/internal/metrics"
	"github.com/chidi150c/optsignal/internal/signal"
)

var (
	ErrUnknownPosition   = errors.New("unknown position")
	ErrDuplicatePosition = errors.New("position already open")
	ErrNoCapacity        = errors.New("no position capacity")
	ErrInvalidPosition   = errors.New("invalid position")
)

var hundred = decimal.NewFromInt(100)

type reservation struct {
	contract  string
	contracts int
	expires   time.Time
}

// Manager owns the session risk state. Admission, position monitoring and
// session events are serialized on one mutex.
type Manager struct {
	mu           sync.Mutex
	lim          Limits
	state        State
	reservations map[string]reservation // by signal ID
	positions    map[string]*Position
	log          zerolog.Logger
}

func NewManager(lim Limits, balance decimal.Decimal, log zerolog.Logger) *Manager {
	m := &Manager{
		lim:          lim,
		state:        State{Balance: balance},
		reservations: make(map[string]reservation),
		positions:    make(map[string]*Position),
		log:          log.With().Str("component", "risk").Logger(),
	}
	m.publish()
	return m
}

func (m *Manager) Limits() Limits { return m.lim }

// ContractsForRisk is floor(balance*risk / (|entry-stop|*100)).
func ContractsForRisk(balance decimal.Decimal, entry, stop, riskPerTrade float64) int {
	perContract := decimal.NewFromFloat(entry).Sub(decimal.NewFromFloat(stop)).Abs().Mul(hundred)
	if perContract.Sign() <= 0 || balance.Sign() <= 0 {
		return 0
	}
	budget := balance.Mul(decimal.NewFromFloat(riskPerTrade))
	return int(budget.Div(perContract).Floor().IntPart())
}

// SizePosition caps ContractsForRisk so that notional stays within MaxPositionPct of balance.
func SizePosition(balance decimal.Decimal, entry, stop float64, lim Limits) int {
	if entry <= 0 || balance.Sign() <= 0 {
		return 0
	}
	n := ContractsForRisk(balance, entry, stop, lim.RiskPerTrade)
	notional := decimal.NewFromFloat(entry).Mul(hundred)
	capN := int(balance.Mul(decimal.NewFromFloat(lim.MaxPositionPct)).Div(notional).Floor().IntPart())
	if capN < n {
		n = capN
	}
	if n < 0 {
		return 0
	}
	return n
}

// ATRStop places the stop multiplier ATRs against the position.
func ATRStop(entry, atr, multiplier float64, side Side) float64 {
	return entry - side.Sign()*multiplier*atr
}

// CheckCircuitBreaker reports whether the breaker is tripped, tripping it
// when the daily loss limit has been reached. Tripped stays tripped until ResetSession.
func (m *Manager) CheckCircuitBreaker() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakerLocked()
}

// CheckConcurrency reports whether a new position slot is free.
func (m *Manager) CheckConcurrency(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(now)
	return m.hasCapacityLocked()
}

// Admit gates a signal and reserves a slot for it in one critical section:
// breaker, concurrency, sizing, reservation.
func (m *Manager) Admit(s signal.Signal, now time.Time) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.publish()

	if m.breakerLocked() {
		return Decision{Reason: signal.ReasonCircuitBreaker}
	}
	if _, ok := m.reservations[s.ID]; ok {
		return Decision{Reason: signal.ReasonDuplicate}
	}
	m.expireLocked(now)
	if !m.hasCapacityLocked() {
		return Decision{Reason: signal.ReasonMaxConcurrent}
	}
	if s.Advisory {
		return Decision{Allow: true, Reason: signal.ReasonAdvisory}
	}
	n := SizePosition(m.state.Balance, s.Entry, s.Stop, m.lim)
	if n == 0 {
		return Decision{Reason: signal.ReasonPositionSizeZero}
	}

	exp := s.ExpiresAt
	if exp.IsZero() || !exp.After(now) {
		exp = now.Add(m.lim.ReservationTTL)
	}
	m.reservations[s.ID] = reservation{contract: s.Contract, contracts: n, expires: exp}
	m.state.Reserved = len(m.reservations)
	m.log.Debug().Str("signal", s.ID).Int("contracts", n).Time("hold_until", exp).Msg("slot reserved")
	return Decision{Allow: true, Reason: signal.ReasonAccepted, Contracts: n}
}

// Release frees the slot held by an admitted signal that will not be acted on.
func (m *Manager) Release(signalID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.publish()
	if _, ok := m.reservations[signalID]; !ok {
		return false
	}
	delete(m.reservations, signalID)
	m.state.Reserved = len(m.reservations)
	return true
}

// OpenPosition converts the signal's reservation into a tracked position.
// Without a reservation it needs a free slot.
func (m *Manager) OpenPosition(req OpenRequest) (Position, error) {
	if req.PositionID == "" || req.Entry <= 0 || req.Quantity <= 0 {
		return Position{}, fmt.Errorf("open %q: %w", req.PositionID, ErrInvalidPosition)
	}
	if req.Side == "" {
		req.Side = Long
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.publish()

	if _, ok := m.positions[req.PositionID]; ok {
		return Position{}, fmt.Errorf("open %q: %w", req.PositionID, ErrDuplicatePosition)
	}
	if r, ok := m.reservations[req.SignalID]; ok {
		delete(m.reservations, req.SignalID)
		m.state.Reserved = len(m.reservations)
		if req.Contract == "" {
			req.Contract = r.contract
		}
	} else {
		m.expireLocked(req.At)
		if !m.hasCapacityLocked() {
			return Position{}, fmt.Errorf("open %q: %w", req.PositionID, ErrNoCapacity)
		}
	}

	p := &Position{
		ID:         req.PositionID,
		SignalID:   req.SignalID,
		Contract:   req.Contract,
		Side:       req.Side,
		EntryPrice: req.Entry,
		Quantity:   req.Quantity,
		Remaining:  req.Quantity,
		Status:     Open,
		LastPrice:  req.Entry,
		Peak:       req.Entry,
		Target:     req.Target,
		Stop:       req.Stop,
		Expiration: req.Expiration,
		OpenedAt:   req.At,
	}
	m.positions[p.ID] = p
	m.recountLocked()
	m.log.Info().Str("position", p.ID).Str("contract", p.Contract).Str("side", string(p.Side)).
		Int("qty", p.Quantity).Float64("entry", p.EntryPrice).Msg("position opened")
	return *p, nil
}

// RecordPnL adds realized P&L from outside the monitor and reports whether the breaker is tripped.
func (m *Manager) RecordPnL(amount decimal.Decimal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.publish()
	m.state.DailyPnL = m.state.DailyPnL.Add(amount)
	return m.breakerLocked()
}

// ResetSession starts a new trading session. Positions stay tracked; closed ones
// are dropped, and so is the external count.
func (m *Manager) ResetSession(balance decimal.Decimal, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.publish()
	m.state.Balance = balance
	m.state.DailyPnL = decimal.Zero
	m.state.BreakerTripped = false
	m.state.SessionStart = now
	m.reservations = make(map[string]reservation)
	m.state.Reserved = 0
	for id, p := range m.positions {
		if p.Status == Closed {
			delete(m.positions, id)
		}
	}
	m.state.External = 0
	m.recountLocked()
	m.log.Info().Str("balance", balance.StringFixed(2)).Msg("session reset")
}

// Restore loads the collaborator's account view into the current session.
// Its open positions are counted on top of the tracked ones.
func (m *Manager) Restore(a AccountState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.publish()
	m.state.Balance = a.Balance
	m.state.DailyPnL = a.DailyPnL
	m.state.External = max(a.OpenPositions, 0)
	m.recountLocked()
	if m.breakerLocked() {
		m.log.Warn().Str("daily_pnl", a.DailyPnL.StringFixed(2)).Msg("restored session is past the daily loss limit")
	}
}

// RestorePositions tracks positions carried over from an earlier run. Closed
// and already tracked ones are skipped; it returns how many were added.
func (m *Manager) RestorePositions(ps []Position) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.publish()
	n := 0
	for _, p := range ps {
		p := p
		if p.Status == Closed || p.Remaining <= 0 || p.EntryPrice <= 0 {
			continue
		}
		if _, ok := m.positions[p.ID]; ok {
			continue
		}
		if p.Peak == 0 {
			p.Peak = p.EntryPrice
		}
		m.positions[p.ID] = &p
		n++
	}
	m.recountLocked()
	if n > 0 {
		m.log.Info().Int("positions", n).Msg("positions restored")
	}
	return n
}

// Performance summarizes closed positions since the last session reset.
func (m *Manager) Performance() Performance {
	m.mu.Lock()
	defer m.mu.Unlock()

	var perf Performance
	var wins, losses float64
	var hold time.Duration
	for _, p := range m.positions {
		if p.Status != Closed {
			perf.Active++
			continue
		}
		perf.Closed++
		perf.TotalPnL = perf.TotalPnL.Add(p.RealizedPnL)
		hold += p.ClosedAt.Sub(p.OpenedAt)
		pct := p.returnPct()
		switch {
		case pct > 0:
			perf.Winners++
			wins += pct
			perf.LargestWin = math.Max(perf.LargestWin, pct)
		case pct < 0:
			perf.Losers++
			losses += pct
			perf.LargestLoss = math.Min(perf.LargestLoss, pct)
		}
	}
	if perf.Closed == 0 {
		return perf
	}
	perf.WinRate = float64(perf.Winners) / float64(perf.Closed) * 100
	if perf.Winners > 0 {
		perf.AvgWinPct = wins / float64(perf.Winners)
	}
	if perf.Losers > 0 {
		perf.AvgLossPct = losses / float64(perf.Losers)
	}
	perf.AvgHold = hold / time.Duration(perf.Closed)
	return perf
}

func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Positions returns copies of the tracked positions ordered by ID.
func (m *Manager) Positions() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) Position(id string) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

func (m *Manager) breakerLocked() bool {
	if m.state.BreakerTripped {
		return true
	}
	if m.state.Balance.Sign() > 0 && m.state.DailyPnL.LessThanOrEqual(m.state.LossLimit(m.lim)) {
		m.state.BreakerTripped = true
		m.log.Warn().Str("daily_pnl", m.state.DailyPnL.StringFixed(2)).
			Str("limit", m.state.LossLimit(m.lim).StringFixed(2)).Msg("circuit breaker tripped")
	}
	return m.state.BreakerTripped
}

// recountLocked derives OpenPositions from the tracked positions and the external count.
func (m *Manager) recountLocked() {
	n := m.state.External
	for _, p := range m.positions {
		if p.Status != Closed {
			n++
		}
	}
	m.state.OpenPositions = n
}

func (m *Manager) hasCapacityLocked() bool {
	return m.state.OpenPositions+len(m.reservations) < m.lim.MaxConcurrent
}

func (m *Manager) expireLocked(now time.Time) {
	if now.IsZero() {
		return
	}
	for id, r := range m.reservations {
		if !now.Before(r.expires) {
			delete(m.reservations, id)
			m.log.Debug().Str("signal", id).Msg("reservation expired")
		}
	}
	m.state.Reserved = len(m.reservations)
}

func (m *Manager) publish() {
	if m.state.BreakerTripped {
		metrics.BreakerTripped.Set(1)
	} else {
		metrics.BreakerTripped.Set(0)
	}
	metrics.OpenPositions.Set(float64(m.state.OpenPositions))
	metrics.ReservedSlots.Set(float64(len(m.reservations)))
	metrics.DailyPnL.Set(m.state.DailyPnL.InexactFloat64())
}
