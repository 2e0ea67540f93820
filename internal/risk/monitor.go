package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/chidi150c/optsignal/internal/metrics"
)

const (
	profitLockGain = 1.0  // +100%
	stopLossGain   = -0.5 // -50%
)

// OnPrice applies the exit rules to one position at a new mark, at most one
// close per mark, in this order: expiration, a 50% loss, the stop level, the
// first 100% gain (half), the target level, then the trailing stop. A gain
// past BreakevenPct moves a supplied stop up to entry. Closed positions
// ignore further prices.
func (m *Manager) OnPrice(positionID string, price float64, at time.Time) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[positionID]
	if !ok {
		return nil, fmt.Errorf("price for %q: %w", positionID, ErrUnknownPosition)
	}
	if p.Status == Closed || price <= 0 {
		return nil, nil
	}
	defer m.publish()

	p.LastPrice = price
	if p.Peak == 0 || p.beyond(price, p.Peak) {
		p.Peak = price
	}
	var events []Event
	switch gain := p.Gain(price); {
	case !p.Expiration.IsZero() && !at.Before(p.Expiration):
		events = append(events, m.closeLocked(p, p.Remaining, price, Expiration, at))
	case gain <= stopLossGain:
		events = append(events, m.closeLocked(p, p.Remaining, price, StopLoss, at))
	case p.Stop > 0 && p.beyond(p.Stop, price):
		events = append(events, m.closeLocked(p, p.Remaining, price, StopHit, at))
	case gain >= profitLockGain && !p.ProfitLocked:
		n := p.Remaining / 2
		if n == 0 {
			n = p.Remaining
		}
		p.ProfitLocked = true
		events = append(events, m.closeLocked(p, n, price, ProfitLock, at))
	case p.Target > 0 && p.beyond(price, p.Target):
		events = append(events, m.closeLocked(p, p.Remaining, price, TargetHit, at))
	case m.trailingLocked(p, price, gain):
		events = append(events, m.closeLocked(p, p.Remaining, price, TrailingStop, at))
	default:
		m.breakevenLocked(p, gain)
	}
	p.UnrealizedPnL = m.pnl(p, p.Remaining, price)
	return events, nil
}

// trailingLocked reports a retrace of TrailingStopPct from the peak while the
// position is still up at least that much.
func (m *Manager) trailingLocked(p *Position, price, gain float64) bool {
	pct := m.lim.TrailingStopPct
	if pct <= 0 || gain < pct {
		return false
	}
	return p.Side.Sign()*(p.Peak-price)/p.Peak >= pct
}

func (m *Manager) breakevenLocked(p *Position, gain float64) {
	if m.lim.BreakevenPct <= 0 || p.AtBreakeven || p.Stop <= 0 || gain < m.lim.BreakevenPct {
		return
	}
	p.AtBreakeven = true
	if p.beyond(p.Stop, p.EntryPrice) {
		return
	}
	m.log.Info().Str("position", p.ID).Float64("from", p.Stop).Float64("to", p.EntryPrice).Msg("stop moved to breakeven")
	p.Stop = p.EntryPrice
}

// ExpireDue closes every position whose expiration has passed at its last mark.
func (m *Manager) ExpireDue(now time.Time) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.publish()

	var events []Event
	for _, p := range m.positions {
		if p.Status == Closed || p.Expiration.IsZero() || now.Before(p.Expiration) {
			continue
		}
		events = append(events, m.closeLocked(p, p.Remaining, p.LastPrice, Expiration, now))
		p.UnrealizedPnL = decimal.Zero
	}
	return events
}

func (m *Manager) pnl(p *Position, qty int, price float64) decimal.Decimal {
	move := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(p.EntryPrice))
	if p.Side == Short {
		move = move.Neg()
	}
	return move.Mul(decimal.NewFromInt(int64(qty))).Mul(hundred)
}

func (m *Manager) closeLocked(p *Position, qty int, price float64, trig Trigger, at time.Time) Event {
	realized := m.pnl(p, qty, price)
	p.Remaining -= qty
	p.RealizedPnL = p.RealizedPnL.Add(realized)
	m.state.DailyPnL = m.state.DailyPnL.Add(realized)

	act := PartialClose
	if p.Remaining == 0 {
		act = FullClose
		p.Status = Closed
		p.ClosedAt = at
		m.recountLocked()
	} else {
		p.Status = PartiallyClosed
	}
	m.breakerLocked()

	m.log.Info().Str("position", p.ID).Str("action", string(act)).Str("trigger", string(trig)).
		Int("qty", qty).Float64("price", price).Str("realized", realized.StringFixed(2)).Msg("position closed")
	return Event{
		PositionID:  p.ID,
		Contract:    p.Contract,
		Action:      act,
		Trigger:     trig,
		Quantity:    qty,
		Price:       price,
		RealizedPnL: realized,
		At:          at,
	}
}

// Tick is a price update for one open position.
type Tick struct {
	PositionID string    `json:"position_id"`
	Price      float64   `json:"price"`
	At         time.Time `json:"at"`
}

// Monitor drives OnPrice from a tick stream independently of scans.
type Monitor struct {
	m    *Manager
	log  zerolog.Logger
	emit func(Event)

	// SweepEvery closes expired positions without waiting for a tick; 0 disables it.
	SweepEvery time.Duration
	now        func() time.Time
}

func NewMonitor(m *Manager, log zerolog.Logger, emit func(Event)) *Monitor {
	if emit == nil {
		emit = func(Event) {}
	}
	return &Monitor{m: m, log: log.With().Str("component", "monitor").Logger(), emit: emit, now: time.Now}
}

// Run consumes ticks until ctx is done or the channel closes.
func (mo *Monitor) Run(ctx context.Context, ticks <-chan Tick) error {
	var sweep <-chan time.Time
	if mo.SweepEvery > 0 {
		t := time.NewTicker(mo.SweepEvery)
		defer t.Stop()
		sweep = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sweep:
			mo.publish(mo.m.ExpireDue(mo.now()))
		case tk, ok := <-ticks:
			if !ok {
				return nil
			}
			if tk.At.IsZero() {
				tk.At = mo.now()
			}
			events, err := mo.m.OnPrice(tk.PositionID, tk.Price, tk.At)
			if err != nil {
				mo.log.Warn().Err(err).Msg("tick dropped")
				continue
			}
			mo.publish(events)
		}
	}
}

func (mo *Monitor) publish(events []Event) {
	for _, e := range events {
		metrics.MonitorEvents.WithLabelValues(string(e.Action), string(e.Trigger)).Inc()
		mo.emit(e)
	}
}
