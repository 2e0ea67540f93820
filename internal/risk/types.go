package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/optsignal/internal/signal"
)

// Limits defines static configuration for risk controls.
type Limits struct {
	RiskPerTrade    float64 // fraction of balance risked per trade (0.02 = 2%)
	MaxPositionPct  float64 // notional cap per position as a fraction of balance
	MaxDailyLossPct float64 // daily kill-switch loss threshold as a fraction of balance
	MaxConcurrent   int     // open + reserved positions allowed at once

	ReservationTTL time.Duration // slot hold for admitted signals without an expiry

	// Exits beyond the fixed profit lock and stop; 0 disables.
	TrailingStopPct float64 // armed at this gain, fires on this retrace from the peak
	BreakevenPct    float64 // gain at which a supplied stop moves up to entry
}

func DefaultLimits() Limits {
	return Limits{
		RiskPerTrade:    0.02,
		MaxPositionPct:  0.05,
		MaxDailyLossPct: 0.03,
		MaxConcurrent:   3,
		ReservationTTL:  15 * time.Minute,
		TrailingStopPct: 0.15,
		BreakevenPct:    0.10,
	}
}

// State is the session-wide risk state. Only Manager mutates it.
type State struct {
	Balance        decimal.Decimal `json:"balance"`        // account balance at session start
	DailyPnL       decimal.Decimal `json:"daily_pnl"`      // cumulative realized P&L this session
	OpenPositions  int             `json:"open_positions"` // tracked non-closed plus External
	External       int             `json:"external_positions"`
	Reserved       int             `json:"reserved"`
	BreakerTripped bool            `json:"breaker_tripped"`
	SessionStart   time.Time       `json:"session_start"`
}

// LossLimit is the (negative) daily P&L at which the breaker trips.
func (s State) LossLimit(l Limits) decimal.Decimal {
	return s.Balance.Mul(decimal.NewFromFloat(l.MaxDailyLossPct)).Neg()
}

// AccountState is what the collaborator knows about the account. OpenPositions
// counts positions held outside the manager's tracking; they hold slots until
// the next session reset or account update.
type AccountState struct {
	Balance       decimal.Decimal `json:"balance"`
	DailyPnL      decimal.Decimal `json:"daily_pnl"`
	OpenPositions int             `json:"open_positions"`
}

// Decision is returned when evaluating a signal against limits.
type Decision struct {
	Allow     bool          // true if admitted
	Reason    signal.Reason // accepted, advisory or the denial reason
	Contracts int           // suggested contract count
}

type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Sign is +1 for long and -1 for short.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

type Status string

const (
	Open            Status = "open"
	PartiallyClosed Status = "partially_closed"
	Closed          Status = "closed"
)

type Position struct {
	ID            string          `json:"id"`
	SignalID      string          `json:"signal_id"`
	Contract      string          `json:"contract"`
	Side          Side            `json:"side"`
	EntryPrice    float64         `json:"entry_price"`
	Quantity      int             `json:"quantity"`
	Remaining     int             `json:"remaining"`
	Status        Status          `json:"status"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	LastPrice     float64         `json:"last_price"`
	Expiration    time.Time       `json:"expiration"`
	Target        float64         `json:"target,omitempty"`
	Stop          float64         `json:"stop,omitempty"`
	Peak          float64         `json:"peak"` // best mark in the position's favor
	ProfitLocked  bool            `json:"profit_locked"`
	AtBreakeven   bool            `json:"at_breakeven"`
	OpenedAt      time.Time       `json:"opened_at"`
	ClosedAt      time.Time       `json:"closed_at,omitempty"`
}

// Gain is the fractional move from entry in the position's favor.
func (p Position) Gain(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return p.Side.Sign() * (price - p.EntryPrice) / p.EntryPrice
}

// returnPct is realized P&L as a percent of the entry cost.
func (p Position) returnPct() float64 {
	cost := p.EntryPrice * float64(p.Quantity) * 100
	if cost <= 0 {
		return 0
	}
	return p.RealizedPnL.InexactFloat64() / cost * 100
}

// beyond reports whether price has reached level on the favorable side.
func (p Position) beyond(price, level float64) bool {
	return p.Side.Sign()*(price-level) >= 0
}

// OpenRequest records a collaborator acting on a signal.
type OpenRequest struct {
	SignalID   string
	PositionID string
	Contract   string
	Side       Side
	Entry      float64
	Target     float64 // optional exit levels from the signal
	Stop       float64
	Quantity   int
	Expiration time.Time
	At         time.Time
}

type Action string

const (
	PartialClose Action = "partial_close"
	FullClose    Action = "full_close"
)

type Trigger string

const (
	ProfitLock   Trigger = "profit_lock"
	StopLoss     Trigger = "stop_loss"
	Expiration   Trigger = "expiration"
	TargetHit    Trigger = "target_hit"
	StopHit      Trigger = "stop_hit"
	TrailingStop Trigger = "trailing_stop"
)

// Event is emitted by the position monitor for every close it performs.
type Event struct {
	PositionID  string          `json:"position_id"`
	Contract    string          `json:"contract"`
	Action      Action          `json:"action"`
	Trigger     Trigger         `json:"trigger"`
	Quantity    int             `json:"quantity"`
	Price       float64         `json:"price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	At          time.Time       `json:"at"`
}

// Performance summarizes the positions closed this session.
type Performance struct {
	Closed      int             `json:"closed"`
	Active      int             `json:"active"`
	Winners     int             `json:"winners"`
	Losers      int             `json:"losers"`
	WinRate     float64         `json:"win_rate"` // percent
	AvgWinPct   float64         `json:"avg_win_pct"`
	AvgLossPct  float64         `json:"avg_loss_pct"`
	LargestWin  float64         `json:"largest_win_pct"`
	LargestLoss float64         `json:"largest_loss_pct"`
	TotalPnL    decimal.Decimal `json:"total_pnl"`
	AvgHold     time.Duration   `json:"avg_hold"`
}
