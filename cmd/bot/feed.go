package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/optsignal/internal/engine"
	"github.com/chidi150c/optsignal/internal/risk"
)

// Feed line types.
const (
	msgScan    = "scan"
	msgTick    = "tick"
	msgOpen    = "open"
	msgPnL     = "pnl"
	msgReset   = "reset"
	msgAccount = "account"
)

// message is one JSON line of the feed.
type message struct {
	Type    string             `json:"type"`
	Batch   *engine.Batch      `json:"batch,omitempty"`
	Limit   int                `json:"limit,omitempty"`
	Tick    *risk.Tick         `json:"tick,omitempty"`
	Open    *openMsg           `json:"open,omitempty"`
	Amount  *decimal.Decimal   `json:"amount,omitempty"`
	Balance *decimal.Decimal   `json:"balance,omitempty"`
	Account *risk.AccountState `json:"account,omitempty"`
	At      time.Time          `json:"at"`
}

type openMsg struct {
	SignalID   string    `json:"signal_id"`
	PositionID string    `json:"position_id"`
	Contract   string    `json:"contract"`
	Side       risk.Side `json:"side"`
	Entry      float64   `json:"entry"`
	Target     float64   `json:"target"`
	Stop       float64   `json:"stop"`
	Quantity   int       `json:"quantity"`
	Expiration time.Time `json:"expiration"`
}

func (o openMsg) request(at time.Time) risk.OpenRequest {
	return risk.OpenRequest{
		SignalID:   o.SignalID,
		PositionID: o.PositionID,
		Contract:   o.Contract,
		Side:       o.Side,
		Entry:      o.Entry,
		Target:     o.Target,
		Stop:       o.Stop,
		Quantity:   o.Quantity,
		Expiration: o.Expiration,
		At:         at,
	}
}

// parseLine decodes and checks one feed line.
func parseLine(line []byte) (message, error) {
	var m message
	if err := json.Unmarshal(line, &m); err != nil {
		return m, fmt.Errorf("decode feed line: %w", err)
	}
	var missing bool
	switch m.Type {
	case msgScan:
		missing = m.Batch == nil
	case msgTick:
		missing = m.Tick == nil
	case msgOpen:
		missing = m.Open == nil
	case msgPnL:
		missing = m.Amount == nil
	case msgReset:
		missing = m.Balance == nil
	case msgAccount:
		missing = m.Account == nil
	default:
		return m, fmt.Errorf("unknown feed message %q", m.Type)
	}
	if missing {
		return m, fmt.Errorf("feed message %q has no payload", m.Type)
	}
	if m.At.IsZero() && m.Batch != nil {
		m.At = m.Batch.Now
	}
	return m, nil
}
