package signal

type Reason string

const (
	ReasonAccepted            Reason = "accepted"
	ReasonAdvisory            Reason = "advisory"
	ReasonBelowQuality        Reason = "below_quality_threshold"
	ReasonTimeframeConflict   Reason = "timeframe_conflict"
	ReasonFalseBreakout       Reason = "false_breakout"
	ReasonBreakoutUnconfirmed Reason = "breakout_unconfirmed"
	ReasonCircuitBreaker      Reason = "circuit_breaker_tripped"
	ReasonMaxConcurrent       Reason = "max_concurrent_trades"
	ReasonPositionSizeZero    Reason = "position_size_zero"
	ReasonDuplicate           Reason = "duplicate"
	ReasonTruncated           Reason = "truncated"
	ReasonInvalidInput        Reason = "invalid_input"
	ReasonStaleData           Reason = "stale_data"
)

// Stage names where a candidate was decided.
type Stage string

const (
	StageScreen    Stage = "screen"
	StageQuality   Stage = "quality"
	StageTimeframe Stage = "timeframe"
	StageRank      Stage = "rank"
	StageRisk      Stage = "risk"
)

// Decision records the outcome for every evaluated candidate, accepted or not.
type Decision struct {
	SignalID   string   `json:"signal_id"`
	Strategy   Strategy `json:"strategy,omitempty"`
	Contract   string   `json:"contract"`
	Accepted   bool     `json:"accepted"`
	Reason     Reason   `json:"reason_code"`
	Confidence float64  `json:"confidence"`
	Stage      Stage    `json:"stage"`
}

// Reject builds a rejected decision for s.
func Reject(s Signal, stage Stage, reason Reason) Decision {
	return Decision{SignalID: s.ID, Strategy: s.Strategy, Contract: s.Contract, Reason: reason, Confidence: s.Confidence, Stage: stage}
}

func Accept(s Signal, reason Reason) Decision {
	return Decision{SignalID: s.ID, Strategy: s.Strategy, Contract: s.Contract, Accepted: true, Reason: reason, Confidence: s.Confidence, Stage: StageRisk}
}
