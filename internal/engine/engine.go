// Package engine runs a scan: screening, the per-contract feature stage and
// detector pipeline on a bounded worker pool, ranking and the risk gate.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/chidi150c/optsignal/internal/candles"
	"github.com/chidi150c/optsignal/internal/greeks"
	"github.com/chidi150c/optsignal/internal/guards"
	"github.com/chidi150c/optsignal/internal/indicators"
	"github.com/chidi150c/optsignal/internal/market"
	"github.com/chidi150c/optsignal/internal/metrics"
	"github.com/chidi150c/optsignal/internal/quality"
	"github.com/chidi150c/optsignal/internal/risk"
	"github.com/chidi150c/optsignal/internal/signal"
	"github.com/chidi150c/optsignal/internal/strategy"
	"github.com/chidi150c/optsignal/internal/timeframe"
)

// ErrSuperseded is returned by a scan that a newer scan overtook.
var ErrSuperseded = errors.New("scan superseded")

type Config struct {
	Workers       int
	RiskFreeRate  float64
	MinConfidence float64
	StaleAfter    time.Duration
	MaxSignals    int      // used when Scan is called with limit <= 0
	Strategies    []string // empty enables every detector
	Params        strategy.Params
	Timeframe     timeframe.Params
}

func DefaultConfig() Config {
	return Config{
		Workers:       8,
		RiskFreeRate:  0.05,
		MinConfidence: quality.DefaultMinConfidence,
		StaleAfter:    guards.DefaultStaleAfter,
		MaxSignals:    10,
		Params:        strategy.DefaultParams(),
		Timeframe:     timeframe.DefaultParams(),
	}
}

// Batch is one scan's input snapshot. History is keyed by underlying symbol.
type Batch struct {
	Contracts []market.OptionContract   `json:"contracts"`
	History   map[string]market.History `json:"history"`
	Now       time.Time                 `json:"now"`
}

type Result struct {
	ScanID    string            `json:"scan_id"`
	Signals   []signal.Signal   `json:"signals"`
	Decisions []signal.Decision `json:"decisions"`
	Halted    bool              `json:"halted"`
	Reason    signal.Reason     `json:"reason,omitempty"`
	Feed      string            `json:"feed,omitempty"`
}

type Engine struct {
	cfg       Config
	detectors []strategy.Detector
	quality   quality.Filter
	mtf       timeframe.Confirmer
	screen    *guards.Screen
	risk      *risk.Manager
	log       zerolog.Logger

	gen atomic.Uint64
}

func New(cfg Config, rm *risk.Manager, log zerolog.Logger) (*Engine, error) {
	if rm == nil {
		return nil, errors.New("engine: nil risk manager")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	dets, err := strategy.Build(cfg.Strategies, cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	log = log.With().Str("component", "engine").Logger()
	return &Engine{
		cfg:       cfg,
		detectors: dets,
		quality:   quality.New(cfg.MinConfidence),
		mtf:       timeframe.New(cfg.Timeframe),
		screen:    guards.New(cfg.StaleAfter, log),
		risk:      rm,
		log:       log,
	}, nil
}

// view is the per-underlying snapshot shared by every contract on it.
type view struct {
	frames   map[market.Timeframe]indicators.Features
	patterns map[market.Timeframe][]candles.Pattern
}

// slot holds one contract's results; each worker owns exactly one slot.
type slot struct {
	contract  market.OptionContract
	dropped   bool
	signals   []signal.Signal
	decisions []signal.Decision
}

// Scan evaluates a batch and returns at most limit admitted signals. Starting a
// scan supersedes any scan still in flight; those return ErrSuperseded.
func (e *Engine) Scan(ctx context.Context, b Batch, limit int) (Result, error) {
	gen := e.gen.Add(1)
	start := time.Now()
	defer func() { metrics.ScanDuration.Observe(time.Since(start).Seconds()) }()

	now := b.Now
	if now.IsZero() {
		now = time.Now()
	}
	if limit <= 0 {
		limit = e.cfg.MaxSignals
	}
	res := Result{ScanID: uuid.NewString()}
	log := e.log.With().Str("scan", res.ScanID).Logger()

	if e.risk.CheckCircuitBreaker() {
		res.Halted, res.Reason = true, signal.ReasonCircuitBreaker
		metrics.Decisions.WithLabelValues(string(signal.ReasonCircuitBreaker)).Inc()
		log.Warn().Msg("circuit breaker tripped, scan halted")
		return res, nil
	}

	rep := e.screen.Screen(b.Contracts, now)
	res.Feed = rep.Feed
	for _, d := range rep.Drops {
		res.Decisions = append(res.Decisions, signal.Decision{Contract: d.Contract, Reason: d.Reason, Stage: signal.StageScreen})
	}

	slots := make([]slot, len(rep.Kept))
	for i, c := range rep.Kept {
		slots[i].contract = c
	}
	views, err := e.features(ctx, slots, b.History, now)
	if err != nil {
		return res, err
	}
	if e.stale(gen) {
		metrics.ScansSuperseded.Inc()
		return res, ErrSuperseded
	}

	chains := make(map[string][]market.OptionContract)
	for _, s := range slots {
		if !s.dropped {
			chains[s.contract.Underlying] = append(chains[s.contract.Underlying], s.contract)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := range slots {
		if slots[i].dropped {
			continue
		}
		sl := &slots[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if e.stale(gen) {
				return nil
			}
			v := views[sl.contract.Underlying]
			in := strategy.Input{
				Contract: sl.contract,
				Chain:    chains[sl.contract.Underlying],
				Frames:   v.frames,
				Now:      now,
			}
			sl.signals, sl.decisions = e.evaluate(in, v.patterns, res.ScanID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	if e.stale(gen) {
		metrics.ScansSuperseded.Inc()
		return res, ErrSuperseded
	}

	var cands []signal.Signal
	for _, s := range slots {
		res.Decisions = append(res.Decisions, s.decisions...)
		cands = append(cands, s.signals...)
	}
	ranked, dups := Rank(cands)
	res.Decisions = append(res.Decisions, dups...)

	if err := e.gate(gen, ranked, limit, now, &res); err != nil {
		return res, err
	}

	for _, d := range res.Decisions {
		metrics.Decisions.WithLabelValues(string(d.Reason)).Inc()
	}
	log.Info().Int("contracts", len(b.Contracts)).Int("candidates", len(cands)).
		Int("signals", len(res.Signals)).Dur("took", time.Since(start)).Msg("scan complete")
	return res, nil
}

// gate admits ranked signals in order until limit are accepted. A scan
// overtaken part way through hands back the slots it already reserved.
func (e *Engine) gate(gen uint64, ranked []signal.Signal, limit int, now time.Time, res *Result) error {
	for _, s := range ranked {
		if len(res.Signals) >= limit {
			res.Decisions = append(res.Decisions, signal.Reject(s, signal.StageRank, signal.ReasonTruncated))
			continue
		}
		if e.stale(gen) {
			for _, held := range res.Signals {
				e.risk.Release(held.ID)
			}
			res.Signals = nil
			metrics.ScansSuperseded.Inc()
			return ErrSuperseded
		}
		d := e.risk.Admit(s, now)
		if !d.Allow {
			res.Decisions = append(res.Decisions, signal.Reject(s, signal.StageRisk, d.Reason))
			continue
		}
		s.Contracts = d.Contracts
		res.Signals = append(res.Signals, s)
		res.Decisions = append(res.Decisions, signal.Accept(s, d.Reason))
	}
	for _, s := range res.Signals {
		metrics.SignalsEmitted.WithLabelValues(string(s.Strategy)).Inc()
	}
	return nil
}

// stale reports whether a newer scan has started since gen.
func (e *Engine) stale(gen uint64) bool { return e.gen.Load() != gen }

// features enriches every slot's contract and computes indicator frames and
// candlestick patterns per underlying.
func (e *Engine) features(ctx context.Context, slots []slot, hist map[string]market.History, now time.Time) (map[string]view, error) {
	unders := make([]string, 0)
	seen := make(map[string]bool)
	for _, s := range slots {
		if u := s.contract.Underlying; !seen[u] {
			seen[u] = true
			unders = append(unders, u)
		}
	}
	computed := make([]view, len(unders))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, u := range unders {
		i, u := i, u
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			computed[i] = view{frames: indicators.ComputeAll(hist[u]), patterns: candles.DetectAll(hist[u])}
			return nil
		})
	}
	for i := range slots {
		sl := &slots[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := e.enrich(sl.contract, now)
			if err != nil {
				sl.dropped = true
				sl.decisions = append(sl.decisions, signal.Decision{Contract: sl.contract.Symbol, Reason: signal.ReasonInvalidInput, Stage: signal.StageScreen})
				metrics.ContractsDropped.WithLabelValues(string(signal.ReasonInvalidInput)).Inc()
				e.log.Debug().Str("contract", sl.contract.Symbol).Err(err).Msg("contract skipped")
				return nil
			}
			sl.contract = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	views := make(map[string]view, len(unders))
	for i, u := range unders {
		views[u] = computed[i]
	}
	return views, nil
}

// enrich fills implied volatility, Greeks and IV rank when the feed left them out.
// A volatility solve that does not converge leaves IV unknown and is not an error.
func (e *Engine) enrich(c market.OptionContract, now time.Time) (market.OptionContract, error) {
	T := c.YearsToExpiry(now)
	if T <= 0 {
		return c, fmt.Errorf("%w: %s past expiry", market.ErrInvalidInput, c.Symbol)
	}
	S, K, r := c.UnderlyingPrice, c.Strike, e.cfg.RiskFreeRate

	if c.ImpliedVol <= 0 {
		iv, err := greeks.SolveImpliedVolatility(c.Mid(), S, K, T, r, c.Type)
		switch {
		case err == nil:
			c.ImpliedVol = iv
		case errors.Is(err, greeks.ErrConvergenceFailure):
			metrics.IVFailures.Inc()
			e.log.Debug().Str("contract", c.Symbol).Err(err).Msg("iv unavailable")
		default:
			return c, fmt.Errorf("solve iv %s: %w", c.Symbol, err)
		}
	}
	if c.Greeks == nil && c.ImpliedVol > 0 {
		g, err := greeks.Compute(S, K, T, r, c.ImpliedVol, c.Type)
		if err != nil {
			return c, fmt.Errorf("greeks %s: %w", c.Symbol, err)
		}
		c.Greeks = &g
	}
	if c.ImpliedVol > 0 && len(c.IVHistory) > 0 && c.IVRank == 0 && c.IVPercentile == 0 {
		c.IVRank = greeks.IVRank(c.ImpliedVol, c.IVHistory)
		c.IVPercentile = greeks.IVPercentile(c.ImpliedVol, c.IVHistory)
	}
	return c, nil
}

// evaluate runs every detector over one contract and pushes each candidate
// through pattern confirmation, the quality filter and timeframe confirmation.
func (e *Engine) evaluate(in strategy.Input, patterns map[market.Timeframe][]candles.Pattern, scanID string) ([]signal.Signal, []signal.Decision) {
	var (
		out  []signal.Signal
		decs []signal.Decision
	)
	for _, d := range e.detectors {
		s, ok := d.Detect(in)
		if !ok {
			continue
		}
		s.ID = fmt.Sprintf("%s:%s:%s", scanID, s.Strategy, s.Contract)
		candles.Adjust(&s, patterns)

		q := e.quality.Apply(s, in.Contract, in.Now)
		for _, a := range q.Adjustments {
			s.Note(fmt.Sprintf("%s %+.0f%% (%s)", a.Stage, a.Bonus*100, a.Note))
		}
		s.Confidence = q.Confidence
		if !q.Passed {
			decs = append(decs, signal.Reject(s, signal.StageQuality, signal.ReasonBelowQuality))
			continue
		}

		o := e.mtf.Confirm(s, in.Frames)
		for _, n := range o.Notes {
			s.Note(n)
		}
		s.Confidence = o.Confidence
		if o.Rejected {
			decs = append(decs, signal.Reject(s, signal.StageTimeframe, o.Reason))
			continue
		}
		if s.Confidence < e.quality.MinConfidence {
			decs = append(decs, signal.Reject(s, signal.StageTimeframe, signal.ReasonBelowQuality))
			continue
		}
		out = append(out, s)
	}
	return out, decs
}

// Rank keeps the most confident signal per (contract, strategy) and orders the
// survivors by confidence, then risk/reward, then strategy priority.
func Rank(cands []signal.Signal) ([]signal.Signal, []signal.Decision) {
	best := make(map[string]int, len(cands))
	var (
		kept []signal.Signal
		dups []signal.Decision
	)
	for _, s := range cands {
		i, ok := best[s.Key()]
		if !ok {
			best[s.Key()] = len(kept)
			kept = append(kept, s)
			continue
		}
		if s.Confidence > kept[i].Confidence {
			dups = append(dups, signal.Reject(kept[i], signal.StageRank, signal.ReasonDuplicate))
			kept[i] = s
		} else {
			dups = append(dups, signal.Reject(s, signal.StageRank, signal.ReasonDuplicate))
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.RiskReward != b.RiskReward {
			return a.RiskReward > b.RiskReward
		}
		if pa, pb := a.Strategy.Priority(), b.Strategy.Priority(); pa != pb {
			return pa < pb
		}
		return a.Contract < b.Contract
	})
	return kept, dups
}
