// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "optsignal_scan_duration_seconds",
		Help:    "Wall time of a full scan cycle",
		Buckets: prometheus.DefBuckets,
	})
	ScansSuperseded = prometheus.NewCounter(prometheus.CounterOpts{Name: "optsignal_scans_superseded_total", Help: "Scans discarded because a newer scan started"})
	Decisions       = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optsignal_decisions_total", Help: "Evaluated candidates by reason code"},
		[]string{"reason"},
	)
	SignalsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optsignal_signals_emitted_total", Help: "Accepted signals by strategy"},
		[]string{"strategy"},
	)
	ContractsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optsignal_contracts_dropped_total", Help: "Contracts removed from a batch before evaluation"},
		[]string{"reason"},
	)
	IVFailures     = prometheus.NewCounter(prometheus.CounterOpts{Name: "optsignal_iv_failures_total", Help: "Implied volatility solves that did not converge"})
	BreakerTripped = prometheus.NewGauge(prometheus.GaugeOpts{Name: "optsignal_circuit_breaker_tripped", Help: "1 while the daily loss breaker is tripped"})
	OpenPositions  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "optsignal_open_positions", Help: "Open positions held against max_concurrent_trades"})
	ReservedSlots  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "optsignal_reserved_slots", Help: "Admitted signals holding a position slot"})
	DailyPnL       = prometheus.NewGauge(prometheus.GaugeOpts{Name: "optsignal_daily_pnl_usd", Help: "Cumulative realized P&L for the session"})
	MonitorEvents  = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optsignal_monitor_events_total", Help: "Position monitor closes"},
		[]string{"action", "trigger"},
	)
	StreamClients = prometheus.NewGauge(prometheus.GaugeOpts{Name: "optsignal_stream_clients", Help: "Connected event stream subscribers"})
)

func init() {
	prometheus.MustRegister(
		ScanDuration, ScansSuperseded, Decisions, SignalsEmitted, ContractsDropped, IVFailures,
		BreakerTripped, OpenPositions, ReservedSlots, DailyPnL, MonitorEvents, StreamClients,
	)
}

// Serve starts a /metrics listener in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
