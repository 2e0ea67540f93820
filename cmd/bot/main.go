package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/chidi150c/optsignal/internal/config"
	"github.com/chidi150c/optsignal/internal/engine"
	"github.com/chidi150c/optsignal/internal/metrics"
	"github.com/chidi150c/optsignal/internal/risk"
	"github.com/chidi150c/optsignal/internal/stream"
	"github.com/chidi150c/optsignal/internal/util"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config file")
	envPath := flag.String("env", ".env", "dotenv file")
	feedPath := flag.String("feed", "-", "JSON-lines feed, - for stdin")
	replay := flag.Bool("replay", false, "replay the feed as fast as possible with a progress bar")
	flag.Parse()

	log := util.NewLogger("info")
	if err := config.LoadEnv(*envPath); err != nil {
		log.Fatal().Err(err).Msg("load env")
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewLogger(cfg.App.LogLevel).With().Str("app", cfg.App.Name).Logger()

	lock, err := util.AcquireLock(cfg.App.LockPath)
	if err != nil {
		log.Fatal().Err(err).Msg("another instance is running")
	}
	defer util.ReleaseLock(lock)

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	msrv := metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	hub := stream.NewHub(log)
	mux := http.NewServeMux()
	mux.Handle("/stream", hub)
	ssrv := &http.Server{Addr: cfg.App.StreamAddr, Handler: mux}
	go func() {
		if err := ssrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("stream server stopped")
		}
	}()
	log.Info().Str("addr", cfg.App.StreamAddr).Msg("event stream up")

	rm := risk.NewManager(cfg.RiskLimits(), cfg.Balance(), log)
	store := risk.NewSessionStore(cfg.Session.Timezone, cfg.Session.SnapshotPath, log)
	store.InitAtStartup(time.Now(), cfg.Balance(), rm)

	eng, err := engine.New(cfg.EngineConfig(), rm, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build engine")
	}

	ticks := make(chan risk.Tick, 1024)
	mon := risk.NewMonitor(rm, log, func(e risk.Event) {
		publish(log, hub, stream.TypeEvent, e)
		if e.Action == risk.FullClose {
			publish(log, hub, stream.TypeSummary, rm.Performance())
		}
	})
	mon.SweepEvery = time.Minute
	monDone := make(chan struct{})
	go func() {
		defer close(monDone)
		if err := mon.Run(ctx, ticks); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("monitor stopped")
		}
	}()

	d := &driver{log: log, eng: eng, rm: rm, store: store, hub: hub, ticks: ticks, inline: *replay}
	d.limiter = rate.NewLimiter(rate.Every(cfg.ScanInterval()), 1)
	if *replay {
		d.limiter = rate.NewLimiter(rate.Inf, 0)
	}

	if err := d.run(ctx, *feedPath, *replay); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("feed stopped")
	}

	_ = d.scans.Wait()
	close(ticks)
	<-monDone
	perf := rm.Performance()
	log.Info().Int("closed", perf.Closed).Int("active", perf.Active).Float64("win_rate", perf.WinRate).
		Str("total_pnl", perf.TotalPnL.StringFixed(2)).Msg("session performance")
	if err := store.Persist(time.Now(), rm); err != nil {
		log.Warn().Err(err).Msg("final snapshot")
	}
	shutdown, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	hub.Close()
	_ = ssrv.Shutdown(shutdown)
	_ = msrv.Shutdown(shutdown)
	log.Info().Msg("shutting down")
}

type driver struct {
	log     zerolog.Logger
	eng     *engine.Engine
	rm      *risk.Manager
	store   *risk.SessionStore
	hub     *stream.Hub
	ticks   chan<- risk.Tick
	limiter *rate.Limiter
	inline  bool           // run scans inline instead of letting newer scans supersede older ones
	scans   errgroup.Group // in-flight async scans
}

func (d *driver) run(ctx context.Context, path string, replay bool) error {
	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	if !replay {
		return d.consume(ctx, in, nil)
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	bar := progressBar(bytes.Count(data, []byte("\n")))
	defer bar.Finish()
	return d.consume(ctx, bytes.NewReader(data), bar)
}

func (d *driver) consume(ctx context.Context, in io.Reader, bar *progressbar.ProgressBar) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 1<<20), 64<<20)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if bar != nil {
			_ = bar.Add(1)
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		m, err := parseLine(line)
		if err != nil {
			d.log.Warn().Err(err).Msg("skipping feed line")
			continue
		}
		if err := d.handle(ctx, m); err != nil {
			return err
		}
	}
	return sc.Err()
}

func (d *driver) handle(ctx context.Context, m message) error {
	at := m.At
	if at.IsZero() {
		at = time.Now()
	}
	if d.store.RolloverDue(at) {
		s := d.rm.Snapshot()
		if err := d.store.Rollover(at, s.Balance.Add(s.DailyPnL), d.rm); err != nil {
			d.log.Warn().Err(err).Msg("rollover snapshot")
		}
	}

	switch m.Type {
	case msgScan:
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		if d.inline {
			d.scan(ctx, *m.Batch, m.Limit)
		} else {
			b, limit := *m.Batch, m.Limit
			d.scans.Go(func() error {
				d.scan(ctx, b, limit)
				return nil
			})
		}
		return nil
	case msgTick:
		select {
		case d.ticks <- *m.Tick:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	case msgOpen:
		if _, err := d.rm.OpenPosition(m.Open.request(at)); err != nil {
			d.log.Warn().Err(err).Str("position", m.Open.PositionID).Msg("open rejected")
		}
	case msgPnL:
		if d.rm.RecordPnL(*m.Amount) {
			d.log.Warn().Msg("daily loss limit reached")
		}
	case msgReset:
		if err := d.store.Rollover(at, *m.Balance, d.rm); err != nil {
			d.log.Warn().Err(err).Msg("reset snapshot")
		}
	case msgAccount:
		d.rm.Restore(*m.Account)
		d.log.Info().Int("external_positions", m.Account.OpenPositions).Msg("account updated")
	}
	if err := d.store.Persist(at, d.rm); err != nil {
		d.log.Warn().Err(err).Msg("persist session")
	}
	return nil
}

func (d *driver) scan(ctx context.Context, b engine.Batch, limit int) {
	res, err := d.eng.Scan(ctx, b, limit)
	switch {
	case errors.Is(err, engine.ErrSuperseded):
		d.log.Debug().Str("scan", res.ScanID).Msg("scan superseded")
		return
	case err != nil:
		d.log.Error().Err(err).Msg("scan failed")
		return
	}
	publish(d.log, d.hub, stream.TypeScan, struct {
		ScanID string `json:"scan_id"`
		Halted bool   `json:"halted"`
		Feed   string `json:"feed"`
	}{res.ScanID, res.Halted, res.Feed})
	for _, s := range res.Signals {
		publish(d.log, d.hub, stream.TypeSignal, s)
	}
	for _, dec := range res.Decisions {
		publish(d.log, d.hub, stream.TypeDecision, dec)
	}
}

func publish(log zerolog.Logger, hub *stream.Hub, typ string, v any) {
	if err := hub.Publish(typ, v); err != nil {
		log.Warn().Err(err).Str("type", typ).Msg("publish failed")
	}
}

func progressBar(length int) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		length,
		progressbar.OptionSetDescription("replay"),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
