package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"backtester/internal/data"
	"backtester/internal/domain"
	"backtester/internal/event"
	"backtester/internal/execution"
	"backtester/internal/feed"
	"backtester/internal/metrics"
	"backtester/internal/portfolio"
	"backtester/internal/report"
	"backtester/internal/strategy"
)

// BacktestConfig selects what a Backtester runs.
type BacktestConfig struct {
	Strategy       string
	Params         strategy.Params
	Symbols        []string
	PriceField     domain.PriceField
	TimeField      domain.TimeField
	InitialCapital float64
	PeriodsPerYear int
	Venue          string
	Workers        int
}

// BacktestResult holds everything a finished backtest produced.
type BacktestResult struct {
	Run       domain.Run
	Summary   portfolio.Summary
	Curve     []portfolio.CurvePoint
	Snapshots []portfolio.Snapshot
	Fills     []event.Fill
	Baseline  []report.Benchmark
}

// Backtester loads bars from a feed, assembles the event loop for one
// strategy and runs it to completion.
type Backtester struct {
	feed     feed.Feed
	registry *strategy.Registry
	log      *slog.Logger
}

// NewBacktester creates a Backtester that reads bars from f and looks up
// strategies in the provided registry.
func NewBacktester(f feed.Feed, registry *strategy.Registry, log *slog.Logger) *Backtester {
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{
		feed:     f,
		registry: registry,
		log:      log.With("component", "backtest"),
	}
}

// Run loads every symbol, then runs the backtest. Load failures are returned
// before any event is dispatched.
func (bt *Backtester) Run(ctx context.Context, cfg BacktestConfig) (*BacktestResult, error) {
	series, err := feed.LoadAll(ctx, bt.feed, cfg.Symbols, cfg.Workers)
	if err != nil {
		metrics.RunsTotal.WithLabelValues(cfg.Strategy, "load_error").Inc()
		return nil, err
	}
	return bt.RunSeries(series, cfg)
}

// RunSeries runs the backtest over bars already in memory.
func (bt *Backtester) RunSeries(series map[string][]domain.Bar, cfg BacktestConfig) (*BacktestResult, error) {
	res, err := bt.runSeries(series, cfg)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RunsTotal.WithLabelValues(cfg.Strategy, outcome).Inc()
	return res, err
}

func (bt *Backtester) runSeries(series map[string][]domain.Bar, cfg BacktestConfig) (*BacktestResult, error) {
	if cfg.Venue == "" {
		cfg.Venue = execution.DefaultVenue
	}
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = portfolio.DefaultPeriods
	}

	runID := uuid.NewString()
	log := bt.log.With("run", runID)

	q := event.NewQueue()
	src, err := data.NewReplaySource(q, cfg.Symbols, series, cfg.PriceField, cfg.TimeField)
	if err != nil {
		return nil, err
	}
	ledger, err := portfolio.NewLedger(src, cfg.InitialCapital, portfolio.WithLogger(log))
	if err != nil {
		return nil, err
	}
	strat, err := bt.registry.New(cfg.Strategy, strategy.Env{Data: src, Portfolio: ledger, Queue: q}, cfg.Params)
	if err != nil {
		return nil, err
	}
	sim := execution.NewIdealized(src, cfg.Venue)

	startedAt := time.Now().UTC()
	eng := New(src, strat, ledger, sim, q, WithLogger(log))
	out, err := eng.Run()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	baseline, err := report.Baseline(src)
	if err != nil {
		return nil, err
	}

	summary := ledger.Summary(cfg.PeriodsPerYear)
	curve := ledger.EquityCurve()
	run := domain.Run{
		ID:               runID,
		Strategy:         cfg.Strategy,
		Symbols:          append([]string(nil), cfg.Symbols...),
		StartedAt:        startedAt,
		InitialCapital:   summary.InitialCapital,
		FinalEquity:      summary.FinalEquity,
		TotalReturn:      summary.TotalReturn,
		SharpeRatio:      summary.SharpeRatio,
		MaxDrawdown:      summary.MaxDrawdown,
		DrawdownDuration: summary.DrawdownDuration,
		Ticks:            out.Ticks,
		Fills:            len(out.Fills),
	}
	if len(curve) > 0 {
		run.FirstBar = curve[0].Timestamp
		run.LastBar = curve[len(curve)-1].Timestamp
	}

	log.Info("run complete",
		"strategy", run.Strategy,
		"ticks", run.Ticks,
		"fills", run.Fills,
		"total_return", run.TotalReturn,
		"sharpe", run.SharpeRatio,
		"max_drawdown", run.MaxDrawdown,
	)

	return &BacktestResult{
		Run:       run,
		Summary:   summary,
		Curve:     curve,
		Snapshots: ledger.Snapshots(),
		Fills:     out.Fills,
		Baseline:  baseline,
	}, nil
}
