package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"backtester/internal/config"
	"backtester/internal/domain"
	"backtester/internal/engine"
	"backtester/internal/feed"
	"backtester/internal/portfolio"
	"backtester/internal/report"
	"backtester/internal/store"
	"backtester/internal/strategy"
	"backtester/internal/strategy/builtins"
)

var backtestFlags = []cli.Flag{
	&cli.StringFlag{Name: "symbols", Usage: "comma separated symbols, overrides backtest.symbols"},
	&cli.StringFlag{Name: "feed", Usage: "bar source: csv, store or alpaca"},
	&cli.StringFlag{Name: "csv-dir", Usage: "directory holding <SYMBOL>.csv files"},
	&cli.StringFlag{Name: "start", Usage: "first date to load, YYYY-MM-DD"},
	&cli.StringFlag{Name: "end", Usage: "last date to load, YYYY-MM-DD"},
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "run a backtest and print its summary",
	Flags: append([]cli.Flag{
		&cli.StringFlag{Name: "strategy", Aliases: []string{"s"}, Usage: "registered strategy name"},
		&cli.StringSliceFlag{Name: "param", Aliases: []string{"p"}, Usage: "strategy parameter as name=value, repeatable"},
		&cli.Float64Flag{Name: "capital", Usage: "initial cash"},
		&cli.StringFlag{Name: "price-field", Usage: "open, high, low, close or adj_close"},
		&cli.StringFlag{Name: "time-field", Usage: "timestamp or date"},
		&cli.BoolFlag{Name: "save", Usage: "store the run in SQLite and its equity curve as Parquet"},
	}, backtestFlags...),
	Action: runBacktest,
}

var strategiesCommand = &cli.Command{
	Name:  "strategies",
	Usage: "list registered strategies",
	Action: func(c *cli.Context) error {
		for _, name := range builtins.Default().List() {
			fmt.Fprintln(c.App.Writer, name)
		}
		return nil
	},
}

var symbolsCommand = &cli.Command{
	Name:  "symbols",
	Usage: "list symbols with bars in the Parquet store",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "market", Value: string(domain.MarketUS), Usage: "us or cn"},
	},
	Action: func(c *cli.Context) error {
		cfg := state(c).cfg
		ps := store.NewParquetStore(firstNonEmpty(cfg.Storage.DataDir, "data"))
		symbols, err := ps.ListSymbols(c.Context, c.String("market"))
		if err != nil {
			return err
		}
		for _, sym := range symbols {
			fmt.Fprintln(c.App.Writer, sym)
		}
		return nil
	},
}

var runsCommand = &cli.Command{
	Name:  "runs",
	Usage: "inspect saved runs",
	Subcommands: []*cli.Command{
		{
			Name:   "list",
			Usage:  "list the most recent runs",
			Flags:  []cli.Flag{&cli.IntFlag{Name: "limit", Value: 20, Usage: "maximum runs to show"}},
			Action: listRuns,
		},
		{
			Name:      "show",
			Usage:     "show one run's summary and fills",
			ArgsUsage: "<run-id>",
			Action:    showRun,
		},
	},
}

var fetchCommand = &cli.Command{
	Name:   "fetch",
	Usage:  "download daily bars from Alpaca into the Parquet store",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "symbols", Usage: "comma separated symbols, overrides backtest.symbols"},
		&cli.StringFlag{Name: "start", Usage: "first date to fetch, YYYY-MM-DD"},
		&cli.StringFlag{Name: "end", Usage: "last date to fetch, YYYY-MM-DD"},
	},
	Action: fetchBars,
}

// applyBacktestFlags copies explicitly set flags over the loaded config.
func applyBacktestFlags(c *cli.Context, b *config.Backtest) error {
	if c.IsSet("symbols") {
		b.Symbols = config.SplitSymbols(c.String("symbols"))
	}
	if c.IsSet("feed") {
		b.Feed = c.String("feed")
	}
	if c.IsSet("csv-dir") {
		b.CSVDir = c.String("csv-dir")
	}
	if c.IsSet("start") {
		b.Start = c.String("start")
	}
	if c.IsSet("end") {
		b.End = c.String("end")
	}
	if c.IsSet("strategy") {
		b.Strategy.Name = c.String("strategy")
	}
	if c.IsSet("capital") {
		b.InitialCapital = c.Float64("capital")
	}
	if c.IsSet("price-field") {
		b.PriceField = c.String("price-field")
	}
	if c.IsSet("time-field") {
		b.TimeField = c.String("time-field")
	}
	if c.IsSet("param") {
		params, err := parseParams(c.StringSlice("param"))
		if err != nil {
			return err
		}
		if b.Strategy.Params == nil {
			b.Strategy.Params = make(map[string]float64, len(params))
		}
		for k, v := range params {
			b.Strategy.Params[k] = v
		}
	}
	return nil
}

func parseParams(kvs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(kvs))
	for _, kv := range kvs {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("param %q: want name=value", kv)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", kv, err)
		}
		out[strings.TrimSpace(name)] = v
	}
	return out, nil
}

// newFeed builds the bar feed the configuration selects.
func newFeed(cfg *config.Config) (feed.Feed, error) {
	b := cfg.Backtest
	start, end, err := b.Range()
	if err != nil {
		return nil, err
	}
	rng := feed.Range{Start: start, End: end}

	switch b.Feed {
	case config.FeedCSV:
		return feed.NewCSVFeed(b.CSVDir, rng), nil
	case config.FeedStore:
		return feed.NewStoreFeed(store.NewParquetStore(cfg.Storage.DataDir), domain.Market(b.Market), rng), nil
	case config.FeedAlpaca:
		return feed.NewAlpacaFeed(alpacaConfig(cfg), rng), nil
	}
	return nil, fmt.Errorf("%w: feed %q", config.ErrInvalidConfig, b.Feed)
}

func alpacaConfig(cfg *config.Config) feed.AlpacaConfig {
	return feed.AlpacaConfig{
		APIKey:          cfg.Alpaca.APIKey,
		APISecret:       cfg.Alpaca.APISecret,
		DataURL:         cfg.Alpaca.DataURL,
		Feed:            cfg.Alpaca.Feed,
		RateLimitPerMin: cfg.Alpaca.RateLimitPerMin,
	}
}

func runBacktest(c *cli.Context) error {
	st := state(c)
	cfg := st.cfg
	if err := applyBacktestFlags(c, &cfg.Backtest); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	f, err := newFeed(cfg)
	if err != nil {
		return err
	}

	b := cfg.Backtest
	pf, tf := b.Fields()
	bt := engine.NewBacktester(f, builtins.Default(), st.log)
	res, err := bt.Run(c.Context, engine.BacktestConfig{
		Strategy:       b.Strategy.Name,
		Params:         strategy.Params(b.Strategy.Params),
		Symbols:        b.Symbols,
		PriceField:     pf,
		TimeField:      tf,
		InitialCapital: b.InitialCapital,
		PeriodsPerYear: b.PeriodsPerYear,
		Venue:          b.Venue,
		Workers:        b.Workers,
	})
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "run %s  %s  %s .. %s\n", res.Run.ID, res.Run.Strategy,
		res.Run.FirstBar.Format("2006-01-02"), res.Run.LastBar.Format("2006-01-02"))
	stats := append(report.Stats(res.Summary), report.BenchmarkStats(res.Baseline)...)
	if err := report.Print(w, stats); err != nil {
		return err
	}

	if !c.Bool("save") {
		return nil
	}
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.SaveRun(c.Context, &res.Run, res.Fills); err != nil {
		return err
	}
	if err := store.NewParquetStore(cfg.Storage.DataDir).WriteCurve(c.Context, res.Run.ID, res.Curve); err != nil {
		return err
	}
	st.log.Info("run saved", "run", res.Run.ID, "db", cfg.Storage.SQLitePath)
	return nil
}

func listRuns(c *cli.Context) error {
	db, err := store.NewSQLiteStore(sqlitePath(state(c).cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	w := c.App.Writer
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %-14s %-20s %10s %6s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04"), r.Strategy,
			strings.Join(r.Symbols, ","), report.Percent(r.TotalReturn), report.Fixed(r.SharpeRatio))
	}
	return nil
}

func showRun(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("runs show: want exactly one run id")
	}
	db, err := store.NewSQLiteStore(sqlitePath(state(c).cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.GetRun(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	fills, err := db.ListFills(c.Context, run.ID)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "run %s  %s  %s\n", run.ID, run.Strategy, strings.Join(run.Symbols, ","))
	if err := report.Print(w, report.Stats(summaryOf(run))); err != nil {
		return err
	}
	for _, f := range fills {
		fmt.Fprintf(w, "%s  %-4s %-8s %10s @ %s\n",
			f.Timestamp.Format("2006-01-02"), f.Side, f.Symbol,
			strconv.FormatFloat(f.Quantity, 'f', -1, 64), report.Fixed(f.Price))
	}
	return nil
}

// sqlitePath resolves the run database without requiring a backtest section.
func sqlitePath(cfg *config.Config) string {
	if cfg.Storage.SQLitePath != "" {
		return cfg.Storage.SQLitePath
	}
	return filepath.Join(firstNonEmpty(cfg.Storage.DataDir, "data"), "backtester.db")
}

func summaryOf(r *domain.Run) portfolio.Summary {
	return portfolio.Summary{
		InitialCapital:   r.InitialCapital,
		FinalEquity:      r.FinalEquity,
		TotalReturn:      r.TotalReturn,
		SharpeRatio:      r.SharpeRatio,
		MaxDrawdown:      r.MaxDrawdown,
		DrawdownDuration: r.DrawdownDuration,
		Ticks:            r.Ticks,
		Fills:            r.Fills,
	}
}

func fetchBars(c *cli.Context) error {
	st := state(c)
	cfg := st.cfg
	if err := applyBacktestFlags(c, &cfg.Backtest); err != nil {
		return err
	}
	cfg.Backtest.Feed = config.FeedAlpaca
	cfg.Backtest.Market = string(domain.MarketUS)
	if err := cfg.Validate(); err != nil {
		return err
	}

	f, err := newFeed(cfg)
	if err != nil {
		return err
	}
	series, err := feed.LoadAll(c.Context, f, cfg.Backtest.Symbols, cfg.Backtest.Workers)
	if err != nil {
		return err
	}

	ps := store.NewParquetStore(cfg.Storage.DataDir)
	for _, sym := range cfg.Backtest.Symbols {
		if err := ps.WriteBars(c.Context, series[sym], cfg.Backtest.Market); err != nil {
			return err
		}
		st.log.Info("stored bars", "symbol", sym, "bars", len(series[sym]))
	}
	return nil
}
