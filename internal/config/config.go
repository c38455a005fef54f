// Package config loads backtester settings from YAML, the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"backtester/internal/domain"
	"backtester/internal/util"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Feed kinds.
const (
	FeedCSV    = "csv"
	FeedStore  = "store"
	FeedAlpaca = "alpaca"
)

const dateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the backtester.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Logging  Logging  `yaml:"logging"`
	Metrics  Metrics  `yaml:"metrics"`
	Backtest Backtest `yaml:"backtest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and request settings for the Alpaca data API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	DataURL         string `yaml:"data_url"`
	Feed            string `yaml:"feed"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Metrics configures the Prometheus endpoint. An empty Addr disables it.
type Metrics struct {
	Addr string `yaml:"addr"`
}

// Backtest describes one run: what to load, how to price it and which
// strategy to drive.
type Backtest struct {
	Symbols        []string `yaml:"symbols"`
	Feed           string   `yaml:"feed"`
	CSVDir         string   `yaml:"csv_dir"`
	Market         string   `yaml:"market"`
	Start          string   `yaml:"start"`
	End            string   `yaml:"end"`
	PriceField     string   `yaml:"price_field"`
	TimeField      string   `yaml:"time_field"`
	InitialCapital float64  `yaml:"initial_capital"`
	PeriodsPerYear int      `yaml:"periods_per_year"`
	Venue          string   `yaml:"venue"`
	Workers        int      `yaml:"workers"`
	Strategy       Strategy `yaml:"strategy"`
}

// Strategy names a registered strategy and its numeric parameters.
type Strategy struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a Config with no file behind it, after env overrides.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	return cfg
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none
// are named) into the process environment without overriding variables
// that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("BACKTEST_SYMBOLS"); v != "" {
		cfg.Backtest.Symbols = SplitSymbols(v)
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// SplitSymbols parses a comma separated symbol list, trimming blanks and
// upper-casing each entry.
func SplitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate fills defaults and checks the configuration. Every failure wraps
// ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = c.Storage.DataDir + "/backtester.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Alpaca.Feed == "" {
		c.Alpaca.Feed = "iex"
	}
	if c.Alpaca.RateLimitPerMin <= 0 {
		c.Alpaca.RateLimitPerMin = 200
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if c.Backtest.Feed == FeedAlpaca && (c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "") {
		return fmt.Errorf("%w: alpaca feed needs api_key and api_secret", ErrInvalidConfig)
	}
	return nil
}

func (b *Backtest) validate() error {
	if len(b.Symbols) == 0 {
		return fmt.Errorf("%w: backtest.symbols is empty", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(b.Symbols))
	for i, s := range b.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			return fmt.Errorf("%w: backtest.symbols: blank or duplicate %q", ErrInvalidConfig, b.Symbols[i])
		}
		seen[s] = true
		b.Symbols[i] = s
	}

	if b.Feed == "" {
		b.Feed = FeedCSV
	}
	switch b.Feed {
	case FeedCSV:
		if b.CSVDir == "" {
			b.CSVDir = "data/csv"
		}
	case FeedStore, FeedAlpaca:
	default:
		return fmt.Errorf("%w: backtest.feed %q (want csv, store or alpaca)", ErrInvalidConfig, b.Feed)
	}

	if b.Market == "" {
		b.Market = string(domain.MarketUS)
	}
	if m := domain.Market(b.Market); m != domain.MarketUS && m != domain.MarketCN {
		return fmt.Errorf("%w: backtest.market %q", ErrInvalidConfig, b.Market)
	}

	start, end, err := b.Range()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return fmt.Errorf("%w: backtest.end %s before start %s", ErrInvalidConfig, b.End, b.Start)
	}

	if b.PriceField == "" {
		b.PriceField = string(domain.PriceAdjClose)
	}
	if _, err := domain.ParsePriceField(b.PriceField); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if b.TimeField == "" {
		b.TimeField = string(domain.TimeDate)
	}
	if _, err := domain.ParseTimeField(b.TimeField); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if b.InitialCapital == 0 {
		b.InitialCapital = 100000
	}
	if b.InitialCapital < 0 {
		return fmt.Errorf("%w: backtest.initial_capital %v", ErrInvalidConfig, b.InitialCapital)
	}
	if b.PeriodsPerYear <= 0 {
		b.PeriodsPerYear = util.NewTradingCalendar(domain.Market(b.Market)).PeriodsPerYear()
	}
	if b.Venue == "" {
		b.Venue = "ARCA"
	}
	if b.Workers <= 0 {
		b.Workers = 8
	}
	if b.Strategy.Name == "" {
		b.Strategy.Name = "buy-and-hold"
	}
	return nil
}

// Range parses Start and End. Empty strings give zero times.
func (b *Backtest) Range() (start, end time.Time, err error) {
	if b.Start != "" {
		if start, err = time.Parse(dateLayout, b.Start); err != nil {
			return start, end, fmt.Errorf("%w: backtest.start: %v", ErrInvalidConfig, err)
		}
	}
	if b.End != "" {
		if end, err = time.Parse(dateLayout, b.End); err != nil {
			return start, end, fmt.Errorf("%w: backtest.end: %v", ErrInvalidConfig, err)
		}
		// Inclusive of the whole end day.
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	return start, end, nil
}

// Fields returns the parsed price and time selectors. Call after Validate.
func (b *Backtest) Fields() (domain.PriceField, domain.TimeField) {
	pf, _ := domain.ParsePriceField(b.PriceField)
	tf, _ := domain.ParseTimeField(b.TimeField)
	return pf, tf
}
