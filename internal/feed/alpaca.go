package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"backtester/internal/domain"
	"backtester/internal/util"
)

// Compile-time interface check.
var _ Feed = (*AlpacaFeed)(nil)

// barsClient is the slice of the Alpaca market-data client the feed uses.
type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaConfig carries credentials and request shaping for AlpacaFeed.
type AlpacaConfig struct {
	APIKey          string
	APISecret       string
	DataURL         string
	Feed            string // "sip" or "iex"
	RateLimitPerMin int
	MaxAttempts     int
}

// AlpacaFeed fetches daily bars from the Alpaca market-data API. Each symbol
// is requested twice, raw and fully adjusted, and the adjusted close is
// stored as AdjClose.
type AlpacaFeed struct {
	client      barsClient
	feed        string
	rng         Range
	cal         *util.TradingCalendar
	limiter     *util.RateLimiter
	maxAttempts int
	retryDelay  time.Duration
	log         *slog.Logger
}

// NewAlpacaFeed creates an AlpacaFeed for US daily bars inside r.
func NewAlpacaFeed(cfg AlpacaConfig, r Range) *AlpacaFeed {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	return newAlpacaFeed(marketdata.NewClient(opts), cfg, r)
}

func newAlpacaFeed(client barsClient, cfg AlpacaConfig, r Range) *AlpacaFeed {
	if cfg.Feed == "" {
		cfg.Feed = "iex"
	}
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = 200
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &AlpacaFeed{
		client:      client,
		feed:        cfg.Feed,
		rng:         r,
		cal:         util.NewTradingCalendar(domain.MarketUS),
		limiter:     util.NewRateLimiter(cfg.RateLimitPerMin, 1),
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  time.Second,
		log:         slog.Default().With("feed", "alpaca"),
	}
}

// Name returns "alpaca".
func (f *AlpacaFeed) Name() string { return "alpaca" }

// LoadBars fetches raw and adjusted daily bars and joins them by timestamp.
// Bars without an adjusted counterpart keep their raw close as AdjClose.
func (f *AlpacaFeed) LoadBars(ctx context.Context, symbol string) ([]domain.Bar, error) {
	raw, err := f.fetch(ctx, symbol, marketdata.Raw)
	if err != nil {
		return nil, err
	}
	adjusted, err := f.fetch(ctx, symbol, marketdata.All)
	if err != nil {
		return nil, err
	}

	adjClose := make(map[int64]float64, len(adjusted))
	for _, ab := range adjusted {
		adjClose[ab.Timestamp.Unix()] = ab.Close
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		b := domain.Bar{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: ab.Timestamp.UTC(),
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			AdjClose:  ab.Close,
			Volume:    int64(ab.Volume),
		}
		if v, ok := adjClose[ab.Timestamp.Unix()]; ok {
			b.AdjClose = v
		}
		if f.rng.Contains(b.Timestamp) {
			bars = append(bars, b)
		}
	}
	sortBars(bars)

	f.log.Debug("fetched", "symbol", symbol, "bars", len(bars))
	return bars, nil
}

func (f *AlpacaFeed) fetch(ctx context.Context, symbol string, adj marketdata.Adjustment) ([]marketdata.Bar, error) {
	req := marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: adj,
		Feed:       marketdata.Feed(f.feed),
	}
	if !f.rng.Start.IsZero() {
		req.Start = f.cal.SessionStart(f.rng.Start)
	}
	if !f.rng.End.IsZero() {
		req.End = f.cal.SessionStart(f.rng.End).AddDate(0, 0, 1)
	}

	var bars []marketdata.Bar
	err := util.Retry(ctx, f.maxAttempts, f.retryDelay, func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		bars, err = f.client.GetBars(symbol, req)
		if isClientError(err) {
			return util.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s (%s): %w", symbol, adj, err)
	}
	return bars, nil
}

// isClientError reports whether err is an API response in the 4xx range,
// which retrying cannot fix.
func isClientError(err error) bool {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusBadRequest && apiErr.StatusCode < http.StatusInternalServerError
	}
	return false
}
