// Package feed loads historical bars for a backtest from CSV files, the
// local Parquet store or the Alpaca market-data API.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"backtester/internal/domain"
)

var (
	// ErrMalformedBar is returned when a source row cannot be parsed into a Bar.
	ErrMalformedBar = errors.New("malformed bar")

	// ErrNoBars is returned when a symbol has no bars in the requested range.
	ErrNoBars = errors.New("no bars")
)

// Feed loads the full bar history of one symbol.
type Feed interface {
	// Name identifies the feed in logs and errors.
	Name() string

	// LoadBars returns the bars for symbol in ascending time order.
	LoadBars(ctx context.Context, symbol string) ([]domain.Bar, error)
}

// Range bounds the bars a feed returns. Zero values leave that side open.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies inside the range, inclusive at both ends.
func (r Range) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// DefaultWorkers caps concurrent symbol loads in LoadAll.
const DefaultWorkers = 8

// LoadAll loads every symbol concurrently with at most workers loads in
// flight and returns the bars keyed by symbol. The first failure cancels the
// remaining loads and is returned. A symbol with no bars is an error.
func LoadAll(ctx context.Context, f Feed, symbols []string, workers int) (map[string][]domain.Bar, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	results := make([][]domain.Bar, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			bars, err := f.LoadBars(gctx, sym)
			if err != nil {
				return fmt.Errorf("%s feed: %s: %w", f.Name(), sym, err)
			}
			if len(bars) == 0 {
				return fmt.Errorf("%s feed: %s: %w", f.Name(), sym, ErrNoBars)
			}
			results[i] = bars
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]domain.Bar, len(symbols))
	for i, sym := range symbols {
		out[sym] = results[i]
	}
	return out, nil
}

// sortBars orders bars by timestamp, keeping the input order of equal ones.
func sortBars(bars []domain.Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
}
