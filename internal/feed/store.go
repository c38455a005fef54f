package feed

import (
	"context"

	"backtester/internal/domain"
	"backtester/internal/store"
)

// Compile-time interface check.
var _ Feed = (*StoreFeed)(nil)

// StoreFeed reads bars previously written to a BarStore, typically the
// Parquet store filled by the fetch command.
type StoreFeed struct {
	store  store.BarStore
	market domain.Market
	rng    Range
}

// NewStoreFeed creates a feed over s for the given market.
func NewStoreFeed(s store.BarStore, market domain.Market, r Range) *StoreFeed {
	return &StoreFeed{store: s, market: market, rng: r}
}

// Name returns "store".
func (f *StoreFeed) Name() string { return "store" }

// LoadBars reads the symbol's bars inside the feed's range.
func (f *StoreFeed) LoadBars(ctx context.Context, symbol string) ([]domain.Bar, error) {
	bars, err := f.store.ReadBars(ctx, symbol, string(f.market), f.rng.Start, f.rng.End)
	if err != nil {
		return nil, err
	}
	sortBars(bars)
	return bars, nil
}
