// Package store defines storage interfaces for persisting and retrieving
// historical bars and the results of backtest runs.
package store

import (
	"context"
	"errors"
	"time"

	"backtester/internal/domain"
	"backtester/internal/event"
	"backtester/internal/portfolio"
)

// ErrRunNotFound is returned when a run ID has no stored record.
var ErrRunNotFound = errors.New("run not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage under market.
	WriteBars(ctx context.Context, bars []domain.Bar, market string) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// CurveStore persists the equity curve of a finished run.
type CurveStore interface {
	// WriteCurve stores the curve points for runID, replacing any previous curve.
	WriteCurve(ctx context.Context, runID string, curve []portfolio.CurvePoint) error

	// ReadCurve returns the curve points stored for runID in time order.
	ReadCurve(ctx context.Context, runID string) ([]portfolio.CurvePoint, error)
}

// RunStore persists run summaries and their fills.
type RunStore interface {
	// SaveRun inserts a run and the fills it produced in one transaction.
	SaveRun(ctx context.Context, run *domain.Run, fills []event.Fill) error

	// GetRun retrieves a single run by its ID.
	GetRun(ctx context.Context, id string) (*domain.Run, error)

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)

	// ListFills returns the fills of a run in the order they were applied.
	ListFills(ctx context.Context, runID string) ([]event.Fill, error)
}
