package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"backtester/internal/domain"
	"backtester/internal/event"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id                TEXT PRIMARY KEY,
		strategy          TEXT NOT NULL,
		symbols           TEXT NOT NULL,
		started_at        INTEGER NOT NULL,
		first_bar         INTEGER NOT NULL,
		last_bar          INTEGER NOT NULL,
		initial_capital   REAL NOT NULL,
		final_equity      REAL NOT NULL,
		total_return      REAL NOT NULL,
		sharpe_ratio      REAL NOT NULL,
		max_drawdown      REAL NOT NULL,
		drawdown_duration INTEGER NOT NULL,
		ticks             INTEGER NOT NULL,
		fills             INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS fills (
		run_id     TEXT NOT NULL REFERENCES runs(id),
		seq        INTEGER NOT NULL,
		order_id   TEXT NOT NULL,
		ts         INTEGER NOT NULL,
		symbol     TEXT NOT NULL,
		venue      TEXT NOT NULL,
		quantity   REAL NOT NULL,
		side       TEXT NOT NULL,
		price      REAL NOT NULL,
		commission REAL NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts the run and its fills in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.Run, fills []event.Fill) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (
		id, strategy, symbols, started_at, first_bar, last_bar,
		initial_capital, final_equity, total_return, sharpe_ratio,
		max_drawdown, drawdown_duration, ticks, fills
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, strings.Join(run.Symbols, ","),
		run.StartedAt.UnixMilli(), run.FirstBar.UnixMilli(), run.LastBar.UnixMilli(),
		run.InitialCapital, run.FinalEquity, run.TotalReturn, run.SharpeRatio,
		run.MaxDrawdown, run.DrawdownDuration, run.Ticks, run.Fills,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fills (
		run_id, seq, order_id, ts, symbol, venue, quantity, side, price, commission
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, f := range fills {
		if _, err := stmt.ExecContext(ctx,
			run.ID, i, f.OrderID.String(), f.Timestamp.UnixMilli(), f.Symbol, f.Venue,
			f.Quantity, string(f.Side), f.Price, f.Commission,
		); err != nil {
			return fmt.Errorf("inserting fill %d of run %s: %w", i, run.ID, err)
		}
	}
	return tx.Commit()
}

const runColumns = `id, strategy, symbols, started_at, first_bar, last_bar,
	initial_capital, final_equity, total_return, sharpe_ratio,
	max_drawdown, drawdown_duration, ticks, fills`

// GetRun retrieves a single run by its ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first, up to limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListFills returns the fills of a run in the order they were applied.
func (s *SQLiteStore) ListFills(ctx context.Context, runID string) ([]event.Fill, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		order_id, ts, symbol, venue, quantity, side, price, commission
		FROM fills WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []event.Fill
	for rows.Next() {
		var (
			f       event.Fill
			orderID string
			ts      int64
			side    string
		)
		if err := rows.Scan(&orderID, &ts, &f.Symbol, &f.Venue, &f.Quantity, &side, &f.Price, &f.Commission); err != nil {
			return nil, err
		}
		if f.OrderID, err = uuid.Parse(orderID); err != nil {
			return nil, fmt.Errorf("fill order id %q: %w", orderID, err)
		}
		f.Timestamp = time.UnixMilli(ts).UTC()
		f.Side = domain.OrderSide(side)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.Run, error) {
	var run domain.Run
	var symbols string
	var startedAt, firstBar, lastBar int64
	err := row.Scan(
		&run.ID, &run.Strategy, &symbols, &startedAt, &firstBar, &lastBar,
		&run.InitialCapital, &run.FinalEquity, &run.TotalReturn, &run.SharpeRatio,
		&run.MaxDrawdown, &run.DrawdownDuration, &run.Ticks, &run.Fills,
	)
	if err != nil {
		return run, err
	}
	if symbols != "" {
		run.Symbols = strings.Split(symbols, ",")
	}
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	run.FirstBar = time.UnixMilli(firstBar).UTC()
	run.LastBar = time.UnixMilli(lastBar).UTC()
	return run, nil
}
