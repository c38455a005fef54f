package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"backtester/internal/domain"
)

// Compile-time interface check.
var _ Feed = (*CSVFeed)(nil)

// csvLayouts are the timestamp formats accepted in the first column.
var csvLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// CSVFeed reads <Dir>/<SYMBOL>.csv files with a header row followed by
// datetime, open, high, low, close, adj_close, volume columns. The header's
// names are ignored; columns are positional.
type CSVFeed struct {
	Dir   string
	Range Range
}

// NewCSVFeed creates a CSVFeed reading from dir.
func NewCSVFeed(dir string, r Range) *CSVFeed {
	return &CSVFeed{Dir: dir, Range: r}
}

// Name returns "csv".
func (f *CSVFeed) Name() string { return "csv" }

// LoadBars parses the symbol's file.
func (f *CSVFeed) LoadBars(_ context.Context, symbol string) ([]domain.Bar, error) {
	path := filepath.Join(f.Dir, symbol+".csv")
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseCSV(file, symbol, f.Range)
}

func parseCSV(r io.Reader, symbol string, rng Range) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 7
	cr.TrimLeadingSpace = true

	// Header.
	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedBar, err)
	}

	var bars []domain.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedBar, line, err)
		}

		bar, err := parseRecord(rec, symbol)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedBar, line, err)
		}
		if rng.Contains(bar.Timestamp) {
			bars = append(bars, bar)
		}
	}
	sortBars(bars)
	return bars, nil
}

func parseRecord(rec []string, symbol string) (domain.Bar, error) {
	ts, err := parseTime(rec[0])
	if err != nil {
		return domain.Bar{}, err
	}

	var prices [5]float64
	for i := range prices {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("column %d: %w", i+2, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.Bar{}, fmt.Errorf("column %d: non-finite price %q", i+2, rec[i+1])
		}
		prices[i] = v
	}

	vol, err := parseVolume(rec[6])
	if err != nil {
		return domain.Bar{}, fmt.Errorf("volume: %w", err)
	}

	return domain.Bar{
		Symbol:    symbol,
		Timestamp: ts,
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		AdjClose:  prices[4],
		Volume:    vol,
	}, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// parseVolume accepts integers and float notation such as "1.5e6".
func parseVolume(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}
