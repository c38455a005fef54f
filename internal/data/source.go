// Package data replays aligned historical bars one step at a time. Only bars
// already revealed by the cursor are readable from outside the package.
package data

import (
	"errors"
	"fmt"
	"time"

	"backtester/internal/domain"
	"backtester/internal/event"
)

var (
	// ErrSymbolNotFound is returned for queries on a symbol the source was
	// not configured with.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrNoData is returned when a symbol has not revealed any bar yet.
	ErrNoData = errors.New("no bars revealed yet")

	// ErrInvalidSeries is returned when input series cannot be replayed.
	ErrInvalidSeries = errors.New("invalid bar series")
)

// View is read-only access to the revealed part of the replay.
type View interface {
	// Symbols returns the configured symbols in configuration order.
	Symbols() []string

	// Window returns the last n revealed bars for symbol, oldest first.
	// n <= 0 returns every revealed bar.
	Window(symbol string, n int) ([]domain.Bar, error)

	// Latest returns the most recently revealed bar for symbol.
	Latest(symbol string) (domain.Bar, error)

	// LatestPrice returns the configured price field of Latest.
	LatestPrice(symbol string) (float64, error)

	// Now returns the calendar time of the current cursor, or the zero time
	// before the first advance.
	Now() time.Time

	// PriceField returns the price selector fixed at construction.
	PriceField() domain.PriceField
}

// Source is a View that the scheduler can step forward.
type Source interface {
	View

	// AdvanceAndPublish reveals one more bar per symbol and publishes one
	// MarketTick, or marks the source exhausted.
	AdvanceAndPublish()

	// Exhausted reports whether the replay has ended.
	Exhausted() bool
}

// Compile-time interface check.
var _ Source = (*ReplaySource)(nil)

// ReplaySource replays a fixed set of aligned bar series in lock-step.
type ReplaySource struct {
	queue      *event.Queue
	symbols    []string
	index      map[string]int
	calendar   []time.Time
	series     [][]domain.Bar
	cursor     []int
	seen       [][]domain.Bar
	step       int
	priceField domain.PriceField
	timeField  domain.TimeField
	exhausted  bool
}

// NewReplaySource aligns series onto their union calendar and returns a
// source positioned before the first bar. Ticks are published to q.
func NewReplaySource(
	q *event.Queue,
	symbols []string,
	series map[string][]domain.Bar,
	priceField domain.PriceField,
	timeField domain.TimeField,
) (*ReplaySource, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: nil queue", ErrInvalidSeries)
	}

	calendar, aligned, err := Align(symbols, series, timeField)
	if err != nil {
		return nil, err
	}

	s := &ReplaySource{
		queue:      q,
		symbols:    append([]string(nil), symbols...),
		index:      make(map[string]int, len(symbols)),
		calendar:   calendar,
		series:     make([][]domain.Bar, len(symbols)),
		cursor:     make([]int, len(symbols)),
		seen:       make([][]domain.Bar, len(symbols)),
		step:       -1,
		priceField: priceField,
		timeField:  timeField,
	}
	for i, sym := range symbols {
		s.index[sym] = i
		s.series[i] = aligned[sym]
		s.cursor[i] = -1
		s.seen[i] = make([]domain.Bar, 0, len(calendar))
	}
	return s, nil
}

// AdvanceAndPublish moves every cursor forward one row. If any symbol has no
// row left the source becomes exhausted and nothing is revealed or
// published.
func (s *ReplaySource) AdvanceAndPublish() {
	if s.exhausted {
		return
	}
	for i := range s.series {
		if s.cursor[i]+1 >= len(s.series[i]) {
			s.exhausted = true
			return
		}
	}

	for i := range s.series {
		s.cursor[i]++
		s.seen[i] = append(s.seen[i], s.series[i][s.cursor[i]])
	}
	s.step++
	s.queue.Put(event.MarketTick{})
}

// Exhausted reports whether the replay has ended.
func (s *ReplaySource) Exhausted() bool {
	return s.exhausted
}

// Symbols returns the configured symbols.
func (s *ReplaySource) Symbols() []string {
	return append([]string(nil), s.symbols...)
}

// Window returns a copy of the last n revealed bars for symbol.
func (s *ReplaySource) Window(symbol string, n int) ([]domain.Bar, error) {
	i, ok := s.index[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	buf := s.seen[i]
	if n > 0 && n < len(buf) {
		buf = buf[len(buf)-n:]
	}
	return append([]domain.Bar(nil), buf...), nil
}

// Latest returns the most recently revealed bar for symbol.
func (s *ReplaySource) Latest(symbol string) (domain.Bar, error) {
	i, ok := s.index[symbol]
	if !ok {
		return domain.Bar{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	if len(s.seen[i]) == 0 {
		return domain.Bar{}, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}
	return s.seen[i][len(s.seen[i])-1], nil
}

// LatestPrice returns the configured price of the latest revealed bar.
func (s *ReplaySource) LatestPrice(symbol string) (float64, error) {
	b, err := s.Latest(symbol)
	if err != nil {
		return 0, err
	}
	return b.Price(s.priceField), nil
}

// Now returns the calendar time of the current cursor.
func (s *ReplaySource) Now() time.Time {
	if s.step < 0 {
		return time.Time{}
	}
	return s.calendar[s.step]
}

// PriceField returns the configured price selector.
func (s *ReplaySource) PriceField() domain.PriceField {
	return s.priceField
}

// TimeField returns the configured time selector.
func (s *ReplaySource) TimeField() domain.TimeField {
	return s.timeField
}

// Len returns the number of calendar steps the replay will publish.
func (s *ReplaySource) Len() int {
	return len(s.calendar)
}
