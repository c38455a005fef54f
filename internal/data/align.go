package data

import (
	"fmt"
	"math"
	"sort"
	"time"

	"backtester/internal/domain"
)

// Align forward-fills every symbol's bars onto the union of all native
// calendar keys. A calendar point with no native bar for a symbol repeats
// that symbol's most recent earlier bar. The calendar starts at the first
// point where every symbol has a known bar, because nothing earlier can be
// padded. Bars with NaN or infinite prices are rejected.
//
// The returned series all have len(calendar) entries.
func Align(symbols []string, series map[string][]domain.Bar, tf domain.TimeField) ([]time.Time, map[string][]domain.Bar, error) {
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("%w: no symbols", ErrInvalidSeries)
	}

	union := make(map[int64]time.Time)
	var start time.Time
	seen := make(map[string]bool, len(symbols))

	for _, sym := range symbols {
		if seen[sym] {
			return nil, nil, fmt.Errorf("%w: duplicate symbol %s", ErrInvalidSeries, sym)
		}
		seen[sym] = true

		bars, ok := series[sym]
		if !ok || len(bars) == 0 {
			return nil, nil, fmt.Errorf("%w: no bars for %s", ErrInvalidSeries, sym)
		}

		var prev time.Time
		for i, b := range bars {
			if b.Symbol != sym {
				return nil, nil, fmt.Errorf("%w: bar %d of %s is tagged %q", ErrInvalidSeries, i, sym, b.Symbol)
			}
			if !finitePrices(b) {
				return nil, nil, fmt.Errorf("%w: %s bar %d has a non-finite price", ErrInvalidSeries, sym, i)
			}
			k := tf.Key(b.Timestamp)
			if i > 0 && !k.After(prev) {
				return nil, nil, fmt.Errorf("%w: %s bar %d at %s is not after %s",
					ErrInvalidSeries, sym, i, k.Format(time.RFC3339), prev.Format(time.RFC3339))
			}
			prev = k
			union[k.UnixNano()] = k
		}

		if first := tf.Key(bars[0].Timestamp); first.After(start) {
			start = first
		}
	}

	calendar := make([]time.Time, 0, len(union))
	for _, k := range union {
		if !k.Before(start) {
			calendar = append(calendar, k)
		}
	}
	sort.Slice(calendar, func(i, j int) bool { return calendar[i].Before(calendar[j]) })

	aligned := make(map[string][]domain.Bar, len(symbols))
	for _, sym := range symbols {
		bars := series[sym]
		out := make([]domain.Bar, len(calendar))
		i := 0
		for c, point := range calendar {
			for i+1 < len(bars) && !tf.Key(bars[i+1].Timestamp).After(point) {
				i++
			}
			out[c] = bars[i]
		}
		aligned[sym] = out
	}

	return calendar, aligned, nil
}

func finitePrices(b domain.Bar) bool {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.AdjClose} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
