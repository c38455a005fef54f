// Package report turns a finished run into printable summary pairs and a
// per-symbol buy-and-hold benchmark.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"

	"backtester/internal/data"
	"backtester/internal/portfolio"
)

var hundred = decimal.NewFromInt(100)

// Stat is one labelled, formatted summary value.
type Stat struct {
	Label string
	Value string
}

// Stats formats a run summary as ordered label/value pairs.
func Stats(s portfolio.Summary) []Stat {
	return []Stat{
		{"Total Return", Percent(s.TotalReturn)},
		{"Sharpe Ratio", Fixed(s.SharpeRatio)},
		{"Max Drawdown", Percent(s.MaxDrawdown)},
		{"Drawdown Duration", strconv.Itoa(s.DrawdownDuration)},
		{"Initial Capital", Fixed(s.InitialCapital)},
		{"Final Equity", Fixed(s.FinalEquity)},
		{"Ticks", strconv.Itoa(s.Ticks)},
		{"Fills", strconv.Itoa(s.Fills)},
	}
}

// Percent renders a fraction as a percentage with two decimals, 0.1234 as
// "12.34%".
func Percent(v float64) string {
	return decimal.NewFromFloat(v).Mul(hundred).StringFixed(2) + "%"
}

// Fixed renders v with two decimals.
func Fixed(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// Print writes stats one per line with labels padded to a common width.
func Print(w io.Writer, stats []Stat) error {
	width := 0
	for _, s := range stats {
		if len(s.Label) > width {
			width = len(s.Label)
		}
	}
	for _, s := range stats {
		if _, err := fmt.Fprintf(w, "%-*s  %s\n", width, s.Label, s.Value); err != nil {
			return err
		}
	}
	return nil
}

// Benchmark is the buy-and-hold outcome of a single symbol over the run.
type Benchmark struct {
	Symbol      string
	Growth      []float64
	TotalReturn float64
}

// Baseline computes buy-and-hold growth for every symbol from the bars the
// view has revealed, using the view's price field. Call it once the replay
// is exhausted to cover the whole run.
func Baseline(view data.View) ([]Benchmark, error) {
	field := view.PriceField()
	var out []Benchmark
	for _, sym := range view.Symbols() {
		bars, err := view.Window(sym, 0)
		if err != nil {
			return nil, err
		}
		prices := make([]float64, len(bars))
		for i, b := range bars {
			prices[i] = b.Price(field)
		}
		growth := portfolio.GrowthFactors(portfolio.Returns(prices))
		out = append(out, Benchmark{
			Symbol:      sym,
			Growth:      growth,
			TotalReturn: growth[len(growth)-1] - 1,
		})
	}
	return out, nil
}

// BenchmarkStats formats benchmarks as "<symbol> Buy & Hold" total returns.
func BenchmarkStats(benchmarks []Benchmark) []Stat {
	stats := make([]Stat, len(benchmarks))
	for i, b := range benchmarks {
		stats[i] = Stat{Label: b.Symbol + " Buy & Hold", Value: Percent(b.TotalReturn)}
	}
	return stats
}
