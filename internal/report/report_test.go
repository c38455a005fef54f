package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtester/internal/data"
	"backtester/internal/domain"
	"backtester/internal/event"
	"backtester/internal/portfolio"
)

func TestStats(t *testing.T) {
	stats := Stats(portfolio.Summary{
		InitialCapital:   100000,
		FinalEquity:      112345.678,
		TotalReturn:      0.12345678,
		SharpeRatio:      1.456,
		MaxDrawdown:      0.2,
		DrawdownDuration: 14,
		Ticks:            252,
		Fills:            6,
	})

	want := []Stat{
		{"Total Return", "12.35%"},
		{"Sharpe Ratio", "1.46"},
		{"Max Drawdown", "20.00%"},
		{"Drawdown Duration", "14"},
		{"Initial Capital", "100000.00"},
		{"Final Equity", "112345.68"},
		{"Ticks", "252"},
		{"Fills", "6"},
	}
	assert.Equal(t, want, stats)
}

func TestPercentNegative(t *testing.T) {
	assert.Equal(t, "-5.50%", Percent(-0.055))
	assert.Equal(t, "0.00%", Percent(0))
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, []Stat{{"Sharpe Ratio", "1.00"}, {"Drawdown Duration", "3"}}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Sharpe Ratio       1.00", lines[0])
	assert.Equal(t, "Drawdown Duration  3", lines[1])
}

func TestBaseline(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	series := map[string][]domain.Bar{
		"AAA": {
			{Symbol: "AAA", Timestamp: day(1), Close: 10},
			{Symbol: "AAA", Timestamp: day(2), Close: 12},
			{Symbol: "AAA", Timestamp: day(3), Close: 9},
		},
		"BBB": {
			{Symbol: "BBB", Timestamp: day(1), Close: 20},
			{Symbol: "BBB", Timestamp: day(3), Close: 30},
		},
	}
	src, err := data.NewReplaySource(event.NewQueue(), []string{"AAA", "BBB"}, series, domain.PriceClose, domain.TimeTimestamp)
	require.NoError(t, err)
	for !src.Exhausted() {
		src.AdvanceAndPublish()
	}

	bench, err := Baseline(src)
	require.NoError(t, err)
	require.Len(t, bench, 2)

	assert.Equal(t, "AAA", bench[0].Symbol)
	assert.InDeltaSlice(t, []float64{1, 1.2, 0.9}, bench[0].Growth, 1e-12)
	assert.InDelta(t, -0.1, bench[0].TotalReturn, 1e-12)

	// BBB is padded on day 2.
	assert.InDeltaSlice(t, []float64{1, 1, 1.5}, bench[1].Growth, 1e-12)

	stats := BenchmarkStats(bench)
	assert.Equal(t, Stat{"BBB Buy & Hold", "50.00%"}, stats[1])
}
