package builtins

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtester/internal/data"
	"backtester/internal/domain"
	"backtester/internal/engine"
	"backtester/internal/event"
	"backtester/internal/execution"
	"backtester/internal/portfolio"
	"backtester/internal/strategy"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

type harness struct {
	source *data.ReplaySource
	ledger *portfolio.Ledger
	strat  strategy.Strategy
	result engine.Result
}

// run replays closes for each symbol through the named builtin.
func run(t *testing.T, name string, params strategy.Params, capital float64, closes map[string][]float64, symbols ...string) harness {
	t.Helper()
	series := make(map[string][]domain.Bar, len(closes))
	for sym, cs := range closes {
		for i, c := range cs {
			series[sym] = append(series[sym], domain.Bar{Symbol: sym, Timestamp: day(i + 1), Close: c, AdjClose: c})
		}
	}
	q := event.NewQueue()
	src, err := data.NewReplaySource(q, symbols, series, domain.PriceClose, domain.TimeTimestamp)
	require.NoError(t, err)
	l, err := portfolio.NewLedger(src, capital)
	require.NoError(t, err)
	strat, err := Default().New(name, strategy.Env{Data: src, Portfolio: l, Queue: q}, params)
	require.NoError(t, err)

	res, err := engine.New(src, strat, l, execution.NewIdealized(src, "TEST"), q).Run()
	require.NoError(t, err)
	return harness{source: src, ledger: l, strat: strat, result: res}
}

func TestDefaultRegistry(t *testing.T) {
	want := []string{BuyAndHoldName, DivideAndConquerName, MACrossName, MAMomentumName, SellAndHoldName, TrailingStopName}
	assert.Equal(t, want, Default().List())
}

func TestAllotment(t *testing.T) {
	assert.Equal(t, 33.0, allotment(1000, 3, 10))
	assert.Equal(t, 0.0, allotment(5, 1, 10))
	assert.Equal(t, 0.0, allotment(1000, 0, 10))
	assert.Equal(t, 0.0, allotment(-1, 1, 10))
	assert.Equal(t, 0.0, allotment(1000, 1, 0))
}

func TestEWMA(t *testing.T) {
	// com=1 gives alpha 0.5: weights 1, 0.5, 0.25 from newest to oldest.
	got := ewma([]float64{1, 2, 3}, 1)
	assert.InDelta(t, (3+0.5*2+0.25*1)/1.75, got, 1e-12)
	assert.Equal(t, 0.0, ewma(nil, 3))
}

func TestBuyAndHoldRetriesUnaffordableSymbols(t *testing.T) {
	h := run(t, BuyAndHoldName, nil, 100, map[string][]float64{
		"AAA": {10, 10, 10},
		"BBB": {80, 40, 40},
	}, "AAA", "BBB")

	// Day 1: AAA gets floor(50/10)=5, BBB cannot afford floor(50/80).
	// Day 2: BBB alone gets the remaining 50, floor(50/40)=1.
	assert.Equal(t, 5.0, h.ledger.Position("AAA"))
	assert.Equal(t, 1.0, h.ledger.Position("BBB"))
	assert.InDelta(t, 10, h.ledger.Cash(), 1e-9)
	assert.Len(t, h.result.Fills, 2)
}

func TestSellAndHold(t *testing.T) {
	h := run(t, SellAndHoldName, nil, 1000, map[string][]float64{"AAA": {10, 8, 5}}, "AAA")

	assert.Equal(t, -100.0, h.ledger.Position("AAA"))
	assert.InDelta(t, 2000, h.ledger.Cash(), 1e-9)
	snaps := h.ledger.Snapshots()
	assert.InDelta(t, 1500, snaps[len(snaps)-1].Total, 1e-9)
}

var crossPrices = []float64{10, 9, 8, 7, 8, 10, 12, 14, 12, 9, 6, 3}

func TestMACrossLongOnly(t *testing.T) {
	h := run(t, MACrossName, strategy.Params{"short": 2, "long": 4}, 1000,
		map[string][]float64{"AAA": crossPrices}, "AAA")

	require.Len(t, h.result.Fills, 2)
	buy, sell := h.result.Fills[0], h.result.Fills[1]
	assert.Equal(t, domain.OrderSideBuy, buy.Side)
	assert.Equal(t, day(6), buy.Timestamp)
	assert.Equal(t, 100.0, buy.Quantity)
	assert.Equal(t, domain.OrderSideSell, sell.Side)
	assert.Equal(t, day(10), sell.Timestamp)

	assert.Equal(t, 0.0, h.ledger.Position("AAA"))
	assert.InDelta(t, 900, h.ledger.Cash(), 1e-9)
}

func TestMACrossLongShort(t *testing.T) {
	h := run(t, MACrossName, strategy.Params{"short": 2, "long": 4, "long_short": 1}, 1000,
		map[string][]float64{"AAA": crossPrices}, "AAA")

	require.Len(t, h.result.Fills, 3)
	assert.Equal(t, -100.0, h.ledger.Position("AAA"))
	assert.InDelta(t, 1800, h.ledger.Cash(), 1e-9)
	snaps := h.ledger.Snapshots()
	assert.InDelta(t, 1500, snaps[len(snaps)-1].Total, 1e-9)
}

func TestMACrossParams(t *testing.T) {
	_, err := NewMACross(strategy.Env{}, strategy.Params{"short": 5, "long": 5})
	assert.Error(t, err)
	_, err = NewMACross(strategy.Env{}, strategy.Params{"short": 0})
	assert.Error(t, err)
}

func TestMAMomentum(t *testing.T) {
	h := run(t, MAMomentumName, strategy.Params{"short": 2, "long": 4}, 1000,
		map[string][]float64{"AAA": {10, 20, 30, 40, 30, 20, 10, 5}}, "AAA")

	fills := h.result.Fills
	require.Len(t, fills, 5)
	wantSides := []domain.OrderSide{
		domain.OrderSideBuy, domain.OrderSideBuy,
		domain.OrderSideSell, domain.OrderSideSell, domain.OrderSideSell,
	}
	wantQty := []float64{17, 3, 5, 5, 3}
	for i, f := range fills {
		assert.Equal(t, wantSides[i], f.Side, "fill %d", i)
		assert.Equal(t, wantQty[i], f.Quantity, "fill %d", i)
		assert.Equal(t, day(i+4), f.Timestamp, "fill %d", i)
	}

	// Selling only trims the long, so the position never goes negative.
	assert.Equal(t, 7.0, h.ledger.Position("AAA"))
	assert.InDelta(t, 395, h.ledger.Cash(), 1e-9)
	assert.InDelta(t, 430, h.ledger.Holdings().Total, 1e-9)
}

func TestMAMomentumParams(t *testing.T) {
	_, err := NewMAMomentum(strategy.Env{}, strategy.Params{"short": 4, "long": 2})
	assert.Error(t, err)
	_, err = NewMAMomentum(strategy.Env{}, strategy.Params{"short": -1})
	assert.Error(t, err)
}

func TestTrailingStop(t *testing.T) {
	h := run(t, TrailingStopName, strategy.Params{"ratio": 0.9}, 1000,
		map[string][]float64{"AAA": {10, 12, 11, 10.7, 11, 12.5}}, "AAA")

	require.Len(t, h.result.Fills, 3)
	assert.Equal(t, day(1), h.result.Fills[0].Timestamp)
	assert.Equal(t, 100.0, h.result.Fills[0].Quantity)

	// Stop ratcheted to 10.8 on day 2 and hit on day 4.
	assert.Equal(t, domain.OrderSideSell, h.result.Fills[1].Side)
	assert.Equal(t, day(4), h.result.Fills[1].Timestamp)

	// Day 5 at 11 is below 10.8/0.9, so re-entry waits for day 6.
	assert.Equal(t, day(6), h.result.Fills[2].Timestamp)
	assert.Equal(t, 85.0, h.result.Fills[2].Quantity)

	ts, ok := h.strat.(*TrailingStop)
	require.True(t, ok)
	assert.InDelta(t, 11.25, ts.Stop("AAA"), 1e-9)
}

func TestTrailingStopParams(t *testing.T) {
	for _, ratio := range []float64{0, 1, 1.5} {
		_, err := NewTrailingStop(strategy.Env{}, strategy.Params{"ratio": ratio})
		assert.Error(t, err, "ratio %v", ratio)
	}
}

func TestDivideAndConquer(t *testing.T) {
	h := run(t, DivideAndConquerName, strategy.Params{"window": 3}, 1000,
		map[string][]float64{"AAA": {10, 9, 8, 9, 10}}, "AAA")

	fills := h.result.Fills
	require.Len(t, fills, 4)
	// Two falling windows buy half the cash each time.
	assert.Equal(t, domain.OrderSideBuy, fills[0].Side)
	assert.Equal(t, 55.0, fills[0].Quantity)
	assert.Equal(t, day(2), fills[0].Timestamp)
	assert.Equal(t, 31.0, fills[1].Quantity)
	// Rising windows sell half the position.
	assert.Equal(t, domain.OrderSideSell, fills[2].Side)
	assert.Equal(t, 43.0, fills[2].Quantity)
	assert.Equal(t, 21.0, fills[3].Quantity)

	assert.Equal(t, 22.0, h.ledger.Position("AAA"))
	assert.InDelta(t, 854, h.ledger.Cash(), 1e-9)
	assert.InDelta(t, 1074, h.ledger.Holdings().Total, 1e-9)
}

func TestDivideAndConquerParams(t *testing.T) {
	for _, p := range []strategy.Params{{"window": 1}, {"fraction": 0}, {"fraction": 1.5}} {
		_, err := NewDivideAndConquer(strategy.Env{}, p)
		assert.Error(t, err, "params %v", p)
	}
}

func TestUnknownBuiltin(t *testing.T) {
	_, err := Default().New("nope", strategy.Env{}, nil)
	assert.True(t, errors.Is(err, strategy.ErrUnknownStrategy))
}
