package builtins

import (
	"fmt"
	"math"

	"backtester/internal/domain"
	"backtester/internal/event"
	"backtester/internal/portfolio"
	"backtester/internal/strategy"
)

const DivideAndConquerName = "divide-and-conquer"

// Compile-time interface check.
var _ strategy.Strategy = (*DivideAndConquer)(nil)

// DivideAndConquer buys into weakness and sells into strength. When the mean
// bar-to-bar return over the recent window is negative it buys; otherwise it
// trims the position.
//
// Sizing: a buy spends fraction of the cash balance at the tick's price,
// evaluated independently per symbol; a trim sells fraction of the current
// position. Both round down to whole units.
type DivideAndConquer struct {
	window   int
	fraction float64
	env      strategy.Env
}

// NewDivideAndConquer reads "window" (default 7 bars) and "fraction"
// (default 0.5) from params.
func NewDivideAndConquer(env strategy.Env, params strategy.Params) (strategy.Strategy, error) {
	window := int(params.Get("window", 7))
	fraction := params.Get("fraction", 0.5)
	if window < 2 {
		return nil, fmt.Errorf("%s: window must be at least 2, got %d", DivideAndConquerName, window)
	}
	if fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("%s: fraction must be in (0, 1], got %v", DivideAndConquerName, fraction)
	}
	return &DivideAndConquer{window: window, fraction: fraction, env: env}, nil
}

// Name returns "divide-and-conquer".
func (s *DivideAndConquer) Name() string {
	return DivideAndConquerName
}

// CalculateSignals buys or trims each symbol from its recent mean return.
func (s *DivideAndConquer) CalculateSignals(_ event.MarketTick) error {
	now := s.env.Data.Now()
	field := s.env.Data.PriceField()
	for _, sym := range s.env.Data.Symbols() {
		bars, err := s.env.Data.Window(sym, s.window)
		if err != nil {
			return err
		}
		prices := make([]float64, len(bars))
		for i, b := range bars {
			prices[i] = b.Price(field)
		}
		price := prices[len(prices)-1]

		rets := portfolio.Returns(prices)
		if len(rets) > 0 && mean(rets) < 0 {
			if price <= 0 {
				continue
			}
			if qty := math.Floor(s.env.Portfolio.Cash() * s.fraction / price); qty > 0 {
				s.env.Queue.Put(event.NewSignal(sym, now, domain.DirectionLong, qty))
			}
			continue
		}

		if qty := math.Floor(s.env.Portfolio.Position(sym) * s.fraction); qty > 0 {
			s.env.Queue.Put(event.NewSignal(sym, now, domain.DirectionExit, qty))
		}
	}
	return nil
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
