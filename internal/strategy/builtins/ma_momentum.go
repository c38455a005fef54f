package builtins

import (
	"fmt"
	"math"

	"backtester/internal/domain"
	"backtester/internal/event"
	"backtester/internal/strategy"
)

const MAMomentumName = "ma-momentum"

// Compile-time interface check.
var _ strategy.Strategy = (*MAMomentum)(nil)

// MAMomentum scales in and out of a long position by the spread between a
// short and a long exponentially weighted average. It never goes short.
//
// Sizing: the spread is squashed to a factor |2*atan(long-short)/pi| in
// [0, 1). While the short average is at or above the long one it buys
// factor times the cash balance; otherwise it sells factor/2 of the
// position. Both round down to whole units and are evaluated independently
// per symbol.
type MAMomentum struct {
	shortPeriod int
	longPeriod  int
	env         strategy.Env
}

// NewMAMomentum reads "short" (default 12) and "long" (default 26) from
// params.
func NewMAMomentum(env strategy.Env, params strategy.Params) (strategy.Strategy, error) {
	short := int(params.Get("short", 12))
	long := int(params.Get("long", 26))
	if short <= 0 || long <= short {
		return nil, fmt.Errorf("%s: need 0 < short < long, got short=%d long=%d", MAMomentumName, short, long)
	}
	return &MAMomentum{shortPeriod: short, longPeriod: long, env: env}, nil
}

// Name returns "ma-momentum".
func (s *MAMomentum) Name() string {
	return MAMomentumName
}

// CalculateSignals sizes a buy or a partial sell for every symbol with a
// full window of revealed prices.
func (s *MAMomentum) CalculateSignals(_ event.MarketTick) error {
	field := s.env.Data.PriceField()
	now := s.env.Data.Now()
	for _, sym := range s.env.Data.Symbols() {
		bars, err := s.env.Data.Window(sym, s.longPeriod)
		if err != nil {
			return err
		}
		if len(bars) < s.longPeriod {
			continue
		}
		prices := make([]float64, len(bars))
		for i, b := range bars {
			prices[i] = b.Price(field)
		}
		fast := ewma(prices, float64(s.shortPeriod))
		slow := ewma(prices, float64(s.longPeriod))
		factor := math.Abs(2 * math.Atan(slow-fast) / math.Pi)
		price := prices[len(prices)-1]

		if fast >= slow {
			if price <= 0 {
				continue
			}
			if qty := math.Floor(factor * s.env.Portfolio.Cash() / price); qty > 0 {
				s.env.Queue.Put(event.NewSignal(sym, now, domain.DirectionLong, qty))
			}
			continue
		}
		if qty := math.Floor(factor / 2 * s.env.Portfolio.Position(sym)); qty > 0 {
			s.env.Queue.Put(event.NewSignal(sym, now, domain.DirectionShort, qty))
		}
	}
	return nil
}
