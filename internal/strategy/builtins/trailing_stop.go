package builtins

import (
	"fmt"

	"backtester/internal/domain"
	"backtester/internal/event"
	"backtester/internal/strategy"
)

const TrailingStopName = "trailing-stop"

// Compile-time interface check.
var _ strategy.Strategy = (*TrailingStop)(nil)

// TrailingStop buys when flat and sells when the price falls to a stop that
// trails the price at a fixed fraction. After a stop-out it only re-enters
// once the price exceeds the level the stop was last ratcheted from.
//
// Sizing: an even share of cash across flat symbols; exits close the whole
// position.
type TrailingStop struct {
	ratio float64
	env   strategy.Env
	stop  map[string]float64
}

// NewTrailingStop reads "ratio" (default 0.9): the stop sits at ratio times
// the highest price seen while long.
func NewTrailingStop(env strategy.Env, params strategy.Params) (strategy.Strategy, error) {
	ratio := params.Get("ratio", 0.9)
	if ratio <= 0 || ratio >= 1 {
		return nil, fmt.Errorf("%s: ratio must be in (0, 1), got %v", TrailingStopName, ratio)
	}
	return &TrailingStop{ratio: ratio, env: env, stop: make(map[string]float64)}, nil
}

// Name returns "trailing-stop".
func (s *TrailingStop) Name() string {
	return TrailingStopName
}

// CalculateSignals enters, ratchets or exits each symbol.
func (s *TrailingStop) CalculateSignals(_ event.MarketTick) error {
	flat := 0
	for _, sym := range s.env.Data.Symbols() {
		if s.env.Portfolio.Position(sym) == 0 {
			flat++
		}
	}

	now := s.env.Data.Now()
	cash := s.env.Portfolio.Cash()
	for _, sym := range s.env.Data.Symbols() {
		price, err := s.env.Data.LatestPrice(sym)
		if err != nil {
			return err
		}
		pos := s.env.Portfolio.Position(sym)
		if pos < 0 {
			continue
		}

		switch {
		case pos == 0:
			if price <= s.stop[sym]/s.ratio {
				continue
			}
			qty := allotment(cash, flat, price)
			if qty == 0 {
				continue
			}
			s.env.Queue.Put(event.NewSignal(sym, now, domain.DirectionLong, qty))
			s.stop[sym] = s.ratio * price

		case price <= s.stop[sym]:
			s.env.Queue.Put(event.NewSignal(sym, now, domain.DirectionExit, pos))

		case s.ratio*price > s.stop[sym]:
			s.stop[sym] = s.ratio * price
		}
	}
	return nil
}

// Stop returns the current stop level for symbol.
func (s *TrailingStop) Stop(symbol string) float64 {
	return s.stop[symbol]
}
