package builtins

import (
	"fmt"
	"math"

	"backtester/internal/domain"
	"backtester/internal/event"
	"backtester/internal/strategy"
)

const MACrossName = "ma-cross"

// Compile-time interface check.
var _ strategy.Strategy = (*MACross)(nil)

// MACross implements an exponentially weighted moving average crossover. It
// goes long when the short average crosses above the long one and exits
// when it crosses below. With long/short enabled the exit is followed by a
// short of the same size, and the next upward cross covers and reverses.
//
// Sizing: a new long uses an even share of cash across flat symbols. When
// reversing from short to long, the share adds back the value of the short
// being covered (cash + position*price), since the cover is still queued
// when the long is sized.
type MACross struct {
	shortPeriod int
	longPeriod  int
	longShort   bool
	env         strategy.Env
	long        map[string]bool
}

// NewMACross reads "short" (default 12), "long" (default 26) and
// "long_short" (non-zero to enable) from params.
func NewMACross(env strategy.Env, params strategy.Params) (strategy.Strategy, error) {
	short := int(params.Get("short", 12))
	long := int(params.Get("long", 26))
	if short <= 0 || long <= short {
		return nil, fmt.Errorf("%s: need 0 < short < long, got short=%d long=%d", MACrossName, short, long)
	}
	return &MACross{
		shortPeriod: short,
		longPeriod:  long,
		longShort:   params.Get("long_short", 0) != 0,
		env:         env,
		long:        make(map[string]bool),
	}, nil
}

// Name returns "ma-cross".
func (s *MACross) Name() string {
	return MACrossName
}

// CalculateSignals checks every symbol for a crossover on the last
// longPeriod revealed prices.
func (s *MACross) CalculateSignals(_ event.MarketTick) error {
	flat := 0
	for _, sym := range s.env.Data.Symbols() {
		if s.env.Portfolio.Position(sym) == 0 {
			flat++
		}
	}

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
		price := prices[len(prices)-1]
		pos := s.env.Portfolio.Position(sym)

		switch {
		case !s.long[sym] && fast > slow:
			entering := flat
			if pos != 0 {
				s.env.Queue.Put(event.NewSignal(sym, now, domain.DirectionExit, math.Abs(pos)))
				entering++
			}
			qty := allotment(s.env.Portfolio.Cash()+pos*price, entering, price)
			if qty > 0 {
				s.env.Queue.Put(event.NewSignal(sym, now, domain.DirectionLong, qty))
			}
			s.long[sym] = true

		case s.long[sym] && fast < slow:
			if pos > 0 {
				s.env.Queue.Put(event.NewSignal(sym, now, domain.DirectionExit, pos))
				if s.longShort {
					s.env.Queue.Put(event.NewSignal(sym, now, domain.DirectionShort, pos))
				}
			}
			s.long[sym] = false
		}
	}
	return nil
}
