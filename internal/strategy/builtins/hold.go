package builtins

import (
	"backtester/internal/domain"
	"backtester/internal/event"
	"backtester/internal/strategy"
)

const (
	BuyAndHoldName  = "buy-and-hold"
	SellAndHoldName = "sell-and-hold"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Hold)(nil)

// Hold enters every symbol once, in one direction, and never exits.
//
// Sizing: cash is split evenly between the symbols not yet entered, at the
// price of the tick the signal is raised on. A symbol whose share of cash
// cannot buy one unit is retried on the next tick.
type Hold struct {
	name    string
	dir     domain.Direction
	env     strategy.Env
	entered map[string]bool
}

// NewBuyAndHold goes long every symbol on the first tick.
func NewBuyAndHold(env strategy.Env, _ strategy.Params) (strategy.Strategy, error) {
	return newHold(BuyAndHoldName, domain.DirectionLong, env), nil
}

// NewSellAndHold goes short every symbol on the first tick.
func NewSellAndHold(env strategy.Env, _ strategy.Params) (strategy.Strategy, error) {
	return newHold(SellAndHoldName, domain.DirectionShort, env), nil
}

func newHold(name string, dir domain.Direction, env strategy.Env) *Hold {
	return &Hold{name: name, dir: dir, env: env, entered: make(map[string]bool)}
}

// Name returns the strategy identifier.
func (s *Hold) Name() string {
	return s.name
}

// CalculateSignals enters every symbol not yet entered.
func (s *Hold) CalculateSignals(_ event.MarketTick) error {
	var pending []string
	for _, sym := range s.env.Data.Symbols() {
		if !s.entered[sym] {
			pending = append(pending, sym)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	cash := s.env.Portfolio.Cash()
	for _, sym := range pending {
		price, err := s.env.Data.LatestPrice(sym)
		if err != nil {
			return err
		}
		qty := allotment(cash, len(pending), price)
		if qty == 0 {
			continue
		}
		s.env.Queue.Put(event.NewSignal(sym, s.env.Data.Now(), s.dir, qty))
		s.entered[sym] = true
	}
	return nil
}
