// Package builtins provides built-in strategy implementations that ship with
// the backtester.
package builtins

import (
	"math"

	"backtester/internal/strategy"
)

// Register adds every builtin to r.
func Register(r *strategy.Registry) {
	r.Register(BuyAndHoldName, NewBuyAndHold)
	r.Register(SellAndHoldName, NewSellAndHold)
	r.Register(MACrossName, NewMACross)
	r.Register(MAMomentumName, NewMAMomentum)
	r.Register(TrailingStopName, NewTrailingStop)
	r.Register(DivideAndConquerName, NewDivideAndConquer)
}

// Default returns a registry holding every builtin.
func Default() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}

// allotment splits the available cash evenly between the symbols that are
// about to be entered and returns the whole-share quantity affordable at
// price. Returns 0 when nothing can be bought.
func allotment(cash float64, entering int, price float64) float64 {
	if entering <= 0 || price <= 0 || cash <= 0 {
		return 0
	}
	return math.Floor(cash / float64(entering) / price)
}

// ewma is the bias-adjusted exponentially weighted mean of values with
// centre of mass com, i.e. smoothing factor 1/(1+com).
func ewma(values []float64, com float64) float64 {
	decay := 1 - 1/(1+com)
	var num, den float64
	for _, v := range values {
		num = v + decay*num
		den = 1 + decay*den
	}
	if den == 0 {
		return 0
	}
	return num / den
}
