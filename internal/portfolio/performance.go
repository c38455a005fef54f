package portfolio

import (
	"math"
	"time"
)

// DefaultPeriods is the number of daily bars per year used to annualise the
// Sharpe ratio.
const DefaultPeriods = 252

// CurvePoint is one entry of the derived equity curve.
type CurvePoint struct {
	Timestamp time.Time
	Total     float64
	// Return is the fractional change in Total since the previous point;
	// zero for the first point.
	Return float64
	// Growth is the running product of (1+Return), starting at 1.
	Growth float64
}

// Summary holds the headline statistics of a finished run.
type Summary struct {
	InitialCapital   float64
	FinalEquity      float64
	TotalReturn      float64
	SharpeRatio      float64
	MaxDrawdown      float64
	DrawdownDuration int
	Ticks            int
	Fills            int
}

// EquityCurve derives returns and growth factors from the snapshots.
func (l *Ledger) EquityCurve() []CurvePoint {
	totals := make([]float64, len(l.snapshots))
	for i, s := range l.snapshots {
		totals[i] = s.Total
	}
	rets := Returns(totals)
	growth := GrowthFactors(rets)

	curve := make([]CurvePoint, len(l.snapshots))
	for i, s := range l.snapshots {
		curve[i] = CurvePoint{Timestamp: s.Timestamp, Total: s.Total, Growth: growth[i]}
		if i > 0 {
			curve[i].Return = rets[i-1]
		}
	}
	return curve
}

// Summary computes headline statistics over the recorded snapshots,
// annualising the Sharpe ratio with periods bars per year.
func (l *Ledger) Summary(periods int) Summary {
	if periods <= 0 {
		periods = DefaultPeriods
	}

	s := Summary{
		InitialCapital: l.initialCapital,
		FinalEquity:    l.total,
		Ticks:          len(l.snapshots),
		Fills:          l.fills,
	}
	if len(l.snapshots) == 0 {
		return s
	}

	totals := make([]float64, len(l.snapshots))
	for i, snap := range l.snapshots {
		totals[i] = snap.Total
	}
	rets := Returns(totals)
	growth := GrowthFactors(rets)

	s.TotalReturn = growth[len(growth)-1] - 1
	s.SharpeRatio = SharpeRatio(rets, periods)
	s.MaxDrawdown, s.DrawdownDuration = MaxDrawdown(growth)
	return s
}

// Returns is the percentage change between consecutive values. The result
// has one fewer element than values. A change from zero is reported as 0.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		out[i-1] = values[i]/values[i-1] - 1
	}
	return out
}

// GrowthFactors returns the cumulative growth curve for returns, starting
// with 1.0 before the first return. The result has len(returns)+1 elements.
func GrowthFactors(returns []float64) []float64 {
	out := make([]float64, len(returns)+1)
	out[0] = 1
	for i, r := range returns {
		out[i+1] = out[i] * (1 + r)
	}
	return out
}

// SharpeRatio is sqrt(periods) * mean(returns) / stdev(returns) using the
// population standard deviation. It is 0 when there are no returns or they
// do not vary.
func SharpeRatio(returns []float64, periods int) float64 {
	if len(returns) == 0 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(returns)))
	if std == 0 {
		return 0
	}
	return math.Sqrt(float64(periods)) * mean / std
}

// Drawdowns walks curve with a running high-water mark. drawdown[i] is the
// high-water mark minus curve[i]. duration[i] is 0 whenever drawdown[i] is
// exactly zero and duration[i-1]+1 otherwise.
func Drawdowns(curve []float64) (drawdown []float64, duration []int) {
	drawdown = make([]float64, len(curve))
	duration = make([]int, len(curve))
	if len(curve) == 0 {
		return drawdown, duration
	}

	hwm := curve[0]
	for i := 1; i < len(curve); i++ {
		if curve[i] > hwm {
			hwm = curve[i]
		}
		drawdown[i] = hwm - curve[i]
		if drawdown[i] != 0 {
			duration[i] = duration[i-1] + 1
		}
	}
	return drawdown, duration
}

// MaxDrawdown returns the largest drawdown and the longest duration seen
// along curve. The two maxima may come from different episodes.
func MaxDrawdown(curve []float64) (float64, int) {
	dd, dur := Drawdowns(curve)
	var maxDD float64
	var maxDur int
	for i := range dd {
		if dd[i] > maxDD {
			maxDD = dd[i]
		}
		if dur[i] > maxDur {
			maxDur = dur[i]
		}
	}
	return maxDD, maxDur
}
