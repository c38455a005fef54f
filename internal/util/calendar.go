package util

import (
	"time"

	"backtester/internal/domain"
)

// TradingCalendar holds per-market calendar facts used when annualising
// statistics and when turning dates into fetch windows.
type TradingCalendar struct {
	market domain.Market
	loc    *time.Location
}

// NewTradingCalendar creates a TradingCalendar for the given market. The
// exchange time zone falls back to UTC when tzdata is unavailable.
func NewTradingCalendar(market domain.Market) *TradingCalendar {
	name := "America/New_York"
	if market == domain.MarketCN {
		name = "Asia/Shanghai"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	return &TradingCalendar{market: market, loc: loc}
}

// Market returns the calendar's market.
func (tc *TradingCalendar) Market() domain.Market {
	return tc.market
}

// Location returns the exchange time zone.
func (tc *TradingCalendar) Location() *time.Location {
	return tc.loc
}

// PeriodsPerYear returns the number of daily sessions in a typical year.
func (tc *TradingCalendar) PeriodsPerYear() int {
	if tc.market == domain.MarketCN {
		return 242
	}
	return 252
}

// SessionStart returns midnight of t's calendar date in the exchange zone.
func (tc *TradingCalendar) SessionStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, tc.loc)
}
