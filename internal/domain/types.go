// Package domain defines the core value types shared across the backtester:
// historical bars, trading enums, field selectors, and persisted run records.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Bar is one historical OHLCV record for a symbol. Bars are externally
// sourced and never modified after loading.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	AdjClose  float64
	Volume    int64
}

// Direction is the intent carried by a strategy signal.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionExit  Direction = "EXIT"
)

// OrderSide is the side of an order or fill.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Sign returns +1 for buys and -1 for sells.
func (s OrderSide) Sign() float64 {
	if s == OrderSideSell {
		return -1
	}
	return 1
}

// OrderType is the execution style of an order. Only market orders exist.
type OrderType string

const OrderTypeMarket OrderType = "MKT"

// Market identifies a regional equity market.
type Market string

const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// ---------------------------------------------------------------------------
// Field selectors
// ---------------------------------------------------------------------------

// PriceField selects which bar column is used as "the price" for signals,
// valuation and fills.
type PriceField string

const (
	PriceOpen     PriceField = "open"
	PriceHigh     PriceField = "high"
	PriceLow      PriceField = "low"
	PriceClose    PriceField = "close"
	PriceAdjClose PriceField = "adj_close"
)

// ParsePriceField resolves a configured column name.
func ParsePriceField(s string) (PriceField, error) {
	switch f := PriceField(strings.ToLower(strings.TrimSpace(s))); f {
	case PriceOpen, PriceHigh, PriceLow, PriceClose, PriceAdjClose:
		return f, nil
	case "adjclose", "adjusted_close":
		return PriceAdjClose, nil
	default:
		return "", fmt.Errorf("unknown price field %q", s)
	}
}

// Price returns the bar's value for the selected field.
func (b Bar) Price(f PriceField) float64 {
	switch f {
	case PriceOpen:
		return b.Open
	case PriceHigh:
		return b.High
	case PriceLow:
		return b.Low
	case PriceAdjClose:
		return b.AdjClose
	default:
		return b.Close
	}
}

// TimeField selects how bar timestamps are keyed on the replay calendar.
type TimeField string

const (
	// TimeTimestamp keys bars by their exact instant.
	TimeTimestamp TimeField = "timestamp"
	// TimeDate keys bars by their UTC calendar date, so daily feeds stamped
	// at different times of day line up.
	TimeDate TimeField = "date"
)

// ParseTimeField resolves a configured time key name.
func ParseTimeField(s string) (TimeField, error) {
	switch f := TimeField(strings.ToLower(strings.TrimSpace(s))); f {
	case TimeTimestamp, TimeDate:
		return f, nil
	case "datetime":
		return TimeTimestamp, nil
	default:
		return "", fmt.Errorf("unknown time field %q", s)
	}
}

// Key returns the calendar key for t under this selector.
func (f TimeField) Key(t time.Time) time.Time {
	if f == TimeDate {
		u := t.UTC()
		return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	}
	return t
}

// ---------------------------------------------------------------------------
// Run records
// ---------------------------------------------------------------------------

// Run is the persisted summary of one completed backtest.
type Run struct {
	ID               string
	Strategy         string
	Symbols          []string
	StartedAt        time.Time
	FirstBar         time.Time
	LastBar          time.Time
	InitialCapital   float64
	FinalEquity      float64
	TotalReturn      float64
	SharpeRatio      float64
	MaxDrawdown      float64
	DrawdownDuration int
	Ticks            int
	Fills            int
}
