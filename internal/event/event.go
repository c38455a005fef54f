// Package event defines the four event kinds that flow through a backtest
// and the FIFO queue that carries them between components.
package event

import (
	"time"

	"github.com/google/uuid"

	"backtester/internal/domain"
)

// Kind tags an Event.
type Kind uint8

const (
	KindMarket Kind = iota + 1
	KindSignal
	KindOrder
	KindFill
)

func (k Kind) String() string {
	switch k {
	case KindMarket:
		return "market"
	case KindSignal:
		return "signal"
	case KindOrder:
		return "order"
	case KindFill:
		return "fill"
	default:
		return "unknown"
	}
}

// Event is the closed set {MarketTick, Signal, Order, Fill}. The unexported
// method keeps other packages from adding kinds.
type Event interface {
	Kind() Kind
	sealed()
}

// Compile-time checks.
var (
	_ Event = MarketTick{}
	_ Event = Signal{}
	_ Event = Order{}
	_ Event = Fill{}
)

// MarketTick announces that every symbol has revealed one more bar.
type MarketTick struct{}

func (MarketTick) Kind() Kind { return KindMarket }
func (MarketTick) sealed()    {}

// Signal is a strategy's directional request for a symbol.
type Signal struct {
	Symbol    string
	Timestamp time.Time
	Direction domain.Direction
	Quantity  float64
}

// NewSignal builds a Signal.
func NewSignal(symbol string, ts time.Time, dir domain.Direction, qty float64) Signal {
	return Signal{Symbol: symbol, Timestamp: ts, Direction: dir, Quantity: qty}
}

func (Signal) Kind() Kind { return KindSignal }
func (Signal) sealed()    {}

// Order is a market order produced by the ledger.
type Order struct {
	ID       uuid.UUID
	Symbol   string
	Quantity float64
	Side     domain.OrderSide
	Type     domain.OrderType
}

// NewOrder builds a market Order with a fresh ID.
func NewOrder(symbol string, qty float64, side domain.OrderSide) Order {
	return Order{
		ID:       uuid.New(),
		Symbol:   symbol,
		Quantity: qty,
		Side:     side,
		Type:     domain.OrderTypeMarket,
	}
}

func (Order) Kind() Kind { return KindOrder }
func (Order) sealed()    {}

// Fill reports the execution of exactly one Order.
type Fill struct {
	OrderID    uuid.UUID
	Timestamp  time.Time
	Symbol     string
	Venue      string
	Quantity   float64
	Side       domain.OrderSide
	Price      float64
	Commission float64
}

// NewFill builds a Fill for the given order.
func NewFill(order Order, ts time.Time, venue string, price, commission float64) Fill {
	return Fill{
		OrderID:    order.ID,
		Timestamp:  ts,
		Symbol:     order.Symbol,
		Venue:      venue,
		Quantity:   order.Quantity,
		Side:       order.Side,
		Price:      price,
		Commission: commission,
	}
}

// SignedQuantity is the position delta this fill applies.
func (f Fill) SignedQuantity() float64 {
	return f.Side.Sign() * f.Quantity
}

func (Fill) Kind() Kind { return KindFill }
func (Fill) sealed()    {}
