// Package execution turns orders into fills. Implementations are swappable
// without changing the scheduler or ledger.
package execution

import (
	"fmt"

	"backtester/internal/data"
	"backtester/internal/event"
)

// DefaultVenue is reported on fills when no venue is configured.
const DefaultVenue = "ARCA"

// Simulator executes an order synchronously and returns its fill.
type Simulator interface {
	// Name returns the simulator identifier.
	Name() string

	// Execute returns exactly one Fill for order.
	Execute(order event.Order) (event.Fill, error)
}

// Compile-time interface check.
var _ Simulator = (*Idealized)(nil)

// Idealized fills every order in full at the current tick's price with no
// commission, slippage or rejection.
type Idealized struct {
	view  data.View
	venue string
}

// NewIdealized creates an Idealized simulator that prices fills from view.
func NewIdealized(view data.View, venue string) *Idealized {
	if venue == "" {
		venue = DefaultVenue
	}
	return &Idealized{view: view, venue: venue}
}

// Name returns "idealized".
func (s *Idealized) Name() string {
	return "idealized"
}

// Execute fills order at the latest revealed price.
func (s *Idealized) Execute(order event.Order) (event.Fill, error) {
	price, err := s.view.LatestPrice(order.Symbol)
	if err != nil {
		return event.Fill{}, fmt.Errorf("pricing order %s: %w", order.ID, err)
	}
	return event.NewFill(order, s.view.Now(), s.venue, price, 0), nil
}
