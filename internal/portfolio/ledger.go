// Package portfolio tracks positions, cash and holdings for a backtest run,
// turns signals into orders, applies fills, and derives the equity curve.
package portfolio

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"backtester/internal/data"
	"backtester/internal/domain"
	"backtester/internal/event"
)

var (
	// ErrInvalidQuantity is returned for signals or fills with a
	// non-positive quantity.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrInvalidCapital is returned when the starting capital is not positive.
	ErrInvalidCapital = errors.New("initial capital must be positive")
)

// Snapshot is the state of the portfolio at one tick.
type Snapshot struct {
	Timestamp    time.Time
	Positions    map[string]float64
	MarketValues map[string]float64
	Cash         float64
	Commission   float64
	Total        float64
}

// View is read-only access to the ledger for strategies.
type View interface {
	// Position returns the signed quantity held in symbol.
	Position(symbol string) float64

	// Cash returns the cash balance, net of commissions paid.
	Cash() float64

	// Holdings returns the current state, marked at the latest prices.
	Holdings() Snapshot
}

// Compile-time interface check.
var _ View = (*Ledger)(nil)

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the ledger's logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// Ledger owns positions and holdings for one run. It is driven only from
// the scheduler's goroutine and does no locking.
type Ledger struct {
	view           data.View
	symbols        []string
	initialCapital float64

	positions    map[string]float64
	marketValues map[string]float64
	cash         float64
	commission   float64
	total        float64

	snapshots []Snapshot
	fills     int
	log       *slog.Logger
}

// NewLedger creates a flat ledger for every symbol in view.
func NewLedger(view data.View, initialCapital float64, opts ...Option) (*Ledger, error) {
	if initialCapital <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCapital, initialCapital)
	}

	l := &Ledger{
		view:           view,
		symbols:        view.Symbols(),
		initialCapital: initialCapital,
		positions:      make(map[string]float64),
		marketValues:   make(map[string]float64),
		cash:           initialCapital,
		total:          initialCapital,
		log:            slog.Default().With("component", "ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	for _, sym := range l.symbols {
		l.positions[sym] = 0
		l.marketValues[sym] = 0
	}
	return l, nil
}

// OnMarketTick marks every position to the latest revealed price and
// appends one snapshot to the equity curve.
func (l *Ledger) OnMarketTick() error {
	if err := l.markToMarket(); err != nil {
		return err
	}
	l.snapshots = append(l.snapshots, l.snapshot())
	return nil
}

// OnSignal resolves a signal's direction against the current position. It
// returns false when no order is needed (EXIT while flat, whatever the
// quantity). The quantity is checked only for signals that become orders.
func (l *Ledger) OnSignal(sig event.Signal) (event.Order, bool, error) {
	pos, ok := l.positions[sig.Symbol]
	if !ok {
		return event.Order{}, false, fmt.Errorf("signal: %w: %s", data.ErrSymbolNotFound, sig.Symbol)
	}

	var side domain.OrderSide
	switch sig.Direction {
	case domain.DirectionLong:
		side = domain.OrderSideBuy
	case domain.DirectionShort:
		side = domain.OrderSideSell
	case domain.DirectionExit:
		switch {
		case pos > 0:
			side = domain.OrderSideSell
		case pos < 0:
			side = domain.OrderSideBuy
		default:
			l.log.Debug("exit while flat, no order", "symbol", sig.Symbol)
			return event.Order{}, false, nil
		}
	default:
		return event.Order{}, false, fmt.Errorf("signal %s: unknown direction %q", sig.Symbol, sig.Direction)
	}

	if sig.Quantity <= 0 {
		return event.Order{}, false, fmt.Errorf("signal %s %s: %w (got %v)", sig.Direction, sig.Symbol, ErrInvalidQuantity, sig.Quantity)
	}
	return event.NewOrder(sig.Symbol, sig.Quantity, side), true, nil
}

// OnFill applies a fill to positions, cash and commission.
func (l *Ledger) OnFill(fill event.Fill) error {
	if _, ok := l.positions[fill.Symbol]; !ok {
		return fmt.Errorf("fill: %w: %s", data.ErrSymbolNotFound, fill.Symbol)
	}
	if fill.Quantity <= 0 {
		return fmt.Errorf("fill %s: %w (got %v)", fill.OrderID, ErrInvalidQuantity, fill.Quantity)
	}

	qty := fill.SignedQuantity()
	l.positions[fill.Symbol] += qty
	l.cash -= qty*fill.Price + fill.Commission
	l.commission += fill.Commission
	l.fills++

	if err := l.markToMarket(); err != nil {
		return err
	}

	l.log.Debug("fill applied",
		"symbol", fill.Symbol,
		"side", fill.Side,
		"qty", fill.Quantity,
		"price", fill.Price,
		"position", l.positions[fill.Symbol],
		"cash", l.cash,
	)
	return nil
}

// Position returns the signed quantity held in symbol.
func (l *Ledger) Position(symbol string) float64 {
	return l.positions[symbol]
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	return l.cash
}

// Holdings returns a copy of the current state.
func (l *Ledger) Holdings() Snapshot {
	return l.snapshot()
}

// Snapshots returns the equity curve recorded so far, one entry per tick.
func (l *Ledger) Snapshots() []Snapshot {
	return append([]Snapshot(nil), l.snapshots...)
}

// InitialCapital returns the starting cash.
func (l *Ledger) InitialCapital() float64 {
	return l.initialCapital
}

// Fills returns how many fills have been applied.
func (l *Ledger) Fills() int {
	return l.fills
}

// markToMarket revalues every position at the latest price and recomputes
// the total.
func (l *Ledger) markToMarket() error {
	total := l.cash
	for _, sym := range l.symbols {
		price, err := l.view.LatestPrice(sym)
		if err != nil {
			return fmt.Errorf("marking %s: %w", sym, err)
		}
		mv := l.positions[sym] * price
		l.marketValues[sym] = mv
		total += mv
	}
	l.total = total
	return nil
}

func (l *Ledger) snapshot() Snapshot {
	s := Snapshot{
		Timestamp:    l.view.Now(),
		Positions:    make(map[string]float64, len(l.positions)),
		MarketValues: make(map[string]float64, len(l.marketValues)),
		Cash:         l.cash,
		Commission:   l.commission,
		Total:        l.total,
	}
	for k, v := range l.positions {
		s.Positions[k] = v
	}
	for k, v := range l.marketValues {
		s.MarketValues[k] = v
	}
	return s
}
