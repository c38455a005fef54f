// Package engine drives a backtest: it steps the data source and drains the
// event queue, routing each event to the component that owns it.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"backtester/internal/data"
	"backtester/internal/event"
	"backtester/internal/execution"
	"backtester/internal/metrics"
	"backtester/internal/strategy"
)

var (
	// ErrUnknownEvent is returned for an event kind the engine cannot route.
	ErrUnknownEvent = errors.New("unknown event kind")

	// ErrAlreadyRun is returned when Run is called twice on one Engine.
	ErrAlreadyRun = errors.New("engine already run")

	// ErrUnfilledOrders is returned when the number of fills applied does not
	// match the number of orders generated.
	ErrUnfilledOrders = errors.New("orders and fills out of step")
)

// Ledger is the portfolio state machine the engine drives.
type Ledger interface {
	OnMarketTick() error
	OnSignal(sig event.Signal) (event.Order, bool, error)
	OnFill(fill event.Fill) error
}

// Result counts what a run dispatched.
type Result struct {
	Ticks   int
	Signals int
	Orders  int
	Fills   []event.Fill
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// Engine is the single-threaded scheduler binding source, strategy, ledger
// and simulator to one queue.
type Engine struct {
	source    data.Source
	strategy  strategy.Strategy
	ledger    Ledger
	simulator execution.Simulator
	queue     *event.Queue
	log       *slog.Logger
	ran       bool
}

// New creates an Engine wired with the given components. q must be the
// queue the source and strategy publish to.
func New(
	source data.Source,
	strat strategy.Strategy,
	ledger Ledger,
	sim execution.Simulator,
	q *event.Queue,
	opts ...Option,
) *Engine {
	e := &Engine{
		source:    source,
		strategy:  strat,
		ledger:    ledger,
		simulator: sim,
		queue:     q,
		log:       slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run steps the source until it is exhausted, fully draining the queue after
// every tick. Any component error stops the run and is returned.
func (e *Engine) Run() (Result, error) {
	var res Result
	if e.ran {
		return res, ErrAlreadyRun
	}
	e.ran = true

	e.log.Info("backtest starting", "strategy", e.strategy.Name(), "symbols", e.source.Symbols())

	for !e.source.Exhausted() {
		e.source.AdvanceAndPublish()
		if err := e.drain(&res); err != nil {
			return res, fmt.Errorf("tick %d (%s): %w", res.Ticks, e.source.Now().Format("2006-01-02T15:04:05Z07:00"), err)
		}
	}

	if res.Orders != len(res.Fills) {
		return res, fmt.Errorf("%w: %d orders, %d fills", ErrUnfilledOrders, res.Orders, len(res.Fills))
	}

	e.log.Info("backtest finished",
		"ticks", res.Ticks,
		"signals", res.Signals,
		"orders", res.Orders,
		"fills", len(res.Fills),
	)
	return res, nil
}

// drain dispatches queued events in arrival order until the queue is empty.
func (e *Engine) drain(res *Result) error {
	for {
		ev, ok := e.queue.Next()
		if !ok {
			return nil
		}
		metrics.EventsTotal.WithLabelValues(ev.Kind().String()).Inc()

		switch ev := ev.(type) {
		case event.MarketTick:
			res.Ticks++
			if err := e.strategy.CalculateSignals(ev); err != nil {
				return fmt.Errorf("strategy %s: %w", e.strategy.Name(), err)
			}
			if err := e.ledger.OnMarketTick(); err != nil {
				return err
			}

		case event.Signal:
			res.Signals++
			order, ok, err := e.ledger.OnSignal(ev)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			res.Orders++
			metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Side)).Inc()
			e.log.Debug("order", "id", order.ID, "symbol", order.Symbol, "side", order.Side, "qty", order.Quantity)
			e.queue.Put(order)

		case event.Order:
			fill, err := e.simulator.Execute(ev)
			if err != nil {
				return fmt.Errorf("execute via %s: %w", e.simulator.Name(), err)
			}
			e.queue.Put(fill)

		case event.Fill:
			if err := e.ledger.OnFill(ev); err != nil {
				return err
			}
			res.Fills = append(res.Fills, ev)

		default:
			return fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
		}
	}
}
