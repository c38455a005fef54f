// Package strategy defines the Strategy interface consumed by the scheduler
// and a Registry of named strategy factories.
package strategy

import (
	"errors"
	"fmt"
	"sort"

	"backtester/internal/data"
	"backtester/internal/event"
	"backtester/internal/portfolio"
)

// ErrUnknownStrategy is returned when a name is not registered.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// CalculateSignals is called once per MarketTick. It may put any bounded
	// number of Signal events on the queue it was built with.
	CalculateSignals(tick event.MarketTick) error
}

// Env is everything a strategy may read or write during a run.
type Env struct {
	Data      data.View
	Portfolio portfolio.View
	Queue     *event.Queue
}

// Params holds numeric strategy parameters from configuration.
type Params map[string]float64

// Get returns the named parameter or def when it is unset.
func (p Params) Get(name string, def float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

// Factory builds a strategy bound to env.
type Factory func(env Env, params Params) (Strategy, error)

// Registry holds a named collection of strategy factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New builds the named strategy.
func (r *Registry) New(name string, env Env, params Params) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownStrategy, name, r.List())
	}
	return f(env, params)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
