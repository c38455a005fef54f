// Package metrics exposes Prometheus counters for the dispatch loop.
package metrics

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "backtester_events_total", Help: "Events dispatched by kind"},
		[]string{"kind"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "backtester_orders_total", Help: "Orders generated"},
		[]string{"symbol", "side"},
	)
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "backtester_runs_total", Help: "Completed runs by outcome"},
		[]string{"strategy", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(EventsTotal, OrdersTotal, RunsTotal)
}

// Serve exposes /metrics on addr in the background. Listen failures are
// logged, not returned.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	return srv
}
