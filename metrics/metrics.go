package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regimebot_signals_total",
			Help: "Signals emitted per symbol and kind.",
		},
		[]string{"symbol", "kind"},
	)

	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regimebot_orders_submitted_total",
			Help: "Orders sent to the exchange per symbol and side.",
		},
		[]string{"symbol", "side"},
	)

	TickErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regimebot_tick_errors_total",
			Help: "Ticks skipped due to a recoverable error, per symbol.",
		},
		[]string{"symbol"},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "regimebot_positions_open",
			Help: "Current number of open positions.",
		},
	)

	ExposureGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "regimebot_exposure_usd",
			Help: "Sum of dollar amounts across open positions.",
		},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "regimebot_equity",
			Help: "Portfolio value reported by the exchange client.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsTotal,
		OrdersSubmitted,
		TickErrors,
		PositionsOpen,
		ExposureGauge,
		EquityGauge,
	)
}

// Serve exposes /metrics on addr and returns the server so the caller can
// shut it down.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
