package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Engine metrics, served at /metrics (Prometheus text exposition format)
// by the HTTP handler started in cmd.
var (
	mtxCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_cycles_total",
			Help: "Completed decision cycles",
		},
		[]string{"loop"}, // scan | stoploss
	)

	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_orders_total",
			Help: "Orders submitted and accepted",
		},
		[]string{"side"},
	)

	mtxRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_order_rejections_total",
			Help: "Orders the broker rejected",
		},
		[]string{"side"},
	)

	mtxCandidates = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_buy_candidates",
			Help: "Buy candidates in the latest scan cycle",
		},
	)

	mtxWatchlist = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_watch_only_symbols",
			Help: "Watch-only symbols in the latest scan cycle",
		},
	)

	mtxHeldOrPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_held_or_pending_symbols",
			Help: "Symbols held or with a pending buy after the latest cycle",
		},
	)

	mtxStopsTriggered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_stop_loss_sells_total",
			Help: "Stop-loss sells triggered",
		},
	)

	mtxBrokerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_broker_call_failures_total",
			Help: "Broker/data calls that returned no data for a cycle",
		},
		[]string{"call"},
	)
)

// RegisterMetrics registers the engine's collectors with reg. Call once at
// startup.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		mtxCycles,
		mtxOrders,
		mtxRejections,
		mtxCandidates,
		mtxWatchlist,
		mtxHeldOrPending,
		mtxStopsTriggered,
		mtxBrokerFailures,
	)
}
