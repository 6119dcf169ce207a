// Package monitor exposes Prometheus metrics updated by the trading core:
//
//	scalp_orders_total{result}          – placements by outcome (executed|rejected|exhausted)
//	scalp_order_retries_total{reason}   – individual retried attempts (transient|transport|unknown)
//	scalp_slippage_rejections_total     – fills unwound because slippage exceeded the budget
//	scalp_closes_total{result}          – close protocol outcomes
//	scalp_handoff_merged_total          – trades merged from the cross-process handoff
//	scalp_active_trades                 – current ledger active set size
//	scalp_api_requests_total{method,status} – control API traffic
//
// Collectors are registered in init and served at /metrics on the control
// service in Prometheus text exposition format.
package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scalp_orders_total",
			Help: "Order placements by outcome",
		},
		[]string{"result"},
	)

	OrderRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scalp_order_retries_total",
			Help: "Retried order attempts by reason",
		},
		[]string{"reason"},
	)

	SlippageRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scalp_slippage_rejections_total",
			Help: "Fills unwound because slippage exceeded the budget",
		},
	)

	Closes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scalp_closes_total",
			Help: "Close protocol outcomes",
		},
		[]string{"result"},
	)

	HandoffMerged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scalp_handoff_merged_total",
			Help: "Trades merged into the ledger from the handoff file",
		},
	)

	ActiveTrades = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scalp_active_trades",
			Help: "Trades currently tracked as active",
		},
	)

	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scalp_api_requests_total",
			Help: "Control API requests by method and status",
		},
		[]string{"method", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		Orders,
		OrderRetries,
		SlippageRejections,
		Closes,
		HandoffMerged,
		ActiveTrades,
		APIRequests,
	)
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
