package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector exported on /metrics.
var Registry = prometheus.NewRegistry()

var (
	TransactionsCreated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_transactions_created_total",
			Help: "Transactions created by the engine",
		},
		[]string{"type", "status"},
	)

	TransactionsResolved = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_transactions_resolved_total",
			Help: "Pending transactions approved or rejected",
		},
		[]string{"type", "decision"},
	)

	EngineErrors = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_engine_errors_total",
			Help: "Engine operations that failed, by error code",
		},
		[]string{"operation", "code"},
	)

	FraudFlags = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_fraud_flags_total",
			Help: "Fraud flags created, by rule",
		},
		[]string{"rule"},
	)

	OperationDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wallet_engine_operation_duration_seconds",
			Help:    "Duration of engine operations including the database transaction",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2},
		},
		[]string{"operation"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
