package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashback_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cashback_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	LedgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashback_ledger_operations_total",
			Help: "Ledger mutations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	LedgerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cashback_ledger_operation_duration_seconds",
			Help:    "Ledger mutation duration in seconds, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	LedgerRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashback_ledger_retries_total",
			Help: "Ledger attempts retried after a transient failure",
		},
		[]string{"operation"},
	)

	ReimbursementFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cashback_reimbursement_failures_total",
			Help: "Debits whose reimbursement obligation could not be recorded",
		},
	)

	MovementAppendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cashback_movement_append_failures_total",
			Help: "Balance mutations committed without a movement record",
		},
	)

	ReconcileDrift = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cashback_reconcile_drift_total",
			Help: "Balance records repaired by reconciliation",
		},
	)

	WorkerPoolQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cashback_worker_pool_queue_size",
			Help: "Events waiting in the intake queue",
		},
	)

	WorkerPoolActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cashback_worker_pool_active_workers",
			Help: "Intake workers currently running",
		},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cashback_cache_hits_total",
			Help: "Cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cashback_cache_misses_total",
			Help: "Cache misses",
		},
	)
)

func RecordHttpRequest(method, endpoint, status string, duration time.Duration) {
	HttpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HttpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func RecordLedgerOperation(operation, outcome string, duration time.Duration) {
	LedgerOperationsTotal.WithLabelValues(operation, outcome).Inc()
	LedgerOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func RecordLedgerRetry(operation string) {
	LedgerRetries.WithLabelValues(operation).Inc()
}

func RecordReimbursementFailure() {
	ReimbursementFailures.Inc()
}

func RecordMovementAppendFailure() {
	MovementAppendFailures.Inc()
}

func RecordReconcileDrift() {
	ReconcileDrift.Inc()
}

func UpdateWorkerPoolStats(queueSize, activeWorkers int) {
	WorkerPoolQueueSize.Set(float64(queueSize))
	WorkerPoolActiveWorkers.Set(float64(activeWorkers))
}

func RecordCacheHit() {
	CacheHits.Inc()
}

func RecordCacheMiss() {
	CacheMisses.Inc()
}
