// Package metrics provides Prometheus metrics for the submission backend.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contest"

// Storage metrics
var (
	// StorageOpsTotal counts storage operations by backend, operation and result.
	StorageOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_ops_total",
			Help:      "Total number of storage operations by backend, operation and result",
		},
		[]string{"backend", "op", "result"},
	)

	// StorageOpDuration measures storage operation latency.
	StorageOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_op_duration_seconds",
			Help:      "Storage operation duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"backend", "op"},
	)
)

// Selection metrics
var (
	// SelectionAttemptsTotal counts backend probes during selection.
	SelectionAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_selection_attempts_total",
			Help:      "Total number of storage backend probes by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	// ActiveBackend is 1 for the backend currently serving traffic.
	ActiveBackend = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_active_backend",
			Help:      "1 for the storage backend currently serving submissions",
		},
		[]string{"backend"},
	)
)

// ObserveStorageOp records the outcome and duration of one storage call.
func ObserveStorageOp(backend, op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	StorageOpsTotal.WithLabelValues(backend, op, result).Inc()
	StorageOpDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

// SetActiveBackend marks backend as active and every other known backend
// as inactive.
func SetActiveBackend(backend string, known []string) {
	for _, k := range known {
		ActiveBackend.WithLabelValues(k).Set(0)
	}
	ActiveBackend.WithLabelValues(backend).Set(1)
}
