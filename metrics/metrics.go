// Package metrics exposes Prometheus instrumentation for sharing operations.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/shamir-custody/interfaces"
)

const (
	// Namespace is the Prometheus namespace for all metrics.
	Namespace = "shamir"

	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelErrorType = "error_type"
	LabelBackend   = "backend"

	StatusSuccess = "success"
	StatusError   = "error"

	OpSplit       = "split"
	OpReconstruct = "reconstruct"
	OpVerify      = "verify"
	OpEncode      = "encode"
	OpDecode      = "decode"
	OpStore       = "store"
	OpFetch       = "fetch"
)

// Registry collects every metric in this package. It is separate from the
// default registry so tests and embedders see only these series.
var Registry = prometheus.NewRegistry()

var (
	// OperationsTotal counts operations by name and outcome.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of sharing operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// OperationDuration tracks how long operations take in seconds.
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of sharing operations in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{LabelOperation},
	)

	// ErrorsTotal counts failures by operation and error class.
	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation and error type",
		},
		[]string{LabelOperation, LabelErrorType},
	)

	// StorageOperationsTotal counts backend calls.
	StorageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Total number of storage backend calls by backend, operation and status",
		},
		[]string{LabelBackend, LabelOperation, LabelStatus},
	)
)

func init() {
	Registry.MustRegister(OperationsTotal, OperationDuration, ErrorsTotal, StorageOperationsTotal)
}

// RecordOperation records the outcome and duration of an operation.
func RecordOperation(operation string, start time.Time, err error) {
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		OperationsTotal.WithLabelValues(operation, StatusError).Inc()
		ErrorsTotal.WithLabelValues(operation, ErrorType(err)).Inc()
		return
	}
	OperationsTotal.WithLabelValues(operation, StatusSuccess).Inc()
}

// RecordStorage records a storage backend call.
func RecordStorage(backend, operation string, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	StorageOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}

// ErrorType maps an error onto a low-cardinality label value.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, interfaces.ErrValidation):
		return "validation"
	case errors.Is(err, interfaces.ErrFormat):
		return "format"
	case errors.Is(err, interfaces.ErrIntegrity):
		return "integrity"
	case errors.Is(err, interfaces.ErrVerification):
		return "verification"
	case errors.Is(err, interfaces.ErrReconstruction):
		return "reconstruction"
	default:
		return "other"
	}
}
