package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "objectregistry"

	metricLabelOperation = "operation"
	metricLabelResult    = "result"
	metricLabelBackend   = "backend"
	metricLabelMode      = "mode"
)

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics is the structure that holds all prometheus metrics
var (
	// RegistryOperationCounter counts registry calls per operation and result
	RegistryOperationCounter = newCounterVec(
		"registry_operation_count",
		"Count of registry operations",
		metricLabelOperation, metricLabelResult,
	)
	// RegistryOperationDuration observes the duration of registry calls
	RegistryOperationDuration = newSummaryVec(
		"registry_operation_duration_seconds",
		"Seconds spent in a registry operation including lock waits and transfers",
		metricLabelOperation, metricLabelResult,
	)
	// BackendTransferBytes counts the bytes moved by push and pull
	BackendTransferBytes = newCounterVec(
		"backend_transfer_bytes_total",
		"Number of bytes transferred to or from a backend",
		metricLabelBackend, metricLabelOperation,
	)
	// BackendTransferFailedCounter counts failed storage calls
	BackendTransferFailedCounter = newCounterVec(
		"backend_transfer_failed_count",
		"Number of storage calls that failed with an I/O error",
		metricLabelBackend, metricLabelOperation,
	)
	// LockAcquireAttempts counts single acquisition attempts, including retries
	LockAcquireAttempts = newCounterVec(
		"lock_acquire_attempt_count",
		"Number of lock acquisition attempts",
		metricLabelMode,
	)
	// LockAcquiredCounter counts successful acquisitions
	LockAcquiredCounter = newCounterVec(
		"lock_acquired_count",
		"Number of locks acquired",
		metricLabelMode,
	)
	// LockTimeoutCounter counts acquisitions that gave up after the timeout
	LockTimeoutCounter = newCounterVec(
		"lock_timeout_count",
		"Number of lock acquisitions that timed out",
		metricLabelMode,
	)
	// LockConflictCounter counts shared/exclusive mode conflicts
	LockConflictCounter = newCounterVec(
		"lock_conflict_count",
		"Number of lock acquisitions rejected because of a mode conflict",
		metricLabelMode,
	)
	// LockGenerationMismatchCounter counts lost compare-and-swap races
	LockGenerationMismatchCounter = newCounterVec(
		"lock_generation_mismatch_count",
		"Number of conditional lock record writes rejected by the store",
	)
)

func newSummaryVec(name, help string, labels ...string) *prometheus.SummaryVec {
	vec := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	prometheus.MustRegister(vec)
	return vec
}

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	prometheus.MustRegister(vec)
	return vec
}

// Result maps an error to the result label value
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
