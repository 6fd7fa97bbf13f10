package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonDBLockTimeout        = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonUniqueViolation      = "unique_violation"
	ReasonUnknown              = "unknown"
)

const (
	BulkResultCommitted = "committed"
	BulkResultEmpty     = "empty"
	BulkResultFailed    = "failed"
	BulkResultLocked    = "locked"
)

const (
	LockResourceAgents      = "agents"
	LockResourceAssignment  = "assignment"
	LockResourceApproval    = "approval"
	LockResourceAgentLoad   = "agent_load"
	LockResourceMeterStatus = "meter_status"
)

var assignmentStatuses = []string{"pending", "in_progress", "completed", "cancelled", "overdue"}

// WorkflowMetrics captures assignment and approval workflow health.
type WorkflowMetrics struct {
	transitions      *prometheus.CounterVec
	reviews          *prometheus.CounterVec
	bulkBatches      *prometheus.CounterVec
	bulkDuration     prometheus.Observer
	txErrors         *prometheus.CounterVec
	dbLockWait       *prometheus.HistogramVec
	transitionCounts map[string]map[string]prometheus.Counter
	lockWaitObserver map[string]prometheus.Observer
}

func NewWorkflowMetrics(cfg Config) (*WorkflowMetrics, error) {
	return newWorkflowMetrics(prometheus.DefaultRegisterer, cfg)
}

func newWorkflowMetrics(registerer prometheus.Registerer, cfg Config) (*WorkflowMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := serviceLabels(cfg)

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fieldops_assignment_transitions_total",
		Help:        "Assignment status transitions.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})
	reviews := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fieldops_approval_reviews_total",
		Help:        "Approval reviews by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	bulkBatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fieldops_bulk_assign_batches_total",
		Help:        "Bulk assignment batches by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	bulkDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "fieldops_bulk_assign_duration_seconds",
		Help:        "Bulk assignment transaction latency.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	})
	txErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fieldops_workflow_tx_errors_total",
		Help:        "Workflow transaction failures by operation and low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"operation", "reason"})
	dbLockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "fieldops_db_lock_wait_seconds",
		Help:        "Row lock wait time for SELECT FOR UPDATE work.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"resource"})

	collectors := []prometheus.Collector{transitions, reviews, bulkBatches, bulkDuration, txErrors, dbLockWait}
	for i, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, err
			}
			collectors[i] = already.ExistingCollector
		}
	}
	transitions = collectors[0].(*prometheus.CounterVec)
	dbLockWait = collectors[5].(*prometheus.HistogramVec)

	transitionCounts := map[string]map[string]prometheus.Counter{}
	for _, from := range assignmentStatuses {
		toCounters := map[string]prometheus.Counter{}
		for _, to := range assignmentStatuses {
			if from == to {
				continue
			}
			toCounters[to] = transitions.WithLabelValues(from, to)
		}
		transitionCounts[from] = toCounters
	}

	lockWaitObserver := map[string]prometheus.Observer{}
	for _, resource := range []string{
		LockResourceAgents,
		LockResourceAssignment,
		LockResourceApproval,
		LockResourceAgentLoad,
		LockResourceMeterStatus,
	} {
		lockWaitObserver[resource] = dbLockWait.WithLabelValues(resource)
	}

	return &WorkflowMetrics{
		transitions:      transitions,
		reviews:          collectors[1].(*prometheus.CounterVec),
		bulkBatches:      collectors[2].(*prometheus.CounterVec),
		bulkDuration:     collectors[3].(prometheus.Histogram),
		txErrors:         collectors[4].(*prometheus.CounterVec),
		dbLockWait:       dbLockWait,
		transitionCounts: transitionCounts,
		lockWaitObserver: lockWaitObserver,
	}, nil
}

// IncAssignmentTransition counts a status change on an assignment.
func (m *WorkflowMetrics) IncAssignmentTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	if toCounters, ok := m.transitionCounts[from]; ok {
		if counter, ok := toCounters[to]; ok {
			counter.Inc()
			return
		}
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *WorkflowMetrics) IncApprovalReview(outcome string) {
	if m == nil {
		return
	}
	m.reviews.WithLabelValues(outcome).Inc()
}

// ObserveBulkAssign records the result and latency of one bulk batch.
func (m *WorkflowMetrics) ObserveBulkAssign(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.bulkBatches.WithLabelValues(result).Inc()
	if duration > 0 {
		m.bulkDuration.Observe(duration.Seconds())
	}
}

// IncTxError classifies and counts a failed workflow transaction.
func (m *WorkflowMetrics) IncTxError(operation string, err error) {
	if m == nil || err == nil {
		return
	}
	m.txErrors.WithLabelValues(operation, ClassifyReason(err)).Inc()
}

// ObserveDBLockWait records lock wait time for SELECT FOR UPDATE work.
func (m *WorkflowMetrics) ObserveDBLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	if observer, ok := m.lockWaitObserver[resource]; ok {
		observer.Observe(duration.Seconds())
		return
	}
	m.dbLockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

// ClassifyReason maps workflow errors to low-cardinality reasons.
func ClassifyReason(err error) string {
	if err == nil {
		return ReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return ReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return ReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return ReasonUniqueViolation
	}
	return ReasonUnknown
}

// IsRetryable reports whether a failed transaction may succeed on retry.
func IsRetryable(err error) bool {
	switch ClassifyReason(err) {
	case ReasonDBLockTimeout, ReasonSerializationFailure:
		return true
	default:
		return false
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
