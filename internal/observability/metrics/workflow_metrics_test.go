package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: ReasonDeadlineExceeded,
		},
		{
			name: "db_lock_timeout",
			err:  fmt.Errorf("lock agent: %w", &pgconn.PgError{Code: "55P03"}),
			want: ReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: ReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: ReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: ReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("expected serialization failure to be retryable")
	}
	if IsRetryable(gorm.ErrDuplicatedKey) {
		t.Fatalf("expected unique violation to be terminal")
	}
}

func TestIncAssignmentTransition(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := newWorkflowMetrics(registry, Config{ServiceName: "fieldops", Environment: "test"})
	if err != nil {
		t.Fatalf("new workflow metrics: %v", err)
	}

	m.IncAssignmentTransition("pending", "in_progress")
	m.IncAssignmentTransition("pending", "in_progress")
	m.IncAssignmentTransition("completed", "completed")

	got := testutil.ToFloat64(m.transitions.WithLabelValues("pending", "in_progress"))
	if got != 2 {
		t.Fatalf("expected 2 transitions, got %v", got)
	}
	if got := testutil.CollectAndCount(m.transitions); got != 20 {
		t.Fatalf("expected 20 pre-registered series, got %d", got)
	}
}

func TestWorkflowMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := newWorkflowMetrics(registry, Config{})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := newWorkflowMetrics(registry, Config{})
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	first.ObserveBulkAssign(BulkResultCommitted, 10*time.Millisecond)
	second.ObserveBulkAssign(BulkResultCommitted, 10*time.Millisecond)

	got := testutil.ToFloat64(first.bulkBatches.WithLabelValues(BulkResultCommitted))
	if got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}

func TestNilWorkflowMetricsIsSafe(t *testing.T) {
	var m *WorkflowMetrics
	m.IncAssignmentTransition("pending", "completed")
	m.IncApprovalReview("approve")
	m.ObserveBulkAssign(BulkResultFailed, time.Second)
	m.IncTxError("bulk_assign", errors.New("boom"))
	m.ObserveDBLockWait(LockResourceAgents, time.Millisecond)
}

func TestGinMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m, err := newHTTPMetrics(registry, Config{})
	if err != nil {
		t.Fatalf("new http metrics: %v", err)
	}

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/api/meters/:id", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/meters/%d", i), nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/api/meters/:id", "204"))
	if got != 3 {
		t.Fatalf("expected 3 requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.inflight); got != 0 {
		t.Fatalf("expected no in-flight requests, got %v", got)
	}
}
