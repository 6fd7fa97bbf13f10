package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	obscontext "github.com/smallbiznis/fieldops/internal/observability/context"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestOperationAndTableFromSQL(t *testing.T) {
	cases := []struct {
		sql       string
		operation string
		table     string
	}{
		{sql: "SELECT id FROM meters WHERE id = ?", operation: "SELECT", table: "meters"},
		{sql: "INSERT INTO meter_assignments (id) VALUES (?)", operation: "INSERT", table: "meter_assignments"},
		{sql: "UPDATE agents SET current_load = current_load + 1", operation: "UPDATE", table: "agents"},
		{sql: "WITH x AS (SELECT 1) DELETE FROM audit_logs", operation: "SELECT", table: "audit_logs"},
		{sql: "", operation: "UNKNOWN", table: ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.operation, operationFromSQL(tc.sql), tc.sql)
		assert.Equal(t, tc.table, tableFromSQL(tc.sql), tc.sql)
	}
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-42")
	ctx = obscontext.WithActor(ctx, "agent", "user-1")

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-42", fields["request_id"])
		assert.Equal(t, "agent", fields["actor_role"])
		assert.Equal(t, "user-1", fields["actor_id"])
	}
}

func TestLocksRows(t *testing.T) {
	assert.True(t, locksRows("SELECT id FROM meters WHERE id = ? FOR UPDATE"))
	assert.False(t, locksRows("SELECT id FROM meters WHERE id = ?"))
}

func TestWithContextSkipsEmptyFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	WithContext(context.Background(), zap.New(core)).Info("plain")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Empty(t, entries[0].ContextMap())
	}
}

func TestParseLevel(t *testing.T) {
	level, err := parseLevel("", true)
	assert.NoError(t, err)
	assert.Equal(t, zap.DebugLevel, level.Level())

	level, err = parseLevel("warn", true)
	assert.NoError(t, err)
	assert.Equal(t, zap.WarnLevel, level.Level())

	_, err = parseLevel("loud", false)
	assert.Error(t, err)
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/health", http.StatusOK))
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/api/v1/meters", http.StatusInternalServerError))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/api/v1/assignments", http.StatusConflict))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/api/v1/meters", http.StatusOK))
}

func TestGinMiddlewareRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, obscontext.RequestIDFromContext(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLength+1))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Len(t, rec.Header().Get(RequestIDHeader), 26)
}
