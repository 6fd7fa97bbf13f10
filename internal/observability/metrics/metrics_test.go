package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("status", "completed"),
		attribute.String("agent_id", "0b6f3c1e"),
		attribute.String("meter_type", "water"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "status" && attrs[1].Key != "status" {
		t.Fatalf("expected status to be retained")
	}
	if attrs[0].Key != "meter_type" && attrs[1].Key != "meter_type" {
		t.Fatalf("expected meter_type to be retained")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordAssignmentsCreated(context.Background(), "bulk", 3)
	m.RecordRateLimitDenied(context.Background(), "agent", "/api/readings", "exceeded")
}
