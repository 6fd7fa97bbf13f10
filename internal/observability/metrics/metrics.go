package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	assignmentsCreated metric.Int64Counter
	assignmentsSkipped metric.Int64Counter
	assignmentUpdates  metric.Int64Counter
	approvalsSubmitted metric.Int64Counter
	approvalsReviewed  metric.Int64Counter
	readingsSubmitted  metric.Int64Counter
	rateLimitAllowed   metric.Int64Counter
	rateLimitDenied    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "fieldops"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		target *metric.Int64Counter
		name   string
	}{
		{&m.assignmentsCreated, "fieldops_assignments_created_total"},
		{&m.assignmentsSkipped, "fieldops_assignments_skipped_total"},
		{&m.assignmentUpdates, "fieldops_assignment_updates_total"},
		{&m.approvalsSubmitted, "fieldops_approvals_submitted_total"},
		{&m.approvalsReviewed, "fieldops_approvals_reviewed_total"},
		{&m.readingsSubmitted, "fieldops_readings_submitted_total"},
		{&m.rateLimitAllowed, "fieldops_rate_limit_allowed_total"},
		{&m.rateLimitDenied, "fieldops_rate_limit_denied_total"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}

	return m, nil
}

// RecordAssignmentsCreated counts assignments opened by single or bulk creation.
func (m *Metrics) RecordAssignmentsCreated(ctx context.Context, mode string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("mode", strings.TrimSpace(mode)))
	m.assignmentsCreated.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordAssignmentsSkipped counts meters skipped by bulk assignment.
func (m *Metrics) RecordAssignmentsSkipped(ctx context.Context, reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.assignmentsSkipped.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordAssignmentUpdate counts assignment updates by resulting status.
func (m *Metrics) RecordAssignmentUpdate(ctx context.Context, status string, released bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("status", strings.TrimSpace(status)),
		attribute.Bool("load_released", released),
	)
	m.assignmentUpdates.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordApprovalSubmitted counts new approval requests.
func (m *Metrics) RecordApprovalSubmitted(ctx context.Context) {
	if m == nil {
		return
	}
	m.approvalsSubmitted.Add(ctx, 1)
}

// RecordApprovalReviewed counts approval decisions.
func (m *Metrics) RecordApprovalReviewed(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.approvalsReviewed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReadingSubmitted counts captured meter readings.
func (m *Metrics) RecordReadingSubmitted(ctx context.Context, meterType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("meter_type", strings.TrimSpace(meterType)))
	m.readingsSubmitted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, role, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("role", strings.TrimSpace(role)),
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
	)
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, role, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("role", strings.TrimSpace(role)),
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"role":          {},
	"endpoint":      {},
	"status":        {},
	"status_code":   {},
	"mode":          {},
	"reason":        {},
	"outcome":       {},
	"meter_type":    {},
	"load_released": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
