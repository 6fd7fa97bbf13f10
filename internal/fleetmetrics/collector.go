package fleetmetrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// FleetMetrics holds point-in-time gauges describing the field fleet.
type FleetMetrics struct {
	registry        *prometheus.Registry
	pusher          Pusher
	assignments     *prometheus.GaugeVec
	agents          *prometheus.GaugeVec
	pendingApproval prometheus.Gauge
	agentLoad       prometheus.Gauge
	agentCapacity   prometheus.Gauge
}

func New(registry *prometheus.Registry, pusher Pusher, instance string) *FleetMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	constLabels := prometheus.Labels{}
	if instance != "" {
		constLabels["instance"] = instance
	}

	m := &FleetMetrics{
		registry: registry,
		pusher:   pusher,
		assignments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "fieldops_fleet_open_assignments",
			Help:        "Assignments not yet completed or cancelled, by status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		agents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "fieldops_fleet_agents",
			Help:        "Agents by status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		pendingApproval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "fieldops_fleet_pending_approvals",
			Help:        "Approval requests waiting for review.",
			ConstLabels: constLabels,
		}),
		agentLoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "fieldops_fleet_agent_load",
			Help:        "Sum of current_load over all agents.",
			ConstLabels: constLabels,
		}),
		agentCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "fieldops_fleet_agent_capacity",
			Help:        "Sum of max_load over all agents.",
			ConstLabels: constLabels,
		}),
	}
	registry.MustRegister(m.assignments, m.agents, m.pendingApproval, m.agentLoad, m.agentCapacity)
	return m
}

type statusCount struct {
	Status string
	Total  int64
}

type loadTotals struct {
	TotalLoad     int64
	TotalCapacity int64
}

// Refresh reloads every gauge from the database.
func (m *FleetMetrics) Refresh(ctx context.Context, db *gorm.DB) error {
	if m == nil || db == nil {
		return nil
	}

	var assignments []statusCount
	if err := db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS total
		FROM meter_assignments
		WHERE status IN ('pending', 'in_progress', 'overdue')
		GROUP BY status`,
	).Scan(&assignments).Error; err != nil {
		return fmt.Errorf("count assignments: %w", err)
	}
	m.assignments.Reset()
	for _, row := range assignments {
		m.assignments.WithLabelValues(row.Status).Set(float64(row.Total))
	}

	var agents []statusCount
	if err := db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS total FROM agents GROUP BY status`,
	).Scan(&agents).Error; err != nil {
		return fmt.Errorf("count agents: %w", err)
	}
	m.agents.Reset()
	for _, row := range agents {
		m.agents.WithLabelValues(row.Status).Set(float64(row.Total))
	}

	var pending int64
	if err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM meter_approval_requests WHERE status = 'pending'`,
	).Scan(&pending).Error; err != nil {
		return fmt.Errorf("count pending approvals: %w", err)
	}
	m.pendingApproval.Set(float64(pending))

	var totals loadTotals
	if err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(current_load), 0) AS total_load, COALESCE(SUM(max_load), 0) AS total_capacity FROM agents`,
	).Scan(&totals).Error; err != nil {
		return fmt.Errorf("sum agent load: %w", err)
	}
	m.agentLoad.Set(float64(totals.TotalLoad))
	m.agentCapacity.Set(float64(totals.TotalCapacity))

	return nil
}

func (m *FleetMetrics) Push(ctx context.Context) error {
	if m == nil || m.pusher == nil {
		return nil
	}
	return m.pusher.Push(ctx, m.registry)
}
