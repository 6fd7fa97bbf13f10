package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	agentdomain "github.com/smallbiznis/fieldops/internal/agent/domain"
	assignmentdomain "github.com/smallbiznis/fieldops/internal/assignment/domain"
	auditdomain "github.com/smallbiznis/fieldops/internal/audit/domain"
	"github.com/smallbiznis/fieldops/internal/clock"
	"github.com/smallbiznis/fieldops/internal/config"
	meterdomain "github.com/smallbiznis/fieldops/internal/meter/domain"
	"github.com/smallbiznis/fieldops/internal/observability/metrics"
	"github.com/smallbiznis/fieldops/pkg/db"
	"github.com/smallbiznis/fieldops/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const systemActor = "system"

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Policy    *config.PolicyHolder `optional:"true"`
	Repo      assignmentdomain.Repository
	MeterRepo meterdomain.Repository
	AgentRepo agentdomain.Repository
	AuditSvc  auditdomain.Service      `optional:"true"`
	Metrics   *metrics.Metrics         `optional:"true"`
	Workflow  *metrics.WorkflowMetrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	policy    *config.PolicyHolder
	repo      assignmentdomain.Repository
	meterRepo meterdomain.Repository
	agentRepo agentdomain.Repository
	auditSvc  auditdomain.Service
	metrics   *metrics.Metrics
	workflow  *metrics.WorkflowMetrics
}

func New(p Params) assignmentdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("assignment.service"),
		clock:     c,
		policy:    p.Policy,
		repo:      p.Repo,
		meterRepo: p.MeterRepo,
		agentRepo: p.AgentRepo,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
		workflow:  p.Workflow,
	}
}

func (s *Service) Create(ctx context.Context, req assignmentdomain.CreateRequest) (*assignmentdomain.Assignment, error) {
	meterID, err := parseRef(req.MeterID, assignmentdomain.ErrInvalidMeterID)
	if err != nil {
		return nil, err
	}
	agentID, err := parseRef(req.AgentID, assignmentdomain.ErrInvalidAgentID)
	if err != nil {
		return nil, err
	}
	if err := validateEstimatedTime(req.EstimatedTime); err != nil {
		return nil, err
	}

	policy := s.policy.Get()
	now := s.clock.Now().UTC()
	assignedBy := actorOrSystem(req.AssignedBy)

	var created *assignmentdomain.Assignment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockStart := time.Now()
		meter, err := s.meterRepo.FindByIDForUpdate(ctx, tx, meterID)
		s.workflow.ObserveDBLockWait(metrics.LockResourceMeterStatus, time.Since(lockStart))
		if err != nil {
			return err
		}
		if meter == nil {
			return assignmentdomain.ErrMeterNotFound
		}

		lockStart = time.Now()
		agent, err := s.agentRepo.FindByIDForUpdate(ctx, tx, agentID)
		s.workflow.ObserveDBLockWait(metrics.LockResourceAgentLoad, time.Since(lockStart))
		if err != nil {
			return err
		}
		if agent == nil {
			return assignmentdomain.ErrAgentNotFound
		}

		active, err := s.meterRepo.HasActiveAssignment(ctx, tx, meterID)
		if err != nil {
			return err
		}
		if active {
			return assignmentdomain.ErrActiveAssignment
		}

		a := newAssignment(meter, agent.ID, req.EstimatedTime, assignedBy, now)
		if err := s.insert(ctx, tx, a); err != nil {
			return err
		}

		if policy.EnforceCapacity() {
			ok, err := s.agentRepo.IncrementLoadWithinCapacity(ctx, tx, agent.ID, now)
			if err != nil {
				return fmt.Errorf("increment agent load: %w", err)
			}
			if !ok {
				return assignmentdomain.ErrAgentAtCapacity
			}
		} else if err := s.agentRepo.IncrementLoad(ctx, tx, agent.ID, now); err != nil {
			return fmt.Errorf("increment agent load: %w", err)
		}

		created = a
		return nil
	})
	if err != nil {
		s.recordTxError("assignment.create", err)
		return nil, err
	}

	s.log.Info("assignment created",
		zap.String("assignment_id", created.ID.String()),
		zap.String("meter_id", created.MeterID.String()),
		zap.String("agent_id", created.AgentID.String()),
	)
	s.metrics.RecordAssignmentsCreated(ctx, "single", 1)
	s.audit(ctx, "assignment.create", created, map[string]any{
		"meter_id":       created.MeterID.String(),
		"agent_id":       created.AgentID.String(),
		"estimated_time": created.EstimatedTime,
	})
	return created, nil
}

// BulkAssign opens assignments for every listed meter in one transaction.
// Without an explicit agent, meters are spread round-robin over the agents
// eligible at the start of the batch.
func (s *Service) BulkAssign(ctx context.Context, req assignmentdomain.BulkAssignRequest) (*assignmentdomain.BulkResult, error) {
	started := time.Now()
	if len(req.MeterIDs) == 0 {
		s.workflow.ObserveBulkAssign(metrics.BulkResultEmpty, time.Since(started))
		return nil, assignmentdomain.ErrEmptyMeterIDs
	}

	result := &assignmentdomain.BulkResult{
		Assignments: []assignmentdomain.Assignment{},
		Skipped:     []assignmentdomain.Skipped{},
	}

	meterIDs := make([]uuid.UUID, 0, len(req.MeterIDs))
	seen := make(map[uuid.UUID]struct{}, len(req.MeterIDs))
	for _, raw := range req.MeterIDs {
		id, err := parseRef(raw, assignmentdomain.ErrInvalidMeterID)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			result.Skipped = append(result.Skipped, assignmentdomain.Skipped{
				MeterID: id,
				Reason:  assignmentdomain.SkipDuplicateInRequest,
			})
			continue
		}
		seen[id] = struct{}{}
		meterIDs = append(meterIDs, id)
	}

	var explicitAgent *uuid.UUID
	if strings.TrimSpace(req.AgentID) != "" {
		id, err := parseRef(req.AgentID, assignmentdomain.ErrInvalidAgentID)
		if err != nil {
			return nil, err
		}
		explicitAgent = &id
	}
	if err := validateEstimatedTime(req.EstimatedTime); err != nil {
		return nil, err
	}

	policy := s.policy.Get()
	enforce := policy.EnforceCapacity()
	now := s.clock.Now().UTC()
	assignedBy := actorOrSystem(req.AssignedBy)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockStart := time.Now()
		meters, err := s.meterRepo.FindByIDsForUpdate(ctx, tx, meterIDs)
		s.workflow.ObserveDBLockWait(metrics.LockResourceMeterStatus, time.Since(lockStart))
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*meterdomain.Meter, len(meters))
		for i := range meters {
			byID[meters[i].ID] = &meters[i]
		}
		for _, id := range meterIDs {
			if _, ok := byID[id]; !ok {
				return fmt.Errorf("%w: %s", assignmentdomain.ErrMeterNotFound, id)
			}
		}

		lockStart = time.Now()
		targets, err := s.bulkTargets(ctx, tx, explicitAgent)
		s.workflow.ObserveDBLockWait(metrics.LockResourceAgents, time.Since(lockStart))
		if err != nil {
			return err
		}

		active, err := s.repo.ActiveMeterIDs(ctx, tx, meterIDs)
		if err != nil {
			return err
		}

		rotation := newRoundRobin(targets, enforce)
		for _, meterID := range meterIDs {
			if _, busy := active[meterID]; busy {
				result.Skipped = append(result.Skipped, assignmentdomain.Skipped{
					MeterID: meterID,
					Reason:  assignmentdomain.SkipActiveAssignment,
				})
				continue
			}

			agent, ok := rotation.next(result.CreatedCount)
			if !ok {
				result.Skipped = append(result.Skipped, assignmentdomain.Skipped{
					MeterID: meterID,
					Reason:  assignmentdomain.SkipNoCapacity,
				})
				continue
			}

			a := newAssignment(byID[meterID], agent.ID, req.EstimatedTime, assignedBy, now)
			if err := s.insert(ctx, tx, a); err != nil {
				return err
			}
			if err := s.agentRepo.IncrementLoad(ctx, tx, agent.ID, now); err != nil {
				return fmt.Errorf("increment agent load: %w", err)
			}
			rotation.charge(agent.ID)

			result.Assignments = append(result.Assignments, *a)
			result.CreatedCount++
		}
		return nil
	})
	if err != nil {
		s.workflow.ObserveBulkAssign(metrics.BulkResultFailed, time.Since(started))
		s.recordTxError("assignment.bulk_assign", err)
		return nil, err
	}
	s.workflow.ObserveBulkAssign(metrics.BulkResultCommitted, time.Since(started))

	s.log.Info("bulk assignment committed",
		zap.Int("requested", len(req.MeterIDs)),
		zap.Int("created", result.CreatedCount),
		zap.Int("skipped", len(result.Skipped)),
		zap.String("capacity_mode", policy.Assignment.CapacityMode),
	)

	s.metrics.RecordAssignmentsCreated(ctx, "bulk", result.CreatedCount)
	skippedByReason := map[string]int{}
	for _, skipped := range result.Skipped {
		skippedByReason[skipped.Reason]++
	}
	for reason, count := range skippedByReason {
		s.metrics.RecordAssignmentsSkipped(ctx, reason, count)
	}

	if s.auditSvc != nil {
		_ = s.auditSvc.AuditLog(ctx, "", nil, "assignment.bulk_assign", "assignment", nil, map[string]any{
			"requested":     len(req.MeterIDs),
			"created_count": result.CreatedCount,
			"skipped":       skippedByReason,
		})
	}
	return result, nil
}

func (s *Service) bulkTargets(ctx context.Context, tx *gorm.DB, explicit *uuid.UUID) ([]agentdomain.Agent, error) {
	if explicit != nil {
		agent, err := s.agentRepo.FindByIDForUpdate(ctx, tx, *explicit)
		if err != nil {
			return nil, err
		}
		if agent == nil {
			return nil, assignmentdomain.ErrAgentNotFound
		}
		return []agentdomain.Agent{*agent}, nil
	}

	eligible, err := s.agentRepo.ListEligible(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, assignmentdomain.ErrNoEligibleAgents
	}
	return eligible, nil
}

func (s *Service) Update(ctx context.Context, req assignmentdomain.UpdateRequest) (*assignmentdomain.Assignment, error) {
	id, err := assignmentdomain.ParseID(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, err
	}

	p := patch{estimatedTime: req.EstimatedTime, notes: req.CompletionNotes}
	if req.Status != nil {
		status, err := parseStatus(*req.Status)
		if err != nil {
			return nil, err
		}
		p.status = &status
	}
	if err := validateEstimatedTime(req.EstimatedTime); err != nil {
		return nil, err
	}

	return s.apply(ctx, id, nil, p, "assignment.update")
}

// UpdateOwnStatus lets an agent move one of its own assignments. Assignments
// owned by other agents are reported as not found.
func (s *Service) UpdateOwnStatus(ctx context.Context, agentID uuid.UUID, req assignmentdomain.OwnStatusRequest) (*assignmentdomain.Assignment, error) {
	id, err := assignmentdomain.ParseID(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, err
	}
	if agentID == uuid.Nil {
		return nil, assignmentdomain.ErrInvalidAgentID
	}
	status, err := parseStatus(req.Status)
	if err != nil {
		return nil, err
	}

	return s.apply(ctx, id, &agentID, patch{status: &status, notes: req.CompletionNotes}, "assignment.status_update")
}

type patch struct {
	status        *assignmentdomain.Status
	estimatedTime *int
	notes         *string
}

func (s *Service) apply(ctx context.Context, id uuid.UUID, owner *uuid.UUID, p patch, action string) (*assignmentdomain.Assignment, error) {
	policy := s.policy.Get()
	now := s.clock.Now().UTC()

	var (
		updated  *assignmentdomain.Assignment
		from     assignmentdomain.Status
		changed  bool
		released bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockStart := time.Now()
		a, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		s.workflow.ObserveDBLockWait(metrics.LockResourceAssignment, time.Since(lockStart))
		if err != nil {
			return err
		}
		if a == nil {
			return assignmentdomain.ErrNotFound
		}
		if owner != nil && a.AgentID != *owner {
			return assignmentdomain.ErrNotFound
		}

		from = a.Status
		next := a.Status
		if p.status != nil {
			next = *p.status
		}
		if !assignmentdomain.CanTransition(a.Status, next) {
			return assignmentdomain.ErrInvalidTransition
		}
		if next == a.Status && p.estimatedTime == nil && p.notes == nil {
			updated = a
			return nil
		}

		if p.estimatedTime != nil {
			a.EstimatedTime = *p.estimatedTime
		}
		if p.notes != nil {
			notes := strings.TrimSpace(*p.notes)
			a.CompletionNotes = &notes
		}
		a.UpdatedAt = now

		if next != a.Status && next.Terminal() {
			a.Status = next
			a.CompletedAt = &now
			closed, err := s.repo.Close(ctx, tx, a)
			if err != nil {
				return fmt.Errorf("close assignment: %w", err)
			}
			if !closed {
				current, err := s.repo.FindByID(ctx, tx, id)
				if err != nil {
					return err
				}
				updated = current
				return nil
			}
			if releasesLoad(next, policy) {
				if err := s.agentRepo.ReleaseLoad(ctx, tx, a.AgentID, now); err != nil {
					return fmt.Errorf("release agent load: %w", err)
				}
				released = true
			}
			updated, changed = a, true
			return nil
		}

		a.Status = next
		if err := s.repo.Update(ctx, tx, a); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return assignmentdomain.ErrActiveAssignment
			}
			return fmt.Errorf("update assignment: %w", err)
		}
		updated, changed = a, true
		return nil
	})
	if err != nil {
		s.recordTxError(action, err)
		return nil, err
	}

	if !changed {
		return updated, nil
	}

	if updated.Status != from {
		s.workflow.IncAssignmentTransition(string(from), string(updated.Status))
		s.log.Info("assignment status changed",
			zap.String("assignment_id", updated.ID.String()),
			zap.String("from", string(from)),
			zap.String("to", string(updated.Status)),
			zap.Bool("load_released", released),
		)
	}
	s.metrics.RecordAssignmentUpdate(ctx, string(updated.Status), released)
	s.audit(ctx, action, updated, map[string]any{
		"from":          string(from),
		"to":            string(updated.Status),
		"load_released": released,
	})
	return updated, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*assignmentdomain.Assignment, error) {
	assignmentID, err := assignmentdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindByID(ctx, s.db, assignmentID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, assignmentdomain.ErrNotFound
	}
	return item, nil
}

// List pages through assignments, newest first. An agent or meter filter
// that names a missing row is reported as not found rather than an empty page.
func (s *Service) List(ctx context.Context, req assignmentdomain.ListRequest) (pagination.Page[assignmentdomain.Assignment], error) {
	page := req.Pagination.Normalize(pagination.DefaultLimit, pagination.MaxLimit)
	filter := assignmentdomain.ListFilter{
		Limit:  page.Limit,
		Offset: page.Offset(),
	}

	if value := strings.TrimSpace(req.Status); value != "" {
		status, err := parseStatus(value)
		if err != nil {
			return pagination.Page[assignmentdomain.Assignment]{}, err
		}
		filter.Status = status
	}
	if value := strings.TrimSpace(req.AgentID); value != "" {
		id, err := parseRef(value, assignmentdomain.ErrInvalidAgentID)
		if err != nil {
			return pagination.Page[assignmentdomain.Assignment]{}, err
		}
		agent, err := s.agentRepo.FindByID(ctx, s.db, id)
		if err != nil {
			return pagination.Page[assignmentdomain.Assignment]{}, err
		}
		if agent == nil {
			return pagination.Page[assignmentdomain.Assignment]{}, assignmentdomain.ErrAgentNotFound
		}
		filter.AgentID = &id
	}
	if value := strings.TrimSpace(req.MeterID); value != "" {
		id, err := parseRef(value, assignmentdomain.ErrInvalidMeterID)
		if err != nil {
			return pagination.Page[assignmentdomain.Assignment]{}, err
		}
		meter, err := s.meterRepo.FindByID(ctx, s.db, id)
		if err != nil {
			return pagination.Page[assignmentdomain.Assignment]{}, err
		}
		if meter == nil {
			return pagination.Page[assignmentdomain.Assignment]{}, assignmentdomain.ErrMeterNotFound
		}
		filter.MeterID = &id
	}

	items, total, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return pagination.Page[assignmentdomain.Assignment]{}, err
	}
	return pagination.NewPage(items, page, total), nil
}

// ListByAgent is List pinned to one agent; any agent_id in req is ignored.
func (s *Service) ListByAgent(ctx context.Context, agentID uuid.UUID, req assignmentdomain.ListRequest) (pagination.Page[assignmentdomain.Assignment], error) {
	if agentID == uuid.Nil {
		return pagination.Page[assignmentdomain.Assignment]{}, assignmentdomain.ErrInvalidAgentID
	}
	req.AgentID = agentID.String()
	return s.List(ctx, req)
}

func (s *Service) insert(ctx context.Context, tx *gorm.DB, a *assignmentdomain.Assignment) error {
	if err := s.repo.Insert(ctx, tx, a); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return assignmentdomain.ErrActiveAssignment
		}
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

func (s *Service) recordTxError(operation string, err error) {
	if metrics.ClassifyReason(err) == metrics.ReasonUnknown {
		return
	}
	s.workflow.IncTxError(operation, err)
	s.log.Warn("assignment transaction failed",
		zap.String("operation", operation),
		zap.Bool("retryable", metrics.IsRetryable(err)),
		zap.Error(err),
	)
}

func (s *Service) audit(ctx context.Context, action string, a *assignmentdomain.Assignment, metadata map[string]any) {
	if s.auditSvc == nil || a == nil {
		return
	}
	targetID := a.ID.String()
	_ = s.auditSvc.AuditLog(ctx, "", nil, action, "assignment", &targetID, metadata)
}

func newAssignment(meter *meterdomain.Meter, agentID uuid.UUID, estimated *int, assignedBy string, now time.Time) *assignmentdomain.Assignment {
	minutes := meter.EstimatedTime
	if estimated != nil {
		minutes = *estimated
	}
	if minutes < 1 {
		minutes = meterdomain.DefaultEstimatedTime
	}
	return &assignmentdomain.Assignment{
		ID:            uuid.New(),
		MeterID:       meter.ID,
		AgentID:       agentID,
		AssignedBy:    assignedBy,
		Status:        assignmentdomain.StatusPending,
		EstimatedTime: minutes,
		AssignedAt:    now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func releasesLoad(status assignmentdomain.Status, policy config.Policy) bool {
	switch status {
	case assignmentdomain.StatusCompleted:
		return true
	case assignmentdomain.StatusCancelled:
		return policy.Assignment.CancelReleasesLoad
	}
	return false
}

func parseRef(value string, invalid error) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, invalid
	}
	return id, nil
}

func parseStatus(value string) (assignmentdomain.Status, error) {
	status := assignmentdomain.Status(strings.ToLower(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", assignmentdomain.ErrInvalidStatus
	}
	return status, nil
}

func validateEstimatedTime(value *int) error {
	if value != nil && *value < 1 {
		return assignmentdomain.ErrInvalidEstimatedTime
	}
	return nil
}

func actorOrSystem(actor string) string {
	if actor = strings.TrimSpace(actor); actor != "" {
		return actor
	}
	return systemActor
}
