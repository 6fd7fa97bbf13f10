package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	agentdomain "github.com/smallbiznis/fieldops/internal/agent/domain"
	approvaldomain "github.com/smallbiznis/fieldops/internal/approval/domain"
	auditdomain "github.com/smallbiznis/fieldops/internal/audit/domain"
	"github.com/smallbiznis/fieldops/internal/clock"
	meterdomain "github.com/smallbiznis/fieldops/internal/meter/domain"
	"github.com/smallbiznis/fieldops/internal/observability/metrics"
	"github.com/smallbiznis/fieldops/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      approvaldomain.Repository
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
	repo      approvaldomain.Repository
	meterRepo meterdomain.Repository
	agentRepo agentdomain.Repository
	auditSvc  auditdomain.Service
	metrics   *metrics.Metrics
	workflow  *metrics.WorkflowMetrics
}

func New(p Params) approvaldomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("approval.service"),
		clock:     c,
		repo:      p.Repo,
		meterRepo: p.MeterRepo,
		agentRepo: p.AgentRepo,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
		workflow:  p.Workflow,
	}
}

func (s *Service) Submit(ctx context.Context, req approvaldomain.SubmitRequest) (*approvaldomain.Request, error) {
	meterID, err := parseRef(req.MeterID, approvaldomain.ErrInvalidMeterID)
	if err != nil {
		return nil, err
	}
	agentID, err := parseRef(req.AgentID, approvaldomain.ErrInvalidAgentID)
	if err != nil {
		return nil, err
	}
	if len(req.MeterData) == 0 {
		return nil, approvaldomain.ErrEmptyMeterData
	}

	now := s.clock.Now().UTC()
	item := &approvaldomain.Request{
		ID:              uuid.New(),
		MeterID:         meterID,
		AgentID:         agentID,
		MeterData:       datatypes.JSONMap(req.MeterData),
		SubmissionNotes: optionalText(req.SubmissionNotes),
		Status:          approvaldomain.StatusPending,
		SubmittedAt:     now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		meter, err := s.meterRepo.FindByID(ctx, tx, meterID)
		if err != nil {
			return err
		}
		if meter == nil {
			return approvaldomain.ErrMeterNotFound
		}
		agent, err := s.agentRepo.FindByID(ctx, tx, agentID)
		if err != nil {
			return err
		}
		if agent == nil {
			return approvaldomain.ErrAgentNotFound
		}
		if err := s.repo.Insert(ctx, tx, item); err != nil {
			return fmt.Errorf("insert approval request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("approval request submitted",
		zap.String("request_id", item.ID.String()),
		zap.String("meter_id", item.MeterID.String()),
		zap.String("agent_id", item.AgentID.String()),
	)
	s.metrics.RecordApprovalSubmitted(ctx)
	s.audit(ctx, "approval.submit", item, map[string]any{
		"meter_id": item.MeterID.String(),
		"fields":   len(item.MeterData),
	})
	return item, nil
}

// Review decides a pending request exactly once. A rejection must carry notes.
// Approving does not write meter_data back to the meter.
func (s *Service) Review(ctx context.Context, req approvaldomain.ReviewRequest) (*approvaldomain.Request, error) {
	outcome := approvaldomain.Outcome(strings.ToLower(strings.TrimSpace(req.Outcome)))
	next, ok := outcome.Result()
	if !ok {
		return nil, approvaldomain.ErrInvalidOutcome
	}
	notes := strings.TrimSpace(req.ReviewNotes)
	if outcome == approvaldomain.OutcomeReject && notes == "" {
		return nil, approvaldomain.ErrReviewNotesRequired
	}
	reviewer := strings.TrimSpace(req.ReviewerID)
	if reviewer == "" {
		return nil, approvaldomain.ErrInvalidReviewer
	}
	id, err := approvaldomain.ParseID(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	var reviewed *approvaldomain.Request
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockStart := time.Now()
		item, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		s.workflow.ObserveDBLockWait(metrics.LockResourceApproval, time.Since(lockStart))
		if err != nil {
			return err
		}
		if item == nil {
			return approvaldomain.ErrNotFound
		}
		if item.Status != approvaldomain.StatusPending {
			return approvaldomain.ErrNotPending
		}

		item.Status = next
		item.ReviewerID = &reviewer
		item.ReviewNotes = optionalText(notes)
		item.ReviewedAt = &now
		item.UpdatedAt = now

		applied, err := s.repo.Review(ctx, tx, item)
		if err != nil {
			return fmt.Errorf("review approval request: %w", err)
		}
		if !applied {
			return approvaldomain.ErrNotPending
		}
		reviewed = item
		return nil
	})
	if err != nil {
		if metrics.ClassifyReason(err) != metrics.ReasonUnknown {
			s.workflow.IncTxError("approval.review", err)
		}
		return nil, err
	}

	s.log.Info("approval request reviewed",
		zap.String("request_id", reviewed.ID.String()),
		zap.String("outcome", string(outcome)),
		zap.String("reviewer_id", reviewer),
	)
	s.metrics.RecordApprovalReviewed(ctx, string(outcome))
	s.workflow.IncApprovalReview(string(outcome))
	s.audit(ctx, "approval."+string(outcome), reviewed, map[string]any{
		"status": string(reviewed.Status),
	})
	return reviewed, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*approvaldomain.Request, error) {
	requestID, err := approvaldomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindByID(ctx, s.db, requestID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, approvaldomain.ErrNotFound
	}
	return item, nil
}

// ListPending returns pending requests oldest first.
func (s *Service) ListPending(ctx context.Context) ([]approvaldomain.Request, error) {
	items, err := s.repo.ListPending(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []approvaldomain.Request{}
	}
	return items, nil
}

func (s *Service) List(ctx context.Context, req approvaldomain.ListRequest) (pagination.Page[approvaldomain.Request], error) {
	page := req.Pagination.Normalize(pagination.DefaultLimit, pagination.MaxLimit)
	filter := approvaldomain.ListFilter{
		Limit:  page.Limit,
		Offset: page.Offset(),
	}

	if value := strings.TrimSpace(req.Status); value != "" {
		filter.Status = approvaldomain.Status(strings.ToLower(value))
		if !filter.Status.Valid() {
			return pagination.Page[approvaldomain.Request]{}, approvaldomain.ErrInvalidStatus
		}
	}
	if value := strings.TrimSpace(req.AgentID); value != "" {
		id, err := parseRef(value, approvaldomain.ErrInvalidAgentID)
		if err != nil {
			return pagination.Page[approvaldomain.Request]{}, err
		}
		filter.AgentID = &id
	}
	if value := strings.TrimSpace(req.MeterID); value != "" {
		id, err := parseRef(value, approvaldomain.ErrInvalidMeterID)
		if err != nil {
			return pagination.Page[approvaldomain.Request]{}, err
		}
		filter.MeterID = &id
	}

	items, total, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return pagination.Page[approvaldomain.Request]{}, err
	}
	return pagination.NewPage(items, page, total), nil
}

func (s *Service) audit(ctx context.Context, action string, item *approvaldomain.Request, metadata map[string]any) {
	if s.auditSvc == nil || item == nil {
		return
	}
	targetID := item.ID.String()
	_ = s.auditSvc.AuditLog(ctx, "", nil, action, "approval_request", &targetID, metadata)
}

func parseRef(value string, invalid error) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, invalid
	}
	return id, nil
}

func optionalText(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
