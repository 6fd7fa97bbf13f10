package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	agentdomain "github.com/smallbiznis/fieldops/internal/agent/domain"
	auditdomain "github.com/smallbiznis/fieldops/internal/audit/domain"
	"github.com/smallbiznis/fieldops/internal/clock"
	"github.com/smallbiznis/fieldops/pkg/db"
	"github.com/smallbiznis/fieldops/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     agentdomain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     agentdomain.Repository
	auditSvc auditdomain.Service
}

func New(p Params) agentdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("agent.service"),
		clock:    c,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req agentdomain.CreateRequest) (*agentdomain.Agent, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, agentdomain.ErrInvalidUserID
	}

	maxLoad := agentdomain.DefaultMaxLoad
	if req.MaxLoad != nil {
		if *req.MaxLoad < 1 {
			return nil, agentdomain.ErrInvalidMaxLoad
		}
		maxLoad = *req.MaxLoad
	}

	status := agentdomain.StatusAvailable
	if value := strings.TrimSpace(req.Status); value != "" {
		status = agentdomain.Status(strings.ToLower(value))
		if !status.Valid() {
			return nil, agentdomain.ErrInvalidStatus
		}
	}

	if !validCoordinates(req.Latitude, req.Longitude) {
		return nil, agentdomain.ErrInvalidCoordinates
	}

	now := s.clock.Now().UTC()
	a := &agentdomain.Agent{
		ID:          uuid.New(),
		UserID:      userID,
		DisplayName: strings.TrimSpace(req.DisplayName),
		CurrentLoad: 0,
		MaxLoad:     maxLoad,
		Status:      status,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return agentdomain.ErrProfileExists
		}
		if err := s.repo.Insert(ctx, tx, a); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return agentdomain.ErrProfileExists
			}
			return fmt.Errorf("insert agent: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("agent created",
		zap.String("agent_id", a.ID.String()),
		zap.String("user_id", a.UserID),
	)
	s.audit(ctx, "agent.create", a)
	return a, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*agentdomain.Agent, error) {
	agentID, err := agentdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindByID(ctx, s.db, agentID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, agentdomain.ErrNotFound
	}
	return item, nil
}

func (s *Service) GetByUserID(ctx context.Context, userID string) (*agentdomain.Agent, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, agentdomain.ErrInvalidUserID
	}
	item, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, agentdomain.ErrNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, req agentdomain.ListRequest) (pagination.Page[agentdomain.Agent], error) {
	page := req.Pagination.Normalize(pagination.DefaultLimit, pagination.MaxLimit)
	filter := agentdomain.ListFilter{
		Limit:  page.Limit,
		Offset: page.Offset(),
	}
	if value := strings.TrimSpace(req.Status); value != "" {
		filter.Status = agentdomain.Status(strings.ToLower(value))
		if !filter.Status.Valid() {
			return pagination.Page[agentdomain.Agent]{}, agentdomain.ErrInvalidStatus
		}
	}

	items, total, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return pagination.Page[agentdomain.Agent]{}, err
	}
	return pagination.NewPage(items, page, total), nil
}

// ListAvailable returns available agents that still have spare capacity.
func (s *Service) ListAvailable(ctx context.Context) ([]agentdomain.Agent, error) {
	items, _, err := s.repo.List(ctx, s.db, agentdomain.ListFilter{AvailableOnly: true})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []agentdomain.Agent{}
	}
	return items, nil
}

func (s *Service) Update(ctx context.Context, req agentdomain.UpdateRequest) (*agentdomain.Agent, error) {
	agentID, err := agentdomain.ParseID(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, agentID, "agent.update", func(a *agentdomain.Agent) error {
		if req.DisplayName != nil {
			a.DisplayName = strings.TrimSpace(*req.DisplayName)
		}
		if req.MaxLoad != nil {
			if *req.MaxLoad < 1 {
				return agentdomain.ErrInvalidMaxLoad
			}
			a.MaxLoad = *req.MaxLoad
		}
		if req.Status != nil {
			status := agentdomain.Status(strings.ToLower(strings.TrimSpace(*req.Status)))
			if !status.Valid() {
				return agentdomain.ErrInvalidStatus
			}
			a.Status = status
		}
		return nil
	})
}

func (s *Service) UpdateStatus(ctx context.Context, agentID uuid.UUID, status string) (*agentdomain.Agent, error) {
	next := agentdomain.Status(strings.ToLower(strings.TrimSpace(status)))
	if !next.Valid() {
		return nil, agentdomain.ErrInvalidStatus
	}
	return s.mutate(ctx, agentID, "agent.status_update", func(a *agentdomain.Agent) error {
		a.Status = next
		return nil
	})
}

func (s *Service) UpdateLocation(ctx context.Context, agentID uuid.UUID, req agentdomain.LocationRequest) (*agentdomain.Agent, error) {
	if req.Latitude == nil || req.Longitude == nil || !validCoordinates(req.Latitude, req.Longitude) {
		return nil, agentdomain.ErrInvalidCoordinates
	}
	return s.mutate(ctx, agentID, "agent.location_update", func(a *agentdomain.Agent) error {
		a.Latitude = req.Latitude
		a.Longitude = req.Longitude
		return nil
	})
}

func (s *Service) Stats(ctx context.Context, id string) (*agentdomain.Stats, error) {
	agent, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	counts, err := s.repo.CountAssignments(ctx, s.db, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("count assignments: %w", err)
	}
	readings, err := s.repo.CountReadings(ctx, s.db, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("count readings: %w", err)
	}
	spans, err := s.repo.CompletionSpans(ctx, s.db, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("completion spans: %w", err)
	}

	stats := &agentdomain.Stats{
		AgentID:              agent.ID,
		TotalAssignments:     counts.Total,
		CompletedAssignments: counts.Completed,
		ActiveAssignments:    counts.Active,
		TotalReadings:        readings,
	}
	if counts.Total > 0 {
		stats.SuccessRate = float64(counts.Completed) / float64(counts.Total) * 100
	}
	if len(spans) > 0 {
		var minutes float64
		for _, span := range spans {
			minutes += span.CompletedAt.Sub(span.AssignedAt).Minutes()
		}
		avg := minutes / float64(len(spans))
		stats.AverageCompletionMinutes = &avg
	}
	return stats, nil
}

func (s *Service) mutate(ctx context.Context, agentID uuid.UUID, action string, apply func(*agentdomain.Agent) error) (*agentdomain.Agent, error) {
	if agentID == uuid.Nil {
		return nil, agentdomain.ErrInvalidID
	}

	var updated *agentdomain.Agent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByIDForUpdate(ctx, tx, agentID)
		if err != nil {
			return err
		}
		if item == nil {
			return agentdomain.ErrNotFound
		}
		if err := apply(item); err != nil {
			return err
		}
		item.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.Update(ctx, tx, item); err != nil {
			return fmt.Errorf("update agent: %w", err)
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, action, updated)
	return updated, nil
}

func (s *Service) audit(ctx context.Context, action string, a *agentdomain.Agent) {
	if s.auditSvc == nil || a == nil {
		return
	}
	targetID := a.ID.String()
	_ = s.auditSvc.AuditLog(ctx, "", nil, action, "agent", &targetID, map[string]any{
		"user_id":  a.UserID,
		"status":   string(a.Status),
		"max_load": a.MaxLoad,
	})
}

func validCoordinates(lat, lng *float64) bool {
	if lat == nil && lng == nil {
		return true
	}
	if lat == nil || lng == nil {
		return false
	}
	return *lat >= -90 && *lat <= 90 && *lng >= -180 && *lng <= 180
}
