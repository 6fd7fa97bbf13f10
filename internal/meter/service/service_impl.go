package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/fieldops/internal/audit/domain"
	"github.com/smallbiznis/fieldops/internal/clock"
	meterdomain "github.com/smallbiznis/fieldops/internal/meter/domain"
	"github.com/smallbiznis/fieldops/pkg/db"
	"github.com/smallbiznis/fieldops/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     meterdomain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     meterdomain.Repository
	auditSvc auditdomain.Service
}

func New(p Params) meterdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("meter.service"),
		clock:    c,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req meterdomain.CreateRequest) (*meterdomain.Meter, error) {
	serial := strings.TrimSpace(req.SerialNumber)
	if serial == "" {
		return nil, meterdomain.ErrInvalidSerialNumber
	}

	meterType := meterdomain.MeterType(strings.ToLower(strings.TrimSpace(req.MeterType)))
	if !meterType.Valid() {
		return nil, meterdomain.ErrInvalidMeterType
	}

	priority := meterdomain.PriorityMedium
	if value := strings.TrimSpace(req.Priority); value != "" {
		priority = meterdomain.Priority(strings.ToLower(value))
		if !priority.Valid() {
			return nil, meterdomain.ErrInvalidPriority
		}
	}

	status := meterdomain.StatusActive
	if value := strings.TrimSpace(req.Status); value != "" {
		status = meterdomain.Status(strings.ToLower(value))
		if !status.Valid() {
			return nil, meterdomain.ErrInvalidStatus
		}
	}

	estimated := meterdomain.DefaultEstimatedTime
	if req.EstimatedTime != nil {
		if *req.EstimatedTime < 1 {
			return nil, meterdomain.ErrInvalidEstimatedTime
		}
		estimated = *req.EstimatedTime
	}

	if !meterdomain.ValidCoordinates(req.Latitude, req.Longitude) {
		return nil, meterdomain.ErrInvalidCoordinates
	}

	metadata := datatypes.JSONMap{}
	for key, value := range req.Metadata {
		metadata[key] = value
	}

	now := s.clock.Now().UTC()
	m := &meterdomain.Meter{
		ID:            uuid.New(),
		SerialNumber:  serial,
		Address:       strings.TrimSpace(req.Address),
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		MeterType:     meterType,
		Priority:      priority,
		Status:        status,
		LastReading:   normalizePointer(req.InitialReading),
		EstimatedTime: estimated,
		OwnerName:     strings.TrimSpace(req.OwnerName),
		Metadata:      metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindBySerial(ctx, tx, serial)
		if err != nil {
			return err
		}
		if existing != nil {
			return meterdomain.ErrSerialNumberTaken
		}
		if err := s.repo.Insert(ctx, tx, m); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return meterdomain.ErrSerialNumberTaken
			}
			return fmt.Errorf("insert meter: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("meter created",
		zap.String("meter_id", m.ID.String()),
		zap.String("serial_number", m.SerialNumber),
	)
	s.audit(ctx, "meter.create", m)
	return m, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*meterdomain.Meter, error) {
	meterID, err := meterdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}

	item, err := s.repo.FindByID(ctx, s.db, meterID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, meterdomain.ErrNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, req meterdomain.ListRequest) (pagination.Page[meterdomain.Meter], error) {
	filter, page, err := s.buildFilter(req)
	if err != nil {
		return pagination.Page[meterdomain.Meter]{}, err
	}

	items, total, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return pagination.Page[meterdomain.Meter]{}, err
	}
	return pagination.NewPage(items, page, total), nil
}

// ListUnassigned returns active meters with no pending or in-progress assignment.
func (s *Service) ListUnassigned(ctx context.Context, req meterdomain.ListRequest) (pagination.Page[meterdomain.Meter], error) {
	unassigned := false
	req.Assigned = &unassigned
	req.Status = string(meterdomain.StatusActive)
	return s.List(ctx, req)
}

func (s *Service) buildFilter(req meterdomain.ListRequest) (meterdomain.ListFilter, pagination.Pagination, error) {
	page := req.Pagination.Normalize(pagination.DefaultLimit, pagination.MaxLimit)
	filter := meterdomain.ListFilter{
		Search:   req.Search,
		Assigned: req.Assigned,
		Limit:    page.Limit,
		Offset:   page.Offset(),
	}

	if value := strings.TrimSpace(req.Status); value != "" {
		filter.Status = meterdomain.Status(strings.ToLower(value))
		if !filter.Status.Valid() {
			return filter, page, meterdomain.ErrInvalidStatus
		}
	}
	if value := strings.TrimSpace(req.MeterType); value != "" {
		filter.MeterType = meterdomain.MeterType(strings.ToLower(value))
		if !filter.MeterType.Valid() {
			return filter, page, meterdomain.ErrInvalidMeterType
		}
	}
	if value := strings.TrimSpace(req.Priority); value != "" {
		filter.Priority = meterdomain.Priority(strings.ToLower(value))
		if !filter.Priority.Valid() {
			return filter, page, meterdomain.ErrInvalidPriority
		}
	}
	return filter, page, nil
}

func (s *Service) Update(ctx context.Context, req meterdomain.UpdateRequest) (*meterdomain.Meter, error) {
	meterID, err := meterdomain.ParseID(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, err
	}

	var updated *meterdomain.Meter
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByIDForUpdate(ctx, tx, meterID)
		if err != nil {
			return err
		}
		if item == nil {
			return meterdomain.ErrNotFound
		}

		if req.Address != nil {
			item.Address = strings.TrimSpace(*req.Address)
		}
		if req.Latitude != nil || req.Longitude != nil {
			if !meterdomain.ValidCoordinates(req.Latitude, req.Longitude) {
				return meterdomain.ErrInvalidCoordinates
			}
			item.Latitude = req.Latitude
			item.Longitude = req.Longitude
		}
		if req.MeterType != nil {
			meterType := meterdomain.MeterType(strings.ToLower(strings.TrimSpace(*req.MeterType)))
			if !meterType.Valid() {
				return meterdomain.ErrInvalidMeterType
			}
			item.MeterType = meterType
		}
		if req.Priority != nil {
			priority := meterdomain.Priority(strings.ToLower(strings.TrimSpace(*req.Priority)))
			if !priority.Valid() {
				return meterdomain.ErrInvalidPriority
			}
			item.Priority = priority
		}
		if req.Status != nil {
			status := meterdomain.Status(strings.ToLower(strings.TrimSpace(*req.Status)))
			if !status.Valid() {
				return meterdomain.ErrInvalidStatus
			}
			item.Status = status
		}
		if req.EstimatedTime != nil {
			if *req.EstimatedTime < 1 {
				return meterdomain.ErrInvalidEstimatedTime
			}
			item.EstimatedTime = *req.EstimatedTime
		}
		if req.OwnerName != nil {
			item.OwnerName = strings.TrimSpace(*req.OwnerName)
		}
		if req.Metadata != nil {
			item.Metadata = datatypes.JSONMap(req.Metadata)
		}

		item.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.Update(ctx, tx, item); err != nil {
			return fmt.Errorf("update meter: %w", err)
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "meter.update", updated)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	meterID, err := meterdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return err
	}

	var deleted *meterdomain.Meter
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByIDForUpdate(ctx, tx, meterID)
		if err != nil {
			return err
		}
		if item == nil {
			return meterdomain.ErrNotFound
		}

		active, err := s.repo.HasActiveAssignment(ctx, tx, meterID)
		if err != nil {
			return err
		}
		if active {
			return meterdomain.ErrHasActiveAssignment
		}

		if err := s.repo.Delete(ctx, tx, meterID); err != nil {
			if db.IsForeignKeyErr(err) {
				return meterdomain.ErrHasHistory
			}
			return fmt.Errorf("delete meter: %w", err)
		}
		deleted = item
		return nil
	})
	if err != nil {
		return err
	}

	s.audit(ctx, "meter.delete", deleted)
	return nil
}

func (s *Service) audit(ctx context.Context, action string, m *meterdomain.Meter) {
	if s.auditSvc == nil || m == nil {
		return
	}
	metadata := map[string]any{
		"serial_number": m.SerialNumber,
		"status":        string(m.Status),
		"priority":      string(m.Priority),
	}
	targetID := m.ID.String()
	_ = s.auditSvc.AuditLog(ctx, "", nil, action, "meter", &targetID, metadata)
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
