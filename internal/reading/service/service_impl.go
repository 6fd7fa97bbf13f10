package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	agentdomain "github.com/smallbiznis/fieldops/internal/agent/domain"
	assignmentdomain "github.com/smallbiznis/fieldops/internal/assignment/domain"
	auditdomain "github.com/smallbiznis/fieldops/internal/audit/domain"
	"github.com/smallbiznis/fieldops/internal/clock"
	meterdomain "github.com/smallbiznis/fieldops/internal/meter/domain"
	"github.com/smallbiznis/fieldops/internal/observability/metrics"
	readingdomain "github.com/smallbiznis/fieldops/internal/reading/domain"
	"github.com/smallbiznis/fieldops/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Clock          clock.Clock
	Repo           readingdomain.Repository
	MeterRepo      meterdomain.Repository
	AgentRepo      agentdomain.Repository
	AssignmentRepo assignmentdomain.Repository
	AuditSvc       auditdomain.Service `optional:"true"`
	Metrics        *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	clock          clock.Clock
	repo           readingdomain.Repository
	meterRepo      meterdomain.Repository
	agentRepo      agentdomain.Repository
	assignmentRepo assignmentdomain.Repository
	auditSvc       auditdomain.Service
	metrics        *metrics.Metrics
}

func New(p Params) readingdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("reading.service"),
		clock:          c,
		repo:           p.Repo,
		meterRepo:      p.MeterRepo,
		agentRepo:      p.AgentRepo,
		assignmentRepo: p.AssignmentRepo,
		auditSvc:       p.AuditSvc,
		metrics:        p.Metrics,
	}
}

// Submit stores a reading and copies its value onto the meter's last_reading.
func (s *Service) Submit(ctx context.Context, req readingdomain.SubmitRequest) (*readingdomain.Reading, error) {
	meterID, err := parseRef(req.MeterID, readingdomain.ErrInvalidMeterID)
	if err != nil {
		return nil, err
	}
	agentID, err := optionalRef(req.AgentID, readingdomain.ErrInvalidAgentID)
	if err != nil {
		return nil, err
	}
	assignmentID, err := optionalRef(req.AssignmentID, readingdomain.ErrInvalidAssignmentID)
	if err != nil {
		return nil, err
	}
	if req.ReadingValue == nil || *req.ReadingValue < 0 {
		return nil, readingdomain.ErrInvalidValue
	}
	if !meterdomain.ValidCoordinates(req.Latitude, req.Longitude) {
		return nil, readingdomain.ErrInvalidCoordinates
	}

	now := s.clock.Now().UTC()
	readingDate := now
	if req.ReadingDate != nil && !req.ReadingDate.IsZero() {
		readingDate = req.ReadingDate.UTC()
	}

	reading := &readingdomain.Reading{
		ID:           uuid.New(),
		MeterID:      meterID,
		AgentID:      agentID,
		AssignmentID: assignmentID,
		ReadingValue: *req.ReadingValue,
		ReadingDate:  readingDate,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		Notes:        optionalText(req.Notes),
		CreatedAt:    now,
	}

	var meterType meterdomain.MeterType
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		meter, err := s.meterRepo.FindByIDForUpdate(ctx, tx, meterID)
		if err != nil {
			return err
		}
		if meter == nil {
			return readingdomain.ErrMeterNotFound
		}
		meterType = meter.MeterType

		if agentID != nil {
			agent, err := s.agentRepo.FindByID(ctx, tx, *agentID)
			if err != nil {
				return err
			}
			if agent == nil {
				return readingdomain.ErrAgentNotFound
			}
		}
		if assignmentID != nil {
			assignment, err := s.assignmentRepo.FindByID(ctx, tx, *assignmentID)
			if err != nil {
				return err
			}
			if assignment == nil {
				return readingdomain.ErrAssignmentNotFound
			}
			if assignment.MeterID != meterID {
				return readingdomain.ErrAssignmentMismatch
			}
		}

		if err := s.repo.Insert(ctx, tx, reading); err != nil {
			return fmt.Errorf("insert reading: %w", err)
		}
		if err := s.meterRepo.SetLastReading(ctx, tx, meterID, formatValue(reading.ReadingValue), now); err != nil {
			return fmt.Errorf("set last reading: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("reading submitted",
		zap.String("reading_id", reading.ID.String()),
		zap.String("meter_id", meterID.String()),
		zap.Float64("value", reading.ReadingValue),
	)
	s.metrics.RecordReadingSubmitted(ctx, string(meterType))
	s.audit(ctx, "reading.submit", reading, map[string]any{
		"meter_id": meterID.String(),
		"value":    reading.ReadingValue,
	})
	return reading, nil
}

func (s *Service) Verify(ctx context.Context, req readingdomain.VerifyRequest) (*readingdomain.Reading, error) {
	verifier := strings.TrimSpace(req.VerifierID)
	if verifier == "" {
		return nil, readingdomain.ErrInvalidVerifier
	}
	id, err := readingdomain.ParseID(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	var verified *readingdomain.Reading
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reading, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if reading == nil {
			return readingdomain.ErrNotFound
		}
		if reading.IsVerified {
			return readingdomain.ErrAlreadyVerified
		}

		reading.IsVerified = true
		reading.VerifiedBy = &verifier
		reading.VerifiedAt = &now
		ok, err := s.repo.MarkVerified(ctx, tx, reading)
		if err != nil {
			return fmt.Errorf("verify reading: %w", err)
		}
		if !ok {
			return readingdomain.ErrAlreadyVerified
		}
		verified = reading
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "reading.verify", verified, nil)
	return verified, nil
}

// Update applies a correction. When the corrected reading is the meter's
// latest, last_reading follows the new value.
func (s *Service) Update(ctx context.Context, req readingdomain.UpdateRequest) (*readingdomain.Reading, error) {
	id, err := readingdomain.ParseID(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, err
	}
	if req.ReadingValue == nil && req.ReadingDate == nil && req.Notes == nil &&
		req.Latitude == nil && req.Longitude == nil {
		return nil, readingdomain.ErrEmptyUpdate
	}
	if req.ReadingValue != nil && *req.ReadingValue < 0 {
		return nil, readingdomain.ErrInvalidValue
	}
	if (req.Latitude != nil || req.Longitude != nil) && !meterdomain.ValidCoordinates(req.Latitude, req.Longitude) {
		return nil, readingdomain.ErrInvalidCoordinates
	}

	now := s.clock.Now().UTC()
	changes := map[string]any{}
	var updated *readingdomain.Reading
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return readingdomain.ErrNotFound
		}
		// Meter first, then reading: the same order Submit takes.
		if _, err := s.meterRepo.FindByIDForUpdate(ctx, tx, current.MeterID); err != nil {
			return err
		}
		reading, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if reading == nil {
			return readingdomain.ErrNotFound
		}

		valueChanged := false
		if req.ReadingValue != nil && *req.ReadingValue != reading.ReadingValue {
			changes["reading_value"] = map[string]any{"from": reading.ReadingValue, "to": *req.ReadingValue}
			reading.ReadingValue = *req.ReadingValue
			valueChanged = true
		}
		if req.ReadingDate != nil && !req.ReadingDate.IsZero() {
			reading.ReadingDate = req.ReadingDate.UTC()
			changes["reading_date"] = reading.ReadingDate
		}
		if req.Latitude != nil || req.Longitude != nil {
			reading.Latitude = req.Latitude
			reading.Longitude = req.Longitude
			changes["location"] = true
		}
		if req.Notes != nil {
			reading.Notes = optionalText(*req.Notes)
			changes["notes"] = true
		}

		if err := s.repo.Update(ctx, tx, reading); err != nil {
			return fmt.Errorf("update reading: %w", err)
		}
		if valueChanged {
			latest, err := s.repo.LatestForMeter(ctx, tx, reading.MeterID)
			if err != nil {
				return err
			}
			if latest != nil && latest.ID == reading.ID {
				if err := s.meterRepo.SetLastReading(ctx, tx, reading.MeterID, formatValue(reading.ReadingValue), now); err != nil {
					return fmt.Errorf("set last reading: %w", err)
				}
			}
		}
		updated = reading
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("reading corrected",
		zap.String("reading_id", updated.ID.String()),
		zap.String("actor_id", req.ActorID),
	)
	s.audit(ctx, "reading.update", updated, changes)
	return updated, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*readingdomain.Reading, error) {
	readingID, err := readingdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindByID(ctx, s.db, readingID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, readingdomain.ErrNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, req readingdomain.ListRequest) (pagination.Page[readingdomain.Reading], error) {
	filter := readingdomain.ListFilter{Verified: req.Verified}
	var err error
	if filter.MeterID, err = optionalRef(req.MeterID, readingdomain.ErrInvalidMeterID); err != nil {
		return pagination.Page[readingdomain.Reading]{}, err
	}
	if filter.AgentID, err = optionalRef(req.AgentID, readingdomain.ErrInvalidAgentID); err != nil {
		return pagination.Page[readingdomain.Reading]{}, err
	}

	page := req.Pagination.Normalize(pagination.DefaultLimit, pagination.MaxLimit)
	filter.Limit = page.Limit
	filter.Offset = page.Offset()
	items, total, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return pagination.Page[readingdomain.Reading]{}, err
	}
	return pagination.NewPage(items, page, total), nil
}

func (s *Service) ListByMeter(ctx context.Context, req readingdomain.ListRequest) (pagination.Page[readingdomain.Reading], error) {
	meterID, err := parseRef(req.MeterID, readingdomain.ErrInvalidMeterID)
	if err != nil {
		return pagination.Page[readingdomain.Reading]{}, err
	}
	meter, err := s.meterRepo.FindByID(ctx, s.db, meterID)
	if err != nil {
		return pagination.Page[readingdomain.Reading]{}, err
	}
	if meter == nil {
		return pagination.Page[readingdomain.Reading]{}, readingdomain.ErrMeterNotFound
	}

	page := req.Pagination.Normalize(pagination.DefaultLimit, pagination.MaxLimit)
	items, total, err := s.repo.ListByMeter(ctx, s.db, meterID, page.Limit, page.Offset())
	if err != nil {
		return pagination.Page[readingdomain.Reading]{}, err
	}
	return pagination.NewPage(items, page, total), nil
}

func (s *Service) audit(ctx context.Context, action string, reading *readingdomain.Reading, metadata map[string]any) {
	if s.auditSvc == nil || reading == nil {
		return
	}
	targetID := reading.ID.String()
	_ = s.auditSvc.AuditLog(ctx, "", nil, action, "meter_reading", &targetID, metadata)
}

// formatValue renders the shortest decimal form, so 1250.5 stays "1250.5".
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseRef(value string, invalid error) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, invalid
	}
	return id, nil
}

func optionalRef(value string, invalid error) (*uuid.UUID, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	id, err := parseRef(value, invalid)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optionalText(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
