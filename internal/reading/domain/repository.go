package domain

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ListFilter struct {
	MeterID  *uuid.UUID
	AgentID  *uuid.UUID
	Verified *bool
	Limit    int
	Offset   int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, reading *Reading) error
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Reading, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Reading, error)
	// MarkVerified reports false when the reading was already verified.
	MarkVerified(ctx context.Context, db *gorm.DB, reading *Reading) (bool, error)
	Update(ctx context.Context, db *gorm.DB, reading *Reading) error
	ListByMeter(ctx context.Context, db *gorm.DB, meterID uuid.UUID, limit, offset int) ([]Reading, int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Reading, int64, error)
	// LatestForMeter returns the most recently captured reading, or nil.
	LatestForMeter(ctx context.Context, db *gorm.DB, meterID uuid.UUID) (*Reading, error)
}

