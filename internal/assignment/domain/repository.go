package domain

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status  Status
	AgentID *uuid.UUID
	MeterID *uuid.UUID
	Limit   int
	Offset  int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, assignment *Assignment) error
	Update(ctx context.Context, db *gorm.DB, assignment *Assignment) error
	// Close writes a terminal status and completed_at. It reports false
	// when completed_at was already set and nothing changed.
	Close(ctx context.Context, db *gorm.DB, assignment *Assignment) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Assignment, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Assignment, error)
	// ActiveMeterIDs returns the subset of ids that hold an active assignment.
	ActiveMeterIDs(ctx context.Context, db *gorm.DB, meterIDs []uuid.UUID) (map[uuid.UUID]struct{}, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Assignment, int64, error)
}
