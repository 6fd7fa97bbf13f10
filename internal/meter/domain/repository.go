package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status    Status
	MeterType MeterType
	Priority  Priority
	Search    string
	Assigned  *bool
	Limit     int
	Offset    int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, meter *Meter) error
	Update(ctx context.Context, db *gorm.DB, meter *Meter) error
	Delete(ctx context.Context, db *gorm.DB, id uuid.UUID) error
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Meter, error)
	// FindByIDForUpdate locks the meter row until the transaction ends.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Meter, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []uuid.UUID) ([]Meter, error)
	FindByIDsForUpdate(ctx context.Context, db *gorm.DB, ids []uuid.UUID) ([]Meter, error)
	FindBySerial(ctx context.Context, db *gorm.DB, serial string) (*Meter, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Meter, int64, error)
	HasActiveAssignment(ctx context.Context, db *gorm.DB, id uuid.UUID) (bool, error)
	SetLastReading(ctx context.Context, db *gorm.DB, id uuid.UUID, value string, at time.Time) error
}
