package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status        Status
	AvailableOnly bool
	Limit         int
	Offset        int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, agent *Agent) error
	// Update writes profile fields. It never touches current_load.
	Update(ctx context.Context, db *gorm.DB, agent *Agent) error
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Agent, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Agent, error)
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*Agent, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Agent, int64, error)

	// Capacity counters. Only the assignment engine calls these, inside
	// its own transaction.
	ListEligible(ctx context.Context, db *gorm.DB) ([]Agent, error)
	IncrementLoad(ctx context.Context, db *gorm.DB, id uuid.UUID, at time.Time) error
	IncrementLoadWithinCapacity(ctx context.Context, db *gorm.DB, id uuid.UUID, at time.Time) (bool, error)
	ReleaseLoad(ctx context.Context, db *gorm.DB, id uuid.UUID, at time.Time) error

	CountAssignments(ctx context.Context, db *gorm.DB, id uuid.UUID) (AssignmentCounts, error)
	CountReadings(ctx context.Context, db *gorm.DB, id uuid.UUID) (int64, error)
	CompletionSpans(ctx context.Context, db *gorm.DB, id uuid.UUID) ([]CompletionSpan, error)
}
