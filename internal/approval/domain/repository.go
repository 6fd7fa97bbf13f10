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
	Insert(ctx context.Context, db *gorm.DB, req *Request) error
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Request, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Request, error)
	// Review records the decision only while the request is still pending.
	Review(ctx context.Context, db *gorm.DB, req *Request) (bool, error)
	ListPending(ctx context.Context, db *gorm.DB) ([]Request, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Request, int64, error)
}
