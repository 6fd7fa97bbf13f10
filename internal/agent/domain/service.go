package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/smallbiznis/fieldops/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Agent, error)
	GetByID(ctx context.Context, id string) (*Agent, error)
	GetByUserID(ctx context.Context, userID string) (*Agent, error)
	List(ctx context.Context, req ListRequest) (pagination.Page[Agent], error)
	ListAvailable(ctx context.Context) ([]Agent, error)
	Update(ctx context.Context, req UpdateRequest) (*Agent, error)
	UpdateStatus(ctx context.Context, agentID uuid.UUID, status string) (*Agent, error)
	UpdateLocation(ctx context.Context, agentID uuid.UUID, req LocationRequest) (*Agent, error)
	Stats(ctx context.Context, id string) (*Stats, error)
}

type CreateRequest struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	MaxLoad     *int     `json:"max_load"`
	Status      string   `json:"status"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

type UpdateRequest struct {
	ID          string  `json:"-"`
	DisplayName *string `json:"display_name,omitempty"`
	MaxLoad     *int    `json:"max_load,omitempty"`
	Status      *string `json:"status,omitempty"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type LocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type ListRequest struct {
	pagination.Pagination
	Status string `form:"status"`
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidUserID      = errors.New("invalid_user_id")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidMaxLoad     = errors.New("invalid_max_load")
	ErrInvalidCoordinates = errors.New("invalid_coordinates")
	ErrProfileExists      = errors.New("agent_profile_exists")
)

func ParseID(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}
