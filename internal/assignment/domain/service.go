package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/smallbiznis/fieldops/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Assignment, error)
	BulkAssign(ctx context.Context, req BulkAssignRequest) (*BulkResult, error)
	Update(ctx context.Context, req UpdateRequest) (*Assignment, error)
	UpdateOwnStatus(ctx context.Context, agentID uuid.UUID, req OwnStatusRequest) (*Assignment, error)
	GetByID(ctx context.Context, id string) (*Assignment, error)
	List(ctx context.Context, req ListRequest) (pagination.Page[Assignment], error)
	ListByAgent(ctx context.Context, agentID uuid.UUID, req ListRequest) (pagination.Page[Assignment], error)
}

type CreateRequest struct {
	MeterID       string `json:"meter_id"`
	AgentID       string `json:"agent_id"`
	EstimatedTime *int   `json:"estimated_time"`
	AssignedBy    string `json:"-"`
}

type BulkAssignRequest struct {
	MeterIDs      []string `json:"meter_ids"`
	AgentID       string   `json:"agent_id"`
	EstimatedTime *int     `json:"estimated_time"`
	AssignedBy    string   `json:"-"`
}

// UpdateRequest is a partial patch; nil fields are left untouched.
type UpdateRequest struct {
	ID              string  `json:"-"`
	Status          *string `json:"status,omitempty"`
	EstimatedTime   *int    `json:"estimated_time,omitempty"`
	CompletionNotes *string `json:"completion_notes,omitempty"`
}

type OwnStatusRequest struct {
	ID              string  `json:"-"`
	Status          string  `json:"status"`
	CompletionNotes *string `json:"completion_notes,omitempty"`
}

type ListRequest struct {
	pagination.Pagination
	Status  string `form:"status"`
	AgentID string `form:"agent_id"`
	MeterID string `form:"meter_id"`
}

var (
	ErrNotFound             = errors.New("not_found")
	ErrMeterNotFound        = errors.New("meter_not_found")
	ErrAgentNotFound        = errors.New("agent_not_found")
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidMeterID       = errors.New("invalid_meter_id")
	ErrInvalidAgentID       = errors.New("invalid_agent_id")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidEstimatedTime = errors.New("invalid_estimated_time")
	ErrEmptyMeterIDs        = errors.New("meter_ids_required")
	ErrActiveAssignment     = errors.New("active_assignment_exists")
	ErrInvalidTransition    = errors.New("invalid_status_transition")
	ErrNoEligibleAgents     = errors.New("no_eligible_agents")
	ErrAgentAtCapacity      = errors.New("agent_at_capacity")
	ErrBulkAssignInProgress = errors.New("bulk_assign_in_progress")
)

func ParseID(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}
