package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/fieldops/pkg/db/pagination"
)

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*Reading, error)
	Verify(ctx context.Context, req VerifyRequest) (*Reading, error)
	Update(ctx context.Context, req UpdateRequest) (*Reading, error)
	GetByID(ctx context.Context, id string) (*Reading, error)
	List(ctx context.Context, req ListRequest) (pagination.Page[Reading], error)
	ListByMeter(ctx context.Context, req ListRequest) (pagination.Page[Reading], error)
}

type SubmitRequest struct {
	MeterID      string     `json:"meter_id"`
	AgentID      string     `json:"-"`
	AssignmentID string     `json:"assignment_id"`
	ReadingValue *float64   `json:"reading_value"`
	ReadingDate  *time.Time `json:"reading_date"`
	Latitude     *float64   `json:"latitude"`
	Longitude    *float64   `json:"longitude"`
	Notes        string     `json:"notes"`
}

type VerifyRequest struct {
	ID         string `json:"-"`
	VerifierID string `json:"-"`
}

// UpdateRequest corrects a stored reading. Nil fields are left untouched.
type UpdateRequest struct {
	ID           string     `json:"-"`
	ActorID      string     `json:"-"`
	ReadingValue *float64   `json:"reading_value,omitempty"`
	ReadingDate  *time.Time `json:"reading_date,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
}

type ListRequest struct {
	pagination.Pagination
	MeterID  string `form:"meter_id"`
	AgentID  string `form:"agent_id"`
	Verified *bool  `form:"verified"`
}

var (
	ErrNotFound            = errors.New("not_found")
	ErrMeterNotFound       = errors.New("meter_not_found")
	ErrAgentNotFound       = errors.New("agent_not_found")
	ErrAssignmentNotFound  = errors.New("assignment_not_found")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidMeterID      = errors.New("invalid_meter_id")
	ErrInvalidAgentID      = errors.New("invalid_agent_id")
	ErrInvalidAssignmentID = errors.New("invalid_assignment_id")
	ErrInvalidValue        = errors.New("invalid_reading_value")
	ErrInvalidCoordinates  = errors.New("invalid_coordinates")
	ErrInvalidVerifier     = errors.New("invalid_verifier")
	ErrAssignmentMismatch  = errors.New("assignment_meter_mismatch")
	ErrAlreadyVerified     = errors.New("reading_already_verified")
	ErrEmptyUpdate         = errors.New("empty_reading_update")
)

func ParseID(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}
