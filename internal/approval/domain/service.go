package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/smallbiznis/fieldops/pkg/db/pagination"
)

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*Request, error)
	Review(ctx context.Context, req ReviewRequest) (*Request, error)
	GetByID(ctx context.Context, id string) (*Request, error)
	ListPending(ctx context.Context) ([]Request, error)
	List(ctx context.Context, req ListRequest) (pagination.Page[Request], error)
}

type SubmitRequest struct {
	MeterID         string         `json:"meter_id"`
	AgentID         string         `json:"-"`
	MeterData       map[string]any `json:"meter_data"`
	SubmissionNotes string         `json:"submission_notes"`
}

type ReviewRequest struct {
	ID          string `json:"-"`
	Outcome     string `json:"-"`
	ReviewerID  string `json:"-"`
	ReviewNotes string `json:"review_notes"`
}

type ListRequest struct {
	pagination.Pagination
	Status  string `form:"status"`
	AgentID string `form:"agent_id"`
	MeterID string `form:"meter_id"`
}

var (
	ErrNotFound            = errors.New("not_found")
	ErrMeterNotFound       = errors.New("meter_not_found")
	ErrAgentNotFound       = errors.New("agent_not_found")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidMeterID      = errors.New("invalid_meter_id")
	ErrInvalidAgentID      = errors.New("invalid_agent_id")
	ErrInvalidReviewer     = errors.New("invalid_reviewer")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidOutcome      = errors.New("invalid_outcome")
	ErrEmptyMeterData      = errors.New("meter_data_required")
	ErrReviewNotesRequired = errors.New("review_notes_required")
	ErrNotPending          = errors.New("request_not_pending")
)

func ParseID(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}
