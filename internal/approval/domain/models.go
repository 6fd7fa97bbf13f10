package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusUnderReview Status = "under_review"
)

type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)

// Request is an agent's proposed change to a meter, waiting for one review.
type Request struct {
	ID              uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	MeterID         uuid.UUID         `json:"meter_id" gorm:"type:uuid;not null"`
	AgentID         uuid.UUID         `json:"agent_id" gorm:"type:uuid;not null"`
	MeterData       datatypes.JSONMap `json:"meter_data" gorm:"type:jsonb;not null"`
	SubmissionNotes *string           `json:"submission_notes,omitempty"`
	Status          Status            `json:"status" gorm:"type:text;not null;default:pending"`
	ReviewerID      *string           `json:"reviewer_id,omitempty"`
	ReviewNotes     *string           `json:"review_notes,omitempty"`
	SubmittedAt     time.Time         `json:"submitted_at" gorm:"not null"`
	ReviewedAt      *time.Time        `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time         `json:"updated_at" gorm:"not null"`
}

func (Request) TableName() string { return "meter_approval_requests" }

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusUnderReview:
		return true
	}
	return false
}

// Result maps a review outcome to the status it leaves behind.
func (o Outcome) Result() (Status, bool) {
	switch o {
	case OutcomeApprove:
		return StatusApproved, true
	case OutcomeReject:
		return StatusRejected, true
	}
	return "", false
}
