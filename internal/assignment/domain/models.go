package domain

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusOverdue    Status = "overdue"
)

// Skip reasons reported by bulk assignment.
const (
	SkipActiveAssignment   = "active_assignment"
	SkipDuplicateInRequest = "duplicate_in_request"
	SkipNoCapacity         = "no_capacity"
)

// Assignment hands one meter to one agent for a field visit.
// CompletedAt is written once, on the first entry into a terminal status.
type Assignment struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	MeterID         uuid.UUID  `json:"meter_id" gorm:"type:uuid;not null"`
	AgentID         uuid.UUID  `json:"agent_id" gorm:"type:uuid;not null"`
	AssignedBy      string     `json:"assigned_by" gorm:"type:text;not null"`
	Status          Status     `json:"status" gorm:"type:text;not null;default:pending"`
	EstimatedTime   int        `json:"estimated_time" gorm:"not null"`
	AssignedAt      time.Time  `json:"assigned_at" gorm:"not null"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CompletionNotes *string    `json:"completion_notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"not null"`
}

func (Assignment) TableName() string { return "meter_assignments" }

// Skipped names a meter that bulk assignment left untouched.
type Skipped struct {
	MeterID uuid.UUID `json:"meter_id"`
	Reason  string    `json:"reason"`
}

type BulkResult struct {
	CreatedCount int          `json:"created_count"`
	Assignments  []Assignment `json:"assignments"`
	Skipped      []Skipped    `json:"skipped"`
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled, StatusOverdue:
		return true
	}
	return false
}

// Active statuses hold the meter; at most one active assignment exists per meter.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusInProgress
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusInProgress: true,
		StatusCompleted:  true,
		StatusCancelled:  true,
		StatusOverdue:    true,
	},
	StatusInProgress: {
		StatusCompleted: true,
		StatusCancelled: true,
		StatusOverdue:   true,
	},
	StatusOverdue: {
		StatusInProgress: true,
		StatusCompleted:  true,
		StatusCancelled:  true,
	},
}

// CanTransition reports whether an assignment may move from one status to
// another. Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return transitions[from][to]
}
