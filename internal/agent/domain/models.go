package domain

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
	StatusOffline   Status = "offline"
	StatusOnBreak   Status = "on_break"
)

const DefaultMaxLoad = 10

// Agent is a field worker profile bound to an external user account.
// CurrentLoad counts assignments opened for the agent and not yet released.
type Agent struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID      string    `json:"user_id" gorm:"type:text;not null;uniqueIndex:ux_agents_user_id"`
	DisplayName string    `json:"display_name" gorm:"type:text;not null"`
	CurrentLoad int       `json:"current_load" gorm:"not null;default:0"`
	MaxLoad     int       `json:"max_load" gorm:"not null;default:10"`
	Status      Status    `json:"status" gorm:"type:text;not null;default:available"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"not null"`
}

func (Agent) TableName() string { return "agents" }

// Stats summarises an agent's assignment history. SuccessRate is the
// completed share of all assignments, in percent.
type Stats struct {
	AgentID                  uuid.UUID `json:"agent_id"`
	TotalAssignments         int64     `json:"total_assignments"`
	CompletedAssignments     int64     `json:"completed_assignments"`
	ActiveAssignments        int64     `json:"active_assignments"`
	TotalReadings            int64     `json:"total_readings"`
	AverageCompletionMinutes *float64  `json:"average_completion_minutes"`
	SuccessRate              float64   `json:"success_rate"`
}

// AssignmentCounts is the raw aggregate behind Stats.
type AssignmentCounts struct {
	Total     int64
	Completed int64
	Active    int64
}

// CompletionSpan is one completed assignment's assigned/completed pair.
type CompletionSpan struct {
	AssignedAt  time.Time
	CompletedAt time.Time
}

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBusy, StatusOffline, StatusOnBreak:
		return true
	}
	return false
}

// HasCapacity reports whether the agent can take another assignment.
func (a Agent) HasCapacity() bool {
	return a.CurrentLoad < a.MaxLoad
}
