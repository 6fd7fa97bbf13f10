package domain

import (
	"time"

	"github.com/google/uuid"
)

// Reading is a single captured register value for a meter.
type Reading struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	MeterID      uuid.UUID  `json:"meter_id" gorm:"type:uuid;not null"`
	AgentID      *uuid.UUID `json:"agent_id,omitempty" gorm:"type:uuid"`
	AssignmentID *uuid.UUID `json:"assignment_id,omitempty" gorm:"type:uuid"`
	ReadingValue float64    `json:"reading_value" gorm:"not null"`
	ReadingDate  time.Time  `json:"reading_date" gorm:"not null"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
	IsVerified   bool       `json:"is_verified" gorm:"not null;default:false"`
	VerifiedBy   *string    `json:"verified_by,omitempty"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"not null"`
}

func (Reading) TableName() string { return "meter_readings" }
