package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type MeterType string

const (
	MeterTypeDigital MeterType = "digital"
	MeterTypeAnalog  MeterType = "analog"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

type Status string

const (
	StatusActive       Status = "active"
	StatusInactive     Status = "inactive"
	StatusMaintenance  Status = "maintenance"
	StatusOutOfService Status = "out_of_service"
)

const DefaultEstimatedTime = 30

// Meter is a physical utility meter in the field.
type Meter struct {
	ID            uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	SerialNumber  string            `json:"serial_number" gorm:"type:text;not null;uniqueIndex:ux_meters_serial_number"`
	Address       string            `json:"address" gorm:"type:text;not null"`
	Latitude      *float64          `json:"latitude,omitempty"`
	Longitude     *float64          `json:"longitude,omitempty"`
	MeterType     MeterType         `json:"meter_type" gorm:"type:text;not null"`
	Priority      Priority          `json:"priority" gorm:"type:text;not null;default:medium"`
	Status        Status            `json:"status" gorm:"type:text;not null;default:active"`
	LastReading   *string           `json:"last_reading,omitempty" gorm:"type:text"`
	EstimatedTime int               `json:"estimated_time" gorm:"not null;default:30"`
	OwnerName     string            `json:"owner_name" gorm:"type:text;not null"`
	Metadata      datatypes.JSONMap `json:"metadata" gorm:"type:jsonb;not null"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"not null"`
}

func (Meter) TableName() string { return "meters" }

func (t MeterType) Valid() bool {
	switch t {
	case MeterTypeDigital, MeterTypeAnalog:
		return true
	}
	return false
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusMaintenance, StatusOutOfService:
		return true
	}
	return false
}
