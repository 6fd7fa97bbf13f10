package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/smallbiznis/fieldops/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Meter, error)
	GetByID(ctx context.Context, id string) (*Meter, error)
	List(ctx context.Context, req ListRequest) (pagination.Page[Meter], error)
	ListUnassigned(ctx context.Context, req ListRequest) (pagination.Page[Meter], error)
	Update(ctx context.Context, req UpdateRequest) (*Meter, error)
	Delete(ctx context.Context, id string) error
}

type CreateRequest struct {
	SerialNumber   string         `json:"serial_number"`
	Address        string         `json:"address"`
	Latitude       *float64       `json:"latitude"`
	Longitude      *float64       `json:"longitude"`
	MeterType      string         `json:"meter_type"`
	Priority       string         `json:"priority"`
	Status         string         `json:"status"`
	EstimatedTime  *int           `json:"estimated_time"`
	OwnerName      string         `json:"owner_name"`
	InitialReading *string        `json:"initial_reading"`
	Metadata       map[string]any `json:"metadata"`
}

type UpdateRequest struct {
	ID            string         `json:"-"`
	Address       *string        `json:"address,omitempty"`
	Latitude      *float64       `json:"latitude,omitempty"`
	Longitude     *float64       `json:"longitude,omitempty"`
	MeterType     *string        `json:"meter_type,omitempty"`
	Priority      *string        `json:"priority,omitempty"`
	Status        *string        `json:"status,omitempty"`
	EstimatedTime *int           `json:"estimated_time,omitempty"`
	OwnerName     *string        `json:"owner_name,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type ListRequest struct {
	pagination.Pagination
	Status    string `form:"status"`
	MeterType string `form:"meter_type"`
	Priority  string `form:"priority"`
	Search    string `form:"search"`
	Assigned  *bool  `form:"assigned"`
}

var (
	ErrNotFound             = errors.New("not_found")
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidSerialNumber  = errors.New("invalid_serial_number")
	ErrInvalidMeterType     = errors.New("invalid_meter_type")
	ErrInvalidPriority      = errors.New("invalid_priority")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidEstimatedTime = errors.New("invalid_estimated_time")
	ErrInvalidCoordinates   = errors.New("invalid_coordinates")
	ErrSerialNumberTaken    = errors.New("serial_number_taken")
	ErrHasActiveAssignment  = errors.New("meter_has_active_assignment")
	ErrHasHistory           = errors.New("meter_has_history")
)

func ParseID(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}

// ValidCoordinates reports whether a latitude/longitude pair is either
// fully absent or a point on the globe.
func ValidCoordinates(lat, lng *float64) bool {
	if lat == nil && lng == nil {
		return true
	}
	if lat == nil || lng == nil {
		return false
	}
	return *lat >= -90 && *lat <= 90 && *lng >= -180 && *lng <= 180
}
