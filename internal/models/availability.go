package models

import "time"

// AvailabilityType classifies a technician calendar exception.
type AvailabilityType string

const (
	AvailabilityAvailable AvailabilityType = "available"
	AvailabilityVacation  AvailabilityType = "vacation"
	AvailabilitySick      AvailabilityType = "sick"
	AvailabilityTraining  AvailabilityType = "training"
)

// Valid reports whether the type is a known value.
func (t AvailabilityType) Valid() bool {
	switch t {
	case AvailabilityAvailable, AvailabilityVacation, AvailabilitySick, AvailabilityTraining:
		return true
	}
	return false
}

// Unavailable reports whether the exception removes working time.
func (t AvailabilityType) Unavailable() bool {
	switch t {
	case AvailabilityVacation, AvailabilitySick, AvailabilityTraining:
		return true
	case AvailabilityAvailable:
		return false
	}
	return false
}

// TechnicianAvailability is a date-scoped exception to the default work calendar.
// StartTime/EndTime are "HH:MM"; when absent the exception covers the whole day.
type TechnicianAvailability struct {
	ID           string           `db:"id" json:"id"`
	TenantID     string           `db:"tenant_id" json:"tenant_id"`
	TechnicianID string           `db:"technician_id" json:"technician_id"`
	Date         time.Time        `db:"date" json:"date"`
	StartTime    *string          `db:"start_time" json:"start_time,omitempty"`
	EndTime      *string          `db:"end_time" json:"end_time,omitempty"`
	Type         AvailabilityType `db:"type" json:"type"`
	Notes        string           `db:"notes" json:"notes"`
	CreatedBy    string           `db:"created_by" json:"created_by"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// AvailabilityFilter narrows exception listings.
type AvailabilityFilter struct {
	From         time.Time
	To           time.Time
	TechnicianID string
	Types        []AvailabilityType
}
