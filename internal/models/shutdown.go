package models

import "time"

// ShutdownStatus is the lifecycle state of a planned outage.
type ShutdownStatus string

const (
	ShutdownStatusScheduled  ShutdownStatus = "scheduled"
	ShutdownStatusInProgress ShutdownStatus = "in_progress"
	ShutdownStatusCompleted  ShutdownStatus = "completed"
	ShutdownStatusCancelled  ShutdownStatus = "cancelled"
)

// Valid reports whether the status is a known value.
func (s ShutdownStatus) Valid() bool {
	switch s {
	case ShutdownStatusScheduled, ShutdownStatusInProgress, ShutdownStatusCompleted, ShutdownStatusCancelled:
		return true
	}
	return false
}

// Plannable reports whether work may still be packed into the shutdown.
func (s ShutdownStatus) Plannable() bool {
	switch s {
	case ShutdownStatusScheduled, ShutdownStatusInProgress:
		return true
	case ShutdownStatusCompleted, ShutdownStatusCancelled:
		return false
	}
	return false
}

// CanTransition reports whether the lifecycle allows moving to next.
func (s ShutdownStatus) CanTransition(next ShutdownStatus) bool {
	switch s {
	case ShutdownStatusScheduled:
		return next == ShutdownStatusInProgress || next == ShutdownStatusCancelled
	case ShutdownStatusInProgress:
		return next == ShutdownStatusCompleted || next == ShutdownStatusCancelled
	case ShutdownStatusCompleted, ShutdownStatusCancelled:
		return false
	}
	return false
}

// ShutdownType categorises the outage.
type ShutdownType string

const (
	ShutdownTypePlanned    ShutdownType = "planned"
	ShutdownTypeEmergency  ShutdownType = "emergency"
	ShutdownTypeSeasonal   ShutdownType = "seasonal"
	ShutdownTypeRegulatory ShutdownType = "regulatory"
)

// Valid reports whether the type is a known value.
func (t ShutdownType) Valid() bool {
	switch t {
	case ShutdownTypePlanned, ShutdownTypeEmergency, ShutdownTypeSeasonal, ShutdownTypeRegulatory:
		return true
	}
	return false
}

// PlannedShutdown is an outage window on one machine or a whole location.
// Exactly one of MachineID and LocationID is set.
type PlannedShutdown struct {
	ID           string         `db:"id" json:"id"`
	TenantID     string         `db:"tenant_id" json:"tenant_id"`
	Title        string         `db:"title" json:"title"`
	MachineID    *string        `db:"machine_id" json:"machine_id,omitempty"`
	LocationID   *string        `db:"location_id" json:"location_id,omitempty"`
	StartAt      time.Time      `db:"start_at" json:"start_at"`
	EndAt        time.Time      `db:"end_at" json:"end_at"`
	Status       ShutdownStatus `db:"status" json:"status"`
	ShutdownType ShutdownType   `db:"shutdown_type" json:"shutdown_type"`
	Description  string         `db:"description" json:"description"`
	CreatedBy    string         `db:"created_by" json:"created_by"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// DurationMinutes returns the length of the outage window.
func (s PlannedShutdown) DurationMinutes() int {
	return int(s.EndAt.Sub(s.StartAt) / time.Minute)
}

// ShutdownFilter narrows shutdown listings.
type ShutdownFilter struct {
	From       time.Time
	To         time.Time
	MachineID  string
	LocationID string
	Statuses   []ShutdownStatus
}
