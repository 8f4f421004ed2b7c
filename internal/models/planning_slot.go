package models

import "time"

// SlotStatus is the lifecycle state of a planning slot.
type SlotStatus string

const (
	SlotStatusTentative  SlotStatus = "tentative"
	SlotStatusPlanned    SlotStatus = "planned"
	SlotStatusInProgress SlotStatus = "in_progress"
	SlotStatusCompleted  SlotStatus = "completed"
	SlotStatusCancelled  SlotStatus = "cancelled"
)

// Valid reports whether the status is a known value.
func (s SlotStatus) Valid() bool {
	switch s {
	case SlotStatusTentative, SlotStatusPlanned, SlotStatusInProgress, SlotStatusCompleted, SlotStatusCancelled:
		return true
	}
	return false
}

// Active slots consume technician and machine time.
func (s SlotStatus) Active() bool {
	switch s {
	case SlotStatusTentative, SlotStatusPlanned, SlotStatusInProgress:
		return true
	case SlotStatusCompleted, SlotStatusCancelled:
		return false
	}
	return false
}

// Movable slots may be reassigned by the rebalancer.
func (s SlotStatus) Movable() bool {
	switch s {
	case SlotStatusTentative, SlotStatusPlanned:
		return true
	case SlotStatusInProgress, SlotStatusCompleted, SlotStatusCancelled:
		return false
	}
	return false
}

// CanTransition reports whether a slot may move from s to next.
func (s SlotStatus) CanTransition(next SlotStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case SlotStatusTentative:
		return next == SlotStatusPlanned || next == SlotStatusInProgress || next == SlotStatusCancelled
	case SlotStatusPlanned:
		return next == SlotStatusTentative || next == SlotStatusInProgress || next == SlotStatusCompleted || next == SlotStatusCancelled
	case SlotStatusInProgress:
		return next == SlotStatusCompleted || next == SlotStatusCancelled
	case SlotStatusCompleted, SlotStatusCancelled:
		return false
	}
	return false
}

// ActiveSlotStatuses lists the statuses that occupy time.
func ActiveSlotStatuses() []string {
	return []string{string(SlotStatusTentative), string(SlotStatusPlanned), string(SlotStatusInProgress)}
}

// SlotSource records which flow produced a slot.
type SlotSource string

const (
	SlotSourceManual    SlotSource = "manual"
	SlotSourceAutoPM    SlotSource = "auto_pm"
	SlotSourceShutdown  SlotSource = "shutdown"
	SlotSourceRecurring SlotSource = "recurring"
)

// Valid reports whether the source is a known value.
func (s SlotSource) Valid() bool {
	switch s {
	case SlotSourceManual, SlotSourceAutoPM, SlotSourceShutdown, SlotSourceRecurring:
		return true
	}
	return false
}

// PlanningSlot assigns one work order to a technician, machine and time window.
type PlanningSlot struct {
	ID              string     `db:"id" json:"id"`
	TenantID        string     `db:"tenant_id" json:"tenant_id"`
	WorkOrderID     string     `db:"work_order_id" json:"work_order_id"`
	TechnicianID    string     `db:"technician_id" json:"technician_id"`
	MachineID       string     `db:"machine_id" json:"machine_id"`
	LocationID      *string    `db:"location_id" json:"location_id,omitempty"`
	ShutdownID      *string    `db:"shutdown_id" json:"shutdown_id,omitempty"`
	TemplateID      *string    `db:"template_id" json:"template_id,omitempty"`
	StartAt         time.Time  `db:"start_at" json:"start_at"`
	EndAt           time.Time  `db:"end_at" json:"end_at"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	Status          SlotStatus `db:"status" json:"status"`
	Source          SlotSource `db:"source" json:"source"`
	Notes           string     `db:"notes" json:"notes"`
	Color           string     `db:"color" json:"color"`
	CreatedBy       string     `db:"created_by" json:"created_by"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// SetWindow updates start/end and keeps the duration invariant.
func (p *PlanningSlot) SetWindow(start, end time.Time) {
	p.StartAt = start
	p.EndAt = end
	p.DurationMinutes = int(end.Sub(start) / time.Minute)
}

// Overlaps reports half-open interval overlap with [start, end).
func (p PlanningSlot) Overlaps(start, end time.Time) bool {
	return p.StartAt.Before(end) && p.EndAt.After(start)
}

// SlotFilter narrows slot listings. From/To bound an overlapping window.
type SlotFilter struct {
	From         time.Time
	To           time.Time
	TechnicianID string
	MachineID    string
	LocationID   string
	WorkOrderID  string
	ShutdownID   string
	Statuses     []SlotStatus
	Sources      []SlotSource
	ActiveOnly   bool
}

// SlotConflict describes an existing slot colliding with a candidate.
type SlotConflict struct {
	SlotID        string    `json:"slot_id"`
	ConflictingID string    `json:"conflicting_id"`
	Dimension     Dimension `json:"dimension"`
	DimensionID   string    `json:"dimension_id"`
	WorkOrderID   string    `json:"work_order_id"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	OverlapMins   int       `json:"overlap_minutes"`
}

// Dimension names the resource two slots compete for.
type Dimension string

const (
	DimensionTechnician Dimension = "technician"
	DimensionMachine    Dimension = "machine"
)

// SlotActual is a completed slot joined with its work order's actual times.
type SlotActual struct {
	SlotID          string     `db:"slot_id"`
	WorkOrderID     string     `db:"work_order_id"`
	TechnicianID    string     `db:"technician_id"`
	StartAt         time.Time  `db:"start_at"`
	EndAt           time.Time  `db:"end_at"`
	DurationMinutes int        `db:"duration_minutes"`
	ActualStart     *time.Time `db:"actual_start"`
	ActualEnd       *time.Time `db:"actual_end"`
}
