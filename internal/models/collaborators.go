package models

import "time"

// WorkOrderStatus mirrors the states exposed by the work-order collaborator.
type WorkOrderStatus string

const (
	WorkOrderStatusOpen       WorkOrderStatus = "open"
	WorkOrderStatusScheduled  WorkOrderStatus = "scheduled"
	WorkOrderStatusInProgress WorkOrderStatus = "in_progress"
	WorkOrderStatusCompleted  WorkOrderStatus = "completed"
	WorkOrderStatusCancelled  WorkOrderStatus = "cancelled"
)

// WorkOrder is the slice of the work-order record the planner reads and writes.
type WorkOrder struct {
	ID                     string          `db:"id" json:"id"`
	TenantID               string          `db:"tenant_id" json:"tenant_id"`
	Title                  string          `db:"title" json:"title"`
	MachineID              string          `db:"machine_id" json:"machine_id"`
	AssignedTechnicianID   *string         `db:"assigned_technician_id" json:"assigned_technician_id,omitempty"`
	EstimatedMinutes       *int            `db:"estimated_minutes" json:"estimated_minutes,omitempty"`
	Priority               string          `db:"priority" json:"priority"`
	Status                 WorkOrderStatus `db:"status" json:"status"`
	IsPlanned              bool            `db:"is_planned" json:"is_planned"`
	PlannedStart           *time.Time      `db:"planned_start" json:"planned_start,omitempty"`
	PlannedEnd             *time.Time      `db:"planned_end" json:"planned_end,omitempty"`
	PlannedDurationMinutes *int            `db:"planned_duration_minutes" json:"planned_duration_minutes,omitempty"`
	ActualStart            *time.Time      `db:"actual_start" json:"actual_start,omitempty"`
	ActualEnd              *time.Time      `db:"actual_end" json:"actual_end,omitempty"`
}

// DurationOr returns the estimated duration or the fallback when unset.
func (w WorkOrder) DurationOr(fallback int) int {
	if w.EstimatedMinutes != nil && *w.EstimatedMinutes > 0 {
		return *w.EstimatedMinutes
	}
	return fallback
}

// WorkOrderPlan is written back after a slot is committed.
type WorkOrderPlan struct {
	WorkOrderID     string
	PlannedStart    time.Time
	PlannedEnd      time.Time
	DurationMinutes int
}

// TechnicianRole enumerates user roles that can carry out maintenance work.
type TechnicianRole string

const (
	RoleTechnician       TechnicianRole = "TECHNICIAN"
	RoleSeniorTechnician TechnicianRole = "SENIOR_TECHNICIAN"
	RoleSupervisor       TechnicianRole = "SUPERVISOR"
)

// TechnicianRoles lists roles treated as schedulable technicians.
func TechnicianRoles() []string {
	return []string{string(RoleTechnician), string(RoleSeniorTechnician), string(RoleSupervisor)}
}

// Technician is the read-only technician record.
type Technician struct {
	ID       string `db:"id" json:"id"`
	TenantID string `db:"tenant_id" json:"tenant_id"`
	FullName string `db:"full_name" json:"full_name"`
	Role     string `db:"role" json:"role"`
}

// Machine is the read-only machine record.
type Machine struct {
	ID         string  `db:"id" json:"id"`
	TenantID   string  `db:"tenant_id" json:"tenant_id"`
	Name       string  `db:"name" json:"name"`
	LocationID *string `db:"location_id" json:"location_id,omitempty"`
}
