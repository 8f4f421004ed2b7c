package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// SlotBlueprint describes one slot a template stamps out. DayOfWeek uses ISO
// numbering (1 = Monday); nil means every weekday.
type SlotBlueprint struct {
	DayOfWeek       *int    `json:"day_of_week,omitempty" validate:"omitempty,min=1,max=7"`
	StartTime       string  `json:"start_time" validate:"required"`
	DurationMinutes int     `json:"duration_minutes" validate:"required,min=1,max=1440"`
	TechnicianID    *string `json:"technician_id,omitempty"`
	MachineID       *string `json:"machine_id,omitempty"`
}

// PlanningTemplate is a reusable generator of planning slots.
type PlanningTemplate struct {
	ID          string         `db:"id" json:"id"`
	TenantID    string         `db:"tenant_id" json:"tenant_id"`
	Name        string         `db:"name" json:"name"`
	Description string         `db:"description" json:"description"`
	Active      bool           `db:"active" json:"active"`
	Blueprints  types.JSONText `db:"blueprints" json:"blueprints"`
	CreatedBy   string         `db:"created_by" json:"created_by"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// DecodeBlueprints unmarshals the stored blueprint list.
func (t PlanningTemplate) DecodeBlueprints() ([]SlotBlueprint, error) {
	var items []SlotBlueprint
	if len(t.Blueprints) == 0 {
		return items, nil
	}
	if err := t.Blueprints.Unmarshal(&items); err != nil {
		return nil, err
	}
	return items, nil
}
