package dto

import "time"

// CreateSlotRequest creates a slot manually.
type CreateSlotRequest struct {
	WorkOrderID  string    `json:"workOrderId" validate:"required"`
	TechnicianID string    `json:"technicianId" validate:"required"`
	MachineID    string    `json:"machineId"`
	StartAt      time.Time `json:"startAt" validate:"required"`
	EndAt        time.Time `json:"endAt" validate:"required,gtfield=StartAt"`
	Status       string    `json:"status" validate:"omitempty,oneof=tentative planned"`
	Source       string    `json:"source" validate:"omitempty,oneof=manual auto_pm shutdown recurring"`
	Notes        string    `json:"notes" validate:"max=2000"`
	Color        string    `json:"color" validate:"omitempty,hexcolor"`
}

// UpdateSlotRequest patches a slot. Nil fields are left as they are.
type UpdateSlotRequest struct {
	TechnicianID *string    `json:"technicianId"`
	MachineID    *string    `json:"machineId"`
	StartAt      *time.Time `json:"startAt"`
	EndAt        *time.Time `json:"endAt"`
	Notes        *string    `json:"notes" validate:"omitempty,max=2000"`
	Color        *string    `json:"color" validate:"omitempty,hexcolor"`
}

// BulkUpdateSlotItem is one entry of a bulk update.
type BulkUpdateSlotItem struct {
	ID string `json:"id" validate:"required"`
	UpdateSlotRequest
}

// BulkCreateSlotsRequest creates several slots atomically.
type BulkCreateSlotsRequest struct {
	Slots []CreateSlotRequest `json:"slots" validate:"required,min=1,dive"`
}

// BulkUpdateSlotsRequest updates several slots atomically.
type BulkUpdateSlotsRequest struct {
	Slots []BulkUpdateSlotItem `json:"slots" validate:"required,min=1,dive"`
}

// SlotStatusRequest transitions a slot.
type SlotStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=tentative planned in_progress completed cancelled"`
}

// SlotListQuery filters slot listings.
type SlotListQuery struct {
	DateRange
	TechnicianID string `form:"technicianId"`
	MachineID    string `form:"machineId"`
	WorkOrderID  string `form:"workOrderId"`
	Status       string `form:"status" validate:"omitempty,oneof=tentative planned in_progress completed cancelled"`
}

// BulkSlotsResponse reports a bulk write.
type BulkSlotsResponse struct {
	Slots  []SlotWithConflicts `json:"slots"`
	Errors []BulkItemError     `json:"errors"`
}

// BulkItemError identifies a rejected bulk entry by index.
type BulkItemError struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
	Code   string `json:"code"`
}
