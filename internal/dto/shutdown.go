package dto

import "time"

// CreateShutdownRequest registers a planned outage.
type CreateShutdownRequest struct {
	Title        string    `json:"title" validate:"required,max=255"`
	MachineID    *string   `json:"machineId" validate:"required_without=LocationID,excluded_with=LocationID"`
	LocationID   *string   `json:"locationId" validate:"required_without=MachineID"`
	StartAt      time.Time `json:"startAt" validate:"required"`
	EndAt        time.Time `json:"endAt" validate:"required,gtfield=StartAt"`
	ShutdownType string    `json:"shutdownType" validate:"omitempty,oneof=planned emergency seasonal regulatory"`
	Description  string    `json:"description" validate:"max=4000"`
}

// UpdateShutdownRequest patches an outage that has not started.
type UpdateShutdownRequest struct {
	Title        *string    `json:"title" validate:"omitempty,max=255"`
	StartAt      *time.Time `json:"startAt"`
	EndAt        *time.Time `json:"endAt"`
	ShutdownType *string    `json:"shutdownType" validate:"omitempty,oneof=planned emergency seasonal regulatory"`
	Description  *string    `json:"description" validate:"omitempty,max=4000"`
}

// ShutdownListQuery filters shutdown listings.
type ShutdownListQuery struct {
	From       string `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To         string `form:"to" validate:"omitempty,datetime=2006-01-02"`
	MachineID  string `form:"machineId"`
	LocationID string `form:"locationId"`
	Status     string `form:"status" validate:"omitempty,oneof=scheduled in_progress completed cancelled"`
}

// PlanShutdownWorkRequest packs work orders into the outage window in order.
type PlanShutdownWorkRequest struct {
	WorkOrderIDs []string `json:"workOrderIds" validate:"required,min=1,unique,dive,required"`
}
