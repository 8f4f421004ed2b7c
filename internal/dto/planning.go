package dto

import (
	"time"

	"github.com/noah-isme/mops-planner-api/internal/models"
	"github.com/noah-isme/mops-planner-api/internal/planning"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// DateRange is an inclusive pair of calendar dates.
type DateRange struct {
	From string `json:"from" form:"from" validate:"required,datetime=2006-01-02"`
	To   string `json:"to" form:"to" validate:"required,datetime=2006-01-02"`
}

// CalendarQuery filters the calendar view.
type CalendarQuery struct {
	DateRange
	TechnicianID string `form:"technicianId"`
	MachineID    string `form:"machineId"`
	LocationID   string `form:"locationId"`
	Status       string `form:"status" validate:"omitempty,oneof=tentative planned in_progress completed cancelled"`
}

// CalendarResponse lists slots with the conflicts among them.
type CalendarResponse struct {
	From      string                `json:"from"`
	To        string                `json:"to"`
	Slots     []models.PlanningSlot `json:"slots"`
	Conflicts []models.SlotConflict `json:"conflicts"`
}

// GanttQuery selects the Gantt grouping.
type GanttQuery struct {
	DateRange
	GroupBy string `form:"groupBy" validate:"omitempty,oneof=technician machine location"`
}

// GanttResponse holds one row per group key.
type GanttResponse struct {
	From    string           `json:"from"`
	To      string           `json:"to"`
	GroupBy planning.GroupBy `json:"groupBy"`
	Rows    []planning.Group `json:"rows"`
}

// AutoScheduleRequest schedules a batch of work orders inside the range.
type AutoScheduleRequest struct {
	WorkOrderIDs []string `json:"workOrderIds" validate:"required,min=1,unique,dive,required"`
	DateRange
}

// ScheduledItem is one slot created by a batch.
type ScheduledItem struct {
	WorkOrderID string                `json:"workOrderId"`
	Slot        models.PlanningSlot   `json:"slot"`
	Score       int                   `json:"score,omitempty"`
	Reasons     []string              `json:"reasons,omitempty"`
	Conflicts   []models.SlotConflict `json:"conflicts"`
}

// BatchResult reports per-item outcomes of a batch mutation.
type BatchResult struct {
	Scheduled         []ScheduledItem      `json:"scheduled"`
	Errors            []planning.ItemError `json:"errors"`
	OptimizationScore float64              `json:"optimizationScore"`
}

// SuggestRequest asks for ranked placements of one work order.
type SuggestRequest struct {
	WorkOrderID  string `json:"workOrderId" validate:"required"`
	TechnicianID string `json:"technicianId"`
	DateRange
}

// SuggestResponse returns the ranked options.
type SuggestResponse struct {
	WorkOrderID     string                `json:"workOrderId"`
	DurationMinutes int                   `json:"durationMinutes"`
	Options         []planning.SlotOption `json:"options"`
}

// RebalanceRequest runs the rebalancer over a range.
type RebalanceRequest struct {
	DateRange
}

// RebalanceResponse describes moves and the before/after load.
type RebalanceResponse struct {
	AlreadyBalanced bool                `json:"alreadyBalanced"`
	Message         string              `json:"message"`
	Moves           []planning.Move     `json:"moves"`
	Before          []planning.Capacity `json:"before"`
	After           []planning.Capacity `json:"after"`
}

// CapacityResponse is the team load over a range.
type CapacityResponse struct {
	From        string              `json:"from"`
	To          string              `json:"to"`
	Technicians []planning.Capacity `json:"technicians"`
	Summary     CapacitySummary     `json:"summary"`
}

// CapacitySummary aggregates team capacity.
type CapacitySummary struct {
	AvailableHours float64 `json:"availableHours"`
	PlannedHours   float64 `json:"plannedHours"`
	UtilizationPct float64 `json:"utilizationPct"`
	Overbooked     int     `json:"overbooked"`
	High           int     `json:"high"`
	Optimal        int     `json:"optimal"`
	Low            int     `json:"low"`
}

// ConflictsResponse lists conflicts in a range.
type ConflictsResponse struct {
	From      string                `json:"from"`
	To        string                `json:"to"`
	Conflicts []models.SlotConflict `json:"conflicts"`
}

// ResolveConflictRequest optionally pins the new window or technician.
type ResolveConflictRequest struct {
	StartAt      *time.Time `json:"startAt"`
	TechnicianID *string    `json:"technicianId"`
}

// SlotWithConflicts returns a written slot and any advisory conflicts.
type SlotWithConflicts struct {
	Slot      models.PlanningSlot   `json:"slot"`
	Conflicts []models.SlotConflict `json:"conflicts"`
}

// AccuracyResponse summarises plan accuracy.
type AccuracyResponse struct {
	From          string                        `json:"from"`
	To            string                        `json:"to"`
	Metrics       planning.AccuracyMetrics      `json:"metrics"`
	ByTechnician  []planning.TechnicianAccuracy `json:"byTechnician"`
	ToleranceMins int                           `json:"toleranceMinutes"`
}

// VariancesResponse lists per-slot variance records.
type VariancesResponse struct {
	From      string              `json:"from"`
	To        string              `json:"to"`
	Variances []planning.Variance `json:"variances"`
}

// ExportQuery selects the calendar export format.
type ExportQuery struct {
	DateRange
	Format string `form:"format" validate:"omitempty,oneof=csv pdf xlsx"`
}

// UnplannedWorkOrder is a work order awaiting a slot.
type UnplannedWorkOrder struct {
	models.WorkOrder
	DurationMinutes int `json:"durationMinutes"`
}
