package planning

import (
	"time"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

// PackItem is one work order to fit into a shutdown window.
type PackItem struct {
	WorkOrderID          string
	MachineID            string
	MachineLocationID    string
	DurationMinutes      int
	AssignedTechnicianID string
}

// Placement is a concrete window for a work order.
type Placement struct {
	WorkOrderID     string
	TechnicianID    string
	MachineID       string
	StartAt         time.Time
	EndAt           time.Time
	DurationMinutes int
}

// PackResult is the outcome of one item: a placement or an error entry.
type PackResult struct {
	Placement *Placement
	Error     *ItemError
}

// PackInput describes a shutdown window and the resources around it.
type PackInput struct {
	Shutdown    models.PlannedShutdown
	Cursor      time.Time
	Items       []PackItem
	Technicians []models.Technician
	Busy        *IntervalIndex
}

// PackShutdown places items back to back from the cursor in the given order.
// Items that do not fit are reported and do not advance the cursor. An item with
// an assigned technician keeps it; otherwise the first free technician is used.
func PackShutdown(in PackInput) []PackResult {
	busy := in.Busy
	if busy == nil {
		busy = NewIntervalIndex(models.DimensionTechnician, nil)
	}
	cursor := in.Cursor
	if cursor.Before(in.Shutdown.StartAt) {
		cursor = in.Shutdown.StartAt
	}
	results := make([]PackResult, 0, len(in.Items))
	for _, item := range in.Items {
		if reason, bad := scopeMismatch(in.Shutdown, item); bad {
			results = append(results, PackResult{Error: &ItemError{WorkOrderID: item.WorkOrderID, Reason: reason, Code: CodeMachineMismatch}})
			continue
		}
		duration := time.Duration(DefaultDuration(item.DurationMinutes)) * time.Minute
		end := cursor.Add(duration)
		if end.After(in.Shutdown.EndAt) {
			results = append(results, PackResult{Error: &ItemError{WorkOrderID: item.WorkOrderID, Reason: "work doesn't fit in the remaining shutdown window", Code: CodeDoesNotFit}})
			continue
		}
		techID := item.AssignedTechnicianID
		if techID == "" {
			for _, t := range in.Technicians {
				if len(busy.Overlapping(t.ID, cursor, end, "")) == 0 {
					techID = t.ID
					break
				}
			}
		}
		if techID == "" {
			results = append(results, PackResult{Error: &ItemError{WorkOrderID: item.WorkOrderID, Reason: "no technician available during the shutdown window", Code: CodeNoTechnician}})
			continue
		}
		p := &Placement{
			WorkOrderID:     item.WorkOrderID,
			TechnicianID:    techID,
			MachineID:       item.MachineID,
			StartAt:         cursor,
			EndAt:           end,
			DurationMinutes: int(duration / time.Minute),
		}
		busy.Add(models.PlanningSlot{ID: "pending:" + item.WorkOrderID, TechnicianID: techID, MachineID: item.MachineID, StartAt: cursor, EndAt: end, Status: models.SlotStatusTentative})
		results = append(results, PackResult{Placement: p})
		cursor = end
	}
	return results
}

func scopeMismatch(sd models.PlannedShutdown, item PackItem) (string, bool) {
	if sd.MachineID != nil && *sd.MachineID != item.MachineID {
		return "work order machine is not covered by this shutdown", true
	}
	if sd.LocationID != nil && *sd.LocationID != item.MachineLocationID {
		return "work order machine is outside the shutdown location", true
	}
	return "", false
}
