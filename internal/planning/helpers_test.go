package planning

import (
	"time"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

// 2024-03-04 is a Monday.
var monday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
}

func slot(id, tech, machine string, start, end time.Time) models.PlanningSlot {
	s := models.PlanningSlot{
		ID:           id,
		TechnicianID: tech,
		MachineID:    machine,
		Status:       models.SlotStatusPlanned,
		Source:       models.SlotSourceManual,
	}
	s.SetWindow(start, end)
	return s
}

func strPtr(v string) *string { return &v }

func intPtr(v int) *int { return &v }
