package planning

import (
	"sort"
	"time"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

// BlueprintOccurrence is a dated instance of a template blueprint.
type BlueprintOccurrence struct {
	StartAt         time.Time
	EndAt           time.Time
	DurationMinutes int
	TechnicianID    string
	MachineID       string
}

// ExpandBlueprints stamps blueprints onto every matching date in r. A blueprint
// with a day of week fires on that ISO weekday only; without one it fires on
// every weekday. Occurrences are ordered by start.
func (c WorkCalendar) ExpandBlueprints(blueprints []models.SlotBlueprint, r Range) ([]BlueprintOccurrence, error) {
	var out []BlueprintOccurrence
	for _, bp := range blueprints {
		startMin, err := ParseClock(bp.StartTime)
		if err != nil {
			return nil, err
		}
		if bp.DurationMinutes <= 0 {
			return nil, ErrInvalidDuration
		}
		for _, day := range c.Days(r) {
			if bp.DayOfWeek != nil {
				if ISOWeekday(day) != *bp.DayOfWeek {
					continue
				}
			} else if !IsWeekday(day) {
				continue
			}
			start := c.At(day, startMin)
			occ := BlueprintOccurrence{
				StartAt:         start,
				EndAt:           start.Add(time.Duration(bp.DurationMinutes) * time.Minute),
				DurationMinutes: bp.DurationMinutes,
			}
			if bp.TechnicianID != nil {
				occ.TechnicianID = *bp.TechnicianID
			}
			if bp.MachineID != nil {
				occ.MachineID = *bp.MachineID
			}
			out = append(out, occ)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}
