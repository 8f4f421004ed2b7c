package planning

import (
	"sort"
	"time"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

// Rebalance thresholds in percent utilization.
const (
	RebalanceOverPct   = 100.0
	RebalanceUnderPct  = 70.0
	RebalanceTargetPct = 85.0
)

// TechnicianLoad is the running load the rebalancer mutates as it moves slots.
type TechnicianLoad struct {
	TechnicianID     string
	AvailableMinutes float64
	PlannedMinutes   float64
}

// Utilization returns the current load percentage.
func (l TechnicianLoad) Utilization() float64 {
	return UtilizationPct(l.PlannedMinutes, l.AvailableMinutes)
}

// Move reassigns one slot to another technician; the window is unchanged.
type Move struct {
	SlotID           string    `json:"slot_id"`
	WorkOrderID      string    `json:"work_order_id"`
	FromTechnicianID string    `json:"from_technician_id"`
	ToTechnicianID   string    `json:"to_technician_id"`
	StartAt          time.Time `json:"start_at"`
	EndAt            time.Time `json:"end_at"`
	DurationMinutes  int       `json:"duration_minutes"`
}

// RebalancePlan is the outcome of PlanRebalance.
type RebalancePlan struct {
	AlreadyBalanced bool
	Over            []string
	Under           []string
	Moves           []Move
}

// PlanRebalance moves movable slots from overloaded technicians to underloaded ones.
// Overloaded technicians give up their latest slots first until their excess over
// the target is spent. A receiver must have no conflicting slot and must still be
// below the target. busy is updated in place so later decisions see earlier moves.
func PlanRebalance(loads []TechnicianLoad, slots []models.PlanningSlot, busy *IntervalIndex) RebalancePlan {
	var over, under []*TechnicianLoad
	for i := range loads {
		l := &loads[i]
		switch u := l.Utilization(); {
		case u > RebalanceOverPct:
			over = append(over, l)
		case u < RebalanceUnderPct:
			under = append(under, l)
		}
	}
	plan := RebalancePlan{}
	for _, l := range over {
		plan.Over = append(plan.Over, l.TechnicianID)
	}
	for _, l := range under {
		plan.Under = append(plan.Under, l.TechnicianID)
	}
	if len(over) == 0 || len(under) == 0 {
		plan.AlreadyBalanced = true
		return plan
	}
	if busy == nil {
		busy = NewIntervalIndex(models.DimensionTechnician, slots)
	}

	sort.SliceStable(over, func(i, j int) bool { return over[i].Utilization() > over[j].Utilization() })
	sort.SliceStable(under, func(i, j int) bool { return under[i].Utilization() < under[j].Utilization() })

	for _, donor := range over {
		excess := (donor.Utilization() - RebalanceTargetPct) * donor.AvailableMinutes / 100
		for _, slot := range movableLatestFirst(slots, donor.TechnicianID) {
			if excess <= 0 {
				break
			}
			for _, receiver := range under {
				if receiver.Utilization() >= RebalanceTargetPct {
					continue
				}
				if len(busy.Overlapping(receiver.TechnicianID, slot.StartAt, slot.EndAt, slot.ID)) > 0 {
					continue
				}
				moved := slot
				moved.TechnicianID = receiver.TechnicianID
				busy.Remove(slot.ID)
				busy.Add(moved)

				mins := float64(slot.DurationMinutes)
				donor.PlannedMinutes -= mins
				receiver.PlannedMinutes += mins
				excess -= mins
				plan.Moves = append(plan.Moves, Move{
					SlotID:           slot.ID,
					WorkOrderID:      slot.WorkOrderID,
					FromTechnicianID: donor.TechnicianID,
					ToTechnicianID:   receiver.TechnicianID,
					StartAt:          slot.StartAt,
					EndAt:            slot.EndAt,
					DurationMinutes:  slot.DurationMinutes,
				})
				break
			}
		}
	}
	return plan
}

func movableLatestFirst(slots []models.PlanningSlot, technicianID string) []models.PlanningSlot {
	var out []models.PlanningSlot
	for _, s := range slots {
		if s.TechnicianID == technicianID && s.Status.Movable() {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartAt.After(out[j].StartAt) })
	return out
}
