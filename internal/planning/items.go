package planning

import "time"

// ItemCode classifies why a batch item was not scheduled.
type ItemCode string

const (
	CodeNotFound         ItemCode = "NOT_FOUND"
	CodeAlreadyScheduled ItemCode = "ALREADY_SCHEDULED"
	CodeNoAvailableSlot  ItemCode = "NO_AVAILABLE_SLOT"
	CodeMachineMismatch  ItemCode = "MACHINE_MISMATCH"
	CodeDoesNotFit       ItemCode = "DOES_NOT_FIT"
	CodeNoTechnician     ItemCode = "NO_TECHNICIAN"
	CodeInvalidItem      ItemCode = "INVALID_ITEM"
)

// ItemError is an item-level infeasibility reported next to successful results.
type ItemError struct {
	WorkOrderID string   `json:"work_order_id"`
	Reason      string   `json:"reason"`
	Code        ItemCode `json:"code"`
}

// Optimization score weights.
const (
	optimizationBase      = 70.0
	optimizationSoonBonus = 15.0
	optimizationFreeBonus = 15.0
	optimizationSoonDays  = 7
)

// CommitOutcome records how a created slot landed.
type CommitOutcome struct {
	StartAt   time.Time
	Conflicts int
}

// OptimizationScore averages 70, plus 15 for slots starting within seven days of
// now, plus 15 for slots committed without conflicts. It is 0 with no slots.
func OptimizationScore(now time.Time, outcomes []CommitOutcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	horizon := now.AddDate(0, 0, optimizationSoonDays)
	total := 0.0
	for _, o := range outcomes {
		s := optimizationBase
		if !o.StartAt.After(horizon) {
			s += optimizationSoonBonus
		}
		if o.Conflicts == 0 {
			s += optimizationFreeBonus
		}
		total += s
	}
	return Round2(total / float64(len(outcomes)))
}
