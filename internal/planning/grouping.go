package planning

import (
	"sort"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

// GroupBy selects the Gantt row dimension.
type GroupBy string

const (
	GroupByTechnician GroupBy = "technician"
	GroupByMachine    GroupBy = "machine"
	GroupByLocation   GroupBy = "location"
)

// UnassignedGroup labels slots without a value for the grouping dimension.
const UnassignedGroup = "unassigned"

// Valid reports whether g is a known grouping.
func (g GroupBy) Valid() bool {
	switch g {
	case GroupByTechnician, GroupByMachine, GroupByLocation:
		return true
	}
	return false
}

// GroupKeyFunc derives a row key for a slot.
type GroupKeyFunc func(models.PlanningSlot) string

// KeyFunc returns the strategy for g.
func (g GroupBy) KeyFunc() GroupKeyFunc {
	switch g {
	case GroupByMachine:
		return func(s models.PlanningSlot) string { return s.MachineID }
	case GroupByLocation:
		return func(s models.PlanningSlot) string {
			if s.LocationID == nil || *s.LocationID == "" {
				return UnassignedGroup
			}
			return *s.LocationID
		}
	case GroupByTechnician:
		return func(s models.PlanningSlot) string { return s.TechnicianID }
	}
	return func(s models.PlanningSlot) string { return s.TechnicianID }
}

// Group is one Gantt row.
type Group struct {
	Key   string                `json:"key"`
	Label string                `json:"label"`
	Slots []models.PlanningSlot `json:"slots"`
}

// GroupSlots buckets slots by key, rows ordered by key and slots by start.
func GroupSlots(slots []models.PlanningSlot, key GroupKeyFunc) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, s := range slots {
		k := key(s)
		if k == "" {
			k = UnassignedGroup
		}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Key: k, Label: k})
		}
		groups[i].Slots = append(groups[i].Slots, s)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	for i := range groups {
		rows := groups[i].Slots
		sort.SliceStable(rows, func(a, b int) bool { return rows[a].StartAt.Before(rows[b].StartAt) })
	}
	return groups
}
