package planning

import (
	"sort"
	"time"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// ConflictDimensions lists the resources a and b double-book. A slot never
// conflicts with itself.
func ConflictDimensions(a, b models.PlanningSlot) []models.Dimension {
	if a.ID != "" && a.ID == b.ID {
		return nil
	}
	if !Overlaps(a.StartAt, a.EndAt, b.StartAt, b.EndAt) {
		return nil
	}
	var dims []models.Dimension
	if a.TechnicianID != "" && a.TechnicianID == b.TechnicianID {
		dims = append(dims, models.DimensionTechnician)
	}
	if a.MachineID != "" && a.MachineID == b.MachineID {
		dims = append(dims, models.DimensionMachine)
	}
	return dims
}

// DimensionKey extracts the resource id a slot occupies on dim.
func DimensionKey(dim models.Dimension) func(models.PlanningSlot) string {
	switch dim {
	case models.DimensionTechnician:
		return func(s models.PlanningSlot) string { return s.TechnicianID }
	case models.DimensionMachine:
		return func(s models.PlanningSlot) string { return s.MachineID }
	}
	return func(models.PlanningSlot) string { return "" }
}

// IntervalIndex holds active slots per resource id sorted by start, answering
// overlap queries with a binary search bounded by the longest slot.
type IntervalIndex struct {
	key     func(models.PlanningSlot) string
	buckets map[string][]models.PlanningSlot
	longest map[string]time.Duration
}

// NewIntervalIndex indexes the active slots along dim.
func NewIntervalIndex(dim models.Dimension, slots []models.PlanningSlot) *IntervalIndex {
	idx := &IntervalIndex{
		key:     DimensionKey(dim),
		buckets: make(map[string][]models.PlanningSlot),
		longest: make(map[string]time.Duration),
	}
	for _, s := range slots {
		idx.Add(s)
	}
	return idx
}

// Add inserts an active slot keeping the bucket ordered. Buckets are replaced,
// never edited in place, so slices returned by Slots stay stable.
func (ix *IntervalIndex) Add(slot models.PlanningSlot) {
	if !slot.Status.Active() {
		return
	}
	k := ix.key(slot)
	if k == "" {
		return
	}
	bucket := ix.buckets[k]
	pos := sort.Search(len(bucket), func(i int) bool { return bucket[i].StartAt.After(slot.StartAt) })
	next := make([]models.PlanningSlot, 0, len(bucket)+1)
	next = append(next, bucket[:pos]...)
	next = append(next, slot)
	ix.buckets[k] = append(next, bucket[pos:]...)
	if d := slot.EndAt.Sub(slot.StartAt); d > ix.longest[k] {
		ix.longest[k] = d
	}
}

// Remove drops the slot with id from every bucket.
func (ix *IntervalIndex) Remove(id string) {
	for k, bucket := range ix.buckets {
		for i := range bucket {
			if bucket[i].ID == id {
				next := make([]models.PlanningSlot, 0, len(bucket)-1)
				next = append(next, bucket[:i]...)
				ix.buckets[k] = append(next, bucket[i+1:]...)
				break
			}
		}
	}
}

// Overlapping returns slots on key intersecting [start, end), skipping excludeID.
func (ix *IntervalIndex) Overlapping(key string, start, end time.Time, excludeID string) []models.PlanningSlot {
	bucket := ix.buckets[key]
	if len(bucket) == 0 {
		return nil
	}
	hi := sort.Search(len(bucket), func(i int) bool { return !bucket[i].StartAt.Before(end) })
	floor := start.Add(-ix.longest[key])
	var out []models.PlanningSlot
	for i := hi - 1; i >= 0; i-- {
		s := bucket[i]
		if !s.StartAt.After(floor) {
			break
		}
		if excludeID != "" && s.ID == excludeID {
			continue
		}
		if s.EndAt.After(start) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

// Slots returns the ordered slots of key.
func (ix *IntervalIndex) Slots(key string) []models.PlanningSlot {
	return ix.buckets[key]
}

// CandidateConflicts reports what a proposed slot would collide with in the two indexes.
func CandidateConflicts(candidate models.PlanningSlot, technicians, machines *IntervalIndex) []models.SlotConflict {
	var out []models.SlotConflict
	if technicians != nil {
		for _, other := range technicians.Overlapping(candidate.TechnicianID, candidate.StartAt, candidate.EndAt, candidate.ID) {
			out = append(out, NewConflict(candidate, other, models.DimensionTechnician, candidate.TechnicianID))
		}
	}
	if machines != nil {
		for _, other := range machines.Overlapping(candidate.MachineID, candidate.StartAt, candidate.EndAt, candidate.ID) {
			out = append(out, NewConflict(candidate, other, models.DimensionMachine, candidate.MachineID))
		}
	}
	return out
}

// DetectConflicts lists every conflicting pair among the active slots once per
// dimension, ordered by the earlier slot's start.
func DetectConflicts(slots []models.PlanningSlot) []models.SlotConflict {
	var out []models.SlotConflict
	for _, dim := range []models.Dimension{models.DimensionTechnician, models.DimensionMachine} {
		idx := NewIntervalIndex(dim, slots)
		key := DimensionKey(dim)
		for _, s := range slots {
			if !s.Status.Active() || key(s) == "" {
				continue
			}
			for _, other := range idx.Overlapping(key(s), s.StartAt, s.EndAt, s.ID) {
				if !pairOwner(s, other) {
					continue
				}
				out = append(out, NewConflict(s, other, dim, key(s)))
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

// pairOwner picks one side of a symmetric pair so it is reported once.
func pairOwner(a, b models.PlanningSlot) bool {
	if a.StartAt.Equal(b.StartAt) {
		return a.ID < b.ID
	}
	return a.StartAt.Before(b.StartAt)
}

// NewConflict describes the overlap of a with b on one dimension.
func NewConflict(a, b models.PlanningSlot, dim models.Dimension, id string) models.SlotConflict {
	start, end := a.StartAt, a.EndAt
	if b.StartAt.After(start) {
		start = b.StartAt
	}
	if b.EndAt.Before(end) {
		end = b.EndAt
	}
	return models.SlotConflict{
		SlotID:        a.ID,
		ConflictingID: b.ID,
		Dimension:     dim,
		DimensionID:   id,
		WorkOrderID:   b.WorkOrderID,
		StartAt:       start,
		EndAt:         end,
		OverlapMins:   int(end.Sub(start) / time.Minute),
	}
}
