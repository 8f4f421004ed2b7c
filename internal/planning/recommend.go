package planning

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

// Recommendation scoring.
const (
	MaxOptions         = 5
	baseScore          = 50
	preferredBonus     = 25
	balancedBonus      = 15
	lightBonus         = 10
	soonBonus          = 10
	soonWithinDays     = 2
	balancedLowerPct   = 60.0
	balancedUpperPct   = 80.0
	defaultDurationMin = 60
)

// SlotOption is one feasible placement for a work item.
type SlotOption struct {
	TechnicianID      string    `json:"technician_id"`
	TechnicianName    string    `json:"technician_name,omitempty"`
	MachineID         string    `json:"machine_id"`
	StartAt           time.Time `json:"start_at"`
	EndAt             time.Time `json:"end_at"`
	DurationMinutes   int       `json:"duration_minutes"`
	Score             int       `json:"score"`
	DayUtilizationPct float64   `json:"day_utilization_pct"`
	Reasons           []string  `json:"reasons"`
}

// RecommendInput carries everything the recommender needs; it performs no I/O.
type RecommendInput struct {
	MachineID             string
	DurationMinutes       int
	PreferredTechnicianID string
	Technicians           []models.Technician
	Range                 Range
	ExcludeSlotID         string
	// Busy indexes active slots by technician.
	Busy       *IntervalIndex
	Exceptions map[string][]models.TechnicianAvailability
}

// Recommender finds free gaps in technician calendars and scores them.
type Recommender struct {
	calendar WorkCalendar
	clock    Clock
}

// NewRecommender builds a recommender over the calendar.
func NewRecommender(calendar WorkCalendar, clock Clock) *Recommender {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Recommender{calendar: calendar, clock: clock}
}

// Calendar exposes the work calendar in use.
func (r *Recommender) Calendar() WorkCalendar { return r.calendar }

// Recommend returns up to MaxOptions options ordered by score then start.
func (r *Recommender) Recommend(in RecommendInput) ([]SlotOption, error) {
	options, err := r.AllOptions(in)
	if err != nil {
		return nil, err
	}
	if len(options) > MaxOptions {
		options = options[:MaxOptions]
	}
	return options, nil
}

// AllOptions returns every gap that fits the duration, ordered by score then start.
func (r *Recommender) AllOptions(in RecommendInput) ([]SlotOption, error) {
	if in.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	if !in.Range.From.Before(in.Range.To) {
		return nil, ErrInvalidRange
	}
	busy := in.Busy
	if busy == nil {
		busy = NewIntervalIndex(models.DimensionTechnician, nil)
	}
	duration := time.Duration(in.DurationMinutes) * time.Minute
	now := r.clock.Now()
	today := r.calendar.StartOfDay(now)

	var options []SlotOption
	for _, day := range r.calendar.Weekdays(in.Range) {
		dayEnd := day.AddDate(0, 0, 1)
		if !dayEnd.After(now) {
			continue
		}
		for _, tech := range OrderTechnicians(in.Technicians, in.PreferredTechnicianID) {
			window := r.calendar.Window(day, in.Exceptions[tech.ID])
			if !window.Open {
				continue
			}
			daySlots := busy.Overlapping(tech.ID, day, dayEnd, in.ExcludeSlotID)
			dayRange := Range{From: day, To: dayEnd}
			utilization := UtilizationPct(float64(PlannedMinutes(daySlots, dayRange)), float64(r.calendar.AvailableMinutes(dayRange, in.Exceptions[tech.ID])))

			for _, start := range gapStarts(window, daySlots, duration, now) {
				opt := SlotOption{
					TechnicianID:      tech.ID,
					TechnicianName:    tech.FullName,
					MachineID:         in.MachineID,
					StartAt:           start,
					EndAt:             start.Add(duration),
					DurationMinutes:   in.DurationMinutes,
					DayUtilizationPct: Round2(utilization),
				}
				opt.Score, opt.Reasons = score(tech.ID == in.PreferredTechnicianID && in.PreferredTechnicianID != "", utilization, int(math.Round(day.Sub(today).Hours()/24)))
				options = append(options, opt)
			}
		}
	}

	sort.SliceStable(options, func(i, j int) bool {
		if options[i].Score != options[j].Score {
			return options[i].Score > options[j].Score
		}
		return options[i].StartAt.Before(options[j].StartAt)
	})
	return options, nil
}

// gapStarts walks the busy intervals inside window and returns the start of every
// gap at least duration long. Gaps are clipped to the window and starts never
// precede now.
func gapStarts(window DayWindow, slots []models.PlanningSlot, duration time.Duration, now time.Time) []time.Time {
	busy := make([]Interval, 0, len(slots)+len(window.Busy))
	for _, s := range slots {
		busy = append(busy, Interval{Start: s.StartAt, End: s.EndAt})
	}
	busy = append(busy, window.Busy...)
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })

	cursor := window.Start
	if now.After(cursor) {
		cursor = ceilMinute(now)
	}
	var starts []time.Time
	for _, b := range busy {
		if !b.End.After(cursor) {
			continue
		}
		if !b.Start.Before(window.End) {
			break
		}
		if b.Start.Sub(cursor) >= duration {
			starts = append(starts, cursor)
		}
		cursor = b.End
		if !cursor.Before(window.End) {
			return starts
		}
	}
	if window.End.Sub(cursor) >= duration {
		starts = append(starts, cursor)
	}
	return starts
}

func score(preferred bool, utilization float64, daysAhead int) (int, []string) {
	total := baseScore
	reasons := []string{"Technician has a free window"}
	if preferred {
		total += preferredBonus
		reasons = append(reasons, "Technician already assigned to this work order")
	}
	switch {
	case utilization >= balancedLowerPct && utilization <= balancedUpperPct:
		total += balancedBonus
		reasons = append(reasons, fmt.Sprintf("Balanced workload that day (%.0f%% utilized)", utilization))
	case utilization < balancedLowerPct:
		total += lightBonus
		reasons = append(reasons, fmt.Sprintf("Light workload that day (%.0f%% utilized)", utilization))
	}
	if daysAhead >= 0 && daysAhead <= soonWithinDays {
		total += soonBonus
		reasons = append(reasons, "Available within the next 2 days")
	}
	return total, reasons
}

// OrderTechnicians returns technicians with the preferred one first.
func OrderTechnicians(techs []models.Technician, preferredID string) []models.Technician {
	if preferredID == "" {
		return techs
	}
	ordered := make([]models.Technician, 0, len(techs)+1)
	found := false
	for _, t := range techs {
		if t.ID == preferredID {
			ordered = append(ordered, t)
			found = true
			break
		}
	}
	if !found {
		ordered = append(ordered, models.Technician{ID: preferredID})
	}
	for _, t := range techs {
		if t.ID != preferredID {
			ordered = append(ordered, t)
		}
	}
	return ordered
}

// DefaultDuration returns minutes or 60 when unset.
func DefaultDuration(minutes int) int {
	if minutes <= 0 {
		return defaultDurationMin
	}
	return minutes
}

func ceilMinute(t time.Time) time.Time {
	trunc := t.Truncate(time.Minute)
	if trunc.Equal(t) {
		return t
	}
	return trunc.Add(time.Minute)
}
