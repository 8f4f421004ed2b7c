package planning

import (
	"math"
	"sort"
	"time"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

// UtilizationStatus buckets a utilization percentage.
type UtilizationStatus string

const (
	UtilizationOverbooked UtilizationStatus = "overbooked"
	UtilizationHigh       UtilizationStatus = "high"
	UtilizationOptimal    UtilizationStatus = "optimal"
	UtilizationLow        UtilizationStatus = "low"
)

// Utilization thresholds in percent.
const (
	OverbookedAbove = 100.0
	HighAbove       = 90.0
	LowBelow        = 50.0
)

// ClassifyUtilization maps a percentage to its bucket.
func ClassifyUtilization(pct float64) UtilizationStatus {
	switch {
	case pct > OverbookedAbove:
		return UtilizationOverbooked
	case pct > HighAbove:
		return UtilizationHigh
	case pct < LowBelow:
		return UtilizationLow
	default:
		return UtilizationOptimal
	}
}

// UtilizationPct returns planned/available*100, or 0 when nothing is available.
func UtilizationPct(planned, available float64) float64 {
	if available <= 0 {
		return 0
	}
	return planned / available * 100
}

// Capacity is one technician's load over a range.
type Capacity struct {
	TechnicianID   string            `json:"technician_id"`
	TechnicianName string            `json:"technician_name,omitempty"`
	AvailableHours float64           `json:"available_hours"`
	PlannedHours   float64           `json:"planned_hours"`
	UtilizationPct float64           `json:"utilization_pct"`
	Status         UtilizationStatus `json:"status"`
}

// Interval is a half-open time span.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Minutes returns the interval length.
func (i Interval) Minutes() int {
	return int(i.End.Sub(i.Start) / time.Minute)
}

// exceptionDay normalises a DATE column into the calendar location without shifting the date.
func (c WorkCalendar) exceptionDay(ex models.TechnicianAvailability) time.Time {
	return time.Date(ex.Date.Year(), ex.Date.Month(), ex.Date.Day(), 0, 0, 0, 0, c.loc())
}

// exceptionBounds returns the minute bounds of a timed exception; whole is true
// when the exception has no times and covers the full day.
func exceptionBounds(ex models.TechnicianAvailability) (start, end int, whole bool) {
	if ex.StartTime == nil || ex.EndTime == nil {
		return 0, minutesPerDay, true
	}
	s, err := ParseClock(*ex.StartTime)
	if err != nil {
		return 0, minutesPerDay, true
	}
	e, err := ParseClock(*ex.EndTime)
	if err != nil {
		return 0, minutesPerDay, true
	}
	if e < s {
		e = s
	}
	return s, e, false
}

func (c WorkCalendar) exceptionMinutes(ex models.TechnicianAvailability) int {
	s, e, whole := exceptionBounds(ex)
	if whole {
		return c.DailyCapacityMinutes()
	}
	return e - s
}

// AvailableMinutes computes a technician's capacity over r. Weekdays contribute the
// daily capacity unless any "available" exception exists in range, in which case the
// sum of those exceptions replaces the default. Vacation, sick and training
// exceptions are subtracted; with the default capacity only weekday exceptions
// count. The result never goes below zero.
func (c WorkCalendar) AvailableMinutes(r Range, exceptions []models.TechnicianAvailability) int {
	base := len(c.Weekdays(r)) * c.DailyCapacityMinutes()

	var explicit, unavailable, unavailableWeekdays int
	hasExplicit := false
	for _, ex := range exceptions {
		day := c.exceptionDay(ex)
		if day.Before(c.StartOfDay(r.From)) || !day.Before(r.To) {
			continue
		}
		switch ex.Type {
		case models.AvailabilityAvailable:
			hasExplicit = true
			explicit += c.exceptionMinutes(ex)
		case models.AvailabilityVacation, models.AvailabilitySick, models.AvailabilityTraining:
			minutes := c.exceptionMinutes(ex)
			unavailable += minutes
			if IsWeekday(day) {
				unavailableWeekdays += minutes
			}
		}
	}
	if hasExplicit {
		base = explicit - unavailable
	} else {
		base -= unavailableWeekdays
	}
	if base < 0 {
		return 0
	}
	return base
}

// PlannedMinutes sums active slot time inside r.
func PlannedMinutes(slots []models.PlanningSlot, r Range) int {
	total := 0
	for _, slot := range slots {
		if !slot.Status.Active() || !slot.Overlaps(r.From, r.To) {
			continue
		}
		start, end := slot.StartAt, slot.EndAt
		if start.Before(r.From) {
			start = r.From
		}
		if end.After(r.To) {
			end = r.To
		}
		total += int(end.Sub(start) / time.Minute)
	}
	return total
}

// Capacity evaluates one technician's load over r.
func (c WorkCalendar) Capacity(technicianID string, r Range, exceptions []models.TechnicianAvailability, slots []models.PlanningSlot) Capacity {
	available := float64(c.AvailableMinutes(r, exceptions)) / 60
	planned := float64(PlannedMinutes(slots, r)) / 60
	pct := UtilizationPct(planned, available)
	return Capacity{
		TechnicianID:   technicianID,
		AvailableHours: Round2(available),
		PlannedHours:   Round2(planned),
		UtilizationPct: Round2(pct),
		Status:         ClassifyUtilization(pct),
	}
}

// DayWindow is the bookable part of one day for one technician.
type DayWindow struct {
	Open  bool
	Start time.Time
	End   time.Time
	// Busy holds partial unavailability inside the window.
	Busy []Interval
}

// Window resolves a technician's working window on day. Weekends are closed. An
// "available" exception replaces the default hours; a whole-day vacation, sick or
// training exception closes the day; a partial one becomes a busy interval.
func (c WorkCalendar) Window(day time.Time, exceptions []models.TechnicianAvailability) DayWindow {
	day = c.StartOfDay(day)
	if !IsWeekday(day) {
		return DayWindow{}
	}
	startMin, endMin := c.DayStartMin, c.DayEndMin
	var busy []Interval
	overridden := false
	for _, ex := range exceptions {
		if !c.exceptionDay(ex).Equal(day) {
			continue
		}
		s, e, whole := exceptionBounds(ex)
		switch ex.Type {
		case models.AvailabilityAvailable:
			if whole {
				continue
			}
			if !overridden || s < startMin {
				startMin = s
			}
			if !overridden || e > endMin {
				endMin = e
			}
			overridden = true
		case models.AvailabilityVacation, models.AvailabilitySick, models.AvailabilityTraining:
			if whole {
				return DayWindow{}
			}
			busy = append(busy, Interval{Start: c.At(day, s), End: c.At(day, e)})
		}
	}
	if endMin <= startMin {
		return DayWindow{}
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return DayWindow{Open: true, Start: c.At(day, startMin), End: c.At(day, endMin), Busy: busy}
}

// Round2 rounds to two decimals for presentation.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
