package planning

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// WorkCalendar describes the default working day used when a technician has no
// exception for a date.
type WorkCalendar struct {
	Location      *time.Location
	DayStartMin   int
	DayEndMin     int
	DailyCapacity time.Duration
}

// NewWorkCalendar parses "HH:MM" bounds into a calendar.
func NewWorkCalendar(loc *time.Location, dayStart, dayEnd string, dailyHours float64) (WorkCalendar, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := ParseClock(dayStart)
	if err != nil {
		return WorkCalendar{}, fmt.Errorf("workday start: %w", err)
	}
	end, err := ParseClock(dayEnd)
	if err != nil {
		return WorkCalendar{}, fmt.Errorf("workday end: %w", err)
	}
	if end <= start {
		return WorkCalendar{}, fmt.Errorf("workday end %s must be after start %s", dayEnd, dayStart)
	}
	if dailyHours <= 0 {
		dailyHours = 8
	}
	return WorkCalendar{
		Location:      loc,
		DayStartMin:   start,
		DayEndMin:     end,
		DailyCapacity: time.Duration(dailyHours * float64(time.Hour)),
	}, nil
}

// DefaultWorkCalendar is 08:00-17:00 with 8 hours of capacity in UTC.
func DefaultWorkCalendar() WorkCalendar {
	return WorkCalendar{Location: time.UTC, DayStartMin: 8 * 60, DayEndMin: 17 * 60, DailyCapacity: 8 * time.Hour}
}

// DailyCapacityMinutes returns the default capacity of one working day.
func (c WorkCalendar) DailyCapacityMinutes() int {
	return int(c.DailyCapacity / time.Minute)
}

func (c WorkCalendar) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// StartOfDay truncates t to midnight in the calendar location.
func (c WorkCalendar) StartOfDay(t time.Time) time.Time {
	t = t.In(c.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc())
}

// At returns the instant minutes after midnight of day.
func (c WorkCalendar) At(day time.Time, minutes int) time.Time {
	return c.StartOfDay(day).Add(time.Duration(minutes) * time.Minute)
}

// SameDay reports whether a and b fall on the same calendar date.
func (c WorkCalendar) SameDay(a, b time.Time) bool {
	return c.StartOfDay(a).Equal(c.StartOfDay(b))
}

// Range is a half-open interval [From, To).
type Range struct {
	From time.Time
	To   time.Time
}

// DayRange converts an inclusive date range into [start of from, start of the day after to).
func (c WorkCalendar) DayRange(from, to time.Time) (Range, error) {
	if from.IsZero() || to.IsZero() {
		return Range{}, ErrInvalidRange
	}
	start := c.StartOfDay(from)
	end := c.StartOfDay(to).AddDate(0, 0, 1)
	if !start.Before(end) {
		return Range{}, ErrInvalidRange
	}
	return Range{From: start, To: end}, nil
}

// Days lists every calendar date in the range.
func (c WorkCalendar) Days(r Range) []time.Time {
	var days []time.Time
	for d := c.StartOfDay(r.From); d.Before(r.To); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Weekdays lists Monday to Friday dates in the range.
func (c WorkCalendar) Weekdays(r Range) []time.Time {
	var days []time.Time
	for _, d := range c.Days(r) {
		if IsWeekday(d) {
			days = append(days, d)
		}
	}
	return days
}

// IsWeekday reports whether t falls Monday to Friday.
func IsWeekday(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

// ISOWeekday returns 1 for Monday through 7 for Sunday.
func ISOWeekday(t time.Time) int {
	if t.Weekday() == time.Sunday {
		return 7
	}
	return int(t.Weekday())
}

// ParseClock converts "HH:MM" (or "HH:MM:SS") into minutes after midnight.
func ParseClock(raw string) (int, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock time %q", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	total := h*60 + m
	if total > minutesPerDay {
		return 0, fmt.Errorf("clock time %q past midnight", raw)
	}
	return total, nil
}

// FormatClock renders minutes after midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
