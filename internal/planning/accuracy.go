package planning

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultOnTimeTolerance is the allowed start deviation for an on-time start.
const DefaultOnTimeTolerance = 15 * time.Minute

// minDurationRatio floors the divisor of schedule adherence.
const minDurationRatio = 0.5

// Observation pairs a completed slot with its work order's actual times.
type Observation struct {
	SlotID         string
	WorkOrderID    string
	TechnicianID   string
	PlannedStart   time.Time
	PlannedEnd     time.Time
	PlannedMinutes int
	ActualStart    *time.Time
	ActualEnd      *time.Time
}

// Variance is the per-slot plan versus actual record.
type Variance struct {
	SlotID            string     `json:"slot_id"`
	WorkOrderID       string     `json:"work_order_id"`
	TechnicianID      string     `json:"technician_id"`
	PlannedStart      time.Time  `json:"planned_start"`
	ActualStart       *time.Time `json:"actual_start,omitempty"`
	StartDelayMinutes float64    `json:"start_delay_minutes"`
	PlannedMinutes    float64    `json:"planned_minutes"`
	ActualMinutes     float64    `json:"actual_minutes"`
	DurationRatio     float64    `json:"duration_ratio"`
	OnTime            bool       `json:"on_time"`
}

// AccuracyMetrics summarises plan fidelity.
type AccuracyMetrics struct {
	TotalSlots        int     `json:"total_slots"`
	OnTimeStarts      int     `json:"on_time_starts"`
	OnTimeStartRate   float64 `json:"on_time_start_rate"`
	DurationAccuracy  float64 `json:"duration_accuracy"`
	ScheduleAdherence float64 `json:"schedule_adherence"`
	AvgDelayMinutes   float64 `json:"avg_delay_minutes"`
	DelayStdDev       float64 `json:"delay_std_dev"`
	DelayP90          float64 `json:"delay_p90"`
}

// TechnicianAccuracy is the per-technician breakdown.
type TechnicianAccuracy struct {
	TechnicianID string `json:"technician_id"`
	AccuracyMetrics
}

// Variances computes the per-slot records at full precision. Observations without
// an actual start are skipped.
func Variances(obs []Observation, tolerance time.Duration) []Variance {
	if tolerance <= 0 {
		tolerance = DefaultOnTimeTolerance
	}
	out := make([]Variance, 0, len(obs))
	for _, o := range obs {
		if o.ActualStart == nil {
			continue
		}
		delay := o.ActualStart.Sub(o.PlannedStart)
		planned := float64(o.PlannedMinutes)
		if planned <= 0 {
			planned = o.PlannedEnd.Sub(o.PlannedStart).Minutes()
		}
		v := Variance{
			SlotID:            o.SlotID,
			WorkOrderID:       o.WorkOrderID,
			TechnicianID:      o.TechnicianID,
			PlannedStart:      o.PlannedStart,
			ActualStart:       o.ActualStart,
			StartDelayMinutes: delay.Minutes(),
			PlannedMinutes:    planned,
			OnTime:            absDuration(delay) <= tolerance,
		}
		if o.ActualEnd != nil {
			v.ActualMinutes = o.ActualEnd.Sub(*o.ActualStart).Minutes()
			if planned > 0 {
				v.DurationRatio = v.ActualMinutes / planned
			}
		}
		out = append(out, v)
	}
	return out
}

// Accuracy aggregates variances. With no completed work the duration accuracy is 1.
func Accuracy(variances []Variance) AccuracyMetrics {
	m := AccuracyMetrics{TotalSlots: len(variances), DurationAccuracy: 1}
	if len(variances) == 0 {
		return m
	}
	var ratios, delays []float64
	for _, v := range variances {
		if v.OnTime {
			m.OnTimeStarts++
		}
		if v.DurationRatio > 0 {
			ratios = append(ratios, v.DurationRatio)
		}
		delays = append(delays, math.Max(0, v.StartDelayMinutes))
	}
	rate := float64(m.OnTimeStarts) / float64(m.TotalSlots) * 100
	accuracy := 1.0
	if len(ratios) > 0 {
		accuracy = stat.Mean(ratios, nil)
	}
	m.OnTimeStartRate = Round2(rate)
	m.DurationAccuracy = Round2(accuracy)
	m.ScheduleAdherence = Round2(math.Min(100, rate/math.Max(accuracy, minDurationRatio)))
	m.AvgDelayMinutes = Round2(stat.Mean(delays, nil))
	if len(delays) > 1 {
		m.DelayStdDev = Round2(stat.StdDev(delays, nil))
	}
	sort.Float64s(delays)
	m.DelayP90 = Round2(stat.Quantile(0.9, stat.Empirical, delays, nil))
	return m
}

// RoundVariances returns a copy with the measured values rounded for presentation.
func RoundVariances(variances []Variance) []Variance {
	out := make([]Variance, len(variances))
	for i, v := range variances {
		v.StartDelayMinutes = Round2(v.StartDelayMinutes)
		v.PlannedMinutes = Round2(v.PlannedMinutes)
		v.ActualMinutes = Round2(v.ActualMinutes)
		v.DurationRatio = Round2(v.DurationRatio)
		out[i] = v
	}
	return out
}

// AccuracyByTechnician groups variances per technician, ordered by id.
func AccuracyByTechnician(variances []Variance) []TechnicianAccuracy {
	grouped := make(map[string][]Variance)
	for _, v := range variances {
		grouped[v.TechnicianID] = append(grouped[v.TechnicianID], v)
	}
	out := make([]TechnicianAccuracy, 0, len(grouped))
	for id, items := range grouped {
		out = append(out, TechnicianAccuracy{TechnicianID: id, AccuracyMetrics: Accuracy(items)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TechnicianID < out[j].TechnicianID })
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
