package planning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

func newTestRecommender(clockHour int) *Recommender {
	return NewRecommender(DefaultWorkCalendar(), FixedClock{At: at(monday, clockHour, 0)})
}

func TestRecommendAvoidsExistingSlot(t *testing.T) {
	busy := NewIntervalIndex(models.DimensionTechnician, []models.PlanningSlot{
		slot("s1", "t1", "m1", at(monday, 9, 0), at(monday, 10, 0)),
	})
	r := newTestRecommender(0)

	options, err := r.Recommend(RecommendInput{
		MachineID:             "m1",
		DurationMinutes:       30,
		PreferredTechnicianID: "t1",
		Technicians:           []models.Technician{{ID: "t1", FullName: "Tess"}},
		Range:                 Range{From: monday, To: monday.AddDate(0, 0, 1)},
		Busy:                  busy,
	})
	require.NoError(t, err)
	require.Len(t, options, 2)

	for _, opt := range options {
		assert.False(t, Overlaps(opt.StartAt, opt.EndAt, at(monday, 9, 0), at(monday, 10, 0)))
		assert.Contains(t, []int{8, 10}, opt.StartAt.Hour())
		assert.Equal(t, 0, opt.StartAt.Minute())
	}
	assert.Equal(t, at(monday, 8, 0), options[0].StartAt, "ties resolve to the earliest start")
}

func TestRecommendScoringAndReasons(t *testing.T) {
	busy := NewIntervalIndex(models.DimensionTechnician, []models.PlanningSlot{
		slot("s1", "t1", "m1", at(monday, 8, 0), at(monday, 13, 0)),
	})
	r := newTestRecommender(0)

	options, err := r.Recommend(RecommendInput{
		DurationMinutes:       60,
		PreferredTechnicianID: "t1",
		Technicians:           []models.Technician{{ID: "t2"}, {ID: "t1"}},
		Range:                 Range{From: monday, To: monday.AddDate(0, 0, 1)},
		Busy:                  busy,
	})
	require.NoError(t, err)
	require.NotEmpty(t, options)

	best := options[0]
	assert.Equal(t, "t1", best.TechnicianID)
	assert.Equal(t, at(monday, 13, 0), best.StartAt)
	// 50 base + 25 assigned + 15 balanced (62.5%) + 10 soon
	assert.Equal(t, 100, best.Score)
	assert.Len(t, best.Reasons, 4)

	second := options[1]
	assert.Equal(t, "t2", second.TechnicianID)
	assert.Equal(t, 70, second.Score)
}

func TestRecommendReturnsAtMostFive(t *testing.T) {
	r := newTestRecommender(0)
	techs := []models.Technician{{ID: "t1"}, {ID: "t2"}, {ID: "t3"}}

	options, err := r.Recommend(RecommendInput{
		DurationMinutes: 60,
		Technicians:     techs,
		Range:           Range{From: monday, To: monday.AddDate(0, 0, 14)},
	})
	require.NoError(t, err)
	assert.Len(t, options, MaxOptions)
	for i := 1; i < len(options); i++ {
		assert.GreaterOrEqual(t, options[i-1].Score, options[i].Score)
	}
}

func TestRecommendSkipsPastAndUnavailable(t *testing.T) {
	r := newTestRecommender(12)
	exceptions := map[string][]models.TechnicianAvailability{
		"t1": {{Date: monday.AddDate(0, 0, 1), Type: models.AvailabilityVacation}},
	}

	options, err := r.AllOptions(RecommendInput{
		DurationMinutes: 60,
		Technicians:     []models.Technician{{ID: "t1"}},
		Range:           Range{From: monday, To: monday.AddDate(0, 0, 2)},
		Exceptions:      exceptions,
	})
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.Equal(t, at(monday, 12, 0), options[0].StartAt)
}

func TestRecommendRespectsPartialUnavailability(t *testing.T) {
	r := newTestRecommender(0)
	exceptions := map[string][]models.TechnicianAvailability{
		"t1": {{Date: monday, Type: models.AvailabilityTraining, StartTime: strPtr("08:00"), EndTime: strPtr("16:30")}},
	}

	options, err := r.AllOptions(RecommendInput{
		DurationMinutes: 60,
		Technicians:     []models.Technician{{ID: "t1"}},
		Range:           Range{From: monday, To: monday.AddDate(0, 0, 1)},
		Exceptions:      exceptions,
	})
	require.NoError(t, err)
	assert.Empty(t, options)
}

func TestRecommendKeepsOptionsInsideWorkWindow(t *testing.T) {
	busy := NewIntervalIndex(models.DimensionTechnician, []models.PlanningSlot{
		slot("day", "t1", "m1", at(monday, 8, 0), at(monday, 16, 30)),
		slot("evening", "t1", "m1", at(monday, 18, 0), at(monday, 19, 0)),
	})
	r := newTestRecommender(0)

	options, err := r.AllOptions(RecommendInput{
		DurationMinutes: 60,
		Technicians:     []models.Technician{{ID: "t1"}},
		Range:           Range{From: monday, To: monday.AddDate(0, 0, 1)},
		Busy:            busy,
	})
	require.NoError(t, err)
	assert.Empty(t, options, "only 30 minutes remain before 17:00")

	options, err = r.AllOptions(RecommendInput{
		DurationMinutes: 30,
		Technicians:     []models.Technician{{ID: "t1"}},
		Range:           Range{From: monday, To: monday.AddDate(0, 0, 1)},
		Busy:            busy,
	})
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.Equal(t, at(monday, 16, 30), options[0].StartAt)
	assert.False(t, options[0].EndAt.After(at(monday, 17, 0)))
}

func TestRecommendDayUtilizationCountsExceptions(t *testing.T) {
	busy := NewIntervalIndex(models.DimensionTechnician, []models.PlanningSlot{
		slot("s1", "t1", "m1", at(monday, 8, 0), at(monday, 11, 0)),
	})
	exceptions := map[string][]models.TechnicianAvailability{
		"t1": {{Date: monday, Type: models.AvailabilityVacation, StartTime: strPtr("13:00"), EndTime: strPtr("17:00")}},
	}
	r := newTestRecommender(0)

	options, err := r.AllOptions(RecommendInput{
		DurationMinutes: 60,
		Technicians:     []models.Technician{{ID: "t1"}},
		Range:           Range{From: monday, To: monday.AddDate(0, 0, 1)},
		Busy:            busy,
		Exceptions:      exceptions,
	})
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.Equal(t, at(monday, 11, 0), options[0].StartAt)
	// 180 planned over 240 available
	assert.Equal(t, 75.0, options[0].DayUtilizationPct)
	assert.Equal(t, 75, options[0].Score)
}

func TestRecommendRejectsBadInput(t *testing.T) {
	r := newTestRecommender(0)
	_, err := r.Recommend(RecommendInput{DurationMinutes: 0, Range: Range{From: monday, To: monday.AddDate(0, 0, 1)}})
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = r.Recommend(RecommendInput{DurationMinutes: 30, Range: Range{From: monday, To: monday}})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestOrderTechniciansPutsPreferredFirst(t *testing.T) {
	ordered := OrderTechnicians([]models.Technician{{ID: "a"}, {ID: "b"}, {ID: "c"}}, "b")
	ids := []string{ordered[0].ID, ordered[1].ID, ordered[2].ID}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
}
