package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/mops-planner-api/internal/dto"
	"github.com/noah-isme/mops-planner-api/internal/models"
	"github.com/noah-isme/mops-planner-api/internal/planning"
)

// AccuracyService compares completed slots with what actually happened.
type AccuracyService struct {
	slots     slotStore
	calendar  planning.WorkCalendar
	tolerance time.Duration
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAccuracyService builds the tracker. A non-positive tolerance uses the default.
func NewAccuracyService(slots slotStore, calendar planning.WorkCalendar, tolerance time.Duration, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *AccuracyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tolerance <= 0 {
		tolerance = planning.DefaultOnTimeTolerance
	}
	return &AccuracyService{slots: slots, calendar: calendar, tolerance: tolerance, cache: cache, validator: validate, logger: logger}
}

// Metrics aggregates plan accuracy over the range, overall and per technician.
func (s *AccuracyService) Metrics(ctx context.Context, scope models.Scope, dr dto.DateRange) (*dto.AccuracyResponse, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	key := s.cache.Key(scope, "accuracy", dr.From, dr.To)
	var cached dto.AccuracyResponse
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}
	variances, err := s.variances(ctx, scope, dr)
	if err != nil {
		return nil, err
	}
	resp := &dto.AccuracyResponse{
		From:          dr.From,
		To:            dr.To,
		Metrics:       planning.Accuracy(variances),
		ByTechnician:  planning.AccuracyByTechnician(variances),
		ToleranceMins: int(s.tolerance / time.Minute),
	}
	s.cache.Set(ctx, key, resp)
	return resp, nil
}

// Variances lists per-slot plan versus actual records.
func (s *AccuracyService) Variances(ctx context.Context, scope models.Scope, dr dto.DateRange) (*dto.VariancesResponse, error) {
	variances, err := s.variances(ctx, scope, dr)
	if err != nil {
		return nil, err
	}
	return &dto.VariancesResponse{From: dr.From, To: dr.To, Variances: planning.RoundVariances(variances)}, nil
}

func (s *AccuracyService) variances(ctx context.Context, scope models.Scope, dr dto.DateRange) ([]planning.Variance, error) {
	if err := s.validator.Struct(dr); err != nil {
		return nil, validationError(err, "invalid accuracy range")
	}
	r, err := parseDateRange(s.calendar, dr)
	if err != nil {
		return nil, err
	}
	rows, err := s.slots.ListCompletedActuals(ctx, scope, r.From, r.To)
	if err != nil {
		return nil, translateErr(err, "", "failed to load completed slots")
	}
	obs := make([]planning.Observation, 0, len(rows))
	for _, row := range rows {
		obs = append(obs, planning.Observation{
			SlotID:         row.SlotID,
			WorkOrderID:    row.WorkOrderID,
			TechnicianID:   row.TechnicianID,
			PlannedStart:   row.StartAt,
			PlannedEnd:     row.EndAt,
			PlannedMinutes: row.DurationMinutes,
			ActualStart:    row.ActualStart,
			ActualEnd:      row.ActualEnd,
		})
	}
	return planning.Variances(obs, s.tolerance), nil
}
