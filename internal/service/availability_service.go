package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/mops-planner-api/internal/dto"
	"github.com/noah-isme/mops-planner-api/internal/models"
	"github.com/noah-isme/mops-planner-api/internal/planning"
	appErrors "github.com/noah-isme/mops-planner-api/pkg/errors"
	"github.com/noah-isme/mops-planner-api/pkg/events"
)

type availabilityStore interface {
	List(ctx context.Context, scope models.Scope, filter models.AvailabilityFilter) ([]models.TechnicianAvailability, error)
	FindByID(ctx context.Context, scope models.Scope, id string) (*models.TechnicianAvailability, error)
	Upsert(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, item *models.TechnicianAvailability) error
	Update(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, item *models.TechnicianAvailability) error
	Delete(ctx context.Context, scope models.Scope, id string) error
}

// AvailabilityService manages technician calendar exceptions.
type AvailabilityService struct {
	tx           txProvider
	availability availabilityStore
	technicians  technicianDirectory
	calendar     planning.WorkCalendar
	cache        *CacheService
	events       notifier
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewAvailabilityService wires availability management.
func NewAvailabilityService(
	tx txProvider,
	availability availabilityStore,
	technicians technicianDirectory,
	calendar planning.WorkCalendar,
	cache *CacheService,
	publisher events.Publisher,
	validate *validator.Validate,
	logger *zap.Logger,
) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		tx:           tx,
		availability: availability,
		technicians:  technicians,
		calendar:     calendar,
		cache:        cache,
		events:       notifier{publisher: publisher, logger: logger},
		validator:    validate,
		logger:       logger,
	}
}

// List returns exceptions in the query range.
func (s *AvailabilityService) List(ctx context.Context, scope models.Scope, query dto.AvailabilityListQuery) ([]models.TechnicianAvailability, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, validationError(err, "invalid availability query")
	}
	r, err := parseDateRange(s.calendar, query.DateRange)
	if err != nil {
		return nil, err
	}
	filter := models.AvailabilityFilter{From: r.From, To: r.To, TechnicianID: query.TechnicianID}
	if query.Type != "" {
		filter.Types = []models.AvailabilityType{models.AvailabilityType(query.Type)}
	}
	items, err := s.availability.List(ctx, scope, filter)
	if err != nil {
		return nil, translateErr(err, "", "failed to list availability")
	}
	if items == nil {
		items = []models.TechnicianAvailability{}
	}
	return items, nil
}

// Get returns one exception.
func (s *AvailabilityService) Get(ctx context.Context, scope models.Scope, id string) (*models.TechnicianAvailability, error) {
	item, err := s.availability.FindByID(ctx, scope, id)
	if err != nil {
		return nil, translateErr(err, "availability entry not found", "failed to load availability")
	}
	return item, nil
}

// Create stores an exception, replacing an existing one of the same type on the same day.
func (s *AvailabilityService) Create(ctx context.Context, scope models.Scope, req dto.AvailabilityRequest) (*models.TechnicianAvailability, error) {
	item, err := s.build(ctx, scope, req)
	if err != nil {
		return nil, err
	}
	if err := s.availability.Upsert(ctx, nil, scope, item); err != nil {
		return nil, translateErr(err, "", "failed to store availability")
	}
	s.changed(ctx, scope, item)
	return item, nil
}

// Update rewrites an exception.
func (s *AvailabilityService) Update(ctx context.Context, scope models.Scope, id string, req dto.AvailabilityRequest) (*models.TechnicianAvailability, error) {
	current, err := s.availability.FindByID(ctx, scope, id)
	if err != nil {
		return nil, translateErr(err, "availability entry not found", "failed to load availability")
	}
	item, err := s.build(ctx, scope, req)
	if err != nil {
		return nil, err
	}
	item.ID = current.ID
	item.CreatedBy = current.CreatedBy
	item.CreatedAt = current.CreatedAt
	if err := s.availability.Update(ctx, nil, scope, item); err != nil {
		return nil, translateErr(err, "availability entry not found", "failed to update availability")
	}
	s.changed(ctx, scope, item)
	return item, nil
}

// Delete removes an exception.
func (s *AvailabilityService) Delete(ctx context.Context, scope models.Scope, id string) error {
	if err := s.availability.Delete(ctx, scope, id); err != nil {
		return translateErr(err, "availability entry not found", "failed to delete availability")
	}
	s.changed(ctx, scope, map[string]string{"id": id})
	return nil
}

// BulkStore writes the same exception on every date of the range, optionally
// weekdays only, in one transaction.
func (s *AvailabilityService) BulkStore(ctx context.Context, scope models.Scope, req dto.BulkAvailabilityRequest) ([]models.TechnicianAvailability, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid bulk availability payload")
	}
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	if err := validateWindow(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	if _, err := s.technicians.FindByID(ctx, scope, req.TechnicianID); err != nil {
		return nil, translateErr(err, "technician not found", "failed to load technician")
	}
	r, err := parseDateRange(s.calendar, req.DateRange)
	if err != nil {
		return nil, err
	}
	days := s.calendar.Days(r)
	if req.WeekdaysOnly {
		days = s.calendar.Weekdays(r)
	}

	stored := make([]models.TechnicianAvailability, 0, len(days))
	err = inTransaction(ctx, s.tx, func(tx *sqlx.Tx) error {
		for _, day := range days {
			item := models.TechnicianAvailability{
				TechnicianID: req.TechnicianID,
				Date:         time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
				StartTime:    req.StartTime,
				EndTime:      req.EndTime,
				Type:         models.AvailabilityType(req.Type),
				Notes:        req.Notes,
			}
			if err := s.availability.Upsert(ctx, tx, scope, &item); err != nil {
				return translateErr(err, "", "failed to store availability")
			}
			stored = append(stored, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, scope, map[string]interface{}{"technician_id": req.TechnicianID, "from": req.From, "to": req.To, "count": len(stored)})
	s.logger.Info("availability stored in bulk", zap.String("technician_id", req.TechnicianID), zap.Int("days", len(stored)))
	return stored, nil
}

// Summary reports each technician's available hours over the range with the
// number of exception days per type.
func (s *AvailabilityService) Summary(ctx context.Context, scope models.Scope, dr dto.DateRange) ([]dto.AvailabilitySummary, error) {
	if err := s.validator.Struct(dr); err != nil {
		return nil, validationError(err, "invalid date range")
	}
	r, err := parseDateRange(s.calendar, dr)
	if err != nil {
		return nil, err
	}
	techs, err := s.technicians.List(ctx, scope)
	if err != nil {
		return nil, translateErr(err, "", "failed to load technicians")
	}
	exceptions, err := s.availability.List(ctx, scope, models.AvailabilityFilter{From: r.From, To: r.To})
	if err != nil {
		return nil, translateErr(err, "", "failed to list availability")
	}
	byTech := make(map[string][]models.TechnicianAvailability)
	for _, ex := range exceptions {
		byTech[ex.TechnicianID] = append(byTech[ex.TechnicianID], ex)
	}
	out := make([]dto.AvailabilitySummary, 0, len(techs))
	for _, t := range techs {
		counts := map[string]int{}
		for _, ex := range byTech[t.ID] {
			counts[string(ex.Type)]++
		}
		out = append(out, dto.AvailabilitySummary{
			TechnicianID:   t.ID,
			TechnicianName: t.FullName,
			AvailableHours: planning.Round2(float64(s.calendar.AvailableMinutes(r, byTech[t.ID])) / 60),
			ExceptionDays:  counts,
		})
	}
	return out, nil
}

func (s *AvailabilityService) build(ctx context.Context, scope models.Scope, req dto.AvailabilityRequest) (*models.TechnicianAvailability, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid availability payload")
	}
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	if err := validateWindow(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	date, err := time.Parse(dto.DateLayout, req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be a YYYY-MM-DD date")
	}
	if _, err := s.technicians.FindByID(ctx, scope, req.TechnicianID); err != nil {
		return nil, translateErr(err, "technician not found", "failed to load technician")
	}
	return &models.TechnicianAvailability{
		TechnicianID: req.TechnicianID,
		Date:         date,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Type:         models.AvailabilityType(req.Type),
		Notes:        req.Notes,
	}, nil
}

func (s *AvailabilityService) changed(ctx context.Context, scope models.Scope, payload interface{}) {
	s.cache.InvalidateTenant(ctx, scope)
	s.events.publish(ctx, scope, events.AvailabilityChanged, payload)
}

// validateWindow checks an optional HH:MM pair: both or neither, start before end.
func validateWindow(start, end *string) error {
	if start == nil && end == nil {
		return nil
	}
	if start == nil || end == nil {
		return appErrors.Clone(appErrors.ErrValidation, "startTime and endTime must be given together")
	}
	s, err := planning.ParseClock(*start)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "startTime must be HH:MM")
	}
	e, err := planning.ParseClock(*end)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "endTime must be HH:MM")
	}
	if e <= s {
		return appErrors.Clone(appErrors.ErrValidation, "startTime must be before endTime")
	}
	return nil
}
