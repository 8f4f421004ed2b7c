package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/mops-planner-api/internal/dto"
	"github.com/noah-isme/mops-planner-api/internal/models"
	"github.com/noah-isme/mops-planner-api/internal/planning"
	"github.com/noah-isme/mops-planner-api/internal/repository"
	appErrors "github.com/noah-isme/mops-planner-api/pkg/errors"
	"github.com/noah-isme/mops-planner-api/pkg/events"
)

type templateStore interface {
	List(ctx context.Context, scope models.Scope, activeOnly bool) ([]models.PlanningTemplate, error)
	FindByID(ctx context.Context, scope models.Scope, id string) (*models.PlanningTemplate, error)
	Create(ctx context.Context, scope models.Scope, item *models.PlanningTemplate) error
	Update(ctx context.Context, scope models.Scope, item *models.PlanningTemplate) error
	Delete(ctx context.Context, scope models.Scope, id string) error
}

// TemplateService manages planning templates and stamps recurring slots from them.
type TemplateService struct {
	tx         txProvider
	templates  templateStore
	slots      slotStore
	workOrders workOrderStore
	locker     resourceLocker
	calendar   planning.WorkCalendar
	clock      planning.Clock
	cache      *CacheService
	metrics    *MetricsService
	events     notifier
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewTemplateService wires template handling.
func NewTemplateService(
	tx txProvider,
	templates templateStore,
	slots slotStore,
	workOrders workOrderStore,
	locker resourceLocker,
	calendar planning.WorkCalendar,
	clock planning.Clock,
	cache *CacheService,
	metrics *MetricsService,
	publisher events.Publisher,
	validate *validator.Validate,
	logger *zap.Logger,
) *TemplateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = planning.SystemClock{}
	}
	return &TemplateService{
		tx:         tx,
		templates:  templates,
		slots:      slots,
		workOrders: workOrders,
		locker:     locker,
		calendar:   calendar,
		clock:      clock,
		cache:      cache,
		metrics:    metrics,
		events:     notifier{publisher: publisher, logger: logger},
		validator:  validate,
		logger:     logger,
	}
}

// List returns the tenant's templates.
func (s *TemplateService) List(ctx context.Context, scope models.Scope, activeOnly bool) ([]models.PlanningTemplate, error) {
	items, err := s.templates.List(ctx, scope, activeOnly)
	if err != nil {
		return nil, translateErr(err, "", "failed to list templates")
	}
	if items == nil {
		items = []models.PlanningTemplate{}
	}
	return items, nil
}

// Get returns a template.
func (s *TemplateService) Get(ctx context.Context, scope models.Scope, id string) (*models.PlanningTemplate, error) {
	item, err := s.templates.FindByID(ctx, scope, id)
	if err != nil {
		return nil, translateErr(err, "template not found", "failed to load template")
	}
	return item, nil
}

// Create stores a new template.
func (s *TemplateService) Create(ctx context.Context, scope models.Scope, req dto.TemplateRequest) (*models.PlanningTemplate, error) {
	item := &models.PlanningTemplate{Active: true}
	if err := s.apply(item, req); err != nil {
		return nil, err
	}
	if err := s.templates.Create(ctx, scope, item); err != nil {
		return nil, translateErr(err, "", "failed to create template")
	}
	return item, nil
}

// Update replaces a template.
func (s *TemplateService) Update(ctx context.Context, scope models.Scope, id string, req dto.TemplateRequest) (*models.PlanningTemplate, error) {
	item, err := s.templates.FindByID(ctx, scope, id)
	if err != nil {
		return nil, translateErr(err, "template not found", "failed to load template")
	}
	if err := s.apply(item, req); err != nil {
		return nil, err
	}
	if err := s.templates.Update(ctx, scope, item); err != nil {
		return nil, translateErr(err, "template not found", "failed to update template")
	}
	return item, nil
}

// Delete removes a template. Slots it generated are kept.
func (s *TemplateService) Delete(ctx context.Context, scope models.Scope, id string) error {
	if err := s.templates.Delete(ctx, scope, id); err != nil {
		return translateErr(err, "template not found", "failed to delete template")
	}
	return nil
}

func (s *TemplateService) apply(item *models.PlanningTemplate, req dto.TemplateRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid template payload")
	}
	for i, bp := range req.Blueprints {
		if _, err := planning.ParseClock(bp.StartTime); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("blueprint %d: start time must be HH:MM", i))
		}
	}
	raw, err := json.Marshal(req.Blueprints)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode blueprints")
	}
	item.Name = req.Name
	item.Description = req.Description
	if req.Active != nil {
		item.Active = *req.Active
	}
	item.Blueprints = types.JSONText(raw)
	return nil
}

// Generate stamps the template over the range and assigns the given work orders
// to the resulting occurrences in order. Occurrences that already started are
// skipped; work orders left without an occurrence are reported.
func (s *TemplateService) Generate(ctx context.Context, scope models.Scope, templateID string, req dto.GenerateFromTemplateRequest) (*dto.BatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid template generation payload")
	}
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	r, err := parseDateRange(s.calendar, req.DateRange)
	if err != nil {
		return nil, err
	}
	tpl, err := s.templates.FindByID(ctx, scope, templateID)
	if err != nil {
		return nil, translateErr(err, "template not found", "failed to load template")
	}
	if !tpl.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "template is inactive")
	}
	blueprints, err := tpl.DecodeBlueprints()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored blueprints are unreadable")
	}
	expanded, err := s.calendar.ExpandBlueprints(blueprints, r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "template blueprints are invalid")
	}
	now := s.clock.Now()
	occurrences := make([]planning.BlueprintOccurrence, 0, len(expanded))
	for _, occ := range expanded {
		if occ.StartAt.Before(now) {
			continue
		}
		occurrences = append(occurrences, occ)
	}

	result := &dto.BatchResult{Scheduled: []dto.ScheduledItem{}, Errors: []planning.ItemError{}}
	var outcomes []planning.CommitOutcome
	err = inTransaction(ctx, s.tx, func(tx *sqlx.Tx) error {
		orders, err := s.workOrders.FindByIDs(ctx, tx, scope, req.WorkOrderIDs)
		if err != nil {
			return translateErr(err, "", "failed to load work orders")
		}
		byID := make(map[string]models.WorkOrder, len(orders))
		for _, wo := range orders {
			byID[wo.ID] = wo
		}
		techIDs := make([]string, 0, len(occurrences))
		for _, occ := range occurrences {
			techIDs = append(techIDs, occ.TechnicianID)
		}
		keys := batchKeys(nil, orders, techIDs...)
		for _, occ := range occurrences {
			keys = append(keys, repository.ResourceKey{Dimension: models.DimensionMachine, ID: occ.MachineID})
		}
		if err := s.locker.Lock(ctx, tx, scope, keys...); err != nil {
			return translateErr(err, "", "failed to lock planning resources")
		}
		next := 0
		for _, id := range req.WorkOrderIDs {
			wo, ok := byID[id]
			if !ok {
				result.Errors = append(result.Errors, itemError(id, planning.CodeNotFound, "work order not found"))
				continue
			}
			active, err := s.slots.HasActiveForWorkOrder(ctx, tx, scope, id)
			if err != nil {
				return translateErr(err, "", "failed to check work order slots")
			}
			if wo.IsPlanned || active {
				result.Errors = append(result.Errors, itemError(id, planning.CodeAlreadyScheduled, "work order is already scheduled"))
				continue
			}
			if next >= len(occurrences) {
				result.Errors = append(result.Errors, itemError(id, planning.CodeNoAvailableSlot, "template has no remaining occurrence in the range"))
				continue
			}
			occ := occurrences[next]
			techID := occ.TechnicianID
			if techID == "" && wo.AssignedTechnicianID != nil {
				techID = *wo.AssignedTechnicianID
			}
			if techID == "" {
				result.Errors = append(result.Errors, itemError(id, planning.CodeNoTechnician, "neither the template nor the work order names a technician"))
				continue
			}
			next++

			item, err := s.commitOccurrence(ctx, tx, scope, tpl.ID, wo, occ, techID)
			if err != nil {
				return err
			}
			result.Scheduled = append(result.Scheduled, *item)
			outcomes = append(outcomes, planning.CommitOutcome{StartAt: item.Slot.StartAt, Conflicts: len(item.Conflicts)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.OptimizationScore = planning.OptimizationScore(now, outcomes)
	s.metrics.RecordSlotsCreated(models.SlotSourceRecurring, len(result.Scheduled))
	for _, ie := range result.Errors {
		s.metrics.RecordBatchItemFailure(string(ie.Code))
	}
	if len(result.Scheduled) > 0 {
		s.cache.InvalidateTenant(ctx, scope)
		s.events.publish(ctx, scope, events.BatchScheduled, result)
	}
	s.logger.Info("template slots generated",
		zap.String("template_id", tpl.ID),
		zap.Int("scheduled", len(result.Scheduled)),
		zap.Int("failed", len(result.Errors)),
	)
	return result, nil
}

func (s *TemplateService) commitOccurrence(ctx context.Context, tx *sqlx.Tx, scope models.Scope, templateID string, wo models.WorkOrder, occ planning.BlueprintOccurrence, techID string) (*dto.ScheduledItem, error) {
	machineID := occ.MachineID
	if machineID == "" {
		machineID = wo.MachineID
	}
	tplID := templateID
	slot := models.PlanningSlot{
		WorkOrderID:  wo.ID,
		TechnicianID: techID,
		MachineID:    machineID,
		TemplateID:   &tplID,
		Status:       models.SlotStatusTentative,
		Source:       models.SlotSourceRecurring,
	}
	slot.SetWindow(occ.StartAt, occ.EndAt)
	if err := s.slots.Create(ctx, tx, scope, &slot); err != nil {
		return nil, translateErr(err, "", "failed to create planning slot")
	}
	conflicts, err := slotConflicts(ctx, tx, s.slots, scope, slot)
	if err != nil {
		return nil, translateErr(err, "", "failed to check slot conflicts")
	}
	if err := markPlanned(ctx, tx, s.workOrders, scope, slot); err != nil {
		return nil, translateErr(err, "work order not found", "failed to update work order plan")
	}
	return &dto.ScheduledItem{WorkOrderID: wo.ID, Slot: slot, Conflicts: conflicts}, nil
}
