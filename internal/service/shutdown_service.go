package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

type shutdownStore interface {
	List(ctx context.Context, scope models.Scope, filter models.ShutdownFilter) ([]models.PlannedShutdown, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, id string, forUpdate bool) (*models.PlannedShutdown, error)
	Create(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, item *models.PlannedShutdown) error
	Update(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, item *models.PlannedShutdown) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, id string, status models.ShutdownStatus) error
	Delete(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, id string) error
}

// ShutdownServiceConfig tunes shutdown packing.
type ShutdownServiceConfig struct {
	DefaultDurationMinutes int
}

// ShutdownService manages planned outages and packs work into them.
type ShutdownService struct {
	tx          txProvider
	shutdowns   shutdownStore
	slots       slotStore
	workOrders  workOrderStore
	technicians technicianDirectory
	machines    machineDirectory
	locker      resourceLocker
	calendar    planning.WorkCalendar
	clock       planning.Clock
	cache       *CacheService
	metrics     *MetricsService
	events      notifier
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         ShutdownServiceConfig
}

// NewShutdownService wires the shutdown planner.
func NewShutdownService(
	tx txProvider,
	shutdowns shutdownStore,
	slots slotStore,
	workOrders workOrderStore,
	technicians technicianDirectory,
	machines machineDirectory,
	locker resourceLocker,
	calendar planning.WorkCalendar,
	clock planning.Clock,
	cache *CacheService,
	metrics *MetricsService,
	publisher events.Publisher,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ShutdownServiceConfig,
) *ShutdownService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = planning.SystemClock{}
	}
	cfg.DefaultDurationMinutes = planning.DefaultDuration(cfg.DefaultDurationMinutes)
	return &ShutdownService{
		tx:          tx,
		shutdowns:   shutdowns,
		slots:       slots,
		workOrders:  workOrders,
		technicians: technicians,
		machines:    machines,
		locker:      locker,
		calendar:    calendar,
		clock:       clock,
		cache:       cache,
		metrics:     metrics,
		events:      notifier{publisher: publisher, logger: logger},
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// List returns shutdowns matching the query.
func (s *ShutdownService) List(ctx context.Context, scope models.Scope, query dto.ShutdownListQuery) ([]models.PlannedShutdown, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, validationError(err, "invalid shutdown query")
	}
	filter := models.ShutdownFilter{MachineID: query.MachineID, LocationID: query.LocationID}
	if query.From != "" {
		from, err := time.ParseInLocation(dto.DateLayout, query.From, s.calendar.Location)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrInvalidRange, "from must be a YYYY-MM-DD date")
		}
		filter.From = s.calendar.StartOfDay(from)
	}
	if query.To != "" {
		to, err := time.ParseInLocation(dto.DateLayout, query.To, s.calendar.Location)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrInvalidRange, "to must be a YYYY-MM-DD date")
		}
		filter.To = s.calendar.StartOfDay(to).AddDate(0, 0, 1)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "from must not be after to")
	}
	if query.Status != "" {
		filter.Statuses = []models.ShutdownStatus{models.ShutdownStatus(query.Status)}
	}
	items, err := s.shutdowns.List(ctx, scope, filter)
	if err != nil {
		return nil, translateErr(err, "", "failed to list shutdowns")
	}
	if items == nil {
		items = []models.PlannedShutdown{}
	}
	return items, nil
}

// Get returns one shutdown.
func (s *ShutdownService) Get(ctx context.Context, scope models.Scope, id string) (*models.PlannedShutdown, error) {
	item, err := s.shutdowns.FindByID(ctx, nil, scope, id, false)
	if err != nil {
		return nil, translateErr(err, "shutdown not found", "failed to load shutdown")
	}
	return item, nil
}

// Create registers an outage on a machine or a location.
func (s *ShutdownService) Create(ctx context.Context, scope models.Scope, req dto.CreateShutdownRequest) (*models.PlannedShutdown, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid shutdown payload")
	}
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	if req.MachineID != nil && req.LocationID != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a shutdown covers either a machine or a location")
	}
	if req.MachineID != nil {
		if _, err := s.machines.FindByID(ctx, scope, *req.MachineID); err != nil {
			return nil, translateErr(err, "machine not found", "failed to load machine")
		}
	}
	item := &models.PlannedShutdown{
		Title:        req.Title,
		MachineID:    req.MachineID,
		LocationID:   req.LocationID,
		StartAt:      req.StartAt,
		EndAt:        req.EndAt,
		ShutdownType: models.ShutdownType(req.ShutdownType),
		Description:  req.Description,
	}
	if err := s.shutdowns.Create(ctx, nil, scope, item); err != nil {
		return nil, translateErr(err, "", "failed to create shutdown")
	}
	s.events.publish(ctx, scope, events.ShutdownStatusChanged, item)
	return item, nil
}

// Update edits a shutdown that has not started yet.
func (s *ShutdownService) Update(ctx context.Context, scope models.Scope, id string, req dto.UpdateShutdownRequest) (*models.PlannedShutdown, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid shutdown payload")
	}
	var item *models.PlannedShutdown
	err := inTransaction(ctx, s.tx, func(tx *sqlx.Tx) error {
		current, err := s.shutdowns.FindByID(ctx, tx, scope, id, true)
		if err != nil {
			return translateErr(err, "shutdown not found", "failed to load shutdown")
		}
		if current.Status != models.ShutdownStatusScheduled {
			return appErrors.Clone(appErrors.ErrConflict, "only scheduled shutdowns can be edited")
		}
		if req.Title != nil {
			current.Title = *req.Title
		}
		if req.StartAt != nil {
			current.StartAt = *req.StartAt
		}
		if req.EndAt != nil {
			current.EndAt = *req.EndAt
		}
		if req.ShutdownType != nil {
			current.ShutdownType = models.ShutdownType(*req.ShutdownType)
		}
		if req.Description != nil {
			current.Description = *req.Description
		}
		if !current.StartAt.Before(current.EndAt) {
			return appErrors.Clone(appErrors.ErrValidation, "start must be before end")
		}
		if err := s.shutdowns.Update(ctx, tx, scope, current); err != nil {
			return translateErr(err, "shutdown not found", "failed to update shutdown")
		}
		item = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Delete cancels the slots a shutdown owns, releases their work orders and removes it.
func (s *ShutdownService) Delete(ctx context.Context, scope models.Scope, id string) error {
	err := inTransaction(ctx, s.tx, func(tx *sqlx.Tx) error {
		if _, err := s.shutdowns.FindByID(ctx, tx, scope, id, true); err != nil {
			return translateErr(err, "shutdown not found", "failed to load shutdown")
		}
		if err := s.releaseSlots(ctx, tx, scope, id); err != nil {
			return err
		}
		if err := s.shutdowns.Delete(ctx, tx, scope, id); err != nil {
			return translateErr(err, "shutdown not found", "failed to delete shutdown")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.cache.InvalidateTenant(ctx, scope)
	return nil
}

func (s *ShutdownService) releaseSlots(ctx context.Context, tx *sqlx.Tx, scope models.Scope, shutdownID string) error {
	workOrders, err := s.slots.CancelByShutdown(ctx, tx, scope, shutdownID)
	if err != nil {
		return translateErr(err, "", "failed to cancel shutdown slots")
	}
	if len(workOrders) == 0 {
		return nil
	}
	if err := s.workOrders.ClearPlan(ctx, tx, scope, workOrders...); err != nil {
		return translateErr(err, "", "failed to release work orders")
	}
	return nil
}

// Start moves a scheduled shutdown in progress.
func (s *ShutdownService) Start(ctx context.Context, scope models.Scope, id string) (*models.PlannedShutdown, error) {
	return s.transition(ctx, scope, id, models.ShutdownStatusInProgress)
}

// Complete closes an in-progress shutdown.
func (s *ShutdownService) Complete(ctx context.Context, scope models.Scope, id string) (*models.PlannedShutdown, error) {
	return s.transition(ctx, scope, id, models.ShutdownStatusCompleted)
}

// Cancel aborts a shutdown and cancels the work planned into it.
func (s *ShutdownService) Cancel(ctx context.Context, scope models.Scope, id string) (*models.PlannedShutdown, error) {
	return s.transition(ctx, scope, id, models.ShutdownStatusCancelled)
}

func (s *ShutdownService) transition(ctx context.Context, scope models.Scope, id string, next models.ShutdownStatus) (*models.PlannedShutdown, error) {
	var item *models.PlannedShutdown
	err := inTransaction(ctx, s.tx, func(tx *sqlx.Tx) error {
		current, err := s.shutdowns.FindByID(ctx, tx, scope, id, true)
		if err != nil {
			return translateErr(err, "shutdown not found", "failed to load shutdown")
		}
		if !current.Status.CanTransition(next) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move shutdown from %s to %s", current.Status, next))
		}
		if err := s.shutdowns.UpdateStatus(ctx, tx, scope, id, next); err != nil {
			return translateErr(err, "shutdown not found", "failed to update shutdown status")
		}
		if next == models.ShutdownStatusCancelled {
			if err := s.releaseSlots(ctx, tx, scope, id); err != nil {
				return err
			}
		}
		current.Status = next
		item = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	if next == models.ShutdownStatusCancelled {
		s.cache.InvalidateTenant(ctx, scope)
	}
	s.events.publish(ctx, scope, events.ShutdownStatusChanged, item)
	s.logger.Info("shutdown status changed", zap.String("shutdown_id", id), zap.String("status", string(next)))
	return item, nil
}

// PlanWork packs work orders back to back into the shutdown window in request
// order, resuming after work already planned into it. Items that cannot be
// placed are reported; the rest are committed together.
func (s *ShutdownService) PlanWork(ctx context.Context, scope models.Scope, shutdownID string, req dto.PlanShutdownWorkRequest) (*dto.BatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid shutdown plan payload")
	}
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	result := &dto.BatchResult{Scheduled: []dto.ScheduledItem{}, Errors: []planning.ItemError{}}
	var outcomes []planning.CommitOutcome
	err := inTransaction(ctx, s.tx, func(tx *sqlx.Tx) error {
		sd, err := s.shutdowns.FindByID(ctx, tx, scope, shutdownID, true)
		if err != nil {
			return translateErr(err, "shutdown not found", "failed to load shutdown")
		}
		if !sd.Status.Plannable() {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("a %s shutdown cannot take more work", sd.Status))
		}
		cursor := sd.StartAt
		latest, err := s.slots.LatestShutdownEnd(ctx, tx, scope, sd.ID)
		if err != nil {
			return translateErr(err, "", "failed to read shutdown plan")
		}
		if latest != nil && latest.After(cursor) {
			cursor = *latest
		}

		techs, err := s.technicians.List(ctx, scope)
		if err != nil {
			return translateErr(err, "", "failed to load technicians")
		}
		orders, err := s.workOrders.FindByIDs(ctx, tx, scope, req.WorkOrderIDs)
		if err != nil {
			return translateErr(err, "", "failed to load work orders")
		}
		if err := s.locker.Lock(ctx, tx, scope, batchKeys(techs, orders)...); err != nil {
			return translateErr(err, "", "failed to lock planning resources")
		}
		// Read under the locks so packing sees every committed booking.
		window, err := s.slots.List(ctx, tx, scope, models.SlotFilter{From: sd.StartAt, To: sd.EndAt, ActiveOnly: true})
		if err != nil {
			return translateErr(err, "", "failed to load planning slots")
		}
		byID := make(map[string]models.WorkOrder, len(orders))
		for _, wo := range orders {
			byID[wo.ID] = wo
		}

		// Errors found before packing keep their input position.
		pending := make(map[string]planning.ItemError)
		var items []planning.PackItem
		for _, id := range req.WorkOrderIDs {
			wo, ok := byID[id]
			if !ok {
				pending[id] = itemError(id, planning.CodeNotFound, "work order not found")
				continue
			}
			active, err := s.slots.HasActiveForWorkOrder(ctx, tx, scope, id)
			if err != nil {
				return translateErr(err, "", "failed to check work order slots")
			}
			if wo.IsPlanned || active {
				pending[id] = itemError(id, planning.CodeAlreadyScheduled, "work order is already scheduled")
				continue
			}
			item := planning.PackItem{
				WorkOrderID:     wo.ID,
				MachineID:       wo.MachineID,
				DurationMinutes: wo.DurationOr(s.cfg.DefaultDurationMinutes),
			}
			if wo.AssignedTechnicianID != nil {
				item.AssignedTechnicianID = *wo.AssignedTechnicianID
			}
			if sd.LocationID != nil {
				machine, err := s.machines.FindByID(ctx, scope, wo.MachineID)
				switch {
				case errors.Is(err, sql.ErrNoRows):
				case err != nil:
					return translateErr(err, "", "failed to load machine")
				case machine.LocationID != nil:
					item.MachineLocationID = *machine.LocationID
				}
			}
			items = append(items, item)
		}

		packed := planning.PackShutdown(planning.PackInput{
			Shutdown:    *sd,
			Cursor:      cursor,
			Items:       items,
			Technicians: techs,
			Busy:        planning.NewIntervalIndex(models.DimensionTechnician, window),
		})
		byItem := make(map[string]planning.PackResult, len(packed))
		for _, p := range packed {
			if p.Placement != nil {
				byItem[p.Placement.WorkOrderID] = p
			} else if p.Error != nil {
				byItem[p.Error.WorkOrderID] = p
			}
		}

		for _, id := range req.WorkOrderIDs {
			if ie, ok := pending[id]; ok {
				result.Errors = append(result.Errors, ie)
				continue
			}
			p, ok := byItem[id]
			if !ok {
				continue
			}
			if p.Error != nil {
				result.Errors = append(result.Errors, *p.Error)
				continue
			}
			item, err := s.commitPlacement(ctx, tx, scope, sd, *p.Placement)
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

	result.OptimizationScore = planning.OptimizationScore(s.clock.Now(), outcomes)
	s.metrics.RecordSlotsCreated(models.SlotSourceShutdown, len(result.Scheduled))
	for _, ie := range result.Errors {
		s.metrics.RecordBatchItemFailure(string(ie.Code))
		s.logger.Debug("work order not packed", zap.String("work_order_id", ie.WorkOrderID), zap.String("code", string(ie.Code)))
	}
	if len(result.Scheduled) > 0 {
		s.cache.InvalidateTenant(ctx, scope)
		s.events.publish(ctx, scope, events.BatchScheduled, result)
	}
	s.logger.Info("shutdown work planned",
		zap.String("tenant_id", scope.TenantID()),
		zap.String("shutdown_id", shutdownID),
		zap.Int("scheduled", len(result.Scheduled)),
		zap.Int("failed", len(result.Errors)),
	)
	return result, nil
}

func (s *ShutdownService) commitPlacement(ctx context.Context, tx *sqlx.Tx, scope models.Scope, sd *models.PlannedShutdown, p planning.Placement) (*dto.ScheduledItem, error) {
	shutdownID := sd.ID
	slot := models.PlanningSlot{
		WorkOrderID:  p.WorkOrderID,
		TechnicianID: p.TechnicianID,
		MachineID:    p.MachineID,
		LocationID:   sd.LocationID,
		ShutdownID:   &shutdownID,
		Status:       models.SlotStatusPlanned,
		Source:       models.SlotSourceShutdown,
	}
	slot.SetWindow(p.StartAt, p.EndAt)
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
	return &dto.ScheduledItem{WorkOrderID: p.WorkOrderID, Slot: slot, Conflicts: conflicts}, nil
}
