package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/mops-planner-api/internal/dto"
	"github.com/noah-isme/mops-planner-api/internal/models"
	"github.com/noah-isme/mops-planner-api/internal/planning"
	"github.com/noah-isme/mops-planner-api/internal/repository"
	appErrors "github.com/noah-isme/mops-planner-api/pkg/errors"
	"github.com/noah-isme/mops-planner-api/pkg/events"
)

// SlotServiceConfig tunes manual slot handling.
type SlotServiceConfig struct {
	// ResolveHorizonDays is how far ahead conflict resolution searches for a new window.
	ResolveHorizonDays int
}

// SlotService manages planning slots directly: CRUD, bulk writes, status changes
// and conflict resolution.
type SlotService struct {
	tx          txProvider
	slots       slotStore
	workOrders  workOrderStore
	loader      calendarLoader
	locker      resourceLocker
	recommender *planning.Recommender
	clock       planning.Clock
	cache       *CacheService
	metrics     *MetricsService
	events      notifier
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         SlotServiceConfig
}

// NewSlotService wires slot management.
func NewSlotService(
	tx txProvider,
	slots slotStore,
	workOrders workOrderStore,
	technicians technicianDirectory,
	availability availabilityReader,
	locker resourceLocker,
	recommender *planning.Recommender,
	clock planning.Clock,
	cache *CacheService,
	metrics *MetricsService,
	publisher events.Publisher,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg SlotServiceConfig,
) *SlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = planning.SystemClock{}
	}
	if cfg.ResolveHorizonDays <= 0 {
		cfg.ResolveHorizonDays = 14
	}
	return &SlotService{
		tx:          tx,
		slots:       slots,
		workOrders:  workOrders,
		loader:      calendarLoader{slots: slots, technicians: technicians, availability: availability},
		locker:      locker,
		recommender: recommender,
		clock:       clock,
		cache:       cache,
		metrics:     metrics,
		events:      notifier{publisher: publisher, logger: logger},
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// List returns slots overlapping the query range.
func (s *SlotService) List(ctx context.Context, scope models.Scope, query dto.SlotListQuery) ([]models.PlanningSlot, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, validationError(err, "invalid slot query")
	}
	r, err := parseDateRange(s.recommender.Calendar(), query.DateRange)
	if err != nil {
		return nil, err
	}
	filter := models.SlotFilter{From: r.From, To: r.To, TechnicianID: query.TechnicianID, MachineID: query.MachineID, WorkOrderID: query.WorkOrderID}
	if query.Status != "" {
		filter.Statuses = []models.SlotStatus{models.SlotStatus(query.Status)}
	}
	slots, err := s.slots.List(ctx, nil, scope, filter)
	if err != nil {
		return nil, translateErr(err, "", "failed to list planning slots")
	}
	return nonNilSlots(slots), nil
}

// Get returns one slot.
func (s *SlotService) Get(ctx context.Context, scope models.Scope, id string) (*models.PlanningSlot, error) {
	slot, err := s.slots.FindByID(ctx, nil, scope, id)
	if err != nil {
		return nil, translateErr(err, "planning slot not found", "failed to load planning slot")
	}
	return slot, nil
}

// Create writes a manual slot. Overlaps are returned as advisory conflicts.
func (s *SlotService) Create(ctx context.Context, scope models.Scope, req dto.CreateSlotRequest) (*dto.SlotWithConflicts, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid planning slot payload")
	}
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	var out *dto.SlotWithConflicts
	err := inTransaction(ctx, s.tx, func(tx *sqlx.Tx) error {
		written, itemErr, err := s.createOne(ctx, tx, scope, req)
		if err != nil {
			return err
		}
		if itemErr != nil {
			return itemErrorToAPI(*itemErr)
		}
		out = written
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordSlotsCreated(out.Slot.Source, 1)
	s.cache.InvalidateTenant(ctx, scope)
	s.events.publish(ctx, scope, events.SlotCreated, out.Slot)
	return out, nil
}

func (s *SlotService) createOne(ctx context.Context, tx *sqlx.Tx, scope models.Scope, req dto.CreateSlotRequest) (*dto.SlotWithConflicts, *planning.ItemError, error) {
	wo, err := s.workOrders.FindByID(ctx, tx, scope, req.WorkOrderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			ie := itemError(req.WorkOrderID, planning.CodeNotFound, "work order not found")
			return nil, &ie, nil
		}
		return nil, nil, translateErr(err, "", "failed to load work order")
	}
	active, err := s.slots.HasActiveForWorkOrder(ctx, tx, scope, wo.ID)
	if err != nil {
		return nil, nil, translateErr(err, "", "failed to check work order slots")
	}
	if active {
		ie := itemError(wo.ID, planning.CodeAlreadyScheduled, "work order already has an active slot")
		return nil, &ie, nil
	}

	slot := models.PlanningSlot{
		WorkOrderID:  wo.ID,
		TechnicianID: req.TechnicianID,
		MachineID:    req.MachineID,
		Status:       models.SlotStatus(req.Status),
		Source:       models.SlotSource(req.Source),
		Notes:        req.Notes,
		Color:        req.Color,
	}
	if slot.MachineID == "" {
		slot.MachineID = wo.MachineID
	}
	if slot.Status == "" {
		slot.Status = models.SlotStatusPlanned
	}
	if slot.Source == "" {
		slot.Source = models.SlotSourceManual
	}
	slot.SetWindow(req.StartAt, req.EndAt)

	if err := s.locker.Lock(ctx, tx, scope, slotKeys(slot)...); err != nil {
		return nil, nil, translateErr(err, "", "failed to lock planning resources")
	}
	if err := s.slots.Create(ctx, tx, scope, &slot); err != nil {
		return nil, nil, translateErr(err, "", "failed to create planning slot")
	}
	conflicts, err := slotConflicts(ctx, tx, s.slots, scope, slot)
	if err != nil {
		return nil, nil, translateErr(err, "", "failed to check slot conflicts")
	}
	if err := markPlanned(ctx, tx, s.workOrders, scope, slot); err != nil {
		return nil, nil, translateErr(err, "work order not found", "failed to update work order plan")
	}
	return &dto.SlotWithConflicts{Slot: slot, Conflicts: conflicts}, nil, nil
}

// Update reschedules or edits a slot that has not started.
func (s *SlotService) Update(ctx context.Context, scope models.Scope, id string, req dto.UpdateSlotRequest) (*dto.SlotWithConflicts, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid planning slot payload")
	}
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	var (
		out   *dto.SlotWithConflicts
		moved bool
	)
	err := inTransaction(ctx, s.tx, func(tx *sqlx.Tx) error {
		written, wasMoved, itemErr, err := s.updateOne(ctx, tx, scope, id, req)
		if err != nil {
			return err
		}
		if itemErr != nil {
			return itemErrorToAPI(*itemErr)
		}
		out, moved = written, wasMoved
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateTenant(ctx, scope)
	if moved {
		s.events.publish(ctx, scope, events.SlotMoved, out.Slot)
	} else {
		s.events.publish(ctx, scope, events.SlotUpdated, out.Slot)
	}
	return out, nil
}

func (s *SlotService) updateOne(ctx context.Context, tx *sqlx.Tx, scope models.Scope, id string, req dto.UpdateSlotRequest) (*dto.SlotWithConflicts, bool, *planning.ItemError, error) {
	current, err := s.slots.FindByID(ctx, tx, scope, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			ie := itemError("", planning.CodeNotFound, "planning slot not found")
			return nil, false, &ie, nil
		}
		return nil, false, nil, translateErr(err, "", "failed to load planning slot")
	}
	next := *current
	if req.TechnicianID != nil {
		next.TechnicianID = *req.TechnicianID
	}
	if req.MachineID != nil {
		next.MachineID = *req.MachineID
	}
	start, end := next.StartAt, next.EndAt
	if req.StartAt != nil {
		start = *req.StartAt
	}
	if req.EndAt != nil {
		end = *req.EndAt
	}
	if req.Notes != nil {
		next.Notes = *req.Notes
	}
	if req.Color != nil {
		next.Color = *req.Color
	}
	if !start.Before(end) {
		ie := itemError(current.WorkOrderID, planning.CodeInvalidItem, "start must be before end")
		return nil, false, &ie, nil
	}
	next.SetWindow(start, end)

	moved := next.TechnicianID != current.TechnicianID || next.MachineID != current.MachineID ||
		!next.StartAt.Equal(current.StartAt) || !next.EndAt.Equal(current.EndAt)
	if moved && !current.Status.Movable() {
		ie := itemError(current.WorkOrderID, planning.CodeInvalidItem, fmt.Sprintf("a %s slot can no longer be moved", current.Status))
		return nil, false, &ie, nil
	}

	written, err := s.writeSlot(ctx, tx, scope, *current, next)
	if err != nil {
		return nil, false, nil, err
	}
	return written, moved, nil, nil
}

// writeSlot locks old and new resources, persists next, reports conflicts and
// keeps the work order plan in step.
func (s *SlotService) writeSlot(ctx context.Context, tx *sqlx.Tx, scope models.Scope, current, next models.PlanningSlot) (*dto.SlotWithConflicts, error) {
	if err := s.locker.Lock(ctx, tx, scope, slotKeys(current, next)...); err != nil {
		return nil, translateErr(err, "", "failed to lock planning resources")
	}
	if err := s.slots.Update(ctx, tx, scope, &next); err != nil {
		return nil, translateErr(err, "planning slot not found", "failed to update planning slot")
	}
	conflicts, err := slotConflicts(ctx, tx, s.slots, scope, next)
	if err != nil {
		return nil, translateErr(err, "", "failed to check slot conflicts")
	}
	if next.Status.Active() {
		if err := markPlanned(ctx, tx, s.workOrders, scope, next); err != nil {
			return nil, translateErr(err, "work order not found", "failed to update work order plan")
		}
	}
	return &dto.SlotWithConflicts{Slot: next, Conflicts: conflicts}, nil
}

// UpdateStatus moves a slot through its lifecycle. Cancelling releases the work order.
func (s *SlotService) UpdateStatus(ctx context.Context, scope models.Scope, id string, req dto.SlotStatusRequest) (*models.PlanningSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid status payload")
	}
	next := models.SlotStatus(req.Status)
	var slot *models.PlanningSlot
	err := inTransaction(ctx, s.tx, func(tx *sqlx.Tx) error {
		current, err := s.slots.FindByID(ctx, tx, scope, id)
		if err != nil {
			return translateErr(err, "planning slot not found", "failed to load planning slot")
		}
		if !current.Status.CanTransition(next) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move slot from %s to %s", current.Status, next))
		}
		if err := s.slots.UpdateStatus(ctx, tx, scope, id, next); err != nil {
			return translateErr(err, "planning slot not found", "failed to update slot status")
		}
		if next == models.SlotStatusCancelled && current.Status.Active() {
			if err := s.workOrders.ClearPlan(ctx, tx, scope, current.WorkOrderID); err != nil {
				return translateErr(err, "", "failed to release work order")
			}
		}
		current.Status = next
		slot = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateTenant(ctx, scope)
	if next == models.SlotStatusCancelled {
		s.events.publish(ctx, scope, events.SlotCancelled, slot)
	} else {
		s.events.publish(ctx, scope, events.SlotUpdated, slot)
	}
	return slot, nil
}

// Delete removes a slot and releases its work order when the slot was active.
func (s *SlotService) Delete(ctx context.Context, scope models.Scope, id string) error {
	var removed *models.PlanningSlot
	err := inTransaction(ctx, s.tx, func(tx *sqlx.Tx) error {
		current, err := s.slots.FindByID(ctx, tx, scope, id)
		if err != nil {
			return translateErr(err, "planning slot not found", "failed to load planning slot")
		}
		if err := s.slots.Delete(ctx, tx, scope, id); err != nil {
			return translateErr(err, "planning slot not found", "failed to delete planning slot")
		}
		if current.Status.Active() {
			if err := s.workOrders.ClearPlan(ctx, tx, scope, current.WorkOrderID); err != nil {
				return translateErr(err, "", "failed to release work order")
			}
		}
		removed = current
		return nil
	})
	if err != nil {
		return err
	}
	s.cache.InvalidateTenant(ctx, scope)
	s.events.publish(ctx, scope, events.SlotDeleted, removed)
	return nil
}

// BulkCreate writes several slots in one transaction. Rejected entries are
// reported by index; storage failures roll back every entry.
func (s *SlotService) BulkCreate(ctx context.Context, scope models.Scope, req dto.BulkCreateSlotsRequest) (*dto.BulkSlotsResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid bulk slot payload")
	}
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	resp := &dto.BulkSlotsResponse{Slots: []dto.SlotWithConflicts{}, Errors: []dto.BulkItemError{}}
	err := inTransaction(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.lockBulkCreate(ctx, tx, scope, req.Slots); err != nil {
			return err
		}
		for i, item := range req.Slots {
			written, itemErr, err := s.createOne(ctx, tx, scope, item)
			if err != nil {
				return err
			}
			if itemErr != nil {
				resp.Errors = append(resp.Errors, dto.BulkItemError{Index: i, ID: item.WorkOrderID, Reason: itemErr.Reason, Code: string(itemErr.Code)})
				continue
			}
			resp.Slots = append(resp.Slots, *written)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, written := range resp.Slots {
		s.metrics.RecordSlotsCreated(written.Slot.Source, 1)
		s.events.publish(ctx, scope, events.SlotCreated, written.Slot)
	}
	for _, e := range resp.Errors {
		s.metrics.RecordBatchItemFailure(e.Code)
	}
	if len(resp.Slots) > 0 {
		s.cache.InvalidateTenant(ctx, scope)
	}
	s.logger.Info("bulk slot create committed", zap.String("tenant_id", scope.TenantID()), zap.Int("created", len(resp.Slots)), zap.Int("rejected", len(resp.Errors)))
	return resp, nil
}

// BulkUpdate edits several slots in one transaction.
func (s *SlotService) BulkUpdate(ctx context.Context, scope models.Scope, req dto.BulkUpdateSlotsRequest) (*dto.BulkSlotsResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid bulk slot payload")
	}
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	resp := &dto.BulkSlotsResponse{Slots: []dto.SlotWithConflicts{}, Errors: []dto.BulkItemError{}}
	var moved []bool
	err := inTransaction(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.lockBulkUpdate(ctx, tx, scope, req.Slots); err != nil {
			return err
		}
		for i, item := range req.Slots {
			written, wasMoved, itemErr, err := s.updateOne(ctx, tx, scope, item.ID, item.UpdateSlotRequest)
			if err != nil {
				return err
			}
			if itemErr != nil {
				resp.Errors = append(resp.Errors, dto.BulkItemError{Index: i, ID: item.ID, Reason: itemErr.Reason, Code: string(itemErr.Code)})
				continue
			}
			resp.Slots = append(resp.Slots, *written)
			moved = append(moved, wasMoved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, written := range resp.Slots {
		eventType := events.SlotUpdated
		if moved[i] {
			eventType = events.SlotMoved
		}
		s.events.publish(ctx, scope, eventType, written.Slot)
	}
	if len(resp.Slots) > 0 {
		s.cache.InvalidateTenant(ctx, scope)
	}
	return resp, nil
}

// lockBulkCreate takes every resource the entries write to in one sorted call.
func (s *SlotService) lockBulkCreate(ctx context.Context, tx *sqlx.Tx, scope models.Scope, items []dto.CreateSlotRequest) error {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.WorkOrderID)
	}
	orders, err := s.workOrders.FindByIDs(ctx, tx, scope, ids)
	if err != nil {
		return translateErr(err, "", "failed to load work orders")
	}
	keys := make([]repository.ResourceKey, 0, len(items)*2+len(orders))
	for _, item := range items {
		keys = append(keys,
			repository.ResourceKey{Dimension: models.DimensionTechnician, ID: item.TechnicianID},
			repository.ResourceKey{Dimension: models.DimensionMachine, ID: item.MachineID},
		)
	}
	for _, wo := range orders {
		keys = append(keys, repository.ResourceKey{Dimension: models.DimensionMachine, ID: wo.MachineID})
	}
	if err := s.locker.Lock(ctx, tx, scope, keys...); err != nil {
		return translateErr(err, "", "failed to lock planning resources")
	}
	return nil
}

// lockBulkUpdate takes the current and requested resources of every entry in one
// sorted call. Unknown slots are left for updateOne to report.
func (s *SlotService) lockBulkUpdate(ctx context.Context, tx *sqlx.Tx, scope models.Scope, items []dto.BulkUpdateSlotItem) error {
	var keys []repository.ResourceKey
	for _, item := range items {
		current, err := s.slots.FindByID(ctx, tx, scope, item.ID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			continue
		case err != nil:
			return translateErr(err, "", "failed to load planning slot")
		}
		keys = append(keys, slotKeys(*current)...)
		if item.TechnicianID != nil {
			keys = append(keys, repository.ResourceKey{Dimension: models.DimensionTechnician, ID: *item.TechnicianID})
		}
		if item.MachineID != nil {
			keys = append(keys, repository.ResourceKey{Dimension: models.DimensionMachine, ID: *item.MachineID})
		}
	}
	if err := s.locker.Lock(ctx, tx, scope, keys...); err != nil {
		return translateErr(err, "", "failed to lock planning resources")
	}
	return nil
}

// ResolveConflict moves a slot out of its conflicts. An explicit start or
// technician is applied as given; otherwise the slot goes to the best recommended
// window from its current day over the configured horizon. Remaining overlaps are
// returned as advisory conflicts.
func (s *SlotService) ResolveConflict(ctx context.Context, scope models.Scope, slotID string, req dto.ResolveConflictRequest) (*dto.SlotWithConflicts, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	cal := s.recommender.Calendar()
	var out *dto.SlotWithConflicts
	err := inTransaction(ctx, s.tx, func(tx *sqlx.Tx) error {
		current, err := s.slots.FindByID(ctx, tx, scope, slotID)
		if err != nil {
			return translateErr(err, "planning slot not found", "failed to load planning slot")
		}
		if !current.Status.Movable() {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("a %s slot can no longer be moved", current.Status))
		}
		next := *current
		duration := current.EndAt.Sub(current.StartAt)

		if req.StartAt != nil || req.TechnicianID != nil {
			if req.TechnicianID != nil {
				next.TechnicianID = *req.TechnicianID
			}
			if req.StartAt != nil {
				next.SetWindow(*req.StartAt, req.StartAt.Add(duration))
			}
		} else {
			from := cal.StartOfDay(current.StartAt)
			if today := cal.StartOfDay(s.clock.Now()); today.After(from) {
				from = today
			}
			r := planning.Range{From: from, To: from.AddDate(0, 0, s.cfg.ResolveHorizonDays)}
			techs, err := s.loader.technicians.List(ctx, scope)
			if err != nil {
				return translateErr(err, "", "failed to load technicians")
			}
			keys := append(batchKeys(techs, nil), slotKeys(*current)...)
			if err := s.locker.Lock(ctx, tx, scope, keys...); err != nil {
				return translateErr(err, "", "failed to lock planning resources")
			}
			snapshot, err := s.loader.load(ctx, tx, scope, r)
			if err != nil {
				return err
			}
			options, err := s.recommender.AllOptions(planning.RecommendInput{
				MachineID:             current.MachineID,
				DurationMinutes:       current.DurationMinutes,
				PreferredTechnicianID: current.TechnicianID,
				Technicians:           snapshot.technicians,
				Range:                 r,
				ExcludeSlotID:         current.ID,
				Busy:                  snapshot.busy,
				Exceptions:            snapshot.exceptions,
			})
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "cannot recommend a new window for this slot")
			}
			best, ok := firstClearOption(options, current.ID, snapshot.busy, snapshot.machines)
			if !ok {
				return appErrors.Clone(appErrors.ErrPreconditionFailed, "no conflict-free window found in the search horizon")
			}
			next.TechnicianID = best.TechnicianID
			next.SetWindow(best.StartAt, best.EndAt)
		}

		written, err := s.writeSlot(ctx, tx, scope, *current, next)
		if err != nil {
			return err
		}
		out = written
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateTenant(ctx, scope)
	s.events.publish(ctx, scope, events.SlotMoved, out.Slot)
	return out, nil
}

// itemErrorToAPI converts a single-item infeasibility into a request error.
func itemErrorToAPI(ie planning.ItemError) error {
	switch ie.Code {
	case planning.CodeNotFound:
		return appErrors.Clone(appErrors.ErrNotFound, ie.Reason)
	case planning.CodeAlreadyScheduled:
		return appErrors.Clone(appErrors.ErrConflict, ie.Reason)
	case planning.CodeInvalidItem, planning.CodeMachineMismatch:
		return appErrors.Clone(appErrors.ErrValidation, ie.Reason)
	case planning.CodeNoAvailableSlot, planning.CodeDoesNotFit, planning.CodeNoTechnician:
		return appErrors.Clone(appErrors.ErrPreconditionFailed, ie.Reason)
	}
	return appErrors.Clone(appErrors.ErrValidation, ie.Reason)
}
