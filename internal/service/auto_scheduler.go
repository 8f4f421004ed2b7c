package service

import (
	"context"
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

// maxPlacementAttempts bounds how often a work order is re-placed after the
// chosen window was taken between recommendation and lock.
const maxPlacementAttempts = 3

// AutoSchedulerConfig tunes batch scheduling.
type AutoSchedulerConfig struct {
	MaxBatchSize           int
	DefaultDurationMinutes int
}

// AutoScheduler places batches of work orders into the best free technician windows.
type AutoScheduler struct {
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
	cfg         AutoSchedulerConfig
}

// NewAutoScheduler wires the batch scheduler.
func NewAutoScheduler(
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
	cfg AutoSchedulerConfig,
) *AutoScheduler {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = planning.SystemClock{}
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 200
	}
	cfg.DefaultDurationMinutes = planning.DefaultDuration(cfg.DefaultDurationMinutes)
	return &AutoScheduler{
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

// Schedule places each work order, in request order, into its best recommended
// window. Infeasible items are reported in the result; a storage failure rolls
// back the whole batch.
func (s *AutoScheduler) Schedule(ctx context.Context, scope models.Scope, req dto.AutoScheduleRequest) (*dto.BatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid auto-schedule payload")
	}
	if len(req.WorkOrderIDs) > s.cfg.MaxBatchSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d work orders per batch", s.cfg.MaxBatchSize))
	}
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	r, err := parseDateRange(s.recommender.Calendar(), req.DateRange)
	if err != nil {
		return nil, err
	}

	result := &dto.BatchResult{Scheduled: []dto.ScheduledItem{}, Errors: []planning.ItemError{}}
	var outcomes []planning.CommitOutcome
	err = inTransaction(ctx, s.tx, func(tx *sqlx.Tx) error {
		result.Scheduled = result.Scheduled[:0]
		result.Errors = result.Errors[:0]
		outcomes = outcomes[:0]

		orders, err := s.workOrders.FindByIDs(ctx, tx, scope, req.WorkOrderIDs)
		if err != nil {
			return translateErr(err, "", "failed to load work orders")
		}
		techs, err := s.loader.technicians.List(ctx, scope)
		if err != nil {
			return translateErr(err, "", "failed to load technicians")
		}
		if err := s.locker.Lock(ctx, tx, scope, batchKeys(techs, orders)...); err != nil {
			return translateErr(err, "", "failed to lock planning resources")
		}
		snapshot, err := s.loader.load(ctx, tx, scope, r)
		if err != nil {
			return err
		}
		byID := make(map[string]models.WorkOrder, len(orders))
		for _, wo := range orders {
			byID[wo.ID] = wo
		}

		for _, id := range req.WorkOrderIDs {
			wo, ok := byID[id]
			if !ok {
				result.Errors = append(result.Errors, itemError(id, planning.CodeNotFound, "work order not found"))
				continue
			}
			item, itemErr, err := s.placeOne(ctx, tx, scope, r, snapshot, wo)
			if err != nil {
				return err
			}
			if itemErr != nil {
				result.Errors = append(result.Errors, *itemErr)
				continue
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
	s.afterCommit(ctx, scope, result)
	return result, nil
}

// placeOne recommends, re-verifies and writes one work order under the batch
// locks. A non-nil ItemError means the work order was skipped; an error aborts
// the batch.
func (s *AutoScheduler) placeOne(ctx context.Context, tx *sqlx.Tx, scope models.Scope, r planning.Range, snapshot *calendarSnapshot, wo models.WorkOrder) (*dto.ScheduledItem, *planning.ItemError, error) {
	if wo.IsPlanned {
		ie := itemError(wo.ID, planning.CodeAlreadyScheduled, "work order is already scheduled")
		return nil, &ie, nil
	}
	scheduled, err := s.slots.HasActiveForWorkOrder(ctx, tx, scope, wo.ID)
	if err != nil {
		return nil, nil, translateErr(err, "", "failed to check work order slots")
	}
	if scheduled {
		ie := itemError(wo.ID, planning.CodeAlreadyScheduled, "work order is already scheduled")
		return nil, &ie, nil
	}

	preferred := ""
	if wo.AssignedTechnicianID != nil {
		preferred = *wo.AssignedTechnicianID
	}
	input := planning.RecommendInput{
		MachineID:             wo.MachineID,
		DurationMinutes:       wo.DurationOr(s.cfg.DefaultDurationMinutes),
		PreferredTechnicianID: preferred,
		Technicians:           snapshot.technicians,
		Range:                 r,
		Busy:                  snapshot.busy,
		Exceptions:            snapshot.exceptions,
	}

	for attempt := 0; attempt < maxPlacementAttempts; attempt++ {
		started := time.Now()
		options, err := s.recommender.AllOptions(input)
		s.metrics.ObserveRecommendation(time.Since(started))
		if err != nil {
			ie := itemError(wo.ID, planning.CodeInvalidItem, err.Error())
			return nil, &ie, nil
		}
		best, ok := firstClearOption(options, "", snapshot.busy, snapshot.machines)
		if !ok {
			break
		}
		slot := models.PlanningSlot{
			WorkOrderID:  wo.ID,
			TechnicianID: best.TechnicianID,
			MachineID:    wo.MachineID,
			Status:       models.SlotStatusTentative,
			Source:       models.SlotSourceAutoPM,
		}
		slot.SetWindow(best.StartAt, best.EndAt)

		taken, err := overlappingSlots(ctx, tx, s.slots, scope, slot)
		if err != nil {
			return nil, nil, translateErr(err, "", "failed to verify planning window")
		}
		if len(taken) > 0 {
			for _, other := range taken {
				snapshot.busy.Add(other)
				snapshot.machines.Add(other)
			}
			s.logger.Debug("recommended window taken, retrying", zap.String("work_order_id", wo.ID), zap.Int("attempt", attempt+1))
			continue
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
		snapshot.busy.Add(slot)
		snapshot.machines.Add(slot)
		return &dto.ScheduledItem{
			WorkOrderID: wo.ID,
			Slot:        slot,
			Score:       best.Score,
			Reasons:     best.Reasons,
			Conflicts:   conflicts,
		}, nil, nil
	}
	ie := itemError(wo.ID, planning.CodeNoAvailableSlot, "no available slot in the requested range")
	return nil, &ie, nil
}

func (s *AutoScheduler) afterCommit(ctx context.Context, scope models.Scope, result *dto.BatchResult) {
	s.metrics.RecordSlotsCreated(models.SlotSourceAutoPM, len(result.Scheduled))
	for _, ie := range result.Errors {
		s.metrics.RecordBatchItemFailure(string(ie.Code))
		s.logger.Debug("work order not scheduled", zap.String("work_order_id", ie.WorkOrderID), zap.String("code", string(ie.Code)))
	}
	if len(result.Scheduled) > 0 {
		s.cache.InvalidateTenant(ctx, scope)
		s.events.publish(ctx, scope, events.BatchScheduled, result)
	}
	s.logger.Info("auto-schedule batch committed",
		zap.String("tenant_id", scope.TenantID()),
		zap.Int("scheduled", len(result.Scheduled)),
		zap.Int("failed", len(result.Errors)),
		zap.Float64("optimization_score", result.OptimizationScore),
	)
}
