package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/mops-planner-api/internal/dto"
	"github.com/noah-isme/mops-planner-api/internal/models"
	"github.com/noah-isme/mops-planner-api/internal/planning"
	"github.com/noah-isme/mops-planner-api/internal/repository"
	"github.com/noah-isme/mops-planner-api/pkg/events"
)

// RebalanceService shifts movable work from overloaded to underloaded technicians.
type RebalanceService struct {
	tx          txProvider
	slots       slotStore
	technicians technicianDirectory
	loader      calendarLoader
	locker      resourceLocker
	calendar    planning.WorkCalendar
	cache       *CacheService
	metrics     *MetricsService
	events      notifier
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewRebalanceService wires the rebalancer.
func NewRebalanceService(
	tx txProvider,
	slots slotStore,
	technicians technicianDirectory,
	availability availabilityReader,
	locker resourceLocker,
	calendar planning.WorkCalendar,
	cache *CacheService,
	metrics *MetricsService,
	publisher events.Publisher,
	validate *validator.Validate,
	logger *zap.Logger,
) *RebalanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RebalanceService{
		tx:          tx,
		slots:       slots,
		technicians: technicians,
		loader:      calendarLoader{slots: slots, technicians: technicians, availability: availability},
		locker:      locker,
		calendar:    calendar,
		cache:       cache,
		metrics:     metrics,
		events:      notifier{publisher: publisher, logger: logger},
		validator:   validate,
		logger:      logger,
	}
}

// Rebalance plans and applies moves over the range. Every technician is locked for
// the duration so the running utilization cannot drift from storage.
func (s *RebalanceService) Rebalance(ctx context.Context, scope models.Scope, req dto.RebalanceRequest) (*dto.RebalanceResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid rebalance payload")
	}
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	r, err := parseDateRange(s.calendar, req.DateRange)
	if err != nil {
		return nil, err
	}

	resp := &dto.RebalanceResponse{Moves: []planning.Move{}}
	err = inTransaction(ctx, s.tx, func(tx *sqlx.Tx) error {
		techs, err := s.technicians.List(ctx, scope)
		if err != nil {
			return translateErr(err, "", "failed to load technicians")
		}
		keys := make([]repository.ResourceKey, 0, len(techs))
		for _, t := range techs {
			keys = append(keys, repository.ResourceKey{Dimension: models.DimensionTechnician, ID: t.ID})
		}
		if err := s.locker.Lock(ctx, tx, scope, keys...); err != nil {
			return translateErr(err, "", "failed to lock technicians")
		}

		snapshot, err := s.loader.load(ctx, tx, scope, r)
		if err != nil {
			return err
		}
		resp.Before = capacityReport(s.calendar, r, snapshot.technicians, snapshot.exceptions, snapshot.slots)

		loads := make([]planning.TechnicianLoad, 0, len(snapshot.technicians))
		byTech := make(map[string][]models.PlanningSlot)
		for _, slot := range snapshot.slots {
			byTech[slot.TechnicianID] = append(byTech[slot.TechnicianID], slot)
		}
		for _, t := range snapshot.technicians {
			loads = append(loads, planning.TechnicianLoad{
				TechnicianID:     t.ID,
				AvailableMinutes: float64(s.calendar.AvailableMinutes(r, snapshot.exceptions[t.ID])),
				PlannedMinutes:   float64(planning.PlannedMinutes(byTech[t.ID], r)),
			})
		}

		busy, err := s.busyAround(ctx, tx, scope, r, snapshot)
		if err != nil {
			return err
		}
		plan := planning.PlanRebalance(loads, snapshot.slots, busy)
		resp.AlreadyBalanced = plan.AlreadyBalanced
		if plan.AlreadyBalanced {
			return nil
		}

		byID := make(map[string]models.PlanningSlot, len(snapshot.slots))
		for _, slot := range snapshot.slots {
			byID[slot.ID] = slot
		}
		for _, move := range plan.Moves {
			slot, ok := byID[move.SlotID]
			if !ok {
				continue
			}
			slot.TechnicianID = move.ToTechnicianID
			if err := s.slots.Update(ctx, tx, scope, &slot); err != nil {
				return translateErr(err, "planning slot not found", "failed to move planning slot")
			}
			resp.Moves = append(resp.Moves, move)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if resp.AlreadyBalanced {
		resp.Message = "workload already balanced"
		resp.After = resp.Before
		return resp, nil
	}

	snapshot, err := s.loader.load(ctx, nil, scope, r)
	if err != nil {
		return nil, err
	}
	resp.After = capacityReport(s.calendar, r, snapshot.technicians, snapshot.exceptions, snapshot.slots)
	resp.Message = fmt.Sprintf("moved %d slots", len(resp.Moves))

	s.metrics.RecordRebalanceMoves(len(resp.Moves))
	if len(resp.Moves) > 0 {
		s.cache.InvalidateTenant(ctx, scope)
		s.events.publish(ctx, scope, events.RebalanceCompleted, resp.Moves)
	}
	s.logger.Info("rebalance committed", zap.String("tenant_id", scope.TenantID()), zap.Int("moves", len(resp.Moves)))
	return resp, nil
}

// busyAround indexes technician bookings over the full windows of the slots in
// range, so a slot straddling the range edge is checked against receivers' work
// outside the range too.
func (s *RebalanceService) busyAround(ctx context.Context, tx *sqlx.Tx, scope models.Scope, r planning.Range, snapshot *calendarSnapshot) (*planning.IntervalIndex, error) {
	from, to := r.From, r.To
	for _, slot := range snapshot.slots {
		if slot.StartAt.Before(from) {
			from = slot.StartAt
		}
		if slot.EndAt.After(to) {
			to = slot.EndAt
		}
	}
	if from.Equal(r.From) && to.Equal(r.To) {
		return snapshot.busy, nil
	}
	slots, err := s.slots.List(ctx, tx, scope, models.SlotFilter{From: from, To: to, ActiveOnly: true})
	if err != nil {
		return nil, translateErr(err, "", "failed to load planning slots")
	}
	return planning.NewIntervalIndex(models.DimensionTechnician, slots), nil
}
