package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/mops-planner-api/internal/dto"
	"github.com/noah-isme/mops-planner-api/internal/models"
	"github.com/noah-isme/mops-planner-api/internal/planning"
	"github.com/noah-isme/mops-planner-api/internal/repository"
	appErrors "github.com/noah-isme/mops-planner-api/pkg/errors"
	"github.com/noah-isme/mops-planner-api/pkg/events"
)

// maxRangeDays bounds every date-range request.
const maxRangeDays = 366

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type slotStore interface {
	List(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, filter models.SlotFilter) ([]models.PlanningSlot, error)
	ListOverlapping(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, dim models.Dimension, resourceID string, start, end time.Time, excludeID string) ([]models.PlanningSlot, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, id string) (*models.PlanningSlot, error)
	HasActiveForWorkOrder(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, workOrderID string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, slot *models.PlanningSlot) error
	Update(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, slot *models.PlanningSlot) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, id string, status models.SlotStatus) error
	Delete(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, id string) error
	CancelByShutdown(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, shutdownID string) ([]string, error)
	LatestShutdownEnd(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, shutdownID string) (*time.Time, error)
	ListCompletedActuals(ctx context.Context, scope models.Scope, from, to time.Time) ([]models.SlotActual, error)
}

type workOrderStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, id string) (*models.WorkOrder, error)
	FindByIDs(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, ids []string) ([]models.WorkOrder, error)
	ListUnplanned(ctx context.Context, scope models.Scope) ([]models.WorkOrder, error)
	MarkPlanned(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, plan models.WorkOrderPlan) error
	ClearPlan(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, workOrderIDs ...string) error
}

type technicianDirectory interface {
	List(ctx context.Context, scope models.Scope) ([]models.Technician, error)
	FindByID(ctx context.Context, scope models.Scope, id string) (*models.Technician, error)
}

type machineDirectory interface {
	FindByID(ctx context.Context, scope models.Scope, id string) (*models.Machine, error)
}

type availabilityReader interface {
	List(ctx context.Context, scope models.Scope, filter models.AvailabilityFilter) ([]models.TechnicianAvailability, error)
}

type resourceLocker interface {
	Lock(ctx context.Context, tx sqlx.ExtContext, scope models.Scope, keys ...repository.ResourceKey) error
}

// translateErr maps repository errors onto API errors. Errors that are already
// typed pass through unchanged.
func translateErr(err error, notFound, internal string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrMissingScope) {
		return appErrors.Clone(appErrors.ErrMissingTenant, "")
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}

func requireScope(scope models.Scope) error {
	if !scope.Valid() {
		return appErrors.Clone(appErrors.ErrMissingTenant, "")
	}
	return nil
}

// parseDateRange converts an inclusive from/to pair into a calendar range.
func parseDateRange(cal planning.WorkCalendar, dr dto.DateRange) (planning.Range, error) {
	from, err := time.ParseInLocation(dto.DateLayout, dr.From, cal.Location)
	if err != nil {
		return planning.Range{}, appErrors.Clone(appErrors.ErrInvalidRange, "from must be a YYYY-MM-DD date")
	}
	to, err := time.ParseInLocation(dto.DateLayout, dr.To, cal.Location)
	if err != nil {
		return planning.Range{}, appErrors.Clone(appErrors.ErrInvalidRange, "to must be a YYYY-MM-DD date")
	}
	if to.Before(from) {
		return planning.Range{}, appErrors.Clone(appErrors.ErrInvalidRange, "from must not be after to")
	}
	r, err := cal.DayRange(from, to)
	if err != nil {
		return planning.Range{}, appErrors.Wrap(err, appErrors.ErrInvalidRange.Code, appErrors.ErrInvalidRange.Status, "invalid date range")
	}
	if len(cal.Days(r)) > maxRangeDays {
		return planning.Range{}, appErrors.Clone(appErrors.ErrInvalidRange, "date range may span at most 366 days")
	}
	return r, nil
}

func validationError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

// inTransaction runs fn in a transaction, committing when fn succeeds and rolling
// back otherwise.
func inTransaction(ctx context.Context, provider txProvider, fn func(tx *sqlx.Tx) error) (err error) {
	if provider == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := provider.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	return nil
}

func slotKeys(slots ...models.PlanningSlot) []repository.ResourceKey {
	keys := make([]repository.ResourceKey, 0, len(slots)*2)
	for _, s := range slots {
		keys = append(keys,
			repository.ResourceKey{Dimension: models.DimensionTechnician, ID: s.TechnicianID},
			repository.ResourceKey{Dimension: models.DimensionMachine, ID: s.MachineID},
		)
	}
	return keys
}

// batchKeys lists every technician and machine a batch may write to. Batches take
// them in a single Lock call before reading calendars so every writer acquires its
// advisory locks in the same sorted order.
func batchKeys(techs []models.Technician, orders []models.WorkOrder, techIDs ...string) []repository.ResourceKey {
	keys := make([]repository.ResourceKey, 0, len(techs)+len(techIDs)+len(orders)*2)
	for _, t := range techs {
		keys = append(keys, repository.ResourceKey{Dimension: models.DimensionTechnician, ID: t.ID})
	}
	for _, id := range techIDs {
		keys = append(keys, repository.ResourceKey{Dimension: models.DimensionTechnician, ID: id})
	}
	for _, wo := range orders {
		keys = append(keys, repository.ResourceKey{Dimension: models.DimensionMachine, ID: wo.MachineID})
		if wo.AssignedTechnicianID != nil {
			keys = append(keys, repository.ResourceKey{Dimension: models.DimensionTechnician, ID: *wo.AssignedTechnicianID})
		}
	}
	return keys
}

// firstClearOption returns the best option that double-books neither the
// technician nor the machine. slotID is ignored when it is already booked.
func firstClearOption(options []planning.SlotOption, slotID string, technicians, machines *planning.IntervalIndex) (planning.SlotOption, bool) {
	for _, opt := range options {
		candidate := models.PlanningSlot{ID: slotID, TechnicianID: opt.TechnicianID, MachineID: opt.MachineID}
		candidate.SetWindow(opt.StartAt, opt.EndAt)
		if len(planning.CandidateConflicts(candidate, technicians, machines)) == 0 {
			return opt, true
		}
	}
	return planning.SlotOption{}, false
}

// overlappingSlots re-reads the active slots sharing slot's technician or machine
// window inside the transaction.
func overlappingSlots(ctx context.Context, exec sqlx.ExtContext, store slotStore, scope models.Scope, slot models.PlanningSlot) ([]models.PlanningSlot, error) {
	var out []models.PlanningSlot
	for _, dim := range []models.Dimension{models.DimensionTechnician, models.DimensionMachine} {
		id := planning.DimensionKey(dim)(slot)
		if id == "" {
			continue
		}
		others, err := store.ListOverlapping(ctx, exec, scope, dim, id, slot.StartAt, slot.EndAt, slot.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, others...)
	}
	return out, nil
}

// slotConflicts lists the active slots that overlap slot on its technician or machine.
func slotConflicts(ctx context.Context, exec sqlx.ExtContext, store slotStore, scope models.Scope, slot models.PlanningSlot) ([]models.SlotConflict, error) {
	conflicts := []models.SlotConflict{}
	for _, dim := range []models.Dimension{models.DimensionTechnician, models.DimensionMachine} {
		id := slot.TechnicianID
		if dim == models.DimensionMachine {
			id = slot.MachineID
		}
		if id == "" {
			continue
		}
		others, err := store.ListOverlapping(ctx, exec, scope, dim, id, slot.StartAt, slot.EndAt, slot.ID)
		if err != nil {
			return nil, err
		}
		for _, other := range others {
			conflicts = append(conflicts, planning.NewConflict(slot, other, dim, id))
		}
	}
	return conflicts, nil
}

func markPlanned(ctx context.Context, exec sqlx.ExtContext, store workOrderStore, scope models.Scope, slot models.PlanningSlot) error {
	return store.MarkPlanned(ctx, exec, scope, models.WorkOrderPlan{
		WorkOrderID:     slot.WorkOrderID,
		PlannedStart:    slot.StartAt,
		PlannedEnd:      slot.EndAt,
		DurationMinutes: slot.DurationMinutes,
	})
}

// calendarSnapshot is the state the recommender and packers reason over.
type calendarSnapshot struct {
	technicians []models.Technician
	slots       []models.PlanningSlot
	busy        *planning.IntervalIndex
	machines    *planning.IntervalIndex
	exceptions  map[string][]models.TechnicianAvailability
}

// calendarLoader reads technicians, their exceptions and active slots for a range.
type calendarLoader struct {
	slots        slotStore
	technicians  technicianDirectory
	availability availabilityReader
}

func (l calendarLoader) load(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, r planning.Range) (*calendarSnapshot, error) {
	techs, err := l.technicians.List(ctx, scope)
	if err != nil {
		return nil, translateErr(err, "", "failed to load technicians")
	}
	var exceptions []models.TechnicianAvailability
	if l.availability != nil {
		exceptions, err = l.availability.List(ctx, scope, models.AvailabilityFilter{From: r.From, To: r.To})
		if err != nil {
			return nil, translateErr(err, "", "failed to load technician availability")
		}
	}
	slots, err := l.slots.List(ctx, exec, scope, models.SlotFilter{From: r.From, To: r.To, ActiveOnly: true})
	if err != nil {
		return nil, translateErr(err, "", "failed to load planning slots")
	}
	byTech := make(map[string][]models.TechnicianAvailability)
	for _, ex := range exceptions {
		byTech[ex.TechnicianID] = append(byTech[ex.TechnicianID], ex)
	}
	return &calendarSnapshot{
		technicians: techs,
		slots:       slots,
		busy:        planning.NewIntervalIndex(models.DimensionTechnician, slots),
		machines:    planning.NewIntervalIndex(models.DimensionMachine, slots),
		exceptions:  byTech,
	}, nil
}

// capacityReport evaluates every technician's load over r.
func capacityReport(cal planning.WorkCalendar, r planning.Range, techs []models.Technician, exceptions map[string][]models.TechnicianAvailability, slots []models.PlanningSlot) []planning.Capacity {
	byTech := make(map[string][]models.PlanningSlot, len(techs))
	for _, s := range slots {
		if s.Status.Active() {
			byTech[s.TechnicianID] = append(byTech[s.TechnicianID], s)
		}
	}
	out := make([]planning.Capacity, 0, len(techs))
	for _, t := range techs {
		c := cal.Capacity(t.ID, r, exceptions[t.ID], byTech[t.ID])
		c.TechnicianName = t.FullName
		out = append(out, c)
	}
	return out
}

// notifier publishes events after commit. Delivery failures are logged, never returned.
type notifier struct {
	publisher events.Publisher
	logger    *zap.Logger
}

func (n notifier) publish(ctx context.Context, scope models.Scope, eventType string, payload interface{}) {
	if n.publisher == nil {
		return
	}
	err := n.publisher.Publish(ctx, events.Event{
		Type:       eventType,
		TenantID:   scope.TenantID(),
		ActorID:    scope.UserID(),
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	})
	if err != nil && n.logger != nil {
		n.logger.Warn("publish planning event failed", zap.String("type", eventType), zap.String("tenant_id", scope.TenantID()), zap.Error(err))
	}
}

func itemError(workOrderID string, code planning.ItemCode, reason string) planning.ItemError {
	return planning.ItemError{WorkOrderID: workOrderID, Reason: reason, Code: code}
}
