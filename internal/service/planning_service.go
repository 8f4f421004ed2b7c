package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/mops-planner-api/internal/dto"
	"github.com/noah-isme/mops-planner-api/internal/models"
	"github.com/noah-isme/mops-planner-api/internal/planning"
	appErrors "github.com/noah-isme/mops-planner-api/pkg/errors"
	"github.com/noah-isme/mops-planner-api/pkg/export"
)

// PlanningServiceConfig tunes the read side of the planner.
type PlanningServiceConfig struct {
	DefaultDurationMinutes int
}

// PlanningService serves calendar views, capacity, conflicts and slot suggestions.
type PlanningService struct {
	slots       slotStore
	workOrders  workOrderStore
	technicians technicianDirectory
	loader      calendarLoader
	recommender *planning.Recommender
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         PlanningServiceConfig
}

// NewPlanningService wires the planning read side.
func NewPlanningService(
	slots slotStore,
	workOrders workOrderStore,
	technicians technicianDirectory,
	availability availabilityReader,
	recommender *planning.Recommender,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg PlanningServiceConfig,
) *PlanningService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.DefaultDurationMinutes = planning.DefaultDuration(cfg.DefaultDurationMinutes)
	return &PlanningService{
		slots:       slots,
		workOrders:  workOrders,
		technicians: technicians,
		loader:      calendarLoader{slots: slots, technicians: technicians, availability: availability},
		recommender: recommender,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// Calendar lists slots overlapping the range with the conflicts among them.
func (s *PlanningService) Calendar(ctx context.Context, scope models.Scope, query dto.CalendarQuery) (*dto.CalendarResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, validationError(err, "invalid calendar query")
	}
	r, err := parseDateRange(s.recommender.Calendar(), query.DateRange)
	if err != nil {
		return nil, err
	}
	filter := models.SlotFilter{
		From:         r.From,
		To:           r.To,
		TechnicianID: query.TechnicianID,
		MachineID:    query.MachineID,
		LocationID:   query.LocationID,
	}
	if query.Status != "" {
		filter.Statuses = []models.SlotStatus{models.SlotStatus(query.Status)}
	}
	start := time.Now()
	slots, err := s.slots.List(ctx, nil, scope, filter)
	s.metrics.ObserveDBQuery("planning_calendar", time.Since(start))
	if err != nil {
		return nil, translateErr(err, "", "failed to load calendar")
	}
	conflicts := planning.DetectConflicts(slots)
	if conflicts == nil {
		conflicts = []models.SlotConflict{}
	}
	return &dto.CalendarResponse{From: query.From, To: query.To, Slots: nonNilSlots(slots), Conflicts: conflicts}, nil
}

// Gantt groups the range's slots by technician, machine or location.
func (s *PlanningService) Gantt(ctx context.Context, scope models.Scope, query dto.GanttQuery) (*dto.GanttResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, validationError(err, "invalid gantt query")
	}
	groupBy := planning.GroupBy(query.GroupBy)
	if groupBy == "" {
		groupBy = planning.GroupByTechnician
	}
	if !groupBy.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "groupBy must be technician, machine or location")
	}
	r, err := parseDateRange(s.recommender.Calendar(), query.DateRange)
	if err != nil {
		return nil, err
	}
	slots, err := s.slots.List(ctx, nil, scope, models.SlotFilter{From: r.From, To: r.To})
	if err != nil {
		return nil, translateErr(err, "", "failed to load gantt rows")
	}
	rows := planning.GroupSlots(slots, groupBy.KeyFunc())
	if groupBy == planning.GroupByTechnician {
		s.labelTechnicianRows(ctx, scope, rows)
	}
	return &dto.GanttResponse{From: query.From, To: query.To, GroupBy: groupBy, Rows: rows}, nil
}

func (s *PlanningService) labelTechnicianRows(ctx context.Context, scope models.Scope, rows []planning.Group) {
	techs, err := s.technicians.List(ctx, scope)
	if err != nil {
		s.logger.Debug("gantt technician labels unavailable", zap.Error(err))
		return
	}
	names := make(map[string]string, len(techs))
	for _, t := range techs {
		names[t.ID] = t.FullName
	}
	for i := range rows {
		if name, ok := names[rows[i].Key]; ok {
			rows[i].Label = name
		}
	}
}

// ListUnplanned returns open work orders without a slot, with their effective duration.
func (s *PlanningService) ListUnplanned(ctx context.Context, scope models.Scope) ([]dto.UnplannedWorkOrder, error) {
	items, err := s.workOrders.ListUnplanned(ctx, scope)
	if err != nil {
		return nil, translateErr(err, "", "failed to list unplanned work orders")
	}
	out := make([]dto.UnplannedWorkOrder, 0, len(items))
	for _, wo := range items {
		out = append(out, dto.UnplannedWorkOrder{WorkOrder: wo, DurationMinutes: wo.DurationOr(s.cfg.DefaultDurationMinutes)})
	}
	return out, nil
}

// Suggest ranks placements for one work order without writing anything.
func (s *PlanningService) Suggest(ctx context.Context, scope models.Scope, req dto.SuggestRequest) (*dto.SuggestResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid suggestion request")
	}
	r, err := parseDateRange(s.recommender.Calendar(), req.DateRange)
	if err != nil {
		return nil, err
	}
	wo, err := s.workOrders.FindByID(ctx, nil, scope, req.WorkOrderID)
	if err != nil {
		return nil, translateErr(err, "work order not found", "failed to load work order")
	}
	snapshot, err := s.loader.load(ctx, nil, scope, r)
	if err != nil {
		return nil, err
	}
	preferred := req.TechnicianID
	if preferred == "" && wo.AssignedTechnicianID != nil {
		preferred = *wo.AssignedTechnicianID
	}
	duration := wo.DurationOr(s.cfg.DefaultDurationMinutes)

	started := time.Now()
	options, err := s.recommender.Recommend(planning.RecommendInput{
		MachineID:             wo.MachineID,
		DurationMinutes:       duration,
		PreferredTechnicianID: preferred,
		Technicians:           snapshot.technicians,
		Range:                 r,
		Busy:                  snapshot.busy,
		Exceptions:            snapshot.exceptions,
	})
	s.metrics.ObserveRecommendation(time.Since(started))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "cannot recommend slots for this work order")
	}
	if options == nil {
		options = []planning.SlotOption{}
	}
	return &dto.SuggestResponse{WorkOrderID: wo.ID, DurationMinutes: duration, Options: options}, nil
}

// Capacity reports every technician's load over the range. Responses are cached per tenant and range.
func (s *PlanningService) Capacity(ctx context.Context, scope models.Scope, dr dto.DateRange) (*dto.CapacityResponse, error) {
	if err := s.validator.Struct(dr); err != nil {
		return nil, validationError(err, "invalid capacity range")
	}
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	r, err := parseDateRange(s.recommender.Calendar(), dr)
	if err != nil {
		return nil, err
	}
	key := s.cache.Key(scope, "capacity", dr.From, dr.To)
	var cached dto.CapacityResponse
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	start := time.Now()
	snapshot, err := s.loader.load(ctx, nil, scope, r)
	s.metrics.ObserveDBQuery("planning_capacity", time.Since(start))
	if err != nil {
		return nil, err
	}
	caps := capacityReport(s.recommender.Calendar(), r, snapshot.technicians, snapshot.exceptions, snapshot.slots)
	resp := &dto.CapacityResponse{From: dr.From, To: dr.To, Technicians: caps, Summary: summarizeCapacity(caps)}
	s.cache.Set(ctx, key, resp)
	return resp, nil
}

func summarizeCapacity(caps []planning.Capacity) dto.CapacitySummary {
	var sum dto.CapacitySummary
	for _, c := range caps {
		sum.AvailableHours += c.AvailableHours
		sum.PlannedHours += c.PlannedHours
		switch c.Status {
		case planning.UtilizationOverbooked:
			sum.Overbooked++
		case planning.UtilizationHigh:
			sum.High++
		case planning.UtilizationOptimal:
			sum.Optimal++
		case planning.UtilizationLow:
			sum.Low++
		}
	}
	sum.AvailableHours = planning.Round2(sum.AvailableHours)
	sum.PlannedHours = planning.Round2(sum.PlannedHours)
	sum.UtilizationPct = planning.Round2(planning.UtilizationPct(sum.PlannedHours, sum.AvailableHours))
	return sum
}

// Conflicts lists every double-booking among active slots in the range.
func (s *PlanningService) Conflicts(ctx context.Context, scope models.Scope, dr dto.DateRange) (*dto.ConflictsResponse, error) {
	if err := s.validator.Struct(dr); err != nil {
		return nil, validationError(err, "invalid conflict range")
	}
	r, err := parseDateRange(s.recommender.Calendar(), dr)
	if err != nil {
		return nil, err
	}
	slots, err := s.slots.List(ctx, nil, scope, models.SlotFilter{From: r.From, To: r.To, ActiveOnly: true})
	if err != nil {
		return nil, translateErr(err, "", "failed to load planning slots")
	}
	conflicts := planning.DetectConflicts(slots)
	if conflicts == nil {
		conflicts = []models.SlotConflict{}
	}
	return &dto.ConflictsResponse{From: dr.From, To: dr.To, Conflicts: conflicts}, nil
}

var exportHeaders = []string{"Start", "End", "Minutes", "Technician", "Machine", "Work order", "Status", "Source", "Notes"}

// Export renders the range's calendar in the requested format.
func (s *PlanningService) Export(ctx context.Context, scope models.Scope, query dto.ExportQuery) ([]byte, string, string, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, "", "", validationError(err, "invalid export query")
	}
	format, err := export.ParseFormat(query.Format)
	if err != nil {
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv, pdf or xlsx")
	}
	cal := s.recommender.Calendar()
	r, err := parseDateRange(cal, query.DateRange)
	if err != nil {
		return nil, "", "", err
	}
	slots, err := s.slots.List(ctx, nil, scope, models.SlotFilter{From: r.From, To: r.To})
	if err != nil {
		return nil, "", "", translateErr(err, "", "failed to load calendar")
	}
	names := map[string]string{}
	if techs, techErr := s.technicians.List(ctx, scope); techErr == nil {
		for _, t := range techs {
			names[t.ID] = t.FullName
		}
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].StartAt.Before(slots[j].StartAt) })

	data := export.Dataset{
		Title:   fmt.Sprintf("Maintenance plan %s to %s", query.From, query.To),
		Headers: exportHeaders,
		Rows:    make([]map[string]string, 0, len(slots)),
	}
	for _, slot := range slots {
		tech := slot.TechnicianID
		if name := names[tech]; name != "" {
			tech = name
		}
		data.Rows = append(data.Rows, map[string]string{
			"Start":      slot.StartAt.In(cal.Location).Format("2006-01-02 15:04"),
			"End":        slot.EndAt.In(cal.Location).Format("2006-01-02 15:04"),
			"Minutes":    fmt.Sprintf("%d", slot.DurationMinutes),
			"Technician": tech,
			"Machine":    slot.MachineID,
			"Work order": slot.WorkOrderID,
			"Status":     string(slot.Status),
			"Source":     string(slot.Source),
			"Notes":      slot.Notes,
		})
	}
	body, err := export.RendererFor(format).Render(data)
	if err != nil {
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	filename := fmt.Sprintf("maintenance-plan-%s-%s.%s", query.From, query.To, format)
	return body, filename, format.ContentType(), nil
}

func nonNilSlots(slots []models.PlanningSlot) []models.PlanningSlot {
	if slots == nil {
		return []models.PlanningSlot{}
	}
	return slots
}
