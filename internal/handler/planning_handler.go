package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mops-planner-api/internal/dto"
	"github.com/noah-isme/mops-planner-api/internal/middleware"
	"github.com/noah-isme/mops-planner-api/internal/models"
	"github.com/noah-isme/mops-planner-api/internal/service"
	"github.com/noah-isme/mops-planner-api/pkg/response"
)

type planningReader interface {
	Calendar(ctx context.Context, scope models.Scope, query dto.CalendarQuery) (*dto.CalendarResponse, error)
	Gantt(ctx context.Context, scope models.Scope, query dto.GanttQuery) (*dto.GanttResponse, error)
	ListUnplanned(ctx context.Context, scope models.Scope) ([]dto.UnplannedWorkOrder, error)
	Suggest(ctx context.Context, scope models.Scope, req dto.SuggestRequest) (*dto.SuggestResponse, error)
	Capacity(ctx context.Context, scope models.Scope, dr dto.DateRange) (*dto.CapacityResponse, error)
	Conflicts(ctx context.Context, scope models.Scope, dr dto.DateRange) (*dto.ConflictsResponse, error)
	Export(ctx context.Context, scope models.Scope, query dto.ExportQuery) ([]byte, string, string, error)
}

type batchScheduler interface {
	Schedule(ctx context.Context, scope models.Scope, req dto.AutoScheduleRequest) (*dto.BatchResult, error)
}

type workloadRebalancer interface {
	Rebalance(ctx context.Context, scope models.Scope, req dto.RebalanceRequest) (*dto.RebalanceResponse, error)
}

type accuracyReader interface {
	Metrics(ctx context.Context, scope models.Scope, dr dto.DateRange) (*dto.AccuracyResponse, error)
	Variances(ctx context.Context, scope models.Scope, dr dto.DateRange) (*dto.VariancesResponse, error)
}

type conflictResolver interface {
	ResolveConflict(ctx context.Context, scope models.Scope, slotID string, req dto.ResolveConflictRequest) (*dto.SlotWithConflicts, error)
}

// PlanningHandler exposes the planning board: views, scheduling and analytics.
type PlanningHandler struct {
	planning  planningReader
	scheduler batchScheduler
	rebalance workloadRebalancer
	accuracy  accuracyReader
	resolver  conflictResolver
}

// NewPlanningHandler constructs the planning handler.
func NewPlanningHandler(
	planning *service.PlanningService,
	scheduler *service.AutoScheduler,
	rebalance *service.RebalanceService,
	accuracy *service.AccuracyService,
	slots *service.SlotService,
) *PlanningHandler {
	return &PlanningHandler{
		planning:  planning,
		scheduler: scheduler,
		rebalance: rebalance,
		accuracy:  accuracy,
		resolver:  slots,
	}
}

// Calendar godoc
// @Summary Calendar view of planning slots
// @Tags Planning
// @Produce json
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD)"
// @Param technicianId query string false "Technician filter"
// @Param machineId query string false "Machine filter"
// @Param locationId query string false "Location filter"
// @Param status query string false "Slot status"
// @Success 200 {object} response.Envelope
// @Router /planning/calendar [get]
func (h *PlanningHandler) Calendar(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var query dto.CalendarQuery
	if !bindQuery(c, &query, "invalid calendar query") {
		return
	}
	result, err := h.planning.Calendar(c.Request.Context(), scope, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "slot_count", len(result.Slots))
	respond(c, http.StatusOK, result)
}

// Gantt godoc
// @Summary Gantt rows grouped by technician, machine or location
// @Tags Planning
// @Produce json
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD)"
// @Param groupBy query string false "technician|machine|location"
// @Success 200 {object} response.Envelope
// @Router /planning/gantt [get]
func (h *PlanningHandler) Gantt(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var query dto.GanttQuery
	if !bindQuery(c, &query, "invalid gantt query") {
		return
	}
	result, err := h.planning.Gantt(c.Request.Context(), scope, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// Unplanned godoc
// @Summary Work orders that still need a slot
// @Tags Planning
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /planning/unplanned [get]
func (h *PlanningHandler) Unplanned(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	result, err := h.planning.ListUnplanned(c.Request.Context(), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "total", len(result))
	respond(c, http.StatusOK, result)
}

// AutoSchedule godoc
// @Summary Schedule a batch of work orders into free technician windows
// @Tags Planning
// @Accept json
// @Produce json
// @Param payload body dto.AutoScheduleRequest true "Work orders and range"
// @Success 200 {object} response.Envelope
// @Router /planning/auto-schedule [post]
func (h *PlanningHandler) AutoSchedule(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.AutoScheduleRequest
	if !bindJSON(c, &req, "invalid auto-schedule payload") {
		return
	}
	result, err := h.scheduler.Schedule(c.Request.Context(), scope, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// Suggest godoc
// @Summary Ranked placement options for one work order
// @Tags Planning
// @Accept json
// @Produce json
// @Param payload body dto.SuggestRequest true "Work order and range"
// @Success 200 {object} response.Envelope
// @Router /planning/suggest [post]
func (h *PlanningHandler) Suggest(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.SuggestRequest
	if !bindJSON(c, &req, "invalid suggest payload") {
		return
	}
	result, err := h.planning.Suggest(c.Request.Context(), scope, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// Rebalance godoc
// @Summary Move slots from overloaded to underloaded technicians
// @Tags Planning
// @Accept json
// @Produce json
// @Param payload body dto.RebalanceRequest true "Range"
// @Success 200 {object} response.Envelope
// @Router /planning/rebalance [post]
func (h *PlanningHandler) Rebalance(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.RebalanceRequest
	if !bindJSON(c, &req, "invalid rebalance payload") {
		return
	}
	result, err := h.rebalance.Rebalance(c.Request.Context(), scope, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// Capacity godoc
// @Summary Technician capacity and utilisation
// @Tags Planning
// @Produce json
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /planning/capacity [get]
func (h *PlanningHandler) Capacity(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var dr dto.DateRange
	if !bindQuery(c, &dr, "invalid capacity query") {
		return
	}
	result, err := h.planning.Capacity(c.Request.Context(), scope, dr)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// Conflicts godoc
// @Summary Overlapping slots in a range
// @Tags Planning
// @Produce json
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /planning/conflicts [get]
func (h *PlanningHandler) Conflicts(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var dr dto.DateRange
	if !bindQuery(c, &dr, "invalid conflicts query") {
		return
	}
	result, err := h.planning.Conflicts(c.Request.Context(), scope, dr)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "total", len(result.Conflicts))
	respond(c, http.StatusOK, result)
}

// ResolveConflict godoc
// @Summary Move a conflicting slot to a free window
// @Tags Planning
// @Accept json
// @Produce json
// @Param slotId path string true "Slot ID"
// @Param payload body dto.ResolveConflictRequest false "Pinned start or technician"
// @Success 200 {object} response.Envelope
// @Router /planning/conflicts/{slotId}/resolve [post]
func (h *PlanningHandler) ResolveConflict(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.ResolveConflictRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "invalid resolve payload") {
		return
	}
	result, err := h.resolver.ResolveConflict(c.Request.Context(), scope, c.Param("slotId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// Accuracy godoc
// @Summary Plan accuracy against actual execution
// @Tags Planning
// @Produce json
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /planning/accuracy [get]
func (h *PlanningHandler) Accuracy(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var dr dto.DateRange
	if !bindQuery(c, &dr, "invalid accuracy query") {
		return
	}
	result, err := h.accuracy.Metrics(c.Request.Context(), scope, dr)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// Variances godoc
// @Summary Per-slot planned versus actual variances
// @Tags Planning
// @Produce json
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /planning/variances [get]
func (h *PlanningHandler) Variances(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var dr dto.DateRange
	if !bindQuery(c, &dr, "invalid variances query") {
		return
	}
	result, err := h.accuracy.Variances(c.Request.Context(), scope, dr)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// Export godoc
// @Summary Download the calendar as CSV, PDF or XLSX
// @Tags Planning
// @Produce octet-stream
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD)"
// @Param format query string false "csv|pdf|xlsx"
// @Success 200 {file} file
// @Router /planning/export [get]
func (h *PlanningHandler) Export(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var query dto.ExportQuery
	if !bindQuery(c, &query, "invalid export query") {
		return
	}
	body, filename, contentType, err := h.planning.Export(c.Request.Context(), scope, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, contentType, body)
}
