package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mops-planner-api/internal/dto"
	"github.com/noah-isme/mops-planner-api/internal/models"
	"github.com/noah-isme/mops-planner-api/internal/service"
	"github.com/noah-isme/mops-planner-api/pkg/response"
)

type shutdownManager interface {
	List(ctx context.Context, scope models.Scope, query dto.ShutdownListQuery) ([]models.PlannedShutdown, error)
	Get(ctx context.Context, scope models.Scope, id string) (*models.PlannedShutdown, error)
	Create(ctx context.Context, scope models.Scope, req dto.CreateShutdownRequest) (*models.PlannedShutdown, error)
	Update(ctx context.Context, scope models.Scope, id string, req dto.UpdateShutdownRequest) (*models.PlannedShutdown, error)
	Delete(ctx context.Context, scope models.Scope, id string) error
	Start(ctx context.Context, scope models.Scope, id string) (*models.PlannedShutdown, error)
	Complete(ctx context.Context, scope models.Scope, id string) (*models.PlannedShutdown, error)
	Cancel(ctx context.Context, scope models.Scope, id string) (*models.PlannedShutdown, error)
	PlanWork(ctx context.Context, scope models.Scope, id string, req dto.PlanShutdownWorkRequest) (*dto.BatchResult, error)
}

// ShutdownHandler manages planned machine shutdowns.
type ShutdownHandler struct {
	service shutdownManager
}

// NewShutdownHandler constructs the handler.
func NewShutdownHandler(svc *service.ShutdownService) *ShutdownHandler {
	return &ShutdownHandler{service: svc}
}

// List godoc
// @Summary List planned shutdowns
// @Tags Shutdowns
// @Produce json
// @Param from query string false "First day (YYYY-MM-DD)"
// @Param to query string false "Last day (YYYY-MM-DD)"
// @Param machineId query string false "Machine filter"
// @Param locationId query string false "Location filter"
// @Param status query string false "Shutdown status"
// @Success 200 {object} response.Envelope
// @Router /planning/shutdowns [get]
func (h *ShutdownHandler) List(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var query dto.ShutdownListQuery
	if !bindQuery(c, &query, "invalid shutdown query") {
		return
	}
	items, err := h.service.List(c.Request.Context(), scope, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, items)
}

// Get godoc
// @Summary Get a planned shutdown
// @Tags Shutdowns
// @Produce json
// @Param id path string true "Shutdown ID"
// @Success 200 {object} response.Envelope
// @Router /planning/shutdowns/{id} [get]
func (h *ShutdownHandler) Get(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	item, err := h.service.Get(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, item)
}

// Create godoc
// @Summary Create a planned shutdown
// @Tags Shutdowns
// @Accept json
// @Produce json
// @Param payload body dto.CreateShutdownRequest true "Shutdown payload"
// @Success 201 {object} response.Envelope
// @Router /planning/shutdowns [post]
func (h *ShutdownHandler) Create(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateShutdownRequest
	if !bindJSON(c, &req, "invalid shutdown payload") {
		return
	}
	item, err := h.service.Create(c.Request.Context(), scope, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update a scheduled shutdown
// @Tags Shutdowns
// @Accept json
// @Produce json
// @Param id path string true "Shutdown ID"
// @Param payload body dto.UpdateShutdownRequest true "Shutdown patch"
// @Success 200 {object} response.Envelope
// @Router /planning/shutdowns/{id} [put]
func (h *ShutdownHandler) Update(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateShutdownRequest
	if !bindJSON(c, &req, "invalid shutdown payload") {
		return
	}
	item, err := h.service.Update(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, item)
}

// Delete godoc
// @Summary Delete a shutdown and release its slots
// @Tags Shutdowns
// @Param id path string true "Shutdown ID"
// @Success 204
// @Router /planning/shutdowns/{id} [delete]
func (h *ShutdownHandler) Delete(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), scope, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// PlanWork godoc
// @Summary Pack work orders into a shutdown window
// @Tags Shutdowns
// @Accept json
// @Produce json
// @Param id path string true "Shutdown ID"
// @Param payload body dto.PlanShutdownWorkRequest true "Work orders"
// @Success 200 {object} response.Envelope
// @Router /planning/shutdowns/{id}/plan-work [post]
func (h *ShutdownHandler) PlanWork(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.PlanShutdownWorkRequest
	if !bindJSON(c, &req, "invalid plan-work payload") {
		return
	}
	result, err := h.service.PlanWork(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// Start godoc
// @Summary Mark a shutdown as in progress
// @Tags Shutdowns
// @Produce json
// @Param id path string true "Shutdown ID"
// @Success 200 {object} response.Envelope
// @Router /planning/shutdowns/{id}/start [post]
func (h *ShutdownHandler) Start(c *gin.Context) {
	h.transition(c, h.service.Start)
}

// Complete godoc
// @Summary Mark a shutdown as completed
// @Tags Shutdowns
// @Produce json
// @Param id path string true "Shutdown ID"
// @Success 200 {object} response.Envelope
// @Router /planning/shutdowns/{id}/complete [post]
func (h *ShutdownHandler) Complete(c *gin.Context) {
	h.transition(c, h.service.Complete)
}

// Cancel godoc
// @Summary Cancel a shutdown and release its slots
// @Tags Shutdowns
// @Produce json
// @Param id path string true "Shutdown ID"
// @Success 200 {object} response.Envelope
// @Router /planning/shutdowns/{id}/cancel [post]
func (h *ShutdownHandler) Cancel(c *gin.Context) {
	h.transition(c, h.service.Cancel)
}

func (h *ShutdownHandler) transition(c *gin.Context, fn func(context.Context, models.Scope, string) (*models.PlannedShutdown, error)) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	item, err := fn(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, item)
}
