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

type availabilityManager interface {
	List(ctx context.Context, scope models.Scope, query dto.AvailabilityListQuery) ([]models.TechnicianAvailability, error)
	Get(ctx context.Context, scope models.Scope, id string) (*models.TechnicianAvailability, error)
	Create(ctx context.Context, scope models.Scope, req dto.AvailabilityRequest) (*models.TechnicianAvailability, error)
	Update(ctx context.Context, scope models.Scope, id string, req dto.AvailabilityRequest) (*models.TechnicianAvailability, error)
	Delete(ctx context.Context, scope models.Scope, id string) error
	BulkStore(ctx context.Context, scope models.Scope, req dto.BulkAvailabilityRequest) ([]models.TechnicianAvailability, error)
	Summary(ctx context.Context, scope models.Scope, dr dto.DateRange) ([]dto.AvailabilitySummary, error)
}

// AvailabilityHandler manages technician availability exceptions.
type AvailabilityHandler struct {
	service availabilityManager
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(svc *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// List godoc
// @Summary List availability entries
// @Tags Availability
// @Produce json
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD)"
// @Param technicianId query string false "Technician filter"
// @Param type query string false "available|vacation|sick|training"
// @Success 200 {object} response.Envelope
// @Router /planning/availability [get]
func (h *AvailabilityHandler) List(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var query dto.AvailabilityListQuery
	if !bindQuery(c, &query, "invalid availability query") {
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
// @Summary Get an availability entry
// @Tags Availability
// @Produce json
// @Param id path string true "Availability ID"
// @Success 200 {object} response.Envelope
// @Router /planning/availability/{id} [get]
func (h *AvailabilityHandler) Get(c *gin.Context) {
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
// @Summary Record an availability exception
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body dto.AvailabilityRequest true "Availability payload"
// @Success 201 {object} response.Envelope
// @Router /planning/availability [post]
func (h *AvailabilityHandler) Create(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.AvailabilityRequest
	if !bindJSON(c, &req, "invalid availability payload") {
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
// @Summary Replace an availability entry
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Availability ID"
// @Param payload body dto.AvailabilityRequest true "Availability payload"
// @Success 200 {object} response.Envelope
// @Router /planning/availability/{id} [put]
func (h *AvailabilityHandler) Update(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.AvailabilityRequest
	if !bindJSON(c, &req, "invalid availability payload") {
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
// @Summary Delete an availability entry
// @Tags Availability
// @Param id path string true "Availability ID"
// @Success 204
// @Router /planning/availability/{id} [delete]
func (h *AvailabilityHandler) Delete(c *gin.Context) {
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

// BulkStore godoc
// @Summary Store the same exception on every day of a range
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body dto.BulkAvailabilityRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Router /planning/availability/bulk [post]
func (h *AvailabilityHandler) BulkStore(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.BulkAvailabilityRequest
	if !bindJSON(c, &req, "invalid bulk availability payload") {
		return
	}
	items, err := h.service.BulkStore(c.Request.Context(), scope, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, items)
}

// Summary godoc
// @Summary Available hours and absence days per technician
// @Tags Availability
// @Produce json
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /planning/availability/summary [get]
func (h *AvailabilityHandler) Summary(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var dr dto.DateRange
	if !bindQuery(c, &dr, "invalid summary query") {
		return
	}
	items, err := h.service.Summary(c.Request.Context(), scope, dr)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, items)
}
