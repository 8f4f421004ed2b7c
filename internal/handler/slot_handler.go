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

type slotManager interface {
	List(ctx context.Context, scope models.Scope, query dto.SlotListQuery) ([]models.PlanningSlot, error)
	Get(ctx context.Context, scope models.Scope, id string) (*models.PlanningSlot, error)
	Create(ctx context.Context, scope models.Scope, req dto.CreateSlotRequest) (*dto.SlotWithConflicts, error)
	Update(ctx context.Context, scope models.Scope, id string, req dto.UpdateSlotRequest) (*dto.SlotWithConflicts, error)
	UpdateStatus(ctx context.Context, scope models.Scope, id string, req dto.SlotStatusRequest) (*models.PlanningSlot, error)
	Delete(ctx context.Context, scope models.Scope, id string) error
	BulkCreate(ctx context.Context, scope models.Scope, req dto.BulkCreateSlotsRequest) (*dto.BulkSlotsResponse, error)
	BulkUpdate(ctx context.Context, scope models.Scope, req dto.BulkUpdateSlotsRequest) (*dto.BulkSlotsResponse, error)
}

// SlotHandler manages planning slots.
type SlotHandler struct {
	service slotManager
}

// NewSlotHandler constructs the handler.
func NewSlotHandler(svc *service.SlotService) *SlotHandler {
	return &SlotHandler{service: svc}
}

// List godoc
// @Summary List planning slots
// @Tags Slots
// @Produce json
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD)"
// @Param technicianId query string false "Technician filter"
// @Param machineId query string false "Machine filter"
// @Param workOrderId query string false "Work order filter"
// @Param status query string false "Slot status"
// @Success 200 {object} response.Envelope
// @Router /planning/slots [get]
func (h *SlotHandler) List(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var query dto.SlotListQuery
	if !bindQuery(c, &query, "invalid slot query") {
		return
	}
	slots, err := h.service.List(c.Request.Context(), scope, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "total", len(slots))
	respond(c, http.StatusOK, slots)
}

// Get godoc
// @Summary Get a planning slot
// @Tags Slots
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /planning/slots/{id} [get]
func (h *SlotHandler) Get(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	slot, err := h.service.Get(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, slot)
}

// Create godoc
// @Summary Create a slot manually
// @Tags Slots
// @Accept json
// @Produce json
// @Param payload body dto.CreateSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Router /planning/slots [post]
func (h *SlotHandler) Create(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateSlotRequest
	if !bindJSON(c, &req, "invalid slot payload") {
		return
	}
	result, err := h.service.Create(c.Request.Context(), scope, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result, middleware.ExtractMeta(c))
}

// Update godoc
// @Summary Move, reassign or annotate a slot
// @Tags Slots
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body dto.UpdateSlotRequest true "Slot patch"
// @Success 200 {object} response.Envelope
// @Router /planning/slots/{id} [put]
func (h *SlotHandler) Update(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateSlotRequest
	if !bindJSON(c, &req, "invalid slot payload") {
		return
	}
	result, err := h.service.Update(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// UpdateStatus godoc
// @Summary Transition a slot's status
// @Tags Slots
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body dto.SlotStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Router /planning/slots/{id}/status [patch]
func (h *SlotHandler) UpdateStatus(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.SlotStatusRequest
	if !bindJSON(c, &req, "invalid status payload") {
		return
	}
	slot, err := h.service.UpdateStatus(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, slot)
}

// Delete godoc
// @Summary Delete a slot and release its work order
// @Tags Slots
// @Param id path string true "Slot ID"
// @Success 204
// @Router /planning/slots/{id} [delete]
func (h *SlotHandler) Delete(c *gin.Context) {
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

// BulkCreate godoc
// @Summary Create several slots in one transaction
// @Tags Slots
// @Accept json
// @Produce json
// @Param payload body dto.BulkCreateSlotsRequest true "Slots"
// @Success 200 {object} response.Envelope
// @Router /planning/slots/bulk [post]
func (h *SlotHandler) BulkCreate(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.BulkCreateSlotsRequest
	if !bindJSON(c, &req, "invalid bulk payload") {
		return
	}
	result, err := h.service.BulkCreate(c.Request.Context(), scope, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// BulkUpdate godoc
// @Summary Update several slots in one transaction
// @Tags Slots
// @Accept json
// @Produce json
// @Param payload body dto.BulkUpdateSlotsRequest true "Slot patches"
// @Success 200 {object} response.Envelope
// @Router /planning/slots/bulk [put]
func (h *SlotHandler) BulkUpdate(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.BulkUpdateSlotsRequest
	if !bindJSON(c, &req, "invalid bulk payload") {
		return
	}
	result, err := h.service.BulkUpdate(c.Request.Context(), scope, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}
