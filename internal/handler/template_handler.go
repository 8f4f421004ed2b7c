package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mops-planner-api/internal/dto"
	"github.com/noah-isme/mops-planner-api/internal/models"
	"github.com/noah-isme/mops-planner-api/internal/service"
	appErrors "github.com/noah-isme/mops-planner-api/pkg/errors"
	"github.com/noah-isme/mops-planner-api/pkg/response"
)

type templateManager interface {
	List(ctx context.Context, scope models.Scope, activeOnly bool) ([]models.PlanningTemplate, error)
	Get(ctx context.Context, scope models.Scope, id string) (*models.PlanningTemplate, error)
	Create(ctx context.Context, scope models.Scope, req dto.TemplateRequest) (*models.PlanningTemplate, error)
	Update(ctx context.Context, scope models.Scope, id string, req dto.TemplateRequest) (*models.PlanningTemplate, error)
	Delete(ctx context.Context, scope models.Scope, id string) error
	Generate(ctx context.Context, scope models.Scope, id string, req dto.GenerateFromTemplateRequest) (*dto.BatchResult, error)
}

// TemplateHandler manages recurring planning templates.
type TemplateHandler struct {
	service templateManager
}

// NewTemplateHandler constructs the handler.
func NewTemplateHandler(svc *service.TemplateService) *TemplateHandler {
	return &TemplateHandler{service: svc}
}

// List godoc
// @Summary List planning templates
// @Tags Templates
// @Produce json
// @Param active query bool false "Only active templates"
// @Success 200 {object} response.Envelope
// @Router /planning/templates [get]
func (h *TemplateHandler) List(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	activeOnly := false
	if raw := c.Query("active"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "active must be a boolean"))
			return
		}
		activeOnly = parsed
	}
	items, err := h.service.List(c.Request.Context(), scope, activeOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, items)
}

// Get godoc
// @Summary Get a planning template
// @Tags Templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Router /planning/templates/{id} [get]
func (h *TemplateHandler) Get(c *gin.Context) {
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
// @Summary Create a planning template
// @Tags Templates
// @Accept json
// @Produce json
// @Param payload body dto.TemplateRequest true "Template payload"
// @Success 201 {object} response.Envelope
// @Router /planning/templates [post]
func (h *TemplateHandler) Create(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.TemplateRequest
	if !bindJSON(c, &req, "invalid template payload") {
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
// @Summary Replace a planning template
// @Tags Templates
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body dto.TemplateRequest true "Template payload"
// @Success 200 {object} response.Envelope
// @Router /planning/templates/{id} [put]
func (h *TemplateHandler) Update(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.TemplateRequest
	if !bindJSON(c, &req, "invalid template payload") {
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
// @Summary Delete a planning template
// @Tags Templates
// @Param id path string true "Template ID"
// @Success 204
// @Router /planning/templates/{id} [delete]
func (h *TemplateHandler) Delete(c *gin.Context) {
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

// Generate godoc
// @Summary Generate tentative slots from a template
// @Tags Templates
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body dto.GenerateFromTemplateRequest true "Range and work orders"
// @Success 200 {object} response.Envelope
// @Router /planning/templates/{id}/generate [post]
func (h *TemplateHandler) Generate(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.GenerateFromTemplateRequest
	if !bindJSON(c, &req, "invalid generate payload") {
		return
	}
	result, err := h.service.Generate(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}
