package dto

import "github.com/noah-isme/mops-planner-api/internal/models"

// TemplateRequest creates or replaces a planning template.
type TemplateRequest struct {
	Name        string                 `json:"name" validate:"required,max=255"`
	Description string                 `json:"description" validate:"max=2000"`
	Active      *bool                  `json:"active"`
	Blueprints  []models.SlotBlueprint `json:"blueprints" validate:"required,min=1,dive"`
}

// GenerateFromTemplateRequest stamps template slots over a range.
type GenerateFromTemplateRequest struct {
	DateRange
	WorkOrderIDs []string `json:"workOrderIds" validate:"required,min=1,unique,dive,required"`
}
