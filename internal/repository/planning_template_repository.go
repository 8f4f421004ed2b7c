package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

const templateColumns = `id, tenant_id, name, description, active, blueprints, created_by, created_at, updated_at`

// PlanningTemplateRepository persists reusable slot templates.
type PlanningTemplateRepository struct {
	scopedRepo
}

// NewPlanningTemplateRepository constructs the repository.
func NewPlanningTemplateRepository(db *sqlx.DB) *PlanningTemplateRepository {
	return &PlanningTemplateRepository{scopedRepo{db: db}}
}

// List returns the tenant's templates ordered by name.
func (r *PlanningTemplateRepository) List(ctx context.Context, scope models.Scope, activeOnly bool) ([]models.PlanningTemplate, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	w := newTenantWhere("tenant_id", scope)
	if activeOnly {
		w.raw("active = TRUE")
	}
	query := fmt.Sprintf("SELECT %s FROM planning_templates %s ORDER BY name ASC", templateColumns, w.String())
	var items []models.PlanningTemplate
	if err := r.db.SelectContext(ctx, &items, query, w.args...); err != nil {
		return nil, fmt.Errorf("list planning templates: %w", err)
	}
	return items, nil
}

// FindByID loads a template.
func (r *PlanningTemplateRepository) FindByID(ctx context.Context, scope models.Scope, id string) (*models.PlanningTemplate, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM planning_templates WHERE tenant_id = $1 AND id = $2", templateColumns)
	var item models.PlanningTemplate
	if err := r.db.GetContext(ctx, &item, query, scope.TenantID(), id); err != nil {
		return nil, err
	}
	return &item, nil
}

// Create inserts a template.
func (r *PlanningTemplateRepository) Create(ctx context.Context, scope models.Scope, item *models.PlanningTemplate) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.TenantID = scope.TenantID()
	if item.CreatedBy == "" {
		item.CreatedBy = scope.UserID()
	}
	if len(item.Blueprints) == 0 {
		item.Blueprints = types.JSONText(`[]`)
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `
INSERT INTO planning_templates (id, tenant_id, name, description, active, blueprints, created_by, created_at, updated_at)
VALUES (:id, :tenant_id, :name, :description, :active, :blueprints, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, item); err != nil {
		return fmt.Errorf("insert planning template: %w", err)
	}
	return nil
}

// Update rewrites a template.
func (r *PlanningTemplateRepository) Update(ctx context.Context, scope models.Scope, item *models.PlanningTemplate) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	item.TenantID = scope.TenantID()
	item.UpdatedAt = time.Now().UTC()
	const query = `
UPDATE planning_templates SET name = :name, description = :description, active = :active, blueprints = :blueprints, updated_at = :updated_at
WHERE tenant_id = :tenant_id AND id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.db, query, item)
	if err != nil {
		return fmt.Errorf("update planning template: %w", err)
	}
	return ensureAffected(result, "planning template")
}

// Delete removes a template. Slots it generated keep their template id.
func (r *PlanningTemplateRepository) Delete(ctx context.Context, scope models.Scope, id string) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM planning_templates WHERE tenant_id = $1 AND id = $2`, scope.TenantID(), id)
	if err != nil {
		return fmt.Errorf("delete planning template: %w", err)
	}
	return ensureAffected(result, "planning template")
}
