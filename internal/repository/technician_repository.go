package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

// TechnicianRepository reads schedulable users.
type TechnicianRepository struct {
	scopedRepo
}

// NewTechnicianRepository constructs the repository.
func NewTechnicianRepository(db *sqlx.DB) *TechnicianRepository {
	return &TechnicianRepository{scopedRepo{db: db}}
}

// List returns the tenant's technicians ordered by name.
func (r *TechnicianRepository) List(ctx context.Context, scope models.Scope) ([]models.Technician, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	const query = `SELECT id, tenant_id, full_name, role FROM users WHERE tenant_id = $1 AND role = ANY($2) AND active = TRUE ORDER BY full_name ASC, id ASC`
	var items []models.Technician
	if err := r.db.SelectContext(ctx, &items, query, scope.TenantID(), pq.Array(models.TechnicianRoles())); err != nil {
		return nil, fmt.Errorf("list technicians: %w", err)
	}
	return items, nil
}

// FindByID loads one technician of the tenant.
func (r *TechnicianRepository) FindByID(ctx context.Context, scope models.Scope, id string) (*models.Technician, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	const query = `SELECT id, tenant_id, full_name, role FROM users WHERE tenant_id = $1 AND id = $2 AND role = ANY($3)`
	var item models.Technician
	if err := r.db.GetContext(ctx, &item, query, scope.TenantID(), id, pq.Array(models.TechnicianRoles())); err != nil {
		return nil, err
	}
	return &item, nil
}
