package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

// MachineRepository reads machines to scope slots to a location.
type MachineRepository struct {
	scopedRepo
}

// NewMachineRepository constructs the repository.
func NewMachineRepository(db *sqlx.DB) *MachineRepository {
	return &MachineRepository{scopedRepo{db: db}}
}

// FindByID loads one machine of the tenant.
func (r *MachineRepository) FindByID(ctx context.Context, scope models.Scope, id string) (*models.Machine, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	const query = `SELECT id, tenant_id, name, location_id FROM machines WHERE tenant_id = $1 AND id = $2`
	var item models.Machine
	if err := r.db.GetContext(ctx, &item, query, scope.TenantID(), id); err != nil {
		return nil, err
	}
	return &item, nil
}
