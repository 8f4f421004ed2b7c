package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

const shutdownColumns = `id, tenant_id, title, machine_id, location_id, start_at, end_at, status, shutdown_type, description, created_by, created_at, updated_at`

// ShutdownRepository persists planned shutdowns.
type ShutdownRepository struct {
	scopedRepo
}

// NewShutdownRepository constructs the repository.
func NewShutdownRepository(db *sqlx.DB) *ShutdownRepository {
	return &ShutdownRepository{scopedRepo{db: db}}
}

// List returns shutdowns overlapping the filter window ordered by start.
func (r *ShutdownRepository) List(ctx context.Context, scope models.Scope, filter models.ShutdownFilter) ([]models.PlannedShutdown, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	w := newTenantWhere("tenant_id", scope)
	if !filter.To.IsZero() {
		w.add("start_at < %s", filter.To)
	}
	if !filter.From.IsZero() {
		w.add("end_at > %s", filter.From)
	}
	if filter.MachineID != "" {
		w.add("machine_id = %s", filter.MachineID)
	}
	if filter.LocationID != "" {
		w.add("location_id = %s", filter.LocationID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		w.add("status = ANY(%s)", pq.Array(statuses))
	}
	query := fmt.Sprintf("SELECT %s FROM planned_shutdowns %s ORDER BY start_at ASC", shutdownColumns, w.String())
	var items []models.PlannedShutdown
	if err := r.db.SelectContext(ctx, &items, query, w.args...); err != nil {
		return nil, fmt.Errorf("list planned shutdowns: %w", err)
	}
	return items, nil
}

// FindByID loads a shutdown. Passing a transaction with forUpdate locks the row.
func (r *ShutdownRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, id string, forUpdate bool) (*models.PlannedShutdown, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM planned_shutdowns WHERE tenant_id = $1 AND id = $2", shutdownColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}
	var item models.PlannedShutdown
	if err := sqlx.GetContext(ctx, r.exec(exec), &item, query, scope.TenantID(), id); err != nil {
		return nil, err
	}
	return &item, nil
}

// Create inserts a shutdown.
func (r *ShutdownRepository) Create(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, item *models.PlannedShutdown) error {
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
	if item.Status == "" {
		item.Status = models.ShutdownStatusScheduled
	}
	if item.ShutdownType == "" {
		item.ShutdownType = models.ShutdownTypePlanned
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `
INSERT INTO planned_shutdowns (id, tenant_id, title, machine_id, location_id, start_at, end_at, status, shutdown_type, description, created_by, created_at, updated_at)
VALUES (:id, :tenant_id, :title, :machine_id, :location_id, :start_at, :end_at, :status, :shutdown_type, :description, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, item); err != nil {
		return fmt.Errorf("insert planned shutdown: %w", err)
	}
	return nil
}

// Update rewrites the editable columns of a shutdown.
func (r *ShutdownRepository) Update(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, item *models.PlannedShutdown) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	item.TenantID = scope.TenantID()
	item.UpdatedAt = time.Now().UTC()
	const query = `
UPDATE planned_shutdowns SET title = :title, start_at = :start_at, end_at = :end_at, status = :status,
	shutdown_type = :shutdown_type, description = :description, updated_at = :updated_at
WHERE tenant_id = :tenant_id AND id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, item)
	if err != nil {
		return fmt.Errorf("update planned shutdown: %w", err)
	}
	return ensureAffected(result, "planned shutdown")
}

// UpdateStatus transitions a shutdown.
func (r *ShutdownRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, id string, status models.ShutdownStatus) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	const query = `UPDATE planned_shutdowns SET status = $1, updated_at = $2 WHERE tenant_id = $3 AND id = $4`
	result, err := r.exec(exec).ExecContext(ctx, query, status, time.Now().UTC(), scope.TenantID(), id)
	if err != nil {
		return fmt.Errorf("update planned shutdown status: %w", err)
	}
	return ensureAffected(result, "planned shutdown status")
}

// Delete removes a shutdown.
func (r *ShutdownRepository) Delete(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, id string) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	result, err := r.exec(exec).ExecContext(ctx, `DELETE FROM planned_shutdowns WHERE tenant_id = $1 AND id = $2`, scope.TenantID(), id)
	if err != nil {
		return fmt.Errorf("delete planned shutdown: %w", err)
	}
	return ensureAffected(result, "planned shutdown")
}
