package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

const workOrderColumns = `id, tenant_id, title, machine_id, assigned_technician_id, estimated_minutes, priority, status,
is_planned, planned_start, planned_end, planned_duration_minutes, actual_start, actual_end`

// WorkOrderRepository reads work orders and writes back their planned window.
// The table belongs to the work-order service; only the planning columns are written.
type WorkOrderRepository struct {
	scopedRepo
}

// NewWorkOrderRepository constructs the repository.
func NewWorkOrderRepository(db *sqlx.DB) *WorkOrderRepository {
	return &WorkOrderRepository{scopedRepo{db: db}}
}

// FindByID loads one work order.
func (r *WorkOrderRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, id string) (*models.WorkOrder, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM work_orders WHERE tenant_id = $1 AND id = $2", workOrderColumns)
	var wo models.WorkOrder
	if err := sqlx.GetContext(ctx, r.exec(exec), &wo, query, scope.TenantID(), id); err != nil {
		return nil, err
	}
	return &wo, nil
}

// FindByIDs loads work orders by id. Missing or foreign ids are simply absent.
func (r *WorkOrderRepository) FindByIDs(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, ids []string) ([]models.WorkOrder, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT %s FROM work_orders WHERE tenant_id = $1 AND id = ANY($2)", workOrderColumns)
	var items []models.WorkOrder
	if err := sqlx.SelectContext(ctx, r.exec(exec), &items, query, scope.TenantID(), pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find work orders: %w", err)
	}
	return items, nil
}

// ListUnplanned returns open work orders without a planned window.
func (r *WorkOrderRepository) ListUnplanned(ctx context.Context, scope models.Scope) ([]models.WorkOrder, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM work_orders
WHERE tenant_id = $1 AND is_planned = FALSE AND status = ANY($2)
ORDER BY priority DESC, id ASC`, workOrderColumns)
	statuses := []string{string(models.WorkOrderStatusOpen), string(models.WorkOrderStatusScheduled)}
	var items []models.WorkOrder
	if err := r.db.SelectContext(ctx, &items, query, scope.TenantID(), pq.Array(statuses)); err != nil {
		return nil, fmt.Errorf("list unplanned work orders: %w", err)
	}
	return items, nil
}

// MarkPlanned writes the committed window back onto the work order.
func (r *WorkOrderRepository) MarkPlanned(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, plan models.WorkOrderPlan) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	const query = `
UPDATE work_orders SET is_planned = TRUE, planned_start = $1, planned_end = $2, planned_duration_minutes = $3, updated_at = $4
WHERE tenant_id = $5 AND id = $6`
	result, err := r.exec(exec).ExecContext(ctx, query, plan.PlannedStart, plan.PlannedEnd, plan.DurationMinutes, time.Now().UTC(), scope.TenantID(), plan.WorkOrderID)
	if err != nil {
		return fmt.Errorf("mark work order planned: %w", err)
	}
	return ensureAffected(result, "work order")
}

// ClearPlan resets the planned window after the work order's slots are cancelled or removed.
func (r *WorkOrderRepository) ClearPlan(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, workOrderIDs ...string) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if len(workOrderIDs) == 0 {
		return nil
	}
	const query = `
UPDATE work_orders SET is_planned = FALSE, planned_start = NULL, planned_end = NULL, planned_duration_minutes = NULL, updated_at = $1
WHERE tenant_id = $2 AND id = ANY($3)`
	if _, err := r.exec(exec).ExecContext(ctx, query, time.Now().UTC(), scope.TenantID(), pq.Array(workOrderIDs)); err != nil {
		return fmt.Errorf("clear work order plan: %w", err)
	}
	return nil
}
