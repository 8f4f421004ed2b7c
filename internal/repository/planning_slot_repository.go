package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

const slotColumns = `id, tenant_id, work_order_id, technician_id, machine_id, location_id, shutdown_id, template_id,
start_at, end_at, duration_minutes, status, source, notes, color, created_by, created_at, updated_at`

// PlanningSlotRepository persists planning slots.
type PlanningSlotRepository struct {
	scopedRepo
}

// NewPlanningSlotRepository constructs the repository.
func NewPlanningSlotRepository(db *sqlx.DB) *PlanningSlotRepository {
	return &PlanningSlotRepository{scopedRepo{db: db}}
}

// List returns slots matching the filter ordered by start.
func (r *PlanningSlotRepository) List(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, filter models.SlotFilter) ([]models.PlanningSlot, error) {
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
	if filter.TechnicianID != "" {
		w.add("technician_id = %s", filter.TechnicianID)
	}
	if filter.MachineID != "" {
		w.add("machine_id = %s", filter.MachineID)
	}
	if filter.LocationID != "" {
		w.add("location_id = %s", filter.LocationID)
	}
	if filter.WorkOrderID != "" {
		w.add("work_order_id = %s", filter.WorkOrderID)
	}
	if filter.ShutdownID != "" {
		w.add("shutdown_id = %s", filter.ShutdownID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		w.add("status = ANY(%s)", pq.Array(statuses))
	} else if filter.ActiveOnly {
		w.add("status = ANY(%s)", pq.Array(models.ActiveSlotStatuses()))
	}
	if len(filter.Sources) > 0 {
		sources := make([]string, len(filter.Sources))
		for i, s := range filter.Sources {
			sources[i] = string(s)
		}
		w.add("source = ANY(%s)", pq.Array(sources))
	}

	query := fmt.Sprintf("SELECT %s FROM planning_slots %s ORDER BY start_at ASC, id ASC", slotColumns, w.String())
	var slots []models.PlanningSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, w.args...); err != nil {
		return nil, fmt.Errorf("list planning slots: %w", err)
	}
	return slots, nil
}

// ListOverlapping returns active slots on one technician or machine that overlap
// [start, end). The lookup is served by the (tenant, resource, start, end) indexes.
func (r *PlanningSlotRepository) ListOverlapping(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, dim models.Dimension, resourceID string, start, end time.Time, excludeID string) ([]models.PlanningSlot, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	var column string
	switch dim {
	case models.DimensionTechnician:
		column = "technician_id"
	case models.DimensionMachine:
		column = "machine_id"
	default:
		return nil, fmt.Errorf("unknown conflict dimension %q", dim)
	}
	w := newTenantWhere("tenant_id", scope)
	w.add(column+" = %s", resourceID)
	w.add("start_at < %s", end)
	w.add("end_at > %s", start)
	w.add("status = ANY(%s)", pq.Array(models.ActiveSlotStatuses()))
	if excludeID != "" {
		w.add("id <> %s", excludeID)
	}
	query := fmt.Sprintf("SELECT %s FROM planning_slots %s ORDER BY start_at ASC", slotColumns, w.String())
	var slots []models.PlanningSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, w.args...); err != nil {
		return nil, fmt.Errorf("list overlapping planning slots: %w", err)
	}
	return slots, nil
}

// FindByID loads one slot of the tenant.
func (r *PlanningSlotRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, id string) (*models.PlanningSlot, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM planning_slots WHERE tenant_id = $1 AND id = $2", slotColumns)
	var slot models.PlanningSlot
	if err := sqlx.GetContext(ctx, r.exec(exec), &slot, query, scope.TenantID(), id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// HasActiveForWorkOrder reports whether the work order already holds an active slot.
func (r *PlanningSlotRepository) HasActiveForWorkOrder(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, workOrderID string) (bool, error) {
	if err := requireScope(scope); err != nil {
		return false, err
	}
	const query = `SELECT EXISTS (SELECT 1 FROM planning_slots WHERE tenant_id = $1 AND work_order_id = $2 AND status = ANY($3))`
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, scope.TenantID(), workOrderID, pq.Array(models.ActiveSlotStatuses())); err != nil {
		return false, fmt.Errorf("check work order slot: %w", err)
	}
	return exists, nil
}

// Create inserts a slot, assigning id, tenant, audit fields and duration.
func (r *PlanningSlotRepository) Create(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, slot *models.PlanningSlot) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if slot == nil {
		return fmt.Errorf("planning slot payload is nil")
	}
	if !slot.StartAt.Before(slot.EndAt) {
		return fmt.Errorf("planning slot start must be before end")
	}
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	slot.TenantID = scope.TenantID()
	if slot.CreatedBy == "" {
		slot.CreatedBy = scope.UserID()
	}
	slot.SetWindow(slot.StartAt, slot.EndAt)
	now := time.Now().UTC()
	slot.CreatedAt = now
	slot.UpdatedAt = now

	const query = `
INSERT INTO planning_slots (id, tenant_id, work_order_id, technician_id, machine_id, location_id, shutdown_id, template_id,
	start_at, end_at, duration_minutes, status, source, notes, color, created_by, created_at, updated_at)
VALUES (:id, :tenant_id, :work_order_id, :technician_id, :machine_id, :location_id, :shutdown_id, :template_id,
	:start_at, :end_at, :duration_minutes, :status, :source, :notes, :color, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, slot); err != nil {
		return fmt.Errorf("insert planning slot: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of a slot.
func (r *PlanningSlotRepository) Update(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, slot *models.PlanningSlot) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	slot.TenantID = scope.TenantID()
	slot.SetWindow(slot.StartAt, slot.EndAt)
	slot.UpdatedAt = time.Now().UTC()

	const query = `
UPDATE planning_slots SET technician_id = :technician_id, machine_id = :machine_id, location_id = :location_id,
	start_at = :start_at, end_at = :end_at, duration_minutes = :duration_minutes, status = :status,
	notes = :notes, color = :color, updated_at = :updated_at
WHERE tenant_id = :tenant_id AND id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, slot)
	if err != nil {
		return fmt.Errorf("update planning slot: %w", err)
	}
	return ensureAffected(result, "planning slot")
}

// UpdateStatus transitions a slot.
func (r *PlanningSlotRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, id string, status models.SlotStatus) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	const query = `UPDATE planning_slots SET status = $1, updated_at = $2 WHERE tenant_id = $3 AND id = $4`
	result, err := r.exec(exec).ExecContext(ctx, query, status, time.Now().UTC(), scope.TenantID(), id)
	if err != nil {
		return fmt.Errorf("update planning slot status: %w", err)
	}
	return ensureAffected(result, "planning slot status")
}

// Delete removes a slot.
func (r *PlanningSlotRepository) Delete(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, id string) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	const query = `DELETE FROM planning_slots WHERE tenant_id = $1 AND id = $2`
	result, err := r.exec(exec).ExecContext(ctx, query, scope.TenantID(), id)
	if err != nil {
		return fmt.Errorf("delete planning slot: %w", err)
	}
	return ensureAffected(result, "planning slot")
}

// CancelByShutdown cancels the active slots a shutdown owns and returns their work order ids.
func (r *PlanningSlotRepository) CancelByShutdown(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, shutdownID string) ([]string, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	const query = `
UPDATE planning_slots SET status = $1, updated_at = $2
WHERE tenant_id = $3 AND shutdown_id = $4 AND source = $5 AND status = ANY($6)
RETURNING work_order_id`
	var workOrders []string
	err := sqlx.SelectContext(ctx, r.exec(exec), &workOrders, query,
		models.SlotStatusCancelled, time.Now().UTC(), scope.TenantID(), shutdownID, models.SlotSourceShutdown, pq.Array(models.ActiveSlotStatuses()))
	if err != nil {
		return nil, fmt.Errorf("cancel shutdown slots: %w", err)
	}
	return workOrders, nil
}

// LatestShutdownEnd returns the end of the last active slot planned into a shutdown.
func (r *PlanningSlotRepository) LatestShutdownEnd(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, shutdownID string) (*time.Time, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	const query = `SELECT MAX(end_at) FROM planning_slots WHERE tenant_id = $1 AND shutdown_id = $2 AND status = ANY($3)`
	var latest sql.NullTime
	if err := sqlx.GetContext(ctx, r.exec(exec), &latest, query, scope.TenantID(), shutdownID, pq.Array(models.ActiveSlotStatuses())); err != nil {
		return nil, fmt.Errorf("latest shutdown slot: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	return &latest.Time, nil
}

// ListCompletedActuals joins completed slots in [from, to) with their completed work orders.
func (r *PlanningSlotRepository) ListCompletedActuals(ctx context.Context, scope models.Scope, from, to time.Time) ([]models.SlotActual, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	const query = `
SELECT s.id AS slot_id, s.work_order_id, s.technician_id, s.start_at, s.end_at, s.duration_minutes,
	w.actual_start, w.actual_end
FROM planning_slots s
JOIN work_orders w ON w.id = s.work_order_id AND w.tenant_id = s.tenant_id
WHERE s.tenant_id = $1 AND s.status = $2 AND w.status = $3 AND s.start_at >= $4 AND s.start_at < $5
ORDER BY s.start_at ASC`
	var rows []models.SlotActual
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, scope.TenantID(), models.SlotStatusCompleted, models.WorkOrderStatusCompleted, from, to); err != nil {
		return nil, fmt.Errorf("list completed slot actuals: %w", err)
	}
	return rows, nil
}
