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

const availabilityColumns = `id, tenant_id, technician_id, date, start_time, end_time, type, notes, created_by, created_at, updated_at`

// AvailabilityRepository persists technician calendar exceptions.
type AvailabilityRepository struct {
	scopedRepo
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{scopedRepo{db: db}}
}

// List returns exceptions whose date falls in [From, To).
func (r *AvailabilityRepository) List(ctx context.Context, scope models.Scope, filter models.AvailabilityFilter) ([]models.TechnicianAvailability, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	w := newTenantWhere("tenant_id", scope)
	if !filter.From.IsZero() {
		w.add("date >= %s", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("date < %s", filter.To)
	}
	if filter.TechnicianID != "" {
		w.add("technician_id = %s", filter.TechnicianID)
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		w.add("type = ANY(%s)", pq.Array(types))
	}
	query := fmt.Sprintf("SELECT %s FROM technician_availability %s ORDER BY date ASC, technician_id ASC", availabilityColumns, w.String())
	var items []models.TechnicianAvailability
	if err := r.db.SelectContext(ctx, &items, query, w.args...); err != nil {
		return nil, fmt.Errorf("list technician availability: %w", err)
	}
	return items, nil
}

// FindByID loads one exception.
func (r *AvailabilityRepository) FindByID(ctx context.Context, scope models.Scope, id string) (*models.TechnicianAvailability, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM technician_availability WHERE tenant_id = $1 AND id = $2", availabilityColumns)
	var item models.TechnicianAvailability
	if err := r.db.GetContext(ctx, &item, query, scope.TenantID(), id); err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *AvailabilityRepository) prepare(scope models.Scope, item *models.TechnicianAvailability) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.TenantID = scope.TenantID()
	if item.CreatedBy == "" {
		item.CreatedBy = scope.UserID()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
}

// Create inserts an exception.
func (r *AvailabilityRepository) Create(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, item *models.TechnicianAvailability) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	r.prepare(scope, item)
	const query = `
INSERT INTO technician_availability (id, tenant_id, technician_id, date, start_time, end_time, type, notes, created_by, created_at, updated_at)
VALUES (:id, :tenant_id, :technician_id, :date, :start_time, :end_time, :type, :notes, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, item); err != nil {
		return fmt.Errorf("insert technician availability: %w", err)
	}
	return nil
}

// Upsert stores an exception, replacing the times and notes of an existing
// exception of the same type on the same day.
func (r *AvailabilityRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, item *models.TechnicianAvailability) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	r.prepare(scope, item)
	const upsert = `
INSERT INTO technician_availability (id, tenant_id, technician_id, date, start_time, end_time, type, notes, created_by, created_at, updated_at)
VALUES (:id, :tenant_id, :technician_id, :date, :start_time, :end_time, :type, :notes, :created_by, :created_at, :updated_at)
ON CONFLICT (tenant_id, technician_id, date, type)
DO UPDATE SET start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at
RETURNING id`
	query, args, err := sqlx.Named(upsert, item)
	if err != nil {
		return fmt.Errorf("bind technician availability upsert: %w", err)
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	if err := r.exec(exec).QueryRowxContext(ctx, query, args...).Scan(&item.ID); err != nil {
		return fmt.Errorf("upsert technician availability: %w", err)
	}
	return nil
}

// Update rewrites an exception.
func (r *AvailabilityRepository) Update(ctx context.Context, exec sqlx.ExtContext, scope models.Scope, item *models.TechnicianAvailability) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	item.TenantID = scope.TenantID()
	item.UpdatedAt = time.Now().UTC()
	const query = `
UPDATE technician_availability SET technician_id = :technician_id, date = :date, start_time = :start_time, end_time = :end_time,
	type = :type, notes = :notes, updated_at = :updated_at
WHERE tenant_id = :tenant_id AND id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, item)
	if err != nil {
		return fmt.Errorf("update technician availability: %w", err)
	}
	return ensureAffected(result, "technician availability")
}

// Delete removes an exception.
func (r *AvailabilityRepository) Delete(ctx context.Context, scope models.Scope, id string) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM technician_availability WHERE tenant_id = $1 AND id = $2`, scope.TenantID(), id)
	if err != nil {
		return fmt.Errorf("delete technician availability: %w", err)
	}
	return ensureAffected(result, "technician availability")
}
