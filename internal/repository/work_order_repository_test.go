package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

func TestWorkOrderRepositoryMarkPlanned(t *testing.T) {
	db, mock := newPlanningRepoMock(t)
	repo := NewWorkOrderRepository(db)
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE work_orders SET is_planned = TRUE")).
		WithArgs(start, start.Add(time.Hour), 60, sqlmock.AnyArg(), "tenant-1", "wo-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkPlanned(context.Background(), nil, testScope(t), models.WorkOrderPlan{
		WorkOrderID: "wo-1", PlannedStart: start, PlannedEnd: start.Add(time.Hour), DurationMinutes: 60,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkOrderRepositoryMarkPlannedCrossTenant(t *testing.T) {
	db, mock := newPlanningRepoMock(t)
	repo := NewWorkOrderRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE work_orders SET is_planned = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkPlanned(context.Background(), nil, testScope(t), models.WorkOrderPlan{WorkOrderID: "foreign"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestWorkOrderRepositoryFindByIDs(t *testing.T) {
	db, mock := newPlanningRepoMock(t)
	repo := NewWorkOrderRepository(db)

	cols := []string{"id", "tenant_id", "title", "machine_id", "assigned_technician_id", "estimated_minutes", "priority", "status",
		"is_planned", "planned_start", "planned_end", "planned_duration_minutes", "actual_start", "actual_end"}
	rows := sqlmock.NewRows(cols).
		AddRow("wo-1", "tenant-1", "Replace belt", "m-1", "t-1", 45, "high", "open", false, nil, nil, nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM work_orders WHERE tenant_id = $1 AND id = ANY($2)")).
		WithArgs("tenant-1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	items, err := repo.FindByIDs(context.Background(), nil, testScope(t), []string{"wo-1", "wo-x"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 45, items[0].DurationOr(60))
	require.NotNil(t, items[0].AssignedTechnicianID)
	assert.Equal(t, "t-1", *items[0].AssignedTechnicianID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
