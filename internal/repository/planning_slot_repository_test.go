package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

func newPlanningRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func testScope(t *testing.T) models.Scope {
	scope, err := models.NewScope("tenant-1", "user-1")
	require.NoError(t, err)
	return scope
}

var slotColumnNames = []string{"id", "tenant_id", "work_order_id", "technician_id", "machine_id", "location_id", "shutdown_id", "template_id",
	"start_at", "end_at", "duration_minutes", "status", "source", "notes", "color", "created_by", "created_at", "updated_at"}

func slotRow(rows *sqlmock.Rows, id, tech string, start, end time.Time) *sqlmock.Rows {
	return rows.AddRow(id, "tenant-1", "wo-"+id, tech, "m-1", nil, nil, nil, start, end, int(end.Sub(start).Minutes()),
		"planned", "manual", "", "", "user-1", start, start)
}

func TestPlanningSlotRepositoryRejectsMissingScope(t *testing.T) {
	db, mock := newPlanningRepoMock(t)
	repo := NewPlanningSlotRepository(db)

	_, err := repo.List(context.Background(), nil, models.Scope{}, models.SlotFilter{})
	assert.ErrorIs(t, err, models.ErrMissingScope)
	err = repo.Create(context.Background(), nil, models.Scope{}, &models.PlanningSlot{})
	assert.ErrorIs(t, err, models.ErrMissingScope)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanningSlotRepositoryListBuildsTenantFilter(t *testing.T) {
	db, mock := newPlanningRepoMock(t)
	repo := NewPlanningSlotRepository(db)
	from := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 5)

	rows := slotRow(sqlmock.NewRows(slotColumnNames), "s-1", "t-1", from.Add(9*time.Hour), from.Add(10*time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("FROM planning_slots WHERE tenant_id = $1 AND start_at < $2 AND end_at > $3 AND technician_id = $4 AND status = ANY($5) ORDER BY start_at ASC, id ASC")).
		WithArgs("tenant-1", to, from, "t-1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	slots, err := repo.List(context.Background(), nil, testScope(t), models.SlotFilter{From: from, To: to, TechnicianID: "t-1", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, models.SlotStatusPlanned, slots[0].Status)
	assert.Equal(t, 60, slots[0].DurationMinutes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanningSlotRepositoryListOverlappingUsesDimensionColumn(t *testing.T) {
	db, mock := newPlanningRepoMock(t)
	repo := NewPlanningSlotRepository(db)
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM planning_slots WHERE tenant_id = $1 AND machine_id = $2 AND start_at < $3 AND end_at > $4 AND status = ANY($5) AND id <> $6")).
		WithArgs("tenant-1", "m-1", end, start, sqlmock.AnyArg(), "s-9").
		WillReturnRows(sqlmock.NewRows(slotColumnNames))

	slots, err := repo.ListOverlapping(context.Background(), nil, testScope(t), models.DimensionMachine, "m-1", start, end, "s-9")
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanningSlotRepositoryCreate(t *testing.T) {
	db, mock := newPlanningRepoMock(t)
	repo := NewPlanningSlotRepository(db)
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO planning_slots")).
		WithArgs(sqlmock.AnyArg(), "tenant-1", "wo-1", "t-1", "m-1", nil, nil, nil,
			start, start.Add(90*time.Minute), 90, "tentative", "auto_pm", "", "", "user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	slot := &models.PlanningSlot{
		WorkOrderID:  "wo-1",
		TechnicianID: "t-1",
		MachineID:    "m-1",
		StartAt:      start,
		EndAt:        start.Add(90 * time.Minute),
		Status:       models.SlotStatusTentative,
		Source:       models.SlotSourceAutoPM,
	}
	require.NoError(t, repo.Create(context.Background(), nil, testScope(t), slot))
	assert.NotEmpty(t, slot.ID)
	assert.Equal(t, "tenant-1", slot.TenantID)
	assert.Equal(t, 90, slot.DurationMinutes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanningSlotRepositoryCreateRejectsEmptyWindow(t *testing.T) {
	db, _ := newPlanningRepoMock(t)
	repo := NewPlanningSlotRepository(db)
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	err := repo.Create(context.Background(), nil, testScope(t), &models.PlanningSlot{StartAt: start, EndAt: start})
	assert.Error(t, err)
}

func TestPlanningSlotRepositoryUpdateStatusNotFound(t *testing.T) {
	db, mock := newPlanningRepoMock(t)
	repo := NewPlanningSlotRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE planning_slots SET status = $1, updated_at = $2 WHERE tenant_id = $3 AND id = $4")).
		WithArgs(models.SlotStatusCancelled, sqlmock.AnyArg(), "tenant-1", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), nil, testScope(t), "missing", models.SlotStatusCancelled)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanningSlotRepositoryFindByIDScopesTenant(t *testing.T) {
	db, mock := newPlanningRepoMock(t)
	repo := NewPlanningSlotRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM planning_slots WHERE tenant_id = $1 AND id = $2")).
		WithArgs("tenant-1", "s-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), nil, testScope(t), "s-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanningSlotRepositoryLatestShutdownEnd(t *testing.T) {
	db, mock := newPlanningRepoMock(t)
	repo := NewPlanningSlotRepository(db)
	end := time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(end_at) FROM planning_slots WHERE tenant_id = $1 AND shutdown_id = $2")).
		WithArgs("tenant-1", "sd-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(end))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(end_at) FROM planning_slots WHERE tenant_id = $1 AND shutdown_id = $2")).
		WithArgs("tenant-1", "sd-2", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	latest, err := repo.LatestShutdownEnd(context.Background(), nil, testScope(t), "sd-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, end.Equal(*latest))

	latest, err = repo.LatestShutdownEnd(context.Background(), nil, testScope(t), "sd-2")
	require.NoError(t, err)
	assert.Nil(t, latest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanningSlotRepositoryCancelByShutdown(t *testing.T) {
	db, mock := newPlanningRepoMock(t)
	repo := NewPlanningSlotRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE planning_slots SET status = $1")).
		WithArgs(models.SlotStatusCancelled, sqlmock.AnyArg(), "tenant-1", "sd-1", models.SlotSourceShutdown, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"work_order_id"}).AddRow("wo-1").AddRow("wo-2"))

	ids, err := repo.CancelByShutdown(context.Background(), nil, testScope(t), "sd-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"wo-1", "wo-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
