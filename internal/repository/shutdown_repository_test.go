package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

func TestShutdownRepositoryFindByIDForUpdate(t *testing.T) {
	db, mock := newPlanningRepoMock(t)
	repo := NewShutdownRepository(db)
	start := time.Date(2024, 3, 9, 6, 0, 0, 0, time.UTC)

	cols := []string{"id", "tenant_id", "title", "machine_id", "location_id", "start_at", "end_at", "status", "shutdown_type", "description", "created_by", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM planned_shutdowns WHERE tenant_id = $1 AND id = $2 FOR UPDATE")).
		WithArgs("tenant-1", "sd-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("sd-1", "tenant-1", "Press overhaul", "m-1", nil, start, start.Add(8*time.Hour), "scheduled", "planned", "", "user-1", start, start))

	sd, err := repo.FindByID(context.Background(), nil, testScope(t), "sd-1", true)
	require.NoError(t, err)
	assert.Equal(t, 480, sd.DurationMinutes())
	require.NotNil(t, sd.MachineID)
	assert.Nil(t, sd.LocationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShutdownRepositoryCreateDefaults(t *testing.T) {
	db, mock := newPlanningRepoMock(t)
	repo := NewShutdownRepository(db)
	start := time.Date(2024, 3, 9, 6, 0, 0, 0, time.UTC)
	location := "plant-a"

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO planned_shutdowns")).
		WithArgs(sqlmock.AnyArg(), "tenant-1", "Line stop", nil, &location, start, start.Add(4*time.Hour), "scheduled", "planned", "", "user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	sd := &models.PlannedShutdown{Title: "Line stop", LocationID: &location, StartAt: start, EndAt: start.Add(4 * time.Hour)}
	require.NoError(t, repo.Create(context.Background(), nil, testScope(t), sd))
	assert.Equal(t, models.ShutdownStatusScheduled, sd.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
