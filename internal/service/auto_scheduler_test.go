package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/mops-planner-api/internal/dto"
	"github.com/noah-isme/mops-planner-api/internal/models"
	"github.com/noah-isme/mops-planner-api/internal/planning"
	appErrors "github.com/noah-isme/mops-planner-api/pkg/errors"
	"github.com/noah-isme/mops-planner-api/pkg/events"
)

type autoSchedulerFixture struct {
	svc        *AutoScheduler
	slots      *memSlots
	workOrders *memWorkOrders
	locker     *recordingLocker
	publisher  *recordingPublisher
	metrics    *MetricsService
}

func newAutoSchedulerFixture(t *testing.T, tx txProvider, slots *memSlots, orders *memWorkOrders) autoSchedulerFixture {
	t.Helper()
	locker := &recordingLocker{}
	publisher := &recordingPublisher{}
	metrics := NewMetricsService()
	svc := NewAutoScheduler(tx, slots, orders, defaultTechnicians(), &memAvailability{}, locker, testRecommender(),
		planning.FixedClock{At: monday}, nil, metrics, publisher, nil, zap.NewNop(), AutoSchedulerConfig{MaxBatchSize: 3})
	return autoSchedulerFixture{svc: svc, slots: slots, workOrders: orders, locker: locker, publisher: publisher, metrics: metrics}
}

func TestAutoSchedulerReportsInfeasibleItemsNextToScheduledOnes(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	orders := newMemWorkOrders(
		models.WorkOrder{ID: "wo-1", MachineID: "press-1", AssignedTechnicianID: strPtr("tech-1"), EstimatedMinutes: intPtr(90)},
		models.WorkOrder{ID: "wo-2", MachineID: "lathe-1"},
		models.WorkOrder{ID: "wo-4", MachineID: "press-1", IsPlanned: true},
	)
	f := newAutoSchedulerFixture(t, tx, newMemSlots(), orders)

	result, err := f.svc.Schedule(context.Background(), testScope(t), dto.AutoScheduleRequest{
		WorkOrderIDs: []string{"wo-1", "wo-missing", "wo-4"},
		DateRange:    dto.DateRange{From: "2024-03-04", To: "2024-03-08"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, result.Scheduled, 1)
	item := result.Scheduled[0]
	assert.Equal(t, "wo-1", item.WorkOrderID)
	assert.Equal(t, "tech-1", item.Slot.TechnicianID)
	assert.Equal(t, at(4, 8, 0), item.Slot.StartAt)
	assert.Equal(t, at(4, 9, 30), item.Slot.EndAt)
	assert.Equal(t, models.SlotStatusTentative, item.Slot.Status)
	assert.Equal(t, models.SlotSourceAutoPM, item.Slot.Source)
	assert.Equal(t, 95, item.Score)
	assert.Empty(t, item.Conflicts)

	require.Len(t, result.Errors, 2)
	assert.Equal(t, planning.CodeNotFound, result.Errors[0].Code)
	assert.Equal(t, "wo-missing", result.Errors[0].WorkOrderID)
	assert.Equal(t, planning.CodeAlreadyScheduled, result.Errors[1].Code)

	planned := f.workOrders.get("wo-1")
	assert.True(t, planned.IsPlanned)
	require.NotNil(t, planned.PlannedStart)
	assert.Equal(t, at(4, 8, 0), *planned.PlannedStart)
	assert.Equal(t, 90, *planned.PlannedDurationMinutes)

	assert.Equal(t, 100.0, result.OptimizationScore)
	assert.Equal(t, []string{events.BatchScheduled}, f.publisher.types())
	assert.Len(t, f.locker.calls, 1)
	snapshot := f.metrics.Snapshot()
	assert.EqualValues(t, 1, snapshot.SlotsCreated)
	assert.EqualValues(t, 2, snapshot.BatchItemFailures)
}

func TestAutoSchedulerLaterItemsSeeEarlierPlacements(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	orders := newMemWorkOrders(
		models.WorkOrder{ID: "wo-1", MachineID: "press-1", AssignedTechnicianID: strPtr("tech-1"), EstimatedMinutes: intPtr(90)},
		models.WorkOrder{ID: "wo-2", MachineID: "lathe-1"},
		models.WorkOrder{ID: "wo-3", MachineID: "mill-1", AssignedTechnicianID: strPtr("tech-2")},
	)
	f := newAutoSchedulerFixture(t, tx, newMemSlots(), orders)

	result, err := f.svc.Schedule(context.Background(), testScope(t), dto.AutoScheduleRequest{
		WorkOrderIDs: []string{"wo-1", "wo-2", "wo-3"},
		DateRange:    dto.DateRange{From: "2024-03-04", To: "2024-03-04"},
	})
	require.NoError(t, err)
	require.Len(t, result.Scheduled, 3)
	assert.Empty(t, result.Errors)

	second := result.Scheduled[1].Slot
	assert.Equal(t, "tech-2", second.TechnicianID)
	assert.Equal(t, at(4, 8, 0), second.StartAt)
	assert.Equal(t, 60, second.DurationMinutes)

	third := result.Scheduled[2].Slot
	assert.Equal(t, "tech-2", third.TechnicianID)
	assert.Equal(t, at(4, 9, 0), third.StartAt)

	conflicts := planning.DetectConflicts([]models.PlanningSlot{result.Scheduled[0].Slot, second, third})
	assert.Empty(t, conflicts)
}

func TestAutoSchedulerSkipsWindowsWhereTheMachineIsTaken(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	slots := newMemSlots(plannedSlot("slot-a", "wo-a", "tech-2", "press-1", 4, 8, 10))
	orders := newMemWorkOrders(
		models.WorkOrder{ID: "wo-1", MachineID: "press-1", AssignedTechnicianID: strPtr("tech-1"), EstimatedMinutes: intPtr(90)},
	)
	f := newAutoSchedulerFixture(t, tx, slots, orders)

	result, err := f.svc.Schedule(context.Background(), testScope(t), dto.AutoScheduleRequest{
		WorkOrderIDs: []string{"wo-1"},
		DateRange:    dto.DateRange{From: "2024-03-04", To: "2024-03-08"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, result.Scheduled, 1)
	placed := result.Scheduled[0].Slot
	assert.False(t, placed.Overlaps(at(4, 8, 0), at(4, 10, 0)))
	assert.Empty(t, result.Scheduled[0].Conflicts)

	all, err := slots.List(context.Background(), nil, testScope(t), models.SlotFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, planning.DetectConflicts(all))
}

func TestAutoSchedulerNoAvailableSlotOverWeekend(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	orders := newMemWorkOrders(models.WorkOrder{ID: "wo-1", MachineID: "press-1"})
	f := newAutoSchedulerFixture(t, tx, newMemSlots(), orders)

	result, err := f.svc.Schedule(context.Background(), testScope(t), dto.AutoScheduleRequest{
		WorkOrderIDs: []string{"wo-1"},
		DateRange:    dto.DateRange{From: "2024-03-09", To: "2024-03-10"},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Scheduled)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, planning.CodeNoAvailableSlot, result.Errors[0].Code)
	assert.Zero(t, result.OptimizationScore)
	assert.Empty(t, f.publisher.types())
}

func TestAutoSchedulerStorageFailureRollsBackBatch(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	slots := newMemSlots()
	slots.createErr = errors.New("connection reset")
	orders := newMemWorkOrders(models.WorkOrder{ID: "wo-1", MachineID: "press-1"})
	f := newAutoSchedulerFixture(t, tx, slots, orders)

	_, err := f.svc.Schedule(context.Background(), testScope(t), dto.AutoScheduleRequest{
		WorkOrderIDs: []string{"wo-1"},
		DateRange:    dto.DateRange{From: "2024-03-04", To: "2024-03-08"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, f.publisher.types())
}

func TestAutoSchedulerValidatesBeforeTouchingStorage(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newAutoSchedulerFixture(t, tx, newMemSlots(), newMemWorkOrders())
	scope := testScope(t)

	_, err := f.svc.Schedule(context.Background(), scope, dto.AutoScheduleRequest{
		WorkOrderIDs: []string{"a", "b", "c", "d"},
		DateRange:    dto.DateRange{From: "2024-03-04", To: "2024-03-08"},
	})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Schedule(context.Background(), scope, dto.AutoScheduleRequest{
		WorkOrderIDs: []string{"a", "a"},
		DateRange:    dto.DateRange{From: "2024-03-04", To: "2024-03-08"},
	})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Schedule(context.Background(), scope, dto.AutoScheduleRequest{
		WorkOrderIDs: []string{"a"},
		DateRange:    dto.DateRange{From: "2024-03-08", To: "2024-03-04"},
	})
	assert.Equal(t, appErrors.ErrInvalidRange.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Schedule(context.Background(), models.Scope{}, dto.AutoScheduleRequest{
		WorkOrderIDs: []string{"a"},
		DateRange:    dto.DateRange{From: "2024-03-04", To: "2024-03-08"},
	})
	assert.Equal(t, appErrors.ErrMissingTenant.Code, appErrors.FromError(err).Code)

	require.NoError(t, mock.ExpectationsWereMet())
}
