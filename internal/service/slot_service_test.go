package service

import (
	"context"
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

func newSlotServiceFixture(t *testing.T, tx txProvider, slots *memSlots, orders *memWorkOrders, cache *CacheService) (*SlotService, *recordingPublisher) {
	t.Helper()
	publisher := &recordingPublisher{}
	svc := NewSlotService(tx, slots, orders, defaultTechnicians(), &memAvailability{}, &recordingLocker{}, testRecommender(),
		planning.FixedClock{At: monday}, cache, nil, publisher, nil, zap.NewNop(), SlotServiceConfig{})
	return svc, publisher
}

func plannedSlot(id, workOrderID, techID, machineID string, day, fromHour, toHour int) models.PlanningSlot {
	slot := models.PlanningSlot{
		ID:           id,
		TenantID:     "tenant-1",
		WorkOrderID:  workOrderID,
		TechnicianID: techID,
		MachineID:    machineID,
		Status:       models.SlotStatusPlanned,
		Source:       models.SlotSourceManual,
	}
	slot.SetWindow(at(day, fromHour, 0), at(day, toHour, 0))
	return slot
}

func TestSlotServiceCreateReturnsAdvisoryConflicts(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	slots := newMemSlots(plannedSlot("slot-a", "wo-a", "tech-1", "press-1", 5, 8, 10))
	orders := newMemWorkOrders(models.WorkOrder{ID: "wo-b", MachineID: "press-1"})
	svc, publisher := newSlotServiceFixture(t, tx, slots, orders, nil)

	out, err := svc.Create(context.Background(), testScope(t), dto.CreateSlotRequest{
		WorkOrderID:  "wo-b",
		TechnicianID: "tech-1",
		StartAt:      at(5, 9, 0),
		EndAt:        at(5, 11, 0),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "press-1", out.Slot.MachineID)
	assert.Equal(t, models.SlotStatusPlanned, out.Slot.Status)
	assert.Equal(t, models.SlotSourceManual, out.Slot.Source)
	assert.Equal(t, 120, out.Slot.DurationMinutes)
	require.Len(t, out.Conflicts, 2)
	dims := []models.Dimension{out.Conflicts[0].Dimension, out.Conflicts[1].Dimension}
	assert.ElementsMatch(t, []models.Dimension{models.DimensionTechnician, models.DimensionMachine}, dims)
	assert.Equal(t, 60, out.Conflicts[0].OverlapMins)
	assert.True(t, orders.get("wo-b").IsPlanned)
	assert.Equal(t, []string{events.SlotCreated}, publisher.types())
}

func TestSlotServiceCreateRejectsSecondActiveSlot(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	slots := newMemSlots(plannedSlot("slot-a", "wo-a", "tech-1", "press-1", 5, 8, 10))
	orders := newMemWorkOrders(models.WorkOrder{ID: "wo-a", MachineID: "press-1"})
	svc, _ := newSlotServiceFixture(t, tx, slots, orders, nil)

	_, err := svc.Create(context.Background(), testScope(t), dto.CreateSlotRequest{
		WorkOrderID:  "wo-a",
		TechnicianID: "tech-2",
		StartAt:      at(6, 8, 0),
		EndAt:        at(6, 9, 0),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotServiceUpdateStatusTransitions(t *testing.T) {
	scope := testScope(t)

	t.Run("cancel releases the work order", func(t *testing.T) {
		tx, mock := newTxProviderMock(t)
		mock.ExpectBegin()
		mock.ExpectCommit()
		slots := newMemSlots(plannedSlot("slot-a", "wo-a", "tech-1", "press-1", 5, 8, 10))
		orders := newMemWorkOrders(models.WorkOrder{ID: "wo-a", MachineID: "press-1", IsPlanned: true})
		svc, publisher := newSlotServiceFixture(t, tx, slots, orders, nil)

		slot, err := svc.UpdateStatus(context.Background(), scope, "slot-a", dto.SlotStatusRequest{Status: "cancelled"})
		require.NoError(t, err)
		assert.Equal(t, models.SlotStatusCancelled, slot.Status)
		assert.False(t, orders.get("wo-a").IsPlanned)
		assert.Equal(t, []string{events.SlotCancelled}, publisher.types())
	})

	t.Run("completed slots stay completed", func(t *testing.T) {
		tx, mock := newTxProviderMock(t)
		mock.ExpectBegin()
		mock.ExpectRollback()
		done := plannedSlot("slot-a", "wo-a", "tech-1", "press-1", 5, 8, 10)
		done.Status = models.SlotStatusCompleted
		svc, _ := newSlotServiceFixture(t, tx, newMemSlots(done), newMemWorkOrders(), nil)

		_, err := svc.UpdateStatus(context.Background(), scope, "slot-a", dto.SlotStatusRequest{Status: "planned"})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSlotServiceUpdateRefusesToMoveStartedWork(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	running := plannedSlot("slot-a", "wo-a", "tech-1", "press-1", 5, 8, 10)
	running.Status = models.SlotStatusInProgress
	svc, _ := newSlotServiceFixture(t, tx, newMemSlots(running), newMemWorkOrders(), nil)

	newStart := at(5, 13, 0)
	_, err := svc.Update(context.Background(), testScope(t), "slot-a", dto.UpdateSlotRequest{StartAt: &newStart, EndAt: ptrTime(at(5, 15, 0))})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSlotServiceBulkCreateReportsRejectedEntriesByIndex(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	orders := newMemWorkOrders(models.WorkOrder{ID: "wo-1", MachineID: "press-1"})
	svc, publisher := newSlotServiceFixture(t, tx, newMemSlots(), orders, nil)

	resp, err := svc.BulkCreate(context.Background(), testScope(t), dto.BulkCreateSlotsRequest{Slots: []dto.CreateSlotRequest{
		{WorkOrderID: "wo-1", TechnicianID: "tech-1", StartAt: at(5, 8, 0), EndAt: at(5, 9, 0)},
		{WorkOrderID: "wo-ghost", TechnicianID: "tech-1", StartAt: at(5, 9, 0), EndAt: at(5, 10, 0)},
	}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, resp.Slots, 1)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, 1, resp.Errors[0].Index)
	assert.Equal(t, string(planning.CodeNotFound), resp.Errors[0].Code)
	assert.Equal(t, []string{events.SlotCreated}, publisher.types())
}

func TestSlotServiceResolveConflictMovesToBestWindow(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	slots := newMemSlots(
		plannedSlot("slot-a", "wo-a", "tech-1", "press-1", 4, 8, 9),
		plannedSlot("slot-b", "wo-b", "tech-1", "lathe-1", 4, 8, 9),
	)
	orders := newMemWorkOrders(
		models.WorkOrder{ID: "wo-a", MachineID: "press-1", IsPlanned: true},
		models.WorkOrder{ID: "wo-b", MachineID: "lathe-1", IsPlanned: true},
	)
	svc, publisher := newSlotServiceFixture(t, tx, slots, orders, nil)

	out, err := svc.ResolveConflict(context.Background(), testScope(t), "slot-b", dto.ResolveConflictRequest{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "tech-1", out.Slot.TechnicianID)
	assert.Equal(t, at(4, 9, 0), out.Slot.StartAt)
	assert.Equal(t, at(4, 10, 0), out.Slot.EndAt)
	assert.Empty(t, out.Conflicts)
	assert.Equal(t, at(4, 9, 0), *orders.get("wo-b").PlannedStart)
	assert.Equal(t, []string{events.SlotMoved}, publisher.types())
}

func TestSlotServiceResolveConflictAvoidsTheBookedMachine(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	slots := newMemSlots(
		plannedSlot("slot-a", "wo-a", "tech-2", "press-1", 4, 8, 9),
		plannedSlot("slot-b", "wo-b", "tech-1", "press-1", 4, 8, 9),
	)
	orders := newMemWorkOrders(models.WorkOrder{ID: "wo-b", MachineID: "press-1", IsPlanned: true})
	svc, _ := newSlotServiceFixture(t, tx, slots, orders, nil)

	out, err := svc.ResolveConflict(context.Background(), testScope(t), "slot-b", dto.ResolveConflictRequest{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "press-1", out.Slot.MachineID)
	assert.False(t, out.Slot.Overlaps(at(4, 8, 0), at(4, 9, 0)))
	assert.Empty(t, out.Conflicts)

	all, err := slots.List(context.Background(), nil, testScope(t), models.SlotFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, planning.DetectConflicts(all))
}

func TestSlotServiceResolveConflictAppliesExplicitTechnician(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	slots := newMemSlots(
		plannedSlot("slot-a", "wo-a", "tech-1", "press-1", 4, 8, 9),
		plannedSlot("slot-b", "wo-b", "tech-1", "lathe-1", 4, 8, 9),
	)
	orders := newMemWorkOrders(models.WorkOrder{ID: "wo-b", MachineID: "lathe-1", IsPlanned: true})
	svc, _ := newSlotServiceFixture(t, tx, slots, orders, nil)

	out, err := svc.ResolveConflict(context.Background(), testScope(t), "slot-b", dto.ResolveConflictRequest{TechnicianID: strPtr("tech-2")})
	require.NoError(t, err)
	assert.Equal(t, "tech-2", out.Slot.TechnicianID)
	assert.Equal(t, at(4, 8, 0), out.Slot.StartAt)
	assert.Empty(t, out.Conflicts)
}

func TestSlotServiceDeleteInvalidatesCache(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	store := newMemCache()
	cache := NewCacheService(store, nil, 0, zap.NewNop(), true)
	slots := newMemSlots(plannedSlot("slot-a", "wo-a", "tech-1", "press-1", 5, 8, 10))
	orders := newMemWorkOrders(models.WorkOrder{ID: "wo-a", MachineID: "press-1", IsPlanned: true})
	svc, _ := newSlotServiceFixture(t, tx, slots, orders, cache)

	require.NoError(t, svc.Delete(context.Background(), testScope(t), "slot-a"))
	assert.Equal(t, []string{"planning:tenant-1:*"}, store.invalidated)
	assert.False(t, orders.get("wo-a").IsPlanned)

	_, err := svc.Get(context.Background(), testScope(t), "slot-a")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
