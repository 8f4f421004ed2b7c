package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mops-planner-api/internal/dto"
	"github.com/noah-isme/mops-planner-api/internal/middleware"
	"github.com/noah-isme/mops-planner-api/internal/models"
	"github.com/noah-isme/mops-planner-api/internal/planning"
	appErrors "github.com/noah-isme/mops-planner-api/pkg/errors"
)

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func testScope(t *testing.T) models.Scope {
	t.Helper()
	scope, err := models.NewScope("tenant-1", "planner-1")
	require.NoError(t, err)
	return scope
}

func newContext(t *testing.T, method, target string, body []byte, scoped bool) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	req, err := http.NewRequest(method, target, bytes.NewReader(body))
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	if scoped {
		c.Set(middleware.ContextScopeKey, testScope(t))
	}
	return c, w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type planningMock struct {
	calendarQuery dto.CalendarQuery
	suggestErr    error
	exportQuery   dto.ExportQuery
}

func (m *planningMock) Calendar(ctx context.Context, scope models.Scope, query dto.CalendarQuery) (*dto.CalendarResponse, error) {
	m.calendarQuery = query
	return &dto.CalendarResponse{
		From:  query.From,
		To:    query.To,
		Slots: []models.PlanningSlot{{ID: "slot-1", TenantID: scope.TenantID()}},
	}, nil
}

func (m *planningMock) Gantt(ctx context.Context, scope models.Scope, query dto.GanttQuery) (*dto.GanttResponse, error) {
	return &dto.GanttResponse{From: query.From, To: query.To}, nil
}

func (m *planningMock) ListUnplanned(ctx context.Context, scope models.Scope) ([]dto.UnplannedWorkOrder, error) {
	return nil, nil
}

func (m *planningMock) Suggest(ctx context.Context, scope models.Scope, req dto.SuggestRequest) (*dto.SuggestResponse, error) {
	if m.suggestErr != nil {
		return nil, m.suggestErr
	}
	return &dto.SuggestResponse{WorkOrderID: req.WorkOrderID}, nil
}

func (m *planningMock) Capacity(ctx context.Context, scope models.Scope, dr dto.DateRange) (*dto.CapacityResponse, error) {
	return &dto.CapacityResponse{From: dr.From, To: dr.To}, nil
}

func (m *planningMock) Conflicts(ctx context.Context, scope models.Scope, dr dto.DateRange) (*dto.ConflictsResponse, error) {
	return &dto.ConflictsResponse{From: dr.From, To: dr.To}, nil
}

func (m *planningMock) Export(ctx context.Context, scope models.Scope, query dto.ExportQuery) ([]byte, string, string, error) {
	m.exportQuery = query
	return []byte("id,technician\n"), "planning-2024-03-04-2024-03-08.csv", "text/csv", nil
}

type schedulerMock struct {
	captured dto.AutoScheduleRequest
}

func (m *schedulerMock) Schedule(ctx context.Context, scope models.Scope, req dto.AutoScheduleRequest) (*dto.BatchResult, error) {
	m.captured = req
	return &dto.BatchResult{
		Errors: []planning.ItemError{{WorkOrderID: "wo-2", Code: planning.CodeNoAvailableSlot, Reason: "no free window"}},
	}, nil
}

type resolverMock struct {
	slotID   string
	captured dto.ResolveConflictRequest
}

func (m *resolverMock) ResolveConflict(ctx context.Context, scope models.Scope, slotID string, req dto.ResolveConflictRequest) (*dto.SlotWithConflicts, error) {
	m.slotID = slotID
	m.captured = req
	return &dto.SlotWithConflicts{Slot: models.PlanningSlot{ID: slotID}}, nil
}

func TestPlanningCalendarBindsFilters(t *testing.T) {
	mock := &planningMock{}
	h := &PlanningHandler{planning: mock}
	c, w := newContext(t, http.MethodGet, "/planning/calendar?from=2024-03-04&to=2024-03-08&technicianId=tech-1&status=planned", nil, true)

	h.Calendar(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2024-03-04", mock.calendarQuery.From)
	assert.Equal(t, "tech-1", mock.calendarQuery.TechnicianID)
	assert.Equal(t, "planned", mock.calendarQuery.Status)

	env := decode(t, w)
	var body dto.CalendarResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	require.Len(t, body.Slots, 1)
	assert.Equal(t, "tenant-1", body.Slots[0].TenantID)
	assert.EqualValues(t, 1, env.Meta["slot_count"])
}

func TestPlanningRequiresScope(t *testing.T) {
	h := &PlanningHandler{planning: &planningMock{}}
	c, w := newContext(t, http.MethodGet, "/planning/capacity?from=2024-03-04&to=2024-03-08", nil, false)

	h.Capacity(c)

	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, appErrors.ErrMissingTenant.Code, decode(t, w).Error.Code)
}

func TestPlanningAutoSchedule(t *testing.T) {
	mock := &schedulerMock{}
	h := &PlanningHandler{scheduler: mock}

	t.Run("reports per item errors", func(t *testing.T) {
		payload := []byte(`{"workOrderIds":["wo-1","wo-2"],"from":"2024-03-04","to":"2024-03-08"}`)
		c, w := newContext(t, http.MethodPost, "/planning/auto-schedule", payload, true)

		h.AutoSchedule(c)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"wo-1", "wo-2"}, mock.captured.WorkOrderIDs)
		var result dto.BatchResult
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &result))
		require.Len(t, result.Errors, 1)
		assert.Equal(t, planning.CodeNoAvailableSlot, result.Errors[0].Code)
	})

	t.Run("malformed payload", func(t *testing.T) {
		c, w := newContext(t, http.MethodPost, "/planning/auto-schedule", []byte(`{"workOrderIds":`), true)

		h.AutoSchedule(c)

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, appErrors.ErrValidation.Code, decode(t, w).Error.Code)
	})
}

func TestPlanningSuggestPropagatesNotFound(t *testing.T) {
	h := &PlanningHandler{planning: &planningMock{suggestErr: appErrors.Clone(appErrors.ErrNotFound, "work order not found")}}
	c, w := newContext(t, http.MethodPost, "/planning/suggest", []byte(`{"workOrderId":"wo-404","from":"2024-03-04","to":"2024-03-08"}`), true)

	h.Suggest(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "work order not found", decode(t, w).Error.Message)
}

func TestPlanningResolveConflict(t *testing.T) {
	t.Run("empty body lets the service pick", func(t *testing.T) {
		mock := &resolverMock{}
		h := &PlanningHandler{resolver: mock}
		c, w := newContext(t, http.MethodPost, "/planning/conflicts/slot-9/resolve", nil, true)
		c.Params = gin.Params{{Key: "slotId", Value: "slot-9"}}

		h.ResolveConflict(c)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "slot-9", mock.slotID)
		assert.Nil(t, mock.captured.StartAt)
		assert.Nil(t, mock.captured.TechnicianID)
	})

	t.Run("pinned technician", func(t *testing.T) {
		mock := &resolverMock{}
		h := &PlanningHandler{resolver: mock}
		c, w := newContext(t, http.MethodPost, "/planning/conflicts/slot-9/resolve", []byte(`{"technicianId":"tech-2","startAt":"2024-03-05T10:00:00Z"}`), true)
		c.Params = gin.Params{{Key: "slotId", Value: "slot-9"}}

		h.ResolveConflict(c)

		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, mock.captured.TechnicianID)
		assert.Equal(t, "tech-2", *mock.captured.TechnicianID)
		require.NotNil(t, mock.captured.StartAt)
		assert.True(t, mock.captured.StartAt.Equal(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)))
	})
}

func TestPlanningExportStreamsAttachment(t *testing.T) {
	mock := &planningMock{}
	h := &PlanningHandler{planning: mock}
	c, w := newContext(t, http.MethodGet, "/planning/export?from=2024-03-04&to=2024-03-08&format=csv", nil, true)

	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", mock.exportQuery.Format)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "planning-2024-03-04-2024-03-08.csv")
	assert.Equal(t, "id,technician\n", w.Body.String())
}
