package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/mops-planner-api/internal/handler"
	"github.com/noah-isme/mops-planner-api/internal/models"
	"github.com/noah-isme/mops-planner-api/internal/service"
	appErrors "github.com/noah-isme/mops-planner-api/pkg/errors"
)

type tokens map[string]*models.Claims

func (t tokens) ValidateToken(token string) (*models.Claims, error) {
	claims, ok := t[token]
	if !ok {
		return nil, appErrors.ErrUnauthorized
	}
	return claims, nil
}

func newTestEngine(ready error) *gin.Engine {
	gin.SetMode(gin.TestMode)
	deps := map[string]handler.Pinger{"postgres": handler.PingFunc(func(context.Context) error { return ready })}
	return New(Options{
		Metrics: service.NewMetricsService(),
		Auth: tokens{
			"tech": {TenantID: "tenant-1", UserID: "u-2", Role: models.RoleFieldTech},
		},
	}, Handlers{
		Planning:     handler.NewPlanningHandler(nil, nil, nil, nil, nil),
		Slots:        handler.NewSlotHandler(nil),
		Shutdowns:    handler.NewShutdownHandler(nil),
		Templates:    handler.NewTemplateHandler(nil),
		Availability: handler.NewAvailabilityHandler(nil),
		System:       handler.NewMetricsHandler(service.NewMetricsService(), deps),
	})
}

func serve(engine *gin.Engine, method, path, token string) int {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	engine.ServeHTTP(rec, req)
	return rec.Code
}

func TestSystemEndpoints(t *testing.T) {
	engine := newTestEngine(nil)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/health", ""))
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/ready", ""))
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/metrics", ""))

	assert.Equal(t, http.StatusServiceUnavailable, serve(newTestEngine(errors.New("down")), http.MethodGet, "/ready", ""))
}

func TestPlanningRoutesRequireToken(t *testing.T) {
	engine := newTestEngine(nil)
	for _, path := range []string{
		"/api/v1/planning/calendar",
		"/api/v1/planning/slots",
		"/api/v1/planning/shutdowns/sd-1",
		"/api/v1/planning/availability/summary",
	} {
		assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodGet, path, ""), path)
	}
}

func TestTechniciansCannotWrite(t *testing.T) {
	engine := newTestEngine(nil)
	writes := []struct{ method, path string }{
		{http.MethodPost, "/api/v1/planning/auto-schedule"},
		{http.MethodPost, "/api/v1/planning/rebalance"},
		{http.MethodPost, "/api/v1/planning/conflicts/slot-1/resolve"},
		{http.MethodPost, "/api/v1/planning/slots/bulk"},
		{http.MethodPut, "/api/v1/planning/slots/bulk"},
		{http.MethodPatch, "/api/v1/planning/slots/slot-1/status"},
		{http.MethodDelete, "/api/v1/planning/slots/slot-1"},
		{http.MethodPost, "/api/v1/planning/shutdowns/sd-1/plan-work"},
		{http.MethodPost, "/api/v1/planning/shutdowns/sd-1/cancel"},
		{http.MethodPost, "/api/v1/planning/templates/tpl-1/generate"},
		{http.MethodPost, "/api/v1/planning/availability/bulk"},
	}
	for _, w := range writes {
		assert.Equal(t, http.StatusForbidden, serve(engine, w.method, w.path, "tech"), w.method+" "+w.path)
	}
}

func TestUnknownRoute(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, serve(newTestEngine(nil), http.MethodGet, "/api/v2/planning/calendar", ""))
}
