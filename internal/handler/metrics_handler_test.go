package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mops-planner-api/internal/service"
)

func TestMetricsHandlerHealthIncludesSnapshot(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordRebalanceMoves(3)
	h := NewMetricsHandler(metrics, nil)
	c, w := newContext(t, http.MethodGet, "/health", nil, false)

	h.Health(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Status  string `json:"status"`
		Metrics struct {
			RebalanceMoves uint64 `json:"rebalance_moves"`
		} `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.EqualValues(t, 3, body.Metrics.RebalanceMoves)
}

func TestMetricsHandlerReady(t *testing.T) {
	healthy := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	t.Run("all dependencies up", func(t *testing.T) {
		h := NewMetricsHandler(nil, map[string]Pinger{"postgres": healthy, "redis": healthy})
		c, w := newContext(t, http.MethodGet, "/ready", nil, false)
		h.Ready(c)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("one dependency down", func(t *testing.T) {
		h := NewMetricsHandler(nil, map[string]Pinger{"postgres": healthy, "redis": down})
		c, w := newContext(t, http.MethodGet, "/ready", nil, false)
		h.Ready(c)

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		var body struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "unavailable", body.Status)
		assert.Equal(t, "ok", body.Checks["postgres"])
		assert.Equal(t, "connection refused", body.Checks["redis"])
	})
}

func TestMetricsHandlerPrometheusWithoutService(t *testing.T) {
	h := NewMetricsHandler(nil, nil)
	c, _ := newContext(t, http.MethodGet, "/metrics", nil, false)
	h.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, c.Writer.Status())
}
