package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mops-planner-api/internal/models"
	appErrors "github.com/noah-isme/mops-planner-api/pkg/errors"
	"github.com/noah-isme/mops-planner-api/pkg/logger"
)

type stubValidator map[string]*models.Claims

func (s stubValidator) ValidateToken(token string) (*models.Claims, error) {
	claims, ok := s[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

func newAuthRouter(write bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	validator := stubValidator{
		"planner": {TenantID: "tenant-1", UserID: "u-1", Role: models.RolePlanner},
		"tech":    {TenantID: "tenant-1", UserID: "u-2", Role: models.RoleFieldTech},
		"nobody":  {TenantID: " ", UserID: "u-3", Role: models.RolePlanner},
	}
	gate := CanRead()
	if write {
		gate = CanWrite()
	}
	router := gin.New()
	router.Use(JWT(validator))
	router.GET("/scope", gate, func(c *gin.Context) {
		scope, ok := ScopeFrom(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tenant": scope.TenantID(), "user": scope.UserID(), "log_tenant": c.GetString(logger.TenantKey)})
	})
	return router
}

func call(router *gin.Engine, header string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/scope", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	router.ServeHTTP(rec, req)
	return rec
}

func TestJWTPinsRequestToTokenTenant(t *testing.T) {
	rec := call(newAuthRouter(false), "Bearer planner")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "tenant-1", body["tenant"])
	assert.Equal(t, "u-1", body["user"])
	assert.Equal(t, "tenant-1", body["log_tenant"])
}

func TestJWTRejectsMissingOrBadTokens(t *testing.T) {
	router := newAuthRouter(false)
	assert.Equal(t, http.StatusUnauthorized, call(router, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(router, "Token planner").Code)
	assert.Equal(t, http.StatusUnauthorized, call(router, "Bearer forged").Code)
	assert.Equal(t, http.StatusForbidden, call(router, "Bearer nobody").Code)
}

func TestRoleGates(t *testing.T) {
	assert.Equal(t, http.StatusOK, call(newAuthRouter(false), "Bearer tech").Code)
	assert.Equal(t, http.StatusForbidden, call(newAuthRouter(true), "Bearer tech").Code)
	assert.Equal(t, http.StatusOK, call(newAuthRouter(true), "Bearer planner").Code)
}
