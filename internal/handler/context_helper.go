package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mops-planner-api/internal/middleware"
	"github.com/noah-isme/mops-planner-api/internal/models"
	appErrors "github.com/noah-isme/mops-planner-api/pkg/errors"
	"github.com/noah-isme/mops-planner-api/pkg/response"
)

// scopeFromContext returns the tenant scope pinned by the JWT middleware and
// writes the error response itself when there is none.
func scopeFromContext(c *gin.Context) (models.Scope, bool) {
	scope, ok := middleware.ScopeFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrMissingTenant)
		return models.Scope{}, false
	}
	return scope, true
}

func bindQuery(c *gin.Context, target interface{}, message string) bool {
	if err := c.ShouldBindQuery(target); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func bindJSON(c *gin.Context, target interface{}, message string) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func respond(c *gin.Context, status int, data interface{}) {
	response.JSON(c, status, data, nil, middleware.ExtractMeta(c))
}
