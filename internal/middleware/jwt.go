package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mops-planner-api/internal/models"
	appErrors "github.com/noah-isme/mops-planner-api/pkg/errors"
	"github.com/noah-isme/mops-planner-api/pkg/logger"
	"github.com/noah-isme/mops-planner-api/pkg/response"
)

// Gin context keys set by JWT.
const (
	ContextUserKey  = "currentUser"
	ContextScopeKey = "planningScope"
)

// TokenValidator verifies a bearer token.
type TokenValidator interface {
	ValidateToken(token string) (*models.Claims, error)
}

// JWT requires a valid access token and pins the request to the token's tenant.
func JWT(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		scope, err := claims.Scope()
		if err != nil {
			response.Error(c, appErrors.ErrMissingTenant)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(ContextScopeKey, scope)
		c.Set(logger.TenantKey, scope.TenantID())
		c.Set(logger.UserKey, scope.UserID())
		c.Next()
	}
}

// ScopeFrom returns the tenant scope stored by JWT.
func ScopeFrom(c *gin.Context) (models.Scope, bool) {
	value, exists := c.Get(ContextScopeKey)
	if !exists {
		return models.Scope{}, false
	}
	scope, ok := value.(models.Scope)
	return scope, ok && scope.Valid()
}

// ClaimsFrom returns the verified claims stored by JWT.
func ClaimsFrom(c *gin.Context) *models.Claims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.Claims)
	return claims
}
