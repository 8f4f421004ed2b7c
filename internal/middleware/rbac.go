package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mops-planner-api/internal/models"
	appErrors "github.com/noah-isme/mops-planner-api/pkg/errors"
	"github.com/noah-isme/mops-planner-api/pkg/response"
)

// RequireRoles lets the request through only for the listed roles.
func RequireRoles(roles ...models.PlannerRole) gin.HandlerFunc {
	allowed := make(map[models.PlannerRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := ClaimsFrom(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CanRead allows every planning role.
func CanRead() gin.HandlerFunc { return RequireRoles(models.ReadRoles()...) }

// CanWrite allows roles that may change the plan.
func CanWrite() gin.HandlerFunc { return RequireRoles(models.WriteRoles()...) }
