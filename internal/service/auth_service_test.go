package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/mops-planner-api/internal/models"
	appErrors "github.com/noah-isme/mops-planner-api/pkg/errors"
)

func signClaims(t *testing.T, method jwt.SigningMethod, secret string, claims models.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", Issuer: "idp"})
	valid := models.Claims{
		TenantID: "tenant-1",
		UserID:   "planner-1",
		Role:     models.RolePlanner,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "idp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	t.Run("valid", func(t *testing.T) {
		claims, err := svc.ValidateToken(signClaims(t, jwt.SigningMethodHS256, "secret", valid))
		require.NoError(t, err)
		scope, err := claims.Scope()
		require.NoError(t, err)
		assert.Equal(t, "tenant-1", scope.TenantID())
		assert.Equal(t, "planner-1", scope.UserID())
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := svc.ValidateToken(signClaims(t, jwt.SigningMethodHS256, "other", valid))
		assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	})

	t.Run("expired", func(t *testing.T) {
		expired := valid
		expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		_, err := svc.ValidateToken(signClaims(t, jwt.SigningMethodHS256, "secret", expired))
		assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	})

	t.Run("foreign issuer", func(t *testing.T) {
		foreign := valid
		foreign.Issuer = "elsewhere"
		_, err := svc.ValidateToken(signClaims(t, jwt.SigningMethodHS256, "secret", foreign))
		assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	})

	t.Run("missing tenant", func(t *testing.T) {
		anonymous := valid
		anonymous.TenantID = ""
		_, err := svc.ValidateToken(signClaims(t, jwt.SigningMethodHS256, "secret", anonymous))
		assert.Equal(t, appErrors.ErrMissingTenant.Code, appErrors.FromError(err).Code)
	})
}
