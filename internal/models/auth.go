package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// PlannerRole is the access role carried in a bearer token.
type PlannerRole string

const (
	RolePlannerAdmin PlannerRole = "ADMIN"
	RolePlanner      PlannerRole = "PLANNER"
	RoleSupervisorUI PlannerRole = "SUPERVISOR"
	RoleFieldTech    PlannerRole = "TECHNICIAN"
)

// WriteRoles may change the plan.
func WriteRoles() []PlannerRole {
	return []PlannerRole{RolePlannerAdmin, RolePlanner, RoleSupervisorUI}
}

// ReadRoles may view the plan.
func ReadRoles() []PlannerRole {
	return append(WriteRoles(), RoleFieldTech)
}

// Claims is the access token payload issued by the identity provider.
type Claims struct {
	TenantID string      `json:"tenant_id"`
	UserID   string      `json:"user_id"`
	Role     PlannerRole `json:"role"`
	Email    string      `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Scope converts the claims into a tenant scope.
func (c Claims) Scope() (Scope, error) {
	userID := c.UserID
	if userID == "" {
		userID = c.Subject
	}
	return NewScope(c.TenantID, userID)
}
