package models

import (
	"errors"
	"strings"
)

// ErrMissingScope is returned by repositories when called without a tenant scope.
var ErrMissingScope = errors.New("tenant scope is required")

// Scope pins every planning query and mutation to one tenant. The zero value is
// invalid, so a repository call cannot silently run unscoped.
type Scope struct {
	tenantID string
	userID   string
}

// NewScope builds a scope for the tenant and acting user.
func NewScope(tenantID, userID string) (Scope, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Scope{}, ErrMissingScope
	}
	return Scope{tenantID: tenantID, userID: strings.TrimSpace(userID)}, nil
}

// TenantID returns the tenant identifier.
func (s Scope) TenantID() string { return s.tenantID }

// UserID returns the acting user, used for audit columns.
func (s Scope) UserID() string { return s.userID }

// Valid reports whether the scope carries a tenant.
func (s Scope) Valid() bool { return s.tenantID != "" }
