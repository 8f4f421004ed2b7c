package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

// ResourceKey names one technician or machine whose calendar is being written.
type ResourceKey struct {
	Dimension models.Dimension
	ID        string
}

// ResourceLocker serialises check-then-write sequences per technician and machine
// with transaction-scoped Postgres advisory locks.
type ResourceLocker struct{}

// NewResourceLocker constructs the locker.
func NewResourceLocker() *ResourceLocker {
	return &ResourceLocker{}
}

// Lock takes the advisory locks for keys inside tx. Keys are sorted and deduplicated
// before locking, so callers must pass every key a transaction needs in one call:
// the ordering only holds within a call. The locks are released when tx ends.
func (l *ResourceLocker) Lock(ctx context.Context, tx sqlx.ExtContext, scope models.Scope, keys ...ResourceKey) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if tx == nil {
		return fmt.Errorf("advisory locks require a transaction")
	}
	names := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k.ID == "" {
			continue
		}
		name := fmt.Sprintf("planning:%s:%s:%s", scope.TenantID(), k.Dimension, k.ID)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, name); err != nil {
			return fmt.Errorf("lock %s: %w", name, err)
		}
	}
	return nil
}
