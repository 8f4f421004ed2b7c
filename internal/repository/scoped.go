package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mops-planner-api/internal/models"
)

// scopedRepo is embedded by every planning repository. Queries run against the
// executor passed in (usually a transaction) and fall back to the pool.
type scopedRepo struct {
	db *sqlx.DB
}

func (r scopedRepo) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

func requireScope(scope models.Scope) error {
	if !scope.Valid() {
		return models.ErrMissingScope
	}
	return nil
}

// whereBuilder accumulates positional conditions, always starting with the tenant.
type whereBuilder struct {
	conditions []string
	args       []interface{}
}

func newTenantWhere(column string, scope models.Scope) *whereBuilder {
	w := &whereBuilder{}
	w.add(column+" = %s", scope.TenantID())
	return w
}

// add appends a condition; each %s in format is replaced by the same placeholder.
func (w *whereBuilder) add(format string, arg interface{}) {
	w.args = append(w.args, arg)
	placeholder := fmt.Sprintf("$%d", len(w.args))
	w.conditions = append(w.conditions, strings.ReplaceAll(format, "%s", placeholder))
}

func (w *whereBuilder) raw(condition string) {
	w.conditions = append(w.conditions, condition)
}

func (w *whereBuilder) String() string {
	return "WHERE " + strings.Join(w.conditions, " AND ")
}

func ensureAffected(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
