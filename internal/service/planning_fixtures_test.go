package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mops-planner-api/internal/models"
	"github.com/noah-isme/mops-planner-api/internal/planning"
	"github.com/noah-isme/mops-planner-api/internal/repository"
	appErrors "github.com/noah-isme/mops-planner-api/pkg/errors"
	"github.com/noah-isme/mops-planner-api/pkg/events"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

// monday is the fixed "now" of every service test: Monday 2024-03-04 00:00 UTC.
var monday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func at(day, hour, minute int) time.Time {
	return time.Date(2024, 3, day, hour, minute, 0, 0, time.UTC)
}

func testScope(t *testing.T) models.Scope {
	t.Helper()
	scope, err := models.NewScope("tenant-1", "planner-1")
	require.NoError(t, err)
	return scope
}

func strPtr(v string) *string { return &v }
func intPtr(v int) *int       { return &v }

type memSlots struct {
	mu        sync.Mutex
	items     map[string]models.PlanningSlot
	seq       int
	createErr error
	actuals   []models.SlotActual
	updates   int
}

func newMemSlots(slots ...models.PlanningSlot) *memSlots {
	m := &memSlots{items: map[string]models.PlanningSlot{}}
	for _, s := range slots {
		m.items[s.ID] = s
	}
	return m
}

func (m *memSlots) sorted() []models.PlanningSlot {
	out := make([]models.PlanningSlot, 0, len(m.items))
	for _, s := range m.items {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memSlots) List(_ context.Context, _ sqlx.ExtContext, scope models.Scope, f models.SlotFilter) ([]models.PlanningSlot, error) {
	if !scope.Valid() {
		return nil, models.ErrMissingScope
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PlanningSlot
	for _, s := range m.sorted() {
		if !f.From.IsZero() && !s.EndAt.After(f.From) {
			continue
		}
		if !f.To.IsZero() && !s.StartAt.Before(f.To) {
			continue
		}
		if f.TechnicianID != "" && s.TechnicianID != f.TechnicianID {
			continue
		}
		if f.MachineID != "" && s.MachineID != f.MachineID {
			continue
		}
		if f.WorkOrderID != "" && s.WorkOrderID != f.WorkOrderID {
			continue
		}
		if f.ActiveOnly && !s.Status.Active() {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, s.Status) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func containsStatus(list []models.SlotStatus, s models.SlotStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *memSlots) ListOverlapping(_ context.Context, _ sqlx.ExtContext, _ models.Scope, dim models.Dimension, resourceID string, start, end time.Time, excludeID string) ([]models.PlanningSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := planning.DimensionKey(dim)
	var out []models.PlanningSlot
	for _, s := range m.sorted() {
		if s.ID == excludeID || !s.Status.Active() || key(s) != resourceID {
			continue
		}
		if s.Overlaps(start, end) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSlots) FindByID(_ context.Context, _ sqlx.ExtContext, _ models.Scope, id string) (*models.PlanningSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m *memSlots) HasActiveForWorkOrder(_ context.Context, _ sqlx.ExtContext, _ models.Scope, workOrderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.items {
		if s.WorkOrderID == workOrderID && s.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memSlots) Create(_ context.Context, _ sqlx.ExtContext, scope models.Scope, slot *models.PlanningSlot) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if slot.ID == "" {
		slot.ID = fmt.Sprintf("slot-new-%d", m.seq)
	}
	slot.TenantID = scope.TenantID()
	m.items[slot.ID] = *slot
	return nil
}

func (m *memSlots) Update(_ context.Context, _ sqlx.ExtContext, _ models.Scope, slot *models.PlanningSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[slot.ID]; !ok {
		return sql.ErrNoRows
	}
	m.updates++
	m.items[slot.ID] = *slot
	return nil
}

func (m *memSlots) UpdateStatus(_ context.Context, _ sqlx.ExtContext, _ models.Scope, id string, status models.SlotStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Status = status
	m.items[id] = s
	return nil
}

func (m *memSlots) Delete(_ context.Context, _ sqlx.ExtContext, _ models.Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

func (m *memSlots) CancelByShutdown(_ context.Context, _ sqlx.ExtContext, _ models.Scope, shutdownID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var workOrders []string
	for _, s := range m.sorted() {
		if s.ShutdownID == nil || *s.ShutdownID != shutdownID || s.Source != models.SlotSourceShutdown || !s.Status.Active() {
			continue
		}
		s.Status = models.SlotStatusCancelled
		m.items[s.ID] = s
		workOrders = append(workOrders, s.WorkOrderID)
	}
	return workOrders, nil
}

func (m *memSlots) LatestShutdownEnd(_ context.Context, _ sqlx.ExtContext, _ models.Scope, shutdownID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *time.Time
	for _, s := range m.items {
		if s.ShutdownID == nil || *s.ShutdownID != shutdownID || !s.Status.Active() {
			continue
		}
		end := s.EndAt
		if latest == nil || end.After(*latest) {
			latest = &end
		}
	}
	return latest, nil
}

func (m *memSlots) ListCompletedActuals(_ context.Context, _ models.Scope, from, to time.Time) ([]models.SlotActual, error) {
	var out []models.SlotActual
	for _, a := range m.actuals {
		if !a.StartAt.Before(from) && a.StartAt.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memSlots) byWorkOrder(id string) (models.PlanningSlot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.items {
		if s.WorkOrderID == id && s.Status.Active() {
			return s, true
		}
	}
	return models.PlanningSlot{}, false
}

type memWorkOrders struct {
	mu    sync.Mutex
	items map[string]models.WorkOrder
	order []string
}

func newMemWorkOrders(orders ...models.WorkOrder) *memWorkOrders {
	m := &memWorkOrders{items: map[string]models.WorkOrder{}}
	for _, wo := range orders {
		m.items[wo.ID] = wo
		m.order = append(m.order, wo.ID)
	}
	return m
}

func (m *memWorkOrders) FindByID(_ context.Context, _ sqlx.ExtContext, _ models.Scope, id string) (*models.WorkOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wo, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &wo, nil
}

func (m *memWorkOrders) FindByIDs(_ context.Context, _ sqlx.ExtContext, _ models.Scope, ids []string) ([]models.WorkOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkOrder
	for _, id := range ids {
		if wo, ok := m.items[id]; ok {
			out = append(out, wo)
		}
	}
	return out, nil
}

func (m *memWorkOrders) ListUnplanned(_ context.Context, _ models.Scope) ([]models.WorkOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkOrder
	for _, id := range m.order {
		if wo := m.items[id]; !wo.IsPlanned {
			out = append(out, wo)
		}
	}
	return out, nil
}

func (m *memWorkOrders) MarkPlanned(_ context.Context, _ sqlx.ExtContext, _ models.Scope, plan models.WorkOrderPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wo, ok := m.items[plan.WorkOrderID]
	if !ok {
		return sql.ErrNoRows
	}
	start, end, mins := plan.PlannedStart, plan.PlannedEnd, plan.DurationMinutes
	wo.IsPlanned = true
	wo.PlannedStart, wo.PlannedEnd, wo.PlannedDurationMinutes = &start, &end, &mins
	m.items[wo.ID] = wo
	return nil
}

func (m *memWorkOrders) ClearPlan(_ context.Context, _ sqlx.ExtContext, _ models.Scope, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		wo, ok := m.items[id]
		if !ok {
			continue
		}
		wo.IsPlanned = false
		wo.PlannedStart, wo.PlannedEnd, wo.PlannedDurationMinutes = nil, nil, nil
		m.items[id] = wo
	}
	return nil
}

func (m *memWorkOrders) get(id string) models.WorkOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

type memTechnicians []models.Technician

func (m memTechnicians) List(context.Context, models.Scope) ([]models.Technician, error) {
	return append([]models.Technician(nil), m...), nil
}

func (m memTechnicians) FindByID(_ context.Context, _ models.Scope, id string) (*models.Technician, error) {
	for _, t := range m {
		if t.ID == id {
			tech := t
			return &tech, nil
		}
	}
	return nil, sql.ErrNoRows
}

type memMachines map[string]models.Machine

func (m memMachines) FindByID(_ context.Context, _ models.Scope, id string) (*models.Machine, error) {
	machine, ok := m[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &machine, nil
}

type memAvailability struct {
	mu    sync.Mutex
	items []models.TechnicianAvailability
	seq   int
}

func (m *memAvailability) List(_ context.Context, _ models.Scope, f models.AvailabilityFilter) ([]models.TechnicianAvailability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TechnicianAvailability
	for _, ex := range m.items {
		if !f.From.IsZero() && ex.Date.Before(time.Date(f.From.Year(), f.From.Month(), f.From.Day(), 0, 0, 0, 0, time.UTC)) {
			continue
		}
		if !f.To.IsZero() && !ex.Date.Before(f.To) {
			continue
		}
		if f.TechnicianID != "" && ex.TechnicianID != f.TechnicianID {
			continue
		}
		out = append(out, ex)
	}
	return out, nil
}

func (m *memAvailability) FindByID(_ context.Context, _ models.Scope, id string) (*models.TechnicianAvailability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.items {
		if ex.ID == id {
			item := ex
			return &item, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memAvailability) Upsert(_ context.Context, _ sqlx.ExtContext, _ models.Scope, item *models.TechnicianAvailability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, ex := range m.items {
		if ex.TechnicianID == item.TechnicianID && ex.Date.Equal(item.Date) && ex.Type == item.Type {
			item.ID = ex.ID
			m.items[i] = *item
			return nil
		}
	}
	m.seq++
	item.ID = fmt.Sprintf("avail-%d", m.seq)
	m.items = append(m.items, *item)
	return nil
}

func (m *memAvailability) Update(_ context.Context, _ sqlx.ExtContext, _ models.Scope, item *models.TechnicianAvailability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, ex := range m.items {
		if ex.ID == item.ID {
			m.items[i] = *item
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memAvailability) Delete(_ context.Context, _ models.Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, ex := range m.items {
		if ex.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

type memShutdowns struct {
	mu    sync.Mutex
	items map[string]models.PlannedShutdown
}

func newMemShutdowns(items ...models.PlannedShutdown) *memShutdowns {
	m := &memShutdowns{items: map[string]models.PlannedShutdown{}}
	for _, sd := range items {
		m.items[sd.ID] = sd
	}
	return m
}

func (m *memShutdowns) List(_ context.Context, _ models.Scope, _ models.ShutdownFilter) ([]models.PlannedShutdown, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PlannedShutdown, 0, len(m.items))
	for _, sd := range m.items {
		out = append(out, sd)
	}
	return out, nil
}

func (m *memShutdowns) FindByID(_ context.Context, _ sqlx.ExtContext, _ models.Scope, id string, _ bool) (*models.PlannedShutdown, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sd, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &sd, nil
}

func (m *memShutdowns) Create(_ context.Context, _ sqlx.ExtContext, _ models.Scope, item *models.PlannedShutdown) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		item.ID = fmt.Sprintf("sd-%d", len(m.items)+1)
	}
	if item.Status == "" {
		item.Status = models.ShutdownStatusScheduled
	}
	m.items[item.ID] = *item
	return nil
}

func (m *memShutdowns) Update(_ context.Context, _ sqlx.ExtContext, _ models.Scope, item *models.PlannedShutdown) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; !ok {
		return sql.ErrNoRows
	}
	m.items[item.ID] = *item
	return nil
}

func (m *memShutdowns) UpdateStatus(_ context.Context, _ sqlx.ExtContext, _ models.Scope, id string, status models.ShutdownStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sd, ok := m.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	sd.Status = status
	m.items[id] = sd
	return nil
}

func (m *memShutdowns) Delete(_ context.Context, _ sqlx.ExtContext, _ models.Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

type memTemplates struct {
	items map[string]models.PlanningTemplate
}

func (m *memTemplates) List(_ context.Context, _ models.Scope, activeOnly bool) ([]models.PlanningTemplate, error) {
	var out []models.PlanningTemplate
	for _, tpl := range m.items {
		if activeOnly && !tpl.Active {
			continue
		}
		out = append(out, tpl)
	}
	return out, nil
}

func (m *memTemplates) FindByID(_ context.Context, _ models.Scope, id string) (*models.PlanningTemplate, error) {
	tpl, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &tpl, nil
}

func (m *memTemplates) Create(_ context.Context, _ models.Scope, item *models.PlanningTemplate) error {
	if item.ID == "" {
		item.ID = fmt.Sprintf("tpl-%d", len(m.items)+1)
	}
	m.items[item.ID] = *item
	return nil
}

func (m *memTemplates) Update(_ context.Context, _ models.Scope, item *models.PlanningTemplate) error {
	if _, ok := m.items[item.ID]; !ok {
		return sql.ErrNoRows
	}
	m.items[item.ID] = *item
	return nil
}

func (m *memTemplates) Delete(_ context.Context, _ models.Scope, id string) error {
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

type recordingLocker struct {
	calls [][]repository.ResourceKey
	err   error
}

func (l *recordingLocker) Lock(_ context.Context, tx sqlx.ExtContext, _ models.Scope, keys ...repository.ResourceKey) error {
	if tx == nil {
		return errors.New("lock outside transaction")
	}
	l.calls = append(l.calls, keys)
	return l.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type memCache struct {
	data        map[string][]byte
	invalidated []string
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := c.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

func (c *memCache) DeleteByPattern(_ context.Context, pattern string) error {
	c.invalidated = append(c.invalidated, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
	return nil
}

func defaultTechnicians() memTechnicians {
	return memTechnicians{
		{ID: "tech-1", TenantID: "tenant-1", FullName: "Alice Moreno", Role: string(models.RoleTechnician)},
		{ID: "tech-2", TenantID: "tenant-1", FullName: "Bilal Osei", Role: string(models.RoleTechnician)},
	}
}

func testRecommender() *planning.Recommender {
	return planning.NewRecommender(planning.DefaultWorkCalendar(), planning.FixedClock{At: monday})
}

func ptrTime(v time.Time) *time.Time { return &v }
