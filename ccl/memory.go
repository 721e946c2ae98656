package ccl

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// MemoryStore holds grants in memory. It also serves the expiry sweep as a
// leave.CompOffStore.
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[string]Grant
}

var _ leave.CompOffStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{grants: make(map[string]Grant)}
}

func (m *MemoryStore) CreateGrant(_ context.Context, g Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[g.ID] = clone(g)
	return nil
}

func (m *MemoryStore) UpdateGrant(_ context.Context, g Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.grants[g.ID]; !ok {
		return ErrNotFound
	}
	m.grants[g.ID] = clone(g)
	return nil
}

func (m *MemoryStore) GetGrant(_ context.Context, id string) (Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.grants[id]
	if !ok {
		return Grant{}, ErrNotFound
	}
	return clone(g), nil
}

func (m *MemoryStore) ListGrants(_ context.Context, employeeID string) ([]Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Grant
	for _, g := range m.grants {
		if employeeID == "" || g.EmployeeID == employeeID {
			out = append(out, clone(g))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].WorkedDate.Equal(out[j].WorkedDate) {
			return out[i].WorkedDate.After(out[j].WorkedDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) GrantsOn(_ context.Context, employeeID string, date calendar.Date) ([]Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Grant
	for _, g := range m.grants {
		if g.EmployeeID == employeeID && g.WorkedDate.Equal(date) {
			out = append(out, clone(g))
		}
	}
	return out, nil
}

func (m *MemoryStore) ExpirableCompOffs(_ context.Context, employeeID string, before calendar.Date) ([]leave.CompOff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []leave.CompOff
	for _, g := range m.grants {
		if g.EmployeeID != employeeID || !expirable(g, before) {
			continue
		}
		out = append(out, leave.CompOff{ID: g.ID, EmployeeID: g.EmployeeID, WorkedDate: g.WorkedDate, Days: g.Days()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkedDate.Before(out[j].WorkedDate) })
	return out, nil
}

func (m *MemoryStore) MarkCompOffExpired(_ context.Context, grantID, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[grantID]
	if !ok {
		return ErrNotFound
	}
	g.IsExpired = true
	g.ExpiryTransactionID = transactionID
	m.grants[grantID] = g
	return nil
}

func expirable(g Grant, before calendar.Date) bool {
	return g.Credited() && !g.IsUsed && !g.IsExpired && g.WorkedDate.Before(before)
}

func clone(g Grant) Grant {
	g.Steps = append([]Step(nil), g.Steps...)
	return g
}

// =============================================================================
// MEMORY CALENDAR
// =============================================================================

// MemoryCalendar answers eligibility from in-memory sets. Holidays added with
// an empty department apply to everyone.
type MemoryCalendar struct {
	mu       sync.RWMutex
	holidays map[string]map[calendar.Date]bool
	punches  map[string]map[calendar.Date]bool
	onDuty   map[string]map[calendar.Date]bool
}

func NewMemoryCalendar() *MemoryCalendar {
	return &MemoryCalendar{
		holidays: make(map[string]map[calendar.Date]bool),
		punches:  make(map[string]map[calendar.Date]bool),
		onDuty:   make(map[string]map[calendar.Date]bool),
	}
}

func (c *MemoryCalendar) AddHoliday(departmentID string, dates ...calendar.Date) {
	c.add(c.holidays, departmentID, dates)
}

func (c *MemoryCalendar) AddPunch(employeeID string, dates ...calendar.Date) {
	c.add(c.punches, employeeID, dates)
}

func (c *MemoryCalendar) AddOnDuty(employeeID string, dates ...calendar.Date) {
	c.add(c.onDuty, employeeID, dates)
}

func (c *MemoryCalendar) add(set map[string]map[calendar.Date]bool, key string, dates []calendar.Date) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set[key] == nil {
		set[key] = make(map[calendar.Date]bool)
	}
	for _, d := range dates {
		set[key][d] = true
	}
}

func (c *MemoryCalendar) IsHoliday(_ context.Context, departmentID string, date calendar.Date) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.holidays[""][date] || c.holidays[departmentID][date], nil
}

func (c *MemoryCalendar) HasPunches(_ context.Context, employeeID string, date calendar.Date) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.punches[employeeID][date], nil
}

func (c *MemoryCalendar) HasApprovedOnDuty(_ context.Context, employeeID string, date calendar.Date) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onDuty[employeeID][date], nil
}
