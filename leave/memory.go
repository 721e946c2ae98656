package leave

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/ledger"
)

// =============================================================================
// MEMORY DIRECTORY - In-memory implementation (for testing/dev)
// =============================================================================

type MemoryDirectory struct {
	mu        sync.RWMutex
	employees map[string]*Employee
}

func NewMemoryDirectory(employees ...Employee) *MemoryDirectory {
	d := &MemoryDirectory{employees: make(map[string]*Employee)}
	for _, e := range employees {
		d.Put(e)
	}
	return d
}

// Put inserts or replaces an employee.
func (d *MemoryDirectory) Put(e Employee) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := e
	d.employees[e.ID] = &cp
}

func (d *MemoryDirectory) Get(_ context.Context, employeeID string) (Employee, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.employees[employeeID]
	if !ok {
		return Employee{}, ErrEmployeeNotFound
	}
	return *e, nil
}

// ListActive returns active employees ordered by ID.
func (d *MemoryDirectory) ListActive(_ context.Context) ([]Employee, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Employee
	for _, e := range d.employees {
		if e.Active {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *MemoryDirectory) AdjustBalance(_ context.Context, employeeID string, lt ledger.LeaveType, delta decimal.Decimal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.employees[employeeID]
	if !ok {
		return ErrEmployeeNotFound
	}
	field := cacheField(e, lt)
	if field != nil {
		*field = field.Add(delta)
	}
	return nil
}

func (d *MemoryDirectory) SetBalance(_ context.Context, employeeID string, lt ledger.LeaveType, value decimal.Decimal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.employees[employeeID]
	if !ok {
		return ErrEmployeeNotFound
	}
	field := cacheField(e, lt)
	if field != nil {
		*field = value
	}
	return nil
}

func cacheField(e *Employee, lt ledger.LeaveType) *decimal.Decimal {
	switch lt {
	case ledger.CL:
		return &e.PaidLeaves
	case ledger.EL:
		return &e.EarnedLeaves
	case ledger.CCL:
		return &e.CompensatoryOffs
	}
	return nil
}

// =============================================================================
// MEMORY ATTENDANCE
// =============================================================================

// MemoryAttendance records present days per employee.
type MemoryAttendance struct {
	mu      sync.RWMutex
	present map[string]map[calendar.Date]bool
}

func NewMemoryAttendance() *MemoryAttendance {
	return &MemoryAttendance{present: make(map[string]map[calendar.Date]bool)}
}

// MarkPresent records attendance on each day.
func (a *MemoryAttendance) MarkPresent(employeeID string, days ...calendar.Date) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.present[employeeID] == nil {
		a.present[employeeID] = make(map[calendar.Date]bool)
	}
	for _, d := range days {
		a.present[employeeID][d] = true
	}
}

func (a *MemoryAttendance) AttendanceDays(_ context.Context, employeeID string, period calendar.Period) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := 0
	for d := range a.present[employeeID] {
		if period.Contains(d) {
			n++
		}
	}
	return n, nil
}
