package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
)

var _ leave.Directory = (*Store)(nil)

// =============================================================================
// EMPLOYEE DIRECTORY (leave.Directory interface)
// =============================================================================

const employeeColumns = `id, name, department_id, division_id, joining_date, active,
	reporting_managers_json, weekly_offs_json, paid_leaves, earned_leaves, compensatory_offs`

// SaveEmployee inserts or replaces an employee, balance caches included.
func (s *Store) SaveEmployee(ctx context.Context, e leave.Employee) error {
	managers, err := json.Marshal(nonNilStrings(e.ReportingManagers))
	if err != nil {
		return err
	}
	offs := make([]int, len(e.WeeklyOffs))
	for i, w := range e.WeeklyOffs {
		offs[i] = int(w)
	}
	weeklyOffs, err := json.Marshal(offs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO employees (`+employeeColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.DepartmentID, e.DivisionID, e.JoiningDate.String(), e.Active,
		string(managers), string(weeklyOffs),
		e.PaidLeaves.String(), e.EarnedLeaves.String(), e.CompensatoryOffs.String(),
		s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, employeeID string) (leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEmployee(ctx, s.db, employeeID)
}

func getEmployee(ctx context.Context, q queryer, employeeID string) (leave.Employee, error) {
	row := q.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, employeeID)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.Employee{}, leave.ErrEmployeeNotFound
	}
	return e, err
}

// ListActive returns active employees ordered by ID.
func (s *Store) ListActive(ctx context.Context) ([]leave.Employee, error) {
	return s.listEmployees(ctx, `WHERE active = 1`)
}

// ListEmployees returns every employee ordered by ID.
func (s *Store) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	return s.listEmployees(ctx, "")
}

func (s *Store) listEmployees(ctx context.Context, where string) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+employeeColumns+` FROM employees `+where+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var out []leave.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AdjustBalance adds delta to a cache column inside one SQL transaction.
func (s *Store) AdjustBalance(ctx context.Context, employeeID string, lt ledger.LeaveType, delta decimal.Decimal) error {
	return s.updateBalance(ctx, employeeID, lt, func(current decimal.Decimal) decimal.Decimal {
		return current.Add(delta)
	})
}

// SetBalance overwrites a cache column.
func (s *Store) SetBalance(ctx context.Context, employeeID string, lt ledger.LeaveType, value decimal.Decimal) error {
	return s.updateBalance(ctx, employeeID, lt, func(decimal.Decimal) decimal.Decimal {
		return value
	})
}

func (s *Store) updateBalance(ctx context.Context, employeeID string, lt ledger.LeaveType, next func(decimal.Decimal) decimal.Decimal) error {
	column, ok := balanceColumns[lt]
	if !ok {
		return fmt.Errorf("no balance cache for leave type %q", lt)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx, `SELECT `+column+` FROM employees WHERE id = ?`, employeeID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return leave.ErrEmployeeNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", column, err)
		}
		current, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("employee %s: bad %s %q: %w", employeeID, column, raw, err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE employees SET `+column+` = ?, updated_at = ? WHERE id = ?`,
			next(current).String(), s.timestamp(), employeeID)
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", column, err)
		}
		return nil
	})
}

var balanceColumns = map[ledger.LeaveType]string{
	ledger.CL:  "paid_leaves",
	ledger.EL:  "earned_leaves",
	ledger.CCL: "compensatory_offs",
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (leave.Employee, error) {
	var (
		e                     leave.Employee
		joining               string
		managers, weeklyOffs  string
		paid, earned, compOff string
	)
	err := row.Scan(&e.ID, &e.Name, &e.DepartmentID, &e.DivisionID, &joining, &e.Active,
		&managers, &weeklyOffs, &paid, &earned, &compOff)
	if err != nil {
		return e, err
	}
	if e.JoiningDate, err = calendar.Parse(joining); err != nil {
		return e, fmt.Errorf("employee %s: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(managers), &e.ReportingManagers); err != nil {
		return e, fmt.Errorf("employee %s: reporting managers: %w", e.ID, err)
	}
	var offs []int
	if err := json.Unmarshal([]byte(weeklyOffs), &offs); err != nil {
		return e, fmt.Errorf("employee %s: weekly offs: %w", e.ID, err)
	}
	for _, o := range offs {
		e.WeeklyOffs = append(e.WeeklyOffs, time.Weekday(o))
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		raw string
	}{{&e.PaidLeaves, paid}, {&e.EarnedLeaves, earned}, {&e.CompensatoryOffs, compOff}} {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return e, fmt.Errorf("employee %s: bad balance %q: %w", e.ID, f.raw, err)
		}
	}
	if len(e.ReportingManagers) == 0 {
		e.ReportingManagers = nil
	}
	return e, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
