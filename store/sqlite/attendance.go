package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/ccl"
	"github.com/warp/leave-ledger/leave"
)

var (
	_ leave.AttendanceSource = (*Store)(nil)
	_ ccl.Calendar           = (*Store)(nil)
)

// On-duty record statuses.
const (
	OnDutyPending  = "pending"
	OnDutyApproved = "approved"
	OnDutyRejected = "rejected"
)

// Holiday is a company holiday. An empty DepartmentID applies to everyone.
type Holiday struct {
	DepartmentID string        `json:"department_id"`
	Date         calendar.Date `json:"date"`
	Name         string        `json:"name"`
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (s *Store) SaveHoliday(ctx context.Context, h Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO holidays (department_id, date, name) VALUES (?, ?, ?)`,
		h.DepartmentID, h.Date.String(), h.Name)
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

// Holidays lists holidays in period visible to a department.
func (s *Store) Holidays(ctx context.Context, departmentID string, period calendar.Period) ([]Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT department_id, date, name FROM holidays
		WHERE department_id IN ('', ?) AND date >= ? AND date <= ?
		ORDER BY date, department_id`,
		departmentID, period.Start.String(), period.End.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var out []Holiday
	for rows.Next() {
		var (
			h    Holiday
			date string
		)
		if err := rows.Scan(&h.DepartmentID, &date, &h.Name); err != nil {
			return nil, err
		}
		if h.Date, err = calendar.Parse(date); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) IsHoliday(ctx context.Context, departmentID string, date calendar.Date) (bool, error) {
	return s.exists(ctx,
		`SELECT COUNT(*) FROM holidays WHERE department_id IN ('', ?) AND date = ?`,
		departmentID, date.String())
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// RecordPunch stores one attendance punch. Repeated punches at the same
// instant are ignored.
func (s *Store) RecordPunch(ctx context.Context, employeeID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO attendance_punches (employee_id, date, punched_at) VALUES (?, ?, ?)`,
		employeeID, calendar.FromTime(at).String(), at.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record punch: %w", err)
	}
	return nil
}

// AttendanceDays counts distinct days with at least one punch.
func (s *Store) AttendanceDays(ctx context.Context, employeeID string, period calendar.Period) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT date) FROM attendance_punches
		WHERE employee_id = ? AND date >= ? AND date <= ?`,
		employeeID, period.Start.String(), period.End.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count attendance: %w", err)
	}
	return n, nil
}

func (s *Store) HasPunches(ctx context.Context, employeeID string, date calendar.Date) (bool, error) {
	return s.exists(ctx,
		`SELECT COUNT(*) FROM attendance_punches WHERE employee_id = ? AND date = ?`,
		employeeID, date.String())
}

// =============================================================================
// ON-DUTY
// =============================================================================

func (s *Store) SaveOnDuty(ctx context.Context, employeeID string, date calendar.Date, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO on_duty_records (employee_id, date, status) VALUES (?, ?, ?)`,
		employeeID, date.String(), status)
	if err != nil {
		return fmt.Errorf("failed to save on-duty record: %w", err)
	}
	return nil
}

func (s *Store) HasApprovedOnDuty(ctx context.Context, employeeID string, date calendar.Date) (bool, error) {
	return s.exists(ctx,
		`SELECT COUNT(*) FROM on_duty_records WHERE employee_id = ? AND date = ? AND status = ?`,
		employeeID, date.String(), OnDutyApproved)
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
