package ccl

import (
	"context"

	"github.com/warp/leave-ledger/calendar"
)

// GrantStore persists grants. Get returns ErrNotFound for unknown IDs.
type GrantStore interface {
	CreateGrant(ctx context.Context, g Grant) error
	UpdateGrant(ctx context.Context, g Grant) error
	GetGrant(ctx context.Context, id string) (Grant, error)
	// ListGrants returns an employee's grants, newest worked date first.
	// An empty employeeID lists everything.
	ListGrants(ctx context.Context, employeeID string) ([]Grant, error)
	// GrantsOn returns every grant the employee filed for date.
	GrantsOn(ctx context.Context, employeeID string, date calendar.Date) ([]Grant, error)
}

// Calendar answers the eligibility questions for a worked date.
type Calendar interface {
	IsHoliday(ctx context.Context, departmentID string, date calendar.Date) (bool, error)
	HasPunches(ctx context.Context, employeeID string, date calendar.Date) (bool, error)
	HasApprovedOnDuty(ctx context.Context, employeeID string, date calendar.Date) (bool, error)
}
