package ccl

import (
	"errors"
	"fmt"

	"github.com/warp/leave-ledger/calendar"
)

var (
	ErrNotFound          = errors.New("ccl grant not found")
	ErrNotEligible       = errors.New("date not eligible for ccl")
	ErrConflict          = errors.New("ccl already filed for this date")
	ErrUnauthorized      = errors.New("actor may not perform this action")
	ErrInvalidTransition = errors.New("invalid ccl status transition")
	ErrInvalidRequest    = errors.New("invalid ccl request")
)

// EligibilityError explains why a date cannot earn CCL.
type EligibilityError struct {
	Date   calendar.Date
	Reason string
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("%s: %s", e.Date, e.Reason)
}

func (e *EligibilityError) Unwrap() error { return ErrNotEligible }

// ConflictError names the grant already occupying the date.
type ConflictError struct {
	Date     calendar.Date
	Existing string
	Portion  Portion
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already covered by grant %s (%s)", e.Date, e.Existing, e.Portion)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// TransitionError is returned when an action is not allowed from the
// grant's current status.
type TransitionError struct {
	From   Status
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a grant in status %s", e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
