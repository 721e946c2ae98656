/*
Package ccl implements the Compensatory Casual Leave approval workflow.

PURPOSE:
  An employee who works on a holiday or weekly off files a CCL grant for
  that date. The grant walks an approval chain; only the final approval
  credits the ledger, exactly once.

STATE MACHINE:

	draft ──submit──▶ pending ──approve──▶ <role>_approved ──approve──▶ hr_approved | approved
	  │                  │                        │
	  └──────────────────┴──── reject / cancel ───┴──▶ rejected | cancelled

  Intermediate statuses are named after the role of the step just approved
  (reporting_manager_approved, hod_approved, manager_approved, ...). The
  final status is hr_approved when HR closes the chain, approved otherwise.

APPROVERS:
  An approver is either the employee's ReportingManager or a FixedRole.
  CanAct is the single place that decides whether an actor may act on a
  step.

CHAIN CONSTRUCTION:
  1. employee has reporting managers  -> [ReportingManager, FixedRole(hr)]
  2. configured CCL approval steps    -> one FixedRole per step
  3. otherwise                        -> [FixedRole(hod), FixedRole(hr)]

RULES CHECKED BEFORE FILING:
  - the worked date is not in the future
  - the date is a holiday or one of the employee's weekly offs
  - attendance punches or an approved on-duty record exist for the date
  - at most one full day, or two complementary halves, per date

SEE ALSO:
  - workflow.go: Service operations
  - memory.go:   in-memory GrantStore and Calendar
*/
package ccl

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusDraft      Status = "draft"
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusHRApproved Status = "hr_approved"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"

	StatusReportingManagerApproved Status = "reporting_manager_approved"
	StatusHODApproved              Status = "hod_approved"
	StatusManagerApproved          Status = "manager_approved"
)

// IsFinalApproval reports whether the chain has been closed. Only the last
// step of a chain produces these statuses.
func (s Status) IsFinalApproval() bool {
	return s == StatusApproved || s == StatusHRApproved
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s.IsFinalApproval() || s == StatusRejected || s == StatusCancelled
}

// InApproval reports whether the chain has an active step.
func (s Status) InApproval() bool {
	return s != StatusDraft && !s.IsTerminal()
}

// Well-known roles.
const (
	RoleHR      = "hr"
	RoleHOD     = "hod"
	RoleManager = "manager"
)

// =============================================================================
// PORTION
// =============================================================================

// Portion is the part of the day worked.
type Portion string

const (
	FullDay    Portion = "full"
	FirstHalf  Portion = "first_half"
	SecondHalf Portion = "second_half"
)

func (p Portion) Valid() bool {
	return p == FullDay || p == FirstHalf || p == SecondHalf
}

func (p Portion) IsHalf() bool { return p == FirstHalf || p == SecondHalf }

// Days is the CCL value of the portion.
func (p Portion) Days() decimal.Decimal {
	if p.IsHalf() {
		return decimal.NewFromFloat(0.5)
	}
	return decimal.NewFromInt(1)
}

// Overlaps reports whether two portions of the same date collide. Only the
// first and second halves are complementary.
func (p Portion) Overlaps(o Portion) bool {
	if p == FullDay || o == FullDay {
		return true
	}
	return p == o
}

// =============================================================================
// APPROVERS - Tagged union
// =============================================================================

// Approver is ReportingManager or FixedRole.
type Approver interface {
	approver()
	// Key names the approver in statuses and storage.
	Key() string
}

// ReportingManager is any of the employee's reporting managers.
type ReportingManager struct{}

// FixedRole is anyone holding Role.
type FixedRole struct {
	Role string
}

func (ReportingManager) approver() {}
func (FixedRole) approver()        {}

func (ReportingManager) Key() string { return "reporting_manager" }
func (r FixedRole) Key() string      { return r.Role }

// Actor is the user performing an action.
type Actor struct {
	ID    string   `json:"id" validate:"required"`
	Roles []string `json:"roles"`
}

// HasRole reports whether the actor holds role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CanAct reports whether actor may approve or reject a step owned by approver
// for employee. Nobody may act on their own grant.
func CanAct(approver Approver, employee leave.Employee, actor Actor) bool {
	if actor.ID == "" || actor.ID == employee.ID {
		return false
	}
	switch a := approver.(type) {
	case ReportingManager:
		for _, m := range employee.ReportingManagers {
			if m == actor.ID {
				return true
			}
		}
		return false
	case FixedRole:
		return actor.HasRole(a.Role)
	}
	return false
}

// approvedStatus is the status after approver signs off. final marks the
// last step of the chain; earlier steps never yield a final status, whatever
// their role. Roles without a named intermediate status map to
// manager_approved.
func approvedStatus(approver Approver, final bool) Status {
	role := ""
	if r, ok := approver.(FixedRole); ok {
		role = r.Role
	}
	if final {
		if role == RoleHR {
			return StatusHRApproved
		}
		return StatusApproved
	}
	switch {
	case role == "":
		return StatusReportingManagerApproved
	case role == RoleHOD:
		return StatusHODApproved
	default:
		return StatusManagerApproved
	}
}

// =============================================================================
// STEP
// =============================================================================

type StepStatus string

const (
	StepWaiting  StepStatus = "waiting"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
)

// Step is one approval in the chain.
type Step struct {
	Approver Approver
	Status   StepStatus
	ActedBy  string
	ActedAt  time.Time
	Comment  string
}

type stepJSON struct {
	Approver string     `json:"approver"`
	Role     string     `json:"role,omitempty"`
	Status   StepStatus `json:"status"`
	ActedBy  string     `json:"acted_by,omitempty"`
	ActedAt  *time.Time `json:"acted_at,omitempty"`
	Comment  string     `json:"comment,omitempty"`
}

func (s Step) MarshalJSON() ([]byte, error) {
	out := stepJSON{Status: s.Status, ActedBy: s.ActedBy, Comment: s.Comment}
	switch a := s.Approver.(type) {
	case ReportingManager:
		out.Approver = "reporting_manager"
	case FixedRole:
		out.Approver = "role"
		out.Role = a.Role
	default:
		return nil, fmt.Errorf("unknown approver %T", s.Approver)
	}
	if !s.ActedAt.IsZero() {
		t := s.ActedAt
		out.ActedAt = &t
	}
	return json.Marshal(out)
}

func (s *Step) UnmarshalJSON(b []byte) error {
	var in stepJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	switch in.Approver {
	case "reporting_manager":
		s.Approver = ReportingManager{}
	case "role":
		s.Approver = FixedRole{Role: in.Role}
	default:
		return fmt.Errorf("unknown approver %q", in.Approver)
	}
	s.Status = in.Status
	s.ActedBy = in.ActedBy
	s.Comment = in.Comment
	s.ActedAt = time.Time{}
	if in.ActedAt != nil {
		s.ActedAt = *in.ActedAt
	}
	return nil
}

// =============================================================================
// GRANT
// =============================================================================

type Grant struct {
	ID          string        `json:"id"`
	EmployeeID  string        `json:"employee_id"`
	WorkedDate  calendar.Date `json:"worked_date"`
	Portion     Portion       `json:"portion"`
	Reason      string        `json:"reason,omitempty"`
	Status      Status        `json:"status"`
	Steps       []Step        `json:"steps"`
	CurrentStep int           `json:"current_step"`

	IsExpired bool `json:"is_expired"`
	IsUsed    bool `json:"is_used"`

	TransactionID       string `json:"transaction_id,omitempty"`
	ExpiryTransactionID string `json:"expiry_transaction_id,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Days is the CCL value of the grant.
func (g Grant) Days() decimal.Decimal { return g.Portion.Days() }

// ActiveStep returns the step waiting for approval.
func (g Grant) ActiveStep() (Step, bool) {
	if !g.Status.InApproval() || g.CurrentStep < 0 || g.CurrentStep >= len(g.Steps) {
		return Step{}, false
	}
	return g.Steps[g.CurrentStep], true
}

// Credited reports whether the grant's CREDIT has been posted.
func (g Grant) Credited() bool {
	return g.Status.IsFinalApproval() && g.TransactionID != ""
}

// blocksDate reports whether the grant occupies its worked date for the
// conflict rule.
func (g Grant) blocksDate() bool {
	return g.Status != StatusDraft && g.Status != StatusRejected && g.Status != StatusCancelled
}

// FileRequest is the input to SaveDraft and File.
type FileRequest struct {
	EmployeeID string        `json:"employee_id" validate:"required"`
	WorkedDate calendar.Date `json:"worked_date"`
	Portion    Portion       `json:"portion" validate:"required,oneof=full first_half second_half"`
	Reason     string        `json:"reason" validate:"max=500"`
}
