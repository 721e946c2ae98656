package ccl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/settings"
)

// GrantKey is the idempotency key of the credit posted on final approval.
func GrantKey(grantID string) string {
	return "ccl-grant:" + grantID
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Grants    GrantStore
	Calendar  Calendar
	Directory leave.Directory
	Ledger    *ledger.Ledger
	Settings  *settings.Cascade

	Now func() time.Time

	// mu serializes transitions so the conflict check and the status write
	// happen atomically within this process.
	mu     sync.Mutex
	logger *zap.Logger
}

func NewService(grants GrantStore, cal Calendar, dir leave.Directory, l *ledger.Ledger, cascade *settings.Cascade, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.L()
	}
	return &Service{
		Grants:    grants,
		Calendar:  cal,
		Directory: dir,
		Ledger:    l,
		Settings:  cascade,
		Now:       l.Now,
		logger:    logger.Named("ccl.workflow"),
	}
}

// =============================================================================
// FILING
// =============================================================================

// SaveDraft stores a grant without checking eligibility. Checks run on Submit.
func (s *Service) SaveDraft(ctx context.Context, req FileRequest, actor Actor) (Grant, error) {
	emp, err := s.filer(ctx, req, actor)
	if err != nil {
		return Grant{}, err
	}
	g := s.newGrant(req, actor, StatusDraft)
	if err := s.Grants.CreateGrant(ctx, g); err != nil {
		return Grant{}, err
	}
	s.logger.Info("ccl draft saved", zap.String("grant_id", g.ID), zap.String("employee_id", emp.ID))
	return g, nil
}

// File validates and submits a grant in one step.
func (s *Service) File(ctx context.Context, req FileRequest, actor Actor) (Grant, error) {
	emp, err := s.filer(ctx, req, actor)
	if err != nil {
		return Grant{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.newGrant(req, actor, StatusDraft)
	if err := s.open(ctx, &g, emp); err != nil {
		return Grant{}, err
	}
	if err := s.Grants.CreateGrant(ctx, g); err != nil {
		return Grant{}, err
	}
	s.logger.Info("ccl filed",
		zap.String("grant_id", g.ID),
		zap.String("employee_id", emp.ID),
		zap.Stringer("worked_date", g.WorkedDate),
		zap.Int("steps", len(g.Steps)))
	return g, nil
}

// Submit moves a draft into the approval chain.
func (s *Service) Submit(ctx context.Context, id string, actor Actor) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.Grants.GetGrant(ctx, id)
	if err != nil {
		return Grant{}, err
	}
	if g.Status != StatusDraft {
		return Grant{}, &TransitionError{From: g.Status, Action: "submit"}
	}
	emp, err := s.Directory.Get(ctx, g.EmployeeID)
	if err != nil {
		return Grant{}, err
	}
	if !mayFile(emp, actor) {
		return Grant{}, ErrUnauthorized
	}
	if err := s.open(ctx, &g, emp); err != nil {
		return Grant{}, err
	}
	if err := s.Grants.UpdateGrant(ctx, g); err != nil {
		return Grant{}, err
	}
	s.logger.Info("ccl submitted", zap.String("grant_id", g.ID), zap.String("employee_id", emp.ID))
	return g, nil
}

// open runs the eligibility and conflict checks, then starts the chain.
func (s *Service) open(ctx context.Context, g *Grant, emp leave.Employee) error {
	if err := s.checkEligible(ctx, emp, g.WorkedDate); err != nil {
		return err
	}
	if err := s.checkConflict(ctx, *g); err != nil {
		return err
	}
	steps, err := s.chain(ctx, emp)
	if err != nil {
		return err
	}
	g.Steps = steps
	g.CurrentStep = 0
	g.Status = StatusPending
	g.UpdatedAt = s.Now()
	return nil
}

func (s *Service) filer(ctx context.Context, req FileRequest, actor Actor) (leave.Employee, error) {
	if err := validateRequest(req); err != nil {
		return leave.Employee{}, err
	}
	emp, err := s.Directory.Get(ctx, req.EmployeeID)
	if err != nil {
		return leave.Employee{}, err
	}
	if !mayFile(emp, actor) {
		return leave.Employee{}, ErrUnauthorized
	}
	return emp, nil
}

func validateRequest(req FileRequest) error {
	switch {
	case req.EmployeeID == "":
		return fmt.Errorf("%w: employee_id is required", ErrInvalidRequest)
	case req.WorkedDate.IsZero():
		return fmt.Errorf("%w: worked_date is required", ErrInvalidRequest)
	case !req.Portion.Valid():
		return fmt.Errorf("%w: unknown portion %q", ErrInvalidRequest, req.Portion)
	}
	return nil
}

// mayFile allows the employee and HR to file or cancel on their behalf.
func mayFile(emp leave.Employee, actor Actor) bool {
	return actor.ID == emp.ID || actor.HasRole(RoleHR)
}

func (s *Service) newGrant(req FileRequest, actor Actor, status Status) Grant {
	now := s.Now()
	return Grant{
		ID:         uuid.NewString(),
		EmployeeID: req.EmployeeID,
		WorkedDate: req.WorkedDate,
		Portion:    req.Portion,
		Reason:     req.Reason,
		Status:     status,
		CreatedBy:  actor.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// =============================================================================
// RULES
// =============================================================================

func (s *Service) checkEligible(ctx context.Context, emp leave.Employee, date calendar.Date) error {
	if date.After(s.Ledger.Today()) {
		return &EligibilityError{Date: date, Reason: "worked date is in the future"}
	}
	if !emp.IsWeeklyOff(date) {
		holiday, err := s.Calendar.IsHoliday(ctx, emp.DepartmentID, date)
		if err != nil {
			return fmt.Errorf("check holiday: %w", err)
		}
		if !holiday {
			return &EligibilityError{Date: date, Reason: "not a holiday or weekly off"}
		}
	}
	punched, err := s.Calendar.HasPunches(ctx, emp.ID, date)
	if err != nil {
		return fmt.Errorf("check attendance: %w", err)
	}
	if punched {
		return nil
	}
	onDuty, err := s.Calendar.HasApprovedOnDuty(ctx, emp.ID, date)
	if err != nil {
		return fmt.Errorf("check on-duty: %w", err)
	}
	if !onDuty {
		return &EligibilityError{Date: date, Reason: "no attendance or approved on-duty record"}
	}
	return nil
}

// checkConflict rejects a grant whose portion collides with another live
// grant on the same date. Drafts, rejections and cancellations do not count.
func (s *Service) checkConflict(ctx context.Context, g Grant) error {
	existing, err := s.Grants.GrantsOn(ctx, g.EmployeeID, g.WorkedDate)
	if err != nil {
		return err
	}
	for _, o := range existing {
		if o.ID == g.ID || !o.blocksDate() {
			continue
		}
		if o.Portion.Overlaps(g.Portion) {
			return &ConflictError{Date: g.WorkedDate, Existing: o.ID, Portion: o.Portion}
		}
	}
	return nil
}

// BuildChain returns the approval steps for emp.
func BuildChain(emp leave.Employee, configured []string) []Step {
	var approvers []Approver
	switch {
	case len(emp.ReportingManagers) > 0:
		approvers = []Approver{ReportingManager{}, FixedRole{Role: RoleHR}}
	case len(configured) > 0:
		for _, role := range configured {
			if role != "" {
				approvers = append(approvers, FixedRole{Role: role})
			}
		}
	}
	if len(approvers) == 0 {
		approvers = []Approver{FixedRole{Role: RoleHOD}, FixedRole{Role: RoleHR}}
	}
	steps := make([]Step, len(approvers))
	for i, a := range approvers {
		steps[i] = Step{Approver: a, Status: StepWaiting}
	}
	return steps
}

func (s *Service) chain(ctx context.Context, emp leave.Employee) ([]Step, error) {
	if len(emp.ReportingManagers) > 0 {
		return BuildChain(emp, nil), nil
	}
	ls, err := s.Settings.Leaves(ctx, emp.DepartmentID, emp.DivisionID)
	if err != nil {
		return nil, fmt.Errorf("resolve approval steps: %w", err)
	}
	return BuildChain(emp, ls.CCLApprovalSteps), nil
}

// =============================================================================
// APPROVAL
// =============================================================================

// Approve signs off the active step. The final step credits the ledger.
func (s *Service) Approve(ctx context.Context, id string, actor Actor, comment string) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, _, err := s.actionable(ctx, id, actor, "approve")
	if err != nil {
		return Grant{}, err
	}

	now := s.Now()
	step := &g.Steps[g.CurrentStep]
	step.Status = StepApproved
	step.ActedBy = actor.ID
	step.ActedAt = now
	step.Comment = comment

	final := g.CurrentStep == len(g.Steps)-1
	g.Status = approvedStatus(step.Approver, final)
	g.UpdatedAt = now
	if final {
		txID, err := s.credit(ctx, g, actor)
		if err != nil {
			return Grant{}, err
		}
		g.TransactionID = txID
	} else {
		g.CurrentStep++
	}

	if err := s.Grants.UpdateGrant(ctx, g); err != nil {
		return Grant{}, err
	}
	s.logger.Info("ccl approved",
		zap.String("grant_id", g.ID),
		zap.String("actor", actor.ID),
		zap.String("status", string(g.Status)),
		zap.Bool("final", final))
	return g, nil
}

// credit posts the grant's CREDIT. A retried approval finds the existing
// entry through its idempotency key and leaves the cache alone.
func (s *Service) credit(ctx context.Context, g Grant, actor Actor) (string, error) {
	tx := ledger.Transaction{
		EmployeeID:        g.EmployeeID,
		LeaveType:         ledger.CCL,
		Type:              ledger.Credit,
		Days:              g.Days(),
		StartDate:         g.WorkedDate,
		EndDate:           g.WorkedDate,
		Reason:            fmt.Sprintf("CCL for work on %s (%s)", g.WorkedDate, g.Portion),
		AutoGenerated:     true,
		AutoGeneratedType: ledger.AutoCCLGrant,
		ReferenceID:       g.ID,
		IdempotencyKey:    GrantKey(g.ID),
		CreatedBy:         actor.ID,
	}
	stored, err := s.Ledger.AddTransaction(ctx, tx)
	if errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
		s.logger.Warn("ccl credit already posted", zap.String("grant_id", g.ID))
		existing, qerr := s.Ledger.Transactions(ctx, ledger.Filter{
			EmployeeID:        g.EmployeeID,
			AutoGeneratedType: ledger.AutoCCLGrant,
			ReferenceID:       g.ID,
		})
		if qerr != nil || len(existing) == 0 {
			return GrantKey(g.ID), qerr
		}
		return existing[0].ID, nil
	}
	if err != nil {
		return "", fmt.Errorf("post ccl credit: %w", err)
	}
	if err := s.Directory.AdjustBalance(ctx, g.EmployeeID, ledger.CCL, stored.Signed()); err != nil {
		s.logger.Error("ccl cache update failed",
			zap.String("grant_id", g.ID), zap.String("transaction_id", stored.ID), zap.Error(err))
	}
	return stored.ID, nil
}

// Reject ends the chain at the active step.
func (s *Service) Reject(ctx context.Context, id string, actor Actor, reason string) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, _, err := s.actionable(ctx, id, actor, "reject")
	if err != nil {
		return Grant{}, err
	}
	now := s.Now()
	step := &g.Steps[g.CurrentStep]
	step.Status = StepRejected
	step.ActedBy = actor.ID
	step.ActedAt = now
	step.Comment = reason
	g.Status = StatusRejected
	g.UpdatedAt = now

	if err := s.Grants.UpdateGrant(ctx, g); err != nil {
		return Grant{}, err
	}
	s.logger.Info("ccl rejected", zap.String("grant_id", g.ID), zap.String("actor", actor.ID))
	return g, nil
}

func (s *Service) actionable(ctx context.Context, id string, actor Actor, action string) (Grant, leave.Employee, error) {
	g, err := s.Grants.GetGrant(ctx, id)
	if err != nil {
		return Grant{}, leave.Employee{}, err
	}
	step, ok := g.ActiveStep()
	if !ok {
		return Grant{}, leave.Employee{}, &TransitionError{From: g.Status, Action: action}
	}
	emp, err := s.Directory.Get(ctx, g.EmployeeID)
	if err != nil {
		return Grant{}, leave.Employee{}, err
	}
	if !CanAct(step.Approver, emp, actor) {
		return Grant{}, leave.Employee{}, ErrUnauthorized
	}
	return g, emp, nil
}

// Cancel withdraws a grant that has not reached a terminal status.
func (s *Service) Cancel(ctx context.Context, id string, actor Actor) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.Grants.GetGrant(ctx, id)
	if err != nil {
		return Grant{}, err
	}
	if g.Status.IsTerminal() {
		return Grant{}, &TransitionError{From: g.Status, Action: "cancel"}
	}
	emp, err := s.Directory.Get(ctx, g.EmployeeID)
	if err != nil {
		return Grant{}, err
	}
	if !mayFile(emp, actor) {
		return Grant{}, ErrUnauthorized
	}
	g.Status = StatusCancelled
	g.UpdatedAt = s.Now()
	if err := s.Grants.UpdateGrant(ctx, g); err != nil {
		return Grant{}, err
	}
	s.logger.Info("ccl cancelled", zap.String("grant_id", g.ID), zap.String("actor", actor.ID))
	return g, nil
}

// MarkUsed flags a credited grant as consumed so the expiry sweep skips it.
func (s *Service) MarkUsed(ctx context.Context, id string) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.Grants.GetGrant(ctx, id)
	if err != nil {
		return Grant{}, err
	}
	if !g.Credited() || g.IsExpired || g.IsUsed {
		return Grant{}, &TransitionError{From: g.Status, Action: "use"}
	}
	g.IsUsed = true
	g.UpdatedAt = s.Now()
	if err := s.Grants.UpdateGrant(ctx, g); err != nil {
		return Grant{}, err
	}
	return g, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *Service) Get(ctx context.Context, id string) (Grant, error) {
	return s.Grants.GetGrant(ctx, id)
}

// List returns an employee's grants, optionally narrowed to one status.
func (s *Service) List(ctx context.Context, employeeID string, status Status) ([]Grant, error) {
	all, err := s.Grants.ListGrants(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return all, nil
	}
	var out []Grant
	for _, g := range all {
		if g.Status == status {
			out = append(out, g)
		}
	}
	return out, nil
}

// PendingFor returns grants whose active step actor may act on.
func (s *Service) PendingFor(ctx context.Context, actor Actor) ([]Grant, error) {
	all, err := s.Grants.ListGrants(ctx, "")
	if err != nil {
		return nil, err
	}
	employees := map[string]leave.Employee{}
	var out []Grant
	for _, g := range all {
		step, ok := g.ActiveStep()
		if !ok {
			continue
		}
		emp, seen := employees[g.EmployeeID]
		if !seen {
			emp, err = s.Directory.Get(ctx, g.EmployeeID)
			if errors.Is(err, leave.ErrEmployeeNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			employees[g.EmployeeID] = emp
		}
		if CanAct(step.Approver, emp, actor) {
			out = append(out, g)
		}
	}
	return out, nil
}
