package ccl_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/ccl"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/ledger/store"
	"github.com/warp/leave-ledger/settings"
)

// =============================================================================
// FIXTURE
// =============================================================================

var (
	sunday   = calendar.MustParse("2026-02-22")
	saturday = calendar.MustParse("2026-02-14")
	workday  = calendar.MustParse("2026-02-18")
	holiday  = calendar.MustParse("2026-01-26")

	hr      = ccl.Actor{ID: "hr1", Roles: []string{ccl.RoleHR}}
	hod     = ccl.Actor{ID: "hod1", Roles: []string{ccl.RoleHOD}}
	manager = ccl.Actor{ID: "m1"}
)

type fixture struct {
	ledger *ledger.Ledger
	dir    *leave.MemoryDirectory
	repo   *settings.MemoryRepository
	grants *ccl.MemoryStore
	cal    *ccl.MemoryCalendar
	svc    *ccl.Service
}

func newFixture(t *testing.T, employees ...leave.Employee) *fixture {
	t.Helper()
	f := &fixture{
		dir:    leave.NewMemoryDirectory(employees...),
		repo:   settings.NewMemoryRepository(),
		grants: ccl.NewMemoryStore(),
		cal:    ccl.NewMemoryCalendar(),
	}
	f.ledger = ledger.New(store.NewMemory(), ledger.WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	}))
	f.svc = ccl.NewService(f.grants, f.cal, f.dir, f.ledger, settings.NewCascade(f.repo), zap.NewNop())
	f.cal.AddHoliday("", holiday)
	return f
}

func worker(id string, managers ...string) leave.Employee {
	return leave.Employee{
		ID:                id,
		DepartmentID:      "eng",
		JoiningDate:       calendar.MustParse("2024-01-01"),
		Active:            true,
		ReportingManagers: managers,
		WeeklyOffs:        []time.Weekday{time.Saturday, time.Sunday},
	}
}

func self(id string) ccl.Actor { return ccl.Actor{ID: id} }

func (f *fixture) file(t *testing.T, emp string, on calendar.Date, portion ccl.Portion) ccl.Grant {
	t.Helper()
	g, err := f.svc.File(context.Background(), ccl.FileRequest{EmployeeID: emp, WorkedDate: on, Portion: portion}, self(emp))
	require.NoError(t, err)
	return g
}

func (f *fixture) credits(t *testing.T, emp string) []ledger.Transaction {
	t.Helper()
	txs, err := f.ledger.Transactions(context.Background(), ledger.Filter{EmployeeID: emp, LeaveType: ledger.CCL})
	require.NoError(t, err)
	return txs
}

func (f *fixture) cached(t *testing.T, emp string) decimal.Decimal {
	t.Helper()
	e, err := f.dir.Get(context.Background(), emp)
	require.NoError(t, err)
	return e.CompensatoryOffs
}

// =============================================================================
// APPROVERS AND CHAIN
// =============================================================================

func TestBuildChain(t *testing.T) {
	withManager := ccl.BuildChain(worker("e1", "m1"), []string{"manager"})
	require.Len(t, withManager, 2)
	assert.Equal(t, ccl.ReportingManager{}, withManager[0].Approver)
	assert.Equal(t, ccl.FixedRole{Role: ccl.RoleHR}, withManager[1].Approver)

	configured := ccl.BuildChain(worker("e1"), []string{"manager", "", "hr"})
	require.Len(t, configured, 2)
	assert.Equal(t, ccl.FixedRole{Role: "manager"}, configured[0].Approver)
	assert.Equal(t, ccl.FixedRole{Role: "hr"}, configured[1].Approver)

	fallback := ccl.BuildChain(worker("e1"), nil)
	require.Len(t, fallback, 2)
	assert.Equal(t, ccl.FixedRole{Role: ccl.RoleHOD}, fallback[0].Approver)
	assert.Equal(t, ccl.StepWaiting, fallback[0].Status)
}

func TestCanAct(t *testing.T) {
	e := worker("e1", "m1")

	assert.True(t, ccl.CanAct(ccl.ReportingManager{}, e, manager))
	assert.False(t, ccl.CanAct(ccl.ReportingManager{}, e, hr))
	assert.True(t, ccl.CanAct(ccl.FixedRole{Role: ccl.RoleHR}, e, hr))
	assert.False(t, ccl.CanAct(ccl.FixedRole{Role: ccl.RoleHR}, e, hod))

	// Holding the role does not allow approving your own grant.
	hrEmployee := worker("hr1")
	assert.False(t, ccl.CanAct(ccl.FixedRole{Role: ccl.RoleHR}, hrEmployee, hr))
}

func TestStep_JSONKeepsApproverKind(t *testing.T) {
	in := []ccl.Step{
		{Approver: ccl.ReportingManager{}, Status: ccl.StepApproved, ActedBy: "m1"},
		{Approver: ccl.FixedRole{Role: "hr"}, Status: ccl.StepWaiting},
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out []ccl.Step
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

// =============================================================================
// APPROVAL FLOW
// =============================================================================

func TestApprove_CreditsOnlyOnFinalStep(t *testing.T) {
	// GIVEN: e1 reports to m1 and worked a Sunday
	f := newFixture(t, worker("e1", "m1"))
	f.cal.AddPunch("e1", sunday)
	ctx := context.Background()

	g := f.file(t, "e1", sunday, ccl.FullDay)
	assert.Equal(t, ccl.StatusPending, g.Status)

	// WHEN: the reporting manager approves
	g, err := f.svc.Approve(ctx, g.ID, manager, "thanks")
	require.NoError(t, err)

	// THEN: the chain moves on and nothing is credited yet
	assert.Equal(t, ccl.StatusReportingManagerApproved, g.Status)
	assert.Equal(t, 1, g.CurrentStep)
	assert.Empty(t, f.credits(t, "e1"))

	// WHEN: HR approves
	g, err = f.svc.Approve(ctx, g.ID, hr, "")
	require.NoError(t, err)

	// THEN: exactly one CREDIT is posted and cached
	assert.Equal(t, ccl.StatusHRApproved, g.Status)
	credits := f.credits(t, "e1")
	require.Len(t, credits, 1)
	assert.Equal(t, ledger.Credit, credits[0].Type)
	assert.Equal(t, ccl.GrantKey(g.ID), credits[0].IdempotencyKey)
	assert.Equal(t, g.ID, credits[0].ReferenceID)
	assert.Equal(t, credits[0].ID, g.TransactionID)
	assert.True(t, decimal.NewFromInt(1).Equal(f.cached(t, "e1")))

	// WHEN: approving a final grant again
	_, err = f.svc.Approve(ctx, g.ID, hr, "")

	// THEN: it is rejected and the ledger is unchanged
	assert.ErrorIs(t, err, ccl.ErrInvalidTransition)
	assert.Len(t, f.credits(t, "e1"), 1)
}

func TestApprove_ConfiguredSteps(t *testing.T) {
	f := newFixture(t, worker("e1"))
	f.cal.AddPunch("e1", saturday)
	ctx := context.Background()
	require.NoError(t, f.repo.SetOverride(ctx, &settings.Layer{
		DepartmentID: "eng",
		Leaves:       &settings.LeaveOverride{CCLApprovalSteps: &[]string{ccl.RoleManager, "director"}},
	}))
	director := ccl.Actor{ID: "d1", Roles: []string{"director"}}
	mgr := ccl.Actor{ID: "m9", Roles: []string{ccl.RoleManager}}

	g := f.file(t, "e1", saturday, ccl.FirstHalf)

	g, err := f.svc.Approve(ctx, g.ID, mgr, "")
	require.NoError(t, err)
	assert.Equal(t, ccl.StatusManagerApproved, g.Status)

	g, err = f.svc.Approve(ctx, g.ID, director, "")
	require.NoError(t, err)
	assert.Equal(t, ccl.StatusApproved, g.Status, "chain not closed by HR ends in approved")

	credits := f.credits(t, "e1")
	require.Len(t, credits, 1)
	assert.True(t, decimal.NewFromFloat(0.5).Equal(credits[0].Days))
}

func TestApprove_ConfiguredChainsCreditOnceAtLastStep(t *testing.T) {
	mgr := ccl.Actor{ID: "m9", Roles: []string{ccl.RoleManager}}
	tests := []struct {
		name    string
		steps   []string
		actors  []ccl.Actor
		between []ccl.Status
		final   ccl.Status
	}{
		{
			name:    "hr first",
			steps:   []string{ccl.RoleHR, ccl.RoleHOD},
			actors:  []ccl.Actor{hr, hod},
			between: []ccl.Status{ccl.StatusManagerApproved},
			final:   ccl.StatusApproved,
		},
		{
			name:   "single hod step",
			steps:  []string{ccl.RoleHOD},
			actors: []ccl.Actor{hod},
			final:  ccl.StatusApproved,
		},
		{
			name:    "manager then hr",
			steps:   []string{ccl.RoleManager, ccl.RoleHR},
			actors:  []ccl.Actor{mgr, hr},
			between: []ccl.Status{ccl.StatusManagerApproved},
			final:   ccl.StatusHRApproved,
		},
		{
			name:    "hod then director",
			steps:   []string{ccl.RoleHOD, "director"},
			actors:  []ccl.Actor{hod, {ID: "d1", Roles: []string{"director"}}},
			between: []ccl.Status{ccl.StatusHODApproved},
			final:   ccl.StatusApproved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: a department-configured chain and a filed Sunday grant
			f := newFixture(t, worker("e1"))
			f.cal.AddPunch("e1", sunday)
			ctx := context.Background()
			steps := tt.steps
			require.NoError(t, f.repo.SetOverride(ctx, &settings.Layer{
				DepartmentID: "eng",
				Leaves:       &settings.LeaveOverride{CCLApprovalSteps: &steps},
			}))
			g := f.file(t, "e1", sunday, ccl.FullDay)
			require.Len(t, g.Steps, len(tt.steps))

			// WHEN: every step approves in order
			for i, actor := range tt.actors {
				var err error
				g, err = f.svc.Approve(ctx, g.ID, actor, "")
				require.NoError(t, err, "step %d", i)
				if i < len(tt.actors)-1 {
					// THEN: intermediate steps stay open and post nothing
					assert.Equal(t, tt.between[i], g.Status)
					assert.False(t, g.Status.IsFinalApproval())
					assert.Empty(t, f.credits(t, "e1"))
				}
			}

			// THEN: the last step closes the chain with exactly one CREDIT
			assert.Equal(t, tt.final, g.Status)
			assert.True(t, g.Credited())
			credits := f.credits(t, "e1")
			require.Len(t, credits, 1)
			assert.Equal(t, ledger.Credit, credits[0].Type)
			assert.True(t, decimal.NewFromInt(1).Equal(f.cached(t, "e1")))

			_, err := f.svc.Approve(ctx, g.ID, tt.actors[len(tt.actors)-1], "")
			assert.ErrorIs(t, err, ccl.ErrInvalidTransition)
		})
	}
}

func TestApprove_HRFirstGrantExpiresOnlyAfterCredit(t *testing.T) {
	// GIVEN: an hr-first chain signed off by HR only
	f := newFixture(t, worker("e1"))
	oct19 := calendar.MustParse("2025-10-19")
	f.cal.AddPunch("e1", oct19)
	ctx := context.Background()
	steps := []string{ccl.RoleHR, ccl.RoleHOD}
	require.NoError(t, f.repo.SetOverride(ctx, &settings.Layer{
		DepartmentID: "eng",
		Leaves:       &settings.LeaveOverride{CCLApprovalSteps: &steps},
	}))
	g := f.file(t, "e1", oct19, ccl.FullDay)
	g, err := f.svc.Approve(ctx, g.ID, hr, "")
	require.NoError(t, err)

	// WHEN: the expiry sweep looks for old grants
	due, err := f.grants.ExpirableCompOffs(ctx, "e1", calendar.MustParse("2025-10-26"))
	require.NoError(t, err)

	// THEN: the uncredited grant is neither expirable nor usable
	assert.Empty(t, due)
	_, err = f.svc.MarkUsed(ctx, g.ID)
	assert.ErrorIs(t, err, ccl.ErrInvalidTransition)

	// WHEN: HOD closes the chain
	_, err = f.svc.Approve(ctx, g.ID, hod, "")
	require.NoError(t, err)

	// THEN: the credited grant becomes expirable
	due, err = f.grants.ExpirableCompOffs(ctx, "e1", calendar.MustParse("2025-10-26"))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, g.ID, due[0].ID)
}

func TestApprove_Unauthorized(t *testing.T) {
	f := newFixture(t, worker("e1", "m1"))
	f.cal.AddPunch("e1", sunday)
	ctx := context.Background()
	g := f.file(t, "e1", sunday, ccl.FullDay)

	_, err := f.svc.Approve(ctx, g.ID, self("e1"), "")
	assert.ErrorIs(t, err, ccl.ErrUnauthorized, "self approval")

	_, err = f.svc.Approve(ctx, g.ID, hr, "")
	assert.ErrorIs(t, err, ccl.ErrUnauthorized, "HR cannot skip the reporting manager step")

	_, err = f.svc.Approve(ctx, g.ID, ccl.Actor{ID: "stranger"}, "")
	assert.ErrorIs(t, err, ccl.ErrUnauthorized)

	got, err := f.svc.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, ccl.StatusPending, got.Status)
}

func TestReject_EndsChainWithoutCredit(t *testing.T) {
	f := newFixture(t, worker("e1"))
	f.cal.AddPunch("e1", sunday)
	ctx := context.Background()
	g := f.file(t, "e1", sunday, ccl.FullDay)

	g, err := f.svc.Reject(ctx, g.ID, hod, "not approved overtime")
	require.NoError(t, err)
	assert.Equal(t, ccl.StatusRejected, g.Status)
	assert.Equal(t, ccl.StepRejected, g.Steps[0].Status)

	_, err = f.svc.Approve(ctx, g.ID, hod, "")
	assert.ErrorIs(t, err, ccl.ErrInvalidTransition)
	_, err = f.svc.Cancel(ctx, g.ID, self("e1"))
	assert.ErrorIs(t, err, ccl.ErrInvalidTransition)
	assert.Empty(t, f.credits(t, "e1"))
}

// =============================================================================
// ELIGIBILITY AND CONFLICTS
// =============================================================================

func TestFile_Eligibility(t *testing.T) {
	f := newFixture(t, worker("e1"))
	f.cal.AddPunch("e1", workday, holiday)
	f.cal.AddOnDuty("e1", saturday)
	ctx := context.Background()

	cases := []struct {
		name string
		on   calendar.Date
		ok   bool
	}{
		{"working day", workday, false},
		{"weekly off without attendance", sunday, false},
		{"weekly off with on-duty", saturday, true},
		{"holiday with punches", holiday, true},
		{"future weekly off", calendar.MustParse("2026-03-07"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := f.svc.File(ctx, ccl.FileRequest{EmployeeID: "e1", WorkedDate: c.on, Portion: ccl.FullDay}, self("e1"))
			if c.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ccl.ErrNotEligible)
			var ee *ccl.EligibilityError
			assert.ErrorAs(t, err, &ee)
		})
	}
}

func TestFile_Conflicts(t *testing.T) {
	f := newFixture(t, worker("e1"))
	f.cal.AddPunch("e1", sunday)
	ctx := context.Background()
	req := func(p ccl.Portion) ccl.FileRequest {
		return ccl.FileRequest{EmployeeID: "e1", WorkedDate: sunday, Portion: p}
	}

	// Two complementary halves fit on one date
	first := f.file(t, "e1", sunday, ccl.FirstHalf)
	f.file(t, "e1", sunday, ccl.SecondHalf)

	_, err := f.svc.File(ctx, req(ccl.FirstHalf), self("e1"))
	assert.ErrorIs(t, err, ccl.ErrConflict)
	_, err = f.svc.File(ctx, req(ccl.FullDay), self("e1"))
	var ce *ccl.ConflictError
	require.ErrorAs(t, err, &ce)

	// A cancelled grant frees its half
	_, err = f.svc.Cancel(ctx, first.ID, self("e1"))
	require.NoError(t, err)
	_, err = f.svc.File(ctx, req(ccl.FirstHalf), self("e1"))
	assert.NoError(t, err)
}

func TestFile_InvalidAndUnauthorized(t *testing.T) {
	f := newFixture(t, worker("e1"))
	ctx := context.Background()

	_, err := f.svc.File(ctx, ccl.FileRequest{EmployeeID: "e1", WorkedDate: sunday, Portion: "morning"}, self("e1"))
	assert.ErrorIs(t, err, ccl.ErrInvalidRequest)

	_, err = f.svc.File(ctx, ccl.FileRequest{EmployeeID: "e1", WorkedDate: sunday, Portion: ccl.FullDay}, self("e2"))
	assert.ErrorIs(t, err, ccl.ErrUnauthorized)

	_, err = f.svc.File(ctx, ccl.FileRequest{EmployeeID: "ghost", WorkedDate: sunday, Portion: ccl.FullDay}, hr)
	assert.ErrorIs(t, err, leave.ErrEmployeeNotFound)
}

func TestDraft_SubmitRunsChecks(t *testing.T) {
	f := newFixture(t, worker("e1"))
	ctx := context.Background()

	// GIVEN: a draft for a working day is stored without checks
	draft, err := f.svc.SaveDraft(ctx, ccl.FileRequest{EmployeeID: "e1", WorkedDate: workday, Portion: ccl.FullDay}, self("e1"))
	require.NoError(t, err)
	assert.Equal(t, ccl.StatusDraft, draft.Status)
	assert.Empty(t, draft.Steps)

	// WHEN/THEN: submitting it fails eligibility
	_, err = f.svc.Submit(ctx, draft.ID, self("e1"))
	assert.ErrorIs(t, err, ccl.ErrNotEligible)

	// GIVEN: a draft for a worked Sunday
	f.cal.AddPunch("e1", sunday)
	draft, err = f.svc.SaveDraft(ctx, ccl.FileRequest{EmployeeID: "e1", WorkedDate: sunday, Portion: ccl.FullDay}, hr)
	require.NoError(t, err)

	submitted, err := f.svc.Submit(ctx, draft.ID, self("e1"))
	require.NoError(t, err)
	assert.Equal(t, ccl.StatusPending, submitted.Status)
	assert.Len(t, submitted.Steps, 2)

	_, err = f.svc.Submit(ctx, draft.ID, self("e1"))
	assert.ErrorIs(t, err, ccl.ErrInvalidTransition)
}

func TestPendingFor(t *testing.T) {
	f := newFixture(t, worker("e1", "m1"), worker("e2"))
	f.cal.AddPunch("e1", sunday)
	f.cal.AddPunch("e2", sunday)
	ctx := context.Background()
	mine := f.file(t, "e1", sunday, ccl.FullDay)
	f.file(t, "e2", sunday, ccl.FullDay)

	pending, err := f.svc.PendingFor(ctx, manager)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, mine.ID, pending[0].ID)

	pending, err = f.svc.PendingFor(ctx, hod)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "e2", pending[0].EmployeeID)
}

// =============================================================================
// EXPIRY INTEGRATION
// =============================================================================

func TestMemoryStore_ServesExpirySweep(t *testing.T) {
	// GIVEN: two approved grants from October 2025, one already used
	f := newFixture(t, worker("e1"))
	oct19 := calendar.MustParse("2025-10-19")
	oct18 := calendar.MustParse("2025-10-18")
	f.cal.AddPunch("e1", oct18, oct19)
	ctx := context.Background()

	approve := func(on calendar.Date) ccl.Grant {
		g := f.file(t, "e1", on, ccl.FullDay)
		g, err := f.svc.Approve(ctx, g.ID, hod, "")
		require.NoError(t, err)
		g, err = f.svc.Approve(ctx, g.ID, hr, "")
		require.NoError(t, err)
		return g
	}
	expiring := approve(oct19)
	used := approve(oct18)
	_, err := f.svc.MarkUsed(ctx, used.ID)
	require.NoError(t, err)
	_, err = f.svc.MarkUsed(ctx, used.ID)
	assert.ErrorIs(t, err, ccl.ErrInvalidTransition)

	resolver := calendar.NewResolver(calendar.CycleConfig{StartDay: 26, EndDay: 25}, calendar.FinancialYearConfig{})
	engine := leave.NewEngine(f.ledger, f.dir, settings.NewCascade(f.repo), resolver, zap.NewNop())
	engine.CompOffs = f.grants

	// WHEN: the February 2026 sweep runs (cutoff Oct 26 2025)
	result, err := engine.ExpireCompOffs(ctx, resolver.CycleForMonth(2026, time.February))
	require.NoError(t, err)

	// THEN: only the unused grant expires
	assert.Equal(t, 1, result.ExpiredCCLs)
	got, err := f.svc.Get(ctx, expiring.ID)
	require.NoError(t, err)
	assert.True(t, got.IsExpired)
	assert.NotEmpty(t, got.ExpiryTransactionID)

	bal, err := f.ledger.BalanceAsOf(ctx, "e1", ledger.CCL, calendar.MustParse("2026-02-25"))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1).Equal(bal), "the used grant's credit remains")

	_, err = f.svc.MarkUsed(ctx, expiring.ID)
	assert.ErrorIs(t, err, ccl.ErrInvalidTransition, "expired grants cannot be used")
}
