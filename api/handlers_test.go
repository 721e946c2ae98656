package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/ccl"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/settings"
	"github.com/warp/leave-ledger/store/sqlite"
)

// =============================================================================
// FIXTURE
// =============================================================================

var clock = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testServer struct {
	store  *sqlite.Store
	router *chi.Mux
	jobs   *Jobs
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := func() time.Time { return clock }
	logger := zap.NewNop()
	l := ledger.New(store, ledger.WithClock(now))
	resolver := calendar.NewResolver(calendar.CycleConfig{StartDay: 26, EndDay: 25}, calendar.FinancialYearConfig{})
	cascade := settings.NewCascade(store)

	engine := leave.NewEngine(l, store, cascade, resolver, logger)
	engine.Attendance = store
	engine.CompOffs = store
	engine.Runs = store
	engine.Now = now
	resets := leave.NewResetService(l, store, cascade, resolver, logger)
	resets.Runs = store
	resets.Now = now
	jobs := NewJobs(engine, resets)

	workflow := ccl.NewService(store, store, store, l, cascade, logger)
	balances := leave.NewBalanceService(l, store, resolver, logger)

	h := NewHandler(store, l, jobs, balances, workflow, cascade, resolver, time.UTC, logger)
	return &testServer{store: store, router: NewRouter(h, RouterOptions{}), jobs: jobs}
}

func (s *testServer) employee(t *testing.T, id string, managers ...string) {
	t.Helper()
	require.NoError(t, s.store.SaveEmployee(context.Background(), leave.Employee{
		ID:                id,
		Name:              id,
		DepartmentID:      "eng",
		JoiningDate:       calendar.MustParse("2025-01-01"),
		Active:            true,
		ReportingManagers: managers,
		WeeklyOffs:        []time.Weekday{time.Saturday, time.Sunday},
	}))
}

type call struct {
	method string
	path   string
	body   any
	actor  string
	roles  string
}

func (s *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		switch b := c.body.(type) {
		case string:
			body.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&body).Encode(b))
		}
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.actor != "" {
		req.Header.Set(HeaderActorID, c.actor)
	}
	if c.roles != "" {
		req.Header.Set(HeaderActorRoles, c.roles)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// BATCH JOBS
// =============================================================================

func TestRunAccruals_PostsOnceAndRecordsRun(t *testing.T) {
	// GIVEN: one active employee
	s := newTestServer(t)
	s.employee(t, "e1")

	// WHEN: the February batch runs twice
	first := s.do(t, call{method: http.MethodPost, path: "/api/accruals/run", body: RunAccrualRequest{Month: 2, Year: 2026}})
	second := s.do(t, call{method: http.MethodPost, path: "/api/accruals/run", body: RunAccrualRequest{Month: 2, Year: 2026}})

	// THEN: CL is credited once and both runs are recorded
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	r1 := decodeBody[leave.RunResult](t, first)
	assert.Equal(t, 1, r1.Processed)
	assert.Equal(t, 1, r1.CLCredits)
	assert.Equal(t, calendar.MustParse("2026-01-26"), r1.CycleStart)

	require.Equal(t, http.StatusOK, second.Code)
	r2 := decodeBody[leave.RunResult](t, second)
	assert.Zero(t, r2.CLCredits, "re-run must not double-post")

	ledgerRec := s.do(t, call{method: http.MethodGet, path: "/api/employees/e1/ledger?leave_type=CL&type=CREDIT"})
	require.Equal(t, http.StatusOK, ledgerRec.Code)
	txs := decodeBody[TransactionsResponse](t, ledgerRec)
	require.Len(t, txs.Transactions, 1)
	assert.True(t, txs.Transactions[0].AutoGenerated)

	runs := s.do(t, call{method: http.MethodGet, path: "/api/accruals/runs?kind=monthly_accrual"})
	require.Equal(t, http.StatusOK, runs.Code)
	assert.Len(t, decodeBody[[]leave.Run](t, runs), 2)
}

func TestRunAccruals_DefaultsToPreviousMonth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, call{method: http.MethodPost, path: "/api/accruals/run"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[leave.RunResult](t, rec)
	assert.Equal(t, time.February, result.Month)
	assert.Equal(t, 2026, result.Year)
}

func TestRunAccruals_RejectsBadMonth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, call{method: http.MethodPost, path: "/api/accruals/run", body: `{"month": 13, "year": 2026}`})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, CodeValidation, resp.Code)
}

func TestNextReset(t *testing.T) {
	s := newTestServer(t)
	s.employee(t, "e1")

	rec := s.do(t, call{method: http.MethodGet, path: "/api/annual-reset/next?employee_id=e1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[NextResetResponse](t, rec)
	assert.Equal(t, calendar.MustParse("2026-03-01"), resp.Today)
	assert.False(t, resp.NextReset.Before(resp.Today))

	missing := s.do(t, call{method: http.MethodGet, path: "/api/annual-reset/next?employee_id=ghost"})
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

// =============================================================================
// LEDGER & BALANCES
// =============================================================================

func TestAdjustment_MovesCacheAndStaysReconciled(t *testing.T) {
	// GIVEN: an employee with no history
	s := newTestServer(t)
	s.employee(t, "e1")

	// WHEN: HR adds two days of EL
	rec := s.do(t, call{method: http.MethodPost, path: "/api/employees/e1/adjustments",
		body: AdjustmentRequest{LeaveType: ledger.EL, Days: decimal.NewFromInt(2), Reason: "migration"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: balances, cache and reconcile agree
	bal := s.do(t, call{method: http.MethodGet, path: "/api/employees/e1/balances"})
	require.Equal(t, http.StatusOK, bal.Code)
	balances := decodeBody[leave.Balances](t, bal)
	assert.True(t, decimal.NewFromInt(2).Equal(balances.EL), "got %s", balances.EL)

	emp, err := s.store.Get(context.Background(), "e1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2).Equal(emp.EarnedLeaves))

	recon := s.do(t, call{method: http.MethodGet, path: "/api/employees/e1/reconcile"})
	require.Equal(t, http.StatusOK, recon.Code)
	assert.True(t, decodeBody[leave.Reconciliation](t, recon).InSync)
}

func TestPostTransaction_DuplicateKeyConflicts(t *testing.T) {
	s := newTestServer(t)
	s.employee(t, "e1")
	body := TransactionRequest{
		LeaveType: ledger.CL, Type: ledger.Debit, Days: decimal.NewFromInt(1),
		StartDate: calendar.MustParse("2026-02-02"), IdempotencyKey: "leave-req-42",
	}

	first := s.do(t, call{method: http.MethodPost, path: "/api/employees/e1/ledger", body: body})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := s.do(t, call{method: http.MethodPost, path: "/api/employees/e1/ledger", body: body})
	require.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, CodeDuplicate, decodeBody[ErrorResponse](t, second).Code)
}

func TestPostTransactions_BatchIsAllOrNothing(t *testing.T) {
	s := newTestServer(t)
	s.employee(t, "e1")
	credit := TransactionRequest{LeaveType: ledger.EL, Type: ledger.Credit, Days: decimal.NewFromInt(1),
		StartDate: calendar.MustParse("2025-12-25"), IdempotencyKey: "import-1"}

	rec := s.do(t, call{method: http.MethodPost, path: "/api/employees/e1/ledger/batch",
		body: BatchTransactionRequest{Transactions: []TransactionRequest{credit, credit}}})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	list := s.do(t, call{method: http.MethodGet, path: "/api/employees/e1/ledger"})
	assert.Empty(t, decodeBody[TransactionsResponse](t, list).Transactions)
}

func TestGetLedger_RejectsBadFilters(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{
		"/api/employees/e1/ledger?leave_type=PL",
		"/api/employees/e1/ledger?type=REFUND",
		"/api/employees/e1/ledger?from=03-01-2026",
	} {
		rec := s.do(t, call{method: http.MethodGet, path: path})
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

// =============================================================================
// SETTINGS & CALENDAR
// =============================================================================

func TestEmployeeSettings_ResolvesDepartmentOverride(t *testing.T) {
	s := newTestServer(t)
	s.employee(t, "e1")
	ctx := context.Background()
	require.NoError(t, s.store.SetOverride(ctx, &settings.Layer{
		DepartmentID: "eng",
		Leaves:       &settings.LeaveOverride{CasualLeavePerYear: settings.Ptr(decimal.NewFromInt(18))},
	}))

	rec := s.do(t, call{method: http.MethodGet, path: "/api/employees/e1/settings"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[EmployeeSettingsResponse](t, rec)
	assert.True(t, decimal.NewFromInt(18).Equal(resp.Settings.Leaves.CasualLeavePerYear))
}

func TestGetCycle(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		date, start, end string
	}{
		{"2026-02-10", "2026-01-26", "2026-02-25"},
		{"2026-02-26", "2026-02-26", "2026-03-25"},
	}
	for _, tt := range tests {
		rec := s.do(t, call{method: http.MethodGet, path: "/api/cycles?date=" + tt.date})
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeBody[CycleResponse](t, rec)
		assert.Equal(t, calendar.MustParse(tt.start), resp.PayrollCycle.Start, tt.date)
		assert.Equal(t, calendar.MustParse(tt.end), resp.PayrollCycle.End, tt.date)
	}
}

// =============================================================================
// CCL
// =============================================================================

func TestCCL_FileApproveCredit(t *testing.T) {
	// GIVEN: e1 reports to m1 and worked on a Sunday
	s := newTestServer(t)
	s.employee(t, "e1", "m1")
	punch := s.do(t, call{method: http.MethodPost, path: "/api/employees/e1/punches",
		body: PunchRequest{At: time.Date(2026, 2, 22, 9, 30, 0, 0, time.UTC)}})
	require.Equal(t, http.StatusNoContent, punch.Code, punch.Body.String())

	// WHEN: e1 files and the chain approves
	filed := s.do(t, call{method: http.MethodPost, path: "/api/ccl", actor: "e1",
		body: ccl.FileRequest{EmployeeID: "e1", WorkedDate: calendar.MustParse("2026-02-22"), Portion: ccl.FullDay, Reason: "release"}})
	require.Equal(t, http.StatusCreated, filed.Code, filed.Body.String())
	g := decodeBody[ccl.Grant](t, filed)
	assert.Equal(t, ccl.StatusPending, g.Status)

	pending := s.do(t, call{method: http.MethodGet, path: "/api/ccl/pending", actor: "m1"})
	require.Equal(t, http.StatusOK, pending.Code)
	assert.Len(t, decodeBody[[]ccl.Grant](t, pending), 1)

	selfApprove := s.do(t, call{method: http.MethodPost, path: "/api/ccl/" + g.ID + "/approve", actor: "e1", roles: "hr"})
	assert.Equal(t, http.StatusForbidden, selfApprove.Code)

	step1 := s.do(t, call{method: http.MethodPost, path: "/api/ccl/" + g.ID + "/approve", actor: "m1"})
	require.Equal(t, http.StatusOK, step1.Code, step1.Body.String())
	assert.Equal(t, ccl.StatusReportingManagerApproved, decodeBody[ccl.Grant](t, step1).Status)

	step2 := s.do(t, call{method: http.MethodPost, path: "/api/ccl/" + g.ID + "/approve", actor: "hr1", roles: "HR",
		body: ApproveRequest{Comment: "ok"}})
	require.Equal(t, http.StatusOK, step2.Code, step2.Body.String())
	final := decodeBody[ccl.Grant](t, step2)

	// THEN: the grant is HR-approved and one CCL day is credited
	assert.Equal(t, ccl.StatusHRApproved, final.Status)
	assert.NotEmpty(t, final.TransactionID)

	bal := s.do(t, call{method: http.MethodGet, path: "/api/employees/e1/balances"})
	assert.True(t, decimal.NewFromInt(1).Equal(decodeBody[leave.Balances](t, bal).CCL))

	list := s.do(t, call{method: http.MethodGet, path: "/api/employees/e1/ccl?status=hr_approved"})
	assert.Len(t, decodeBody[[]ccl.Grant](t, list), 1)

	again := s.do(t, call{method: http.MethodPost, path: "/api/ccl", actor: "e1",
		body: ccl.FileRequest{EmployeeID: "e1", WorkedDate: calendar.MustParse("2026-02-22"), Portion: ccl.FirstHalf}})
	require.Equal(t, http.StatusConflict, again.Code)
	assert.Equal(t, CodeConflict, decodeBody[ErrorResponse](t, again).Code)

	approveAgain := s.do(t, call{method: http.MethodPost, path: "/api/ccl/" + g.ID + "/approve", actor: "hr1", roles: "hr"})
	assert.Equal(t, http.StatusConflict, approveAgain.Code)
	assert.Equal(t, CodeTransition, decodeBody[ErrorResponse](t, approveAgain).Code)
}

func TestCCL_RequestErrors(t *testing.T) {
	s := newTestServer(t)
	s.employee(t, "e1", "m1")

	tests := []struct {
		name   string
		call   call
		status int
		code   string
	}{
		{"missing actor", call{method: http.MethodPost, path: "/api/ccl",
			body: ccl.FileRequest{EmployeeID: "e1", WorkedDate: calendar.MustParse("2026-02-22"), Portion: ccl.FullDay}},
			http.StatusForbidden, CodeUnauthorized},
		{"unknown field", call{method: http.MethodPost, path: "/api/ccl", actor: "e1",
			body: `{"employee_id":"e1","worked_date":"2026-02-22","portion":"full","days":3}`},
			http.StatusBadRequest, CodeValidation},
		{"bad portion", call{method: http.MethodPost, path: "/api/ccl", actor: "e1",
			body: `{"employee_id":"e1","worked_date":"2026-02-22","portion":"evening"}`},
			http.StatusBadRequest, CodeValidation},
		{"workday", call{method: http.MethodPost, path: "/api/ccl", actor: "e1",
			body: ccl.FileRequest{EmployeeID: "e1", WorkedDate: calendar.MustParse("2026-02-18"), Portion: ccl.FullDay}},
			http.StatusBadRequest, CodeNotEligible},
		{"unknown grant", call{method: http.MethodGet, path: "/api/ccl/nope"},
			http.StatusNotFound, CodeNotFound},
		{"reject without reason", call{method: http.MethodPost, path: "/api/ccl/nope/reject", actor: "m1", body: `{}`},
			http.StatusBadRequest, CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.call)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rec).Code)
		})
	}
}

func TestCCL_DraftSubmitCancel(t *testing.T) {
	s := newTestServer(t)
	s.employee(t, "e1", "m1")
	require.NoError(t, s.store.SaveHoliday(context.Background(),
		sqlite.Holiday{Date: calendar.MustParse("2026-01-26"), Name: "Republic Day"}))
	require.NoError(t, s.store.SaveOnDuty(context.Background(), "e1", calendar.MustParse("2026-01-26"), sqlite.OnDutyApproved))

	draft := s.do(t, call{method: http.MethodPost, path: "/api/ccl/drafts", actor: "e1",
		body: ccl.FileRequest{EmployeeID: "e1", WorkedDate: calendar.MustParse("2026-01-26"), Portion: ccl.SecondHalf}})
	require.Equal(t, http.StatusCreated, draft.Code, draft.Body.String())
	g := decodeBody[ccl.Grant](t, draft)
	assert.Equal(t, ccl.StatusDraft, g.Status)

	submitted := s.do(t, call{method: http.MethodPost, path: "/api/ccl/" + g.ID + "/submit", actor: "e1"})
	require.Equal(t, http.StatusOK, submitted.Code, submitted.Body.String())
	assert.Equal(t, ccl.StatusPending, decodeBody[ccl.Grant](t, submitted).Status)

	cancelled := s.do(t, call{method: http.MethodPost, path: "/api/ccl/" + g.ID + "/cancel", actor: "e1"})
	require.Equal(t, http.StatusOK, cancelled.Code, cancelled.Body.String())
	assert.Equal(t, ccl.StatusCancelled, decodeBody[ccl.Grant](t, cancelled).Status)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&ledger.ValidationError{Field: "days", Message: "negative"}, http.StatusBadRequest, CodeValidation},
		{fmt.Errorf("wrapped: %w", ledger.ErrDuplicateIdempotencyKey), http.StatusConflict, CodeDuplicate},
		{&ccl.TransitionError{From: ccl.StatusRejected, Action: "approve"}, http.StatusConflict, CodeTransition},
		{&ccl.ConflictError{Existing: "g1"}, http.StatusConflict, CodeConflict},
		{ccl.ErrUnauthorized, http.StatusForbidden, CodeUnauthorized},
		{leave.ErrEmployeeNotFound, http.StatusNotFound, CodeNotFound},
		{errors.New("disk full"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		status, resp := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, resp.Code, tt.err.Error())
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}
