/*
handlers.go - HTTP handlers for the leave ledger engine

PURPOSE:
  Exposes the accrual batch, the ledger, balances, the settings cascade and
  the CCL workflow over REST. Handlers parse and validate input, delegate
  to the domain services and serialize the result.

ENDPOINTS:
  Batch jobs:
    POST   /api/accruals/run                Monthly accrual {month, year}
    POST   /api/accruals/expire-ccl         CCL expiry sweep {month, year}
    GET    /api/accruals/runs               Recorded batch runs
    POST   /api/annual-reset/run            Annual reset {date}
    GET    /api/annual-reset/next           Next reset date ?employee_id=

  Employees:
    GET    /api/employees                   List employees
    POST   /api/employees                   Create or replace an employee
    GET    /api/employees/{id}              Employee with cached balances
    GET    /api/employees/{id}/ledger       Transactions (leave_type, type, from, to)
    POST   /api/employees/{id}/ledger       Post one transaction
    POST   /api/employees/{id}/ledger/batch Post transactions atomically
    POST   /api/employees/{id}/adjustments  Signed adjustment
    GET    /api/employees/{id}/balances     Scoped balances ?as_of=
    GET    /api/employees/{id}/reconcile    Ledger vs cache drift ?as_of=
    POST   /api/employees/{id}/reconcile    Rewrite drifted caches
    GET    /api/employees/{id}/settings     Resolved settings cascade
    GET    /api/employees/{id}/ccl          CCL grants ?status=
    POST   /api/employees/{id}/punches      Record an attendance punch
    POST   /api/employees/{id}/on-duty      Record an on-duty decision

  Calendar:
    GET    /api/cycles                      Payroll cycle and FY ?date=
    GET    /api/holidays                    Holidays ?department_id=&from=&to=
    POST   /api/holidays                    Add a holiday

  CCL:
    POST   /api/ccl                         File and submit
    POST   /api/ccl/drafts                  Save a draft
    GET    /api/ccl/pending                 Grants the actor may act on
    GET    /api/ccl/{id}                    One grant
    POST   /api/ccl/{id}/submit|approve|reject|cancel|use

ACTOR:
  CCL endpoints read the acting user from X-Actor-ID and a comma-separated
  X-Actor-Roles header. Authentication sits in front of this service.

SEE ALSO:
  - dto.go:    request/response bodies
  - errors.go: error to status mapping
  - server.go: router and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/ccl"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/settings"
	"github.com/warp/leave-ledger/store/sqlite"
)

const (
	HeaderActorID    = "X-Actor-ID"
	HeaderActorRoles = "X-Actor-Roles"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds every dependency the HTTP handlers need.
type Handler struct {
	Store    *sqlite.Store
	Ledger   *ledger.Ledger
	Jobs     *Jobs
	Resets   *leave.ResetService
	Balances *leave.BalanceService
	CCL      *ccl.Service
	Settings *settings.Cascade
	Calendar *calendar.Resolver
	Location *time.Location

	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler wires the domain services over a SQLite store.
func NewHandler(store *sqlite.Store, l *ledger.Ledger, jobs *Jobs, balances *leave.BalanceService,
	workflow *ccl.Service, cascade *settings.Cascade, resolver *calendar.Resolver, loc *time.Location, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.L()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		Store:    store,
		Ledger:   l,
		Jobs:     jobs,
		Resets:   jobs.Resets,
		Balances: balances,
		CCL:      workflow,
		Settings: cascade,
		Calendar: resolver,
		Location: loc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.Named("api.http"),
	}
}

// decode reads a JSON body into v and validates its tags. Unknown fields
// are rejected.
func (h *Handler) decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return badRequest{msg: "request body required"}
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest{msg: "invalid JSON: " + err.Error()}
	}
	return h.validate.Struct(v)
}

// decodeOptional is decode for endpoints whose body may be empty.
func (h *Handler) decodeOptional(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return h.validate.Struct(v)
	}
	return h.decode(r, v)
}

func (h *Handler) today() calendar.Date {
	return h.Ledger.Today()
}

// =============================================================================
// BATCH JOBS
// =============================================================================

// RunAccruals runs the monthly batch.
// POST /api/accruals/run
func (h *Handler) RunAccruals(w http.ResponseWriter, r *http.Request) {
	month, year, err := h.jobMonth(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	result, err := h.Jobs.Accrue(r.Context(), month, year)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ExpireCCL runs the CCL expiry sweep alone.
// POST /api/accruals/expire-ccl
func (h *Handler) ExpireCCL(w http.ResponseWriter, r *http.Request) {
	month, year, err := h.jobMonth(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	result, err := h.Jobs.ExpireCCL(r.Context(), month, year)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// jobMonth resolves the request month, defaulting to the previous calendar
// month in the configured timezone.
func (h *Handler) jobMonth(r *http.Request) (time.Month, int, error) {
	var req RunAccrualRequest
	if err := h.decodeOptional(r, &req); err != nil {
		return 0, 0, err
	}
	today := h.today()
	if req.Month == 0 {
		prev := calendar.StartOfMonth(today.Year(), today.Month()).AddMonths(-1)
		return prev.Month(), prev.Year(), nil
	}
	year := req.Year
	if year == 0 {
		year = today.Year()
	}
	return time.Month(req.Month), year, nil
}

// ListRuns returns recorded batch runs.
// GET /api/accruals/runs?kind=&limit=
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeServiceError(w, r, badRequest{msg: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	runs, err := h.Store.ListRuns(r.Context(), leave.RunKind(r.URL.Query().Get("kind")), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if runs == nil {
		runs = []leave.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// RunAnnualReset forces a reset on the given date, or resets the employees
// due today when no date is sent.
// POST /api/annual-reset/run
func (h *Handler) RunAnnualReset(w http.ResponseWriter, r *http.Request) {
	var req RunResetRequest
	if err := h.decodeOptional(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	var (
		result leave.ResetResult
		err    error
	)
	if req.Date.IsZero() {
		result, err = h.Jobs.ResetDue(r.Context(), h.today())
	} else {
		result, err = h.Jobs.Reset(r.Context(), req.Date)
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// NextReset returns the employee's next reset date.
// GET /api/annual-reset/next?employee_id=
func (h *Handler) NextReset(w http.ResponseWriter, r *http.Request) {
	employeeID := r.URL.Query().Get("employee_id")
	if employeeID == "" {
		h.writeServiceError(w, r, badRequest{msg: "employee_id required"})
		return
	}
	today := h.today()
	next, err := h.Resets.NextResetDateFor(r.Context(), employeeID, today)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NextResetResponse{EmployeeID: employeeID, Today: today, NextReset: next})
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns every employee, active or not.
// GET /api/employees
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if employees == nil {
		employees = []leave.Employee{}
	}
	writeJSON(w, http.StatusOK, employees)
}

// CreateEmployee stores an employee. Cached balances are preserved when the
// employee already exists.
// POST /api/employees
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := h.decode(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if req.JoiningDate.IsZero() {
		h.writeServiceError(w, r, badRequest{msg: "joining_date required"})
		return
	}
	emp := req.employee()
	if existing, err := h.Store.Get(r.Context(), emp.ID); err == nil {
		emp.PaidLeaves, emp.EarnedLeaves, emp.CompensatoryOffs = existing.PaidLeaves, existing.EarnedLeaves, existing.CompensatoryOffs
	}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, emp)
}

// GetEmployee returns one employee with its cached balances.
// GET /api/employees/{id}
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GetLedger returns the employee's transactions.
// GET /api/employees/{id}/ledger?leave_type=&type=CREDIT,DEBIT&from=&to=
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	q := r.URL.Query()
	filter := ledger.Filter{EmployeeID: employeeID, LeaveType: ledger.LeaveType(q.Get("leave_type"))}
	if filter.LeaveType != "" && !filter.LeaveType.Valid() {
		h.writeServiceError(w, r, badRequest{msg: fmt.Sprintf("unknown leave_type %q", filter.LeaveType)})
		return
	}
	if raw := q.Get("type"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			t := ledger.Type(strings.ToUpper(strings.TrimSpace(part)))
			if !t.Valid() {
				h.writeServiceError(w, r, badRequest{msg: fmt.Sprintf("unknown type %q", part)})
				return
			}
			filter.Types = append(filter.Types, t)
		}
	}
	var err error
	if filter.From, err = queryDate(r, "from"); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if filter.To, err = queryDate(r, "to"); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	txs, err := h.Ledger.Transactions(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if txs == nil {
		txs = []ledger.Transaction{}
	}
	writeJSON(w, http.StatusOK, TransactionsResponse{EmployeeID: employeeID, Transactions: txs, Net: ledger.Sum(txs)})
}

// PostTransaction appends one entry and moves the cached balance with it.
// POST /api/employees/{id}/ledger
func (h *Handler) PostTransaction(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	var req TransactionRequest
	if err := h.decode(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if _, err := h.Store.Get(r.Context(), employeeID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	tx, err := h.Ledger.AddTransaction(r.Context(), req.transaction(employeeID))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.cache(r, tx)
	writeJSON(w, http.StatusCreated, tx)
}

// PostTransactions appends a batch atomically.
// POST /api/employees/{id}/ledger/batch
func (h *Handler) PostTransactions(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	var req BatchTransactionRequest
	if err := h.decode(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if _, err := h.Store.Get(r.Context(), employeeID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	txs := make([]ledger.Transaction, len(req.Transactions))
	for i, t := range req.Transactions {
		txs[i] = t.transaction(employeeID)
	}
	posted, err := h.Ledger.AddTransactions(r.Context(), txs)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	for _, tx := range posted {
		h.cache(r, tx)
	}
	writeJSON(w, http.StatusCreated, TransactionsResponse{EmployeeID: employeeID, Transactions: posted, Net: ledger.Sum(posted)})
}

// PostAdjustment appends a signed correction.
// POST /api/employees/{id}/adjustments
func (h *Handler) PostAdjustment(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	var req AdjustmentRequest
	if err := h.decode(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if req.Days.IsZero() {
		h.writeServiceError(w, r, badRequest{msg: "days must be non-zero"})
		return
	}
	if _, err := h.Store.Get(r.Context(), employeeID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	tx, err := h.Ledger.AddAdjustment(r.Context(), employeeID, req.LeaveType, req.Days, req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.cache(r, tx)
	writeJSON(w, http.StatusCreated, tx)
}

// cache applies a manual entry to the employee's cached balance. The ledger
// stays authoritative, so a failure is logged and left for reconcile.
func (h *Handler) cache(r *http.Request, tx ledger.Transaction) {
	if err := h.Store.AdjustBalance(r.Context(), tx.EmployeeID, tx.LeaveType, tx.Signed()); err != nil {
		h.logger.Warn("cache update failed after ledger write",
			zap.String("employee_id", tx.EmployeeID),
			zap.String("leave_type", string(tx.LeaveType)),
			zap.String("transaction_id", tx.ID),
			zap.Error(err))
	}
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalances returns CL (financial year) and EL/CCL (lifetime) balances.
// GET /api/employees/{id}/balances?as_of=
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	balances, err := h.Balances.Balances(r.Context(), chi.URLParam(r, "id"), asOf)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

// Reconcile reports drift between the ledger and the cached balances.
// GET /api/employees/{id}/reconcile?as_of=
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	rec, err := h.Balances.Reconcile(r.Context(), chi.URLParam(r, "id"), asOf)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// SyncBalances rewrites drifted caches from the ledger.
// POST /api/employees/{id}/reconcile?as_of=
func (h *Handler) SyncBalances(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	rec, err := h.Balances.Sync(r.Context(), chi.URLParam(r, "id"), asOf)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) asOf(r *http.Request) (calendar.Date, error) {
	d, err := queryDate(r, "as_of")
	if err != nil || !d.IsZero() {
		return d, err
	}
	return h.today(), nil
}

// =============================================================================
// SETTINGS & CALENDAR HANDLERS
// =============================================================================

// GetEmployeeSettings resolves the cascade for the employee's department
// and division.
// GET /api/employees/{id}/settings
func (h *Handler) GetEmployeeSettings(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	eff, err := h.Settings.All(r.Context(), emp.DepartmentID, emp.DivisionID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EmployeeSettingsResponse{
		EmployeeID:   emp.ID,
		DepartmentID: emp.DepartmentID,
		DivisionID:   emp.DivisionID,
		Settings:     eff,
	})
}

// GetCycle resolves the payroll cycle and financial year containing a date.
// GET /api/cycles?date=
func (h *Handler) GetCycle(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if date.IsZero() {
		date = h.today()
	}
	writeJSON(w, http.StatusOK, CycleResponse{
		Date:          date,
		PayrollCycle:  h.Calendar.PayrollCycleFor(date),
		FinancialYear: h.Calendar.FinancialYearFor(date),
	})
}

// ListHolidays returns holidays visible to a department.
// GET /api/holidays?department_id=&from=&to=
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if from.IsZero() || to.IsZero() {
		fy := h.Calendar.FinancialYearFor(h.today())
		if from.IsZero() {
			from = fy.Start
		}
		if to.IsZero() {
			to = fy.End
		}
	}
	holidays, err := h.Store.Holidays(r.Context(), r.URL.Query().Get("department_id"), calendar.Period{Start: from, End: to})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if holidays == nil {
		holidays = []sqlite.Holiday{}
	}
	writeJSON(w, http.StatusOK, holidays)
}

// CreateHoliday adds a holiday. An empty department applies to everyone.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req HolidayRequest
	if err := h.decode(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if req.Date.IsZero() {
		h.writeServiceError(w, r, badRequest{msg: "date required"})
		return
	}
	holiday := sqlite.Holiday{DepartmentID: req.DepartmentID, Date: req.Date, Name: req.Name}
	if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, holiday)
}

// RecordPunch stores an attendance punch for the employee.
// POST /api/employees/{id}/punches
func (h *Handler) RecordPunch(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	var req PunchRequest
	if err := h.decode(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if _, err := h.Store.Get(r.Context(), employeeID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := h.Store.RecordPunch(r.Context(), employeeID, req.At.In(h.Location)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordOnDuty stores an on-duty decision for the employee.
// POST /api/employees/{id}/on-duty
func (h *Handler) RecordOnDuty(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	var req OnDutyRequest
	if err := h.decode(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if req.Date.IsZero() {
		h.writeServiceError(w, r, badRequest{msg: "date required"})
		return
	}
	if _, err := h.Store.Get(r.Context(), employeeID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := h.Store.SaveOnDuty(r.Context(), employeeID, req.Date, req.Status); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CCL HANDLERS
// =============================================================================

// FileCCL files a grant and sends it into the approval chain.
// POST /api/ccl
func (h *Handler) FileCCL(w http.ResponseWriter, r *http.Request) {
	h.fileCCL(w, r, h.CCL.File)
}

// SaveCCLDraft stores a grant without running eligibility checks.
// POST /api/ccl/drafts
func (h *Handler) SaveCCLDraft(w http.ResponseWriter, r *http.Request) {
	h.fileCCL(w, r, h.CCL.SaveDraft)
}

type fileFunc func(ctx context.Context, req ccl.FileRequest, actor ccl.Actor) (ccl.Grant, error)

func (h *Handler) fileCCL(w http.ResponseWriter, r *http.Request, fn fileFunc) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	var req ccl.FileRequest
	if err := h.decode(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	g, err := fn(r.Context(), req, actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// GetCCL returns one grant.
// GET /api/ccl/{id}
func (h *Handler) GetCCL(w http.ResponseWriter, r *http.Request) {
	g, err := h.CCL.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// ListEmployeeCCL returns an employee's grants, newest worked date first.
// GET /api/employees/{id}/ccl?status=
func (h *Handler) ListEmployeeCCL(w http.ResponseWriter, r *http.Request) {
	grants, err := h.CCL.List(r.Context(), chi.URLParam(r, "id"), ccl.Status(r.URL.Query().Get("status")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if grants == nil {
		grants = []ccl.Grant{}
	}
	writeJSON(w, http.StatusOK, grants)
}

// PendingCCL returns the grants waiting on the actor.
// GET /api/ccl/pending
func (h *Handler) PendingCCL(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	grants, err := h.CCL.PendingFor(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if grants == nil {
		grants = []ccl.Grant{}
	}
	writeJSON(w, http.StatusOK, grants)
}

// SubmitCCL sends a draft into the approval chain.
// POST /api/ccl/{id}/submit
func (h *Handler) SubmitCCL(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.respondGrant(w, r)(h.CCL.Submit(r.Context(), chi.URLParam(r, "id"), actor))
}

// ApproveCCL approves the active step. The final step credits the ledger.
// POST /api/ccl/{id}/approve
func (h *Handler) ApproveCCL(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	var req ApproveRequest
	if err := h.decodeOptional(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.respondGrant(w, r)(h.CCL.Approve(r.Context(), chi.URLParam(r, "id"), actor, req.Comment))
}

// RejectCCL rejects the active step and closes the grant.
// POST /api/ccl/{id}/reject
func (h *Handler) RejectCCL(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	var req RejectRequest
	if err := h.decode(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.respondGrant(w, r)(h.CCL.Reject(r.Context(), chi.URLParam(r, "id"), actor, req.Reason))
}

// CancelCCL withdraws a grant that has not reached a terminal state.
// POST /api/ccl/{id}/cancel
func (h *Handler) CancelCCL(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.respondGrant(w, r)(h.CCL.Cancel(r.Context(), chi.URLParam(r, "id"), actor))
}

// UseCCL marks an approved grant as consumed by a leave request.
// POST /api/ccl/{id}/use
func (h *Handler) UseCCL(w http.ResponseWriter, r *http.Request) {
	if _, err := actorFrom(r); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.respondGrant(w, r)(h.CCL.MarkUsed(r.Context(), chi.URLParam(r, "id")))
}

func (h *Handler) respondGrant(w http.ResponseWriter, r *http.Request) func(ccl.Grant, error) {
	return func(g ccl.Grant, err error) {
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func actorFrom(r *http.Request) (ccl.Actor, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderActorID))
	if id == "" {
		return ccl.Actor{}, fmt.Errorf("%s header required: %w", HeaderActorID, ccl.ErrUnauthorized)
	}
	actor := ccl.Actor{ID: id}
	for _, role := range strings.Split(r.Header.Get(HeaderActorRoles), ",") {
		if role = strings.ToLower(strings.TrimSpace(role)); role != "" {
			actor.Roles = append(actor.Roles, role)
		}
	}
	return actor, nil
}

func queryDate(r *http.Request, name string) (calendar.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return calendar.Date{}, nil
	}
	d, err := calendar.Parse(raw)
	if err != nil {
		return calendar.Date{}, badRequest{msg: fmt.Sprintf("%s: expected YYYY-MM-DD, got %q", name, raw)}
	}
	return d, nil
}
