package sqlite

const schema = `
-- Ledger (append-only)
CREATE TABLE IF NOT EXISTS ledger_transactions (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL,
	leave_type TEXT NOT NULL,
	transaction_type TEXT NOT NULL,
	days TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	reason TEXT,
	status TEXT NOT NULL,
	auto_generated INTEGER NOT NULL DEFAULT 0,
	auto_generated_type TEXT,
	reference_id TEXT,
	idempotency_key TEXT,
	created_by TEXT,
	created_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_idempotency
	ON ledger_transactions(idempotency_key) WHERE idempotency_key IS NOT NULL;

-- Hot path: balance for one employee and leave type up to a date
CREATE INDEX IF NOT EXISTS idx_ledger_employee_type_date
	ON ledger_transactions(employee_id, leave_type, start_date);

CREATE INDEX IF NOT EXISTS idx_ledger_reference
	ON ledger_transactions(reference_id) WHERE reference_id IS NOT NULL;

-- Employees with balance caches
CREATE TABLE IF NOT EXISTS employees (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	department_id TEXT NOT NULL DEFAULT '',
	division_id TEXT NOT NULL DEFAULT '',
	joining_date TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	reporting_managers_json TEXT NOT NULL DEFAULT '[]',
	weekly_offs_json TEXT NOT NULL DEFAULT '[]',
	paid_leaves TEXT NOT NULL DEFAULT '0',
	earned_leaves TEXT NOT NULL DEFAULT '0',
	compensatory_offs TEXT NOT NULL DEFAULT '0',
	updated_at TEXT NOT NULL
);

-- Settings cascade: ('', '') is the global layer
CREATE TABLE IF NOT EXISTS settings_layers (
	department_id TEXT NOT NULL,
	division_id TEXT NOT NULL,
	leaves_json TEXT,
	loans_json TEXT,
	salary_advance_json TEXT,
	permissions_json TEXT,
	overtime_json TEXT,
	attendance_deduction_json TEXT,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (department_id, division_id)
);

-- CCL grants
CREATE TABLE IF NOT EXISTS ccl_grants (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL,
	worked_date TEXT NOT NULL,
	portion TEXT NOT NULL,
	reason TEXT,
	status TEXT NOT NULL,
	steps_json TEXT NOT NULL DEFAULT '[]',
	current_step INTEGER NOT NULL DEFAULT 0,
	is_expired INTEGER NOT NULL DEFAULT 0,
	is_used INTEGER NOT NULL DEFAULT 0,
	transaction_id TEXT,
	expiry_transaction_id TEXT,
	created_by TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ccl_grants_employee_date
	ON ccl_grants(employee_id, worked_date);
CREATE INDEX IF NOT EXISTS idx_ccl_grants_status
	ON ccl_grants(status);

-- Calendar
CREATE TABLE IF NOT EXISTS holidays (
	department_id TEXT NOT NULL DEFAULT '',
	date TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (department_id, date)
);

CREATE TABLE IF NOT EXISTS attendance_punches (
	employee_id TEXT NOT NULL,
	date TEXT NOT NULL,
	punched_at TEXT NOT NULL,
	PRIMARY KEY (employee_id, punched_at)
);

CREATE INDEX IF NOT EXISTS idx_attendance_employee_date
	ON attendance_punches(employee_id, date);

CREATE TABLE IF NOT EXISTS on_duty_records (
	employee_id TEXT NOT NULL,
	date TEXT NOT NULL,
	status TEXT NOT NULL,
	PRIMARY KEY (employee_id, date)
);

-- Batch run history
CREATE TABLE IF NOT EXISTS accrual_runs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	period_start TEXT,
	period_end TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	processed INTEGER NOT NULL DEFAULT 0,
	posted INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	errors_json TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_accrual_runs_kind_started
	ON accrual_runs(kind, started_at DESC);
`
