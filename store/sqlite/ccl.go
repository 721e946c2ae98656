package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/ccl"
	"github.com/warp/leave-ledger/leave"
)

var (
	_ ccl.GrantStore     = (*Store)(nil)
	_ leave.CompOffStore = (*Store)(nil)
)

// =============================================================================
// CCL GRANTS (ccl.GrantStore interface)
// =============================================================================

const grantColumns = `id, employee_id, worked_date, portion, reason, status, steps_json, current_step,
	is_expired, is_used, transaction_id, expiry_transaction_id, created_by, created_at, updated_at`

func (s *Store) CreateGrant(ctx context.Context, g ccl.Grant) error {
	steps, err := stepsJSON(g.Steps)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ccl_grants (`+grantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.EmployeeID, g.WorkedDate.String(), string(g.Portion), nullString(g.Reason),
		string(g.Status), steps, g.CurrentStep, g.IsExpired, g.IsUsed,
		nullString(g.TransactionID), nullString(g.ExpiryTransactionID), nullString(g.CreatedBy),
		g.CreatedAt.UTC().Format(time.RFC3339Nano), g.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create grant: %w", err)
	}
	return nil
}

func (s *Store) UpdateGrant(ctx context.Context, g ccl.Grant) error {
	steps, err := stepsJSON(g.Steps)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE ccl_grants SET
			status = ?, steps_json = ?, current_step = ?, is_expired = ?, is_used = ?,
			transaction_id = ?, expiry_transaction_id = ?, reason = ?, updated_at = ?
		WHERE id = ?`,
		string(g.Status), steps, g.CurrentStep, g.IsExpired, g.IsUsed,
		nullString(g.TransactionID), nullString(g.ExpiryTransactionID), nullString(g.Reason),
		g.UpdatedAt.UTC().Format(time.RFC3339Nano), g.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update grant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ccl.ErrNotFound
	}
	return nil
}

func (s *Store) GetGrant(ctx context.Context, id string) (ccl.Grant, error) {
	grants, err := s.queryGrants(ctx, `WHERE id = ?`, id)
	if err != nil {
		return ccl.Grant{}, err
	}
	if len(grants) == 0 {
		return ccl.Grant{}, ccl.ErrNotFound
	}
	return grants[0], nil
}

func (s *Store) ListGrants(ctx context.Context, employeeID string) ([]ccl.Grant, error) {
	if employeeID == "" {
		return s.queryGrants(ctx, `ORDER BY worked_date DESC, created_at ASC`)
	}
	return s.queryGrants(ctx, `WHERE employee_id = ? ORDER BY worked_date DESC, created_at ASC`, employeeID)
}

func (s *Store) GrantsOn(ctx context.Context, employeeID string, date calendar.Date) ([]ccl.Grant, error) {
	return s.queryGrants(ctx, `WHERE employee_id = ? AND worked_date = ?`, employeeID, date.String())
}

// =============================================================================
// EXPIRY SWEEP (leave.CompOffStore interface)
// =============================================================================

func (s *Store) ExpirableCompOffs(ctx context.Context, employeeID string, before calendar.Date) ([]leave.CompOff, error) {
	grants, err := s.queryGrants(ctx, `
		WHERE employee_id = ? AND status IN (?, ?) AND transaction_id IS NOT NULL AND is_used = 0 AND is_expired = 0 AND worked_date < ?
		ORDER BY worked_date ASC`,
		employeeID, string(ccl.StatusApproved), string(ccl.StatusHRApproved), before.String())
	if err != nil {
		return nil, err
	}
	out := make([]leave.CompOff, 0, len(grants))
	for _, g := range grants {
		out = append(out, leave.CompOff{ID: g.ID, EmployeeID: g.EmployeeID, WorkedDate: g.WorkedDate, Days: g.Days()})
	}
	return out, nil
}

func (s *Store) MarkCompOffExpired(ctx context.Context, grantID, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE ccl_grants SET is_expired = 1, expiry_transaction_id = ?, updated_at = ? WHERE id = ?`,
		transactionID, s.timestamp(), grantID)
	if err != nil {
		return fmt.Errorf("failed to mark grant expired: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ccl.ErrNotFound
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) queryGrants(ctx context.Context, clause string, args ...any) ([]ccl.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+grantColumns+` FROM ccl_grants `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()

	var out []ccl.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGrant(rows *sql.Rows) (ccl.Grant, error) {
	var (
		g                    ccl.Grant
		worked, portion      string
		status, steps        string
		reason, txID, expID  sql.NullString
		createdBy            sql.NullString
		createdAt, updatedAt string
	)
	err := rows.Scan(&g.ID, &g.EmployeeID, &worked, &portion, &reason, &status, &steps, &g.CurrentStep,
		&g.IsExpired, &g.IsUsed, &txID, &expID, &createdBy, &createdAt, &updatedAt)
	if err != nil {
		return g, fmt.Errorf("failed to scan grant: %w", err)
	}
	if g.WorkedDate, err = calendar.Parse(worked); err != nil {
		return g, fmt.Errorf("grant %s: %w", g.ID, err)
	}
	if err := json.Unmarshal([]byte(steps), &g.Steps); err != nil {
		return g, fmt.Errorf("grant %s: steps: %w", g.ID, err)
	}
	g.Portion = ccl.Portion(portion)
	g.Status = ccl.Status(status)
	g.Reason = reason.String
	g.TransactionID = txID.String
	g.ExpiryTransactionID = expID.String
	g.CreatedBy = createdBy.String
	g.CreatedAt = parseTime(createdAt)
	g.UpdatedAt = parseTime(updatedAt)
	return g, nil
}

func stepsJSON(steps []ccl.Step) (string, error) {
	if steps == nil {
		steps = []ccl.Step{}
	}
	b, err := json.Marshal(steps)
	if err != nil {
		return "", fmt.Errorf("encode steps: %w", err)
	}
	return string(b), nil
}
