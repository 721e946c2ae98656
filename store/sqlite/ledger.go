package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/ledger"
)

var _ ledger.Store = (*Store)(nil)

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

const transactionColumns = `id, employee_id, leave_type, transaction_type, days, start_date, end_date,
	reason, status, auto_generated, auto_generated_type, reference_id, idempotency_key,
	created_by, created_at`

// Append adds a transaction to the ledger.
func (s *Store) Append(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTx(ctx, s.db, tx)
}

// AppendBatch adds multiple transactions atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []ledger.Transaction) error {
	keys := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if keys[tx.IdempotencyKey] {
			return ledger.ErrDuplicateIdempotencyKey
		}
		keys[tx.IdempotencyKey] = true
	}
	return s.inTx(ctx, func(sqlTx *sql.Tx) error {
		for _, tx := range txs {
			if err := appendTx(ctx, sqlTx, tx); err != nil {
				return err
			}
		}
		return nil
	})
}

func appendTx(ctx context.Context, db execer, tx ledger.Transaction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO ledger_transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.EmployeeID,
		string(tx.LeaveType),
		string(tx.Type),
		tx.Days.String(),
		tx.StartDate.String(),
		tx.EndDate.String(),
		nullString(tx.Reason),
		tx.Status,
		tx.AutoGenerated,
		nullString(string(tx.AutoGeneratedType)),
		nullString(tx.ReferenceID),
		nullString(tx.IdempotencyKey),
		nullString(tx.CreatedBy),
		tx.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// Query returns matching transactions ordered by start date, then creation.
func (s *Store) Query(ctx context.Context, filter ledger.Filter) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := filterClause(filter)
	query := `SELECT ` + transactionColumns + ` FROM ledger_transactions` + where +
		` ORDER BY start_date ASC, created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func filterClause(f ledger.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		conds = append(conds, cond)
		args = append(args, v)
	}
	if f.EmployeeID != "" {
		add("employee_id = ?", f.EmployeeID)
	}
	if f.LeaveType != "" {
		add("leave_type = ?", string(f.LeaveType))
	}
	if len(f.Types) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(f.Types)), ",")
		conds = append(conds, "transaction_type IN ("+marks+")")
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}
	if f.AutoGeneratedType != "" {
		add("auto_generated_type = ?", string(f.AutoGeneratedType))
	}
	if f.ReferenceID != "" {
		add("reference_id = ?", f.ReferenceID)
	}
	// YYYY-MM-DD compares correctly as text.
	if !f.From.IsZero() {
		add("start_date >= ?", f.From.String())
	}
	if !f.To.IsZero() {
		add("start_date <= ?", f.To.String())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		tx                ledger.Transaction
		leaveType, txType string
		days              string
		startDate         string
		endDate           string
		reason            sql.NullString
		autoType          sql.NullString
		referenceID       sql.NullString
		idempotencyKey    sql.NullString
		createdBy         sql.NullString
		createdAt         string
	)
	err := rows.Scan(
		&tx.ID, &tx.EmployeeID, &leaveType, &txType, &days, &startDate, &endDate,
		&reason, &tx.Status, &tx.AutoGenerated, &autoType, &referenceID, &idempotencyKey,
		&createdBy, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.LeaveType = ledger.LeaveType(leaveType)
	tx.Type = ledger.Type(txType)
	if tx.Days, err = decimal.NewFromString(days); err != nil {
		return tx, fmt.Errorf("transaction %s: bad days %q: %w", tx.ID, days, err)
	}
	if tx.StartDate, err = calendar.Parse(startDate); err != nil {
		return tx, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	if tx.EndDate, err = calendar.Parse(endDate); err != nil {
		return tx, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	tx.Reason = reason.String
	tx.AutoGeneratedType = ledger.AutoType(autoType.String)
	tx.ReferenceID = referenceID.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedBy = createdBy.String
	tx.CreatedAt = parseTime(createdAt)
	return tx, nil
}
