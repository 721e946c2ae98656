package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/calendar"
)

// =============================================================================
// LEDGER - Validation and balance queries over a Store
// =============================================================================

// Ledger appends transactions without any balance-sufficiency check and
// derives balances from them.
type Ledger struct {
	Store Store

	// Now is the clock used for CreatedAt and for dating adjustments.
	Now func() time.Time
	// Location is the timezone "today" is taken in.
	Location *time.Location
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.Now = now }
}

// WithLocation sets the timezone adjustments are dated in.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) { l.Location = loc }
}

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{Store: store, Now: time.Now, Location: time.UTC}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Today returns the current date in the ledger's timezone.
func (l *Ledger) Today() calendar.Date {
	return calendar.FromTime(l.Now().In(l.Location))
}

// =============================================================================
// WRITES
// =============================================================================

// AddTransaction validates and appends tx, filling ID, CreatedAt, Status and
// EndDate when absent. It returns the stored entry.
func (l *Ledger) AddTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	tx = l.prepare(tx)
	if err := Validate(tx); err != nil {
		return Transaction{}, err
	}
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return Transaction{}, fmt.Errorf("check idempotency key: %w", err)
		}
		if exists {
			return Transaction{}, ErrDuplicateIdempotencyKey
		}
	}
	if err := l.Store.Append(ctx, tx); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// AddTransactions appends every entry or none. Keys must be unique within the
// batch and unknown to the ledger.
func (l *Ledger) AddTransactions(ctx context.Context, txs []Transaction) ([]Transaction, error) {
	prepared := make([]Transaction, len(txs))
	seen := make(map[string]bool, len(txs))
	for i, tx := range txs {
		tx = l.prepare(tx)
		if err := Validate(tx); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if tx.IdempotencyKey != "" {
			if seen[tx.IdempotencyKey] {
				return nil, fmt.Errorf("entry %d: %w", i, ErrDuplicateIdempotencyKey)
			}
			seen[tx.IdempotencyKey] = true
			exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
			if err != nil {
				return nil, fmt.Errorf("check idempotency key: %w", err)
			}
			if exists {
				return nil, fmt.Errorf("entry %d: %w", i, ErrDuplicateIdempotencyKey)
			}
		}
		prepared[i] = tx
	}
	if err := l.Store.AppendBatch(ctx, prepared); err != nil {
		return nil, err
	}
	return prepared, nil
}

// AddAdjustment posts a signed ADJUSTMENT dated today.
func (l *Ledger) AddAdjustment(ctx context.Context, employeeID string, leaveType LeaveType, days decimal.Decimal, reason string) (Transaction, error) {
	today := l.Today()
	return l.AddTransaction(ctx, Transaction{
		EmployeeID: employeeID,
		LeaveType:  leaveType,
		Type:       Adjustment,
		Days:       days,
		StartDate:  today,
		EndDate:    today,
		Reason:     reason,
	})
}

func (l *Ledger) prepare(tx Transaction) Transaction {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = l.Now().UTC()
	}
	if tx.Status == "" {
		tx.Status = StatusApproved
	}
	if tx.EndDate.IsZero() {
		tx.EndDate = tx.StartDate
	}
	return tx
}

// Validate checks the shape of a transaction. It never looks at balances.
func Validate(tx Transaction) error {
	switch {
	case tx.EmployeeID == "":
		return &ValidationError{Field: "employee_id", Message: "required"}
	case !tx.LeaveType.Valid():
		return &ValidationError{Field: "leave_type", Message: fmt.Sprintf("unknown leave type %q", tx.LeaveType)}
	case !tx.Type.Valid():
		return &ValidationError{Field: "transaction_type", Message: fmt.Sprintf("unknown transaction type %q", tx.Type)}
	case tx.Type != Adjustment && tx.Days.IsNegative():
		return &ValidationError{Field: "days", Message: "must not be negative for " + string(tx.Type)}
	case tx.StartDate.IsZero():
		return &ValidationError{Field: "start_date", Message: "required"}
	case tx.EndDate.Before(tx.StartDate):
		return &ValidationError{Field: "end_date", Message: "before start_date"}
	case tx.AutoGenerated && tx.AutoGeneratedType == "":
		return &ValidationError{Field: "auto_generated_type", Message: "required for auto-generated entries"}
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

// Transactions returns entries matching filter in ledger order.
func (l *Ledger) Transactions(ctx context.Context, filter Filter) ([]Transaction, error) {
	return l.Store.Query(ctx, filter)
}

// BalanceAsOf is the signed sum of every entry starting on or before asOf.
func (l *Ledger) BalanceAsOf(ctx context.Context, employeeID string, leaveType LeaveType, asOf calendar.Date) (decimal.Decimal, error) {
	txs, err := l.Store.Query(ctx, Filter{EmployeeID: employeeID, LeaveType: leaveType, To: asOf})
	if err != nil {
		return decimal.Zero, err
	}
	return Sum(txs), nil
}

// BalanceInRange is the signed sum of entries starting inside period.
func (l *Ledger) BalanceInRange(ctx context.Context, employeeID string, leaveType LeaveType, period calendar.Period) (decimal.Decimal, error) {
	txs, err := l.Store.Query(ctx, Filter{EmployeeID: employeeID, LeaveType: leaveType, From: period.Start, To: period.End})
	if err != nil {
		return decimal.Zero, err
	}
	return Sum(txs), nil
}

// Summarize breaks down the entries starting inside period.
func (l *Ledger) Summarize(ctx context.Context, employeeID string, leaveType LeaveType, period calendar.Period) (Summary, error) {
	txs, err := l.Store.Query(ctx, Filter{EmployeeID: employeeID, LeaveType: leaveType, From: period.Start, To: period.End})
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		EmployeeID:  employeeID,
		LeaveType:   leaveType,
		Period:      period,
		Credits:     decimal.Zero,
		Debits:      decimal.Zero,
		Expiries:    decimal.Zero,
		Adjustments: decimal.Zero,
		Count:       len(txs),
	}
	for _, tx := range txs {
		switch tx.Type {
		case Credit:
			s.Credits = s.Credits.Add(tx.Days)
		case Debit:
			s.Debits = s.Debits.Add(tx.Days)
		case Expiry:
			s.Expiries = s.Expiries.Add(tx.Days)
		case Adjustment:
			s.Adjustments = s.Adjustments.Add(tx.Days)
		}
	}
	s.Net = Sum(txs)
	return s, nil
}

// Sum adds the signed effect of every entry. Addition commutes, so the
// result does not depend on order.
func Sum(txs []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Signed())
	}
	return total
}
