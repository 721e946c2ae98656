package ledger

import (
	"context"
	"sort"

	"github.com/warp/leave-ledger/calendar"
)

// =============================================================================
// STORE - Interface for transaction persistence (append-only)
// =============================================================================

// Store persists transactions. There is no Update and no Delete.
type Store interface {
	// Append persists one transaction. Returns ErrDuplicateIdempotencyKey if
	// the key already exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists all transactions or none.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Query returns matching transactions ordered by StartDate, then CreatedAt.
	Query(ctx context.Context, filter Filter) ([]Transaction, error)

	// Exists checks whether an idempotency key has been written.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// Filter selects transactions. Zero fields match everything. From and To
// bound StartDate inclusively.
type Filter struct {
	EmployeeID        string
	LeaveType         LeaveType
	Types             []Type
	AutoGeneratedType AutoType
	ReferenceID       string
	From              calendar.Date
	To                calendar.Date
}

// Matches reports whether tx satisfies the filter.
func (f Filter) Matches(tx Transaction) bool {
	if f.EmployeeID != "" && tx.EmployeeID != f.EmployeeID {
		return false
	}
	if f.LeaveType != "" && tx.LeaveType != f.LeaveType {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, tx.Type) {
		return false
	}
	if f.AutoGeneratedType != "" && tx.AutoGeneratedType != f.AutoGeneratedType {
		return false
	}
	if f.ReferenceID != "" && tx.ReferenceID != f.ReferenceID {
		return false
	}
	if !f.From.IsZero() && tx.StartDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && tx.StartDate.After(f.To) {
		return false
	}
	return true
}

func containsType(types []Type, t Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// SortTransactions orders txs the way Query returns them.
func SortTransactions(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].StartDate.Equal(txs[j].StartDate) {
			return txs[i].StartDate.Before(txs[j].StartDate)
		}
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.Before(txs[j].CreatedAt)
		}
		return txs[i].ID < txs[j].ID
	})
}
