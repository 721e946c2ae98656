package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateIdempotencyKey is returned when the key is already in the
	// ledger. Batch jobs treat it as "already posted".
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInvalidTransaction is returned for malformed entries.
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// ValidationError names the field that made a transaction invalid.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid transaction: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidTransaction
}

// IsDuplicate reports whether err means the entry was already posted.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey)
}
