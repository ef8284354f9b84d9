package trade

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Settlement error taxonomy. Precondition failures are terminal for the
// request: no retry, no partial write. Only store-level serialization
// conflicts are retried, and those surface as ErrTransient once the retry
// budget is spent.
var (
	// ErrNotFound indicates a missing account or instrument.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates a non-positive quantity or price.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConstraint indicates a referential-integrity violation on append.
	ErrConstraint = errors.New("constraint violation")

	// ErrTransient indicates settlement kept conflicting with concurrent
	// writes after all retries. The request may be repeated by the caller.
	ErrTransient = errors.New("settlement conflict, try again")
)

// InsufficientFundsError rejects a buy whose cost exceeds the cash balance.
// It carries the current balance so the caller can explain the rejection.
type InsufficientFundsError struct {
	Balance decimal.Decimal
	Cost    decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: cost %s exceeds balance %s", e.Cost, e.Balance)
}

// InsufficientHoldingsError rejects a sell larger than the net position.
// It carries the currently held quantity.
type InsufficientHoldingsError struct {
	Held      int64
	Requested int64
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("insufficient holdings: requested %d, currently held %d", e.Requested, e.Held)
}
