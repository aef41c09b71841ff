package inventory

import "errors"

var (
	// ErrInsufficientInventory signals a disposal exceeding available lots,
	// an upstream data gap that is never auto-corrected.
	ErrInsufficientInventory = errors.New("inventory: insufficient inventory")
	// ErrMethodLockViolation signals a costing-method change before depletion.
	ErrMethodLockViolation = errors.New("inventory: costing method locked")
	// ErrOutOfOrderEvent signals a timestamp monotonicity violation on a ledger.
	ErrOutOfOrderEvent = errors.New("inventory: out of order event")
	// ErrNonPositiveQuantity signals a zero or negative quantity.
	ErrNonPositiveQuantity = errors.New("inventory: quantity must be positive")
	// ErrNegativeCost signals a negative cost basis input.
	ErrNegativeCost = errors.New("inventory: cost cannot be negative")
	// ErrInvalidMethod signals an unknown costing method.
	ErrInvalidMethod = errors.New("inventory: invalid costing method")
)
