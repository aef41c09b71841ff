package gains

import "errors"

var (
	// ErrNegativeAmount signals a malformed negative input amount.
	ErrNegativeAmount = errors.New("gains: amount cannot be negative")
	// ErrTimestampOrdering signals a disposal dated before its lot's acquisition.
	ErrTimestampOrdering = errors.New("gains: disposal before acquisition")
)
