package event

import "errors"

var (
	ErrMissingTimestamp      = errors.New("event timestamp is required")
	ErrMissingWalletID       = errors.New("event wallet ID is required")
	ErrMissingAsset          = errors.New("event asset is required")
	ErrNegativeQuantity      = errors.New("event quantity cannot be negative")
	ErrNegativeCounterAmount = errors.New("event counter amount cannot be negative")
	ErrNegativeValue         = errors.New("event EUR value cannot be negative")
	ErrNegativeFee           = errors.New("event fee cannot be negative")
	ErrInvalidDirection      = errors.New("event direction must be in or out")
)
