package classify

import "errors"

var (
	// ErrUnmappableKind marks an event whose kind cannot be classified.
	ErrUnmappableKind = errors.New("classification: unmappable event kind")
	// ErrMissingCounterValue marks an event lacking a required EUR counter-value.
	ErrMissingCounterValue = errors.New("classification: missing counter value")
)
