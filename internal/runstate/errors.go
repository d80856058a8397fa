package runstate

import "errors"

// Sentinel errors returned by the persistence layer.
var (
	// ErrNotFound indicates no persisted run state exists.
	ErrNotFound = errors.New("run state not found")

	// ErrCorrupted indicates the persisted run state could not be decoded
	// or failed schema validation. Corrupted state is discarded, never
	// repaired.
	ErrCorrupted = errors.New("run state corrupted")
)
