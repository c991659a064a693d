package storage

import "errors"

// Sentinel errors for the run store. Callers match them with errors.Is;
// every storage method wraps them with operation context via fmt.Errorf.
var (
	// ErrNotFound is returned when a referenced run (or artifact) does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrRunTerminal is returned when a mutation targets a run that has
	// already reached a terminal status, including a second terminal
	// transition.
	ErrRunTerminal = errors.New("storage: run already terminal")

	// ErrConflict is returned on a duplicate write to a write-once key:
	// a param or tag key, or an artifact name.
	ErrConflict = errors.New("storage: duplicate write-once key")
)
