package kiroku

import "github.com/ashita-ai/kiroku/internal/storage"

// Sentinel errors surfaced by Store and ActiveRun operations.
// Match them with errors.Is; returned errors carry operation context.
var (
	// ErrNotFound: the referenced run id (or artifact name) is unknown.
	ErrNotFound = storage.ErrNotFound

	// ErrRunTerminal: a mutation or second terminal transition was attempted
	// on a run that has already finished or failed.
	ErrRunTerminal = storage.ErrRunTerminal

	// ErrConflict: a duplicate write to a write-once key — a param or tag
	// key, or an artifact name. The first value is always retained.
	ErrConflict = storage.ErrConflict
)
