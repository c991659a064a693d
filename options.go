package kiroku

import (
	"log/slog"
	"time"
)

// Option configures a Store at Open time.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	path    string
	logger  *slog.Logger
	version string
	clock   func() time.Time
}

// WithPath overrides the database file location from config
// (KIROKU_DB_PATH env var). Pass ":memory:" for a throwaway store.
func WithPath(path string) Option {
	return func(o *resolvedOptions) { o.path = path }
}

// WithLogger sets the structured logger for the Store.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs and telemetry.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithClock replaces the timestamp source for run lifecycle fields.
// Intended for deterministic tests; the default is time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *resolvedOptions) { o.clock = now }
}

// RunOption configures a run at StartRun time.
type RunOption func(*runOptions)

type runOptions struct {
	name string
	tags map[string]string
}

// WithRunName attaches a human-readable label to the run.
func WithRunName(name string) RunOption {
	return func(o *runOptions) { o.name = name }
}

// WithRunTags records tags immediately after the run is created.
// Tags are write-once: keys colliding with later SetTag calls conflict.
func WithRunTags(tags map[string]string) RunOption {
	return func(o *runOptions) { o.tags = tags }
}
