package kiroku

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is a run's lifecycle state. A run starts Running and moves
// exactly once to Finished or Failed; terminal runs accept no more logging.
type RunStatus string

const (
	StatusRunning  RunStatus = "running"
	StatusFinished RunStatus = "finished"
	StatusFailed   RunStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// Run is a read-only snapshot of one tracked execution. It is a curated view
// built from fresh scans — mutating it never affects the store.
type Run struct {
	ID        uuid.UUID
	Name      string
	Status    RunStatus
	StartedAt time.Time
	// EndedAt is set only once the run reaches a terminal status.
	EndedAt   *time.Time
	Params    map[string]string
	Tags      map[string]string
	Metrics   map[string][]MetricPoint
	Artifacts []ArtifactInfo
}

// LatestMetrics projects each metric series to its most recent point.
// Callers wanting the full series read Metrics directly.
func (r Run) LatestMetrics() map[string]MetricPoint {
	latest := make(map[string]MetricPoint, len(r.Metrics))
	for key, series := range r.Metrics {
		if len(series) > 0 {
			latest[key] = series[len(series)-1]
		}
	}
	return latest
}

// RunSummary is the list-projection of a run.
type RunSummary struct {
	ID        uuid.UUID
	Name      string
	Status    RunStatus
	StartedAt time.Time
	EndedAt   *time.Time
}

// MetricPoint is one entry in a metric's append-only time series.
type MetricPoint struct {
	Value      float64
	Step       int64
	RecordedAt time.Time
}

// Metric is a metric point as submitted to LogMetrics. The store assigns
// the recording timestamp.
type Metric struct {
	Key   string
	Value float64
	Step  int64
}

// ArtifactInfo describes a stored artifact without its content.
type ArtifactInfo struct {
	Name        string
	SizeBytes   int64
	ContentHash string // hex-encoded SHA-256 of the blob
	CreatedAt   time.Time
}

// RunFilter narrows ListRuns results. Nil fields are not applied.
// TagValue is only meaningful together with TagKey.
type RunFilter struct {
	Status   *RunStatus
	Name     *string
	TagKey   *string
	TagValue *string
	Limit    int // defaults to 50 when <= 0
	Offset   int
}
