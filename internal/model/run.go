// Package model defines the core domain types for Kiroku.
//
// Types correspond directly to database tables. They use strong typing
// (UUIDs, time.Time, enums) and avoid interface{} wherever possible.
package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle state of a tracked run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusFinished RunStatus = "finished"
	RunStatusFailed   RunStatus = "failed"
)

// Terminal reports whether the status is an end state. A terminal run
// accepts no further params, metrics, artifacts, or tags.
func (s RunStatus) Terminal() bool {
	return s == RunStatusFinished || s == RunStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s RunStatus) Valid() bool {
	return s == RunStatusRunning || s == RunStatusFinished || s == RunStatusFailed
}

// Run is a full snapshot of one tracked execution. Snapshots are built from
// fresh scans on every read and never alias store-internal state.
type Run struct {
	ID        uuid.UUID                `json:"id"`
	Name      string                   `json:"name,omitempty"`
	Status    RunStatus                `json:"status"`
	StartedAt time.Time                `json:"started_at"`
	EndedAt   *time.Time               `json:"ended_at,omitempty"`
	Params    map[string]string        `json:"params"`
	Tags      map[string]string        `json:"tags"`
	Metrics   map[string][]MetricPoint `json:"metrics"`
	Artifacts []ArtifactInfo           `json:"artifacts"`
	CreatedAt time.Time                `json:"created_at"`
}

// RunSummary is the list-projection of a run: identity and lifecycle only.
type RunSummary struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name,omitempty"`
	Status    RunStatus  `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// MetricPoint is one entry in a metric's append-only time series.
type MetricPoint struct {
	Value      float64   `json:"value"`
	Step       int64     `json:"step"`
	RecordedAt time.Time `json:"recorded_at"`
}

// MetricEntry is a metric point as submitted by a caller. Batch logging
// takes a slice of these; RecordedAt is assigned by the store.
type MetricEntry struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
	Step  int64   `json:"step"`
}

// ArtifactInfo describes a stored artifact without its content.
type ArtifactInfo struct {
	Name        string    `json:"name"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}
