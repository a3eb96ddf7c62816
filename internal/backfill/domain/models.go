// Package domain defines the backfill job's state machine and reporting
// shapes.
package domain

import (
	"context"
	"errors"
	"time"
)

// RunState is the backfill job's lifecycle state. The only transition out
// of a terminal state is a reset back to NotStarted.
type RunState string

const (
	StateNotStarted RunState = "not_started"
	StateRunning    RunState = "running"
	StateCompleted  RunState = "completed"
	StateFailed     RunState = "failed"
	StateCancelled  RunState = "cancelled"
)

// Terminal reports whether no further transitions (other than reset) exist.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Progress describes an in-flight or finished run. It is written only by
// the run loop and handed out as a copy, never by reference.
type Progress struct {
	RunID                  string    `json:"run_id,omitempty"`
	State                  RunState  `json:"state"`
	TotalRecords           int       `json:"total_records"`
	BatchIndex             int       `json:"batch_index"`
	TotalBatches           int       `json:"total_batches"`
	RecordsMigrated        int       `json:"records_migrated"`
	RecordsFailed          int       `json:"records_failed"`
	Errors                 []string  `json:"errors"`
	EstimatedTimeRemaining float64   `json:"estimated_time_remaining_seconds"`
	StartedAt              time.Time `json:"started_at"`
	FinishedAt             time.Time `json:"finished_at"`
}

// Status answers "does anything still need migrating".
type Status struct {
	NeedsMigration          bool  `json:"needs_migration"`
	RecordsWithoutCycleInfo int64 `json:"records_without_cycle_info"`
	RecordsWithCycleInfo    int64 `json:"records_with_cycle_info"`
	TotalRecords            int64 `json:"total_records"`
}

// RunStatus is the outcome section of a run result. A run that attempted
// every batch is complete even when individual records failed.
type RunStatus struct {
	IsComplete      bool     `json:"is_complete"`
	MigratedRecords int      `json:"migrated_records"`
	FailedRecords   int      `json:"failed_records"`
	Errors          []string `json:"errors"`
}

// PerformanceMetrics reports observed throughput for a finished run.
type PerformanceMetrics struct {
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
	RecordsPerSecond     float64 `json:"records_per_second"`
}

// RunResult is the final report of one backfill run.
type RunResult struct {
	Status             RunStatus          `json:"status"`
	PerformanceMetrics PerformanceMetrics `json:"performance_metrics"`
	Progress           Progress           `json:"progress"`
}

// ValidationResult is the outcome of the read-only consistency pass.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Issues  []string `json:"issues"`
}

// Engine drives the cycle-metadata backfill over the snapshot store.
type Engine interface {
	// Status counts snapshots with and without cycle metadata.
	Status(ctx context.Context) (Status, error)

	// Start launches a run asynchronously. It fails when a run is already
	// in progress or another replica holds the run lock.
	Start(ctx context.Context) (Progress, error)

	// Run executes a full run synchronously and returns its result.
	Run(ctx context.Context) (RunResult, error)

	// Progress returns a snapshot of the current (or last) run's progress.
	Progress() Progress

	// Result returns the last finished run's result, if any.
	Result() (RunResult, bool)

	// Cancel requests cooperative cancellation, honored between batches.
	Cancel() error

	// Reset returns a terminal engine to NotStarted.
	Reset() error

	// Validate re-scans all snapshots and reports cycle-metadata issues.
	// It never mutates data.
	Validate(ctx context.Context) (ValidationResult, error)
}

var (
	ErrRunInProgress = errors.New("backfill_run_in_progress")
	ErrNotRunning    = errors.New("backfill_not_running")
	ErrLockHeld      = errors.New("backfill_lock_held")
)
