package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	backfilldomain "github.com/fieldpulse/repboard/internal/backfill/domain"
	"github.com/fieldpulse/repboard/internal/clock"
	"github.com/fieldpulse/repboard/internal/config"
	"github.com/fieldpulse/repboard/internal/cycle"
	"github.com/fieldpulse/repboard/internal/joblock"
	obsmetrics "github.com/fieldpulse/repboard/internal/observability/metrics"
	snapshotdomain "github.com/fieldpulse/repboard/internal/snapshot/domain"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const runLockKey = "repboard:backfill:run"

// runLocker is the mutual-exclusion surface the engine needs from joblock.
type runLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	Clock   clock.Clock
	Repo    snapshotdomain.Repository
	Locker  *joblock.Locker     `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Engine migrates cycle metadata onto historical snapshots in fixed-size
// batches, sequentially, with cooperative cancellation at batch boundaries.
type Engine struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	repo    snapshotdomain.Repository
	locker  runLocker
	metrics *obsmetrics.Metrics

	cfg config.BackfillConfig

	mu         sync.Mutex
	progress   backfilldomain.Progress
	cancelled  bool
	lastResult *backfilldomain.RunResult
}

func New(p Params) backfilldomain.Engine {
	cfg := p.Config.Backfill
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	return &Engine{
		db:      p.DB,
		log:     p.Log.Named("backfill.engine"),
		clock:   p.Clock,
		repo:    p.Repo,
		locker:  p.Locker,
		metrics: p.Metrics,
		cfg:     cfg,
		progress: backfilldomain.Progress{
			State: backfilldomain.StateNotStarted,
		},
	}
}

func (e *Engine) Status(ctx context.Context) (backfilldomain.Status, error) {
	missing, err := e.repo.CountMissingCycle(ctx, e.db)
	if err != nil {
		return backfilldomain.Status{}, fmt.Errorf("count snapshots missing cycle info: %w", err)
	}
	migrated, err := e.repo.CountWithCycle(ctx, e.db)
	if err != nil {
		return backfilldomain.Status{}, fmt.Errorf("count migrated snapshots: %w", err)
	}
	return backfilldomain.Status{
		NeedsMigration:          missing > 0,
		RecordsWithoutCycleInfo: missing,
		RecordsWithCycleInfo:    migrated,
		TotalRecords:            missing + migrated,
	}, nil
}

func (e *Engine) Start(ctx context.Context) (backfilldomain.Progress, error) {
	e.mu.Lock()
	if e.progress.State == backfilldomain.StateRunning {
		e.mu.Unlock()
		return backfilldomain.Progress{}, backfilldomain.ErrRunInProgress
	}
	e.mu.Unlock()

	go func() {
		// The run outlives the triggering request.
		if _, err := e.Run(context.Background()); err != nil {
			e.log.Warn("backfill run not started", zap.Error(err))
		}
	}()

	return e.Progress(), nil
}

func (e *Engine) Run(ctx context.Context) (backfilldomain.RunResult, error) {
	runID := uuid.NewString()

	e.mu.Lock()
	if e.progress.State == backfilldomain.StateRunning {
		e.mu.Unlock()
		return backfilldomain.RunResult{}, backfilldomain.ErrRunInProgress
	}
	prev := copyProgress(e.progress)
	e.cancelled = false
	e.progress = backfilldomain.Progress{
		RunID:     runID,
		State:     backfilldomain.StateRunning,
		Errors:    []string{},
		StartedAt: e.clock.Now(),
	}
	e.mu.Unlock()

	token, acquired, err := e.locker.TryLock(ctx, runLockKey, e.cfg.LockTTL)
	if err != nil {
		return e.finish(backfilldomain.StateFailed, fmt.Sprintf("acquire run lock: %v", err))
	}
	if !acquired {
		// Losing the lock race must not clobber the previous run's
		// visible progress.
		e.mu.Lock()
		e.progress = prev
		e.mu.Unlock()
		return backfilldomain.RunResult{}, backfilldomain.ErrLockHeld
	}
	defer func() {
		if releaseErr := e.locker.Release(context.WithoutCancel(ctx), runLockKey, token); releaseErr != nil {
			e.log.Warn("release run lock", zap.Error(releaseErr))
		}
	}()

	log := e.log.With(zap.String("run_id", runID))

	total, err := e.repo.CountMissingCycle(ctx, e.db)
	if err != nil {
		return e.finish(backfilldomain.StateFailed, fmt.Sprintf("count snapshots missing cycle info: %v", err))
	}
	totalBatches := int((total + int64(e.cfg.BatchSize) - 1) / int64(e.cfg.BatchSize))

	e.mu.Lock()
	e.progress.TotalRecords = int(total)
	e.progress.TotalBatches = totalBatches
	e.mu.Unlock()

	log.Info("backfill started",
		zap.Int64("total_records", total),
		zap.Int("total_batches", totalBatches),
		zap.Int("batch_size", e.cfg.BatchSize),
	)

	// Bounded to the batch count captured at start. Snapshots that lose
	// their cycle info after the count (a concurrent ingest whose cycle
	// computation failed) stay within the progress totals of the next run.
	var afterID snowflake.ID
	for i := 0; i < totalBatches; i++ {
		if e.isCancelled() {
			log.Info("backfill cancelled")
			return e.finish(backfilldomain.StateCancelled, "")
		}

		batch, err := e.repo.ListMissingCycle(ctx, e.db, afterID, e.cfg.BatchSize)
		if err != nil {
			return e.finish(backfilldomain.StateFailed, fmt.Sprintf("load batch: %v", err))
		}
		if len(batch) == 0 {
			break
		}
		afterID = batch[len(batch)-1].ID

		e.processBatch(ctx, batch)
	}

	log.Info("backfill completed",
		zap.Int("migrated", e.Progress().RecordsMigrated),
		zap.Int("failed", e.Progress().RecordsFailed),
	)
	return e.finish(backfilldomain.StateCompleted, "")
}

// processBatch migrates one batch. Per-record failures are recorded and the
// batch keeps going; only store-level errors abort a run, and those surface
// from the batch query in the caller.
func (e *Engine) processBatch(ctx context.Context, batch []*snapshotdomain.MetricSnapshot) {
	migrated := 0
	failed := 0
	var errMessages []string

	for _, snap := range batch {
		info, err := cycle.Compute(snap.ReportDate, e.cfg.CycleEpoch, e.cfg.CycleLengthDays)
		if err != nil {
			failed++
			errMessages = append(errMessages, fmt.Sprintf("snapshot %s: %v", snap.ID, err))
			continue
		}
		if err := e.repo.UpdateCycleFields(ctx, e.db, snap.ID, info); err != nil {
			failed++
			errMessages = append(errMessages, fmt.Sprintf("snapshot %s: %v", snap.ID, err))
			continue
		}
		migrated++
	}

	e.metrics.AddBackfillMigrated(migrated)
	e.metrics.AddBackfillFailed(failed)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress.BatchIndex++
	e.progress.RecordsMigrated += migrated
	e.progress.RecordsFailed += failed
	e.progress.Errors = append(e.progress.Errors, errMessages...)

	// Recomputed after every batch: throughput varies under load, so a
	// one-time estimate goes stale.
	processed := e.progress.RecordsMigrated + e.progress.RecordsFailed
	elapsed := e.clock.Now().Sub(e.progress.StartedAt).Seconds()
	if processed > 0 && elapsed > 0 {
		rate := float64(processed) / elapsed
		remaining := e.progress.TotalRecords - processed
		if remaining < 0 {
			remaining = 0
		}
		e.progress.EstimatedTimeRemaining = float64(remaining) / rate
	} else {
		e.progress.EstimatedTimeRemaining = 0
	}
}

func (e *Engine) Progress() backfilldomain.Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyProgress(e.progress)
}

func (e *Engine) Result() (backfilldomain.RunResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastResult == nil {
		return backfilldomain.RunResult{}, false
	}
	return *e.lastResult, true
}

func (e *Engine) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.progress.State != backfilldomain.StateRunning {
		return backfilldomain.ErrNotRunning
	}
	e.cancelled = true
	return nil
}

func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.progress.State == backfilldomain.StateRunning {
		return backfilldomain.ErrRunInProgress
	}
	e.progress = backfilldomain.Progress{State: backfilldomain.StateNotStarted}
	e.cancelled = false
	e.lastResult = nil
	return nil
}

func (e *Engine) isCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// finish moves the run into a terminal state and builds its result.
func (e *Engine) finish(state backfilldomain.RunState, fatalMessage string) (backfilldomain.RunResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.progress.State = state
	e.progress.FinishedAt = e.clock.Now()
	e.progress.EstimatedTimeRemaining = 0
	if fatalMessage != "" {
		e.progress.Errors = append(e.progress.Errors, fatalMessage)
		e.log.Error("backfill failed", zap.String("reason", fatalMessage))
	}

	duration := e.progress.FinishedAt.Sub(e.progress.StartedAt).Seconds()
	processed := e.progress.RecordsMigrated + e.progress.RecordsFailed
	rate := 0.0
	if duration > 0 {
		rate = float64(processed) / duration
	}

	result := backfilldomain.RunResult{
		Status: backfilldomain.RunStatus{
			IsComplete:      state == backfilldomain.StateCompleted,
			MigratedRecords: e.progress.RecordsMigrated,
			FailedRecords:   e.progress.RecordsFailed,
			Errors:          append([]string(nil), e.progress.Errors...),
		},
		PerformanceMetrics: backfilldomain.PerformanceMetrics{
			TotalDurationSeconds: duration,
			RecordsPerSecond:     rate,
		},
		Progress: copyProgress(e.progress),
	}
	e.lastResult = &result

	if state == backfilldomain.StateFailed {
		return result, fmt.Errorf("backfill run failed: %s", fatalMessage)
	}
	return result, nil
}

func copyProgress(p backfilldomain.Progress) backfilldomain.Progress {
	copied := p
	copied.Errors = append([]string(nil), p.Errors...)
	return copied
}
