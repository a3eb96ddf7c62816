package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fieldpulse/repboard/internal/actionlog"
	"github.com/fieldpulse/repboard/internal/config"
	"github.com/fieldpulse/repboard/internal/cycle"
	ingestdomain "github.com/fieldpulse/repboard/internal/ingest/domain"
	obsmetrics "github.com/fieldpulse/repboard/internal/observability/metrics"
	snapshotdomain "github.com/fieldpulse/repboard/internal/snapshot/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Config     config.Config
	Repo       snapshotdomain.Repository
	Dispatcher *actionlog.Dispatcher
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

// Service runs the upload pipeline: validate, resolve latest state, diff,
// write the new snapshot, then dispatch action logs for detected changes.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       snapshotdomain.Repository
	dispatcher *actionlog.Dispatcher
	metrics    *obsmetrics.Metrics

	workerLimit int
	cycleEpoch  time.Time
	cycleDays   int
}

func New(p Params) ingestdomain.Service {
	workerLimit := p.Config.Ingest.WorkerLimit
	if workerLimit < 1 {
		workerLimit = 1
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ingest.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		dispatcher:  p.Dispatcher,
		metrics:     p.Metrics,
		workerLimit: workerLimit,
		cycleEpoch:  p.Config.Backfill.CycleEpoch,
		cycleDays:   p.Config.Backfill.CycleLengthDays,
	}
}

// Ingest processes one uploaded batch. Rows for the same representative run
// sequentially in upload order; distinct representatives run concurrently
// under the worker limit, since their diff/dispatch paths are independent.
// Row-level failures are collected into the result and never abort the
// batch.
func (s *Service) Ingest(ctx context.Context, req ingestdomain.IngestRequest) (ingestdomain.IngestResult, error) {
	uploadedBy := strings.TrimSpace(req.UploadedBy)
	if uploadedBy == "" {
		return ingestdomain.IngestResult{}, ingestdomain.ErrInvalidUploader
	}
	if len(req.Rows) == 0 {
		return ingestdomain.IngestResult{}, ingestdomain.ErrEmptyBatch
	}

	candidates, rowErrors := validateRows(req.Rows)

	var (
		mu     sync.Mutex
		result = ingestdomain.IngestResult{Errors: rowErrors}
	)
	s.metrics.AddRowsRejected(len(req.Rows) - len(candidates))

	// Group rows per representative, keeping first-seen order.
	grouped := make(map[string][]candidate)
	var order []string
	for _, cand := range candidates {
		if _, seen := grouped[cand.repID]; !seen {
			order = append(order, cand.repID)
		}
		grouped[cand.repID] = append(grouped[cand.repID], cand)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workerLimit)
	for _, repID := range order {
		rows := grouped[repID]
		g.Go(func() error {
			s.processRepresentative(gctx, uploadedBy, rows, &mu, &result)
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.AddRowsProcessed(result.ProcessedCount)
	s.log.Info("batch ingested",
		zap.String("uploaded_by", uploadedBy),
		zap.Int("rows", len(req.Rows)),
		zap.Int("processed", result.ProcessedCount),
		zap.Int("changed", result.ChangedCount),
		zap.Int("actions_submitted", result.ActionsSubmittedCount),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// processRepresentative handles one representative's rows in order. A store
// failure (resolution or write) aborts the rest of this representative's
// rows only; a dispatch failure is recorded and processing continues, since
// the snapshot is already durable.
func (s *Service) processRepresentative(ctx context.Context, uploadedBy string, rows []candidate, mu *sync.Mutex, result *ingestdomain.IngestResult) {
	for i, cand := range rows {
		prior, err := s.repo.Latest(ctx, s.db, cand.repID, nil)
		if err != nil {
			s.recordStoreFailure(mu, result, rows[i:], "representative_id", fmt.Sprintf("resolving latest state: %v", err))
			return
		}

		changes := diffMetrics(cand.teamKind, prior, cand)

		snap := s.buildSnapshot(uploadedBy, cand)
		if err := s.repo.Insert(ctx, s.db, snap); err != nil {
			s.recordStoreFailure(mu, result, rows[i:], "representative_id", fmt.Sprintf("writing snapshot: %v", err))
			return
		}

		mu.Lock()
		result.ProcessedCount++
		if len(changes) > 0 {
			result.ChangedCount++
		}
		mu.Unlock()
		s.metrics.AddChangesDetected(len(changes))

		if len(changes) == 0 {
			continue
		}

		dispatched := s.dispatcher.Dispatch(ctx, changes)
		mu.Lock()
		result.ActionsSubmittedCount += dispatched.Submitted
		for _, failure := range dispatched.Failures {
			result.Errors = append(result.Errors, ingestdomain.RowError{
				Row:     cand.rowIndex,
				Field:   failure.Change.Metric,
				Message: fmt.Sprintf("action dispatch failed: %v", failure.Err),
			})
		}
		mu.Unlock()
	}
}

func (s *Service) buildSnapshot(uploadedBy string, cand candidate) *snapshotdomain.MetricSnapshot {
	now := time.Now().UTC()
	metrics := make(datatypes.JSONMap, len(cand.metrics))
	for name, value := range cand.metrics {
		metrics[name] = value
	}

	snap := &snapshotdomain.MetricSnapshot{
		ID:         s.genID.Generate(),
		RepID:      cand.repID,
		RepName:    cand.repName,
		TeamKind:   cand.teamKind,
		ReportDate: cand.reportDate,
		Metrics:    metrics,
		CreatedBy:  uploadedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// New snapshots are stamped at ingest time; the backfill engine only
	// exists for records that predate cycle tracking.
	if info, err := cycle.Compute(cand.reportDate, s.cycleEpoch, s.cycleDays); err == nil {
		snap.CycleNumber = &info.Number
		snap.CycleStartDate = &info.Start
		snap.CycleEndDate = &info.End
		snap.DayInCycle = &info.Day
	}
	return snap
}

func (s *Service) recordStoreFailure(mu *sync.Mutex, result *ingestdomain.IngestResult, remaining []candidate, field, message string) {
	mu.Lock()
	defer mu.Unlock()
	for _, cand := range remaining {
		result.Errors = append(result.Errors, ingestdomain.RowError{
			Row:     cand.rowIndex,
			Field:   field,
			Message: message,
		})
	}
}
