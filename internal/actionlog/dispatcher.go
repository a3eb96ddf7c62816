package actionlog

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fieldpulse/repboard/internal/config"
	ingestdomain "github.com/fieldpulse/repboard/internal/ingest/domain"
	obsmetrics "github.com/fieldpulse/repboard/internal/observability/metrics"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Failure is one change that could not be delivered after exhausting retries.
type Failure struct {
	Change ingestdomain.ChangeRecord
	Err    error
}

// Result summarizes one dispatch call.
type Result struct {
	Submitted int
	Failures  []Failure
}

type DispatcherParams struct {
	fx.In

	Config  config.Config
	Client  Client
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Dispatcher maps detected changes to action-log submissions with bounded,
// backed-off retries. It guarantees at most one logical submission per
// (representative, metric) within a single Dispatch call: each change gets
// one idempotency key, reused across every retry of that change.
type Dispatcher struct {
	client         Client
	log            *zap.Logger
	metrics        *obsmetrics.Metrics
	maxAttempts    int
	initialBackoff time.Duration
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	maxAttempts := p.Config.Platform.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	initial := p.Config.Platform.InitialBackoff
	if initial <= 0 {
		initial = 250 * time.Millisecond
	}
	return &Dispatcher{
		client:         p.Client,
		log:            p.Log.Named("actionlog.dispatcher"),
		metrics:        p.Metrics,
		maxAttempts:    maxAttempts,
		initialBackoff: initial,
	}
}

// Dispatch submits one action per change. Failures are collected, never
// propagated as a call-level error: by the time changes reach the
// dispatcher the snapshot is already written, and a delivery failure is
// degraded service, not data loss.
func (d *Dispatcher) Dispatch(ctx context.Context, changes []ingestdomain.ChangeRecord) Result {
	var result Result
	seen := make(map[string]struct{}, len(changes))

	for _, change := range changes {
		dedupeKey := change.RepID + "\x00" + change.Metric
		if _, dup := seen[dedupeKey]; dup {
			continue
		}
		seen[dedupeKey] = struct{}{}

		if err := d.submitWithRetry(ctx, change); err != nil {
			d.metrics.IncActionFailed()
			result.Failures = append(result.Failures, Failure{Change: change, Err: err})
			continue
		}
		d.metrics.IncActionSubmitted()
		result.Submitted++
	}
	return result
}

func (d *Dispatcher) submitWithRetry(ctx context.Context, change ingestdomain.ChangeRecord) error {
	actionID, ok := ActionIDForMetric(change.Metric)
	if !ok {
		return ErrUnknownMetric
	}

	sub := Submission{
		ActionID:         actionID,
		RepresentativeID: change.RepID,
		Attributes:       Attributes{Delta: change.Delta},
	}
	// One key per logical change. A retried attempt reuses it, so the
	// platform can collapse duplicate deliveries of the same change.
	key := uuid.NewString()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = d.initialBackoff

	start := time.Now()
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		d.metrics.IncActionAttempt()
		submitErr := d.client.Submit(ctx, key, sub)
		if submitErr == nil {
			return struct{}{}, nil
		}
		var statusErr *StatusError
		if errors.As(submitErr, &statusErr) && !statusErr.Retryable() {
			return struct{}{}, backoff.Permanent(submitErr)
		}
		return struct{}{}, submitErr
	},
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(d.maxAttempts)),
	)
	d.metrics.ObserveDispatch(time.Since(start))

	if err != nil {
		d.log.Warn("action log delivery failed",
			zap.String("representative_id", change.RepID),
			zap.String("metric", change.Metric),
			zap.Int("max_attempts", d.maxAttempts),
			zap.Error(err),
		)
	}
	return err
}
