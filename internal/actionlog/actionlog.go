// Package actionlog delivers metric changes to the external gamification
// platform as action-log calls.
package actionlog

import (
	"context"
	"errors"
	"fmt"

	snapshotdomain "github.com/fieldpulse/repboard/internal/snapshot/domain"
)

// Attributes is the action payload. The platform applies deltas additively,
// so the signed delta is submitted, not the absolute value.
type Attributes struct {
	Delta float64 `json:"delta"`
}

// Submission is one outbound action-log call.
type Submission struct {
	ActionID         string     `json:"actionId"`
	RepresentativeID string     `json:"representativeId"`
	Attributes       Attributes `json:"attributes"`
}

// Client submits one action log. key is an idempotency token that stays
// stable across retries of the same logical submission.
type Client interface {
	Submit(ctx context.Context, key string, sub Submission) error
}

// StatusError reports a non-2xx platform response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("platform returned status %d", e.Code)
}

// Retryable reports whether the response class is worth retrying.
// Client errors are terminal: resubmitting the same payload cannot succeed.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == 429
}

var ErrUnknownMetric = errors.New("unknown_metric_action")

// actionIDs is the static metric-to-action mapping. Action identifiers are
// fixed on the platform side and never inferred.
var actionIDs = map[string]string{
	snapshotdomain.MetricActivity:      "log_activity_delta",
	snapshotdomain.MetricConversion:    "log_conversion_delta",
	snapshotdomain.MetricUnitsPerAsset: "log_units_per_asset_delta",
	snapshotdomain.MetricQuality:       "log_quality_delta",
}

// ActionIDForMetric resolves the fixed action identifier for a metric name.
func ActionIDForMetric(metric string) (string, bool) {
	id, ok := actionIDs[metric]
	return id, ok
}
