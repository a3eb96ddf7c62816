package actionlog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldpulse/repboard/internal/config"
	ingestdomain "github.com/fieldpulse/repboard/internal/ingest/domain"
)

type scriptedClient struct {
	mu       sync.Mutex
	errs     []error
	attempts int
	keys     []string
	subs     []Submission
}

func (c *scriptedClient) Submit(_ context.Context, key string, sub Submission) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.attempts < len(c.errs) {
		err = c.errs[c.attempts]
	}
	c.attempts++
	c.keys = append(c.keys, key)
	if err != nil {
		return err
	}
	c.subs = append(c.subs, sub)
	return nil
}

func newTestDispatcher(client Client, maxAttempts int) *Dispatcher {
	return NewDispatcher(DispatcherParams{
		Config: config.Config{
			Platform: config.PlatformConfig{
				MaxAttempts:    maxAttempts,
				InitialBackoff: time.Millisecond,
			},
		},
		Client: client,
		Log:    zap.NewNop(),
	})
}

func activityChange(delta float64) ingestdomain.ChangeRecord {
	return ingestdomain.ChangeRecord{
		RepID:  "rep-1",
		Metric: "activity",
		New:    70,
		Delta:  delta,
	}
}

func TestDispatchRetriesServerErrorsUntilSuccess(t *testing.T) {
	client := &scriptedClient{errs: []error{
		&StatusError{Code: 500},
		&StatusError{Code: 503},
		nil,
	}}
	d := newTestDispatcher(client, 4)

	result := d.Dispatch(context.Background(), []ingestdomain.ChangeRecord{activityChange(5)})

	assert.Equal(t, 1, result.Submitted)
	assert.Empty(t, result.Failures)
	assert.Equal(t, 3, client.attempts)

	// One logical change, one idempotency key across every retry.
	require.Len(t, client.keys, 3)
	assert.Equal(t, client.keys[0], client.keys[1])
	assert.Equal(t, client.keys[0], client.keys[2])

	require.Len(t, client.subs, 1)
	assert.Equal(t, "log_activity_delta", client.subs[0].ActionID)
	assert.Equal(t, 5.0, client.subs[0].Attributes.Delta)
}

func TestDispatchDoesNotRetryClientErrors(t *testing.T) {
	client := &scriptedClient{errs: []error{&StatusError{Code: 422}}}
	d := newTestDispatcher(client, 4)

	result := d.Dispatch(context.Background(), []ingestdomain.ChangeRecord{activityChange(5)})

	assert.Equal(t, 0, result.Submitted)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 1, client.attempts, "4xx is terminal, never retried")
}

func TestDispatchRetriesRateLimits(t *testing.T) {
	client := &scriptedClient{errs: []error{&StatusError{Code: 429}, nil}}
	d := newTestDispatcher(client, 4)

	result := d.Dispatch(context.Background(), []ingestdomain.ChangeRecord{activityChange(5)})

	assert.Equal(t, 1, result.Submitted)
	assert.Equal(t, 2, client.attempts)
}

func TestDispatchGivesUpAfterMaxAttempts(t *testing.T) {
	client := &scriptedClient{errs: []error{
		&StatusError{Code: 500},
		&StatusError{Code: 500},
		&StatusError{Code: 500},
	}}
	d := newTestDispatcher(client, 3)

	result := d.Dispatch(context.Background(), []ingestdomain.ChangeRecord{activityChange(5)})

	assert.Equal(t, 0, result.Submitted)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 3, client.attempts)
	assert.Equal(t, "activity", result.Failures[0].Change.Metric)
}

func TestDispatchDedupesRepMetricPairs(t *testing.T) {
	client := &scriptedClient{}
	d := newTestDispatcher(client, 1)

	result := d.Dispatch(context.Background(), []ingestdomain.ChangeRecord{
		activityChange(5),
		activityChange(7),
		{RepID: "rep-2", Metric: "activity", New: 10, Delta: 10},
	})

	assert.Equal(t, 2, result.Submitted)
	assert.Equal(t, 2, client.attempts)
}

func TestDispatchUnknownMetricFailsWithoutCalls(t *testing.T) {
	client := &scriptedClient{}
	d := newTestDispatcher(client, 3)

	result := d.Dispatch(context.Background(), []ingestdomain.ChangeRecord{
		{RepID: "rep-1", Metric: "charisma", Delta: 1},
	})

	require.Len(t, result.Failures, 1)
	assert.ErrorIs(t, result.Failures[0].Err, ErrUnknownMetric)
	assert.Equal(t, 0, client.attempts)
}
