package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	backfilldomain "github.com/fieldpulse/repboard/internal/backfill/domain"
	"github.com/fieldpulse/repboard/internal/config"
	ingestdomain "github.com/fieldpulse/repboard/internal/ingest/domain"
	obsmetrics "github.com/fieldpulse/repboard/internal/observability/metrics"
	snapshotdomain "github.com/fieldpulse/repboard/internal/snapshot/domain"
	snapshotrepo "github.com/fieldpulse/repboard/internal/snapshot/repository"
)

type fakeIngestService struct {
	result ingestdomain.IngestResult
	err    error
	calls  int
}

func (f *fakeIngestService) Ingest(_ context.Context, _ ingestdomain.IngestRequest) (ingestdomain.IngestResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeBackfillEngine struct {
	status     backfilldomain.Status
	progress   backfilldomain.Progress
	result     *backfilldomain.RunResult
	validation backfilldomain.ValidationResult
	startErr   error
	cancelErr  error
}

func (f *fakeBackfillEngine) Status(_ context.Context) (backfilldomain.Status, error) {
	return f.status, nil
}

func (f *fakeBackfillEngine) Start(_ context.Context) (backfilldomain.Progress, error) {
	return f.progress, f.startErr
}

func (f *fakeBackfillEngine) Run(_ context.Context) (backfilldomain.RunResult, error) {
	if f.result == nil {
		return backfilldomain.RunResult{}, nil
	}
	return *f.result, nil
}

func (f *fakeBackfillEngine) Progress() backfilldomain.Progress { return f.progress }

func (f *fakeBackfillEngine) Result() (backfilldomain.RunResult, bool) {
	if f.result == nil {
		return backfilldomain.RunResult{}, false
	}
	return *f.result, true
}

func (f *fakeBackfillEngine) Cancel() error { return f.cancelErr }
func (f *fakeBackfillEngine) Reset() error  { return nil }

func (f *fakeBackfillEngine) Validate(_ context.Context) (backfilldomain.ValidationResult, error) {
	return f.validation, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&snapshotdomain.MetricSnapshot{}))
	return db
}

func newTestServer(t *testing.T, db *gorm.DB, ingestSvc ingestdomain.Service, eng backfilldomain.Engine) *Server {
	t.Helper()
	reg := obsmetrics.NewRegistry()
	engine := NewEngine(zap.NewNop(), reg, obsmetrics.New(reg))
	return NewServer(ServerParams{
		Gin:          engine,
		Cfg:          config.Config{},
		DB:           db,
		IngestSvc:    ingestSvc,
		BackfillEng:  eng,
		SnapshotRepo: snapshotrepo.Provide(),
	})
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	return w
}

func TestIngestReportReturnsResult(t *testing.T) {
	fake := &fakeIngestService{result: ingestdomain.IngestResult{
		ProcessedCount:        3,
		ChangedCount:          2,
		ActionsSubmittedCount: 3,
		Errors:                []ingestdomain.RowError{},
	}}
	srv := newTestServer(t, newTestDB(t), fake, &fakeBackfillEngine{})

	w := doJSON(t, srv, http.MethodPost, "/v1/reports/ingest", ingestdomain.IngestRequest{
		UploadedBy: "admin@test",
		Rows:       []ingestdomain.RawRow{{RepID: "rep-1"}},
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, fake.calls)

	var got ingestdomain.IngestResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 3, got.ProcessedCount)
	assert.Equal(t, 2, got.ChangedCount)
}

func TestIngestReportMapsDomainErrorsTo400(t *testing.T) {
	for _, domainErr := range []error{ingestdomain.ErrInvalidUploader, ingestdomain.ErrEmptyBatch} {
		srv := newTestServer(t, newTestDB(t), &fakeIngestService{err: domainErr}, &fakeBackfillEngine{})

		w := doJSON(t, srv, http.MethodPost, "/v1/reports/ingest", ingestdomain.IngestRequest{UploadedBy: "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code, "error %v", domainErr)
	}
}

func TestIngestReportRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(t, newTestDB(t), &fakeIngestService{}, &fakeBackfillEngine{})

	req := httptest.NewRequest(http.MethodPost, "/v1/reports/ingest", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetLatestSnapshot(t *testing.T) {
	db := newTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	now := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, snapshotrepo.Provide().Insert(context.Background(), db, &snapshotdomain.MetricSnapshot{
		ID:         node.Generate(),
		RepID:      "rep-1",
		RepName:    "Dana",
		TeamKind:   snapshotdomain.TeamKindER,
		ReportDate: now,
		Metrics:    datatypes.JSONMap{"activity": 70.0},
		CreatedBy:  "admin@test",
		CreatedAt:  now,
		UpdatedAt:  now,
	}))

	srv := newTestServer(t, db, &fakeIngestService{}, &fakeBackfillEngine{})

	w := doJSON(t, srv, http.MethodGet, "/v1/representatives/rep-1/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got snapshotdomain.MetricSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "rep-1", got.RepID)

	w = doJSON(t, srv, http.MethodGet, "/v1/representatives/nobody/latest", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/v1/representatives/rep-1/latest?cycle_number=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSnapshotsPagination(t *testing.T) {
	db := newTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	now := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, snapshotrepo.Provide().Insert(context.Background(), db, &snapshotdomain.MetricSnapshot{
			ID:         node.Generate(),
			RepID:      "rep-1",
			RepName:    "Dana",
			TeamKind:   snapshotdomain.TeamKindER,
			ReportDate: now.AddDate(0, 0, i),
			Metrics:    datatypes.JSONMap{"activity": float64(50 + i)},
			CreatedBy:  "admin@test",
			CreatedAt:  now,
			UpdatedAt:  now,
		}))
	}

	srv := newTestServer(t, db, &fakeIngestService{}, &fakeBackfillEngine{})

	w := doJSON(t, srv, http.MethodGet, "/v1/representatives/rep-1/snapshots?page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var first listSnapshotsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	require.Len(t, first.Snapshots, 2)
	require.NotNil(t, first.PageInfo)
	assert.True(t, first.PageInfo.HasMore)
	require.NotEmpty(t, first.PageInfo.NextPageToken)

	w = doJSON(t, srv, http.MethodGet, "/v1/representatives/rep-1/snapshots?page_size=2&page_token="+first.PageInfo.NextPageToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var second listSnapshotsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	require.Len(t, second.Snapshots, 1)
	assert.False(t, second.PageInfo.HasMore)

	w = doJSON(t, srv, http.MethodGet, "/v1/representatives/rep-1/snapshots?page_token=!!!", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBackfillEndpoints(t *testing.T) {
	eng := &fakeBackfillEngine{
		status:   backfilldomain.Status{NeedsMigration: true, RecordsWithoutCycleInfo: 7, TotalRecords: 10, RecordsWithCycleInfo: 3},
		progress: backfilldomain.Progress{State: backfilldomain.StateRunning, TotalRecords: 7},
		validation: backfilldomain.ValidationResult{
			IsValid: false,
			Issues:  []string{"snapshot 1: missing cycle metadata"},
		},
	}
	srv := newTestServer(t, newTestDB(t), &fakeIngestService{}, eng)

	w := doJSON(t, srv, http.MethodGet, "/v1/backfill/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status backfilldomain.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.NeedsMigration)
	assert.Equal(t, int64(7), status.RecordsWithoutCycleInfo)

	w = doJSON(t, srv, http.MethodPost, "/v1/backfill/run", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/v1/backfill/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var progress backfilldomain.Progress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &progress))
	assert.Equal(t, backfilldomain.StateRunning, progress.State)

	w = doJSON(t, srv, http.MethodGet, "/v1/backfill/result", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "no finished run yet")

	eng.result = &backfilldomain.RunResult{Status: backfilldomain.RunStatus{IsComplete: true, MigratedRecords: 7}}
	w = doJSON(t, srv, http.MethodGet, "/v1/backfill/result", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var result backfilldomain.RunResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Status.IsComplete)

	w = doJSON(t, srv, http.MethodPost, "/v1/backfill/validate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var validation backfilldomain.ValidationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &validation))
	assert.False(t, validation.IsValid)
	assert.Len(t, validation.Issues, 1)
}

func TestBackfillConflictsMapTo409(t *testing.T) {
	eng := &fakeBackfillEngine{
		startErr:  backfilldomain.ErrRunInProgress,
		cancelErr: backfilldomain.ErrNotRunning,
	}
	srv := newTestServer(t, newTestDB(t), &fakeIngestService{}, eng)

	w := doJSON(t, srv, http.MethodPost, "/v1/backfill/run", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, srv, http.MethodPost, "/v1/backfill/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	eng.startErr = backfilldomain.ErrLockHeld
	w = doJSON(t, srv, http.MethodPost, "/v1/backfill/run", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}
