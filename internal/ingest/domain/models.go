// Package domain defines the ingestion pipeline's request, result and
// change shapes.
package domain

import (
	"context"
	"errors"
)

// RawRow is one uploaded report row, as handed over by the upload
// collaborator. Metric values arrive as raw strings; parsing them is the
// validator's job, a non-numeric value is an error, never a zero.
type RawRow struct {
	RepID      string            `json:"representative_id"`
	RepName    string            `json:"representative_name"`
	TeamKind   string            `json:"team_kind"`
	ReportDate string            `json:"report_date"`
	Metrics    map[string]string `json:"metrics"`
}

// RowError reports a validation or processing failure scoped to one row.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ChangeRecord is one detected metric change for a representative.
// Ephemeral: computed per upload and consumed by the dispatcher.
type ChangeRecord struct {
	RepID    string   `json:"representative_id"`
	Metric   string   `json:"metric"`
	Previous *float64 `json:"previous"`
	New      float64  `json:"new"`
	Delta    float64  `json:"delta"`
}

// IngestRequest carries an uploaded batch. UploadedBy is the caller
// identity, passed explicitly rather than read from ambient session state.
type IngestRequest struct {
	UploadedBy string   `json:"uploaded_by"`
	Rows       []RawRow `json:"rows"`
}

// IngestResult is the batch-level outcome. A batch where every row failed
// is still a result carrying only errors, not a failure of the call.
type IngestResult struct {
	ProcessedCount        int        `json:"processed_count"`
	ChangedCount          int        `json:"changed_count"`
	ActionsSubmittedCount int        `json:"actions_submitted_count"`
	Errors                []RowError `json:"errors"`
}

type Service interface {
	Ingest(context.Context, IngestRequest) (IngestResult, error)
}

var (
	ErrInvalidUploader = errors.New("invalid_uploader")
	ErrEmptyBatch      = errors.New("empty_batch")
)
