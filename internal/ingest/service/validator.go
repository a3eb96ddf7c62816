package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	ingestdomain "github.com/fieldpulse/repboard/internal/ingest/domain"
	snapshotdomain "github.com/fieldpulse/repboard/internal/snapshot/domain"
)

const reportDateLayout = "2006-01-02"

// candidate is a validated row, normalized and ready for diffing.
type candidate struct {
	rowIndex   int
	repID      string
	repName    string
	teamKind   snapshotdomain.TeamKind
	reportDate time.Time
	metrics    map[string]float64
}

// validateRows checks a batch of raw rows against the team-kind metric
// rules. Validation is all-or-nothing per row: a row with any field error is
// excluded and reported, without blocking other rows. Metrics irrelevant to
// the row's team kind are dropped even when present.
func validateRows(rows []ingestdomain.RawRow) ([]candidate, []ingestdomain.RowError) {
	candidates := make([]candidate, 0, len(rows))
	var rowErrors []ingestdomain.RowError

	for i, row := range rows {
		cand, errs := validateRow(i, row)
		if len(errs) > 0 {
			rowErrors = append(rowErrors, errs...)
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates, rowErrors
}

func validateRow(index int, row ingestdomain.RawRow) (candidate, []ingestdomain.RowError) {
	var errs []ingestdomain.RowError
	fail := func(field, message string) {
		errs = append(errs, ingestdomain.RowError{Row: index, Field: field, Message: message})
	}

	repID := strings.TrimSpace(row.RepID)
	if repID == "" {
		fail("representative_id", "representative id is required")
	}
	repName := strings.TrimSpace(row.RepName)
	if repName == "" {
		fail("representative_name", "representative name is required")
	}

	kind, ok := snapshotdomain.ParseTeamKind(strings.TrimSpace(row.TeamKind))
	if !ok {
		fail("team_kind", fmt.Sprintf("unknown team kind %q", row.TeamKind))
		// Without a team kind there is no metric rule set to check against.
		return candidate{}, errs
	}

	reportDate, err := time.ParseInLocation(reportDateLayout, strings.TrimSpace(row.ReportDate), time.UTC)
	if err != nil {
		fail("report_date", fmt.Sprintf("invalid report date %q, expected YYYY-MM-DD", row.ReportDate))
	}

	metrics := make(map[string]float64)
	for _, name := range snapshotdomain.AllowedMetrics(kind) {
		raw, present := row.Metrics[name]
		if !present {
			continue
		}
		value, parseErr := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if parseErr != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			fail(name, fmt.Sprintf("metric %s must be numeric, got %q", name, raw))
			continue
		}
		metrics[name] = value
	}

	for _, name := range snapshotdomain.RequiredMetrics(kind) {
		if _, present := metrics[name]; !present {
			if _, rawPresent := row.Metrics[name]; rawPresent {
				// Already reported as non-numeric above.
				continue
			}
			fail(name, fmt.Sprintf("metric %s is required for team kind %s", name, kind))
		}
	}

	if len(errs) > 0 {
		return candidate{}, errs
	}
	return candidate{
		rowIndex:   index,
		repID:      repID,
		repName:    repName,
		teamKind:   kind,
		reportDate: reportDate,
		metrics:    metrics,
	}, nil
}
