package service

import (
	ingestdomain "github.com/fieldpulse/repboard/internal/ingest/domain"
	snapshotdomain "github.com/fieldpulse/repboard/internal/snapshot/domain"
)

// diffMetrics compares a validated candidate against the representative's
// prior snapshot (nil when no history exists) and returns one ChangeRecord
// per genuinely changed metric.
//
// Comparison runs over the candidate's team-kind metric set; when a
// representative moves teams between uploads, the new team's rules win and
// metrics only tracked by the old team are ignored. Values are compared
// with exact float64 equality on purpose: re-uploading an identical report
// must produce zero changes, which is what makes ingestion idempotent.
func diffMetrics(kind snapshotdomain.TeamKind, prior *snapshotdomain.MetricSnapshot, cand candidate) []ingestdomain.ChangeRecord {
	var changes []ingestdomain.ChangeRecord

	for _, name := range snapshotdomain.AllowedMetrics(kind) {
		newValue, reported := cand.metrics[name]
		if !reported {
			continue
		}

		priorValue, hasPrior := prior.MetricValue(name)
		if hasPrior && priorValue == newValue {
			continue
		}

		change := ingestdomain.ChangeRecord{
			RepID:  cand.repID,
			Metric: name,
			New:    newValue,
			Delta:  newValue,
		}
		if hasPrior {
			previous := priorValue
			change.Previous = &previous
			change.Delta = newValue - priorValue
		}
		changes = append(changes, change)
	}
	return changes
}
