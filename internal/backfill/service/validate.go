package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	backfilldomain "github.com/fieldpulse/repboard/internal/backfill/domain"
)

const validatePageSize = 500

// Validate re-scans every snapshot and reports missing or internally
// inconsistent cycle metadata. Read-only by contract.
func (e *Engine) Validate(ctx context.Context) (backfilldomain.ValidationResult, error) {
	issues := []string{}
	var afterID snowflake.ID

	for {
		page, err := e.repo.ListPage(ctx, e.db, afterID, validatePageSize)
		if err != nil {
			return backfilldomain.ValidationResult{}, fmt.Errorf("scan snapshots: %w", err)
		}
		if len(page) == 0 {
			break
		}
		afterID = page[len(page)-1].ID

		for _, snap := range page {
			if !snap.HasCycleInfo() {
				if snap.CycleNumber != nil || snap.CycleStartDate != nil || snap.CycleEndDate != nil || snap.DayInCycle != nil {
					issues = append(issues, fmt.Sprintf("snapshot %s: partial cycle metadata", snap.ID))
				} else {
					issues = append(issues, fmt.Sprintf("snapshot %s: missing cycle metadata", snap.ID))
				}
				continue
			}

			if *snap.CycleNumber < 1 {
				issues = append(issues, fmt.Sprintf("snapshot %s: cycle number %d out of range", snap.ID, *snap.CycleNumber))
			}
			if *snap.DayInCycle < 1 || *snap.DayInCycle > e.cfg.CycleLengthDays {
				issues = append(issues, fmt.Sprintf("snapshot %s: day in cycle %d outside [1, %d]", snap.ID, *snap.DayInCycle, e.cfg.CycleLengthDays))
			}
			if snap.CycleEndDate.Before(*snap.CycleStartDate) {
				issues = append(issues, fmt.Sprintf("snapshot %s: cycle end date precedes start date", snap.ID))
			}
			expectedEnd := snap.CycleStartDate.AddDate(0, 0, e.cfg.CycleLengthDays-1)
			if !snap.CycleEndDate.Equal(expectedEnd) {
				issues = append(issues, fmt.Sprintf("snapshot %s: cycle span does not match configured length %d", snap.ID, e.cfg.CycleLengthDays))
			}
		}
	}

	return backfilldomain.ValidationResult{
		IsValid: len(issues) == 0,
		Issues:  issues,
	}, nil
}
