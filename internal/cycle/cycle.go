// Package cycle computes evaluation-cycle assignments for report dates.
//
// Cycles are fixed-length, back-to-back periods counted from a configured
// epoch date. Cycle numbers are 1-based, as is the day within a cycle.
package cycle

import (
	"errors"
	"time"
)

var (
	ErrInvalidLength = errors.New("invalid_cycle_length")
	ErrBeforeEpoch   = errors.New("report_date_before_epoch")
)

// Info is the cycle assignment for a single report date.
type Info struct {
	Number int
	Start  time.Time
	End    time.Time
	Day    int
}

// Compute assigns reportDate to its cycle given the epoch (day 1 of cycle 1)
// and the cycle length in days. Dates are compared at UTC day granularity.
func Compute(reportDate, epoch time.Time, lengthDays int) (Info, error) {
	if lengthDays <= 0 {
		return Info{}, ErrInvalidLength
	}

	day := truncateToDay(reportDate)
	start := truncateToDay(epoch)
	if day.Before(start) {
		return Info{}, ErrBeforeEpoch
	}

	daysSince := int(day.Sub(start).Hours() / 24)
	number := daysSince/lengthDays + 1
	cycleStart := start.AddDate(0, 0, (number-1)*lengthDays)
	cycleEnd := cycleStart.AddDate(0, 0, lengthDays-1)

	return Info{
		Number: number,
		Start:  cycleStart,
		End:    cycleEnd,
		Day:    daysSince%lengthDays + 1,
	}, nil
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
