package cycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCompute(t *testing.T) {
	epoch := date(2023, time.January, 2)

	tests := []struct {
		name       string
		reportDate time.Time
		length     int
		wantNumber int
		wantDay    int
		wantStart  time.Time
		wantEnd    time.Time
	}{
		{
			name:       "first day of first cycle",
			reportDate: date(2023, time.January, 2),
			length:     30,
			wantNumber: 1,
			wantDay:    1,
			wantStart:  date(2023, time.January, 2),
			wantEnd:    date(2023, time.January, 31),
		},
		{
			name:       "last day of first cycle",
			reportDate: date(2023, time.January, 31),
			length:     30,
			wantNumber: 1,
			wantDay:    30,
			wantStart:  date(2023, time.January, 2),
			wantEnd:    date(2023, time.January, 31),
		},
		{
			name:       "first day of second cycle",
			reportDate: date(2023, time.February, 1),
			length:     30,
			wantNumber: 2,
			wantDay:    1,
			wantStart:  date(2023, time.February, 1),
			wantEnd:    date(2023, time.March, 2),
		},
		{
			name:       "mid third cycle",
			reportDate: date(2023, time.March, 10),
			length:     30,
			wantNumber: 3,
			wantDay:    8,
			wantStart:  date(2023, time.March, 3),
			wantEnd:    date(2023, time.April, 1),
		},
		{
			name:       "intra-day timestamps map to the same day",
			reportDate: time.Date(2023, time.January, 31, 23, 59, 59, 0, time.UTC),
			length:     30,
			wantNumber: 1,
			wantDay:    30,
			wantStart:  date(2023, time.January, 2),
			wantEnd:    date(2023, time.January, 31),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := Compute(tt.reportDate, epoch, tt.length)
			require.NoError(t, err)
			assert.Equal(t, tt.wantNumber, info.Number)
			assert.Equal(t, tt.wantDay, info.Day)
			assert.Equal(t, tt.wantStart, info.Start)
			assert.Equal(t, tt.wantEnd, info.End)
		})
	}
}

func TestComputeDayAlwaysInRange(t *testing.T) {
	epoch := date(2023, time.January, 2)
	for offset := 0; offset < 400; offset++ {
		info, err := Compute(epoch.AddDate(0, 0, offset), epoch, 30)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, info.Day, 1)
		assert.LessOrEqual(t, info.Day, 30)
	}
}

func TestComputeErrors(t *testing.T) {
	epoch := date(2023, time.January, 2)

	_, err := Compute(date(2022, time.December, 31), epoch, 30)
	assert.ErrorIs(t, err, ErrBeforeEpoch)

	_, err = Compute(date(2023, time.March, 1), epoch, 0)
	assert.ErrorIs(t, err, ErrInvalidLength)
}
