package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slipgate/internal/slip"
	"slipgate/internal/slip/store"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newAggregator(t *testing.T, slips ...*slip.Slip) *Aggregator {
	t.Helper()
	st := store.NewInMemory()
	for _, s := range slips {
		require.NoError(t, st.Create(context.Background(), s))
	}
	return New(st, WithClock(func() time.Time { return now }))
}

func makeSlip(signedHoursAfterCreate float64, activityOffsetDays int) *slip.Slip {
	created := now.Add(-10 * 24 * time.Hour)
	s := &slip.Slip{
		ID:           uuid.New(),
		AccessToken:  uuid.NewString(),
		BookingID:    "bk-1",
		SubjectID:    uuid.NewString(),
		ActivityDate: now.AddDate(0, 0, activityOffsetDays),
		CreatedAt:    created,
	}
	if signedHoursAfterCreate >= 0 {
		at := created.Add(time.Duration(signedHoursAfterCreate * float64(time.Hour)))
		s.Signed = true
		s.SignedAt = &at
	}
	return s
}

func TestStatsEmptyPopulation(t *testing.T) {
	agg := newAggregator(t)

	stats, err := agg.Stats(context.Background(), store.Filter{})
	require.NoError(t, err)

	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.ComplianceRate)
	assert.Zero(t, stats.OverdueRate)
	assert.Zero(t, stats.AvgHoursToSign)
	assert.Zero(t, stats.MedianHoursToSign)
}

func TestStatsRates(t *testing.T) {
	// 7 signed, 2 unsigned upcoming, 1 unsigned overdue.
	var slips []*slip.Slip
	for range 7 {
		slips = append(slips, makeSlip(24, 5))
	}
	slips = append(slips, makeSlip(-1, 5), makeSlip(-1, 6), makeSlip(-1, -2))

	stats, err := newAggregator(t, slips...).Stats(context.Background(), store.Filter{})
	require.NoError(t, err)

	assert.Equal(t, 10, stats.Total)
	assert.Equal(t, 7, stats.Signed)
	assert.Equal(t, 3, stats.Unsigned)
	assert.Equal(t, 1, stats.Overdue)
	assert.InDelta(t, 70.0, stats.ComplianceRate, 0.001)
	assert.InDelta(t, 10.0, stats.OverdueRate, 0.001)
}

func TestStatsRoundsToTwoDecimals(t *testing.T) {
	// 1 of 3 signed: 33.333...% rounds to 33.33.
	stats, err := newAggregator(t,
		makeSlip(12, 5), makeSlip(-1, 5), makeSlip(-1, 5),
	).Stats(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.InDelta(t, 33.33, stats.ComplianceRate, 0.0001)
}

func TestStatsTimeToSign(t *testing.T) {
	stats, err := newAggregator(t,
		makeSlip(10, 5),
		makeSlip(20, 5),
		makeSlip(90, 5),
		makeSlip(-1, 5), // unsigned slips don't contribute
	).Stats(context.Background(), store.Filter{})
	require.NoError(t, err)

	assert.InDelta(t, 40.0, stats.AvgHoursToSign, 0.001)
	assert.InDelta(t, 20.0, stats.MedianHoursToSign, 0.001)
}

func TestStatsMedianEvenCount(t *testing.T) {
	stats, err := newAggregator(t,
		makeSlip(10, 5), makeSlip(30, 5),
	).Stats(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.InDelta(t, 20.0, stats.MedianHoursToSign, 0.001)
}

func TestReminderStats(t *testing.T) {
	urgent := makeSlip(-1, 1)
	overdue := makeSlip(-1, -3)
	nagged := makeSlip(-1, 10)
	nagged.ReminderCount = 4
	calm := makeSlip(-1, 10)
	signed := makeSlip(5, 1)

	stats, err := newAggregator(t, urgent, overdue, nagged, calm, signed).
		ReminderStats(context.Background(), store.Filter{})
	require.NoError(t, err)

	assert.Equal(t, 4, stats.TotalUnsigned)
	assert.Equal(t, 1, stats.Overdue)
	assert.Equal(t, 1, stats.Urgent)
	assert.Equal(t, 1, stats.HighReminderCount)
}
