package billingperiod

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor_Monthly(t *testing.T) {
	at := time.Date(2026, 3, 17, 14, 30, 0, 0, time.UTC)

	period, err := For(at, GranularityMonthly)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), period.Start)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), period.End)
	assert.Equal(t, 31, period.Days())
	assert.True(t, period.Contains(at))
	assert.False(t, period.Contains(period.End))
}

func TestFor_Weekly_StartsMonday(t *testing.T) {
	// 2026-03-18 is a Wednesday.
	at := time.Date(2026, 3, 18, 9, 0, 0, 0, time.UTC)

	period, err := For(at, GranularityWeekly)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), period.Start)
	assert.Equal(t, time.Date(2026, 3, 23, 0, 0, 0, 0, time.UTC), period.End)
	assert.Equal(t, 7, period.Days())
	assert.Equal(t, time.Monday, period.Start.Weekday())
}

func TestFor_Weekly_MondayBoundary(t *testing.T) {
	monday := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

	period, err := For(monday, GranularityWeekly)
	require.NoError(t, err)
	assert.Equal(t, monday, period.Start)
}

func TestFor_InvalidGranularity(t *testing.T) {
	_, err := For(time.Now(), Granularity("daily"))
	assert.ErrorIs(t, err, ErrInvalidGranularity)
}

func TestPrevious(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	period, err := For(at, GranularityMonthly)
	require.NoError(t, err)

	prev, err := Previous(period, GranularityMonthly)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), prev.Start)
	assert.Equal(t, period.Start, prev.End)
	assert.Equal(t, 28, prev.Days())
}
