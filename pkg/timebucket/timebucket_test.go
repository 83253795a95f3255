package timebucket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayBoundaries(t *testing.T) {
	// 2025-01-21 10:00 UTC is 13:00 local (UTC+3).
	instant := time.Date(2025, 1, 21, 10, 0, 0, 0, time.UTC)

	t.Run("Start Of Day", func(t *testing.T) {
		// Local midnight 2025-01-21 is 21:00 UTC the previous day.
		want := time.Date(2025, 1, 20, 21, 0, 0, 0, time.UTC)
		assert.True(t, StartOfDay(instant).Equal(want))
	})

	t.Run("End Of Day", func(t *testing.T) {
		want := time.Date(2025, 1, 21, 20, 59, 59, 999_000_000, time.UTC)
		assert.True(t, EndOfDay(instant).Equal(want))
	})

	t.Run("Day Boundary Has No Off By One", func(t *testing.T) {
		// 23:59:59.999 local belongs to that day; the next millisecond
		// (00:00:00.000 local) belongs to the next day.
		lastMs := time.Date(2025, 1, 21, 23, 59, 59, 999_000_000, Zone)
		assert.Equal(t, "2025-01-21", DailyKey(lastMs))
		assert.Equal(t, "2025-01-22", DailyKey(lastMs.Add(time.Millisecond)))
	})
}

func TestBucketKeys(t *testing.T) {
	t.Run("Daily Uses Local Date", func(t *testing.T) {
		// 22:30 UTC is already the next local day.
		assert.Equal(t, "2025-01-22", DailyKey(time.Date(2025, 1, 21, 22, 30, 0, 0, time.UTC)))
		assert.Equal(t, "2025-01-21", DailyKey(time.Date(2025, 1, 21, 10, 0, 0, 0, time.UTC)))
	})

	t.Run("Monthly", func(t *testing.T) {
		assert.Equal(t, "2025_01", MonthlyKey(time.Date(2025, 1, 21, 10, 0, 0, 0, time.UTC)))
		// Local rollover across a month boundary.
		assert.Equal(t, "2025_02", MonthlyKey(time.Date(2025, 1, 31, 21, 30, 0, 0, time.UTC)))
	})

	t.Run("Weekly ISO Numbering", func(t *testing.T) {
		// 2025-01-21 falls in ISO week 4.
		assert.Equal(t, "2025_04", WeeklyKey(time.Date(2025, 1, 21, 10, 0, 0, 0, time.UTC)))
		// Monday 2024-12-30 is ISO week 1 of 2025; the bucket year stays
		// the local calendar year.
		assert.Equal(t, "2024_01", WeeklyKey(time.Date(2024, 12, 30, 10, 0, 0, 0, time.UTC)))
	})
}

func TestIsAlignedFullDays(t *testing.T) {
	from := StartOfDay(time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC))
	to := EndOfDay(time.Date(2025, 1, 22, 12, 0, 0, 0, time.UTC))

	assert.True(t, IsAlignedFullDays(from, to))
	assert.False(t, IsAlignedFullDays(from.Add(time.Second), to))
	assert.False(t, IsAlignedFullDays(from, to.Add(-time.Millisecond)))
	assert.False(t, IsAlignedFullDays(from, to.Add(time.Millisecond)))
}

func TestDayStarts(t *testing.T) {
	from := time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 22, 12, 0, 0, 0, time.UTC)

	days := DayStarts(from, to)
	assert.Len(t, days, 3)
	assert.Equal(t, "2025-01-20", DailyKey(days[0]))
	assert.Equal(t, "2025-01-22", DailyKey(days[2]))
}
