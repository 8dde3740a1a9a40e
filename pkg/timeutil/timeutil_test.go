package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfDay(t *testing.T) {
	almaty := time.FixedZone("UTC+5", 5*60*60)

	// 01:30 in Almaty is still the previous day in UTC; the local day wins.
	moment := time.Date(2026, 8, 30, 1, 30, 0, 0, almaty)
	got := StartOfDay(moment, almaty)

	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, almaty), got)
}

func TestDayOf_KeepsCalendarDayOfMarker(t *testing.T) {
	west := time.FixedZone("UTC-5", -5*60*60)

	// A DATE scanned from the store is midnight UTC. As an instant that is
	// 19:00 of the previous day in UTC-5; DayOf must keep August 30.
	marker := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	got := DayOf(marker, west)

	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, west), got)
}

func TestDaysBetween(t *testing.T) {
	west := time.FixedZone("UTC-5", -5*60*60)

	tests := []struct {
		name string
		t1   time.Time
		t2   time.Time
		want int
	}{
		{
			name: "same day",
			t1:   time.Date(2026, 8, 30, 0, 0, 0, 0, west),
			t2:   time.Date(2026, 8, 30, 23, 59, 0, 0, west),
			want: 0,
		},
		{
			name: "next day one minute apart",
			t1:   time.Date(2026, 8, 30, 23, 59, 0, 0, west),
			t2:   time.Date(2026, 8, 31, 0, 0, 0, 0, west),
			want: 1,
		},
		{
			name: "out of order is negative",
			t1:   time.Date(2026, 8, 31, 9, 0, 0, 0, west),
			t2:   time.Date(2026, 8, 30, 9, 0, 0, 0, west),
			want: -1,
		},
		{
			name: "week gap",
			t1:   time.Date(2026, 8, 23, 12, 0, 0, 0, west),
			t2:   time.Date(2026, 8, 30, 12, 0, 0, 0, west),
			want: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysBetween(tt.t1, tt.t2, west))
		})
	}
}

func TestDaysBetween_DayMarkerFromStore(t *testing.T) {
	west := time.FixedZone("UTC-5", -5*60*60)

	// The marker for August 30 round-trips the store as midnight UTC.
	// Normalized through DayOf, an afternoon touch of the same local day
	// must count as zero days, not one.
	marker := DayOf(time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), west)
	touch := time.Date(2026, 8, 30, 15, 0, 0, 0, west)

	assert.Equal(t, 0, DaysBetween(marker, touch, west))
	assert.Equal(t, 1, DaysBetween(marker, touch.Add(24*time.Hour), west))
}

func TestDaysBetween_AcrossDSTTransition(t *testing.T) {
	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// US clocks spring forward on 2026-03-08: that local day is 23 hours
	// long. Consecutive calendar days must still differ by exactly one.
	before := time.Date(2026, 3, 7, 12, 0, 0, 0, newYork)
	after := time.Date(2026, 3, 8, 12, 0, 0, 0, newYork)

	assert.Equal(t, 1, DaysBetween(before, after, newYork))
	assert.True(t, IsNextDay(before, after, newYork))
}

func TestIsSameDay(t *testing.T) {
	almaty := time.FixedZone("UTC+5", 5*60*60)

	morning := time.Date(2026, 8, 30, 6, 0, 0, 0, almaty)
	night := time.Date(2026, 8, 30, 23, 30, 0, 0, almaty)
	nextDay := time.Date(2026, 8, 31, 0, 30, 0, 0, almaty)

	assert.True(t, IsSameDay(morning, night, almaty))
	assert.False(t, IsSameDay(night, nextDay, almaty))
	assert.True(t, IsNextDay(night, nextDay, almaty))
}
