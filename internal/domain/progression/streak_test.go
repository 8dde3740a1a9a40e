package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 12, 30, 0, 0, time.UTC)
}

func TestNextStreak_FirstActivity(t *testing.T) {
	next, transition := NextStreak(StreakState{}, day(2025, 3, 10), time.UTC)

	assert.Equal(t, StreakStarted, transition)
	assert.Equal(t, 1, next.Current)
	assert.Equal(t, 1, next.Longest)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), next.LastActivity)
}

func TestNextStreak_SameDayIdempotent(t *testing.T) {
	state, _ := NextStreak(StreakState{}, day(2025, 3, 10), time.UTC)

	// Any number of touches within the same calendar day must not change state.
	for i := 0; i < 5; i++ {
		next, transition := NextStreak(state, day(2025, 3, 10).Add(time.Duration(i)*time.Hour), time.UTC)
		assert.Equal(t, StreakUnchanged, transition)
		assert.Equal(t, state, next)
	}
}

func TestNextStreak_ConsecutiveDays(t *testing.T) {
	state := StreakState{}
	var transition StreakTransition

	expected := []int{1, 2, 3}
	for i, want := range expected {
		state, transition = NextStreak(state, day(2025, 3, 10+i), time.UTC)
		assert.Equal(t, want, state.Current, "day %d", i+1)
		assert.Equal(t, want, state.Longest, "day %d", i+1)
	}
	assert.Equal(t, StreakExtended, transition)
}

func TestNextStreak_GapResetsButKeepsLongest(t *testing.T) {
	state := StreakState{}
	for i := 0; i < 3; i++ {
		state, _ = NextStreak(state, day(2025, 3, 10+i), time.UTC)
	}
	require.Equal(t, 3, state.Current)
	require.Equal(t, 3, state.Longest)

	// Skip March 13, resume March 14.
	next, transition := NextStreak(state, day(2025, 3, 14), time.UTC)

	assert.Equal(t, StreakBroken, transition)
	assert.Equal(t, 1, next.Current)
	assert.Equal(t, 3, next.Longest)
}

func TestNextStreak_NegativeDiffIsNoOp(t *testing.T) {
	state, _ := NextStreak(StreakState{}, day(2025, 3, 10), time.UTC)

	// A stale event from an earlier day must never decrement state.
	next, transition := NextStreak(state, day(2025, 3, 8), time.UTC)

	assert.Equal(t, StreakIgnored, transition)
	assert.Equal(t, state, next)
}

func TestNextStreak_TimezoneBoundary(t *testing.T) {
	almaty := time.FixedZone("Asia/Almaty", 5*60*60)

	// 23:30 and next day 00:30 local time are consecutive calendar days
	// in the configured zone even though only an hour apart.
	state, _ := NextStreak(StreakState{}, time.Date(2025, 3, 10, 23, 30, 0, 0, almaty), almaty)
	next, transition := NextStreak(state, time.Date(2025, 3, 11, 0, 30, 0, 0, almaty), almaty)

	assert.Equal(t, StreakExtended, transition)
	assert.Equal(t, 2, next.Current)
}

func TestNextStreak_LongestNeverDecreases(t *testing.T) {
	state := StreakState{}
	days := []int{1, 2, 3, 7, 8, 9, 10, 20}

	longest := 0
	for _, d := range days {
		state, _ = NextStreak(state, day(2025, 3, d), time.UTC)
		require.GreaterOrEqual(t, state.Longest, longest)
		require.GreaterOrEqual(t, state.Longest, state.Current)
		longest = state.Longest
	}
	assert.Equal(t, 4, state.Longest) // 7,8,9,10
	assert.Equal(t, 1, state.Current) // reset by the jump to 20
}

func TestNextStreak_PersistedDayMarkerWestOfUTC(t *testing.T) {
	// A DATE column comes back from the store as midnight UTC. For a zone
	// west of UTC that instant falls on the previous local day, so the
	// calendar day must be taken from the marker's components.
	newYork := time.FixedZone("UTC-5", -5*60*60)
	state := StreakState{
		Current:      1,
		Longest:      1,
		LastActivity: time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
	}

	// Second touch in the afternoon of the same local calendar day.
	next, transition := NextStreak(state, time.Date(2026, 8, 30, 15, 0, 0, 0, newYork), newYork)
	assert.Equal(t, StreakUnchanged, transition)
	assert.Equal(t, 1, next.Current)

	// The next local day still extends.
	next, transition = NextStreak(state, time.Date(2026, 8, 31, 9, 0, 0, 0, newYork), newYork)
	assert.Equal(t, StreakExtended, transition)
	assert.Equal(t, 2, next.Current)
}
