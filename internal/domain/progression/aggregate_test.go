package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readstack-hub/progression-engine/internal/domain/shared"
)

const testUserID = shared.UserID("5b3c1a9e-0b2f-4f7e-9d7a-2c3e4f5a6b7c")

func TestAggregate_AddPoints(t *testing.T) {
	agg := NewAggregate(testUserID)

	leveledUp, err := agg.AddPoints(50)
	require.NoError(t, err)
	assert.False(t, leveledUp)
	assert.Equal(t, 50, agg.TotalPoints.Int())

	// Crossing the 100-point threshold moves level 1 -> 2.
	leveledUp, err = agg.AddPoints(60)
	require.NoError(t, err)
	assert.True(t, leveledUp)
	assert.Equal(t, shared.Level(2), agg.Level())
}

func TestAggregate_AddPoints_RejectsNonPositive(t *testing.T) {
	agg := NewAggregate(testUserID)

	for _, amount := range []int{0, -1, -100} {
		_, err := agg.AddPoints(amount)
		assert.ErrorIs(t, err, shared.ErrNegativeValue)
	}
	assert.Equal(t, 0, agg.TotalPoints.Int())
}

func TestAggregate_IncrementCounter(t *testing.T) {
	agg := NewAggregate(testUserID)

	value, err := agg.IncrementCounter(shared.CounterQuizzesCompleted, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, value)

	value, err = agg.IncrementCounter(shared.CounterQuizzesCompleted, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, value)
	assert.Equal(t, 4, agg.Counter(shared.CounterQuizzesCompleted))
	assert.Equal(t, 0, agg.Counter(shared.CounterNotesCreated))
}

func TestAggregate_IncrementCounter_Validation(t *testing.T) {
	agg := NewAggregate(testUserID)

	_, err := agg.IncrementCounter("bogus_counter", 1)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = agg.IncrementCounter(shared.CounterItemsRead, 0)
	assert.ErrorIs(t, err, shared.ErrNegativeValue)

	_, err = agg.IncrementCounter(shared.CounterItemsRead, -2)
	assert.ErrorIs(t, err, shared.ErrNegativeValue)
}

func TestAggregate_TouchStreak(t *testing.T) {
	agg := NewAggregate(testUserID)

	transition := agg.TouchStreak(day(2025, 3, 10), time.UTC)
	assert.Equal(t, StreakStarted, transition)
	assert.Equal(t, 1, agg.Streak.Current)

	transition = agg.TouchStreak(day(2025, 3, 10), time.UTC)
	assert.Equal(t, StreakUnchanged, transition)
	assert.Equal(t, 1, agg.Streak.Current)

	transition = agg.TouchStreak(day(2025, 3, 11), time.UTC)
	assert.Equal(t, StreakExtended, transition)
	assert.Equal(t, 2, agg.Streak.Current)
	assert.Equal(t, 2, agg.Streak.Longest)
}

func TestAggregate_LevelIsMonotoneProjection(t *testing.T) {
	agg := NewAggregate(testUserID)

	previous := agg.Level()
	require.Equal(t, shared.MinLevel, previous)

	for i := 0; i < 50; i++ {
		_, err := agg.AddPoints(75)
		require.NoError(t, err)
		level := agg.Level()
		require.GreaterOrEqual(t, level, previous, "level must never decrease")
		previous = level
	}
}

func TestAggregate_Validate(t *testing.T) {
	agg := NewAggregate(testUserID)
	require.NoError(t, agg.Validate())

	broken := agg.Clone()
	broken.Streak = StreakState{Current: 5, Longest: 2}
	assert.Error(t, broken.Validate())

	// Clone must not leak mutations back into the original.
	assert.NoError(t, agg.Validate())
}

func TestNewLedgerEntry(t *testing.T) {
	entry, err := NewLedgerEntry(testUserID, 10, shared.ReasonQuizCorrect, "quiz-42")
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, 10, entry.Points)

	_, err = NewLedgerEntry(testUserID, 0, shared.ReasonQuizCorrect, "")
	assert.ErrorIs(t, err, shared.ErrNegativeValue)

	_, err = NewLedgerEntry("", 10, shared.ReasonQuizCorrect, "")
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = NewLedgerEntry(testUserID, 10, "bribe", "")
	assert.Error(t, err)
}

func TestSumEntries(t *testing.T) {
	var entries []*LedgerEntry
	total := 0
	for _, p := range []int{10, 25, 5, 100} {
		entry, err := NewLedgerEntry(testUserID, p, shared.ReasonItemRead, "")
		require.NoError(t, err)
		entries = append(entries, entry)
		total += p
	}
	assert.Equal(t, total, SumEntries(entries))
	assert.Equal(t, 0, SumEntries(nil))
}
