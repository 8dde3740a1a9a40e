package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readstack-hub/progression-engine/internal/domain/achievement"
	"github.com/readstack-hub/progression-engine/internal/domain/progression"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/internal/infrastructure/persistence/memory"
)

func newTouchStreakFixture() (*TouchStreakHandler, *memory.Store, *capturePublisher) {
	log := testLogger()
	store := memory.NewStore()
	publisher := &capturePublisher{}
	handler := NewTouchStreakHandler(
		store,
		achievement.NewEvaluator(log),
		commandCatalog(),
		publisher,
		time.UTC,
		log,
	)
	return handler, store, publisher
}

func touchAt(t *testing.T, handler *TouchStreakHandler, ts time.Time) *TouchStreakResult {
	t.Helper()
	result, err := handler.Handle(context.Background(), TouchStreakCommand{
		UserID:    cmdTestUserID,
		Timestamp: ts,
	})
	require.NoError(t, err)
	return result
}

func TestTouchStreakHandler_Lifecycle(t *testing.T) {
	handler, _, _ := newTouchStreakFixture()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	result := touchAt(t, handler, base)
	assert.Equal(t, progression.StreakStarted, result.Transition)
	assert.Equal(t, 1, result.Aggregate.Streak.Current)

	// Same day again: idempotent.
	result = touchAt(t, handler, base.Add(5*time.Hour))
	assert.Equal(t, progression.StreakUnchanged, result.Transition)
	assert.Equal(t, 1, result.Aggregate.Streak.Current)

	// Next day extends.
	result = touchAt(t, handler, base.AddDate(0, 0, 1))
	assert.Equal(t, progression.StreakExtended, result.Transition)
	assert.Equal(t, 2, result.Aggregate.Streak.Current)

	// A missed day resets to 1 but keeps the longest run.
	result = touchAt(t, handler, base.AddDate(0, 0, 3))
	assert.Equal(t, progression.StreakBroken, result.Transition)
	assert.Equal(t, 1, result.Aggregate.Streak.Current)
	assert.Equal(t, 2, result.Aggregate.Streak.Longest)
}

func TestTouchStreakHandler_StaleTimestampIsNoOp(t *testing.T) {
	handler, _, publisher := newTouchStreakFixture()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	touchAt(t, handler, base)
	published := publisher.typeCount(shared.EventStreakAdvanced)

	// A delayed event from two days ago must not touch the streak.
	result := touchAt(t, handler, base.AddDate(0, 0, -2))
	assert.Equal(t, progression.StreakIgnored, result.Transition)
	assert.Equal(t, 1, result.Aggregate.Streak.Current)
	assert.Equal(t, published, publisher.typeCount(shared.EventStreakAdvanced))
	assert.Zero(t, publisher.typeCount(shared.EventStreakReset))
}

func TestTouchStreakHandler_AwardsStreakAchievement(t *testing.T) {
	handler, store, _ := newTouchStreakFixture()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	touchAt(t, handler, base)
	touchAt(t, handler, base.AddDate(0, 0, 1))
	result := touchAt(t, handler, base.AddDate(0, 0, 2))

	require.Len(t, result.NewlyAwarded, 1)
	assert.Equal(t, "streak-three", result.NewlyAwarded[0].ID.String())

	userID, _ := shared.NewUserID(cmdTestUserID)
	awards, err := store.ListAwards(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, awards, 1)
	assert.False(t, awards[0].Seen)
}

func TestTouchStreakHandler_ResetEventCountsMissedDays(t *testing.T) {
	handler, _, publisher := newTouchStreakFixture()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	touchAt(t, handler, base)
	touchAt(t, handler, base.AddDate(0, 0, 4))

	require.Equal(t, 1, publisher.typeCount(shared.EventStreakReset))
}
