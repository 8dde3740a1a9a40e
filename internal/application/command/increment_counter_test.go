package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readstack-hub/progression-engine/internal/domain/achievement"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/internal/infrastructure/persistence/memory"
)

func newIncrementCounterFixture() (*IncrementCounterHandler, *memory.Store, *capturePublisher) {
	log := testLogger()
	store := memory.NewStore()
	publisher := &capturePublisher{}
	handler := NewIncrementCounterHandler(
		store,
		achievement.NewEvaluator(log),
		commandCatalog(),
		publisher,
		time.UTC,
		log,
	)
	return handler, store, publisher
}

func TestIncrementCounterHandler_DefaultsToOne(t *testing.T) {
	handler, _, publisher := newIncrementCounterFixture()

	result, err := handler.Handle(context.Background(), IncrementCounterCommand{
		UserID:  cmdTestUserID,
		Counter: "notes_created",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.NewValue)
	assert.Equal(t, shared.CounterNotesCreated, result.Counter)
	assert.Equal(t, 1, publisher.typeCount(shared.EventCounterIncremented))
}

func TestIncrementCounterHandler_ExplicitAmount(t *testing.T) {
	handler, store, _ := newIncrementCounterFixture()

	result, err := handler.Handle(context.Background(), IncrementCounterCommand{
		UserID:  cmdTestUserID,
		Counter: "items_read",
		By:      3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.NewValue)

	userID, _ := shared.NewUserID(cmdTestUserID)
	agg, err := store.GetAggregate(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 3, agg.ItemsRead)
	assert.Zero(t, agg.TotalPoints.Int(), "counters do not grant points by themselves")
}

func TestIncrementCounterHandler_Validation(t *testing.T) {
	handler, _, _ := newIncrementCounterFixture()

	_, err := handler.Handle(context.Background(), IncrementCounterCommand{
		UserID:  cmdTestUserID,
		Counter: "karma",
	})
	assert.ErrorIs(t, err, shared.ErrInvalidCounter)

	_, err = handler.Handle(context.Background(), IncrementCounterCommand{
		UserID:  cmdTestUserID,
		Counter: "items_read",
		By:      -1,
	})
	assert.ErrorIs(t, err, shared.ErrInvalidIncrement)
}

func TestIncrementCounterHandler_AwardsCounterAchievement(t *testing.T) {
	handler, _, _ := newIncrementCounterFixture()

	var last *IncrementCounterResult
	for i := 0; i < 5; i++ {
		result, err := handler.Handle(context.Background(), IncrementCounterCommand{
			UserID:  cmdTestUserID,
			Counter: "quizzes_completed",
		})
		require.NoError(t, err)
		last = result
	}

	assert.Equal(t, 5, last.NewValue)
	require.Len(t, last.NewlyAwarded, 1)
	assert.Equal(t, "quiz-five", last.NewlyAwarded[0].ID.String())
}
