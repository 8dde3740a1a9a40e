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

func newMarkSeenFixture(t *testing.T) (*MarkSeenHandler, *memory.Store, *capturePublisher) {
	t.Helper()
	log := testLogger()
	store := memory.NewStore()
	publisher := &capturePublisher{}

	// Earn quiz-perfect so there is an award to acknowledge.
	addPoints := NewAddPointsHandler(
		store,
		achievement.NewEvaluator(log),
		commandCatalog(),
		nil,
		time.UTC,
		log,
	)
	_, err := addPoints.Handle(context.Background(), AddPointsCommand{
		UserID:      cmdTestUserID,
		Points:      10,
		Reason:      "quiz_correct",
		PerfectQuiz: true,
	})
	require.NoError(t, err)

	return NewMarkSeenHandler(store, publisher, log), store, publisher
}

func TestMarkSeenHandler_FlipsFlagOnce(t *testing.T) {
	handler, store, publisher := newMarkSeenFixture(t)

	result, err := handler.Handle(context.Background(), MarkSeenCommand{
		UserID:         cmdTestUserID,
		AchievementIDs: []string{"quiz-perfect"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, publisher.typeCount(shared.EventAchievementSeen))

	userID, _ := shared.NewUserID(cmdTestUserID)
	awards, err := store.ListAwards(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, awards, 1)
	assert.True(t, awards[0].Seen)

	// The flag is one-way; a repeat acknowledgement changes nothing.
	result, err = handler.Handle(context.Background(), MarkSeenCommand{
		UserID:         cmdTestUserID,
		AchievementIDs: []string{"quiz-perfect"},
	})
	require.NoError(t, err)
	assert.Zero(t, result.Updated)
	assert.Equal(t, 1, publisher.typeCount(shared.EventAchievementSeen))
}

func TestMarkSeenHandler_DropsUnknownAndMalformedIDs(t *testing.T) {
	handler, _, publisher := newMarkSeenFixture(t)

	result, err := handler.Handle(context.Background(), MarkSeenCommand{
		UserID:         cmdTestUserID,
		AchievementIDs: []string{"never-earned", "NOT A SLUG!!", "quiz-perfect"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, publisher.typeCount(shared.EventAchievementSeen))
}

func TestMarkSeenHandler_Validation(t *testing.T) {
	handler, _, _ := newMarkSeenFixture(t)

	_, err := handler.Handle(context.Background(), MarkSeenCommand{
		UserID: cmdTestUserID,
	})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)

	_, err = handler.Handle(context.Background(), MarkSeenCommand{
		UserID:         "nope",
		AchievementIDs: []string{"quiz-perfect"},
	})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)
}
