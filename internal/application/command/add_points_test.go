package command

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readstack-hub/progression-engine/internal/domain/achievement"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/internal/infrastructure/persistence/memory"
	"github.com/readstack-hub/progression-engine/pkg/logger"
)

const cmdTestUserID = "5b3c1a9e-0b2f-4f7e-9d7a-2c3e4f5a6b7c"

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard})
}

// capturePublisher collects published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturePublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) typeCount(t shared.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, e := range p.events {
		if e.EventType() == t {
			count++
		}
	}
	return count
}

func commandCatalog() achievement.Provider {
	return achievement.NewStaticProvider([]achievement.Definition{
		{
			ID: "first-hundred", Name: "Первая сотня", Rarity: achievement.RarityCommon,
			Requirement:  achievement.Requirement{Metric: achievement.MetricPoints, Threshold: 100},
			RewardPoints: 25,
		},
		{
			ID: "point-hoarder", Name: "Копилка", Rarity: achievement.RarityUncommon,
			Requirement: achievement.Requirement{Metric: achievement.MetricPoints, Threshold: 120},
		},
		{
			ID: "streak-three", Name: "Три дня подряд", Rarity: achievement.RarityCommon,
			Requirement: achievement.Requirement{Metric: achievement.MetricStreak, Threshold: 3},
		},
		{
			ID: "quiz-five", Name: "Пять квизов", Rarity: achievement.RarityCommon,
			Requirement: achievement.Requirement{Metric: achievement.MetricQuizzesCompleted, Threshold: 5},
		},
		{
			ID: "quiz-perfect", Name: "Без единой ошибки", Rarity: achievement.RarityRare,
			Requirement: achievement.Requirement{Metric: achievement.MetricPerfectQuiz, Threshold: 1},
		},
	})
}

func newAddPointsFixture() (*AddPointsHandler, *memory.Store, *capturePublisher) {
	log := testLogger()
	store := memory.NewStore()
	publisher := &capturePublisher{}
	handler := NewAddPointsHandler(
		store,
		achievement.NewEvaluator(log),
		commandCatalog(),
		publisher,
		time.UTC,
		log,
	)
	return handler, store, publisher
}

func TestAddPointsHandler_AppendsLedgerAndGrowsTotal(t *testing.T) {
	handler, store, _ := newAddPointsFixture()

	result, err := handler.Handle(context.Background(), AddPointsCommand{
		UserID: cmdTestUserID,
		Points: 40,
		Reason: "item_read",
	})
	require.NoError(t, err)

	assert.Equal(t, 40, result.Aggregate.TotalPoints.Int())
	assert.Equal(t, 1, result.Level.Int())
	assert.Empty(t, result.NewlyAwarded)

	userID, _ := shared.NewUserID(cmdTestUserID)
	sum, err := store.LedgerSum(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 40, sum)
}

func TestAddPointsHandler_Validation(t *testing.T) {
	handler, _, _ := newAddPointsFixture()

	_, err := handler.Handle(context.Background(), AddPointsCommand{
		UserID: "not-a-uuid", Points: 10, Reason: "item_read",
	})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)

	_, err = handler.Handle(context.Background(), AddPointsCommand{
		UserID: cmdTestUserID, Points: 0, Reason: "item_read",
	})
	assert.ErrorIs(t, err, shared.ErrNegativeValue)

	_, err = handler.Handle(context.Background(), AddPointsCommand{
		UserID: cmdTestUserID, Points: -5, Reason: "item_read",
	})
	assert.ErrorIs(t, err, shared.ErrNegativeValue)

	_, err = handler.Handle(context.Background(), AddPointsCommand{
		UserID: cmdTestUserID, Points: 10, Reason: "bribery",
	})
	assert.Error(t, err)
}

func TestAddPointsHandler_BonusCascadeReevaluatesOnce(t *testing.T) {
	// 100 points earns first-hundred, its 25 bonus pushes the total to 125
	// which crosses point-hoarder at 120. The re-pass must pick it up in
	// the same transaction.
	handler, store, _ := newAddPointsFixture()

	result, err := handler.Handle(context.Background(), AddPointsCommand{
		UserID: cmdTestUserID,
		Points: 100,
		Reason: "quiz_correct",
	})
	require.NoError(t, err)

	require.Len(t, result.NewlyAwarded, 2)
	assert.Equal(t, "first-hundred", result.NewlyAwarded[0].ID.String())
	assert.Equal(t, "point-hoarder", result.NewlyAwarded[1].ID.String())
	assert.Equal(t, 125, result.Aggregate.TotalPoints.Int())
	assert.Equal(t, 100, result.AppliedPoints)

	userID, _ := shared.NewUserID(cmdTestUserID)

	// The ledger stays the source of truth for the total.
	sum, err := store.LedgerSum(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 125, sum)

	awards, err := store.ListAwards(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, awards, 2)
}

func TestAddPointsHandler_ConcurrentAwardUniqueness(t *testing.T) {
	// Many writers cross the same threshold at once. The per-user
	// serialization must leave exactly one award row and exactly one
	// bonus application.
	handler, store, _ := newAddPointsFixture()

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := handler.Handle(context.Background(), AddPointsCommand{
				UserID: cmdTestUserID,
				Points: 10,
				Reason: "item_read",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	userID, _ := shared.NewUserID(cmdTestUserID)

	awards, err := store.ListAwards(context.Background(), userID)
	require.NoError(t, err)

	firstHundred := 0
	for _, a := range awards {
		if a.AchievementID == "first-hundred" {
			firstHundred++
		}
	}
	assert.Equal(t, 1, firstHundred, "threshold award must be granted exactly once")

	// 20 writes of 10 points, one 25 point bonus when 100 was crossed and
	// one point-hoarder award at 120 with no bonus.
	agg, err := store.GetAggregate(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, writers*10+25, agg.TotalPoints.Int())

	sum, err := store.LedgerSum(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, agg.TotalPoints.Int(), sum)
}

func TestAddPointsHandler_PublishesLevelUp(t *testing.T) {
	handler, _, publisher := newAddPointsFixture()

	_, err := handler.Handle(context.Background(), AddPointsCommand{
		UserID: cmdTestUserID,
		Points: 100,
		Reason: "quiz_correct",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, publisher.typeCount(shared.EventLevelUp))
	assert.Equal(t, 2, publisher.typeCount(shared.EventAchievementAwarded))
	// Base grant plus the first-hundred bonus.
	assert.Equal(t, 2, publisher.typeCount(shared.EventPointsAdded))
}

func TestAddPointsHandler_PerfectQuizSignalIsOneShot(t *testing.T) {
	handler, store, _ := newAddPointsFixture()

	result, err := handler.Handle(context.Background(), AddPointsCommand{
		UserID:      cmdTestUserID,
		Points:      10,
		Reason:      "quiz_correct",
		PerfectQuiz: true,
	})
	require.NoError(t, err)
	require.Len(t, result.NewlyAwarded, 1)
	assert.Equal(t, "quiz-perfect", result.NewlyAwarded[0].ID.String())

	// The second flawless quiz finds the award already earned.
	result, err = handler.Handle(context.Background(), AddPointsCommand{
		UserID:      cmdTestUserID,
		Points:      10,
		Reason:      "quiz_correct",
		PerfectQuiz: true,
	})
	require.NoError(t, err)
	assert.Empty(t, result.NewlyAwarded)

	userID, _ := shared.NewUserID(cmdTestUserID)
	awards, err := store.ListAwards(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, awards, 1)
}

func TestAddPointsHandler_NilPublisherIsSafe(t *testing.T) {
	log := testLogger()
	handler := NewAddPointsHandler(
		memory.NewStore(),
		achievement.NewEvaluator(log),
		commandCatalog(),
		nil,
		time.UTC,
		log,
	)

	_, err := handler.Handle(context.Background(), AddPointsCommand{
		UserID: cmdTestUserID,
		Points: 100,
		Reason: "quiz_correct",
	})
	assert.NoError(t, err)
}
