package query

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readstack-hub/progression-engine/internal/application/command"
	"github.com/readstack-hub/progression-engine/internal/domain/achievement"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/internal/infrastructure/persistence/memory"
	"github.com/readstack-hub/progression-engine/pkg/logger"
)

const queryTestUserID = "9f8e7d6c-5b4a-4392-8170-6e5d4c3b2a19"

func queryTestLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard})
}

// mapCache is a ViewCache backed by a map, counting hits and misses.
type mapCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	gets   int
	hits   int
	failed bool
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failed {
		return false, assert.AnError
	}
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed {
		return assert.AnError
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

func (c *mapCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.data, key)
	}
	return nil
}

func queryCatalog() achievement.Provider {
	return achievement.NewStaticProvider([]achievement.Definition{
		{
			ID: "first-hundred", Name: "Первая сотня", Rarity: achievement.RarityCommon,
			Requirement:  achievement.Requirement{Metric: achievement.MetricPoints, Threshold: 100},
			RewardPoints: 25,
		},
		{
			ID: "reader-ten", Name: "Десять материалов", Rarity: achievement.RarityCommon,
			Requirement: achievement.Requirement{Metric: achievement.MetricItemsRead, Threshold: 10},
		},
		{
			ID: "quiz-perfect", Name: "Без единой ошибки", Rarity: achievement.RarityRare,
			Requirement: achievement.Requirement{Metric: achievement.MetricPerfectQuiz, Threshold: 1},
		},
	})
}

// seedProgress drives the write side so reads see realistic state.
func seedProgress(t *testing.T, store *memory.Store) {
	t.Helper()
	log := queryTestLogger()
	addPoints := command.NewAddPointsHandler(
		store, achievement.NewEvaluator(log), queryCatalog(), nil, time.UTC, log)
	_, err := addPoints.Handle(context.Background(), command.AddPointsCommand{
		UserID: queryTestUserID,
		Points: 120,
		Reason: "quiz_correct",
	})
	require.NoError(t, err)

	counters := command.NewIncrementCounterHandler(
		store, achievement.NewEvaluator(log), queryCatalog(), nil, time.UTC, log)
	_, err = counters.Handle(context.Background(), command.IncrementCounterCommand{
		UserID:  queryTestUserID,
		Counter: "items_read",
		By:      4,
	})
	require.NoError(t, err)
}

func TestGetProgressHandler_BuildsFullView(t *testing.T) {
	store := memory.NewStore()
	seedProgress(t, store)

	handler := NewGetProgressHandler(store, queryCatalog(), nil, queryTestLogger())
	view, err := handler.Handle(context.Background(), GetProgressQuery{UserID: queryTestUserID})
	require.NoError(t, err)

	// 120 granted plus the 25 bonus from first-hundred.
	assert.Equal(t, 145, view.TotalPoints)
	assert.Equal(t, 2, view.Level.Level)
	assert.Equal(t, 4, view.Counters["items_read"])

	require.Len(t, view.Awards, 1)
	assert.Equal(t, "first-hundred", view.Awards[0].AchievementID)
	assert.Equal(t, "Первая сотня", view.Awards[0].Name)
	assert.Equal(t, 1, view.UnseenAwards)

	// Base grant and bonus, newest first.
	require.Len(t, view.RecentLedger, 2)
	assert.Equal(t, "achievement_bonus", view.RecentLedger[0].Reason)
	assert.Equal(t, "quiz_correct", view.RecentLedger[1].Reason)
}

func TestGetProgressHandler_UnknownUser(t *testing.T) {
	handler := NewGetProgressHandler(memory.NewStore(), queryCatalog(), nil, queryTestLogger())

	_, err := handler.Handle(context.Background(), GetProgressQuery{UserID: queryTestUserID})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestGetProgressHandler_CacheRoundTrip(t *testing.T) {
	store := memory.NewStore()
	seedProgress(t, store)
	cache := newMapCache()

	handler := NewGetProgressHandler(store, queryCatalog(), cache, queryTestLogger())

	first, err := handler.Handle(context.Background(), GetProgressQuery{UserID: queryTestUserID})
	require.NoError(t, err)
	assert.Zero(t, cache.hits)

	second, err := handler.Handle(context.Background(), GetProgressQuery{UserID: queryTestUserID})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, first.TotalPoints, second.TotalPoints)

	// Invalidation forces a rebuild.
	require.NoError(t, cache.Delete(context.Background(), ProgressSnapshotKey(queryTestUserID)))
	_, err = handler.Handle(context.Background(), GetProgressQuery{UserID: queryTestUserID})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
}

func TestGetProgressHandler_CacheFailureDegradesToStore(t *testing.T) {
	store := memory.NewStore()
	seedProgress(t, store)
	cache := newMapCache()
	cache.failed = true

	handler := NewGetProgressHandler(store, queryCatalog(), cache, queryTestLogger())
	view, err := handler.Handle(context.Background(), GetProgressQuery{UserID: queryTestUserID})
	require.NoError(t, err)
	assert.Equal(t, 145, view.TotalPoints)
}

func TestGetAchievementsHandler_StatusAndProgress(t *testing.T) {
	store := memory.NewStore()
	seedProgress(t, store)

	handler := NewGetAchievementsHandler(store, queryCatalog(), queryTestLogger())
	result, err := handler.Handle(context.Background(), GetAchievementsQuery{UserID: queryTestUserID})
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalCount)
	assert.Equal(t, 1, result.EarnedCount)
	require.Len(t, result.Achievements, 3)

	byID := map[string]AchievementStatusDTO{}
	for _, dto := range result.Achievements {
		byID[dto.AchievementID] = dto
	}

	assert.True(t, byID["first-hundred"].Earned)
	assert.Equal(t, 100, byID["first-hundred"].ProgressPercent)

	assert.False(t, byID["reader-ten"].Earned)
	assert.Equal(t, 4, byID["reader-ten"].CurrentValue)
	assert.Equal(t, 40, byID["reader-ten"].ProgressPercent)

	// Signal metrics never show partial progress.
	assert.Zero(t, byID["quiz-perfect"].ProgressPercent)
}

func TestGetAchievementsHandler_NewUserSeesCatalog(t *testing.T) {
	handler := NewGetAchievementsHandler(memory.NewStore(), queryCatalog(), queryTestLogger())

	result, err := handler.Handle(context.Background(), GetAchievementsQuery{UserID: queryTestUserID})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalCount)
	assert.Zero(t, result.EarnedCount)
}

func TestGetAchievementsHandler_Filters(t *testing.T) {
	store := memory.NewStore()
	seedProgress(t, store)
	handler := NewGetAchievementsHandler(store, queryCatalog(), queryTestLogger())

	result, err := handler.Handle(context.Background(), GetAchievementsQuery{
		UserID:     queryTestUserID,
		OnlyEarned: true,
	})
	require.NoError(t, err)
	require.Len(t, result.Achievements, 1)
	assert.Equal(t, "first-hundred", result.Achievements[0].AchievementID)

	result, err = handler.Handle(context.Background(), GetAchievementsQuery{
		UserID:     queryTestUserID,
		OnlyUnseen: true,
	})
	require.NoError(t, err)
	assert.Len(t, result.Achievements, 1)
}

func TestGetLedgerHandler_Pagination(t *testing.T) {
	store := memory.NewStore()
	seedProgress(t, store)

	handler := NewGetLedgerHandler(store, queryTestLogger())
	result, err := handler.Handle(context.Background(), GetLedgerQuery{
		UserID:   queryTestUserID,
		Page:     1,
		PageSize: 1,
	})
	require.NoError(t, err)

	require.Len(t, result.Entries, 1)
	assert.Equal(t, "achievement_bonus", result.Entries[0].Reason)
	assert.Equal(t, 145, result.TotalPoints)

	second, err := handler.Handle(context.Background(), GetLedgerQuery{
		UserID:   queryTestUserID,
		Page:     2,
		PageSize: 1,
	})
	require.NoError(t, err)
	require.Len(t, second.Entries, 1)
	assert.Equal(t, "quiz_correct", second.Entries[0].Reason)
}
