package achievement

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/pkg/logger"
)

func testEvaluator() *Evaluator {
	return NewEvaluator(logger.New(logger.Options{Output: io.Discard}))
}

func fixtureCatalog() []Definition {
	return []Definition{
		{ID: "points-first-hundred", Name: "First Hundred", Rarity: RarityCommon, Requirement: Requirement{Metric: MetricPoints, Threshold: 100}, RewardPoints: 10},
		{ID: "points-collector", Name: "Collector", Rarity: RarityRare, Requirement: Requirement{Metric: MetricPoints, Threshold: 1000}, RewardPoints: 50},
		{ID: "points-master", Name: "Master", Rarity: RarityEpic, Requirement: Requirement{Metric: MetricPoints, Threshold: 2500}, RewardPoints: 100},
		{ID: "streak-week", Name: "Week of Fire", Rarity: RarityUncommon, Requirement: Requirement{Metric: MetricStreak, Threshold: 7}, RewardPoints: 25},
		{ID: "quiz-perfect", Name: "Flawless", Rarity: RarityUncommon, Requirement: Requirement{Metric: MetricPerfectQuiz, Threshold: 1}, RewardPoints: 20},
	}
}

func TestEvaluator_NoThresholdCrossed(t *testing.T) {
	qualified := testEvaluator().Evaluate(
		fixtureCatalog(),
		Snapshot{TotalPoints: 10},
		map[shared.AchievementID]bool{},
		Signals{},
	)
	assert.Empty(t, qualified)
}

func TestEvaluator_SingleThreshold(t *testing.T) {
	qualified := testEvaluator().Evaluate(
		fixtureCatalog(),
		Snapshot{TotalPoints: 150},
		map[shared.AchievementID]bool{},
		Signals{},
	)
	require.Len(t, qualified, 1)
	assert.Equal(t, shared.AchievementID("points-first-hundred"), qualified[0].ID)
}

func TestEvaluator_BatchCrossingReturnsAllInOnePass(t *testing.T) {
	// One update that jumps past 100, 1000 and 2500 must qualify all
	// three definitions in a single pass.
	qualified := testEvaluator().Evaluate(
		fixtureCatalog(),
		Snapshot{TotalPoints: 2600},
		map[shared.AchievementID]bool{},
		Signals{},
	)
	require.Len(t, qualified, 3)
	ids := []shared.AchievementID{qualified[0].ID, qualified[1].ID, qualified[2].ID}
	assert.Contains(t, ids, shared.AchievementID("points-first-hundred"))
	assert.Contains(t, ids, shared.AchievementID("points-collector"))
	assert.Contains(t, ids, shared.AchievementID("points-master"))
}

func TestEvaluator_SkipsAlreadyEarned(t *testing.T) {
	earned := map[shared.AchievementID]bool{
		"points-first-hundred": true,
		"points-collector":     true,
	}
	qualified := testEvaluator().Evaluate(
		fixtureCatalog(),
		Snapshot{TotalPoints: 2600},
		earned,
		Signals{},
	)
	require.Len(t, qualified, 1)
	assert.Equal(t, shared.AchievementID("points-master"), qualified[0].ID)
}

func TestEvaluator_SignalMetrics(t *testing.T) {
	// Signals only count when the event sets the flag; persistent state
	// never satisfies a signal metric.
	qualified := testEvaluator().Evaluate(
		fixtureCatalog(),
		Snapshot{TotalPoints: 50, QuizzesCompleted: 99},
		map[shared.AchievementID]bool{},
		Signals{},
	)
	assert.Empty(t, qualified)

	qualified = testEvaluator().Evaluate(
		fixtureCatalog(),
		Snapshot{},
		map[shared.AchievementID]bool{},
		Signals{PerfectQuiz: true},
	)
	require.Len(t, qualified, 1)
	assert.Equal(t, shared.AchievementID("quiz-perfect"), qualified[0].ID)
}

func TestEvaluator_SkipsMalformedDefinitions(t *testing.T) {
	catalog := []Definition{
		{ID: "ok-def", Name: "OK", Rarity: RarityCommon, Requirement: Requirement{Metric: MetricPoints, Threshold: 10}},
		{ID: "bad-metric", Name: "Bad", Rarity: RarityCommon, Requirement: Requirement{Metric: "reputation", Threshold: 10}},
		{ID: "bad-threshold", Name: "Bad", Rarity: RarityCommon, Requirement: Requirement{Metric: MetricPoints, Threshold: 0}},
		{ID: "X", Name: "Bad ID", Rarity: RarityCommon, Requirement: Requirement{Metric: MetricPoints, Threshold: 10}},
		{ID: "also-ok", Name: "Also OK", Rarity: RarityCommon, Requirement: Requirement{Metric: MetricPoints, Threshold: 20}},
	}

	// Malformed entries are skipped; the rest of the catalog still runs.
	qualified := testEvaluator().Evaluate(
		catalog,
		Snapshot{TotalPoints: 100},
		map[shared.AchievementID]bool{},
		Signals{},
	)
	require.Len(t, qualified, 2)
	assert.Equal(t, shared.AchievementID("ok-def"), qualified[0].ID)
	assert.Equal(t, shared.AchievementID("also-ok"), qualified[1].ID)
}

func TestDefinition_Validate(t *testing.T) {
	valid := Definition{
		ID:          "streak-week",
		Name:        "Week of Fire",
		Rarity:      RarityUncommon,
		Requirement: Requirement{Metric: MetricStreak, Threshold: 7},
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(d *Definition)
	}{
		{"empty name", func(d *Definition) { d.Name = "" }},
		{"bad id", func(d *Definition) { d.ID = "!" }},
		{"unknown metric", func(d *Definition) { d.Requirement.Metric = "karma" }},
		{"zero threshold", func(d *Definition) { d.Requirement.Threshold = 0 }},
		{"negative reward", func(d *Definition) { d.RewardPoints = -5 }},
		{"bad rarity", func(d *Definition) { d.Rarity = "mythic" }},
		{"signal with threshold above one", func(d *Definition) {
			d.Requirement = Requirement{Metric: MetricNightOwl, Threshold: 3}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := valid
			tt.mutate(&def)
			assert.Error(t, def.Validate())
		})
	}
}

func TestDefaultCatalog_AllValid(t *testing.T) {
	seen := make(map[shared.AchievementID]bool)
	for _, def := range DefaultCatalog() {
		assert.NoError(t, def.Validate(), "definition %s", def.ID)
		assert.False(t, seen[def.ID], "duplicate id %s", def.ID)
		seen[def.ID] = true
	}
}

func TestEarnedSet(t *testing.T) {
	a1, err := NewAward(shared.UserID("5b3c1a9e-0b2f-4f7e-9d7a-2c3e4f5a6b7c"), "streak-week")
	require.NoError(t, err)
	a2, err := NewAward(shared.UserID("5b3c1a9e-0b2f-4f7e-9d7a-2c3e4f5a6b7c"), "quiz-perfect")
	require.NoError(t, err)

	earned := EarnedSet([]*Award{a1, a2})
	assert.True(t, earned["streak-week"])
	assert.True(t, earned["quiz-perfect"])
	assert.False(t, earned["points-master"])
}
