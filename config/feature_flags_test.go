package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flagTestUserID = "5b3c1a9e-0b2f-4f7e-9d7a-2c3e4f5a6b7c"

func TestFeatureFlags_Defaults(t *testing.T) {
	ff := LoadFeatureFlags()

	// Gates the binaries consult at bootstrap.
	assert.True(t, ff.IsEnabled(FeatureAwardsEvaluation, nil))
	assert.True(t, ff.IsEnabled(FeatureCacheProgressSnapshot, nil))
	assert.True(t, ff.IsEnabled(FeatureScoreProjection, nil))
	assert.True(t, ff.IsEnabled(FeatureReconcileAutoRepair, nil))

	// Phase 2 and experimental features stay off.
	assert.False(t, ff.IsEnabled(FeatureStreaksFreeze, nil))
	assert.False(t, ff.IsEnabled(FeatureExperimentalMultiplier, nil))
	assert.False(t, ff.IsEnabled(FeatureExperimentalWebhooks, nil))

	// Unknown features are disabled, not an error.
	assert.False(t, ff.IsEnabled("no.such.feature", nil))
}

func TestFeatureFlags_EnvOverride(t *testing.T) {
	t.Setenv("FEATURE_RECONCILE_AUTO_REPAIR", "false")
	t.Setenv("FEATURE_STREAKS_FREEZE", "true")

	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled(FeatureReconcileAutoRepair, nil))
	assert.True(t, ff.IsEnabled(FeatureStreaksFreeze, nil))
}

func TestFeatureFlags_PercentRolloutIsConsistent(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureScoreProjection, 50))

	ctx := &FeatureContext{UserID: flagTestUserID}

	// The same user lands in the same bucket on every check.
	first := ff.IsEnabled(FeatureScoreProjection, ctx)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.IsEnabled(FeatureScoreProjection, ctx))
	}

	// The boundaries are absolute regardless of user.
	require.NoError(t, ff.SetRolloutPercent(FeatureScoreProjection, 0))
	assert.False(t, ff.IsEnabled(FeatureScoreProjection, ctx))
	require.NoError(t, ff.SetRolloutPercent(FeatureScoreProjection, 100))
	assert.True(t, ff.IsEnabled(FeatureScoreProjection, ctx))

	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureScoreProjection, 101), ErrInvalidRolloutPercent)
}

func TestFeatureFlags_UserOverride(t *testing.T) {
	ff := LoadFeatureFlags()
	ctx := &FeatureContext{UserID: flagTestUserID}

	ff.SetUserOverride(flagTestUserID, FeatureAwardsEvaluation, false)
	assert.False(t, ff.IsEnabled(FeatureAwardsEvaluation, ctx))
	assert.True(t, ff.IsEnabled(FeatureAwardsEvaluation, nil), "other callers are unaffected")

	ff.ClearUserOverrides(flagTestUserID)
	assert.True(t, ff.IsEnabled(FeatureAwardsEvaluation, ctx))
}

func TestFeatureFlags_AdminSeesEverything(t *testing.T) {
	ff := LoadFeatureFlags()
	admin := &FeatureContext{UserID: flagTestUserID, IsAdmin: true}

	assert.True(t, ff.IsEnabled(FeatureStreaksFreeze, admin))
	assert.True(t, ff.IsEnabled(FeatureExperimentalWebhooks, admin))
}

func TestFeatureFlags_ConvenienceChecks(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.True(t, ff.AwardsEnabled(nil))
	assert.True(t, ff.ProjectionsEnabled(nil))

	require.NoError(t, ff.DisableFeature(FeatureCacheProgressSnapshot))
	assert.True(t, ff.ProjectionsEnabled(nil), "score projection still active")

	require.NoError(t, ff.DisableFeature(FeatureScoreProjection))
	assert.False(t, ff.ProjectionsEnabled(nil))
}
