package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles and gradual rollouts.
// Supports percentage-based rollout, per-user overrides, and
// time-based activation windows.
type FeatureFlags struct {
	mu sync.RWMutex

	// Core features
	features map[string]*Feature

	// Override rules (for testing/debugging)
	userOverrides map[string]map[string]bool // userID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Users are assigned based on hash of their ID
	RolloutPercent int

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time

	// A/B test variant (for experiments)
	Variants []string
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	UserID  string // User UUID
	IsAdmin bool   // Is admin / internal caller
}

// Predefined feature flag names.
const (
	// === Award Features ===
	FeatureAwardsEvaluation  = "awards.evaluation"    // Evaluate achievements on writes
	FeatureAwardsRetroactive = "awards.retroactive"   // Grant awards found by reconciliation
	FeatureAwardsRewardXP    = "awards.reward_points" // Credit reward points for new awards

	// === Streak Features ===
	FeatureStreaksTracking = "streaks.tracking" // Track daily streaks
	FeatureStreaksFreeze   = "streaks.freeze"   // Streak freeze tokens

	// === Read-side Features ===
	FeatureCacheProgressSnapshot = "cache.progress_snapshot" // Cache progress views in Redis
	FeatureScoreProjection       = "projection.scores"       // Maintain sorted-set score projection

	// === Maintenance Features ===
	FeatureReconcileAutoRepair = "reconcile.auto_repair" // Repair aggregate drift automatically

	// === Experimental Features ===
	FeatureExperimentalMultiplier = "experimental.point_multiplier" // Seasonal point multipliers
	FeatureExperimentalWebhooks   = "experimental.webhooks"         // Outbound webhook updates
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}

	// Initialize all features with defaults
	ff.initializeDefaults()

	// Load overrides from environment
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	// Award features - core behavior, enabled by default
	ff.features[FeatureAwardsEvaluation] = &Feature{
		Name:           FeatureAwardsEvaluation,
		Description:    "Evaluate achievement requirements on every write",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureAwardsRetroactive] = &Feature{
		Name:           FeatureAwardsRetroactive,
		Description:    "Grant missed awards during reconciliation",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureAwardsRewardXP] = &Feature{
		Name:           FeatureAwardsRewardXP,
		Description:    "Credit reward points when an achievement unlocks",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Streak features
	ff.features[FeatureStreaksTracking] = &Feature{
		Name:           FeatureStreaksTracking,
		Description:    "Track daily activity streaks",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureStreaksFreeze] = &Feature{
		Name:           FeatureStreaksFreeze,
		Description:    "Allow streak freeze tokens",
		Enabled:        false, // Phase 2
		RolloutPercent: 0,
	}

	// Read-side features
	ff.features[FeatureCacheProgressSnapshot] = &Feature{
		Name:           FeatureCacheProgressSnapshot,
		Description:    "Cache progress snapshots in Redis",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureScoreProjection] = &Feature{
		Name:           FeatureScoreProjection,
		Description:    "Maintain the sorted-set score projection",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Maintenance features
	ff.features[FeatureReconcileAutoRepair] = &Feature{
		Name:           FeatureReconcileAutoRepair,
		Description:    "Repair aggregate totals that drift from the ledger",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Experimental features - disabled by default
	ff.features[FeatureExperimentalMultiplier] = &Feature{
		Name:           FeatureExperimentalMultiplier,
		Description:    "Seasonal point multipliers",
		Enabled:        false,
		RolloutPercent: 0,
	}

	ff.features[FeatureExperimentalWebhooks] = &Feature{
		Name:           FeatureExperimentalWebhooks,
		Description:    "Outbound webhook updates",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_STREAKS_TRACKING=true
// Example: FEATURE_STREAKS_FREEZE=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			// Try parsing as boolean
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			// Try parsing as percentage
			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "streaks.tracking" -> "FEATURE_STREAKS_TRACKING"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check user overrides first
	if ctx != nil && ctx.UserID != "" {
		if userOverrides, ok := ff.userOverrides[ctx.UserID]; ok {
			if enabled, ok := userOverrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	// Admin callers get all features
	if ctx != nil && ctx.IsAdmin {
		return true
	}

	// Check if feature is enabled at all
	if !feature.Enabled {
		return false
	}

	// Check time-based activation
	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	// Check rollout percentage
	if feature.RolloutPercent < 100 && ctx != nil && ctx.UserID != "" {
		return ff.isInRollout(ctx.UserID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if a user is in the rollout percentage.
// Uses consistent hashing so users stay in their bucket.
func (ff *FeatureFlags) isInRollout(userID string, featureName string, percent int) bool {
	// Create a consistent hash for this user+feature combination
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	hash := h.Sum32()

	// Map to 0-99 range
	bucket := int(hash % 100)

	return bucket < percent
}

// GetVariant returns the A/B test variant for a user.
// Returns empty string if no variants defined or feature disabled.
func (ff *FeatureFlags) GetVariant(featureName string, ctx *FeatureContext) string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok || !ff.IsEnabled(featureName, ctx) {
		return ""
	}

	if len(feature.Variants) == 0 {
		return ""
	}

	// Use consistent hashing to assign variant
	h := fnv.New32a()
	h.Write([]byte(featureName + "_variant"))
	h.Write([]byte(ctx.UserID))
	hash := h.Sum32()

	variantIndex := int(hash % uint32(len(feature.Variants)))
	return feature.Variants[variantIndex]
}

// SetUserOverride sets a feature override for a specific user.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetUserOverride(userID string, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		// Return a copy
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Convenience methods for common checks ---

// AwardsEnabled checks if achievement evaluation should run for a write.
func (ff *FeatureFlags) AwardsEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureAwardsEvaluation, ctx)
}

// ProjectionsEnabled checks if any read-side projections are active.
func (ff *FeatureFlags) ProjectionsEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureCacheProgressSnapshot, ctx) ||
		ff.IsEnabled(FeatureScoreProjection, ctx)
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
