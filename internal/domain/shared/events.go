// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Progression events
	EventPointsAdded        EventType = "progression.points_added"
	EventLevelUp            EventType = "progression.level_up"
	EventStreakAdvanced     EventType = "progression.streak_advanced"
	EventStreakReset        EventType = "progression.streak_reset"
	EventCounterIncremented EventType = "progression.counter_incremented"

	// Achievement events
	EventAchievementAwarded EventType = "achievement.awarded"
	EventAchievementSeen    EventType = "achievement.seen"

	// System events
	EventAggregateReconciled EventType = "system.aggregate_reconciled"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progression Events
// ═══════════════════════════════════════════════════════════════════════════

// PointsAddedEvent is emitted when a user gains points.
type PointsAddedEvent struct {
	BaseEvent
	UserID      string `json:"user_id"`
	Amount      int    `json:"amount"`
	NewTotal    int    `json:"new_total"`
	Reason      string `json:"reason"` // e.g., "quiz_correct", "achievement_bonus"
	ReferenceID string `json:"reference_id,omitempty"`
}

// Payload implements Event interface.
func (e PointsAddedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      e.UserID,
		"amount":       e.Amount,
		"new_total":    e.NewTotal,
		"reason":       e.Reason,
		"reference_id": e.ReferenceID,
	}
}

// NewPointsAddedEvent creates a new PointsAddedEvent.
func NewPointsAddedEvent(userID string, amount, newTotal int, reason, referenceID string) PointsAddedEvent {
	return PointsAddedEvent{
		BaseEvent:   NewBaseEvent(EventPointsAdded, userID),
		UserID:      userID,
		Amount:      amount,
		NewTotal:    newTotal,
		Reason:      reason,
		ReferenceID: referenceID,
	}
}

// LevelUpEvent is emitted when a user's level projection crosses a threshold.
type LevelUpEvent struct {
	BaseEvent
	UserID      string `json:"user_id"`
	OldLevel    int    `json:"old_level"`
	NewLevel    int    `json:"new_level"`
	TotalPoints int    `json:"total_points"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      e.UserID,
		"old_level":    e.OldLevel,
		"new_level":    e.NewLevel,
		"total_points": e.TotalPoints,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID string, oldLevel, newLevel, totalPoints int) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent:   NewBaseEvent(EventLevelUp, userID),
		UserID:      userID,
		OldLevel:    oldLevel,
		NewLevel:    newLevel,
		TotalPoints: totalPoints,
	}
}

// StreakAdvancedEvent is emitted when a user's streak grows or starts.
type StreakAdvancedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
}

// Payload implements Event interface.
func (e StreakAdvancedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"current_streak": e.CurrentStreak,
		"longest_streak": e.LongestStreak,
	}
}

// NewStreakAdvancedEvent creates a new StreakAdvancedEvent.
func NewStreakAdvancedEvent(userID string, currentStreak, longestStreak int) StreakAdvancedEvent {
	return StreakAdvancedEvent{
		BaseEvent:     NewBaseEvent(EventStreakAdvanced, userID),
		UserID:        userID,
		CurrentStreak: currentStreak,
		LongestStreak: longestStreak,
	}
}

// StreakResetEvent is emitted when a gap in activity resets a streak to 1.
type StreakResetEvent struct {
	BaseEvent
	UserID         string `json:"user_id"`
	PreviousStreak int    `json:"previous_streak"`
	DaysMissed     int    `json:"days_missed"`
}

// Payload implements Event interface.
func (e StreakResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"previous_streak": e.PreviousStreak,
		"days_missed":     e.DaysMissed,
	}
}

// NewStreakResetEvent creates a new StreakResetEvent.
func NewStreakResetEvent(userID string, previousStreak, daysMissed int) StreakResetEvent {
	return StreakResetEvent{
		BaseEvent:      NewBaseEvent(EventStreakReset, userID),
		UserID:         userID,
		PreviousStreak: previousStreak,
		DaysMissed:     daysMissed,
	}
}

// CounterIncrementedEvent is emitted when a named activity counter grows.
type CounterIncrementedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	Counter  string `json:"counter"`
	By       int    `json:"by"`
	NewValue int    `json:"new_value"`
}

// Payload implements Event interface.
func (e CounterIncrementedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"counter":   e.Counter,
		"by":        e.By,
		"new_value": e.NewValue,
	}
}

// NewCounterIncrementedEvent creates a new CounterIncrementedEvent.
func NewCounterIncrementedEvent(userID, counter string, by, newValue int) CounterIncrementedEvent {
	return CounterIncrementedEvent{
		BaseEvent: NewBaseEvent(EventCounterIncremented, userID),
		UserID:    userID,
		Counter:   counter,
		By:        by,
		NewValue:  newValue,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementAwardedEvent is emitted exactly once per (user, achievement) pair.
type AchievementAwardedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	AchievementID string `json:"achievement_id"`
	Name          string `json:"name"`
	Rarity        string `json:"rarity"`
	RewardPoints  int    `json:"reward_points"`
}

// Payload implements Event interface.
func (e AchievementAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"achievement_id": e.AchievementID,
		"name":           e.Name,
		"rarity":         e.Rarity,
		"reward_points":  e.RewardPoints,
	}
}

// NewAchievementAwardedEvent creates a new AchievementAwardedEvent.
func NewAchievementAwardedEvent(userID, achievementID, name, rarity string, rewardPoints int) AchievementAwardedEvent {
	return AchievementAwardedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementAwarded, userID),
		UserID:        userID,
		AchievementID: achievementID,
		Name:          name,
		Rarity:        rarity,
		RewardPoints:  rewardPoints,
	}
}

// AchievementSeenEvent is emitted when the UI acknowledges an award.
type AchievementSeenEvent struct {
	BaseEvent
	UserID         string   `json:"user_id"`
	AchievementIDs []string `json:"achievement_ids"`
}

// Payload implements Event interface.
func (e AchievementSeenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"achievement_ids": e.AchievementIDs,
	}
}

// NewAchievementSeenEvent creates a new AchievementSeenEvent.
func NewAchievementSeenEvent(userID string, achievementIDs []string) AchievementSeenEvent {
	return AchievementSeenEvent{
		BaseEvent:      NewBaseEvent(EventAchievementSeen, userID),
		UserID:         userID,
		AchievementIDs: achievementIDs,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// AggregateReconciledEvent is emitted when the reconciliation job repairs an
// aggregate whose totalPoints drifted from the ledger sum.
type AggregateReconciledEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	OldTotal  int    `json:"old_total"`
	NewTotal  int    `json:"new_total"`
	LedgerSum int    `json:"ledger_sum"`
}

// Payload implements Event interface.
func (e AggregateReconciledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"old_total":  e.OldTotal,
		"new_total":  e.NewTotal,
		"ledger_sum": e.LedgerSum,
	}
}

// NewAggregateReconciledEvent creates a new AggregateReconciledEvent.
func NewAggregateReconciledEvent(userID string, oldTotal, newTotal, ledgerSum int) AggregateReconciledEvent {
	return AggregateReconciledEvent{
		BaseEvent: NewBaseEvent(EventAggregateReconciled, userID),
		UserID:    userID,
		OldTotal:  oldTotal,
		NewTotal:  newTotal,
		LedgerSum: ledgerSum,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
