package command

import (
	"context"
	"fmt"
	"time"

	"github.com/readstack-hub/progression-engine/internal/domain/achievement"
	"github.com/readstack-hub/progression-engine/internal/domain/progression"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/pkg/logger"
	"github.com/readstack-hub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOUCH STREAK COMMAND
// Applies the streak transition for one qualifying activity and runs the
// award cascade. Same-day touches are idempotent; stale timestamps are
// ignored without error.
// ══════════════════════════════════════════════════════════════════════════════

// TouchStreakCommand marks a day of activity for a user.
type TouchStreakCommand struct {
	// UserID is the owner of the streak.
	UserID string

	// Timestamp is when the activity happened (defaults to now). Clients
	// may pass their own clock; an out-of-order timestamp is a no-op.
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c TouchStreakCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return fmt.Errorf("touch_streak: %w", err)
	}
	return nil
}

// TouchStreakResult contains the outcome of a TouchStreak command.
type TouchStreakResult struct {
	// Aggregate is the post-commit aggregate state.
	Aggregate *progression.Aggregate

	// Transition describes what happened to the streak.
	Transition progression.StreakTransition

	// NewlyAwarded lists achievements earned by this command.
	NewlyAwarded []achievement.Definition
}

// TouchStreakHandler handles the TouchStreakCommand.
type TouchStreakHandler struct {
	store     progression.Store
	cascade   *awardCascade
	publisher shared.EventPublisher
	location  *time.Location
	log       *logger.Logger
}

// NewTouchStreakHandler creates a new TouchStreakHandler.
func NewTouchStreakHandler(
	store progression.Store,
	evaluator *achievement.Evaluator,
	catalog achievement.Provider,
	publisher shared.EventPublisher,
	location *time.Location,
	log *logger.Logger,
) *TouchStreakHandler {
	if log == nil {
		log = logger.Default()
	}
	return &TouchStreakHandler{
		store:     store,
		cascade:   newAwardCascade(evaluator, catalog, log),
		publisher: publisher,
		location:  location,
		log:       log.With(logger.Component("touch_streak")),
	}
}

// Handle executes the touch streak command.
func (h *TouchStreakHandler) Handle(ctx context.Context, cmd TouchStreakCommand) (*TouchStreakResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	userID, _ := shared.NewUserID(cmd.UserID)

	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	signals := timeSignals(timestamp, h.location)

	result := &TouchStreakResult{}
	var events []shared.Event

	err := h.store.WithUser(ctx, userID, func(tx progression.UserTx) error {
		agg := tx.Aggregate()
		previous := agg.Streak.Current
		previousActivity := agg.Streak.LastActivity

		transition := agg.TouchStreak(timestamp, h.location)
		result.Transition = transition

		switch transition {
		case progression.StreakStarted, progression.StreakExtended:
			events = append(events, shared.NewStreakAdvancedEvent(
				userID.String(), agg.Streak.Current, agg.Streak.Longest,
			))
		case progression.StreakBroken:
			lastDay := timeutil.DayOf(previousActivity, h.location)
			daysMissed := timeutil.DaysBetween(lastDay, timestamp, h.location) - 1
			if daysMissed < 0 {
				daysMissed = 0
			}
			events = append(events, shared.NewStreakResetEvent(userID.String(), previous, daysMissed))
		}

		awarded, cascadeEvents, err := h.cascade.run(ctx, tx, signals)
		if err != nil {
			return err
		}
		result.NewlyAwarded = awarded
		events = append(events, cascadeEvents...)

		result.Aggregate = agg.Clone()
		return tx.SaveAggregate(agg)
	})
	if err != nil {
		return nil, fmt.Errorf("touch_streak: %w", err)
	}

	publishEvents(h.publisher, h.log, events, cmd.CorrelationID)
	return result, nil
}
