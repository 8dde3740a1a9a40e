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
// ADD POINTS COMMAND
// Appends a ledger entry, grows the aggregate total and runs the award
// cascade, all inside one transaction locked on the user's aggregate row.
// ══════════════════════════════════════════════════════════════════════════════

// AddPointsCommand contains the data to grant points to a user.
type AddPointsCommand struct {
	// UserID is the owner of the points (trusted, already authenticated).
	UserID string

	// Points is the positive delta to apply.
	Points int

	// Reason classifies the grant (quiz_correct, note_created, ...).
	Reason string

	// ReferenceID is the entity that triggered the grant, if any.
	ReferenceID string

	// PerfectQuiz is set by the caller when the triggering quiz had no
	// wrong answers. One-shot signal for signal-metric achievements.
	PerfectQuiz bool

	// Timestamp is when the triggering action happened (defaults to now).
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c AddPointsCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return fmt.Errorf("add_points: %w", err)
	}
	if c.Points <= 0 {
		return fmt.Errorf("add_points: %w", shared.ErrInvalidPointAmount)
	}
	if _, err := shared.NewPointReason(c.Reason); err != nil {
		return fmt.Errorf("add_points: %w", err)
	}
	return nil
}

// AddPointsResult contains the outcome of an AddPoints command.
type AddPointsResult struct {
	// Aggregate is the post-commit aggregate state.
	Aggregate *progression.Aggregate

	// Level is the level projection of the new total.
	Level shared.Level

	// NewlyAwarded lists achievements earned by this command, in catalog
	// order, so the caller can render notifications without a second trip.
	NewlyAwarded []achievement.Definition

	// AppliedPoints is the delta applied, excluding achievement bonuses.
	AppliedPoints int
}

// AddPointsHandler handles the AddPointsCommand.
type AddPointsHandler struct {
	store     progression.Store
	cascade   *awardCascade
	publisher shared.EventPublisher
	location  *time.Location
	log       *logger.Logger
}

// NewAddPointsHandler creates a new AddPointsHandler.
func NewAddPointsHandler(
	store progression.Store,
	evaluator *achievement.Evaluator,
	catalog achievement.Provider,
	publisher shared.EventPublisher,
	location *time.Location,
	log *logger.Logger,
) *AddPointsHandler {
	if log == nil {
		log = logger.Default()
	}
	return &AddPointsHandler{
		store:     store,
		cascade:   newAwardCascade(evaluator, catalog, log),
		publisher: publisher,
		location:  location,
		log:       log.With(logger.Component("add_points")),
	}
}

// Handle executes the add points command.
func (h *AddPointsHandler) Handle(ctx context.Context, cmd AddPointsCommand) (*AddPointsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	userID, _ := shared.NewUserID(cmd.UserID)
	reason, _ := shared.NewPointReason(cmd.Reason)

	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	signals := timeSignals(timestamp, h.location)
	signals.PerfectQuiz = cmd.PerfectQuiz

	result := &AddPointsResult{AppliedPoints: cmd.Points}
	var events []shared.Event

	err := h.store.WithUser(ctx, userID, func(tx progression.UserTx) error {
		agg := tx.Aggregate()
		oldLevel := agg.Level()

		if _, err := agg.AddPoints(cmd.Points); err != nil {
			return err
		}

		entry, err := progression.NewLedgerEntry(userID, cmd.Points, reason, cmd.ReferenceID)
		if err != nil {
			return err
		}
		if err := tx.AppendLedger(entry); err != nil {
			return err
		}
		events = append(events, shared.NewPointsAddedEvent(
			userID.String(), cmd.Points, agg.TotalPoints.Int(), reason.String(), cmd.ReferenceID,
		))

		awarded, cascadeEvents, err := h.cascade.run(ctx, tx, signals)
		if err != nil {
			return err
		}
		result.NewlyAwarded = awarded
		events = append(events, cascadeEvents...)

		if newLevel := agg.Level(); newLevel > oldLevel {
			events = append(events, shared.NewLevelUpEvent(
				userID.String(), oldLevel.Int(), newLevel.Int(), agg.TotalPoints.Int(),
			))
		}

		result.Aggregate = agg.Clone()
		result.Level = agg.Level()
		return tx.SaveAggregate(agg)
	})
	if err != nil {
		return nil, fmt.Errorf("add_points: %w", err)
	}

	h.publish(events, cmd.CorrelationID)
	return result, nil
}

// publish sends events after the transaction committed. A publish failure
// never undoes the committed write; it is logged and the projections catch
// up on the next event for the same user.
func (h *AddPointsHandler) publish(events []shared.Event, correlationID string) {
	publishEvents(h.publisher, h.log, events, correlationID)
}

// timeSignals derives the time-of-day signal flags from the event timestamp
// in the engine's configured timezone.
func timeSignals(t time.Time, loc *time.Location) achievement.Signals {
	return achievement.Signals{
		EarlyBird: timeutil.IsEarlyMorning(t, loc),
		NightOwl:  timeutil.IsLateNight(t, loc),
	}
}

// publishEvents is shared by all mutating handlers.
func publishEvents(publisher shared.EventPublisher, log *logger.Logger, events []shared.Event, correlationID string) {
	if publisher == nil {
		return
	}
	for _, event := range events {
		if err := publisher.Publish(event); err != nil {
			log.Warn("failed to publish domain event",
				logger.String("event_type", string(event.EventType())),
				logger.String("correlation_id", correlationID),
				logger.Err(err),
			)
		}
	}
}
