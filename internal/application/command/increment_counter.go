package command

import (
	"context"
	"fmt"
	"time"

	"github.com/readstack-hub/progression-engine/internal/domain/achievement"
	"github.com/readstack-hub/progression-engine/internal/domain/progression"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// INCREMENT COUNTER COMMAND
// Grows one named activity counter and runs the award cascade.
// ══════════════════════════════════════════════════════════════════════════════

// IncrementCounterCommand increments a named counter for a user.
type IncrementCounterCommand struct {
	// UserID is the owner of the counter.
	UserID string

	// Counter is the counter name (quizzes_completed, items_read, ...).
	Counter string

	// By is the increment amount. Defaults to 1 when zero.
	By int

	// PerfectQuiz marks a flawless quiz run for signal achievements.
	PerfectQuiz bool

	// Timestamp is when the activity happened (defaults to now).
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c IncrementCounterCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return fmt.Errorf("increment_counter: %w", err)
	}
	if _, err := shared.NewCounterName(c.Counter); err != nil {
		return fmt.Errorf("increment_counter: %w", err)
	}
	if c.By < 0 {
		return fmt.Errorf("increment_counter: %w", shared.ErrInvalidIncrement)
	}
	return nil
}

// IncrementCounterResult contains the outcome of an IncrementCounter command.
type IncrementCounterResult struct {
	// Aggregate is the post-commit aggregate state.
	Aggregate *progression.Aggregate

	// Counter is the incremented counter.
	Counter shared.CounterName

	// NewValue is the counter value after the increment.
	NewValue int

	// NewlyAwarded lists achievements earned by this command.
	NewlyAwarded []achievement.Definition
}

// IncrementCounterHandler handles the IncrementCounterCommand.
type IncrementCounterHandler struct {
	store     progression.Store
	cascade   *awardCascade
	publisher shared.EventPublisher
	location  *time.Location
	log       *logger.Logger
}

// NewIncrementCounterHandler creates a new IncrementCounterHandler.
func NewIncrementCounterHandler(
	store progression.Store,
	evaluator *achievement.Evaluator,
	catalog achievement.Provider,
	publisher shared.EventPublisher,
	location *time.Location,
	log *logger.Logger,
) *IncrementCounterHandler {
	if log == nil {
		log = logger.Default()
	}
	return &IncrementCounterHandler{
		store:     store,
		cascade:   newAwardCascade(evaluator, catalog, log),
		publisher: publisher,
		location:  location,
		log:       log.With(logger.Component("increment_counter")),
	}
}

// Handle executes the increment counter command.
func (h *IncrementCounterHandler) Handle(ctx context.Context, cmd IncrementCounterCommand) (*IncrementCounterResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	userID, _ := shared.NewUserID(cmd.UserID)
	counter, _ := shared.NewCounterName(cmd.Counter)

	by := cmd.By
	if by == 0 {
		by = 1
	}

	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	signals := timeSignals(timestamp, h.location)
	signals.PerfectQuiz = cmd.PerfectQuiz

	result := &IncrementCounterResult{Counter: counter}
	var events []shared.Event

	err := h.store.WithUser(ctx, userID, func(tx progression.UserTx) error {
		agg := tx.Aggregate()

		value, err := agg.IncrementCounter(counter, by)
		if err != nil {
			return err
		}
		result.NewValue = value
		events = append(events, shared.NewCounterIncrementedEvent(
			userID.String(), counter.String(), by, value,
		))

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
		return nil, fmt.Errorf("increment_counter: %w", err)
	}

	publishEvents(h.publisher, h.log, events, cmd.CorrelationID)
	return result, nil
}
