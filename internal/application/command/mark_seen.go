package command

import (
	"context"
	"fmt"

	"github.com/readstack-hub/progression-engine/internal/domain/progression"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK SEEN COMMAND
// One-way seen flag on awards, scoped to the owning user. Ids that do not
// belong to the user or do not exist are silently skipped.
// ══════════════════════════════════════════════════════════════════════════════

// MarkSeenCommand flips the seen flag on a user's awards.
type MarkSeenCommand struct {
	// UserID is the owner of the awards.
	UserID string

	// AchievementIDs are the awards the UI has displayed.
	AchievementIDs []string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c MarkSeenCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return fmt.Errorf("mark_seen: %w", err)
	}
	if len(c.AchievementIDs) == 0 {
		return fmt.Errorf("mark_seen: %w", shared.NewDomainError(
			"achievement", "MarkSeen", shared.ErrEmptyValue, "achievement_ids is required"))
	}
	return nil
}

// MarkSeenResult contains the outcome of a MarkSeen command.
type MarkSeenResult struct {
	// Updated is the number of awards actually flipped to seen.
	Updated int
}

// MarkSeenHandler handles the MarkSeenCommand.
type MarkSeenHandler struct {
	store     progression.Store
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewMarkSeenHandler creates a new MarkSeenHandler.
func NewMarkSeenHandler(store progression.Store, publisher shared.EventPublisher, log *logger.Logger) *MarkSeenHandler {
	if log == nil {
		log = logger.Default()
	}
	return &MarkSeenHandler{
		store:     store,
		publisher: publisher,
		log:       log.With(logger.Component("mark_seen")),
	}
}

// Handle executes the mark seen command.
func (h *MarkSeenHandler) Handle(ctx context.Context, cmd MarkSeenCommand) (*MarkSeenResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	userID, _ := shared.NewUserID(cmd.UserID)

	// Unknown or malformed ids are dropped, not rejected: the command is
	// a UI acknowledgement, not a validation surface.
	ids := make([]shared.AchievementID, 0, len(cmd.AchievementIDs))
	for _, raw := range cmd.AchievementIDs {
		id, err := shared.NewAchievementID(raw)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	result := &MarkSeenResult{}
	if len(ids) == 0 {
		return result, nil
	}

	err := h.store.WithUser(ctx, userID, func(tx progression.UserTx) error {
		updated, err := tx.MarkAwardsSeen(ids)
		if err != nil {
			return err
		}
		result.Updated = updated
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mark_seen: %w", err)
	}

	if result.Updated > 0 {
		seen := make([]string, len(ids))
		for i, id := range ids {
			seen[i] = id.String()
		}
		publishEvents(h.publisher, h.log, []shared.Event{
			shared.NewAchievementSeenEvent(userID.String(), seen),
		}, cmd.CorrelationID)
	}

	return result, nil
}
