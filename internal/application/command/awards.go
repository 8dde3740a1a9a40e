// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"

	"github.com/readstack-hub/progression-engine/internal/domain/achievement"
	"github.com/readstack-hub/progression-engine/internal/domain/progression"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD CASCADE
// Every mutating command ends with the same cascade, inside the same
// user-scoped transaction: evaluate the catalog against the post-mutation
// aggregate, insert awards idempotently, grant bonus points through the
// ledger, and re-evaluate exactly once for thresholds crossed by the bonus.
// ══════════════════════════════════════════════════════════════════════════════

// maxEvaluationPasses caps bonus-driven re-evaluation. One initial pass plus
// one re-pass; badge-triggered badges must not cascade unboundedly.
const maxEvaluationPasses = 2

// awardCascade runs achievement evaluation for mutating commands.
type awardCascade struct {
	evaluator *achievement.Evaluator
	catalog   achievement.Provider
	log       *logger.Logger
}

func newAwardCascade(evaluator *achievement.Evaluator, catalog achievement.Provider, log *logger.Logger) *awardCascade {
	if log == nil {
		log = logger.Default()
	}
	return &awardCascade{
		evaluator: evaluator,
		catalog:   catalog,
		log:       log.With(logger.Component("award_cascade")),
	}
}

// run evaluates and awards inside tx. The aggregate held by tx is mutated in
// place when bonus points apply; the caller saves it once afterwards.
// Returns the newly awarded definitions and the domain events to publish
// after commit.
func (c *awardCascade) run(
	ctx context.Context,
	tx progression.UserTx,
	signals achievement.Signals,
) ([]achievement.Definition, []shared.Event, error) {
	catalog, err := c.catalog.Catalog(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("award cascade: load catalog: %w", err)
	}

	earned, err := tx.EarnedAchievements()
	if err != nil {
		return nil, nil, fmt.Errorf("award cascade: load earned set: %w", err)
	}

	agg := tx.Aggregate()

	var (
		newlyAwarded []achievement.Definition
		events       []shared.Event
	)

	for pass := 0; pass < maxEvaluationPasses; pass++ {
		qualified := c.evaluator.Evaluate(catalog, snapshotOf(agg), earned, signals)
		if len(qualified) == 0 {
			break
		}

		bonusApplied := false
		for _, def := range qualified {
			award, err := achievement.NewAward(agg.UserID, def.ID)
			if err != nil {
				return nil, nil, fmt.Errorf("award cascade: build award: %w", err)
			}

			inserted, err := tx.InsertAward(award)
			if err != nil {
				return nil, nil, fmt.Errorf("award cascade: insert award: %w", err)
			}
			earned[def.ID] = true

			// A concurrent transaction already holds the award; the
			// storage uniqueness constraint resolved the race for us.
			if !inserted {
				continue
			}

			newlyAwarded = append(newlyAwarded, def)
			events = append(events, shared.NewAchievementAwardedEvent(
				agg.UserID.String(), def.ID.String(), def.Name, def.Rarity.String(), def.RewardPoints,
			))

			if def.RewardPoints > 0 {
				if _, err := agg.AddPoints(def.RewardPoints); err != nil {
					return nil, nil, fmt.Errorf("award cascade: apply bonus: %w", err)
				}
				entry, err := progression.NewLedgerEntry(
					agg.UserID, def.RewardPoints, shared.ReasonAchievementBonus, def.ID.String(),
				)
				if err != nil {
					return nil, nil, fmt.Errorf("award cascade: ledger bonus: %w", err)
				}
				if err := tx.AppendLedger(entry); err != nil {
					return nil, nil, fmt.Errorf("award cascade: append bonus: %w", err)
				}
				events = append(events, shared.NewPointsAddedEvent(
					agg.UserID.String(), def.RewardPoints, agg.TotalPoints.Int(),
					shared.ReasonAchievementBonus.String(), def.ID.String(),
				))
				bonusApplied = true
			}
		}

		if !bonusApplied {
			break
		}
		// Signals are one-shot: they qualified on the first pass or not
		// at all, so the re-pass sees only persistent metrics.
		signals = achievement.Signals{}
	}

	return newlyAwarded, events, nil
}

// snapshotOf projects the aggregate into the evaluator's input.
func snapshotOf(agg *progression.Aggregate) achievement.Snapshot {
	return achievement.Snapshot{
		TotalPoints:         agg.TotalPoints.Int(),
		CurrentStreak:       agg.Streak.Current,
		QuizzesCompleted:    agg.QuizzesCompleted,
		ChecklistsCompleted: agg.ChecklistsCompleted,
		NotesCreated:        agg.NotesCreated,
		ItemsRead:           agg.ItemsRead,
	}
}
