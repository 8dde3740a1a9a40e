// Package jobs contains implementations of scheduled background jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/readstack-hub/progression-engine/internal/domain/progression"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/pkg/logger"
	"github.com/readstack-hub/progression-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE LEDGER JOB
// ══════════════════════════════════════════════════════════════════════════════

// ScoreWriter repairs the points projection after an aggregate is fixed.
type ScoreWriter interface {
	UpdateScore(ctx context.Context, userID string, totalPoints int) error
}

// ReconcileLedgerJob walks all aggregates and checks each total against the
// sum of its point ledger. The ledger is the source of truth: on drift the
// aggregate total is rewritten to the ledger sum.
//
// Drift is not expected from the normal write path, which updates the
// aggregate and appends the ledger in one transaction. It can appear after
// manual data surgery or a storage bug, and this job bounds how long such
// damage survives.
type ReconcileLedgerJob struct {
	store     progression.Store
	publisher shared.EventPublisher
	scores    ScoreWriter
	log       *logger.Logger
	config    ReconcileLedgerConfig

	lastRunStats atomic.Value // *ReconcileStats
}

// ReconcileLedgerConfig contains configuration for the reconcile job.
type ReconcileLedgerConfig struct {
	// PageSize is how many user ids are loaded per batch.
	PageSize int

	// Timeout is the maximum duration for one full run.
	Timeout time.Duration

	// MaxRepairs caps repairs per run. Widespread drift means something
	// is badly wrong; the cap keeps the job from thrashing while an
	// operator investigates.
	MaxRepairs int

	// AutoRepair enables rewriting drifted aggregates. When false the run
	// is a dry pass: drift is counted and logged but left in place.
	AutoRepair bool
}

// DefaultReconcileLedgerConfig returns sensible defaults.
func DefaultReconcileLedgerConfig() ReconcileLedgerConfig {
	return ReconcileLedgerConfig{
		PageSize:   200,
		Timeout:    10 * time.Minute,
		MaxRepairs: 100,
		AutoRepair: true,
	}
}

// ReconcileStats contains statistics from a reconciliation run.
type ReconcileStats struct {
	StartedAt    time.Time
	CompletedAt  time.Time
	Duration     time.Duration
	UsersChecked int
	DriftFound   int
	Repaired     int
	Skipped      int
	Errors       []error
}

// NewReconcileLedgerJob creates a new reconcile ledger job. The publisher
// and score writer are optional.
func NewReconcileLedgerJob(
	store progression.Store,
	publisher shared.EventPublisher,
	scores ScoreWriter,
	log *logger.Logger,
	config ReconcileLedgerConfig,
) *ReconcileLedgerJob {
	if log == nil {
		log = logger.Default()
	}
	if config.PageSize <= 0 {
		config.PageSize = 200
	}

	return &ReconcileLedgerJob{
		store:     store,
		publisher: publisher,
		scores:    scores,
		log:       log.With(logger.Component("reconcile_ledger")),
		config:    config,
	}
}

// Name returns the job name.
func (j *ReconcileLedgerJob) Name() string {
	return "reconcile_ledger"
}

// Description returns a human-readable description.
func (j *ReconcileLedgerJob) Description() string {
	return "Checks aggregate totals against ledger sums and repairs drift"
}

// Run executes one reconciliation pass.
func (j *ReconcileLedgerJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &ReconcileStats{StartedAt: startedAt}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	retrier := retry.New(
		retry.WithMaxAttempts(3),
		retry.WithInitialDelay(100*time.Millisecond),
		retry.WithRetryIf(func(err error) bool {
			return errors.Is(err, shared.ErrLockTimeout)
		}),
	)

	page := 1
	for {
		if err := ctx.Err(); err != nil {
			j.finish(stats)
			return err
		}

		ids, err := j.store.ListUserIDs(ctx, shared.Pagination{
			Page:     page,
			PageSize: j.config.PageSize,
		})
		if err != nil {
			j.finish(stats)
			return fmt.Errorf("list user ids: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		for _, userID := range ids {
			stats.UsersChecked++
			if err := j.reconcileUser(ctx, retrier, userID, stats); err != nil {
				stats.Errors = append(stats.Errors, err)
				j.log.Error("reconcile failed for user",
					logger.UserID(userID.String()),
					logger.Err(err),
				)
			}
			if j.config.MaxRepairs > 0 && stats.Repaired >= j.config.MaxRepairs {
				j.log.Warn("repair cap reached, stopping run",
					logger.Int("repaired", stats.Repaired),
				)
				j.finish(stats)
				return nil
			}
		}

		page++
	}

	j.finish(stats)
	if stats.DriftFound > 0 {
		j.log.Warn("reconciliation found drift",
			logger.Int("users_checked", stats.UsersChecked),
			logger.Int("drift_found", stats.DriftFound),
			logger.Int("repaired", stats.Repaired),
		)
	}
	return nil
}

// reconcileUser checks one user and repairs the aggregate on drift.
//
// The sum is read before the lock is taken. Inside the lock the observed
// total is compared again; if a writer slipped in between, the repair is
// skipped and the next run re-checks.
func (j *ReconcileLedgerJob) reconcileUser(
	ctx context.Context,
	retrier *retry.Retrier,
	userID shared.UserID,
	stats *ReconcileStats,
) error {
	agg, err := j.store.GetAggregate(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrUserNotFound) {
			return nil
		}
		return err
	}

	sum, err := j.store.LedgerSum(ctx, userID)
	if err != nil {
		return err
	}

	observedTotal := agg.TotalPoints.Int()
	if observedTotal == sum {
		return nil
	}

	stats.DriftFound++
	j.log.Warn("aggregate total does not match ledger sum",
		logger.UserID(userID.String()),
		logger.Int("aggregate_total", observedTotal),
		logger.Int("ledger_sum", sum),
	)

	if !j.config.AutoRepair {
		stats.Skipped++
		return nil
	}

	repaired := false
	err = retrier.Do(ctx, func(ctx context.Context) error {
		return j.store.WithUser(ctx, userID, func(tx progression.UserTx) error {
			locked := tx.Aggregate()
			if locked.TotalPoints.Int() != observedTotal {
				// A writer changed the aggregate since the sum was read.
				return nil
			}

			locked.TotalPoints = shared.Points(sum)
			if err := tx.SaveAggregate(locked); err != nil {
				return err
			}
			repaired = true
			return nil
		})
	})
	if err != nil {
		return err
	}
	if !repaired {
		stats.Skipped++
		return nil
	}

	stats.Repaired++
	j.log.Info("aggregate repaired",
		logger.UserID(userID.String()),
		logger.Int("old_total", observedTotal),
		logger.Int("new_total", sum),
	)

	if j.scores != nil {
		if err := j.scores.UpdateScore(ctx, userID.String(), sum); err != nil {
			j.log.Warn("score projection update failed",
				logger.UserID(userID.String()),
				logger.Err(err),
			)
		}
	}
	if j.publisher != nil {
		event := shared.NewAggregateReconciledEvent(userID.String(), observedTotal, sum, sum)
		if err := j.publisher.Publish(event); err != nil {
			j.log.Warn("reconciled event publish failed",
				logger.UserID(userID.String()),
				logger.Err(err),
			)
		}
	}
	return nil
}

// LastRunStats returns statistics from the most recent run.
func (j *ReconcileLedgerJob) LastRunStats() *ReconcileStats {
	stats, _ := j.lastRunStats.Load().(*ReconcileStats)
	return stats
}

func (j *ReconcileLedgerJob) finish(stats *ReconcileStats) {
	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	j.lastRunStats.Store(stats)
}
