package jobs

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readstack-hub/progression-engine/internal/domain/progression"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/internal/infrastructure/persistence/memory"
	"github.com/readstack-hub/progression-engine/pkg/logger"
)

const (
	jobTestUserA = "5b3c1a9e-0b2f-4f7e-9d7a-2c3e4f5a6b7c"
	jobTestUserB = "7d4e2b0f-1c3a-4e8f-8b6c-3d4e5f6a7b8c"
)

func jobTestLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard})
}

// capturePublisher collects published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturePublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) typeCount(eventType shared.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

// captureScores records projection updates keyed by user id.
type captureScores struct {
	mu     sync.Mutex
	totals map[string]int
}

func (s *captureScores) UpdateScore(ctx context.Context, userID string, totalPoints int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.totals == nil {
		s.totals = make(map[string]int)
	}
	s.totals[userID] = totalPoints
	return nil
}

// seedConsistent writes points through the aggregate so the total and the
// ledger agree.
func seedConsistent(t *testing.T, store *memory.Store, id string, points int) {
	t.Helper()
	userID, err := shared.NewUserID(id)
	require.NoError(t, err)
	reason, err := shared.NewPointReason("item_read")
	require.NoError(t, err)

	err = store.WithUser(context.Background(), userID, func(tx progression.UserTx) error {
		agg := tx.Aggregate()
		if _, err := agg.AddPoints(points); err != nil {
			return err
		}
		entry, err := progression.NewLedgerEntry(userID, points, reason, "")
		if err != nil {
			return err
		}
		return tx.AppendLedger(entry)
	})
	require.NoError(t, err)
}

// seedDrifted appends ledger entries without touching the aggregate total,
// leaving the aggregate behind the ledger.
func seedDrifted(t *testing.T, store *memory.Store, id string, points int) {
	t.Helper()
	userID, err := shared.NewUserID(id)
	require.NoError(t, err)
	reason, err := shared.NewPointReason("item_read")
	require.NoError(t, err)

	err = store.WithUser(context.Background(), userID, func(tx progression.UserTx) error {
		entry, err := progression.NewLedgerEntry(userID, points, reason, "")
		if err != nil {
			return err
		}
		return tx.AppendLedger(entry)
	})
	require.NoError(t, err)
}

func TestReconcileLedgerJob_RepairsDrift(t *testing.T) {
	store := memory.NewStore()
	publisher := &capturePublisher{}
	scores := &captureScores{}

	seedConsistent(t, store, jobTestUserA, 40)
	seedDrifted(t, store, jobTestUserB, 25)

	job := NewReconcileLedgerJob(store, publisher, scores, jobTestLogger(), DefaultReconcileLedgerConfig())
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.UsersChecked)
	assert.Equal(t, 1, stats.DriftFound)
	assert.Equal(t, 1, stats.Repaired)
	assert.Zero(t, stats.Skipped)
	assert.Empty(t, stats.Errors)

	userB, _ := shared.NewUserID(jobTestUserB)
	agg, err := store.GetAggregate(context.Background(), userB)
	require.NoError(t, err)
	assert.Equal(t, 25, agg.TotalPoints.Int())

	assert.Equal(t, 1, publisher.typeCount(shared.EventAggregateReconciled))
	assert.Equal(t, 25, scores.totals[jobTestUserB])

	// The untouched user keeps its total and gets no event.
	userA, _ := shared.NewUserID(jobTestUserA)
	aggA, err := store.GetAggregate(context.Background(), userA)
	require.NoError(t, err)
	assert.Equal(t, 40, aggA.TotalPoints.Int())
	_, ok := scores.totals[jobTestUserA]
	assert.False(t, ok)
}

func TestReconcileLedgerJob_CleanRunIsQuiet(t *testing.T) {
	store := memory.NewStore()
	publisher := &capturePublisher{}

	seedConsistent(t, store, jobTestUserA, 100)

	job := NewReconcileLedgerJob(store, publisher, nil, jobTestLogger(), DefaultReconcileLedgerConfig())
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.UsersChecked)
	assert.Zero(t, stats.DriftFound)
	assert.Zero(t, stats.Repaired)
	assert.Empty(t, publisher.events)
}

func TestReconcileLedgerJob_RepairCapStopsRun(t *testing.T) {
	store := memory.NewStore()

	seedDrifted(t, store, jobTestUserA, 10)
	seedDrifted(t, store, jobTestUserB, 20)

	config := DefaultReconcileLedgerConfig()
	config.MaxRepairs = 1

	job := NewReconcileLedgerJob(store, nil, nil, jobTestLogger(), config)
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.Repaired)

	// The run stopped at the cap, so the second user is still drifted and
	// waits for the next run.
	userB, _ := shared.NewUserID(jobTestUserB)
	agg, err := store.GetAggregate(context.Background(), userB)
	require.NoError(t, err)
	assert.Zero(t, agg.TotalPoints.Int())
}

func TestReconcileLedgerJob_Pagination(t *testing.T) {
	store := memory.NewStore()

	seedConsistent(t, store, jobTestUserA, 10)
	seedConsistent(t, store, jobTestUserB, 20)

	config := DefaultReconcileLedgerConfig()
	config.PageSize = 1

	job := NewReconcileLedgerJob(store, nil, nil, jobTestLogger(), config)
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.UsersChecked)
}

func TestReconcileLedgerJob_DryRunCountsButDoesNotRepair(t *testing.T) {
	store := memory.NewStore()
	publisher := &capturePublisher{}

	seedDrifted(t, store, jobTestUserA, 15)

	config := DefaultReconcileLedgerConfig()
	config.AutoRepair = false

	job := NewReconcileLedgerJob(store, publisher, nil, jobTestLogger(), config)
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.DriftFound)
	assert.Zero(t, stats.Repaired)
	assert.Equal(t, 1, stats.Skipped)

	// The drifted aggregate is left untouched and nothing is published.
	userA, _ := shared.NewUserID(jobTestUserA)
	agg, err := store.GetAggregate(context.Background(), userA)
	require.NoError(t, err)
	assert.Zero(t, agg.TotalPoints.Int())
	assert.Empty(t, publisher.events)
}
