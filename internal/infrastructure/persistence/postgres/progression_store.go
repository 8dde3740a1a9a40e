package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/readstack-hub/progression-engine/internal/domain/achievement"
	"github.com/readstack-hub/progression-engine/internal/domain/progression"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// defaultLockTimeout bounds how long a writer waits for the aggregate row.
const defaultLockTimeout = 3 * time.Second

// ProgressionStore implements progression.Store on PostgreSQL.
type ProgressionStore struct {
	conn        *Connection
	lockTimeout time.Duration
}

// NewProgressionStore creates a new ProgressionStore.
func NewProgressionStore(conn *Connection) *ProgressionStore {
	return &ProgressionStore{conn: conn, lockTimeout: defaultLockTimeout}
}

// WithLockTimeout overrides the per-transaction lock timeout.
func (s *ProgressionStore) WithLockTimeout(d time.Duration) *ProgressionStore {
	if d > 0 {
		s.lockTimeout = d
	}
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Write path
// ─────────────────────────────────────────────────────────────────────────────

// WithUser runs fn inside a transaction holding the user's aggregate row
// lock. The aggregate row is created on first use; concurrent first writes
// are resolved by ON CONFLICT and the subsequent row lock.
func (s *ProgressionStore) WithUser(ctx context.Context, userID shared.UserID, fn func(tx progression.UserTx) error) error {
	if userID.IsEmpty() {
		return shared.ErrInvalidUserID
	}

	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		// lock_timeout is transaction-local; a stuck writer fails fast
		// instead of queueing behind a long transaction.
		timeoutMs := int(s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeoutMs)); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO progression_aggregates (user_id) VALUES ($1)
			ON CONFLICT (user_id) DO NOTHING
		`, userID.String()); err != nil {
			return fmt.Errorf("ensure aggregate: %w", err)
		}

		agg, err := lockAggregate(ctx, tx, userID)
		if err != nil {
			return err
		}

		return fn(&userTx{ctx: ctx, tx: tx, agg: agg})
	})
	if err != nil {
		if IsLockNotAvailable(err) || IsQueryCanceled(err) {
			return fmt.Errorf("progression store: %w", shared.ErrLockTimeout)
		}
		return err
	}
	return nil
}

// lockAggregate loads the aggregate row FOR UPDATE.
func lockAggregate(ctx context.Context, q Querier, userID shared.UserID) (*progression.Aggregate, error) {
	row := q.QueryRow(ctx, `
		SELECT user_id, total_points, current_streak, longest_streak,
		       last_activity_date, quizzes_completed, checklists_completed,
		       notes_created, items_read, updated_at
		FROM progression_aggregates
		WHERE user_id = $1
		FOR UPDATE
	`, userID.String())
	return scanAggregate(row)
}

// userTx implements progression.UserTx over an open pgx transaction.
type userTx struct {
	ctx context.Context
	tx  pgx.Tx
	agg *progression.Aggregate
}

// Aggregate returns the locked aggregate.
func (t *userTx) Aggregate() *progression.Aggregate {
	return t.agg
}

// SaveAggregate writes the aggregate back to its row.
func (t *userTx) SaveAggregate(agg *progression.Aggregate) error {
	if err := agg.Validate(); err != nil {
		return err
	}

	var lastActivity *time.Time
	if agg.Streak.HasActivity() {
		d := agg.Streak.LastActivity
		lastActivity = &d
	}

	_, err := t.tx.Exec(t.ctx, `
		UPDATE progression_aggregates SET
			total_points = $2,
			current_streak = $3,
			longest_streak = $4,
			last_activity_date = $5,
			quizzes_completed = $6,
			checklists_completed = $7,
			notes_created = $8,
			items_read = $9,
			updated_at = NOW()
		WHERE user_id = $1
	`,
		agg.UserID.String(),
		agg.TotalPoints.Int(),
		agg.Streak.Current,
		agg.Streak.Longest,
		lastActivity,
		agg.QuizzesCompleted,
		agg.ChecklistsCompleted,
		agg.NotesCreated,
		agg.ItemsRead,
	)
	if err != nil {
		return fmt.Errorf("save aggregate: %w", err)
	}
	t.agg = agg
	return nil
}

// AppendLedger inserts a ledger entry.
func (t *userTx) AppendLedger(entry *progression.LedgerEntry) error {
	var referenceID *string
	if entry.ReferenceID != "" {
		referenceID = &entry.ReferenceID
	}

	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO point_ledger (id, user_id, points, reason, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		entry.ID,
		entry.UserID.String(),
		entry.Points,
		entry.Reason.String(),
		referenceID,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	return nil
}

// EarnedAchievements returns the ids already awarded to this user.
func (t *userTx) EarnedAchievements() (map[shared.AchievementID]bool, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT achievement_id FROM achievement_awards WHERE user_id = $1
	`, t.agg.UserID.String())
	if err != nil {
		return nil, fmt.Errorf("load earned achievements: %w", err)
	}
	defer rows.Close()

	earned := make(map[shared.AchievementID]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan achievement id: %w", err)
		}
		earned[shared.AchievementID(id)] = true
	}
	return earned, rows.Err()
}

// InsertAward inserts an award idempotently. Returns false when the
// (user, achievement) pair already exists.
func (t *userTx) InsertAward(award *achievement.Award) (bool, error) {
	tag, err := t.tx.Exec(t.ctx, `
		INSERT INTO achievement_awards (user_id, achievement_id, earned_at, seen)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`,
		award.UserID.String(),
		award.AchievementID.String(),
		award.EarnedAt,
		award.Seen,
	)
	if err != nil {
		return false, fmt.Errorf("insert award: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkAwardsSeen flips the seen flag on the user's awards. Ids that do not
// belong to the user are ignored by the WHERE clause.
func (t *userTx) MarkAwardsSeen(ids []shared.AchievementID) (int, error) {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}

	tag, err := t.tx.Exec(t.ctx, `
		UPDATE achievement_awards
		SET seen = TRUE
		WHERE user_id = $1 AND achievement_id = ANY($2) AND NOT seen
	`, t.agg.UserID.String(), raw)
	if err != nil {
		return 0, fmt.Errorf("mark awards seen: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Read path
// ─────────────────────────────────────────────────────────────────────────────

// GetAggregate returns a user's aggregate without locking it.
func (s *ProgressionStore) GetAggregate(ctx context.Context, userID shared.UserID) (*progression.Aggregate, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT user_id, total_points, current_streak, longest_streak,
		       last_activity_date, quizzes_completed, checklists_completed,
		       notes_created, items_read, updated_at
		FROM progression_aggregates
		WHERE user_id = $1
	`, userID.String())

	agg, err := scanAggregate(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, err
	}
	return agg, nil
}

// ListAwards returns a user's awards, newest first.
func (s *ProgressionStore) ListAwards(ctx context.Context, userID shared.UserID) ([]*achievement.Award, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT user_id, achievement_id, earned_at, seen
		FROM achievement_awards
		WHERE user_id = $1
		ORDER BY earned_at DESC
	`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list awards: %w", err)
	}
	defer rows.Close()

	var awards []*achievement.Award
	for rows.Next() {
		var (
			award achievement.Award
			uid   string
			aid   string
		)
		if err := rows.Scan(&uid, &aid, &award.EarnedAt, &award.Seen); err != nil {
			return nil, fmt.Errorf("scan award: %w", err)
		}
		award.UserID = shared.UserID(uid)
		award.AchievementID = shared.AchievementID(aid)
		awards = append(awards, &award)
	}
	return awards, rows.Err()
}

// ListLedger returns a page of ledger entries, newest first.
func (s *ProgressionStore) ListLedger(ctx context.Context, userID shared.UserID, page shared.Pagination) ([]*progression.LedgerEntry, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, user_id, points, reason, reference_id, created_at
		FROM point_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID.String(), page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	var entries []*progression.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// LedgerSum returns the sum of all ledger entries for a user.
func (s *ProgressionStore) LedgerSum(ctx context.Context, userID shared.UserID) (int, error) {
	var sum int
	err := s.conn.QueryRow(ctx, `
		SELECT COALESCE(SUM(points), 0) FROM point_ledger WHERE user_id = $1
	`, userID.String()).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("ledger sum: %w", err)
	}
	return sum, nil
}

// ListUserIDs returns a stable page of known user ids for batch jobs.
func (s *ProgressionStore) ListUserIDs(ctx context.Context, page shared.Pagination) ([]shared.UserID, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT user_id FROM progression_aggregates
		ORDER BY user_id
		LIMIT $1 OFFSET $2
	`, page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []shared.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, shared.UserID(id))
	}
	return ids, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

func scanAggregate(row pgx.Row) (*progression.Aggregate, error) {
	var (
		agg          progression.Aggregate
		uid          string
		totalPoints  int
		lastActivity *time.Time
	)
	err := row.Scan(
		&uid,
		&totalPoints,
		&agg.Streak.Current,
		&agg.Streak.Longest,
		&lastActivity,
		&agg.QuizzesCompleted,
		&agg.ChecklistsCompleted,
		&agg.NotesCreated,
		&agg.ItemsRead,
		&agg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	agg.UserID = shared.UserID(uid)
	agg.TotalPoints = shared.Points(totalPoints)
	if lastActivity != nil {
		agg.Streak.LastActivity = *lastActivity
	}
	return &agg, nil
}

func scanLedgerEntry(rows pgx.Rows) (*progression.LedgerEntry, error) {
	var (
		entry       progression.LedgerEntry
		uid         string
		reason      string
		referenceID *string
	)
	if err := rows.Scan(&entry.ID, &uid, &entry.Points, &reason, &referenceID, &entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan ledger entry: %w", err)
	}
	entry.UserID = shared.UserID(uid)
	entry.Reason = shared.PointReason(reason)
	if referenceID != nil {
		entry.ReferenceID = *referenceID
	}
	return &entry, nil
}
