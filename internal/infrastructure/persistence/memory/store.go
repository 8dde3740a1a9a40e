// Package memory provides an in-memory Store implementation.
// It mirrors the transactional contract of the postgres store: writes for a
// single user are serialized by a per-user lock and staged changes apply
// atomically on commit. Used by tests and by dev mode without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/readstack-hub/progression-engine/internal/domain/achievement"
	"github.com/readstack-hub/progression-engine/internal/domain/progression"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
)

// Store is an in-memory progression.Store.
type Store struct {
	mu    sync.Mutex
	users map[shared.UserID]*userState
}

// userState holds the committed state of one user. Its mutex plays the role
// of the aggregate row lock.
type userState struct {
	mu     sync.Mutex
	exists bool
	agg    *progression.Aggregate
	ledger []*progression.LedgerEntry
	awards []*achievement.Award
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{users: make(map[shared.UserID]*userState)}
}

func (s *Store) state(userID shared.UserID, create bool) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()
	us, ok := s.users[userID]
	if !ok && create {
		us = &userState{}
		s.users[userID] = us
	}
	return us
}

// WithUser implements progression.Store.
func (s *Store) WithUser(ctx context.Context, userID shared.UserID, fn func(tx progression.UserTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if userID.IsEmpty() {
		return shared.ErrInvalidUserID
	}

	us := s.state(userID, true)
	us.mu.Lock()
	defer us.mu.Unlock()

	tx := newUserTx(userID, us)
	if err := fn(tx); err != nil {
		return err
	}

	tx.commit(us)
	return nil
}

// GetAggregate implements progression.Store.
func (s *Store) GetAggregate(ctx context.Context, userID shared.UserID) (*progression.Aggregate, error) {
	us := s.state(userID, false)
	if us == nil {
		return nil, shared.ErrUserNotFound
	}

	us.mu.Lock()
	defer us.mu.Unlock()
	if !us.exists {
		return nil, shared.ErrUserNotFound
	}
	return us.agg.Clone(), nil
}

// ListAwards implements progression.Store. Newest first.
func (s *Store) ListAwards(ctx context.Context, userID shared.UserID) ([]*achievement.Award, error) {
	us := s.state(userID, false)
	if us == nil {
		return nil, nil
	}

	us.mu.Lock()
	defer us.mu.Unlock()

	out := make([]*achievement.Award, len(us.awards))
	for i, a := range us.awards {
		clone := *a
		out[i] = &clone
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EarnedAt.After(out[j].EarnedAt)
	})
	return out, nil
}

// ListLedger implements progression.Store. Newest first.
func (s *Store) ListLedger(ctx context.Context, userID shared.UserID, page shared.Pagination) ([]*progression.LedgerEntry, error) {
	us := s.state(userID, false)
	if us == nil {
		return nil, nil
	}

	us.mu.Lock()
	defer us.mu.Unlock()

	reversed := make([]*progression.LedgerEntry, 0, len(us.ledger))
	for i := len(us.ledger) - 1; i >= 0; i-- {
		clone := *us.ledger[i]
		reversed = append(reversed, &clone)
	}

	offset := page.Offset()
	if offset >= len(reversed) {
		return nil, nil
	}
	end := offset + page.Limit()
	if end > len(reversed) {
		end = len(reversed)
	}
	return reversed[offset:end], nil
}

// LedgerSum implements progression.Store.
func (s *Store) LedgerSum(ctx context.Context, userID shared.UserID) (int, error) {
	us := s.state(userID, false)
	if us == nil {
		return 0, nil
	}

	us.mu.Lock()
	defer us.mu.Unlock()
	return progression.SumEntries(us.ledger), nil
}

// ListUserIDs implements progression.Store. Sorted for stable iteration.
func (s *Store) ListUserIDs(ctx context.Context, page shared.Pagination) ([]shared.UserID, error) {
	s.mu.Lock()
	ids := make([]shared.UserID, 0, len(s.users))
	for id, us := range s.users {
		if us.exists {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	offset := page.Offset()
	if offset >= len(ids) {
		return nil, nil
	}
	end := offset + page.Limit()
	if end > len(ids) {
		end = len(ids)
	}
	return ids[offset:end], nil
}

// ══════════════════════════════════════════════════════════════════════════
// Transaction
// ══════════════════════════════════════════════════════════════════════════

// userTx stages changes against a locked user. Nothing is visible outside
// the lock until commit; an error from the closure discards everything.
type userTx struct {
	agg       *progression.Aggregate
	committed *userState
	ledger    []*progression.LedgerEntry
	awards    []*achievement.Award
	seen      []shared.AchievementID
}

func newUserTx(userID shared.UserID, us *userState) *userTx {
	var agg *progression.Aggregate
	if us.exists {
		agg = us.agg.Clone()
	} else {
		// Lazy creation on first use; the per-user lock makes the
		// insert race-free here, the DB store uses ON CONFLICT.
		agg = progression.NewAggregate(userID)
	}
	return &userTx{agg: agg, committed: us}
}

// Aggregate implements progression.UserTx.
func (tx *userTx) Aggregate() *progression.Aggregate {
	return tx.agg
}

// SaveAggregate implements progression.UserTx.
func (tx *userTx) SaveAggregate(agg *progression.Aggregate) error {
	if err := agg.Validate(); err != nil {
		return err
	}
	tx.agg = agg
	return nil
}

// AppendLedger implements progression.UserTx.
func (tx *userTx) AppendLedger(entry *progression.LedgerEntry) error {
	clone := *entry
	tx.ledger = append(tx.ledger, &clone)
	return nil
}

// EarnedAchievements implements progression.UserTx.
func (tx *userTx) EarnedAchievements() (map[shared.AchievementID]bool, error) {
	earned := make(map[shared.AchievementID]bool, len(tx.committed.awards)+len(tx.awards))
	for _, a := range tx.committed.awards {
		earned[a.AchievementID] = true
	}
	for _, a := range tx.awards {
		earned[a.AchievementID] = true
	}
	return earned, nil
}

// InsertAward implements progression.UserTx.
func (tx *userTx) InsertAward(award *achievement.Award) (bool, error) {
	for _, a := range tx.committed.awards {
		if a.AchievementID == award.AchievementID {
			return false, nil
		}
	}
	for _, a := range tx.awards {
		if a.AchievementID == award.AchievementID {
			return false, nil
		}
	}
	clone := *award
	tx.awards = append(tx.awards, &clone)
	return true, nil
}

// MarkAwardsSeen implements progression.UserTx.
func (tx *userTx) MarkAwardsSeen(ids []shared.AchievementID) (int, error) {
	wanted := make(map[shared.AchievementID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	updated := 0
	for _, a := range tx.committed.awards {
		if wanted[a.AchievementID] && !a.Seen {
			tx.seen = append(tx.seen, a.AchievementID)
			updated++
		}
	}
	for _, a := range tx.awards {
		if wanted[a.AchievementID] && !a.Seen {
			a.Seen = true
			updated++
		}
	}
	return updated, nil
}

// commit applies staged changes under the held user lock.
func (tx *userTx) commit(us *userState) {
	us.agg = tx.agg
	us.exists = true
	us.ledger = append(us.ledger, tx.ledger...)
	us.awards = append(us.awards, tx.awards...)

	if len(tx.seen) > 0 {
		wanted := make(map[shared.AchievementID]bool, len(tx.seen))
		for _, id := range tx.seen {
			wanted[id] = true
		}
		for _, a := range us.awards {
			if wanted[a.AchievementID] {
				a.MarkSeen()
			}
		}
	}
}
