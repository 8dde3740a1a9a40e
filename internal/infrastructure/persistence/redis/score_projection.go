package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORE BOARD
// Sorted set of total points per user, maintained from events. The ledger
// in Postgres is the source of truth; this projection is eventually
// consistent and repaired by the reconciliation job.
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrScoreBoardEmpty is returned when the score board has no entries.
	ErrScoreBoardEmpty = errors.New("scoreboard: no entries")

	// ErrUserNotRanked is returned when a user has no score entry yet.
	ErrUserNotRanked = errors.New("scoreboard: user not ranked")

	// ErrUserIDEmpty is returned when an empty user id is provided.
	ErrUserIDEmpty = errors.New("scoreboard: user id cannot be empty")
)

// ScoreEntry is one ranked user.
type ScoreEntry struct {
	// UserID is the ranked user.
	UserID string `json:"user_id"`

	// TotalPoints is the user's total at projection time.
	TotalPoints int `json:"total_points"`

	// Rank is the 1-based position, highest total first.
	Rank int64 `json:"rank"`
}

// ScoreBoard provides O(log N) score updates and rank lookups over a
// Redis sorted set.
type ScoreBoard struct {
	cache *Cache
}

// NewScoreBoard creates a new ScoreBoard instance.
func NewScoreBoard(cache *Cache) *ScoreBoard {
	return &ScoreBoard{cache: cache}
}

// UpdateScore sets a user's total. ZADD overwrites, so replayed and
// out-of-order events converge to the latest written total.
func (s *ScoreBoard) UpdateScore(ctx context.Context, userID string, totalPoints int) error {
	if userID == "" {
		return ErrUserIDEmpty
	}

	err := s.cache.Client().ZAdd(ctx, ScoresKey(), redis.Z{
		Score:  float64(totalPoints),
		Member: userID,
	}).Err()
	if err != nil {
		return fmt.Errorf("scoreboard update: %w", err)
	}
	return nil
}

// Remove drops a user from the board.
func (s *ScoreBoard) Remove(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUserIDEmpty
	}
	return s.cache.Client().ZRem(ctx, ScoresKey(), userID).Err()
}

// Rank returns a user's 1-based rank, highest total first.
func (s *ScoreBoard) Rank(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrUserIDEmpty
	}

	rank, err := s.cache.Client().ZRevRank(ctx, ScoresKey(), userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrUserNotRanked
		}
		return 0, err
	}
	return rank + 1, nil
}

// Score returns a user's projected total.
func (s *ScoreBoard) Score(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrUserIDEmpty
	}

	score, err := s.cache.Client().ZScore(ctx, ScoresKey(), userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrUserNotRanked
		}
		return 0, err
	}
	return int(score), nil
}

// Top returns the n highest totals.
func (s *ScoreBoard) Top(ctx context.Context, n int64) ([]ScoreEntry, error) {
	if n <= 0 {
		n = 10
	}

	members, err := s.cache.Client().ZRevRangeWithScores(ctx, ScoresKey(), 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrScoreBoardEmpty
	}

	entries := make([]ScoreEntry, 0, len(members))
	for i, m := range members {
		userID, ok := m.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, ScoreEntry{
			UserID:      userID,
			TotalPoints: int(m.Score),
			Rank:        int64(i + 1),
		})
	}
	return entries, nil
}

// Size returns the number of ranked users.
func (s *ScoreBoard) Size(ctx context.Context) (int64, error) {
	return s.cache.Client().ZCard(ctx, ScoresKey()).Result()
}
