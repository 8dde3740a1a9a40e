// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID represents a unique user identifier (UUID format).
// The engine trusts the caller's user id; validation is format-only.
type UserID string

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsValid checks if the user ID is a valid UUID.
func (u UserID) IsValid() bool {
	return uuidRegex.MatchString(string(u))
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// IsEmpty checks if the ID is empty.
func (u UserID) IsEmpty() bool {
	return u == ""
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.ToLower(strings.TrimSpace(id)))
	if !uid.IsValid() {
		return "", ErrInvalidUserID
	}
	return uid, nil
}

// AchievementID represents a catalog achievement identifier.
// Format: category-name style slug (e.g. "points-collector", "streak-week").
type AchievementID string

var achievementIDRegex = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)

// IsValid checks if the achievement ID format is valid.
func (a AchievementID) IsValid() bool {
	s := string(a)
	return len(s) >= 3 && len(s) <= 50 && achievementIDRegex.MatchString(s)
}

// String returns the string representation.
func (a AchievementID) String() string {
	return string(a)
}

// NewAchievementID creates a new AchievementID with validation.
func NewAchievementID(id string) (AchievementID, error) {
	aid := AchievementID(strings.ToLower(strings.TrimSpace(id)))
	if !aid.IsValid() {
		return "", NewDomainError("shared", "NewAchievementID", ErrInvalidID, "invalid achievement ID format")
	}
	return aid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Points Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Points represents a user's accumulated progression points.
// Stored totals only ever grow; there is no subtraction in this domain.
type Points int

// MinPoints is the floor for any stored total.
const MinPoints Points = 0

// IsValid checks if the points value is within valid range.
func (p Points) IsValid() bool {
	return p >= MinPoints
}

// Int returns the underlying int value.
func (p Points) Int() int {
	return int(p)
}

// Add adds a positive delta and returns the result.
func (p Points) Add(amount int) Points {
	result := Points(int(p) + amount)
	if result < MinPoints {
		return MinPoints
	}
	return result
}

// Level calculates the level projection for this point total.
// The level is never stored; it is always derived from totalPoints.
func (p Points) Level() Level {
	return LevelForPoints(p)
}

// NewPoints creates a new Points value with validation.
func NewPoints(amount int) (Points, error) {
	if amount < int(MinPoints) {
		return 0, NewDomainError("shared", "NewPoints", ErrNegativeValue, "points cannot be negative")
	}
	return Points(amount), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Level Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Level represents a user's level, a pure projection of total points.
type Level int

// MinLevel is the level of a brand-new user with zero points.
const MinLevel Level = 1

// levelThresholds[i] is the total points required to reach level i+1.
// Beyond the table each additional level costs levelStep points.
var levelThresholds = [...]int{0, 100, 250, 500, 1000, 1750, 2750, 4000, 5500, 7500}

const levelStep = 2500

// LevelForPoints maps a point total to a level. Deterministic and
// non-decreasing in points; always >= MinLevel.
func LevelForPoints(p Points) Level {
	pts := int(p)
	if pts < 0 {
		pts = 0
	}
	last := len(levelThresholds) - 1
	if pts >= levelThresholds[last] {
		return Level(last + 1 + (pts-levelThresholds[last])/levelStep)
	}
	level := MinLevel
	for i, threshold := range levelThresholds {
		if pts < threshold {
			break
		}
		level = Level(i + 1)
	}
	return level
}

// IsValid checks if the level is within valid range.
func (l Level) IsValid() bool {
	return l >= MinLevel
}

// Int returns the underlying int value.
func (l Level) Int() int {
	return int(l)
}

// RequiredPoints returns the total points required to reach this level.
func (l Level) RequiredPoints() int {
	if l <= MinLevel {
		return 0
	}
	idx := int(l) - 1
	last := len(levelThresholds) - 1
	if idx <= last {
		return levelThresholds[idx]
	}
	return levelThresholds[last] + (idx-last)*levelStep
}

// ProgressToNext returns percentage progress from this level's floor to the
// next level's threshold for the given point total (0-100).
func (l Level) ProgressToNext(p Points) int {
	floor := l.RequiredPoints()
	ceil := (l + 1).RequiredPoints()
	if ceil <= floor {
		return 100
	}
	progress := (int(p) - floor) * 100 / (ceil - floor)
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}

// ═══════════════════════════════════════════════════════════════════════════
// Counter Value Object
// ═══════════════════════════════════════════════════════════════════════════

// CounterName identifies one of the tracked activity counters.
type CounterName string

const (
	CounterQuizzesCompleted   CounterName = "quizzes_completed"
	CounterChecklistsComplete CounterName = "checklists_completed"
	CounterNotesCreated       CounterName = "notes_created"
	CounterItemsRead          CounterName = "items_read"
)

// AllCounters lists every tracked counter, in aggregate column order.
func AllCounters() []CounterName {
	return []CounterName{
		CounterQuizzesCompleted,
		CounterChecklistsComplete,
		CounterNotesCreated,
		CounterItemsRead,
	}
}

// IsValid checks if the counter name is one of the tracked counters.
func (c CounterName) IsValid() bool {
	switch c {
	case CounterQuizzesCompleted, CounterChecklistsComplete, CounterNotesCreated, CounterItemsRead:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (c CounterName) String() string {
	return string(c)
}

// NewCounterName creates a CounterName with validation.
func NewCounterName(name string) (CounterName, error) {
	c := CounterName(strings.ToLower(strings.TrimSpace(name)))
	if !c.IsValid() {
		return "", ErrInvalidCounter
	}
	return c, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Point Reason Value Object
// ═══════════════════════════════════════════════════════════════════════════

// PointReason classifies why a ledger entry granted points.
type PointReason string

const (
	ReasonQuizCorrect        PointReason = "quiz_correct"
	ReasonChecklistCompleted PointReason = "checklist_completed"
	ReasonNoteCreated        PointReason = "note_created"
	ReasonItemRead           PointReason = "item_read"
	ReasonStreakBonus        PointReason = "streak_bonus"
	ReasonAchievementBonus   PointReason = "achievement_bonus"
	ReasonReconciliation     PointReason = "reconciliation"
)

// IsValid checks if the reason is one of the known reasons.
func (r PointReason) IsValid() bool {
	switch r {
	case ReasonQuizCorrect, ReasonChecklistCompleted, ReasonNoteCreated,
		ReasonItemRead, ReasonStreakBonus, ReasonAchievementBonus, ReasonReconciliation:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (r PointReason) String() string {
	return string(r)
}

// NewPointReason creates a PointReason with validation.
func NewPointReason(reason string) (PointReason, error) {
	r := PointReason(strings.ToLower(strings.TrimSpace(reason)))
	if !r.IsValid() {
		return "", NewDomainError("shared", "NewPointReason", ErrInvalidInput, "unknown point reason")
	}
	return r, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Pagination represents pagination parameters for ledger and award listings.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Offset returns the offset for database queries.
func (p Pagination) Offset() int {
	if p.Page <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the limit for database queries.
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// NewPagination creates a new Pagination with defaults.
func NewPagination(page, pageSize int) Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

// DefaultPagination returns default pagination.
func DefaultPagination() Pagination {
	return NewPagination(1, DefaultPageSize)
}
