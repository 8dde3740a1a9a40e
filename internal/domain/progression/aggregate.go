package progression

import (
	"time"

	"github.com/readstack-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION AGGREGATE
// Единственная изменяемая строка с итогами прогресса пользователя.
// Все хранимые значения только растут; уровень никогда не хранится.
// ══════════════════════════════════════════════════════════════════════════════

// Aggregate представляет агрегат прогресса одного пользователя.
type Aggregate struct {
	// UserID - идентификатор владельца агрегата.
	UserID shared.UserID

	// TotalPoints - суммарные очки. Монотонно неубывающие; при наличии
	// журнала равны сумме его записей.
	TotalPoints shared.Points

	// Streak - состояние серии активных дней.
	Streak StreakState

	// QuizzesCompleted - завершено квизов.
	QuizzesCompleted int

	// ChecklistsCompleted - завершено чек-листов.
	ChecklistsCompleted int

	// NotesCreated - создано заметок.
	NotesCreated int

	// ItemsRead - прочитано материалов.
	ItemsRead int

	// UpdatedAt - время последнего изменения.
	UpdatedAt time.Time
}

// NewAggregate создаёт нулевой агрегат для пользователя.
// Вызывается лениво при первом событии (upsert-if-absent).
func NewAggregate(userID shared.UserID) *Aggregate {
	return &Aggregate{
		UserID:    userID,
		UpdatedAt: time.Now().UTC(),
	}
}

// Level возвращает уровень - чистую проекцию TotalPoints.
func (a *Aggregate) Level() shared.Level {
	return a.TotalPoints.Level()
}

// AddPoints применяет положительную дельту очков и возвращает признак
// пересечения границы уровня. Отрицательные дельты запрещены доменом.
func (a *Aggregate) AddPoints(amount int) (leveledUp bool, err error) {
	if amount <= 0 {
		return false, shared.ErrInvalidPointAmount
	}

	before := a.Level()
	a.TotalPoints = a.TotalPoints.Add(amount)
	a.UpdatedAt = time.Now().UTC()

	return a.Level() > before, nil
}

// IncrementCounter увеличивает именованный счётчик на by и возвращает новое
// значение. Счётчики никогда не уменьшаются.
func (a *Aggregate) IncrementCounter(name shared.CounterName, by int) (int, error) {
	if !name.IsValid() {
		return 0, shared.ErrInvalidCounter
	}
	if by <= 0 {
		return 0, shared.ErrInvalidIncrement
	}

	var value int
	switch name {
	case shared.CounterQuizzesCompleted:
		a.QuizzesCompleted += by
		value = a.QuizzesCompleted
	case shared.CounterChecklistsComplete:
		a.ChecklistsCompleted += by
		value = a.ChecklistsCompleted
	case shared.CounterNotesCreated:
		a.NotesCreated += by
		value = a.NotesCreated
	case shared.CounterItemsRead:
		a.ItemsRead += by
		value = a.ItemsRead
	}

	a.UpdatedAt = time.Now().UTC()
	return value, nil
}

// Counter возвращает текущее значение именованного счётчика.
func (a *Aggregate) Counter(name shared.CounterName) int {
	switch name {
	case shared.CounterQuizzesCompleted:
		return a.QuizzesCompleted
	case shared.CounterChecklistsComplete:
		return a.ChecklistsCompleted
	case shared.CounterNotesCreated:
		return a.NotesCreated
	case shared.CounterItemsRead:
		return a.ItemsRead
	default:
		return 0
	}
}

// TouchStreak применяет переход серии к агрегату.
func (a *Aggregate) TouchStreak(now time.Time, loc *time.Location) StreakTransition {
	next, transition := NextStreak(a.Streak, now, loc)
	if transition == StreakIgnored || transition == StreakUnchanged {
		return transition
	}

	a.Streak = next
	a.UpdatedAt = time.Now().UTC()
	return transition
}

// Validate проверяет инварианты агрегата. Используется хранилищем и
// джобом сверки перед записью.
func (a *Aggregate) Validate() error {
	if a.UserID.IsEmpty() {
		return shared.ErrInvalidUserID
	}
	if !a.TotalPoints.IsValid() {
		return shared.NewDomainError("progression", "Validate", shared.ErrNegativeValue, "total points cannot be negative")
	}
	if a.Streak.Current < 0 || a.Streak.Longest < a.Streak.Current {
		return shared.NewDomainError("progression", "Validate", shared.ErrInvalidState, "longest streak below current streak")
	}
	if a.QuizzesCompleted < 0 || a.ChecklistsCompleted < 0 || a.NotesCreated < 0 || a.ItemsRead < 0 {
		return shared.NewDomainError("progression", "Validate", shared.ErrNegativeValue, "counters cannot be negative")
	}
	return nil
}

// Clone возвращает копию агрегата. Нужна хранилищу в памяти, чтобы
// изменения вне транзакции не протекали в хранимое состояние.
func (a *Aggregate) Clone() *Aggregate {
	clone := *a
	return &clone
}
