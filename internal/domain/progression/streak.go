package progression

import (
	"time"

	"github.com/readstack-hub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK EVALUATOR
// Чистая функция перехода серии активных дней. Никакого I/O.
// ══════════════════════════════════════════════════════════════════════════════

// StreakTransition описывает исход одного вызова NextStreak.
type StreakTransition int

const (
	// StreakStarted - первая активность пользователя, серия начата с 1.
	StreakStarted StreakTransition = iota

	// StreakUnchanged - повторная активность в тот же календарный день.
	StreakUnchanged

	// StreakExtended - активность на следующий день, серия выросла на 1.
	StreakExtended

	// StreakBroken - пропущен хотя бы один день, серия сброшена до 1.
	StreakBroken

	// StreakIgnored - событие пришло из прошлого (рассинхрон часов),
	// состояние не меняется.
	StreakIgnored
)

// String возвращает строковое представление перехода.
func (t StreakTransition) String() string {
	switch t {
	case StreakStarted:
		return "started"
	case StreakUnchanged:
		return "unchanged"
	case StreakExtended:
		return "extended"
	case StreakBroken:
		return "broken"
	case StreakIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// StreakState представляет состояние серии внутри агрегата.
type StreakState struct {
	// Current - текущая серия дней.
	Current int

	// Longest - лучшая серия дней. Инвариант: Longest >= Current.
	Longest int

	// LastActivity - дата последней активности (полночь в настроенной
	// таймзоне). Нулевое значение означает отсутствие активности.
	LastActivity time.Time
}

// HasActivity возвращает true, если у пользователя уже была активность.
func (s StreakState) HasActivity() bool {
	return !s.LastActivity.IsZero()
}

// NextStreak вычисляет следующее состояние серии по предыдущему состоянию и
// моменту активности. Разница в календарных днях d считается в loc:
//
//	нет прошлой активности: серия = 1
//	d == 0: тот же день, без изменений (идемпотентность)
//	d == 1: следующий день, серия растёт
//	d >  1: пропуск, серия сбрасывается до 1, рекорд сохраняется
//	d <  0: событие из прошлого, полный no-op
//
// Ни одна ветка не уменьшает Longest.
func NextStreak(state StreakState, now time.Time, loc *time.Location) (StreakState, StreakTransition) {
	day := timeutil.StartOfDay(now, loc)

	if !state.HasActivity() {
		next := StreakState{
			Current:      1,
			Longest:      maxInt(state.Longest, 1),
			LastActivity: day,
		}
		return next, StreakStarted
	}

	// LastActivity - маркер календарного дня. После чтения из базы (колонка
	// DATE) он приходит как полночь UTC, поэтому день восстанавливается из
	// компонентов, а не из момента времени.
	last := timeutil.DayOf(state.LastActivity, loc)
	d := timeutil.DaysBetween(last, now, loc)

	switch {
	case d < 0:
		return state, StreakIgnored
	case d == 0:
		return state, StreakUnchanged
	case d == 1:
		next := StreakState{
			Current:      state.Current + 1,
			Longest:      maxInt(state.Longest, state.Current+1),
			LastActivity: day,
		}
		return next, StreakExtended
	default:
		next := StreakState{
			Current:      1,
			Longest:      state.Longest,
			LastActivity: day,
		}
		return next, StreakBroken
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
