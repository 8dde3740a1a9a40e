package achievement

import (
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT EVALUATOR
// Чистый проход каталога по снимку агрегата и множеству уже полученных
// достижений. Сам эвалюатор ничего не пишет; вставка наград и бонусные
// очки - забота командного слоя внутри той же транзакции.
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot - снимок агрегата после мутации, достаточный для проверки
// всех счётчиковых метрик.
type Snapshot struct {
	// TotalPoints - суммарные очки.
	TotalPoints int

	// CurrentStreak - текущая серия дней.
	CurrentStreak int

	// QuizzesCompleted - завершено квизов.
	QuizzesCompleted int

	// ChecklistsCompleted - завершено чек-листов.
	ChecklistsCompleted int

	// NotesCreated - создано заметок.
	NotesCreated int

	// ItemsRead - прочитано материалов.
	ItemsRead int
}

// Metric возвращает значение счётчиковой метрики снимка.
func (s Snapshot) Metric(m Metric) int {
	switch m {
	case MetricPoints:
		return s.TotalPoints
	case MetricStreak:
		return s.CurrentStreak
	case MetricQuizzesCompleted:
		return s.QuizzesCompleted
	case MetricChecklistsCompleted:
		return s.ChecklistsCompleted
	case MetricNotesCreated:
		return s.NotesCreated
	case MetricItemsRead:
		return s.ItemsRead
	default:
		return 0
	}
}

// Signals - разовые булевы флаги текущего события. Не сохраняются в
// агрегате и действуют только на один проход эвалюатора.
type Signals struct {
	// PerfectQuiz - квиз пройден без ошибок.
	PerfectQuiz bool

	// EarlyBird - событие произошло ранним утром.
	EarlyBird bool

	// NightOwl - событие произошло глубокой ночью.
	NightOwl bool
}

// Signal возвращает значение сигнальной метрики как 0/1.
func (s Signals) Signal(m Metric) int {
	switch m {
	case MetricPerfectQuiz:
		if s.PerfectQuiz {
			return 1
		}
	case MetricEarlyBird:
		if s.EarlyBird {
			return 1
		}
	case MetricNightOwl:
		if s.NightOwl {
			return 1
		}
	}
	return 0
}

// Evaluator проверяет каталог против снимка и множества полученных.
type Evaluator struct {
	log *logger.Logger
}

// NewEvaluator создаёт эвалюатор.
func NewEvaluator(log *logger.Logger) *Evaluator {
	if log == nil {
		log = logger.Default()
	}
	return &Evaluator{log: log.With(logger.Component("achievement_evaluator"))}
}

// Evaluate возвращает определения, порог которых впервые достигнут.
// Некорректные определения пропускаются с предупреждением и не прерывают
// проверку остальных. Порядок результата повторяет порядок каталога.
func (e *Evaluator) Evaluate(
	catalog []Definition,
	snapshot Snapshot,
	earned map[shared.AchievementID]bool,
	signals Signals,
) []Definition {
	var qualified []Definition

	for _, def := range catalog {
		if earned[def.ID] {
			continue
		}

		if err := def.Validate(); err != nil {
			e.log.Warn("skipping malformed achievement definition",
				logger.AchievementID(def.ID.String()),
				logger.Err(err),
			)
			continue
		}

		var value int
		if def.Requirement.Metric.IsSignal() {
			value = signals.Signal(def.Requirement.Metric)
		} else {
			value = snapshot.Metric(def.Requirement.Metric)
		}

		if value >= def.Requirement.Threshold {
			qualified = append(qualified, def)
		}
	}

	return qualified
}
