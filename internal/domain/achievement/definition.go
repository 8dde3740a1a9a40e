package achievement

import (
	"strings"

	"github.com/readstack-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT DEFINITIONS
// Каталог пороговых правил. Внешне засеивается, на рантайме read-only.
// ══════════════════════════════════════════════════════════════════════════════

// Metric - метрика, по которой проверяется порог достижения.
type Metric string

const (
	// MetricPoints - суммарные очки агрегата.
	MetricPoints Metric = "points"
	// MetricStreak - текущая серия активных дней.
	MetricStreak Metric = "streak"
	// MetricItemsRead - прочитано материалов.
	MetricItemsRead Metric = "items_read"
	// MetricQuizzesCompleted - завершено квизов.
	MetricQuizzesCompleted Metric = "quizzes_completed"
	// MetricChecklistsCompleted - завершено чек-листов.
	MetricChecklistsCompleted Metric = "checklists_completed"
	// MetricNotesCreated - создано заметок.
	MetricNotesCreated Metric = "notes_created"

	// Сигнальные метрики: событие передаёт булев флаг, порог всегда 1,
	// постоянное состояние агрегата не участвует.

	// MetricPerfectQuiz - квиз пройден без единой ошибки.
	MetricPerfectQuiz Metric = "perfect_quiz"
	// MetricEarlyBird - активность ранним утром (05:00-07:00).
	MetricEarlyBird Metric = "early_bird"
	// MetricNightOwl - активность глубокой ночью (00:00-05:00).
	MetricNightOwl Metric = "night_owl"
)

// IsValid проверяет, что метрика известна движку.
func (m Metric) IsValid() bool {
	switch m {
	case MetricPoints, MetricStreak, MetricItemsRead, MetricQuizzesCompleted,
		MetricChecklistsCompleted, MetricNotesCreated,
		MetricPerfectQuiz, MetricEarlyBird, MetricNightOwl:
		return true
	default:
		return false
	}
}

// IsSignal возвращает true для метрик, приходящих как флаг события.
func (m Metric) IsSignal() bool {
	switch m {
	case MetricPerfectQuiz, MetricEarlyBird, MetricNightOwl:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление метрики.
func (m Metric) String() string {
	return string(m)
}

// ParseMetric разбирает строку в метрику.
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", shared.ErrUnknownMetric
	}
	return m, nil
}

// Rarity - редкость достижения, влияет только на отображение.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// IsValid проверяет редкость.
func (r Rarity) IsValid() bool {
	switch r {
	case RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление редкости.
func (r Rarity) String() string {
	return string(r)
}

// Requirement - пороговое условие достижения.
type Requirement struct {
	// Metric - проверяемая метрика.
	Metric Metric

	// Threshold - порог. Для сигнальных метрик всегда 1.
	Threshold int
}

// Definition описывает одно достижение каталога.
type Definition struct {
	// ID - идентификатор достижения (слаг).
	ID shared.AchievementID

	// Name - отображаемое имя.
	Name string

	// Description - описание для UI.
	Description string

	// Category - категория для группировки в UI.
	Category string

	// Rarity - редкость.
	Rarity Rarity

	// Requirement - пороговое условие.
	Requirement Requirement

	// RewardPoints - бонусные очки за получение. Могут быть нулевыми.
	RewardPoints int
}

// Validate проверяет корректность определения. Некорректные определения
// эвалюатор пропускает с предупреждением, не прерывая проход.
func (d Definition) Validate() error {
	if !d.ID.IsValid() {
		return shared.ErrInvalidDefinition
	}
	if d.Name == "" {
		return shared.ErrInvalidDefinition
	}
	if !d.Requirement.Metric.IsValid() {
		return shared.ErrUnknownMetric
	}
	if d.Requirement.Threshold <= 0 {
		return shared.ErrInvalidDefinition
	}
	if d.Requirement.Metric.IsSignal() && d.Requirement.Threshold != 1 {
		return shared.ErrInvalidDefinition
	}
	if d.RewardPoints < 0 {
		return shared.ErrInvalidDefinition
	}
	if !d.Rarity.IsValid() {
		return shared.ErrInvalidDefinition
	}
	return nil
}
