package achievement

import (
	"context"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG PROVIDER
// Каталог инжектируется в эвалюатор как read-only зависимость, а не
// читается из скрытого синглтона: так он подменяется фикстурами в тестах.
// ══════════════════════════════════════════════════════════════════════════════

// Provider отдаёт каталог достижений. Каталог считается неизменным в
// течение одного прохода эвалюатора.
type Provider interface {
	// Catalog возвращает все определения каталога.
	Catalog(ctx context.Context) ([]Definition, error)
}

// StaticProvider - провайдер поверх фиксированного среза. Используется в
// тестах и в dev-режиме без Postgres.
type StaticProvider struct {
	defs []Definition
}

// NewStaticProvider создаёт провайдер с фиксированным каталогом.
func NewStaticProvider(defs []Definition) *StaticProvider {
	return &StaticProvider{defs: defs}
}

// Catalog реализует Provider.
func (p *StaticProvider) Catalog(ctx context.Context) ([]Definition, error) {
	out := make([]Definition, len(p.defs))
	copy(out, p.defs)
	return out, nil
}

// CachedProvider оборачивает провайдер in-process кэшем с TTL. Каталог
// read-mostly, поэтому перечитывать его на каждое событие незачем.
type CachedProvider struct {
	inner Provider
	ttl   time.Duration

	mu       sync.RWMutex
	cached   []Definition
	loadedAt time.Time
}

// NewCachedProvider создаёт кэширующую обёртку.
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedProvider{inner: inner, ttl: ttl}
}

// Catalog реализует Provider.
func (p *CachedProvider) Catalog(ctx context.Context) ([]Definition, error) {
	p.mu.RLock()
	if p.cached != nil && time.Since(p.loadedAt) < p.ttl {
		defs := p.cached
		p.mu.RUnlock()
		return defs, nil
	}
	p.mu.RUnlock()

	defs, err := p.inner.Catalog(ctx)
	if err != nil {
		// Протухший кэш лучше, чем отказ всего прохода.
		p.mu.RLock()
		stale := p.cached
		p.mu.RUnlock()
		if stale != nil {
			return stale, nil
		}
		return nil, err
	}

	p.mu.Lock()
	p.cached = defs
	p.loadedAt = time.Now()
	p.mu.Unlock()

	return defs, nil
}

// Invalidate сбрасывает кэш. Вызывается после административного
// обновления каталога.
func (p *CachedProvider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

// DefaultCatalog возвращает стартовый каталог, которым засеивается
// таблица достижений в миграции.
func DefaultCatalog() []Definition {
	return []Definition{
		// Очки
		{ID: "points-first-hundred", Name: "Первая сотня", Description: "Набрано 100 очков", Category: "points", Rarity: RarityCommon, Requirement: Requirement{Metric: MetricPoints, Threshold: 100}, RewardPoints: 10},
		{ID: "points-collector", Name: "Коллекционер", Description: "Набрано 1000 очков", Category: "points", Rarity: RarityRare, Requirement: Requirement{Metric: MetricPoints, Threshold: 1000}, RewardPoints: 50},
		{ID: "points-master", Name: "Мастер очков", Description: "Набрано 2500 очков", Category: "points", Rarity: RarityEpic, Requirement: Requirement{Metric: MetricPoints, Threshold: 2500}, RewardPoints: 100},
		{ID: "points-legend", Name: "Легенда", Description: "Набрано 10000 очков", Category: "points", Rarity: RarityLegendary, Requirement: Requirement{Metric: MetricPoints, Threshold: 10000}, RewardPoints: 250},

		// Серии
		{ID: "streak-week", Name: "Неделя огня", Description: "7 дней подряд", Category: "streak", Rarity: RarityUncommon, Requirement: Requirement{Metric: MetricStreak, Threshold: 7}, RewardPoints: 25},
		{ID: "streak-month", Name: "Железная воля", Description: "30 дней подряд", Category: "streak", Rarity: RarityEpic, Requirement: Requirement{Metric: MetricStreak, Threshold: 30}, RewardPoints: 150},
		{ID: "streak-hundred", Name: "Сто дней", Description: "100 дней подряд", Category: "streak", Rarity: RarityLegendary, Requirement: Requirement{Metric: MetricStreak, Threshold: 100}, RewardPoints: 500},

		// Чтение
		{ID: "reader-first", Name: "Первая страница", Description: "Прочитан первый материал", Category: "reading", Rarity: RarityCommon, Requirement: Requirement{Metric: MetricItemsRead, Threshold: 1}, RewardPoints: 5},
		{ID: "reader-ten", Name: "Книголюб", Description: "Прочитано 10 материалов", Category: "reading", Rarity: RarityUncommon, Requirement: Requirement{Metric: MetricItemsRead, Threshold: 10}, RewardPoints: 25},
		{ID: "reader-fifty", Name: "Библиотекарь", Description: "Прочитано 50 материалов", Category: "reading", Rarity: RarityRare, Requirement: Requirement{Metric: MetricItemsRead, Threshold: 50}, RewardPoints: 100},

		// Квизы
		{ID: "quiz-first", Name: "Первый квиз", Description: "Завершён первый квиз", Category: "quiz", Rarity: RarityCommon, Requirement: Requirement{Metric: MetricQuizzesCompleted, Threshold: 1}, RewardPoints: 5},
		{ID: "quiz-twenty", Name: "Знаток", Description: "Завершено 20 квизов", Category: "quiz", Rarity: RarityRare, Requirement: Requirement{Metric: MetricQuizzesCompleted, Threshold: 20}, RewardPoints: 75},
		{ID: "quiz-perfect", Name: "Без единой ошибки", Description: "Квиз пройден идеально", Category: "quiz", Rarity: RarityUncommon, Requirement: Requirement{Metric: MetricPerfectQuiz, Threshold: 1}, RewardPoints: 20},

		// Чек-листы и заметки
		{ID: "checklist-first", Name: "Первый чек-лист", Description: "Завершён первый чек-лист", Category: "practice", Rarity: RarityCommon, Requirement: Requirement{Metric: MetricChecklistsCompleted, Threshold: 1}, RewardPoints: 5},
		{ID: "checklist-ten", Name: "Практик", Description: "Завершено 10 чек-листов", Category: "practice", Rarity: RarityUncommon, Requirement: Requirement{Metric: MetricChecklistsCompleted, Threshold: 10}, RewardPoints: 30},
		{ID: "notes-first", Name: "Первая заметка", Description: "Создана первая заметка", Category: "notes", Rarity: RarityCommon, Requirement: Requirement{Metric: MetricNotesCreated, Threshold: 1}, RewardPoints: 5},
		{ID: "notes-twenty", Name: "Конспектор", Description: "Создано 20 заметок", Category: "notes", Rarity: RarityRare, Requirement: Requirement{Metric: MetricNotesCreated, Threshold: 20}, RewardPoints: 50},

		// Время активности
		{ID: "early-bird", Name: "Ранняя пташка", Description: "Активность до 7 утра", Category: "time", Rarity: RarityUncommon, Requirement: Requirement{Metric: MetricEarlyBird, Threshold: 1}, RewardPoints: 15},
		{ID: "night-owl", Name: "Ночная сова", Description: "Активность после полуночи", Category: "time", Rarity: RarityUncommon, Requirement: Requirement{Metric: MetricNightOwl, Threshold: 1}, RewardPoints: 15},
	}
}
