// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/readstack-hub/progression-engine/internal/domain/achievement"
	"github.com/readstack-hub/progression-engine/internal/domain/progression"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/pkg/logger"
	"github.com/readstack-hub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// Собирает полный снимок прогресса пользователя: очки, уровень, серия,
// счётчики, полученные достижения и свежие записи журнала. Снимок
// кэшируется целиком и инвалидируется обработчиками доменных событий.
// ══════════════════════════════════════════════════════════════════════════════

// snapshotCacheTTL ограничивает жизнь снимка даже без инвалидации.
const snapshotCacheTTL = 2 * time.Minute

// ViewCache кэширует сериализованные read-модели. Реализация живёт в
// инфраструктуре (Redis); nil-кэш отключает кэширование целиком.
type ViewCache interface {
	// Get читает значение в dest. Возвращает false при промахе.
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Set сохраняет значение с TTL.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete удаляет ключи. Отсутствующие ключи не считаются ошибкой.
	Delete(ctx context.Context, keys ...string) error
}

// ProgressSnapshotKey строит ключ кэша снимка прогресса. Обработчики
// событий используют его для инвалидации.
func ProgressSnapshotKey(userID string) string {
	return "progress:snapshot:" + userID
}

// GetProgressQuery содержит параметры запроса снимка прогресса.
type GetProgressQuery struct {
	// UserID - владелец прогресса.
	UserID string

	// RecentLedgerLimit - сколько свежих записей журнала включить
	// (0 = по умолчанию 10, максимум 50).
	RecentLedgerLimit int

	// BypassCache - читать напрямую из хранилища.
	BypassCache bool
}

// Validate проверяет корректность параметров.
func (q *GetProgressQuery) Validate() error {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return fmt.Errorf("get_progress: %w", err)
	}
	if q.RecentLedgerLimit <= 0 {
		q.RecentLedgerLimit = 10
	}
	if q.RecentLedgerLimit > 50 {
		q.RecentLedgerLimit = 50
	}
	return nil
}

// StreakDTO - состояние серии для UI.
type StreakDTO struct {
	// Current - текущая серия дней.
	Current int `json:"current"`

	// Longest - лучшая серия за всё время.
	Longest int `json:"longest"`

	// LastActivityDate - дата последней активности (YYYY-MM-DD).
	LastActivityDate string `json:"last_activity_date,omitempty"`
}

// LevelDTO - проекция уровня из суммарных очков.
type LevelDTO struct {
	// Level - текущий уровень.
	Level int `json:"level"`

	// ProgressPercent - прогресс к следующему уровню (0-100).
	ProgressPercent int `json:"progress_percent"`

	// PointsToNext - сколько очков осталось до следующего уровня.
	PointsToNext int `json:"points_to_next"`
}

// AwardDTO - полученное достижение вместе с определением из каталога.
type AwardDTO struct {
	// AchievementID - слаг достижения.
	AchievementID string `json:"achievement_id"`

	// Name - отображаемое имя.
	Name string `json:"name"`

	// Description - описание для UI.
	Description string `json:"description,omitempty"`

	// Rarity - редкость.
	Rarity string `json:"rarity"`

	// RewardPoints - бонус, начисленный при получении.
	RewardPoints int `json:"reward_points,omitempty"`

	// EarnedAt - когда получено.
	EarnedAt time.Time `json:"earned_at"`

	// Seen - показано ли пользователю.
	Seen bool `json:"seen"`
}

// LedgerEntryDTO - запись журнала очков.
type LedgerEntryDTO struct {
	// ID - идентификатор записи.
	ID string `json:"id"`

	// Points - начисленные очки.
	Points int `json:"points"`

	// Reason - причина начисления.
	Reason string `json:"reason"`

	// ReferenceID - сущность-источник, если есть.
	ReferenceID string `json:"reference_id,omitempty"`

	// CreatedAt - время начисления.
	CreatedAt time.Time `json:"created_at"`
}

// ProgressView - полный снимок прогресса пользователя.
type ProgressView struct {
	// UserID - владелец.
	UserID string `json:"user_id"`

	// TotalPoints - суммарные очки.
	TotalPoints int `json:"total_points"`

	// Level - проекция уровня.
	Level LevelDTO `json:"level"`

	// Streak - состояние серии.
	Streak StreakDTO `json:"streak"`

	// Counters - счётчики активности по именам.
	Counters map[string]int `json:"counters"`

	// Awards - полученные достижения, новые первыми.
	Awards []AwardDTO `json:"awards"`

	// UnseenAwards - сколько достижений ещё не показано.
	UnseenAwards int `json:"unseen_awards"`

	// RecentLedger - свежие записи журнала, новые первыми.
	RecentLedger []LedgerEntryDTO `json:"recent_ledger,omitempty"`

	// GeneratedAt - время сборки снимка.
	GeneratedAt time.Time `json:"generated_at"`
}

// Reader - читающая часть хранилища прогресса. progression.Store
// удовлетворяет этому интерфейсу; запросам не нужна пишущая часть.
type Reader interface {
	GetAggregate(ctx context.Context, userID shared.UserID) (*progression.Aggregate, error)
	ListAwards(ctx context.Context, userID shared.UserID) ([]*achievement.Award, error)
	ListLedger(ctx context.Context, userID shared.UserID, page shared.Pagination) ([]*progression.LedgerEntry, error)
	LedgerSum(ctx context.Context, userID shared.UserID) (int, error)
}

// GetProgressHandler обрабатывает запросы снимка прогресса.
type GetProgressHandler struct {
	store   Reader
	catalog achievement.Provider
	cache   ViewCache
	log     *logger.Logger
}

// NewGetProgressHandler создаёт новый обработчик.
func NewGetProgressHandler(store Reader, catalog achievement.Provider, cache ViewCache, log *logger.Logger) *GetProgressHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GetProgressHandler{
		store:   store,
		catalog: catalog,
		cache:   cache,
		log:     log.With(logger.Component("get_progress")),
	}
}

// Handle выполняет запрос.
func (h *GetProgressHandler) Handle(ctx context.Context, query GetProgressQuery) (*ProgressView, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	userID, _ := shared.NewUserID(query.UserID)
	cacheKey := ProgressSnapshotKey(userID.String())

	if h.cache != nil && !query.BypassCache {
		var cached ProgressView
		hit, err := h.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			// Кэш деградирует в чтение из хранилища, не в ошибку.
			h.log.Warn("progress snapshot cache read failed",
				logger.UserID(userID.String()), logger.Err(err))
		} else if hit {
			return &cached, nil
		}
	}

	view, err := h.build(ctx, userID, query.RecentLedgerLimit)
	if err != nil {
		return nil, err
	}

	if h.cache != nil && !query.BypassCache {
		if err := h.cache.Set(ctx, cacheKey, view, snapshotCacheTTL); err != nil {
			h.log.Warn("progress snapshot cache write failed",
				logger.UserID(userID.String()), logger.Err(err))
		}
	}

	return view, nil
}

// build собирает снимок из хранилища и каталога.
func (h *GetProgressHandler) build(ctx context.Context, userID shared.UserID, ledgerLimit int) (*ProgressView, error) {
	agg, err := h.store.GetAggregate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_progress: %w", err)
	}

	level := agg.Level()
	total := agg.TotalPoints

	view := &ProgressView{
		UserID:      userID.String(),
		TotalPoints: total.Int(),
		Level: LevelDTO{
			Level:           level.Int(),
			ProgressPercent: level.ProgressToNext(total),
			PointsToNext:    (level + 1).RequiredPoints() - total.Int(),
		},
		Streak: StreakDTO{
			Current: agg.Streak.Current,
			Longest: agg.Streak.Longest,
		},
		Counters: map[string]int{
			shared.CounterQuizzesCompleted.String():   agg.QuizzesCompleted,
			shared.CounterChecklistsComplete.String(): agg.ChecklistsCompleted,
			shared.CounterNotesCreated.String():       agg.NotesCreated,
			shared.CounterItemsRead.String():          agg.ItemsRead,
		},
		GeneratedAt: time.Now().UTC(),
	}
	if agg.Streak.HasActivity() {
		// Маркер дня хранит календарный день в собственных компонентах,
		// поэтому форматируется без конвертации момента времени.
		view.Streak.LastActivityDate = agg.Streak.LastActivity.Format(timeutil.FormatDate)
	}

	awards, err := h.store.ListAwards(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_progress: list awards: %w", err)
	}
	view.Awards = h.joinAwards(ctx, awards)
	for _, a := range view.Awards {
		if !a.Seen {
			view.UnseenAwards++
		}
	}

	entries, err := h.store.ListLedger(ctx, userID, shared.NewPagination(1, ledgerLimit))
	if err != nil {
		return nil, fmt.Errorf("get_progress: list ledger: %w", err)
	}
	view.RecentLedger = make([]LedgerEntryDTO, len(entries))
	for i, e := range entries {
		view.RecentLedger[i] = LedgerEntryDTO{
			ID:          e.ID,
			Points:      e.Points,
			Reason:      e.Reason.String(),
			ReferenceID: e.ReferenceID,
			CreatedAt:   e.CreatedAt,
		}
	}

	return view, nil
}

// joinAwards соединяет награды с определениями каталога. Награда без
// определения (достижение убрали из каталога) остаётся в списке со
// слагом вместо имени.
func (h *GetProgressHandler) joinAwards(ctx context.Context, awards []*achievement.Award) []AwardDTO {
	defs := map[shared.AchievementID]achievement.Definition{}
	if catalog, err := h.catalog.Catalog(ctx); err != nil {
		h.log.Warn("achievement catalog unavailable for join", logger.Err(err))
	} else {
		for _, def := range catalog {
			defs[def.ID] = def
		}
	}

	out := make([]AwardDTO, len(awards))
	for i, award := range awards {
		dto := AwardDTO{
			AchievementID: award.AchievementID.String(),
			Name:          award.AchievementID.String(),
			Rarity:        achievement.RarityCommon.String(),
			EarnedAt:      award.EarnedAt,
			Seen:          award.Seen,
		}
		if def, ok := defs[award.AchievementID]; ok {
			dto.Name = def.Name
			dto.Description = def.Description
			dto.Rarity = def.Rarity.String()
			dto.RewardPoints = def.RewardPoints
		}
		out[i] = dto
	}
	return out
}
