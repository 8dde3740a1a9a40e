package query

import (
	"context"
	"fmt"
	"time"

	"github.com/readstack-hub/progression-engine/internal/domain/achievement"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENTS QUERY
// Отдаёт весь каталог достижений со статусом получения для пользователя.
// Используется экраном достижений: полученные с датой, остальные с
// текущим прогрессом к порогу.
// ══════════════════════════════════════════════════════════════════════════════

// GetAchievementsQuery содержит параметры запроса каталога.
type GetAchievementsQuery struct {
	// UserID - для кого считать статус получения.
	UserID string

	// OnlyEarned - вернуть только полученные.
	OnlyEarned bool

	// OnlyUnseen - вернуть только полученные, но не показанные.
	OnlyUnseen bool
}

// Validate проверяет корректность параметров.
func (q *GetAchievementsQuery) Validate() error {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return fmt.Errorf("get_achievements: %w", err)
	}
	return nil
}

// AchievementStatusDTO - достижение каталога со статусом пользователя.
type AchievementStatusDTO struct {
	// AchievementID - слаг достижения.
	AchievementID string `json:"achievement_id"`

	// Name - отображаемое имя.
	Name string `json:"name"`

	// Description - описание для UI.
	Description string `json:"description,omitempty"`

	// Category - группа на экране достижений.
	Category string `json:"category,omitempty"`

	// Rarity - редкость.
	Rarity string `json:"rarity"`

	// Metric - метрика порога.
	Metric string `json:"metric"`

	// Threshold - порог получения.
	Threshold int `json:"threshold"`

	// RewardPoints - бонус за получение.
	RewardPoints int `json:"reward_points,omitempty"`

	// Earned - получено ли.
	Earned bool `json:"earned"`

	// EarnedAt - когда получено.
	EarnedAt *time.Time `json:"earned_at,omitempty"`

	// Seen - показано ли пользователю.
	Seen bool `json:"seen"`

	// CurrentValue - текущее значение метрики (0 для сигнальных).
	CurrentValue int `json:"current_value"`

	// ProgressPercent - прогресс к порогу (0-100, 100 для полученных).
	ProgressPercent int `json:"progress_percent"`
}

// GetAchievementsResult содержит результат запроса.
type GetAchievementsResult struct {
	// Achievements - достижения в порядке каталога.
	Achievements []AchievementStatusDTO `json:"achievements"`

	// EarnedCount - сколько получено.
	EarnedCount int `json:"earned_count"`

	// TotalCount - сколько всего в каталоге.
	TotalCount int `json:"total_count"`
}

// GetAchievementsHandler обрабатывает запросы каталога достижений.
type GetAchievementsHandler struct {
	store   Reader
	catalog achievement.Provider
	log     *logger.Logger
}

// NewGetAchievementsHandler создаёт новый обработчик.
func NewGetAchievementsHandler(store Reader, catalog achievement.Provider, log *logger.Logger) *GetAchievementsHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GetAchievementsHandler{
		store:   store,
		catalog: catalog,
		log:     log.With(logger.Component("get_achievements")),
	}
}

// Handle выполняет запрос.
func (h *GetAchievementsHandler) Handle(ctx context.Context, query GetAchievementsQuery) (*GetAchievementsResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	userID, _ := shared.NewUserID(query.UserID)

	catalog, err := h.catalog.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_achievements: %w", err)
	}

	awards, err := h.store.ListAwards(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_achievements: %w", err)
	}
	byID := make(map[shared.AchievementID]*achievement.Award, len(awards))
	for _, a := range awards {
		byID[a.AchievementID] = a
	}

	// Прогресс к порогу считается из агрегата; новый пользователь без
	// агрегата видит каталог с нулевым прогрессом.
	var snapshot achievement.Snapshot
	if agg, err := h.store.GetAggregate(ctx, userID); err == nil {
		snapshot = achievement.Snapshot{
			TotalPoints:         agg.TotalPoints.Int(),
			CurrentStreak:       agg.Streak.Current,
			QuizzesCompleted:    agg.QuizzesCompleted,
			ChecklistsCompleted: agg.ChecklistsCompleted,
			NotesCreated:        agg.NotesCreated,
			ItemsRead:           agg.ItemsRead,
		}
	} else if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("get_achievements: %w", err)
	}

	result := &GetAchievementsResult{TotalCount: len(catalog)}
	for _, def := range catalog {
		award := byID[def.ID]

		if query.OnlyEarned && award == nil {
			continue
		}
		if query.OnlyUnseen && (award == nil || award.Seen) {
			continue
		}

		dto := AchievementStatusDTO{
			AchievementID: def.ID.String(),
			Name:          def.Name,
			Description:   def.Description,
			Category:      def.Category,
			Rarity:        def.Rarity.String(),
			Metric:        def.Requirement.Metric.String(),
			Threshold:     def.Requirement.Threshold,
			RewardPoints:  def.RewardPoints,
		}

		if award != nil {
			earnedAt := award.EarnedAt
			dto.Earned = true
			dto.EarnedAt = &earnedAt
			dto.Seen = award.Seen
			dto.ProgressPercent = 100
			result.EarnedCount++
		} else if !def.Requirement.Metric.IsSignal() {
			dto.CurrentValue = snapshot.Metric(def.Requirement.Metric)
			dto.ProgressPercent = progressPercent(dto.CurrentValue, def.Requirement.Threshold)
		}

		result.Achievements = append(result.Achievements, dto)
	}

	return result, nil
}

// progressPercent считает процент прогресса к порогу.
func progressPercent(value, threshold int) int {
	if threshold <= 0 {
		return 0
	}
	percent := value * 100 / threshold
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}
	return percent
}
