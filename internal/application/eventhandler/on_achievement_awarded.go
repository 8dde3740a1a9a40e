package eventhandler

import (
	"context"

	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ACHIEVEMENT AWARDED HANDLER
// Достижение меняет снимок прогресса (список наград, счётчик непоказанных),
// поэтому кэш сбрасывается. Начисление бонусных очков приходит отдельным
// событием и обновляет проекцию очков само.
// ═══════════════════════════════════════════════════════════════════════════

// OnAchievementAwardedHandler обрабатывает событие получения достижения.
type OnAchievementAwardedHandler struct {
	invalidator SnapshotInvalidator
	log         *logger.Logger
}

// NewOnAchievementAwardedHandler создаёт новый обработчик.
func NewOnAchievementAwardedHandler(invalidator SnapshotInvalidator, log *logger.Logger) *OnAchievementAwardedHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnAchievementAwardedHandler{
		invalidator: invalidator,
		log:         log.With(logger.Component("on_achievement_awarded")),
	}
}

// EventType возвращает тип обрабатываемого события.
func (h *OnAchievementAwardedHandler) EventType() shared.EventType {
	return shared.EventAchievementAwarded
}

// Handle реализует shared.EventHandler.
func (h *OnAchievementAwardedHandler) Handle(event shared.Event) error {
	awarded, ok := event.(shared.AchievementAwardedEvent)
	if !ok {
		h.log.Warn("unexpected event payload",
			logger.String("event_type", string(event.EventType())))
		return nil
	}

	h.log.Info("achievement awarded",
		logger.UserID(awarded.UserID),
		logger.AchievementID(awarded.AchievementID),
		logger.String("rarity", awarded.Rarity),
	)

	if h.invalidator == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := h.invalidator.InvalidateProgress(ctx, awarded.UserID); err != nil {
		h.log.Warn("failed to invalidate progress snapshot",
			logger.UserID(awarded.UserID), logger.Err(err))
	}
	return nil
}
