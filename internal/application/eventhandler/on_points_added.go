// Package eventhandler содержит обработчики доменных событий.
// Обработчики - "реактивная" часть движка: они обновляют проекции
// и кэши после фиксации записи, не участвуя в самой транзакции.
package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON POINTS ADDED HANDLER
// Обновляет проекцию очков (ZSET в Redis) и сбрасывает кэш снимка.
// Проекция eventually consistent: потерянное событие догонит следующее
// по тому же пользователю, расхождение чинит фоновая сверка.
// ═══════════════════════════════════════════════════════════════════════════

// handlerTimeout ограничивает обращение к Redis из обработчика.
const handlerTimeout = 5 * time.Second

// ScoreProjection - проекция суммарных очков для быстрых выборок.
type ScoreProjection interface {
	// UpdateScore выставляет суммарные очки пользователя.
	UpdateScore(ctx context.Context, userID string, totalPoints int) error
}

// SnapshotInvalidator сбрасывает кэшированный снимок прогресса.
type SnapshotInvalidator interface {
	// InvalidateProgress удаляет снимок пользователя.
	InvalidateProgress(ctx context.Context, userID string) error
}

// OnPointsAddedHandler обрабатывает событие начисления очков.
type OnPointsAddedHandler struct {
	projection  ScoreProjection
	invalidator SnapshotInvalidator
	log         *logger.Logger
}

// NewOnPointsAddedHandler создаёт новый обработчик.
func NewOnPointsAddedHandler(projection ScoreProjection, invalidator SnapshotInvalidator, log *logger.Logger) *OnPointsAddedHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnPointsAddedHandler{
		projection:  projection,
		invalidator: invalidator,
		log:         log.With(logger.Component("on_points_added")),
	}
}

// EventType возвращает тип обрабатываемого события.
func (h *OnPointsAddedHandler) EventType() shared.EventType {
	return shared.EventPointsAdded
}

// Handle реализует shared.EventHandler.
func (h *OnPointsAddedHandler) Handle(event shared.Event) error {
	pointsEvent, ok := event.(shared.PointsAddedEvent)
	if !ok {
		h.log.Warn("unexpected event payload",
			logger.String("event_type", string(event.EventType())))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if h.projection != nil {
		if err := h.projection.UpdateScore(ctx, pointsEvent.UserID, pointsEvent.NewTotal); err != nil {
			return fmt.Errorf("update score projection: %w", err)
		}
	}

	if h.invalidator != nil {
		if err := h.invalidator.InvalidateProgress(ctx, pointsEvent.UserID); err != nil {
			// Снимок доживёт до своего TTL, это не ошибка обработки.
			h.log.Warn("failed to invalidate progress snapshot",
				logger.UserID(pointsEvent.UserID), logger.Err(err))
		}
	}

	h.log.Debug("score projection updated",
		logger.UserID(pointsEvent.UserID),
		logger.Points(pointsEvent.NewTotal),
	)
	return nil
}
