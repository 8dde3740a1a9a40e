package eventhandler

import (
	"context"

	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PROGRESS CHANGED HANDLER
// Общий обработчик для событий, которые меняют снимок прогресса, но не
// трогают проекцию очков: серия, счётчики, отметка просмотра, сверка.
// Регистрируется на каждый из этих типов отдельно.
// ═══════════════════════════════════════════════════════════════════════════

// ProgressChangedEventTypes перечисляет события, инвалидирующие снимок.
func ProgressChangedEventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventStreakAdvanced,
		shared.EventStreakReset,
		shared.EventCounterIncremented,
		shared.EventAchievementSeen,
		shared.EventAggregateReconciled,
	}
}

// OnProgressChangedHandler сбрасывает кэш снимка по aggregate id события.
type OnProgressChangedHandler struct {
	invalidator SnapshotInvalidator
	log         *logger.Logger
}

// NewOnProgressChangedHandler создаёт новый обработчик.
func NewOnProgressChangedHandler(invalidator SnapshotInvalidator, log *logger.Logger) *OnProgressChangedHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnProgressChangedHandler{
		invalidator: invalidator,
		log:         log.With(logger.Component("on_progress_changed")),
	}
}

// Handle реализует shared.EventHandler. Все события прогрессии несут
// user id как aggregate id, конкретный тип payload здесь не важен.
func (h *OnProgressChangedHandler) Handle(event shared.Event) error {
	if h.invalidator == nil {
		return nil
	}

	userID := event.AggregateID()
	if userID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := h.invalidator.InvalidateProgress(ctx, userID); err != nil {
		h.log.Warn("failed to invalidate progress snapshot",
			logger.UserID(userID),
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
	return nil
}
