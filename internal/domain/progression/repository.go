package progression

import (
	"context"

	"github.com/readstack-hub/progression-engine/internal/domain/achievement"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE INTERFACES
// Контракт хранилища движка. Реализации в infrastructure/persistence.
// Вся запись идёт через транзакцию, сериализованную по пользователю.
// ══════════════════════════════════════════════════════════════════════════════

// UserTx - транзакция над строкой агрегата одного пользователя.
// Строка заблокирована на всё время транзакции (SELECT ... FOR UPDATE или
// эквивалент), поэтому read-modify-write и каскад наград атомарны
// относительно других операций того же пользователя.
type UserTx interface {
	// Aggregate возвращает заблокированный агрегат. Если агрегата не было,
	// он создан нулевым перед блокировкой (гонка при первом использовании
	// гасится идемпотентной вставкой).
	Aggregate() *Aggregate

	// SaveAggregate записывает изменённый агрегат.
	SaveAggregate(agg *Aggregate) error

	// AppendLedger добавляет запись журнала начислений.
	AppendLedger(entry *LedgerEntry) error

	// EarnedAchievements возвращает множество уже полученных достижений.
	EarnedAchievements() (map[shared.AchievementID]bool, error)

	// InsertAward идемпотентно вставляет награду. Возвращает false, если
	// пара (user, achievement) уже существует - это не ошибка.
	InsertAward(award *achievement.Award) (bool, error)

	// MarkAwardsSeen помечает награды пользователя показанными и
	// возвращает количество реально изменённых строк. Чужие и
	// несуществующие id молча пропускаются.
	MarkAwardsSeen(ids []shared.AchievementID) (int, error)
}

// Store определяет операции хранилища движка.
type Store interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Write Side
	// ─────────────────────────────────────────────────────────────────────────

	// WithUser исполняет fn в транзакции, сериализованной по userID.
	// Ошибка fn откатывает всё; таймаут блокировки отдаётся как
	// retryable-ошибка без частичной записи.
	WithUser(ctx context.Context, userID shared.UserID, fn func(tx UserTx) error) error

	// ─────────────────────────────────────────────────────────────────────────
	// Read Side
	// ─────────────────────────────────────────────────────────────────────────

	// GetAggregate возвращает агрегат пользователя.
	// Возвращает ErrUserNotFound, если агрегата ещё нет.
	GetAggregate(ctx context.Context, userID shared.UserID) (*Aggregate, error)

	// ListAwards возвращает награды пользователя (новые первыми).
	ListAwards(ctx context.Context, userID shared.UserID) ([]*achievement.Award, error)

	// ListLedger возвращает записи журнала пользователя (новые первыми).
	ListLedger(ctx context.Context, userID shared.UserID, page shared.Pagination) ([]*LedgerEntry, error)

	// LedgerSum возвращает сумму журнала пользователя. Используется
	// сверкой журнала с агрегатом.
	LedgerSum(ctx context.Context, userID shared.UserID) (int, error)

	// ListUserIDs возвращает id всех пользователей с агрегатом,
	// порциями для джоба сверки.
	ListUserIDs(ctx context.Context, page shared.Pagination) ([]shared.UserID, error)
}
