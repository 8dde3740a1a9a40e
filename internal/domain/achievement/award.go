package achievement

import (
	"time"

	"github.com/readstack-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT AWARDS
// Факт получения достижения. Пара (UserID, AchievementID) уникальна на
// уровне хранилища; после создания меняется только флаг Seen (false -> true).
// ══════════════════════════════════════════════════════════════════════════════

// Award представляет полученное пользователем достижение.
type Award struct {
	// UserID - владелец награды.
	UserID shared.UserID

	// AchievementID - какое достижение получено.
	AchievementID shared.AchievementID

	// EarnedAt - когда получено.
	EarnedAt time.Time

	// Seen - показано ли пользователю. Односторонний флаг.
	Seen bool
}

// NewAward создаёт новую награду с валидацией.
func NewAward(userID shared.UserID, achievementID shared.AchievementID) (*Award, error) {
	if userID.IsEmpty() {
		return nil, shared.ErrInvalidUserID
	}
	if !achievementID.IsValid() {
		return nil, shared.NewDomainError("achievement", "NewAward", shared.ErrInvalidID, "invalid achievement ID")
	}

	return &Award{
		UserID:        userID,
		AchievementID: achievementID,
		EarnedAt:      time.Now().UTC(),
		Seen:          false,
	}, nil
}

// MarkSeen помечает награду показанной. Повторный вызов - no-op.
func (a *Award) MarkSeen() {
	a.Seen = true
}

// EarnedSet строит множество полученных достижений для эвалюатора.
func EarnedSet(awards []*Award) map[shared.AchievementID]bool {
	earned := make(map[shared.AchievementID]bool, len(awards))
	for _, a := range awards {
		earned[a.AchievementID] = true
	}
	return earned
}
