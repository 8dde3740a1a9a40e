package progression

import (
	"time"

	"github.com/google/uuid"

	"github.com/readstack-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// POINT LEDGER
// Append-only журнал начислений очков. Журнал - источник истины:
// TotalPoints агрегата обязан равняться сумме записей пользователя.
// ══════════════════════════════════════════════════════════════════════════════

// LedgerEntry - одна запись журнала начислений.
type LedgerEntry struct {
	// ID - уникальный идентификатор записи.
	ID string

	// UserID - владелец начисления.
	UserID shared.UserID

	// Points - начисленные очки. В этом домене всегда положительные,
	// но тип оставлен знаковым для будущих корректировок.
	Points int

	// Reason - причина начисления.
	Reason shared.PointReason

	// ReferenceID - сущность, породившая начисление (id заметки, квиза,
	// достижения). Используется для будущей дедупликации.
	ReferenceID string

	// CreatedAt - время записи.
	CreatedAt time.Time
}

// NewLedgerEntry создаёт запись журнала с валидацией.
func NewLedgerEntry(userID shared.UserID, points int, reason shared.PointReason, referenceID string) (*LedgerEntry, error) {
	if userID.IsEmpty() {
		return nil, shared.ErrInvalidUserID
	}
	if points <= 0 {
		return nil, shared.ErrInvalidPointAmount
	}
	if !reason.IsValid() {
		return nil, shared.NewDomainError("progression", "NewLedgerEntry", shared.ErrInvalidInput, "unknown point reason")
	}

	return &LedgerEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Points:      points,
		Reason:      reason,
		ReferenceID: referenceID,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// SumEntries возвращает сумму очков по записям. Используется сверкой
// журнала с агрегатом.
func SumEntries(entries []*LedgerEntry) int {
	sum := 0
	for _, e := range entries {
		sum += e.Points
	}
	return sum
}
