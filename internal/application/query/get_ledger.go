package query

import (
	"context"
	"fmt"

	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEDGER QUERY
// Постраничная история начислений очков. Журнал append-only, поэтому
// страница стабильна между запросами, пока не появились новые записи.
// ══════════════════════════════════════════════════════════════════════════════

// GetLedgerQuery содержит параметры запроса журнала.
type GetLedgerQuery struct {
	// UserID - владелец журнала.
	UserID string

	// Page - номер страницы (с единицы).
	Page int

	// PageSize - размер страницы.
	PageSize int
}

// Validate проверяет корректность параметров.
func (q *GetLedgerQuery) Validate() error {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return fmt.Errorf("get_ledger: %w", err)
	}
	return nil
}

// GetLedgerResult содержит страницу журнала.
type GetLedgerResult struct {
	// Entries - записи, новые первыми.
	Entries []LedgerEntryDTO `json:"entries"`

	// Page - номер страницы.
	Page int `json:"page"`

	// PageSize - фактический размер страницы.
	PageSize int `json:"page_size"`

	// TotalPoints - сумма всего журнала. Совпадает с суммой агрегата;
	// расхождение чинит фоновая сверка.
	TotalPoints int `json:"total_points"`
}

// GetLedgerHandler обрабатывает запросы журнала очков.
type GetLedgerHandler struct {
	store Reader
	log   *logger.Logger
}

// NewGetLedgerHandler создаёт новый обработчик.
func NewGetLedgerHandler(store Reader, log *logger.Logger) *GetLedgerHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GetLedgerHandler{
		store: store,
		log:   log.With(logger.Component("get_ledger")),
	}
}

// Handle выполняет запрос.
func (h *GetLedgerHandler) Handle(ctx context.Context, query GetLedgerQuery) (*GetLedgerResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	userID, _ := shared.NewUserID(query.UserID)
	page := shared.NewPagination(query.Page, query.PageSize)

	entries, err := h.store.ListLedger(ctx, userID, page)
	if err != nil {
		return nil, fmt.Errorf("get_ledger: %w", err)
	}

	sum, err := h.store.LedgerSum(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_ledger: %w", err)
	}

	result := &GetLedgerResult{
		Page:        page.Page,
		PageSize:    page.Limit(),
		TotalPoints: sum,
		Entries:     make([]LedgerEntryDTO, len(entries)),
	}
	for i, e := range entries {
		result.Entries[i] = LedgerEntryDTO{
			ID:          e.ID,
			Points:      e.Points,
			Reason:      e.Reason.String(),
			ReferenceID: e.ReferenceID,
			CreatedAt:   e.CreatedAt,
		}
	}

	return result, nil
}
