package movements

import (
	"context"
	"database/sql"
)

type Service struct {
	db    *sql.DB
	store *Store
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, store: NewStore(db)}
}

// アイテム単位の履歴（ライフシート）
func (s *Service) ItemHistory(ctx context.Context, internalCode string, p Page) (ListResult, error) {
	rows, total, err := s.store.ListByItemCode(ctx, internalCode, p)
	if err != nil {
		return ListResult{}, err
	}
	return buildList(rows, total), nil
}

// ステーション単位の活動フィード
func (s *Service) List(ctx context.Context, f Filter, p Page) (ListResult, error) {
	rows, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return ListResult{}, err
	}
	return buildList(rows, total), nil
}

func (s *Service) SumLotDeltas(ctx context.Context, lotID uint64) (int64, error) {
	return s.store.SumLotDeltas(ctx, lotID)
}

func buildList(rows []Movement, total int64) ListResult {
	items := make([]MovementResponse, 0, len(rows))
	for _, m := range rows {
		items = append(items, toResponse(m))
	}
	return ListResult{Items: items, Total: total}
}
