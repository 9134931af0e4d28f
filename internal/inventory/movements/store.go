package movements

import (
	"context"
	"database/sql"
	"strings"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const selectCols = `
	movement_id, movement_ulid, asset_id, lot_id, kind, delta,
	from_compartment_id, to_compartment_id, station_id, actor_id, note, moved_at`

// resolveItem: internal_code -> (asset_id, lot_id) のどちらか一方
func (s *Store) resolveItem(ctx context.Context, internalCode string) (assetID, lotID uint64, err error) {
	const qa = `SELECT asset_id FROM assets WHERE internal_code = ?`
	if err = s.db.QueryRowContext(ctx, qa, internalCode).Scan(&assetID); err == nil {
		return assetID, 0, nil
	}
	if err != sql.ErrNoRows {
		return 0, 0, err
	}
	const ql = `SELECT lot_id FROM lots WHERE internal_code = ?`
	if err = s.db.QueryRowContext(ctx, ql, internalCode).Scan(&lotID); err != nil {
		return 0, 0, err
	}
	return 0, lotID, nil
}

// ListByItemCode: ライフシート用。対象アイテムの全履歴を古い順に返す。
func (s *Store) ListByItemCode(ctx context.Context, internalCode string, p Page) ([]Movement, int64, error) {
	assetID, lotID, err := s.resolveItem(ctx, internalCode)
	if err != nil {
		return nil, 0, err
	}

	where := " WHERE asset_id = ?"
	arg := any(assetID)
	if lotID != 0 {
		where = " WHERE lot_id = ?"
		arg = lotID
	}

	order := "ASC"
	if strings.ToLower(p.Order) == "desc" {
		order = "DESC"
	}
	if p.Limit <= 0 {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	q := `SELECT ` + selectCols + ` FROM movements` + where +
		` ORDER BY moved_at ` + order + `, movement_id ` + order + ` LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, arg, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out, err := scanMovements(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movements`+where, arg).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// List: ステーション単位の活動フィード
func (s *Store) List(ctx context.Context, f Filter, p Page) ([]Movement, int64, error) {
	where := "WHERE 1=1"
	args := []any{}
	if f.StationID != nil {
		where += " AND station_id = ?"
		args = append(args, *f.StationID)
	}
	if f.Kind != nil {
		where += " AND kind = ?"
		args = append(args, *f.Kind)
	}
	if f.ActorID != nil {
		where += " AND actor_id = ?"
		args = append(args, *f.ActorID)
	}
	if f.From != nil {
		where += " AND moved_at >= ?"
		args = append(args, *f.From)
	}
	if f.To != nil {
		where += " AND moved_at < ?"
		args = append(args, *f.To)
	}

	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	q := `SELECT ` + selectCols + ` FROM movements ` + where +
		` ORDER BY moved_at ` + order + `, movement_id ` + order + ` LIMIT ? OFFSET ?`
	queryArgs := append(append([]any{}, args...), p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, q, queryArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out, err := scanMovements(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movements `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// SumLotDeltas は台帳側の合計数量を返す。照合・検証用であり、
// 実行時の在庫判断には使わない（在庫は常に lots.quantity）。
func (s *Store) SumLotDeltas(ctx context.Context, lotID uint64) (int64, error) {
	const q = `SELECT COALESCE(SUM(delta), 0) FROM movements WHERE lot_id = ?`
	var sum int64
	if err := s.db.QueryRowContext(ctx, q, lotID).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

func scanMovements(rows *sql.Rows) ([]Movement, error) {
	out := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(
			&m.MovementID, &m.MovementULID, &m.AssetID, &m.LotID, &m.Kind, &m.Delta,
			&m.FromCompartmentID, &m.ToCompartmentID, &m.StationID, &m.ActorID, &m.Note, &m.MovedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
