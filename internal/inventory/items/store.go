package items

import (
	"context"
	"database/sql"
	"strings"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const assetSelect = `
SELECT a.asset_id, a.station_id, a.compartment_id, a.product_id, a.internal_code,
       a.serial, a.usage_hours, a.received_at, a.end_of_life_on,
       p.name, st.name, st.category
FROM assets a
JOIN products p ON p.product_id = a.product_id
JOIN item_states st ON st.state_id = a.state_id`

const lotSelect = `
SELECT l.lot_id, l.station_id, l.compartment_id, l.product_id, l.internal_code,
       l.quantity, l.lot_number, l.expires_on, l.received_at,
       p.name, st.name, st.category
FROM lots l
JOIN products p ON p.product_id = l.product_id
JOIN item_states st ON st.state_id = l.state_id`

func scanAsset(row interface{ Scan(...any) error }) (Item, error) {
	it := Item{Kind: "asset", Quantity: 1}
	err := row.Scan(&it.ID, &it.StationID, &it.CompartmentID, &it.ProductID, &it.InternalCode,
		&it.Serial, &it.UsageHours, &it.ReceivedAt, &it.EndOfLifeOn,
		&it.ProductName, &it.State, &it.StateCategory)
	return it, err
}

func scanLot(row interface{ Scan(...any) error }) (Item, error) {
	it := Item{Kind: "lot"}
	err := row.Scan(&it.ID, &it.StationID, &it.CompartmentID, &it.ProductID, &it.InternalCode,
		&it.Quantity, &it.LotNumber, &it.ExpiresOn, &it.ReceivedAt,
		&it.ProductName, &it.State, &it.StateCategory)
	return it, err
}

// GetByCode は資産→ロットの順に internal_code を解決する。
// どちらにも無ければ sql.ErrNoRows を返す。
func (s *Store) GetByCode(ctx context.Context, code string) (Item, error) {
	it, err := scanAsset(s.db.QueryRowContext(ctx, assetSelect+` WHERE a.internal_code = ?`, code))
	if err == nil {
		return it, nil
	}
	if err != sql.ErrNoRows {
		return Item{}, err
	}
	return scanLot(s.db.QueryRowContext(ctx, lotSelect+` WHERE l.internal_code = ?`, code))
}

func (s *Store) List(ctx context.Context, f Filter, p Page) ([]Item, error) {
	p = p.normalize()

	var out []Item
	if f.Kind == nil || *f.Kind == "asset" {
		rows, err := s.listAssets(ctx, f, p)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	if f.Kind == nil || *f.Kind == "lot" {
		rows, err := s.listLots(ctx, f, p)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (s *Store) listAssets(ctx context.Context, f Filter, p Page) ([]Item, error) {
	where, args := buildWhere("a", "st", f)
	query := assetSelect + where + ` ORDER BY a.asset_id DESC LIMIT ? OFFSET ?`
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) listLots(ctx context.Context, f Filter, p Page) ([]Item, error) {
	where, args := buildWhere("l", "st", f)
	query := lotSelect + where + ` ORDER BY l.lot_id DESC LIMIT ? OFFSET ?`
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func buildWhere(alias, stateAlias string, f Filter) (string, []any) {
	var conds []string
	var args []any
	if f.StationID != nil {
		conds = append(conds, alias+".station_id = ?")
		args = append(args, *f.StationID)
	}
	if f.State != nil {
		conds = append(conds, stateAlias+".name = ?")
		args = append(args, *f.State)
	}
	if f.ProductID != nil {
		conds = append(conds, alias+".product_id = ?")
		args = append(args, *f.ProductID)
	}
	if f.CompartmentID != nil {
		conds = append(conds, alias+".compartment_id = ?")
		args = append(args, *f.CompartmentID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
