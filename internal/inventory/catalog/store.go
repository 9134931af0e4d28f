package catalog

import (
	"context"
	"database/sql"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// ===== stations =====

func (s *Store) InsertStation(ctx context.Context, code, name string) (uint64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO stations (code, name) VALUES (?, ?)`, code, name)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

func (s *Store) ListStations(ctx context.Context) ([]Station, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT station_id, code, name FROM stations ORDER BY station_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Station
	for rows.Next() {
		var st Station
		if err := rows.Scan(&st.StationID, &st.Code, &st.Name); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ===== locations =====

func (s *Store) InsertLocation(ctx context.Context, stationID uint64, name string) (uint64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO locations (station_id, name) VALUES (?, ?)`, stationID, name)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

func (s *Store) ListLocations(ctx context.Context, stationID uint64) ([]Location, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT location_id, station_id, name FROM locations WHERE station_id = ? ORDER BY location_id`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.LocationID, &l.StationID, &l.Name); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ===== compartments =====

func (s *Store) InsertCompartment(ctx context.Context, locationID uint64, name, purpose string) (uint64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO compartments (location_id, name, purpose) VALUES (?, ?, ?)`, locationID, name, purpose)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

func (s *Store) ListCompartments(ctx context.Context, locationID uint64) ([]Compartment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT compartment_id, location_id, name, purpose FROM compartments WHERE location_id = ? ORDER BY compartment_id`,
		locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Compartment
	for rows.Next() {
		var c Compartment
		if err := rows.Scan(&c.CompartmentID, &c.LocationID, &c.Name, &c.Purpose); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ステーション内の抹消区画の数。受入開始前の設定検証に使う。
func (s *Store) CountAnnulmentCompartments(ctx context.Context, stationID uint64) (int, error) {
	const query = `
	SELECT COUNT(*)
	FROM compartments c
	JOIN locations l ON l.location_id = c.location_id
	WHERE l.station_id = ? AND c.purpose = 'annulment'`
	var n int
	err := s.db.QueryRowContext(ctx, query, stationID).Scan(&n)
	return n, err
}

// ===== products =====

func (s *Store) InsertProduct(ctx context.Context, p Product) (uint64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO products (name, useful_life_months, requires_expiry, lot_number_required) VALUES (?, ?, ?, ?)`,
		p.Name, p.UsefulLifeMonths, p.RequiresExpiry, p.LotNumberRequired)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

func (s *Store) GetProduct(ctx context.Context, id uint64) (Product, error) {
	var p Product
	err := s.db.QueryRowContext(ctx,
		`SELECT product_id, name, useful_life_months, requires_expiry, lot_number_required FROM products WHERE product_id = ?`,
		id).Scan(&p.ProductID, &p.Name, &p.UsefulLifeMonths, &p.RequiresExpiry, &p.LotNumberRequired)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, name, useful_life_months, requires_expiry, lot_number_required FROM products ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ProductID, &p.Name, &p.UsefulLifeMonths, &p.RequiresExpiry, &p.LotNumberRequired); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ===== item states =====

func (s *Store) ListStates(ctx context.Context) ([]ItemState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state_id, name, category FROM item_states ORDER BY state_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ItemState
	for rows.Next() {
		var st ItemState
		if err := rows.Scan(&st.StateID, &st.Name, &st.Category); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
