package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SIMS-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(d *sql.DB) *Store { return &Store{db: d} }

// ===== 状態カタログ =====

func (s *Store) stateID(ctx context.Context, q db.DBTX, name string) (uint64, error) {
	const query = `SELECT state_id FROM item_states WHERE name = ?`
	var id uint64
	if err := q.QueryRowContext(ctx, query, name).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrConfig(fmt.Sprintf("state %q missing from item_states", name))
		}
		return 0, wrapLockErr(err)
	}
	return id, nil
}

func (s *Store) stateName(ctx context.Context, q db.DBTX, id uint64) (string, error) {
	const query = `SELECT name FROM item_states WHERE state_id = ?`
	var name string
	if err := q.QueryRowContext(ctx, query, id).Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrConfig(fmt.Sprintf("state_id %d missing from item_states", id))
		}
		return "", wrapLockErr(err)
	}
	return name, nil
}

// ===== 行ロック =====

type assetRow struct {
	AssetID       uint64
	StationID     uint64
	CompartmentID uint64
	ProductID     uint64
	InternalCode  string
	StateID       uint64
	State         string
	UsageHours    uint
}

type lotRow struct {
	LotID         uint64
	StationID     uint64
	CompartmentID uint64
	ProductID     uint64
	InternalCode  string
	Quantity      uint
	LotNumber     sql.NullString
	ExpiresOn     sql.NullTime
	StateID       uint64
	State         string
}

const assetLockCols = `asset_id, station_id, compartment_id, product_id, internal_code, state_id, usage_hours`
const lotLockCols = `lot_id, station_id, compartment_id, product_id, internal_code, quantity, lot_number, expires_on, state_id`

func (s *Store) scanAssetLock(ctx context.Context, q db.DBTX, row *sql.Row) (*assetRow, error) {
	var a assetRow
	if err := row.Scan(&a.AssetID, &a.StationID, &a.CompartmentID, &a.ProductID,
		&a.InternalCode, &a.StateID, &a.UsageHours); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, wrapLockErr(err)
	}
	name, err := s.stateName(ctx, q, a.StateID)
	if err != nil {
		return nil, err
	}
	a.State = name
	return &a, nil
}

func (s *Store) scanLotLock(ctx context.Context, q db.DBTX, row *sql.Row) (*lotRow, error) {
	var l lotRow
	if err := row.Scan(&l.LotID, &l.StationID, &l.CompartmentID, &l.ProductID,
		&l.InternalCode, &l.Quantity, &l.LotNumber, &l.ExpiresOn, &l.StateID); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, wrapLockErr(err)
	}
	name, err := s.stateName(ctx, q, l.StateID)
	if err != nil {
		return nil, err
	}
	l.State = name
	return &l, nil
}

func (s *Store) lockAssetByCode(ctx context.Context, q db.DBTX, code string) (*assetRow, error) {
	query := `SELECT ` + assetLockCols + ` FROM assets WHERE internal_code = ? FOR UPDATE`
	return s.scanAssetLock(ctx, q, q.QueryRowContext(ctx, query, code))
}

func (s *Store) lockAssetByID(ctx context.Context, q db.DBTX, id uint64) (*assetRow, error) {
	query := `SELECT ` + assetLockCols + ` FROM assets WHERE asset_id = ? FOR UPDATE`
	return s.scanAssetLock(ctx, q, q.QueryRowContext(ctx, query, id))
}

func (s *Store) lockLotByCode(ctx context.Context, q db.DBTX, code string) (*lotRow, error) {
	query := `SELECT ` + lotLockCols + ` FROM lots WHERE internal_code = ? FOR UPDATE`
	return s.scanLotLock(ctx, q, q.QueryRowContext(ctx, query, code))
}

func (s *Store) lockLotByID(ctx context.Context, q db.DBTX, id uint64) (*lotRow, error) {
	query := `SELECT ` + lotLockCols + ` FROM lots WHERE lot_id = ? FOR UPDATE`
	return s.scanLotLock(ctx, q, q.QueryRowContext(ctx, query, id))
}

// 併合先ロット検索。キーは (product, destination compartment, lot_number, expires_on, state)。
// NULL同士も一致とみなすため <=> を使う。
func (s *Store) lockMergeTarget(ctx context.Context, q db.DBTX, src *lotRow, destCompartmentID uint64) (*lotRow, error) {
	query := `SELECT ` + lotLockCols + ` FROM lots
	WHERE product_id = ? AND compartment_id = ? AND lot_number <=> ? AND expires_on <=> ?
	  AND state_id = ? AND lot_id <> ?
	LIMIT 1 FOR UPDATE`
	row := q.QueryRowContext(ctx, query,
		src.ProductID, destCompartmentID, src.LotNumber, src.ExpiresOn, src.StateID, src.LotID)
	l, err := s.scanLotLock(ctx, q, row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

// ===== マスタ参照 =====

type productRow struct {
	ProductID         uint64
	Name              string
	UsefulLifeMonths  sql.NullInt64
	RequiresExpiry    bool
	LotNumberRequired bool
}

func (s *Store) getProduct(ctx context.Context, q db.DBTX, id uint64) (*productRow, error) {
	const query = `SELECT product_id, name, useful_life_months, requires_expiry, lot_number_required
	FROM products WHERE product_id = ?`
	var p productRow
	if err := q.QueryRowContext(ctx, query, id).Scan(
		&p.ProductID, &p.Name, &p.UsefulLifeMonths, &p.RequiresExpiry, &p.LotNumberRequired); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound("product not found")
		}
		return nil, wrapLockErr(err)
	}
	return &p, nil
}

// compartmentStation: 収納区画→ロケーション→ステーションを解決する
func (s *Store) compartmentStation(ctx context.Context, q db.DBTX, compartmentID uint64) (uint64, error) {
	const query = `
	SELECT l.station_id
	FROM compartments c
	JOIN locations l ON l.location_id = c.location_id
	WHERE c.compartment_id = ?`
	var stationID uint64
	if err := q.QueryRowContext(ctx, query, compartmentID).Scan(&stationID); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound("compartment not found")
		}
		return 0, wrapLockErr(err)
	}
	return stationID, nil
}

// ステーション予約の「抹消」区画。無ければ設定エラー。
func (s *Store) annulmentCompartment(ctx context.Context, q db.DBTX, stationID uint64) (uint64, error) {
	const query = `
	SELECT c.compartment_id
	FROM compartments c
	JOIN locations l ON l.location_id = c.location_id
	WHERE l.station_id = ? AND c.purpose = 'annulment'
	LIMIT 1`
	var id uint64
	if err := q.QueryRowContext(ctx, query, stationID).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrConfig(fmt.Sprintf("station %d has no annulment compartment", stationID))
		}
		return 0, wrapLockErr(err)
	}
	return id, nil
}

func (s *Store) stationCode(ctx context.Context, q db.DBTX, stationID uint64) (string, error) {
	const query = `SELECT code FROM stations WHERE station_id = ?`
	var code string
	if err := q.QueryRowContext(ctx, query, stationID).Scan(&code); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound("station not found")
		}
		return "", wrapLockErr(err)
	}
	return code, nil
}

// ===== 採番 =====

// nextInternalCode はステーション×種別ごとの連番を採番する。
// code_sequences の行をロックするので同時受入でも番号は重複しない。
// 採番済み番号は欠番になっても再利用しない。
func (s *Store) nextInternalCode(ctx context.Context, q db.DBTX, stationID uint64, kind string) (string, error) {
	stCode, err := s.stationCode(ctx, q, stationID)
	if err != nil {
		return "", err
	}

	var seq uint64
	const sel = `SELECT next_seq FROM code_sequences WHERE station_id = ? AND kind = ? FOR UPDATE`
	err = q.QueryRowContext(ctx, sel, stationID, kind).Scan(&seq)
	switch {
	case err == sql.ErrNoRows:
		seq = 1
		const ins = `INSERT INTO code_sequences (station_id, kind, next_seq) VALUES (?, ?, 2)`
		if _, err := q.ExecContext(ctx, ins, stationID, kind); err != nil {
			return "", wrapLockErr(err)
		}
	case err != nil:
		return "", wrapLockErr(err)
	default:
		const upd = `UPDATE code_sequences SET next_seq = next_seq + 1 WHERE station_id = ? AND kind = ?`
		if _, err := q.ExecContext(ctx, upd, stationID, kind); err != nil {
			return "", wrapLockErr(err)
		}
	}

	return FormatInternalCode(stCode, kind, seq), nil
}

// FormatInternalCode: 例 "ST01-A-000042"（資産）/ "ST01-L-000007"（ロット）
func FormatInternalCode(stationCode, kind string, seq uint64) string {
	letter := "A"
	if kind == "lot" {
		letter = "L"
	}
	return fmt.Sprintf("%s-%s-%06d", stationCode, letter, seq)
}

// ===== 書き込み =====

func (s *Store) insertAsset(ctx context.Context, q db.DBTX, stationID, compartmentID, productID uint64,
	code string, serial sql.NullString, stateID uint64, receivedAt time.Time, endOfLife sql.NullTime) (uint64, error) {
	const query = `
	INSERT INTO assets
	  (station_id, compartment_id, product_id, internal_code, serial, state_id, usage_hours, received_at, end_of_life_on)
	VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`
	res, err := q.ExecContext(ctx, query, stationID, compartmentID, productID, code, serial, stateID, receivedAt, endOfLife)
	if err != nil {
		return 0, wrapLockErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (s *Store) insertLot(ctx context.Context, q db.DBTX, stationID, compartmentID, productID uint64,
	code string, quantity uint, lotNumber sql.NullString, expiresOn sql.NullTime, stateID uint64, receivedAt time.Time) (uint64, error) {
	const query = `
	INSERT INTO lots
	  (station_id, compartment_id, product_id, internal_code, quantity, lot_number, expires_on, state_id, received_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := q.ExecContext(ctx, query, stationID, compartmentID, productID, code, quantity, lotNumber, expiresOn, stateID, receivedAt)
	if err != nil {
		return 0, wrapLockErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (s *Store) updateAsset(ctx context.Context, q db.DBTX, assetID, stateID, compartmentID uint64) error {
	const query = `UPDATE assets SET state_id = ?, compartment_id = ? WHERE asset_id = ?`
	res, err := q.ExecContext(ctx, query, stateID, compartmentID, assetID)
	if err != nil {
		return wrapLockErr(err)
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return ErrInternal("failed to update asset row")
	}
	return nil
}

func (s *Store) setLot(ctx context.Context, q db.DBTX, lotID uint64, quantity uint, stateID, compartmentID uint64) error {
	const query = `UPDATE lots SET quantity = ?, state_id = ?, compartment_id = ? WHERE lot_id = ?`
	res, err := q.ExecContext(ctx, query, quantity, stateID, compartmentID, lotID)
	if err != nil {
		return wrapLockErr(err)
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return ErrInternal("failed to update lot row")
	}
	return nil
}

func (s *Store) addUsageHours(ctx context.Context, q db.DBTX, assetID uint64, hours uint) error {
	const query = `UPDATE assets SET usage_hours = usage_hours + ? WHERE asset_id = ?`
	res, err := q.ExecContext(ctx, query, hours, assetID)
	if err != nil {
		return wrapLockErr(err)
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return ErrInternal("failed to update usage_hours")
	}
	return nil
}

// ===== 台帳 =====

type movementInsert struct {
	ULID      string
	AssetID   uint64 // 0なら未設定
	LotID     uint64
	Kind      string
	Delta     int
	FromComp  uint64
	ToComp    uint64
	StationID uint64
	ActorID   string
	Note      string
	MovedAt   time.Time
}

func (s *Store) insertMovement(ctx context.Context, q db.DBTX, m movementInsert) error {
	const query = `
	INSERT INTO movements
	  (movement_ulid, asset_id, lot_id, kind, delta, from_compartment_id, to_compartment_id,
	   station_id, actor_id, note, moved_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, query,
		m.ULID, zeroToNil(m.AssetID), zeroToNil(m.LotID), m.Kind, m.Delta,
		zeroToNil(m.FromComp), zeroToNil(m.ToComp), m.StationID, m.ActorID, m.Note, m.MovedAt)
	return wrapLockErr(err)
}

func zeroToNil(v uint64) any {
	if v == 0 {
		return nil
	}
	return v
}

func wrapLockErr(err error) error {
	if err == nil {
		return nil
	}
	if db.IsLockConflict(err) {
		return ErrConflict("lock wait timed out, retry the operation")
	}
	return err
}
