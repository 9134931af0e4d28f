package maintenance

import (
	"context"
	"database/sql"
	"time"

	"SIMS-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(d *sql.DB) *Store { return &Store{db: d} }

// ===== orders =====

func (s *Store) insertOrderTx(ctx context.Context, q db.DBTX, o Order) (uint64, error) {
	const query = `
	INSERT INTO maintenance_orders (order_ulid, station_id, title, status, plan_id, created_by, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := q.ExecContext(ctx, query, o.ULID, o.StationID, o.Title, o.Status, o.PlanID, o.CreatedBy, o.CreatedAt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

func (s *Store) lockOrderTx(ctx context.Context, q db.DBTX, orderID uint64) (Order, error) {
	const query = `
	SELECT order_id, order_ulid, station_id, title, status, plan_id, created_by, created_at, started_at, closed_at
	FROM maintenance_orders WHERE order_id = ? FOR UPDATE`
	var o Order
	err := q.QueryRowContext(ctx, query, orderID).Scan(
		&o.OrderID, &o.ULID, &o.StationID, &o.Title, &o.Status, &o.PlanID,
		&o.CreatedBy, &o.CreatedAt, &o.StartedAt, &o.ClosedAt)
	return o, err
}

func (s *Store) linkAssetTx(ctx context.Context, q db.DBTX, orderID, assetID uint64) error {
	const query = `INSERT INTO order_assets (order_id, asset_id) VALUES (?, ?)`
	_, err := q.ExecContext(ctx, query, orderID, assetID)
	return err
}

func (s *Store) orderAssetIDsTx(ctx context.Context, q db.DBTX, orderID uint64) ([]uint64, error) {
	const query = `SELECT asset_id FROM order_assets WHERE order_id = ? ORDER BY asset_id`
	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) updateOrderStatusTx(ctx context.Context, q db.DBTX, orderID uint64, status string, startedAt, closedAt sql.NullTime) error {
	const query = `UPDATE maintenance_orders SET status = ?, started_at = ?, closed_at = ? WHERE order_id = ?`
	_, err := q.ExecContext(ctx, query, status, startedAt, closedAt, orderID)
	return err
}

// countOtherOpenOrdersTx は指定オーダー以外で同じ資産を確保している
// 未完了オーダーの数。共有ロック解放判定の根拠になる。
func (s *Store) countOtherOpenOrdersTx(ctx context.Context, q db.DBTX, assetID, excludeOrderID uint64) (int, error) {
	const query = `
	SELECT COUNT(*)
	FROM order_assets oa
	JOIN maintenance_orders o ON o.order_id = oa.order_id
	WHERE oa.asset_id = ? AND oa.order_id <> ? AND o.status IN ('pending','in_progress')`
	var n int
	err := q.QueryRowContext(ctx, query, assetID, excludeOrderID).Scan(&n)
	return n, err
}

// ===== records =====

// 同一オーダー×資産の再記録は上書き。完了判定は記録の有無だけを見る。
func (s *Store) upsertRecordTx(ctx context.Context, q db.DBTX, r Record) error {
	const query = `
	INSERT INTO maintenance_records (order_id, asset_id, success, performed_by, notes, worked_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE success = VALUES(success), performed_by = VALUES(performed_by),
	                        notes = VALUES(notes), worked_at = VALUES(worked_at)`
	_, err := q.ExecContext(ctx, query, r.OrderID, r.AssetID, r.Success, r.PerformedBy, r.Notes, r.WorkedAt)
	return err
}

func (s *Store) missingRecordCountTx(ctx context.Context, q db.DBTX, orderID uint64) (int, error) {
	const query = `
	SELECT COUNT(*)
	FROM order_assets oa
	LEFT JOIN maintenance_records r ON r.order_id = oa.order_id AND r.asset_id = oa.asset_id
	WHERE oa.order_id = ? AND r.record_id IS NULL`
	var n int
	err := q.QueryRowContext(ctx, query, orderID).Scan(&n)
	return n, err
}

func (s *Store) isAssetLinkedTx(ctx context.Context, q db.DBTX, orderID, assetID uint64) (bool, error) {
	const query = `SELECT COUNT(*) FROM order_assets WHERE order_id = ? AND asset_id = ?`
	var n int
	if err := q.QueryRowContext(ctx, query, orderID, assetID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ===== 読み取り =====

func (s *Store) GetOrder(ctx context.Context, orderID uint64) (Order, []uint64, []Record, error) {
	const query = `
	SELECT order_id, order_ulid, station_id, title, status, plan_id, created_by, created_at, started_at, closed_at
	FROM maintenance_orders WHERE order_id = ?`
	var o Order
	if err := s.db.QueryRowContext(ctx, query, orderID).Scan(
		&o.OrderID, &o.ULID, &o.StationID, &o.Title, &o.Status, &o.PlanID,
		&o.CreatedBy, &o.CreatedAt, &o.StartedAt, &o.ClosedAt); err != nil {
		return Order{}, nil, nil, err
	}

	assets, err := s.orderAssetIDsTx(ctx, s.db, orderID)
	if err != nil {
		return Order{}, nil, nil, err
	}

	const recQuery = `
	SELECT record_id, order_id, asset_id, success, performed_by, notes, worked_at
	FROM maintenance_records WHERE order_id = ? ORDER BY record_id`
	rows, err := s.db.QueryContext(ctx, recQuery, orderID)
	if err != nil {
		return Order{}, nil, nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.RecordID, &r.OrderID, &r.AssetID, &r.Success, &r.PerformedBy, &r.Notes, &r.WorkedAt); err != nil {
			return Order{}, nil, nil, err
		}
		records = append(records, r)
	}
	return o, assets, records, rows.Err()
}

func (s *Store) ListOrders(ctx context.Context, stationID *uint64, status *string, limit, offset int) ([]Order, error) {
	query := `
	SELECT order_id, order_ulid, station_id, title, status, plan_id, created_by, created_at, started_at, closed_at
	FROM maintenance_orders`
	var conds []string
	var args []any
	if stationID != nil {
		conds = append(conds, "station_id = ?")
		args = append(args, *stationID)
	}
	if status != nil {
		conds = append(conds, "status = ?")
		args = append(args, *status)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY order_id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.OrderID, &o.ULID, &o.StationID, &o.Title, &o.Status, &o.PlanID,
			&o.CreatedBy, &o.CreatedAt, &o.StartedAt, &o.ClosedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ===== plans =====

func (s *Store) InsertPlan(ctx context.Context, p Plan) (uint64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO maintenance_plans (station_id, name, active) VALUES (?, ?, ?)`,
		p.StationID, p.Name, p.Active)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

func (s *Store) ListPlans(ctx context.Context, stationID uint64) ([]Plan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT plan_id, station_id, name, active FROM maintenance_plans WHERE station_id = ? ORDER BY plan_id`,
		stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		var p Plan
		if err := rows.Scan(&p.PlanID, &p.StationID, &p.Name, &p.Active); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) InsertConfig(ctx context.Context, c PlanConfig) (uint64, error) {
	const query = `
	INSERT INTO plan_asset_configs
	  (plan_id, asset_id, trigger_type, interval_days, usage_hours_threshold, last_usage_hours)
	VALUES (?, ?, ?, ?, ?, 0)`
	res, err := s.db.ExecContext(ctx, query,
		c.PlanID, c.AssetID, c.TriggerType, c.IntervalDays, c.UsageHoursThreshold)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

type activeConfig struct {
	Plan       Plan
	Config     PlanConfig
	UsageHours uint
}

// 有効計画の全設定に現在の稼働時間を添えて返す。スケジューラ専用。
func (s *Store) listActiveConfigs(ctx context.Context) ([]activeConfig, error) {
	const query = `
	SELECT p.plan_id, p.station_id, p.name, p.active,
	       c.config_id, c.plan_id, c.asset_id, c.trigger_type,
	       c.interval_days, c.usage_hours_threshold, c.last_generated_on, c.last_usage_hours,
	       a.usage_hours
	FROM plan_asset_configs c
	JOIN maintenance_plans p ON p.plan_id = c.plan_id
	JOIN assets a ON a.asset_id = c.asset_id
	WHERE p.active = 1
	ORDER BY p.plan_id, c.config_id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []activeConfig
	for rows.Next() {
		var ac activeConfig
		if err := rows.Scan(
			&ac.Plan.PlanID, &ac.Plan.StationID, &ac.Plan.Name, &ac.Plan.Active,
			&ac.Config.ConfigID, &ac.Config.PlanID, &ac.Config.AssetID, &ac.Config.TriggerType,
			&ac.Config.IntervalDays, &ac.Config.UsageHoursThreshold,
			&ac.Config.LastGeneratedOn, &ac.Config.LastUsageHours,
			&ac.UsageHours); err != nil {
			return nil, err
		}
		out = append(out, ac)
	}
	return out, rows.Err()
}

// 発火済み設定に日付と稼働時間の基準点を刻む
func (s *Store) stampConfigTx(ctx context.Context, q db.DBTX, configID uint64, on time.Time, usageHours uint) error {
	const query = `UPDATE plan_asset_configs SET last_generated_on = ?, last_usage_hours = ? WHERE config_id = ?`
	_, err := q.ExecContext(ctx, query, on, usageHours, configID)
	return err
}
