package maintenance

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"log"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"SIMS-backend/internal/inventory/engine"
	"SIMS-backend/internal/platform/db"
)

const schedulerActor = "scheduler"

type Service struct {
	db    *sql.DB
	store *Store
	eng   *engine.Engine
}

func NewService(d *sql.DB, eng *engine.Engine) *Service {
	return &Service{db: d, store: NewStore(d), eng: eng}
}

// ===== orders =====

func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest, actorID string) (OrderResponse, error) {
	if actorID == "" {
		return OrderResponse{}, engine.ErrInvalid("actor_id is required")
	}
	if len(req.AssetIDs) == 0 {
		return OrderResponse{}, engine.ErrInvalid("at least one asset is required")
	}

	now := time.Now().UTC()
	order := Order{
		ULID:      newULID(now),
		StationID: req.StationID,
		Title:     req.Title,
		Status:    OrderPending,
		CreatedBy: actorID,
		CreatedAt: now,
	}

	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		orderID, err := s.store.insertOrderTx(ctx, tx, order)
		if err != nil {
			return err
		}
		order.OrderID = orderID
		for _, assetID := range req.AssetIDs {
			if err := s.store.linkAssetTx(ctx, tx, orderID, assetID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return OrderResponse{}, err
	}
	return toOrderResponse(order, req.AssetIDs, nil), nil
}

// Start は対象資産を全数確保してからオーダーを進行中にする。
// 1台でも確保できなければオーダーごと失敗する。
func (s *Service) Start(ctx context.Context, orderID uint64, actorID string) error {
	if actorID == "" {
		return engine.ErrInvalid("actor_id is required")
	}
	now := time.Now().UTC()

	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		order, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != OrderPending {
			return engine.ErrConflict(fmt.Sprintf("order %d is %s, not pending", orderID, order.Status))
		}

		assetIDs, err := s.store.orderAssetIDsTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		for _, assetID := range assetIDs {
			if err := s.eng.ClaimAssetTx(ctx, tx, assetID); err != nil {
				return err
			}
		}

		return s.store.updateOrderStatusTx(ctx, tx, orderID, OrderInProgress,
			sql.NullTime{Time: now, Valid: true}, order.ClosedAt)
	})
}

// RecordWork は資産単位の作業結果を記録する。
// 成功なら確保を解放（他の未完了オーダーが同じ資産を握っていない場合のみ）、
// 失敗なら要確認状態へ強制遷移させる。
func (s *Service) RecordWork(ctx context.Context, orderID uint64, req RecordWorkRequest, actorID string) error {
	if actorID == "" {
		return engine.ErrInvalid("actor_id is required")
	}
	now := time.Now().UTC()

	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		order, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != OrderInProgress {
			return engine.ErrConflict(fmt.Sprintf("order %d is %s, not in_progress", orderID, order.Status))
		}
		linked, err := s.store.isAssetLinkedTx(ctx, tx, orderID, req.AssetID)
		if err != nil {
			return err
		}
		if !linked {
			return engine.ErrNotFound(fmt.Sprintf("asset %d is not part of order %d", req.AssetID, orderID))
		}

		success := req.Success != nil && *req.Success
		rec := Record{
			OrderID:     orderID,
			AssetID:     req.AssetID,
			Success:     success,
			PerformedBy: actorID,
			WorkedAt:    now,
		}
		if req.Notes != "" {
			rec.Notes = sql.NullString{String: req.Notes, Valid: true}
		}
		if err := s.store.upsertRecordTx(ctx, tx, rec); err != nil {
			return err
		}

		if !success {
			return s.eng.FlagReviewTx(ctx, tx, req.AssetID)
		}
		return s.releaseIfUnclaimed(ctx, tx, orderID, req.AssetID)
	})
}

// Finish は全資産の作業記録が揃っていることを要求する。
func (s *Service) Finish(ctx context.Context, orderID uint64, actorID string) error {
	return s.close(ctx, orderID, actorID, OrderDone, true)
}

func (s *Service) Cancel(ctx context.Context, orderID uint64, actorID string) error {
	return s.close(ctx, orderID, actorID, OrderCancelled, false)
}

func (s *Service) close(ctx context.Context, orderID uint64, actorID, terminal string, requireRecords bool) error {
	if actorID == "" {
		return engine.ErrInvalid("actor_id is required")
	}
	now := time.Now().UTC()

	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		order, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !isOpen(order.Status) {
			return engine.ErrConflict(fmt.Sprintf("order %d is already %s", orderID, order.Status))
		}
		if terminal == OrderDone && order.Status != OrderInProgress {
			return engine.ErrConflict(fmt.Sprintf("order %d has not been started", orderID))
		}
		if requireRecords {
			missing, err := s.store.missingRecordCountTx(ctx, tx, orderID)
			if err != nil {
				return err
			}
			if missing > 0 {
				return engine.ErrInvalid(fmt.Sprintf("order %d has %d assets without a work record", orderID, missing))
			}
		}

		// 先にオーダーを閉じてから解放判定する。自オーダーは開いている
		// オーダーの数に入らない。
		if err := s.store.updateOrderStatusTx(ctx, tx, orderID, terminal,
			order.StartedAt, sql.NullTime{Time: now, Valid: true}); err != nil {
			return err
		}

		assetIDs, err := s.store.orderAssetIDsTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		for _, assetID := range assetIDs {
			if err := s.releaseIfUnclaimed(ctx, tx, orderID, assetID); err != nil {
				return err
			}
		}
		return nil
	})
}

// releaseIfUnclaimed: 他の未完了オーダーが同じ資産を確保していなければ解放する。
// 修理中以外の状態（要確認・紛失など）は解放対象外で、そのまま残る。
func (s *Service) releaseIfUnclaimed(ctx context.Context, tx db.DBTX, orderID, assetID uint64) error {
	n, err := s.store.countOtherOpenOrdersTx(ctx, tx, assetID, orderID)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = s.eng.ReleaseIfRepairTx(ctx, tx, assetID)
	return err
}

func (s *Service) lockOrder(ctx context.Context, tx db.DBTX, orderID uint64) (Order, error) {
	order, err := s.store.lockOrderTx(ctx, tx, orderID)
	if err == sql.ErrNoRows {
		return Order{}, engine.ErrNotFound("order not found")
	}
	return order, err
}

func (s *Service) GetOrder(ctx context.Context, orderID uint64) (OrderResponse, error) {
	order, assets, records, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return OrderResponse{}, engine.ErrNotFound("order not found")
		}
		return OrderResponse{}, err
	}
	return toOrderResponse(order, assets, records), nil
}

func (s *Service) ListOrders(ctx context.Context, stationID *uint64, status *string, limit, offset int) ([]OrderResponse, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.store.ListOrders(ctx, stationID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]OrderResponse, 0, len(rows))
	for _, o := range rows {
		out = append(out, toOrderResponse(o, nil, nil))
	}
	return out, nil
}

// ===== plans =====

func (s *Service) CreatePlan(ctx context.Context, req CreatePlanRequest) (Plan, error) {
	if req.Name == "" {
		return Plan{}, engine.ErrInvalid("name is required")
	}
	p := Plan{StationID: req.StationID, Name: req.Name, Active: true}
	id, err := s.store.InsertPlan(ctx, p)
	if err != nil {
		return Plan{}, err
	}
	p.PlanID = id
	return p, nil
}

func (s *Service) ListPlans(ctx context.Context, stationID uint64) ([]Plan, error) {
	return s.store.ListPlans(ctx, stationID)
}

func (s *Service) AddPlanConfig(ctx context.Context, planID uint64, req PlanConfigRequest) (PlanConfig, error) {
	cfg := PlanConfig{PlanID: planID, AssetID: req.AssetID, TriggerType: req.TriggerType}
	switch req.TriggerType {
	case TriggerTime:
		if req.IntervalDays == nil || *req.IntervalDays == 0 {
			return PlanConfig{}, engine.ErrInvalid("interval_days is required for time triggers")
		}
		cfg.IntervalDays = sql.NullInt64{Int64: int64(*req.IntervalDays), Valid: true}
	case TriggerUsageHours:
		if req.UsageHoursThreshold == nil || *req.UsageHoursThreshold == 0 {
			return PlanConfig{}, engine.ErrInvalid("usage_hours_threshold is required for usage triggers")
		}
		cfg.UsageHoursThreshold = sql.NullInt64{Int64: int64(*req.UsageHoursThreshold), Valid: true}
	default:
		return PlanConfig{}, engine.ErrInvalid("trigger_type must be time or usage_hours")
	}

	id, err := s.store.InsertConfig(ctx, cfg)
	if err != nil {
		return PlanConfig{}, err
	}
	cfg.ConfigID = id
	return cfg, nil
}

// GenerateDueOrders は発火条件を満たした計画から保守オーダーを起こす。
// cronから定期実行される。計画ごとに1オーダー、発火した資産をまとめて載せる。
func (s *Service) GenerateDueOrders(ctx context.Context, now time.Time) (int, error) {
	configs, err := s.store.listActiveConfigs(ctx)
	if err != nil {
		return 0, err
	}

	duByPlan := make(map[uint64][]activeConfig)
	var planOrder []uint64
	for _, ac := range configs {
		if !configDue(ac.Config, ac.UsageHours, now) {
			continue
		}
		if _, seen := duByPlan[ac.Plan.PlanID]; !seen {
			planOrder = append(planOrder, ac.Plan.PlanID)
		}
		duByPlan[ac.Plan.PlanID] = append(duByPlan[ac.Plan.PlanID], ac)
	}

	created := 0
	for _, planID := range planOrder {
		due := duByPlan[planID]
		plan := due[0].Plan

		err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
			order := Order{
				ULID:      newULID(now),
				StationID: plan.StationID,
				Title:     "定期保守: " + plan.Name,
				Status:    OrderPending,
				PlanID:    sql.NullInt64{Int64: int64(planID), Valid: true},
				CreatedBy: schedulerActor,
				CreatedAt: now,
			}
			orderID, err := s.store.insertOrderTx(ctx, tx, order)
			if err != nil {
				return err
			}
			for _, ac := range due {
				if err := s.store.linkAssetTx(ctx, tx, orderID, ac.Config.AssetID); err != nil {
					return err
				}
				if err := s.store.stampConfigTx(ctx, tx, ac.Config.ConfigID, now, ac.UsageHours); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			log.Printf("[WARN] failed to generate order for plan %d: %v", planID, err)
			continue
		}
		created++
	}
	return created, nil
}

func newULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
