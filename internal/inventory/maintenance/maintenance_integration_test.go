package maintenance_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"SIMS-backend/internal/inventory/engine"
	"SIMS-backend/internal/inventory/maintenance"
	"SIMS-backend/internal/platform/db/dbtest"
)

type env struct {
	conn      *sql.DB
	eng       *engine.Engine
	svc       *maintenance.Service
	stationID uint64
	comp      uint64
	productID uint64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	conn := dbtest.Open(t)

	e := &env{conn: conn}
	e.stationID = mustInsert(t, conn, `INSERT INTO stations (code, name) VALUES (?, ?)`, dbtest.UniqueCode("MT"), "保守テスト拠点")
	locID := mustInsert(t, conn, `INSERT INTO locations (station_id, name) VALUES (?, ?)`, e.stationID, "整備室")
	e.comp = mustInsert(t, conn, `INSERT INTO compartments (location_id, name, purpose) VALUES (?, ?, 'storage')`, locID, "整備棚")
	e.productID = mustInsert(t, conn,
		`INSERT INTO products (name, requires_expiry, lot_number_required) VALUES (?, 0, 0)`,
		dbtest.UniqueCode("装置"))

	e.eng = engine.New(conn)
	e.svc = maintenance.NewService(conn, e.eng)
	return e
}

func mustInsert(t *testing.T, conn *sql.DB, query string, args ...any) uint64 {
	t.Helper()
	res, err := conn.Exec(query, args...)
	if err != nil {
		t.Fatalf("fixture insert: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatal(err)
	}
	return uint64(id)
}

func (e *env) receiveAsset(t *testing.T) engine.ItemRef {
	t.Helper()
	ref, err := e.eng.Receive(context.Background(), engine.ReceiveInput{
		StationID: e.stationID, CompartmentID: e.comp, ProductID: e.productID,
		Kind: engine.KindAsset, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	return ref
}

func (e *env) assetState(t *testing.T, assetID uint64) string {
	t.Helper()
	var name string
	err := e.conn.QueryRow(
		`SELECT st.name FROM assets a JOIN item_states st ON st.state_id = a.state_id WHERE a.asset_id = ?`,
		assetID).Scan(&name)
	if err != nil {
		t.Fatal(err)
	}
	return name
}

func (e *env) order(t *testing.T, assetIDs ...uint64) uint64 {
	t.Helper()
	res, err := e.svc.CreateOrder(context.Background(), maintenance.CreateOrderRequest{
		StationID: e.stationID, Title: "点検", AssetIDs: assetIDs,
	}, "tester")
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return res.OrderID
}

func success() *bool { v := true; return &v }
func failure() *bool { v := false; return &v }

func TestSharedClaimReleasesOnLastClose(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	asset := e.receiveAsset(t)
	first := e.order(t, asset.ID)
	second := e.order(t, asset.ID)

	if err := e.svc.Start(ctx, first, "tester"); err != nil {
		t.Fatalf("start first: %v", err)
	}
	if err := e.svc.Start(ctx, second, "tester"); err != nil {
		t.Fatalf("start second (shared claim): %v", err)
	}
	if got := e.assetState(t, asset.ID); got != engine.StateInRepair {
		t.Fatalf("state = %s, want in_repair", got)
	}

	if err := e.svc.RecordWork(ctx, first, maintenance.RecordWorkRequest{
		AssetID: asset.ID, Success: success(),
	}, "tester"); err != nil {
		t.Fatalf("record first: %v", err)
	}
	if err := e.svc.Finish(ctx, first, "tester"); err != nil {
		t.Fatalf("finish first: %v", err)
	}

	// 2件目がまだ開いているので解放されない
	if got := e.assetState(t, asset.ID); got != engine.StateInRepair {
		t.Errorf("state after first close = %s, want in_repair", got)
	}

	if err := e.svc.RecordWork(ctx, second, maintenance.RecordWorkRequest{
		AssetID: asset.ID, Success: success(),
	}, "tester"); err != nil {
		t.Fatalf("record second: %v", err)
	}
	if err := e.svc.Finish(ctx, second, "tester"); err != nil {
		t.Fatalf("finish second: %v", err)
	}

	if got := e.assetState(t, asset.ID); got != engine.StateAvailable {
		t.Errorf("state after last close = %s, want available", got)
	}
}

func TestFailedWorkFlagsReview(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	asset := e.receiveAsset(t)
	orderID := e.order(t, asset.ID)
	if err := e.svc.Start(ctx, orderID, "tester"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := e.svc.RecordWork(ctx, orderID, maintenance.RecordWorkRequest{
		AssetID: asset.ID, Success: failure(), Notes: "異音あり",
	}, "tester"); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if got := e.assetState(t, asset.ID); got != engine.StatePendingReview {
		t.Errorf("state = %s, want pending_review", got)
	}

	// 完了しても要確認状態は解放対象外でそのまま残る
	if err := e.svc.Finish(ctx, orderID, "tester"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if got := e.assetState(t, asset.ID); got != engine.StatePendingReview {
		t.Errorf("state after finish = %s, want pending_review", got)
	}
}

func TestFinishRequiresAllRecords(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a1 := e.receiveAsset(t)
	a2 := e.receiveAsset(t)
	orderID := e.order(t, a1.ID, a2.ID)
	if err := e.svc.Start(ctx, orderID, "tester"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := e.svc.RecordWork(ctx, orderID, maintenance.RecordWorkRequest{
		AssetID: a1.ID, Success: success(),
	}, "tester"); err != nil {
		t.Fatalf("record: %v", err)
	}

	err := e.svc.Finish(ctx, orderID, "tester")
	if engine.CodeOf(err) != engine.ErrCodeInvalidArgument {
		t.Errorf("finish with missing record: code = %s, want INVALID_ARGUMENT (err %v)", engine.CodeOf(err), err)
	}

	if err := e.svc.RecordWork(ctx, orderID, maintenance.RecordWorkRequest{
		AssetID: a2.ID, Success: success(),
	}, "tester"); err != nil {
		t.Fatalf("record second: %v", err)
	}
	if err := e.svc.Finish(ctx, orderID, "tester"); err != nil {
		t.Fatalf("finish: %v", err)
	}
}

func TestCancelReleasesClaimedAssets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	asset := e.receiveAsset(t)
	orderID := e.order(t, asset.ID)
	if err := e.svc.Start(ctx, orderID, "tester"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.svc.Cancel(ctx, orderID, "tester"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := e.assetState(t, asset.ID); got != engine.StateAvailable {
		t.Errorf("state after cancel = %s, want available", got)
	}
}

func TestStartUnavailableAssetFailsWholeOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	good := e.receiveAsset(t)
	bad := e.receiveAsset(t)
	if err := e.eng.Dispose(ctx, bad.InternalCode, "tester", "老朽化"); err != nil {
		t.Fatalf("dispose: %v", err)
	}

	orderID := e.order(t, good.ID, bad.ID)
	err := e.svc.Start(ctx, orderID, "tester")
	if engine.CodeOf(err) != engine.ErrCodeInvalidState {
		t.Errorf("start code = %s, want INVALID_STATE (err %v)", engine.CodeOf(err), err)
	}

	// 全滅ロールバック: 正常な資産も確保されていない
	if got := e.assetState(t, good.ID); got != engine.StateAvailable {
		t.Errorf("good asset state = %s, want available", got)
	}
}

func TestGenerateDueOrders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	asset := e.receiveAsset(t)
	plan, err := e.svc.CreatePlan(ctx, maintenance.CreatePlanRequest{StationID: e.stationID, Name: "月次点検"})
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	days := uint(30)
	if _, err := e.svc.AddPlanConfig(ctx, plan.PlanID, maintenance.PlanConfigRequest{
		AssetID: asset.ID, TriggerType: maintenance.TriggerTime, IntervalDays: &days,
	}); err != nil {
		t.Fatalf("AddPlanConfig: %v", err)
	}

	now := time.Now().UTC()
	created, err := e.svc.GenerateDueOrders(ctx, now)
	if err != nil {
		t.Fatalf("GenerateDueOrders: %v", err)
	}
	if created < 1 {
		t.Fatalf("created = %d, want at least 1", created)
	}

	// 発火直後は再実行しても新しいオーダーを作らない
	var before int
	if err := e.conn.QueryRow(
		`SELECT COUNT(*) FROM maintenance_orders WHERE station_id = ?`, e.stationID).Scan(&before); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.GenerateDueOrders(ctx, now); err != nil {
		t.Fatalf("second GenerateDueOrders: %v", err)
	}
	var after int
	if err := e.conn.QueryRow(
		`SELECT COUNT(*) FROM maintenance_orders WHERE station_id = ?`, e.stationID).Scan(&after); err != nil {
		t.Fatal(err)
	}
	if after != before {
		t.Errorf("orders grew from %d to %d on immediate re-run", before, after)
	}
}
