package engine_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"SIMS-backend/internal/inventory/engine"
	"SIMS-backend/internal/platform/db/dbtest"
)

type fixture struct {
	conn        *sql.DB
	stationID   uint64
	stationCode string
	storageA    uint64
	storageB    uint64
	annulComp   uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)

	f := &fixture{conn: conn, stationCode: dbtest.UniqueCode("ST")}
	f.stationID = insertID(t, conn, `INSERT INTO stations (code, name) VALUES (?, ?)`, f.stationCode, "テスト拠点")
	locID := insertID(t, conn, `INSERT INTO locations (station_id, name) VALUES (?, ?)`, f.stationID, "倉庫1")
	f.storageA = insertID(t, conn, `INSERT INTO compartments (location_id, name, purpose) VALUES (?, ?, 'storage')`, locID, "棚A")
	f.storageB = insertID(t, conn, `INSERT INTO compartments (location_id, name, purpose) VALUES (?, ?, 'storage')`, locID, "棚B")
	f.annulComp = insertID(t, conn, `INSERT INTO compartments (location_id, name, purpose) VALUES (?, ?, 'annulment')`, locID, "抹消棚")
	return f
}

func insertID(t *testing.T, conn *sql.DB, query string, args ...any) uint64 {
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

func (f *fixture) product(t *testing.T, name string) uint64 {
	t.Helper()
	return insertID(t, f.conn,
		`INSERT INTO products (name, requires_expiry, lot_number_required) VALUES (?, 0, 0)`,
		name+dbtest.UniqueCode("-"))
}

func (f *fixture) assetState(t *testing.T, assetID uint64) string {
	t.Helper()
	var name string
	err := f.conn.QueryRow(
		`SELECT st.name FROM assets a JOIN item_states st ON st.state_id = a.state_id WHERE a.asset_id = ?`,
		assetID).Scan(&name)
	if err != nil {
		t.Fatalf("assetState: %v", err)
	}
	return name
}

func (f *fixture) lotRow(t *testing.T, lotID uint64) (qty uint, state string, compartmentID uint64) {
	t.Helper()
	err := f.conn.QueryRow(
		`SELECT l.quantity, st.name, l.compartment_id
		 FROM lots l JOIN item_states st ON st.state_id = l.state_id WHERE l.lot_id = ?`,
		lotID).Scan(&qty, &state, &compartmentID)
	if err != nil {
		t.Fatalf("lotRow: %v", err)
	}
	return qty, state, compartmentID
}

func (f *fixture) movementCount(t *testing.T, kind string, assetID, lotID uint64) int {
	t.Helper()
	var n int
	var err error
	if assetID != 0 {
		err = f.conn.QueryRow(`SELECT COUNT(*) FROM movements WHERE kind = ? AND asset_id = ?`, kind, assetID).Scan(&n)
	} else {
		err = f.conn.QueryRow(`SELECT COUNT(*) FROM movements WHERE kind = ? AND lot_id = ?`, kind, lotID).Scan(&n)
	}
	if err != nil {
		t.Fatalf("movementCount: %v", err)
	}
	return n
}

func receiveAsset(t *testing.T, f *fixture, eng *engine.Engine, productID uint64) engine.ItemRef {
	t.Helper()
	ref, err := eng.Receive(context.Background(), engine.ReceiveInput{
		StationID: f.stationID, CompartmentID: f.storageA, ProductID: productID,
		Kind: engine.KindAsset, ActorID: "tester", Note: "受入",
	})
	if err != nil {
		t.Fatalf("Receive asset: %v", err)
	}
	return ref
}

func receiveLot(t *testing.T, f *fixture, eng *engine.Engine, productID uint64, qty uint) engine.ItemRef {
	t.Helper()
	ref, err := eng.Receive(context.Background(), engine.ReceiveInput{
		StationID: f.stationID, CompartmentID: f.storageA, ProductID: productID,
		Kind: engine.KindLot, Quantity: qty, ActorID: "tester", Note: "受入",
	})
	if err != nil {
		t.Fatalf("Receive lot: %v", err)
	}
	return ref
}

func TestReceiveAssignsSequentialCodes(t *testing.T) {
	f := newFixture(t)
	eng := engine.New(f.conn)
	productID := f.product(t, "顕微鏡")

	first := receiveAsset(t, f, eng, productID)
	second := receiveAsset(t, f, eng, productID)

	wantPrefix := f.stationCode + "-A-"
	if !strings.HasPrefix(first.InternalCode, wantPrefix) {
		t.Errorf("code %q lacks prefix %q", first.InternalCode, wantPrefix)
	}
	if first.InternalCode == second.InternalCode {
		t.Errorf("codes must be unique: %q", first.InternalCode)
	}
	if got := f.assetState(t, first.ID); got != engine.StateAvailable {
		t.Errorf("state = %q, want available", got)
	}
	if n := f.movementCount(t, "entry", first.ID, 0); n != 1 {
		t.Errorf("entry movements = %d, want 1", n)
	}
}

func TestLotTransferSplitsAndMerges(t *testing.T) {
	f := newFixture(t)
	eng := engine.New(f.conn)
	ctx := context.Background()
	productID := f.product(t, "試薬")

	src := receiveLot(t, f, eng, productID, 10)

	if err := eng.Transfer(ctx, engine.TransferInput{
		InternalCode: src.InternalCode, ToCompartmentID: f.storageB, Quantity: 4,
		ActorID: "tester",
	}); err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	qty, _, comp := f.lotRow(t, src.ID)
	if qty != 6 || comp != f.storageA {
		t.Errorf("source after split: qty=%d comp=%d", qty, comp)
	}

	var destID, destQty uint64
	err := f.conn.QueryRow(
		`SELECT lot_id, quantity FROM lots WHERE product_id = ? AND compartment_id = ?`,
		productID, f.storageB).Scan(&destID, &destQty)
	if err != nil {
		t.Fatalf("destination lot: %v", err)
	}
	if destQty != 4 {
		t.Errorf("destination qty = %d, want 4", destQty)
	}

	// 2回目は同一キーなので併合され、ロットは増えない
	if err := eng.Transfer(ctx, engine.TransferInput{
		InternalCode: src.InternalCode, ToCompartmentID: f.storageB, Quantity: 3,
		ActorID: "tester",
	}); err != nil {
		t.Fatalf("second transfer: %v", err)
	}
	var lotCount int
	if err := f.conn.QueryRow(
		`SELECT COUNT(*) FROM lots WHERE product_id = ? AND compartment_id = ?`,
		productID, f.storageB).Scan(&lotCount); err != nil {
		t.Fatal(err)
	}
	if lotCount != 1 {
		t.Errorf("destination lot count = %d, want 1 (merge)", lotCount)
	}
	mergedQty, _, _ := f.lotRow(t, destID)
	if mergedQty != 7 {
		t.Errorf("merged qty = %d, want 7", mergedQty)
	}
	// 台帳は移送1回につき出と入の2レコード
	if n := f.movementCount(t, "internal_transfer", 0, src.ID); n != 2 {
		t.Errorf("source transfer movements = %d, want 2", n)
	}
}

func TestTransferInsufficientQuantityIsConflict(t *testing.T) {
	f := newFixture(t)
	eng := engine.New(f.conn)
	productID := f.product(t, "試薬")
	src := receiveLot(t, f, eng, productID, 3)

	err := eng.Transfer(context.Background(), engine.TransferInput{
		InternalCode: src.InternalCode, ToCompartmentID: f.storageB, Quantity: 5,
		ActorID: "tester",
	})
	if engine.CodeOf(err) != engine.ErrCodeConflict {
		t.Errorf("code = %s, want CONFLICT (err %v)", engine.CodeOf(err), err)
	}
}

func TestAdjustWritesLedgerOnlyOnChange(t *testing.T) {
	f := newFixture(t)
	eng := engine.New(f.conn)
	ctx := context.Background()
	productID := f.product(t, "消耗品")
	lot := receiveLot(t, f, eng, productID, 10)

	if err := eng.Adjust(ctx, lot.InternalCode, 8, "tester", "棚卸差異"); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if n := f.movementCount(t, "adjustment", 0, lot.ID); n != 1 {
		t.Errorf("adjustment movements = %d, want 1", n)
	}

	// 同数への補正は台帳レコードなし
	if err := eng.Adjust(ctx, lot.InternalCode, 8, "tester", "再棚卸"); err != nil {
		t.Fatalf("Adjust noop: %v", err)
	}
	if n := f.movementCount(t, "adjustment", 0, lot.ID); n != 1 {
		t.Errorf("noop adjust wrote a ledger row")
	}
}

func TestConsumeDecrementsQuantity(t *testing.T) {
	f := newFixture(t)
	eng := engine.New(f.conn)
	ctx := context.Background()
	productID := f.product(t, "消耗品")
	lot := receiveLot(t, f, eng, productID, 10)

	if err := eng.Consume(ctx, lot.InternalCode, 4, "tester", "実験使用"); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	qty, state, _ := f.lotRow(t, lot.ID)
	if qty != 6 || state != engine.StateAvailable {
		t.Errorf("after consume: qty=%d state=%s", qty, state)
	}

	err := eng.Consume(ctx, lot.InternalCode, 100, "tester", "過剰")
	if engine.CodeOf(err) != engine.ErrCodeConflict {
		t.Errorf("over-consume code = %s, want CONFLICT", engine.CodeOf(err))
	}
}

func TestAnnulMovesToAnnulmentCompartment(t *testing.T) {
	f := newFixture(t)
	eng := engine.New(f.conn)
	ctx := context.Background()
	productID := f.product(t, "誤登録品")
	ref := receiveAsset(t, f, eng, productID)

	if err := eng.Annul(ctx, ref.InternalCode, "tester", "登録ミス"); err != nil {
		t.Fatalf("Annul: %v", err)
	}
	if got := f.assetState(t, ref.ID); got != engine.StateAnnulled {
		t.Errorf("state = %q, want annulled", got)
	}
	var comp uint64
	if err := f.conn.QueryRow(`SELECT compartment_id FROM assets WHERE asset_id = ?`, ref.ID).Scan(&comp); err != nil {
		t.Fatal(err)
	}
	if comp != f.annulComp {
		t.Errorf("compartment = %d, want annulment compartment %d", comp, f.annulComp)
	}

	// 終端状態からの再操作は状態エラー
	err := eng.Dispose(ctx, ref.InternalCode, "tester", "二重操作")
	if engine.CodeOf(err) != engine.ErrCodeInvalidState {
		t.Errorf("dispose after annul code = %s, want INVALID_STATE", engine.CodeOf(err))
	}
}

func TestReportLostOnShelfAsset(t *testing.T) {
	f := newFixture(t)
	eng := engine.New(f.conn)
	productID := f.product(t, "工具")
	ref := receiveAsset(t, f, eng, productID)

	if err := eng.ReportLost(context.Background(), ref.InternalCode, "tester", "棚卸で発見できず"); err != nil {
		t.Fatalf("ReportLost: %v", err)
	}
	if got := f.assetState(t, ref.ID); got != engine.StateLost {
		t.Errorf("state = %q, want lost", got)
	}
	var delta int
	if err := f.conn.QueryRow(
		`SELECT delta FROM movements WHERE asset_id = ? AND kind = 'exit'`, ref.ID).Scan(&delta); err != nil {
		t.Fatal(err)
	}
	if delta != -1 {
		t.Errorf("exit delta = %d, want -1 for on-shelf loss", delta)
	}
}

func TestCrossStationTransferForbidden(t *testing.T) {
	f := newFixture(t)
	eng := engine.New(f.conn)
	productID := f.product(t, "検体")
	ref := receiveAsset(t, f, eng, productID)

	otherStation := insertID(t, f.conn, `INSERT INTO stations (code, name) VALUES (?, ?)`, dbtest.UniqueCode("XS"), "別拠点")
	otherLoc := insertID(t, f.conn, `INSERT INTO locations (station_id, name) VALUES (?, ?)`, otherStation, "別倉庫")
	otherComp := insertID(t, f.conn, `INSERT INTO compartments (location_id, name, purpose) VALUES (?, ?, 'storage')`, otherLoc, "別棚")

	err := eng.Transfer(context.Background(), engine.TransferInput{
		InternalCode: ref.InternalCode, ToCompartmentID: otherComp, ActorID: "tester",
	})
	if engine.CodeOf(err) != engine.ErrCodeInvalidArgument {
		t.Errorf("code = %s, want INVALID_ARGUMENT (err %v)", engine.CodeOf(err), err)
	}
}
