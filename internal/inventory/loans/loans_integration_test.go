package loans_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"SIMS-backend/internal/inventory/engine"
	"SIMS-backend/internal/inventory/loans"
	"SIMS-backend/internal/inventory/movements"
	"SIMS-backend/internal/platform/db/dbtest"
)

type env struct {
	conn      *sql.DB
	eng       *engine.Engine
	svc       *loans.Service
	stationID uint64
	comp      uint64
	productID uint64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	conn := dbtest.Open(t)

	e := &env{conn: conn}
	e.stationID = mustInsert(t, conn, `INSERT INTO stations (code, name) VALUES (?, ?)`, dbtest.UniqueCode("LN"), "貸出テスト拠点")
	locID := mustInsert(t, conn, `INSERT INTO locations (station_id, name) VALUES (?, ?)`, e.stationID, "倉庫")
	e.comp = mustInsert(t, conn, `INSERT INTO compartments (location_id, name, purpose) VALUES (?, ?, 'storage')`, locID, "棚")
	e.productID = mustInsert(t, conn,
		`INSERT INTO products (name, requires_expiry, lot_number_required) VALUES (?, 0, 0)`,
		dbtest.UniqueCode("品"))

	e.eng = engine.New(conn)
	e.svc = loans.NewService(conn, e.eng)
	e.eng.SetLoanReconciler(e.svc)
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

func (e *env) receive(t *testing.T, kind string, qty uint) engine.ItemRef {
	t.Helper()
	ref, err := e.eng.Receive(context.Background(), engine.ReceiveInput{
		StationID: e.stationID, CompartmentID: e.comp, ProductID: e.productID,
		Kind: kind, Quantity: qty, ActorID: "tester",
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

func (e *env) lotState(t *testing.T, lotID uint64) (qty uint, state string) {
	t.Helper()
	err := e.conn.QueryRow(
		`SELECT l.quantity, st.name FROM lots l JOIN item_states st ON st.state_id = l.state_id WHERE l.lot_id = ?`,
		lotID).Scan(&qty, &state)
	if err != nil {
		t.Fatal(err)
	}
	return qty, state
}

func TestLoanLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	asset := e.receive(t, engine.KindAsset, 0)
	lot := e.receive(t, engine.KindLot, 10)

	loan, err := e.svc.CreateLoan(ctx, loans.CreateLoanRequest{
		StationID: e.stationID,
		Recipient: "山田",
		Lines: []loans.CreateLineRequest{
			{ItemCode: asset.InternalCode},
			{ItemCode: lot.InternalCode, Quantity: 4},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}
	if loan.Status != loans.StatusPending {
		t.Errorf("status = %s, want pending", loan.Status)
	}
	if len(loan.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(loan.Lines))
	}
	if got := e.assetState(t, asset.ID); got != engine.StateOnLoan {
		t.Errorf("asset state = %s, want on_loan", got)
	}
	if qty, state := e.lotState(t, lot.ID); qty != 6 || state != engine.StateOnLoan {
		t.Errorf("lot after lend: qty=%d state=%s", qty, state)
	}

	var assetLine, lotLine loans.LineResponse
	for _, l := range loan.Lines {
		if l.AssetID != nil {
			assetLine = l
		} else {
			lotLine = l
		}
	}

	// 部分返却
	after, err := e.svc.Settle(ctx, loan.LoanID, loans.SettleRequest{
		Settlements: []loans.LineSettlement{{LineID: lotLine.LineID, ReturnQty: 2}},
	}, "tester")
	if err != nil {
		t.Fatalf("partial settle: %v", err)
	}
	if after.Status != loans.StatusPartiallyReturned {
		t.Errorf("status = %s, want partially_returned", after.Status)
	}
	if qty, state := e.lotState(t, lot.ID); qty != 8 || state != engine.StateAvailable {
		t.Errorf("lot after partial return: qty=%d state=%s", qty, state)
	}

	// 残りを返却+紛失の混在で精算
	final, err := e.svc.Settle(ctx, loan.LoanID, loans.SettleRequest{
		Settlements: []loans.LineSettlement{
			{LineID: assetLine.LineID, ReturnQty: 1},
			{LineID: lotLine.LineID, ReturnQty: 1, LossQty: 1},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("final settle: %v", err)
	}
	if final.Status != loans.StatusCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
	if final.ReturnedAt == nil {
		t.Error("returned_at must be stamped on completion")
	}
	if got := e.assetState(t, asset.ID); got != engine.StateAvailable {
		t.Errorf("asset state = %s, want available", got)
	}
	if qty, _ := e.lotState(t, lot.ID); qty != 9 {
		t.Errorf("lot final qty = %d, want 9 (1 unit lost)", qty)
	}

	// 台帳照合: ロットのdelta総和は現在数量と一致する
	sum, err := movements.NewService(e.conn).SumLotDeltas(ctx, lot.ID)
	if err != nil {
		t.Fatalf("SumLotDeltas: %v", err)
	}
	if sum != 9 {
		t.Errorf("ledger delta sum = %d, want 9 (= current quantity)", sum)
	}

	// 精算済み明細の再指定は冪等な無視
	again, err := e.svc.Settle(ctx, loan.LoanID, loans.SettleRequest{
		Settlements: []loans.LineSettlement{{LineID: lotLine.LineID, ReturnQty: 1}},
	}, "tester")
	if err != nil {
		t.Fatalf("idempotent settle: %v", err)
	}
	if again.Status != loans.StatusCompleted {
		t.Errorf("idempotent settle changed status to %s", again.Status)
	}
	if qty, _ := e.lotState(t, lot.ID); qty != 9 {
		t.Errorf("idempotent settle changed qty to %d", qty)
	}
}

func TestReportLostWhileOnLoanReconcilesLine(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	asset := e.receive(t, engine.KindAsset, 0)
	loan, err := e.svc.CreateLoan(ctx, loans.CreateLoanRequest{
		StationID: e.stationID,
		Recipient: "佐藤",
		Lines:     []loans.CreateLineRequest{{ItemCode: asset.InternalCode}},
	}, "tester")
	if err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}

	if err := e.eng.ReportLost(ctx, asset.InternalCode, "tester", "借受者より紛失連絡"); err != nil {
		t.Fatalf("ReportLost: %v", err)
	}

	if got := e.assetState(t, asset.ID); got != engine.StateLost {
		t.Errorf("asset state = %s, want lost", got)
	}

	// 数量は貸出時点で減っているので delta=0 の退蔵レコード
	var delta int
	if err := e.conn.QueryRow(
		`SELECT delta FROM movements WHERE asset_id = ? AND kind = 'exit'`, asset.ID).Scan(&delta); err != nil {
		t.Fatal(err)
	}
	if delta != 0 {
		t.Errorf("exit delta = %d, want 0 for on-loan loss", delta)
	}

	got, err := e.svc.Get(ctx, loan.LoanID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != loans.StatusCompleted {
		t.Errorf("loan status = %s, want completed after reconciliation", got.Status)
	}
	if len(got.Lines) != 1 || got.Lines[0].Lost != 1 {
		t.Errorf("line not reconciled: %+v", got.Lines)
	}
}

func TestLendUnavailableItemIsConflict(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	asset := e.receive(t, engine.KindAsset, 0)
	if err := e.eng.Dispose(ctx, asset.InternalCode, "tester", "老朽化"); err != nil {
		t.Fatalf("Dispose: %v", err)
	}

	_, err := e.svc.CreateLoan(ctx, loans.CreateLoanRequest{
		StationID: e.stationID,
		Recipient: "高橋",
		Lines:     []loans.CreateLineRequest{{ItemCode: asset.InternalCode}},
	}, "tester")
	if engine.CodeOf(err) != engine.ErrCodeConflict {
		t.Errorf("code = %s, want CONFLICT (err %v)", engine.CodeOf(err), err)
	}

	// 失敗した貸出は伝票ごとロールバックされている
	var n int
	if err := e.conn.QueryRow(
		`SELECT COUNT(*) FROM loans WHERE station_id = ?`, e.stationID).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("loan rows = %d, want 0 after rollback", n)
	}
}

func TestConcurrentLendOfLastUnit(t *testing.T) {
	e := newEnv(t)

	asset := e.receive(t, engine.KindAsset, 0)

	// 最後の1点を同時に貸し出す。行ロックで片方が待たされ、
	// 勝者のコミット後に敗者は on_loan を見て CONFLICT になる。
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(recipient string) {
			defer wg.Done()
			_, err := e.svc.CreateLoan(context.Background(), loans.CreateLoanRequest{
				StationID: e.stationID,
				Recipient: recipient,
				Lines:     []loans.CreateLineRequest{{ItemCode: asset.InternalCode}},
			}, "tester")
			errs <- err
		}(dbtest.UniqueCode("借"))
	}
	wg.Wait()
	close(errs)

	var ok, conflict int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case engine.CodeOf(err) == engine.ErrCodeConflict:
			conflict++
		default:
			t.Errorf("unexpected error: %v (code %s)", err, engine.CodeOf(err))
		}
	}
	if ok != 1 || conflict != 1 {
		t.Errorf("outcomes: %d success, %d conflict; want exactly 1 of each", ok, conflict)
	}

	// 伝票は勝者の1件だけ
	var n int
	if err := e.conn.QueryRow(
		`SELECT COUNT(*) FROM loans WHERE station_id = ?`, e.stationID).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("loan rows = %d, want 1", n)
	}
	if got := e.assetState(t, asset.ID); got != engine.StateOnLoan {
		t.Errorf("asset state = %s, want on_loan", got)
	}
}

func TestLendInsufficientLotQuantityIsConflict(t *testing.T) {
	e := newEnv(t)

	lot := e.receive(t, engine.KindLot, 2)
	_, err := e.svc.CreateLoan(context.Background(), loans.CreateLoanRequest{
		StationID: e.stationID,
		Recipient: "田中",
		Lines:     []loans.CreateLineRequest{{ItemCode: lot.InternalCode, Quantity: 5}},
	}, "tester")
	if engine.CodeOf(err) != engine.ErrCodeConflict {
		t.Errorf("code = %s, want CONFLICT (err %v)", engine.CodeOf(err), err)
	}
}
