package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"log"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"SIMS-backend/internal/inventory/movements"
	"SIMS-backend/internal/platform/db"
	"SIMS-backend/internal/platform/metrics"
)

// ===== インターフェース群 =====

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// LoanReconciler は貸出中資産の紛失報告を貸出明細へ反映する上向きポート。
// Engineは貸出サブシステムの具象型を知らない。
type LoanReconciler interface {
	SettleLostAssetTx(ctx context.Context, q db.DBTX, assetID uint64, actorID string) error
}

// ===== Engine本体 =====

// Engine はアイテムと移動台帳の唯一の書き込み経路。
// 各オペレーションは1トランザクションで、対象行を FOR UPDATE でロックしてから
// 状態検証・更新・台帳追記を行う。途中で失敗すれば全てロールバックされる。
type Engine struct {
	db         *sql.DB
	store      *Store
	clock      Clock
	id         IDGen
	reconciler LoanReconciler
}

func New(d *sql.DB) *Engine {
	return &Engine{
		db:    d,
		store: NewStore(d),
		clock: realClock{},
		id:    ulidGen{},
	}
}

// SetLoanReconciler は起動時に一度だけ呼ぶ（貸出サービス構築後）。
func (e *Engine) SetLoanReconciler(r LoanReconciler) { e.reconciler = r }

// ===== 入出力型 =====

type ReceiveInput struct {
	StationID      uint64
	CompartmentID  uint64
	ProductID      uint64
	Kind           string // "asset" | "lot"
	Quantity       uint   // ロットのみ。資産は常に1に強制される
	Serial         *string
	LotNumber      *string
	ExpiresOn      *time.Time
	ManufacturedOn *time.Time
	ActorID        string
	Note           string
}

type TransferInput struct {
	InternalCode    string
	ToCompartmentID uint64
	Quantity        uint // ロット必須。資産は無視
	ActorID         string
	Note            string
}

type ItemRef struct {
	Kind         string
	ID           uint64
	InternalCode string
	StationID    uint64
}

const (
	KindAsset = "asset"
	KindLot   = "lot"
)

// ===== 受入 =====

func (e *Engine) Receive(ctx context.Context, in ReceiveInput) (ref ItemRef, err error) {
	defer func() { metrics.ObserveOp(string(OpReceive), err) }()

	if in.ActorID == "" {
		return ref, ErrInvalid("actor_id is required")
	}
	if in.Kind != KindAsset && in.Kind != KindLot {
		return ref, ErrInvalid("kind must be asset or lot")
	}
	if in.Kind == KindLot && in.Quantity == 0 {
		return ref, ErrInvalid("quantity must be > 0 for lots")
	}

	now := e.clock.Now()

	err = db.RunInTx(ctx, e.db, nil, func(ctx context.Context, tx db.DBTX) error {
		// 区画の所属ステーションが一致しなければ越境登録
		stID, err := e.store.compartmentStation(ctx, tx, in.CompartmentID)
		if err != nil {
			return err
		}
		if stID != in.StationID {
			return ErrInvalid("compartment does not belong to the station")
		}

		prod, err := e.store.getProduct(ctx, tx, in.ProductID)
		if err != nil {
			return err
		}
		if in.Kind == KindLot {
			if prod.RequiresExpiry && in.ExpiresOn == nil {
				return ErrInvalid("expiration date is required for this product")
			}
			if prod.LotNumberRequired && (in.LotNumber == nil || *in.LotNumber == "") {
				return ErrInvalid("lot number is required for this product")
			}
		}

		availableID, err := e.store.stateID(ctx, tx, StateAvailable)
		if err != nil {
			return err
		}

		code, err := e.store.nextInternalCode(ctx, tx, in.StationID, in.Kind)
		if err != nil {
			return err
		}

		var itemID uint64
		var delta int
		if in.Kind == KindAsset {
			// 耐用期限は製造日（無ければ受入日）+ 製品の耐用月数
			var eol sql.NullTime
			if prod.UsefulLifeMonths.Valid {
				base := now
				if in.ManufacturedOn != nil {
					base = *in.ManufacturedOn
				}
				eol = sql.NullTime{Time: base.AddDate(0, int(prod.UsefulLifeMonths.Int64), 0), Valid: true}
			}
			itemID, err = e.store.insertAsset(ctx, tx, in.StationID, in.CompartmentID, in.ProductID,
				code, toNullString(in.Serial), availableID, now, eol)
			delta = 1
		} else {
			itemID, err = e.store.insertLot(ctx, tx, in.StationID, in.CompartmentID, in.ProductID,
				code, in.Quantity, toNullString(in.LotNumber), toNullTime(in.ExpiresOn), availableID, now)
			delta = int(in.Quantity)
		}
		if err != nil {
			return err
		}

		m := movementInsert{
			ULID:      e.id.NewULID(now),
			Kind:      movements.KindEntry,
			Delta:     delta,
			ToComp:    in.CompartmentID,
			StationID: in.StationID,
			ActorID:   in.ActorID,
			Note:      in.Note,
			MovedAt:   now,
		}
		if in.Kind == KindAsset {
			m.AssetID = itemID
		} else {
			m.LotID = itemID
		}
		if err := e.store.insertMovement(ctx, tx, m); err != nil {
			return err
		}

		ref = ItemRef{Kind: in.Kind, ID: itemID, InternalCode: code, StationID: in.StationID}
		return nil
	})
	return ref, err
}

// ===== 内部移送 =====

func (e *Engine) Transfer(ctx context.Context, in TransferInput) (err error) {
	defer func() { metrics.ObserveOp(string(OpTransfer), err) }()

	if in.ActorID == "" {
		return ErrInvalid("actor_id is required")
	}
	now := e.clock.Now()

	return db.RunInTx(ctx, e.db, nil, func(ctx context.Context, tx db.DBTX) error {
		asset, lot, err := e.lockItem(ctx, tx, in.InternalCode)
		if err != nil {
			return err
		}

		if asset != nil {
			return e.transferAsset(ctx, tx, asset, in, now)
		}
		return e.transferLot(ctx, tx, lot, in, now)
	})
}

func (e *Engine) transferAsset(ctx context.Context, tx db.DBTX, a *assetRow, in TransferInput, now time.Time) error {
	if !CanApply(OpTransfer, a.State) {
		return ErrInvalidState(OpTransfer, a.State)
	}
	if in.ToCompartmentID == a.CompartmentID {
		return ErrInvalid("destination equals current compartment")
	}
	destStation, err := e.store.compartmentStation(ctx, tx, in.ToCompartmentID)
	if err != nil {
		return err
	}
	if destStation != a.StationID {
		return ErrInvalid("cross-station transfer is forbidden")
	}

	if err := e.store.updateAsset(ctx, tx, a.AssetID, a.StateID, in.ToCompartmentID); err != nil {
		return err
	}
	// 資産の移送は数量不変なので delta=0 の1レコード
	return e.store.insertMovement(ctx, tx, movementInsert{
		ULID:      e.id.NewULID(now),
		AssetID:   a.AssetID,
		Kind:      movements.KindInternalTransfer,
		Delta:     0,
		FromComp:  a.CompartmentID,
		ToComp:    in.ToCompartmentID,
		StationID: a.StationID,
		ActorID:   in.ActorID,
		Note:      in.Note,
		MovedAt:   now,
	})
}

// ロット移送は併合/分割を伴う。宛先に互換ロット（同一製品・同一ロット番号・
// 同一期限・同一状態）があればそこへ合流、無ければ新規ロットを作る。
// 台帳は元側に負、先側に正の2レコード。
func (e *Engine) transferLot(ctx context.Context, tx db.DBTX, src *lotRow, in TransferInput, now time.Time) error {
	if !CanApply(OpTransfer, src.State) {
		return ErrInvalidState(OpTransfer, src.State)
	}
	if in.Quantity == 0 {
		return ErrInvalid("quantity is required for lot transfers")
	}
	if in.ToCompartmentID == src.CompartmentID {
		return ErrInvalid("destination equals current compartment")
	}
	if in.Quantity > src.Quantity {
		return ErrConflict("insufficient quantity")
	}
	destStation, err := e.store.compartmentStation(ctx, tx, in.ToCompartmentID)
	if err != nil {
		return err
	}
	if destStation != src.StationID {
		return ErrInvalid("cross-station transfer is forbidden")
	}

	dest, err := e.store.lockMergeTarget(ctx, tx, src, in.ToCompartmentID)
	if err != nil {
		return err
	}

	var destID uint64
	if dest != nil {
		destID = dest.LotID
		if err := e.store.setLot(ctx, tx, dest.LotID, dest.Quantity+in.Quantity, dest.StateID, dest.CompartmentID); err != nil {
			return err
		}
	} else {
		code, err := e.store.nextInternalCode(ctx, tx, src.StationID, KindLot)
		if err != nil {
			return err
		}
		destID, err = e.store.insertLot(ctx, tx, src.StationID, in.ToCompartmentID, src.ProductID,
			code, in.Quantity, src.LotNumber, src.ExpiresOn, src.StateID, now)
		if err != nil {
			return err
		}
	}

	if err := e.store.setLot(ctx, tx, src.LotID, src.Quantity-in.Quantity, src.StateID, src.CompartmentID); err != nil {
		return err
	}

	out := movementInsert{
		ULID:      e.id.NewULID(now),
		LotID:     src.LotID,
		Kind:      movements.KindInternalTransfer,
		Delta:     -int(in.Quantity),
		FromComp:  src.CompartmentID,
		ToComp:    in.ToCompartmentID,
		StationID: src.StationID,
		ActorID:   in.ActorID,
		Note:      in.Note,
		MovedAt:   now,
	}
	if err := e.store.insertMovement(ctx, tx, out); err != nil {
		return err
	}
	inMov := out
	inMov.ULID = e.id.NewULID(now)
	inMov.LotID = destID
	inMov.Delta = int(in.Quantity)
	return e.store.insertMovement(ctx, tx, inMov)
}

// ===== 抹消・廃棄・紛失・調整・消費 =====

// Annul: 登録ミスの取り消し。全数量を0にし、ステーション予約の抹消区画へ移す。
func (e *Engine) Annul(ctx context.Context, internalCode, actorID, reason string) (err error) {
	defer func() { metrics.ObserveOp(string(OpAnnul), err) }()
	if err = requireReason(actorID, reason); err != nil {
		return err
	}
	now := e.clock.Now()

	return db.RunInTx(ctx, e.db, nil, func(ctx context.Context, tx db.DBTX) error {
		asset, lot, err := e.lockItem(ctx, tx, internalCode)
		if err != nil {
			return err
		}

		annulledID, err := e.store.stateID(ctx, tx, StateAnnulled)
		if err != nil {
			return err
		}

		if asset != nil {
			if !CanApply(OpAnnul, asset.State) {
				return ErrInvalidState(OpAnnul, asset.State)
			}
			annulComp, err := e.store.annulmentCompartment(ctx, tx, asset.StationID)
			if err != nil {
				return err
			}
			if err := e.store.updateAsset(ctx, tx, asset.AssetID, annulledID, annulComp); err != nil {
				return err
			}
			return e.store.insertMovement(ctx, tx, movementInsert{
				ULID: e.id.NewULID(now), AssetID: asset.AssetID, Kind: movements.KindExit,
				Delta: -1, FromComp: asset.CompartmentID, ToComp: annulComp,
				StationID: asset.StationID, ActorID: actorID, Note: reason, MovedAt: now,
			})
		}

		if !CanApply(OpAnnul, lot.State) {
			return ErrInvalidState(OpAnnul, lot.State)
		}
		annulComp, err := e.store.annulmentCompartment(ctx, tx, lot.StationID)
		if err != nil {
			return err
		}
		if err := e.store.setLot(ctx, tx, lot.LotID, 0, annulledID, annulComp); err != nil {
			return err
		}
		return e.store.insertMovement(ctx, tx, movementInsert{
			ULID: e.id.NewULID(now), LotID: lot.LotID, Kind: movements.KindExit,
			Delta: -int(lot.Quantity), FromComp: lot.CompartmentID, ToComp: annulComp,
			StationID: lot.StationID, ActorID: actorID, Note: reason, MovedAt: now,
		})
	})
}

func (e *Engine) Dispose(ctx context.Context, internalCode, actorID, reason string) (err error) {
	defer func() { metrics.ObserveOp(string(OpDispose), err) }()
	if err = requireReason(actorID, reason); err != nil {
		return err
	}
	now := e.clock.Now()

	return db.RunInTx(ctx, e.db, nil, func(ctx context.Context, tx db.DBTX) error {
		asset, lot, err := e.lockItem(ctx, tx, internalCode)
		if err != nil {
			return err
		}
		disposedID, err := e.store.stateID(ctx, tx, StateDisposed)
		if err != nil {
			return err
		}

		if asset != nil {
			if !CanApply(OpDispose, asset.State) {
				return ErrInvalidState(OpDispose, asset.State)
			}
			if err := e.store.updateAsset(ctx, tx, asset.AssetID, disposedID, asset.CompartmentID); err != nil {
				return err
			}
			return e.store.insertMovement(ctx, tx, movementInsert{
				ULID: e.id.NewULID(now), AssetID: asset.AssetID, Kind: movements.KindExit,
				Delta: -1, FromComp: asset.CompartmentID,
				StationID: asset.StationID, ActorID: actorID, Note: reason, MovedAt: now,
			})
		}

		if !CanApply(OpDispose, lot.State) {
			return ErrInvalidState(OpDispose, lot.State)
		}
		if err := e.store.setLot(ctx, tx, lot.LotID, 0, disposedID, lot.CompartmentID); err != nil {
			return err
		}
		return e.store.insertMovement(ctx, tx, movementInsert{
			ULID: e.id.NewULID(now), LotID: lot.LotID, Kind: movements.KindExit,
			Delta: -int(lot.Quantity), FromComp: lot.CompartmentID,
			StationID: lot.StationID, ActorID: actorID, Note: reason, MovedAt: now,
		})
	})
}

// ReportLost は資産専用。貸出中だった場合は実体が既に手元に無いので delta=0。
// 貸出明細への反映は注入された LoanReconciler 経由で同一トランザクション内で行う。
func (e *Engine) ReportLost(ctx context.Context, internalCode, actorID, reason string) (err error) {
	defer func() { metrics.ObserveOp(string(OpReportLost), err) }()
	if err = requireReason(actorID, reason); err != nil {
		return err
	}
	now := e.clock.Now()

	return db.RunInTx(ctx, e.db, nil, func(ctx context.Context, tx db.DBTX) error {
		asset, _, err := e.lockItem(ctx, tx, internalCode)
		if err != nil {
			return err
		}
		if asset == nil {
			return ErrInvalid("report-lost applies to assets only")
		}
		if !CanApply(OpReportLost, asset.State) {
			return ErrInvalidState(OpReportLost, asset.State)
		}
		wasOnLoan := asset.State == StateOnLoan

		lostID, err := e.store.stateID(ctx, tx, StateLost)
		if err != nil {
			return err
		}
		if err := e.store.updateAsset(ctx, tx, asset.AssetID, lostID, asset.CompartmentID); err != nil {
			return err
		}

		delta := -1
		if wasOnLoan {
			delta = 0
		}
		if err := e.store.insertMovement(ctx, tx, movementInsert{
			ULID: e.id.NewULID(now), AssetID: asset.AssetID, Kind: movements.KindExit,
			Delta: delta, FromComp: asset.CompartmentID,
			StationID: asset.StationID, ActorID: actorID, Note: reason, MovedAt: now,
		}); err != nil {
			return err
		}

		if wasOnLoan {
			if e.reconciler == nil {
				log.Printf("[WARN] asset %d lost while on loan but no reconciler wired", asset.AssetID)
				return nil
			}
			return e.reconciler.SettleLostAssetTx(ctx, tx, asset.AssetID, actorID)
		}
		return nil
	})
}

// Adjust は棚卸補正。差分ゼロなら台帳レコードを作らない。
func (e *Engine) Adjust(ctx context.Context, internalCode string, newQuantity uint, actorID, reason string) (err error) {
	defer func() { metrics.ObserveOp(string(OpAdjust), err) }()
	if err = requireReason(actorID, reason); err != nil {
		return err
	}
	now := e.clock.Now()

	return db.RunInTx(ctx, e.db, nil, func(ctx context.Context, tx db.DBTX) error {
		asset, lot, err := e.lockItem(ctx, tx, internalCode)
		if err != nil {
			return err
		}
		if asset != nil {
			return ErrInvalid("adjust applies to lots only")
		}
		if !CanApply(OpAdjust, lot.State) {
			return ErrInvalidState(OpAdjust, lot.State)
		}

		delta := int(newQuantity) - int(lot.Quantity)
		if delta == 0 {
			return nil
		}
		if err := e.store.setLot(ctx, tx, lot.LotID, newQuantity, lot.StateID, lot.CompartmentID); err != nil {
			return err
		}
		return e.store.insertMovement(ctx, tx, movementInsert{
			ULID: e.id.NewULID(now), LotID: lot.LotID, Kind: movements.KindAdjustment,
			Delta: delta, StationID: lot.StationID, ActorID: actorID, Note: reason, MovedAt: now,
		})
	})
}

func (e *Engine) Consume(ctx context.Context, internalCode string, quantity uint, actorID, reason string) (err error) {
	defer func() { metrics.ObserveOp(string(OpConsume), err) }()
	if err = requireReason(actorID, reason); err != nil {
		return err
	}
	if quantity == 0 {
		return ErrInvalid("quantity must be > 0")
	}
	now := e.clock.Now()

	return db.RunInTx(ctx, e.db, nil, func(ctx context.Context, tx db.DBTX) error {
		asset, lot, err := e.lockItem(ctx, tx, internalCode)
		if err != nil {
			return err
		}
		if asset != nil {
			return ErrInvalid("consume applies to lots only")
		}
		if !CanApply(OpConsume, lot.State) {
			return ErrInvalidState(OpConsume, lot.State)
		}
		if quantity > lot.Quantity {
			return ErrConflict("insufficient quantity")
		}

		availableID, err := e.store.stateID(ctx, tx, StateAvailable)
		if err != nil {
			return err
		}
		if err := e.store.setLot(ctx, tx, lot.LotID, lot.Quantity-quantity, availableID, lot.CompartmentID); err != nil {
			return err
		}
		return e.store.insertMovement(ctx, tx, movementInsert{
			ULID: e.id.NewULID(now), LotID: lot.LotID, Kind: movements.KindExit,
			Delta: -int(quantity), FromComp: lot.CompartmentID,
			StationID: lot.StationID, ActorID: actorID, Note: reason, MovedAt: now,
		})
	})
}

// AddUsageHours は稼働時間カウンタの加算のみ（状態・位置・数量に触れない）。
func (e *Engine) AddUsageHours(ctx context.Context, internalCode string, hours uint, actorID string) (err error) {
	defer func() { metrics.ObserveOp("add_usage_hours", err) }()
	if actorID == "" {
		return ErrInvalid("actor_id is required")
	}
	if hours == 0 {
		return ErrInvalid("hours must be > 0")
	}
	return db.RunInTx(ctx, e.db, nil, func(ctx context.Context, tx db.DBTX) error {
		asset, _, err := e.lockItem(ctx, tx, internalCode)
		if err != nil {
			return err
		}
		if asset == nil {
			return ErrInvalid("usage hours apply to assets only")
		}
		if IsTerminal(asset.State) {
			return ErrInvalidState(Op("add_usage_hours"), asset.State)
		}
		return e.store.addUsageHours(ctx, tx, asset.AssetID, hours)
	})
}

// ===== 貸出・整備から呼ばれるTxスコープのプリミティブ =====
// 呼び出し側のトランザクション内で動く。各関数は対象行のロックから始める。

// LendItemTx: 貸出1明細分の引当。ロック後の再検証失敗は CONFLICT（リトライ可能）。
func (e *Engine) LendItemTx(ctx context.Context, q db.DBTX, internalCode string, quantity uint, actorID, note string) (ItemRef, error) {
	now := e.clock.Now()
	asset, lot, err := e.lockItem(ctx, q, internalCode)
	if err != nil {
		return ItemRef{}, err
	}

	onLoanID, err := e.store.stateID(ctx, q, StateOnLoan)
	if err != nil {
		return ItemRef{}, err
	}

	if asset != nil {
		if !CanApply(OpLend, asset.State) {
			return ItemRef{}, ErrConflict("asset " + asset.InternalCode + " is not available (state " + asset.State + ")")
		}
		if err := e.store.updateAsset(ctx, q, asset.AssetID, onLoanID, asset.CompartmentID); err != nil {
			return ItemRef{}, err
		}
		if err := e.store.insertMovement(ctx, q, movementInsert{
			ULID: e.id.NewULID(now), AssetID: asset.AssetID, Kind: movements.KindLoan,
			Delta: -1, FromComp: asset.CompartmentID,
			StationID: asset.StationID, ActorID: actorID, Note: note, MovedAt: now,
		}); err != nil {
			return ItemRef{}, err
		}
		return ItemRef{Kind: KindAsset, ID: asset.AssetID, InternalCode: asset.InternalCode, StationID: asset.StationID}, nil
	}

	if quantity == 0 {
		return ItemRef{}, ErrInvalid("quantity must be > 0 for lot lines")
	}
	if !CanApply(OpLend, lot.State) {
		return ItemRef{}, ErrConflict("lot " + lot.InternalCode + " is not available (state " + lot.State + ")")
	}
	if quantity > lot.Quantity {
		return ItemRef{}, ErrConflict("insufficient quantity for lot " + lot.InternalCode)
	}
	if err := e.store.setLot(ctx, q, lot.LotID, lot.Quantity-quantity, onLoanID, lot.CompartmentID); err != nil {
		return ItemRef{}, err
	}
	if err := e.store.insertMovement(ctx, q, movementInsert{
		ULID: e.id.NewULID(now), LotID: lot.LotID, Kind: movements.KindLoan,
		Delta: -int(quantity), FromComp: lot.CompartmentID,
		StationID: lot.StationID, ActorID: actorID, Note: note, MovedAt: now,
	}); err != nil {
		return ItemRef{}, err
	}
	return ItemRef{Kind: KindLot, ID: lot.LotID, InternalCode: lot.InternalCode, StationID: lot.StationID}, nil
}

// ReturnAssetTx: 返却の逆方向ムーブメント（on_loan -> available, +1）
func (e *Engine) ReturnAssetTx(ctx context.Context, q db.DBTX, assetID uint64, actorID, note string) error {
	now := e.clock.Now()
	asset, err := e.store.lockAssetByID(ctx, q, assetID)
	if err != nil {
		return lockErrToDomain(err, "asset not found")
	}
	if !CanApply(OpReturn, asset.State) {
		return ErrInvalidState(OpReturn, asset.State)
	}
	availableID, err := e.store.stateID(ctx, q, StateAvailable)
	if err != nil {
		return err
	}
	if err := e.store.updateAsset(ctx, q, asset.AssetID, availableID, asset.CompartmentID); err != nil {
		return err
	}
	return e.store.insertMovement(ctx, q, movementInsert{
		ULID: e.id.NewULID(now), AssetID: asset.AssetID, Kind: movements.KindReturn,
		Delta: 1, ToComp: asset.CompartmentID,
		StationID: asset.StationID, ActorID: actorID, Note: note, MovedAt: now,
	})
}

func (e *Engine) ReturnLotTx(ctx context.Context, q db.DBTX, lotID uint64, quantity uint, actorID, note string) error {
	if quantity == 0 {
		return ErrInvalid("quantity must be > 0")
	}
	now := e.clock.Now()
	lot, err := e.store.lockLotByID(ctx, q, lotID)
	if err != nil {
		return lockErrToDomain(err, "lot not found")
	}
	// 部分返却後は在庫側が先に available へ戻っているので、両状態を受ける
	if lot.State != StateOnLoan && lot.State != StateAvailable {
		return ErrInvalidState(OpReturn, lot.State)
	}
	availableID, err := e.store.stateID(ctx, q, StateAvailable)
	if err != nil {
		return err
	}
	if err := e.store.setLot(ctx, q, lot.LotID, lot.Quantity+quantity, availableID, lot.CompartmentID); err != nil {
		return err
	}
	return e.store.insertMovement(ctx, q, movementInsert{
		ULID: e.id.NewULID(now), LotID: lot.LotID, Kind: movements.KindReturn,
		Delta: int(quantity), ToComp: lot.CompartmentID,
		StationID: lot.StationID, ActorID: actorID, Note: note, MovedAt: now,
	})
}

// LoseLentAssetTx: 精算内での紛失計上。貸出明細の再帰反映はしない
// （呼び出し側が既に明細を更新しているため）。数量は貸出時に減っているので delta=0。
func (e *Engine) LoseLentAssetTx(ctx context.Context, q db.DBTX, assetID uint64, actorID, note string) error {
	now := e.clock.Now()
	asset, err := e.store.lockAssetByID(ctx, q, assetID)
	if err != nil {
		return lockErrToDomain(err, "asset not found")
	}
	if asset.State != StateOnLoan {
		return ErrInvalidState(OpReportLost, asset.State)
	}
	lostID, err := e.store.stateID(ctx, q, StateLost)
	if err != nil {
		return err
	}
	if err := e.store.updateAsset(ctx, q, asset.AssetID, lostID, asset.CompartmentID); err != nil {
		return err
	}
	return e.store.insertMovement(ctx, q, movementInsert{
		ULID: e.id.NewULID(now), AssetID: asset.AssetID, Kind: movements.KindExit,
		Delta: 0, FromComp: asset.CompartmentID,
		StationID: asset.StationID, ActorID: actorID, Note: note, MovedAt: now,
	})
}

// LoseLentLotTx: ロット明細の紛失計上。数量は貸出時に減っているので delta=0。
// restore=true なら残量を再び利用可能へ戻す（明細が精算完了する場合）。
func (e *Engine) LoseLentLotTx(ctx context.Context, q db.DBTX, lotID uint64, actorID, note string, restore bool) error {
	now := e.clock.Now()
	lot, err := e.store.lockLotByID(ctx, q, lotID)
	if err != nil {
		return lockErrToDomain(err, "lot not found")
	}
	if restore && lot.State == StateOnLoan {
		availableID, err := e.store.stateID(ctx, q, StateAvailable)
		if err != nil {
			return err
		}
		if err := e.store.setLot(ctx, q, lot.LotID, lot.Quantity, availableID, lot.CompartmentID); err != nil {
			return err
		}
	}
	return e.store.insertMovement(ctx, q, movementInsert{
		ULID: e.id.NewULID(now), LotID: lot.LotID, Kind: movements.KindExit,
		Delta: 0, FromComp: lot.CompartmentID,
		StationID: lot.StationID, ActorID: actorID, Note: note, MovedAt: now,
	})
}

// ClaimAssetTx: 整備オーダーによる資産の確保（-> in_repair）。台帳対象外の状態遷移。
func (e *Engine) ClaimAssetTx(ctx context.Context, q db.DBTX, assetID uint64) error {
	asset, err := e.store.lockAssetByID(ctx, q, assetID)
	if err != nil {
		return lockErrToDomain(err, "asset not found")
	}
	// 既に修理中なら共有確保としてそのまま成立
	if asset.State == StateInRepair {
		return nil
	}
	if !CanApply(OpClaim, asset.State) {
		return ErrInvalidState(OpClaim, asset.State)
	}
	inRepairID, err := e.store.stateID(ctx, q, StateInRepair)
	if err != nil {
		return err
	}
	return e.store.updateAsset(ctx, q, asset.AssetID, inRepairID, asset.CompartmentID)
}

// ReleaseIfRepairTx: in_repair のときだけ available へ戻す。
// それ以外（修理中に紛失・廃棄された等）は触らない。戻り値は実際に解放したか。
func (e *Engine) ReleaseIfRepairTx(ctx context.Context, q db.DBTX, assetID uint64) (bool, error) {
	asset, err := e.store.lockAssetByID(ctx, q, assetID)
	if err != nil {
		return false, lockErrToDomain(err, "asset not found")
	}
	if asset.State != StateInRepair {
		return false, nil
	}
	availableID, err := e.store.stateID(ctx, q, StateAvailable)
	if err != nil {
		return false, err
	}
	if err := e.store.updateAsset(ctx, q, asset.AssetID, availableID, asset.CompartmentID); err != nil {
		return false, err
	}
	return true, nil
}

// FlagReviewTx: 整備失敗時の強制遷移（in_repair -> pending_review）。
// 他オーダーの確保状況に関わらず適用される。
func (e *Engine) FlagReviewTx(ctx context.Context, q db.DBTX, assetID uint64) error {
	asset, err := e.store.lockAssetByID(ctx, q, assetID)
	if err != nil {
		return lockErrToDomain(err, "asset not found")
	}
	if !CanApply(OpFlagReview, asset.State) {
		return ErrInvalidState(OpFlagReview, asset.State)
	}
	reviewID, err := e.store.stateID(ctx, q, StatePendingReview)
	if err != nil {
		return err
	}
	return e.store.updateAsset(ctx, q, asset.AssetID, reviewID, asset.CompartmentID)
}

// ===== helpers =====

// lockItem: internal_code から資産→ロットの順に解決してロックする。
// どちらか一方だけが非nilで返る。
func (e *Engine) lockItem(ctx context.Context, q db.DBTX, internalCode string) (*assetRow, *lotRow, error) {
	if internalCode == "" {
		return nil, nil, ErrInvalid("internal_code is required")
	}
	asset, err := e.store.lockAssetByCode(ctx, q, internalCode)
	if err == nil {
		return asset, nil, nil
	}
	if err != sql.ErrNoRows {
		return nil, nil, err
	}
	lot, err := e.store.lockLotByCode(ctx, q, internalCode)
	if err == nil {
		return nil, lot, nil
	}
	if err == sql.ErrNoRows {
		return nil, nil, ErrNotFound("item not found: " + internalCode)
	}
	return nil, nil, err
}

func lockErrToDomain(err error, notFoundMsg string) error {
	if err == sql.ErrNoRows {
		return ErrNotFound(notFoundMsg)
	}
	return err
}

func requireReason(actorID, reason string) error {
	if actorID == "" {
		return ErrInvalid("actor_id is required")
	}
	if reason == "" {
		return ErrInvalid("reason is required")
	}
	return nil
}

func toNullString(s *string) (ns sql.NullString) {
	if s != nil && *s != "" {
		ns.Valid, ns.String = true, *s
	}
	return
}

func toNullTime(t *time.Time) (nt sql.NullTime) {
	if t != nil {
		nt.Valid, nt.Time = true, *t
	}
	return
}
