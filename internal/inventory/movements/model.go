package movements

import (
	"database/sql"
	"time"
)

// 移動種別。台帳に現れる値はこの7種のみ。
const (
	KindEntry            = "entry"
	KindExit             = "exit"
	KindInternalTransfer = "internal_transfer"
	KindAdjustment       = "adjustment"
	KindTransit          = "transit"
	KindLoan             = "loan"
	KindReturn           = "return"
)

// Movement は movements テーブルの1行を表す。追記専用で更新・削除はしない。
type Movement struct {
	MovementID        uint64
	MovementULID      string
	AssetID           sql.NullInt64
	LotID             sql.NullInt64
	Kind              string
	Delta             int
	FromCompartmentID sql.NullInt64
	ToCompartmentID   sql.NullInt64
	StationID         uint64
	ActorID           string
	Note              string
	MovedAt           time.Time
}

// 活動フィードの検索条件
type Filter struct {
	StationID *uint64
	Kind      *string
	ActorID   *string
	From      *time.Time
	To        *time.Time
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}
