package items

import (
	"database/sql"
	"time"
)

// Item は資産/ロット両系列の横断ビュー。一覧・詳細の読み取り専用で、
// 書き込みは全て engine を経由する。
type Item struct {
	Kind          string // "asset" | "lot"
	ID            uint64
	InternalCode  string
	StationID     uint64
	CompartmentID uint64
	ProductID     uint64
	ProductName   string
	State         string
	StateCategory string
	Serial        sql.NullString
	Quantity      uint // 資産は常に1（状態がavailable系のとき）
	LotNumber     sql.NullString
	ExpiresOn     sql.NullTime
	UsageHours    uint
	ReceivedAt    time.Time
	EndOfLifeOn   sql.NullTime
}

type Filter struct {
	StationID     *uint64
	Kind          *string
	State         *string
	ProductID     *uint64
	CompartmentID *uint64
}

type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() Page {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
