package maintenance

import (
	"database/sql"
	"time"
)

const (
	OrderPending    = "pending"
	OrderInProgress = "in_progress"
	OrderDone       = "done"
	OrderCancelled  = "cancelled"
)

const (
	TriggerTime       = "time"
	TriggerUsageHours = "usage_hours"
)

type Order struct {
	OrderID   uint64
	ULID      string
	StationID uint64
	Title     string
	Status    string
	PlanID    sql.NullInt64
	CreatedBy string
	CreatedAt time.Time
	StartedAt sql.NullTime
	ClosedAt  sql.NullTime
}

type Record struct {
	RecordID    uint64
	OrderID     uint64
	AssetID     uint64
	Success     bool
	PerformedBy string
	Notes       sql.NullString
	WorkedAt    time.Time
}

type Plan struct {
	PlanID    uint64
	StationID uint64
	Name      string
	Active    bool
}

// PlanConfig は計画×資産ごとの発火条件。
// time型は経過日数、usage_hours型は前回発火からの稼働時間差分で判定する。
type PlanConfig struct {
	ConfigID            uint64
	PlanID              uint64
	AssetID             uint64
	TriggerType         string
	IntervalDays        sql.NullInt64
	UsageHoursThreshold sql.NullInt64
	LastGeneratedOn     sql.NullTime
	LastUsageHours      uint
}

func isOpen(status string) bool {
	return status == OrderPending || status == OrderInProgress
}
