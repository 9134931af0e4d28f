package loans

import (
	"database/sql"
	"time"
)

const (
	StatusPending           = "pending"
	StatusPartiallyReturned = "partially_returned"
	StatusCompleted         = "completed"
)

type Loan struct {
	LoanID        uint64
	ULID          string
	StationID     uint64
	Recipient     string
	ResponsibleID string
	DueOn         sql.NullTime
	ReturnedAt    sql.NullTime
	Status        string
	CreatedAt     time.Time
}

type Line struct {
	LineID   uint64
	LoanID   uint64
	AssetID  sql.NullInt64
	LotID    sql.NullInt64
	Lent     uint
	Returned uint
	Lost     uint
}
