package loans

import "time"

type CreateLoanRequest struct {
	StationID uint64              `json:"station_id" binding:"required"`
	Recipient string              `json:"recipient" binding:"required"`
	DueOn     *string             `json:"due_on"` // "2006-01-02"
	Lines     []CreateLineRequest `json:"lines" binding:"required,min=1,dive"`
}

type CreateLineRequest struct {
	ItemCode string `json:"item_code" binding:"required"`
	Quantity uint   `json:"quantity"` // ロット明細のみ。資産は1に強制
}

type SettleRequest struct {
	Settlements []LineSettlement `json:"settlements" binding:"required,min=1,dive"`
}

type LineSettlement struct {
	LineID    uint64 `json:"line_id" binding:"required"`
	ReturnQty uint   `json:"return_qty"`
	LossQty   uint   `json:"loss_qty"`
}

type LineResponse struct {
	LineID   uint64  `json:"line_id"`
	AssetID  *uint64 `json:"asset_id,omitempty"`
	LotID    *uint64 `json:"lot_id,omitempty"`
	Lent     uint    `json:"lent"`
	Returned uint    `json:"returned"`
	Lost     uint    `json:"lost"`
}

type LoanResponse struct {
	LoanID        uint64         `json:"loan_id"`
	ULID          string         `json:"loan_ulid"`
	StationID     uint64         `json:"station_id"`
	Recipient     string         `json:"recipient"`
	ResponsibleID string         `json:"responsible_id"`
	DueOn         *string        `json:"due_on,omitempty"`
	ReturnedAt    *time.Time     `json:"returned_at,omitempty"`
	Status        string         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	Lines         []LineResponse `json:"lines,omitempty"`
}

const dateLayout = "2006-01-02"

func toResponse(l Loan, lines []Line) LoanResponse {
	r := LoanResponse{
		LoanID:        l.LoanID,
		ULID:          l.ULID,
		StationID:     l.StationID,
		Recipient:     l.Recipient,
		ResponsibleID: l.ResponsibleID,
		Status:        l.Status,
		CreatedAt:     l.CreatedAt,
	}
	if l.DueOn.Valid {
		s := l.DueOn.Time.Format(dateLayout)
		r.DueOn = &s
	}
	if l.ReturnedAt.Valid {
		t := l.ReturnedAt.Time
		r.ReturnedAt = &t
	}
	for _, ln := range lines {
		lr := LineResponse{LineID: ln.LineID, Lent: ln.Lent, Returned: ln.Returned, Lost: ln.Lost}
		if ln.AssetID.Valid {
			v := uint64(ln.AssetID.Int64)
			lr.AssetID = &v
		}
		if ln.LotID.Valid {
			v := uint64(ln.LotID.Int64)
			lr.LotID = &v
		}
		r.Lines = append(r.Lines, lr)
	}
	return r
}
