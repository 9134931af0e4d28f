package maintenance

import "time"

type CreateOrderRequest struct {
	StationID uint64   `json:"station_id" binding:"required"`
	Title     string   `json:"title" binding:"required"`
	AssetIDs  []uint64 `json:"asset_ids" binding:"required,min=1"`
}

type RecordWorkRequest struct {
	AssetID uint64 `json:"asset_id" binding:"required"`
	Success *bool  `json:"success" binding:"required"`
	Notes   string `json:"notes"`
}

type CreatePlanRequest struct {
	StationID uint64 `json:"station_id" binding:"required"`
	Name      string `json:"name" binding:"required"`
}

type PlanConfigRequest struct {
	AssetID             uint64 `json:"asset_id" binding:"required"`
	TriggerType         string `json:"trigger_type" binding:"required,oneof=time usage_hours"`
	IntervalDays        *uint  `json:"interval_days"`
	UsageHoursThreshold *uint  `json:"usage_hours_threshold"`
}

type RecordResponse struct {
	RecordID    uint64    `json:"record_id"`
	AssetID     uint64    `json:"asset_id"`
	Success     bool      `json:"success"`
	PerformedBy string    `json:"performed_by"`
	Notes       *string   `json:"notes,omitempty"`
	WorkedAt    time.Time `json:"worked_at"`
}

type OrderResponse struct {
	OrderID   uint64           `json:"order_id"`
	ULID      string           `json:"order_ulid"`
	StationID uint64           `json:"station_id"`
	Title     string           `json:"title"`
	Status    string           `json:"status"`
	PlanID    *uint64          `json:"plan_id,omitempty"`
	CreatedBy string           `json:"created_by"`
	CreatedAt time.Time        `json:"created_at"`
	StartedAt *time.Time       `json:"started_at,omitempty"`
	ClosedAt  *time.Time       `json:"closed_at,omitempty"`
	AssetIDs  []uint64         `json:"asset_ids,omitempty"`
	Records   []RecordResponse `json:"records,omitempty"`
}

func toOrderResponse(o Order, assets []uint64, records []Record) OrderResponse {
	r := OrderResponse{
		OrderID:   o.OrderID,
		ULID:      o.ULID,
		StationID: o.StationID,
		Title:     o.Title,
		Status:    o.Status,
		CreatedBy: o.CreatedBy,
		CreatedAt: o.CreatedAt,
		AssetIDs:  assets,
	}
	if o.PlanID.Valid {
		v := uint64(o.PlanID.Int64)
		r.PlanID = &v
	}
	if o.StartedAt.Valid {
		t := o.StartedAt.Time
		r.StartedAt = &t
	}
	if o.ClosedAt.Valid {
		t := o.ClosedAt.Time
		r.ClosedAt = &t
	}
	for _, rec := range records {
		rr := RecordResponse{
			RecordID:    rec.RecordID,
			AssetID:     rec.AssetID,
			Success:     rec.Success,
			PerformedBy: rec.PerformedBy,
			WorkedAt:    rec.WorkedAt,
		}
		if rec.Notes.Valid {
			rr.Notes = &rec.Notes.String
		}
		r.Records = append(r.Records, rr)
	}
	return r
}
