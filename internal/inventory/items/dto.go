package items

import "time"

type ReceiveRequest struct {
	StationID      uint64  `json:"station_id" binding:"required"`
	CompartmentID  uint64  `json:"compartment_id" binding:"required"`
	ProductID      uint64  `json:"product_id" binding:"required"`
	Kind           string  `json:"kind" binding:"required,oneof=asset lot"`
	Quantity       uint    `json:"quantity"`
	Serial         *string `json:"serial"`
	LotNumber      *string `json:"lot_number"`
	ExpiresOn      *string `json:"expires_on"`      // "2006-01-02"
	ManufacturedOn *string `json:"manufactured_on"` // "2006-01-02"
	Note           string  `json:"note"`
}

type TransferRequest struct {
	ToCompartmentID uint64 `json:"to_compartment_id" binding:"required"`
	Quantity        uint   `json:"quantity"`
	Note            string `json:"note"`
}

type ReasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type AdjustRequest struct {
	NewQuantity uint   `json:"new_quantity"`
	Reason      string `json:"reason" binding:"required"`
}

type ConsumeRequest struct {
	Quantity uint   `json:"quantity" binding:"required"`
	Reason   string `json:"reason" binding:"required"`
}

type UsageHoursRequest struct {
	Hours uint `json:"hours" binding:"required"`
}

type ItemResponse struct {
	Kind          string     `json:"kind"`
	ID            uint64     `json:"id"`
	InternalCode  string     `json:"internal_code"`
	StationID     uint64     `json:"station_id"`
	CompartmentID uint64     `json:"compartment_id"`
	ProductID     uint64     `json:"product_id"`
	ProductName   string     `json:"product_name"`
	State         string     `json:"state"`
	StateCategory string     `json:"state_category"`
	Serial        *string    `json:"serial,omitempty"`
	Quantity      uint       `json:"quantity"`
	LotNumber     *string    `json:"lot_number,omitempty"`
	ExpiresOn     *string    `json:"expires_on,omitempty"`
	UsageHours    uint       `json:"usage_hours"`
	ReceivedAt    time.Time  `json:"received_at"`
	EndOfLifeOn   *string    `json:"end_of_life_on,omitempty"`
}

type ReceiveResponse struct {
	Kind         string `json:"kind"`
	ID           uint64 `json:"id"`
	InternalCode string `json:"internal_code"`
}

type ListResponse struct {
	Items []ItemResponse `json:"items"`
}

const dateLayout = "2006-01-02"

func toResponse(it Item) ItemResponse {
	r := ItemResponse{
		Kind:          it.Kind,
		ID:            it.ID,
		InternalCode:  it.InternalCode,
		StationID:     it.StationID,
		CompartmentID: it.CompartmentID,
		ProductID:     it.ProductID,
		ProductName:   it.ProductName,
		State:         it.State,
		StateCategory: it.StateCategory,
		Quantity:      it.Quantity,
		UsageHours:    it.UsageHours,
		ReceivedAt:    it.ReceivedAt,
	}
	if it.Serial.Valid {
		r.Serial = &it.Serial.String
	}
	if it.LotNumber.Valid {
		r.LotNumber = &it.LotNumber.String
	}
	if it.ExpiresOn.Valid {
		s := it.ExpiresOn.Time.Format(dateLayout)
		r.ExpiresOn = &s
	}
	if it.EndOfLifeOn.Valid {
		s := it.EndOfLifeOn.Time.Format(dateLayout)
		r.EndOfLifeOn = &s
	}
	return r
}
