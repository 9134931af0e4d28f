package catalog

import "database/sql"

type Station struct {
	StationID uint64 `json:"station_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
}

type Location struct {
	LocationID uint64 `json:"location_id"`
	StationID  uint64 `json:"station_id"`
	Name       string `json:"name"`
}

type Compartment struct {
	CompartmentID uint64 `json:"compartment_id"`
	LocationID    uint64 `json:"location_id"`
	Name          string `json:"name"`
	Purpose       string `json:"purpose"` // storage | annulment
}

type Product struct {
	ProductID         uint64        `json:"product_id"`
	Name              string        `json:"name"`
	UsefulLifeMonths  sql.NullInt64 `json:"-"`
	RequiresExpiry    bool          `json:"requires_expiry"`
	LotNumberRequired bool          `json:"lot_number_required"`
}

type ItemState struct {
	StateID  uint64 `json:"state_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

const (
	PurposeStorage   = "storage"
	PurposeAnnulment = "annulment"
)
