package movements

import "time"

type MovementResponse struct {
	MovementID        uint64    `json:"movement_id"`
	MovementULID      string    `json:"movement_ulid"`
	AssetID           *uint64   `json:"asset_id,omitempty"`
	LotID             *uint64   `json:"lot_id,omitempty"`
	Kind              string    `json:"kind"`
	Delta             int       `json:"delta"`
	FromCompartmentID *uint64   `json:"from_compartment_id,omitempty"`
	ToCompartmentID   *uint64   `json:"to_compartment_id,omitempty"`
	StationID         uint64    `json:"station_id"`
	ActorID           string    `json:"actor_id"`
	Note              string    `json:"note"`
	MovedAt           time.Time `json:"moved_at"`
}

type ListResult struct {
	Items []MovementResponse `json:"items"`
	Total int64              `json:"total"`
}

func toResponse(m Movement) MovementResponse {
	r := MovementResponse{
		MovementID:   m.MovementID,
		MovementULID: m.MovementULID,
		Kind:         m.Kind,
		Delta:        m.Delta,
		StationID:    m.StationID,
		ActorID:      m.ActorID,
		Note:         m.Note,
		MovedAt:      m.MovedAt,
	}
	if m.AssetID.Valid {
		v := uint64(m.AssetID.Int64)
		r.AssetID = &v
	}
	if m.LotID.Valid {
		v := uint64(m.LotID.Int64)
		r.LotID = &v
	}
	if m.FromCompartmentID.Valid {
		v := uint64(m.FromCompartmentID.Int64)
		r.FromCompartmentID = &v
	}
	if m.ToCompartmentID.Valid {
		v := uint64(m.ToCompartmentID.Int64)
		r.ToCompartmentID = &v
	}
	return r
}
