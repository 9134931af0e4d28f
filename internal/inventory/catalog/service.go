package catalog

import (
	"context"
	"database/sql"
	"strings"

	"SIMS-backend/internal/inventory/engine"
)

type Service struct {
	store *Store
}

func NewService(db *sql.DB) *Service {
	return &Service{store: NewStore(db)}
}

// VerifyStates は起動時に状態カタログの完全性を確認する。
// 必須状態が欠けたまま動かすと全オペレーションが設定エラーで落ちるため、
// ここで止めて運用に修復を促す。
func (s *Service) VerifyStates(ctx context.Context) error {
	required := []string{
		engine.StateAvailable, engine.StateAssigned, engine.StateOnLoan,
		engine.StateInRepair, engine.StatePendingReview,
		engine.StateAnnulled, engine.StateDisposed, engine.StateLost,
	}

	states, err := s.store.ListStates(ctx)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(states))
	for _, st := range states {
		have[st.Name] = true
	}

	var missing []string
	for _, name := range required {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return engine.ErrConfig("item_states is missing required states: " + strings.Join(missing, ", "))
	}
	return nil
}

func (s *Service) CreateStation(ctx context.Context, code, name string) (Station, error) {
	if code == "" || name == "" {
		return Station{}, engine.ErrInvalid("code and name are required")
	}
	id, err := s.store.InsertStation(ctx, code, name)
	if err != nil {
		return Station{}, err
	}
	return Station{StationID: id, Code: code, Name: name}, nil
}

func (s *Service) ListStations(ctx context.Context) ([]Station, error) {
	return s.store.ListStations(ctx)
}

func (s *Service) CreateLocation(ctx context.Context, stationID uint64, name string) (Location, error) {
	if name == "" {
		return Location{}, engine.ErrInvalid("name is required")
	}
	id, err := s.store.InsertLocation(ctx, stationID, name)
	if err != nil {
		return Location{}, err
	}
	return Location{LocationID: id, StationID: stationID, Name: name}, nil
}

func (s *Service) ListLocations(ctx context.Context, stationID uint64) ([]Location, error) {
	return s.store.ListLocations(ctx, stationID)
}

func (s *Service) CreateCompartment(ctx context.Context, locationID uint64, name, purpose string) (Compartment, error) {
	if name == "" {
		return Compartment{}, engine.ErrInvalid("name is required")
	}
	if purpose == "" {
		purpose = PurposeStorage
	}
	if purpose != PurposeStorage && purpose != PurposeAnnulment {
		return Compartment{}, engine.ErrInvalid("purpose must be storage or annulment")
	}
	id, err := s.store.InsertCompartment(ctx, locationID, name, purpose)
	if err != nil {
		return Compartment{}, err
	}
	return Compartment{CompartmentID: id, LocationID: locationID, Name: name, Purpose: purpose}, nil
}

func (s *Service) ListCompartments(ctx context.Context, locationID uint64) ([]Compartment, error) {
	return s.store.ListCompartments(ctx, locationID)
}

func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if p.Name == "" {
		return Product{}, engine.ErrInvalid("name is required")
	}
	id, err := s.store.InsertProduct(ctx, p)
	if err != nil {
		return Product{}, err
	}
	p.ProductID = id
	return p, nil
}

func (s *Service) GetProduct(ctx context.Context, id uint64) (Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err == sql.ErrNoRows {
		return Product{}, engine.ErrNotFound("product not found")
	}
	return p, err
}

func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.store.ListProducts(ctx)
}

func (s *Service) ListStates(ctx context.Context) ([]ItemState, error) {
	return s.store.ListStates(ctx)
}
