package items

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"golang.org/x/text/width"

	"SIMS-backend/internal/inventory/engine"
)

type Service struct {
	eng   *engine.Engine
	store *Store
}

func NewService(db *sql.DB, eng *engine.Engine) *Service {
	return &Service{eng: eng, store: NewStore(db)}
}

func (s *Service) Receive(ctx context.Context, req ReceiveRequest, actorID string) (ReceiveResponse, error) {
	in := engine.ReceiveInput{
		StationID:     req.StationID,
		CompartmentID: req.CompartmentID,
		ProductID:     req.ProductID,
		Kind:          req.Kind,
		Quantity:      req.Quantity,
		Serial:        normalize(req.Serial),
		LotNumber:     normalize(req.LotNumber),
		ActorID:       actorID,
		Note:          req.Note,
	}
	var err error
	if in.ExpiresOn, err = parseDate(req.ExpiresOn, "expires_on"); err != nil {
		return ReceiveResponse{}, err
	}
	if in.ManufacturedOn, err = parseDate(req.ManufacturedOn, "manufactured_on"); err != nil {
		return ReceiveResponse{}, err
	}

	ref, err := s.eng.Receive(ctx, in)
	if err != nil {
		return ReceiveResponse{}, err
	}
	return ReceiveResponse{Kind: ref.Kind, ID: ref.ID, InternalCode: ref.InternalCode}, nil
}

func (s *Service) Transfer(ctx context.Context, code string, req TransferRequest, actorID string) error {
	return s.eng.Transfer(ctx, engine.TransferInput{
		InternalCode:    code,
		ToCompartmentID: req.ToCompartmentID,
		Quantity:        req.Quantity,
		ActorID:         actorID,
		Note:            req.Note,
	})
}

func (s *Service) Annul(ctx context.Context, code, actorID, reason string) error {
	return s.eng.Annul(ctx, code, actorID, reason)
}

func (s *Service) Dispose(ctx context.Context, code, actorID, reason string) error {
	return s.eng.Dispose(ctx, code, actorID, reason)
}

func (s *Service) ReportLost(ctx context.Context, code, actorID, reason string) error {
	return s.eng.ReportLost(ctx, code, actorID, reason)
}

func (s *Service) Adjust(ctx context.Context, code string, req AdjustRequest, actorID string) error {
	return s.eng.Adjust(ctx, code, req.NewQuantity, actorID, req.Reason)
}

func (s *Service) Consume(ctx context.Context, code string, req ConsumeRequest, actorID string) error {
	return s.eng.Consume(ctx, code, req.Quantity, actorID, req.Reason)
}

func (s *Service) AddUsageHours(ctx context.Context, code string, hours uint, actorID string) error {
	return s.eng.AddUsageHours(ctx, code, hours, actorID)
}

func (s *Service) Get(ctx context.Context, code string) (ItemResponse, error) {
	it, err := s.store.GetByCode(ctx, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return ItemResponse{}, engine.ErrNotFound("item not found: " + code)
		}
		return ItemResponse{}, err
	}
	return toResponse(it), nil
}

func (s *Service) List(ctx context.Context, f Filter, p Page) (ListResponse, error) {
	rows, err := s.store.List(ctx, f, p)
	if err != nil {
		return ListResponse{}, err
	}
	out := make([]ItemResponse, 0, len(rows))
	for _, it := range rows {
		out = append(out, toResponse(it))
	}
	return ListResponse{Items: out}, nil
}

// normalize はシリアル/ロット番号の全角英数・空白ゆれを畳み込む。
// スキャナ入力とキーボード入力で表記が割れるのを防ぐ。
func normalize(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(width.Fold.String(*s))
	if v == "" {
		return nil
	}
	return &v
}

func parseDate(s *string, field string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil, engine.ErrInvalid(field + " must be formatted as YYYY-MM-DD")
	}
	return &t, nil
}
