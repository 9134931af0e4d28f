package loans

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"SIMS-backend/internal/inventory/engine"
	"SIMS-backend/internal/platform/db"
)

type Service struct {
	db    *sql.DB
	store *Store
	eng   *engine.Engine
}

func NewService(d *sql.DB, eng *engine.Engine) *Service {
	return &Service{db: d, store: NewStore(d), eng: eng}
}

// CreateLoan は貸出伝票と全明細を1トランザクションで作る。
// 1明細でも引当に失敗したら全体をロールバックする。
func (s *Service) CreateLoan(ctx context.Context, req CreateLoanRequest, actorID string) (LoanResponse, error) {
	if actorID == "" {
		return LoanResponse{}, engine.ErrInvalid("actor_id is required")
	}
	dueOn, err := parseDueOn(req.DueOn)
	if err != nil {
		return LoanResponse{}, err
	}

	now := time.Now().UTC()
	loan := Loan{
		ULID:          newULID(now),
		StationID:     req.StationID,
		Recipient:     req.Recipient,
		ResponsibleID: actorID,
		DueOn:         dueOn,
		Status:        StatusPending,
		CreatedAt:     now,
	}
	var lines []Line

	err = db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		loanID, err := s.store.insertLoanTx(ctx, tx, loan)
		if err != nil {
			return err
		}
		loan.LoanID = loanID

		note := "loan to " + req.Recipient
		for _, lr := range req.Lines {
			ref, err := s.eng.LendItemTx(ctx, tx, lr.ItemCode, lr.Quantity, actorID, note)
			if err != nil {
				return err
			}
			if ref.StationID != req.StationID {
				return engine.ErrInvalid(fmt.Sprintf("item %s belongs to another station", lr.ItemCode))
			}

			line := Line{LoanID: loanID}
			if ref.Kind == engine.KindAsset {
				line.AssetID = sql.NullInt64{Int64: int64(ref.ID), Valid: true}
				line.Lent = 1
			} else {
				line.LotID = sql.NullInt64{Int64: int64(ref.ID), Valid: true}
				line.Lent = lr.Quantity
			}
			lineID, err := s.store.insertLineTx(ctx, tx, line)
			if err != nil {
				return err
			}
			line.LineID = lineID
			lines = append(lines, line)
		}
		return nil
	})
	if err != nil {
		return LoanResponse{}, err
	}
	return toResponse(loan, lines), nil
}

// Settle は部分返却・紛失の混在精算。精算済み明細の指定は冪等な無視。
func (s *Service) Settle(ctx context.Context, loanID uint64, req SettleRequest, actorID string) (LoanResponse, error) {
	if actorID == "" {
		return LoanResponse{}, engine.ErrInvalid("actor_id is required")
	}

	var loan Loan
	var lines []Line
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		var err error
		loan, err = s.store.lockLoanTx(ctx, tx, loanID)
		if err != nil {
			if err == sql.ErrNoRows {
				return engine.ErrNotFound("loan not found")
			}
			return err
		}
		lines, err = s.store.lockLinesTx(ctx, tx, loanID)
		if err != nil {
			return err
		}
		byID := make(map[uint64]*Line, len(lines))
		for i := range lines {
			byID[lines[i].LineID] = &lines[i]
		}

		for _, st := range req.Settlements {
			line, ok := byID[st.LineID]
			if !ok {
				return engine.ErrNotFound(fmt.Sprintf("line %d is not part of loan %d", st.LineID, loanID))
			}
			if settled(*line) {
				continue
			}
			if err := validateSettlement(*line, st.ReturnQty, st.LossQty); err != nil {
				return err
			}
			if err := s.applyLineTx(ctx, tx, line, st, actorID); err != nil {
				return err
			}
			line.Returned += st.ReturnQty
			line.Lost += st.LossQty
			if err := s.store.updateLineTx(ctx, tx, line.LineID, line.Returned, line.Lost); err != nil {
				return err
			}
		}

		loan.Status = recomputeStatus(lines)
		if loan.Status == StatusCompleted && !loan.ReturnedAt.Valid {
			loan.ReturnedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
		}
		return s.store.updateLoanStatusTx(ctx, tx, loanID, loan.Status, loan.ReturnedAt)
	})
	if err != nil {
		return LoanResponse{}, err
	}
	return toResponse(loan, lines), nil
}

func (s *Service) applyLineTx(ctx context.Context, tx db.DBTX, line *Line, st LineSettlement, actorID string) error {
	if line.AssetID.Valid {
		assetID := uint64(line.AssetID.Int64)
		if st.ReturnQty == 1 {
			return s.eng.ReturnAssetTx(ctx, tx, assetID, actorID, "loan return")
		}
		// 紛失計上。明細更新は呼び出し側で行うので再照合ループには入らない。
		return s.eng.LoseLentAssetTx(ctx, tx, assetID, actorID, "declared lost at settlement")
	}

	lotID := uint64(line.LotID.Int64)
	if st.ReturnQty > 0 {
		if err := s.eng.ReturnLotTx(ctx, tx, lotID, st.ReturnQty, actorID, "loan return"); err != nil {
			return err
		}
	}
	if st.LossQty > 0 {
		// 返却ゼロで明細が精算完了する場合のみ残量を利用可能へ戻す
		// （返却があれば ReturnLotTx が既に状態を戻している）。
		willSettle := line.Returned+st.ReturnQty+line.Lost+st.LossQty >= line.Lent
		restore := willSettle && st.ReturnQty == 0
		if err := s.eng.LoseLentLotTx(ctx, tx, lotID, actorID, "declared lost at settlement", restore); err != nil {
			return err
		}
	}
	return nil
}

// SettleLostAssetTx は紛失報告からの逆照合。貸出中資産の未精算明細を
// 紛失で埋め、貸出ステータスを再導出する。engine.LoanReconciler の実装。
func (s *Service) SettleLostAssetTx(ctx context.Context, q db.DBTX, assetID uint64, actorID string) error {
	line, err := s.store.findOpenLineByAssetTx(ctx, q, assetID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return err
	}

	outstanding := line.Lent - line.Returned - line.Lost
	if err := s.store.updateLineTx(ctx, q, line.LineID, line.Returned, line.Lost+outstanding); err != nil {
		return err
	}

	loan, err := s.store.lockLoanTx(ctx, q, line.LoanID)
	if err != nil {
		return err
	}
	lines, err := s.store.lockLinesTx(ctx, q, line.LoanID)
	if err != nil {
		return err
	}
	status := recomputeStatus(lines)
	returnedAt := loan.ReturnedAt
	if status == StatusCompleted && !returnedAt.Valid {
		returnedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}
	return s.store.updateLoanStatusTx(ctx, q, line.LoanID, status, returnedAt)
}

func (s *Service) Get(ctx context.Context, loanID uint64) (LoanResponse, error) {
	loan, lines, err := s.store.Get(ctx, loanID)
	if err != nil {
		if err == sql.ErrNoRows {
			return LoanResponse{}, engine.ErrNotFound("loan not found")
		}
		return LoanResponse{}, err
	}
	return toResponse(loan, lines), nil
}

func (s *Service) List(ctx context.Context, stationID *uint64, status, recipient *string, limit, offset int) ([]LoanResponse, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.store.List(ctx, stationID, status, recipient, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]LoanResponse, 0, len(rows))
	for _, l := range rows {
		out = append(out, toResponse(l, nil))
	}
	return out, nil
}

func (s *Service) ListOverdue(ctx context.Context, asOf time.Time) ([]LoanResponse, error) {
	rows, err := s.store.ListOverdue(ctx, asOf)
	if err != nil {
		return nil, err
	}
	out := make([]LoanResponse, 0, len(rows))
	for _, l := range rows {
		out = append(out, toResponse(l, nil))
	}
	return out, nil
}

func parseDueOn(s *string) (sql.NullTime, error) {
	if s == nil || *s == "" {
		return sql.NullTime{}, nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return sql.NullTime{}, engine.ErrInvalid("due_on must be formatted as YYYY-MM-DD")
	}
	return sql.NullTime{Time: t, Valid: true}, nil
}

func newULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
