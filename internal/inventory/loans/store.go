package loans

import (
	"context"
	"database/sql"
	"time"

	"SIMS-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(d *sql.DB) *Store { return &Store{db: d} }

// ===== Txスコープの書き込み =====

func (s *Store) insertLoanTx(ctx context.Context, q db.DBTX, l Loan) (uint64, error) {
	const query = `
	INSERT INTO loans (loan_ulid, station_id, recipient, responsible_id, due_on, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := q.ExecContext(ctx, query,
		l.ULID, l.StationID, l.Recipient, l.ResponsibleID, l.DueOn, l.Status, l.CreatedAt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

func (s *Store) insertLineTx(ctx context.Context, q db.DBTX, l Line) (uint64, error) {
	const query = `
	INSERT INTO loan_lines (loan_id, asset_id, lot_id, lent, returned, lost)
	VALUES (?, ?, ?, ?, 0, 0)`
	res, err := q.ExecContext(ctx, query, l.LoanID, l.AssetID, l.LotID, l.Lent)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

func (s *Store) lockLoanTx(ctx context.Context, q db.DBTX, loanID uint64) (Loan, error) {
	const query = `
	SELECT loan_id, loan_ulid, station_id, recipient, responsible_id, due_on, returned_at, status, created_at
	FROM loans WHERE loan_id = ? FOR UPDATE`
	var l Loan
	err := q.QueryRowContext(ctx, query, loanID).Scan(
		&l.LoanID, &l.ULID, &l.StationID, &l.Recipient, &l.ResponsibleID,
		&l.DueOn, &l.ReturnedAt, &l.Status, &l.CreatedAt)
	return l, err
}

func (s *Store) lockLinesTx(ctx context.Context, q db.DBTX, loanID uint64) ([]Line, error) {
	const query = `
	SELECT line_id, loan_id, asset_id, lot_id, lent, returned, lost
	FROM loan_lines WHERE loan_id = ? ORDER BY line_id FOR UPDATE`
	rows, err := q.QueryContext(ctx, query, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLines(rows)
}

func (s *Store) updateLineTx(ctx context.Context, q db.DBTX, lineID uint64, returned, lost uint) error {
	const query = `UPDATE loan_lines SET returned = ?, lost = ? WHERE line_id = ?`
	_, err := q.ExecContext(ctx, query, returned, lost, lineID)
	return err
}

func (s *Store) updateLoanStatusTx(ctx context.Context, q db.DBTX, loanID uint64, status string, returnedAt sql.NullTime) error {
	const query = `UPDATE loans SET status = ?, returned_at = ? WHERE loan_id = ?`
	_, err := q.ExecContext(ctx, query, status, returnedAt, loanID)
	return err
}

// findOpenLineByAssetTx は未精算の貸出明細を資産から逆引きする。
// 紛失報告の照合に使う。無ければ sql.ErrNoRows。
func (s *Store) findOpenLineByAssetTx(ctx context.Context, q db.DBTX, assetID uint64) (Line, error) {
	const query = `
	SELECT line_id, loan_id, asset_id, lot_id, lent, returned, lost
	FROM loan_lines
	WHERE asset_id = ? AND returned + lost < lent
	LIMIT 1 FOR UPDATE`
	var l Line
	err := q.QueryRowContext(ctx, query, assetID).Scan(
		&l.LineID, &l.LoanID, &l.AssetID, &l.LotID, &l.Lent, &l.Returned, &l.Lost)
	return l, err
}

// ===== 読み取り =====

func (s *Store) Get(ctx context.Context, loanID uint64) (Loan, []Line, error) {
	const query = `
	SELECT loan_id, loan_ulid, station_id, recipient, responsible_id, due_on, returned_at, status, created_at
	FROM loans WHERE loan_id = ?`
	var l Loan
	if err := s.db.QueryRowContext(ctx, query, loanID).Scan(
		&l.LoanID, &l.ULID, &l.StationID, &l.Recipient, &l.ResponsibleID,
		&l.DueOn, &l.ReturnedAt, &l.Status, &l.CreatedAt); err != nil {
		return Loan{}, nil, err
	}

	const lineQuery = `
	SELECT line_id, loan_id, asset_id, lot_id, lent, returned, lost
	FROM loan_lines WHERE loan_id = ? ORDER BY line_id`
	rows, err := s.db.QueryContext(ctx, lineQuery, loanID)
	if err != nil {
		return Loan{}, nil, err
	}
	defer rows.Close()
	lines, err := scanLines(rows)
	return l, lines, err
}

func (s *Store) List(ctx context.Context, stationID *uint64, status, recipient *string, limit, offset int) ([]Loan, error) {
	query := `
	SELECT loan_id, loan_ulid, station_id, recipient, responsible_id, due_on, returned_at, status, created_at
	FROM loans`
	var conds []string
	var args []any
	if stationID != nil {
		conds = append(conds, "station_id = ?")
		args = append(args, *stationID)
	}
	if status != nil {
		conds = append(conds, "status = ?")
		args = append(args, *status)
	}
	if recipient != nil {
		conds = append(conds, "recipient = ?")
		args = append(args, *recipient)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY loan_id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Loan
	for rows.Next() {
		var l Loan
		if err := rows.Scan(&l.LoanID, &l.ULID, &l.StationID, &l.Recipient, &l.ResponsibleID,
			&l.DueOn, &l.ReturnedAt, &l.Status, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// 返却期限超過の未完了貸出。定時レポートに使う。
func (s *Store) ListOverdue(ctx context.Context, asOf time.Time) ([]Loan, error) {
	const query = `
	SELECT loan_id, loan_ulid, station_id, recipient, responsible_id, due_on, returned_at, status, created_at
	FROM loans
	WHERE status <> 'completed' AND due_on IS NOT NULL AND due_on < ?
	ORDER BY due_on`
	rows, err := s.db.QueryContext(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Loan
	for rows.Next() {
		var l Loan
		if err := rows.Scan(&l.LoanID, &l.ULID, &l.StationID, &l.Recipient, &l.ResponsibleID,
			&l.DueOn, &l.ReturnedAt, &l.Status, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLines(rows *sql.Rows) ([]Line, error) {
	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.LineID, &l.LoanID, &l.AssetID, &l.LotID, &l.Lent, &l.Returned, &l.Lost); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
