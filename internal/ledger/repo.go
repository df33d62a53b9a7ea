package ledger

import (
	"context"
	"database/sql"
	"errors"

	"edutrack/internal/apperr"
	"edutrack/internal/model"
)

// PostgresRepository persists the coin economy in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// StudentByID returns a student or nil when absent.
func (r *PostgresRepository) StudentByID(ctx context.Context, id string) (*model.Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, roll_no, section, coins, email
		FROM students WHERE id = $1
	`, id)
	var st model.Student
	if err := row.Scan(&st.ID, &st.Name, &st.RollNo, &st.Section, &st.Coins, &st.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// ApplyAward credits the student and appends the ledger row in one
// transaction.
func (r *PostgresRepository) ApplyAward(ctx context.Context, tx model.CoinTransaction) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	res, err := dbTx.ExecContext(ctx, `
		UPDATE students SET coins = coins + $2 WHERE id = $1
	`, tx.StudentID, tx.Amount)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("student %s not found", tx.StudentID)
	}

	if _, err := dbTx.ExecContext(ctx, `
		INSERT INTO coin_transactions (id, student_id, amount, occurred_at, awarded_by, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tx.ID, tx.StudentID, tx.Amount, tx.Timestamp, tx.AwardedBy, tx.Reason); err != nil {
		return err
	}
	return dbTx.Commit()
}

// InsertRedemption writes a new PENDING request.
func (r *PostgresRepository) InsertRedemption(ctx context.Context, req model.RedemptionRequest) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO redemption_requests (id, student_id, gift_id, cost, requested_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, req.ID, req.StudentID, req.GiftID, req.Cost, req.Timestamp, req.Status)
	return err
}

// RedemptionByID returns a request or nil when absent.
func (r *PostgresRepository) RedemptionByID(ctx context.Context, id string) (*model.RedemptionRequest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, gift_id, cost, requested_at, status
		FROM redemption_requests WHERE id = $1
	`, id)
	var req model.RedemptionRequest
	if err := row.Scan(&req.ID, &req.StudentID, &req.GiftID, &req.Cost, &req.Timestamp, &req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

// ApplyRedemption resolves a PENDING request to APPROVED, debits the
// snapshotted cost, and appends the debit row. All three writes are
// guarded so a concurrent resolution or a drained balance rolls the whole
// thing back.
func (r *PostgresRepository) ApplyRedemption(ctx context.Context, req model.RedemptionRequest, tx model.CoinTransaction) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	res, err := dbTx.ExecContext(ctx, `
		UPDATE redemption_requests SET status = $2
		WHERE id = $1 AND status = $3
	`, req.ID, model.StatusApproved, model.StatusPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.InvalidState("request %s is no longer pending", req.ID)
	}

	res, err = dbTx.ExecContext(ctx, `
		UPDATE students SET coins = coins - $2
		WHERE id = $1 AND coins >= $2
	`, req.StudentID, req.Cost)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.InsufficientBalance("student %s cannot cover cost %d", req.StudentID, req.Cost)
	}

	if _, err := dbTx.ExecContext(ctx, `
		INSERT INTO coin_transactions (id, student_id, amount, occurred_at, awarded_by, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tx.ID, tx.StudentID, tx.Amount, tx.Timestamp, tx.AwardedBy, tx.Reason); err != nil {
		return err
	}
	return dbTx.Commit()
}

// MarkRedemptionRejected resolves a PENDING request to REJECTED.
func (r *PostgresRepository) MarkRedemptionRejected(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE redemption_requests SET status = $2
		WHERE id = $1 AND status = $3
	`, id, model.StatusRejected, model.StatusPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.InvalidState("request %s is no longer pending", id)
	}
	return nil
}

// TransactionsByStudent returns a student's ledger rows, newest first.
func (r *PostgresRepository) TransactionsByStudent(ctx context.Context, studentID string) ([]model.CoinTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, amount, occurred_at, awarded_by, reason
		FROM coin_transactions
		WHERE student_id = $1
		ORDER BY occurred_at DESC
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.CoinTransaction
	for rows.Next() {
		var tx model.CoinTransaction
		if err := rows.Scan(&tx.ID, &tx.StudentID, &tx.Amount, &tx.Timestamp, &tx.AwardedBy, &tx.Reason); err != nil {
			return nil, err
		}
		res = append(res, tx)
	}
	return res, rows.Err()
}

// ListRedemptions returns requests with optional student/status filters.
func (r *PostgresRepository) ListRedemptions(ctx context.Context, studentID string, status model.RequestStatus) ([]model.RedemptionRequest, error) {
	query := `SELECT id, student_id, gift_id, cost, requested_at, status FROM redemption_requests`
	args := []any{}
	clauses := []string{}
	if studentID != "" {
		args = append(args, studentID)
		clauses = append(clauses, "student_id = $1")
	}
	if status != "" {
		args = append(args, status)
		if len(args) == 1 {
			clauses = append(clauses, "status = $1")
		} else {
			clauses = append(clauses, "status = $2")
		}
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY requested_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.RedemptionRequest
	for rows.Next() {
		var req model.RedemptionRequest
		if err := rows.Scan(&req.ID, &req.StudentID, &req.GiftID, &req.Cost, &req.Timestamp, &req.Status); err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}
