package report

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"edutrack/internal/model"
)

// Repository persists generated reports.
type Repository interface {
	InsertReport(ctx context.Context, rep model.Report) error
	ReportByID(ctx context.Context, id string) (*model.Report, error)
	CompleteReport(ctx context.Context, id, status, content string, completedAt time.Time) error
}

// PostgresRepository persists reports in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InsertReport writes a new pending report.
func (r *PostgresRepository) InsertReport(ctx context.Context, rep model.Report) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reports (id, status, content, requested_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rep.ID, rep.Status, rep.Content, rep.RequestedBy, rep.CreatedAt)
	return err
}

// ReportByID returns a report or nil when absent.
func (r *PostgresRepository) ReportByID(ctx context.Context, id string) (*model.Report, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, status, content, requested_by, created_at, completed_at
		FROM reports WHERE id = $1
	`, id)
	var rep model.Report
	if err := row.Scan(&rep.ID, &rep.Status, &rep.Content, &rep.RequestedBy, &rep.CreatedAt, &rep.CompletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rep, nil
}

// CompleteReport records the outcome of a generation attempt.
func (r *PostgresRepository) CompleteReport(ctx context.Context, id, status, content string, completedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reports SET status = $2, content = $3, completed_at = $4
		WHERE id = $1
	`, id, status, content, completedAt)
	return err
}
