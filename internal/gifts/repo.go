package gifts

import (
	"context"
	"database/sql"
	"errors"

	"edutrack/internal/model"
)

// PostgresRepository persists the gift catalog in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InsertGift writes a catalog entry.
func (r *PostgresRepository) InsertGift(ctx context.Context, g model.Gift) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO gifts (id, name, cost, icon, description, image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, g.ID, g.Name, g.Cost, g.Icon, g.Description, g.ImageURL)
	return err
}

// GiftByID returns a catalog entry or nil when absent.
func (r *PostgresRepository) GiftByID(ctx context.Context, id string) (*model.Gift, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, cost, icon, description, image_url
		FROM gifts WHERE id = $1
	`, id)
	var g model.Gift
	if err := row.Scan(&g.ID, &g.Name, &g.Cost, &g.Icon, &g.Description, &g.ImageURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

// ListGifts returns the catalog ordered by cost.
func (r *PostgresRepository) ListGifts(ctx context.Context) ([]model.Gift, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, cost, icon, description, image_url
		FROM gifts ORDER BY cost
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Gift
	for rows.Next() {
		var g model.Gift
		if err := rows.Scan(&g.ID, &g.Name, &g.Cost, &g.Icon, &g.Description, &g.ImageURL); err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

// CountGifts returns the catalog size.
func (r *PostgresRepository) CountGifts(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM gifts`).Scan(&n)
	return n, err
}
