package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"edutrack/internal/model"
)

// PostgresRepository persists attendance data in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// AttendanceFor returns the record for (user, day), or nil when absent.
func (r *PostgresRepository) AttendanceFor(ctx context.Context, userID, date string) (*model.AttendanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, role, to_char(day, 'YYYY-MM-DD'), marked_at, marked_by
		FROM attendance_records
		WHERE user_id = $1 AND day = $2::date
	`, userID, date)
	var rec model.AttendanceRecord
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Role, &rec.Date, &rec.Timestamp, &rec.MarkedBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// InsertAttendance writes a record unless one already exists for the same
// (user, day). Reports whether a row was created.
func (r *PostgresRepository) InsertAttendance(ctx context.Context, rec model.AttendanceRecord) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, user_id, role, day, marked_at, marked_by)
		VALUES ($1, $2, $3, $4::date, $5, $6)
		ON CONFLICT (user_id, day) DO NOTHING
	`, rec.ID, rec.UserID, rec.Role, rec.Date, rec.Timestamp, rec.MarkedBy)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListAttendance returns records with basic filters, newest first.
func (r *PostgresRepository) ListAttendance(ctx context.Context, userID, date string, limit, offset int) ([]model.AttendanceRecord, error) {
	query := `SELECT id, user_id, role, to_char(day, 'YYYY-MM-DD'), marked_at, marked_by FROM attendance_records`
	args := []any{}
	clauses := []string{}
	if userID != "" {
		args = append(args, userID)
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if date != "" {
		args = append(args, date)
		clauses = append(clauses, fmt.Sprintf("day = $%d::date", len(args)))
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += fmt.Sprintf(" ORDER BY marked_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.AttendanceRecord
	for rows.Next() {
		var rec model.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Role, &rec.Date, &rec.Timestamp, &rec.MarkedBy); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// SectionStats aggregates student headcount, attendance, and coins per
// section.
func (r *PostgresRepository) SectionStats(ctx context.Context) ([]model.SectionStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.section,
		       COUNT(s.id),
		       COALESCE(SUM(att.marks), 0),
		       COALESCE(SUM(s.coins), 0)
		FROM students s
		LEFT JOIN (
			SELECT user_id, COUNT(*) AS marks
			FROM attendance_records
			GROUP BY user_id
		) att ON att.user_id = s.id
		GROUP BY s.section
		ORDER BY s.section
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.SectionStats
	for rows.Next() {
		var st model.SectionStats
		if err := rows.Scan(&st.Section, &st.Students, &st.Attendance, &st.Coins); err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

// Summary returns school-wide totals for the dashboard.
func (r *PostgresRepository) Summary(ctx context.Context) (model.Summary, error) {
	var sum model.Summary
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM students),
			(SELECT COUNT(*) FROM attendance_records),
			(SELECT COALESCE(SUM(coins), 0) FROM students)
	`).Scan(&sum.TotalStudents, &sum.TotalAttendance, &sum.TotalCoins)
	return sum, err
}
