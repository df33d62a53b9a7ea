package roster

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"edutrack/internal/apperr"
	"edutrack/internal/model"
)

// PostgresRepository persists the roster in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InsertRegistration writes a new request.
func (r *PostgresRepository) InsertRegistration(ctx context.Context, req model.RegistrationRequest) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO registration_requests (id, name, email, role, roll_no, section, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, req.ID, req.Name, req.Email, req.Role, req.RollNo, req.Section, req.Status, req.Timestamp)
	return err
}

// RegistrationByID returns a request or nil when absent.
func (r *PostgresRepository) RegistrationByID(ctx context.Context, id string) (*model.RegistrationRequest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, role, roll_no, section, status, submitted_at
		FROM registration_requests WHERE id = $1
	`, id)
	var req model.RegistrationRequest
	if err := row.Scan(&req.ID, &req.Name, &req.Email, &req.Role, &req.RollNo, &req.Section, &req.Status, &req.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

// ListRegistrations returns requests, optionally filtered by status.
func (r *PostgresRepository) ListRegistrations(ctx context.Context, status model.RequestStatus) ([]model.RegistrationRequest, error) {
	query := `
		SELECT id, name, email, role, roll_no, section, status, submitted_at
		FROM registration_requests`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY submitted_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.RegistrationRequest
	for rows.Next() {
		var req model.RegistrationRequest
		if err := rows.Scan(&req.ID, &req.Name, &req.Email, &req.Role, &req.RollNo, &req.Section, &req.Status, &req.Timestamp); err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

// ResolveRegistration moves a PENDING request to its terminal status.
func (r *PostgresRepository) ResolveRegistration(ctx context.Context, id string, status model.RequestStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE registration_requests SET status = $2
		WHERE id = $1 AND status = $3
	`, id, status, model.StatusPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.InvalidState("request %s is no longer pending", id)
	}
	return nil
}

// InsertStudent writes a new student. A roll-number collision surfaces as
// a DuplicateKey kind.
func (r *PostgresRepository) InsertStudent(ctx context.Context, st model.Student) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, name, roll_no, section, coins, email)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, st.ID, st.Name, st.RollNo, st.Section, st.Coins, st.Email)
	if isUniqueViolation(err) {
		return apperr.DuplicateKey("roll number %s already exists", st.RollNo)
	}
	return err
}

// RollNoExists reports whether a roll number is taken.
func (r *PostgresRepository) RollNoExists(ctx context.Context, rollNo string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM students WHERE roll_no = $1)
	`, rollNo).Scan(&exists)
	return exists, err
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

// ListStudents returns students, optionally filtered by a name or
// roll-number search.
func (r *PostgresRepository) ListStudents(ctx context.Context, search string) ([]model.Student, error) {
	query := `
		SELECT id, name, roll_no, section, coins, email
		FROM students`
	args := []any{}
	if search != "" {
		query += ` WHERE name ILIKE '%' || $1 || '%' OR roll_no LIKE '%' || $1 || '%'`
		args = append(args, search)
	}
	query += ` ORDER BY roll_no`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Student
	for rows.Next() {
		var st model.Student
		if err := rows.Scan(&st.ID, &st.Name, &st.RollNo, &st.Section, &st.Coins, &st.Email); err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

// InsertTeacher writes a new teacher.
func (r *PostgresRepository) InsertTeacher(ctx context.Context, t model.Teacher) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO teachers (id, name, email, subject, join_date)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, t.Name, t.Email, t.Subject, t.JoinDate)
	return err
}

// TeacherByID returns a teacher or nil when absent.
func (r *PostgresRepository) TeacherByID(ctx context.Context, id string) (*model.Teacher, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, subject, join_date
		FROM teachers WHERE id = $1
	`, id)
	var t model.Teacher
	if err := row.Scan(&t.ID, &t.Name, &t.Email, &t.Subject, &t.JoinDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// ListTeachers returns the teacher directory.
func (r *PostgresRepository) ListTeachers(ctx context.Context) ([]model.Teacher, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, subject, join_date
		FROM teachers ORDER BY join_date
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Teacher
	for rows.Next() {
		var t model.Teacher
		if err := rows.Scan(&t.ID, &t.Name, &t.Email, &t.Subject, &t.JoinDate); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *PostgresRepository) SaveRefreshToken(ctx context.Context, token, userID string, role model.Role, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, user_id, role, expires_at)
		VALUES ($1, $2, $3, $4)
	`, token, userID, role, expiresAt)
	return err
}

// RefreshTokenActive reports whether a token is stored, unexpired, and
// not revoked.
func (r *PostgresRepository) RefreshTokenActive(ctx context.Context, token string) (bool, error) {
	var active bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM refresh_tokens
			WHERE token = $1 AND NOT revoked AND expires_at > NOW()
		)
	`, token).Scan(&active)
	return active, err
}

// RevokeRefreshToken marks a token revoked.
func (r *PostgresRepository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return err
}

// isUniqueViolation detects Postgres unique-constraint errors (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
