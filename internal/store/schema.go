package store

import (
	"context"
	"database/sql"
)

// Migrate creates the EduTrack tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		roll_no    TEXT UNIQUE NOT NULL,
		section    TEXT NOT NULL DEFAULT 'A',
		coins      INTEGER NOT NULL DEFAULT 0 CHECK (coins >= 0),
		email      TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS teachers (
		id        TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		email     TEXT NOT NULL,
		subject   TEXT NOT NULL DEFAULT '',
		join_date TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS coin_transactions (
		id         TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		amount     INTEGER NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		awarded_by TEXT NOT NULL,
		reason     TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_coin_tx_student ON coin_transactions(student_id);

	CREATE TABLE IF NOT EXISTS gifts (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		cost        INTEGER NOT NULL CHECK (cost > 0),
		icon        TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		image_url   TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS redemption_requests (
		id         TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		gift_id    TEXT NOT NULL REFERENCES gifts(id),
		cost       INTEGER NOT NULL,
		requested_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		status     TEXT NOT NULL DEFAULT 'PENDING'
	);
	CREATE INDEX IF NOT EXISTS idx_redemptions_student ON redemption_requests(student_id);

	CREATE TABLE IF NOT EXISTS registration_requests (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL,
		role       TEXT NOT NULL,
		roll_no    TEXT NOT NULL DEFAULT '',
		section    TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL DEFAULT 'PENDING',
		submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS attendance_records (
		id        TEXT PRIMARY KEY,
		user_id   TEXT NOT NULL,
		role      TEXT NOT NULL,
		day       DATE NOT NULL,
		marked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		marked_by TEXT NOT NULL,
		UNIQUE (user_id, day)
	);
	CREATE INDEX IF NOT EXISTS idx_attendance_day ON attendance_records(day);

	CREATE TABLE IF NOT EXISTS reports (
		id           TEXT PRIMARY KEY,
		status       TEXT NOT NULL DEFAULT 'pending',
		content      TEXT NOT NULL DEFAULT '',
		requested_by TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS refresh_tokens (
		token      TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		role       TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked    BOOLEAN NOT NULL DEFAULT FALSE
	);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}
