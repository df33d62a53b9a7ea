package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"edutrack/internal/apperr"
	"edutrack/internal/model"
)

// DateLayout is the calendar-day format attendance is keyed on.
const DateLayout = "2006-01-02"

// Repository persists attendance records. InsertAttendance reports false
// when a record for the same (user, day) already exists.
type Repository interface {
	AttendanceFor(ctx context.Context, userID, date string) (*model.AttendanceRecord, error)
	InsertAttendance(ctx context.Context, rec model.AttendanceRecord) (bool, error)
	ListAttendance(ctx context.Context, userID, date string, limit, offset int) ([]model.AttendanceRecord, error)
	SectionStats(ctx context.Context) ([]model.SectionStats, error)
	Summary(ctx context.Context) (model.Summary, error)
}

var marksTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "edutrack_attendance_marked_total",
	Help: "Attendance records created.",
})

// Service coordinates attendance marking and reporting.
type Service struct {
	repo Repository
}

// NewService creates a service backed by a repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Mark records a user present for one calendar day. Marking the same
// (user, day) again is a no-op that returns the existing record, so a
// double QR scan never errors and never duplicates.
func (s *Service) Mark(ctx context.Context, actor, userID string, role model.Role, date string) (model.AttendanceRecord, bool, error) {
	if userID == "" {
		return model.AttendanceRecord{}, false, apperr.Invalid("user id is required")
	}
	if !role.Valid() {
		return model.AttendanceRecord{}, false, apperr.Invalid("unknown role %q", role)
	}
	if date == "" {
		date = time.Now().UTC().Format(DateLayout)
	} else if _, err := time.Parse(DateLayout, date); err != nil {
		return model.AttendanceRecord{}, false, apperr.Invalid("date must be YYYY-MM-DD")
	}

	rec := model.AttendanceRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Date:      date,
		Timestamp: time.Now().UTC(),
		MarkedBy:  actor,
	}
	created, err := s.repo.InsertAttendance(ctx, rec)
	if err != nil {
		return model.AttendanceRecord{}, false, err
	}
	if !created {
		existing, err := s.repo.AttendanceFor(ctx, userID, date)
		if err != nil {
			return model.AttendanceRecord{}, false, err
		}
		if existing == nil {
			return model.AttendanceRecord{}, false, apperr.Internal("attendance record for %s on %s vanished", userID, date)
		}
		return *existing, false, nil
	}
	marksTotal.Inc()
	return rec, true, nil
}

// List returns attendance records with basic filters.
func (s *Service) List(ctx context.Context, userID, date string, limit, offset int) ([]model.AttendanceRecord, error) {
	if date != "" {
		if _, err := time.Parse(DateLayout, date); err != nil {
			return nil, apperr.Invalid("date must be YYYY-MM-DD")
		}
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListAttendance(ctx, userID, date, limit, offset)
}

// SectionStats aggregates attendance counts and coin totals per section.
func (s *Service) SectionStats(ctx context.Context) ([]model.SectionStats, error) {
	return s.repo.SectionStats(ctx)
}

// Summary returns the school-wide dashboard totals.
func (s *Service) Summary(ctx context.Context) (model.Summary, error) {
	return s.repo.Summary(ctx)
}
