package roster

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"edutrack/internal/apperr"
	"edutrack/internal/model"
)

// Repository persists the roster: students, teachers, registration
// requests, and refresh tokens. InsertStudent must fail with a
// DuplicateKey kind when the roll number is already taken, and
// ResolveRegistration must fail with InvalidState unless the request is
// still PENDING.
type Repository interface {
	InsertRegistration(ctx context.Context, req model.RegistrationRequest) error
	RegistrationByID(ctx context.Context, id string) (*model.RegistrationRequest, error)
	ListRegistrations(ctx context.Context, status model.RequestStatus) ([]model.RegistrationRequest, error)
	ResolveRegistration(ctx context.Context, id string, status model.RequestStatus) error
	InsertStudent(ctx context.Context, st model.Student) error
	RollNoExists(ctx context.Context, rollNo string) (bool, error)
	StudentByID(ctx context.Context, id string) (*model.Student, error)
	ListStudents(ctx context.Context, search string) ([]model.Student, error)
	InsertTeacher(ctx context.Context, t model.Teacher) error
	TeacherByID(ctx context.Context, id string) (*model.Teacher, error)
	ListTeachers(ctx context.Context) ([]model.Teacher, error)
	SaveRefreshToken(ctx context.Context, token, userID string, role model.Role, expiresAt time.Time) error
	RefreshTokenActive(ctx context.Context, token string) (bool, error)
	RevokeRefreshToken(ctx context.Context, token string) error
}

// RegistrationInput is a signup submission before review.
type RegistrationInput struct {
	Name    string     `json:"name"`
	Email   string     `json:"email"`
	Role    model.Role `json:"role"`
	RollNo  string     `json:"roll_no"`
	Section string     `json:"section"`
}

// Service manages roster membership and the registration approval flow.
type Service struct {
	repo Repository
}

// NewService creates a roster service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SubmitRegistration files a PENDING signup for admin review.
func (s *Service) SubmitRegistration(ctx context.Context, in RegistrationInput) (model.RegistrationRequest, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if in.Name == "" || in.Email == "" {
		return model.RegistrationRequest{}, apperr.Invalid("name and email are required")
	}
	if in.Role != model.RoleStudent && in.Role != model.RoleTeacher {
		return model.RegistrationRequest{}, apperr.Invalid("role must be STUDENT or TEACHER")
	}
	if in.Role == model.RoleStudent && strings.TrimSpace(in.RollNo) == "" {
		return model.RegistrationRequest{}, apperr.Invalid("roll number is required for students")
	}

	req := model.RegistrationRequest{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Email:     in.Email,
		Role:      in.Role,
		RollNo:    strings.TrimSpace(in.RollNo),
		Section:   defaultSection(in.Section),
		Status:    model.StatusPending,
		Timestamp: time.Now().UTC(),
	}
	if err := s.repo.InsertRegistration(ctx, req); err != nil {
		return model.RegistrationRequest{}, err
	}
	return req, nil
}

// ApproveRegistration resolves a PENDING request and creates the matching
// roster entity with a fresh identity decoupled from the request id.
// Student approvals fail with DuplicateKey when the roll number is
// already taken, leaving the request PENDING and the roster untouched.
func (s *Service) ApproveRegistration(ctx context.Context, id string) (string, error) {
	req, err := s.repo.RegistrationByID(ctx, id)
	if err != nil {
		return "", err
	}
	if req == nil {
		return "", apperr.NotFound("registration request %s not found", id)
	}
	if req.Status != model.StatusPending {
		return "", apperr.InvalidState("request already %s", req.Status)
	}

	if req.Role == model.RoleStudent {
		taken, err := s.repo.RollNoExists(ctx, req.RollNo)
		if err != nil {
			return "", err
		}
		if taken {
			return "", apperr.DuplicateKey("roll number %s already exists", req.RollNo)
		}
	}

	if err := s.repo.ResolveRegistration(ctx, id, model.StatusApproved); err != nil {
		return "", err
	}

	entityID := uuid.NewString()
	switch req.Role {
	case model.RoleStudent:
		err = s.repo.InsertStudent(ctx, model.Student{
			ID:      entityID,
			Name:    req.Name,
			RollNo:  req.RollNo,
			Section: defaultSection(req.Section),
			Coins:   0,
			Email:   req.Email,
		})
	case model.RoleTeacher:
		err = s.repo.InsertTeacher(ctx, model.Teacher{
			ID:       entityID,
			Name:     req.Name,
			Email:    req.Email,
			JoinDate: time.Now().UTC(),
		})
	}
	if err != nil {
		return "", err
	}
	return entityID, nil
}

// RejectRegistration resolves a PENDING request to REJECTED.
func (s *Service) RejectRegistration(ctx context.Context, id string) error {
	req, err := s.repo.RegistrationByID(ctx, id)
	if err != nil {
		return err
	}
	if req == nil {
		return apperr.NotFound("registration request %s not found", id)
	}
	if req.Status != model.StatusPending {
		return apperr.InvalidState("request already %s", req.Status)
	}
	return s.repo.ResolveRegistration(ctx, id, model.StatusRejected)
}

// Registrations lists requests, optionally filtered by status.
func (s *Service) Registrations(ctx context.Context, status model.RequestStatus) ([]model.RegistrationRequest, error) {
	return s.repo.ListRegistrations(ctx, status)
}

// ImportStudents applies bulk-import rows. Rows missing a name or roll
// number and rows whose roll number is already taken are skipped without
// error; only the count of imported students is reported.
func (s *Service) ImportStudents(ctx context.Context, rows []model.ImportRow) (int, error) {
	imported := 0
	for _, row := range rows {
		name := strings.TrimSpace(row.Name)
		rollNo := strings.TrimSpace(row.RollNo)
		if name == "" || rollNo == "" {
			continue
		}
		taken, err := s.repo.RollNoExists(ctx, rollNo)
		if err != nil {
			return imported, err
		}
		if taken {
			continue
		}
		err = s.repo.InsertStudent(ctx, model.Student{
			ID:      uuid.NewString(),
			Name:    name,
			RollNo:  rollNo,
			Section: defaultSection(row.Section),
			Coins:   0,
		})
		if apperr.IsKind(err, apperr.KindDuplicateKey) {
			continue
		}
		if err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

// Students lists the roster, filtered by a name or roll-number search.
func (s *Service) Students(ctx context.Context, search string) ([]model.Student, error) {
	return s.repo.ListStudents(ctx, strings.TrimSpace(search))
}

// StudentByID returns one student.
func (s *Service) StudentByID(ctx context.Context, id string) (*model.Student, error) {
	st, err := s.repo.StudentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, apperr.NotFound("student %s not found", id)
	}
	return st, nil
}

// TeacherByID returns one teacher.
func (s *Service) TeacherByID(ctx context.Context, id string) (*model.Teacher, error) {
	t, err := s.repo.TeacherByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperr.NotFound("teacher %s not found", id)
	}
	return t, nil
}

// Teachers lists the teacher directory.
func (s *Service) Teachers(ctx context.Context) ([]model.Teacher, error) {
	return s.repo.ListTeachers(ctx)
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (s *Service) SaveRefreshToken(ctx context.Context, token, userID string, role model.Role, expiresAt time.Time) error {
	return s.repo.SaveRefreshToken(ctx, token, userID, role, expiresAt)
}

// RefreshTokenActive reports whether a stored refresh token is usable.
func (s *Service) RefreshTokenActive(ctx context.Context, token string) (bool, error) {
	return s.repo.RefreshTokenActive(ctx, token)
}

// RevokeRefreshToken marks a refresh token unusable.
func (s *Service) RevokeRefreshToken(ctx context.Context, token string) error {
	return s.repo.RevokeRefreshToken(ctx, token)
}

func defaultSection(section string) string {
	section = strings.TrimSpace(section)
	if section == "" {
		return "A"
	}
	return section
}
