package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"edutrack/internal/apperr"
	"edutrack/internal/model"
)

// Memory is an in-process backend holding every collection behind one
// lock. It implements the repository interfaces of the ledger, roster,
// attendance, gifts, and report packages, and backs STORE_BACKEND=memory
// as well as the tests.
type Memory struct {
	mu            sync.RWMutex
	students      map[string]model.Student
	teachers      map[string]model.Teacher
	transactions  []model.CoinTransaction
	gifts         map[string]model.Gift
	redemptions   map[string]model.RedemptionRequest
	registrations map[string]model.RegistrationRequest
	attendance    map[string]model.AttendanceRecord // keyed userID + "|" + date
	reports       map[string]model.Report
	refreshTokens map[string]refreshToken
}

type refreshToken struct {
	userID    string
	role      model.Role
	expiresAt time.Time
	revoked   bool
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		students:      make(map[string]model.Student),
		teachers:      make(map[string]model.Teacher),
		gifts:         make(map[string]model.Gift),
		redemptions:   make(map[string]model.RedemptionRequest),
		registrations: make(map[string]model.RegistrationRequest),
		attendance:    make(map[string]model.AttendanceRecord),
		reports:       make(map[string]model.Report),
		refreshTokens: make(map[string]refreshToken),
	}
}

func attendanceKey(userID, date string) string { return userID + "|" + date }

// ---- ledger.Repository / roster.Repository (shared reads) ----

func (m *Memory) StudentByID(_ context.Context, id string) (*model.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *Memory) ApplyAward(_ context.Context, tx model.CoinTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[tx.StudentID]
	if !ok {
		return apperr.NotFound("student %s not found", tx.StudentID)
	}
	st.Coins += tx.Amount
	m.students[tx.StudentID] = st
	m.transactions = append(m.transactions, tx)
	return nil
}

func (m *Memory) InsertRedemption(_ context.Context, req model.RedemptionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redemptions[req.ID] = req
	return nil
}

func (m *Memory) RedemptionByID(_ context.Context, id string) (*model.RedemptionRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.redemptions[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (m *Memory) ApplyRedemption(_ context.Context, req model.RedemptionRequest, tx model.CoinTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.redemptions[req.ID]
	if !ok || stored.Status != model.StatusPending {
		return apperr.InvalidState("request %s is no longer pending", req.ID)
	}
	st, ok := m.students[req.StudentID]
	if !ok || st.Coins < req.Cost {
		return apperr.InsufficientBalance("student %s cannot cover cost %d", req.StudentID, req.Cost)
	}
	st.Coins -= req.Cost
	m.students[req.StudentID] = st
	m.transactions = append(m.transactions, tx)
	stored.Status = model.StatusApproved
	m.redemptions[req.ID] = stored
	return nil
}

func (m *Memory) MarkRedemptionRejected(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.redemptions[id]
	if !ok || stored.Status != model.StatusPending {
		return apperr.InvalidState("request %s is no longer pending", id)
	}
	stored.Status = model.StatusRejected
	m.redemptions[id] = stored
	return nil
}

func (m *Memory) TransactionsByStudent(_ context.Context, studentID string) ([]model.CoinTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []model.CoinTransaction
	for _, tx := range m.transactions {
		if tx.StudentID == studentID {
			res = append(res, tx)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Timestamp.After(res[j].Timestamp) })
	return res, nil
}

func (m *Memory) ListRedemptions(_ context.Context, studentID string, status model.RequestStatus) ([]model.RedemptionRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []model.RedemptionRequest
	for _, req := range m.redemptions {
		if studentID != "" && req.StudentID != studentID {
			continue
		}
		if status != "" && req.Status != status {
			continue
		}
		res = append(res, req)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Timestamp.After(res[j].Timestamp) })
	return res, nil
}

// ---- roster.Repository ----

func (m *Memory) InsertRegistration(_ context.Context, req model.RegistrationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrations[req.ID] = req
	return nil
}

func (m *Memory) RegistrationByID(_ context.Context, id string) (*model.RegistrationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.registrations[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (m *Memory) ListRegistrations(_ context.Context, status model.RequestStatus) ([]model.RegistrationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []model.RegistrationRequest
	for _, req := range m.registrations {
		if status != "" && req.Status != status {
			continue
		}
		res = append(res, req)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Timestamp.After(res[j].Timestamp) })
	return res, nil
}

func (m *Memory) ResolveRegistration(_ context.Context, id string, status model.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.registrations[id]
	if !ok || req.Status != model.StatusPending {
		return apperr.InvalidState("request %s is no longer pending", id)
	}
	req.Status = status
	m.registrations[id] = req
	return nil
}

func (m *Memory) InsertStudent(_ context.Context, st model.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.students {
		if existing.RollNo == st.RollNo {
			return apperr.DuplicateKey("roll number %s already exists", st.RollNo)
		}
	}
	m.students[st.ID] = st
	return nil
}

func (m *Memory) RollNoExists(_ context.Context, rollNo string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, st := range m.students {
		if st.RollNo == rollNo {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListStudents(_ context.Context, search string) ([]model.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	search = strings.ToLower(search)
	var res []model.Student
	for _, st := range m.students {
		if search != "" &&
			!strings.Contains(strings.ToLower(st.Name), search) &&
			!strings.Contains(st.RollNo, search) {
			continue
		}
		res = append(res, st)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].RollNo < res[j].RollNo })
	return res, nil
}

func (m *Memory) InsertTeacher(_ context.Context, t model.Teacher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teachers[t.ID] = t
	return nil
}

func (m *Memory) TeacherByID(_ context.Context, id string) (*model.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teachers[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) ListTeachers(_ context.Context) ([]model.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []model.Teacher
	for _, t := range m.teachers {
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].JoinDate.Before(res[j].JoinDate) })
	return res, nil
}

func (m *Memory) SaveRefreshToken(_ context.Context, token, userID string, role model.Role, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshTokens[token] = refreshToken{userID: userID, role: role, expiresAt: expiresAt}
	return nil
}

func (m *Memory) RefreshTokenActive(_ context.Context, token string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.refreshTokens[token]
	return ok && !rt.revoked && rt.expiresAt.After(time.Now()), nil
}

func (m *Memory) RevokeRefreshToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rt, ok := m.refreshTokens[token]; ok {
		rt.revoked = true
		m.refreshTokens[token] = rt
	}
	return nil
}

// ---- attendance.Repository ----

func (m *Memory) AttendanceFor(_ context.Context, userID, date string) (*model.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.attendance[attendanceKey(userID, date)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) InsertAttendance(_ context.Context, rec model.AttendanceRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := attendanceKey(rec.UserID, rec.Date)
	if _, exists := m.attendance[key]; exists {
		return false, nil
	}
	m.attendance[key] = rec
	return true, nil
}

func (m *Memory) ListAttendance(_ context.Context, userID, date string, limit, offset int) ([]model.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []model.AttendanceRecord
	for _, rec := range m.attendance {
		if userID != "" && rec.UserID != userID {
			continue
		}
		if date != "" && rec.Date != date {
			continue
		}
		res = append(res, rec)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Timestamp.After(res[j].Timestamp) })
	if offset >= len(res) {
		return nil, nil
	}
	res = res[offset:]
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *Memory) SectionStats(_ context.Context) ([]model.SectionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bySection := make(map[string]*model.SectionStats)
	for _, st := range m.students {
		s, ok := bySection[st.Section]
		if !ok {
			s = &model.SectionStats{Section: st.Section}
			bySection[st.Section] = s
		}
		s.Students++
		s.Coins += st.Coins
	}
	for _, rec := range m.attendance {
		if st, ok := m.students[rec.UserID]; ok {
			if s, ok := bySection[st.Section]; ok {
				s.Attendance++
			}
		}
	}
	var res []model.SectionStats
	for _, s := range bySection {
		res = append(res, *s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Section < res[j].Section })
	return res, nil
}

func (m *Memory) Summary(_ context.Context) (model.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := model.Summary{
		TotalStudents:   len(m.students),
		TotalAttendance: len(m.attendance),
	}
	for _, st := range m.students {
		sum.TotalCoins += st.Coins
	}
	return sum, nil
}

// ---- gifts.Repository ----

func (m *Memory) InsertGift(_ context.Context, g model.Gift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gifts[g.ID] = g
	return nil
}

func (m *Memory) GiftByID(_ context.Context, id string) (*model.Gift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.gifts[id]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (m *Memory) ListGifts(_ context.Context) ([]model.Gift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []model.Gift
	for _, g := range m.gifts {
		res = append(res, g)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Cost < res[j].Cost })
	return res, nil
}

func (m *Memory) CountGifts(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.gifts), nil
}

// ---- report.Repository ----

func (m *Memory) InsertReport(_ context.Context, rep model.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[rep.ID] = rep
	return nil
}

func (m *Memory) ReportByID(_ context.Context, id string) (*model.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rep, ok := m.reports[id]
	if !ok {
		return nil, nil
	}
	return &rep, nil
}

func (m *Memory) CompleteReport(_ context.Context, id, status, content string, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rep, ok := m.reports[id]
	if !ok {
		return apperr.NotFound("report %s not found", id)
	}
	rep.Status = status
	rep.Content = content
	rep.CompletedAt = &completedAt
	m.reports[id] = rep
	return nil
}
