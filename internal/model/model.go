package model

import "time"

// Role identifies the kind of user acting on or tracked by the system.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleTeacher || r == RoleStudent
}

// RequestStatus is the lifecycle state shared by registration and
// redemption requests. PENDING resolves exactly once to APPROVED or
// REJECTED; both are terminal.
type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusApproved RequestStatus = "APPROVED"
	StatusRejected RequestStatus = "REJECTED"
)

// Student is a roster entry. RollNo is the school-assigned business key
// and is unique across the roster; ID is the system identity.
type Student struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	RollNo  string `json:"roll_no"`
	Section string `json:"section"`
	Coins   int    `json:"coins"`
	Email   string `json:"email,omitempty"`
}

// Teacher is a staff roster entry.
type Teacher struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Subject  string    `json:"subject,omitempty"`
	JoinDate time.Time `json:"join_date"`
}

// CoinTransaction is one immutable row of the per-student coin ledger.
// Amount is positive for awards and negative for redemption debits; the
// sum of a student's transactions equals that student's current balance.
type CoinTransaction struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Amount    int       `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	AwardedBy string    `json:"awarded_by"`
	Reason    string    `json:"reason"`
}

// Ledger reasons written by the service.
const (
	ReasonTeacherAward   = "Teacher Award"
	ReasonGiftRedemption = "GIFT_REDEMPTION"
)

// Gift is a redeemable catalog entry. Cost is in coins and always positive.
type Gift struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Cost        int    `json:"cost"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url,omitempty"`
}

// RedemptionRequest is a student's claim on a gift. Cost is snapshotted
// from the gift at request time so later catalog edits never change what
// a pending request will charge.
type RedemptionRequest struct {
	ID        string        `json:"id"`
	StudentID string        `json:"student_id"`
	GiftID    string        `json:"gift_id"`
	Cost      int           `json:"cost"`
	Timestamp time.Time     `json:"timestamp"`
	Status    RequestStatus `json:"status"`
}

// RegistrationRequest is a pending signup awaiting admin review. RollNo
// and Section are only set for student registrations.
type RegistrationRequest struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Email     string        `json:"email"`
	Role      Role          `json:"role"`
	RollNo    string        `json:"roll_no,omitempty"`
	Section   string        `json:"section,omitempty"`
	Status    RequestStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
}

// AttendanceRecord marks one user present on one calendar day. Date is a
// YYYY-MM-DD string; at most one record exists per (UserID, Date).
type AttendanceRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Date      string    `json:"date"`
	Timestamp time.Time `json:"timestamp"`
	MarkedBy  string    `json:"marked_by"`
}

// Report lifecycle states.
const (
	ReportPending   = "pending"
	ReportCompleted = "completed"
	ReportFailed    = "failed"
)

// Report is an AI-generated school summary produced by the worker.
type Report struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Content     string     `json:"content,omitempty"`
	RequestedBy string     `json:"requested_by"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SectionStats aggregates engagement per section for dashboards and
// report prompts.
type SectionStats struct {
	Section    string `json:"section"`
	Students   int    `json:"students"`
	Attendance int    `json:"attendance"`
	Coins      int    `json:"coins"`
}

// Summary holds the school-wide dashboard totals.
type Summary struct {
	TotalStudents   int `json:"total_students"`
	TotalAttendance int `json:"total_attendance"`
	TotalCoins      int `json:"total_coins"`
}

// ImportRow is one parsed line of a student bulk-import file.
type ImportRow struct {
	Name    string
	RollNo  string
	Section string
}
