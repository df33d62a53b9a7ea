package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"edutrack/internal/apperr"
	"edutrack/internal/model"
)

// Repository persists the coin economy: student balances, the append-only
// transaction log, and redemption requests. ApplyAward and ApplyRedemption
// must be atomic: balance change and ledger row land together or not at
// all, and ApplyRedemption must fail with an InvalidState or
// InsufficientBalance kind when its guards do not hold.
type Repository interface {
	StudentByID(ctx context.Context, id string) (*model.Student, error)
	ApplyAward(ctx context.Context, tx model.CoinTransaction) error
	InsertRedemption(ctx context.Context, req model.RedemptionRequest) error
	RedemptionByID(ctx context.Context, id string) (*model.RedemptionRequest, error)
	ApplyRedemption(ctx context.Context, req model.RedemptionRequest, tx model.CoinTransaction) error
	MarkRedemptionRejected(ctx context.Context, id string) error
	TransactionsByStudent(ctx context.Context, studentID string) ([]model.CoinTransaction, error)
	ListRedemptions(ctx context.Context, studentID string, status model.RequestStatus) ([]model.RedemptionRequest, error)
}

// Catalog is the read-only view of the gift store the ledger needs.
type Catalog interface {
	GiftByID(ctx context.Context, id string) (*model.Gift, error)
}

// Service owns the coin economy rules. It holds no entity state of its
// own; every call reads through the repository and writes back.
type Service struct {
	repo    Repository
	catalog Catalog
	locks   keyedLocks
}

// NewService creates a ledger service.
func NewService(repo Repository, catalog Catalog) *Service {
	return &Service{repo: repo, catalog: catalog}
}

// keyedLocks serializes balance mutations per student. Award and approval
// both read-then-write coins, so interleaving them on one student would
// lose updates.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocks) forKey(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	return l
}

// AwardCoins credits amount to a student and appends the matching ledger
// row. Amount must be positive; debits are only ever written by
// redemption approval.
func (s *Service) AwardCoins(ctx context.Context, actor, studentID string, amount int) (model.CoinTransaction, error) {
	if studentID == "" {
		return model.CoinTransaction{}, apperr.Invalid("student id is required")
	}
	if amount <= 0 {
		return model.CoinTransaction{}, apperr.Invalid("amount must be a positive integer")
	}

	lock := s.locks.forKey(studentID)
	lock.Lock()
	defer lock.Unlock()

	student, err := s.repo.StudentByID(ctx, studentID)
	if err != nil {
		return model.CoinTransaction{}, err
	}
	if student == nil {
		return model.CoinTransaction{}, apperr.NotFound("student %s not found", studentID)
	}

	tx := model.CoinTransaction{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
		AwardedBy: actor,
		Reason:    model.ReasonTeacherAward,
	}
	if err := s.repo.ApplyAward(ctx, tx); err != nil {
		return model.CoinTransaction{}, err
	}
	coinsAwarded.Add(float64(amount))
	return tx, nil
}

// RequestRedemption files a PENDING claim on a gift. The gift cost is
// snapshotted onto the request so later catalog price changes do not
// affect it.
func (s *Service) RequestRedemption(ctx context.Context, studentID, giftID string) (model.RedemptionRequest, error) {
	if studentID == "" || giftID == "" {
		return model.RedemptionRequest{}, apperr.Invalid("student id and gift id are required")
	}

	student, err := s.repo.StudentByID(ctx, studentID)
	if err != nil {
		return model.RedemptionRequest{}, err
	}
	if student == nil {
		return model.RedemptionRequest{}, apperr.NotFound("student %s not found", studentID)
	}

	gift, err := s.catalog.GiftByID(ctx, giftID)
	if err != nil {
		return model.RedemptionRequest{}, err
	}
	if gift == nil {
		return model.RedemptionRequest{}, apperr.NotFound("gift %s not found", giftID)
	}

	if student.Coins < gift.Cost {
		return model.RedemptionRequest{}, apperr.InsufficientBalance(
			"%s has %d coins, gift costs %d", student.Name, student.Coins, gift.Cost)
	}

	req := model.RedemptionRequest{
		ID:        uuid.NewString(),
		StudentID: studentID,
		GiftID:    giftID,
		Cost:      gift.Cost,
		Timestamp: time.Now().UTC(),
		Status:    model.StatusPending,
	}
	if err := s.repo.InsertRedemption(ctx, req); err != nil {
		return model.RedemptionRequest{}, err
	}
	return req, nil
}

// ApproveRedemption resolves a PENDING request: it re-checks the balance
// (coins may have been spent since the request was filed), debits exactly
// the snapshotted cost, appends the debit row, and marks the request
// APPROVED. A failed balance re-check leaves the request PENDING so an
// admin can reject or retry later. Resolving a request twice fails with
// InvalidState and never charges twice.
func (s *Service) ApproveRedemption(ctx context.Context, actor, requestID string) (model.RedemptionRequest, error) {
	if requestID == "" {
		return model.RedemptionRequest{}, apperr.Invalid("request id is required")
	}

	req, err := s.repo.RedemptionByID(ctx, requestID)
	if err != nil {
		return model.RedemptionRequest{}, err
	}
	if req == nil {
		return model.RedemptionRequest{}, apperr.NotFound("redemption request %s not found", requestID)
	}
	if req.Status != model.StatusPending {
		return model.RedemptionRequest{}, apperr.InvalidState("request already %s", req.Status)
	}

	lock := s.locks.forKey(req.StudentID)
	lock.Lock()
	defer lock.Unlock()

	student, err := s.repo.StudentByID(ctx, req.StudentID)
	if err != nil {
		return model.RedemptionRequest{}, err
	}
	if student == nil {
		return model.RedemptionRequest{}, apperr.NotFound("student %s not found", req.StudentID)
	}
	if student.Coins < req.Cost {
		return model.RedemptionRequest{}, apperr.InsufficientBalance(
			"cannot approve: %s has %d coins, request costs %d", student.Name, student.Coins, req.Cost)
	}

	tx := model.CoinTransaction{
		ID:        uuid.NewString(),
		StudentID: req.StudentID,
		Amount:    -req.Cost,
		Timestamp: time.Now().UTC(),
		AwardedBy: actor,
		Reason:    model.ReasonGiftRedemption,
	}
	if err := s.repo.ApplyRedemption(ctx, *req, tx); err != nil {
		return model.RedemptionRequest{}, err
	}
	redemptionsResolved.WithLabelValues("approved").Inc()

	req.Status = model.StatusApproved
	return *req, nil
}

// RejectRedemption transitions PENDING to REJECTED with no balance effect.
func (s *Service) RejectRedemption(ctx context.Context, requestID string) error {
	if requestID == "" {
		return apperr.Invalid("request id is required")
	}
	req, err := s.repo.RedemptionByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req == nil {
		return apperr.NotFound("redemption request %s not found", requestID)
	}
	if req.Status != model.StatusPending {
		return apperr.InvalidState("request already %s", req.Status)
	}
	if err := s.repo.MarkRedemptionRejected(ctx, requestID); err != nil {
		return err
	}
	redemptionsResolved.WithLabelValues("rejected").Inc()
	return nil
}

// Transactions returns a student's ledger history.
func (s *Service) Transactions(ctx context.Context, studentID string) ([]model.CoinTransaction, error) {
	student, err := s.repo.StudentByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, apperr.NotFound("student %s not found", studentID)
	}
	return s.repo.TransactionsByStudent(ctx, studentID)
}

// Redemptions lists redemption requests, optionally filtered by student
// and status. Empty filters match everything.
func (s *Service) Redemptions(ctx context.Context, studentID string, status model.RequestStatus) ([]model.RedemptionRequest, error) {
	return s.repo.ListRedemptions(ctx, studentID, status)
}
