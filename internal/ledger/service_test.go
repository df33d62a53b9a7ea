package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edutrack/internal/apperr"
	"edutrack/internal/gifts"
	"edutrack/internal/ledger"
	"edutrack/internal/model"
	"edutrack/internal/store"
)

func newLedger(t *testing.T) (*ledger.Service, *gifts.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	catalog := gifts.NewService(mem)
	return ledger.NewService(mem, catalog), catalog, mem
}

func seedStudent(t *testing.T, mem *store.Memory, coins int) model.Student {
	t.Helper()
	st := model.Student{ID: uuid.NewString(), Name: "Asha", RollNo: uuid.NewString(), Section: "A"}
	require.NoError(t, mem.InsertStudent(context.Background(), st))
	if coins > 0 {
		require.NoError(t, mem.ApplyAward(context.Background(), model.CoinTransaction{
			ID: uuid.NewString(), StudentID: st.ID, Amount: coins, Reason: model.ReasonTeacherAward,
		}))
		st.Coins = coins
	}
	return st
}

func balance(t *testing.T, mem *store.Memory, studentID string) int {
	t.Helper()
	st, err := mem.StudentByID(context.Background(), studentID)
	require.NoError(t, err)
	require.NotNil(t, st)
	return st.Coins
}

func TestAwardCoins(t *testing.T) {
	svc, _, mem := newLedger(t)
	ctx := context.Background()
	st := seedStudent(t, mem, 0)

	tx, err := svc.AwardCoins(ctx, "teacher-1", st.ID, 50)
	require.NoError(t, err)
	assert.Equal(t, 50, tx.Amount)
	assert.Equal(t, model.ReasonTeacherAward, tx.Reason)
	assert.Equal(t, "teacher-1", tx.AwardedBy)
	assert.Equal(t, 50, balance(t, mem, st.ID))
}

func TestAwardCoinsValidation(t *testing.T) {
	svc, _, mem := newLedger(t)
	ctx := context.Background()
	st := seedStudent(t, mem, 0)

	_, err := svc.AwardCoins(ctx, "teacher-1", st.ID, 0)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidArgument))

	_, err = svc.AwardCoins(ctx, "teacher-1", st.ID, -10)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidArgument))

	_, err = svc.AwardCoins(ctx, "teacher-1", "no-such-student", 10)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	assert.Equal(t, 0, balance(t, mem, st.ID))
}

// Balance always equals the sum of the student's ledger rows.
func TestBalanceMatchesTransactionSum(t *testing.T) {
	svc, catalog, mem := newLedger(t)
	ctx := context.Background()
	st := seedStudent(t, mem, 0)

	for _, amount := range []int{100, 250, 30} {
		_, err := svc.AwardCoins(ctx, "teacher-1", st.ID, amount)
		require.NoError(t, err)
	}

	gift, err := catalog.AddGift(ctx, gifts.GiftInput{Name: "Water Bottle", Cost: 300})
	require.NoError(t, err)
	req, err := svc.RequestRedemption(ctx, st.ID, gift.ID)
	require.NoError(t, err)
	_, err = svc.ApproveRedemption(ctx, "admin", req.ID)
	require.NoError(t, err)

	txs, err := svc.Transactions(ctx, st.ID)
	require.NoError(t, err)
	sum := 0
	for _, tx := range txs {
		sum += tx.Amount
	}
	assert.Equal(t, sum, balance(t, mem, st.ID))
	assert.Equal(t, 80, sum)
}

func TestRequestRedemptionInsufficientBalance(t *testing.T) {
	svc, catalog, mem := newLedger(t)
	ctx := context.Background()
	st := seedStudent(t, mem, 250)

	gift, err := catalog.AddGift(ctx, gifts.GiftInput{Name: "School Cap", Cost: 300})
	require.NoError(t, err)

	_, err = svc.RequestRedemption(ctx, st.ID, gift.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficientBalance))

	// Topping up past the cost makes the same request succeed.
	_, err = svc.AwardCoins(ctx, "teacher-1", st.ID, 100)
	require.NoError(t, err)
	req, err := svc.RequestRedemption(ctx, st.ID, gift.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, req.Status)
	assert.Equal(t, 300, req.Cost)

	// Filing the request does not spend anything yet.
	assert.Equal(t, 350, balance(t, mem, st.ID))
}

func TestRedemptionCostSnapshot(t *testing.T) {
	svc, catalog, mem := newLedger(t)
	ctx := context.Background()
	st := seedStudent(t, mem, 500)

	gift, err := catalog.AddGift(ctx, gifts.GiftInput{Name: "Gel Pen Set", Cost: 200})
	require.NoError(t, err)
	req, err := svc.RequestRedemption(ctx, st.ID, gift.ID)
	require.NoError(t, err)

	// A later catalog price change must not affect the pending request.
	pricier := gift
	pricier.Cost = 450
	require.NoError(t, mem.InsertGift(ctx, pricier))

	approved, err := svc.ApproveRedemption(ctx, "admin", req.ID)
	require.NoError(t, err)
	assert.Equal(t, 200, approved.Cost)
	assert.Equal(t, 300, balance(t, mem, st.ID))
}

func TestApproveRedemption(t *testing.T) {
	svc, catalog, mem := newLedger(t)
	ctx := context.Background()
	st := seedStudent(t, mem, 350)

	gift, err := catalog.AddGift(ctx, gifts.GiftInput{Name: "Water Bottle", Cost: 300})
	require.NoError(t, err)
	req, err := svc.RequestRedemption(ctx, st.ID, gift.ID)
	require.NoError(t, err)

	approved, err := svc.ApproveRedemption(ctx, "admin", req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, approved.Status)
	assert.Equal(t, 50, balance(t, mem, st.ID))

	txs, err := svc.Transactions(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	var debit *model.CoinTransaction
	for i := range txs {
		if txs[i].Amount < 0 {
			debit = &txs[i]
		}
	}
	require.NotNil(t, debit)
	assert.Equal(t, -300, debit.Amount)
	assert.Equal(t, model.ReasonGiftRedemption, debit.Reason)

	// A second approval must not charge again.
	_, err = svc.ApproveRedemption(ctx, "admin", req.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
	assert.Equal(t, 50, balance(t, mem, st.ID))
}

// Coins spent between request and approval fail the re-check but leave
// the request PENDING for a later retry.
func TestApproveRedemptionBalanceRecheck(t *testing.T) {
	svc, catalog, mem := newLedger(t)
	ctx := context.Background()
	st := seedStudent(t, mem, 300)

	capGift, err := catalog.AddGift(ctx, gifts.GiftInput{Name: "School Cap", Cost: 300})
	require.NoError(t, err)
	notebook, err := catalog.AddGift(ctx, gifts.GiftInput{Name: "Premium Notebook", Cost: 100})
	require.NoError(t, err)

	capReq, err := svc.RequestRedemption(ctx, st.ID, capGift.ID)
	require.NoError(t, err)
	nbReq, err := svc.RequestRedemption(ctx, st.ID, notebook.ID)
	require.NoError(t, err)

	_, err = svc.ApproveRedemption(ctx, "admin", nbReq.ID)
	require.NoError(t, err)
	assert.Equal(t, 200, balance(t, mem, st.ID))

	_, err = svc.ApproveRedemption(ctx, "admin", capReq.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficientBalance))

	pending, err := mem.RedemptionByID(ctx, capReq.ID)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, model.StatusPending, pending.Status)

	// Top up and retry the same request.
	_, err = svc.AwardCoins(ctx, "teacher-1", st.ID, 100)
	require.NoError(t, err)
	_, err = svc.ApproveRedemption(ctx, "admin", capReq.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, balance(t, mem, st.ID))
}

func TestRejectRedemption(t *testing.T) {
	svc, catalog, mem := newLedger(t)
	ctx := context.Background()
	st := seedStudent(t, mem, 300)

	gift, err := catalog.AddGift(ctx, gifts.GiftInput{Name: "Water Bottle", Cost: 300})
	require.NoError(t, err)
	req, err := svc.RequestRedemption(ctx, st.ID, gift.ID)
	require.NoError(t, err)

	require.NoError(t, svc.RejectRedemption(ctx, req.ID))
	assert.Equal(t, 300, balance(t, mem, st.ID))

	err = svc.RejectRedemption(ctx, req.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
	_, err = svc.ApproveRedemption(ctx, "admin", req.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
}

func TestConcurrentAwardsDoNotLoseUpdates(t *testing.T) {
	svc, _, mem := newLedger(t)
	ctx := context.Background()
	st := seedStudent(t, mem, 0)

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.AwardCoins(ctx, "teacher-1", st.ID, 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*10, balance(t, mem, st.ID))
	txs, err := svc.Transactions(ctx, st.ID)
	require.NoError(t, err)
	assert.Len(t, txs, workers)
}

func TestRedemptionsFilter(t *testing.T) {
	svc, catalog, mem := newLedger(t)
	ctx := context.Background()
	a := seedStudent(t, mem, 500)
	b := seedStudent(t, mem, 500)

	gift, err := catalog.AddGift(ctx, gifts.GiftInput{Name: "Premium Notebook", Cost: 100})
	require.NoError(t, err)

	reqA, err := svc.RequestRedemption(ctx, a.ID, gift.ID)
	require.NoError(t, err)
	_, err = svc.RequestRedemption(ctx, b.ID, gift.ID)
	require.NoError(t, err)
	_, err = svc.ApproveRedemption(ctx, "admin", reqA.ID)
	require.NoError(t, err)

	all, err := svc.Redemptions(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyA, err := svc.Redemptions(ctx, a.ID, "")
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	assert.Equal(t, model.StatusApproved, onlyA[0].Status)

	pending, err := svc.Redemptions(ctx, "", model.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].StudentID)
}
