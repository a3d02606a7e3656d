package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"payrecon/kit/db"
)

type storeFactory func(t *testing.T) StoreContract

func runStoreSuite(t *testing.T, newStore storeFactory) {
	t.Run("accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("record transaction", func(t *testing.T) { testRecordTransaction(t, newStore(t)) })
	t.Run("update status", func(t *testing.T) { testUpdateTransactionStatus(t, newStore(t)) })
	t.Run("list transactions", func(t *testing.T) { testListTransactions(t, newStore(t)) })
	t.Run("reserve payout", func(t *testing.T) { testReservePayout(t, newStore(t)) })
	t.Run("concurrent reservations", func(t *testing.T) { testConcurrentReservations(t, newStore(t)) })
	t.Run("release payout", func(t *testing.T) { testReleasePayout(t, newStore(t)) })
	t.Run("settle deposit", func(t *testing.T) { testSettleDeposit(t, newStore(t)) })
	t.Run("attach external ref", func(t *testing.T) { testAttachExternalRef(t, newStore(t)) })
	t.Run("list pending", func(t *testing.T) { testListPending(t, newStore(t)) })
	t.Run("mark stuck", func(t *testing.T) { testMarkStuck(t, newStore(t)) })
}

func newAccount(t *testing.T, s StoreContract, balance int64) string {
	t.Helper()
	ctx := context.Background()
	id := "acct-" + NewID()
	_, err := s.OpenAccount(ctx, id)
	require.NoError(t, err)
	if balance > 0 {
		require.NoError(t, s.Credit(ctx, id, balance))
	}
	return id
}

func pendingPayout(accountID string, amount int64) *Transaction {
	return &Transaction{
		AccountID:    accountID,
		Type:         TypePayout,
		Amount:       -amount,
		Counterparty: "r@example.com",
		Description:  "Payment sent to r@example.com",
		Status:       StatusPending,
	}
}

func balanceOf(t *testing.T, s StoreContract, accountID string) int64 {
	t.Helper()
	acc, err := s.GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	return acc.Balance
}

func testAccounts(t *testing.T, s StoreContract) {
	ctx := context.Background()

	_, err := s.GetAccount(ctx, "missing-"+NewID())
	require.ErrorIs(t, err, db.ErrNotFound)

	id := newAccount(t, s, 0)
	again, err := s.OpenAccount(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(0), again.Balance)

	require.NoError(t, s.Credit(ctx, id, 10000))
	require.NoError(t, s.Debit(ctx, id, 4000))
	require.Equal(t, int64(6000), balanceOf(t, s, id))

	err = s.Debit(ctx, id, 6001)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.Equal(t, int64(6000), balanceOf(t, s, id))

	require.ErrorIs(t, s.Credit(ctx, id, 0), db.ErrInvalid)
	require.ErrorIs(t, s.Debit(ctx, id, -5), db.ErrInvalid)
	require.ErrorIs(t, s.Credit(ctx, "missing-"+NewID(), 5), db.ErrNotFound)
	require.ErrorIs(t, s.Debit(ctx, "missing-"+NewID(), 5), db.ErrNotFound)
}

func testRecordTransaction(t *testing.T, s StoreContract) {
	ctx := context.Background()
	id := newAccount(t, s, 0)

	var tests = []struct {
		name        string
		tx          *Transaction
		expectedErr error
	}{
		{name: "nil transaction", tx: nil, expectedErr: db.ErrInvalid},
		{name: "missing account", tx: &Transaction{Type: TypeDeposit, Amount: 1, Description: "d", Status: StatusCompleted}, expectedErr: db.ErrInvalid},
		{name: "missing description", tx: &Transaction{AccountID: id, Type: TypeDeposit, Amount: 1, Status: StatusCompleted}, expectedErr: db.ErrInvalid},
		{name: "unknown type", tx: &Transaction{AccountID: id, Type: "refund", Amount: 1, Description: "d", Status: StatusCompleted}, expectedErr: db.ErrInvalid},
		{name: "unknown status", tx: &Transaction{AccountID: id, Type: TypeDeposit, Amount: 1, Description: "d", Status: "done"}, expectedErr: db.ErrInvalid},
		{name: "zero amount", tx: &Transaction{AccountID: id, Type: TypeDeposit, Description: "d", Status: StatusCompleted}, expectedErr: db.ErrInvalid},
		{name: "negative deposit", tx: &Transaction{AccountID: id, Type: TypeDeposit, Amount: -1, Description: "d", Status: StatusCompleted}, expectedErr: db.ErrInvalid},
		{name: "positive payout", tx: &Transaction{AccountID: id, Type: TypePayout, Amount: 1, Description: "d", Status: StatusPending}, expectedErr: db.ErrInvalid},
		{name: "unknown account", tx: &Transaction{AccountID: "missing-" + NewID(), Type: TypeDeposit, Amount: 1, Description: "d", Status: StatusCompleted}, expectedErr: db.ErrNotFound},
		{name: "success", tx: &Transaction{AccountID: id, Type: TypeDeposit, Amount: 500, Description: "Deposit via PayPal", Status: StatusCompleted}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.RecordTransaction(ctx, tt.tx)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			require.NotEmpty(t, tt.tx.ID)

			got, err := s.GetTransaction(ctx, tt.tx.ID)
			require.NoError(t, err)
			require.Equal(t, tt.tx.Amount, got.Amount)
			require.Equal(t, tt.tx.Status, got.Status)
		})
	}
}

func testUpdateTransactionStatus(t *testing.T, s StoreContract) {
	ctx := context.Background()
	id := newAccount(t, s, 10000)

	tx := pendingPayout(id, 4000)
	require.NoError(t, s.ReservePayout(ctx, tx))
	ref := "BATCH-" + tx.ID
	_, err := s.AttachExternalRef(ctx, tx.ID, ref)
	require.NoError(t, err)

	_, err = s.UpdateTransactionStatus(ctx, "unknown-"+NewID(), StatusCompleted)
	require.ErrorIs(t, err, db.ErrNotFound)

	first, err := s.UpdateTransactionStatus(ctx, ref, StatusCompleted)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, first.Status)

	second, err := s.UpdateTransactionStatus(ctx, ref, StatusCompleted)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, StatusCompleted, second.Status)
	require.True(t, first.UpdatedAt.Equal(second.UpdatedAt))

	_, err = s.UpdateTransactionStatus(ctx, ref, StatusFailed)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.UpdateTransactionStatus(ctx, ref, StatusPending)
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.Equal(t, int64(6000), balanceOf(t, s, id))
	txs, err := Collect(s.ListTransactions(ctx, id, 0))
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func testListTransactions(t *testing.T, s StoreContract) {
	ctx := context.Background()
	id := newAccount(t, s, 0)
	other := newAccount(t, s, 0)

	var ids []string
	for i := 0; i < 30; i++ {
		tx := &Transaction{AccountID: id, Type: TypeDeposit, Amount: int64(i + 1), Description: "Deposit via PayPal", Status: StatusCompleted}
		require.NoError(t, s.RecordTransaction(ctx, tx))
		ids = append(ids, tx.ID)
	}
	require.NoError(t, s.RecordTransaction(ctx, &Transaction{AccountID: other, Type: TypeDeposit, Amount: 1, Description: "d", Status: StatusCompleted}))

	defaults, err := Collect(s.ListTransactions(ctx, id, 0))
	require.NoError(t, err)
	require.Len(t, defaults, DefaultListLimit)
	for i, tx := range defaults {
		require.Equal(t, ids[len(ids)-1-i], tx.ID, "newest first")
	}

	all, err := Collect(s.ListTransactions(ctx, id, 50))
	require.NoError(t, err)
	require.Len(t, all, 30)
	require.Equal(t, ids[0], all[29].ID)

	seq := s.ListTransactions(ctx, id, 5)
	firstPass, err := Collect(seq)
	require.NoError(t, err)
	secondPass, err := Collect(seq)
	require.NoError(t, err)
	require.Equal(t, firstPass, secondPass)

	taken := 0
	for tx, err := range s.ListTransactions(ctx, id, 20) {
		require.NoError(t, err)
		require.Equal(t, id, tx.AccountID)
		taken++
		if taken == 3 {
			break
		}
	}
	require.Equal(t, 3, taken)
}

func testReservePayout(t *testing.T, s StoreContract) {
	ctx := context.Background()
	id := newAccount(t, s, 10000)

	over := pendingPayout(id, 15000)
	require.ErrorIs(t, s.ReservePayout(ctx, over), ErrInsufficientFunds)
	require.Equal(t, int64(10000), balanceOf(t, s, id))
	txs, err := Collect(s.ListTransactions(ctx, id, 0))
	require.NoError(t, err)
	require.Empty(t, txs)

	require.ErrorIs(t, s.ReservePayout(ctx, pendingPayout("missing-"+NewID(), 1)), db.ErrNotFound)

	completed := pendingPayout(id, 1)
	completed.Status = StatusCompleted
	require.ErrorIs(t, s.ReservePayout(ctx, completed), db.ErrInvalid)

	tx := pendingPayout(id, 4000)
	tx.ID = NewID()
	tx.IdempotencyKey = PayoutToken(tx.ID)
	require.NoError(t, s.ReservePayout(ctx, tx))
	require.Equal(t, int64(6000), balanceOf(t, s, id))

	got, err := s.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, int64(-4000), got.Amount)
	require.Equal(t, PayoutToken(tx.ID), got.IdempotencyKey)

	dup := pendingPayout(id, 100)
	dup.IdempotencyKey = tx.IdempotencyKey
	require.ErrorIs(t, s.ReservePayout(ctx, dup), db.ErrConflict)
	require.Equal(t, int64(6000), balanceOf(t, s, id))
}

func testConcurrentReservations(t *testing.T, s StoreContract) {
	ctx := context.Background()
	id := newAccount(t, s, 10000)

	var (
		wg           sync.WaitGroup
		successes    atomic.Int64
		insufficient atomic.Int64
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.ReservePayout(ctx, pendingPayout(id, 4000))
			switch {
			case err == nil:
				successes.Add(1)
			case IsInsufficientFunds(err):
				insufficient.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(2), successes.Load())
	require.Equal(t, int64(8), insufficient.Load())
	require.Equal(t, int64(2000), balanceOf(t, s, id))
}

func testReleasePayout(t *testing.T, s StoreContract) {
	ctx := context.Background()
	id := newAccount(t, s, 10000)

	tx := pendingPayout(id, 4000)
	require.NoError(t, s.ReservePayout(ctx, tx))
	require.Equal(t, int64(6000), balanceOf(t, s, id))

	var (
		wg       sync.WaitGroup
		released atomic.Int64
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, ok, err := s.ReleasePayout(ctx, tx.ID)
			if err != nil {
				t.Errorf("release: %v", err)
				return
			}
			if got.Status != StatusFailed {
				t.Errorf("status = %s", got.Status)
			}
			if ok {
				released.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), released.Load())
	require.Equal(t, int64(10000), balanceOf(t, s, id))

	done := pendingPayout(id, 1000)
	require.NoError(t, s.ReservePayout(ctx, done))
	ref := "BATCH-" + done.ID
	_, err := s.AttachExternalRef(ctx, done.ID, ref)
	require.NoError(t, err)
	_, err = s.UpdateTransactionStatus(ctx, ref, StatusCompleted)
	require.NoError(t, err)
	_, _, err = s.ReleasePayout(ctx, done.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, int64(9000), balanceOf(t, s, id))

	_, _, err = s.ReleasePayout(ctx, "missing-"+NewID())
	require.ErrorIs(t, err, db.ErrNotFound)
}

func testSettleDeposit(t *testing.T, s StoreContract) {
	ctx := context.Background()
	id := newAccount(t, s, 0)
	orderID := "ORDER-" + NewID()

	deposit := func() *Transaction {
		return &Transaction{AccountID: id, Type: TypeDeposit, Amount: 2500, Description: "Deposit via PayPal", Status: StatusCompleted, ExternalRef: orderID}
	}

	require.NoError(t, s.SettleDeposit(ctx, deposit()))
	require.ErrorIs(t, s.SettleDeposit(ctx, deposit()), db.ErrConflict)
	require.Equal(t, int64(2500), balanceOf(t, s, id))

	got, err := s.GetTransactionByExternalRef(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, int64(2500), got.Amount)

	noRef := deposit()
	noRef.ExternalRef = ""
	require.ErrorIs(t, s.SettleDeposit(ctx, noRef), db.ErrInvalid)

	unknown := deposit()
	unknown.AccountID = "missing-" + NewID()
	unknown.ExternalRef = "ORDER-" + NewID()
	require.ErrorIs(t, s.SettleDeposit(ctx, unknown), db.ErrNotFound)
}

func testAttachExternalRef(t *testing.T, s StoreContract) {
	ctx := context.Background()
	id := newAccount(t, s, 1000)
	tx := pendingPayout(id, 100)
	require.NoError(t, s.ReservePayout(ctx, tx))

	ref := "BATCH-" + tx.ID
	got, err := s.AttachExternalRef(ctx, tx.ID, ref)
	require.NoError(t, err)
	require.Equal(t, ref, got.ExternalRef)

	_, err = s.AttachExternalRef(ctx, tx.ID, ref)
	require.NoError(t, err)
	_, err = s.AttachExternalRef(ctx, tx.ID, "OTHER-"+tx.ID)
	require.ErrorIs(t, err, db.ErrConflict)
	_, err = s.AttachExternalRef(ctx, "missing-"+NewID(), ref)
	require.ErrorIs(t, err, db.ErrNotFound)

	byRef, err := s.GetTransactionByExternalRef(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, tx.ID, byRef.ID)
}

func testListPending(t *testing.T, s StoreContract) {
	ctx := context.Background()
	id := newAccount(t, s, 10000)

	a := pendingPayout(id, 100)
	b := pendingPayout(id, 200)
	c := pendingPayout(id, 300)
	for _, tx := range []*Transaction{a, b, c} {
		require.NoError(t, s.ReservePayout(ctx, tx))
	}
	_, _, err := s.ReleasePayout(ctx, c.ID)
	require.NoError(t, err)
	require.NoError(t, s.RecordTransaction(ctx, &Transaction{AccountID: id, Type: TypeDeposit, Amount: 1, Description: "d", Status: StatusPending}))

	pending, err := s.ListPending(ctx, TypePayout, time.Time{})
	require.NoError(t, err)
	found := map[string]bool{}
	for _, tx := range pending {
		require.Equal(t, StatusPending, tx.Status)
		require.Equal(t, TypePayout, tx.Type)
		found[tx.ID] = true
	}
	require.True(t, found[a.ID])
	require.True(t, found[b.ID])
	require.False(t, found[c.ID])

	old, err := s.ListPending(ctx, TypePayout, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	for _, tx := range old {
		require.NotEqual(t, a.ID, tx.ID)
		require.NotEqual(t, b.ID, tx.ID)
	}
}

func testMarkStuck(t *testing.T, s StoreContract) {
	ctx := context.Background()
	acct := newAccount(t, s, 10000)

	_, err := s.MarkStuck(ctx, "missing-"+NewID())
	require.ErrorIs(t, err, db.ErrNotFound)

	tx := pendingPayout(acct, 1000)
	require.NoError(t, s.ReservePayout(ctx, tx))
	require.False(t, tx.Stuck())

	marked, err := s.MarkStuck(ctx, tx.ID)
	require.NoError(t, err)
	require.True(t, marked.Stuck())
	first := *marked.StuckAt

	again, err := s.MarkStuck(ctx, tx.ID)
	require.NoError(t, err)
	require.True(t, first.Equal(*again.StuckAt))

	got, err := s.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.True(t, got.Stuck())
	require.True(t, first.Equal(*got.StuckAt))
	require.Equal(t, StatusPending, got.Status)

	pending, err := s.ListPending(ctx, TypePayout, time.Time{})
	require.NoError(t, err)
	var listed *Transaction
	for _, p := range pending {
		if p.ID == tx.ID {
			listed = p
		}
	}
	require.NotNil(t, listed)
	require.True(t, listed.Stuck())

	// a closed payout is never flagged
	done := pendingPayout(acct, 500)
	require.NoError(t, s.ReservePayout(ctx, done))
	_, _, err = s.ReleasePayout(ctx, done.ID)
	require.NoError(t, err)
	closed, err := s.MarkStuck(ctx, done.ID)
	require.NoError(t, err)
	require.False(t, closed.Stuck())
	require.Equal(t, StatusFailed, closed.Status)
}
