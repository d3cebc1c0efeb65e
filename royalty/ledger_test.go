/*
ledger_test.go - Behavior tests for the royalty workflow

ORGANIZATION:
  1. Sale recording and accrual
  2. Withdrawal workflow
  3. Idempotency
  4. Serialization under concurrency
  5. Notifications

Each test states its scenario as GIVEN/WHEN/THEN.
*/
package royalty_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritera/royalty-engine/royalty"
)

// =============================================================================
// 1. SALE RECORDING AND ACCRUAL
// =============================================================================

func TestLedger_SaleThenWithdrawalWalkthrough(t *testing.T) {
	// GIVEN: an author at 50%
	// WHEN: sales of 1000 and 6000 are recorded, then two withdrawals requested
	// THEN: balance goes 500 -> 3500 -> 0, paid 3500, second request BelowMinimum

	f := newTxFixture(t)
	ctx := context.Background()

	a := f.author(t, "asha", 50)
	b := f.book(t, a.ID, "Monsoon Letters")

	first := f.sell(t, b.ID, 10, "1000")
	assert.True(t, amt("500").Equal(first.RoyaltyAdded))
	assert.True(t, amt("500").Equal(first.Balance))
	assert.Equal(t, a.ID, first.AuthorID)

	second := f.sell(t, b.ID, 60, "6000")
	assert.True(t, amt("3000").Equal(second.RoyaltyAdded))
	assert.True(t, amt("3500").Equal(second.Balance))

	res, err := f.ledger.RequestWithdrawal(ctx, royalty.WithdrawalInput{AuthorID: a.ID})
	require.NoError(t, err)
	assert.True(t, amt("3500").Equal(res.Amount))
	assert.NotEmpty(t, res.WithdrawalID)

	wallet, err := f.ledger.Wallet(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.IsZero(), "balance resets to zero")
	assert.True(t, amt("3500").Equal(wallet.Paid))

	ws, err := f.ledger.ListWithdrawals(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, royalty.WithdrawalPending, ws[0].Status)
	assert.True(t, amt("3500").Equal(ws[0].Amount))

	_, err = f.ledger.RequestWithdrawal(ctx, royalty.WithdrawalInput{AuthorID: a.ID})
	assert.ErrorIs(t, err, royalty.ErrBelowMinimum)
}

func TestLedger_RecordSale_UsesAuthorPercentage(t *testing.T) {
	f := newTxFixture(t)
	a := f.author(t, "ravi", 0)
	b := f.book(t, a.ID, "Quiet Rivers")

	res := f.sell(t, b.ID, 1, "450")
	assert.True(t, res.RoyaltyAdded.IsZero())
	assert.True(t, res.Balance.IsZero())
}

func TestLedger_CreateAuthor_DefaultsToFullShare(t *testing.T) {
	f := newTxFixture(t)
	a, err := f.ledger.CreateAuthor(context.Background(), royalty.AuthorInput{
		Name: "meera", Email: "meera@example.com", Password: "pw",
	})
	require.NoError(t, err)
	assert.Equal(t, royalty.DefaultRoyaltyPercentage, a.RoyaltyPercentage)
	assert.True(t, f.identity.has(a.UserID))
}

func TestLedger_RecordSale_RejectsBadInput(t *testing.T) {
	f := newTxFixture(t)
	a := f.author(t, "asha", 50)
	b := f.book(t, a.ID, "Monsoon Letters")
	ctx := context.Background()

	tests := []struct {
		name  string
		in    royalty.SaleInput
		field string
	}{
		{"missing book", royalty.SaleInput{Copies: 1, Amount: amt("10")}, "book_id"},
		{"zero copies", royalty.SaleInput{BookID: b.ID, Copies: 0, Amount: amt("10")}, "copies"},
		{"negative amount", royalty.SaleInput{BookID: b.ID, Copies: 1, Amount: amt("-10")}, "amount"},
		{"zero amount", royalty.SaleInput{BookID: b.ID, Copies: 1, Amount: decimal.Zero}, "amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.RecordSale(ctx, tt.in)
			var invalid *royalty.InvalidInputError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.field, invalid.Field)
		})
	}

	wallet, err := f.ledger.Wallet(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.IsZero(), "rejected sales accrue nothing")
}

func TestLedger_RecordSale_UnknownBook(t *testing.T) {
	f := newTxFixture(t)
	_, err := f.ledger.RecordSale(context.Background(), royalty.SaleInput{
		BookID: "no-such-book", Copies: 1, Amount: amt("100"),
	})
	assert.ErrorIs(t, err, royalty.ErrNotFound)
}

func TestLedger_Accrue_CreatesWalletOnFirstCall(t *testing.T) {
	f := newTxFixture(t)
	ctx := context.Background()
	a := f.author(t, "asha", 50)

	w, err := f.ledger.Accrue(ctx, a.ID, amt("12.50"))
	require.NoError(t, err)
	assert.Equal(t, a.ID, w.AuthorID)
	assert.Equal(t, int64(1), w.Version)
	assert.True(t, amt("12.50").Equal(w.Balance))

	w, err = f.ledger.Accrue(ctx, a.ID, amt("0.50"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), w.Version)
	assert.True(t, amt("13").Equal(w.Balance))

	_, err = f.ledger.Accrue(ctx, a.ID, amt("-1"))
	assert.ErrorIs(t, err, royalty.ErrInvalidInput)

	_, err = f.ledger.Accrue(ctx, "ghost", amt("1"))
	assert.ErrorIs(t, err, royalty.ErrNotFound)
}

func TestLedger_Earnings_SumsPerBook(t *testing.T) {
	f := newTxFixture(t)
	ctx := context.Background()
	a := f.author(t, "asha", 50)
	b1 := f.book(t, a.ID, "B Second")
	b2 := f.book(t, a.ID, "A First")

	f.sell(t, b1.ID, 2, "200")
	f.sell(t, b1.ID, 3, "300")
	f.sell(t, b2.ID, 1, "100")

	e, err := f.ledger.Earnings(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, e.Books, 2)
	assert.Equal(t, "A First", e.Books[0].Title, "books ordered by title")
	assert.Equal(t, 5, e.Books[1].Copies)
	assert.True(t, amt("500").Equal(e.Books[1].Amount))
	assert.Equal(t, 6, e.TotalCopies)
	assert.True(t, amt("600").Equal(e.TotalAmount))
	assert.True(t, amt("300").Equal(e.Balance))
	assert.True(t, e.Paid.IsZero())
}

// =============================================================================
// 2. WITHDRAWAL WORKFLOW
// =============================================================================

func TestLedger_RequestWithdrawal_BelowMinimumLeavesWalletAlone(t *testing.T) {
	// GIVEN: a wallet holding 2499.99
	// WHEN: a withdrawal is requested
	// THEN: BelowMinimum carries both numbers and nothing changes

	f := newTxFixture(t)
	ctx := context.Background()
	a := f.author(t, "asha", 100)
	b := f.book(t, a.ID, "Monsoon Letters")
	f.sell(t, b.ID, 1, "2499.99")

	_, err := f.ledger.RequestWithdrawal(ctx, royalty.WithdrawalInput{AuthorID: a.ID})
	var below *royalty.BelowMinimumError
	require.ErrorAs(t, err, &below)
	assert.True(t, amt("2500").Equal(below.Minimum))
	assert.True(t, amt("2499.99").Equal(below.Balance))
	assert.True(t, royalty.IsClientError(err))

	wallet, err := f.ledger.Wallet(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, amt("2499.99").Equal(wallet.Balance))
	assert.True(t, wallet.Paid.IsZero())

	ws, err := f.ledger.ListWithdrawals(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, ws)
	assert.Empty(t, f.notifier.messages())
}

func TestLedger_RequestWithdrawal_ExactlyMinimumSucceeds(t *testing.T) {
	f := newTxFixture(t)
	a := f.author(t, "asha", 100)
	b := f.book(t, a.ID, "Monsoon Letters")
	f.sell(t, b.ID, 1, "2500")

	res, err := f.ledger.RequestWithdrawal(context.Background(), royalty.WithdrawalInput{AuthorID: a.ID})
	require.NoError(t, err)
	assert.True(t, amt("2500").Equal(res.Amount))
}

func TestLedger_RequestWithdrawal_NoWallet(t *testing.T) {
	// GIVEN: an author who never sold anything
	// THEN: there is no wallet to withdraw from

	f := newTxFixture(t)
	a := f.author(t, "asha", 100)

	_, err := f.ledger.RequestWithdrawal(context.Background(), royalty.WithdrawalInput{AuthorID: a.ID})
	var nf *royalty.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "wallet", nf.Kind)
}

func TestLedger_RequestWithdrawal_UnknownAuthor(t *testing.T) {
	f := newTxFixture(t)
	_, err := f.ledger.RequestWithdrawal(context.Background(), royalty.WithdrawalInput{AuthorID: "ghost"})
	assert.ErrorIs(t, err, royalty.ErrNotFound)
}

func TestLedger_MinimumIsConfigurable(t *testing.T) {
	f := newTxFixture(t)
	ledger := royalty.NewLedger(f.ledger.Store(), royalty.Options{
		Identity:          f.identity,
		MinimumWithdrawal: ptr(amt("100")),
	})
	assert.True(t, amt("100").Equal(ledger.MinimumWithdrawal()))

	a := f.author(t, "asha", 100)
	b := f.book(t, a.ID, "Monsoon Letters")
	f.sell(t, b.ID, 1, "150")

	res, err := ledger.RequestWithdrawal(context.Background(), royalty.WithdrawalInput{AuthorID: a.ID})
	require.NoError(t, err)
	assert.True(t, amt("150").Equal(res.Amount))
}

func TestLedger_ZeroSettingsAreHonoured(t *testing.T) {
	// GIVEN: a ledger configured with a 0% default rate and a 0 minimum
	// WHEN: an author is created without a rate and sells a copy
	// THEN: nothing accrues, and a small balance elsewhere can be withdrawn

	f := newTxFixture(t)
	ctx := context.Background()
	ledger := royalty.NewLedger(f.ledger.Store(), royalty.Options{
		Identity:                 f.identity,
		MinimumWithdrawal:        ptr(amt("0")),
		DefaultRoyaltyPercentage: pct(0),
	})
	assert.True(t, ledger.MinimumWithdrawal().IsZero())

	unpaid, err := ledger.CreateAuthor(ctx, royalty.AuthorInput{
		Name: "meera", Email: "meera@example.com", Password: "pw",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, unpaid.RoyaltyPercentage)

	b := f.book(t, unpaid.ID, "Paper Kites")
	res, err := ledger.RecordSale(ctx, royalty.SaleInput{BookID: b.ID, Copies: 1, Amount: amt("1000")})
	require.NoError(t, err)
	assert.True(t, res.RoyaltyAdded.IsZero())

	paid := f.author(t, "asha", 100)
	pb := f.book(t, paid.ID, "Monsoon Letters")
	f.sell(t, pb.ID, 1, "10")

	w, err := ledger.RequestWithdrawal(ctx, royalty.WithdrawalInput{AuthorID: paid.ID})
	require.NoError(t, err)
	assert.True(t, amt("10").Equal(w.Amount))
}

func TestLedger_PendingWithdrawals(t *testing.T) {
	f := newTxFixture(t)
	ctx := context.Background()
	for _, name := range []string{"asha", "ravi"} {
		a := f.author(t, name, 100)
		b := f.book(t, a.ID, "Book of "+name)
		f.sell(t, b.ID, 1, "3000")
		_, err := f.ledger.RequestWithdrawal(ctx, royalty.WithdrawalInput{AuthorID: a.ID})
		require.NoError(t, err)
	}

	pending, err := f.ledger.PendingWithdrawals(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

// =============================================================================
// 3. IDEMPOTENCY
// =============================================================================

func TestLedger_RecordSale_IdempotentReplay(t *testing.T) {
	// GIVEN: a sale recorded with key "order-1"
	// WHEN: the same request is retried
	// THEN: the original result comes back and the wallet accrues once

	f := newTxFixture(t)
	ctx := context.Background()
	a := f.author(t, "asha", 50)
	b := f.book(t, a.ID, "Monsoon Letters")

	in := royalty.SaleInput{BookID: b.ID, Copies: 1, Amount: amt("1000"), IdempotencyKey: "order-1"}
	first, err := f.ledger.RecordSale(ctx, in)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := f.ledger.RecordSale(ctx, in)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.SaleID, again.SaleID)
	assert.True(t, amt("500").Equal(again.Balance))

	sales, err := f.ledger.ListSales(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, sales, 1)

	in.Amount = amt("2000")
	_, err = f.ledger.RecordSale(ctx, in)
	assert.ErrorIs(t, err, royalty.ErrInvalidInput, "key reused for a different sale")
}

func TestLedger_RequestWithdrawal_IdempotentReplay(t *testing.T) {
	f := newTxFixture(t)
	ctx := context.Background()
	a := f.author(t, "asha", 100)
	b := f.book(t, a.ID, "Monsoon Letters")
	f.sell(t, b.ID, 1, "3000")

	in := royalty.WithdrawalInput{AuthorID: a.ID, IdempotencyKey: "wd-1"}
	first, err := f.ledger.RequestWithdrawal(ctx, in)
	require.NoError(t, err)

	again, err := f.ledger.RequestWithdrawal(ctx, in)
	require.NoError(t, err, "replay does not hit the minimum check")
	assert.True(t, again.Replayed)
	assert.Equal(t, first.WithdrawalID, again.WithdrawalID)
	assert.True(t, amt("3000").Equal(again.Amount))

	ws, err := f.ledger.ListWithdrawals(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, ws, 1)
	assert.Len(t, f.notifier.messages(), 2, "replay sends no mail")

	other := f.author(t, "ravi", 100)
	_, err = f.ledger.RequestWithdrawal(ctx, royalty.WithdrawalInput{AuthorID: other.ID, IdempotencyKey: "wd-1"})
	assert.ErrorIs(t, err, royalty.ErrInvalidInput)
}

// =============================================================================
// 4. SERIALIZATION UNDER CONCURRENCY
// =============================================================================

func TestLedger_ConcurrentSales_NoLostUpdates(t *testing.T) {
	// GIVEN: 50 concurrent sales of 100 at 50%
	// THEN: the balance is exactly 2500

	f := newTxFixture(t)
	a := f.author(t, "asha", 50)
	b := f.book(t, a.ID, "Monsoon Letters")

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.RecordSale(context.Background(), royalty.SaleInput{
				BookID: b.ID, Copies: 1, Amount: amt("100"),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	wallet, err := f.ledger.Wallet(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, amt("2500").Equal(wallet.Balance), "got %s", wallet.Balance)
	assert.Equal(t, int64(50), wallet.Version)
}

func TestLedger_ConcurrentWithdrawals_PayOutOnce(t *testing.T) {
	// GIVEN: a wallet holding 3000
	// WHEN: 10 withdrawals race
	// THEN: exactly one succeeds, the rest see BelowMinimum

	f := newTxFixture(t)
	a := f.author(t, "asha", 100)
	b := f.book(t, a.ID, "Monsoon Letters")
	f.sell(t, b.ID, 1, "3000")

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, below int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.RequestWithdrawal(context.Background(), royalty.WithdrawalInput{AuthorID: a.ID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, royalty.ErrBelowMinimum):
				below++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, below)

	wallet, err := f.ledger.Wallet(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, amt("3000").Equal(wallet.Paid))
}

// =============================================================================
// 5. NOTIFICATIONS
// =============================================================================

func TestLedger_RequestWithdrawal_NotifiesOperatorAndAuthor(t *testing.T) {
	f := newTxFixture(t)
	a := f.author(t, "asha", 100)
	b := f.book(t, a.ID, "Monsoon Letters")
	f.sell(t, b.ID, 1, "3500")

	_, err := f.ledger.RequestWithdrawal(context.Background(), royalty.WithdrawalInput{AuthorID: a.ID})
	require.NoError(t, err)

	msgs := f.notifier.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "ops@example.com", msgs[0].To)
	assert.Equal(t, "New Withdrawal Request – asha", msgs[0].Subject)
	assert.Contains(t, msgs[0].Body, "₹3500.00")
	assert.Equal(t, "asha@example.com", msgs[1].To)
	assert.Equal(t, "Your Withdrawal Has Been Initiated", msgs[1].Subject)
	assert.Equal(t, "Hi asha, your withdrawal of ₹3500.00 is initiated.", msgs[1].Body)
}

func TestLedger_RequestWithdrawal_NotificationFailureDoesNotUnwind(t *testing.T) {
	// GIVEN: a mail relay that rejects everything
	// WHEN: a withdrawal is requested
	// THEN: the withdrawal still commits

	f := newTxFixture(t)
	f.notifier.err = errors.New("smtp: connection refused")
	a := f.author(t, "asha", 100)
	b := f.book(t, a.ID, "Monsoon Letters")
	f.sell(t, b.ID, 1, "3500")

	res, err := f.ledger.RequestWithdrawal(context.Background(), royalty.WithdrawalInput{AuthorID: a.ID})
	require.NoError(t, err)
	assert.True(t, amt("3500").Equal(res.Amount))

	wallet, err := f.ledger.Wallet(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.IsZero())
}

func TestLedger_RequestWithdrawal_NotifiesAfterCallerCancels(t *testing.T) {
	f := newTxFixture(t)
	a := f.author(t, "asha", 100)
	b := f.book(t, a.ID, "Monsoon Letters")
	f.sell(t, b.ID, 1, "3500")

	ctx, cancel := context.WithCancel(context.Background())
	notifier := &ctxCheckingNotifier{cancel: cancel}
	ledger := royalty.NewLedger(f.ledger.Store(), royalty.Options{Identity: f.identity, Notifier: notifier})

	_, err := ledger.RequestWithdrawal(ctx, royalty.WithdrawalInput{AuthorID: a.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.calls, "only the author mail without an operator address")
	assert.NoError(t, notifier.ctxErr)
}

// ctxCheckingNotifier cancels the request context on first use and records
// whether the context it was handed survived.
type ctxCheckingNotifier struct {
	cancel context.CancelFunc
	calls  int
	ctxErr error
}

func (n *ctxCheckingNotifier) Send(ctx context.Context, _ royalty.Message) error {
	n.cancel()
	n.calls++
	n.ctxErr = ctx.Err()
	return nil
}
