package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ritera/royalty-engine/identity"
	"github.com/ritera/royalty-engine/royalty"
	"github.com/ritera/royalty-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestLedger(t *testing.T) (*royalty.Ledger, *sqlite.Store, *identity.Local) {
	store := newTestStore(t)
	creds, err := sqlite.NewCredentials(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { creds.Close() })

	idp := identity.NewLocal(creds, bcrypt.MinCost)
	return royalty.NewLedger(store, royalty.Options{Identity: idp}), store, idp
}

var march1 = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func seedAuthor(t *testing.T, s *sqlite.Store, id royalty.AuthorID, created time.Time) {
	t.Helper()
	require.NoError(t, s.SaveAuthor(context.Background(), royalty.Author{
		ID:                id,
		UserID:            royalty.UserID("user-" + id),
		Name:              "Author " + string(id),
		Email:             string(id) + "@example.com",
		RoyaltyPercentage: 50,
		Bank:              royalty.BankDetails{AccountName: "A", AccountNumber: "123", IFSC: "SBIN0001", UPI: "a@upi"},
		CreatedAt:         created,
		UpdatedAt:         created,
	}))
}

// =============================================================================
// STORE CONTRACT
// =============================================================================

func TestStore_AuthorRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAuthor(t, s, "a1", march1)
	seedAuthor(t, s, "a2", march1.Add(time.Hour))

	got, err := s.GetAuthor(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, royalty.UserID("user-a1"), got.UserID)
	assert.Equal(t, 50, got.RoyaltyPercentage)
	assert.Equal(t, "a@upi", got.Bank.UPI)
	assert.False(t, got.BankVerified)
	assert.True(t, march1.Equal(got.CreatedAt))

	byUser, err := s.GetAuthorByUserID(ctx, "user-a2")
	require.NoError(t, err)
	require.NotNil(t, byUser)
	assert.Equal(t, royalty.AuthorID("a2"), byUser.ID)

	missing, err := s.GetAuthor(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	authors, err := s.ListAuthors(ctx)
	require.NoError(t, err)
	require.Len(t, authors, 2)
	assert.Equal(t, royalty.AuthorID("a2"), authors[0].ID, "newest first")

	got.BankVerified = true
	got.RoyaltyPercentage = 80
	require.NoError(t, s.UpdateAuthor(ctx, *got))
	got, err = s.GetAuthor(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, got.BankVerified)
	assert.Equal(t, 80, got.RoyaltyPercentage)

	err = s.UpdateAuthor(ctx, royalty.Author{ID: "nope", Name: "x"})
	assert.ErrorIs(t, err, royalty.ErrNotFound)
}

func TestStore_BookRequiresAuthor(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveBook(context.Background(), royalty.Book{ID: "b1", AuthorID: "ghost", Title: "T", CreatedAt: march1})
	assert.ErrorIs(t, err, royalty.ErrNotFound)
}

func TestStore_SalesAndIdempotency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAuthor(t, s, "a1", march1)
	require.NoError(t, s.SaveBook(ctx, royalty.Book{ID: "b1", AuthorID: "a1", Title: "T", CreatedAt: march1}))

	sale := royalty.Sale{
		ID: "s1", BookID: "b1", Copies: 3,
		Amount: decimal.RequireFromString("1234.56"), Royalty: decimal.RequireFromString("617.28"),
		IdempotencyKey: "order-1", CreatedAt: march1,
	}
	require.NoError(t, s.AppendSale(ctx, sale))

	dup := sale
	dup.ID = "s2"
	assert.ErrorIs(t, s.AppendSale(ctx, dup), royalty.ErrDuplicateIdempotencyKey)

	// Sales without a key never collide.
	require.NoError(t, s.AppendSale(ctx, royalty.Sale{ID: "s3", BookID: "b1", Copies: 1, Amount: decimal.NewFromInt(1), Royalty: decimal.Zero, CreatedAt: march1}))
	require.NoError(t, s.AppendSale(ctx, royalty.Sale{ID: "s4", BookID: "b1", Copies: 1, Amount: decimal.NewFromInt(1), Royalty: decimal.Zero, CreatedAt: march1}))

	got, err := s.GetSaleByIdempotencyKey(ctx, "order-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, sale.Amount.Equal(got.Amount), "decimal survives the round trip")
	assert.True(t, sale.Royalty.Equal(got.Royalty))

	sales, err := s.ListSalesByBook(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, sales, 3)
	assert.Equal(t, royalty.SaleID("s1"), sales[0].ID)

	err = s.AppendSale(ctx, royalty.Sale{ID: "s5", BookID: "ghost", Copies: 1, Amount: decimal.NewFromInt(1), Royalty: decimal.Zero, CreatedAt: march1})
	assert.ErrorIs(t, err, royalty.ErrNotFound)
}

func TestStore_WalletCompareAndSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAuthor(t, s, "a1", march1)

	w, err := s.SaveWallet(ctx, royalty.Wallet{AuthorID: "a1", Balance: decimal.NewFromInt(500), Paid: decimal.Zero, UpdatedAt: march1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.Version)

	_, err = s.SaveWallet(ctx, royalty.Wallet{AuthorID: "a1", Balance: decimal.NewFromInt(1), Paid: decimal.Zero, UpdatedAt: march1})
	assert.ErrorIs(t, err, royalty.ErrConcurrentModification)

	stale := w
	w.Balance = decimal.NewFromInt(3500)
	w, err = s.SaveWallet(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, int64(2), w.Version)

	_, err = s.SaveWallet(ctx, stale)
	assert.ErrorIs(t, err, royalty.ErrConcurrentModification)

	got, err := s.GetWallet(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, decimal.NewFromInt(3500).Equal(got.Balance))
	assert.Equal(t, int64(2), got.Version)

	_, err = s.SaveWallet(ctx, royalty.Wallet{AuthorID: "ghost", Balance: decimal.Zero, Paid: decimal.Zero, UpdatedAt: march1})
	assert.ErrorIs(t, err, royalty.ErrNotFound)
}

func TestStore_DeleteAuthorCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAuthor(t, s, "a1", march1)
	require.NoError(t, s.SaveBook(ctx, royalty.Book{ID: "b1", AuthorID: "a1", Title: "T", CreatedAt: march1}))
	require.NoError(t, s.AppendSale(ctx, royalty.Sale{ID: "s1", BookID: "b1", Copies: 1, Amount: decimal.NewFromInt(1), Royalty: decimal.Zero, CreatedAt: march1}))
	_, err := s.SaveWallet(ctx, royalty.Wallet{AuthorID: "a1", Balance: decimal.Zero, Paid: decimal.Zero, UpdatedAt: march1})
	require.NoError(t, err)
	require.NoError(t, s.AppendWithdrawal(ctx, royalty.Withdrawal{ID: "w1", AuthorID: "a1", Amount: decimal.NewFromInt(1), Status: royalty.WithdrawalPending, CreatedAt: march1}))

	require.NoError(t, s.DeleteAuthor(ctx, "a1"))

	b, err := s.GetBook(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, b)
	w, err := s.GetWallet(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, w)
	sales, err := s.ListSalesByBook(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, sales)
	pending, err := s.ListWithdrawalsByStatus(ctx, royalty.WithdrawalPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStore_WithTx_RollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAuthor(t, s, "a1", march1)

	err := s.WithTx(ctx, func(tx royalty.Store) error {
		require.NoError(t, tx.AppendWithdrawal(ctx, royalty.Withdrawal{ID: "w1", AuthorID: "a1", Amount: decimal.NewFromInt(1), Status: royalty.WithdrawalPending, CreatedAt: march1}))
		_, err := tx.SaveWallet(ctx, royalty.Wallet{AuthorID: "a1", Version: 7, Balance: decimal.Zero, Paid: decimal.Zero, UpdatedAt: march1})
		return err
	})
	assert.ErrorIs(t, err, royalty.ErrConcurrentModification)

	ws, err := s.ListWithdrawalsByAuthor(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, ws, "withdrawal rolled back")
}

func TestStore_Reset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAuthor(t, s, "a1", march1)
	require.NoError(t, s.Reset(ctx))

	authors, err := s.ListAuthors(ctx)
	require.NoError(t, err)
	assert.Empty(t, authors)
}

// =============================================================================
// LEDGER OVER SQLITE
// =============================================================================

func TestLedger_WalkthroughOnSQLite(t *testing.T) {
	// GIVEN: an author at 50% on the sqlite store
	// WHEN: sales of 1000 and 6000, then two withdrawal requests
	// THEN: 3500 pending, wallet drained, second request BelowMinimum

	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()

	a, err := ledger.CreateAuthor(ctx, royalty.AuthorInput{
		Name: "Asha", Email: "asha@example.com", Password: "pw", RoyaltyPercentage: ptr(50),
	})
	require.NoError(t, err)
	b, err := ledger.CreateBook(ctx, royalty.BookInput{AuthorID: a.ID, Title: "Monsoon Letters"})
	require.NoError(t, err)

	for _, amount := range []string{"1000", "6000"} {
		_, err := ledger.RecordSale(ctx, royalty.SaleInput{BookID: b.ID, Copies: 1, Amount: decimal.RequireFromString(amount)})
		require.NoError(t, err)
	}

	res, err := ledger.RequestWithdrawal(ctx, royalty.WithdrawalInput{AuthorID: a.ID})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3500).Equal(res.Amount))

	wallet, err := ledger.Wallet(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.IsZero())
	assert.True(t, decimal.NewFromInt(3500).Equal(wallet.Paid))

	_, err = ledger.RequestWithdrawal(ctx, royalty.WithdrawalInput{AuthorID: a.ID})
	assert.ErrorIs(t, err, royalty.ErrBelowMinimum)
}

func TestLedger_DeleteAuthorOnSQLite_RemovesCredentials(t *testing.T) {
	ledger, _, idp := newTestLedger(t)
	ctx := context.Background()

	a, err := ledger.CreateAuthor(ctx, royalty.AuthorInput{Name: "Asha", Email: "asha@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = idp.Authenticate(ctx, "asha@example.com", "pw")
	require.NoError(t, err)

	require.NoError(t, ledger.DeleteAuthor(ctx, a.ID))

	_, err = idp.Authenticate(ctx, "asha@example.com", "pw")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	_, err = ledger.GetAuthor(ctx, a.ID)
	assert.ErrorIs(t, err, royalty.ErrNotFound)
}

func TestLedger_ConcurrentSalesOnSQLite(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()

	a, err := ledger.CreateAuthor(ctx, royalty.AuthorInput{
		Name: "Asha", Email: "asha@example.com", Password: "pw", RoyaltyPercentage: ptr(10),
	})
	require.NoError(t, err)
	b, err := ledger.CreateBook(ctx, royalty.BookInput{AuthorID: a.ID, Title: "Monsoon Letters"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.RecordSale(ctx, royalty.SaleInput{BookID: b.ID, Copies: 1, Amount: decimal.NewFromInt(100)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	wallet, err := ledger.Wallet(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(200).Equal(wallet.Balance), "got %s", wallet.Balance)
}

func ptr(p int) *int { return &p }
