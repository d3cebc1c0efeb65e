/*
Package royalty provides the royalty ledger and withdrawal workflow.

PURPOSE:
  Authors earn a share of every recorded book sale. The share accrues into
  the author's wallet, and once the wallet crosses the withdrawal minimum the
  author can request a payout. This package owns that flow end to end:

    Sale ──▶ ComputeRoyalty ──▶ Accrue(wallet) ──▶ RequestWithdrawal ──▶ pending payout

KEY CONCEPTS IN THIS FILE (types.go):
  - Author / BankDetails: payee identity and payout coordinates
  - Book, Sale: append-only sales history
  - Wallet: running balance and cumulative paid-out total, one per author
  - Withdrawal: a payout request, created as "pending"

DESIGN PRINCIPLES:
  1. Precision: every amount is a decimal.Decimal, never a float
  2. Type Safety: distinct ID types so a BookID never lands in an AuthorID slot
  3. One key: the wallet is keyed by the internal AuthorID, never the identity user id

SEE ALSO:
  - ledger.go: Ledger, the entry point that ties the workflow together
  - store.go: persistence interfaces
  - errors.go: error taxonomy
*/
package royalty

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AuthorID string
type BookID string
type SaleID string
type WithdrawalID string

// UserID is the identity-provider user linked to an author.
type UserID string

// =============================================================================
// AUTHOR
// =============================================================================

type BankDetails struct {
	AccountName   string
	AccountNumber string
	BankName      string
	IFSC          string
	UPI           string // optional
}

type Author struct {
	ID                AuthorID
	UserID            UserID
	Name              string
	Email             string
	RoyaltyPercentage int
	Bank              BankDetails
	BankVerified      bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// =============================================================================
// BOOKS AND SALES
// =============================================================================

type Book struct {
	ID        BookID
	AuthorID  AuthorID
	Title     string
	CoverURL  string
	CreatedAt time.Time
}

// Sale is append-only. Royalty records the accrual the sale produced.
type Sale struct {
	ID             SaleID
	BookID         BookID
	Copies         int
	Amount         decimal.Decimal
	Royalty        decimal.Decimal
	IdempotencyKey string
	CreatedAt      time.Time
}

// =============================================================================
// WALLET
// =============================================================================

// Wallet holds the unwithdrawn royalties of one author.
//
// INVARIANTS:
//   - Balance >= 0
//   - Balance = sum(accruals since the last withdrawal)
//   - Version increases by one on every write
type Wallet struct {
	AuthorID  AuthorID
	Balance   decimal.Decimal
	Paid      decimal.Decimal
	Version   int64
	UpdatedAt time.Time
}

// credit returns the wallet after adding amount to the balance.
func (w Wallet) credit(amount decimal.Decimal) Wallet {
	w.Balance = w.Balance.Add(amount)
	return w
}

// drain moves the whole balance into Paid.
func (w Wallet) drain() Wallet {
	w.Paid = w.Paid.Add(w.Balance)
	w.Balance = decimal.Zero
	return w
}

// =============================================================================
// WITHDRAWAL
// =============================================================================

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalRejected  WithdrawalStatus = "rejected"
)

func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalPending, WithdrawalCompleted, WithdrawalRejected:
		return true
	}
	return false
}

type Withdrawal struct {
	ID             WithdrawalID
	AuthorID       AuthorID
	Amount         decimal.Decimal
	Status         WithdrawalStatus
	IdempotencyKey string
	CreatedAt      time.Time
}

// =============================================================================
// EARNINGS - Author dashboard view
// =============================================================================

type BookEarnings struct {
	BookID   BookID
	Title    string
	CoverURL string
	Copies   int
	Amount   decimal.Decimal
}

type Earnings struct {
	AuthorID    AuthorID
	Books       []BookEarnings
	TotalCopies int
	TotalAmount decimal.Decimal
	Balance     decimal.Decimal
	Paid        decimal.Decimal
}
