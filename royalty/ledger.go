/*
ledger.go - Entry point of the royalty workflow

PURPOSE:
  Ledger ties the calculator, the wallet, the store and the external
  collaborators (identity provider, mail relay) together. HTTP handlers,
  scenario loaders and the CLI only ever talk to a *Ledger.

CRITICAL INVARIANTS:
  1. ONE OWNER PER WALLET: accruals and withdrawals for one author are
     serialized by a per-author lock, and each wallet write is a
     compare-and-set on its version.
  2. BOTH OR NEITHER: sale+accrual and withdrawal+wallet reset run in one
     store transaction when the store supports it (TxStore). Otherwise a
     partial write surfaces as ErrReconciliationNeeded.
  3. NOTIFY LAST: mail goes out after the money moved. A failed mail is
     logged and never unwinds the withdrawal.

EXAMPLE FLOW:
  1. Author at 50% sells 1000     -> royalty 500,  balance 500
  2. Author at 50% sells 6000     -> royalty 3000, balance 3500
  3. Withdrawal request           -> pending 3500, balance 0, paid 3500
  4. Withdrawal request again     -> ErrBelowMinimum (0 < 2500)

SEE ALSO:
  - sales.go, wallet.go, withdrawal.go, authors.go, books.go
  - store.go: persistence interfaces
*/
package royalty

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultMinimumWithdrawal = 2500
	DefaultRoyaltyPercentage = 100
	DefaultCurrencySymbol    = "₹"

	maxWalletAttempts = 3
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// IdentityProvider owns login identities. Authors link to one by UserID.
type IdentityProvider interface {
	CreateUser(ctx context.Context, email, password string) (UserID, error)
	DeleteUser(ctx context.Context, id UserID) error
}

// Message is a plain-text mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers messages. Ledger never lets a Send error escape.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// =============================================================================
// LEDGER
// =============================================================================

type Options struct {
	Identity IdentityProvider
	Notifier Notifier // nil disables notifications
	Logger   *zap.Logger

	// MinimumWithdrawal is the smallest balance that can be withdrawn.
	// Nil means DefaultMinimumWithdrawal; zero is a valid threshold.
	MinimumWithdrawal *decimal.Decimal
	// DefaultRoyaltyPercentage applies when CreateAuthor gets no percentage.
	// Nil means DefaultRoyaltyPercentage; zero is a valid rate.
	DefaultRoyaltyPercentage *int
	// OperatorEmail receives a copy of every withdrawal request.
	OperatorEmail  string
	CurrencySymbol string

	// Clock and NewID are overridable for tests.
	Clock func() time.Time
	NewID func() string
}

type Ledger struct {
	store    Store
	identity IdentityProvider
	notifier Notifier
	log      *zap.Logger
	locks    *KeyedMutex

	minimum        decimal.Decimal
	defaultPercent int
	operatorEmail  string
	currencySymbol string
	now            func() time.Time
	newID          func() string
}

// NewLedger builds a Ledger over store. Nil or empty options fall back to
// the package defaults.
func NewLedger(store Store, opts Options) *Ledger {
	l := &Ledger{
		store:          store,
		identity:       opts.Identity,
		notifier:       opts.Notifier,
		log:            opts.Logger,
		locks:          NewKeyedMutex(),
		minimum:        decimal.NewFromInt(DefaultMinimumWithdrawal),
		defaultPercent: DefaultRoyaltyPercentage,
		operatorEmail:  opts.OperatorEmail,
		currencySymbol: opts.CurrencySymbol,
		now:            opts.Clock,
		newID:          opts.NewID,
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	if opts.MinimumWithdrawal != nil {
		l.minimum = *opts.MinimumWithdrawal
	}
	if opts.DefaultRoyaltyPercentage != nil {
		l.defaultPercent = *opts.DefaultRoyaltyPercentage
	}
	if l.currencySymbol == "" {
		l.currencySymbol = DefaultCurrencySymbol
	}
	if l.now == nil {
		l.now = func() time.Time { return time.Now().UTC() }
	}
	if l.newID == nil {
		l.newID = func() string { return uuid.NewString() }
	}
	return l
}

// MinimumWithdrawal returns the configured threshold.
func (l *Ledger) MinimumWithdrawal() decimal.Decimal {
	return l.minimum
}

// Store exposes the underlying store for read-only collaborators.
func (l *Ledger) Store() Store {
	return l.store
}

// =============================================================================
// HELPERS
// =============================================================================

// transactional reports whether multi-row writes can be made atomic.
func (l *Ledger) transactional() (TxStore, bool) {
	ts, ok := l.store.(TxStore)
	return ts, ok
}

// lockAuthor serializes wallet mutations for one author.
func (l *Ledger) lockAuthor(id AuthorID) func() {
	return l.locks.Lock(string(id))
}

// withRetry reruns fn while it fails with a retryable error.
func (l *Ledger) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxWalletAttempts; attempt++ {
		err = fn()
		if err == nil || !IsRetryable(err) {
			return err
		}
		l.log.Warn("retrying after concurrent wallet modification",
			zap.String("op", op), zap.Int("attempt", attempt))
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

// classify wraps anything that is not already part of the taxonomy as a
// StorageFailure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		ErrInvalidInput, ErrNotFound, ErrBelowMinimum,
		ErrStorageFailure, ErrReconciliationNeeded,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return storageErr(op, err)
}

// reconcile logs a partial write distinctly and returns it as an error.
func (l *Ledger) reconcile(operation string, authorID AuthorID, ref string, cause error) error {
	l.log.Error("partial write requires manual reconciliation",
		zap.Bool("reconciliation_needed", true),
		zap.String("operation", operation),
		zap.String("author_id", string(authorID)),
		zap.String("ref", ref),
		zap.Error(cause),
	)
	return &ReconciliationError{Operation: operation, AuthorID: authorID, Ref: ref, Err: cause}
}

func (l *Ledger) requireAuthor(ctx context.Context, s Store, id AuthorID) (*Author, error) {
	if id == "" {
		return nil, invalid("author_id", "is required")
	}
	a, err := s.GetAuthor(ctx, id)
	if err != nil {
		return nil, storageErr("get author", err)
	}
	if a == nil {
		return nil, notFound("author", string(id))
	}
	return a, nil
}
