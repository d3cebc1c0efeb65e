package royalty

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// WALLET ACCRUAL
// =============================================================================

// Accrue adds royalty to the author's wallet, creating the wallet on first
// accrual, and returns the stored wallet.
func (l *Ledger) Accrue(ctx context.Context, authorID AuthorID, royalty decimal.Decimal) (Wallet, error) {
	if royalty.IsNegative() {
		return Wallet{}, invalid("royalty", "must not be negative")
	}
	if _, err := l.requireAuthor(ctx, l.store, authorID); err != nil {
		return Wallet{}, err
	}

	unlock := l.lockAuthor(authorID)
	defer unlock()

	var wallet Wallet
	err := l.withRetry(ctx, "accrue", func() error {
		var err error
		if ts, ok := l.transactional(); ok {
			err = ts.WithTx(ctx, func(s Store) error {
				wallet, err = l.accrue(ctx, s, authorID, royalty)
				return err
			})
		} else {
			wallet, err = l.accrue(ctx, l.store, authorID, royalty)
		}
		return err
	})
	if err != nil {
		return Wallet{}, classify("accrue", err)
	}
	return wallet, nil
}

// accrue is the read-modify-write on one wallet row. Callers hold the
// author lock.
func (l *Ledger) accrue(ctx context.Context, s Store, authorID AuthorID, royalty decimal.Decimal) (Wallet, error) {
	current, err := s.GetWallet(ctx, authorID)
	if err != nil {
		return Wallet{}, storageErr("get wallet", err)
	}

	next := Wallet{AuthorID: authorID, Balance: royalty, Paid: decimal.Zero}
	if current != nil {
		next = current.credit(royalty)
	}
	next.UpdatedAt = l.now()

	saved, err := s.SaveWallet(ctx, next)
	if err != nil {
		return Wallet{}, storageErr("save wallet", err)
	}

	l.log.Debug("wallet accrued",
		zap.String("author_id", string(authorID)),
		zap.String("royalty", royalty.String()),
		zap.String("balance", saved.Balance.String()),
	)
	return saved, nil
}

// Wallet returns the author's wallet, or an empty one if nothing has
// accrued yet.
func (l *Ledger) Wallet(ctx context.Context, authorID AuthorID) (Wallet, error) {
	if _, err := l.requireAuthor(ctx, l.store, authorID); err != nil {
		return Wallet{}, err
	}
	w, err := l.store.GetWallet(ctx, authorID)
	if err != nil {
		return Wallet{}, storageErr("get wallet", err)
	}
	if w == nil {
		return Wallet{AuthorID: authorID, Balance: decimal.Zero, Paid: decimal.Zero}, nil
	}
	return *w, nil
}
