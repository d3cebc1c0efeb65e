/*
sales.go - Sale recording

REQUEST FLOW:
  1. Resolve book   -> author id       (NotFound)
  2. Resolve author -> percentage      (NotFound, logged as data-integrity error)
  3. ComputeRoyalty
  4. Append sale                        ┐ one transaction on a TxStore;
  5. Accrue wallet                      ┘ ReconciliationNeeded otherwise

IDEMPOTENCY:
  A sale carrying an idempotency key that was already recorded returns the
  original result. The wallet is not touched a second time.
*/
package royalty

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type SaleInput struct {
	BookID         BookID
	Copies         int
	Amount         decimal.Decimal
	IdempotencyKey string
}

type SaleResult struct {
	SaleID       SaleID
	AuthorID     AuthorID
	RoyaltyAdded decimal.Decimal
	Balance      decimal.Decimal
	// Replayed is true when the idempotency key matched an earlier sale.
	Replayed bool
}

func (in SaleInput) validate() error {
	if strings.TrimSpace(string(in.BookID)) == "" {
		return invalid("book_id", "is required")
	}
	if in.Copies <= 0 {
		return invalid("copies", "must be positive")
	}
	if !in.Amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	return nil
}

// RecordSale appends a sale and accrues the author's royalty.
func (l *Ledger) RecordSale(ctx context.Context, in SaleInput) (SaleResult, error) {
	if err := in.validate(); err != nil {
		return SaleResult{}, err
	}

	book, err := l.store.GetBook(ctx, in.BookID)
	if err != nil {
		return SaleResult{}, storageErr("get book", err)
	}
	if book == nil {
		return SaleResult{}, notFound("book", string(in.BookID))
	}

	author, err := l.store.GetAuthor(ctx, book.AuthorID)
	if err != nil {
		return SaleResult{}, storageErr("get author", err)
	}
	if author == nil {
		l.log.Error("book references a missing author",
			zap.String("book_id", string(book.ID)),
			zap.String("author_id", string(book.AuthorID)),
		)
		return SaleResult{}, notFound("author", string(book.AuthorID))
	}

	royalty, err := ComputeRoyalty(in.Amount, author.RoyaltyPercentage)
	if err != nil {
		return SaleResult{}, err
	}

	unlock := l.lockAuthor(author.ID)
	defer unlock()

	if in.IdempotencyKey != "" {
		if res, ok, err := l.replaySale(ctx, in, author.ID); err != nil || ok {
			return res, err
		}
	}

	sale := Sale{
		ID:             SaleID(l.newID()),
		BookID:         book.ID,
		Copies:         in.Copies,
		Amount:         in.Amount,
		Royalty:        royalty,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      l.now(),
	}

	var wallet Wallet
	if ts, ok := l.transactional(); ok {
		err = l.withRetry(ctx, "record sale", func() error {
			return ts.WithTx(ctx, func(s Store) error {
				if err := s.AppendSale(ctx, sale); err != nil {
					return err
				}
				var err error
				wallet, err = l.accrue(ctx, s, author.ID, royalty)
				return err
			})
		})
	} else {
		wallet, err = l.recordSaleUnsafe(ctx, sale, author.ID)
	}

	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		res, _, rerr := l.replaySale(ctx, in, author.ID)
		return res, rerr
	}
	if err != nil {
		return SaleResult{}, classify("record sale", err)
	}

	l.log.Info("sale recorded",
		zap.String("sale_id", string(sale.ID)),
		zap.String("book_id", string(book.ID)),
		zap.String("author_id", string(author.ID)),
		zap.Int("copies", sale.Copies),
		zap.String("amount", sale.Amount.String()),
		zap.String("royalty", royalty.String()),
	)

	return SaleResult{
		SaleID:       sale.ID,
		AuthorID:     author.ID,
		RoyaltyAdded: royalty,
		Balance:      wallet.Balance,
	}, nil
}

// recordSaleUnsafe runs steps 4 and 5 as separate writes. The sale is never
// rolled back; a failed accrual is reported for reconciliation.
func (l *Ledger) recordSaleUnsafe(ctx context.Context, sale Sale, authorID AuthorID) (Wallet, error) {
	if err := l.store.AppendSale(ctx, sale); err != nil {
		return Wallet{}, err
	}

	var wallet Wallet
	err := l.withRetry(ctx, "accrue", func() error {
		var err error
		wallet, err = l.accrue(ctx, l.store, authorID, sale.Royalty)
		return err
	})
	if err != nil {
		return Wallet{}, l.reconcile("record_sale", authorID, string(sale.ID), err)
	}
	return wallet, nil
}

// replaySale looks up an earlier sale with the same idempotency key.
func (l *Ledger) replaySale(ctx context.Context, in SaleInput, authorID AuthorID) (SaleResult, bool, error) {
	prior, err := l.store.GetSaleByIdempotencyKey(ctx, in.IdempotencyKey)
	if err != nil {
		return SaleResult{}, false, storageErr("get sale", err)
	}
	if prior == nil {
		return SaleResult{}, false, nil
	}
	if prior.BookID != in.BookID || prior.Copies != in.Copies || !prior.Amount.Equal(in.Amount) {
		return SaleResult{}, false, invalid("idempotency_key", "already used for a different sale")
	}

	wallet, err := l.store.GetWallet(ctx, authorID)
	if err != nil {
		return SaleResult{}, false, storageErr("get wallet", err)
	}
	res := SaleResult{
		SaleID:       prior.ID,
		AuthorID:     authorID,
		RoyaltyAdded: prior.Royalty,
		Replayed:     true,
	}
	if wallet != nil {
		res.Balance = wallet.Balance
	}
	return res, true, nil
}
