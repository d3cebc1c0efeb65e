/*
store.go - Persistence interface for authors, books, sales, wallets and withdrawals

PURPOSE:
  Defines the boundary between the royalty workflow and the database.
  Different implementations use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:   point reads, inserts and the versioned wallet write
  TxStore: Store plus WithTx for multi-row atomic writes

APPEND-ONLY RECORDS:
  Sales and withdrawals only have Append methods. There is no Update or
  Delete for either, except the cascade that runs when an author is removed.

WALLET VERSIONING:
  SaveWallet is a compare-and-set on Wallet.Version:
    - Version 0 inserts a new wallet (fails if one already exists)
    - Version N updates the row only if it is still at version N
  Either way the stored wallet comes back with Version N+1. A lost race
  returns ErrConcurrentModification.

IDEMPOTENCY:
  A sale or withdrawal may carry an idempotency key. Appending a second
  record with the same key returns ErrDuplicateIdempotencyKey.

MISSING ROWS:
  Get* methods return (nil, nil) when the row does not exist.

IMPLEMENTATIONS:
  - royalty/store/memory.go: in-memory, for tests and development
  - store/sqlite/sqlite.go:  default single-node store
  - store/postgres/postgres.go: multi-process store with row locks
*/
package royalty

import "context"

// Store handles persistence of the ledger records.
type Store interface {
	SaveAuthor(ctx context.Context, a Author) error
	UpdateAuthor(ctx context.Context, a Author) error
	GetAuthor(ctx context.Context, id AuthorID) (*Author, error)
	GetAuthorByUserID(ctx context.Context, userID UserID) (*Author, error)
	// ListAuthors returns authors newest first.
	ListAuthors(ctx context.Context) ([]Author, error)
	// DeleteAuthor removes the author and cascades to books, sales,
	// wallet and withdrawals.
	DeleteAuthor(ctx context.Context, id AuthorID) error

	SaveBook(ctx context.Context, b Book) error
	GetBook(ctx context.Context, id BookID) (*Book, error)
	// ListBooksByAuthor returns books ordered by title.
	ListBooksByAuthor(ctx context.Context, authorID AuthorID) ([]Book, error)

	AppendSale(ctx context.Context, s Sale) error
	GetSaleByIdempotencyKey(ctx context.Context, key string) (*Sale, error)
	ListSalesByBook(ctx context.Context, bookID BookID) ([]Sale, error)

	GetWallet(ctx context.Context, authorID AuthorID) (*Wallet, error)
	SaveWallet(ctx context.Context, w Wallet) (Wallet, error)

	AppendWithdrawal(ctx context.Context, w Withdrawal) error
	GetWithdrawalByIdempotencyKey(ctx context.Context, key string) (*Withdrawal, error)
	ListWithdrawalsByAuthor(ctx context.Context, authorID AuthorID) ([]Withdrawal, error)
	ListWithdrawalsByStatus(ctx context.Context, status WithdrawalStatus) ([]Withdrawal, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
