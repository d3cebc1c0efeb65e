/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements royalty.TxStore using SQLite. store/postgres carries the same
  schema for deployments with more than one process.

INTERFACES IMPLEMENTED:
  royalty.Store:   authors, books, sales, wallets, withdrawals
  royalty.TxStore: WithTx over a database/sql transaction

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on sales or withdrawals
  - Rows only disappear through ON DELETE CASCADE from authors

KEY TABLES:
  authors:     payee profile, linked to an identity user
  books:       one author per book
  sales:       immutable sales history with the royalty each one produced
  wallets:     one row per author, versioned for compare-and-set
  withdrawals: payout requests

MONEY:
  Amounts are stored as decimal TEXT and parsed back with shopspring/decimal,
  never as REAL.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, so an
  in-memory database is shared by every call. The wallet version column
  still guards against lost updates.

USAGE:
  store, err := sqlite.New("./data/royalty.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := royalty.NewLedger(store, royalty.Options{...})

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - royalty/store.go: Interface definitions
  - royalty/store/memory.go: In-memory implementation for testing
  - credentials.go: identity credentials in their own database
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/ritera/royalty-engine/royalty"
)

// Store implements royalty.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS authors (
		id TEXT PRIMARY KEY,
		user_id TEXT UNIQUE,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		royalty_percentage INTEGER NOT NULL
			CHECK (royalty_percentage BETWEEN 0 AND 100),
		bank_account_name TEXT NOT NULL DEFAULT '',
		bank_account_number TEXT NOT NULL DEFAULT '',
		bank_name TEXT NOT NULL DEFAULT '',
		bank_ifsc TEXT NOT NULL DEFAULT '',
		bank_upi TEXT NOT NULL DEFAULT '',
		bank_verified INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS books (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL REFERENCES authors(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		cover_url TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_books_author
		ON books(author_id, title);

	-- Sales (append-only)
	CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		book_id TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
		copies INTEGER NOT NULL CHECK (copies > 0),
		amount TEXT NOT NULL,
		royalty TEXT NOT NULL,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sales_book
		ON sales(book_id, created_at);

	-- Wallets (one per author, compare-and-set on version)
	CREATE TABLE IF NOT EXISTS wallets (
		author_id TEXT PRIMARY KEY REFERENCES authors(id) ON DELETE CASCADE,
		balance TEXT NOT NULL,
		paid TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Withdrawals (append-only)
	CREATE TABLE IF NOT EXISTS withdrawals (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL REFERENCES authors(id) ON DELETE CASCADE,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'completed', 'rejected')),
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawals_author
		ON withdrawals(author_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_withdrawals_status
		ON withdrawals(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STORE (royalty.Store interface)
// =============================================================================

func (s *Store) SaveAuthor(ctx context.Context, a royalty.Author) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.SaveAuthor(ctx, a)
}

func (s *Store) UpdateAuthor(ctx context.Context, a royalty.Author) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.UpdateAuthor(ctx, a)
}

func (s *Store) GetAuthor(ctx context.Context, id royalty.AuthorID) (*royalty.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.GetAuthor(ctx, id)
}

func (s *Store) GetAuthorByUserID(ctx context.Context, userID royalty.UserID) (*royalty.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.GetAuthorByUserID(ctx, userID)
}

func (s *Store) ListAuthors(ctx context.Context) ([]royalty.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.ListAuthors(ctx)
}

func (s *Store) DeleteAuthor(ctx context.Context, id royalty.AuthorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.DeleteAuthor(ctx, id)
}

func (s *Store) SaveBook(ctx context.Context, b royalty.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.SaveBook(ctx, b)
}

func (s *Store) GetBook(ctx context.Context, id royalty.BookID) (*royalty.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.GetBook(ctx, id)
}

func (s *Store) ListBooksByAuthor(ctx context.Context, authorID royalty.AuthorID) ([]royalty.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.ListBooksByAuthor(ctx, authorID)
}

func (s *Store) AppendSale(ctx context.Context, sale royalty.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.AppendSale(ctx, sale)
}

func (s *Store) GetSaleByIdempotencyKey(ctx context.Context, key string) (*royalty.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.GetSaleByIdempotencyKey(ctx, key)
}

func (s *Store) ListSalesByBook(ctx context.Context, bookID royalty.BookID) ([]royalty.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.ListSalesByBook(ctx, bookID)
}

func (s *Store) GetWallet(ctx context.Context, authorID royalty.AuthorID) (*royalty.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.GetWallet(ctx, authorID)
}

func (s *Store) SaveWallet(ctx context.Context, w royalty.Wallet) (royalty.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.SaveWallet(ctx, w)
}

func (s *Store) AppendWithdrawal(ctx context.Context, w royalty.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.AppendWithdrawal(ctx, w)
}

func (s *Store) GetWithdrawalByIdempotencyKey(ctx context.Context, key string) (*royalty.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.GetWithdrawalByIdempotencyKey(ctx, key)
}

func (s *Store) ListWithdrawalsByAuthor(ctx context.Context, authorID royalty.AuthorID) ([]royalty.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.ListWithdrawalsByAuthor(ctx, authorID)
}

func (s *Store) ListWithdrawalsByStatus(ctx context.Context, status royalty.WithdrawalStatus) ([]royalty.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.ListWithdrawalsByStatus(ctx, status)
}

// =============================================================================
// TRANSACTIONAL STORE (royalty.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store royalty.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"withdrawals", "wallets", "sales", "books", "authors"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// QUERIES - shared by *sql.DB and *sql.Tx
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements royalty.Store without locking.
type queries struct {
	db querier
}

const authorColumns = `id, user_id, name, email, royalty_percentage,
	bank_account_name, bank_account_number, bank_name, bank_ifsc, bank_upi,
	bank_verified, created_at, updated_at`

func (q queries) SaveAuthor(ctx context.Context, a royalty.Author) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO authors (`+authorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, nullString(string(a.UserID)), a.Name, a.Email, a.RoyaltyPercentage,
		a.Bank.AccountName, a.Bank.AccountNumber, a.Bank.BankName, a.Bank.IFSC, a.Bank.UPI,
		a.BankVerified, formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save author: %w", err)
	}
	return nil
}

func (q queries) UpdateAuthor(ctx context.Context, a royalty.Author) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE authors SET
			name = ?, email = ?, royalty_percentage = ?,
			bank_account_name = ?, bank_account_number = ?, bank_name = ?,
			bank_ifsc = ?, bank_upi = ?, bank_verified = ?, updated_at = ?
		WHERE id = ?`,
		a.Name, a.Email, a.RoyaltyPercentage,
		a.Bank.AccountName, a.Bank.AccountNumber, a.Bank.BankName,
		a.Bank.IFSC, a.Bank.UPI, a.BankVerified, formatTime(a.UpdatedAt),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update author: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("author %s: %w", a.ID, royalty.ErrNotFound)
	}
	return nil
}

func (q queries) GetAuthor(ctx context.Context, id royalty.AuthorID) (*royalty.Author, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+authorColumns+" FROM authors WHERE id = ?", id)
	return scanAuthorRow(row)
}

func (q queries) GetAuthorByUserID(ctx context.Context, userID royalty.UserID) (*royalty.Author, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+authorColumns+" FROM authors WHERE user_id = ?", userID)
	return scanAuthorRow(row)
}

func (q queries) ListAuthors(ctx context.Context) ([]royalty.Author, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+authorColumns+" FROM authors ORDER BY created_at DESC, rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query authors: %w", err)
	}
	defer rows.Close()

	var authors []royalty.Author
	for rows.Next() {
		a, err := scanAuthor(rows)
		if err != nil {
			return nil, err
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

func (q queries) DeleteAuthor(ctx context.Context, id royalty.AuthorID) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM authors WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete author: %w", err)
	}
	return nil
}

func (q queries) SaveBook(ctx context.Context, b royalty.Book) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO books (id, author_id, title, cover_url, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.AuthorID, b.Title, b.CoverURL, formatTime(b.CreatedAt),
	)
	if isForeignKeyError(err) {
		return fmt.Errorf("book %s: author %s: %w", b.ID, b.AuthorID, royalty.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to save book: %w", err)
	}
	return nil
}

func (q queries) GetBook(ctx context.Context, id royalty.BookID) (*royalty.Book, error) {
	var b royalty.Book
	var createdAt string
	err := q.db.QueryRowContext(ctx,
		"SELECT id, author_id, title, cover_url, created_at FROM books WHERE id = ?", id,
	).Scan(&b.ID, &b.AuthorID, &b.Title, &b.CoverURL, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("book %s: %w", b.ID, err)
	}
	return &b, nil
}

func (q queries) ListBooksByAuthor(ctx context.Context, authorID royalty.AuthorID) ([]royalty.Book, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, author_id, title, cover_url, created_at
		FROM books WHERE author_id = ?
		ORDER BY title, id`, authorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	var books []royalty.Book
	for rows.Next() {
		var b royalty.Book
		var createdAt string
		if err := rows.Scan(&b.ID, &b.AuthorID, &b.Title, &b.CoverURL, &createdAt); err != nil {
			return nil, err
		}
		if b.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("book %s: %w", b.ID, err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (q queries) AppendSale(ctx context.Context, sale royalty.Sale) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sales (id, book_id, copies, amount, royalty, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.BookID, sale.Copies, sale.Amount.String(), sale.Royalty.String(),
		nullString(sale.IdempotencyKey), formatTime(sale.CreatedAt),
	)
	switch {
	case err == nil:
		return nil
	case isUniqueConstraintError(err) && strings.Contains(err.Error(), "idempotency_key"):
		return royalty.ErrDuplicateIdempotencyKey
	case isForeignKeyError(err):
		return fmt.Errorf("sale %s: book %s: %w", sale.ID, sale.BookID, royalty.ErrNotFound)
	default:
		return fmt.Errorf("failed to append sale: %w", err)
	}
}

const saleColumns = "id, book_id, copies, amount, royalty, idempotency_key, created_at"

func (q queries) GetSaleByIdempotencyKey(ctx context.Context, key string) (*royalty.Sale, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+saleColumns+" FROM sales WHERE idempotency_key = ?", key)
	sale, err := scanSale(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (q queries) ListSalesByBook(ctx context.Context, bookID royalty.BookID) ([]royalty.Sale, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+saleColumns+" FROM sales WHERE book_id = ? ORDER BY created_at, rowid", bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var sales []royalty.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func (q queries) GetWallet(ctx context.Context, authorID royalty.AuthorID) (*royalty.Wallet, error) {
	var (
		w                       royalty.Wallet
		balance, paid, updateAt string
	)
	err := q.db.QueryRowContext(ctx,
		"SELECT author_id, balance, paid, version, updated_at FROM wallets WHERE author_id = ?", authorID,
	).Scan(&w.AuthorID, &balance, &paid, &w.Version, &updateAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if w.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("wallet %s: bad balance %q: %w", authorID, balance, err)
	}
	if w.Paid, err = decimal.NewFromString(paid); err != nil {
		return nil, fmt.Errorf("wallet %s: bad paid %q: %w", authorID, paid, err)
	}
	if w.UpdatedAt, err = parseTime(updateAt); err != nil {
		return nil, fmt.Errorf("wallet %s: %w", authorID, err)
	}
	return &w, nil
}

// SaveWallet inserts at version 0 and otherwise updates only if the stored
// version still matches.
func (q queries) SaveWallet(ctx context.Context, w royalty.Wallet) (royalty.Wallet, error) {
	next := w
	next.Version = w.Version + 1

	if w.Version == 0 {
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO wallets (author_id, balance, paid, version, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			w.AuthorID, w.Balance.String(), w.Paid.String(), next.Version, formatTime(w.UpdatedAt),
		)
		switch {
		case err == nil:
			return next, nil
		case isUniqueConstraintError(err):
			return royalty.Wallet{}, royalty.ErrConcurrentModification
		case isForeignKeyError(err):
			return royalty.Wallet{}, fmt.Errorf("wallet: author %s: %w", w.AuthorID, royalty.ErrNotFound)
		default:
			return royalty.Wallet{}, fmt.Errorf("failed to insert wallet: %w", err)
		}
	}

	res, err := q.db.ExecContext(ctx, `
		UPDATE wallets SET balance = ?, paid = ?, version = ?, updated_at = ?
		WHERE author_id = ? AND version = ?`,
		w.Balance.String(), w.Paid.String(), next.Version, formatTime(w.UpdatedAt),
		w.AuthorID, w.Version,
	)
	if err != nil {
		return royalty.Wallet{}, fmt.Errorf("failed to update wallet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return royalty.Wallet{}, royalty.ErrConcurrentModification
	}
	return next, nil
}

func (q queries) AppendWithdrawal(ctx context.Context, w royalty.Withdrawal) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO withdrawals (id, author_id, amount, status, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.AuthorID, w.Amount.String(), string(w.Status),
		nullString(w.IdempotencyKey), formatTime(w.CreatedAt),
	)
	switch {
	case err == nil:
		return nil
	case isUniqueConstraintError(err) && strings.Contains(err.Error(), "idempotency_key"):
		return royalty.ErrDuplicateIdempotencyKey
	case isForeignKeyError(err):
		return fmt.Errorf("withdrawal %s: author %s: %w", w.ID, w.AuthorID, royalty.ErrNotFound)
	default:
		return fmt.Errorf("failed to append withdrawal: %w", err)
	}
}

const withdrawalColumns = "id, author_id, amount, status, idempotency_key, created_at"

func (q queries) GetWithdrawalByIdempotencyKey(ctx context.Context, key string) (*royalty.Withdrawal, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+withdrawalColumns+" FROM withdrawals WHERE idempotency_key = ?", key)
	w, err := scanWithdrawal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (q queries) ListWithdrawalsByAuthor(ctx context.Context, authorID royalty.AuthorID) ([]royalty.Withdrawal, error) {
	return q.queryWithdrawals(ctx,
		"SELECT "+withdrawalColumns+" FROM withdrawals WHERE author_id = ? ORDER BY created_at DESC, rowid DESC",
		authorID)
}

func (q queries) ListWithdrawalsByStatus(ctx context.Context, status royalty.WithdrawalStatus) ([]royalty.Withdrawal, error) {
	return q.queryWithdrawals(ctx,
		"SELECT "+withdrawalColumns+" FROM withdrawals WHERE status = ? ORDER BY created_at, rowid",
		string(status))
}

func (q queries) queryWithdrawals(ctx context.Context, query string, args ...any) ([]royalty.Withdrawal, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query withdrawals: %w", err)
	}
	defer rows.Close()

	var out []royalty.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// =============================================================================
// SCANNERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanAuthorRow(row *sql.Row) (*royalty.Author, error) {
	a, err := scanAuthor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAuthor(sc scanner) (royalty.Author, error) {
	var (
		a                    royalty.Author
		userID               sql.NullString
		createdAt, updatedAt string
	)
	err := sc.Scan(
		&a.ID, &userID, &a.Name, &a.Email, &a.RoyaltyPercentage,
		&a.Bank.AccountName, &a.Bank.AccountNumber, &a.Bank.BankName, &a.Bank.IFSC, &a.Bank.UPI,
		&a.BankVerified, &createdAt, &updatedAt,
	)
	if err != nil {
		return a, err
	}
	a.UserID = royalty.UserID(userID.String)
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return a, fmt.Errorf("author %s: %w", a.ID, err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return a, fmt.Errorf("author %s: %w", a.ID, err)
	}
	return a, nil
}

func scanSale(sc scanner) (royalty.Sale, error) {
	var (
		sale                 royalty.Sale
		amount, royaltyValue string
		key                  sql.NullString
		createdAt            string
	)
	if err := sc.Scan(&sale.ID, &sale.BookID, &sale.Copies, &amount, &royaltyValue, &key, &createdAt); err != nil {
		return sale, err
	}
	var err error
	if sale.Amount, err = decimal.NewFromString(amount); err != nil {
		return sale, fmt.Errorf("sale %s: bad amount %q: %w", sale.ID, amount, err)
	}
	if sale.Royalty, err = decimal.NewFromString(royaltyValue); err != nil {
		return sale, fmt.Errorf("sale %s: bad royalty %q: %w", sale.ID, royaltyValue, err)
	}
	sale.IdempotencyKey = key.String
	if sale.CreatedAt, err = parseTime(createdAt); err != nil {
		return sale, fmt.Errorf("sale %s: %w", sale.ID, err)
	}
	return sale, nil
}

func scanWithdrawal(sc scanner) (royalty.Withdrawal, error) {
	var (
		w         royalty.Withdrawal
		amount    string
		status    string
		key       sql.NullString
		createdAt string
	)
	if err := sc.Scan(&w.ID, &w.AuthorID, &amount, &status, &key, &createdAt); err != nil {
		return w, err
	}
	var err error
	if w.Amount, err = decimal.NewFromString(amount); err != nil {
		return w, fmt.Errorf("withdrawal %s: bad amount %q: %w", w.ID, amount, err)
	}
	w.Status = royalty.WithdrawalStatus(status)
	if !w.Status.Valid() {
		return w, fmt.Errorf("withdrawal %s: bad status %q", w.ID, status)
	}
	w.IdempotencyKey = key.String
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return w, fmt.Errorf("withdrawal %s: %w", w.ID, err)
	}
	return w, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

var _ royalty.TxStore = (*Store)(nil)
