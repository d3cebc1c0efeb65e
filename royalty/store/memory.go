// Package store provides in-memory royalty.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ritera/royalty-engine/royalty"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a royalty.Store without transactions. Every call is atomic on
// its own, nothing more.
type Memory struct {
	mu sync.RWMutex
	st *state
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

func (m *Memory) SaveAuthor(ctx context.Context, a royalty.Author) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveAuthor(ctx, a)
}

func (m *Memory) UpdateAuthor(ctx context.Context, a royalty.Author) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpdateAuthor(ctx, a)
}

func (m *Memory) GetAuthor(ctx context.Context, id royalty.AuthorID) (*royalty.Author, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetAuthor(ctx, id)
}

func (m *Memory) GetAuthorByUserID(ctx context.Context, userID royalty.UserID) (*royalty.Author, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetAuthorByUserID(ctx, userID)
}

func (m *Memory) ListAuthors(ctx context.Context) ([]royalty.Author, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListAuthors(ctx)
}

func (m *Memory) DeleteAuthor(ctx context.Context, id royalty.AuthorID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteAuthor(ctx, id)
}

func (m *Memory) SaveBook(ctx context.Context, b royalty.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveBook(ctx, b)
}

func (m *Memory) GetBook(ctx context.Context, id royalty.BookID) (*royalty.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetBook(ctx, id)
}

func (m *Memory) ListBooksByAuthor(ctx context.Context, authorID royalty.AuthorID) ([]royalty.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListBooksByAuthor(ctx, authorID)
}

func (m *Memory) AppendSale(ctx context.Context, s royalty.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AppendSale(ctx, s)
}

func (m *Memory) GetSaleByIdempotencyKey(ctx context.Context, key string) (*royalty.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetSaleByIdempotencyKey(ctx, key)
}

func (m *Memory) ListSalesByBook(ctx context.Context, bookID royalty.BookID) ([]royalty.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListSalesByBook(ctx, bookID)
}

func (m *Memory) GetWallet(ctx context.Context, authorID royalty.AuthorID) (*royalty.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetWallet(ctx, authorID)
}

func (m *Memory) SaveWallet(ctx context.Context, w royalty.Wallet) (royalty.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveWallet(ctx, w)
}

func (m *Memory) AppendWithdrawal(ctx context.Context, w royalty.Withdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AppendWithdrawal(ctx, w)
}

func (m *Memory) GetWithdrawalByIdempotencyKey(ctx context.Context, key string) (*royalty.Withdrawal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetWithdrawalByIdempotencyKey(ctx, key)
}

func (m *Memory) ListWithdrawalsByAuthor(ctx context.Context, authorID royalty.AuthorID) ([]royalty.Withdrawal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListWithdrawalsByAuthor(ctx, authorID)
}

func (m *Memory) ListWithdrawalsByStatus(ctx context.Context, status royalty.WithdrawalStatus) ([]royalty.Withdrawal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListWithdrawalsByStatus(ctx, status)
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(royalty.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.st.clone()

	if err := fn(tm.st); err != nil {
		tm.st = snapshot
		return err
	}
	return nil
}

// =============================================================================
// STATE - unlocked data shared by Memory and transactional views
// =============================================================================

type state struct {
	authors     map[royalty.AuthorID]royalty.Author
	authorOrder []royalty.AuthorID
	books       map[royalty.BookID]royalty.Book
	sales       []royalty.Sale
	saleKeys    map[string]int
	wallets     map[royalty.AuthorID]royalty.Wallet
	withdrawals []royalty.Withdrawal
	wdKeys      map[string]int
}

func newState() *state {
	return &state{
		authors:  make(map[royalty.AuthorID]royalty.Author),
		books:    make(map[royalty.BookID]royalty.Book),
		saleKeys: make(map[string]int),
		wallets:  make(map[royalty.AuthorID]royalty.Wallet),
		wdKeys:   make(map[string]int),
	}
}

func (s *state) clone() *state {
	c := &state{
		authors:     make(map[royalty.AuthorID]royalty.Author, len(s.authors)),
		authorOrder: append([]royalty.AuthorID{}, s.authorOrder...),
		books:       make(map[royalty.BookID]royalty.Book, len(s.books)),
		sales:       append([]royalty.Sale{}, s.sales...),
		saleKeys:    make(map[string]int, len(s.saleKeys)),
		wallets:     make(map[royalty.AuthorID]royalty.Wallet, len(s.wallets)),
		withdrawals: append([]royalty.Withdrawal{}, s.withdrawals...),
		wdKeys:      make(map[string]int, len(s.wdKeys)),
	}
	for k, v := range s.authors {
		c.authors[k] = v
	}
	for k, v := range s.books {
		c.books[k] = v
	}
	for k, v := range s.saleKeys {
		c.saleKeys[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.wdKeys {
		c.wdKeys[k] = v
	}
	return c
}

func (s *state) SaveAuthor(_ context.Context, a royalty.Author) error {
	if _, ok := s.authors[a.ID]; ok {
		return fmt.Errorf("author %s already exists", a.ID)
	}
	for _, existing := range s.authors {
		if a.UserID != "" && existing.UserID == a.UserID {
			return fmt.Errorf("user %s already linked to author %s", a.UserID, existing.ID)
		}
	}
	s.authors[a.ID] = a
	s.authorOrder = append(s.authorOrder, a.ID)
	return nil
}

func (s *state) UpdateAuthor(_ context.Context, a royalty.Author) error {
	if _, ok := s.authors[a.ID]; !ok {
		return fmt.Errorf("author %s: %w", a.ID, royalty.ErrNotFound)
	}
	s.authors[a.ID] = a
	return nil
}

func (s *state) GetAuthor(_ context.Context, id royalty.AuthorID) (*royalty.Author, error) {
	a, ok := s.authors[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *state) GetAuthorByUserID(_ context.Context, userID royalty.UserID) (*royalty.Author, error) {
	for _, a := range s.authors {
		if a.UserID == userID {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (s *state) ListAuthors(_ context.Context) ([]royalty.Author, error) {
	out := make([]royalty.Author, 0, len(s.authorOrder))
	for i := len(s.authorOrder) - 1; i >= 0; i-- {
		out = append(out, s.authors[s.authorOrder[i]])
	}
	return out, nil
}

func (s *state) DeleteAuthor(_ context.Context, id royalty.AuthorID) error {
	if _, ok := s.authors[id]; !ok {
		return nil
	}
	delete(s.authors, id)
	for i, aid := range s.authorOrder {
		if aid == id {
			s.authorOrder = append(s.authorOrder[:i:i], s.authorOrder[i+1:]...)
			break
		}
	}

	books := make(map[royalty.BookID]bool)
	for bid, b := range s.books {
		if b.AuthorID == id {
			books[bid] = true
			delete(s.books, bid)
		}
	}

	kept := s.sales[:0:0]
	for _, sale := range s.sales {
		if !books[sale.BookID] {
			kept = append(kept, sale)
		}
	}
	s.sales = kept

	keptW := s.withdrawals[:0:0]
	for _, w := range s.withdrawals {
		if w.AuthorID != id {
			keptW = append(keptW, w)
		}
	}
	s.withdrawals = keptW

	delete(s.wallets, id)
	s.reindex()
	return nil
}

// reindex rebuilds the idempotency indexes after a cascade.
func (s *state) reindex() {
	s.saleKeys = make(map[string]int)
	for i, sale := range s.sales {
		if sale.IdempotencyKey != "" {
			s.saleKeys[sale.IdempotencyKey] = i
		}
	}
	s.wdKeys = make(map[string]int)
	for i, w := range s.withdrawals {
		if w.IdempotencyKey != "" {
			s.wdKeys[w.IdempotencyKey] = i
		}
	}
}

func (s *state) SaveBook(_ context.Context, b royalty.Book) error {
	if _, ok := s.authors[b.AuthorID]; !ok {
		return fmt.Errorf("book %s: author %s: %w", b.ID, b.AuthorID, royalty.ErrNotFound)
	}
	if _, ok := s.books[b.ID]; ok {
		return fmt.Errorf("book %s already exists", b.ID)
	}
	s.books[b.ID] = b
	return nil
}

func (s *state) GetBook(_ context.Context, id royalty.BookID) (*royalty.Book, error) {
	b, ok := s.books[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (s *state) ListBooksByAuthor(_ context.Context, authorID royalty.AuthorID) ([]royalty.Book, error) {
	var out []royalty.Book
	for _, b := range s.books {
		if b.AuthorID == authorID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title == out[j].Title {
			return out[i].ID < out[j].ID
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

func (s *state) AppendSale(_ context.Context, sale royalty.Sale) error {
	if _, ok := s.books[sale.BookID]; !ok {
		return fmt.Errorf("sale %s: book %s: %w", sale.ID, sale.BookID, royalty.ErrNotFound)
	}
	if sale.IdempotencyKey != "" {
		if _, dup := s.saleKeys[sale.IdempotencyKey]; dup {
			return royalty.ErrDuplicateIdempotencyKey
		}
		s.saleKeys[sale.IdempotencyKey] = len(s.sales)
	}
	s.sales = append(s.sales, sale)
	return nil
}

func (s *state) GetSaleByIdempotencyKey(_ context.Context, key string) (*royalty.Sale, error) {
	i, ok := s.saleKeys[key]
	if !ok {
		return nil, nil
	}
	sale := s.sales[i]
	return &sale, nil
}

func (s *state) ListSalesByBook(_ context.Context, bookID royalty.BookID) ([]royalty.Sale, error) {
	var out []royalty.Sale
	for _, sale := range s.sales {
		if sale.BookID == bookID {
			out = append(out, sale)
		}
	}
	return out, nil
}

func (s *state) GetWallet(_ context.Context, authorID royalty.AuthorID) (*royalty.Wallet, error) {
	w, ok := s.wallets[authorID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (s *state) SaveWallet(_ context.Context, w royalty.Wallet) (royalty.Wallet, error) {
	if _, ok := s.authors[w.AuthorID]; !ok {
		return royalty.Wallet{}, fmt.Errorf("wallet: author %s: %w", w.AuthorID, royalty.ErrNotFound)
	}
	current, exists := s.wallets[w.AuthorID]
	switch {
	case w.Version == 0 && exists:
		return royalty.Wallet{}, royalty.ErrConcurrentModification
	case w.Version != 0 && (!exists || current.Version != w.Version):
		return royalty.Wallet{}, royalty.ErrConcurrentModification
	}
	w.Version++
	s.wallets[w.AuthorID] = w
	return w, nil
}

func (s *state) AppendWithdrawal(_ context.Context, w royalty.Withdrawal) error {
	if _, ok := s.authors[w.AuthorID]; !ok {
		return fmt.Errorf("withdrawal %s: author %s: %w", w.ID, w.AuthorID, royalty.ErrNotFound)
	}
	if w.IdempotencyKey != "" {
		if _, dup := s.wdKeys[w.IdempotencyKey]; dup {
			return royalty.ErrDuplicateIdempotencyKey
		}
		s.wdKeys[w.IdempotencyKey] = len(s.withdrawals)
	}
	s.withdrawals = append(s.withdrawals, w)
	return nil
}

func (s *state) GetWithdrawalByIdempotencyKey(_ context.Context, key string) (*royalty.Withdrawal, error) {
	i, ok := s.wdKeys[key]
	if !ok {
		return nil, nil
	}
	w := s.withdrawals[i]
	return &w, nil
}

func (s *state) ListWithdrawalsByAuthor(_ context.Context, authorID royalty.AuthorID) ([]royalty.Withdrawal, error) {
	var out []royalty.Withdrawal
	for i := len(s.withdrawals) - 1; i >= 0; i-- {
		if s.withdrawals[i].AuthorID == authorID {
			out = append(out, s.withdrawals[i])
		}
	}
	return out, nil
}

func (s *state) ListWithdrawalsByStatus(_ context.Context, status royalty.WithdrawalStatus) ([]royalty.Withdrawal, error) {
	var out []royalty.Withdrawal
	for _, w := range s.withdrawals {
		if w.Status == status {
			out = append(out, w)
		}
	}
	return out, nil
}
