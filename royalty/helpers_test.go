package royalty_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ritera/royalty-engine/royalty"
	"github.com/ritera/royalty-engine/royalty/store"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type fakeIdentity struct {
	mu        sync.Mutex
	users     map[royalty.UserID]string
	next      int
	createErr error
	deleteErr error
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{users: make(map[royalty.UserID]string)}
}

func (f *fakeIdentity) CreateUser(_ context.Context, email, _ string) (royalty.UserID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.next++
	id := royalty.UserID(fmt.Sprintf("user-%d", f.next))
	f.users[id] = email
	return id, nil
}

func (f *fakeIdentity) DeleteUser(_ context.Context, id royalty.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.users, id)
	return nil
}

func (f *fakeIdentity) has(id royalty.UserID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.users[id]
	return ok
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []royalty.Message
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, msg royalty.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) messages() []royalty.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]royalty.Message(nil), n.sent...)
}

// flakyStore fails selected writes on a plain, non-transactional store.
type flakyStore struct {
	royalty.Store
	failSaveWallet   bool
	failSaveAuthor   bool
	failDeleteAuthor bool
}

var errDiskFull = errors.New("disk full")

func (s *flakyStore) SaveWallet(ctx context.Context, w royalty.Wallet) (royalty.Wallet, error) {
	if s.failSaveWallet {
		return royalty.Wallet{}, errDiskFull
	}
	return s.Store.SaveWallet(ctx, w)
}

func (s *flakyStore) SaveAuthor(ctx context.Context, a royalty.Author) error {
	if s.failSaveAuthor {
		return errDiskFull
	}
	return s.Store.SaveAuthor(ctx, a)
}

func (s *flakyStore) DeleteAuthor(ctx context.Context, id royalty.AuthorID) error {
	if s.failDeleteAuthor {
		return errDiskFull
	}
	return s.Store.DeleteAuthor(ctx, id)
}

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	ledger   *royalty.Ledger
	identity *fakeIdentity
	notifier *recordingNotifier
}

func newFixture(t *testing.T, s royalty.Store) *fixture {
	t.Helper()
	f := &fixture{identity: newFakeIdentity(), notifier: &recordingNotifier{}}
	f.ledger = royalty.NewLedger(s, royalty.Options{
		Identity:      f.identity,
		Notifier:      f.notifier,
		OperatorEmail: "ops@example.com",
		Clock:         func() time.Time { return time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC) },
	})
	return f
}

func newTxFixture(t *testing.T) *fixture {
	return newFixture(t, store.NewTxMemory())
}

func pct(p int) *int { return &p }

func ptr[T any](v T) *T { return &v }

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) author(t *testing.T, name string, percentage int) royalty.Author {
	t.Helper()
	a, err := f.ledger.CreateAuthor(context.Background(), royalty.AuthorInput{
		Name:              name,
		Email:             fmt.Sprintf("%s@example.com", name),
		Password:          "secret-pass",
		RoyaltyPercentage: pct(percentage),
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) book(t *testing.T, authorID royalty.AuthorID, title string) royalty.Book {
	t.Helper()
	b, err := f.ledger.CreateBook(context.Background(), royalty.BookInput{AuthorID: authorID, Title: title})
	require.NoError(t, err)
	return b
}

func (f *fixture) sell(t *testing.T, bookID royalty.BookID, copies int, amount string) royalty.SaleResult {
	t.Helper()
	res, err := f.ledger.RecordSale(context.Background(), royalty.SaleInput{
		BookID: bookID, Copies: copies, Amount: amt(amount),
	})
	require.NoError(t, err)
	return res
}
