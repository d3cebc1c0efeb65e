package royalty

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type BookInput struct {
	AuthorID AuthorID
	Title    string
	CoverURL string // optional
}

func (in BookInput) validate() error {
	if strings.TrimSpace(string(in.AuthorID)) == "" {
		return invalid("author_id", "is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return invalid("title", "is required")
	}
	if in.CoverURL != "" {
		u, err := url.Parse(in.CoverURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid("cover_url", "must be an absolute URL")
		}
	}
	return nil
}

// CreateBook assigns a new book to an existing author.
func (l *Ledger) CreateBook(ctx context.Context, in BookInput) (Book, error) {
	if err := in.validate(); err != nil {
		return Book{}, err
	}
	if _, err := l.requireAuthor(ctx, l.store, in.AuthorID); err != nil {
		return Book{}, err
	}

	book := Book{
		ID:        BookID(l.newID()),
		AuthorID:  in.AuthorID,
		Title:     strings.TrimSpace(in.Title),
		CoverURL:  in.CoverURL,
		CreatedAt: l.now(),
	}
	if err := l.store.SaveBook(ctx, book); err != nil {
		return Book{}, classify("save book", err)
	}

	l.log.Info("book created",
		zap.String("book_id", string(book.ID)),
		zap.String("author_id", string(book.AuthorID)),
	)
	return book, nil
}

// GetBook returns one book.
func (l *Ledger) GetBook(ctx context.Context, id BookID) (Book, error) {
	b, err := l.store.GetBook(ctx, id)
	if err != nil {
		return Book{}, storageErr("get book", err)
	}
	if b == nil {
		return Book{}, notFound("book", string(id))
	}
	return *b, nil
}

// ListBooks returns the author's books ordered by title.
func (l *Ledger) ListBooks(ctx context.Context, authorID AuthorID) ([]Book, error) {
	if _, err := l.requireAuthor(ctx, l.store, authorID); err != nil {
		return nil, err
	}
	books, err := l.store.ListBooksByAuthor(ctx, authorID)
	if err != nil {
		return nil, storageErr("list books", err)
	}
	return books, nil
}

// ListSales returns the sales history of one book, oldest first.
func (l *Ledger) ListSales(ctx context.Context, bookID BookID) ([]Sale, error) {
	if _, err := l.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	sales, err := l.store.ListSalesByBook(ctx, bookID)
	if err != nil {
		return nil, storageErr("list sales", err)
	}
	return sales, nil
}

// Earnings builds the author dashboard: per-book totals plus the wallet.
func (l *Ledger) Earnings(ctx context.Context, authorID AuthorID) (Earnings, error) {
	books, err := l.ListBooks(ctx, authorID)
	if err != nil {
		return Earnings{}, err
	}

	out := Earnings{
		AuthorID:    authorID,
		Books:       make([]BookEarnings, 0, len(books)),
		TotalAmount: decimal.Zero,
	}
	for _, b := range books {
		sales, err := l.store.ListSalesByBook(ctx, b.ID)
		if err != nil {
			return Earnings{}, storageErr("list sales", err)
		}
		be := BookEarnings{BookID: b.ID, Title: b.Title, CoverURL: b.CoverURL, Amount: decimal.Zero}
		for _, s := range sales {
			be.Copies += s.Copies
			be.Amount = be.Amount.Add(s.Amount)
		}
		out.TotalCopies += be.Copies
		out.TotalAmount = out.TotalAmount.Add(be.Amount)
		out.Books = append(out.Books, be)
	}

	wallet, err := l.Wallet(ctx, authorID)
	if err != nil {
		return Earnings{}, err
	}
	out.Balance = wallet.Balance
	out.Paid = wallet.Paid
	return out, nil
}
