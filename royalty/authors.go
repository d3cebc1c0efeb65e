/*
authors.go - Author lifecycle

CREATE:
  1. Create the identity-provider user
  2. Insert the author row linked to it
  If 2 fails the identity user is deleted again. If that cleanup fails too,
  the orphaned user id is reported as ReconciliationNeeded.

DELETE:
  The author row and the identity user go together. On a TxStore the
  identity user is deleted inside the transaction, so a provider failure
  rolls the author delete back. On a plain Store the row goes first and a
  provider failure is reported as ReconciliationNeeded.
*/
package royalty

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"
)

type AuthorInput struct {
	Name     string
	Email    string
	Password string
	// RoyaltyPercentage nil means the ledger default.
	RoyaltyPercentage *int
	Bank              BankDetails
}

// AuthorPatch is a partial admin edit. Nil fields are left untouched.
type AuthorPatch struct {
	Name              *string
	RoyaltyPercentage *int
	Bank              *BankDetails
	BankVerified      *bool
}

func (in AuthorInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return invalid("name", "is required")
	}
	if strings.TrimSpace(in.Email) == "" {
		return invalid("email", "is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return invalid("email", "is not a valid address")
	}
	if in.Password == "" {
		return invalid("password", "is required")
	}
	if in.RoyaltyPercentage != nil {
		return validatePercentage(*in.RoyaltyPercentage)
	}
	return nil
}

// CreateAuthor registers the identity user and the author profile.
func (l *Ledger) CreateAuthor(ctx context.Context, in AuthorInput) (Author, error) {
	if err := in.validate(); err != nil {
		return Author{}, err
	}
	if l.identity == nil {
		return Author{}, fmt.Errorf("create author: identity provider not configured")
	}

	percentage := l.defaultPercent
	if in.RoyaltyPercentage != nil {
		percentage = *in.RoyaltyPercentage
	}

	userID, err := l.identity.CreateUser(ctx, strings.TrimSpace(in.Email), in.Password)
	if err != nil {
		return Author{}, fmt.Errorf("create identity user: %w", err)
	}

	now := l.now()
	author := Author{
		ID:                AuthorID(l.newID()),
		UserID:            userID,
		Name:              strings.TrimSpace(in.Name),
		Email:             strings.TrimSpace(in.Email),
		RoyaltyPercentage: percentage,
		Bank:              in.Bank,
		BankVerified:      false,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := l.store.SaveAuthor(ctx, author); err != nil {
		if derr := l.identity.DeleteUser(ctx, userID); derr != nil {
			return Author{}, l.reconcile("create_author", author.ID, string(userID),
				fmt.Errorf("save author: %v; delete identity user: %w", err, derr))
		}
		return Author{}, storageErr("save author", err)
	}

	l.log.Info("author created",
		zap.String("author_id", string(author.ID)),
		zap.String("user_id", string(userID)),
		zap.Int("royalty_percentage", percentage),
	)
	return author, nil
}

// GetAuthor returns one author.
func (l *Ledger) GetAuthor(ctx context.Context, id AuthorID) (Author, error) {
	a, err := l.requireAuthor(ctx, l.store, id)
	if err != nil {
		return Author{}, err
	}
	return *a, nil
}

// AuthorForUser maps a logged-in identity user to its author profile.
func (l *Ledger) AuthorForUser(ctx context.Context, userID UserID) (Author, error) {
	a, err := l.store.GetAuthorByUserID(ctx, userID)
	if err != nil {
		return Author{}, storageErr("get author", err)
	}
	if a == nil {
		return Author{}, notFound("author for user", string(userID))
	}
	return *a, nil
}

// ListAuthors returns all authors, newest first.
func (l *Ledger) ListAuthors(ctx context.Context) ([]Author, error) {
	authors, err := l.store.ListAuthors(ctx)
	if err != nil {
		return nil, storageErr("list authors", err)
	}
	return authors, nil
}

// UpdateAuthor applies an admin edit.
func (l *Ledger) UpdateAuthor(ctx context.Context, id AuthorID, patch AuthorPatch) (Author, error) {
	a, err := l.requireAuthor(ctx, l.store, id)
	if err != nil {
		return Author{}, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return Author{}, invalid("name", "must not be empty")
		}
		a.Name = name
	}
	if patch.RoyaltyPercentage != nil {
		if err := validatePercentage(*patch.RoyaltyPercentage); err != nil {
			return Author{}, err
		}
		a.RoyaltyPercentage = *patch.RoyaltyPercentage
	}
	if patch.Bank != nil {
		a.Bank = *patch.Bank
	}
	if patch.BankVerified != nil {
		a.BankVerified = *patch.BankVerified
	}
	a.UpdatedAt = l.now()

	if err := l.store.UpdateAuthor(ctx, *a); err != nil {
		return Author{}, classify("update author", err)
	}
	return *a, nil
}

// DeleteAuthor removes the author, its ledger records and its identity user.
func (l *Ledger) DeleteAuthor(ctx context.Context, id AuthorID) error {
	a, err := l.requireAuthor(ctx, l.store, id)
	if err != nil {
		return err
	}
	if l.identity == nil && a.UserID != "" {
		return fmt.Errorf("delete author: identity provider not configured")
	}

	unlock := l.lockAuthor(a.ID)
	defer unlock()

	deleteIdentity := func() error {
		if a.UserID == "" {
			return nil
		}
		if err := l.identity.DeleteUser(ctx, a.UserID); err != nil {
			return fmt.Errorf("delete identity user: %w", err)
		}
		return nil
	}

	if ts, ok := l.transactional(); ok {
		identityGone := false
		err := ts.WithTx(ctx, func(s Store) error {
			if err := s.DeleteAuthor(ctx, a.ID); err != nil {
				return storageErr("delete author", err)
			}
			if err := deleteIdentity(); err != nil {
				return err
			}
			identityGone = true
			return nil
		})
		if err != nil && identityGone {
			return l.reconcile("delete_author", a.ID, string(a.UserID), err)
		}
		if err != nil {
			return err
		}
	} else {
		if err := l.store.DeleteAuthor(ctx, a.ID); err != nil {
			return storageErr("delete author", err)
		}
		if err := deleteIdentity(); err != nil {
			return l.reconcile("delete_author", a.ID, string(a.UserID), err)
		}
	}

	l.log.Info("author deleted",
		zap.String("author_id", string(a.ID)),
		zap.String("user_id", string(a.UserID)),
	)
	return nil
}
