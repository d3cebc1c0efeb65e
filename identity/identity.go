/*
Package identity is the login side of the royalty service.

PURPOSE:
  Authors sign in with an email and password. The ledger only ever sees the
  opaque UserID this package hands out; it never touches credentials.

KEY TYPES:
  Local:           royalty.IdentityProvider backed by bcrypt hashes
  CredentialStore: where Local keeps the hashes (memory, sqlite, postgres)
  Tokens:          HS256 session tokens issued after a successful login

SEE ALSO:
  - royalty/ledger.go: IdentityProvider interface
  - api/server.go: Authenticated middleware
*/
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ritera/royalty-engine/royalty"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Credential is one login identity.
type Credential struct {
	UserID       royalty.UserID
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// CredentialStore persists credentials. Get methods return (nil, nil) when
// nothing matches. SaveCredential returns ErrEmailTaken on a duplicate email.
type CredentialStore interface {
	SaveCredential(ctx context.Context, c Credential) error
	GetCredentialByEmail(ctx context.Context, email string) (*Credential, error)
	DeleteCredential(ctx context.Context, id royalty.UserID) error
}

// Local implements royalty.IdentityProvider on top of a CredentialStore.
type Local struct {
	creds CredentialStore
	cost  int
}

// NewLocal returns a provider hashing with the given bcrypt cost.
// Zero means bcrypt.DefaultCost.
func NewLocal(creds CredentialStore, cost int) *Local {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Local{creds: creds, cost: cost}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser registers a new login and returns its id.
func (l *Local) CreateUser(ctx context.Context, email, password string) (royalty.UserID, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", fmt.Errorf("create user: email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	c := Credential{
		UserID:       royalty.UserID(uuid.NewString()),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := l.creds.SaveCredential(ctx, c); err != nil {
		return "", err
	}
	return c.UserID, nil
}

// EnsureUser creates the login unless the email is already registered.
// It bootstraps admin accounts, which have no author profile.
func (l *Local) EnsureUser(ctx context.Context, email, password string) (bool, error) {
	if _, err := l.CreateUser(ctx, email, password); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteUser removes a login. Deleting an unknown user is not an error.
func (l *Local) DeleteUser(ctx context.Context, id royalty.UserID) error {
	return l.creds.DeleteCredential(ctx, id)
}

// Authenticate checks an email/password pair.
func (l *Local) Authenticate(ctx context.Context, email, password string) (Credential, error) {
	c, err := l.creds.GetCredentialByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return Credential{}, err
	}
	if c == nil {
		return Credential{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(c.PasswordHash, []byte(password)); err != nil {
		return Credential{}, ErrInvalidCredentials
	}
	return *c, nil
}
