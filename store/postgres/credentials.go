package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ritera/royalty-engine/identity"
	"github.com/ritera/royalty-engine/royalty"
)

// Credentials implements identity.CredentialStore on the same pool as the
// ledger. Its statements never run inside a ledger transaction.
type Credentials struct {
	pool *pgxpool.Pool
}

func NewCredentials(pool *pgxpool.Pool) *Credentials {
	return &Credentials{pool: pool}
}

func (c *Credentials) SaveCredential(ctx context.Context, cred identity.Credential) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO credentials (user_id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`,
		string(cred.UserID), cred.Email, cred.PasswordHash, cred.CreatedAt,
	)
	if pgConstraint(err, pgUniqueViolation) == "credentials_email_key" {
		return identity.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (c *Credentials) GetCredentialByEmail(ctx context.Context, email string) (*identity.Credential, error) {
	var cred identity.Credential
	err := c.pool.QueryRow(ctx,
		"SELECT user_id, email, password_hash, created_at FROM credentials WHERE email = $1", email,
	).Scan(&cred.UserID, &cred.Email, &cred.PasswordHash, &cred.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (c *Credentials) DeleteCredential(ctx context.Context, id royalty.UserID) error {
	if _, err := c.pool.Exec(ctx, "DELETE FROM credentials WHERE user_id = $1", string(id)); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
