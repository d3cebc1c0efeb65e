package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ritera/royalty-engine/identity"
	"github.com/ritera/royalty-engine/royalty"
)

// Credentials implements identity.CredentialStore.
//
// It opens its own database, separate from the ledger Store. The ledger
// deletes identity users while holding a write transaction, and SQLite
// allows one writer per file.
type Credentials struct {
	db *sql.DB
}

// NewCredentials opens (and migrates) the credential database at dbPath.
func NewCredentials(dbPath string) (*Credentials, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS credentials (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash BLOB NOT NULL,
		created_at TEXT NOT NULL
	);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate credentials: %w", err)
	}
	return &Credentials{db: db}, nil
}

func (c *Credentials) Close() error {
	return c.db.Close()
}

func (c *Credentials) SaveCredential(ctx context.Context, cred identity.Credential) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO credentials (user_id, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)`,
		cred.UserID, cred.Email, cred.PasswordHash, formatTime(cred.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return identity.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (c *Credentials) GetCredentialByEmail(ctx context.Context, email string) (*identity.Credential, error) {
	var (
		cred      identity.Credential
		createdAt string
	)
	err := c.db.QueryRowContext(ctx,
		"SELECT user_id, email, password_hash, created_at FROM credentials WHERE email = ?", email,
	).Scan(&cred.UserID, &cred.Email, &cred.PasswordHash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cred.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &cred, nil
}

func (c *Credentials) DeleteCredential(ctx context.Context, id royalty.UserID) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM credentials WHERE user_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
