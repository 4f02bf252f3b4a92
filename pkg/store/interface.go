package store

import (
	"errors"

	"github.com/NicolasHaas/quicchat/pkg/model"
)

// ErrUserExists is returned by CreateCredential when the username is taken.
var ErrUserExists = errors.New("store: user already exists")

// CredentialStore defines the persistence interface for credential records.
// Implementations include the SQLite store and an in-memory store used by
// default and in tests.
type CredentialStore interface {
	// Close closes the underlying storage connection.
	Close() error

	// CreateCredential stores a new username and password digest.
	// Returns ErrUserExists if the username already has a record.
	CreateCredential(username string, digest []byte) error

	// GetCredential retrieves a credential by username. Returns (nil, nil) if not found.
	GetCredential(username string) (*model.Credential, error)

	// ListCredentials returns all credentials ordered by username.
	ListCredentials() ([]model.Credential, error)
}

// Compile-time checks.
var (
	_ CredentialStore = (*Store)(nil)
	_ CredentialStore = (*MemoryStore)(nil)
)
