// Package auth verifies credentials and issues bearer tokens for chat sessions.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NicolasHaas/quicchat/pkg/crypto"
	"github.com/NicolasHaas/quicchat/pkg/model"
	"github.com/NicolasHaas/quicchat/pkg/store"
)

// Options configures a Manager.
type Options struct {
	Secret     []byte        // token signing key (required)
	TokenTTL   time.Duration // default crypto.DefaultTokenTTL
	BcryptCost int           // 0 selects bcrypt.DefaultCost
	Now        func() time.Time
}

// Manager owns the credential store and the token issuer.
type Manager struct {
	store  store.CredentialStore
	tokens *crypto.TokenIssuer
	cost   int

	locks userLocks
}

// NewManager creates a Manager backed by st.
func NewManager(st store.CredentialStore, opts Options) (*Manager, error) {
	if st == nil {
		return nil, errors.New("auth: nil credential store")
	}
	issuer, err := crypto.NewTokenIssuerWithClock(opts.Secret, opts.TokenTTL, opts.Now)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	return &Manager{
		store:  st,
		tokens: issuer,
		cost:   opts.BcryptCost,
		locks:  userLocks{m: make(map[string]*userLock)},
	}, nil
}

// Register stores a digest of password for username. It returns false if the
// username already has a record.
func (m *Manager) Register(username, password string) (bool, error) {
	unlock := m.locks.lock(username)
	defer unlock()
	return m.register(username, password)
}

func (m *Manager) register(username, password string) (bool, error) {
	if err := model.ValidateUsername(username); err != nil {
		return false, fmt.Errorf("auth: register: %w", err)
	}
	existing, err := m.store.GetCredential(username)
	if err != nil {
		return false, fmt.Errorf("auth: register: %w", err)
	}
	if existing != nil {
		return false, nil
	}
	digest, err := crypto.HashPassword(password, m.cost)
	if err != nil {
		return false, fmt.Errorf("auth: register: %w", err)
	}
	if err := m.store.CreateCredential(username, digest); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return false, nil
		}
		return false, fmt.Errorf("auth: register: %w", err)
	}
	slog.Info("user registered", "user", username)
	return true, nil
}

// Verify reports whether password matches the stored digest for username.
// Unknown users verify as false.
func (m *Manager) Verify(username, password string) (bool, error) {
	cred, err := m.store.GetCredential(username)
	if err != nil {
		return false, fmt.Errorf("auth: verify: %w", err)
	}
	if cred == nil {
		return false, nil
	}
	return crypto.CheckPassword(cred.Digest, password), nil
}

// VerifyOrRegister verifies the credentials, registering the user on first
// use. Calls for the same username are serialized.
func (m *Manager) VerifyOrRegister(username, password string) (ok, registered bool, err error) {
	unlock := m.locks.lock(username)
	defer unlock()

	ok, err = m.Verify(username, password)
	if err != nil || ok {
		return ok, false, err
	}
	registered, err = m.register(username, password)
	if err != nil {
		return false, false, err
	}
	return registered, registered, nil
}

// IssueToken returns a signed token whose subject is username.
func (m *Manager) IssueToken(username string) (string, error) {
	token, err := m.tokens.Issue(username)
	if err != nil {
		return "", fmt.Errorf("auth: issue token: %w", err)
	}
	return token, nil
}

// ValidateToken returns the token's subject, or ("", false) if the token is
// malformed, forged, or expired.
func (m *Manager) ValidateToken(token string) (string, bool) {
	sub, err := m.tokens.Verify(token)
	if err != nil {
		slog.Debug("token rejected", "err", err)
		return "", false
	}
	return sub, true
}

// Usernames lists every registered username.
func (m *Manager) Usernames() ([]string, error) {
	creds, err := m.store.ListCredentials()
	if err != nil {
		return nil, fmt.Errorf("auth: list users: %w", err)
	}
	names := make([]string, 0, len(creds))
	for _, c := range creds {
		names = append(names, c.Username)
	}
	return names, nil
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// userLocks is a per-username mutex table. Entries are dropped once no
// caller holds or waits on them.
type userLocks struct {
	mu sync.Mutex
	m  map[string]*userLock
}

func (l *userLocks) lock(username string) (unlock func()) {
	l.mu.Lock()
	ul, ok := l.m[username]
	if !ok {
		ul = &userLock{}
		l.m[username] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.m, username)
		}
		l.mu.Unlock()
	}
}
