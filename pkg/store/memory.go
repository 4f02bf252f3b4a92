package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NicolasHaas/quicchat/pkg/model"
)

// MemoryStore keeps credentials for the lifetime of the process.
// It mirrors SQLite behavior for validation and error handling.
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time

	byUsername map[string]*model.Credential
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:        now,
		byUsername: make(map[string]*model.Credential),
	}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// CreateCredential stores a new credential record.
func (s *MemoryStore) CreateCredential(username string, digest []byte) error {
	if err := model.ValidateUsername(username); err != nil {
		return fmt.Errorf("store: create credential: %w", err)
	}
	if len(digest) == 0 {
		return fmt.Errorf("store: create credential: empty digest")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byUsername[username]; exists {
		return ErrUserExists
	}
	d := make([]byte, len(digest))
	copy(d, digest)
	s.byUsername[username] = &model.Credential{
		Username:  username,
		Digest:    d,
		CreatedAt: s.now().UTC(),
	}
	return nil
}

// GetCredential retrieves a credential by username.
func (s *MemoryStore) GetCredential(username string) (*model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byUsername[username]
	if !ok {
		return nil, nil
	}
	return copyCredential(c), nil
}

// ListCredentials returns all credentials ordered by username.
func (s *MemoryStore) ListCredentials() ([]model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Credential, 0, len(s.byUsername))
	for _, c := range s.byUsername {
		out = append(out, *copyCredential(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func copyCredential(c *model.Credential) *model.Credential {
	cp := *c
	cp.Digest = append([]byte(nil), c.Digest...)
	return &cp
}
