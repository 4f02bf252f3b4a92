package client

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Bookmark is a saved login: the last token a server issued to a user.
type Bookmark struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Token    string `yaml:"token"`
	LastUsed int64  `yaml:"last_used,omitempty"`
}

// BookmarkStore persists bookmarks as YAML.
type BookmarkStore struct {
	fs        afero.Fs
	path      string
	Bookmarks []Bookmark `yaml:"bookmarks"`
}

// NewBookmarkStore creates a store backed by path on fs.
func NewBookmarkStore(fs afero.Fs, path string) *BookmarkStore {
	return &BookmarkStore{fs: fs, path: path}
}

// Load reads bookmarks from disk. Returns empty list if file doesn't exist.
func (bs *BookmarkStore) Load() error {
	data, err := afero.ReadFile(bs.fs, bs.path)
	if err != nil {
		if os.IsNotExist(err) {
			bs.Bookmarks = nil
			return nil
		}
		return fmt.Errorf("client: read bookmarks: %w", err)
	}
	if err := yaml.Unmarshal(data, bs); err != nil {
		return fmt.Errorf("client: parse bookmarks: %w", err)
	}
	return nil
}

// Save writes bookmarks to disk. The file holds tokens, so it is private.
func (bs *BookmarkStore) Save() error {
	data, err := yaml.Marshal(bs)
	if err != nil {
		return err
	}
	if err := bs.fs.MkdirAll(filepath.Dir(bs.path), 0o700); err != nil {
		return fmt.Errorf("client: create bookmarks dir: %w", err)
	}
	if err := afero.WriteFile(bs.fs, bs.path, data, 0o600); err != nil {
		return fmt.Errorf("client: write bookmarks: %w", err)
	}
	return nil
}

// Put adds or updates the bookmark for b.Addr and b.Username.
// Returns true if it was a new entry.
func (bs *BookmarkStore) Put(b Bookmark) bool {
	for i, existing := range bs.Bookmarks {
		if existing.Addr == b.Addr && existing.Username == b.Username {
			bs.Bookmarks[i] = b
			return false
		}
	}
	bs.Bookmarks = append(bs.Bookmarks, b)
	return true
}

// Find returns the bookmark for addr and username, or nil.
func (bs *BookmarkStore) Find(addr, username string) *Bookmark {
	for _, b := range bs.Bookmarks {
		if b.Addr == addr && b.Username == username {
			return &b
		}
	}
	return nil
}

// Forget removes the bookmark for addr and username.
func (bs *BookmarkStore) Forget(addr, username string) bool {
	for i, b := range bs.Bookmarks {
		if b.Addr == addr && b.Username == username {
			bs.Bookmarks = append(bs.Bookmarks[:i], bs.Bookmarks[i+1:]...)
			return true
		}
	}
	return false
}
