// Package store provides persistence for credential records.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/quicchat/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// Store is the SQLite-backed CredentialStore.
type Store struct {
	db *sql.DB
}

// connPragmas run on every pooled connection. database/sql opens connections
// lazily, so a one-off PRAGMA statement would only reach one of them.
var connPragmas = []string{
	"busy_timeout(5000)", // wait for the writer instead of failing with SQLITE_BUSY
	"journal_mode(WAL)",  // readers do not block the writer
}

// dsn appends connPragmas to dbPath as _pragma query parameters.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	params := make([]string, len(connPragmas))
	for i, p := range connPragmas {
		params[i] = "_pragma=" + p
	}
	return dbPath + sep + strings.Join(params, "&")
}

// New opens (or creates) a SQLite database and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: open db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS credentials (
		username   TEXT NOT NULL PRIMARY KEY CHECK(length(username) > 0 AND length(username) <= 32),
		digest     BLOB NOT NULL,
		created_at TEXT NOT NULL DEFAULT (datetime('now'))
	);
	`
	ctx := context.Background()
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version      int
		statements   []string
		ignoreErrors bool
	}{
		{
			version:    1,
			statements: []string{schema},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if err := s.execMigration(ctx, stmt, m.ignoreErrors); err != nil {
				return err
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("store: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("store: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("store: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *Store) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("store: read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("store: update schema version: %w", err)
	}
	return nil
}

func (s *Store) execMigration(ctx context.Context, stmt string, ignoreErrors bool) error {
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		if ignoreErrors {
			return nil
		}
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// isUniqueViolation matches the driver's constraint error text; modernc does
// not export a typed error for it.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateCredential stores a new credential record. The username is
// validated before inserting.
func (s *Store) CreateCredential(username string, digest []byte) error {
	if err := model.ValidateUsername(username); err != nil {
		return fmt.Errorf("store: create credential: %w", err)
	}
	if len(digest) == 0 {
		return fmt.Errorf("store: create credential: empty digest")
	}
	_, err := s.db.ExecContext(context.Background(),
		"INSERT INTO credentials (username, digest, created_at) VALUES (?, ?, ?)",
		username, digest, formatDBTime(time.Now()))
	if isUniqueViolation(err) {
		return ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("store: create credential: %w", err)
	}
	return nil
}

// GetCredential retrieves a credential by username.
func (s *Store) GetCredential(username string) (*model.Credential, error) {
	c := &model.Credential{}
	var createdAt string
	err := s.db.QueryRowContext(context.Background(),
		"SELECT username, digest, created_at FROM credentials WHERE username = ?", username).
		Scan(&c.Username, &c.Digest, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get credential: %w", err)
	}
	if c.CreatedAt, err = parseDBTime(createdAt); err != nil {
		return nil, fmt.Errorf("store: get credential: %w", err)
	}
	return c, nil
}

// ListCredentials returns all credentials ordered by username.
func (s *Store) ListCredentials() ([]model.Credential, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT username, digest, created_at FROM credentials ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("store: list credentials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var creds []model.Credential
	for rows.Next() {
		var c model.Credential
		var createdAt string
		if err := rows.Scan(&c.Username, &c.Digest, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan credential: %w", err)
		}
		if c.CreatedAt, err = parseDBTime(createdAt); err != nil {
			return nil, fmt.Errorf("store: scan credential: %w", err)
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}
