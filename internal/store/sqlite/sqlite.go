package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/pipechat/pipechat-server/internal/store"
)

// role is nullable on purpose: records persisted before roles existed carry
// NULL and are read back as 'user'.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	username        TEXT PRIMARY KEY,
	password_digest TEXT NOT NULL,
	role            TEXT
);
CREATE TABLE IF NOT EXISTS files (
	filename TEXT PRIMARY KEY,
	room     TEXT NOT NULL
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, nil)
}

// NewWithSetup creates a new SQLite store, applies the schema, and runs a
// setup function. Useful for tests to seed rows directly.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Set connection pool limits
	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser inserts a new user record with the default role.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, digest string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_digest, role)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, username, digest, store.RoleUser); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, store.ErrAlreadyExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUserByUsername(ctx, username)
}

// GetUserByUsername retrieves a user record by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT username, password_digest, COALESCE(role, 'user')
		FROM users
		WHERE username = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.Username,
		&user.Digest,
		&user.Role,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// ==== FileStore implementation ====

// RegisterFile sets the owning room for a filename. Last writer wins, even
// across rooms; collision handling is an open product question.
func (s *SQLiteStore) RegisterFile(ctx context.Context, filename, room string) error {
	query := `
		INSERT INTO files (filename, room)
		VALUES (?, ?)
		ON CONFLICT(filename) DO UPDATE SET room = excluded.room
	`
	if _, err := s.db.ExecContext(ctx, query, filename, room); err != nil {
		return fmt.Errorf("register file: %w", err)
	}
	return nil
}

// MayAccess reports whether room owns filename. Unknown filenames deny.
func (s *SQLiteStore) MayAccess(ctx context.Context, filename, room string) (bool, error) {
	query := `
		SELECT room
		FROM files
		WHERE filename = ?
	`
	var owner string
	err := s.db.QueryRowContext(ctx, query, filename).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query file: %w", err)
	}
	return owner == room, nil
}
