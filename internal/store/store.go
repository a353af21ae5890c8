package store

import (
	"context"
	"errors"
)

var (
	// ErrAlreadyExists is returned when inserting a record whose key is taken.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
)

// Role classifies a user for presence-list fan-out.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a persisted credential record. Digest is the one-way password
// digest; Role defaults to RoleUser for records persisted before roles
// existed.
type User struct {
	Username string
	Digest   string
	Role     Role
}

// FileRecord maps an uploaded filename to the room that owns it.
type FileRecord struct {
	Filename string
	Room     string
}

// UserStore handles credential persistence.
type UserStore interface {
	// CreateUser inserts a new user record. Returns ErrAlreadyExists if the
	// username is taken; the store enforces uniqueness, so two concurrent
	// registrations of one username cannot both succeed.
	CreateUser(ctx context.Context, username, digest string) (*User, error)

	// GetUserByUsername retrieves a user record. Returns ErrNotFound if absent.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// FileStore handles file-ownership persistence.
type FileStore interface {
	// RegisterFile sets the owning room for a filename, overwriting any
	// previous mapping (last writer wins).
	RegisterFile(ctx context.Context, filename, room string) error

	// MayAccess reports whether the given room owns the filename.
	// Unknown filenames deny access.
	MayAccess(ctx context.Context, filename, room string) (bool, error)
}

// BlobStore holds uploaded file bytes, keyed by filename.
type BlobStore interface {
	Put(filename string, data []byte) error
	// Get returns the stored bytes. Returns ErrNotFound if absent.
	Get(filename string) ([]byte, error)
}

// Store aggregates the persisted registries.
type Store interface {
	UserStore
	FileStore

	// Close closes the underlying database connection.
	Close() error
}
