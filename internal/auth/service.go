package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/pipechat/pipechat-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("user already exists")
)

// Service provides authentication operations over the user store.
type Service struct {
	store store.UserStore
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore) *Service {
	return &Service{store: userStore}
}

// Register creates a new user with the digested password and the default
// role. Uniqueness is enforced by the store, so concurrent registrations of
// the same username cannot both succeed.
func (s *Service) Register(ctx context.Context, username, password string) error {
	if _, err := s.store.CreateUser(ctx, username, DigestPassword(password)); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return ErrUserExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Authenticate validates credentials and returns the user's role.
func (s *Service) Authenticate(ctx context.Context, username, password string) (store.Role, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("get user: %w", err)
	}

	if !VerifyPassword(user.Digest, password) {
		return "", ErrInvalidCredentials
	}

	return user.Role, nil
}
