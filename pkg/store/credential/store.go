// Package credential defines the user store consulted by the login and
// registration form routes.
package credential

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store verifies and registers users.
//
// Both operations return false (with a nil error) for an empty username or
// password. RegisterUser returns false when the name is already taken.
// Errors are reserved for infrastructure failures; callers treat them as a
// failed check.
//
// Thread safety:
// Implementations must be safe for concurrent use by the adapter's workers.
type Store interface {
	// VerifyLogin reports whether username exists and password matches.
	VerifyLogin(ctx context.Context, username, password string) (bool, error)

	// RegisterUser creates username with password if the name is free.
	RegisterUser(ctx context.Context, username, password string) (bool, error)

	// Close releases the store's resources.
	Close() error
}

// User is a stored account.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash []byte    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewUser hashes password and returns a User with a fresh ID.
func NewUser(username, password string, cost int) (*User, error) {
	hash, err := HashPassword(password, cost)
	if err != nil {
		return nil, err
	}
	return &User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// ValidInput reports whether both fields are non-empty.
func ValidInput(username, password string) bool {
	return username != "" && password != ""
}
