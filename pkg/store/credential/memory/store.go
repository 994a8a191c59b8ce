// Package memory provides an in-process credential store.
//
// Users live only as long as the process. Seed users from the configuration
// are hashed at construction.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/lyhellcat/TinyWebServer/pkg/store/credential"
	"github.com/puzpuzpuz/xsync/v3"
)

// Config configures a MemoryStore.
type Config struct {
	// Users maps usernames to plaintext passwords loaded at startup.
	Users map[string]string `mapstructure:"users" yaml:"users"`

	// BcryptCost is the hashing cost. 0 selects credential.DefaultCost.
	BcryptCost int `mapstructure:"bcrypt_cost" yaml:"bcrypt_cost" validate:"omitempty,min=4,max=31"`
}

// MemoryStore implements credential.Store with a concurrent map.
type MemoryStore struct {
	users  *xsync.MapOf[string, *credential.User]
	cost   int
	closed atomic.Bool
}

var _ credential.Store = (*MemoryStore)(nil)

// New creates a MemoryStore holding the configured seed users.
func New(cfg Config) (*MemoryStore, error) {
	if !credential.ValidCost(cfg.BcryptCost) {
		return nil, fmt.Errorf("invalid bcrypt cost %d", cfg.BcryptCost)
	}

	s := &MemoryStore{
		users: xsync.NewMapOf[string, *credential.User](),
		cost:  cfg.BcryptCost,
	}
	for name, password := range cfg.Users {
		if !credential.ValidInput(name, password) {
			return nil, fmt.Errorf("seed user %q: username and password must be non-empty", name)
		}
		if err := s.insert(name, password); err != nil {
			return nil, fmt.Errorf("seed user %q: %w", name, err)
		}
	}
	return s, nil
}

// VerifyLogin implements credential.Store.
func (s *MemoryStore) VerifyLogin(ctx context.Context, username, password string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	if !credential.ValidInput(username, password) {
		return false, nil
	}

	user, ok := s.users.Load(username)
	if !ok {
		return false, nil
	}
	return credential.CheckPassword(user.PasswordHash, password)
}

// RegisterUser implements credential.Store.
func (s *MemoryStore) RegisterUser(ctx context.Context, username, password string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	if !credential.ValidInput(username, password) {
		return false, nil
	}
	if _, ok := s.users.Load(username); ok {
		return false, nil
	}

	err := s.insert(username, password)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, credential.ErrUserExists):
		return false, nil
	default:
		return false, err
	}
}

// insert stores a new user, returning credential.ErrUserExists if another
// registration won the race for the name.
func (s *MemoryStore) insert(username, password string) error {
	user, err := credential.NewUser(username, password, s.cost)
	if err != nil {
		return err
	}
	if _, loaded := s.users.LoadOrStore(username, user); loaded {
		return credential.ErrUserExists
	}
	return nil
}

// Len returns the number of stored users.
func (s *MemoryStore) Len() int {
	return s.users.Size()
}

// Close marks the store closed. Later calls fail with a StoreError.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *MemoryStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return &credential.StoreError{Code: credential.ErrClosed, Message: "memory credential store", Err: credential.ErrStoreClosed}
	}
	return nil
}
