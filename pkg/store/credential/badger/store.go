// Package badger provides a persistent credential store backed by BadgerDB.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/lyhellcat/TinyWebServer/pkg/store/credential"
)

// Key layout:
//
//	u:<username>  ->  credential.User (JSON)
const userPrefix = "u:"

func userKey(username string) []byte {
	return []byte(userPrefix + username)
}

// Config configures a BadgerStore.
type Config struct {
	// DBPath is the directory holding the database files. Required unless InMemory.
	DBPath string `mapstructure:"db_path" yaml:"db_path" validate:"required_without=InMemory"`

	// InMemory keeps the database in memory only (tests).
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory"`

	// BcryptCost is the hashing cost. 0 selects credential.DefaultCost.
	BcryptCost int `mapstructure:"bcrypt_cost" yaml:"bcrypt_cost" validate:"omitempty,min=4,max=31"`

	// Users are created at open time if absent. Existing entries are left alone.
	Users map[string]string `mapstructure:"users" yaml:"users"`
}

// BadgerStore implements credential.Store on BadgerDB.
//
// Registration runs inside a read-write transaction, so two concurrent
// registrations of the same name cannot both succeed: the loser gets a
// conflict and is reported as taken.
type BadgerStore struct {
	db   *badger.DB
	cost int

	closeOnce sync.Once
	closeErr  error
}

var _ credential.Store = (*BadgerStore)(nil)

// New opens (or creates) the database described by cfg.
func New(ctx context.Context, cfg Config) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !cfg.InMemory && cfg.DBPath == "" {
		return nil, errors.New("badger credential store: db_path is required")
	}
	if !credential.ValidCost(cfg.BcryptCost) {
		return nil, fmt.Errorf("invalid bcrypt cost %d", cfg.BcryptCost)
	}

	opts := badger.DefaultOptions(cfg.DBPath)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	s := &BadgerStore{db: db, cost: cfg.BcryptCost}
	for name, password := range cfg.Users {
		if !credential.ValidInput(name, password) {
			_ = db.Close()
			return nil, fmt.Errorf("seed user %q: username and password must be non-empty", name)
		}
		if _, err := s.RegisterUser(ctx, name, password); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("seed user %q: %w", name, err)
		}
	}
	return s, nil
}

// VerifyLogin implements credential.Store.
func (s *BadgerStore) VerifyLogin(ctx context.Context, username, password string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !credential.ValidInput(username, password) {
		return false, nil
	}

	var user *credential.User
	err := s.db.View(func(txn *badger.Txn) error {
		u, err := getUser(txn, username)
		user = u
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, wrap(err, username)
	}
	return credential.CheckPassword(user.PasswordHash, password)
}

// RegisterUser implements credential.Store.
func (s *BadgerStore) RegisterUser(ctx context.Context, username, password string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !credential.ValidInput(username, password) {
		return false, nil
	}

	user, err := credential.NewUser(username, password, s.cost)
	if err != nil {
		return false, err
	}
	data, err := json.Marshal(user)
	if err != nil {
		return false, fmt.Errorf("encode user: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(userKey(username))
		switch {
		case err == nil:
			return credential.ErrUserExists
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(userKey(username), data)
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, credential.ErrUserExists), errors.Is(err, badger.ErrConflict):
		return false, nil
	default:
		return false, wrap(err, username)
	}
}

// Count returns the number of stored users.
func (s *BadgerStore) Count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(userPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, wrap(err, "")
	}
	return n, nil
}

// Close closes the database. Safe to call multiple times.
func (s *BadgerStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

func getUser(txn *badger.Txn, username string) (*credential.User, error) {
	item, err := txn.Get(userKey(username))
	if err != nil {
		return nil, err
	}
	var user credential.User
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &user)
	})
	if err != nil {
		return nil, &credential.StoreError{Code: credential.ErrCorrupted, Message: "failed to decode user", Username: username, Err: err}
	}
	return &user, nil
}

func wrap(err error, username string) error {
	var se *credential.StoreError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return &credential.StoreError{Code: credential.ErrClosed, Message: "badger credential store", Username: username, Err: credential.ErrStoreClosed}
	}
	return &credential.StoreError{Code: credential.ErrIO, Message: "badger credential store", Username: username, Err: err}
}
