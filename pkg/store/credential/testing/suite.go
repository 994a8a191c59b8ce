// Package testing provides a conformance suite for credential.Store
// implementations.
package testing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/lyhellcat/TinyWebServer/pkg/store/credential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite tests the credential.Store contract, so the same cases run
// against every backend.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &testing.StoreTestSuite{
//	        NewStore: func(t *testing.T) credential.Store {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore returns a fresh, empty store for each test.
	NewStore func(t *testing.T) credential.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("RegisterThenLogin", suite.testRegisterThenLogin)
	t.Run("WrongPassword", suite.testWrongPassword)
	t.Run("UnknownUser", suite.testUnknownUser)
	t.Run("DuplicateRegistration", suite.testDuplicateRegistration)
	t.Run("EmptyInput", suite.testEmptyInput)
	t.Run("ConcurrentRegistration", suite.testConcurrentRegistration)
	t.Run("CancelledContext", suite.testCancelledContext)
}

func testContext() context.Context {
	return context.Background()
}

func (suite *StoreTestSuite) newStore(t *testing.T) credential.Store {
	t.Helper()
	store := suite.NewStore(t)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func (suite *StoreTestSuite) testRegisterThenLogin(t *testing.T) {
	store := suite.newStore(t)

	ok, err := store.RegisterUser(testContext(), "alice", "secret")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.VerifyLogin(testContext(), "alice", "secret")
	require.NoError(t, err)
	assert.True(t, ok)
}

func (suite *StoreTestSuite) testWrongPassword(t *testing.T) {
	store := suite.newStore(t)
	MustRegister(t, store, "alice", "secret")

	ok, err := store.VerifyLogin(testContext(), "alice", "Secret")
	require.NoError(t, err)
	assert.False(t, ok)
}

func (suite *StoreTestSuite) testUnknownUser(t *testing.T) {
	store := suite.newStore(t)

	ok, err := store.VerifyLogin(testContext(), "nobody", "secret")
	require.NoError(t, err)
	assert.False(t, ok)
}

func (suite *StoreTestSuite) testDuplicateRegistration(t *testing.T) {
	store := suite.newStore(t)
	MustRegister(t, store, "alice", "secret")

	ok, err := store.RegisterUser(testContext(), "alice", "other")
	require.NoError(t, err)
	assert.False(t, ok)

	// The original password still works.
	ok, err = store.VerifyLogin(testContext(), "alice", "secret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.VerifyLogin(testContext(), "alice", "other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func (suite *StoreTestSuite) testEmptyInput(t *testing.T) {
	store := suite.newStore(t)

	cases := []struct{ user, pass string }{
		{"", "secret"},
		{"alice", ""},
		{"", ""},
	}
	for _, c := range cases {
		ok, err := store.RegisterUser(testContext(), c.user, c.pass)
		require.NoError(t, err)
		assert.False(t, ok, "register %q/%q", c.user, c.pass)

		ok, err = store.VerifyLogin(testContext(), c.user, c.pass)
		require.NoError(t, err)
		assert.False(t, ok, "login %q/%q", c.user, c.pass)
	}
}

func (suite *StoreTestSuite) testConcurrentRegistration(t *testing.T) {
	store := suite.newStore(t)

	const workers = 8
	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := store.RegisterUser(testContext(), "race", fmt.Sprintf("pw-%d", i))
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one registration must win")
}

func (suite *StoreTestSuite) testCancelledContext(t *testing.T) {
	store := suite.newStore(t)

	ctx, cancel := context.WithCancel(testContext())
	cancel()

	ok, err := store.VerifyLogin(ctx, "alice", "secret")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)

	ok, err = store.RegisterUser(ctx, "alice", "secret")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
}

// MustRegister registers a user and fails the test if it does not succeed.
func MustRegister(t *testing.T, store credential.Store, username, password string) {
	t.Helper()
	ok, err := store.RegisterUser(testContext(), username, password)
	require.NoError(t, err)
	require.True(t, ok, "register %q", username)
}
