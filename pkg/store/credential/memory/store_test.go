package memory

import (
	"context"
	"testing"

	"github.com/lyhellcat/TinyWebServer/pkg/store/credential"
	credtest "github.com/lyhellcat/TinyWebServer/pkg/store/credential/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCost keeps bcrypt fast in tests.
const testCost = 4

func TestMemoryStoreConformance(t *testing.T) {
	suite := &credtest.StoreTestSuite{
		NewStore: func(t *testing.T) credential.Store {
			s, err := New(Config{BcryptCost: testCost})
			require.NoError(t, err)
			return s
		},
	}
	suite.Run(t)
}

func TestSeedUsers(t *testing.T) {
	s, err := New(Config{
		Users:      map[string]string{"admin": "admin-pw", "guest": "guest-pw"},
		BcryptCost: testCost,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	ok, err := s.VerifyLogin(context.Background(), "admin", "admin-pw")
	require.NoError(t, err)
	assert.True(t, ok)

	user, _ := s.users.Load("guest")
	assert.NotEqual(t, []byte("guest-pw"), user.PasswordHash, "passwords are stored hashed")
}

func TestInvalidSeedUser(t *testing.T) {
	_, err := New(Config{Users: map[string]string{"admin": ""}, BcryptCost: testCost})
	assert.Error(t, err)
}

func TestInvalidCost(t *testing.T) {
	_, err := New(Config{BcryptCost: 99})
	assert.Error(t, err)
}

func TestClosedStore(t *testing.T) {
	s, err := New(Config{BcryptCost: testCost})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.VerifyLogin(context.Background(), "a", "b")
	assert.True(t, credential.IsCode(err, credential.ErrClosed))
	assert.ErrorIs(t, err, credential.ErrStoreClosed)
}
