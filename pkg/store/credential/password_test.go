package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("secret", 4)
	require.NoError(t, err)

	ok, err := CheckPassword(hash, "secret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckPassword(hash, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckPasswordCorruptHash(t *testing.T) {
	_, err := CheckPassword([]byte("not-a-hash"), "secret")
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCorrupted))
}

func TestNewUser(t *testing.T) {
	u, err := NewUser("alice", "secret", 4)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.NotEqual(t, [16]byte{}, [16]byte(u.ID))
	assert.False(t, u.CreatedAt.IsZero())
}

func TestValidCost(t *testing.T) {
	assert.True(t, ValidCost(0))
	assert.True(t, ValidCost(4))
	assert.False(t, ValidCost(3))
	assert.False(t, ValidCost(32))
}

func TestStoreErrorMessage(t *testing.T) {
	err := &StoreError{Code: ErrIO, Message: "read failed", Username: "bob", Err: ErrStoreClosed}
	assert.Equal(t, "read failed: bob: credential: store is closed", err.Error())
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.Equal(t, "io", ErrIO.String())
}
