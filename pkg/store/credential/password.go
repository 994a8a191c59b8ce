package credential

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost used when a store is configured with 0.
const DefaultCost = bcrypt.DefaultCost

// HashPassword returns the bcrypt hash of password. cost 0 means DefaultCost.
func HashPassword(password string, cost int) ([]byte, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// CheckPassword reports whether password matches hash. A malformed hash is
// an error; a mismatch is not.
func CheckPassword(hash []byte, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, &StoreError{Code: ErrCorrupted, Message: "stored password hash is invalid"}
	}
}

// ValidCost reports whether cost is acceptable to bcrypt (0 selects the default).
func ValidCost(cost int) bool {
	return cost == 0 || (cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost)
}
