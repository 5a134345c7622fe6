package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor used for stored credentials.
const DefaultBcryptCost = 10

// Hasher hashes and compares passwords with bcrypt.
type Hasher struct {
	cost int
	// dummy is compared against when no stored hash exists so that
	// unknown identities cost the same work as wrong passwords.
	dummy []byte
}

// NewHasher builds a Hasher for the given cost. Out of range costs fall back
// to DefaultBcryptCost.
func NewHasher(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), cost)
	if err != nil {
		return nil, err
	}
	return &Hasher{cost: cost, dummy: dummy}, nil
}

// Hash hashes a plaintext password with the configured cost.
func (h *Hasher) Hash(password string) (string, error) {
	return HashPassword(password, h.cost)
}

// Compare reports whether plain matches hashed. An empty hash is compared
// against a dummy digest and always fails.
func (h *Hasher) Compare(hashed, plain string) bool {
	if hashed == "" {
		_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
		return false
	}
	return ComparePassword(hashed, plain) == nil
}

// HashPassword hashes a plaintext password with configured cost.
func HashPassword(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a password against its hashed value.
func ComparePassword(hashed, plain string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}

// ErrPasswordMismatch reports a wrong password.
var ErrPasswordMismatch = errors.New("invalid password")
