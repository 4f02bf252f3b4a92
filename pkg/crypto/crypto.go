// Package crypto provides password hashing, key generation, and bearer token signing.
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"
)

// DefaultSecretSize is the size in bytes of a generated token signing secret.
const DefaultSecretSize = 32

var ErrPasswordEmpty = errors.New("crypto: password must not be empty")

// GenerateKey generates a random key of the given size.
func GenerateKey(size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return key, nil
}

// HashPassword hashes a password using bcrypt at the given cost.
// A cost of 0 selects bcrypt.DefaultCost.
func HashPassword(password string, cost int) ([]byte, error) {
	if password == "" {
		return nil, ErrPasswordEmpty
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("crypto: hash password: %w", err)
	}
	return digest, nil
}

// CheckPassword reports whether password matches a digest from HashPassword.
func CheckPassword(digest []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(digest, []byte(password)) == nil
}
