package users

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// BcryptHasher hashes and verifies passwords with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, falling back to bcrypt.DefaultCost
// when cost is outside bcrypt's accepted range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	return string(bytes), err
}

// Verify compares in constant time and returns false for malformed hashes.
func (h *BcryptHasher) Verify(password, hash string) bool {
	return CheckPasswordHash(password, hash)
}

func HashPassword(password string) (string, error) {
	return NewBcryptHasher(bcrypt.DefaultCost).Hash(password)
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
