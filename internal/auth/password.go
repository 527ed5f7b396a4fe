package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher hashes and checks passwords with bcrypt at a fixed cost.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Check never fails open: a malformed hash, an over-long candidate, or a
// panic inside the comparison all count as a mismatch.
func (h *BcryptHasher) Check(password, hash string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var defaultHasher = NewBcryptHasher(bcrypt.DefaultCost)

func HashPassword(password string) (string, error) {
	return defaultHasher.Hash(password)
}
