// Package password provides one-way password hashing and verification with a
// deliberately expensive, tunable cost factor.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost makes a single verification cost tens of milliseconds on
// current hardware, expensive enough to blunt offline brute force while
// keeping login latency acceptable.
const DefaultCost = 12

// Hasher hashes and verifies passwords with bcrypt. The zero value is not
// usable; construct with NewHasher.
type Hasher struct {
	cost      int
	dummyHash []byte
}

// NewHasher returns a Hasher with the given bcrypt cost. Costs outside
// bcrypt's supported range fall back to DefaultCost. The constructor
// precomputes a dummy hash at the same cost so that verification against a
// nonexistent account burns the same work as a real comparison.
func NewHasher(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("decoy-password-for-timing"), cost)
	if err != nil {
		return nil, fmt.Errorf("precomputing dummy hash: %w", err)
	}
	return &Hasher{cost: cost, dummyHash: dummy}, nil
}

// Hash returns the bcrypt hash of password. The input is passed to bcrypt
// as given, never truncated here; bcrypt itself rejects inputs over its
// 72-byte limit with an error rather than silently cutting them.
func (h *Hasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(bytes), nil
}

// Verify reports whether password matches hash. Library errors (malformed
// hash, oversized input) are never treated as a match.
func (h *Hasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// DummyVerify burns one bcrypt comparison against the precomputed dummy
// hash and always reports false. Login calls this when the account does not
// exist or has no password, equalizing response time between "user not
// found" and "wrong password" so attackers cannot enumerate emails.
func (h *Hasher) DummyVerify(password string) bool {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(password))
	return false
}
