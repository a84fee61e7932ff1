// Package credentials hashes and checks account passwords with bcrypt.
package credentials

import "golang.org/x/crypto/bcrypt"

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// Hasher produces self-describing bcrypt digests at a fixed cost.
type Hasher struct {
	cost  int
	dummy []byte
}

// NewHasher clamps cost into bcrypt's valid range.
func NewHasher(cost int) *Hasher {
	cost = min(max(cost, bcrypt.MinCost), bcrypt.MaxCost)
	// same cost as real digests
	dummy, err := bcrypt.GenerateFromPassword([]byte("gatekeeper-timing-equalizer"), cost)
	if err != nil {
		panic(err)
	}
	return &Hasher{cost: cost, dummy: dummy}
}

// Hash returns a new digest; the salt is random, so two calls on the same
// password differ.
func (h *Hasher) Hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether password matches digest. Malformed digests never
// match.
func (h *Hasher) Verify(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

// Dummy runs a comparison that always fails, for logins against unknown
// accounts.
func (h *Hasher) Dummy(password string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}
