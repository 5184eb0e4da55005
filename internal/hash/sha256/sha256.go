// Package sha256 derives the rolling "passport" keys accepted by the read API.
// A passport is the hex SHA-256 of the shared secret followed by a UTC minute
// stamp, so a captured value stops working within a couple of minutes.
package sha256

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

const minuteLayout = "2006-01-02 15:04"

// Hasher issues and checks passports for one secret.
type Hasher struct {
	secret string
	now    func() time.Time
}

// New returns a Hasher for secret. now defaults to time.Now.
func New(secret string, now func() time.Time) *Hasher {
	if now == nil {
		now = time.Now
	}
	return &Hasher{secret: secret, now: now}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Passport returns the key for the UTC minute containing t.
func (h *Hasher) Passport(t time.Time) string {
	return h.Hash([]byte(h.secret + t.UTC().Format(minuteLayout)))
}

// Valid reports whether pass matches the previous, current or next minute.
func (h *Hasher) Valid(pass string) bool {
	if h.secret == "" || pass == "" {
		return false
	}
	now := h.now()
	ok := 0
	for _, t := range []time.Time{now.Add(-time.Minute), now, now.Add(time.Minute)} {
		ok |= subtle.ConstantTimeCompare([]byte(pass), []byte(h.Passport(t)))
	}
	return ok == 1
}
