package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DigestPassword returns the hex SHA-256 digest stored for new registrations.
// The persisted credential format predates salting; a salted scheme would
// invalidate every existing record, so the digest stays unsalted and
// deterministic.
func DigestPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword checks a password against a stored digest. Records written
// by external migration tooling may hold bcrypt hashes instead; both shapes
// verify.
func VerifyPassword(stored, password string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	digest := DigestPassword(password)
	return subtle.ConstantTimeCompare([]byte(stored), []byte(digest)) == 1
}
