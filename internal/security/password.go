package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const hashedLength = sha256.Size * 2

// Hash returns the lowercase hex SHA-256 digest of plaintext. Clients perform
// the same transform before sending a login, so the stored value and the
// submitted value compare directly.
func Hash(plaintext string) string {
	digest := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(digest[:])
}

// LooksHashed reports whether value has the shape of a Hash result: exactly 64
// hex characters, either case. A plaintext password of that shape is
// indistinguishable from a digest and is treated as one.
func LooksHashed(value string) bool {
	if len(value) != hashedLength {
		return false
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// RehashIfPlaintext returns the value that should be stored for a credential
// cell and whether it differs from the current one. Blank cells are left
// alone; digests are only canonicalised to lowercase.
func RehashIfPlaintext(value string) (string, bool) {
	if value == "" {
		return value, false
	}
	if LooksHashed(value) {
		canonical := strings.ToLower(value)
		return canonical, canonical != value
	}
	return Hash(value), true
}

// Matches compares a client-supplied digest with the stored one byte for byte.
func Matches(provided, stored string) bool {
	if provided == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(stored)) == 1
}
