package auth

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	passwordIterations = 2048
	passwordKeyLength  = 64
	saltBytes          = 16
)

// HashPassword derives the stored hash of password with salt
// (pbkdf2-sha512, hex encoded).
func HashPassword(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), passwordIterations, passwordKeyLength, sha512.New)
	return hex.EncodeToString(key)
}

// MatchPassword reports whether candidate derives to hash with salt.
func MatchPassword(candidate, salt, hash string) bool {
	derived := HashPassword(candidate, salt)
	return subtle.ConstantTimeCompare([]byte(derived), []byte(hash)) == 1
}

// NewSalt reads a 32 character hex salt from r.
func NewSalt(r io.Reader) (string, error) {
	buf := make([]byte, saltBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
