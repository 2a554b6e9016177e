package auth

import (
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
)

const (
	tokenIDBytes = 64

	// TokenIDLength is the length of every generated token id.
	TokenIDLength = 86
)

var tokenIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{86}$`)

// NewTokenID reads 64 bytes from r and encodes them as unpadded base64url.
func NewTokenID(r io.Reader) (string, error) {
	buf := make([]byte, tokenIDBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read token id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ValidTokenID reports whether id has the shape of a generated token id.
func ValidTokenID(id string) bool {
	return tokenIDPattern.MatchString(id)
}
