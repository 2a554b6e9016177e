package auth

import (
	"errors"
	"strings"

	"github.com/modcatalog/apiserver/types"
)

var (
	// ErrCredentialMissing is returned when no bearer credential was supplied.
	ErrCredentialMissing = errors.New("credential required")

	// ErrCredentialInvalid is returned when the credential does not resolve
	// to a live token. Expired and unknown tokens are not distinguished.
	ErrCredentialInvalid = errors.New("invalid credential")

	// ErrInsufficientPermission is matched by *InsufficientPermissionError.
	ErrInsufficientPermission = errors.New("insufficient permissions")
)

// InsufficientPermissionError lists the required permissions a live token
// failed to satisfy.
type InsufficientPermissionError struct {
	Missing []types.Permission
}

func (e *InsufficientPermissionError) Error() string {
	if len(e.Missing) == 0 {
		return ErrInsufficientPermission.Error()
	}
	return ErrInsufficientPermission.Error() + ": " + strings.Join(types.PermissionStrings(e.Missing), ", ")
}

func (e *InsufficientPermissionError) Is(target error) bool {
	return target == ErrInsufficientPermission
}
