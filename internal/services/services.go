package services

import (
	"crypto/rand"
	"errors"
	"io"

	"github.com/modcatalog/apiserver/internal/auth"
	"github.com/modcatalog/apiserver/internal/logging"
)

var (
	// ErrInvalidInput wraps every validation failure.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials is returned when a username/password pair does
	// not match. Unknown users and wrong passwords are not distinguished.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnavailable is returned when an optional backend is not configured.
	ErrUnavailable = errors.New("feature not configured")
)

// Deps carries the collaborators shared by the services.
type Deps struct {
	Logger logging.Logger
	Clock  auth.Clock
	Random io.Reader
	Audit  AuditSink
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Clock == nil {
		d.Clock = auth.SystemClock
	}
	if d.Random == nil {
		d.Random = rand.Reader
	}
	if d.Audit == nil {
		d.Audit = NopAuditSink{}
	}
	return d
}
