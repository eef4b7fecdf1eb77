package password

import (
	"errors"
	"fmt"
)

// Public, stable errors for callers.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")
	ErrInvalidHash      = errors.New("invalid password hash")
)

// LengthError reports a policy length violation together with the limit that was crossed.
// It unwraps to ErrPasswordTooShort or ErrPasswordTooLong.
type LengthError struct {
	Kind  error
	Limit int
}

func (e LengthError) Error() string {
	return fmt.Sprintf("%v (limit %d)", e.Kind, e.Limit)
}

func (e LengthError) Unwrap() error { return e.Kind }
