package access

import "errors"

var (
	// ErrInvalidToken is returned when a token fails signature, issuer or time validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid access token config")
)
