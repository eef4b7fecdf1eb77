package app

import (
	"errors"

	"vidshare/cmd/internal/auth/access"
)

// ValidateSecurityConfig enforces the token key policy at startup.
// With RequirePersistentKeys set, generated keys are refused: tokens signed with them
// would stop verifying after a restart and would differ between instances.
func ValidateSecurityConfig(cfg Config, acc access.Config) error {
	if !cfg.RequirePersistentKeys {
		return nil
	}
	switch acc.Format {
	case access.FormatJWT:
		if len(acc.JWTSecret) == 0 {
			return errors.New("security policy: VIDSHARE_REQUIRE_PERSISTENT_KEYS=true but VIDSHARE_JWT_SECRET is missing")
		}
	default:
		if acc.PasetoV4SecretKeyHex == "" {
			return errors.New("security policy: VIDSHARE_REQUIRE_PERSISTENT_KEYS=true but VIDSHARE_PASETO_V4_SECRET_KEY_HEX is missing")
		}
	}
	return nil
}
