package access

import (
	"crypto/rand"
	"fmt"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// Claims is the verified content of an access token.
type Claims struct {
	UserID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
	Issuer    string
}

// Manager issues and verifies access tokens.
type Manager interface {
	Issue(userID int64, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (Claims, error)
}

// NewManager builds the Manager selected by cfg.Format.
// With cfg.Ephemeral set, a missing key is generated in memory; tokens then
// stop verifying after a restart.
func NewManager(cfg Config) (Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	switch cfg.Format {
	case FormatJWT:
		if len(cfg.JWTSecret) == 0 && cfg.Ephemeral {
			secret := make([]byte, 32)
			if _, err := rand.Read(secret); err != nil {
				return nil, fmt.Errorf("access: generate jwt secret: %w", err)
			}
			cfg.JWTSecret = secret
		}
		return NewJWTManager(cfg)
	default:
		if cfg.PasetoV4SecretKeyHex == "" && cfg.Ephemeral {
			cfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
		}
		return NewPasetoV4PublicManager(cfg)
	}
}
