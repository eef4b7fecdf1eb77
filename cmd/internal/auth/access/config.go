package access

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"vidshare/cmd/security/token"
)

// Format selects the token encoding.
type Format string

const (
	FormatPaseto Format = "paseto"
	FormatJWT    Format = "jwt"
)

const minJWTSecretBytes = token.MinSecretBytes

// Config defines the access token settings.
type Config struct {
	Format Format

	// Issuer is the value set in (and required of) the "iss" claim.
	Issuer string

	AccessTokenTTL time.Duration
	ClockSkew      time.Duration

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key for FormatPaseto.
	PasetoV4SecretKeyHex string

	// JWTSecret is the HMAC key for FormatJWT.
	JWTSecret []byte

	// Ephemeral allows a missing key to be generated at startup (local runs only).
	Ephemeral bool
}

// DefaultConfig returns development defaults without key material.
func DefaultConfig() Config {
	return Config{
		Format:         FormatPaseto,
		Issuer:         "vidshare",
		AccessTokenTTL: time.Hour,
		ClockSkew:      30 * time.Second,
	}
}

// LoadConfigFromEnv loads the access token configuration.
//
// Variables:
//   - VIDSHARE_AUTH_FORMAT (paseto|jwt)
//   - VIDSHARE_AUTH_ISSUER
//   - VIDSHARE_AUTH_ACCESS_TTL, VIDSHARE_AUTH_CLOCK_SKEW (Go durations)
//   - VIDSHARE_PASETO_V4_SECRET_KEY_HEX (paseto)
//   - VIDSHARE_JWT_SECRET (jwt, at least 32 bytes)
//   - VIDSHARE_AUTH_EPHEMERAL_KEYS (bool)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("VIDSHARE_AUTH_FORMAT")); v != "" {
		cfg.Format = Format(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv("VIDSHARE_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}
	if v := os.Getenv("VIDSHARE_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}
	if v := os.Getenv("VIDSHARE_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}
	if v := os.Getenv("VIDSHARE_AUTH_EPHEMERAL_KEYS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.Ephemeral = b
	}

	cfg.PasetoV4SecretKeyHex = strings.TrimSpace(os.Getenv("VIDSHARE_PASETO_V4_SECRET_KEY_HEX"))

	if cfg.Format == FormatJWT {
		secret, err := token.SecretFromEnv("VIDSHARE_JWT_SECRET", minJWTSecretBytes)
		switch {
		case err == nil:
			cfg.JWTSecret = secret
		case errors.Is(err, token.ErrSecretMissing) && cfg.Ephemeral:
		default:
			return Config{}, ErrConfig
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Issuer == "" || c.AccessTokenTTL <= 0 || c.ClockSkew < 0 {
		return ErrConfig
	}
	switch c.Format {
	case FormatPaseto:
		if c.PasetoV4SecretKeyHex == "" && !c.Ephemeral {
			return ErrConfig
		}
	case FormatJWT:
		if len(c.JWTSecret) == 0 && !c.Ephemeral {
			return ErrConfig
		}
	default:
		return ErrConfig
	}
	return nil
}
