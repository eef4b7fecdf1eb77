package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int
	MaxLength int
	// RejectVeryWeak enables a minimal weak-pattern rejection on top of the length rules.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
// A Config value hashes, verifies and validates passwords on its own.
type Config struct {
	Params Argon2idParams
	Policy Policy

	// BcryptMaxCost bounds the cost factor accepted when verifying legacy bcrypt hashes.
	BcryptMaxCost int
}

// DefaultConfig returns the platform baseline. The minimum length of 6 is the
// long-standing sign-up rule of the video platform and must not be raised
// without a migration plan for existing clients.
func DefaultConfig() Config {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 6,
			MaxLength: 256,
		},
		BcryptMaxCost: 14,
	}
}

// FromEnv loads config from environment variables on top of DefaultConfig.
//
// Env surface:
//   - VIDSHARE_PASSWORD_MIN_LEN
//   - VIDSHARE_PASSWORD_MAX_LEN
//   - VIDSHARE_PASSWORD_REJECT_VERY_WEAK (true/false)
//   - VIDSHARE_ARGON2_MEMORY_KIB
//   - VIDSHARE_ARGON2_ITERATIONS
//   - VIDSHARE_ARGON2_PARALLELISM
//   - VIDSHARE_ARGON2_SALT_LEN
//   - VIDSHARE_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	ints := []struct {
		key      string
		min, max int
		dst      *int
	}{
		{"VIDSHARE_PASSWORD_MIN_LEN", 1, 1024, &cfg.Policy.MinLength},
		{"VIDSHARE_PASSWORD_MAX_LEN", 1, 4096, &cfg.Policy.MaxLength},
	}
	for _, f := range ints {
		v, ok := lookup(f.key)
		if !ok {
			continue
		}
		n, err := parseIntInRange(v, f.min, f.max)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = n
	}

	if v, ok := lookup("VIDSHARE_PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("VIDSHARE_PASSWORD_REJECT_VERY_WEAK: invalid boolean")
		}
		cfg.Policy.RejectVeryWeak = b
	}

	parallelism := uint32(cfg.Params.Parallelism)
	u32s := []struct {
		key      string
		min, max uint32
		dst      *uint32
	}{
		{"VIDSHARE_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, &cfg.Params.MemoryKiB},
		{"VIDSHARE_ARGON2_ITERATIONS", 1, 20, &cfg.Params.Iterations},
		{"VIDSHARE_ARGON2_PARALLELISM", 1, math.MaxUint8, &parallelism},
		{"VIDSHARE_ARGON2_SALT_LEN", 8, 64, &cfg.Params.SaltLength},
		{"VIDSHARE_ARGON2_KEY_LEN", 16, 64, &cfg.Params.KeyLength},
	}
	for _, f := range u32s {
		v, ok := lookup(f.key)
		if !ok {
			continue
		}
		n, err := parseUint32InRange(v, f.min, f.max)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = n
	}
	cfg.Params.Parallelism = uint8(parallelism) // #nosec G115 -- bounded by MaxUint8 above.

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

// lookup treats blank values as unset.
func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func parseIntInRange(s string, minVal, maxVal int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	if n < minVal || n > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return n, nil
}

func parseUint32InRange(s string, minVal, maxVal uint32) (uint32, error) {
	u64, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}
