package authapi

import (
	"os"
	"strconv"
	"strings"
)

// Config controls router behavior.
type Config struct {
	// BasePath prefixes every route ("/prod"). Empty mounts at the root.
	BasePath string

	MaxBodyBytes int64

	// AllowOrigin is the Access-Control-Allow-Origin value.
	AllowOrigin string
}

// DefaultConfig returns the router defaults.
func DefaultConfig() Config {
	return Config{MaxBodyBytes: 1 << 20, AllowOrigin: "*"}
}

// LoadConfigFromEnv loads router config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.BasePath = normalizeBasePath(os.Getenv("VIDSHARE_HTTP_BASE_PATH"))
	cfg.MaxBodyBytes = envInt64("VIDSHARE_HTTP_MAX_BODY_BYTES", cfg.MaxBodyBytes)
	if v := strings.TrimSpace(os.Getenv("VIDSHARE_CORS_ALLOW_ORIGIN")); v != "" {
		cfg.AllowOrigin = v
	}
	return cfg
}

// normalizeBasePath returns "" or "/seg[/seg...]" without a trailing slash.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
