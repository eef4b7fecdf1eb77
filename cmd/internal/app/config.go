package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config contains all runtime configuration loaded from environment variables
// with the VIDSHARE_ prefix (VIDSHARE_HTTP_ADDR, VIDSHARE_DATABASE_URL, ...).
type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:"0.0.0.0:8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// LogFormat is "json" or "pretty".
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	ReadHeaderTimeout time.Duration `envconfig:"HTTP_READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout      time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout       time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout   time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	MaxHeaderBytes    int           `envconfig:"HTTP_MAX_HEADER_BYTES" default:"1048576"`

	// DatabaseURL selects the backend: postgres:// or postgresql:// (a jdbc: prefix
	// is accepted), sqlite:<path> or file:<path>. Empty means SQLite at SQLitePath.
	// DB_URL, DB_USERNAME and DB_PASSWORD are read when the prefixed names are unset.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBUsername  string `envconfig:"DB_USERNAME"`
	DBPassword  string `envconfig:"DB_PASSWORD"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"0"`
	DBSchema    string `envconfig:"DB_SCHEMA" default:"public"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"vidshare.db"`

	// StoreCallTimeout bounds every store call, connection acquisition included.
	StoreCallTimeout time.Duration `envconfig:"STORE_CALL_TIMEOUT" default:"5s"`

	// If true, /readyz returns 503 unless Postgres is configured and reachable.
	ReadinessRequireDB bool `envconfig:"READINESS_REQUIRE_DB" default:"false"`

	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	RedisPassword   string        `envconfig:"REDIS_PASSWORD"`
	RedisDB         int           `envconfig:"REDIS_DB" default:"0"`
	ProfileCacheTTL time.Duration `envconfig:"PROFILE_CACHE_TTL" default:"5m"`

	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"vidshare.events"`
	AMQPQueue    string `envconfig:"AMQP_QUEUE" default:"vidshare.catalog.encoding"`

	// PipelineConsumer runs the encoding result consumer when AMQP is configured.
	PipelineConsumer bool `envconfig:"PIPELINE_CONSUMER" default:"true"`
	// Requeue backoff after a store failure, doubling up to the max.
	PipelineRetryDelay    time.Duration `envconfig:"PIPELINE_RETRY_DELAY" default:"500ms"`
	PipelineMaxRetryDelay time.Duration `envconfig:"PIPELINE_MAX_RETRY_DELAY" default:"30s"`

	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`

	// Video status websocket feed (server entry point only).
	WSAllowedOrigins    []string      `envconfig:"WS_ALLOWED_ORIGINS" default:"http://localhost,http://127.0.0.1"`
	WSOriginRequired    bool          `envconfig:"WS_ORIGIN_REQUIRED" default:"false"`
	WSHeartbeatInterval time.Duration `envconfig:"WS_HEARTBEAT_INTERVAL" default:"25s"`
	WSSendQueue         int           `envconfig:"WS_SEND_QUEUE" default:"64"`

	// RequirePersistentKeys rejects generated (ephemeral) token keys at startup.
	RequirePersistentKeys bool `envconfig:"REQUIRE_PERSISTENT_KEYS" default:"false"`
}

const envPrefix = "VIDSHARE"

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}

	fallback(&cfg.DatabaseURL, "DB_URL")
	fallback(&cfg.DBUsername, "DB_USERNAME")
	fallback(&cfg.DBPassword, "DB_PASSWORD")

	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if cfg.LogFormat != "json" && cfg.LogFormat != "pretty" {
		return Config{}, fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}
	return cfg, nil
}

func fallback(dst *string, key string) {
	if strings.TrimSpace(*dst) != "" {
		return
	}
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}
